package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// seekClampMargin keeps seeks off the very end of the stream, where some
// containers have no decodable frame. For clips under a second this can make
// neighboring candidates visually identical; revisit if that matters.
const seekClampMargin = 0.1

// ThumbnailExtractor captures still frames at normalized positions and
// encodes them at a fixed output size.
type ThumbnailExtractor struct {
	engine    *Engine
	positions []float64
	width     int
	height    int
}

func NewThumbnailExtractor(engine *Engine, settings Settings) *ThumbnailExtractor {
	return &ThumbnailExtractor{
		engine:    engine,
		positions: settings.ThumbnailPositions,
		width:     settings.ThumbnailWidth,
		height:    settings.ThumbnailHeight,
	}
}

func clampSeek(position, duration float64) float64 {
	t := position * duration
	max := duration - seekClampMargin
	if t > max {
		t = max
	}
	if t < 0 {
		t = 0
	}
	return t
}

// Extract produces up to len(positions) candidates from a probed video.
// Positions are processed strictly in order, one frame grab at a time; frame
// extraction is not parallelizable against the shared engine and candidate
// offsets must come out strictly increasing.
func (t *ThumbnailExtractor) Extract(ctx context.Context, session *Session) ([]Candidate, error) {
	duration := session.Meta.DurationSeconds
	if duration <= 0 {
		return nil, &ThumbnailExtractionError{Err: fmt.Errorf("no probed duration for %s", session.Original.Name)}
	}

	candidates := make([]Candidate, 0, len(t.positions))
	for i, pos := range t.positions {
		offset := clampSeek(pos, duration)
		framePath := filepath.Join(session.WorkDir(), fmt.Sprintf("frame_%02d.jpg", i))

		if err := t.engine.ExtractFrameAt(ctx, session.Original.Path, framePath, offset); err != nil {
			slog.Warn("thumbnail: frame grab failed", "session_id", session.ID, "position", pos, "error", err)
			continue
		}

		thumbPath := filepath.Join(session.WorkDir(), fmt.Sprintf("thumb_%02d.jpg", i))
		if err := t.encodeAt(framePath, thumbPath); err != nil {
			slog.Warn("thumbnail: encode failed", "session_id", session.ID, "position", pos, "error", err)
			continue
		}
		_ = os.Remove(framePath)

		candidates = append(candidates, Candidate{TimeOffset: offset, Path: thumbPath})
	}

	if len(candidates) == 0 {
		return nil, &ThumbnailExtractionError{Err: fmt.Errorf("no frames extracted from %s", session.Original.Name)}
	}
	return candidates, nil
}

// ExtractFallback produces exactly one candidate from the first frame. Used
// when the container cannot be probed for native seeking.
func (t *ThumbnailExtractor) ExtractFallback(ctx context.Context, session *Session) (Candidate, error) {
	framePath := filepath.Join(session.WorkDir(), "frame_fallback.jpg")
	if err := t.engine.ExtractFirstFrame(ctx, session.Original.Path, framePath); err != nil {
		return Candidate{}, &ThumbnailExtractionError{Err: err}
	}

	thumbPath := filepath.Join(session.WorkDir(), "thumb_fallback.jpg")
	if err := t.encodeAt(framePath, thumbPath); err != nil {
		return Candidate{}, &ThumbnailExtractionError{Err: err}
	}
	_ = os.Remove(framePath)

	return Candidate{TimeOffset: 0, Path: thumbPath}, nil
}

// encodeAt stretches the frame to the fixed output size and writes JPEG.
func (t *ThumbnailExtractor) encodeAt(framePath, thumbPath string) error {
	img, err := imaging.Open(framePath)
	if err != nil {
		return fmt.Errorf("open frame: %w", err)
	}
	resized := imaging.Resize(img, t.width, t.height, imaging.Lanczos)
	if err := imaging.Save(resized, thumbPath, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("save thumbnail: %w", err)
	}
	return nil
}
