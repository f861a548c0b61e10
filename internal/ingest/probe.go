package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// Metadata is derived once per source file and never recomputed except on a
// new file selection.
type Metadata struct {
	DurationSeconds  float64
	WidthPx          int
	HeightPx         int
	Quality          string
	NeedsCompression bool
}

type ffprobeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeFile reads duration and frame dimensions from the container without
// decoding the streams. The timeout bounds how long an undecodable file can
// stall the pipeline; expiry is treated as an unsupported codec.
func ProbeFile(ctx context.Context, path string, timeout time.Duration) (Metadata, error) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return Metadata{}, &ProbeError{Err: fmt.Errorf("ffprobe: %w", err)}
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return Metadata{}, &ProbeError{Err: fmt.Errorf("parse ffprobe output: %w", err)}
	}

	duration, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil || duration <= 0 {
		return Metadata{}, &ProbeError{Err: fmt.Errorf("invalid duration %q", parsed.Format.Duration)}
	}

	meta := Metadata{DurationSeconds: duration}
	for _, s := range parsed.Streams {
		if s.Width > 0 && s.Height > 0 {
			meta.WidthPx = s.Width
			meta.HeightPx = s.Height
			break
		}
	}
	if meta.WidthPx == 0 || meta.HeightPx == 0 {
		return Metadata{}, &ProbeError{Err: fmt.Errorf("no video stream dimensions in %s", path)}
	}

	meta.Quality = DetectQuality(meta.WidthPx, meta.HeightPx)
	return meta, nil
}

// DetectQuality classifies resolution against fixed thresholds. Either
// dimension meeting a threshold qualifies (an OR policy, so rotated portrait
// footage classifies the same as landscape).
func DetectQuality(width, height int) string {
	switch {
	case width >= 3840 || height >= 2160:
		return "4K Ultra HD"
	case width >= 2560 || height >= 1440:
		return "2K QHD"
	case width >= 1920 || height >= 1080:
		return "Full HD 1080p"
	case width >= 1280 || height >= 720:
		return "HD 720p"
	case width >= 854 || height >= 480:
		return "SD 480p"
	default:
		return "Low Quality"
	}
}
