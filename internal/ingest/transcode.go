package ingest

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// TrimRange cuts the output to [Start, End) seconds via input/output seek
// points rather than a filter, so no extra decode pass is needed.
type TrimRange struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Enabled bool    `json:"enabled"`
}

type CropRect struct {
	X       int  `json:"x"`
	Y       int  `json:"y"`
	Width   int  `json:"width"`
	Height  int  `json:"height"`
	Enabled bool `json:"enabled"`
}

// ColorFilters use encoder-native neutral values: brightness 0, contrast 1,
// saturation 1. A zero-value struct is treated as "no color edit".
type ColorFilters struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Saturation float64 `json:"saturation"`
}

func (f ColorFilters) active() bool {
	if f.Brightness != 0 {
		return true
	}
	if f.Contrast != 0 && f.Contrast != 1 {
		return true
	}
	if f.Saturation != 0 && f.Saturation != 1 {
		return true
	}
	return false
}

// EditParams compose every user edit into a single filter-graph pass:
// crop, then rotate, then flip, then color filters, then scale, with trim
// applied as seek points. One encode regardless of how many edits are set.
type EditParams struct {
	Trim          TrimRange    `json:"trim"`
	Crop          CropRect     `json:"crop"`
	RotateDegrees int          `json:"rotateDegrees"` // 0, 90, 180 or 270
	FlipH         bool         `json:"flipH"`
	FlipV         bool         `json:"flipV"`
	Filters       ColorFilters `json:"filters"`
	CRF           int          `json:"crf"`         // 0 means encoder default quality
	ScaleHeight   int          `json:"scaleHeight"` // 0 means keep original resolution
}

func (p EditParams) IsZero() bool {
	return !p.Trim.Enabled && !p.Crop.Enabled &&
		p.RotateDegrees == 0 && !p.FlipH && !p.FlipV &&
		!p.Filters.active() && p.ScaleHeight == 0
}

// Engine wraps the media toolchain binary. It is a process-wide singleton:
// the binary is resolved once and concurrent callers wait on that same
// resolution, then serialize their runs against a single mutex. Concurrent
// sessions queue here rather than spawning parallel encodes.
type Engine struct {
	initOnce sync.Once
	path     string
	initErr  error

	mu sync.Mutex
}

var (
	engineOnce   sync.Once
	sharedEngine *Engine
)

// DefaultEngine returns the shared engine instance.
func DefaultEngine() *Engine {
	engineOnce.Do(func() {
		sharedEngine = &Engine{}
	})
	return sharedEngine
}

func (e *Engine) resolve() error {
	e.initOnce.Do(func() {
		path, err := exec.LookPath("ffmpeg")
		if err != nil {
			e.initErr = fmt.Errorf("ffmpeg not available: %w", err)
			return
		}
		e.path = path
	})
	return e.initErr
}

func (e *Engine) run(ctx context.Context, args []string) error {
	if err := e.resolve(); err != nil {
		return &TranscodeError{Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cmd := exec.CommandContext(ctx, e.path, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &TranscodeError{Err: fmt.Errorf("ffmpeg: %w: %s", err, tail(string(output), 512))}
	}
	return nil
}

// tail keeps the end of ffmpeg's output, which is where the actual error is.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

type CompressOptions struct {
	CRF         int
	ScaleHeight int
}

func buildCompressArgs(inputPath, outputPath string, opts CompressOptions) []string {
	return []string{
		"-i", inputPath,
		"-vcodec", "libx264",
		"-crf", fmt.Sprintf("%d", opts.CRF),
		"-preset", "medium",
		"-vf", fmt.Sprintf("scale=-2:%d", opts.ScaleHeight),
		"-acodec", "aac",
		"-y",
		outputPath,
	}
}

// Compress re-encodes at constant-rate-factor quality with a target vertical
// resolution, audio re-encoded to AAC.
func (e *Engine) Compress(ctx context.Context, inputPath, outputPath string, opts CompressOptions) error {
	return e.run(ctx, buildCompressArgs(inputPath, outputPath, opts))
}

func buildFirstFrameArgs(inputPath, outputPath string) []string {
	return []string{
		"-i", inputPath,
		"-vf", `select=eq(n\,0)`,
		"-frames:v", "1",
		"-q:v", "5",
		"-y",
		outputPath,
	}
}

// ExtractFirstFrame decodes exactly the first frame to a JPEG. Used as the
// fallback when the container cannot be probed for seeking.
func (e *Engine) ExtractFirstFrame(ctx context.Context, inputPath, outputPath string) error {
	return e.run(ctx, buildFirstFrameArgs(inputPath, outputPath))
}

func buildFrameAtArgs(inputPath, outputPath string, seconds float64) []string {
	return []string{
		"-ss", fmt.Sprintf("%.3f", seconds),
		"-i", inputPath,
		"-frames:v", "1",
		"-q:v", "5",
		"-y",
		outputPath,
	}
}

// ExtractFrameAt seeks to the given offset and captures one frame as a JPEG.
func (e *Engine) ExtractFrameAt(ctx context.Context, inputPath, outputPath string, seconds float64) error {
	return e.run(ctx, buildFrameAtArgs(inputPath, outputPath, seconds))
}

func buildEditArgs(inputPath, outputPath string, p EditParams) []string {
	args := []string{"-i", inputPath}

	if p.Trim.Enabled {
		args = append(args,
			"-ss", fmt.Sprintf("%.3f", p.Trim.Start),
			"-to", fmt.Sprintf("%.3f", p.Trim.End),
		)
	}

	var filters []string

	if p.Crop.Enabled {
		filters = append(filters, fmt.Sprintf("crop=%d:%d:%d:%d",
			p.Crop.Width, p.Crop.Height, p.Crop.X, p.Crop.Y))
	}

	switch p.RotateDegrees {
	case 90:
		filters = append(filters, "transpose=1")
	case 180:
		filters = append(filters, "transpose=1,transpose=1")
	case 270:
		filters = append(filters, "transpose=2")
	}

	if p.FlipH {
		filters = append(filters, "hflip")
	}
	if p.FlipV {
		filters = append(filters, "vflip")
	}

	if p.Filters.active() {
		contrast := p.Filters.Contrast
		if contrast == 0 {
			contrast = 1
		}
		saturation := p.Filters.Saturation
		if saturation == 0 {
			saturation = 1
		}
		filters = append(filters, fmt.Sprintf("eq=brightness=%g:contrast=%g:saturation=%g",
			p.Filters.Brightness, contrast, saturation))
	}

	if p.ScaleHeight > 0 {
		filters = append(filters, fmt.Sprintf("scale=-2:%d", p.ScaleHeight))
	}

	if len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}

	crf := p.CRF
	if crf == 0 {
		crf = 23
	}
	args = append(args,
		"-vcodec", "libx264",
		"-crf", fmt.Sprintf("%d", crf),
		"-preset", "medium",
		"-acodec", "aac",
		"-y",
		outputPath,
	)
	return args
}

// ApplyEdits runs the composed filter graph in one encode pass.
func (e *Engine) ApplyEdits(ctx context.Context, inputPath, outputPath string, p EditParams) error {
	return e.run(ctx, buildEditArgs(inputPath, outputPath, p))
}
