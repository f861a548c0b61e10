package ingest

import "time"

// Settings are the ingestion thresholds. They are tunable defaults, not
// load-bearing business rules; main wires env overrides into them.
type Settings struct {
	// Files above this size are compressed before upload, unconditionally.
	MaxUnconditionalFileSizeBytes int64

	// Normalized (0,1) positions candidate thumbnails are captured at.
	ThumbnailPositions []float64

	ThumbnailWidth  int
	ThumbnailHeight int

	// How long ffprobe may take before the file is treated as undecodable.
	ProbeTimeout time.Duration

	CompressCRF         int
	CompressScaleHeight int

	DuplicateSubmissionCooldown time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		MaxUnconditionalFileSizeBytes: 100 * 1024 * 1024,
		ThumbnailPositions:            []float64{0.1, 0.3, 0.5, 0.7, 0.9},
		ThumbnailWidth:                320,
		ThumbnailHeight:               180,
		ProbeTimeout:                  4 * time.Second,
		CompressCRF:                   23,
		CompressScaleHeight:           720,
		DuplicateSubmissionCooldown:   time.Second,
	}
}
