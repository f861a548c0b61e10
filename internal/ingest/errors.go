package ingest

import (
	"errors"
	"fmt"
)

// ErrDuplicateSubmission is returned when the same file is submitted again
// within the cooldown window, or while another file is still in flight.
var ErrDuplicateSubmission = errors.New("duplicate submission")

// ValidationError blocks the pipeline before any network call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ProbeError means the file's container metadata could not be read. It is
// fatal only when the fallback thumbnail path fails too.
type ProbeError struct {
	Err error
}

func (e *ProbeError) Error() string { return fmt.Sprintf("probe: %v", e.Err) }
func (e *ProbeError) Unwrap() error { return e.Err }

// TranscodeError is recovered locally: the caller reverts to the untouched
// input file and the pipeline continues.
type TranscodeError struct {
	Err error
}

func (e *TranscodeError) Error() string { return fmt.Sprintf("transcode: %v", e.Err) }
func (e *TranscodeError) Unwrap() error { return e.Err }

// ThumbnailExtractionError means neither native extraction nor the
// single-frame fallback produced a candidate.
type ThumbnailExtractionError struct {
	Err error
}

func (e *ThumbnailExtractionError) Error() string {
	return fmt.Sprintf("thumbnail extraction: %v", e.Err)
}
func (e *ThumbnailExtractionError) Unwrap() error { return e.Err }

// UploadBackendError is fatal only when both upload backends have failed.
type UploadBackendError struct {
	Backend string
	Err     error
}

func (e *UploadBackendError) Error() string {
	return fmt.Sprintf("upload backend %s: %v", e.Backend, e.Err)
}
func (e *UploadBackendError) Unwrap() error { return e.Err }

// PersistenceError is fatal and surfaced distinctly: the binaries are already
// uploaded but the record write failed, so orphaned objects may remain.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persist record: %v", e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// ProcessingTimeoutError means the streaming host never reported the video
// ready within the polling ceiling. Distinct from a reported error state.
type ProcessingTimeoutError struct {
	Err error
}

func (e *ProcessingTimeoutError) Error() string { return fmt.Sprintf("processing: %v", e.Err) }
func (e *ProcessingTimeoutError) Unwrap() error { return e.Err }
