package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MediaFile is an owned binary artifact on disk. Artifact files live in the
// session's working directory and are removed when the session closes.
type MediaFile struct {
	Path         string
	Name         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Candidate is one auto-generated thumbnail: the capture offset in seconds
// and the encoded JPEG on disk.
type Candidate struct {
	TimeOffset float64
	Path       string
}

type Stage string

const (
	StageValidate        Stage = "validate"
	StageProbe           Stage = "probe"
	StageCompress        Stage = "compress"
	StageThumbnails      Stage = "thumbnails"
	StageMetadata        Stage = "metadata"
	StageVideoUpload     Stage = "video_upload"
	StageThumbnailUpload Stage = "thumbnail_upload"
	StagePersist         Stage = "persist"
	StageDraftCleanup    Stage = "draft_cleanup"
)

// stageOrder is the fixed pipeline order; stages are never revisited.
var stageOrder = []Stage{
	StageValidate,
	StageProbe,
	StageCompress,
	StageThumbnails,
	StageMetadata,
	StageVideoUpload,
	StageThumbnailUpload,
	StagePersist,
	StageDraftCleanup,
}

// stageWeights sum to 100. The binary upload dominates wall-clock time and
// therefore the overall percentage.
var stageWeights = map[Stage]int{
	StageValidate:        2,
	StageProbe:           5,
	StageCompress:        10,
	StageThumbnails:      8,
	StageMetadata:        3,
	StageVideoUpload:     60,
	StageThumbnailUpload: 4,
	StagePersist:         6,
	StageDraftCleanup:    2,
}

type StageStatus string

const (
	StatusPending    StageStatus = "pending"
	StatusInProgress StageStatus = "in_progress"
	StatusComplete   StageStatus = "complete"
	StatusError      StageStatus = "error"
)

type StageState struct {
	Percent int         `json:"percent"`
	Status  StageStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// ProgressFunc observes stage transitions. Observers only read; they never
// mutate the session.
type ProgressFunc func(stage Stage, state StageState, overallPercent int)

// Session is the mutable state for one in-progress upload. It is an explicit
// value owned by the caller that initiated the flow; there is no ambient
// global, so independent sessions can run in the same process.
type Session struct {
	ID     string
	UserID string

	Original  MediaFile
	Processed MediaFile
	Meta      Metadata

	Candidates      []Candidate
	SelectedIndex   int // index into Candidates, -1 before selection
	CustomThumbnail *MediaFile

	Edits   EditParams
	DraftID string

	workDir    string
	onProgress ProgressFunc

	mu       sync.Mutex
	stages   map[Stage]*StageState
	warnings []string
}

func NewSession(userID string) (*Session, error) {
	workDir, err := os.MkdirTemp("", "mukkaz-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create session workdir: %w", err)
	}

	s := &Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		SelectedIndex: -1,
		workDir:       workDir,
		stages:        make(map[Stage]*StageState, len(stageOrder)),
	}
	for _, stage := range stageOrder {
		s.stages[stage] = &StageState{Status: StatusPending}
	}
	return s, nil
}

// OnProgress registers the single progress observer for this session.
func (s *Session) OnProgress(fn ProgressFunc) {
	s.onProgress = fn
}

// WorkDir is the directory all session artifacts are written under.
func (s *Session) WorkDir() string {
	return s.workDir
}

// AttachSource copies the selected file into the session and resets all
// derived state. Re-selecting a source removes every previously generated
// artifact before any new one is produced, so repeated selections cannot
// accumulate stale files.
func (s *Session) AttachSource(r io.Reader, name string, contentType string, lastModified time.Time) (MediaFile, error) {
	s.resetDerived()

	path := filepath.Join(s.workDir, "source_"+filepath.Base(name))
	f, err := os.Create(path)
	if err != nil {
		return MediaFile{}, fmt.Errorf("create source file: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return MediaFile{}, fmt.Errorf("write source file: %w", err)
	}

	file := MediaFile{
		Path:         path,
		Name:         name,
		Size:         size,
		ContentType:  contentType,
		LastModified: lastModified,
	}
	s.Original = file
	s.Processed = file
	return file, nil
}

// AttachCustomThumbnail stores a user-provided thumbnail image. A custom
// thumbnail always wins over an auto-generated candidate.
func (s *Session) AttachCustomThumbnail(r io.Reader, name string, contentType string) error {
	path := filepath.Join(s.workDir, "custom_thumb_"+filepath.Base(name))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create custom thumbnail: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("write custom thumbnail: %w", err)
	}

	s.CustomThumbnail = &MediaFile{
		Path:        path,
		Name:        name,
		Size:        size,
		ContentType: contentType,
	}
	return nil
}

// SelectThumbnail picks a candidate by index. Selection is replaceable until
// submission.
func (s *Session) SelectThumbnail(index int) error {
	if index < 0 || index >= len(s.Candidates) {
		return fmt.Errorf("thumbnail index %d out of range (%d candidates)", index, len(s.Candidates))
	}
	s.SelectedIndex = index
	return nil
}

// ResolvedThumbnail returns the image that will be uploaded: the custom one
// when present, otherwise the selected candidate.
func (s *Session) ResolvedThumbnail() (MediaFile, bool) {
	if s.CustomThumbnail != nil {
		return *s.CustomThumbnail, true
	}
	if s.SelectedIndex >= 0 && s.SelectedIndex < len(s.Candidates) {
		c := s.Candidates[s.SelectedIndex]
		return MediaFile{Path: c.Path, Name: filepath.Base(c.Path), ContentType: "image/jpeg"}, true
	}
	return MediaFile{}, false
}

func (s *Session) resetDerived() {
	for _, c := range s.Candidates {
		_ = os.Remove(c.Path)
	}
	s.Candidates = nil
	s.SelectedIndex = -1
	s.Meta = Metadata{}
	if s.Original.Path != "" {
		_ = os.Remove(s.Original.Path)
	}
	if s.Processed.Path != "" && s.Processed.Path != s.Original.Path {
		_ = os.Remove(s.Processed.Path)
	}
	s.Original = MediaFile{}
	s.Processed = MediaFile{}
}

// Close releases every artifact the session owns.
func (s *Session) Close() {
	if s.workDir != "" {
		_ = os.RemoveAll(s.workDir)
		s.workDir = ""
	}
}

// Warn records a non-fatal degradation (compression failure, partial
// thumbnail extraction) surfaced alongside the final result.
func (s *Session) Warn(msg string) {
	s.mu.Lock()
	s.warnings = append(s.warnings, msg)
	s.mu.Unlock()
}

func (s *Session) Warnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.warnings))
	copy(out, s.warnings)
	return out
}

// setStage updates one stage's progress. Percentages are clamped to be
// non-decreasing within a stage so observers never see progress move
// backwards, and the overall percentage is recomputed from the fixed weights.
func (s *Session) setStage(stage Stage, status StageStatus, percent int, message string) {
	s.mu.Lock()
	st, ok := s.stages[stage]
	if !ok {
		s.mu.Unlock()
		return
	}
	if percent < st.Percent {
		percent = st.Percent
	}
	if percent > 100 {
		percent = 100
	}
	st.Percent = percent
	st.Status = status
	st.Message = message
	overall := s.overallLocked()
	state := *st
	s.mu.Unlock()

	if s.onProgress != nil {
		s.onProgress(stage, state, overall)
	}
}

func (s *Session) overallLocked() int {
	total := 0
	for stage, st := range s.stages {
		total += stageWeights[stage] * st.Percent
	}
	return total / 100
}

// OverallPercent is the weighted sum of stage percentages.
func (s *Session) OverallPercent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overallLocked()
}

// StageProgress returns a copy of one stage's state.
func (s *Session) StageProgress(stage Stage) StageState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stages[stage]; ok {
		return *st
	}
	return StageState{}
}
