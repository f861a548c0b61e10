package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/mukkaz/mukkaz/internal/database"
	"github.com/mukkaz/mukkaz/internal/storage"
	"github.com/mukkaz/mukkaz/internal/stream"
	"github.com/mukkaz/mukkaz/internal/validate"
)

// StreamBackend is the streaming-video host. Its uploads are asynchronous:
// the binary is accepted, then processed server-side until ready.
type StreamBackend interface {
	Upload(ctx context.Context, filePath, name string, onProgress func(percent float64)) (*stream.Video, error)
	WaitForProcessing(ctx context.Context, uid string) (*stream.Video, error)
	HLSURL(uid string) string
}

// ObjectStorage is the direct object-store backend. Uploads are synchronous
// and the object is addressable as soon as the call returns.
type ObjectStorage interface {
	UploadFile(ctx context.Context, key string, filePath string, contentType string) error
	PublicURL(key string) string
}

// Orchestrator drives a session through the fixed pipeline. Local stages
// (probe, compress, thumbnails) run before any network call, so a file that
// fails validation or transcoding never costs an upload.
type Orchestrator struct {
	settings Settings
	engine   *Engine
	thumbs   *ThumbnailExtractor
	stream   StreamBackend
	store    ObjectStorage
	db       database.DBTX
	guard    *Guard
}

func NewOrchestrator(settings Settings, engine *Engine, streamBackend StreamBackend, store ObjectStorage, db database.DBTX) *Orchestrator {
	return &Orchestrator{
		settings: settings,
		engine:   engine,
		thumbs:   NewThumbnailExtractor(engine, settings),
		stream:   streamBackend,
		store:    store,
		db:       db,
		guard:    NewGuard(settings.DuplicateSubmissionCooldown),
	}
}

type SubmitRequest struct {
	Title           string
	Description     string
	Tags            []string
	IsPublic        bool
	CommentsEnabled bool
}

// Process runs the full pipeline for an attached source file and returns the
// persisted record. Fatal errors carry the pipeline's typed errors; non-fatal
// degradations accumulate as warnings on the record.
func (o *Orchestrator) Process(ctx context.Context, session *Session, req SubmitRequest) (*Record, error) {
	if !o.guard.Begin(session.Original) {
		return nil, ErrDuplicateSubmission
	}
	defer o.guard.Finish(session.Original)

	if err := o.validateStage(session, req); err != nil {
		return nil, err
	}

	probed := o.probeStage(ctx, session)
	if err := o.compressStage(ctx, session); err != nil {
		return nil, err
	}
	o.thumbnailStage(ctx, session, probed)

	rec := o.metadataStage(session, req)

	if err := o.videoUploadStage(ctx, session, req, rec); err != nil {
		return nil, err
	}
	o.thumbnailUploadStage(ctx, session, rec)

	if err := o.persistStage(ctx, session, rec); err != nil {
		return nil, err
	}
	o.draftCleanupStage(ctx, session)

	rec.Warnings = session.Warnings()
	return rec, nil
}

func (o *Orchestrator) validateStage(session *Session, req SubmitRequest) error {
	session.setStage(StageValidate, StatusInProgress, 0, "")

	fail := func(msg string) error {
		session.setStage(StageValidate, StatusError, 0, msg)
		return &ValidationError{Message: msg}
	}

	if session.Original.Path == "" {
		return fail("no video file selected")
	}
	if strings.TrimSpace(req.Title) == "" {
		return fail("title is required")
	}
	if msg := validate.Title(req.Title); msg != "" {
		return fail(msg)
	}
	if len(req.Tags) == 0 {
		return fail("at least one tag is required")
	}
	if msg := validate.Description(req.Description); msg != "" {
		return fail(msg)
	}
	if msg := validate.Tags(req.Tags); msg != "" {
		return fail(msg)
	}
	if msg := validate.Filename(session.Original.Name); msg != "" {
		return fail(msg)
	}

	session.setStage(StageValidate, StatusComplete, 100, "")
	return nil
}

// probeStage never fails the pipeline. A file the prober cannot read still
// uploads; it just loses native thumbnails and resolution metadata.
func (o *Orchestrator) probeStage(ctx context.Context, session *Session) bool {
	session.setStage(StageProbe, StatusInProgress, 0, "")

	meta, err := ProbeFile(ctx, session.Original.Path, o.settings.ProbeTimeout)
	probed := err == nil
	if err != nil {
		slog.Warn("probe failed, continuing without metadata",
			"session_id", session.ID, "file", session.Original.Name, "error", err)
		session.Warn("could not read video metadata; using fallback thumbnail")
		meta = Metadata{}
	}

	// Compression is decided on byte size alone, independent of the probe.
	meta.NeedsCompression = session.Original.Size > o.settings.MaxUnconditionalFileSizeBytes
	session.Meta = meta

	session.setStage(StageProbe, StatusComplete, 100, "")
	return probed
}

// compressStage re-encodes oversized files, or applies the session's edits
// when any are set. A transcode failure rolls back to the untouched original
// and continues with a warning; only an edit failure is fatal, since silently
// dropping requested edits would publish a video the user did not approve.
func (o *Orchestrator) compressStage(ctx context.Context, session *Session) error {
	session.setStage(StageCompress, StatusInProgress, 0, "")

	hasEdits := !session.Edits.IsZero()
	if !hasEdits && !session.Meta.NeedsCompression {
		session.setStage(StageCompress, StatusComplete, 100, "not needed")
		return nil
	}

	outputPath := filepath.Join(session.WorkDir(), "processed.mp4")
	var err error
	if hasEdits {
		err = o.engine.ApplyEdits(ctx, session.Original.Path, outputPath, session.Edits)
		if err != nil {
			session.setStage(StageCompress, StatusError, 0, "edit render failed")
			return err
		}
	} else {
		err = o.engine.Compress(ctx, session.Original.Path, outputPath, CompressOptions{
			CRF:         o.settings.CompressCRF,
			ScaleHeight: o.settings.CompressScaleHeight,
		})
		if err != nil {
			slog.Warn("compression failed, uploading original",
				"session_id", session.ID, "error", err)
			session.Warn("compression failed; uploading the original file")
			session.Processed = session.Original
			session.setStage(StageCompress, StatusComplete, 100, "skipped after failure")
			return nil
		}
	}

	session.Processed = MediaFile{
		Path:         outputPath,
		Name:         session.Original.Name,
		Size:         fileSize(outputPath),
		ContentType:  "video/mp4",
		LastModified: session.Original.LastModified,
	}
	session.setStage(StageCompress, StatusComplete, 100, "")
	return nil
}

// thumbnailStage fills session.Candidates. Extraction failures degrade to
// fewer candidates, a single fallback frame, or none at all; the pipeline
// continues regardless.
func (o *Orchestrator) thumbnailStage(ctx context.Context, session *Session, probed bool) {
	session.setStage(StageThumbnails, StatusInProgress, 0, "")

	if probed {
		candidates, err := o.thumbs.Extract(ctx, session)
		if err == nil {
			session.Candidates = candidates
			if len(candidates) < len(o.settings.ThumbnailPositions) {
				session.Warn(fmt.Sprintf("only %d of %d thumbnails could be generated",
					len(candidates), len(o.settings.ThumbnailPositions)))
			}
			o.applyDefaultSelection(session)
			session.setStage(StageThumbnails, StatusComplete, 100, "")
			return
		}
		slog.Warn("thumbnail extraction failed, trying first frame",
			"session_id", session.ID, "error", err)
	}

	candidate, err := o.thumbs.ExtractFallback(ctx, session)
	if err != nil {
		session.Warn("no thumbnail could be generated")
		session.setStage(StageThumbnails, StatusComplete, 100, "no candidates")
		return
	}
	session.Candidates = []Candidate{candidate}
	o.applyDefaultSelection(session)
	session.setStage(StageThumbnails, StatusComplete, 100, "")
}

// applyDefaultSelection pre-selects the middle candidate, which tends to land
// past intros and title cards. An explicit selection or custom thumbnail is
// never overridden.
func (o *Orchestrator) applyDefaultSelection(session *Session) {
	if session.CustomThumbnail != nil {
		return
	}
	n := len(session.Candidates)
	if n == 0 {
		return
	}
	if session.SelectedIndex >= 0 {
		if session.SelectedIndex > n-1 {
			session.SelectedIndex = n - 1
		}
		return
	}
	idx := len(o.settings.ThumbnailPositions) / 2
	if idx > n-1 {
		idx = n - 1
	}
	session.SelectedIndex = idx
}

func (o *Orchestrator) metadataStage(session *Session, req SubmitRequest) *Record {
	session.setStage(StageMetadata, StatusInProgress, 0, "")

	rec := &Record{
		UserID:          session.UserID,
		Title:           strings.TrimSpace(req.Title),
		Description:     strings.TrimSpace(req.Description),
		Tags:            FlattenTags(req.Tags),
		Duration:        int(math.Round(session.Meta.DurationSeconds)),
		IsPublic:        req.IsPublic,
		CommentsEnabled: req.CommentsEnabled,
	}
	if session.Meta.WidthPx > 0 {
		rec.Resolution = fmt.Sprintf("%dx%d", session.Meta.WidthPx, session.Meta.HeightPx)
	}

	session.setStage(StageMetadata, StatusComplete, 100, "")
	return rec
}

// videoUploadStage tries the streaming host first and falls back to the
// object store when the host rejects the upload or reports a processing error.
// A polling timeout does not fall back: the video may still finish on the
// host, and a second copy in the object store would double-publish it.
func (o *Orchestrator) videoUploadStage(ctx context.Context, session *Session, req SubmitRequest, rec *Record) error {
	session.setStage(StageVideoUpload, StatusInProgress, 0, "")

	streamErr := o.uploadToStream(ctx, session, req, rec)
	if streamErr == nil {
		session.setStage(StageVideoUpload, StatusComplete, 100, "")
		return nil
	}

	var timeout *ProcessingTimeoutError
	if errors.As(streamErr, &timeout) {
		session.setStage(StageVideoUpload, StatusError, 0, "processing timed out")
		return streamErr
	}

	slog.Warn("stream upload failed, falling back to object storage",
		"session_id", session.ID, "error", streamErr)
	session.Warn("streaming host unavailable; stored as a direct file")

	key := storage.ObjectKey(session.UserID, session.Original.Name)
	if err := o.store.UploadFile(ctx, key, session.Processed.Path, session.Processed.ContentType); err != nil {
		session.setStage(StageVideoUpload, StatusError, 0, "upload failed")
		return &UploadBackendError{Backend: "object-store", Err: errors.Join(streamErr, err)}
	}
	rec.URL = o.store.PublicURL(key)

	session.setStage(StageVideoUpload, StatusComplete, 100, "fallback")
	return nil
}

// uploadToStream maps byte progress to 0-90 percent and reserves the last 10
// for the host's processing wait, so the bar does not sit at 100 while the
// video is still converting.
func (o *Orchestrator) uploadToStream(ctx context.Context, session *Session, req SubmitRequest, rec *Record) error {
	video, err := o.stream.Upload(ctx, session.Processed.Path, req.Title, func(percent float64) {
		session.setStage(StageVideoUpload, StatusInProgress, int(percent*0.9), "uploading")
	})
	if err != nil {
		return &UploadBackendError{Backend: "stream", Err: err}
	}

	session.setStage(StageVideoUpload, StatusInProgress, 90, "processing")
	video, err = o.stream.WaitForProcessing(ctx, video.UID)
	if err != nil {
		if errors.Is(err, stream.ErrProcessingTimeout) {
			return &ProcessingTimeoutError{Err: err}
		}
		return &UploadBackendError{Backend: "stream", Err: err}
	}

	rec.StreamID = video.UID
	rec.StreamURL = o.stream.HLSURL(video.UID)
	if rec.Duration == 0 && video.Duration > 0 {
		rec.Duration = int(math.Round(video.Duration))
	}
	return nil
}

// thumbnailUploadStage always targets the object store, whichever backend
// took the video. A missing or failed thumbnail leaves the record without one.
func (o *Orchestrator) thumbnailUploadStage(ctx context.Context, session *Session, rec *Record) {
	session.setStage(StageThumbnailUpload, StatusInProgress, 0, "")

	thumb, ok := session.ResolvedThumbnail()
	if !ok {
		session.setStage(StageThumbnailUpload, StatusComplete, 100, "no thumbnail")
		return
	}

	contentType := thumb.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	key := storage.ObjectKey(session.UserID, thumb.Name)
	if err := o.store.UploadFile(ctx, key, thumb.Path, contentType); err != nil {
		slog.Warn("thumbnail upload failed", "session_id", session.ID, "error", err)
		session.Warn("thumbnail upload failed; video saved without one")
		session.setStage(StageThumbnailUpload, StatusComplete, 100, "upload failed")
		return
	}

	rec.ThumbnailURL = o.store.PublicURL(key)
	session.setStage(StageThumbnailUpload, StatusComplete, 100, "")
}

func (o *Orchestrator) persistStage(ctx context.Context, session *Session, rec *Record) error {
	session.setStage(StagePersist, StatusInProgress, 0, "")

	if err := insertRecord(ctx, o.db, rec); err != nil {
		session.setStage(StagePersist, StatusError, 0, "save failed")
		return &PersistenceError{Err: err}
	}

	session.setStage(StagePersist, StatusComplete, 100, "")
	return nil
}

// draftCleanupStage deletes the source draft only after the record is safely
// persisted. A failed delete leaves a stale draft, which is recoverable, so
// it only warns.
func (o *Orchestrator) draftCleanupStage(ctx context.Context, session *Session) {
	session.setStage(StageDraftCleanup, StatusInProgress, 0, "")

	if session.DraftID != "" {
		if err := DeleteDraft(ctx, o.db, session.UserID, session.DraftID); err != nil {
			slog.Warn("draft cleanup failed", "session_id", session.ID,
				"draft_id", session.DraftID, "error", err)
			session.Warn("published, but the source draft could not be removed")
		}
	}

	session.setStage(StageDraftCleanup, StatusComplete, 100, "")
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
