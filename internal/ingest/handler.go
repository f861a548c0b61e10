package ingest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mukkaz/mukkaz/internal/auth"
	"github.com/mukkaz/mukkaz/internal/database"
	"github.com/mukkaz/mukkaz/internal/httputil"
	"github.com/mukkaz/mukkaz/internal/validate"
)

// multipartMemoryLimit is the in-memory buffer for form parsing; larger file
// parts spill to temp files before the session copies them into its workdir.
const multipartMemoryLimit = 32 << 20

type Handler struct {
	db             database.DBTX
	orch           *Orchestrator
	maxUploadBytes int64
}

func NewHandler(db database.DBTX, orch *Orchestrator, maxUploadBytes int64) *Handler {
	return &Handler{db: db, orch: orch, maxUploadBytes: maxUploadBytes}
}

// Upload accepts a multipart submission with the video binary, optional
// custom thumbnail, metadata fields and optional edit parameters, then runs
// the full pipeline synchronously and returns the persisted record.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "video file is required")
		return
	}
	defer func() { _ = file.Close() }()

	session, err := NewSession(userID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not start upload session")
		return
	}
	defer session.Close()

	lastModified := parseLastModified(r.FormValue("lastModified"))
	if _, err := session.AttachSource(file, header.Filename, header.Header.Get("Content-Type"), lastModified); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not store uploaded file")
		return
	}

	if thumb, thumbHeader, err := r.FormFile("customThumbnail"); err == nil {
		attachErr := session.AttachCustomThumbnail(thumb, thumbHeader.Filename, thumbHeader.Header.Get("Content-Type"))
		_ = thumb.Close()
		if attachErr != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "could not store thumbnail")
			return
		}
	}

	if raw := r.FormValue("edits"); raw != "" {
		var edits EditParams
		if err := json.Unmarshal([]byte(raw), &edits); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid edits payload")
			return
		}
		session.Edits = edits
	}

	session.DraftID = r.FormValue("draftId")

	if raw := r.FormValue("thumbnailIndex"); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 0 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid thumbnail index")
			return
		}
		session.SelectedIndex = idx
	}

	req := SubmitRequest{
		Title:           r.FormValue("title"),
		Description:     r.FormValue("description"),
		Tags:            SplitTags(r.FormValue("tags")),
		IsPublic:        r.FormValue("visibility") == "public",
		CommentsEnabled: r.FormValue("commentsEnabled") != "false",
	}

	rec, err := h.orch.Process(r.Context(), session, req)
	if err != nil {
		writeProcessError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

func parseLastModified(value string) time.Time {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// writeProcessError maps pipeline errors to HTTP statuses. Backend failures
// are 502 because the service itself is healthy; only a record write that
// failed after successful uploads is a 500.
func writeProcessError(w http.ResponseWriter, err error) {
	var validation *ValidationError
	var probe *ProbeError
	var backend *UploadBackendError
	var timeout *ProcessingTimeoutError
	var persist *PersistenceError

	switch {
	case errors.Is(err, ErrDuplicateSubmission):
		httputil.WriteError(w, http.StatusTooManyRequests, "this file was just submitted; please wait")
	case errors.As(err, &validation):
		httputil.WriteError(w, http.StatusBadRequest, validation.Message)
	case errors.As(err, &probe):
		httputil.WriteError(w, http.StatusUnprocessableEntity, "unsupported or corrupt video file")
	case errors.As(err, &timeout):
		httputil.WriteError(w, http.StatusBadGateway, "video processing timed out")
	case errors.As(err, &backend):
		httputil.WriteError(w, http.StatusBadGateway, "video upload failed on all backends")
	case errors.As(err, &persist):
		httputil.WriteError(w, http.StatusInternalServerError, "video uploaded but could not be saved")
	default:
		httputil.WriteError(w, http.StatusInternalServerError, "upload failed")
	}
}

type draftRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	IsPublic    bool     `json:"isPublic"`
}

func (h *Handler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	h.saveDraft(w, r, "")
}

func (h *Handler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	h.saveDraft(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) saveDraft(w http.ResponseWriter, r *http.Request, draftID string) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validate.Title(req.Title); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if msg := validate.Description(req.Description); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if msg := validate.Tags(req.Tags); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	draft := &Draft{
		ID:          draftID,
		UserID:      userID,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Tags:        FlattenTags(req.Tags),
		IsPublic:    req.IsPublic,
	}
	if err := SaveDraft(r.Context(), h.db, draft); err != nil {
		if draftID != "" && strings.Contains(err.Error(), "not found") {
			httputil.WriteError(w, http.StatusNotFound, "draft not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "could not save draft")
		return
	}

	status := http.StatusOK
	if draftID == "" {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, draft)
}

func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	draft, err := LoadDraft(r.Context(), h.db, userID, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "draft not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, draft)
}

func (h *Handler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	drafts, err := ListDrafts(r.Context(), h.db, userID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not list drafts")
		return
	}
	if drafts == nil {
		drafts = []Draft{}
	}
	httputil.WriteJSON(w, http.StatusOK, drafts)
}

func (h *Handler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := DeleteDraft(r.Context(), h.db, userID, chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not delete draft")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Limits exposes the text field limits so clients can validate before
// submitting.
func (h *Handler) Limits(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"fields":          validate.FieldLimits(),
		"maxUploadBytes":  h.maxUploadBytes,
		"thumbnailWidth":  h.orch.settings.ThumbnailWidth,
		"thumbnailHeight": h.orch.settings.ThumbnailHeight,
	})
}
