package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/creativestore/creative-store/pkg/creativestore"
)

// uploadPartSize is the chunk size request bodies are split into when fed to
// the multipart upload. S3 requires at least 5 MiB per non-final part.
const uploadPartSize = 8 << 20

// SessionHandler handles HTTP requests for upload sessions.
type SessionHandler struct {
	service creativestore.Service
	logger  zerolog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(service creativestore.Service, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{service: service, logger: logger}
}

// Routes returns the routes for sessions.
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/{id}", h.CreateSession)
	r.Get("/{id}", h.GetSession)
	r.Post("/{id}/uploads/{code}", h.Upload)

	return r
}

// CreateSession sets up an upload session under a caller-supplied id.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	var payload CreateSessionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	session, err := h.service.CreateSession(r.Context(), creativestore.CreateSessionRequest{
		ID:                id,
		TemplateID:        payload.TemplateID,
		TemplateVersionID: payload.TemplateVersionID,
		Language:          payload.Language,
		Author:            r.Header.Get("X-Author"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, sessionResponseFrom(session))
}

// GetSession fetches a session descriptor.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	session, err := h.service.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, sessionResponseFrom(session))
}

// Upload streams one file through the session's multipart protocol: the body
// is split into parts, validated, assembled, and published under a permanent
// content-addressed key returned to the caller. The upload is aborted on any
// failure.
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	targetSize, _ := strconv.Atoi(r.URL.Query().Get("targetSize"))

	declaredSize := r.ContentLength
	if declaredSize < 0 {
		declaredSize = 0
	}

	upload, err := h.service.InitiateMultipartUpload(r.Context(), creativestore.InitiateUploadRequest{
		SessionID:    id,
		TemplateCode: chi.URLParam(r, "code"),
		Metadata: creativestore.UploadedFileMetadata{
			Filename:     r.URL.Query().Get("filename"),
			ContentType:  r.Header.Get("Content-Type"),
			DeclaredSize: declaredSize,
			TargetSize:   targetSize,
		},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Cleanup path: a no-op once the upload completed.
	defer h.service.AbortMultipartUpload(r.Context(), upload)

	for {
		chunk, err := io.ReadAll(io.LimitReader(r.Body, uploadPartSize))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if len(chunk) == 0 && len(upload.Parts) > 0 {
			break
		}
		if err := h.service.UploadFilePart(r.Context(), upload, bytes.NewReader(chunk)); err != nil {
			writeError(w, r, err)
			return
		}
		if len(chunk) < uploadPartSize {
			break
		}
	}

	contentKey, err := h.service.CompleteMultipartUpload(r.Context(), upload)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, UploadResponse{ContentKey: contentKey})
}
