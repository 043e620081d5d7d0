package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"github.com/creativestore/creative-store/pkg/creativestore"
)

// TemplateHandler handles HTTP requests for templates.
type TemplateHandler struct {
	service creativestore.Service
	logger  zerolog.Logger
}

// NewTemplateHandler creates a new template handler.
func NewTemplateHandler(service creativestore.Service, logger zerolog.Logger) *TemplateHandler {
	return &TemplateHandler{service: service, logger: logger}
}

// Routes returns the routes for templates.
func (h *TemplateHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/{id}", h.CreateTemplate)
	r.Put("/{id}", h.ModifyTemplate)
	r.Get("/{id}", h.GetTemplate)
	r.Get("/{id}/versions", h.GetTemplateVersions)

	return r
}

// CreateTemplate creates the first version of a template.
func (h *TemplateHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r)
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}

	var payload TemplatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	descriptor, err := payload.toDescriptor()
	if err != nil {
		writeError(w, r, err)
		return
	}

	versionID, err := h.service.CreateTemplate(r.Context(), creativestore.CreateTemplateRequest{
		ID:         id,
		Author:     r.Header.Get("X-Author"),
		Descriptor: descriptor,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("ETag", versionID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]string{"versionId": versionID})
}

// ModifyTemplate writes a new template version under If-Match.
func (h *TemplateHandler) ModifyTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r)
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}
	expected := r.Header.Get("If-Match")
	if expected == "" {
		http.Error(w, "If-Match header is required", http.StatusPreconditionRequired)
		return
	}

	var payload TemplatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	descriptor, err := payload.toDescriptor()
	if err != nil {
		writeError(w, r, err)
		return
	}

	versionID, err := h.service.ModifyTemplate(r.Context(), creativestore.ModifyTemplateRequest{
		ID:                id,
		ExpectedVersionID: expected,
		Author:            r.Header.Get("X-Author"),
		Descriptor:        descriptor,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("ETag", versionID)
	render.JSON(w, r, map[string]string{"versionId": versionID})
}

// GetTemplate fetches one version of a template; the latest when the
// versionId query parameter is absent.
func (h *TemplateHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r)
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}

	descriptor, err := h.service.GetTemplateDescriptor(r.Context(), id, r.URL.Query().Get("versionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if match := r.Header.Get("If-None-Match"); match != "" && match == descriptor.VersionID {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	resp, err := templateResponseFrom(descriptor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", descriptor.VersionID)
	render.JSON(w, r, resp)
}

// GetTemplateVersions walks the template's version history newest first.
func (h *TemplateHandler) GetTemplateVersions(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r)
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}

	records, err := h.service.GetTemplateVersions(r.Context(), id, r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, versionResponsesFrom(records))
}
