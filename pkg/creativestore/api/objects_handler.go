package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"github.com/creativestore/creative-store/pkg/creativestore"
	"github.com/creativestore/creative-store/pkg/creativestore/imaging"
)

// ObjectHandler handles HTTP requests for objects.
type ObjectHandler struct {
	service  creativestore.Service
	renderer *imaging.Renderer
	logger   zerolog.Logger
}

// NewObjectHandler creates a new object handler.
func NewObjectHandler(service creativestore.Service, renderer *imaging.Renderer, logger zerolog.Logger) *ObjectHandler {
	return &ObjectHandler{service: service, renderer: renderer, logger: logger}
}

// Routes returns the routes for objects.
func (h *ObjectHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListObjects)
	r.Post("/{id}", h.CreateObject)
	r.Put("/{id}", h.ModifyObject)
	r.Get("/{id}", h.GetObject)
	r.Get("/{id}/versions", h.GetObjectVersions)
	r.Get("/{id}/elements/{code}/preview", h.GetPreview)
	r.Get("/{id}/elements/{code}/raw", h.GetRaw)

	return r
}

// ListObjects lists stored objects one page at a time. The continuation
// token travels in X-Continuation-Token both ways.
func (h *ObjectHandler) ListObjects(w http.ResponseWriter, r *http.Request) {
	records, next, err := h.service.ListObjects(r.Context(), r.Header.Get("X-Continuation-Token"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := ObjectListResponse{Objects: make([]ObjectRecordResponse, 0, len(records))}
	for _, record := range records {
		resp.Objects = append(resp.Objects, ObjectRecordResponse{ID: record.ID, VersionID: record.VersionID})
	}
	if next != "" {
		w.Header().Set("X-Continuation-Token", next)
	}
	render.JSON(w, r, resp)
}

// CreateObject creates the first version of an object.
func (h *ObjectHandler) CreateObject(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r)
	if err != nil {
		http.Error(w, "invalid object id", http.StatusBadRequest)
		return
	}

	var payload ObjectPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	descriptor, err := payload.toDescriptor()
	if err != nil {
		writeError(w, r, err)
		return
	}

	versionID, err := h.service.CreateObject(r.Context(), creativestore.CreateObjectRequest{
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

// ModifyObject writes a new version. The expected current version travels in
// If-Match; a mismatch maps to 412.
func (h *ObjectHandler) ModifyObject(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r)
	if err != nil {
		http.Error(w, "invalid object id", http.StatusBadRequest)
		return
	}
	expected := r.Header.Get("If-Match")
	if expected == "" {
		http.Error(w, "If-Match header is required", http.StatusPreconditionRequired)
		return
	}

	var payload ObjectPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	descriptor, err := payload.toDescriptor()
	if err != nil {
		writeError(w, r, err)
		return
	}

	versionID, err := h.service.ModifyObject(r.Context(), creativestore.ModifyObjectRequest{
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

// GetObject fetches one version of an object; the latest when the versionId
// query parameter is absent. If-None-Match matching the latest version maps
// to 304.
func (h *ObjectHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r)
	if err != nil {
		http.Error(w, "invalid object id", http.StatusBadRequest)
		return
	}

	descriptor, err := h.service.GetObjectDescriptor(r.Context(), id, r.URL.Query().Get("versionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if match := r.Header.Get("If-None-Match"); match != "" && match == descriptor.VersionID {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	resp, err := objectResponseFrom(descriptor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", descriptor.VersionID)
	render.JSON(w, r, resp)
}

// GetObjectVersions walks the version history newest first. The since query
// parameter bounds the walk: everything at or before that version is
// excluded.
func (h *ObjectHandler) GetObjectVersions(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r)
	if err != nil {
		http.Error(w, "invalid object id", http.StatusBadRequest)
		return
	}

	records, err := h.service.GetObjectVersions(r.Context(), id, r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, versionResponsesFrom(records))
}

// GetPreview renders the element's image at the requested size.
func (h *ObjectHandler) GetPreview(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r)
	if err != nil {
		http.Error(w, "invalid object id", http.StatusBadRequest)
		return
	}
	width, _ := strconv.Atoi(r.URL.Query().Get("width"))
	height, _ := strconv.Atoi(r.URL.Query().Get("height"))

	value, err := h.service.GetImageElementValue(r.Context(), id, r.URL.Query().Get("versionId"), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	data, contentType, err := h.renderer.Preview(r.Context(), value, width, height)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// GetRaw returns the element's stored bytes unmodified.
func (h *ObjectHandler) GetRaw(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r)
	if err != nil {
		http.Error(w, "invalid object id", http.StatusBadRequest)
		return
	}

	value, err := h.service.GetImageElementValue(r.Context(), id, r.URL.Query().Get("versionId"), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	data, contentType, err := h.renderer.Raw(r.Context(), value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func objectID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
