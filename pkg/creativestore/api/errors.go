package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/creativestore/creative-store/pkg/creativestore"
)

// ErrorResponse is the error body returned for every failed request.
type ErrorResponse struct {
	Error      string              `json:"error"`
	ExpiresAt  string              `json:"expiresAt,omitempty"`
	Violations []ElementViolations `json:"violations,omitempty"`
}

// ElementViolations lists the validation failures of one element.
type ElementViolations struct {
	TemplateCode string   `json:"templateCode"`
	Errors       []string `json:"errors"`
}

// writeError maps the storage engine's error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := ErrorResponse{Error: err.Error()}

	var (
		invalid      *creativestore.InvalidObjectError
		inconsistent *creativestore.ObjectInconsistentError
		expired      *creativestore.SessionExpiredError
		argument     *creativestore.ArgumentError
		decode       *creativestore.DeserializationError
		filename     *creativestore.FilenameTooLongError
		tooLarge     *creativestore.BinaryTooLargeError
		wrongFormat  *creativestore.BinaryInvalidFormatError
	)

	switch {
	case errors.Is(err, creativestore.ErrObjectNotFound),
		errors.Is(err, creativestore.ErrTemplateNotFound),
		errors.Is(err, creativestore.ErrSessionNotFound),
		errors.Is(err, creativestore.ErrElementNotFound),
		errors.Is(err, creativestore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, creativestore.ErrObjectAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, creativestore.ErrConcurrency):
		status = http.StatusPreconditionFailed
	case errors.Is(err, creativestore.ErrLockAlreadyExists),
		errors.Is(err, creativestore.ErrObjectLocked):
		status = http.StatusLocked
	case errors.Is(err, creativestore.ErrMemoryLimited):
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", "1")
	case errors.As(err, &expired):
		status = http.StatusGone
		body.ExpiresAt = expired.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")
	case errors.As(err, &invalid):
		status = http.StatusUnprocessableEntity
		for _, v := range invalid.Violations {
			ev := ElementViolations{TemplateCode: v.TemplateCode}
			for _, e := range v.Errors {
				ev.Errors = append(ev.Errors, e.Error())
			}
			body.Violations = append(body.Violations, ev)
		}
	case errors.As(err, &inconsistent):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, creativestore.ErrSessionCannotBeCreated),
		errors.Is(err, creativestore.ErrInvalidTemplate),
		errors.Is(err, creativestore.ErrMissingFilename),
		errors.Is(err, creativestore.ErrNotImageElement),
		errors.As(err, &argument),
		errors.As(err, &decode),
		errors.As(err, &filename),
		errors.As(err, &tooLarge),
		errors.As(err, &wrongFormat):
		status = http.StatusUnprocessableEntity
	}

	render.Status(r, status)
	render.JSON(w, r, body)
}
