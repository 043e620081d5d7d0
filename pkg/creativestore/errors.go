package creativestore

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error kinds. Callers classify with errors.Is/errors.As; the REST layer maps
// each kind to its HTTP status.
var (
	// ErrNotFound is the storage-level absence signal returned by blob store
	// implementations. The service wraps it into the entity-specific kinds
	// below.
	ErrNotFound = errors.New("not found")

	// ErrObjectNotFound indicates the object or the requested version is absent.
	ErrObjectNotFound = errors.New("object not found")

	// ErrTemplateNotFound indicates the template or the requested version is absent.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrSessionNotFound indicates an unknown upload session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrElementNotFound indicates the object has no element with the given
	// template code.
	ErrElementNotFound = errors.New("element not found")

	// ErrObjectAlreadyExists indicates a create for an id that already exists.
	ErrObjectAlreadyExists = errors.New("object already exists")

	// ErrLockAlreadyExists indicates the object's distributed lock is held by
	// another writer.
	ErrLockAlreadyExists = errors.New("lock already exists")

	// ErrObjectLocked indicates a reader observed a concurrent writer and
	// declined rather than returning a torn view. Safe to retry after backoff.
	ErrObjectLocked = errors.New("object is locked, try later")

	// ErrConcurrency indicates the expected version no longer matches the
	// stored latest version. The caller must re-fetch and retry.
	ErrConcurrency = errors.New("version mismatch")

	// ErrSessionCannotBeCreated indicates invalid session setup parameters.
	ErrSessionCannotBeCreated = errors.New("session cannot be created")

	// ErrInvalidTemplate indicates the template code does not name a
	// binary-carrying element of the session's template.
	ErrInvalidTemplate = errors.New("template code does not accept binary content")

	// ErrMissingFilename indicates upload metadata without a filename.
	ErrMissingFilename = errors.New("filename is missing")

	// ErrMemoryLimited indicates the image engine declined admission; the
	// request is safe to retry after the hinted delay.
	ErrMemoryLimited = errors.New("memory limited")

	// ErrNotImageElement indicates a type-checked image accessor was called
	// for a non-image element.
	ErrNotImageElement = errors.New("element is not image-typed")
)

// ArgumentError reports a missing or invalid required field, named so the
// caller can correct it.
type ArgumentError struct {
	Name   string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Name, e.Reason)
}

// DeserializationError reports JSON that parsed but is semantically
// impossible: a missing required token or an unknown discriminator. It is
// surfaced to clients, never silently defaulted.
type DeserializationError struct {
	Field string
	Err   error
}

func (e *DeserializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot deserialize %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("cannot deserialize %s", e.Field)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// ObjectInconsistentError reports a structural mismatch between an object and
// its pinned template version.
type ObjectInconsistentError struct {
	Details string
}

func (e *ObjectInconsistentError) Error() string {
	return fmt.Sprintf("object is inconsistent with template: %s", e.Details)
}

// ElementViolations collects every content-validation failure of one element.
type ElementViolations struct {
	TemplateCode string
	Errors       []error
}

// InvalidObjectError carries the full list of element-level violations so a
// caller can fix all of them in one round trip.
type InvalidObjectError struct {
	Violations []ElementViolations
}

func (e *InvalidObjectError) Error() string {
	var b strings.Builder
	b.WriteString("object failed validation:")
	for _, v := range e.Violations {
		for _, err := range v.Errors {
			fmt.Fprintf(&b, " [%s] %v;", v.TemplateCode, err)
		}
	}
	return b.String()
}

// SessionExpiredError indicates an operation against a session past its
// expiry timestamp.
type SessionExpiredError struct {
	ExpiresAt time.Time
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired at %s", e.ExpiresAt.Format(time.RFC3339))
}

// FilenameTooLongError reports a declared filename over the element's limit.
type FilenameTooLongError struct {
	MaxLength    int
	ActualLength int
}

func (e *FilenameTooLongError) Error() string {
	return fmt.Sprintf("filename length %d exceeds maximum %d", e.ActualLength, e.MaxLength)
}

// BinaryTooLargeError reports a declared size over the element's limit.
type BinaryTooLargeError struct {
	MaxSize      int64
	DeclaredSize int64
}

func (e *BinaryTooLargeError) Error() string {
	return fmt.Sprintf("declared size %d exceeds maximum %d", e.DeclaredSize, e.MaxSize)
}

// BinaryInvalidFormatError reports a file extension outside the element's
// supported-format whitelist.
type BinaryInvalidFormatError struct {
	Format    FileFormat
	Supported []FileFormat
}

func (e *BinaryInvalidFormatError) Error() string {
	return fmt.Sprintf("format %q is not supported (supported: %v)", e.Format, e.Supported)
}

// StorageOpError wraps a backend failure with the operation and key for
// correlation in logs.
type StorageOpError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageOpError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageOpError) Unwrap() error { return e.Err }
