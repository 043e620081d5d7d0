package creativestore

import (
	"context"
	"io"
	"time"
)

// VersionedBlobStore is the storage backend contract. Implementations sit on
// an S3-compatible service with bucket versioning enabled, or on memory for
// tests. Absence is reported as ErrNotFound.
type VersionedBlobStore interface {
	// Put writes a new version of key and returns the backend-assigned
	// version id.
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (versionID string, err error)

	// Get fetches the body and metadata of key. An empty versionID resolves
	// the latest living version; a delete marker at the top of the chain
	// yields ErrNotFound.
	Get(ctx context.Context, key, versionID string) ([]byte, *ObjectMeta, error)

	// Head fetches metadata only, with the same version resolution as Get.
	Head(ctx context.Context, key, versionID string) (*ObjectMeta, error)

	// List pages through keys under prefix. An empty continuation token
	// starts from the beginning; an empty next token means the listing is
	// exhausted.
	List(ctx context.Context, prefix, continuationToken string) (keys []string, next string, err error)

	// ListVersions pages through the native version chain of key,
	// newest-first, including delete markers.
	ListVersions(ctx context.Context, key, pageToken string) (*VersionPage, error)

	// Copy duplicates srcKey into dstKey, replacing metadata with opts.
	Copy(ctx context.Context, srcKey, dstKey string, opts PutOptions) error

	// Delete removes key. On a versioned backend this writes a delete marker.
	Delete(ctx context.Context, key string) error

	// CreateMultipartUpload opens a multipart handle for key.
	CreateMultipartUpload(ctx context.Context, key string, opts PutOptions) (uploadID string, err error)

	// UploadPart transfers one part and returns its checksum tag.
	UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (etag string, err error)

	// CompleteMultipartUpload assembles the uploaded parts into the object at
	// key and returns the assembled object's checksum tag.
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []FilePart) (etag string, err error)

	// AbortMultipartUpload discards an open multipart handle. Aborting an
	// unknown handle is not an error.
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
}

// PutOptions carries content type, user metadata and access semantics for a
// stored object.
type PutOptions struct {
	ContentType  string
	Metadata     map[string]string
	ACL          string
	CacheControl string
}

// ObjectMeta describes one stored object version.
type ObjectMeta struct {
	Key          string
	VersionID    string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
	Metadata     map[string]string
}

// VersionInfo describes one entry of a version chain.
type VersionInfo struct {
	VersionID      string
	IsDeleteMarker bool
	IsLatest       bool
	ETag           string
	LastModified   time.Time
}

// VersionPage is one page of a version chain walk, newest-first.
type VersionPage struct {
	Versions  []VersionInfo
	NextToken string
}

// LockManager coordinates at-most-one concurrent writer per key across
// process instances.
type LockManager interface {
	// Acquire takes the lock for key, failing with ErrLockAlreadyExists when
	// another holder is active. Locks are TTL-bounded in the backend.
	Acquire(ctx context.Context, key string) (Lock, error)

	// IsLocked reports whether the lock for key is currently held. Readers
	// use it to detect a concurrent writer.
	IsLocked(ctx context.Context, key string) (bool, error)
}

// Lock is a held distributed lock.
type Lock interface {
	// Release frees the lock. It is idempotent and never fails the caller:
	// backend errors are logged and the TTL expiry is relied on instead.
	Release(ctx context.Context)
}

// EventSink receives store lifecycle notifications. Delivery is best effort;
// sink errors never fail the originating operation.
type EventSink interface {
	SessionCreated(ctx context.Context, session *UploadSession) error
	ObjectCreated(ctx context.Context, id int64, versionID string) error
	ObjectModified(ctx context.Context, id int64, versionID string) error
	TemplateCreated(ctx context.Context, id int64, versionID string) error
	TemplateModified(ctx context.Context, id int64, versionID string) error
}
