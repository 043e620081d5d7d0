package creativestore

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Service is the storage engine's operation surface: the versioned read path,
// the locked write path, and the upload session state machine.
type Service interface {
	// Read path.
	ListObjects(ctx context.Context, continuationToken string) ([]ObjectRecord, string, error)
	GetObjectDescriptor(ctx context.Context, id int64, versionID string) (*ObjectDescriptor, error)
	GetObjectVersions(ctx context.Context, id int64, initialVersionID string) ([]ObjectVersionRecord, error)
	GetObjectVersionLastModified(ctx context.Context, id int64, versionID string) (time.Time, error)
	GetImageElementValue(ctx context.Context, id int64, versionID, templateCode string) (ImageElementValue, error)
	GetTemplateDescriptor(ctx context.Context, id int64, versionID string) (*TemplateDescriptor, error)
	GetTemplateVersions(ctx context.Context, id int64, initialVersionID string) ([]ObjectVersionRecord, error)

	// Write path.
	CreateObject(ctx context.Context, req CreateObjectRequest) (versionID string, err error)
	ModifyObject(ctx context.Context, req ModifyObjectRequest) (versionID string, err error)
	CreateTemplate(ctx context.Context, req CreateTemplateRequest) (versionID string, err error)
	ModifyTemplate(ctx context.Context, req ModifyTemplateRequest) (versionID string, err error)

	// Upload sessions.
	CreateSession(ctx context.Context, req CreateSessionRequest) (*UploadSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (*UploadSession, error)
	InitiateMultipartUpload(ctx context.Context, req InitiateUploadRequest) (*MultipartUpload, error)
	UploadFilePart(ctx context.Context, upload *MultipartUpload, part io.Reader) error
	CompleteMultipartUpload(ctx context.Context, upload *MultipartUpload) (contentKey string, err error)
	AbortMultipartUpload(ctx context.Context, upload *MultipartUpload) error
}
