package creativestore

import "github.com/google/uuid"

// Request DTOs

// CreateObjectRequest contains parameters for creating a new object.
type CreateObjectRequest struct {
	ID         int64
	Author     string
	Descriptor *ObjectDescriptor
}

// ModifyObjectRequest contains parameters for modifying an object.
// ExpectedVersionID must equal the stored latest version.
type ModifyObjectRequest struct {
	ID                int64
	ExpectedVersionID string
	Author            string
	Descriptor        *ObjectDescriptor
}

// CreateTemplateRequest contains parameters for creating a new template.
type CreateTemplateRequest struct {
	ID         int64
	Author     string
	Descriptor *TemplateDescriptor
}

// ModifyTemplateRequest contains parameters for modifying a template.
type ModifyTemplateRequest struct {
	ID                int64
	ExpectedVersionID string
	Author            string
	Descriptor        *TemplateDescriptor
}

// CreateSessionRequest contains parameters for setting up an upload session.
// An empty TemplateVersionID pins the session to the template's latest
// version at setup time.
type CreateSessionRequest struct {
	ID                uuid.UUID
	TemplateID        int64
	TemplateVersionID string
	Language          Language
	Author            string
}

// InitiateUploadRequest contains parameters for opening a multipart upload
// within a session.
type InitiateUploadRequest struct {
	SessionID    uuid.UUID
	TemplateCode string
	Metadata     UploadedFileMetadata
}
