package creativestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateSession sets up an upload session bound to a pinned template version.
// An empty TemplateVersionID pins the template's latest version at setup
// time.
func (s *service) CreateSession(ctx context.Context, req CreateSessionRequest) (*UploadSession, error) {
	if req.Language == "" || req.Language == LanguageUnspecified {
		return nil, ErrSessionCannotBeCreated
	}
	if req.ID == uuid.Nil {
		return nil, &ArgumentError{Name: "ID", Reason: "must be set"}
	}

	template, err := s.GetTemplateDescriptor(ctx, req.TemplateID, req.TemplateVersionID)
	if err != nil {
		return nil, err
	}

	session := &UploadSession{
		ID:                 req.ID,
		TemplateID:         template.ID,
		TemplateVersionID:  template.VersionID,
		Language:           req.Language,
		Author:             req.Author,
		ExpiresAt:          time.Now().Add(s.sessionTTL).UTC(),
		BinaryElementCodes: template.BinaryElementCodes(),
	}

	body, err := marshalSession(session)
	if err != nil {
		return nil, err
	}
	key := sessionDescriptorKey(session.ID)
	if _, err := s.sessions.Put(ctx, key, bytes.NewReader(body), PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			metaAuthor:    session.Author,
			metaExpiresAt: session.ExpiresAt.Format(time.RFC3339),
		},
	}); err != nil {
		return nil, &StorageOpError{Op: "put_session", Key: key, Err: err}
	}

	s.fireEvent(ctx, "session_created", func() error {
		return s.eventSink.SessionCreated(ctx, session)
	})
	s.logger.Info().Stringer("session", session.ID).Int64("template", session.TemplateID).
		Time("expires_at", session.ExpiresAt).Msg("session created")
	return session, nil
}

// GetSession fetches a session descriptor by id.
func (s *service) GetSession(ctx context.Context, id uuid.UUID) (*UploadSession, error) {
	data, meta, err := s.sessions.Get(ctx, sessionDescriptorKey(id), "")
	if err != nil {
		return nil, mapNotFound(err, ErrSessionNotFound)
	}
	return unmarshalSession(id, data, meta)
}

// InitiateMultipartUpload validates the declared file metadata and opens a
// backend multipart handle under a fresh staging key. All checks here run
// before any content bytes are transferred.
func (s *service) InitiateMultipartUpload(ctx context.Context, req InitiateUploadRequest) (*MultipartUpload, error) {
	session, err := s.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Expired(time.Now()) {
		return nil, &SessionExpiredError{ExpiresAt: session.ExpiresAt}
	}
	if !session.HasBinaryElement(req.TemplateCode) {
		return nil, ErrInvalidTemplate
	}

	template, err := s.GetTemplateDescriptor(ctx, session.TemplateID, session.TemplateVersionID)
	if err != nil {
		return nil, err
	}
	element := template.Element(req.TemplateCode)
	if element == nil {
		return nil, ErrElementNotFound
	}

	if err := validateUploadMetadata(element, session.Language, req.Metadata); err != nil {
		return nil, err
	}

	// Staging lives in the content bucket so completion can promote the
	// assembled object with a server-side copy.
	fileKey := stagingKey(session.ID, uuid.New().String())
	uploadID, err := s.content.CreateMultipartUpload(ctx, fileKey, PutOptions{
		ContentType: req.Metadata.ContentType,
		Metadata:    map[string]string{metaFilename: req.Metadata.Filename},
	})
	if err != nil {
		return nil, &StorageOpError{Op: "create_multipart", Key: fileKey, Err: err}
	}

	s.logger.Debug().Stringer("session", session.ID).Str("element", req.TemplateCode).
		Str("file_key", fileKey).Msg("multipart upload initiated")
	return &MultipartUpload{
		Session:  session,
		Element:  *element,
		Metadata: req.Metadata,
		FileKey:  fileKey,
		UploadID: uploadID,
	}, nil
}

// UploadFilePart transfers one part of the upload. The first part carries
// enough of the file to validate the header: actual format and dimensions are
// checked against the declared format and the element's size constraints
// before the remaining parts are accepted.
func (s *service) UploadFilePart(ctx context.Context, upload *MultipartUpload, part io.Reader) error {
	if upload.completed || upload.aborted {
		return &ArgumentError{Name: "upload", Reason: "already finished"}
	}
	if upload.Session.Expired(time.Now()) {
		return &SessionExpiredError{ExpiresAt: upload.Session.ExpiresAt}
	}

	data, err := io.ReadAll(part)
	if err != nil {
		return err
	}

	if len(upload.Parts) == 0 {
		format := declaredFileFormat(upload.Metadata.Filename)
		constraints := uploadImageConstraints(&upload.Element, upload.Session.Language)
		if errs := ValidateBinaryHeader(format, data, constraints, upload.Metadata.TargetSize); len(errs) > 0 {
			return &InvalidObjectError{Violations: []ElementViolations{{
				TemplateCode: upload.Element.TemplateCode,
				Errors:       errs,
			}}}
		}
	}

	number := int32(len(upload.Parts) + 1)
	etag, err := s.content.UploadPart(ctx, upload.FileKey, upload.UploadID, number, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return &StorageOpError{Op: "upload_part", Key: upload.FileKey, Err: err}
	}
	upload.Parts = append(upload.Parts, FilePart{Number: number, ETag: etag})
	return nil
}

// CompleteMultipartUpload assembles the staged parts, runs the full
// decoded-content validation pass, and copies the result to a permanent
// content-addressed key. The returned key is what object descriptors
// reference as the element's raw content.
func (s *service) CompleteMultipartUpload(ctx context.Context, upload *MultipartUpload) (string, error) {
	if upload.completed || upload.aborted {
		return "", &ArgumentError{Name: "upload", Reason: "already finished"}
	}
	if upload.Session.Expired(time.Now()) {
		return "", &SessionExpiredError{ExpiresAt: upload.Session.ExpiresAt}
	}
	if len(upload.Parts) == 0 {
		return "", &ArgumentError{Name: "upload", Reason: "no parts uploaded"}
	}

	etag, err := s.content.CompleteMultipartUpload(ctx, upload.FileKey, upload.UploadID, upload.Parts)
	if err != nil {
		return "", &StorageOpError{Op: "complete_multipart", Key: upload.FileKey, Err: err}
	}
	// The multipart handle is gone from here on; a later abort must not try
	// to discard it again.
	upload.completed = true

	data, _, err := s.content.Get(ctx, upload.FileKey, "")
	if err != nil {
		return "", mapNotFound(err, ErrNotFound)
	}

	format := declaredFileFormat(upload.Metadata.Filename)
	if err := ValidateAssembledContent(format, data); err != nil {
		s.deleteStaged(ctx, upload.FileKey)
		return "", err
	}

	// Promotion is a server-side copy within the content bucket: the staged
	// bytes never travel back through the service.
	contentKey := contentAddressedKey(etag, upload.Metadata.Filename)
	if err := s.content.Copy(ctx, upload.FileKey, contentKey, PutOptions{
		ContentType:  upload.Metadata.ContentType,
		ACL:          "public-read",
		CacheControl: "public, max-age=31536000, immutable",
		Metadata:     map[string]string{metaFilename: upload.Metadata.Filename},
	}); err != nil {
		return "", &StorageOpError{Op: "copy_content", Key: contentKey, Err: err}
	}

	s.deleteStaged(ctx, upload.FileKey)
	s.logger.Info().Stringer("session", upload.Session.ID).Str("element", upload.Element.TemplateCode).
		Str("content_key", contentKey).Msg("upload completed")
	return contentKey, nil
}

// AbortMultipartUpload discards an in-flight upload. It is idempotent and a
// no-op after completion, so callers can invoke it unconditionally from
// cleanup paths.
func (s *service) AbortMultipartUpload(ctx context.Context, upload *MultipartUpload) error {
	if upload.completed || upload.aborted {
		return nil
	}
	upload.aborted = true
	if err := s.content.AbortMultipartUpload(ctx, upload.FileKey, upload.UploadID); err != nil {
		return &StorageOpError{Op: "abort_multipart", Key: upload.FileKey, Err: err}
	}
	s.logger.Debug().Stringer("session", upload.Session.ID).Str("file_key", upload.FileKey).Msg("upload aborted")
	return nil
}

// deleteStaged removes the temporary staging object. Failures are logged
// only: the staging prefix is subject to downstream expiry cleanup.
func (s *service) deleteStaged(ctx context.Context, fileKey string) {
	if err := s.content.Delete(ctx, fileKey); err != nil {
		s.logger.Warn().Err(err).Str("file_key", fileKey).Msg("staged object cleanup failed")
	}
}

// validateUploadMetadata runs the pre-transfer checks on the client-declared
// file metadata.
func validateUploadMetadata(element *ElementDescriptor, lang Language, meta UploadedFileMetadata) error {
	if meta.Filename == "" {
		return ErrMissingFilename
	}
	constraints := uploadImageConstraints(element, lang)
	if constraints == nil {
		return nil
	}
	if constraints.MaxFilenameLength > 0 && len(meta.Filename) > constraints.MaxFilenameLength {
		return &FilenameTooLongError{MaxLength: constraints.MaxFilenameLength, ActualLength: len(meta.Filename)}
	}
	if constraints.MaxFilesize > 0 && meta.DeclaredSize > constraints.MaxFilesize {
		return &BinaryTooLargeError{MaxSize: constraints.MaxFilesize, DeclaredSize: meta.DeclaredSize}
	}
	if meta.TargetSize > 0 && !containsInt(constraints.SizeSpecificSizes, meta.TargetSize) {
		return &ArgumentError{Name: "TargetSize", Reason: fmt.Sprintf("size %d is not declared by the element", meta.TargetSize)}
	}
	if len(constraints.SupportedFileFormats) > 0 {
		format := declaredFileFormat(meta.Filename)
		if !containsFormat(constraints.SupportedFileFormats, format) {
			return &BinaryInvalidFormatError{Format: format, Supported: constraints.SupportedFileFormats}
		}
	}
	return nil
}

// uploadImageConstraints resolves the element's image constraints for the
// session language. Articles carry text constraints, so the return may be
// nil for a binary element.
func uploadImageConstraints(element *ElementDescriptor, lang Language) *ImageConstraints {
	c, ok := element.Constraints.Resolve(lang)
	if !ok {
		return nil
	}
	image, ok := c.(*ImageConstraints)
	if !ok {
		return nil
	}
	return image
}

// declaredFileFormat derives the file format from the filename extension.
func declaredFileFormat(filename string) FileFormat {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(filename), ".")) {
	case "png":
		return FileFormatPNG
	case "jpg", "jpeg":
		return FileFormatJPEG
	case "gif":
		return FileFormatGIF
	case "svg":
		return FileFormatSVG
	case "htm", "html":
		return FileFormatHTML
	default:
		return ""
	}
}

// contentAddressedKey derives the permanent key from the assembled upload's
// checksum tag and the original file extension.
func contentAddressedKey(etag, filename string) string {
	checksum := strings.Trim(etag, `"`)
	ext := strings.ToLower(path.Ext(filename))
	return checksum + ext
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func containsFormat(formats []FileFormat, f FileFormat) bool {
	for _, x := range formats {
		if x == f {
			return true
		}
	}
	return false
}
