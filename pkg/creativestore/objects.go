package creativestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// CreateObject validates the descriptor against its pinned template version
// and persists the first version of the object under the id's distributed
// lock.
func (s *service) CreateObject(ctx context.Context, req CreateObjectRequest) (string, error) {
	if err := validateObjectScalars(req.Descriptor); err != nil {
		return "", err
	}
	if _, err := s.objects.Head(ctx, objectHeaderKey(req.ID), ""); err == nil {
		return "", ErrObjectAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if err := s.validateAgainstTemplate(ctx, req.Descriptor); err != nil {
		return "", err
	}

	lock, err := s.locks.Acquire(ctx, objectLockKey(req.ID))
	if err != nil {
		return "", err
	}
	defer lock.Release(ctx)

	// Race-checked again now that we hold the lock.
	if _, err := s.objects.Head(ctx, objectHeaderKey(req.ID), ""); err == nil {
		return "", ErrObjectAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	modified := make([]string, 0, len(req.Descriptor.Elements))
	for i := range req.Descriptor.Elements {
		el := &req.Descriptor.Elements[i]
		el.ID = uuid.New()
		versionID, err := s.writeElement(ctx, req.ID, el)
		if err != nil {
			return "", err
		}
		el.VersionID = versionID
		modified = append(modified, el.TemplateCode)
	}

	versionID, err := s.writeHeader(ctx, req.ID, req.Descriptor, req.Author, 1, modified)
	if err != nil {
		return "", err
	}

	s.fireEvent(ctx, "object_created", func() error {
		return s.eventSink.ObjectCreated(ctx, req.ID, versionID)
	})
	s.logger.Info().Int64("id", req.ID).Str("version", versionID).Str("author", req.Author).Msg("object created")
	return versionID, nil
}

// ModifyObject writes a new version of the object. Element sub-objects are
// copy-on-write: an element whose persisted form is unchanged keeps its
// existing key and version and is only referenced from the new header.
func (s *service) ModifyObject(ctx context.Context, req ModifyObjectRequest) (string, error) {
	if err := validateObjectScalars(req.Descriptor); err != nil {
		return "", err
	}
	if req.ExpectedVersionID == "" {
		return "", &ArgumentError{Name: "ExpectedVersionID", Reason: "must be set"}
	}

	current, err := s.GetObjectDescriptor(ctx, req.ID, "")
	if err != nil {
		return "", err
	}
	if current.VersionID != req.ExpectedVersionID {
		return "", ErrConcurrency
	}
	if err := s.validateAgainstTemplate(ctx, req.Descriptor); err != nil {
		return "", err
	}

	lock, err := s.locks.Acquire(ctx, objectLockKey(req.ID))
	if err != nil {
		return "", err
	}
	defer lock.Release(ctx)

	// Re-verify the version now that we hold the lock: a writer may have
	// advanced it between the optimistic check and the acquisition.
	headMeta, err := s.objects.Head(ctx, objectHeaderKey(req.ID), "")
	if err != nil {
		return "", mapNotFound(err, ErrObjectNotFound)
	}
	if headMeta.VersionID != req.ExpectedVersionID {
		return "", ErrConcurrency
	}
	_, currentIndex, _ := parseHeaderMetadata(headMeta)
	if currentIndex == 0 {
		currentIndex = 1
	}

	var modified []string
	for i := range req.Descriptor.Elements {
		el := &req.Descriptor.Elements[i]
		prev := current.Element(el.TemplateCode)
		if prev != nil && elementUnchanged(prev, el) {
			el.ID = prev.ID
			el.VersionID = prev.VersionID
			continue
		}
		if prev != nil {
			el.ID = prev.ID
		} else {
			el.ID = uuid.New()
		}
		versionID, err := s.writeElement(ctx, req.ID, el)
		if err != nil {
			return "", err
		}
		el.VersionID = versionID
		modified = append(modified, el.TemplateCode)
	}

	// The header goes last: a crash before this point leaves the previous
	// header (still pointing at the old element versions) as the visible
	// latest, with the lock held until its TTL expires.
	versionID, err := s.writeHeader(ctx, req.ID, req.Descriptor, req.Author, currentIndex+1, modified)
	if err != nil {
		return "", err
	}

	s.fireEvent(ctx, "object_modified", func() error {
		return s.eventSink.ObjectModified(ctx, req.ID, versionID)
	})
	s.logger.Info().Int64("id", req.ID).Str("version", versionID).Strs("modified", modified).Msg("object modified")
	return versionID, nil
}

func (s *service) writeElement(ctx context.Context, id int64, el *ObjectElementDescriptor) (string, error) {
	body, err := marshalObjectElement(el)
	if err != nil {
		return "", err
	}
	versionID, err := s.objects.Put(ctx, elementKey(id, el.ID), bytes.NewReader(body), PutOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", &StorageOpError{Op: "put_element", Key: elementKey(id, el.ID), Err: err}
	}
	return versionID, nil
}

func (s *service) writeHeader(ctx context.Context, id int64, d *ObjectDescriptor, author string, versionIndex int, modified []string) (string, error) {
	body, err := marshalObjectHeader(d)
	if err != nil {
		return "", err
	}
	versionID, err := s.objects.Put(ctx, objectHeaderKey(id), bytes.NewReader(body), PutOptions{
		ContentType: "application/json",
		Metadata:    headerMetadata(author, versionIndex, modified),
	})
	if err != nil {
		return "", &StorageOpError{Op: "put_header", Key: objectHeaderKey(id), Err: err}
	}
	return versionID, nil
}

// validateObjectScalars checks the required scalar fields, naming the first
// missing one.
func validateObjectScalars(d *ObjectDescriptor) error {
	if d == nil {
		return &ArgumentError{Name: "Descriptor", Reason: "must be set"}
	}
	if d.Language == "" || d.Language == LanguageUnspecified {
		return &ArgumentError{Name: "Language", Reason: "must be specified"}
	}
	if d.TemplateID == 0 {
		return &ArgumentError{Name: "TemplateId", Reason: "must be set"}
	}
	if d.TemplateVersionID == "" {
		return &ArgumentError{Name: "TemplateVersionId", Reason: "must be set"}
	}
	if d.Properties == nil {
		return &ArgumentError{Name: "Properties", Reason: "must not be null"}
	}
	return nil
}

// validateAgainstTemplate enforces structural consistency with the pinned
// template version, then runs content validation collecting every violation.
func (s *service) validateAgainstTemplate(ctx context.Context, d *ObjectDescriptor) error {
	template, err := s.GetTemplateDescriptor(ctx, d.TemplateID, d.TemplateVersionID)
	if err != nil {
		return err
	}

	if len(d.Elements) != len(template.Elements) {
		return &ObjectInconsistentError{Details: fmt.Sprintf(
			"element count %d does not match template element count %d",
			len(d.Elements), len(template.Elements))}
	}
	seen := make(map[string]struct{}, len(d.Elements))
	for i := range d.Elements {
		el := &d.Elements[i]
		if _, dup := seen[el.TemplateCode]; dup {
			return &ObjectInconsistentError{Details: fmt.Sprintf(
				"duplicate element code %q", el.TemplateCode)}
		}
		seen[el.TemplateCode] = struct{}{}
		tmplEl := template.Element(el.TemplateCode)
		if tmplEl == nil {
			return &ObjectInconsistentError{Details: fmt.Sprintf(
				"template has no element with code %q", el.TemplateCode)}
		}
		if el.Type != tmplEl.Type {
			return &ObjectInconsistentError{Details: fmt.Sprintf(
				"element %q has type %q, template declares %q",
				el.TemplateCode, el.Type, tmplEl.Type)}
		}
		expected, ok := tmplEl.Constraints.Resolve(d.Language)
		if !ok {
			return &ObjectInconsistentError{Details: fmt.Sprintf(
				"template element %q has no constraints for language %q",
				el.TemplateCode, d.Language)}
		}
		if !reflect.DeepEqual(expected, el.Constraints) {
			return &ObjectInconsistentError{Details: fmt.Sprintf(
				"element %q constraints do not match the template constraints for language %q",
				el.TemplateCode, d.Language)}
		}
		if !ValueMatchesType(el.Type, el.Value) {
			return &ObjectInconsistentError{Details: fmt.Sprintf(
				"element %q value does not match type %q", el.TemplateCode, el.Type)}
		}
	}

	// Content validation is not short-circuited: the caller gets every
	// violation in one round trip.
	var violations []ElementViolations
	for i := range d.Elements {
		el := &d.Elements[i]
		if errs := ValidateElement(el); len(errs) > 0 {
			violations = append(violations, ElementViolations{
				TemplateCode: el.TemplateCode,
				Errors:       errs,
			})
		}
	}
	if len(violations) > 0 {
		return &InvalidObjectError{Violations: violations}
	}
	return nil
}

// elementUnchanged compares the persisted forms, ignoring key identity.
func elementUnchanged(prev, next *ObjectElementDescriptor) bool {
	a, err := marshalObjectElement(prev)
	if err != nil {
		return false
	}
	b, err := marshalObjectElement(next)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}
