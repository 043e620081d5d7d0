package creativestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// CreateTemplate persists the first version of a template under the id's
// distributed lock.
func (s *service) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (string, error) {
	if err := validateTemplateDescriptor(req.Descriptor); err != nil {
		return "", err
	}
	if _, err := s.templates.Head(ctx, objectHeaderKey(req.ID), ""); err == nil {
		return "", ErrObjectAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	lock, err := s.locks.Acquire(ctx, templateLockKey(req.ID))
	if err != nil {
		return "", err
	}
	defer lock.Release(ctx)

	if _, err := s.templates.Head(ctx, objectHeaderKey(req.ID), ""); err == nil {
		return "", ErrObjectAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	versionID, err := s.writeTemplate(ctx, req.ID, req.Descriptor, req.Author, 1)
	if err != nil {
		return "", err
	}

	s.fireEvent(ctx, "template_created", func() error {
		return s.eventSink.TemplateCreated(ctx, req.ID, versionID)
	})
	s.logger.Info().Int64("id", req.ID).Str("version", versionID).Str("author", req.Author).Msg("template created")
	return versionID, nil
}

// ModifyTemplate writes a new version of the template. Objects pinned to
// earlier versions are unaffected: templates are immutable per version.
func (s *service) ModifyTemplate(ctx context.Context, req ModifyTemplateRequest) (string, error) {
	if err := validateTemplateDescriptor(req.Descriptor); err != nil {
		return "", err
	}
	if req.ExpectedVersionID == "" {
		return "", &ArgumentError{Name: "ExpectedVersionID", Reason: "must be set"}
	}

	headMeta, err := s.templates.Head(ctx, objectHeaderKey(req.ID), "")
	if err != nil {
		return "", mapNotFound(err, ErrTemplateNotFound)
	}
	if headMeta.VersionID != req.ExpectedVersionID {
		return "", ErrConcurrency
	}

	lock, err := s.locks.Acquire(ctx, templateLockKey(req.ID))
	if err != nil {
		return "", err
	}
	defer lock.Release(ctx)

	headMeta, err = s.templates.Head(ctx, objectHeaderKey(req.ID), "")
	if err != nil {
		return "", mapNotFound(err, ErrTemplateNotFound)
	}
	if headMeta.VersionID != req.ExpectedVersionID {
		return "", ErrConcurrency
	}
	_, currentIndex, _ := parseHeaderMetadata(headMeta)
	if currentIndex == 0 {
		currentIndex = 1
	}

	versionID, err := s.writeTemplate(ctx, req.ID, req.Descriptor, req.Author, currentIndex+1)
	if err != nil {
		return "", err
	}

	s.fireEvent(ctx, "template_modified", func() error {
		return s.eventSink.TemplateModified(ctx, req.ID, versionID)
	})
	s.logger.Info().Int64("id", req.ID).Str("version", versionID).Str("author", req.Author).Msg("template modified")
	return versionID, nil
}

func (s *service) writeTemplate(ctx context.Context, id int64, d *TemplateDescriptor, author string, versionIndex int) (string, error) {
	body, err := marshalTemplate(d)
	if err != nil {
		return "", err
	}
	versionID, err := s.templates.Put(ctx, objectHeaderKey(id), bytes.NewReader(body), PutOptions{
		ContentType: "application/json",
		Metadata:    headerMetadata(author, versionIndex, nil),
	})
	if err != nil {
		return "", &StorageOpError{Op: "put_template", Key: objectHeaderKey(id), Err: err}
	}
	return versionID, nil
}

// validateTemplateDescriptor checks the structural invariants of a template:
// at least one element, unique codes, known types, and a resolvable
// constraint set per element.
func validateTemplateDescriptor(d *TemplateDescriptor) error {
	if d == nil {
		return &ArgumentError{Name: "Descriptor", Reason: "must be set"}
	}
	if d.Properties == nil {
		return &ArgumentError{Name: "Properties", Reason: "must not be null"}
	}
	if len(d.Elements) == 0 {
		return &ArgumentError{Name: "Elements", Reason: "must not be empty"}
	}
	seen := make(map[string]struct{}, len(d.Elements))
	for i := range d.Elements {
		el := &d.Elements[i]
		if el.TemplateCode == "" {
			return &ArgumentError{Name: "TemplateCode", Reason: "must be set"}
		}
		if _, dup := seen[el.TemplateCode]; dup {
			return &ArgumentError{Name: "TemplateCode", Reason: fmt.Sprintf("duplicate code %q", el.TemplateCode)}
		}
		seen[el.TemplateCode] = struct{}{}
		if !el.Type.Valid() {
			return &ArgumentError{Name: "Type", Reason: fmt.Sprintf("unknown element type %q", el.Type)}
		}
		if len(el.Constraints) == 0 {
			return &ArgumentError{Name: "Constraints", Reason: fmt.Sprintf("element %q has no constraints", el.TemplateCode)}
		}
		for lang, c := range el.Constraints {
			if !constraintsMatchType(el.Type, c) {
				return &ArgumentError{Name: "Constraints", Reason: fmt.Sprintf(
					"element %q has constraints of the wrong kind for language %q", el.TemplateCode, lang)}
			}
		}
	}
	return nil
}

// constraintsMatchType reports whether the constraint variant is the one the
// element type calls for.
func constraintsMatchType(t ElementType, c ElementConstraints) bool {
	switch c.(type) {
	case *ColorConstraints:
		return t == ElementTypeColor
	case *ImageConstraints:
		return t.IsImage()
	case *TextConstraints:
		return t.Valid() && !t.IsImage() && t != ElementTypeColor
	default:
		return false
	}
}
