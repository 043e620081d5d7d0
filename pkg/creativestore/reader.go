package creativestore

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// ListObjects pages through the store and returns the object records found on
// one page, with a continuation token for the next.
func (s *service) ListObjects(ctx context.Context, continuationToken string) ([]ObjectRecord, string, error) {
	keys, next, err := s.objects.List(ctx, "", continuationToken)
	if err != nil {
		return nil, "", &StorageOpError{Op: "list", Err: err}
	}

	records := make([]ObjectRecord, 0, len(keys))
	for _, key := range keys {
		id, ok := objectIDFromKey(key)
		if !ok {
			// Element sub-objects share the prefix namespace; skip them.
			continue
		}
		meta, err := s.objects.Head(ctx, key, "")
		if err != nil {
			return nil, "", mapNotFound(err, ErrObjectNotFound)
		}
		records = append(records, ObjectRecord{ID: id, VersionID: meta.VersionID})
	}
	return records, next, nil
}

// GetObjectDescriptor fetches one object version with all its elements. An
// empty versionID resolves the latest living version.
func (s *service) GetObjectDescriptor(ctx context.Context, id int64, versionID string) (*ObjectDescriptor, error) {
	data, meta, err := s.objects.Get(ctx, objectHeaderKey(id), versionID)
	if err != nil {
		return nil, mapNotFound(err, ErrObjectNotFound)
	}
	header, err := unmarshalObjectHeader(data)
	if err != nil {
		return nil, err
	}

	descriptor := &ObjectDescriptor{
		ID:                id,
		VersionID:         meta.VersionID,
		TemplateID:        header.TemplateID,
		TemplateVersionID: header.TemplateVersionID,
		Language:          header.Language,
		Properties:        header.Properties,
		Elements:          make([]ObjectElementDescriptor, len(header.Elements)),
	}

	// The header pins each element to an exact sub-object version, so the
	// fan-out reads a consistent snapshot even while a writer appends new
	// versions.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchConcurrency)
	for i, ptr := range header.Elements {
		g.Go(func() error {
			body, _, err := s.objects.Get(gctx, elementKey(id, ptr.ID), ptr.VersionID)
			if err != nil {
				return mapNotFound(err, ErrElementNotFound)
			}
			el, err := unmarshalObjectElement(body)
			if err != nil {
				return err
			}
			el.ID = ptr.ID
			el.VersionID = ptr.VersionID
			descriptor.Elements[i] = *el
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return descriptor, nil
}

// GetObjectVersions reconstructs the object's version history, newest-first.
// The walk stops once initialVersionID is observed: that version and
// everything older is excluded, supporting incremental "what changed since X"
// queries without re-scanning history the caller has already seen. A
// concurrent writer is reported as ErrObjectLocked instead of risking a torn
// history.
func (s *service) GetObjectVersions(ctx context.Context, id int64, initialVersionID string) ([]ObjectVersionRecord, error) {
	return s.getVersions(ctx, s.objects, objectLockKey(id), objectHeaderKey(id), initialVersionID, ErrObjectNotFound)
}

// GetTemplateVersions is the template counterpart of GetObjectVersions.
func (s *service) GetTemplateVersions(ctx context.Context, id int64, initialVersionID string) ([]ObjectVersionRecord, error) {
	return s.getVersions(ctx, s.templates, templateLockKey(id), objectHeaderKey(id), initialVersionID, ErrTemplateNotFound)
}

func (s *service) getVersions(ctx context.Context, store VersionedBlobStore, lockKey, headerKey, initialVersionID string, notFound error) ([]ObjectVersionRecord, error) {
	locked, err := s.locks.IsLocked(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, ErrObjectLocked
	}

	var (
		living       []VersionInfo
		pageToken    string
		boundarySeen bool
		sawAny       bool
	)
	for {
		page, err := store.ListVersions(ctx, headerKey, pageToken)
		if err != nil {
			return nil, &StorageOpError{Op: "list_versions", Key: headerKey, Err: err}
		}
		for _, v := range page.Versions {
			sawAny = true
			if v.IsDeleteMarker {
				continue
			}
			if initialVersionID != "" && v.VersionID == initialVersionID {
				boundarySeen = true
				break
			}
			living = append(living, v)
		}
		if boundarySeen || page.NextToken == "" {
			break
		}
		pageToken = page.NextToken
	}
	if !sawAny {
		return nil, notFound
	}
	if len(living) == 0 && !boundarySeen {
		// Only delete markers survive: nothing living to report.
		return nil, notFound
	}

	records := make([]ObjectVersionRecord, len(living))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchConcurrency)
	for i, v := range living {
		g.Go(func() error {
			meta, err := store.Head(gctx, headerKey, v.VersionID)
			if err != nil {
				return mapNotFound(err, notFound)
			}
			author, index, modified := parseHeaderMetadata(meta)
			records[i] = ObjectVersionRecord{
				VersionID:        v.VersionID,
				VersionIndex:     index,
				LastModified:     meta.LastModified,
				Author:           author,
				ModifiedElements: modified,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Indexes decrease strictly from the newest record; the newest version's
	// stored index anchors the sequence so a partial walk still numbers
	// consistently with the full history.
	if len(records) > 0 {
		anchor := records[0].VersionIndex
		if anchor == 0 {
			anchor = len(records)
		}
		for i := range records {
			records[i].VersionIndex = anchor - i
		}
	}
	return records, nil
}

// GetObjectVersionLastModified reports when one version of the object header
// was written.
func (s *service) GetObjectVersionLastModified(ctx context.Context, id int64, versionID string) (time.Time, error) {
	meta, err := s.objects.Head(ctx, objectHeaderKey(id), versionID)
	if err != nil {
		return time.Time{}, mapNotFound(err, ErrObjectNotFound)
	}
	return meta.LastModified, nil
}

// GetImageElementValue returns the image value of the named element. The
// accessor is type-checked: a non-image element yields ErrNotImageElement.
func (s *service) GetImageElementValue(ctx context.Context, id int64, versionID, templateCode string) (ImageElementValue, error) {
	descriptor, err := s.GetObjectDescriptor(ctx, id, versionID)
	if err != nil {
		return nil, err
	}
	el := descriptor.Element(templateCode)
	if el == nil {
		return nil, ErrElementNotFound
	}
	image, ok := el.Value.(ImageElementValue)
	if !ok {
		return nil, ErrNotImageElement
	}
	return image, nil
}

// GetTemplateDescriptor fetches one template version. Templates persist as a
// single descriptor object; elements are inlined.
func (s *service) GetTemplateDescriptor(ctx context.Context, id int64, versionID string) (*TemplateDescriptor, error) {
	data, meta, err := s.templates.Get(ctx, objectHeaderKey(id), versionID)
	if err != nil {
		return nil, mapNotFound(err, ErrTemplateNotFound)
	}
	template, err := unmarshalTemplate(data)
	if err != nil {
		return nil, err
	}
	template.ID = id
	template.VersionID = meta.VersionID
	return template, nil
}
