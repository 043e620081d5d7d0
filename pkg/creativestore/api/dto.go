package api

import (
	"encoding/json"
	"time"

	"github.com/creativestore/creative-store/pkg/creativestore"
)

// Wire DTOs. Element values and constraints travel as raw JSON and decode in
// a second phase dispatched on the element type.

// ObjectElementPayload is one element of an object on the wire.
type ObjectElementPayload struct {
	TemplateCode string                    `json:"templateCode"`
	Type         creativestore.ElementType `json:"type"`
	Properties   json.RawMessage           `json:"properties,omitempty"`
	Constraints  json.RawMessage           `json:"constraints"`
	Value        json.RawMessage           `json:"value"`
}

// ObjectPayload is the request body for creating or modifying an object.
type ObjectPayload struct {
	TemplateID        int64                  `json:"templateId"`
	TemplateVersionID string                 `json:"templateVersionId"`
	Language          creativestore.Language `json:"language"`
	Properties        json.RawMessage        `json:"properties"`
	Elements          []ObjectElementPayload `json:"elements"`
}

// ObjectResponse is the response body for a stored object.
type ObjectResponse struct {
	ID                int64                  `json:"id"`
	VersionID         string                 `json:"versionId"`
	TemplateID        int64                  `json:"templateId"`
	TemplateVersionID string                 `json:"templateVersionId"`
	Language          creativestore.Language `json:"language"`
	Properties        json.RawMessage        `json:"properties"`
	Elements          []ObjectElementPayload `json:"elements"`
}

// TemplateElementPayload is one element declaration of a template on the
// wire.
type TemplateElementPayload struct {
	TemplateCode string                                     `json:"templateCode"`
	Type         creativestore.ElementType                  `json:"type"`
	Properties   json.RawMessage                            `json:"properties,omitempty"`
	Constraints  map[creativestore.Language]json.RawMessage `json:"constraints"`
}

// TemplatePayload is the request body for creating or modifying a template.
type TemplatePayload struct {
	Properties json.RawMessage          `json:"properties"`
	Elements   []TemplateElementPayload `json:"elements"`
}

// TemplateResponse is the response body for a stored template.
type TemplateResponse struct {
	ID         int64                    `json:"id"`
	VersionID  string                   `json:"versionId"`
	Properties json.RawMessage          `json:"properties"`
	Elements   []TemplateElementPayload `json:"elements"`
}

// VersionResponse is one entry of a version history listing.
type VersionResponse struct {
	VersionID        string    `json:"versionId"`
	VersionIndex     int       `json:"versionIndex"`
	LastModified     time.Time `json:"lastModified"`
	Author           string    `json:"author"`
	ModifiedElements []string  `json:"modifiedElements,omitempty"`
}

// ObjectListResponse is one page of the object listing.
type ObjectListResponse struct {
	Objects []ObjectRecordResponse `json:"objects"`
}

// ObjectRecordResponse is one entry of the object listing.
type ObjectRecordResponse struct {
	ID        int64  `json:"id"`
	VersionID string `json:"versionId"`
}

// SessionResponse is the response body for an upload session.
type SessionResponse struct {
	ID                 string                 `json:"id"`
	TemplateID         int64                  `json:"templateId"`
	TemplateVersionID  string                 `json:"templateVersionId"`
	Language           creativestore.Language `json:"language"`
	ExpiresAt          time.Time              `json:"expiresAt"`
	BinaryElementCodes []string               `json:"binaryElementCodes"`
}

// CreateSessionPayload is the request body for setting up a session.
type CreateSessionPayload struct {
	TemplateID        int64                  `json:"templateId"`
	TemplateVersionID string                 `json:"templateVersionId,omitempty"`
	Language          creativestore.Language `json:"language"`
}

// UploadResponse reports the permanent key of a completed upload.
type UploadResponse struct {
	ContentKey string `json:"contentKey"`
}

func (p *ObjectPayload) toDescriptor() (*creativestore.ObjectDescriptor, error) {
	descriptor := &creativestore.ObjectDescriptor{
		TemplateID:        p.TemplateID,
		TemplateVersionID: p.TemplateVersionID,
		Language:          p.Language,
		Properties:        p.Properties,
		Elements:          make([]creativestore.ObjectElementDescriptor, 0, len(p.Elements)),
	}
	for _, el := range p.Elements {
		value, err := creativestore.DecodeElementValue(el.Type, el.Value)
		if err != nil {
			return nil, err
		}
		constraints, err := creativestore.DecodeElementConstraints(el.Type, el.Constraints)
		if err != nil {
			return nil, err
		}
		descriptor.Elements = append(descriptor.Elements, creativestore.ObjectElementDescriptor{
			TemplateCode: el.TemplateCode,
			Type:         el.Type,
			Properties:   el.Properties,
			Constraints:  constraints,
			Value:        value,
		})
	}
	return descriptor, nil
}

func objectResponseFrom(d *creativestore.ObjectDescriptor) (*ObjectResponse, error) {
	resp := &ObjectResponse{
		ID:                d.ID,
		VersionID:         d.VersionID,
		TemplateID:        d.TemplateID,
		TemplateVersionID: d.TemplateVersionID,
		Language:          d.Language,
		Properties:        d.Properties,
		Elements:          make([]ObjectElementPayload, 0, len(d.Elements)),
	}
	for _, el := range d.Elements {
		value, err := json.Marshal(el.Value)
		if err != nil {
			return nil, err
		}
		constraints, err := json.Marshal(el.Constraints)
		if err != nil {
			return nil, err
		}
		resp.Elements = append(resp.Elements, ObjectElementPayload{
			TemplateCode: el.TemplateCode,
			Type:         el.Type,
			Properties:   el.Properties,
			Constraints:  constraints,
			Value:        value,
		})
	}
	return resp, nil
}

func (p *TemplatePayload) toDescriptor() (*creativestore.TemplateDescriptor, error) {
	descriptor := &creativestore.TemplateDescriptor{
		Properties: p.Properties,
		Elements:   make([]creativestore.ElementDescriptor, 0, len(p.Elements)),
	}
	for _, el := range p.Elements {
		constraints := make(creativestore.ConstraintSet, len(el.Constraints))
		for lang, raw := range el.Constraints {
			c, err := creativestore.DecodeElementConstraints(el.Type, raw)
			if err != nil {
				return nil, err
			}
			constraints[lang] = c
		}
		descriptor.Elements = append(descriptor.Elements, creativestore.ElementDescriptor{
			TemplateCode: el.TemplateCode,
			Type:         el.Type,
			Properties:   el.Properties,
			Constraints:  constraints,
		})
	}
	return descriptor, nil
}

func templateResponseFrom(d *creativestore.TemplateDescriptor) (*TemplateResponse, error) {
	resp := &TemplateResponse{
		ID:         d.ID,
		VersionID:  d.VersionID,
		Properties: d.Properties,
		Elements:   make([]TemplateElementPayload, 0, len(d.Elements)),
	}
	for _, el := range d.Elements {
		constraints := make(map[creativestore.Language]json.RawMessage, len(el.Constraints))
		for lang, c := range el.Constraints {
			raw, err := json.Marshal(c)
			if err != nil {
				return nil, err
			}
			constraints[lang] = raw
		}
		resp.Elements = append(resp.Elements, TemplateElementPayload{
			TemplateCode: el.TemplateCode,
			Type:         el.Type,
			Properties:   el.Properties,
			Constraints:  constraints,
		})
	}
	return resp, nil
}

func sessionResponseFrom(s *creativestore.UploadSession) *SessionResponse {
	return &SessionResponse{
		ID:                 s.ID.String(),
		TemplateID:         s.TemplateID,
		TemplateVersionID:  s.TemplateVersionID,
		Language:           s.Language,
		ExpiresAt:          s.ExpiresAt,
		BinaryElementCodes: s.BinaryElementCodes,
	}
}

func versionResponsesFrom(records []creativestore.ObjectVersionRecord) []VersionResponse {
	out := make([]VersionResponse, 0, len(records))
	for _, record := range records {
		out = append(out, VersionResponse{
			VersionID:        record.VersionID,
			VersionIndex:     record.VersionIndex,
			LastModified:     record.LastModified,
			Author:           record.Author,
			ModifiedElements: record.ModifiedElements,
		})
	}
	return out
}
