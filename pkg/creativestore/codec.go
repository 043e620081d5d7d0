package creativestore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Storage key layout. Headers live under "{id}/descriptor"; element
// sub-objects under "{id}/{elementID}"; staged uploads under
// "{sessionID}/{fileKey}" in the content bucket, alongside the permanent
// content-addressed keys they are promoted to.
const descriptorPostfix = "descriptor"

func objectHeaderKey(id int64) string {
	return fmt.Sprintf("%d/%s", id, descriptorPostfix)
}

func elementKey(id int64, elementID uuid.UUID) string {
	return fmt.Sprintf("%d/%s", id, elementID)
}

func sessionDescriptorKey(id uuid.UUID) string {
	return fmt.Sprintf("%s/%s", id, descriptorPostfix)
}

func stagingKey(sessionID uuid.UUID, fileKey string) string {
	return fmt.Sprintf("%s/%s", sessionID, fileKey)
}

// objectIDFromKey parses the id out of a header key. The second return is
// false for keys that are not object headers.
func objectIDFromKey(key string) (int64, bool) {
	id, rest, found := strings.Cut(key, "/")
	if !found || rest != descriptorPostfix {
		return 0, false
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// User-metadata keys carried on stored objects.
const (
	metaAuthor           = "author"
	metaExpiresAt        = "expires-at"
	metaFilename         = "filename"
	metaModifiedElements = "modified-elements"
	metaVersionIndex     = "version-index"
)

// objectHeader is the persisted header form: the element index references
// element sub-objects by key id and version so unchanged elements survive a
// modification untouched.
type objectHeader struct {
	TemplateID        int64            `json:"templateId"`
	TemplateVersionID string           `json:"templateVersionId"`
	Language          Language         `json:"language"`
	Properties        json.RawMessage  `json:"properties"`
	Elements          []elementPointer `json:"elements"`
}

type elementPointer struct {
	ID        uuid.UUID `json:"id"`
	VersionID string    `json:"versionId"`
}

// elementEnvelope is the persisted element form. Value and Constraints decode
// in a second phase dispatched on Type.
type elementEnvelope struct {
	Type         ElementType     `json:"type"`
	TemplateCode string          `json:"templateCode"`
	Properties   json.RawMessage `json:"properties,omitempty"`
	Constraints  json.RawMessage `json:"constraints,omitempty"`
	Value        json.RawMessage `json:"value"`
}

// templateBody is the persisted template form.
type templateBody struct {
	Properties json.RawMessage   `json:"properties"`
	Elements   []templateElement `json:"elements"`
}

type templateElement struct {
	TemplateCode string                       `json:"templateCode"`
	Type         ElementType                  `json:"type"`
	Properties   json.RawMessage              `json:"properties,omitempty"`
	Constraints  map[Language]json.RawMessage `json:"constraints"`
}

// sessionBody is the persisted session form; author and expiry travel in user
// metadata.
type sessionBody struct {
	TemplateID                 int64    `json:"templateId"`
	TemplateVersionID          string   `json:"templateVersionId"`
	Language                   Language `json:"language"`
	BinaryElementTemplateCodes []string `json:"binaryElementTemplateCodes"`
}

// DecodeElementValue decodes the value payload for an element of type t. A
// missing payload or a variant mismatch is a DeserializationError.
func DecodeElementValue(t ElementType, raw json.RawMessage) (ElementValue, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, &DeserializationError{Field: "value"}
	}
	var (
		value ElementValue
		err   error
	)
	switch t {
	case ElementTypePlainText, ElementTypeFormattedText, ElementTypeArticle,
		ElementTypeLink, ElementTypeVideoLink, ElementTypePhone:
		v := &TextValue{}
		err = json.Unmarshal(raw, v)
		value = v
	case ElementTypeColor:
		v := &ColorValue{}
		err = json.Unmarshal(raw, v)
		value = v
	case ElementTypeFasComment:
		v := &FasValue{}
		err = json.Unmarshal(raw, v)
		value = v
	case ElementTypeBitmapImage, ElementTypeVectorImage:
		v := &BitmapImageValue{}
		err = json.Unmarshal(raw, v)
		value = v
	case ElementTypeCompositeBitmapImage:
		v := &CompositeBitmapImageValue{}
		err = json.Unmarshal(raw, v)
		value = v
	case ElementTypeScalableBitmapImage:
		v := &ScalableBitmapImageValue{}
		err = json.Unmarshal(raw, v)
		value = v
	default:
		return nil, &DeserializationError{Field: "type", Err: fmt.Errorf("unknown element type %q", t)}
	}
	if err != nil {
		return nil, &DeserializationError{Field: "value", Err: err}
	}
	return value, nil
}

// DecodeElementConstraints decodes the constraint payload for an element of
// type t.
func DecodeElementConstraints(t ElementType, raw json.RawMessage) (ElementConstraints, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, &DeserializationError{Field: "constraints"}
	}
	var (
		constraints ElementConstraints
		err         error
	)
	switch {
	case t == ElementTypeColor:
		c := &ColorConstraints{}
		err = json.Unmarshal(raw, c)
		constraints = c
	case t.IsImage():
		c := &ImageConstraints{}
		err = json.Unmarshal(raw, c)
		constraints = c
	case t.Valid():
		c := &TextConstraints{}
		err = json.Unmarshal(raw, c)
		constraints = c
	default:
		return nil, &DeserializationError{Field: "type", Err: fmt.Errorf("unknown element type %q", t)}
	}
	if err != nil {
		return nil, &DeserializationError{Field: "constraints", Err: err}
	}
	return constraints, nil
}

func decodeConstraintSet(t ElementType, raw map[Language]json.RawMessage) (ConstraintSet, error) {
	if len(raw) == 0 {
		return nil, &DeserializationError{Field: "constraints"}
	}
	cs := make(ConstraintSet, len(raw))
	for lang, payload := range raw {
		c, err := DecodeElementConstraints(t, payload)
		if err != nil {
			return nil, err
		}
		cs[lang] = c
	}
	return cs, nil
}

func encodeConstraintSet(cs ConstraintSet) (map[Language]json.RawMessage, error) {
	out := make(map[Language]json.RawMessage, len(cs))
	for lang, c := range cs {
		raw, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		out[lang] = raw
	}
	return out, nil
}

// marshalObjectHeader encodes the header body for persistence.
func marshalObjectHeader(d *ObjectDescriptor) ([]byte, error) {
	h := objectHeader{
		TemplateID:        d.TemplateID,
		TemplateVersionID: d.TemplateVersionID,
		Language:          d.Language,
		Properties:        d.Properties,
		Elements:          make([]elementPointer, 0, len(d.Elements)),
	}
	for _, el := range d.Elements {
		h.Elements = append(h.Elements, elementPointer{ID: el.ID, VersionID: el.VersionID})
	}
	return json.Marshal(h)
}

func unmarshalObjectHeader(data []byte) (*objectHeader, error) {
	var h objectHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, &DeserializationError{Field: "object header", Err: err}
	}
	if h.TemplateID == 0 {
		return nil, &DeserializationError{Field: "templateId"}
	}
	if h.TemplateVersionID == "" {
		return nil, &DeserializationError{Field: "templateVersionId"}
	}
	if h.Language == "" {
		return nil, &DeserializationError{Field: "language"}
	}
	return &h, nil
}

func marshalObjectElement(el *ObjectElementDescriptor) ([]byte, error) {
	value, err := json.Marshal(el.Value)
	if err != nil {
		return nil, err
	}
	var constraints json.RawMessage
	if el.Constraints != nil {
		constraints, err = json.Marshal(el.Constraints)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(elementEnvelope{
		Type:         el.Type,
		TemplateCode: el.TemplateCode,
		Properties:   el.Properties,
		Constraints:  constraints,
		Value:        value,
	})
}

func unmarshalObjectElement(data []byte) (*ObjectElementDescriptor, error) {
	var env elementEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DeserializationError{Field: "element", Err: err}
	}
	if !env.Type.Valid() {
		return nil, &DeserializationError{Field: "type", Err: fmt.Errorf("unknown element type %q", env.Type)}
	}
	if env.TemplateCode == "" {
		return nil, &DeserializationError{Field: "templateCode"}
	}
	value, err := DecodeElementValue(env.Type, env.Value)
	if err != nil {
		return nil, err
	}
	el := &ObjectElementDescriptor{
		Type:         env.Type,
		TemplateCode: env.TemplateCode,
		Properties:   env.Properties,
		Value:        value,
	}
	if len(env.Constraints) != 0 {
		el.Constraints, err = DecodeElementConstraints(env.Type, env.Constraints)
		if err != nil {
			return nil, err
		}
	}
	return el, nil
}

func marshalTemplate(t *TemplateDescriptor) ([]byte, error) {
	body := templateBody{
		Properties: t.Properties,
		Elements:   make([]templateElement, 0, len(t.Elements)),
	}
	for _, el := range t.Elements {
		constraints, err := encodeConstraintSet(el.Constraints)
		if err != nil {
			return nil, err
		}
		body.Elements = append(body.Elements, templateElement{
			TemplateCode: el.TemplateCode,
			Type:         el.Type,
			Properties:   el.Properties,
			Constraints:  constraints,
		})
	}
	return json.Marshal(body)
}

func unmarshalTemplate(data []byte) (*TemplateDescriptor, error) {
	var body templateBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, &DeserializationError{Field: "template", Err: err}
	}
	t := &TemplateDescriptor{
		Properties: body.Properties,
		Elements:   make([]ElementDescriptor, 0, len(body.Elements)),
	}
	for _, el := range body.Elements {
		if !el.Type.Valid() {
			return nil, &DeserializationError{Field: "type", Err: fmt.Errorf("unknown element type %q", el.Type)}
		}
		if el.TemplateCode == "" {
			return nil, &DeserializationError{Field: "templateCode"}
		}
		cs, err := decodeConstraintSet(el.Type, el.Constraints)
		if err != nil {
			return nil, err
		}
		t.Elements = append(t.Elements, ElementDescriptor{
			TemplateCode: el.TemplateCode,
			Type:         el.Type,
			Properties:   el.Properties,
			Constraints:  cs,
		})
	}
	return t, nil
}

func marshalSession(s *UploadSession) ([]byte, error) {
	return json.Marshal(sessionBody{
		TemplateID:                 s.TemplateID,
		TemplateVersionID:          s.TemplateVersionID,
		Language:                   s.Language,
		BinaryElementTemplateCodes: s.BinaryElementCodes,
	})
}

func unmarshalSession(id uuid.UUID, data []byte, meta *ObjectMeta) (*UploadSession, error) {
	var body sessionBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, &DeserializationError{Field: "session", Err: err}
	}
	if body.TemplateID == 0 {
		return nil, &DeserializationError{Field: "templateId"}
	}
	s := &UploadSession{
		ID:                 id,
		TemplateID:         body.TemplateID,
		TemplateVersionID:  body.TemplateVersionID,
		Language:           body.Language,
		BinaryElementCodes: body.BinaryElementTemplateCodes,
	}
	if meta != nil {
		s.Author = meta.Metadata[metaAuthor]
		expiry, err := time.Parse(time.RFC3339, meta.Metadata[metaExpiresAt])
		if err != nil {
			return nil, &DeserializationError{Field: metaExpiresAt, Err: err}
		}
		s.ExpiresAt = expiry
	}
	return s, nil
}

// headerMetadata builds the user metadata stored on an object header version.
func headerMetadata(author string, versionIndex int, modifiedCodes []string) map[string]string {
	return map[string]string{
		metaAuthor:           author,
		metaVersionIndex:     strconv.Itoa(versionIndex),
		metaModifiedElements: strings.Join(modifiedCodes, ","),
	}
}

func parseHeaderMetadata(meta *ObjectMeta) (author string, versionIndex int, modifiedCodes []string) {
	if meta == nil {
		return "", 0, nil
	}
	author = meta.Metadata[metaAuthor]
	versionIndex, _ = strconv.Atoi(meta.Metadata[metaVersionIndex])
	if codes := meta.Metadata[metaModifiedElements]; codes != "" {
		modifiedCodes = strings.Split(codes, ",")
	}
	return author, versionIndex, modifiedCodes
}
