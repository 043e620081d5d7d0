package creativestore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Language identifies the language an object is created in. Constraint sets
// are keyed by language; LanguageUnspecified acts as the wildcard fallback.
type Language string

// Language constants (typed).
const (
	LanguageUnspecified Language = "unspecified"
	LanguageEN          Language = "en"
	LanguageRU          Language = "ru"
	LanguageTR          Language = "tr"
	LanguageUK          Language = "uk"
)

// ElementType is the closed enumeration of element kinds a template may declare.
type ElementType string

// Element type constants (typed).
const (
	ElementTypePlainText            ElementType = "plainText"
	ElementTypeFormattedText        ElementType = "formattedText"
	ElementTypeBitmapImage          ElementType = "bitmapImage"
	ElementTypeVectorImage          ElementType = "vectorImage"
	ElementTypeArticle              ElementType = "article"
	ElementTypeFasComment           ElementType = "fasComment"
	ElementTypeLink                 ElementType = "link"
	ElementTypeVideoLink            ElementType = "videoLink"
	ElementTypePhone                ElementType = "phone"
	ElementTypeColor                ElementType = "color"
	ElementTypeCompositeBitmapImage ElementType = "compositeBitmapImage"
	ElementTypeScalableBitmapImage  ElementType = "scalableBitmapImage"
)

// Valid reports whether t is one of the declared element types.
func (t ElementType) Valid() bool {
	switch t {
	case ElementTypePlainText, ElementTypeFormattedText, ElementTypeBitmapImage,
		ElementTypeVectorImage, ElementTypeArticle, ElementTypeFasComment,
		ElementTypeLink, ElementTypeVideoLink, ElementTypePhone, ElementTypeColor,
		ElementTypeCompositeBitmapImage, ElementTypeScalableBitmapImage:
		return true
	}
	return false
}

// IsImage reports whether t is an image-carrying element type.
func (t ElementType) IsImage() bool {
	switch t {
	case ElementTypeBitmapImage, ElementTypeVectorImage,
		ElementTypeCompositeBitmapImage, ElementTypeScalableBitmapImage:
		return true
	}
	return false
}

// IsBinary reports whether content for t is delivered through an upload
// session rather than inline in the descriptor. Articles are uploaded as
// files alongside the image types.
func (t ElementType) IsBinary() bool {
	return t.IsImage() || t == ElementTypeArticle
}

// ImageSize is a width/height pair in pixels.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ImageSizeRange bounds acceptable image dimensions inclusively.
type ImageSizeRange struct {
	Min ImageSize `json:"min"`
	Max ImageSize `json:"max"`
}

// Contains reports whether size fits within the range.
func (r ImageSizeRange) Contains(size ImageSize) bool {
	return size.Width >= r.Min.Width && size.Width <= r.Max.Width &&
		size.Height >= r.Min.Height && size.Height <= r.Max.Height
}

// CropArea describes a composite crop rectangle in source image coordinates.
// It may extend beyond the source bounds in any direction.
type CropArea struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SizeSpecificImage references a square rendition of a composite image staged
// for one particular target size.
type SizeSpecificImage struct {
	Size int    `json:"size"`
	Raw  string `json:"raw"`
}

// ElementValue is the closed tagged union of element payloads. The concrete
// variant must match the element's declared type; ValueMatchesType enforces
// the pairing at every consumption site.
type ElementValue interface {
	isElementValue()
}

// ImageElementValue is implemented by the image-carrying value variants. It
// exposes the storage key of the raw bytes for the preview engine.
type ImageElementValue interface {
	ElementValue
	RawKey() string
}

// TextValue carries inline text. It backs the plain/formatted text, article,
// link, video link and phone element types.
type TextValue struct {
	Raw string `json:"raw"`
}

// ColorValue carries a hex color like "#AABBCC".
type ColorValue struct {
	Raw string `json:"raw"`
}

// FasValue carries a federal advertising notice: the registry reference plus
// the rendered notice text.
type FasValue struct {
	Raw  string `json:"raw"`
	Text string `json:"text"`
}

// BitmapImageValue references staged binary content by its permanent storage
// key. It backs both the bitmap and vector image element types.
type BitmapImageValue struct {
	Raw      string `json:"raw"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

// CompositeBitmapImageValue is a bitmap image with an optional crop area and
// a set of square size-specific renditions.
type CompositeBitmapImageValue struct {
	Raw                string              `json:"raw"`
	Filename           string              `json:"filename"`
	Filesize           int64               `json:"filesize"`
	CropArea           *CropArea           `json:"cropArea,omitempty"`
	SizeSpecificImages []SizeSpecificImage `json:"sizeSpecificImages,omitempty"`
}

// ScalableBitmapImageValue is a bitmap image with an anchor point driving
// client-side scaling.
type ScalableBitmapImageValue struct {
	Raw      string `json:"raw"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Anchor   string `json:"anchor"`
}

func (*TextValue) isElementValue()                 {}
func (*ColorValue) isElementValue()                {}
func (*FasValue) isElementValue()                  {}
func (*BitmapImageValue) isElementValue()          {}
func (*CompositeBitmapImageValue) isElementValue() {}
func (*ScalableBitmapImageValue) isElementValue()  {}

func (v *BitmapImageValue) RawKey() string          { return v.Raw }
func (v *CompositeBitmapImageValue) RawKey() string { return v.Raw }
func (v *ScalableBitmapImageValue) RawKey() string  { return v.Raw }

// ValueMatchesType reports whether the concrete variant of value is the one
// required for the element type.
func ValueMatchesType(t ElementType, value ElementValue) bool {
	switch t {
	case ElementTypePlainText, ElementTypeFormattedText, ElementTypeArticle,
		ElementTypeLink, ElementTypeVideoLink, ElementTypePhone:
		_, ok := value.(*TextValue)
		return ok
	case ElementTypeColor:
		_, ok := value.(*ColorValue)
		return ok
	case ElementTypeFasComment:
		_, ok := value.(*FasValue)
		return ok
	case ElementTypeBitmapImage, ElementTypeVectorImage:
		_, ok := value.(*BitmapImageValue)
		return ok
	case ElementTypeCompositeBitmapImage:
		_, ok := value.(*CompositeBitmapImageValue)
		return ok
	case ElementTypeScalableBitmapImage:
		_, ok := value.(*ScalableBitmapImageValue)
		return ok
	}
	return false
}

// FileFormat is a binary upload file format, matched against filename
// extensions and decoded image headers.
type FileFormat string

// File format constants (typed).
const (
	FileFormatPNG  FileFormat = "png"
	FileFormatJPEG FileFormat = "jpeg"
	FileFormatGIF  FileFormat = "gif"
	FileFormatSVG  FileFormat = "svg"
	FileFormatHTML FileFormat = "html"
)

// ElementConstraints is the closed tagged union of per-element constraint
// variants. The concrete variant is keyed by the element type, mirroring
// ElementValue.
type ElementConstraints interface {
	isElementConstraints()
}

// TextConstraints bound inline text elements. MaxLines only applies to
// formatted text, where explicit newlines and block-level tags both count.
type TextConstraints struct {
	MaxSymbols        int `json:"maxSymbols"`
	MaxSymbolsPerWord int `json:"maxSymbolsPerWord,omitempty"`
	MaxLines          int `json:"maxLines,omitempty"`
}

// ColorConstraints bound color elements.
type ColorConstraints struct{}

// ImageConstraints bound binary uploads: accepted formats, dimensions (either
// an inclusive range or an exact-size whitelist), square size-specific
// renditions, and file metadata limits.
type ImageConstraints struct {
	SupportedFileFormats []FileFormat    `json:"supportedFileFormats"`
	ImageSizeRange       *ImageSizeRange `json:"imageSizeRange,omitempty"`
	ImageSizes           []ImageSize     `json:"imageSizes,omitempty"`
	SizeSpecificSizes    []int           `json:"sizeSpecificSizes,omitempty"`
	MaxFilesize          int64           `json:"maxFilesize,omitempty"`
	MaxFilenameLength    int             `json:"maxFilenameLength,omitempty"`
}

func (*TextConstraints) isElementConstraints()  {}
func (*ColorConstraints) isElementConstraints() {}
func (*ImageConstraints) isElementConstraints() {}

// ConstraintSet maps languages to the constraint variant in force for that
// language. Resolution falls back to the LanguageUnspecified wildcard entry.
type ConstraintSet map[Language]ElementConstraints

// Resolve returns the constraints for lang, falling back to the wildcard
// entry. The second return is false when neither is present.
func (cs ConstraintSet) Resolve(lang Language) (ElementConstraints, bool) {
	if c, ok := cs[lang]; ok {
		return c, true
	}
	c, ok := cs[LanguageUnspecified]
	return c, ok
}

// ElementDescriptor declares one element within a template.
type ElementDescriptor struct {
	TemplateCode string
	Type         ElementType
	Properties   json.RawMessage
	Constraints  ConstraintSet
}

// TemplateDescriptor is a versioned schema objects are validated against.
// Descriptors are immutable once versioned; a modification produces a new
// version of the same storage key.
type TemplateDescriptor struct {
	ID         int64
	VersionID  string
	Properties json.RawMessage
	Elements   []ElementDescriptor
}

// Element returns the template element with the given code, or nil.
func (t *TemplateDescriptor) Element(code string) *ElementDescriptor {
	for i := range t.Elements {
		if t.Elements[i].TemplateCode == code {
			return &t.Elements[i]
		}
	}
	return nil
}

// BinaryElementCodes lists the template codes of binary-carrying elements.
func (t *TemplateDescriptor) BinaryElementCodes() []string {
	var codes []string
	for _, el := range t.Elements {
		if el.Type.IsBinary() {
			codes = append(codes, el.TemplateCode)
		}
	}
	return codes
}

// ObjectElementDescriptor is one element instance within an object. Each
// element is persisted as its own sub-object so unchanged elements are not
// rewritten when the object is modified.
type ObjectElementDescriptor struct {
	ID           uuid.UUID
	VersionID    string
	Type         ElementType
	TemplateCode string
	Properties   json.RawMessage
	Constraints  ElementConstraints
	Value        ElementValue
}

// ObjectDescriptor is a versioned advertisement instance pinned to one
// template version.
type ObjectDescriptor struct {
	ID                int64
	VersionID         string
	TemplateID        int64
	TemplateVersionID string
	Language          Language
	Properties        json.RawMessage
	Elements          []ObjectElementDescriptor
}

// Element returns the object element with the given template code, or nil.
func (o *ObjectDescriptor) Element(code string) *ObjectElementDescriptor {
	for i := range o.Elements {
		if o.Elements[i].TemplateCode == code {
			return &o.Elements[i]
		}
	}
	return nil
}

// ObjectRecord is one entry of an object listing.
type ObjectRecord struct {
	ID        int64
	VersionID string
}

// ObjectVersionRecord is one entry of a version history walk. VersionIndex
// decreases strictly from the newest record down; the newest living version
// carries the total number of versions written.
type ObjectVersionRecord struct {
	VersionID        string
	VersionIndex     int
	LastModified     time.Time
	Author           string
	ModifiedElements []string
}

// UploadSession authorizes binary uploads for one object-creation attempt
// against a pinned template version. Operations against a session past
// ExpiresAt fail regardless of prior progress.
type UploadSession struct {
	ID                 uuid.UUID
	TemplateID         int64
	TemplateVersionID  string
	Language           Language
	Author             string
	ExpiresAt          time.Time
	BinaryElementCodes []string
}

// Expired reports whether the session expired as of now.
func (s *UploadSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// HasBinaryElement reports whether code names a binary-carrying element of
// the session's template.
func (s *UploadSession) HasBinaryElement(code string) bool {
	for _, c := range s.BinaryElementCodes {
		if c == code {
			return true
		}
	}
	return false
}

// UploadedFileMetadata is the client-declared description of a binary upload,
// validated before any bytes are transferred.
type UploadedFileMetadata struct {
	Filename     string
	ContentType  string
	DeclaredSize int64
	// TargetSize is set for size-specific composite renditions, which must be
	// square and exactly this large.
	TargetSize int
}

// FilePart records one uploaded part and the checksum tag the backend
// assigned to it.
type FilePart struct {
	Number int32
	ETag   string
}

// MultipartUpload tracks one in-flight binary upload within a session. It is
// mutated only by the uploading request and is not shared across goroutines.
type MultipartUpload struct {
	Session  *UploadSession
	Element  ElementDescriptor
	Metadata UploadedFileMetadata

	// FileKey is the temporary staging key; UploadID the backend multipart
	// handle.
	FileKey  string
	UploadID string
	Parts    []FilePart

	completed bool
	aborted   bool
}

// Completed reports whether the upload finished successfully.
func (u *MultipartUpload) Completed() bool { return u.completed }
