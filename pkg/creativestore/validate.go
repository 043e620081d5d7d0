package creativestore

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	"io"
	"regexp"
	"strings"
	"unicode"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/net/html"
)

// Validation error kinds. Validators return these as values, never panic for
// expected domain violations; an empty slice denotes success.

// TextTooLongError reports visible text over the element's symbol limit.
type TextTooLongError struct {
	MaxLength    int
	ActualLength int
}

func (e *TextTooLongError) Error() string {
	return fmt.Sprintf("text is %d symbols long, at most %d allowed", e.ActualLength, e.MaxLength)
}

// WordTooLongError reports a single word over the per-word symbol limit.
type WordTooLongError struct {
	MaxLength    int
	ActualLength int
}

func (e *WordTooLongError) Error() string {
	return fmt.Sprintf("word is %d symbols long, at most %d allowed", e.ActualLength, e.MaxLength)
}

// TooManyLinesError reports text over the element's line limit. Explicit
// newlines and block-level tags both count as line breaks.
type TooManyLinesError struct {
	MaxLines    int
	ActualLines int
}

func (e *TooManyLinesError) Error() string {
	return fmt.Sprintf("text has %d lines, at most %d allowed", e.ActualLines, e.MaxLines)
}

// NonBreakingSpaceError reports a U+00A0 in the visible text.
type NonBreakingSpaceError struct{}

func (e *NonBreakingSpaceError) Error() string {
	return "text contains a non-breaking space"
}

// ControlCharacterError reports a C0 control character in the visible text.
type ControlCharacterError struct {
	Rune rune
}

func (e *ControlCharacterError) Error() string {
	return fmt.Sprintf("text contains control character %U", e.Rune)
}

// MalformedMarkupError reports markup that does not parse or has unbalanced
// tags.
type MalformedMarkupError struct {
	Details string
}

func (e *MalformedMarkupError) Error() string {
	return "malformed markup: " + e.Details
}

// UnsupportedTagError reports a tag outside the formatting whitelist.
type UnsupportedTagError struct {
	Tag string
}

func (e *UnsupportedTagError) Error() string {
	return fmt.Sprintf("tag <%s> is not supported", e.Tag)
}

// AttributesNotAllowedError reports a tag carrying attributes.
type AttributesNotAllowedError struct {
	Tag string
}

func (e *AttributesNotAllowedError) Error() string {
	return fmt.Sprintf("tag <%s> must not carry attributes", e.Tag)
}

// EmptyListError reports a list with no non-empty items.
type EmptyListError struct{}

func (e *EmptyListError) Error() string { return "list has no items" }

// NestedListError reports a list inside another list.
type NestedListError struct{}

func (e *NestedListError) Error() string { return "nested lists are not allowed" }

// UnsupportedListChildError reports a direct list child other than an item.
type UnsupportedListChildError struct {
	Tag string
}

func (e *UnsupportedListChildError) Error() string {
	return fmt.Sprintf("list may only contain items, found <%s>", e.Tag)
}

// InvalidColorError reports a color value outside the #RRGGBB form.
type InvalidColorError struct {
	Raw string
}

func (e *InvalidColorError) Error() string {
	return fmt.Sprintf("%q is not a #RRGGBB color", e.Raw)
}

// ImageFormatMismatchError reports decoded content of a different format than
// the filename declares.
type ImageFormatMismatchError struct {
	Declared FileFormat
	Actual   FileFormat
}

func (e *ImageFormatMismatchError) Error() string {
	return fmt.Sprintf("declared format %q, content decodes as %q", e.Declared, e.Actual)
}

// ImageSizeOutOfRangeError reports image dimensions outside the element's
// accepted range or exact-size whitelist.
type ImageSizeOutOfRangeError struct {
	Size ImageSize
}

func (e *ImageSizeOutOfRangeError) Error() string {
	return fmt.Sprintf("image size %dx%d is not accepted by the element", e.Size.Width, e.Size.Height)
}

// ImageNotSquareError reports a size-specific rendition that is not square.
type ImageNotSquareError struct {
	Width  int
	Height int
}

func (e *ImageNotSquareError) Error() string {
	return fmt.Sprintf("size-specific image must be square, got %dx%d", e.Width, e.Height)
}

// ImageTargetSizeMismatchError reports a square size-specific rendition of
// the wrong size. Distinct from the squareness violation.
type ImageTargetSizeMismatchError struct {
	Target int
	Actual int
}

func (e *ImageTargetSizeMismatchError) Error() string {
	return fmt.Sprintf("size-specific image is %d wide, declared target is %d", e.Actual, e.Target)
}

// ImageMalformedError reports content that fails a full decode.
type ImageMalformedError struct {
	Format FileFormat
	Err    error
}

func (e *ImageMalformedError) Error() string {
	return fmt.Sprintf("%s content does not decode: %v", e.Format, e.Err)
}

func (e *ImageMalformedError) Unwrap() error { return e.Err }

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Tags permitted in formatted text. br, p and li additionally count as line
// breaks.
var formattedTextTags = map[string]bool{
	"b": true, "i": true, "u": true, "s": true,
	"strong": true, "em": true, "br": true, "p": true,
	"ul": true, "ol": true, "li": true,
}

// ValidateElement runs the content validators appropriate to the element's
// type against its value. The switch is exhaustive over the declared types;
// an unknown type is an invariant violation, not a validation failure.
func ValidateElement(el *ObjectElementDescriptor) []error {
	switch el.Type {
	case ElementTypePlainText, ElementTypeLink, ElementTypeVideoLink, ElementTypePhone:
		v := el.Value.(*TextValue)
		return validatePlainText(v.Raw, textConstraintsOf(el.Constraints))
	case ElementTypeFormattedText:
		v := el.Value.(*TextValue)
		return ValidateFormattedText(v.Raw, textConstraintsOf(el.Constraints))
	case ElementTypeFasComment:
		v := el.Value.(*FasValue)
		return validatePlainText(v.Text, textConstraintsOf(el.Constraints))
	case ElementTypeColor:
		v := el.Value.(*ColorValue)
		if !colorPattern.MatchString(v.Raw) {
			return []error{&InvalidColorError{Raw: v.Raw}}
		}
		return nil
	case ElementTypeArticle:
		v := el.Value.(*TextValue)
		return validateContentReference(v.Raw)
	case ElementTypeBitmapImage, ElementTypeVectorImage:
		v := el.Value.(*BitmapImageValue)
		return validateImageValue(v.Raw, v.Filename, v.Filesize, imageConstraintsOf(el.Constraints))
	case ElementTypeCompositeBitmapImage:
		v := el.Value.(*CompositeBitmapImageValue)
		return validateCompositeImageValue(v, imageConstraintsOf(el.Constraints))
	case ElementTypeScalableBitmapImage:
		v := el.Value.(*ScalableBitmapImageValue)
		return validateImageValue(v.Raw, v.Filename, v.Filesize, imageConstraintsOf(el.Constraints))
	default:
		panic(fmt.Sprintf("no validator for element type %q", el.Type))
	}
}

func textConstraintsOf(c ElementConstraints) *TextConstraints {
	if tc, ok := c.(*TextConstraints); ok {
		return tc
	}
	return &TextConstraints{}
}

func imageConstraintsOf(c ElementConstraints) *ImageConstraints {
	if ic, ok := c.(*ImageConstraints); ok {
		return ic
	}
	return &ImageConstraints{}
}

// validatePlainText checks markup-free text. All checks run; every violation
// is reported.
func validatePlainText(raw string, constraints *TextConstraints) []error {
	var errs []error
	errs = append(errs, checkRestrictedCharacters(raw)...)
	errs = append(errs, checkTextLengths(raw, constraints)...)
	return errs
}

// ValidateFormattedText checks formatted text against the constraints. Every
// check runs independently so a single submission reports all of its
// violations at once: length over visible text only, per-word length, line
// count with block tags counting as breaks, restricted characters, markup
// well-formedness, the tag whitelist, the no-attributes rule, and the list
// structure rules.
func ValidateFormattedText(raw string, constraints *TextConstraints) []error {
	visible, markupErrs := scanFormattedText(raw)

	var errs []error
	errs = append(errs, markupErrs...)
	errs = append(errs, checkRestrictedCharacters(visible.text)...)
	errs = append(errs, checkTextLengths(visible.text, constraints)...)
	if constraints.MaxLines > 0 && visible.lines > constraints.MaxLines {
		errs = append(errs, &TooManyLinesError{MaxLines: constraints.MaxLines, ActualLines: visible.lines})
	}
	return errs
}

type visibleText struct {
	text  string
	lines int
}

// scanFormattedText tokenizes the markup once, collecting the visible text,
// the line count, and every structural violation.
func scanFormattedText(raw string) (visibleText, []error) {
	var (
		errs      []error
		text      strings.Builder
		lines     = 1
		openTags  []string
		listDepth int
		listItems []int
		malformed bool

		seenUnsupported = map[string]bool{}
	)

	reportMalformed := func(details string) {
		if !malformed {
			errs = append(errs, &MalformedMarkupError{Details: details})
			malformed = true
		}
	}

	z := html.NewTokenizer(strings.NewReader(raw))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				reportMalformed(z.Err().Error())
			}
			break
		}
		token := z.Token()
		switch tt {
		case html.TextToken:
			t := token.Data
			text.WriteString(t)
			lines += strings.Count(t, "\n")
			if strings.TrimSpace(t) != "" && len(openTags) > 0 {
				switch openTags[len(openTags)-1] {
				case "ul", "ol":
					errs = append(errs, &UnsupportedListChildError{Tag: "#text"})
				default:
					// A list item only counts once it has visible content.
					if listDepth > 0 && insideTag(openTags, "li") {
						listItems[len(listItems)-1]++
					}
				}
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			tag := token.Data
			if !formattedTextTags[tag] {
				if !seenUnsupported[tag] {
					errs = append(errs, &UnsupportedTagError{Tag: tag})
					seenUnsupported[tag] = true
				}
			}
			if len(token.Attr) > 0 {
				errs = append(errs, &AttributesNotAllowedError{Tag: tag})
			}
			// Only li may sit directly inside a list; a nested ul/ol is
			// reported as NestedListError below instead.
			if tag != "li" && tag != "ul" && tag != "ol" && len(openTags) > 0 &&
				(openTags[len(openTags)-1] == "ul" || openTags[len(openTags)-1] == "ol") {
				errs = append(errs, &UnsupportedListChildError{Tag: tag})
			}
			switch tag {
			case "br":
				lines++
				continue
			case "p":
				lines++
			case "ul", "ol":
				if listDepth > 0 {
					errs = append(errs, &NestedListError{})
				}
				listDepth++
				listItems = append(listItems, 0)
			case "li":
				lines++
				if listDepth == 0 {
					errs = append(errs, &UnsupportedTagError{Tag: tag})
				}
			}
			if tt == html.StartTagToken {
				openTags = append(openTags, tag)
			}
		case html.EndTagToken:
			tag := token.Data
			if len(openTags) == 0 || openTags[len(openTags)-1] != tag {
				reportMalformed(fmt.Sprintf("unexpected closing tag </%s>", tag))
				continue
			}
			openTags = openTags[:len(openTags)-1]
			if tag == "ul" || tag == "ol" {
				if listItems[len(listItems)-1] == 0 {
					errs = append(errs, &EmptyListError{})
				}
				listItems = listItems[:len(listItems)-1]
				listDepth--
			}
		}
	}
	if len(openTags) > 0 {
		reportMalformed(fmt.Sprintf("tag <%s> is never closed", openTags[len(openTags)-1]))
	}
	return visibleText{text: text.String(), lines: lines}, errs
}

// checkTextLengths counts symbols over the visible text only.
func checkTextLengths(text string, constraints *TextConstraints) []error {
	var errs []error
	if constraints.MaxSymbols > 0 {
		if n := len([]rune(text)); n > constraints.MaxSymbols {
			errs = append(errs, &TextTooLongError{MaxLength: constraints.MaxSymbols, ActualLength: n})
		}
	}
	if constraints.MaxSymbolsPerWord > 0 {
		longest := 0
		for _, word := range strings.FieldsFunc(text, unicode.IsSpace) {
			if n := len([]rune(word)); n > longest {
				longest = n
			}
		}
		if longest > constraints.MaxSymbolsPerWord {
			errs = append(errs, &WordTooLongError{MaxLength: constraints.MaxSymbolsPerWord, ActualLength: longest})
		}
	}
	return errs
}

// checkRestrictedCharacters reports non-breaking spaces and C0 control
// characters as distinct kinds. Newlines are legitimate line breaks and are
// excluded.
func checkRestrictedCharacters(text string) []error {
	var (
		errs     []error
		seenNBSP bool
		seenCtrl bool
	)
	for _, r := range text {
		if r == '\u00a0' && !seenNBSP {
			errs = append(errs, &NonBreakingSpaceError{})
			seenNBSP = true
		}
		if r < 0x20 && r != '\n' && !seenCtrl {
			errs = append(errs, &ControlCharacterError{Rune: r})
			seenCtrl = true
		}
	}
	return errs
}

// validateContentReference checks that a binary element references staged
// content.
func validateContentReference(raw string) []error {
	if raw == "" {
		return []error{&ArgumentError{Name: "Raw", Reason: "must reference uploaded content"}}
	}
	return nil
}

// validateImageValue re-checks at descriptor time what the upload path
// enforced at transfer time: the declared metadata must still satisfy the
// element's constraints.
func validateImageValue(raw, filename string, filesize int64, constraints *ImageConstraints) []error {
	var errs []error
	errs = append(errs, validateContentReference(raw)...)
	if filename == "" {
		errs = append(errs, ErrMissingFilename)
		return errs
	}
	if constraints.MaxFilenameLength > 0 && len(filename) > constraints.MaxFilenameLength {
		errs = append(errs, &FilenameTooLongError{MaxLength: constraints.MaxFilenameLength, ActualLength: len(filename)})
	}
	if constraints.MaxFilesize > 0 && filesize > constraints.MaxFilesize {
		errs = append(errs, &BinaryTooLargeError{MaxSize: constraints.MaxFilesize, DeclaredSize: filesize})
	}
	if len(constraints.SupportedFileFormats) > 0 {
		format := declaredFileFormat(filename)
		if !containsFormat(constraints.SupportedFileFormats, format) {
			errs = append(errs, &BinaryInvalidFormatError{Format: format, Supported: constraints.SupportedFileFormats})
		}
	}
	return errs
}

func validateCompositeImageValue(v *CompositeBitmapImageValue, constraints *ImageConstraints) []error {
	errs := validateImageValue(v.Raw, v.Filename, v.Filesize, constraints)
	if v.CropArea != nil && (v.CropArea.Width <= 0 || v.CropArea.Height <= 0) {
		errs = append(errs, &ArgumentError{Name: "CropArea", Reason: "width and height must be positive"})
	}
	for _, ssi := range v.SizeSpecificImages {
		if !containsInt(constraints.SizeSpecificSizes, ssi.Size) {
			errs = append(errs, &ArgumentError{Name: "SizeSpecificImages",
				Reason: fmt.Sprintf("size %d is not declared by the element", ssi.Size)})
		}
		if ssi.Raw == "" {
			errs = append(errs, &ArgumentError{Name: "SizeSpecificImages", Reason: "must reference uploaded content"})
		}
	}
	return errs
}

// ValidateBinaryHeader runs the first-pass checks on the opening bytes of an
// upload: actual format and dimensions against the declared format and the
// element's size constraints. targetSize is nonzero for size-specific
// renditions, which must be square and exactly that large.
func ValidateBinaryHeader(format FileFormat, head []byte, constraints *ImageConstraints, targetSize int) []error {
	switch format {
	case FileFormatPNG, FileFormatJPEG, FileFormatGIF:
		return validateBitmapHeader(format, head, constraints, targetSize)
	case FileFormatSVG:
		if !looksLikeXML(head) {
			return []error{&MalformedMarkupError{Details: "content does not begin with XML"}}
		}
		return nil
	case FileFormatHTML:
		// Articles are validated as markup only once fully assembled.
		return nil
	default:
		var supported []FileFormat
		if constraints != nil {
			supported = constraints.SupportedFileFormats
		}
		return []error{&BinaryInvalidFormatError{Format: format, Supported: supported}}
	}
}

func validateBitmapHeader(declared FileFormat, head []byte, constraints *ImageConstraints, targetSize int) []error {
	cfg, actual, err := image.DecodeConfig(bytes.NewReader(head))
	if err != nil {
		return []error{&ImageMalformedError{Format: declared, Err: err}}
	}
	var errs []error
	if FileFormat(actual) != declared {
		errs = append(errs, &ImageFormatMismatchError{Declared: declared, Actual: FileFormat(actual)})
	}
	size := ImageSize{Width: cfg.Width, Height: cfg.Height}

	if targetSize > 0 {
		if size.Width != size.Height {
			errs = append(errs, &ImageNotSquareError{Width: size.Width, Height: size.Height})
		} else if size.Width != targetSize {
			errs = append(errs, &ImageTargetSizeMismatchError{Target: targetSize, Actual: size.Width})
		}
		return errs
	}

	if constraints != nil {
		switch {
		case constraints.ImageSizeRange != nil:
			if !constraints.ImageSizeRange.Contains(size) {
				errs = append(errs, &ImageSizeOutOfRangeError{Size: size})
			}
		case len(constraints.ImageSizes) > 0:
			if !containsSize(constraints.ImageSizes, size) {
				errs = append(errs, &ImageSizeOutOfRangeError{Size: size})
			}
		}
	}
	return errs
}

// ValidateAssembledContent runs the second, stricter pass over the fully
// assembled upload. Bitmaps must decode end to end; vector images and
// articles must be well-formed markup. These checks are impossible from a
// partial first chunk.
func ValidateAssembledContent(format FileFormat, data []byte) error {
	switch format {
	case FileFormatPNG, FileFormatJPEG, FileFormatGIF:
		_, actual, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return &ImageMalformedError{Format: format, Err: err}
		}
		if FileFormat(actual) != format {
			return &ImageFormatMismatchError{Declared: format, Actual: FileFormat(actual)}
		}
		return nil
	case FileFormatSVG:
		return validateXMLWellFormed(data)
	case FileFormatHTML:
		return validateHTMLWellFormed(data)
	default:
		return &BinaryInvalidFormatError{Format: format}
	}
}

func looksLikeXML(head []byte) bool {
	trimmed := bytes.TrimLeftFunc(head, unicode.IsSpace)
	return bytes.HasPrefix(trimmed, []byte("<?xml")) || bytes.HasPrefix(trimmed, []byte("<svg"))
}

func validateXMLWellFormed(data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		_, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &MalformedMarkupError{Details: err.Error()}
		}
	}
}

func validateHTMLWellFormed(data []byte) error {
	z := html.NewTokenizer(bytes.NewReader(data))
	var open []string
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				return &MalformedMarkupError{Details: z.Err().Error()}
			}
			break
		}
		token := z.Token()
		switch tt {
		case html.StartTagToken:
			if !voidHTMLTags[token.Data] {
				open = append(open, token.Data)
			}
		case html.EndTagToken:
			if len(open) == 0 || open[len(open)-1] != token.Data {
				return &MalformedMarkupError{Details: fmt.Sprintf("unexpected closing tag </%s>", token.Data)}
			}
			open = open[:len(open)-1]
		}
	}
	if len(open) > 0 {
		return &MalformedMarkupError{Details: fmt.Sprintf("tag <%s> is never closed", open[len(open)-1])}
	}
	return nil
}

// Void elements never receive closing tags.
var voidHTMLTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

func insideTag(stack []string, tag string) bool {
	for _, t := range stack {
		if t == tag {
			return true
		}
	}
	return false
}

func containsSize(sizes []ImageSize, size ImageSize) bool {
	for _, s := range sizes {
		if s == size {
			return true
		}
	}
	return false
}
