package services

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/beevik/etree"
)

const (
	maxTitleLength = 50

	profileMarker = "profile"
	qrcodeMarker  = "qrcode"
)

var (
	// ErrValidation matches every validation failure.
	ErrValidation = errors.New("validation failed")

	dataURIPattern = regexp.MustCompile(`^data:[a-zA-Z0-9.+-]+/[a-zA-Z0-9.+-]+(;[a-zA-Z0-9=._+-]+)*;base64,`)
)

// ValidationError reports which request fields failed and why
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RenderRequest is the body of a render call
type RenderRequest struct {
	CreateQRCode *bool             `json:"create_qr_code,omitempty"`
	Fields       map[string]string `json:"fields"`
	FrontOnly    bool              `json:"front_only,omitempty"`
}

// WantsQRCode reports whether QR codes should be generated; defaults to true.
func (r *RenderRequest) WantsQRCode() bool {
	return r.CreateQRCode == nil || *r.CreateQRCode
}

// ValidatorService validates render requests and uploaded templates
type ValidatorService struct{}

// NewValidatorService creates a new validator service
func NewValidatorService() *ValidatorService {
	return &ValidatorService{}
}

// ValidateRenderRequest checks that image-valued fields carry data URIs.
// Profile fields always do; QR fields only when no QR code is generated.
func (v *ValidatorService) ValidateRenderRequest(req *RenderRequest) error {
	if req == nil || req.Fields == nil {
		return &ValidationError{Field: "fields", Message: "This field is required."}
	}

	var invalid []string
	for key, value := range req.Fields {
		needsURI := strings.Contains(key, profileMarker) ||
			(!req.WantsQRCode() && strings.Contains(key, qrcodeMarker))
		if needsURI && !IsDataURI(value) {
			invalid = append(invalid, key)
		}
	}

	if len(invalid) > 0 {
		sort.Strings(invalid)
		return &ValidationError{
			Field:   "fields",
			Message: fmt.Sprintf("Fields `%s` value should be in data uri format.", strings.Join(invalid, ", ")),
		}
	}
	return nil
}

// IsDataURI reports whether value has the form data:<mime>;base64,<payload>
// with a decodable payload.
func IsDataURI(value string) bool {
	loc := dataURIPattern.FindStringIndex(value)
	if loc == nil {
		return false
	}
	payload := value[loc[1]:]
	if payload == "" {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(payload)
	return err == nil
}

// ValidateTemplateUpload checks a card template upload: a short title and
// two well-formed SVG documents with the .svg extension.
func (v *ValidatorService) ValidateTemplateUpload(title string, files map[string]TemplateFile) error {
	if err := v.ValidateTitle(title); err != nil {
		return err
	}
	for _, field := range []string{"front_svg", "back_svg"} {
		f, ok := files[field]
		if !ok {
			return &ValidationError{Field: field, Message: field + ": This field is required."}
		}
		if err := v.ValidateSVGFile(field, f); err != nil {
			return err
		}
	}
	return nil
}

// TemplateFile is an uploaded SVG document
type TemplateFile struct {
	Filename string
	Content  []byte
}

func (v *ValidatorService) ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return &ValidationError{Field: "title", Message: "title: This field is required."}
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return &ValidationError{
			Field:   "title",
			Message: fmt.Sprintf("title: Ensure this field has no more than %d characters.", maxTitleLength),
		}
	}
	return nil
}

func (v *ValidatorService) ValidateSVGFile(field string, f TemplateFile) error {
	if !strings.EqualFold(filepath.Ext(f.Filename), ".svg") {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s: File extension %q is not allowed. Allowed extensions are: svg.", field, strings.TrimPrefix(filepath.Ext(f.Filename), ".")),
		}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(f.Content); err != nil {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s: Not a well-formed SVG document.", field)}
	}
	if root := doc.Root(); root == nil || root.Tag != "svg" {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s: Root element must be <svg>.", field)}
	}
	return nil
}
