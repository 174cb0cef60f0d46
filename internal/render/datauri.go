package render

import (
	"encoding/base64"
	"errors"
	"strings"
)

const (
	MimePDF = "application/pdf"
	MimePNG = "image/png"
	MimeSVG = "image/svg+xml"
)

var ErrInvalidDataURI = errors.New("invalid data URI")

// EncodeDataURI returns data as data:<mime>;base64,<payload>.
func EncodeDataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI splits a base64 data URI into its media type and payload.
// Parameters such as charset are dropped from the returned media type.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return "", nil, ErrInvalidDataURI
	}

	mime, _, _ := strings.Cut(strings.TrimSuffix(header, ";base64"), ";")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, errors.Join(ErrInvalidDataURI, err)
	}
	return mime, data, nil
}

// DecodeBase64Document accepts either a data URI or a bare base64 payload.
func DecodeBase64Document(value string) ([]byte, error) {
	if strings.HasPrefix(value, "data:") {
		_, data, err := DecodeDataURI(value)
		return data, err
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, errors.Join(ErrInvalidDataURI, err)
	}
	return data, nil
}
