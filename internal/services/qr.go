package services

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

const (
	// qrModuleSize is the edge length in pixels of one QR module
	qrModuleSize = 100

	qrFileSuffix = "-qrcode.png"
)

// ErrQRCodeCapacity is returned when a payload does not fit in any QR symbol
// at the configured error-correction level.
var ErrQRCodeCapacity = errors.New("QR code value exceed limit")

// QRService handles QR code generation
type QRService struct{}

// NewQRService creates a new QR service
func NewQRService() *QRService {
	return &QRService{}
}

// GeneratePNG encodes value as a level-Q QR code with no quiet zone,
// 100 px per module.
func (s *QRService) GeneratePNG(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty QR code value")
	}

	// qrcode.High is ~25% recovery, i.e. level Q
	qr, err := qrcode.New(value, qrcode.High)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQRCodeCapacity, err)
	}
	qr.DisableBorder = true

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(-qrModuleSize)); err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return buf.Bytes(), nil
}

// WritePNG writes the QR code for value into dir under a fresh random name
// and returns that name.
func (s *QRService) WritePNG(dir, value string) (string, error) {
	data, err := s.GeneratePNG(value)
	if err != nil {
		return "", err
	}

	name := strings.ReplaceAll(uuid.NewString(), "-", "") + qrFileSuffix
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write QR code: %w", err)
	}
	return name, nil
}
