// Package convert turns finalized SVG documents into PNG and PDF files.
//
// Conversion is delegated to an external engine (rsvg-convert or inkscape)
// when one is installed, with a pure-Go engine as the last fallback.
package convert

import (
	"context"
	"errors"
	"fmt"
)

const (
	FormatPNG = "png"
	FormatPDF = "pdf"
)

var (
	// ErrNoInput is returned when a conversion is requested with an empty input list.
	ErrNoInput = errors.New("no SVG to render")

	// ErrConversionFailed matches every *ConverterError.
	ErrConversionFailed = errors.New("conversion failed")

	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrUnsupportedContent is returned by engines that cannot draw part of a document.
	ErrUnsupportedContent = errors.New("unsupported SVG content")
)

// Converter defines the interface for converting SVG files to other formats
type Converter interface {
	// Name returns the name of the converter
	Name() string

	// IsAvailable checks if the converter is available on the system
	IsAvailable() bool

	// SupportedFormats returns the list of output formats this converter supports
	SupportedFormats() []string

	// Convert converts the inputs into outputPath. PNG output takes exactly
	// one input, PDF output produces one page per input in order.
	Convert(ctx context.Context, inputs []string, outputPath string, options *Options) error
}

// Options holds options for SVG conversion
type Options struct {
	// Output format (png, pdf)
	Format string

	// Horizontal and vertical resolution
	DPIX int
	DPIY int
}

// DefaultOptions returns default conversion options
func DefaultOptions() *Options {
	return &Options{
		Format: FormatPNG,
		DPIX:   96,
		DPIY:   96,
	}
}

// ConverterError represents an error from a converter
type ConverterError struct {
	Converter string
	Operation string
	Err       error
}

func (e *ConverterError) Error() string {
	return fmt.Sprintf("%s converter %s failed: %v", e.Converter, e.Operation, e.Err)
}

func (e *ConverterError) Unwrap() error {
	return e.Err
}

func (e *ConverterError) Is(target error) bool {
	return target == ErrConversionFailed
}

// NewConverterError creates a new converter error
func NewConverterError(converter, operation string, err error) error {
	return &ConverterError{
		Converter: converter,
		Operation: operation,
		Err:       err,
	}
}

func supportsFormat(c Converter, format string) bool {
	for _, f := range c.SupportedFormats() {
		if f == format {
			return true
		}
	}
	return false
}
