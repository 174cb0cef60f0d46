package convert

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// RSVGConverter implements Converter using rsvg-convert
type RSVGConverter struct {
	binary string
}

// NewRSVGConverter creates a new RSVG converter
func NewRSVGConverter() *RSVGConverter {
	return &RSVGConverter{binary: "rsvg-convert"}
}

// Name returns the name of this converter
func (c *RSVGConverter) Name() string {
	return "rsvg-convert"
}

// IsAvailable checks if rsvg-convert is available in PATH
func (c *RSVGConverter) IsAvailable() bool {
	_, err := exec.LookPath(c.binary)
	return err == nil
}

// SupportedFormats returns formats supported by rsvg-convert
func (c *RSVGConverter) SupportedFormats() []string {
	return []string{FormatPNG, FormatPDF}
}

// Convert runs rsvg-convert. For PDF all inputs go to a single invocation,
// which writes one page per input.
func (c *RSVGConverter) Convert(ctx context.Context, inputs []string, outputPath string, options *Options) error {
	if len(inputs) == 0 {
		return ErrNoInput
	}
	if !c.IsAvailable() {
		return NewConverterError(c.Name(), "convert", fmt.Errorf("rsvg-convert not found in PATH"))
	}

	if options == nil {
		options = DefaultOptions()
	}

	args, err := c.args(inputs, outputPath, options)
	if err != nil {
		return NewConverterError(c.Name(), "convert", err)
	}

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = filepath.Dir(inputs[0])
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return NewConverterError(c.Name(), "convert", ctx.Err())
		}
		return NewConverterError(c.Name(), "convert", fmt.Errorf("command failed: %w, output: %s", err, string(output)))
	}

	return nil
}

func (c *RSVGConverter) args(inputs []string, outputPath string, options *Options) ([]string, error) {
	args := []string{}

	format := strings.ToLower(options.Format)
	switch format {
	case FormatPNG:
		if len(inputs) > 1 {
			return nil, fmt.Errorf("png output takes one input, got %d", len(inputs))
		}
		args = append(args, "--format=png")
	case FormatPDF:
		args = append(args, "--format=pdf")
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if options.DPIX > 0 {
		args = append(args, "--dpi-x="+strconv.Itoa(options.DPIX))
	}
	if options.DPIY > 0 {
		args = append(args, "--dpi-y="+strconv.Itoa(options.DPIY))
	}

	args = append(args, "--output="+outputPath)
	args = append(args, inputs...)
	return args, nil
}
