package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// InkscapeConverter implements Converter using the Inkscape CLI (1.x)
type InkscapeConverter struct {
	binary string
}

// NewInkscapeConverter creates a new Inkscape converter
func NewInkscapeConverter() *InkscapeConverter {
	return &InkscapeConverter{binary: "inkscape"}
}

func (c *InkscapeConverter) Name() string {
	return "inkscape"
}

func (c *InkscapeConverter) IsAvailable() bool {
	_, err := exec.LookPath(c.binary)
	return err == nil
}

func (c *InkscapeConverter) SupportedFormats() []string {
	return []string{FormatPNG, FormatPDF}
}

// Convert exports each input separately. Multi-input PDF output is exported
// page by page and merged afterwards.
func (c *InkscapeConverter) Convert(ctx context.Context, inputs []string, outputPath string, options *Options) error {
	if len(inputs) == 0 {
		return ErrNoInput
	}
	if !c.IsAvailable() {
		return NewConverterError(c.Name(), "convert", fmt.Errorf("inkscape not found in PATH"))
	}

	if options == nil {
		options = DefaultOptions()
	}

	format := strings.ToLower(options.Format)
	switch format {
	case FormatPNG:
		if len(inputs) > 1 {
			return NewConverterError(c.Name(), "convert", fmt.Errorf("png output takes one input, got %d", len(inputs)))
		}
		return c.export(ctx, inputs[0], outputPath, format, options)
	case FormatPDF:
		if len(inputs) == 1 {
			return c.export(ctx, inputs[0], outputPath, format, options)
		}
	default:
		return NewConverterError(c.Name(), "convert", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format))
	}

	pages := make([]string, 0, len(inputs))
	defer func() {
		for _, p := range pages {
			os.Remove(p)
		}
	}()

	for i, in := range inputs {
		page := fmt.Sprintf("%s.page%d.pdf", strings.TrimSuffix(outputPath, filepath.Ext(outputPath)), i)
		if err := c.export(ctx, in, page, FormatPDF, options); err != nil {
			return err
		}
		pages = append(pages, page)
	}

	if err := MergePDFs(pages, outputPath); err != nil {
		return NewConverterError(c.Name(), "merge", err)
	}
	return nil
}

func (c *InkscapeConverter) export(ctx context.Context, input, outputPath, format string, options *Options) error {
	args := []string{
		input,
		"--export-filename=" + outputPath,
		"--export-type=" + format,
	}
	if format == FormatPNG && options.DPIX > 0 {
		args = append(args, "--export-dpi="+strconv.Itoa(options.DPIX))
	}

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = filepath.Dir(input)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return NewConverterError(c.Name(), "export", ctx.Err())
		}
		return NewConverterError(c.Name(), "export", fmt.Errorf("command failed: %w, output: %s", err, string(output)))
	}
	return nil
}
