package convert

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/jung-kurt/gofpdf"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const cssPixelsPerInch = 96.0

// NativeConverter rasterizes SVG in-process with oksvg and assembles PDFs
// with gofpdf. Raster <image> elements are composited over the vector
// drawing. Documents with text or other content oksvg cannot draw fail with
// ErrUnsupportedContent.
type NativeConverter struct{}

func NewNativeConverter() *NativeConverter {
	return &NativeConverter{}
}

func (c *NativeConverter) Name() string {
	return "native"
}

func (c *NativeConverter) IsAvailable() bool {
	return true
}

func (c *NativeConverter) SupportedFormats() []string {
	return []string{FormatPNG, FormatPDF}
}

func (c *NativeConverter) Convert(ctx context.Context, inputs []string, outputPath string, options *Options) error {
	if len(inputs) == 0 {
		return ErrNoInput
	}
	if options == nil {
		options = DefaultOptions()
	}

	switch strings.ToLower(options.Format) {
	case FormatPNG:
		if len(inputs) > 1 {
			return NewConverterError(c.Name(), "convert", fmt.Errorf("png output takes one input, got %d", len(inputs)))
		}
		page, err := c.rasterize(ctx, inputs[0], options)
		if err != nil {
			return err
		}
		if err := os.WriteFile(outputPath, page.png, 0o644); err != nil {
			return NewConverterError(c.Name(), "write", err)
		}
		return nil
	case FormatPDF:
		return c.writePDF(ctx, inputs, outputPath, options)
	default:
		return NewConverterError(c.Name(), "convert", fmt.Errorf("%w: %s", ErrUnsupportedFormat, options.Format))
	}
}

type rasterPage struct {
	png []byte
	// size in CSS pixels
	width, height float64
}

func (c *NativeConverter) rasterize(ctx context.Context, input string, options *Options) (*rasterPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewConverterError(c.Name(), "rasterize", err)
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return nil, NewConverterError(c.Name(), "read", err)
	}

	doc, err := prepareDocument(data, filepath.Dir(input))
	if err != nil {
		return nil, NewConverterError(c.Name(), "parse", err)
	}
	width, height := doc.width, doc.height

	icon, err := oksvg.ReadIconStream(bytes.NewReader(doc.data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, NewConverterError(c.Name(), "parse", err)
	}

	dpiX, dpiY := options.DPIX, options.DPIY
	if dpiX <= 0 {
		dpiX = int(cssPixelsPerInch)
	}
	if dpiY <= 0 {
		dpiY = int(cssPixelsPerInch)
	}
	pxW := int(math.Max(1, math.Round(width*float64(dpiX)/cssPixelsPerInch)))
	pxH := int(math.Max(1, math.Round(height*float64(dpiY)/cssPixelsPerInch)))

	icon.SetTarget(0, 0, float64(pxW), float64(pxH))

	rgba := image.NewRGBA(image.Rect(0, 0, pxW, pxH))
	scanner := rasterx.NewScannerGV(pxW, pxH, rgba, rgba.Bounds())
	raster := rasterx.NewDasher(pxW, pxH, scanner)
	icon.Draw(raster, 1.0)
	compositeImages(rgba, doc.images, doc.viewBox)

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, NewConverterError(c.Name(), "encode", err)
	}

	return &rasterPage{png: buf.Bytes(), width: width, height: height}, nil
}

func (c *NativeConverter) writePDF(ctx context.Context, inputs []string, outputPath string, options *Options) error {
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	for i, in := range inputs {
		page, err := c.rasterize(ctx, in, options)
		if err != nil {
			return err
		}

		w := page.width * 72 / cssPixelsPerInch
		h := page.height * 72 / cssPixelsPerInch
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: h})

		name := "page-" + strconv.Itoa(i) + "-" + filepath.Base(in)
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(page.png))
		pdf.ImageOptions(name, 0, 0, w, h, false, opts, 0, "")
	}

	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		return NewConverterError(c.Name(), "write", err)
	}
	return nil
}

type nativeDocument struct {
	data []byte
	// size in CSS pixels
	width, height float64
	viewBox       []float64
	images        []placedImage
}

// prepareDocument makes sure the root carries a viewBox, which oksvg needs to
// scale the drawing, and detaches the <image> elements for compositing.
func prepareDocument(data []byte, baseDir string) (*nativeDocument, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("empty document")
	}

	width, wok := parseLength(root.SelectAttrValue("width", ""))
	height, hok := parseLength(root.SelectAttrValue("height", ""))
	vb := parseViewBox(root.SelectAttrValue("viewBox", ""))

	switch {
	case vb != nil && (!wok || !hok):
		width, height = vb[2], vb[3]
	case vb == nil && wok && hok:
		vb = []float64{0, 0, width, height}
		root.CreateAttr("viewBox", fmt.Sprintf("0 0 %g %g", width, height))
	case vb == nil:
		width, height = 100, 100
		vb = []float64{0, 0, 100, 100}
		root.CreateAttr("viewBox", "0 0 100 100")
	}

	images, err := collectImages(root, baseDir)
	if err != nil {
		return nil, err
	}

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return &nativeDocument{data: out, width: width, height: height, viewBox: vb, images: images}, nil
}

func parseViewBox(v string) []float64 {
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) != 4 {
		return nil
	}
	out := make([]float64, 4)
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil
		}
		out[i] = n
	}
	if out[2] <= 0 || out[3] <= 0 {
		return nil
	}
	return out
}

// parseLength converts an SVG length to CSS pixels. Percentages are not lengths here.
func parseLength(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasSuffix(v, "%") {
		return 0, false
	}

	units := []struct {
		suffix string
		factor float64
	}{
		{"px", 1},
		{"pt", cssPixelsPerInch / 72},
		{"pc", cssPixelsPerInch / 6},
		{"mm", cssPixelsPerInch / 25.4},
		{"cm", cssPixelsPerInch / 2.54},
		{"in", cssPixelsPerInch},
	}
	factor := 1.0
	for _, u := range units {
		if strings.HasSuffix(v, u.suffix) {
			v = strings.TrimSuffix(v, u.suffix)
			factor = u.factor
			break
		}
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n * factor, true
}
