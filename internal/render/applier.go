package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/Jainish-S/playground/apps/card-generator-go/internal/logging"
	"github.com/beevik/etree"
)

const (
	tagImage      = "image"
	qrcodeMarker  = "qrcode"
	svgDataPrefix = "data:" + MimeSVG
)

// QREncoder writes a QR code image for value into dir and returns the file name.
type QREncoder interface {
	WritePNG(dir, value string) (string, error)
}

// markerKind is the closed set of data-variable element kinds.
type markerKind int

const (
	markerUnsupported markerKind = iota
	markerText
	markerImage
	markerQRImage
)

func (k markerKind) String() string {
	switch k {
	case markerText:
		return "text"
	case markerImage:
		return "image"
	case markerQRImage:
		return "qrcode"
	default:
		return "unsupported"
	}
}

func classifyMarker(tag, name string) markerKind {
	switch tag {
	case TagText:
		return markerText
	case tagImage:
		if strings.Contains(name, qrcodeMarker) {
			return markerQRImage
		}
		return markerImage
	default:
		return markerUnsupported
	}
}

// Applier fills a card template with field values.
type Applier struct {
	engine *templateEngine
	qr     QREncoder
	log    logging.Logger
}

func NewApplier(qr QREncoder, log logging.Logger) *Applier {
	if log == nil {
		log = logging.Nop()
	}
	return &Applier{engine: newTemplateEngine(), qr: qr, log: log}
}

// Apply renders the brace template with fields, then substitutes every
// data-variable element. Generated QR images are written into dir and
// referenced by file name. Missing values and unsupported elements are
// logged and left untouched.
func (a *Applier) Apply(ctx context.Context, doc []byte, fields map[string]string, createQRCode bool, dir string) (string, error) {
	text, err := a.engine.Render(string(doc), fields)
	if err != nil {
		return "", err
	}

	d, err := parseDocument([]byte(text))
	if err != nil {
		return "", err
	}

	for _, el := range markedElements(d.Root()) {
		name := el.SelectAttrValue(DataVariableAttr, "")
		value := fields[name]
		if value == "" {
			a.log.Warn(ctx, "No data available", "field", name, "tag", el.Tag)
			continue
		}

		switch kind := classifyMarker(el.Tag, name); kind {
		case markerText:
			a.log.Warn(ctx, "Text tag detected", "field", name)
		case markerImage:
			setLink(d, el, value)
		case markerQRImage:
			if err := a.applyQRCode(ctx, d, el, value, createQRCode, dir); err != nil {
				return "", err
			}
		default:
			a.log.Warn(ctx, "Tag is not supported", "field", name, "tag", el.Tag)
		}
	}

	out, err := d.WriteToString()
	if err != nil {
		return "", fmt.Errorf("failed to serialize SVG: %w", err)
	}
	return out, nil
}

func (a *Applier) applyQRCode(ctx context.Context, d *etree.Document, el *etree.Element, value string, createQRCode bool, dir string) error {
	switch {
	case createQRCode:
		name, err := a.qr.WritePNG(dir, value)
		if err != nil {
			return err
		}
		setLink(d, el, name)
	case strings.HasPrefix(value, svgDataPrefix):
		_, data, err := DecodeDataURI(value)
		if err != nil {
			a.log.Warn(ctx, "QR code SVG is not a valid data URI", "field", el.SelectAttrValue(DataVariableAttr, ""), "error", err)
			return nil
		}
		svg, err := firstSVGElement(data)
		if err != nil {
			a.log.Warn(ctx, "QR code data holds no svg element", "field", el.SelectAttrValue(DataVariableAttr, ""), "error", err)
			return nil
		}
		if !replaceNode(el, svg, replacementAttrs) {
			a.log.Warn(ctx, "Cannot replace document root", "field", el.SelectAttrValue(DataVariableAttr, ""))
		}
	default:
		setLink(d, el, value)
	}
	return nil
}
