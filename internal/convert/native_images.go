package convert

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	xdraw "golang.org/x/image/draw"
)

// placedImage is a decoded <image> and its viewport in user units.
type placedImage struct {
	img        image.Image
	x, y, w, h float64
	align      string
}

var (
	textElements = map[string]bool{"text": true, "tspan": true, "textPath": true}

	// content here is only drawn through references oksvg does not follow
	referencedContainers = map[string]bool{
		"defs": true, "symbol": true, "pattern": true,
		"mask": true, "clipPath": true, "marker": true,
	}
)

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedContent, fmt.Sprintf(format, args...))
}

// collectImages walks the document below root, rejecting content the native
// engine would silently drop, and detaches every <image> it finds.
func collectImages(root *etree.Element, baseDir string) ([]placedImage, error) {
	var (
		images []placedImage
		detach []*etree.Element
	)

	var walk func(el *etree.Element, transformed, referenced bool) error
	walk = func(el *etree.Element, transformed, referenced bool) error {
		for _, child := range el.ChildElements() {
			switch {
			case textElements[child.Tag]:
				if hasText(child) {
					return unsupported("<%s> elements are not drawn", child.Tag)
				}
				continue
			case child.Tag == "svg":
				return unsupported("nested <svg> elements are not drawn")
			case child.Tag == "foreignObject":
				return unsupported("<foreignObject> elements are not drawn")
			case child.Tag == "image":
				detach = append(detach, child)
				p, ok, err := placeImage(child, baseDir, transformed || child.SelectAttrValue("transform", "") != "", referenced)
				if err != nil {
					return err
				}
				if ok {
					images = append(images, p)
				}
				continue
			}

			if err := walk(child,
				transformed || child.SelectAttrValue("transform", "") != "",
				referenced || referencedContainers[child.Tag],
			); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(root, false, false); err != nil {
		return nil, err
	}
	for _, el := range detach {
		el.Parent().RemoveChild(el)
	}
	return images, nil
}

func placeImage(el *etree.Element, baseDir string, transformed, referenced bool) (placedImage, bool, error) {
	href := imageHref(el)
	if href == "" || el.SelectAttrValue("display", "") == "none" {
		return placedImage{}, false, nil
	}
	if transformed {
		return placedImage{}, false, unsupported("transformed <image> elements are not drawn")
	}
	if referenced {
		return placedImage{}, false, unsupported("<image> inside referenced content is not drawn")
	}

	img, err := loadImage(href, baseDir)
	if err != nil {
		return placedImage{}, false, err
	}

	b := img.Bounds()
	p := placedImage{
		img:   img,
		x:     parseCoordinate(el.SelectAttrValue("x", "")),
		y:     parseCoordinate(el.SelectAttrValue("y", "")),
		align: el.SelectAttrValue("preserveAspectRatio", "xMidYMid meet"),
	}
	var ok bool
	if p.w, ok = parseLength(el.SelectAttrValue("width", "")); !ok {
		p.w = float64(b.Dx())
	}
	if p.h, ok = parseLength(el.SelectAttrValue("height", "")); !ok {
		p.h = float64(b.Dy())
	}
	return p, true, nil
}

// imageHref prefers xlink:href over a plain href.
func imageHref(el *etree.Element) string {
	var plain string
	for _, a := range el.Attr {
		if a.Key != "href" {
			continue
		}
		if a.Space == "xlink" {
			return strings.TrimSpace(a.Value)
		}
		if a.Space == "" {
			plain = strings.TrimSpace(a.Value)
		}
	}
	return plain
}

func hasText(el *etree.Element) bool {
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			if strings.TrimSpace(t.Data) != "" {
				return true
			}
		case *etree.Element:
			if hasText(t) {
				return true
			}
		}
	}
	return false
}

// loadImage decodes a data URI or a file path relative to baseDir.
func loadImage(href, baseDir string) (image.Image, error) {
	var (
		data []byte
		err  error
	)

	switch {
	case strings.HasPrefix(href, "data:"):
		meta, payload, ok := strings.Cut(strings.TrimPrefix(href, "data:"), ",")
		if !ok {
			return nil, unsupported("malformed data URI in <image>")
		}
		if strings.HasSuffix(meta, ";base64") {
			data, err = base64.StdEncoding.DecodeString(strings.Join(strings.Fields(payload), ""))
		} else {
			var s string
			s, err = url.PathUnescape(payload)
			data = []byte(s)
		}
		if err != nil {
			return nil, unsupported("malformed data URI in <image>: %v", err)
		}
	case strings.HasPrefix(href, "file://"):
		data, err = os.ReadFile(strings.TrimPrefix(href, "file://"))
	case strings.Contains(href, "://"):
		return nil, unsupported("remote <image> %q is not fetched", href)
	default:
		path := href
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, unsupported("<image> is not a raster image: %v", err)
	}
	return img, nil
}

// compositeImages paints images over the rasterized vector content. vb is the
// root viewBox that maps user units onto dst.
func compositeImages(dst *image.RGBA, images []placedImage, vb []float64) {
	if len(images) == 0 {
		return
	}
	b := dst.Bounds()
	sx := float64(b.Dx()) / vb[2]
	sy := float64(b.Dy()) / vb[3]

	toPixels := func(x, y, w, h float64) image.Rectangle {
		return image.Rect(
			int(math.Round((x-vb[0])*sx)), int(math.Round((y-vb[1])*sy)),
			int(math.Round((x+w-vb[0])*sx)), int(math.Round((y+h-vb[1])*sy)),
		)
	}

	for _, p := range images {
		viewport := toPixels(p.x, p.y, p.w, p.h).Intersect(b)
		if viewport.Empty() {
			continue
		}
		x, y, w, h := p.fit()
		target := toPixels(x, y, w, h)
		clip := dst.SubImage(viewport).(*image.RGBA)
		xdraw.ApproxBiLinear.Scale(clip, target, p.img, p.img.Bounds(), xdraw.Over, nil)
	}
}

// fit applies preserveAspectRatio and returns the drawn box in user units.
func (p placedImage) fit() (x, y, w, h float64) {
	fields := strings.Fields(p.align)
	if len(fields) == 0 || fields[0] == "none" {
		return p.x, p.y, p.w, p.h
	}

	b := p.img.Bounds()
	iw, ih := float64(b.Dx()), float64(b.Dy())
	if iw == 0 || ih == 0 {
		return p.x, p.y, p.w, p.h
	}

	scale := math.Min(p.w/iw, p.h/ih)
	if len(fields) > 1 && fields[1] == "slice" {
		scale = math.Max(p.w/iw, p.h/ih)
	}
	w, h = iw*scale, ih*scale

	ax, ay := 0.5, 0.5
	if align := fields[0]; len(align) == 8 {
		ax = alignFactor(align[1:4])
		ay = alignFactor(align[5:8])
	}
	return p.x + (p.w-w)*ax, p.y + (p.h-h)*ay, w, h
}

func alignFactor(v string) float64 {
	switch v {
	case "Min":
		return 0
	case "Max":
		return 1
	default:
		return 0.5
	}
}

func parseCoordinate(v string) float64 {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return n
}
