package render

import (
	"io"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

const xlinkNamespace = "http://www.w3.org/1999/xlink"

// replacementAttrs are carried from a marker onto the element that replaces it.
var replacementAttrs = []string{DataVariableAttr, "height", "width", "x", "y", "id"}

// charsetReader lets documents declare a non-UTF-8 encoding.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	return charset.NewReaderLabel(label, input)
}

// attrValue looks an attribute up by exact prefix. etree's SelectAttr treats
// an empty prefix as a wildcard, which would confuse href with xlink:href.
func attrValue(el *etree.Element, space, key string) (string, bool) {
	for _, a := range el.Attr {
		if a.Space == space && a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

func setAttr(el *etree.Element, space, key, value string) {
	for i := range el.Attr {
		if el.Attr[i].Space == space && el.Attr[i].Key == key {
			el.Attr[i].Value = value
			return
		}
	}
	el.Attr = append(el.Attr, etree.Attr{Space: space, Key: key, Value: value})
}

// setLink points an element at target through xlink:href. A plain SVG2 href
// already present is kept in sync, and the document root gains the xlink
// namespace declaration if it lacks one.
func setLink(doc *etree.Document, el *etree.Element, target string) {
	setAttr(el, "xlink", "href", target)
	if _, ok := attrValue(el, "", "href"); ok {
		setAttr(el, "", "href", target)
	}
	if root := doc.Root(); root != nil {
		if _, ok := attrValue(root, "xmlns", "xlink"); !ok {
			setAttr(root, "xmlns", "xlink", xlinkNamespace)
		}
	}
}

// replaceNode puts replacement where old was, copying the non-empty keep
// attributes from old. It reports false when old has no parent.
func replaceNode(old, replacement *etree.Element, keep []string) bool {
	parent := old.Parent()
	if parent == nil {
		return false
	}

	for _, key := range keep {
		if v, ok := attrValue(old, "", key); ok && v != "" {
			setAttr(replacement, "", key, v)
		}
	}

	idx := old.Index()
	parent.InsertChildAt(idx+1, replacement)
	parent.RemoveChild(old)
	return true
}

// firstSVGElement returns a detached copy of the outermost svg element of
// an SVG document or fragment.
func firstSVGElement(data []byte) (*etree.Element, error) {
	d, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	root := d.Root()
	if root.Tag == "svg" {
		return root.Copy(), nil
	}
	if el := root.FindElement(".//svg"); el != nil {
		return el.Copy(), nil
	}
	return nil, ErrInvalidSVG
}
