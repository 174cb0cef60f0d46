package render

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode"

	"github.com/beevik/etree"
	"github.com/samber/lo"
)

const (
	// DataVariableAttr marks an element whose content is supplied at render time.
	DataVariableAttr = "data-variable"

	TagText = "text"
)

var ErrInvalidSVG = errors.New("invalid SVG document")

// Field describes one fillable slot of a card template.
type Field struct {
	Tag  string `json:"tag"`
	Name string `json:"name"`
}

// ExtractFields returns the data-variable markers of all documents in
// order, followed by the template variables of all documents. Duplicates are
// dropped, keeping the first occurrence.
func ExtractFields(docs ...[]byte) ([]Field, error) {
	var markers, variables []Field
	for _, doc := range docs {
		if len(doc) == 0 {
			continue
		}
		found, err := TagMarkers(doc)
		if err != nil {
			return nil, err
		}
		markers = append(markers, found...)
		variables = append(variables, BraceVariables(string(doc))...)
	}
	return lo.Uniq(append(markers, variables...)), nil
}

// TagMarkers lists elements carrying a data-variable attribute in document order.
func TagMarkers(doc []byte) ([]Field, error) {
	d, err := parseDocument(doc)
	if err != nil {
		return nil, err
	}

	return lo.Map(markedElements(d.Root()), func(el *etree.Element, _ int) Field {
		return Field{Tag: el.Tag, Name: el.SelectAttrValue(DataVariableAttr, "")}
	}), nil
}

// BraceVariables lists the template variables a document reads from its
// context, in order of first reference. Loop and assignment targets, filter
// and test names, attribute lookups and called names are not included.
func BraceVariables(text string) []Field {
	names := newVariableScanner().scan(text)
	return lo.Map(names, func(name string, _ int) Field {
		return Field{Tag: TagText, Name: name}
	})
}

func parseDocument(doc []byte) (*etree.Document, error) {
	d := etree.NewDocument()
	d.ReadSettings.CharsetReader = charsetReader
	if err := d.ReadFromBytes(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSVG, err)
	}
	if d.Root() == nil {
		return nil, fmt.Errorf("%w: no root element", ErrInvalidSVG)
	}
	return d, nil
}

func markedElements(root *etree.Element) []*etree.Element {
	var out []*etree.Element
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		if el.SelectAttr(DataVariableAttr) != nil {
			out = append(out, el)
		}
		for _, child := range el.ChildElements() {
			walk(child)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

var templateKeywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true,
	"if": true, "else": true, "elif": true, "endif": true,
	"for": true, "endfor": true, "empty": true,
	"set": true, "endset": true, "with": true, "endwith": true,
	"macro": true, "endmacro": true, "call": true, "endcall": true,
	"filter": true, "endfilter": true, "block": true, "endblock": true,
	"extends": true, "include": true, "import": true, "from": true, "as": true,
	"autoescape": true, "endautoescape": true, "recursive": true, "only": true,
	"true": true, "false": true, "none": true, "True": true, "False": true, "None": true,
	"raw": true, "endraw": true, "comment": true, "endcomment": true,
}

type tokenKind int

const (
	tokName tokenKind = iota
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

type variableScanner struct {
	scopes []map[string]bool
	seen   map[string]bool
	order  []string
}

func newVariableScanner() *variableScanner {
	return &variableScanner{
		scopes: []map[string]bool{{}},
		seen:   map[string]bool{},
	}
}

func (s *variableScanner) scan(text string) []string {
	rawDepth := 0
	for {
		start := strings.Index(text, "{")
		if start < 0 || start+1 >= len(text) {
			break
		}
		var closer string
		switch text[start+1] {
		case '{':
			closer = "}}"
		case '%':
			closer = "%}"
		case '#':
			closer = "#}"
		default:
			text = text[start+1:]
			continue
		}

		end := strings.Index(text[start+2:], closer)
		if end < 0 {
			break
		}
		body := text[start+2 : start+2+end]
		text = text[start+2+end+2:]

		if closer == "#}" {
			continue
		}
		tokens := lex(html.UnescapeString(strings.Trim(body, "-+")))

		if closer == "%}" && len(tokens) > 0 {
			switch tokens[0].text {
			case "raw", "comment":
				rawDepth++
				continue
			case "endraw", "endcomment":
				rawDepth--
				continue
			}
		}
		if rawDepth > 0 {
			continue
		}

		if closer == "}}" {
			s.references(tokens)
		} else {
			s.statement(tokens)
		}
	}
	return s.order
}

func (s *variableScanner) declared(name string) bool {
	for _, scope := range s.scopes {
		if scope[name] {
			return true
		}
	}
	return false
}

func (s *variableScanner) declare(names ...string) {
	for _, n := range names {
		s.scopes[len(s.scopes)-1][n] = true
	}
}

func (s *variableScanner) push(names ...string) {
	s.scopes = append(s.scopes, map[string]bool{})
	s.declare(names...)
}

func (s *variableScanner) pop() {
	if len(s.scopes) > 1 {
		s.scopes = s.scopes[:len(s.scopes)-1]
	}
}

func (s *variableScanner) statement(tokens []token) {
	if len(tokens) == 0 {
		return
	}
	switch tokens[0].text {
	case "for":
		in := indexOf(tokens, "in")
		if in < 0 {
			return
		}
		s.references(tokens[in+1:])
		s.push(append(names(tokens[1:in]), "loop", "forloop")...)
	case "endfor", "endwith", "endmacro", "endcall", "endfilter":
		s.pop()
	case "set":
		eq := indexOf(tokens, "=")
		if eq < 0 {
			// block assignment: {% set x %}...{% endset %}
			s.declare(names(tokens[1:])...)
			return
		}
		s.references(tokens[eq+1:])
		s.declare(names(tokens[1:eq])...)
	case "with":
		var declared []string
		var exprs []token
		rest := tokens[1:]
		for i := 0; i < len(rest); i++ {
			switch {
			case i+1 < len(rest) && rest[i].kind == tokName && rest[i+1].text == "=":
				declared = append(declared, rest[i].text)
				i++
			case rest[i].text == "as" && i+1 < len(rest):
				declared = append(declared, rest[i+1].text)
				i++
			default:
				exprs = append(exprs, rest[i])
			}
		}
		s.references(exprs)
		s.push(declared...)
	case "macro":
		if len(tokens) > 1 {
			s.declare(tokens[1].text)
		}
		var args []string
		for i := 2; i < len(tokens); i++ {
			if tokens[i].kind == tokName && (tokens[i-1].text == "(" || tokens[i-1].text == ",") {
				args = append(args, tokens[i].text)
			}
		}
		s.push(args...)
	case "call":
		s.references(tokens[1:])
		s.push()
	case "filter":
		s.push()
	case "import", "from", "extends", "include", "block", "endblock", "autoescape", "endautoescape":
		return
	default:
		s.references(tokens)
	}
}

// references records every free name in an expression.
func (s *variableScanner) references(tokens []token) {
	for i, t := range tokens {
		if t.kind != tokName || templateKeywords[t.text] {
			continue
		}
		if i > 0 {
			switch tokens[i-1].text {
			case ".", "|", "is":
				continue
			}
			if tokens[i-1].text == "not" && i > 1 && tokens[i-2].text == "is" {
				continue
			}
		}
		if i+1 < len(tokens) {
			next := tokens[i+1].text
			if next == "(" || next == "=" {
				continue
			}
		}
		if s.declared(t.text) || s.seen[t.text] {
			continue
		}
		s.seen[t.text] = true
		s.order = append(s.order, t.text)
	}
}

func lex(src string) []token {
	var tokens []token
	runes := []rune(src)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '"' || r == '\'':
			j := i + 1
			for j < len(runes) && runes[j] != r {
				if runes[j] == '\\' {
					j++
				}
				j++
			}
			tokens = append(tokens, token{kind: tokString, text: string(runes[i:min(j+1, len(runes))])})
			i = j + 1
		case r == '_' || unicode.IsLetter(r):
			j := i
			for j < len(runes) && (runes[j] == '_' || unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j])) {
				j++
			}
			tokens = append(tokens, token{kind: tokName, text: string(runes[i:j])})
			i = j
		case unicode.IsDigit(r):
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.' || runes[j] == '_') {
				j++
			}
			tokens = append(tokens, token{kind: tokNumber, text: string(runes[i:j])})
			i = j
		default:
			// two-character operators must not read as "=" assignments
			if i+1 < len(runes) {
				pair := string(runes[i : i+2])
				switch pair {
				case "==", "!=", "<=", ">=", "//", "**":
					tokens = append(tokens, token{kind: tokPunct, text: pair})
					i += 2
					continue
				}
			}
			tokens = append(tokens, token{kind: tokPunct, text: string(r)})
			i++
		}
	}
	return tokens
}

func indexOf(tokens []token, text string) int {
	for i, t := range tokens {
		if t.kind != tokString && t.text == text {
			return i
		}
	}
	return -1
}

func names(tokens []token) []string {
	var out []string
	for _, t := range tokens {
		if t.kind == tokName {
			out = append(out, t.text)
		}
	}
	return out
}
