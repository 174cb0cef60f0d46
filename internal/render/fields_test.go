package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frontTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="320" height="200">
  <image data-variable="profile_photo" x="10" y="10" width="80" height="80" xlink:href=""/>
  <text x="100" y="30">{{ name }}</text>
  <text x="100" y="60">{{ name|upper }} / {{ birthdate }}</text>
</svg>`

const backTemplate = `<svg xmlns="http://www.w3.org/2000/svg" width="320" height="200">
  <image data-variable="qrcode_1" x="10" y="10" width="120" height="120"/>
  <image data-variable="profile_photo" x="200" y="10" width="80" height="80"/>
  <text x="150" y="30">{{ name }}</text>
  {% for entry in programs %}<text>{{ entry.label }}</text>{% endfor %}
</svg>`

func TestExtractFields_OrderAndDedup(t *testing.T) {
	fields, err := ExtractFields([]byte(frontTemplate), []byte(backTemplate))
	require.NoError(t, err)

	assert.Equal(t, []Field{
		{Tag: "image", Name: "profile_photo"},
		{Tag: "image", Name: "qrcode_1"},
		{Tag: "text", Name: "name"},
		{Tag: "text", Name: "birthdate"},
		{Tag: "text", Name: "programs"},
	}, fields)
}

func TestExtractFields_BackMarkersPrecedeFrontVariables(t *testing.T) {
	front := `<svg xmlns="http://www.w3.org/2000/svg"><text>{{ name }}</text></svg>`
	back := `<svg xmlns="http://www.w3.org/2000/svg"><image data-variable="photo"/></svg>`

	fields, err := ExtractFields([]byte(front), []byte(back))
	require.NoError(t, err)

	assert.Equal(t, []Field{
		{Tag: "image", Name: "photo"},
		{Tag: "text", Name: "name"},
	}, fields)
}

func TestExtractFields_SameNameDifferentTagIsKept(t *testing.T) {
	doc := `<svg xmlns="http://www.w3.org/2000/svg"><text data-variable="name"/><text>{{ name }}</text><image data-variable="name"/></svg>`

	fields, err := ExtractFields([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, []Field{
		{Tag: "text", Name: "name"},
		{Tag: "image", Name: "name"},
	}, fields)
}

func TestExtractFields_InvalidDocument(t *testing.T) {
	_, err := ExtractFields([]byte("<svg><text></svg>"))
	assert.ErrorIs(t, err, ErrInvalidSVG)
}

func TestExtractFields_SkipsEmptyBack(t *testing.T) {
	fields, err := ExtractFields([]byte(`<svg><text>{{ a }}</text></svg>`), nil)
	require.NoError(t, err)
	assert.Equal(t, []Field{{Tag: "text", Name: "a"}}, fields)
}

func TestTagMarkers_PrefixedElements(t *testing.T) {
	doc := `<svg:svg xmlns:svg="http://www.w3.org/2000/svg"><svg:g><svg:image data-variable="photo"/></svg:g><svg:rect data-variable="badge"/></svg:svg>`

	fields, err := TagMarkers([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []Field{{Tag: "image", Name: "photo"}, {Tag: "rect", Name: "badge"}}, fields)
}

func TestBraceVariables(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"plain", "{{ a }} {{b}}", []string{"a", "b"}},
		{"whitespace control", "{{- a -}}", []string{"a"}},
		{"attribute lookup", "{{ person.name }}", []string{"person"}},
		{"subscript", "{{ person['name'] }} {{ row[idx] }}", []string{"person", "row", "idx"}},
		{"filters with args", "{{ a|default(b)|truncate(10) }}", []string{"a", "b"}},
		{"string literals", `{{ "x" ~ a ~ 'y z' }}`, []string{"a"}},
		{"for loop", "{% for item in items %}{{ item }}{{ loop.index }}{{ other }}{% endfor %}", []string{"items", "other"}},
		{"loop var leaves scope", "{% for x in xs %}{{ x }}{% endfor %}{{ x }}", []string{"xs", "x"}},
		{"set", "{% set full = first ~ ' ' ~ last %}{{ full }}", []string{"first", "last"}},
		{"if with test", "{% if age is defined and age > 18 %}{{ adult }}{% endif %}", []string{"age", "adult"}},
		{"is not", "{% if x is not none %}{% endif %}", []string{"x"}},
		{"dict literal", "{{ {'k': v}[key] }}", []string{"v", "key"}},
		{"function call", "{{ range(n) }}", []string{"n"}},
		{"kwargs", "{{ fmt(value, width=size) }}", []string{"value", "size"}},
		{"comment", "{# {{ hidden }} #}{{ shown }}", []string{"shown"}},
		{"raw", "{% raw %}{{ literal }}{% endraw %}{{ real }}", []string{"real"}},
		{"with", "{% with total = price * qty %}{{ total }}{% endwith %}", []string{"price", "qty"}},
		{"filter block", "{% filter upper %}{{ a }}{% endfilter %}", []string{"a"}},
		{"macro", "{% macro badge(label) %}{{ label }}{{ color }}{% endmacro %}", []string{"color"}},
		{"comparison not assignment", "{% if a == b %}{% endif %}", []string{"a", "b"}},
		{"xml escaped operators", "{% if score &gt; limit %}{% endif %}", []string{"score", "limit"}},
		{"not a block", "style { fill: red } {{ a }}", []string{"a"}},
		{"unterminated", "{{ a }} {{ b", []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BraceVariables(tt.text)
			names := make([]string, len(got))
			for i, f := range got {
				assert.Equal(t, TagText, f.Tag)
				names[i] = f.Name
			}
			if len(tt.want) == 0 {
				assert.Empty(t, names)
				return
			}
			assert.Equal(t, tt.want, names)
		})
	}
}
