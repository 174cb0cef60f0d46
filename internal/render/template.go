package render

import (
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/flosch/pongo2/v6"
)

var ErrTemplateSyntax = errors.New("template syntax error")

// contextKeyPattern matches the keys a template can reference.
var contextKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// noLoader refuses every template lookup so uploaded documents cannot read
// files through include, import or extends.
type noLoader struct{}

func (noLoader) Abs(base, name string) string { return name }

func (noLoader) Get(path string) (io.Reader, error) {
	return nil, fmt.Errorf("template loading is disabled: %s", path)
}

// templateEngine renders brace-syntax card templates. Undefined variables
// render as empty strings and values are XML-escaped.
type templateEngine struct {
	set *pongo2.TemplateSet
}

func newTemplateEngine() *templateEngine {
	set := pongo2.NewSet("card-templates", noLoader{})
	for _, tag := range []string{"include", "import", "extends", "ssi"} {
		// only fails if a template was already parsed, which cannot happen here
		_ = set.BanTag(tag)
	}
	return &templateEngine{set: set}
}

func (e *templateEngine) Render(text string, fields map[string]string) (string, error) {
	tpl, err := e.set.FromString(text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateSyntax, err)
	}

	ctx := pongo2.Context{}
	for k, v := range fields {
		if contextKeyPattern.MatchString(k) {
			ctx[k] = v
		}
	}

	out, err := tpl.Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateSyntax, err)
	}
	return out, nil
}
