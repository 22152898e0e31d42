// Package render turns a view name and its data into page text.
package render

import (
	"bytes"
	"embed"
	"html/template"

	"github.com/jingkaihe/gameward/internal/errx"
)

const (
	ViewLogin    = "login"
	ViewConsole  = "console"
	ViewOffline  = "offline"
	ViewNotFound = "not_found"
	ViewError    = "error"
)

// Data is the context every view receives.
type Data struct {
	Title string
	// Error is shown inline on the login view.
	Error string
	Lines []string
	// Message is used by the error view.
	Message string
}

// Renderer renders named views.
type Renderer interface {
	Render(view string, data Data) (string, error)
}

//go:embed views/*.html
var embeddedViews embed.FS

// Templates renders the embedded HTML views.
type Templates struct {
	views map[string]*template.Template
}

// NewTemplates parses every embedded view together with the shared layout.
func NewTemplates() (*Templates, error) {
	t := &Templates{views: make(map[string]*template.Template)}
	for _, name := range []string{ViewLogin, ViewConsole, ViewOffline, ViewNotFound, ViewError} {
		tmpl, err := template.ParseFS(embeddedViews, "views/layout.html", "views/"+name+".html")
		if err != nil {
			return nil, errx.With(ErrParseView, " %s: %w", name, err)
		}
		t.views[name] = tmpl
	}
	return t, nil
}

func (t *Templates) Render(view string, data Data) (string, error) {
	tmpl, ok := t.views[view]
	if !ok {
		return "", errx.With(ErrUnknownView, ": %s", view)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", errx.With(ErrRenderView, " %s: %w", view, err)
	}
	return buf.String(), nil
}
