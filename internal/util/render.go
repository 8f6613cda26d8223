package util

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"
)

const (
	layoutFile   = "templates/layout.html"
	partialsFile = "templates/partials.html"
)

// Renderer holds one parsed template set per page, each combining the
// layout, the shared partials and the page itself.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses every page under templates/ in fsys. extra funcs are
// merged over the defaults.
func NewRenderer(fsys fs.FS, extra template.FuncMap) (*Renderer, error) {
	funcs := template.FuncMap{
		"date":       FormatDate,
		"linebreaks": Linebreaks,
		"year":       func() int { return time.Now().Year() },
		"mediaURL":   func(key string) string { return key },
	}
	for k, v := range extra {
		funcs[k] = v
	}

	names, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, err
	}
	r := &Renderer{pages: map[string]*template.Template{}}
	for _, n := range names {
		if n == layoutFile || n == partialsFile {
			continue
		}
		t, err := template.New(path.Base(n)).Funcs(funcs).ParseFS(fsys, layoutFile, partialsFile, n)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", n, err)
		}
		r.pages[path.Base(n)] = t
	}
	return r, nil
}

// Execute writes the page to out.
func (r *Renderer) Execute(out io.Writer, name string, data any) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return t.ExecuteTemplate(out, "base", data)
}

// Render executes into a buffer first so a failing template never leaves a
// half-written page behind.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := r.Execute(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// FormatDate renders timestamps as "02.01.2006 15:04" in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format("02.01.2006 15:04")
}

// Linebreaks escapes s and turns newlines into <br>.
func Linebreaks(s string) template.HTML {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return template.HTML(strings.ReplaceAll(template.HTMLEscapeString(s), "\n", "<br>"))
}
