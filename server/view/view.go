// Package view renders the HTML pages served to browsers.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
)

const (
	PageHome      = "index"
	PageUpload    = "upload"
	PagePortfolio = "portfolio"
	PageError     = "error"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = mustParsePages(PageHome, PageUpload, PagePortfolio, PageError)

func mustParsePages(names ...string) map[string]*template.Template {
	out := make(map[string]*template.Template, len(names))
	for _, name := range names {
		out[name] = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}

	return out
}

type UploadData struct {
	Extensions []string
}

type ErrorData struct {
	Message string
}

// Render executes page into a buffer first so a template failure never
// leaves a half-written response.
func Render(w http.ResponseWriter, status int, page string, data any) error {
	tmpl, ok := pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// RenderError writes the error page, falling back to plain text if even
// that fails.
func RenderError(w http.ResponseWriter, status int, message string) {
	if err := Render(w, status, PageError, ErrorData{Message: message}); err != nil {
		http.Error(w, message, status)
	}
}
