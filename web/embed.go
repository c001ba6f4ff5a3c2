// Package web holds the server rendered page templates.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the page templates. When dir is set the templates are read from
// that directory instead of the embedded copies.
func Templates(dir string) (*template.Template, error) {
	var source fs.FS = templateFS
	pattern := "templates/*.html"
	if dir = strings.TrimSpace(dir); dir != "" {
		source = os.DirFS(dir)
		pattern = "*.html"
	}

	tmpl, err := template.New("").Funcs(funcs()).ParseFS(source, pattern)
	if err != nil {
		return nil, fmt.Errorf("web: parse templates: %w", err)
	}
	return tmpl, nil
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"datetime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.UTC().Format("2006-01-02 15:04")
		},
	}
}
