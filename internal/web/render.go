package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"path"
)

//go:embed templates
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// TemplateSet holds the parsed page templates. Each page is parsed together
// with the base layout into its own isolated template so content blocks
// never collide across pages.
type TemplateSet struct {
	pages map[string]*template.Template
}

// LoadTemplates parses the embedded page templates.
func LoadTemplates() (*TemplateSet, error) {
	entries, err := templateFS.ReadDir("templates/pages")
	if err != nil {
		return nil, fmt.Errorf("reading templates: %w", err)
	}

	ts := &TemplateSet{pages: make(map[string]*template.Template)}
	for _, entry := range entries {
		name := entry.Name()
		tmpl, err := template.ParseFS(templateFS,
			"templates/base.html",
			path.Join("templates/pages", name))
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		ts.pages[name] = tmpl
	}
	return ts, nil
}

// Execute renders a page through the base layout.
func (ts *TemplateSet) Execute(w io.Writer, page string, data any) error {
	tmpl, ok := ts.pages[page]
	if !ok {
		return fmt.Errorf("template %q not found", page)
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}
