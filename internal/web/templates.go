package web

import (
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cormons/controlstock/internal/model"
	webembed "github.com/cormons/controlstock/web"
)

// Templates holds parsed HTML templates.
type Templates struct {
	templates map[string]*template.Template
}

// FuncMap returns the template function map.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		// attrs renders a row's data-* attributes in a stable order.
		"attrs": func(p model.PendingRequest) template.HTMLAttr {
			var b strings.Builder
			for _, kv := range [][2]string{
				{model.AttrID, p.ID},
				{model.AttrCode, p.Code},
				{model.AttrDescription, p.Description},
				{model.AttrRequestedAt, p.RequestedAt},
			} {
				fmt.Fprintf(&b, ` %s="%s"`, kv[0], template.HTMLEscapeString(kv[1]))
			}
			return template.HTMLAttr(strings.TrimSpace(b.String()))
		},
	}
}

// LoadTemplates parses all page templates with the layout.
func LoadTemplates() (*Templates, error) {
	tfs := webembed.TemplatesFS()

	layoutBytes, err := fs.ReadFile(tfs, "layout.html")
	if err != nil {
		return nil, fmt.Errorf("reading layout template: %w", err)
	}

	pages := []string{
		"controlstock.html",
		"error.html",
	}

	ts := &Templates{templates: make(map[string]*template.Template)}

	for _, page := range pages {
		pageBytes, err := fs.ReadFile(tfs, page)
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", page, err)
		}

		tmpl := template.New(page).Funcs(FuncMap())
		tmpl, err = tmpl.Parse(string(layoutBytes))
		if err != nil {
			return nil, fmt.Errorf("parsing layout for %s: %w", page, err)
		}
		tmpl, err = tmpl.Parse(string(pageBytes))
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}

		ts.templates[page] = tmpl
	}

	return ts, nil
}

// Render renders a template with the given status and data.
func (ts *Templates) Render(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := ts.templates[name]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		slog.Error("failed to render template", "template", name, "error", err)
	}
}

// PageData is the data passed to every template.
type PageData struct {
	Title      string
	Empresa    string
	Usuario    string
	Nombre     string
	Deposito   string
	Error      string
	CSRF       string
	LoginURL   string
	LogoutURL  string
	Version    string
	Pendientes []model.PendingRequest
}
