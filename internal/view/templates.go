package view

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/web"
)

// TemplateData is the envelope every page receives. Page specific values go
// in Data.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	User        string
	Data        any
}

var numbers = message.NewPrinter(language.English)

// FormatMoney renders an amount with thousands grouping and two decimals.
func FormatMoney(v float64) string { return numbers.Sprintf("%.2f", v) }

// FormatQuantity renders a whole number with thousands grouping.
func FormatQuantity(v int) string { return numbers.Sprintf("%d", v) }

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02 Jan 2006 15:04")
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"formatDate": formatDate,
		"money":      FormatMoney,
		"quantity":   FormatQuantity,
		"hasPrefix":  strings.HasPrefix,
		"add":        func(a, b int) int { return a + b },
		"sub":        func(a, b int) int { return a - b },
		"deref": func(v *int64) int64 {
			if v == nil {
				return 0
			}
			return *v
		},
		"derefBool": func(v *bool) bool { return v != nil && *v },
	}
}

var templateGlobs = []string{"templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html"}

// Engine holds the parsed page set embedded in the binary.
type Engine struct {
	set *template.Template
}

func NewEngine() (*Engine, error) {
	set, err := template.New("pos").Funcs(funcs()).ParseFS(web.Templates, templateGlobs...)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Engine{set: set}, nil
}

var errNoEngine = errors.New("view: template engine not initialised")

func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, name, data, http.StatusOK)
}

// RenderStatus writes status and executes page name. An unknown page is
// reported before anything is written.
func (e *Engine) RenderStatus(w http.ResponseWriter, name string, data TemplateData, status int) error {
	if e == nil || e.set == nil {
		return errNoEngine
	}
	page := e.set.Lookup(name)
	if page == nil {
		return fmt.Errorf("view: unknown template %q", name)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return page.Execute(w, data)
}
