package httpserver

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"finitefield.org/trademark-web/internal/currency"
	"finitefield.org/trademark-web/internal/format"
	"finitefield.org/trademark-web/internal/i18n"
	"finitefield.org/trademark-web/internal/platform/observability"
	"finitefield.org/trademark-web/internal/pricing"
	"finitefield.org/trademark-web/internal/wizard"
)

//go:embed templates
var embeddedTemplates embed.FS

//go:embed static
var embeddedStatic embed.FS

// templateSet holds one clone of the layout per page, plus the shared
// partials for fragment responses.
type templateSet struct {
	pages    map[string]*template.Template
	partials *template.Template
}

type renderer struct {
	fsys  fs.FS
	dev   bool
	funcs template.FuncMap

	mu  sync.RWMutex
	set *templateSet
}

func newRenderer(fsys fs.FS, dev bool, bundle *i18n.Bundle) (*renderer, error) {
	r := &renderer{fsys: fsys, dev: dev, funcs: templateFuncs(bundle)}
	set, err := r.parse()
	if err != nil {
		return nil, err
	}
	r.set = set
	return r, nil
}

// parse loads layout/*.tmpl and partials/*.tmpl into a base set, then clones
// it for each pages/*.tmpl so every page can define its own "content".
func (r *renderer) parse() (*templateSet, error) {
	shared := []string{"layout/*.tmpl", "partials/*.tmpl"}
	base := template.New("_root").Funcs(r.funcs)
	for _, pattern := range shared {
		matches, err := fs.Glob(r.fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("httpserver: glob %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			continue
		}
		if base, err = base.ParseFS(r.fsys, matches...); err != nil {
			return nil, fmt.Errorf("httpserver: parse %s: %w", pattern, err)
		}
	}

	pages, err := fs.Glob(r.fsys, "pages/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("httpserver: glob pages: %w", err)
	}
	set := &templateSet{pages: make(map[string]*template.Template, len(pages)), partials: base}
	for _, file := range pages {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("httpserver: clone layout: %w", err)
		}
		if clone, err = clone.ParseFS(r.fsys, file); err != nil {
			return nil, fmt.Errorf("httpserver: parse %s: %w", file, err)
		}
		set.pages[strings.TrimSuffix(path.Base(file), ".tmpl")] = clone
	}
	return set, nil
}

func (r *renderer) current() (*templateSet, error) {
	if r.dev {
		set, err := r.parse()
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.set = set
		r.mu.Unlock()
		return set, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set, nil
}

// page renders the full document for a page template.
func (r *renderer) page(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	set, err := r.current()
	if err != nil {
		r.fail(w, req, err)
		return
	}
	tmpl, ok := set.pages[name]
	if !ok {
		r.fail(w, req, fmt.Errorf("httpserver: unknown page %q", name))
		return
	}
	r.write(w, req, status, tmpl, "base", data)
}

// fragment renders a named partial for htmx swaps.
func (r *renderer) fragment(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	set, err := r.current()
	if err != nil {
		r.fail(w, req, err)
		return
	}
	r.write(w, req, status, set.partials, name, data)
}

func (r *renderer) write(w http.ResponseWriter, req *http.Request, status int, tmpl *template.Template, name string, data any) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		r.fail(w, req, fmt.Errorf("httpserver: execute %s: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (r *renderer) fail(w http.ResponseWriter, req *http.Request, err error) {
	observability.FromContext(req.Context()).Error("template render failed", zap.Error(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func templateFuncs(bundle *i18n.Bundle) template.FuncMap {
	return template.FuncMap{
		"t": func(lang, key string, args ...any) string {
			return bundle.T(lang, key, args...)
		},
		"money": func(minor int64, code currency.Code, lang string) string {
			return format.Money(minor, code, lang)
		},
		"date": func(t time.Time, lang string) string {
			return format.Date(t, lang)
		},
		"datetime": format.DateTime,
		"hasErr": func(errs wizard.FieldErrors, field string) bool {
			return errs.Has(field)
		},
		"errKey": func(errs wizard.FieldErrors, field string) string {
			return errs[field]
		},
		"flag":       flagEmoji,
		"add":        func(a, b int) int { return a + b },
		"rowArgs":    newCountryCell,
		"maxClasses": func() int { return pricing.MaxClasses },
		"kb": func(size int64) string {
			if size < 1024 {
				return fmt.Sprintf("%d B", size)
			}
			return fmt.Sprintf("%.0f KB", float64(size)/1024)
		},
	}
}

// flagEmoji turns a two-letter region code into its regional indicator pair.
func flagEmoji(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return ""
	}
	var b strings.Builder
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return ""
		}
		b.WriteRune(0x1F1E6 + (c - 'A'))
	}
	return b.String()
}

func dirFS(dir string) fs.FS { return os.DirFS(dir) }

func staticHandler() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		panic(err)
	}
	fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		fileServer.ServeHTTP(w, r)
	})
}
