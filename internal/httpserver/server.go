// Package httpserver serves the public site, the free search wizard and the
// admin lead panel.
package httpserver

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"finitefield.org/trademark-web/internal/backup"
	"finitefield.org/trademark-web/internal/catalog"
	"finitefield.org/trademark-web/internal/cms"
	"finitefield.org/trademark-web/internal/currency"
	"finitefield.org/trademark-web/internal/httpserver/middleware"
	"finitefield.org/trademark-web/internal/i18n"
	"finitefield.org/trademark-web/internal/leads"
	"finitefield.org/trademark-web/internal/platform/observability"
	"finitefield.org/trademark-web/internal/submission"
	"finitefield.org/trademark-web/internal/uploads"
	"finitefield.org/trademark-web/internal/verification"
	"finitefield.org/trademark-web/internal/wizard"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultUploadMaxBytes = 10 << 20
	defaultDraftTTL       = 24 * time.Hour
)

// Site identifies the public site.
type Site struct {
	Name            string
	BaseURL         string
	DefaultCurrency currency.Code
}

// Analytics holds client instrumentation identifiers.
type Analytics struct {
	GA4MeasurementID string
	GTMContainerID   string
}

// Config wires the HTTP server. Nil dependencies fall back to in-memory
// implementations so tests and local runs need no backend.
type Config struct {
	Address           string
	Logger            *zap.Logger
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestTimeout    time.Duration

	// DevMode reparses templates from TemplatesDir on every request.
	DevMode      bool
	TemplatesDir string

	Site          Site
	Analytics     Analytics
	SessionKey    []byte
	SecureCookies bool
	AdminPassword string // bcrypt hash; empty leaves the panel open

	Catalog  *catalog.Catalog
	I18n     *i18n.Bundle
	Drafts   wizard.Store
	Uploads  *uploads.Stash
	Backups  backup.Store
	Pipeline *submission.Pipeline
	Signer   *verification.Signer
	Lookup   verification.Lookup
	Blog     *cms.Client
	Panel    *leads.Panel

	Now func() time.Time
}

// Server holds the handler dependencies.
type Server struct {
	cfg      Config
	logger   *zap.Logger
	render   *renderer
	sessions *middleware.Sessions
	gate     *middleware.AdminGate
	resolver *verification.Resolver
	now      func() time.Time
}

// New builds the router and returns an http.Server ready to listen.
func New(cfg Config) (*http.Server, error) {
	s, err := newServer(cfg)
	if err != nil {
		return nil, err
	}
	cfg = s.cfg
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           s.routes(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}, nil
}

func newServer(cfg Config) (*Server, error) {
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Site.Name == "" {
		cfg.Site.Name = "Markfield Trademarks"
	}
	cfg.Site.DefaultCurrency = currency.ParseOr(string(cfg.Site.DefaultCurrency), currency.Default)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	var err error
	if cfg.Catalog == nil {
		if cfg.Catalog, err = catalog.Default(); err != nil {
			return nil, fmt.Errorf("httpserver: load catalog: %w", err)
		}
	}
	if cfg.I18n == nil {
		if cfg.I18n, err = i18n.Default("en", []string{"en", "de"}); err != nil {
			return nil, fmt.Errorf("httpserver: load locales: %w", err)
		}
	}
	if cfg.Drafts == nil {
		cfg.Drafts = wizard.NewMemoryStore(defaultDraftTTL)
	}
	if cfg.Uploads == nil {
		cfg.Uploads = uploads.NewStash(defaultUploadMaxBytes, defaultDraftTTL)
	}
	if cfg.Backups == nil {
		cfg.Backups = backup.NewMemoryStore()
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = submission.NewPipeline(submission.Deps{
			Backups: cfg.Backups,
			Uploads: cfg.Uploads,
			Catalog: cfg.Catalog,
			Logger:  cfg.Logger,
		})
	}
	if cfg.Signer == nil {
		if cfg.Signer, err = verification.NewSigner(ephemeralSecret(), 0); err != nil {
			return nil, err
		}
	}
	if cfg.Blog == nil {
		cfg.Blog = cms.NewClient(cms.Options{ContentDir: "content", Logger: cfg.Logger})
	}
	if cfg.Panel == nil {
		cfg.Panel = leads.NewPanel(leads.NewStaticService(), leads.PanelOptions{Logger: cfg.Logger})
	}

	var templates fs.FS
	if cfg.DevMode && cfg.TemplatesDir != "" {
		templates = dirFS(cfg.TemplatesDir)
	} else {
		templates, err = fs.Sub(embeddedTemplates, "templates")
		if err != nil {
			return nil, fmt.Errorf("httpserver: templates: %w", err)
		}
	}
	r, err := newRenderer(templates, cfg.DevMode, cfg.I18n)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:      cfg,
		logger:   cfg.Logger,
		render:   r,
		sessions: middleware.NewSessions(middleware.SessionConfig{SigningKey: cfg.SessionKey, Secure: cfg.SecureCookies}),
		gate:     middleware.NewAdminGate(cfg.AdminPassword, "/admin/login", 0),
		resolver: &verification.Resolver{
			Signer:  cfg.Signer,
			Lookup:  cfg.Lookup,
			Backups: cfg.Backups,
			Catalog: cfg.Catalog,
			Logger:  cfg.Logger,
		},
		now: cfg.Now,
	}, nil
}

func (s *Server) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(observability.InjectLoggerMiddleware(s.logger))
	router.Use(observability.TraceMiddleware())
	router.Use(observability.RequestLoggerMiddleware())
	router.Use(observability.RecoveryMiddleware(s.logger))
	router.Use(chimw.Compress(5, "text/html", "text/css", "application/json"))
	router.Use(chimw.Timeout(s.cfg.RequestTimeout))
	// Several uploads plus form fields per request.
	router.Use(chimw.RequestSize(4*s.cfg.Uploads.MaxBytes() + 1<<20))

	router.Get("/healthz", s.handleHealth)
	router.Handle("/static/*", staticHandler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.HTMX())
		r.Use(s.sessions.Middleware())
		localized := func(h http.Handler) http.Handler {
			return middleware.Locale(s.cfg.I18n, s.cfg.SecureCookies)(middleware.Currency(s.cfg.SecureCookies)(h))
		}
		r.Use(middleware.CSRF(middleware.WithTooLargeHandler(localized(http.HandlerFunc(s.handleTooLarge)))))
		r.Use(localized)

		r.Get("/", s.handleHome)
		r.Post("/currency", s.handleSetCurrency)

		r.Get("/prices", s.handlePrices)
		r.With(middleware.RequireHTMX()).Get("/prices/countries", s.handlePriceCountries)
		r.Post("/prices/estimate", s.handlePriceEstimate)

		r.Route("/free-search", func(r chi.Router) {
			r.Use(middleware.NoStore())
			r.Get("/", s.handleWizard)
			r.Post("/next", s.handleWizardNext)
			r.Post("/back", s.handleWizardBack)
			r.Post("/goto", s.handleWizardGoTo)
			r.With(middleware.RequireHTMX()).Get("/browse", s.handleWizardBrowse)
			r.Post("/countries", s.handleWizardCountries)
			r.Post("/submit", s.handleWizardSubmit)
			r.Get("/thank-you", s.handleThankYou)
		})
		r.With(middleware.NoStore()).Get("/verify", s.handleVerify)

		r.Get("/blog", s.handleBlogIndex)
		r.Get("/blog/{slug}", s.handleBlogPost)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.NoStore())
			r.Get("/login", s.handleAdminLoginForm)
			r.Post("/login", s.handleAdminLogin)
			r.Post("/logout", s.handleAdminLogout)
			r.Group(func(r chi.Router) {
				r.Use(s.gate.Require())
				r.Get("/", s.handleAdminLeads)
				r.With(middleware.RequireHTMX()).Get("/leads/table", s.handleAdminTable)
				r.Get("/leads/{id}", s.handleAdminLead)
				r.Post("/leads/{id}/status", s.handleAdminStatus)
				r.Post("/connection/test", s.handleAdminConnection)
				r.Post("/auto-refresh", s.handleAdminAutoRefresh)
			})
		})

		r.NotFound(s.handleNotFound)
	})

	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte("ok"))
}

func ephemeralSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
