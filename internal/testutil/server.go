package testutil

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"finitefield.org/trademark-web/internal/cms"
	"finitefield.org/trademark-web/internal/httpserver"
	"finitefield.org/trademark-web/internal/leads"
	"finitefield.org/trademark-web/internal/submission"
)

// ServerOption customises the HTTP server configuration for tests.
type ServerOption func(*httpserver.Config)

// WithAdminPassword protects the lead panel with a bcrypt hash.
func WithAdminPassword(hash string) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.AdminPassword = hash
	}
}

// WithLeads backs the admin panel with svc.
func WithLeads(svc leads.Service) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Panel = leads.NewPanel(svc, leads.PanelOptions{Interval: 30 * time.Second})
	}
}

// WithPipeline overrides the submission pipeline.
func WithPipeline(p *submission.Pipeline) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Pipeline = p
	}
}

// WithContentDir serves blog posts from dir.
func WithContentDir(dir string) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Blog = cms.NewClient(cms.Options{ContentDir: dir})
	}
}

// WithConfig applies an arbitrary change.
func WithConfig(fn func(*httpserver.Config)) ServerOption {
	return ServerOption(fn)
}

// NewServer constructs an httptest server running the site with in-memory
// dependencies.
func NewServer(t testing.TB, opts ...ServerOption) *httptest.Server {
	t.Helper()

	cfg := httpserver.Config{
		Address:    ":0",
		Logger:     zap.NewNop(),
		SessionKey: []byte("test-session-key-0123456789abcdef"),
		Site:       httpserver.Site{Name: "Markfield Trademarks", BaseURL: "https://markfield.test"},
		Blog:       cms.NewClient(cms.Options{ContentDir: t.TempDir()}),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := httpserver.New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// NewClient returns a client that keeps cookies and does not follow redirects.
func NewClient(t testing.TB) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
