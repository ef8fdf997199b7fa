package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Site.DefaultCurrency != "EUR" {
		t.Errorf("expected EUR default currency, got %s", cfg.Site.DefaultCurrency)
	}
	if len(cfg.Site.Locales) != 2 {
		t.Errorf("expected default locales, got %v", cfg.Site.Locales)
	}
	if cfg.Backend.SubmitTimeout != 10*time.Second {
		t.Errorf("unexpected submit timeout: %s", cfg.Backend.SubmitTimeout)
	}
	if cfg.Backend.AdminTimeout != 15*time.Second {
		t.Errorf("unexpected admin timeout: %s", cfg.Backend.AdminTimeout)
	}
	if cfg.Admin.RefreshInterval != 30*time.Second {
		t.Errorf("unexpected refresh interval: %s", cfg.Admin.RefreshInterval)
	}
	if cfg.Submission.Strict() {
		t.Errorf("expected lenient submission policy by default")
	}
	if !cfg.Submission.Preview {
		t.Errorf("expected preview submission when no backend is configured")
	}
	if cfg.Session.SecureCookie {
		t.Errorf("expected insecure cookies outside production")
	}
}

func TestLoadPrefersExplicitValues(t *testing.T) {
	env := map[string]string{
		"PORT":                            "9000",
		"TRADEMARK_WEB_PORT":              "9100",
		"TRADEMARK_WEB_BACKEND_URL":       "https://leads.example.com",
		"TRADEMARK_WEB_SUBMISSION_POLICY": "STRICT",
		"TRADEMARK_WEB_DEFAULT_CURRENCY":  "usd",
		"TRADEMARK_WEB_LOCALES":           "en, de ,fr",
		"TRADEMARK_WEB_SUBMIT_TIMEOUT":    "3s",
		"TRADEMARK_WEB_DEV":               "yes",
	}
	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "9100" {
		t.Errorf("expected prefixed port to win, got %s", cfg.Server.Port)
	}
	if !cfg.Submission.Strict() {
		t.Errorf("expected strict policy")
	}
	if cfg.Submission.Preview {
		t.Errorf("expected live submission with a backend URL")
	}
	if cfg.Site.DefaultCurrency != "USD" {
		t.Errorf("expected USD, got %s", cfg.Site.DefaultCurrency)
	}
	if got := cfg.Site.Locales; len(got) != 3 || got[2] != "fr" {
		t.Errorf("unexpected locales %v", got)
	}
	if cfg.Backend.SubmitTimeout != 3*time.Second {
		t.Errorf("unexpected submit timeout %s", cfg.Backend.SubmitTimeout)
	}
	if !cfg.Server.DevMode {
		t.Errorf("expected dev mode")
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"TRADEMARK_WEB_ENV":               "prod",
		"TRADEMARK_WEB_DEFAULT_CURRENCY":  "GBP",
		"TRADEMARK_WEB_SUBMISSION_POLICY": "sometimes",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := map[string]bool{
		"Site.DefaultCurrency": false,
		"Submission.Policy":    false,
		"Session.SigningKey":   false,
		"Verification.Secret":  false,
		"Admin.PasswordHash":   false,
	}
	for _, f := range vErr.Fields() {
		if _, ok := want[f]; ok {
			want[f] = true
		}
	}
	for f, seen := range want {
		if !seen {
			t.Errorf("expected %s in validation fields %v", f, vErr.Fields())
		}
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nexport TRADEMARK_WEB_SITE_NAME=\"Local Marks\"\nTRADEMARK_WEB_ADMIN_REFRESH_INTERVAL=45s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	env := map[string]string{"TRADEMARK_WEB_ADMIN_REFRESH_INTERVAL": "5s"}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(path))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Site.Name != "Local Marks" {
		t.Errorf("expected site name from .env, got %q", cfg.Site.Name)
	}
	if cfg.Admin.RefreshInterval != 5*time.Second {
		t.Errorf("expected explicit map to win over .env, got %s", cfg.Admin.RefreshInterval)
	}
}
