package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadHeaderTimeout = 10 * time.Second
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultSiteName          = "Markfield Trademarks"
	defaultSiteBaseURL       = "http://localhost:8080"
	defaultCurrency          = "EUR"
	defaultLocale            = "en"
	defaultSubmitTimeout     = 10 * time.Second
	defaultAdminTimeout      = 15 * time.Second
	defaultSubmissionPolicy  = "lenient"
	defaultPreviewDelay      = 1500 * time.Millisecond
	defaultBackupDSN         = "data/backups.db"
	defaultAdminRefresh      = 30 * time.Second
	defaultVerificationTTL   = 30 * 24 * time.Hour
	defaultContentDir        = "content"
	defaultContentCacheTTL   = 5 * time.Minute
	defaultDraftTTL          = 24 * time.Hour
	defaultUploadMaxBytes    = 10 << 20
	defaultLogLevel          = "info"
	environmentProduction    = "prod"
	submissionPolicyStrict   = "strict"
	submissionPolicyLenient  = "lenient"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment  string
	LogLevel     string
	Server       ServerConfig
	Site         SiteConfig
	Backend      BackendConfig
	Submission   SubmissionConfig
	Backup       BackupConfig
	Admin        AdminConfig
	Session      SessionConfig
	Verification VerificationConfig
	Content      ContentConfig
	Uploads      UploadConfig
	Analytics    AnalyticsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port              string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	DevMode           bool
	TemplatesDir      string
}

// SiteConfig holds public site identity and defaults.
type SiteConfig struct {
	Name            string
	BaseURL         string
	DefaultCurrency string
	DefaultLocale   string
	Locales         []string
}

// BackendConfig points at the external lead backend.
type BackendConfig struct {
	BaseURL       string
	SubmitTimeout time.Duration
	AdminTimeout  time.Duration
}

// SubmissionConfig controls how lead submission failures are treated.
type SubmissionConfig struct {
	Policy       string
	Preview      bool
	PreviewDelay time.Duration
}

// Strict reports whether delivery failures must surface to the visitor.
func (s SubmissionConfig) Strict() bool {
	return s.Policy == submissionPolicyStrict
}

// BackupConfig locates the local snapshot database.
type BackupConfig struct {
	DSN string
}

// AdminConfig configures the internal lead review panel.
type AdminConfig struct {
	PasswordHash    string
	RefreshInterval time.Duration
}

// SessionConfig configures the signed session cookie.
type SessionConfig struct {
	SigningKey   string
	SecureCookie bool
	DraftTTL     time.Duration
}

// VerificationConfig configures signed verification links.
type VerificationConfig struct {
	Secret string
	TTL    time.Duration
}

// ContentConfig locates blog content.
type ContentConfig struct {
	Dir        string
	CMSBaseURL string
	CacheTTL   time.Duration
}

// UploadConfig bounds mark image and attachment uploads.
type UploadConfig struct {
	MaxBytes int64
}

// AnalyticsConfig holds client instrumentation identifiers surfaced to templates.
type AnalyticsConfig struct {
	GA4MeasurementID string
	GTMContainerID   string
}

// Production reports whether the configuration targets the production environment.
func (c Config) Production() bool {
	return c.Environment == environmentProduction
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises how configuration is loaded.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load resolves configuration from the explicit map, the process environment and
// the .env file, in that order of precedence, then validates it.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	// PORT is set by most container platforms; the prefixed key wins.
	port := stringWithDefault(lookup, "PORT", defaultPort)
	port = stringWithDefault(lookup, "TRADEMARK_WEB_PORT", port)

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "TRADEMARK_WEB_ENV", "local")),
		LogLevel:    stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel),
		Server: ServerConfig{
			Port:              port,
			ReadHeaderTimeout: durationWithDefault(lookup, "TRADEMARK_WEB_READ_HEADER_TIMEOUT", defaultReadHeaderTimeout),
			ReadTimeout:       durationWithDefault(lookup, "TRADEMARK_WEB_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:      durationWithDefault(lookup, "TRADEMARK_WEB_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:       durationWithDefault(lookup, "TRADEMARK_WEB_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout:   durationWithDefault(lookup, "TRADEMARK_WEB_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
			DevMode:           boolWithDefault(lookup, "TRADEMARK_WEB_DEV", false),
			TemplatesDir:      stringWithDefault(lookup, "TRADEMARK_WEB_TEMPLATES_DIR", ""),
		},
		Site: SiteConfig{
			Name:            stringWithDefault(lookup, "TRADEMARK_WEB_SITE_NAME", defaultSiteName),
			BaseURL:         strings.TrimRight(stringWithDefault(lookup, "TRADEMARK_WEB_BASE_URL", defaultSiteBaseURL), "/"),
			DefaultCurrency: strings.ToUpper(stringWithDefault(lookup, "TRADEMARK_WEB_DEFAULT_CURRENCY", defaultCurrency)),
			DefaultLocale:   strings.ToLower(stringWithDefault(lookup, "TRADEMARK_WEB_DEFAULT_LOCALE", defaultLocale)),
			Locales:         csvWithDefault(lookup, "TRADEMARK_WEB_LOCALES"),
		},
		Backend: BackendConfig{
			BaseURL:       strings.TrimSpace(stringWithDefault(lookup, "TRADEMARK_WEB_BACKEND_URL", "")),
			SubmitTimeout: durationWithDefault(lookup, "TRADEMARK_WEB_SUBMIT_TIMEOUT", defaultSubmitTimeout),
			AdminTimeout:  durationWithDefault(lookup, "TRADEMARK_WEB_ADMIN_TIMEOUT", defaultAdminTimeout),
		},
		Submission: SubmissionConfig{
			Policy:       strings.ToLower(stringWithDefault(lookup, "TRADEMARK_WEB_SUBMISSION_POLICY", defaultSubmissionPolicy)),
			Preview:      boolWithDefault(lookup, "TRADEMARK_WEB_SUBMISSION_PREVIEW", false),
			PreviewDelay: durationWithDefault(lookup, "TRADEMARK_WEB_SUBMISSION_PREVIEW_DELAY", defaultPreviewDelay),
		},
		Backup: BackupConfig{
			DSN: stringWithDefault(lookup, "TRADEMARK_WEB_BACKUP_DSN", defaultBackupDSN),
		},
		Admin: AdminConfig{
			PasswordHash:    stringWithDefault(lookup, "TRADEMARK_WEB_ADMIN_PASSWORD_HASH", ""),
			RefreshInterval: durationWithDefault(lookup, "TRADEMARK_WEB_ADMIN_REFRESH_INTERVAL", defaultAdminRefresh),
		},
		Session: SessionConfig{
			SigningKey: stringWithDefault(lookup, "TRADEMARK_WEB_SESSION_SIGNING_KEY", ""),
			DraftTTL:   durationWithDefault(lookup, "TRADEMARK_WEB_DRAFT_TTL", defaultDraftTTL),
		},
		Verification: VerificationConfig{
			Secret: stringWithDefault(lookup, "TRADEMARK_WEB_VERIFICATION_SECRET", ""),
			TTL:    durationWithDefault(lookup, "TRADEMARK_WEB_VERIFICATION_TTL", defaultVerificationTTL),
		},
		Content: ContentConfig{
			Dir:        stringWithDefault(lookup, "TRADEMARK_WEB_CONTENT_DIR", defaultContentDir),
			CMSBaseURL: stringWithDefault(lookup, "TRADEMARK_WEB_CMS_URL", ""),
			CacheTTL:   durationWithDefault(lookup, "TRADEMARK_WEB_CONTENT_CACHE_TTL", defaultContentCacheTTL),
		},
		Uploads: UploadConfig{
			MaxBytes: int64(intWithDefault(lookup, "TRADEMARK_WEB_UPLOAD_MAX_BYTES", defaultUploadMaxBytes)),
		},
		Analytics: AnalyticsConfig{
			GA4MeasurementID: stringWithDefault(lookup, "TRADEMARK_WEB_GA_MEASUREMENT_ID", ""),
			GTMContainerID:   stringWithDefault(lookup, "TRADEMARK_WEB_GTM_CONTAINER_ID", ""),
		},
	}

	if len(cfg.Site.Locales) == 0 {
		cfg.Site.Locales = []string{"en", "de"}
	}
	cfg.Session.SecureCookie = boolWithDefault(lookup, "TRADEMARK_WEB_SECURE_COOKIES", cfg.Production())
	// Without a backend there is nowhere to deliver leads.
	if cfg.Backend.BaseURL == "" {
		cfg.Submission.Preview = true
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if _, err := strconv.Atoi(cfg.Server.Port); err != nil {
		missing = append(missing, "Server.Port")
	}
	switch cfg.Site.DefaultCurrency {
	case "USD", "EUR":
	default:
		missing = append(missing, "Site.DefaultCurrency")
	}
	if !containsString(cfg.Site.Locales, cfg.Site.DefaultLocale) {
		missing = append(missing, "Site.DefaultLocale")
	}
	switch cfg.Submission.Policy {
	case submissionPolicyLenient, submissionPolicyStrict:
	default:
		missing = append(missing, "Submission.Policy")
	}
	if cfg.Backend.SubmitTimeout <= 0 {
		missing = append(missing, "Backend.SubmitTimeout")
	}
	if cfg.Backend.AdminTimeout <= 0 {
		missing = append(missing, "Backend.AdminTimeout")
	}
	if cfg.Admin.RefreshInterval <= 0 {
		missing = append(missing, "Admin.RefreshInterval")
	}
	if strings.TrimSpace(cfg.Backup.DSN) == "" {
		missing = append(missing, "Backup.DSN")
	}
	if cfg.Uploads.MaxBytes <= 0 {
		missing = append(missing, "Uploads.MaxBytes")
	}
	if cfg.Production() {
		if cfg.Session.SigningKey == "" {
			missing = append(missing, "Session.SigningKey")
		}
		if cfg.Verification.Secret == "" {
			missing = append(missing, "Verification.Secret")
		}
		if cfg.Admin.PasswordHash == "" {
			missing = append(missing, "Admin.PasswordHash")
		}
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.ToLower(strings.TrimSpace(part)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
