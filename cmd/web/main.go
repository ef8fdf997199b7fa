package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"finitefield.org/trademark-web/internal/backup"
	"finitefield.org/trademark-web/internal/catalog"
	"finitefield.org/trademark-web/internal/cms"
	"finitefield.org/trademark-web/internal/currency"
	"finitefield.org/trademark-web/internal/httpserver"
	"finitefield.org/trademark-web/internal/i18n"
	"finitefield.org/trademark-web/internal/leads"
	"finitefield.org/trademark-web/internal/platform/config"
	"finitefield.org/trademark-web/internal/platform/observability"
	"finitefield.org/trademark-web/internal/submission"
	"finitefield.org/trademark-web/internal/uploads"
	"finitefield.org/trademark-web/internal/verification"
	"finitefield.org/trademark-web/internal/wizard"
)

const sweepInterval = 10 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("web")

	cat, err := catalog.Default()
	if err != nil {
		logger.Fatal("failed to load price catalog", zap.Error(err))
	}
	bundle, err := i18n.Default(cfg.Site.DefaultLocale, cfg.Site.Locales)
	if err != nil {
		logger.Fatal("failed to load locales", zap.Error(err))
	}

	var backups backup.Store
	if cfg.Backup.DSN != "" {
		store, err := backup.Open(cfg.Backup.DSN)
		if err != nil {
			logger.Fatal("failed to open backup store", zap.String("dsn", cfg.Backup.DSN), zap.Error(err))
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("backup store close error", zap.Error(err))
			}
		}()
		backups = store
	} else {
		logger.Warn("no backup DSN configured; snapshots are kept in memory")
		backups = backup.NewMemoryStore()
	}

	stash := uploads.NewStash(cfg.Uploads.MaxBytes, cfg.Session.DraftTTL)
	drafts := wizard.NewMemoryStore(cfg.Session.DraftTTL)

	policy, _ := submission.ParsePolicy(cfg.Submission.Policy)
	deps := submission.Deps{
		Backups:      backups,
		Uploads:      stash,
		Catalog:      cat,
		Logger:       logger.Named("submission"),
		Policy:       policy,
		Preview:      cfg.Submission.Preview,
		PreviewDelay: cfg.Submission.PreviewDelay,
	}

	var (
		lookup   verification.Lookup
		leadsSvc leads.Service = leads.NewStaticService()
	)
	if cfg.Backend.BaseURL != "" {
		httpClient := &http.Client{}
		client, err := submission.NewClient(cfg.Backend.BaseURL, httpClient, cfg.Backend.SubmitTimeout)
		if err != nil {
			logger.Fatal("failed to initialise submission client", zap.Error(err))
		}
		deps.Sender = client
		lookup = client

		svc, err := leads.NewHTTPService(cfg.Backend.BaseURL, httpClient, cfg.Backend.AdminTimeout)
		if err != nil {
			logger.Fatal("failed to initialise lead service", zap.Error(err))
		}
		leadsSvc = svc
	} else {
		logger.Warn("no backend configured; submissions run in preview mode and the lead panel is empty")
	}
	pipeline := submission.NewPipeline(deps)

	var signer *verification.Signer
	if cfg.Verification.Secret != "" {
		if signer, err = verification.NewSigner(cfg.Verification.Secret, cfg.Verification.TTL); err != nil {
			logger.Fatal("failed to initialise verification signer", zap.Error(err))
		}
	} else {
		logger.Warn("no verification secret configured; links stop working after a restart")
	}

	panel := leads.NewPanel(leadsSvc, leads.PanelOptions{Interval: cfg.Admin.RefreshInterval, Logger: logger.Named("leads")})
	if cfg.Admin.PasswordHash == "" {
		logger.Warn("admin password hash not set; the lead panel is open")
	}

	blog := cms.NewClient(cms.Options{
		BaseURL:    cfg.Content.CMSBaseURL,
		ContentDir: cfg.Content.Dir,
		CacheTTL:   cfg.Content.CacheTTL,
		Logger:     logger.Named("cms"),
	})

	srv, err := httpserver.New(httpserver.Config{
		Address:           ":" + cfg.Server.Port,
		Logger:            logger,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		DevMode:           cfg.Server.DevMode,
		TemplatesDir:      cfg.Server.TemplatesDir,
		Site: httpserver.Site{
			Name:            cfg.Site.Name,
			BaseURL:         cfg.Site.BaseURL,
			DefaultCurrency: currency.ParseOr(cfg.Site.DefaultCurrency, currency.Default),
		},
		Analytics: httpserver.Analytics{
			GA4MeasurementID: cfg.Analytics.GA4MeasurementID,
			GTMContainerID:   cfg.Analytics.GTMContainerID,
		},
		SessionKey:    []byte(cfg.Session.SigningKey),
		SecureCookies: cfg.Session.SecureCookie,
		AdminPassword: cfg.Admin.PasswordHash,
		Catalog:       cat,
		I18n:          bundle,
		Drafts:        drafts,
		Uploads:       stash,
		Backups:       backups,
		Pipeline:      pipeline,
		Signer:        signer,
		Lookup:        lookup,
		Blog:          blog,
		Panel:         panel,
	})
	if err != nil {
		logger.Fatal("failed to build http server", zap.Error(err))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		panel.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sweep(ctx, logger.Named("sweeper"), drafts, stash)
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Environment),
			zap.Bool("preview", pipeline.Preview()),
			zap.String("policy", string(pipeline.Policy())),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	wg.Wait()
	logger.Info("server stopped")
}

// sweep drops expired drafts and uploads until ctx is done.
func sweep(ctx context.Context, logger *zap.Logger, drafts *wizard.MemoryStore, stash *uploads.Stash) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d, f := drafts.Sweep(), stash.Sweep()
			if d > 0 || f > 0 {
				logger.Info("expired session data removed", zap.Int("drafts", d), zap.Int("files", f))
			}
		case <-ctx.Done():
			return
		}
	}
}
