package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Martian-dev/inbox-triage/internal/auth"
	"github.com/Martian-dev/inbox-triage/internal/checkpoint"
	"github.com/Martian-dev/inbox-triage/internal/config"
	"github.com/Martian-dev/inbox-triage/internal/eventstore/sqlite"
	natsjs "github.com/Martian-dev/inbox-triage/internal/nats"
	"github.com/Martian-dev/inbox-triage/internal/providers/gmail"
	"github.com/Martian-dev/inbox-triage/internal/providers/outlook"
	"github.com/Martian-dev/inbox-triage/internal/server"
	"github.com/Martian-dev/inbox-triage/internal/sync"
	"github.com/Martian-dev/inbox-triage/internal/triage"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "inbox-triage",
		Short: "Webhook-driven email triage: score new mail and file it into priority labels",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(watchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the push webhook service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver := auth.NewResolver(cfg.Project)

	provider, providerName, err := buildProvider(ctx, cfg, resolver)
	if err != nil {
		return err
	}

	apiKey, err := resolver.OpenAIKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve scoring key: %w", err)
	}
	scorer := triage.NewOpenAIScorer(apiKey, cfg.OpenAI.Model)

	ckpt, err := checkpoint.Open(cfg.StateFile)
	if err != nil {
		return err
	}
	seedCheckpoint(ctx, ckpt, provider, logger)

	audit, err := sqlite.Open(cfg.AuditDB)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	defer audit.Close()

	if n, err := audit.MissingCount(ctx); err == nil && n > 0 {
		logger.Warn("previously missing messages on record", "count", n)
	}

	var events triage.EventPublisher
	if cfg.NATS.URL != "" {
		publisher, err := natsjs.NewPublisher(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("failed to connect event stream: %w", err)
		}
		defer publisher.Close()
		if err := publisher.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure event stream: %w", err)
		}
		events = publisher
		logger.Info("event publishing enabled", "url", cfg.NATS.URL, "stream", natsjs.StreamName)
	}

	processor := &triage.Processor{
		Provider:     provider,
		ProviderName: providerName,
		Scorer:       scorer,
		Thresholds: triage.Thresholds{
			Critical: cfg.Thresholds.Critical,
			Urgent:   cfg.Thresholds.Urgent,
			Medium:   cfg.Thresholds.Medium,
		},
		Labels: triage.Labels{
			Critical: cfg.Labels.Critical,
			Urgent:   cfg.Labels.Urgent,
			Medium:   cfg.Labels.Medium,
			Digest:   cfg.Labels.Digest,
		},
		Audit:  audit,
		Events: events,
		Log:    logger,
	}

	handler := sync.NewHandler(provider, ckpt, processor.Process, logger)

	var verifier server.TokenVerifier
	if cfg.Push.Audience != "" {
		v, err := auth.NewPushVerifier(cfg.Push.JWKSURL, cfg.Push.Audience, cfg.Push.ServiceAccount)
		if err != nil {
			return fmt.Errorf("failed to set up push verification: %w", err)
		}
		verifier = v
		logger.Info("push authentication enabled", "audience", cfg.Push.Audience)
	}

	srv := server.New(handler, verifier, audit, logger)
	httpSrv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr(), "provider", providerName)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// seedCheckpoint sets the baseline to the mailbox's current position
// minus one so the next notification has something to diff against.
// Failure is tolerated: the first notification bootstraps instead.
func seedCheckpoint(ctx context.Context, ckpt *checkpoint.Store, provider sync.MailProvider, logger *slog.Logger) {
	if ckpt.Initialized() {
		return
	}

	id, err := provider.CurrentHistoryID(ctx)
	if err != nil || id == 0 {
		logger.Warn("could not seed checkpoint from mailbox profile", "error", err)
		return
	}

	if err := ckpt.Reset(id - 1); err != nil {
		logger.Warn("failed to persist seeded checkpoint", "error", err)
		return
	}
	logger.Info("checkpoint seeded from mailbox profile", "history_id", id-1)
}

func buildProvider(ctx context.Context, cfg *config.Config, resolver *auth.Resolver) (sync.MailProvider, sync.ProviderName, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gmail", "google":
		creds, err := resolver.GmailCredentials(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve gmail credentials: %w", err)
		}
		adapter, err := gmail.New(ctx, creds, cfg.GmailUser)
		if err != nil {
			return nil, "", err
		}
		return adapter, sync.ProviderGoogle, nil

	case "outlook", "microsoft":
		adapter, err := outlook.New(os.Getenv("MS_GRAPH_TOKEN"), cfg.GmailUser)
		if err != nil {
			return nil, "", err
		}
		return adapter, sync.ProviderMicrosoft, nil

	default:
		return nil, "", fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.Level {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
