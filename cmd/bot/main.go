package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"feedforwarder/internal/bot"
	"feedforwarder/internal/config"
	"feedforwarder/internal/delivery"
	"feedforwarder/internal/fetcher"
	"feedforwarder/internal/httpserver"
	"feedforwarder/internal/metrics"
	"feedforwarder/internal/scheduler"
	"feedforwarder/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	store, err := openStore(cfg, log)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	b, err := bot.New(cfg, store, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	ext := fetcher.New(&http.Client{})
	ext.SetTimeout(cfg.FetchTimeout)

	fanout := delivery.New(store, b, log)
	fanout.SetSendTimeout(cfg.SendTimeout)
	fanout.SetMetrics(m)

	sched := scheduler.New(store, ext, fanout, log)
	sched.SetInterval(cfg.PollInterval)
	sched.SetWorkers(cfg.PollWorkers)
	sched.SetMetrics(m)

	b.SetChecker(sched)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server := httpserver.NewServer(cfg.HTTPAddr, reg, log)
	if cfg.WebhookURL != "" {
		if err := b.SetWebhook(cfg.WebhookURL); err != nil {
			log.Error("register webhook", "error", err)
			os.Exit(1)
		}
		server.HandleWebhook(bot.WebhookPath, b.WebhookHandler(ctx))
	}

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server exited with error", "error", err)
			cancel()
		}
	}()

	if err := sched.Start(ctx); err != nil {
		log.Error("start scheduler", "error", err)
		os.Exit(1)
	}

	log.Info("starting bot", "webhook", cfg.WebhookURL != "")

	if cfg.WebhookURL != "" {
		<-ctx.Done()
	} else {
		b.Run(ctx)
	}

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shut down http server", "error", err)
	}

	// Webhook updates and on-demand checks still use the store.
	b.Wait()
	sched.Stop()

	log.Info("bot stopped")
}

// openStore uses Postgres when DATABASE_URL is set and a local SQLite file
// otherwise.
func openStore(cfg *config.Config, log *slog.Logger) (*storage.DB, error) {
	if cfg.DatabaseURL != "" {
		log.Info("using postgres")
		return storage.NewPostgres(cfg.DatabaseURL)
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	log.Info("using sqlite", "path", cfg.DatabasePath)
	return storage.NewSQLite(cfg.DatabasePath)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
