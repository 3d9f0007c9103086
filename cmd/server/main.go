package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"certify/internal/platform/config"
	"certify/internal/platform/httpserver"
	"certify/internal/platform/logger"
)

const shutdownTimeout = 15 * time.Second

// main loads configuration, wires the app and keeps the process lifecycle
// small. Business logic lives in internal packages.
func main() {
	envErr := godotenv.Load()
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.Environment)
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warn("failed to load .env file", "error", envErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to start in %s: %w", cfg.Environment, err)
	}
	if cfg.UsesDevSigningKey() {
		log.Warn("JWT_SIGNING_KEY is the development default; set it before deploying")
	}
	if cfg.UsesDevAdminPassword() {
		log.Warn("ADMIN_PASSWORD is the development default; set it before deploying")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := buildApp(ctx, cfg, log, registry, nil)
	if err != nil {
		return err
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 1m", a.refreshGauges); err != nil {
		a.close()
		return err
	}
	if _, err := scheduler.AddFunc("@every 5m", a.sweepRateLimits); err != nil {
		a.close()
		return err
	}
	scheduler.Start()
	a.refreshGauges()

	srv := httpserver.New(cfg.Addr, a.router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting certify", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		<-scheduler.Stop().Done()
		a.close()
		return err
	})

	return g.Wait()
}
