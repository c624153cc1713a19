package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgallion1/docrag/internal/api"
	"github.com/dgallion1/docrag/internal/app"
	"github.com/dgallion1/docrag/internal/config"
	"github.com/dgallion1/docrag/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	if err := cfg.ValidateServer(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inst *telemetry.Instruments
	shutdownTelemetry := func(context.Context) error { return nil }
	if cfg.OTelEnabled {
		inst, shutdownTelemetry, err = telemetry.Init(ctx, "docrag")
		if err != nil {
			log.Error("init telemetry", "error", err)
			os.Exit(1)
		}
	}

	a, err := app.New(ctx, cfg, log, inst)
	if err != nil {
		log.Error("init app", "error", err)
		os.Exit(1)
	}

	orch := a.NewOrchestrator()
	orch.Start(ctx)

	srv := api.NewServer(api.Deps{
		Ingestor: a.Ingestor,
		Jobs:     orch,
		Query:    a.Query,
		Stats:    a.Stats,
	}, log, api.Options{APIKey: cfg.APIKey, MaxUploadBytes: cfg.MaxUploadBytes})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		if err := a.Close(); err != nil {
			log.Warn("close app", "error", err)
		}
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Warn("shutdown telemetry", "error", err)
		}
	}()

	log.Info("starting docrag", "port", cfg.Port,
		"parent_store", cfg.ParentStore, "child_store", cfg.ChildStore)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}
