package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/docgate/internal/api"
	"github.com/dgallion1/docgate/internal/archive"
	"github.com/dgallion1/docgate/internal/config"
	"github.com/dgallion1/docgate/internal/pipeline"
	"github.com/dgallion1/docgate/internal/ruleset"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	rs, err := ruleset.LoadOrDefault(cfg.RulesetPath)
	if err != nil {
		log.Error("load ruleset", "error", err)
		os.Exit(1)
	}
	log.Info("ruleset loaded", "version", rs.Version, "doc_type", rs.DocType, "sections", len(rs.AllSections()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Result archive. ARCHIVE_PATH=none runs without one.
	var (
		store   pipeline.Archive
		docs    api.DocumentStore
		closeDB = func() error { return nil }
	)
	if cfg.ArchivePath != "" {
		db, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			log.Error("open archive", "path", cfg.ArchivePath, "error", err)
			os.Exit(1)
		}
		store, docs, closeDB = db, db, db.Close
	}

	orch := pipeline.NewOrchestrator(cfg, rs, store, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, docs, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
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

		// No more submissions once the listener is closed.
		orch.Stop()
		if err := closeDB(); err != nil {
			log.Warn("close archive", "error", err)
		}
	}()

	log.Info("starting docgate", "port", cfg.Port, "workers", cfg.WorkerCount, "archive", cfg.ArchivePath)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}
