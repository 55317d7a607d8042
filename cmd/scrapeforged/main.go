package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scrapeforge/internal/bootstrap"
	"scrapeforge/internal/breaker"
	"scrapeforge/internal/cascade"
	"scrapeforge/internal/config"
	"scrapeforge/internal/extract"
	"scrapeforge/internal/fetch"
	server "scrapeforge/internal/http"
	"scrapeforge/internal/jobs"
	"scrapeforge/internal/llm"
	"scrapeforge/internal/migrate"
	"scrapeforge/internal/pipeline"
	"scrapeforge/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg := config.Load(*configPath)

	// Run migrations on a short-lived connection
	if err := migrate.Run(cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	st, err := store.Open(context.Background(), cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	defer st.Close()

	// Basic pool settings; adjust as needed
	st.DB.SetMaxOpenConns(20)
	st.DB.SetMaxIdleConns(10)
	st.DB.SetConnMaxLifetime(30 * time.Minute)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	slog.SetDefault(logger)

	// Crash recovery: URLs stuck in processing go back to pending and
	// jobs left running park as paused, ready to resume.
	if n, err := st.RecoverInterrupted(context.Background()); err != nil {
		log.Fatalf("boot recovery failed: %v", err)
	} else if n > 0 {
		logger.Info("boot_recovery", "rows", n)
	}

	if err := bootstrap.Run(context.Background(), cfg, st); err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}

	reg := fetch.NewDefaultRegistry(cfg.Scraper.UserAgent, cfg.Browser.BrowserURL, cfg.Browser.Enabled)
	engine := cascade.NewEngine(reg, logger)

	var vision extract.VisionExtractor
	if cfg.Vision.Enabled {
		client, provider, modelName, err := llm.NewClientFromConfig(cfg)
		if err != nil {
			log.Fatalf("vision llm setup failed: %v", err)
		}
		cb := breaker.Get("vision_llm", breaker.Settings{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			RecoveryTimeout:  time.Duration(cfg.Breaker.RecoveryTimeoutSeconds) * time.Second,
			HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
		})
		vision = extract.NewLLMVision(client, cb)
		logger.Info("vision_enabled", "provider", string(provider), "model", modelName)
	}

	scraper := pipeline.NewScraper(engine, reg, vision, logger)

	// Always construct the gate; per-job respect_robots decides whether
	// a worker consults it.
	robots := jobs.NewRobotsGate(cfg.Scraper.UserAgent)

	orch := jobs.NewOrchestrator(jobs.Stores{
		Jobs:     st.Jobs,
		URLs:     st.URLs,
		Rules:    st.Rules,
		Results:  st.Results,
		Settings: st.Settings,
	}, scraper, robots, cfg, logger)

	retentionCtx, stopRetention := context.WithCancel(context.Background())
	go jobs.RunRetention(retentionCtx, cfg, st.Jobs, logger)

	s := server.NewServer(cfg, st, orch, scraper, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server failed: %v", err)
		}
	case sig := <-sigCh:
		logger.Info("shutdown_signal", "signal", sig.String())
	}

	stopRetention()

	// Stop every running job, then give in-flight URLs a bounded window
	// to finish their writes before the process exits.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	orch.StopAll(shutdownCtx)

	done := make(chan struct{})
	go func() {
		orch.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown_timeout", "detail", "workers still draining")
	}

	if err := s.Shutdown(); err != nil {
		logger.Error("server_shutdown_failed", "error", err)
	}
}
