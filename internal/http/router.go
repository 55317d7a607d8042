package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"scrapeforge/internal/config"
	"scrapeforge/internal/jobs"
	"scrapeforge/internal/metrics"
	"scrapeforge/internal/store"
)

type Server struct {
	app    *fiber.App
	config *config.Config
	store  *store.Store
	logger *slog.Logger
}

// NewServer assembles the fiber app. The orchestrator drives job
// lifecycle endpoints; proc is the same pipeline the workers use and
// backs the synchronous preview endpoint.
func NewServer(cfg *config.Config, st *store.Store, orch *jobs.Orchestrator, proc jobs.URLProcessor, logger *slog.Logger) *Server {
	app := fiber.New()

	// Inject config, store, orchestrator and pipeline into context for handlers
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("config", cfg)
		c.Locals("store", st)
		c.Locals("orchestrator", orch)
		c.Locals("scraper", proc)
		return c.Next()
	})

	// Request logging + metrics middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		// Ensure a request ID exists and echo it back
		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		c.Set("X-Request-Id", reqID)

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		path := c.Path()

		metrics.RecordRequest(method, path, status, latency.Milliseconds())

		if logger != nil {
			logger.Info("request",
				"request_id", reqID,
				"method", method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}

		return err
	})

	// Redis client for rate limiting and health checks
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		if opt, err := redis.ParseURL(cfg.Redis.URL); err == nil {
			rdb = redis.NewClient(opt)
		}
	}

	// Health endpoints
	app.Get("/healthz", func(c *fiber.Ctx) error {
		// Shallow health: process is up
		deep := c.Query("deep")
		if deep != "1" && deep != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		// Deep health: check DB and Redis connectivity and report
		// whether the browser fetcher is configured.
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "ok"
		if err := st.DB.PingContext(ctx); err != nil {
			dbStatus = "error"
		}

		redisStatus := "disabled"
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}

		browserStatus := "disabled"
		if cfg.Browser.Enabled {
			browserStatus = "enabled"
		}

		status := "ok"
		if dbStatus != "ok" || redisStatus == "error" {
			status = "error"
		}

		return c.JSON(fiber.Map{
			"status":  status,
			"db":      dbStatus,
			"redis":   redisStatus,
			"browser": browserStatus,
		})
	})

	// Prometheus-style metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	authMw := authMiddleware(cfg)
	var rateMw fiber.Handler
	if rdb != nil && cfg.RateLimit.Enabled {
		rateMw = rateLimitMiddleware(cfg, rdb)
	} else {
		rateMw = func(c *fiber.Ctx) error { return c.Next() }
	}

	v1 := app.Group("/v1", authMw, rateMw)
	registerV1Routes(v1)

	return &Server{
		app:    app,
		config: cfg,
		store:  st,
		logger: logger,
	}
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func registerV1Routes(group fiber.Router) {
	group.Post("/jobs", createJobHandler)
	group.Get("/jobs", listJobsHandler)
	group.Get("/jobs/:id", jobStatusHandler)
	group.Delete("/jobs/:id", deleteJobHandler)
	group.Post("/jobs/:id/start", startJobHandler)
	group.Post("/jobs/:id/pause", pauseJobHandler)
	group.Post("/jobs/:id/resume", resumeJobHandler)
	group.Post("/jobs/:id/stop", stopJobHandler)
	group.Post("/jobs/:id/archive", archiveJobHandler)
	group.Post("/jobs/:id/unarchive", unarchiveJobHandler)
	group.Get("/jobs/:id/logs", jobLogsHandler)
	group.Get("/jobs/:id/urls", jobURLsHandler)
	group.Get("/jobs/:id/results", jobResultsHandler)
	group.Get("/jobs/:id/export", jobExportHandler)
	group.Post("/scrape", scrapePreviewHandler)
	group.Get("/settings", getSettingsHandler)
	group.Put("/settings", updateSettingsHandler)
}
