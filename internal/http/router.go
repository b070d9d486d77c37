package http

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tcad/internal/config"
	"tcad/internal/metrics"
	"tcad/internal/queue"
	"tcad/internal/services"
	"tcad/internal/store"
	"tcad/internal/token"
	"tcad/internal/translate"
)

// Server is the thin HTTP surface over the scraping core.
type Server struct {
	app        *fiber.App
	config     *config.Config
	store      *store.Store
	enqueue    *services.EnqueueService
	inspector  *queue.Inspector
	tokens     *token.Manager
	translator *translate.Translator
	rdb        *redis.Client
	logger     *slog.Logger
}

func NewServer(
	cfg *config.Config,
	st *store.Store,
	enqueue *services.EnqueueService,
	inspector *queue.Inspector,
	tokens *token.Manager,
	translator *translate.Translator,
	rdb *redis.Client,
	logger *slog.Logger,
) *Server {
	app := fiber.New()

	s := &Server{
		app:        app,
		config:     cfg,
		store:      st,
		enqueue:    enqueue,
		inspector:  inspector,
		tokens:     tokens,
		translator: translator,
		rdb:        rdb,
		logger:     logger,
	}

	// Request logging middleware.
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)

		err := c.Next()

		if logger != nil {
			logger.Info("request",
				"request_id", reqID,
				"method", c.Method(),
				"path", c.Path(),
				"status", c.Response().StatusCode(),
				"latency_ms", time.Since(start).Milliseconds(),
			)
		}

		return err
	})

	app.Get("/healthz", s.handleHealthz)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	v1 := app.Group("/v1")
	v1.Post("/scrape", s.enqueueRateLimit(), s.handleScrape)
	v1.Get("/jobs", s.handleListJobs)
	v1.Get("/jobs/:id", s.handleGetJob)
	v1.Post("/query", s.handleQuery)
	v1.Post("/monitors", s.handleUpsertMonitor)
	v1.Get("/monitors", s.handleListMonitors)
	v1.Get("/token/health", s.handleTokenHealth)

	return s
}

// Listen blocks serving HTTP on the configured host/port.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown stops the HTTP listener gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
