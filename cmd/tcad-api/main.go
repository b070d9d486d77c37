package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"tcad/internal/appraisal"
	"tcad/internal/config"
	"tcad/internal/gate"
	server "tcad/internal/http"
	"tcad/internal/migrate"
	"tcad/internal/queue"
	"tcad/internal/scheduler"
	"tcad/internal/services"
	"tcad/internal/store"
	"tcad/internal/token"
	"tcad/internal/translate"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg := config.Load(*configPath)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	// Run migrations on a short-lived connection.
	if err := migrate.Run(cfg.Database.DSN, cfg.Database.MigrationsDir, logger); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// Create a shared *sql.DB with pooling for the Store.
	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	st := store.New(db)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis for the HTTP rate-limit window; the broker keeps its own
	// connections.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Token manager with browser-based acquisition, refreshed on a
	// jittered interval below the upstream token lifetime.
	acquirer := token.NewRodAcquirer(cfg.Token.PortalURL, cfg.Token.StorageKey)
	tokens := token.NewManager(
		acquirer,
		time.Duration(cfg.Token.RefreshMs)*time.Millisecond,
		cfg.Token.JitterPct,
		time.Duration(cfg.Token.AcquireTimeoutMs)*time.Millisecond,
		logger,
	)
	tokens.StartAutoRefresh(rootCtx)
	// Warm the cache so the first job does not pay the acquisition.
	go func() { _, _ = tokens.RefreshNow(rootCtx) }()

	// Upstream client and the worker server that drives it.
	client := appraisal.NewClient(cfg.Upstream, logger)
	worker := queue.NewWorker(client, tokens, st, cfg.Upstream.Year, logger)

	redisOpt := queue.RedisOpt(cfg.Redis)
	workerSrv := queue.NewServer(redisOpt, cfg.Worker, worker, logger)
	if err := workerSrv.Start(); err != nil {
		log.Fatalf("worker server failed: %v", err)
	}

	inspector := queue.NewInspector(redisOpt)
	enqueuer := queue.NewEnqueuer(redisOpt, cfg.Worker)

	g := gate.New(
		time.Duration(cfg.Gate.MinSpacingMs)*time.Millisecond,
		time.Duration(cfg.Gate.EntryTTLMs)*time.Millisecond,
		inspector,
	)
	enqueueSvc := services.NewEnqueueService(st, g, enqueuer, cfg.Upstream.Year, logger)

	completer, provider, llmModel, err := translate.NewCompleterFromConfig(&cfg.LLM)
	if err != nil {
		log.Fatalf("llm config failed: %v", err)
	}
	if completer != nil {
		logger.Info("llm_configured", "provider", string(provider), "model", llmModel)
	}
	translator := translate.NewTranslator(completer, time.Duration(cfg.LLM.TimeoutMs)*time.Millisecond, logger)

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(st, enqueueSvc, time.Duration(cfg.Scheduler.ScanIntervalMs)*time.Millisecond, logger)
		sched.Start(rootCtx)
	}

	s := server.NewServer(cfg, st, enqueueSvc, inspector, tokens, translator, rdb, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Listen() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("server failed: %v", err)
	case sig := <-sigCh:
		logger.Info("shutting_down", "signal", sig.String())
	}

	cancel()
	tokens.Stop()
	workerSrv.Shutdown()
	_ = s.Shutdown()
	_ = enqueuer.Close()
	_ = inspector.Close()
	_ = rdb.Close()
	_ = db.Close()
}
