package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"tcad/internal/appraisal"
	"tcad/internal/config"
	"tcad/internal/metrics"
	"tcad/internal/model"
	"tcad/internal/store"
)

// Progress milestones are advisory; they exist so a polling UI can
// show movement, not to measure work precisely.
const (
	progressClaimed  = 10
	progressFetched  = 30
	progressUpserted = 70
	progressDone     = 100
)

// Fetcher is the upstream client as the worker sees it.
type Fetcher interface {
	Fetch(ctx context.Context, token, term string, year int) (*appraisal.Result, error)
}

// TokenSource is the token manager as the worker sees it.
type TokenSource interface {
	Current() (string, bool)
	RefreshNow(ctx context.Context) (string, error)
}

// JobStore is the slice of the store the worker needs.
type JobStore interface {
	UpdateScrapeJob(ctx context.Context, id uuid.UUID, patch store.JobPatch) error
	UpsertProperties(ctx context.Context, props []model.Property) (store.UpsertStats, error)
}

// Worker processes one scrape task end to end: token, paginated fetch,
// upsert, job-row bookkeeping. It is the single place retry policy
// lives; the client's page-size ladder below it is one logical call.
type Worker struct {
	fetcher Fetcher
	tokens  TokenSource
	store   JobStore
	year    int
	logger  *slog.Logger
}

func NewWorker(fetcher Fetcher, tokens TokenSource, st JobStore, year int, logger *slog.Logger) *Worker {
	return &Worker{
		fetcher: fetcher,
		tokens:  tokens,
		store:   st,
		year:    year,
		logger:  logger,
	}
}

// ProcessTask is the asynq handler for TypeScrape. Returning an error
// hands the task back to the broker for delayed redelivery; wrapping
// asynq.SkipRetry fails it immediately.
func (w *Worker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p ScrapePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("VALIDATION_ERROR: bad scrape payload: %v: %w", err, asynq.SkipRetry)
	}

	jobID, err := uuid.Parse(p.JobID)
	if err != nil {
		return fmt.Errorf("VALIDATION_ERROR: bad job id %q: %w", p.JobID, asynq.SkipRetry)
	}

	year := p.Year
	if year == 0 {
		year = w.year
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	attempt := retried + 1

	started := time.Now().UTC()
	w.markProcessing(ctx, jobID, attempt, started)

	w.logInfo("scrape_started", "job_id", p.JobID, "term", p.SearchTerm, "attempt", attempt)

	runErr := w.run(ctx, jobID, p.SearchTerm, year, started)
	if runErr == nil {
		metrics.RecordJob("completed", time.Since(started).Seconds())
		return nil
	}

	retryable := true
	var ae *appraisal.Error
	if errors.As(runErr, &ae) {
		retryable = ae.Retryable()
	}

	final := !retryable || retried >= maxRetry
	if final {
		w.markFailed(ctx, jobID, runErr)
		metrics.RecordJob("failed", time.Since(started).Seconds())
		w.logInfo("scrape_failed", "job_id", p.JobID, "term", p.SearchTerm, "attempt", attempt, "error", runErr.Error())
		if !retryable {
			return fmt.Errorf("%v: %w", runErr, asynq.SkipRetry)
		}
		return runErr
	}

	// Record the error but put the row back to pending; the broker
	// redelivers after backoff.
	msg := runErr.Error()
	pending := model.StatusPending
	_ = w.store.UpdateScrapeJob(ctx, jobID, store.JobPatch{Status: &pending, Error: &msg})
	metrics.RecordJob("retried", time.Since(started).Seconds())
	w.logInfo("scrape_retrying", "job_id", p.JobID, "term", p.SearchTerm, "attempt", attempt, "error", msg)
	return runErr
}

// run performs the actual scrape for one attempt.
func (w *Worker) run(ctx context.Context, jobID uuid.UUID, term string, year int, started time.Time) error {
	token, ok := w.tokens.Current()
	if !ok {
		fresh, err := w.tokens.RefreshNow(ctx)
		if err != nil || fresh == "" {
			return appraisal.NewError(appraisal.KindNoToken, "no token and refresh failed")
		}
		token = fresh
	}

	res, err := w.fetcher.Fetch(ctx, token, term, year)
	if appraisal.KindOf(err) == appraisal.KindTokenExpired {
		// Inline refresh plus one retry saves a queue round-trip for
		// the common case of a token dying mid-job.
		fresh, rerr := w.tokens.RefreshNow(ctx)
		if rerr == nil && fresh != "" {
			res, err = w.fetcher.Fetch(ctx, fresh, term, year)
		}
	}
	if err != nil {
		return err
	}

	w.setProgress(ctx, jobID, progressFetched)

	props := appraisal.MapRecords(res.Records, term, time.Now().UTC())
	stats, err := w.store.UpsertProperties(ctx, props)
	if err != nil {
		return appraisal.WrapError(appraisal.KindStoreError, err)
	}
	metrics.RecordUpsert(stats.Inserted, stats.Updated)

	w.setProgress(ctx, jobID, progressUpserted)

	now := time.Now().UTC()
	completed := model.StatusCompleted
	progress := progressDone
	count := len(props)
	empty := ""
	if err := w.store.UpdateScrapeJob(ctx, jobID, store.JobPatch{
		Status:      &completed,
		Progress:    &progress,
		ResultCount: &count,
		Error:       &empty,
		CompletedAt: &now,
	}); err != nil {
		return appraisal.WrapError(appraisal.KindStoreError, err)
	}

	w.logInfo("scrape_completed",
		"job_id", jobID.String(),
		"term", term,
		"result_count", count,
		"page_size", res.PageSizeUsed,
		"truncated", res.Truncated,
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

func (w *Worker) markProcessing(ctx context.Context, jobID uuid.UUID, attempt int, started time.Time) {
	processing := model.StatusProcessing
	progress := progressClaimed
	_ = w.store.UpdateScrapeJob(ctx, jobID, store.JobPatch{
		Status:    &processing,
		Progress:  &progress,
		Attempts:  &attempt,
		StartedAt: &started,
	})
}

func (w *Worker) markFailed(ctx context.Context, jobID uuid.UUID, runErr error) {
	failed := model.StatusFailed
	msg := runErr.Error()
	now := time.Now().UTC()
	_ = w.store.UpdateScrapeJob(ctx, jobID, store.JobPatch{
		Status:      &failed,
		Error:       &msg,
		CompletedAt: &now,
	})
}

func (w *Worker) setProgress(ctx context.Context, jobID uuid.UUID, progress int) {
	_ = w.store.UpdateScrapeJob(ctx, jobID, store.JobPatch{Progress: &progress})
}

func (w *Worker) logInfo(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Info(msg, args...)
	}
}

// RetryDelay is the broker backoff policy: base * 2^n with ±25%
// jitter.
func RetryDelay(base time.Duration) asynq.RetryDelayFunc {
	return func(n int, err error, task *asynq.Task) time.Duration {
		delay := base << n
		jitter := (rand.Float64()*0.5 - 0.25) * float64(delay)
		return delay + time.Duration(jitter)
	}
}

// Server wraps the asynq worker server.
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

// NewServer builds the worker server: N concurrent workers over the
// weighted scrape queues, exponential backoff between redeliveries,
// and a drain window on shutdown so active jobs can finish or be
// surrendered to the broker.
func NewServer(opt asynq.RedisClientOpt, cfg config.WorkerConfig, worker *Worker, logger *slog.Logger) *Server {
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency:     cfg.Workers,
		Queues:          QueueWeights(),
		RetryDelayFunc:  RetryDelay(time.Duration(cfg.BackoffBaseMs) * time.Millisecond),
		ShutdownTimeout: 30 * time.Second,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			if logger != nil {
				logger.Error("task_error", "type", task.Type(), "error", err.Error())
			}
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeScrape, worker.ProcessTask)

	return &Server{srv: srv, mux: mux}
}

// Start launches the worker server in the background.
func (s *Server) Start() error {
	return s.srv.Start(s.mux)
}

// Shutdown drains active jobs up to the configured grace period.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
}
