package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"tcad/internal/gate"
	"tcad/internal/metrics"
	"tcad/internal/model"
	"tcad/internal/queue"
	"tcad/internal/store"
)

// DefaultPriority is the middle of the 1-10 range; monitored searches
// and callers that do not care land here.
const DefaultPriority = 5

// EnqueueService is the single path onto the queue: every scrape
// enqueue, whether from the HTTP API or the scheduler, runs the gate
// and creates the store row here.
type EnqueueService struct {
	store    *store.Store
	gate     *gate.Gate
	enqueuer *queue.Enqueuer
	year     int
	logger   *slog.Logger
}

func NewEnqueueService(st *store.Store, g *gate.Gate, enqueuer *queue.Enqueuer, year int, logger *slog.Logger) *EnqueueService {
	return &EnqueueService{
		store:    st,
		gate:     g,
		enqueuer: enqueuer,
		year:     year,
		logger:   logger,
	}
}

// Enqueue gates and submits one scrape job. accepted=false means the
// gate refused; the job id is only valid when accepted is true and err
// is nil.
func (s *EnqueueService) Enqueue(ctx context.Context, term string, priority int) (uuid.UUID, bool, error) {
	if priority < 1 {
		priority = 1
	}
	if priority > 10 {
		priority = 10
	}

	if ok, _ := s.gate.CanSchedule(ctx, term); !ok {
		metrics.RecordEnqueueRejected()
		return uuid.Nil, false, nil
	}

	jobID := newJobID()

	if _, err := s.store.CreateScrapeJob(ctx, jobID, term, priority); err != nil {
		return uuid.Nil, false, err
	}

	if err := s.enqueuer.EnqueueScrape(ctx, jobID, term, s.year, priority); err != nil {
		// The row exists but the broker never saw the task; fail the
		// row so it does not sit pending forever.
		failed := model.StatusFailed
		msg := "enqueue failed: " + err.Error()
		_ = s.store.UpdateScrapeJob(ctx, jobID, store.JobPatch{Status: &failed, Error: &msg})
		return uuid.Nil, false, err
	}

	s.gate.RecordScheduled(term)

	s.logInfo("scrape_enqueued", "job_id", jobID.String(), "term", term, "priority", priority)
	return jobID, true, nil
}

// EnqueueMonitored is the scheduler-facing variant with the default
// priority.
func (s *EnqueueService) EnqueueMonitored(ctx context.Context, term string) (bool, error) {
	_, accepted, err := s.Enqueue(ctx, term, DefaultPriority)
	return accepted, err
}

// newJobID prefers uuidv7 so job ids sort by creation time.
func newJobID() uuid.UUID {
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}

func (s *EnqueueService) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
