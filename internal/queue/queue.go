package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"tcad/internal/config"
)

// TypeScrape is the broker task type for one term scrape.
const TypeScrape = "scrape:term"

// Queue names, highest priority first. asynq weights make priority
// advisory rather than strict, which is all the enqueue API promises.
const (
	QueueCritical = "scrape-critical"
	QueueDefault  = "scrape-default"
	QueueLow      = "scrape-low"
)

// QueueWeights returns the processing weights for the worker server.
func QueueWeights() map[string]int {
	return map[string]int{
		QueueCritical: 6,
		QueueDefault:  3,
		QueueLow:      1,
	}
}

// queueForPriority maps the API's 1-10 priority (1 highest) onto the
// three weighted queues.
func queueForPriority(priority int) string {
	switch {
	case priority <= 3:
		return QueueCritical
	case priority <= 7:
		return QueueDefault
	default:
		return QueueLow
	}
}

// ScrapePayload is the broker-side payload of a scrape task. The job
// id doubles as the asynq task id so the store row and broker task
// share one identity.
type ScrapePayload struct {
	JobID      string `json:"jobId"`
	SearchTerm string `json:"searchTerm"`
	Year       int    `json:"year"`
}

// ErrDuplicateJob is returned when a task with the same job id is
// already queued.
var ErrDuplicateJob = errors.New("job already enqueued")

// RedisOpt builds the asynq connection options from config.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// Enqueuer submits scrape tasks to the broker.
type Enqueuer struct {
	client      *asynq.Client
	maxAttempts int
	jobTimeout  time.Duration
}

// NewEnqueuer builds an Enqueuer with the worker retry/timeout policy
// baked into every task it submits.
func NewEnqueuer(opt asynq.RedisClientOpt, cfg config.WorkerConfig) *Enqueuer {
	return &Enqueuer{
		client:      asynq.NewClient(opt),
		maxAttempts: cfg.MaxAttempts,
		jobTimeout:  time.Duration(cfg.JobTimeoutMs) * time.Millisecond,
	}
}

// EnqueueScrape submits one scrape task. MaxRetry is attempts-1: the
// first delivery plus retries adds up to maxAttempts.
func (e *Enqueuer) EnqueueScrape(ctx context.Context, jobID uuid.UUID, term string, year, priority int) error {
	payload, err := json.Marshal(ScrapePayload{
		JobID:      jobID.String(),
		SearchTerm: term,
		Year:       year,
	})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypeScrape, payload)
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.TaskID(jobID.String()),
		asynq.Queue(queueForPriority(priority)),
		asynq.MaxRetry(e.maxAttempts-1),
		asynq.Timeout(e.jobTimeout),
		asynq.Retention(24*time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return ErrDuplicateJob
	}
	return err
}

func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// Counts aggregates queue depths across the three scrape queues for
// the jobs API.
type Counts struct {
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Retry     int `json:"retry"`
	Scheduled int `json:"scheduled"`
	Archived  int `json:"archived"`
	Completed int `json:"completed"`
}

// Inspector reads broker state: queue counts and the set of terms
// currently being processed (the gate's active-set check).
type Inspector struct {
	insp *asynq.Inspector
}

func NewInspector(opt asynq.RedisClientOpt) *Inspector {
	return &Inspector{insp: asynq.NewInspector(opt)}
}

// ActiveTerms returns the normalized search terms of every task a
// worker is processing right now, across all scrape queues. This
// check races with claim/ack by design; the upsert absorbs the odd
// duplicate that slips through.
func (i *Inspector) ActiveTerms(ctx context.Context) (map[string]struct{}, error) {
	terms := make(map[string]struct{})

	for queue := range QueueWeights() {
		tasks, err := i.insp.ListActiveTasks(queue, asynq.PageSize(200))
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			return nil, err
		}
		for _, task := range tasks {
			var p ScrapePayload
			if err := json.Unmarshal(task.Payload, &p); err != nil {
				continue
			}
			terms[strings.ToLower(strings.TrimSpace(p.SearchTerm))] = struct{}{}
		}
	}

	return terms, nil
}

// Counts sums queue statistics over the scrape queues. Queues that do
// not exist yet simply contribute zero.
func (i *Inspector) Counts(ctx context.Context) (Counts, error) {
	var counts Counts

	for queue := range QueueWeights() {
		info, err := i.insp.GetQueueInfo(queue)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			return counts, err
		}
		counts.Pending += info.Pending
		counts.Active += info.Active
		counts.Retry += info.Retry
		counts.Scheduled += info.Scheduled
		counts.Archived += info.Archived
		counts.Completed += info.Completed
	}

	return counts, nil
}

func (i *Inspector) Close() error {
	return i.insp.Close()
}
