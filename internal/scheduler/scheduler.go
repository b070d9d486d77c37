package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tcad/internal/model"
)

// MonitorStore is the slice of the store the scheduler reads and
// advances.
type MonitorStore interface {
	FindActiveMonitoredSearches(ctx context.Context) ([]model.MonitoredSearch, error)
	SetMonitoredSearchLastRun(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Enqueuer submits a scrape for a monitored term. Implementations run
// the gate first and report refusal as accepted=false.
type Enqueuer interface {
	EnqueueMonitored(ctx context.Context, term string) (accepted bool, err error)
}

// Scheduler re-enqueues monitored searches on their cadence. One scan
// runs at a time; terms whose enqueue is refused by the gate keep
// their lastRunAt so the next scan retries them.
type Scheduler struct {
	store    MonitorStore
	enqueuer Enqueuer
	interval time.Duration
	logger   *slog.Logger

	now func() time.Time
}

func New(store MonitorStore, enqueuer Enqueuer, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		enqueuer: enqueuer,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start launches the scan loop in its own goroutine; it exits when ctx
// is done.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			s.Scan(ctx)
		}
	}()
}

// Scan enqueues every monitored search that is due. Exported so tests
// can drive it without the ticker.
func (s *Scheduler) Scan(ctx context.Context) {
	monitors, err := s.store.FindActiveMonitoredSearches(ctx)
	if err != nil {
		s.logInfo("monitor_scan_failed", "error", err.Error())
		return
	}

	now := s.now().UTC()
	for _, m := range monitors {
		if !due(m, now) {
			continue
		}

		accepted, err := s.enqueuer.EnqueueMonitored(ctx, m.SearchTerm)
		if err != nil {
			s.logInfo("monitor_enqueue_failed", "term", m.SearchTerm, "error", err.Error())
			continue
		}
		if !accepted {
			// The gate refused (too recent or already active); leave
			// lastRunAt alone so the term stays due.
			continue
		}

		if err := s.store.SetMonitoredSearchLastRun(ctx, m.ID, now); err != nil {
			s.logInfo("monitor_advance_failed", "term", m.SearchTerm, "error", err.Error())
			continue
		}
		s.logInfo("monitor_enqueued", "term", m.SearchTerm, "frequency", string(m.Frequency))
	}
}

// due reports whether the monitor's cadence has elapsed since its last
// run. A monitor that has never run is always due.
func due(m model.MonitoredSearch, now time.Time) bool {
	if !m.Frequency.Valid() {
		return false
	}
	if m.LastRunAt == nil {
		return true
	}
	return now.Sub(*m.LastRunAt) >= m.Frequency.Interval()
}

func (s *Scheduler) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
