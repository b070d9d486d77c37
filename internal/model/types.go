package model

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a scrape job in the
// scrape_jobs table. These values must match the text values stored
// in the database (scrape_jobs.status).
//
// Centralizing these here avoids scattering string literals like
// "pending" or "completed" across packages.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Frequency is the re-enqueue cadence of a monitored search.
type Frequency string

const (
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Interval returns the wall-clock duration of one cadence period.
// Monthly is approximated as 30 days; the scheduler only needs a
// lower bound between runs, not calendar arithmetic.
func (f Frequency) Interval() time.Duration {
	switch f {
	case FrequencyHourly:
		return time.Hour
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	}
	return 0
}

// Valid reports whether f is one of the recognized cadences.
func (f Frequency) Valid() bool {
	return f.Interval() > 0
}

// Property is one scraped appraisal record. PropertyID is the upstream
// identity; a re-scrape overwrites every mutable field and preserves
// CreatedAt (last-writer-wins).
type Property struct {
	PropertyID      string
	Name            string
	PropType        string
	City            *string
	PropertyAddress string
	AssessedValue   int64
	AppraisedValue  int64
	GeoID           *string
	Description     *string
	SearchTerm      string
	ScrapedAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ScrapeJob is the store-side record of one unit of scraping work. The
// broker owns queue state; this row carries user-visible progress and
// the terminal outcome.
type ScrapeJob struct {
	ID          uuid.UUID
	SearchTerm  string
	Status      JobStatus
	Progress    int
	ResultCount int
	Error       *string
	Attempts    int
	Priority    int
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MonitoredSearch is a term the scheduler re-enqueues on a cadence.
type MonitoredSearch struct {
	ID         uuid.UUID
	SearchTerm string
	Frequency  Frequency
	Active     bool
	LastRunAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
