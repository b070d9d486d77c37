package http

import (
	"time"

	"tcad/internal/model"
)

// ErrorResponse is the uniform failure envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// ScrapeRequest enqueues one term.
type ScrapeRequest struct {
	SearchTerm string `json:"searchTerm"`
	Priority   *int   `json:"priority,omitempty"`
}

// ScrapeAccepted is returned with 202 when the job is queued.
type ScrapeAccepted struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
}

// JobJSON is the API view of a scrape job row.
type JobJSON struct {
	ID          string     `json:"id"`
	SearchTerm  string     `json:"searchTerm"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	ResultCount int        `json:"resultCount"`
	Error       *string    `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
	Priority    int        `json:"priority"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func jobJSON(job model.ScrapeJob) JobJSON {
	return JobJSON{
		ID:          job.ID.String(),
		SearchTerm:  job.SearchTerm,
		Status:      string(job.Status),
		Progress:    job.Progress,
		ResultCount: job.ResultCount,
		Error:       job.Error,
		Attempts:    job.Attempts,
		Priority:    job.Priority,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		CreatedAt:   job.CreatedAt,
	}
}

// PropertyJSON is the API view of a property row.
type PropertyJSON struct {
	PropertyID      string    `json:"propertyId"`
	Name            string    `json:"name"`
	PropType        string    `json:"propType"`
	City            *string   `json:"city"`
	PropertyAddress string    `json:"propertyAddress"`
	AssessedValue   int64     `json:"assessedValue"`
	AppraisedValue  int64     `json:"appraisedValue"`
	GeoID           *string   `json:"geoId"`
	Description     *string   `json:"description"`
	SearchTerm      string    `json:"searchTerm"`
	ScrapedAt       time.Time `json:"scrapedAt"`
}

func propertyJSON(p model.Property) PropertyJSON {
	return PropertyJSON{
		PropertyID:      p.PropertyID,
		Name:            p.Name,
		PropType:        p.PropType,
		City:            p.City,
		PropertyAddress: p.PropertyAddress,
		AssessedValue:   p.AssessedValue,
		AppraisedValue:  p.AppraisedValue,
		GeoID:           p.GeoID,
		Description:     p.Description,
		SearchTerm:      p.SearchTerm,
		ScrapedAt:       p.ScrapedAt,
	}
}

// QueryRequest is the natural-language read path.
type QueryRequest struct {
	Query   string `json:"query"`
	OrderBy string `json:"orderBy,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// QueryResponse returns the translated filter alongside one result
// page so callers can see what their words became.
type QueryResponse struct {
	Success     bool           `json:"success"`
	Filter      map[string]any `json:"filter"`
	Explanation string         `json:"explanation"`
	Fallback    bool           `json:"fallback"`
	Total       int            `json:"total"`
	Properties  []PropertyJSON `json:"properties"`
}

// MonitorRequest creates or updates a monitored search.
type MonitorRequest struct {
	SearchTerm string `json:"searchTerm"`
	Frequency  string `json:"frequency"`
	Active     *bool  `json:"active,omitempty"`
}

// MonitorJSON is the API view of a monitored search.
type MonitorJSON struct {
	ID         string     `json:"id"`
	SearchTerm string     `json:"searchTerm"`
	Frequency  string     `json:"frequency"`
	Active     bool       `json:"active"`
	LastRunAt  *time.Time `json:"lastRunAt,omitempty"`
}

func monitorJSON(m model.MonitoredSearch) MonitorJSON {
	return MonitorJSON{
		ID:         m.ID.String(),
		SearchTerm: m.SearchTerm,
		Frequency:  string(m.Frequency),
		Active:     m.Active,
		LastRunAt:  m.LastRunAt,
	}
}
