package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tcad/internal/model"
)

// upsertChunkSize bounds how many properties go into one transaction.
const upsertChunkSize = 500

// Store wraps access to the database via a shared *sql.DB with pooling.
type Store struct {
	DB *sql.DB
}

// New creates a new Store on the shared handle.
func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

// CreateScrapeJob inserts a pending job row for the given term. The id
// is the broker task id so the two systems share one identity.
func (s *Store) CreateScrapeJob(ctx context.Context, id uuid.UUID, term string, priority int) (model.ScrapeJob, error) {
	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO scrape_jobs (id, search_term, status, progress, result_count, attempts, priority)
		VALUES ($1, $2, $3, 0, 0, 0, $4)
		RETURNING id, search_term, status, progress, result_count, error, attempts, priority,
		          started_at, completed_at, created_at, updated_at`,
		id, term, string(model.StatusPending), priority)
	return scanJob(row)
}

// JobPatch carries the mutable fields of a scrape job; nil fields are
// left untouched.
type JobPatch struct {
	Status      *model.JobStatus
	Progress    *int
	ResultCount *int
	Error       *string
	Attempts    *int
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// UpdateScrapeJob applies a patch to one job row.
func (s *Store) UpdateScrapeJob(ctx context.Context, id uuid.UUID, patch JobPatch) error {
	sets := []string{"updated_at = now()"}
	var args []any
	argPos := 1

	add := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argPos))
		args = append(args, val)
		argPos++
	}

	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.Progress != nil {
		add("progress", *patch.Progress)
	}
	if patch.ResultCount != nil {
		add("result_count", *patch.ResultCount)
	}
	if patch.Error != nil {
		add("error", *patch.Error)
	}
	if patch.Attempts != nil {
		add("attempts", *patch.Attempts)
	}
	if patch.StartedAt != nil {
		add("started_at", *patch.StartedAt)
	}
	if patch.CompletedAt != nil {
		add("completed_at", *patch.CompletedAt)
	}

	query := fmt.Sprintf("UPDATE scrape_jobs SET %s WHERE id = $%d", strings.Join(sets, ", "), argPos)
	args = append(args, id)

	_, err := s.DB.ExecContext(ctx, query, args...)
	return err
}

// GetScrapeJob fetches a single job row by id.
func (s *Store) GetScrapeJob(ctx context.Context, id uuid.UUID) (model.ScrapeJob, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, search_term, status, progress, result_count, error, attempts, priority,
		       started_at, completed_at, created_at, updated_at
		FROM scrape_jobs WHERE id = $1`, id)
	return scanJob(row)
}

// JobListFilter describes optional filters for listing jobs.
type JobListFilter struct {
	Status     string
	SearchTerm string
	Limit      int32
	Offset     int32
}

// ListScrapeJobs returns jobs matching the filter, newest first.
func (s *Store) ListScrapeJobs(ctx context.Context, filter JobListFilter) ([]model.ScrapeJob, error) {
	baseQuery := `
		SELECT id, search_term, status, progress, result_count, error, attempts, priority,
		       started_at, completed_at, created_at, updated_at
		FROM scrape_jobs`
	var conditions []string
	var args []any
	argPos := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, filter.Status)
		argPos++
	}
	if filter.SearchTerm != "" {
		conditions = append(conditions, fmt.Sprintf("search_term = $%d", argPos))
		args = append(args, filter.SearchTerm)
		argPos++
	}

	if len(conditions) > 0 {
		baseQuery = baseQuery + " WHERE " + strings.Join(conditions, " AND ")
	}

	baseQuery = baseQuery + " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	baseQuery = baseQuery + fmt.Sprintf(" LIMIT $%d", argPos)
	args = append(args, limit)
	argPos++

	if filter.Offset > 0 {
		baseQuery = baseQuery + fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, filter.Offset)
	}

	rows, err := s.DB.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.ScrapeJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpsertStats reports the split between fresh inserts and overwrites.
type UpsertStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// UpsertProperties merges a scraped batch into the properties table,
// keyed by property_id. Existing rows have every mutable field
// overwritten and created_at preserved, so replaying the same batch is
// a no-op beyond updated_at. Large batches are chunked into separate
// transactions; per-record idempotence holds across chunk boundaries.
func (s *Store) UpsertProperties(ctx context.Context, props []model.Property) (UpsertStats, error) {
	var stats UpsertStats

	for start := 0; start < len(props); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(props) {
			end = len(props)
		}

		chunkStats, err := s.upsertChunk(ctx, props[start:end])
		if err != nil {
			return stats, err
		}
		stats.Inserted += chunkStats.Inserted
		stats.Updated += chunkStats.Updated
	}

	return stats, nil
}

func (s *Store) upsertChunk(ctx context.Context, chunk []model.Property) (UpsertStats, error) {
	var stats UpsertStats

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO properties (property_id, name, prop_type, city, property_address,
		                        assessed_value, appraised_value, geo_id, description,
		                        search_term, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (property_id) DO UPDATE SET
			name = EXCLUDED.name,
			prop_type = EXCLUDED.prop_type,
			city = EXCLUDED.city,
			property_address = EXCLUDED.property_address,
			assessed_value = EXCLUDED.assessed_value,
			appraised_value = EXCLUDED.appraised_value,
			geo_id = EXCLUDED.geo_id,
			description = EXCLUDED.description,
			search_term = EXCLUDED.search_term,
			scraped_at = EXCLUDED.scraped_at,
			updated_at = now()
		RETURNING (xmax = 0) AS inserted`)
	if err != nil {
		return stats, err
	}
	defer stmt.Close()

	for _, p := range chunk {
		var inserted bool
		err := stmt.QueryRowContext(ctx,
			p.PropertyID, p.Name, p.PropType, nullString(p.City), p.PropertyAddress,
			p.AssessedValue, p.AppraisedValue, nullString(p.GeoID), nullString(p.Description),
			p.SearchTerm, p.ScrapedAt,
		).Scan(&inserted)
		if err != nil {
			return stats, err
		}
		if inserted {
			stats.Inserted++
		} else {
			stats.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return stats, err
	}
	return stats, nil
}

// PropertyQuery describes one read-path page over properties.
type PropertyQuery struct {
	Filter  map[string]any
	OrderBy string
	Limit   int
	Offset  int
}

// orderableColumns whitelists sort keys for FindProperties.
var orderableColumns = map[string]string{
	"name":           "name",
	"city":           "city",
	"assessedValue":  "assessed_value",
	"appraisedValue": "appraised_value",
	"scrapedAt":      "scraped_at",
	"createdAt":      "created_at",
}

// FindProperties runs a filter (the translator's grammar) against the
// properties table and returns one page plus the total match count.
func (s *Store) FindProperties(ctx context.Context, q PropertyQuery) ([]model.Property, int, error) {
	where, args := BuildWhere(q.Filter)

	countQuery := "SELECT count(*) FROM properties" + where
	var total int
	if err := s.DB.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	orderBy := "created_at DESC"
	if col, ok := orderableColumns[q.OrderBy]; ok {
		orderBy = col + " ASC"
	}

	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT property_id, name, prop_type, city, property_address,
		       assessed_value, appraised_value, geo_id, description,
		       search_term, scraped_at, created_at, updated_at
		FROM properties%s ORDER BY %s LIMIT %d OFFSET %d`, where, orderBy, limit, offset)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var props []model.Property
	for rows.Next() {
		var p model.Property
		var city, geoID, description sql.NullString
		if err := rows.Scan(&p.PropertyID, &p.Name, &p.PropType, &city, &p.PropertyAddress,
			&p.AssessedValue, &p.AppraisedValue, &geoID, &description,
			&p.SearchTerm, &p.ScrapedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		p.City = fromNullString(city)
		p.GeoID = fromNullString(geoID)
		p.Description = fromNullString(description)
		props = append(props, p)
	}
	return props, total, rows.Err()
}

// UpsertMonitoredSearch creates or updates the monitor row for a term.
func (s *Store) UpsertMonitoredSearch(ctx context.Context, term string, freq model.Frequency, active bool) (model.MonitoredSearch, error) {
	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO monitored_searches (id, search_term, frequency, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (search_term) DO UPDATE SET
			frequency = EXCLUDED.frequency,
			active = EXCLUDED.active,
			updated_at = now()
		RETURNING id, search_term, frequency, active, last_run_at, created_at, updated_at`,
		uuid.New(), term, string(freq), active)
	return scanMonitor(row)
}

// FindActiveMonitoredSearches returns every active monitor row.
func (s *Store) FindActiveMonitoredSearches(ctx context.Context) ([]model.MonitoredSearch, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, search_term, frequency, active, last_run_at, created_at, updated_at
		FROM monitored_searches WHERE active ORDER BY search_term`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var monitors []model.MonitoredSearch
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

// SetMonitoredSearchLastRun advances last_run_at after an accepted
// enqueue.
func (s *Store) SetMonitoredSearchLastRun(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE monitored_searches SET last_run_at = $1, updated_at = now() WHERE id = $2`, at, id)
	return err
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (model.ScrapeJob, error) {
	var job model.ScrapeJob
	var status string
	var jobErr sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&job.ID, &job.SearchTerm, &status, &job.Progress, &job.ResultCount,
		&jobErr, &job.Attempts, &job.Priority, &startedAt, &completedAt,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return model.ScrapeJob{}, err
	}

	job.Status = model.JobStatus(status)
	job.Error = fromNullString(jobErr)
	job.StartedAt = fromNullTime(startedAt)
	job.CompletedAt = fromNullTime(completedAt)
	return job, nil
}

func scanMonitor(row scanner) (model.MonitoredSearch, error) {
	var m model.MonitoredSearch
	var freq string
	var lastRunAt sql.NullTime

	err := row.Scan(&m.ID, &m.SearchTerm, &freq, &m.Active, &lastRunAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return model.MonitoredSearch{}, err
	}

	m.Frequency = model.Frequency(freq)
	m.LastRunAt = fromNullTime(lastRunAt)
	return m, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
