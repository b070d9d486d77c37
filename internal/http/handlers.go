package http

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"tcad/internal/model"
	"tcad/internal/queue"
	"tcad/internal/services"
	"tcad/internal/store"
)

func (s *Server) handleHealthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"success": true})
}

// handleScrape enqueues a scrape job for one term.
func (s *Server) handleScrape(c *fiber.Ctx) error {
	var req ScrapeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "VALIDATION_ERROR",
			Error:   "invalid request body: " + err.Error(),
		})
	}

	term := strings.TrimSpace(req.SearchTerm)
	if term == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "VALIDATION_ERROR",
			Error:   "searchTerm is required",
		})
	}

	priority := services.DefaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	jobID, accepted, err := s.enqueue.Enqueue(c.Context(), term, priority)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   "enqueue failed: " + err.Error(),
		})
	}
	if !accepted {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Success: false,
			Code:    "ALREADY_SCHEDULED",
			Error:   "already scheduled or too recent",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(ScrapeAccepted{Success: true, JobID: jobID.String()})
}

// handleGetJob returns one job row plus aggregate broker counts.
func (s *Server) handleGetJob(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "VALIDATION_ERROR",
			Error:   "invalid job id",
		})
	}

	job, err := s.store.GetScrapeJob(c.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Success: false,
				Code:    "NOT_FOUND",
				Error:   "job not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   "job lookup failed: " + err.Error(),
		})
	}

	var counts queue.Counts
	if s.inspector != nil {
		counts, _ = s.inspector.Counts(c.Context())
	}

	return c.JSON(fiber.Map{
		"success": true,
		"job":     jobJSON(job),
		"queue":   counts,
	})
}

// handleListJobs lists jobs, optionally filtered by status and term.
func (s *Server) handleListJobs(c *fiber.Ctx) error {
	filter := store.JobListFilter{
		Status:     c.Query("status"),
		SearchTerm: c.Query("searchTerm"),
		Limit:      int32(c.QueryInt("limit", 50)),
		Offset:     int32(c.QueryInt("offset", 0)),
	}

	jobs, err := s.store.ListScrapeJobs(c.Context(), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   "job list failed: " + err.Error(),
		})
	}

	out := make([]JobJSON, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, jobJSON(job))
	}
	return c.JSON(fiber.Map{"success": true, "jobs": out})
}

// handleQuery translates a natural-language request and runs the
// resulting filter against the store.
func (s *Server) handleQuery(c *fiber.Ctx) error {
	var req QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "VALIDATION_ERROR",
			Error:   "invalid request body: " + err.Error(),
		})
	}

	res := s.translator.Translate(c.Context(), req.Query)

	props, total, err := s.store.FindProperties(c.Context(), store.PropertyQuery{
		Filter:  res.Filter,
		OrderBy: req.OrderBy,
		Limit:   req.Limit,
		Offset:  req.Offset,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "STORE_ERROR",
			Error:   "query failed: " + err.Error(),
		})
	}

	out := make([]PropertyJSON, 0, len(props))
	for _, p := range props {
		out = append(out, propertyJSON(p))
	}

	return c.JSON(QueryResponse{
		Success:     true,
		Filter:      res.Filter,
		Explanation: res.Explanation,
		Fallback:    res.Fallback,
		Total:       total,
		Properties:  out,
	})
}

// handleUpsertMonitor creates or updates a monitored search.
func (s *Server) handleUpsertMonitor(c *fiber.Ctx) error {
	var req MonitorRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "VALIDATION_ERROR",
			Error:   "invalid request body: " + err.Error(),
		})
	}

	term := strings.TrimSpace(req.SearchTerm)
	freq := model.Frequency(req.Frequency)
	if term == "" || !freq.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "VALIDATION_ERROR",
			Error:   "searchTerm and a frequency of hourly, daily, weekly, or monthly are required",
		})
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	monitor, err := s.store.UpsertMonitoredSearch(c.Context(), term, freq, active)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "STORE_ERROR",
			Error:   "monitor upsert failed: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{"success": true, "monitor": monitorJSON(monitor)})
}

// handleListMonitors lists active monitored searches.
func (s *Server) handleListMonitors(c *fiber.Ctx) error {
	monitors, err := s.store.FindActiveMonitoredSearches(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "STORE_ERROR",
			Error:   "monitor list failed: " + err.Error(),
		})
	}

	out := make([]MonitorJSON, 0, len(monitors))
	for _, m := range monitors {
		out = append(out, monitorJSON(m))
	}
	return c.JSON(fiber.Map{"success": true, "monitors": out})
}

// handleTokenHealth exposes the token manager counters.
func (s *Server) handleTokenHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"success": true, "token": s.tokens.Health()})
}
