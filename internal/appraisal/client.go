package appraisal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"tcad/internal/config"
	"tcad/internal/metrics"
)

// searchFilter is one operator/value pair in the upstream request body.
type searchFilter struct {
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// searchRequest is the fixed body of a full-text search call: an exact
// year filter plus a full-text match on the term.
type searchRequest struct {
	PYear          searchFilter `json:"pYear"`
	FullTextSearch searchFilter `json:"fullTextSearch"`
}

// searchResponse is the upstream envelope we care about.
type searchResponse struct {
	TotalProperty struct {
		PropertyCount int `json:"propertyCount"`
	} `json:"totalProperty"`
	Results []RawRecord `json:"results"`
}

// Result is the aggregated outcome of one logical Fetch: every record
// for the term at the page size that ended up working. Truncated is a
// warning that the page-index safety cap stopped the walk early.
type Result struct {
	TotalCount   int
	Records      []RawRecord
	PageSizeUsed int
	Truncated    bool
}

// fallthroughError signals that the current page size should be
// abandoned and the next smaller one tried. It never escapes Fetch.
type fallthroughError struct {
	reason string
}

func (e *fallthroughError) Error() string { return e.reason }

// Client issues authenticated, paginated search calls against the
// appraisal district API. A Client is safe for concurrent use; each
// Fetch is internally sequential.
type Client struct {
	http      *resty.Client
	pageSizes []int
	maxPages  int
	logger    *slog.Logger
}

// NewClient builds a Client from upstream configuration.
func NewClient(cfg config.UpstreamConfig, logger *slog.Logger) *Client {
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.RequestTimeoutMs) * time.Millisecond)

	return &Client{
		http:      rc,
		pageSizes: cfg.PageSizes,
		maxPages:  cfg.MaxPages,
		logger:    logger,
	}
}

// Fetch retrieves every record for the term/year, walking pages at the
// largest page size the upstream will serve intact. Page sizes are
// tried in descending order; a truncated body or an overloaded status
// (409/504) abandons the current size and falls through to the next.
// Results from different sizes are never mixed.
func (c *Client) Fetch(ctx context.Context, token, term string, year int) (*Result, error) {
	if strings.TrimSpace(term) == "" {
		return nil, NewError(KindValidation, "search term is empty")
	}
	if token == "" {
		return nil, NewError(KindNoToken, "no token available for upstream call")
	}

	var lastReason string
	for _, size := range c.pageSizes {
		res, err := c.fetchAtSize(ctx, token, term, year, size)
		if err == nil {
			return res, nil
		}

		var fe *fallthroughError
		if errors.As(err, &fe) {
			lastReason = fe.reason
			metrics.RecordPageSizeFallback()
			c.logInfo("page_size_fallthrough", "term", term, "pageSize", size, "reason", fe.reason)
			continue
		}
		return nil, err
	}

	return nil, NewError(KindAllPageSizesFailed, "all page sizes failed, last: %s", lastReason)
}

// fetchAtSize walks pages 1..K at a fixed size, appending records in
// page order. Truncation on any page abandons the whole size so a
// successful return is always a single-size aggregate.
func (c *Client) fetchAtSize(ctx context.Context, token, term string, year, size int) (*Result, error) {
	var records []RawRecord
	total := 0

	for page := 1; ; page++ {
		if page > c.maxPages {
			// Safety cap: return what we have with a truncation
			// warning rather than walking pages forever.
			c.logInfo("page_cap_reached", "term", term, "pageSize", size, "collected", len(records))
			return &Result{TotalCount: total, Records: records, PageSizeUsed: size, Truncated: true}, nil
		}

		body, status, err := c.post(ctx, token, term, year, page, size)
		if err != nil {
			return nil, WrapError(KindTransport, err)
		}

		switch {
		case status == http.StatusUnauthorized:
			return nil, NewError(KindTokenExpired, "upstream returned 401 for pageSize %d page %d", size, page)
		case status == http.StatusConflict || status == http.StatusGatewayTimeout:
			return nil, &fallthroughError{reason: fmt.Sprintf("HTTP %d at pageSize %d page %d", status, size, page)}
		case status < 200 || status >= 300:
			return nil, NewError(httpKind(status), "upstream returned %d for pageSize %d page %d", status, size, page)
		}

		if isTruncated(body) {
			// A truncated later page invalidates everything collected
			// at this size; the next smaller size starts from scratch.
			return nil, &fallthroughError{reason: fmt.Sprintf("truncated body at pageSize %d page %d", size, page)}
		}

		var parsed searchResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, WrapError(KindTransport, fmt.Errorf("parse page %d: %w", page, err))
		}

		if page == 1 {
			total = parsed.TotalProperty.PropertyCount
			if total == 0 {
				return &Result{TotalCount: 0, Records: []RawRecord{}, PageSizeUsed: size}, nil
			}
		}

		records = append(records, parsed.Results...)

		if len(parsed.Results) < size || len(records) >= total {
			return &Result{TotalCount: total, Records: records, PageSizeUsed: size}, nil
		}
	}
}

// post issues one search call and returns the raw body so the caller
// can run the truncation check before parsing.
func (c *Client) post(ctx context.Context, token, term string, year, page, size int) ([]byte, int, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"page":     strconv.Itoa(page),
			"pageSize": strconv.Itoa(size),
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", token).
		SetBody(searchRequest{
			PYear:          searchFilter{Operator: "=", Value: strconv.Itoa(year)},
			FullTextSearch: searchFilter{Operator: "match", Value: term},
		}).
		Post("/searchfulltext")
	if err != nil {
		return nil, 0, err
	}

	return resp.Body(), resp.StatusCode(), nil
}

// isTruncated reports whether the body looks cut off mid-stream: the
// last non-whitespace byte of a complete JSON response is always '}'
// or ']'.
func isTruncated(body []byte) bool {
	trimmed := bytes.TrimRightFunc(body, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(trimmed) == 0 {
		return true
	}
	last := trimmed[len(trimmed)-1]
	return last != '}' && last != ']'
}

func (c *Client) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}
