package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tcad/internal/config"
	"tcad/internal/token"
	"tcad/internal/translate"
)

type nullAcquirer struct{}

func (nullAcquirer) Acquire(ctx context.Context) (string, error) { return "", nil }

func newTestServer() *Server {
	cfg := &config.Config{}
	tokens := token.NewManager(nullAcquirer{}, time.Minute, 0, time.Second, nil)
	translator := translate.NewTranslator(nil, time.Second, nil)
	return NewServer(cfg, nil, nil, nil, tokens, translator, nil, nil)
}

func TestScrapeRejectsEmptyTerm(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest("POST", "/v1/scrape", strings.NewReader(`{"searchTerm": "  "}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var out ErrorResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("bad error body: %v", err)
	}
	if out.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %q", out.Code)
	}
}

func TestGetJobRejectsBadID(t *testing.T) {
	s := newTestServer()

	resp, err := s.app.Test(httptest.NewRequest("GET", "/v1/jobs/not-a-uuid", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestMonitorRejectsBadFrequency(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest("POST", "/v1/monitors", strings.NewReader(`{"searchTerm": "Smith", "frequency": "fortnightly"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer()

	resp, err := s.app.Test(httptest.NewRequest("GET", "/healthz", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestTokenHealth(t *testing.T) {
	s := newTestServer()

	resp, err := s.app.Test(httptest.NewRequest("GET", "/v1/token/health", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var out struct {
		Success bool         `json:"success"`
		Token   token.Health `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if !out.Success || out.Token.HasToken {
		t.Fatalf("expected empty token health, got %+v", out)
	}
}
