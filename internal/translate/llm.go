package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tcad/internal/config"
)

// Provider represents a logical LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// Completer is the narrow LLM abstraction the translator needs: one
// system+user exchange returning raw text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// NewCompleterFromConfig constructs a Completer for the configured
// default provider. A missing provider returns nil with no error; the
// translator then runs fallback-only.
func NewCompleterFromConfig(cfg *config.LLMConfig) (Completer, Provider, string, error) {
	providerName := strings.TrimSpace(cfg.DefaultProvider)
	if providerName == "" {
		return nil, "", "", nil
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	prov := Provider(providerName)

	switch prov {
	case ProviderOpenAI:
		if cfg.OpenAI.APIKey == "" || cfg.OpenAI.Model == "" {
			return nil, prov, cfg.OpenAI.Model, errors.New("openai llm provider is not fully configured")
		}
		return &openAIClient{
			apiKey:  cfg.OpenAI.APIKey,
			baseURL: cfg.OpenAI.BaseURL,
			model:   cfg.OpenAI.Model,
			http:    httpClient,
		}, prov, cfg.OpenAI.Model, nil
	case ProviderAnthropic:
		if cfg.Anthropic.APIKey == "" || cfg.Anthropic.Model == "" {
			return nil, prov, cfg.Anthropic.Model, errors.New("anthropic llm provider is not fully configured")
		}
		return &anthropicClient{
			apiKey: cfg.Anthropic.APIKey,
			model:  cfg.Anthropic.Model,
			http:   httpClient,
		}, prov, cfg.Anthropic.Model, nil
	case ProviderGoogle:
		if cfg.Google.APIKey == "" || cfg.Google.Model == "" {
			return nil, prov, cfg.Google.Model, errors.New("google llm provider is not fully configured")
		}
		return &googleClient{
			apiKey: cfg.Google.APIKey,
			model:  cfg.Google.Model,
			http:   httpClient,
		}, prov, cfg.Google.Model, nil
	default:
		return nil, prov, "", fmt.Errorf("unsupported llm provider: %s", providerName)
	}
}

// postJSON issues one JSON-in/JSON-out POST and decodes the response
// into out. Non-2xx statuses become an error carrying the status code
// and a short tail of the body, which is where every provider puts its
// diagnostic message.
func postJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(tail)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// openAIClient speaks the Chat Completions API (or any compatible
// server via baseURL).
type openAIClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

func (c *openAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	base := c.baseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}

	payload := map[string]any{
		"model":           c.model,
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := postJSON(ctx, c.http, base+"/chat/completions", headers, payload, &out); err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai: response has no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// anthropicClient speaks the Messages API. Message content is sent as
// a plain string, which the API accepts as shorthand for a single text
// block.
type anthropicClient struct {
	apiKey string
	model  string
	http   *http.Client
}

func (c *anthropicClient) Complete(ctx context.Context, system, user string) (string, error) {
	payload := map[string]any{
		"model":      c.model,
		"max_tokens": 512,
		"system":     system,
		"messages": []map[string]string{
			{"role": "user", "content": user},
		},
	}

	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}
	if err := postJSON(ctx, c.http, "https://api.anthropic.com/v1/messages", headers, payload, &out); err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("anthropic: response has no text content")
	}
	return sb.String(), nil
}

// googleClient speaks Gemini's generateContent. The API key travels in
// the x-goog-api-key header rather than the query string so it never
// shows up in error text or logs, and the system prompt uses the
// dedicated systemInstruction field.
type googleClient struct {
	apiKey string
	model  string
	http   *http.Client
}

func (c *googleClient) Complete(ctx context.Context, system, user string) (string, error) {
	endpoint := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", c.model)

	payload := map[string]any{
		"systemInstruction": map[string]any{
			"parts": []map[string]string{{"text": system}},
		},
		"contents": []map[string]any{
			{
				"role":  "user",
				"parts": []map[string]string{{"text": user}},
			},
		},
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	headers := map[string]string{"x-goog-api-key": c.apiKey}
	if err := postJSON(ctx, c.http, endpoint, headers, payload, &out); err != nil {
		return "", fmt.Errorf("google: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("google: response has no candidates")
	}

	var sb strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
