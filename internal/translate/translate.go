package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"tcad/internal/metrics"
)

// Result is what every Translate call returns: a usable filter object
// and a non-empty explanation. Fallback marks results produced by the
// deterministic text-search path rather than the LLM.
type Result struct {
	Filter      map[string]any `json:"filter"`
	Explanation string         `json:"explanation"`
	Fallback    bool           `json:"fallback"`
}

// llmEnvelope is the strict response shape the prompt demands.
type llmEnvelope struct {
	Filter      any    `json:"filter"`
	Explanation string `json:"explanation"`
}

const systemPrompt = `You translate natural-language searches over county property records into a strict JSON filter.
Respond with a single JSON object of the shape {"filter": {...}, "explanation": "..."} and no extra text.
Filter leaves: {"field": "value"}, {"field": {"contains": "...", "mode": "insensitive"}}, or {"field": {"gte"|"lte"|"gt"|"lt"|"eq": number}}.
Composites: {"AND": [leaf, ...]} or {"OR": [leaf, ...]}.
Fields: propertyId, name, propType, city, propertyAddress, description, geoId, searchTerm, assessedValue, appraisedValue.`

// Translator converts a natural-language request into a structured
// property filter. It never fails: whenever the LLM path cannot
// produce a usable filter, the deterministic text-search fallback is
// returned instead.
type Translator struct {
	completer Completer
	timeout   time.Duration
	logger    *slog.Logger

	onFallback func()
}

// NewTranslator builds a Translator. completer may be nil, which pins
// every call to the fallback path.
func NewTranslator(completer Completer, timeout time.Duration, logger *slog.Logger) *Translator {
	return &Translator{completer: completer, timeout: timeout, logger: logger}
}

// OnFallback registers a hook invoked whenever a call lands on the
// fallback path; used for metrics.
func (t *Translator) OnFallback(fn func()) {
	t.onFallback = fn
}

// Translate converts nl into a filter. It has no error return: every
// failure on the LLM path yields the fallback result instead.
func (t *Translator) Translate(ctx context.Context, nl string) Result {
	if t.completer == nil {
		return t.fallback(nl, "no llm configured")
	}

	callCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	content, err := t.completer.Complete(callCtx, systemPrompt, nl)
	if err != nil {
		return t.fallback(nl, "llm call failed: "+err.Error())
	}

	snippet, err := ExtractJSON(content)
	if err != nil {
		return t.fallback(nl, "no JSON in llm response: "+err.Error())
	}

	var envelope llmEnvelope
	if err := json.Unmarshal([]byte(snippet), &envelope); err != nil {
		return t.fallback(nl, "llm response did not parse: "+err.Error())
	}

	filterObj, ok := envelope.Filter.(map[string]any)
	if !ok {
		return t.fallback(nl, "llm filter is not an object")
	}

	filter := SanitizeFilter(filterObj)

	explanation := envelope.Explanation
	if explanation == "" {
		explanation = fmt.Sprintf("Structured filter for %q.", nl)
	}

	metrics.RecordTranslation(false)
	return Result{Filter: filter, Explanation: explanation}
}

// fallback produces the contractual text-search result.
func (t *Translator) fallback(nl, reason string) Result {
	if t.logger != nil {
		t.logger.Info("translator_fallback", "reason", reason)
	}
	if t.onFallback != nil {
		t.onFallback()
	}
	metrics.RecordTranslation(true)

	return Result{
		Filter:      FallbackFilter(nl),
		Explanation: fmt.Sprintf("Showing properties matching %q across owner name, address, city, and description (text search fallback).", nl),
		Fallback:    true,
	}
}
