package grok

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sorenkast/voxen/pkg/llm"
	"github.com/sorenkast/voxen/pkg/resilience"
)

// Fallback order when the configured model is decommissioned or
// rejected by the API.
var defaultModels = []string{"grok-3", "grok-beta", "grok-2"}

type Adapter struct {
	APIKey      string
	Models      []string
	BaseURL     string
	Temperature float64
	Client      *http.Client
	// Breaker, when set, short-circuits calls after repeated rate
	// limit responses.
	Breaker *resilience.CircuitBreaker
}

func NewAdapter(apiKey string, models ...string) *Adapter {
	if len(models) == 0 {
		models = append([]string(nil), defaultModels...)
	}
	return &Adapter{
		APIKey:      apiKey,
		Models:      models,
		BaseURL:     "https://api.x.ai/v1",
		Temperature: 0.7,
		Client:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *Adapter) Name() string { return "grok" }

// Generate tries each configured model in order. Rate limits and
// context cancellation stop the fallback chain immediately; model
// rejections move on to the next candidate.
func (a *Adapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	if a.APIKey == "" {
		return llm.Response{}, errors.New("grok api key not configured")
	}
	if a.Breaker != nil && !a.Breaker.Allow() {
		return llm.Response{}, resilience.RateLimitError{Provider: "grok", Message: "circuit open"}
	}
	var lastErr error
	for _, model := range a.Models {
		resp, err := a.generateWith(ctx, model, input)
		if err == nil {
			if a.Breaker != nil {
				a.Breaker.OnSuccess()
			}
			resp.Model = model
			return resp, nil
		}
		lastErr = err
		if a.Breaker != nil {
			a.Breaker.OnError(err)
		}
		if resilience.IsRateLimit(err) || ctx.Err() != nil {
			return llm.Response{}, err
		}
	}
	return llm.Response{}, lastErr
}

func (a *Adapter) generateWith(ctx context.Context, model string, input llm.Context) (llm.Response, error) {
	body, err := a.buildRequest(model, input)
	if err != nil {
		return llm.Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/chat/completions", body)
	if err != nil {
		return llm.Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.APIKey)

	resp, err := a.client().Do(req)
	if err != nil {
		return llm.Response{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(resp.Body)
		return llm.Response{}, resilience.RateLimitError{Provider: "grok", Message: string(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return llm.Response{}, errors.New(string(body))
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return llm.Response{}, err
	}
	return parseResponse(payload)
}

func (a *Adapter) buildRequest(model string, input llm.Context) (*bytes.Buffer, error) {
	req := map[string]any{
		"model":       model,
		"messages":    input.Messages,
		"temperature": a.Temperature,
		"stream":      false,
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return bytes.NewBuffer(b), nil
}

func (a *Adapter) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return http.DefaultClient
}

func parseResponse(m map[string]any) (llm.Response, error) {
	choices, _ := m["choices"].([]any)
	if len(choices) == 0 {
		return llm.Response{}, errors.New("no choices")
	}
	first, _ := choices[0].(map[string]any)
	msg, _ := first["message"].(map[string]any)
	content, _ := msg["content"].(string)
	resp := llm.Response{Text: content}
	if reason, _ := first["finish_reason"].(string); reason != "" {
		resp.FinishReason = reason
	}
	if usage, ok := m["usage"].(map[string]any); ok {
		resp.Usage = llm.Usage{
			PromptTokens:     intValue(usage["prompt_tokens"]),
			CompletionTokens: intValue(usage["completion_tokens"]),
			TotalTokens:      intValue(usage["total_tokens"]),
		}
		resp.Tokens = resp.Usage.TotalTokens
	}
	return resp, nil
}

func intValue(v any) int {
	f, _ := v.(float64)
	return int(f)
}
