package grok

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sorenkast/voxen/pkg/llm"
	"github.com/sorenkast/voxen/pkg/resilience"
)

func completionHandler(t *testing.T, reject map[string]int, reply string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		model, _ := req["model"].(string)
		if code, ok := reject[model]; ok {
			w.WriteHeader(code)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{
				"message":       map[string]any{"content": reply},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 3.0, "completion_tokens": 5.0, "total_tokens": 8.0},
		})
	}
}

func TestGenerateFallsBackAcrossModels(t *testing.T) {
	srv := httptest.NewServer(completionHandler(t, map[string]int{"grok-3": http.StatusNotFound}, "hello"))
	defer srv.Close()

	a := NewAdapter("key", "grok-3", "grok-beta")
	a.BaseURL = srv.URL
	resp, err := a.Generate(context.Background(), llm.Context{
		Messages: []map[string]any{{"role": "user", "content": "hi"}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "hello" || resp.Model != "grok-beta" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Usage.TotalTokens != 8 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
}

func TestGenerateRateLimitStopsFallback(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewAdapter("key")
	a.BaseURL = srv.URL
	_, err := a.Generate(context.Background(), llm.Context{})
	if !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("rate limit must not trigger fallback, got %d calls", calls)
	}
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	a := NewAdapter("")
	if _, err := a.Generate(context.Background(), llm.Context{}); err == nil {
		t.Fatal("expected error without api key")
	}
}
