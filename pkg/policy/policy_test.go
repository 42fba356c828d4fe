package policy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sorenkast/voxen/pkg/adapters/search"
	"github.com/sorenkast/voxen/pkg/llm"
	"github.com/sorenkast/voxen/pkg/violations"
)

type scriptedLLM struct {
	text  string
	err   error
	calls int
	last  llm.Context
}

func (s *scriptedLLM) Generate(_ context.Context, input llm.Context) (llm.Response, error) {
	s.calls++
	s.last = input
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return llm.Response{Text: s.text}, nil
}

func (s *scriptedLLM) Name() string { return "scripted" }

type scriptedSearcher struct {
	snippets []search.Snippet
	err      error
	queries  []string
}

func (s *scriptedSearcher) Name() string { return "scripted" }

func (s *scriptedSearcher) Search(_ context.Context, query string) ([]search.Snippet, error) {
	s.queries = append(s.queries, query)
	return s.snippets, s.err
}

func noRetry() llm.RetryConfig {
	return llm.RetryConfig{MaxAttempts: 1, Sleep: func(time.Duration) {}}
}

func TestRespondTruncatesOvershoot(t *testing.T) {
	adapter := &scriptedLLM{text: "Paris is the capital of France and a major cultural hub."}
	searcher := &scriptedSearcher{snippets: []search.Snippet{{Title: "Paris", Content: "Capital of France."}}}
	vlog := violations.NewLog()
	p := NewResponsePolicy(Config{MaxResponseWords: 10, Retry: noRetry()}, adapter,
		WithSearcher(searcher), WithViolations(vlog))

	res := p.Respond(context.Background(), "What is the capital of France?")
	if got := len(strings.Fields(res.Text)); got != 10 {
		t.Fatalf("word count = %d, want 10 (%q)", got, res.Text)
	}
	if !res.Truncated {
		t.Fatal("expected truncation")
	}
	if !strings.HasSuffix(res.Text, "...") {
		t.Fatalf("expected ellipsis on mid-sentence cut, got %q", res.Text)
	}
	if vlog.Count(violations.KindWordLimitExceeded) != 1 {
		t.Fatal("expected word_limit_exceeded violation")
	}
	if !res.UsedSearch {
		t.Fatal("expected search grounding for factual question")
	}
}

func TestRespondExplainBypassesBudget(t *testing.T) {
	long := strings.Repeat("word ", 40) + "end."
	adapter := &scriptedLLM{text: long}
	vlog := violations.NewLog()
	p := NewResponsePolicy(Config{MaxResponseWords: 10, Retry: noRetry()}, adapter, WithViolations(vlog))

	res := p.Respond(context.Background(), "Please EXPLAIN photosynthesis in detail")
	if res.Truncated {
		t.Fatal("explain input must not be truncated")
	}
	if res.Text != long {
		t.Fatalf("response altered: %q", res.Text)
	}
	if vlog.Count(violations.KindWordLimitExceeded) != 0 {
		t.Fatal("unexpected violation")
	}
}

func TestRespondPrefersSentenceBoundary(t *testing.T) {
	adapter := &scriptedLLM{text: "One two three four five six seven eight. Nine ten eleven twelve"}
	p := NewResponsePolicy(Config{MaxResponseWords: 10, Retry: noRetry()}, adapter)

	res := p.Respond(context.Background(), "Count for me")
	if res.Text != "One two three four five six seven eight." {
		t.Fatalf("got %q", res.Text)
	}
	if !res.Truncated {
		t.Fatal("expected truncation flag")
	}
}

func TestRespondSearchFailureDegrades(t *testing.T) {
	adapter := &scriptedLLM{text: "Short answer."}
	searcher := &scriptedSearcher{err: context.DeadlineExceeded}
	vlog := violations.NewLog()
	p := NewResponsePolicy(Config{Retry: noRetry()}, adapter,
		WithSearcher(searcher), WithViolations(vlog))

	res := p.Respond(context.Background(), "The tower was built in 1889.")
	if res.UsedSearch {
		t.Fatal("used_search must be false when search fails")
	}
	if res.Text != "Short answer." {
		t.Fatalf("expected LLM-only answer, got %q", res.Text)
	}
	if vlog.Count(violations.KindSearchUnavailable) != 1 {
		t.Fatal("expected search_unavailable violation")
	}
	if len(searcher.queries) != 1 {
		t.Fatalf("expected one search attempt, got %d", len(searcher.queries))
	}
}

func TestRespondSkipsSearchForOpinion(t *testing.T) {
	adapter := &scriptedLLM{text: "Blue."}
	searcher := &scriptedSearcher{snippets: []search.Snippet{{Content: "irrelevant"}}}
	p := NewResponsePolicy(Config{Retry: noRetry()}, adapter, WithSearcher(searcher))

	res := p.Respond(context.Background(), "What's your favorite color?")
	if len(searcher.queries) != 0 {
		t.Fatalf("opinion question triggered search: %v", searcher.queries)
	}
	if res.UsedSearch {
		t.Fatal("used_search must be false without a claim")
	}
}

func TestRespondQueryCappedAtLimit(t *testing.T) {
	adapter := &scriptedLLM{text: "ok"}
	searcher := &scriptedSearcher{snippets: []search.Snippet{{Content: "ctx"}}}
	p := NewResponsePolicy(Config{MaxQueryChars: 150, Retry: noRetry()}, adapter, WithSearcher(searcher))

	input := "In 1969 " + strings.Repeat("a", 300)
	p.Respond(context.Background(), input)
	if len(searcher.queries) != 1 {
		t.Fatalf("expected one query, got %d", len(searcher.queries))
	}
	if got := len(searcher.queries[0]); got > 150 {
		t.Fatalf("query length = %d, want <= 150", got)
	}
}

func TestRespondLLMFailureFallsBackToApology(t *testing.T) {
	adapter := &scriptedLLM{err: errors.New("quota exhausted")}
	vlog := violations.NewLog()
	p := NewResponsePolicy(Config{Retry: noRetry()}, adapter, WithViolations(vlog))

	res := p.Respond(context.Background(), "Tell me something")
	if res.Text != ApologyText {
		t.Fatalf("got %q, want apology", res.Text)
	}
	if res.Truncated {
		t.Fatal("apology must not be marked truncated")
	}
	if vlog.Count(violations.KindLLMError) != 1 {
		t.Fatal("expected llm_error violation")
	}
	if vlog.Count(violations.KindWordLimitExceeded) != 0 {
		t.Fatal("apology must not count against the word budget")
	}
}

func TestRespondCarriesHistory(t *testing.T) {
	adapter := &scriptedLLM{text: "ok"}
	p := NewResponsePolicy(Config{Retry: noRetry()}, adapter)

	p.Respond(context.Background(), "first question")
	p.Respond(context.Background(), "second question")

	var sawFirst bool
	for _, m := range adapter.last.Messages {
		if c, _ := m["content"].(string); strings.Contains(c, "first question") {
			sawFirst = true
		}
	}
	if !sawFirst {
		t.Fatal("second call did not carry earlier exchange")
	}
	p.ResetHistory()
	p.Respond(context.Background(), "third question")
	for _, m := range adapter.last.Messages {
		if c, _ := m["content"].(string); strings.Contains(c, "first question") {
			t.Fatal("history survived reset")
		}
	}
}

func TestRegexClassifierClaims(t *testing.T) {
	c := NewRegexClassifier()
	cases := []struct {
		text  string
		claim bool
	}{
		{"The Eiffel Tower was built in 1889.", true},
		{"Paris is the capital of France.", true},
		{"According to studies show it works.", true},
		{"Unemployment fell by two percent.", true},
		{"hello there", false},
		{"", false},
	}
	for _, tc := range cases {
		got := c.Claims(tc.text)
		if (len(got) > 0) != tc.claim {
			t.Errorf("Claims(%q) = %v, want claim=%v", tc.text, got, tc.claim)
		}
	}
}
