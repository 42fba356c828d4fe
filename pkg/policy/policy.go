package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sorenkast/voxen/pkg/adapters/search"
	"github.com/sorenkast/voxen/pkg/errorsx"
	"github.com/sorenkast/voxen/pkg/llm"
	"github.com/sorenkast/voxen/pkg/logging"
	"github.com/sorenkast/voxen/pkg/metrics"
	"github.com/sorenkast/voxen/pkg/violations"
)

// ApologyText is spoken when the LLM cannot produce a reply.
const ApologyText = "I'm sorry, I'm having trouble answering right now. Please try again."

const systemPrompt = `You are a helpful voice assistant. Answer clearly and conversationally.
When web search context is provided, use it to give current, factual information.
Your answers are spoken aloud, so keep them natural to hear.`

type Config struct {
	MaxResponseWords int
	ExplainKeyword   string
	MaxQueryChars    int
	SearchTimeout    time.Duration
	LLMTimeout       time.Duration
	HistoryTurns     int
	Retry            llm.RetryConfig
}

func (c Config) withDefaults() Config {
	if c.MaxResponseWords <= 0 {
		c.MaxResponseWords = 10
	}
	if c.ExplainKeyword == "" {
		c.ExplainKeyword = "explain"
	}
	if c.MaxQueryChars <= 0 {
		c.MaxQueryChars = 150
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 10 * time.Second
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = 30 * time.Second
	}
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = 8
	}
	return c
}

// Result is the finalized reply for one exchange.
type Result struct {
	Text       string
	UsedSearch bool
	WordCount  int
	Truncated  bool
}

// ResponsePolicy turns recognized input text into a bounded reply. It
// grounds checkable claims through web search, queries the LLM with the
// word budget, and truncates overshoot. A failed LLM call degrades to a
// fixed apology, never an error.
type ResponsePolicy struct {
	cfg        Config
	classifier ClaimClassifier
	searcher   search.Searcher
	adapter    llm.LLMAdapter
	violations violations.Recorder
	metrics    metrics.Observer
	logger     *slog.Logger
	history    []map[string]any
}

func NewResponsePolicy(cfg Config, adapter llm.LLMAdapter, opts ...PolicyOption) *ResponsePolicy {
	p := &ResponsePolicy{
		cfg:        cfg.withDefaults(),
		classifier: NewRegexClassifier(),
		adapter:    adapter,
		violations: violations.Noop{},
		metrics:    metrics.NoopObserver{},
		logger:     logging.NewComponentLogger(slog.Default(), "policy"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type PolicyOption func(*ResponsePolicy)

// WithSearcher enables web-search grounding.
func WithSearcher(s search.Searcher) PolicyOption {
	return func(p *ResponsePolicy) { p.searcher = s }
}

// WithClassifier replaces the default regex claim classifier.
func WithClassifier(c ClaimClassifier) PolicyOption {
	return func(p *ResponsePolicy) { p.classifier = c }
}

func WithViolations(r violations.Recorder) PolicyOption {
	return func(p *ResponsePolicy) { p.violations = r }
}

func WithMetrics(o metrics.Observer) PolicyOption {
	return func(p *ResponsePolicy) { p.metrics = o }
}

func WithLogger(l *slog.Logger) PolicyOption {
	return func(p *ResponsePolicy) { p.logger = logging.NewComponentLogger(l, "policy") }
}

// Respond produces the reply for one recognized utterance.
func (p *ResponsePolicy) Respond(ctx context.Context, input string) Result {
	grounding, usedSearch := p.ground(ctx, input)

	budget := p.wordBudget(input)
	resp, err := p.generate(ctx, input, grounding, budget)
	if err != nil {
		p.logger.Error("llm generate failed", slog.String("error", err.Error()))
		p.violations.Record(violations.KindLLMError, err.Error())
		// The apology is a fixed string, never trimmed to the budget.
		p.remember(input, ApologyText)
		return Result{
			Text:       ApologyText,
			UsedSearch: usedSearch,
			WordCount:  len(strings.Fields(ApologyText)),
		}
	}

	text, truncated := p.limitWords(resp, budget)
	if truncated {
		p.violations.Record(violations.KindWordLimitExceeded,
			fmt.Sprintf("response truncated: %d words -> %d words", len(strings.Fields(resp)), len(strings.Fields(text))))
	}
	p.remember(input, text)
	return Result{
		Text:       text,
		UsedSearch: usedSearch,
		WordCount:  len(strings.Fields(text)),
		Truncated:  truncated,
	}
}

// ground runs one search query when the classifier flags a checkable
// claim. Failures degrade to an unverified reply.
func (p *ResponsePolicy) ground(ctx context.Context, input string) (string, bool) {
	if p.searcher == nil {
		return "", false
	}
	claims := p.classifier.Claims(input)
	if len(claims) == 0 {
		return "", false
	}
	query := claims[0]
	if len(query) > p.cfg.MaxQueryChars {
		query = query[:p.cfg.MaxQueryChars]
	}
	sctx, cancel := context.WithTimeout(ctx, p.cfg.SearchTimeout)
	defer cancel()
	started := time.Now()
	snippets, err := p.searcher.Search(sctx, query)
	p.metrics.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventSearchLatency,
		Time:  time.Now(),
		Value: float64(time.Since(started).Milliseconds()),
	})
	if err != nil {
		p.logger.Warn("web search failed", slog.String("query", query), slog.String("error", err.Error()))
		p.violations.Record(violations.KindSearchUnavailable, err.Error())
		return "", false
	}
	if len(snippets) == 0 {
		p.logger.Warn("no search results", slog.String("query", query))
		return "", false
	}
	parts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		if s.Title != "" {
			parts = append(parts, s.Title+": "+s.Content)
		} else {
			parts = append(parts, s.Content)
		}
	}
	p.logger.Info("web search provided context", slog.Int("snippets", len(parts)))
	return strings.Join(parts, " | "), true
}

func (p *ResponsePolicy) wordBudget(input string) int {
	if strings.Contains(strings.ToLower(input), strings.ToLower(p.cfg.ExplainKeyword)) {
		return 0
	}
	return p.cfg.MaxResponseWords
}

func (p *ResponsePolicy) generate(ctx context.Context, input, grounding string, budget int) (string, error) {
	content := input
	if grounding != "" {
		content = "Web search context: " + grounding + "\n\nUser question: " + input
	}
	messages := []map[string]any{{"role": "system", "content": p.generationPrompt(budget)}}
	messages = append(messages, p.history...)
	messages = append(messages, map[string]any{"role": "user", "content": content})

	lctx, cancel := context.WithTimeout(ctx, p.cfg.LLMTimeout)
	defer cancel()
	started := time.Now()
	resp, err := llm.Retry(lctx, p.cfg.Retry, func(c context.Context) (llm.Response, error) {
		return p.adapter.Generate(c, llm.Context{Messages: messages})
	})
	p.metrics.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventLLMLatency,
		Time:  time.Now(),
		Value: float64(time.Since(started).Milliseconds()),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", errorsx.Wrap(err, errorsx.ReasonLLMTimeout)
		}
		return "", errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (p *ResponsePolicy) generationPrompt(budget int) string {
	if budget <= 0 {
		return systemPrompt
	}
	return fmt.Sprintf("%s\nAnswer in at most %d words.", systemPrompt, budget)
}

// limitWords enforces the word budget, preferring a sentence boundary
// within the last few words over a hard cut. A hard cut mid-sentence
// gets an ellipsis.
func (p *ResponsePolicy) limitWords(text string, budget int) (string, bool) {
	if budget <= 0 {
		return text, false
	}
	words := strings.Fields(text)
	if len(words) <= budget {
		return text, false
	}
	truncated := strings.Join(words[:budget], " ")
	for i := budget - 1; i > budget-5 && i > 0; i-- {
		w := words[i]
		switch w[len(w)-1] {
		case '.', '!', '?':
			return strings.Join(words[:i+1], " "), true
		}
	}
	switch truncated[len(truncated)-1] {
	case '.', '!', '?':
	default:
		truncated += "..."
	}
	return truncated, true
}

func (p *ResponsePolicy) remember(input, reply string) {
	p.history = append(p.history,
		map[string]any{"role": "user", "content": input},
		map[string]any{"role": "assistant", "content": reply},
	)
	if max := p.cfg.HistoryTurns * 2; len(p.history) > max {
		p.history = p.history[len(p.history)-max:]
	}
}

// ResetHistory clears conversation memory, e.g. at session start.
func (p *ResponsePolicy) ResetHistory() { p.history = nil }
