// Package violations records non-fatal policy deviations as append-only,
// write-once records. The engine only writes; operators consume the sink.
package violations

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

type Kind string

const (
	KindUtteranceTooLong  Kind = "utterance_too_long"
	KindWordLimitExceeded Kind = "word_limit_exceeded"
	KindSearchUnavailable Kind = "search_unavailable"
	KindLLMError          Kind = "llm_error"
	KindTTSFailure        Kind = "tts_failure"
	KindDeviceUnavailable Kind = "device_unavailable"
	KindInterrupted       Kind = "speech_interrupted"
)

type Violation struct {
	Kind      Kind      `json:"kind"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorder is the write side handed to components. Implementations must be
// safe for concurrent writers.
type Recorder interface {
	Record(kind Kind, detail string)
}

// Log is an in-memory append-only violation log with an optional JSONL
// stream for operator review. Records are never mutated or deleted.
type Log struct {
	mu     sync.Mutex
	items  []Violation
	stream *slog.Logger
	now    func() time.Time
}

type Option func(*Log)

// WithStream mirrors every record to w as one JSON line.
func WithStream(w io.Writer) Option {
	return func(l *Log) {
		if w != nil {
			l.stream = slog.New(slog.NewJSONHandler(w, nil))
		}
	}
}

// WithClock overrides the timestamp source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLog(opts ...Option) *Log {
	l := &Log{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Log) Record(kind Kind, detail string) {
	v := Violation{Kind: kind, Detail: detail, Timestamp: l.now()}

	l.mu.Lock()
	l.items = append(l.items, v)
	stream := l.stream
	l.mu.Unlock()

	if stream != nil {
		stream.Warn("violation",
			slog.String("kind", string(v.Kind)),
			slog.String("detail", v.Detail),
			slog.Time("timestamp", v.Timestamp),
		)
	}
}

// All returns a copy of every recorded violation in append order.
func (l *Log) All() []Violation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Violation, len(l.items))
	copy(out, l.items)
	return out
}

// Count returns the number of records with the given kind.
func (l *Log) Count(kind Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, v := range l.items {
		if v.Kind == kind {
			n++
		}
	}
	return n
}

// Noop discards every record.
type Noop struct{}

func (Noop) Record(Kind, string) {}
