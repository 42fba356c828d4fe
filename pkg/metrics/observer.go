package metrics

import "time"

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Stage latency event names emitted by the conversation session.
const (
	EventTranscribeLatency = "transcribe_ms"
	EventSearchLatency     = "search_ms"
	EventLLMLatency        = "llm_ms"
	EventSpeakLatency      = "speak_ms"
	EventTurnLatency       = "turn_ms"
)
