package metrics

import "sync"

// MemoryObserver stores events in memory, mainly for tests.
type MemoryObserver struct {
	mu     sync.Mutex
	events []MetricsEvent
}

func NewMemoryObserver() *MemoryObserver {
	return &MemoryObserver{}
}

func (o *MemoryObserver) RecordEvent(ev MetricsEvent) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
}

func (o *MemoryObserver) Events() []MetricsEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]MetricsEvent, len(o.events))
	copy(out, o.events)
	return out
}

func (o *MemoryObserver) ByName(name string) []MetricsEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []MetricsEvent
	for _, ev := range o.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}
