package violations

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLogAppendOrder(t *testing.T) {
	l := NewLog(WithClock(func() time.Time { return time.Unix(100, 0) }))
	l.Record(KindSearchUnavailable, "timeout")
	l.Record(KindWordLimitExceeded, "truncated 12 -> 10")

	all := l.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(all))
	}
	if all[0].Kind != KindSearchUnavailable || all[1].Kind != KindWordLimitExceeded {
		t.Fatalf("unexpected order: %v", all)
	}
	if !all[0].Timestamp.Equal(time.Unix(100, 0)) {
		t.Fatalf("expected injected clock timestamp, got %v", all[0].Timestamp)
	}
}

func TestLogConcurrentWriters(t *testing.T) {
	l := NewLog()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Record(KindLLMError, "boom")
			}
		}()
	}
	wg.Wait()

	if got := l.Count(KindLLMError); got != 400 {
		t.Fatalf("expected 400 records, got %d", got)
	}
}

func TestLogStream(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(WithStream(&buf))
	l.Record(KindUtteranceTooLong, "forced early end")

	line := buf.String()
	if !strings.Contains(line, "utterance_too_long") {
		t.Fatalf("expected kind in stream output, got %q", line)
	}
	if !strings.Contains(line, "forced early end") {
		t.Fatalf("expected detail in stream output, got %q", line)
	}
}
