package player

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sorenkast/voxen/pkg/frames"
	"github.com/sorenkast/voxen/pkg/violations"
)

type fakeTTS struct {
	chunks    [][]byte
	complete  bool
	startErr  error
	results   chan frames.Frame
	closeOnce sync.Once
	sent      []string
}

func newFakeTTS(complete bool, chunks ...[]byte) *fakeTTS {
	return &fakeTTS{
		chunks:   chunks,
		complete: complete,
		results:  make(chan frames.Frame, len(chunks)+1),
	}
}

func (f *fakeTTS) Name() string                 { return "fake" }
func (f *fakeTTS) Start(context.Context) error  { return f.startErr }
func (f *fakeTTS) Results() <-chan frames.Frame { return f.results }

func (f *fakeTTS) SendText(_ context.Context, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeTTS) Flush(context.Context) error {
	now := time.Now()
	for _, c := range f.chunks {
		f.results <- frames.NewAudioFrame("tts", now, c, 16000, 1, nil)
	}
	if f.complete {
		f.results <- frames.NewControlFrame("tts", now, frames.ControlSynthesisComplete, nil)
	}
	return nil
}

func (f *fakeTTS) Close() error {
	f.closeOnce.Do(func() { close(f.results) })
	return nil
}

type fakeSink struct {
	mu       sync.Mutex
	played   [][]byte
	playErr  error
	discards int
}

func (s *fakeSink) Play(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playErr != nil {
		return s.playErr
	}
	s.played = append(s.played, append([]byte(nil), pcm...))
	return nil
}

func (s *fakeSink) Discard() {
	s.mu.Lock()
	s.discards++
	s.mu.Unlock()
}

func (s *fakeSink) Pending() int { return 0 }

func (s *fakeSink) discardCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discards
}

func waitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome delivered")
		return Outcome{}
	}
}

func TestSpeakPlaysAllChunks(t *testing.T) {
	synth := newFakeTTS(true, []byte{1, 2}, []byte{3, 4})
	sink := &fakeSink{}
	p := NewSpeechPlayer(Config{}, synth, sink)

	o := waitOutcome(t, p.Speak(context.Background(), "hello"))
	if !o.Completed || o.Aborted || o.Err != nil {
		t.Fatalf("outcome = %+v, want completed", o)
	}
	if len(sink.played) != 2 || !bytes.Equal(sink.played[0], []byte{1, 2}) {
		t.Fatalf("played = %v", sink.played)
	}
	if len(synth.sent) != 1 || synth.sent[0] != "hello" {
		t.Fatalf("sent = %v", synth.sent)
	}
}

func TestAbortInterruptsPlayback(t *testing.T) {
	// No completion marker, so the player blocks waiting for more audio.
	synth := newFakeTTS(false, []byte{1, 2})
	sink := &fakeSink{}
	p := NewSpeechPlayer(Config{}, synth, sink)

	ch := p.Speak(context.Background(), "long reply")
	deadline := time.After(time.Second)
	for {
		sink.mu.Lock()
		n := len(sink.played)
		sink.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("playback never started")
		case <-time.After(time.Millisecond):
		}
	}
	p.Abort()

	o := waitOutcome(t, ch)
	if !o.Aborted || o.Completed {
		t.Fatalf("outcome = %+v, want aborted", o)
	}
	if sink.discardCount() == 0 {
		t.Fatal("abort did not discard queued audio")
	}
	if _, ok := <-ch; ok {
		t.Fatal("outcome channel delivered a second value")
	}
}

func TestAbortIsIdempotent(t *testing.T) {
	synth := newFakeTTS(false)
	sink := &fakeSink{}
	p := NewSpeechPlayer(Config{}, synth, sink)

	ch := p.Speak(context.Background(), "reply")
	p.Abort()
	p.Abort()
	p.Abort()

	o := waitOutcome(t, ch)
	if !o.Aborted {
		t.Fatalf("outcome = %+v, want aborted", o)
	}
}

func TestAbortAfterCompletionIsNoop(t *testing.T) {
	synth := newFakeTTS(true, []byte{9})
	sink := &fakeSink{}
	p := NewSpeechPlayer(Config{}, synth, sink)

	o := waitOutcome(t, p.Speak(context.Background(), "short"))
	if !o.Completed {
		t.Fatalf("outcome = %+v", o)
	}
	p.Abort()
	if sink.discardCount() != 0 {
		t.Fatal("abort after completion discarded audio")
	}
}

func TestSpeakReportsTTSFailure(t *testing.T) {
	synth := newFakeTTS(true)
	synth.startErr = errors.New("dial refused")
	sink := &fakeSink{}
	vlog := violations.NewLog()
	p := NewSpeechPlayer(Config{}, synth, sink, WithViolations(vlog))

	o := waitOutcome(t, p.Speak(context.Background(), "hi"))
	if o.Err == nil || o.Completed || o.Aborted {
		t.Fatalf("outcome = %+v, want error", o)
	}
	if vlog.Count(violations.KindTTSFailure) != 1 {
		t.Fatal("expected tts_failure violation")
	}
}

func TestSpeakSinkFailure(t *testing.T) {
	synth := newFakeTTS(true, []byte{1})
	sink := &fakeSink{playErr: errors.New("device gone")}
	p := NewSpeechPlayer(Config{}, synth, sink)

	o := waitOutcome(t, p.Speak(context.Background(), "hi"))
	if o.Err == nil {
		t.Fatalf("outcome = %+v, want error", o)
	}
}
