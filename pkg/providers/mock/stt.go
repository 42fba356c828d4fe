package mock

import (
	"context"
	"sync"

	"github.com/sorenkast/voxen/pkg/adapters/stt"
	"github.com/sorenkast/voxen/pkg/utterance"
)

type STTConfig struct {
	// Transcripts are returned in order; the last one repeats.
	Transcripts []string
	// NoSpeech makes every call report stt.ErrNoSpeech.
	NoSpeech bool
	Err      error
}

type Transcriber struct {
	cfg  STTConfig
	mu   sync.Mutex
	next int
}

func NewTranscriber(cfg STTConfig) *Transcriber {
	if len(cfg.Transcripts) == 0 {
		cfg.Transcripts = []string{"mock transcript"}
	}
	return &Transcriber{cfg: cfg}
}

func (t *Transcriber) Name() string { return "mock_stt" }
func (t *Transcriber) Close() error { return nil }

func (t *Transcriber) Transcribe(_ context.Context, _ *utterance.Utterance) (string, error) {
	if t.cfg.Err != nil {
		return "", t.cfg.Err
	}
	if t.cfg.NoSpeech {
		return "", stt.ErrNoSpeech
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	text := t.cfg.Transcripts[t.next]
	if t.next < len(t.cfg.Transcripts)-1 {
		t.next++
	}
	return text, nil
}

var _ stt.Transcriber = (*Transcriber)(nil)
