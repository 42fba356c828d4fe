package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sorenkast/voxen/pkg/adapters/tts"
	"github.com/sorenkast/voxen/pkg/frames"
)

type TTSConfig struct {
	StreamID   string
	SampleRate int
	Channels   int
	// ChunkBytes is the size of the silent PCM frame emitted per
	// SendText call.
	ChunkBytes int
	StartErr   error
}

// StreamingTTS emits one deterministic silent audio frame per text
// fragment and a synthesis-complete marker on Flush.
type StreamingTTS struct {
	cfg     TTSConfig
	mu      sync.Mutex
	out     chan frames.Frame
	started bool
}

func NewTTS(cfg TTSConfig) *StreamingTTS {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.ChunkBytes == 0 {
		cfg.ChunkBytes = 320
	}
	return &StreamingTTS{cfg: cfg}
}

func (s *StreamingTTS) Name() string { return "mock_tts" }

func (s *StreamingTTS) Start(context.Context) error {
	if s.cfg.StartErr != nil {
		return s.cfg.StartErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = make(chan frames.Frame, 64)
	s.started = true
	return nil
}

func (s *StreamingTTS) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out != nil {
		close(s.out)
		s.out = nil
	}
	s.started = false
	return nil
}

func (s *StreamingTTS) SendText(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return errors.New("not started")
	}
	pcm := make([]byte, s.cfg.ChunkBytes)
	meta := map[string]string{
		frames.MetaStreamID: s.cfg.StreamID,
		frames.MetaSource:   "tts",
	}
	s.out <- frames.NewAudioFrame(s.cfg.StreamID, time.Now(), pcm, s.cfg.SampleRate, s.cfg.Channels, meta)
	return nil
}

func (s *StreamingTTS) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return errors.New("not started")
	}
	s.out <- frames.NewControlFrame(s.cfg.StreamID, time.Now(), frames.ControlSynthesisComplete, nil)
	return nil
}

func (s *StreamingTTS) Results() <-chan frames.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out
}

var _ tts.StreamingTTS = (*StreamingTTS)(nil)
