package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sorenkast/voxen/pkg/adapters/tts"
	"github.com/sorenkast/voxen/pkg/frames"
	"github.com/sorenkast/voxen/pkg/logging"
	"github.com/sorenkast/voxen/pkg/violations"
)

// AudioSink consumes PCM and plays it on the output device. Discard
// drops whatever is queued without playing it.
type AudioSink interface {
	Play(pcm []byte) error
	Discard()
	Pending() int
}

// Outcome is the single terminal signal for one Speak call.
type Outcome struct {
	Completed bool
	Aborted   bool
	Err       error
}

type Config struct {
	StreamID     string
	DrainPoll    time.Duration
	DrainTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DrainPoll <= 0 {
		c.DrainPoll = 20 * time.Millisecond
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 30 * time.Second
	}
	return c
}

// SpeechPlayer streams synthesized audio to the sink. Playback is
// interruptible: Abort stops the current Speak and flushes queued
// audio. Each Speak yields exactly one Outcome.
type SpeechPlayer struct {
	cfg        Config
	synth      tts.StreamingTTS
	sink       AudioSink
	violations violations.Recorder
	logger     *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	aborted bool
}

type Option func(*SpeechPlayer)

func WithViolations(r violations.Recorder) Option {
	return func(p *SpeechPlayer) { p.violations = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *SpeechPlayer) { p.logger = logging.NewComponentLogger(l, "player") }
}

func NewSpeechPlayer(cfg Config, synth tts.StreamingTTS, sink AudioSink, opts ...Option) *SpeechPlayer {
	p := &SpeechPlayer{
		cfg:        cfg.withDefaults(),
		synth:      synth,
		sink:       sink,
		violations: violations.Noop{},
		logger:     logging.NewComponentLogger(slog.Default(), "player"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Speak synthesizes and plays text. The returned channel delivers one
// Outcome and is then closed. Only one Speak may run at a time.
func (p *SpeechPlayer) Speak(ctx context.Context, text string) <-chan Outcome {
	out := make(chan Outcome, 1)
	playCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.cancel = cancel
	p.aborted = false
	p.mu.Unlock()

	go func() {
		defer close(out)
		outcome := p.run(playCtx, text)

		p.mu.Lock()
		if p.aborted {
			outcome = Outcome{Aborted: true}
		}
		p.cancel = nil
		p.mu.Unlock()
		cancel()

		if outcome.Err != nil {
			p.logger.Error("playback failed", slog.String("error", outcome.Err.Error()))
			p.violations.Record(violations.KindTTSFailure, outcome.Err.Error())
		}
		out <- outcome
	}()
	return out
}

func (p *SpeechPlayer) run(ctx context.Context, text string) Outcome {
	if err := p.synth.Start(ctx); err != nil {
		return Outcome{Err: err}
	}
	defer p.synth.Close()

	if err := p.synth.SendText(ctx, text); err != nil {
		return Outcome{Err: err}
	}
	if err := p.synth.Flush(ctx); err != nil {
		return Outcome{Err: err}
	}

	for {
		select {
		case <-ctx.Done():
			p.sink.Discard()
			return Outcome{Aborted: true}
		case f, ok := <-p.synth.Results():
			if !ok {
				// Stream ended without an explicit completion marker.
				return p.drain(ctx)
			}
			switch f.Kind() {
			case frames.KindAudio:
				af := f.(frames.AudioFrame)
				err := p.sink.Play(af.Data())
				frames.ReleaseAudioFrame(af)
				if err != nil {
					return Outcome{Err: err}
				}
			case frames.KindControl:
				if f.(frames.ControlFrame).Code() == frames.ControlSynthesisComplete {
					return p.drain(ctx)
				}
			}
		}
	}
}

// drain waits for the sink to finish playing queued audio.
func (p *SpeechPlayer) drain(ctx context.Context) Outcome {
	deadline := time.NewTimer(p.cfg.DrainTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(p.cfg.DrainPoll)
	defer tick.Stop()
	for {
		if p.sink.Pending() == 0 {
			return Outcome{Completed: true}
		}
		select {
		case <-ctx.Done():
			p.sink.Discard()
			return Outcome{Aborted: true}
		case <-deadline.C:
			return Outcome{Completed: true}
		case <-tick.C:
		}
	}
}

// Abort stops the in-flight Speak, if any, and discards queued audio.
// Safe to call multiple times; after completion it is a no-op.
func (p *SpeechPlayer) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil || p.aborted {
		return
	}
	p.aborted = true
	p.cancel()
	p.sink.Discard()
}
