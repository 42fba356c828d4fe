package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sorenkast/voxen/pkg/adapters/stt"
	"github.com/sorenkast/voxen/pkg/frames"
	"github.com/sorenkast/voxen/pkg/logging"
	"github.com/sorenkast/voxen/pkg/metrics"
	"github.com/sorenkast/voxen/pkg/player"
	"github.com/sorenkast/voxen/pkg/policy"
	"github.com/sorenkast/voxen/pkg/turn"
	"github.com/sorenkast/voxen/pkg/utterance"
	"github.com/sorenkast/voxen/pkg/vad"
	"github.com/sorenkast/voxen/pkg/violations"
)

// Turn is one completed exchange. Append-only once finalized; handed
// to the TurnSink by value, the session does not own storage.
type Turn struct {
	ID           uuid.UUID `json:"id"`
	InputText    string    `json:"input_text"`
	ResponseText string    `json:"response_text"`
	UsedSearch   bool      `json:"used_search"`
	WordCount    int       `json:"word_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// TurnSink receives finalized turns. Delivery failures are the sink's
// concern; the session logs and moves on.
type TurnSink interface {
	SaveTurn(ctx context.Context, t Turn) error
}

// AudioStream is the capture side the session runs on.
type AudioStream interface {
	FrameSource
	Start(ctx context.Context) error
	Stop() error
}

// Player is the playback side. *player.SpeechPlayer satisfies it.
type Player interface {
	Speak(ctx context.Context, text string) <-chan player.Outcome
	Abort()
}

// Responder produces the reply text for recognized input.
type Responder interface {
	Respond(ctx context.Context, input string) policy.Result
}

type Config struct {
	StreamID             string
	ExitKeywords         []string
	STTTimeout           time.Duration
	MaxUtteranceDuration time.Duration
	VAD                  vad.Config
}

func (c Config) withDefaults() Config {
	if len(c.ExitKeywords) == 0 {
		c.ExitKeywords = []string{"exit", "quit"}
	}
	if c.STTTimeout <= 0 {
		c.STTTimeout = 15 * time.Second
	}
	if c.MaxUtteranceDuration <= 0 {
		c.MaxUtteranceDuration = 30 * time.Second
	}
	return c
}

// ConversationSession drives the listen-transcribe-respond-speak loop
// until an exit keyword or teardown.
type ConversationSession struct {
	cfg         Config
	stream      AudioStream
	transcriber stt.Transcriber
	responder   Responder
	player      Player
	monitor     *InterruptMonitor
	fsm         *turn.StateMachine
	sink        TurnSink
	violations  violations.Recorder
	metrics     metrics.Observer
	logger      *slog.Logger
}

type Option func(*ConversationSession)

func WithTurnSink(sink TurnSink) Option {
	return func(s *ConversationSession) { s.sink = sink }
}

func WithViolations(r violations.Recorder) Option {
	return func(s *ConversationSession) { s.violations = r }
}

func WithMetrics(o metrics.Observer) Option {
	return func(s *ConversationSession) { s.metrics = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *ConversationSession) {
		s.logger = logging.NewComponentLogger(l, "session")
		s.monitor = NewInterruptMonitor(s.stream, s.cfg.VAD, l)
	}
}

func New(cfg Config, stream AudioStream, transcriber stt.Transcriber, responder Responder, sp Player, opts ...Option) *ConversationSession {
	cfg = cfg.withDefaults()
	s := &ConversationSession{
		cfg:         cfg,
		stream:      stream,
		transcriber: transcriber,
		responder:   responder,
		player:      sp,
		monitor:     NewInterruptMonitor(stream, cfg.VAD, slog.Default()),
		fsm:         turn.NewStateMachine(),
		violations:  violations.Noop{},
		metrics:     metrics.NoopObserver{},
		logger:      logging.NewComponentLogger(slog.Default(), "session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State exposes the lifecycle state machine, mainly for listeners.
func (s *ConversationSession) State() *turn.StateMachine { return s.fsm }

// Run blocks until the session terminates. A capture device failure is
// fatal; everything downstream degrades and resumes listening.
func (s *ConversationSession) Run(ctx context.Context) error {
	if err := s.stream.Start(ctx); err != nil {
		s.violations.Record(violations.KindDeviceUnavailable, err.Error())
		s.fsm.Terminate("device unavailable")
		return err
	}
	defer s.stream.Stop()
	defer s.fsm.Terminate("teardown")

	if err := s.fsm.Transition(turn.StateListening, "session started"); err != nil {
		return err
	}
	s.logger.Info("session started, listening")

	sub := s.stream.Subscribe()
	defer s.stream.Unsubscribe(sub)

	detector := vad.NewDetector(s.cfg.VAD)
	assembler := utterance.NewAssembler(detector, utterance.AssemblerConfig{
		MaxDuration: s.cfg.MaxUtteranceDuration,
	}, s.violations)

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-sub:
			if !ok {
				return nil
			}
			utt := assembler.Feed(f)
			if utt == nil {
				continue
			}
			terminated, err := s.handleUtterance(ctx, utt, assembler, sub)
			if err != nil {
				return err
			}
			if terminated {
				return nil
			}
		}
	}
}

func (s *ConversationSession) handleUtterance(ctx context.Context, utt *utterance.Utterance, asm *utterance.Assembler, sub <-chan frames.AudioFrame) (bool, error) {
	turnStart := time.Now()

	text, err := s.transcribe(ctx, utt)
	if err != nil {
		if errors.Is(err, stt.ErrNoSpeech) {
			s.logger.Debug("utterance contained no recognizable speech")
			return false, nil
		}
		s.logger.Error("transcription failed", slog.String("error", err.Error()))
		return false, nil
	}
	s.logger.Info("recognized utterance", slog.String("text", text))

	if s.isExit(text) {
		s.logger.Info("exit keyword recognized", slog.String("text", text))
		s.fsm.Terminate("exit keyword")
		return true, nil
	}

	if err := s.fsm.Transition(turn.StateProcessing, "end of utterance"); err != nil {
		return false, err
	}
	res := s.responder.Respond(ctx, text)
	if ctx.Err() != nil {
		return false, nil
	}
	if err := s.fsm.Transition(turn.StateSpeaking, "response ready"); err != nil {
		return false, err
	}

	outcome, intr := s.speak(ctx, res.Text)
	// Frames captured while the reply was playing served interrupt
	// detection only; the seeded copy carries the interrupting speech.
	drainStale(sub)
	switch {
	case outcome.Aborted && intr.Fired:
		s.violations.Record(violations.KindInterrupted, "user spoke during playback")
		_ = s.fsm.Transition(turn.StateInterrupted, "speech interrupted")
		s.logger.Info("seeding next utterance from interrupting speech",
			slog.Int("seed_frames", len(intr.Frames)),
			slog.Float64("speech_ratio", intr.SpeechRatio))
		asm.Seed(intr.Frames)
		_ = s.fsm.Transition(turn.StateListening, "capturing interrupting speech")
	case outcome.Aborted:
		// Playback cancelled by teardown, not by the user.
		return false, nil
	default:
		_ = s.fsm.Transition(turn.StateListening, "playback finished")
	}

	s.emitTurn(ctx, text, res)
	s.metrics.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventTurnLatency,
		Time:  time.Now(),
		Value: float64(time.Since(turnStart).Milliseconds()),
	})
	return false, nil
}

func (s *ConversationSession) transcribe(ctx context.Context, utt *utterance.Utterance) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, s.cfg.STTTimeout)
	defer cancel()
	started := time.Now()
	text, err := s.transcriber.Transcribe(tctx, utt)
	s.metrics.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventTranscribeLatency,
		Time:  time.Now(),
		Value: float64(time.Since(started).Milliseconds()),
	})
	return text, err
}

// speak plays the reply while the interrupt monitor races against it.
func (s *ConversationSession) speak(ctx context.Context, text string) (player.Outcome, Interruption) {
	watchCtx, cancel := context.WithCancel(ctx)
	intrCh := s.monitor.Watch(watchCtx, s.player.Abort)

	started := time.Now()
	outcome := <-s.player.Speak(ctx, text)
	cancel()
	intr := <-intrCh

	s.metrics.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventSpeakLatency,
		Time:  time.Now(),
		Value: float64(time.Since(started).Milliseconds()),
	})
	return outcome, intr
}

func drainStale(sub <-chan frames.AudioFrame) {
	for {
		select {
		case _, ok := <-sub:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (s *ConversationSession) isExit(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimRight(normalized, ".!?")
	for _, kw := range s.cfg.ExitKeywords {
		if normalized == strings.ToLower(kw) {
			return true
		}
	}
	return false
}

func (s *ConversationSession) emitTurn(ctx context.Context, input string, res policy.Result) {
	if s.sink == nil {
		return
	}
	t := Turn{
		ID:           uuid.New(),
		InputText:    input,
		ResponseText: res.Text,
		UsedSearch:   res.UsedSearch,
		WordCount:    res.WordCount,
		CreatedAt:    time.Now(),
	}
	if err := s.sink.SaveTurn(ctx, t); err != nil {
		s.logger.Warn("turn sink rejected turn",
			slog.String("turn_id", t.ID.String()),
			slog.String("error", err.Error()))
	}
}
