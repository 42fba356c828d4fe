package voxen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sorenkast/voxen/pkg/audio"
	"github.com/sorenkast/voxen/pkg/logging"
	"github.com/sorenkast/voxen/pkg/metrics"
	"github.com/sorenkast/voxen/pkg/player"
	"github.com/sorenkast/voxen/pkg/policy"
	"github.com/sorenkast/voxen/pkg/session"
	"github.com/sorenkast/voxen/pkg/vad"
	"github.com/sorenkast/voxen/pkg/violations"
)

// Engine owns the full voice loop: capture device, transcription,
// response policy, and playback, wired from Config and a
// ProviderRegistry.
type Engine struct {
	cfg       Config
	providers *ProviderRegistry
	logger    *slog.Logger

	device AudioDevice
	source *audio.Source
	sess   *session.ConversationSession
	vlog   *violations.Log
	obs    metrics.Observer

	closers []func() error
}

func NewEngine(cfg Config, providers *ProviderRegistry) (*Engine, error) {
	if providers == nil {
		providers = DefaultRegistry()
	}
	SetDefaultLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("voxen_init",
		"environment", cfg.Environment,
		"audio_provider", cfg.Vendors.Audio.Provider,
		"stt_provider", cfg.Vendors.STT.Provider,
		"tts_provider", cfg.Vendors.TTS.Provider,
		"llm_provider", cfg.Vendors.LLM.Provider,
		"search_provider", cfg.Vendors.Search.Provider,
	)

	e := &Engine{
		cfg:       cfg,
		providers: providers,
		logger:    logging.NewComponentLogger(slog.Default(), "engine"),
	}
	if err := e.assemble(); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) assemble() error {
	cfg := e.cfg

	obs, vlog, err := e.buildObservability()
	if err != nil {
		return err
	}
	e.obs = obs
	e.vlog = vlog

	device, err := e.providers.BuildAudio(cfg.Vendors.Audio.Provider, cfg)
	if err != nil {
		return fmt.Errorf("build audio device: %w", err)
	}
	e.device = device
	switch c := device.(type) {
	case interface{ Close() error }:
		e.closers = append(e.closers, c.Close)
	case interface{ Close() }:
		e.closers = append(e.closers, func() error { c.Close(); return nil })
	}

	e.source = audio.NewSource(device, audio.SourceConfig{
		StreamID:   "mic",
		SampleRate: cfg.Engine.SampleRate,
	})

	transcriber, err := e.providers.BuildSTT(cfg.Vendors.STT.Provider, cfg)
	if err != nil {
		return fmt.Errorf("build stt: %w", err)
	}
	e.closers = append(e.closers, transcriber.Close)

	synth, err := e.providers.BuildTTS(cfg.Vendors.TTS.Provider, cfg)
	if err != nil {
		return fmt.Errorf("build tts: %w", err)
	}
	e.closers = append(e.closers, synth.Close)

	adapter, err := e.providers.BuildLLM(cfg.Vendors.LLM.Provider, cfg)
	if err != nil {
		return fmt.Errorf("build llm: %w", err)
	}

	policyOpts := []policy.PolicyOption{
		policy.WithViolations(vlog),
		policy.WithMetrics(obs),
		policy.WithLogger(slog.Default()),
	}
	if strings.TrimSpace(cfg.Vendors.Search.Provider) != "" {
		searcher, err := e.providers.BuildSearch(cfg.Vendors.Search.Provider, cfg)
		if err != nil {
			return fmt.Errorf("build search: %w", err)
		}
		policyOpts = append(policyOpts, policy.WithSearcher(searcher))
	}

	responder := policy.NewResponsePolicy(policy.Config{
		MaxResponseWords: cfg.Engine.MaxResponseWords,
		ExplainKeyword:   cfg.Engine.ExplainKeyword,
		SearchTimeout:    time.Duration(cfg.Engine.SearchTimeoutMS) * time.Millisecond,
		LLMTimeout:       time.Duration(cfg.Engine.LLMTimeoutMS) * time.Millisecond,
		HistoryTurns:     cfg.Engine.HistoryTurns,
	}, adapter, policyOpts...)

	speech := player.NewSpeechPlayer(player.Config{StreamID: "tts"}, synth, e.device,
		player.WithViolations(vlog),
		player.WithLogger(slog.Default()),
	)

	e.sess = session.New(session.Config{
		StreamID:             "mic",
		ExitKeywords:         cfg.Engine.ExitKeywords,
		STTTimeout:           time.Duration(cfg.Engine.STTTimeoutMS) * time.Millisecond,
		MaxUtteranceDuration: cfg.Engine.MaxUtteranceDurationValue(),
		VAD: vad.Config{
			SpeechThreshold:  cfg.Engine.SpeechThreshold,
			SilenceThreshold: cfg.Engine.SilenceThreshold,
			SilenceTimeout:   cfg.Engine.SilenceTimeoutDuration(),
		},
	}, e.source, transcriber, responder, speech,
		session.WithViolations(vlog),
		session.WithMetrics(obs),
		session.WithLogger(slog.Default()),
	)
	return nil
}

func (e *Engine) buildObservability() (metrics.Observer, *violations.Log, error) {
	var obs metrics.Observer = metrics.NoopObserver{}
	if path := strings.TrimSpace(e.cfg.Observability.MetricsPath); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open metrics file: %w", err)
		}
		e.closers = append(e.closers, f.Close)
		obs = metrics.NewJSONLObserver(f)
	}

	vopts := []violations.Option{}
	if path := strings.TrimSpace(e.cfg.Observability.ViolationsPath); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open violations file: %w", err)
		}
		e.closers = append(e.closers, f.Close)
		vopts = append(vopts, violations.WithStream(f))
	}
	return obs, violations.NewLog(vopts...), nil
}

// Run drives the conversation loop until the session terminates or ctx
// is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.sess.Run(ctx)
	})
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (e *Engine) Session() *session.ConversationSession { return e.sess }

func (e *Engine) Violations() *violations.Log { return e.vlog }

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("close", "error", err)
		}
	}
	e.closers = nil
}

func SetDefaultLogger(level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	slog.SetDefault(logging.InitLogger(lvl, format))
}
