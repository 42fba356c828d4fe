package voxen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sorenkast/voxen/pkg/adapters/search"
	"github.com/sorenkast/voxen/pkg/adapters/stt"
	"github.com/sorenkast/voxen/pkg/adapters/tts"
	"github.com/sorenkast/voxen/pkg/audio/miniaudio"
	"github.com/sorenkast/voxen/pkg/configutil"
	"github.com/sorenkast/voxen/pkg/llm"
	"github.com/sorenkast/voxen/pkg/providers/deepgram"
	"github.com/sorenkast/voxen/pkg/providers/elevenlabs"
	"github.com/sorenkast/voxen/pkg/providers/grok"
	"github.com/sorenkast/voxen/pkg/providers/mock"
	"github.com/sorenkast/voxen/pkg/providers/serpapi"
	"github.com/sorenkast/voxen/pkg/resilience"
)

// AudioDevice is the full-duplex audio endpoint: microphone capture
// in, speaker playback out.
type AudioDevice interface {
	Start(ctx context.Context, onAudio func(pcm []byte)) error
	Stop() error
	Play(pcm []byte) error
	Discard()
	Pending() int
}

type AudioFactory func(cfg Config) (AudioDevice, error)
type STTFactory func(cfg Config) (stt.Transcriber, error)
type TTSFactory func(cfg Config) (tts.StreamingTTS, error)
type LLMFactory func(cfg Config) (llm.LLMAdapter, error)
type SearchFactory func(cfg Config) (search.Searcher, error)

type ProviderRegistry struct {
	audio  map[string]AudioFactory
	stt    map[string]STTFactory
	tts    map[string]TTSFactory
	llm    map[string]LLMFactory
	search map[string]SearchFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		audio:  make(map[string]AudioFactory),
		stt:    make(map[string]STTFactory),
		tts:    make(map[string]TTSFactory),
		llm:    make(map[string]LLMFactory),
		search: make(map[string]SearchFactory),
	}
}

func (r *ProviderRegistry) RegisterAudio(name string, factory AudioFactory) {
	r.audio[normalize(name)] = factory
}

func (r *ProviderRegistry) RegisterSTT(name string, factory STTFactory) {
	r.stt[normalize(name)] = factory
}

func (r *ProviderRegistry) RegisterTTS(name string, factory TTSFactory) {
	r.tts[normalize(name)] = factory
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[normalize(name)] = factory
}

func (r *ProviderRegistry) RegisterSearch(name string, factory SearchFactory) {
	r.search[normalize(name)] = factory
}

func (r *ProviderRegistry) BuildAudio(provider string, cfg Config) (AudioDevice, error) {
	fn := r.audio[normalize(provider)]
	if fn == nil {
		return nil, fmt.Errorf("audio provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildSTT(provider string, cfg Config) (stt.Transcriber, error) {
	fn := r.stt[normalize(provider)]
	if fn == nil {
		return nil, fmt.Errorf("stt provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildTTS(provider string, cfg Config) (tts.StreamingTTS, error) {
	fn := r.tts[normalize(provider)]
	if fn == nil {
		return nil, fmt.Errorf("tts provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildLLM(provider string, cfg Config) (llm.LLMAdapter, error) {
	fn := r.llm[normalize(provider)]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildSearch(provider string, cfg Config) (search.Searcher, error) {
	fn := r.search[normalize(provider)]
	if fn == nil {
		return nil, fmt.Errorf("search provider not registered: %s", provider)
	}
	return fn(cfg)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DefaultRegistry wires the built-in vendors plus in-memory mocks.
func DefaultRegistry() *ProviderRegistry {
	r := NewProviderRegistry()

	r.RegisterAudio("miniaudio", func(cfg Config) (AudioDevice, error) {
		d, err := miniaudio.New(cfg.Engine.SampleRate)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
	r.RegisterAudio("mock", func(cfg Config) (AudioDevice, error) {
		return mock.NewAudioDevice(mock.AudioConfig{SampleRate: cfg.Engine.SampleRate}), nil
	})

	r.RegisterSTT("deepgram", func(cfg Config) (stt.Transcriber, error) {
		var s struct {
			APIKey   string `mapstructure:"api_key"`
			Model    string `mapstructure:"model"`
			Language string `mapstructure:"language"`
		}
		if err := configutil.DecodeSettings(cfg.Vendors.STT.Settings, &s); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(s.APIKey, "vendors.stt.settings.api_key"); err != nil {
			return nil, err
		}
		return deepgram.New(deepgram.Config{
			APIKey:   s.APIKey,
			Model:    s.Model,
			Language: s.Language,
			StreamID: "mic",
		}), nil
	})
	r.RegisterSTT("mock", func(cfg Config) (stt.Transcriber, error) {
		var s struct {
			Transcripts []string `mapstructure:"transcripts"`
		}
		if err := configutil.DecodeSettings(cfg.Vendors.STT.Settings, &s); err != nil {
			return nil, err
		}
		return mock.NewTranscriber(mock.STTConfig{Transcripts: s.Transcripts}), nil
	})

	r.RegisterTTS("elevenlabs", func(cfg Config) (tts.StreamingTTS, error) {
		var s struct {
			APIKey       string `mapstructure:"api_key"`
			VoiceID      string `mapstructure:"voice_id"`
			ModelID      string `mapstructure:"model_id"`
			OutputFormat string `mapstructure:"output_format"`
		}
		if err := configutil.DecodeSettings(cfg.Vendors.TTS.Settings, &s); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(s.APIKey, "vendors.tts.settings.api_key"); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(s.VoiceID, "vendors.tts.settings.voice_id"); err != nil {
			return nil, err
		}
		return elevenlabs.New(elevenlabs.Config{
			APIKey:       s.APIKey,
			VoiceID:      s.VoiceID,
			ModelID:      s.ModelID,
			OutputFormat: s.OutputFormat,
			SampleRate:   cfg.Engine.SampleRate,
			StreamID:     "tts",
		}), nil
	})
	r.RegisterTTS("mock", func(cfg Config) (tts.StreamingTTS, error) {
		return mock.NewTTS(mock.TTSConfig{
			StreamID:   "tts",
			SampleRate: cfg.Engine.SampleRate,
		}), nil
	})

	r.RegisterLLM("grok", func(cfg Config) (llm.LLMAdapter, error) {
		var s struct {
			APIKey            string   `mapstructure:"api_key"`
			Models            []string `mapstructure:"models"`
			Temperature       *float64 `mapstructure:"temperature"`
			UseCircuitBreaker *bool    `mapstructure:"use_circuit_breaker"`
			CircuitThreshold  int      `mapstructure:"circuit_threshold"`
			CircuitCooldownMs int      `mapstructure:"circuit_cooldown_ms"`
		}
		if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &s); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(s.APIKey, "vendors.llm.settings.api_key"); err != nil {
			return nil, err
		}
		adapter := grok.NewAdapter(s.APIKey, s.Models...)
		adapter.Temperature = configutil.FloatValue(s.Temperature, adapter.Temperature)
		if configutil.BoolValue(s.UseCircuitBreaker, true) {
			cooldown := time.Duration(s.CircuitCooldownMs) * time.Millisecond
			adapter.Breaker = resilience.NewCircuitBreaker(s.CircuitThreshold, cooldown)
		}
		return adapter, nil
	})
	r.RegisterLLM("mock", func(cfg Config) (llm.LLMAdapter, error) {
		var s struct {
			ResponseText string `mapstructure:"response_text"`
		}
		if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &s); err != nil {
			return nil, err
		}
		return mock.NewLLMAdapter(mock.LLMConfig{ResponseText: s.ResponseText}), nil
	})

	r.RegisterSearch("serpapi", func(cfg Config) (search.Searcher, error) {
		var s struct {
			APIKey     string `mapstructure:"api_key"`
			NumResults *int   `mapstructure:"num_results"`
		}
		if err := configutil.DecodeSettings(cfg.Vendors.Search.Settings, &s); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(s.APIKey, "vendors.search.settings.api_key"); err != nil {
			return nil, err
		}
		c := serpapi.NewClient(s.APIKey)
		c.NumResults = configutil.IntValue(s.NumResults, c.NumResults)
		return c, nil
	})
	r.RegisterSearch("mock", func(cfg Config) (search.Searcher, error) {
		return mock.NewSearcher(mock.SearchConfig{}), nil
	})

	return r
}
