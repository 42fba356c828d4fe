package voxen

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Engine        EngineConfig        `mapstructure:"engine"`
	Vendors       VendorsConfig       `mapstructure:"vendors"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
}

type EngineConfig struct {
	// SilenceTimeout is seconds of quiet that close an utterance.
	SilenceTimeout       float64  `mapstructure:"silence_timeout"`
	MaxResponseWords     int      `mapstructure:"max_response_words"`
	ExplainKeyword       string   `mapstructure:"explain_keyword"`
	ExitKeywords         []string `mapstructure:"exit_keywords"`
	MaxUtteranceDuration float64  `mapstructure:"max_utterance_duration"`
	SampleRate           int      `mapstructure:"sample_rate"`
	SpeechThreshold      float64  `mapstructure:"speech_threshold"`
	SilenceThreshold     float64  `mapstructure:"silence_threshold"`
	SearchTimeoutMS      int      `mapstructure:"search_timeout_ms"`
	LLMTimeoutMS         int      `mapstructure:"llm_timeout_ms"`
	STTTimeoutMS         int      `mapstructure:"stt_timeout_ms"`
	HistoryTurns         int      `mapstructure:"history_turns"`
}

func (e EngineConfig) SilenceTimeoutDuration() time.Duration {
	return time.Duration(e.SilenceTimeout * float64(time.Second))
}

func (e EngineConfig) MaxUtteranceDurationValue() time.Duration {
	return time.Duration(e.MaxUtteranceDuration * float64(time.Second))
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	Audio  VendorConfig `mapstructure:"audio"`
	STT    VendorConfig `mapstructure:"stt"`
	TTS    VendorConfig `mapstructure:"tts"`
	LLM    VendorConfig `mapstructure:"llm"`
	Search VendorConfig `mapstructure:"search"`
}

type ObservabilityConfig struct {
	MetricsPath    string `mapstructure:"metrics_path"`
	ViolationsPath string `mapstructure:"violations_path"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("VOXEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("engine.silence_timeout", 2.0)
	v.SetDefault("engine.max_response_words", 10)
	v.SetDefault("engine.explain_keyword", "explain")
	v.SetDefault("engine.exit_keywords", []string{"exit", "quit"})
	v.SetDefault("engine.max_utterance_duration", 30.0)
	v.SetDefault("engine.sample_rate", 16000)
	v.SetDefault("engine.speech_threshold", 0.015)
	v.SetDefault("engine.silence_threshold", 0.008)
	v.SetDefault("engine.search_timeout_ms", 10000)
	v.SetDefault("engine.llm_timeout_ms", 30000)
	v.SetDefault("engine.stt_timeout_ms", 15000)
	v.SetDefault("engine.history_turns", 8)
	v.SetDefault("vendors.audio.provider", "miniaudio")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Engine.SilenceTimeout <= 0 {
		return fmt.Errorf("engine.silence_timeout must be positive")
	}
	if c.Engine.SampleRate <= 0 {
		return fmt.Errorf("engine.sample_rate must be positive")
	}
	if strings.TrimSpace(c.Vendors.STT.Provider) == "" {
		return fmt.Errorf("vendors.stt.provider is required")
	}
	if strings.TrimSpace(c.Vendors.TTS.Provider) == "" {
		return fmt.Errorf("vendors.tts.provider is required")
	}
	if strings.TrimSpace(c.Vendors.LLM.Provider) == "" {
		return fmt.Errorf("vendors.llm.provider is required")
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	cfg.Vendors.Audio.Settings = expandSettings(cfg.Vendors.Audio.Settings)
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
	cfg.Vendors.Search.Settings = expandSettings(cfg.Vendors.Search.Settings)
	cfg.Observability.MetricsPath = os.ExpandEnv(cfg.Observability.MetricsPath)
	cfg.Observability.ViolationsPath = os.ExpandEnv(cfg.Observability.ViolationsPath)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}
