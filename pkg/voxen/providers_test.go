package voxen

import (
	"strings"
	"testing"
)

func mockConfig() Config {
	return Config{
		Engine: EngineConfig{SampleRate: 16000},
		Vendors: VendorsConfig{
			Audio: VendorConfig{Provider: "mock"},
			STT: VendorConfig{
				Provider: "mock",
				Settings: map[string]any{"transcripts": []string{"hello"}},
			},
			TTS: VendorConfig{Provider: "mock"},
			LLM: VendorConfig{
				Provider: "mock",
				Settings: map[string]any{"response_text": "hi"},
			},
			Search: VendorConfig{Provider: "mock"},
		},
	}
}

func TestDefaultRegistryBuildsMocks(t *testing.T) {
	r := DefaultRegistry()
	cfg := mockConfig()

	if _, err := r.BuildAudio(cfg.Vendors.Audio.Provider, cfg); err != nil {
		t.Fatalf("BuildAudio: %v", err)
	}
	if _, err := r.BuildSTT(cfg.Vendors.STT.Provider, cfg); err != nil {
		t.Fatalf("BuildSTT: %v", err)
	}
	if _, err := r.BuildTTS(cfg.Vendors.TTS.Provider, cfg); err != nil {
		t.Fatalf("BuildTTS: %v", err)
	}
	if _, err := r.BuildLLM(cfg.Vendors.LLM.Provider, cfg); err != nil {
		t.Fatalf("BuildLLM: %v", err)
	}
	if _, err := r.BuildSearch(cfg.Vendors.Search.Provider, cfg); err != nil {
		t.Fatalf("BuildSearch: %v", err)
	}
}

func TestRegistryNamesAreCaseInsensitive(t *testing.T) {
	r := DefaultRegistry()
	if _, err := r.BuildLLM(" Mock ", mockConfig()); err != nil {
		t.Fatalf("BuildLLM with padded name: %v", err)
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.BuildSTT("whisperx", mockConfig())
	if err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("err = %v, want not-registered error", err)
	}
}

func TestVendorsRequireAPIKeys(t *testing.T) {
	r := DefaultRegistry()
	cfg := mockConfig()
	cfg.Vendors.STT = VendorConfig{Provider: "deepgram"}
	cfg.Vendors.LLM = VendorConfig{Provider: "grok"}
	cfg.Vendors.Search = VendorConfig{Provider: "serpapi"}

	if _, err := r.BuildSTT("deepgram", cfg); err == nil {
		t.Error("deepgram without api_key should fail")
	}
	if _, err := r.BuildLLM("grok", cfg); err == nil {
		t.Error("grok without api_key should fail")
	}
	if _, err := r.BuildSearch("serpapi", cfg); err == nil {
		t.Error("serpapi without api_key should fail")
	}
}
