package stt

import (
	"context"
	"errors"

	"github.com/sorenkast/voxen/pkg/utterance"
)

// ErrNoSpeech is returned when the engine recognized nothing in the
// utterance. Callers treat it as non-fatal and resume listening.
var ErrNoSpeech = errors.New("no speech detected")

// Transcriber defines the contract for any STT vendor implementation. The
// utterance is a finite buffer; the call blocks until text is available,
// the context expires, or the engine fails.
type Transcriber interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Transcribe converts one utterance to text.
	Transcribe(ctx context.Context, u *utterance.Utterance) (string, error)
	// Close shuts down the STT connection.
	Close() error
}

// Config contains vendor-agnostic STT configuration.
type Config struct {
	StreamID   string
	SampleRate int
	Language   string
}
