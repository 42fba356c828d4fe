package tts

import (
	"context"

	"github.com/sorenkast/voxen/pkg/frames"
)

// StreamingTTS defines the contract for any TTS vendor implementation.
// Text goes in incrementally; synthesized audio frames come out of
// Results until the vendor reports completion for the flushed segment.
type StreamingTTS interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start dials the vendor and begins the synthesis session.
	Start(ctx context.Context) error
	// SendText queues a text fragment for synthesis.
	SendText(ctx context.Context, text string) error
	// Flush signals that the current segment is complete and should be
	// fully synthesized. The Results stream emits a control frame with
	// ControlSynthesisComplete once all audio for the segment arrived.
	Flush(ctx context.Context) error
	// Results returns the stream of synthesized audio and control frames.
	Results() <-chan frames.Frame
	// Close tears down the session and closes the Results channel.
	Close() error
}

// Config contains vendor-agnostic TTS configuration.
type Config struct {
	StreamID   string
	SampleRate int
	Voice      string
}
