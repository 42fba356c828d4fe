package session

import (
	"context"
	"log/slog"

	"github.com/sorenkast/voxen/pkg/frames"
	"github.com/sorenkast/voxen/pkg/logging"
	"github.com/sorenkast/voxen/pkg/vad"
)

// FrameSource is the broadcast side of the audio capture pipeline.
type FrameSource interface {
	Subscribe() <-chan frames.AudioFrame
	Unsubscribe(ch <-chan frames.AudioFrame)
}

// Interruption is the result of one Watch. When Fired is set, Frames
// holds the interrupting speech so it can seed the next utterance, and
// SpeechRatio is the fraction of the recent window classified as speech,
// a confidence signal for the abort.
type Interruption struct {
	Fired       bool
	Frames      []frames.AudioFrame
	SpeechRatio float64
}

// preRollFrames is how much audio before the speech stamp is kept so
// the seeded utterance does not start mid-word.
const preRollFrames = 8

// ratioWindowFrames is the window SpeechRatio is measured over, half a
// second at 20ms frames.
const ratioWindowFrames = 25

// InterruptMonitor races against speech playback. It reads the same
// broadcast frame stream as the main capture path with its own
// detector, and signals abort on the first frame classified as speech.
type InterruptMonitor struct {
	source FrameSource
	cfg    vad.Config
	logger *slog.Logger
}

func NewInterruptMonitor(source FrameSource, cfg vad.Config, logger *slog.Logger) *InterruptMonitor {
	return &InterruptMonitor{
		source: source,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "interrupt_monitor"),
	}
}

// Watch observes the frame stream until ctx is cancelled. abort is
// called at most once per Watch, on the first speech classification.
// After firing, frames keep accumulating until cancellation; the
// returned channel then delivers exactly one Interruption and closes.
func (m *InterruptMonitor) Watch(ctx context.Context, abort func()) <-chan Interruption {
	out := make(chan Interruption, 1)
	sub := m.source.Subscribe()

	go func() {
		defer close(out)
		detector := vad.NewDetector(m.cfg)
		var fired bool
		var collected []frames.AudioFrame
		var preRoll []frames.AudioFrame

		deliver := func() {
			out <- Interruption{
				Fired:       fired,
				Frames:      collected,
				SpeechRatio: detector.SpeechRatio(ratioWindowFrames),
			}
		}
		for {
			select {
			case <-ctx.Done():
				m.source.Unsubscribe(sub)
				deliver()
				return
			case f, ok := <-sub:
				if !ok {
					deliver()
					return
				}
				stamped := detector.Classify(f)
				if fired {
					collected = append(collected, stamped)
					continue
				}
				preRoll = append(preRoll, stamped)
				if len(preRoll) > preRollFrames {
					preRoll = preRoll[1:]
				}
				if stamped.IsSpeech() {
					fired = true
					collected = append(collected, preRoll...)
					preRoll = nil
					m.logger.Info("speech detected during playback, aborting")
					abort()
				}
			}
		}
	}()
	return out
}
