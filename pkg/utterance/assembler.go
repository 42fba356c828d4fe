// Package utterance assembles classified audio frames into bounded
// utterances: one continuous span of detected speech ended by silence.
package utterance

import (
	"log/slog"
	"time"

	"github.com/sorenkast/voxen/pkg/frames"
	"github.com/sorenkast/voxen/pkg/logging"
	"github.com/sorenkast/voxen/pkg/vad"
	"github.com/sorenkast/voxen/pkg/violations"
)

// Utterance owns its frames exclusively until handed to transcription,
// after which it is discarded.
type Utterance struct {
	Frames    []frames.AudioFrame
	StartTime time.Time
	EndTime   time.Time
}

// PCM concatenates the utterance's audio into one buffer for transcription.
func (u *Utterance) PCM() []byte {
	total := 0
	for _, f := range u.Frames {
		total += len(f.RawPayload())
	}
	out := make([]byte, 0, total)
	for _, f := range u.Frames {
		out = append(out, f.RawPayload()...)
	}
	return out
}

func (u *Utterance) Duration() time.Duration {
	var dur time.Duration
	for _, f := range u.Frames {
		dur += f.Duration()
	}
	return dur
}

// SampleRate reports the rate of the underlying frames, zero when empty.
func (u *Utterance) SampleRate() int {
	if len(u.Frames) == 0 {
		return 0
	}
	return u.Frames[0].Rate()
}

type AssemblerConfig struct {
	// MaxDuration bounds buffered audio; exceeding it forces an early
	// end-of-utterance and records a violation.
	MaxDuration time.Duration
}

// Assembler buffers frames between speech-start and end-of-utterance. At
// most one utterance is in flight: the active buffer is owned by the
// assembler until Feed hands it off, then the assembler starts empty.
type Assembler struct {
	cfg        AssemblerConfig
	detector   *vad.Detector
	violations violations.Recorder
	logger     *slog.Logger

	active   *Utterance
	buffered time.Duration
}

func NewAssembler(detector *vad.Detector, cfg AssemblerConfig, recorder violations.Recorder) *Assembler {
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 30 * time.Second
	}
	if recorder == nil {
		recorder = violations.Noop{}
	}
	return &Assembler{
		cfg:        cfg,
		detector:   detector,
		violations: recorder,
		logger:     logging.NewComponentLogger(slog.Default(), "utterance_assembler"),
	}
}

// Feed consumes one captured frame and returns a completed utterance when a
// boundary closes, nil otherwise. Idle silence never completes an
// utterance; the caller just keeps feeding.
func (a *Assembler) Feed(f frames.AudioFrame) *Utterance {
	stamped, event := a.detector.Observe(f)

	switch event {
	case vad.EventSpeechStart:
		a.active = &Utterance{
			Frames:    []frames.AudioFrame{stamped},
			StartTime: stamped.Timestamp(),
		}
		a.buffered = stamped.Duration()
		return nil

	case vad.EventEndOfUtterance:
		if a.active == nil {
			return nil
		}
		return a.finish(stamped.Timestamp())

	default:
		if a.active == nil {
			return nil
		}
		a.active.Frames = append(a.active.Frames, stamped)
		a.buffered += stamped.Duration()
		if a.buffered >= a.cfg.MaxDuration {
			a.violations.Record(violations.KindUtteranceTooLong,
				"utterance exceeded "+a.cfg.MaxDuration.String()+", forcing early end")
			a.logger.Warn("utterance too long, forcing end-of-utterance",
				slog.Duration("buffered", a.buffered),
				slog.Duration("limit", a.cfg.MaxDuration))
			a.detector.Reset()
			return a.finish(stamped.Timestamp())
		}
		return nil
	}
}

// Seed starts a new utterance from frames captured before assembly resumed,
// so interrupting speech is not discarded: it becomes the start of the next
// utterance.
func (a *Assembler) Seed(seed []frames.AudioFrame) {
	if len(seed) == 0 {
		return
	}
	a.active = &Utterance{
		Frames:    append([]frames.AudioFrame(nil), seed...),
		StartTime: seed[0].Timestamp(),
	}
	a.buffered = 0
	for _, f := range seed {
		a.buffered += f.Duration()
	}
	// The seed already contains the speech; open the boundary window so the
	// silence that follows can close the utterance even if the speaker has
	// already stopped.
	a.detector.BeginUtterance()
}

// Assembling reports whether an utterance is currently in flight.
func (a *Assembler) Assembling() bool { return a.active != nil }

// Reset drops any in-flight utterance and clears detector state.
func (a *Assembler) Reset() {
	a.active = nil
	a.buffered = 0
	a.detector.Reset()
}

func (a *Assembler) finish(end time.Time) *Utterance {
	u := a.active
	u.EndTime = end
	a.active = nil
	a.buffered = 0
	a.logger.Debug("utterance assembled",
		slog.Int("frames", len(u.Frames)),
		slog.Duration("duration", u.Duration()))
	return u
}
