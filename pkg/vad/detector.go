// Package vad classifies captured audio frames as speech or silence and
// detects utterance boundaries from the silence that follows speech.
package vad

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/sorenkast/voxen/pkg/frames"
)

// Event marks an utterance boundary observed on the frame stream.
type Event int

const (
	EventNone Event = iota
	EventSpeechStart
	EventEndOfUtterance
)

func (e Event) String() string {
	switch e {
	case EventSpeechStart:
		return "SPEECH_START"
	case EventEndOfUtterance:
		return "END_OF_UTTERANCE"
	default:
		return "NONE"
	}
}

type Config struct {
	// SpeechThreshold is the normalized RMS level that begins speech.
	SpeechThreshold float64
	// SilenceThreshold is the normalized RMS level that ends speech.
	// Keeping it below SpeechThreshold gives hysteresis so classification
	// does not flicker at the boundary.
	SilenceThreshold float64
	// SpeechFrames is how many consecutive energetic frames confirm speech.
	SpeechFrames int
	// SilenceTimeout is how much consecutive non-speech after speech
	// declares end-of-utterance.
	SilenceTimeout time.Duration
	// WindowFrames bounds the rolling classification window.
	WindowFrames int
}

func (c Config) withDefaults() Config {
	if c.SpeechThreshold <= 0 {
		c.SpeechThreshold = 0.015
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = 0.008
	}
	if c.SpeechFrames <= 0 {
		c.SpeechFrames = 3
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = 2 * time.Second
	}
	if c.WindowFrames <= 0 {
		c.WindowFrames = 100
	}
	return c
}

// Detector is a pure-Go energy detector with hysteresis. It is not safe for
// concurrent use; give each consumer of the frame stream its own instance.
type Detector struct {
	cfg Config

	inSpeech     bool
	speechCount  int
	silenceCount int

	window []bool
	ticks  int

	utteranceActive bool
	silentFor       time.Duration
}

func NewDetector(cfg Config) *Detector {
	cfg = cfg.withDefaults()
	return &Detector{
		cfg:    cfg,
		window: make([]bool, cfg.WindowFrames),
	}
}

// Classify stamps the frame's speech flag using RMS energy with hysteresis.
func (d *Detector) Classify(f frames.AudioFrame) frames.AudioFrame {
	stamped, _ := d.classify(f)
	return stamped
}

func (d *Detector) classify(f frames.AudioFrame) (frames.AudioFrame, float64) {
	level := rms(f.RawPayload())

	if d.inSpeech {
		if level < d.cfg.SilenceThreshold {
			d.silenceCount++
			d.speechCount = 0
			// A single quiet frame inside speech does not end it; the
			// utterance boundary is owned by the silence timer below.
			if d.silenceCount >= d.cfg.SpeechFrames {
				d.inSpeech = false
				d.silenceCount = 0
			}
		} else {
			d.silenceCount = 0
		}
	} else {
		if level >= d.cfg.SpeechThreshold {
			d.speechCount++
			d.silenceCount = 0
			if d.speechCount >= d.cfg.SpeechFrames {
				d.inSpeech = true
				d.speechCount = 0
			}
		} else {
			d.speechCount = 0
		}
	}

	d.window[d.ticks%len(d.window)] = d.inSpeech
	d.ticks++

	return f.WithSpeech(d.inSpeech), level
}

// Observe classifies the frame and reports any utterance boundary it
// completes: EventSpeechStart on the first speech frame after silence,
// EventEndOfUtterance once SilenceTimeout of consecutive non-speech has
// accumulated after at least one speech frame. Boundaries fire within one
// frame of the configured timeout.
func (d *Detector) Observe(f frames.AudioFrame) (frames.AudioFrame, Event) {
	stamped, level := d.classify(f)

	event := EventNone
	if stamped.IsSpeech() && !d.utteranceActive {
		d.utteranceActive = true
		d.silentFor = 0
		event = EventSpeechStart
	}

	// The silence timer tracks raw energy, not the hysteresis state, so the
	// boundary lands on the exact frame the timeout elapses instead of
	// trailing it by the hysteresis confirmation count.
	if level >= d.cfg.SpeechThreshold {
		d.silentFor = 0
	} else if d.utteranceActive {
		d.silentFor += frameDuration(f)
		if d.silentFor >= d.cfg.SilenceTimeout {
			d.utteranceActive = false
			d.silentFor = 0
			event = EventEndOfUtterance
		}
	}

	return stamped, event
}

// BeginUtterance opens the utterance window without a speech frame, for
// speech captured while observation was paused. The following silence then
// drives end-of-utterance as usual.
func (d *Detector) BeginUtterance() {
	d.utteranceActive = true
	d.silentFor = 0
}

// SpeechRatio reports the fraction of the last n observed frames classified
// as speech.
func (d *Detector) SpeechRatio(n int) float64 {
	if n > d.ticks {
		n = d.ticks
	}
	if n > len(d.window) {
		n = len(d.window)
	}
	if n == 0 {
		return 0
	}
	count := 0
	for i := 0; i < n; i++ {
		if d.window[(d.ticks-1-i+len(d.window))%len(d.window)] {
			count++
		}
	}
	return float64(count) / float64(n)
}

// Reset clears all classification and boundary state.
func (d *Detector) Reset() {
	d.inSpeech = false
	d.speechCount = 0
	d.silenceCount = 0
	d.utteranceActive = false
	d.silentFor = 0
	d.ticks = 0
	for i := range d.window {
		d.window[i] = false
	}
}

func frameDuration(f frames.AudioFrame) time.Duration {
	if dur := f.Duration(); dur > 0 {
		return dur
	}
	// Unknown encoding: assume a 20ms tick so silence still accumulates.
	return 20 * time.Millisecond
}

// rms computes the normalized root mean square of little-endian s16 PCM.
func rms(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sum float64
	n := len(pcm) / 2
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		v := float64(sample) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
