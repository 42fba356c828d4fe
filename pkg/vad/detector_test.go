package vad

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/sorenkast/voxen/pkg/frames"
)

const testRate = 16000

// pcmFrame builds a 20ms s16le frame with the given peak amplitude.
func pcmFrame(amplitude int16) frames.AudioFrame {
	samples := testRate / 50
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(amplitude))
	}
	return frames.NewAudioFrame("s1", time.Now(), pcm, testRate, 1, nil)
}

func loud() frames.AudioFrame  { return pcmFrame(8000) }
func quiet() frames.AudioFrame { return pcmFrame(0) }

func feed(d *Detector, f func() frames.AudioFrame, n int) Event {
	last := EventNone
	for i := 0; i < n; i++ {
		_, ev := d.Observe(f())
		if ev != EventNone {
			last = ev
		}
	}
	return last
}

func TestSpeechStartAfterHysteresis(t *testing.T) {
	d := NewDetector(Config{})

	if _, ev := d.Observe(loud()); ev != EventNone {
		t.Fatalf("single frame must not confirm speech, got %s", ev)
	}
	if ev := feed(d, loud, 2); ev != EventSpeechStart {
		t.Fatalf("expected speech start after 3 consecutive frames, got %s", ev)
	}
}

func TestEndOfUtteranceWithinOneTickOfTimeout(t *testing.T) {
	for _, timeout := range []time.Duration{500 * time.Millisecond, 2 * time.Second, 3 * time.Second} {
		d := NewDetector(Config{SilenceTimeout: timeout})
		if ev := feed(d, loud, 5); ev != EventSpeechStart {
			t.Fatalf("timeout %v: expected speech start", timeout)
		}

		tick := 20 * time.Millisecond
		needed := int(timeout / tick)

		// One tick short of the timeout: no boundary yet.
		if ev := feed(d, quiet, needed-1); ev != EventNone {
			t.Fatalf("timeout %v: boundary fired early", timeout)
		}
		if _, ev := d.Observe(quiet()); ev != EventEndOfUtterance {
			t.Fatalf("timeout %v: expected end of utterance at the timeout tick", timeout)
		}
	}
}

func TestBeginUtteranceArmsSilenceBoundary(t *testing.T) {
	d := NewDetector(Config{SilenceTimeout: 100 * time.Millisecond})
	d.BeginUtterance()

	// Pure silence after an externally opened window must still close it.
	if ev := feed(d, quiet, 4); ev != EventNone {
		t.Fatalf("boundary fired before the timeout, got %s", ev)
	}
	if _, ev := d.Observe(quiet()); ev != EventEndOfUtterance {
		t.Fatalf("expected end of utterance after the silence timeout")
	}
}

func TestIdleSilenceProducesNoEvent(t *testing.T) {
	d := NewDetector(Config{SilenceTimeout: 100 * time.Millisecond})
	if ev := feed(d, quiet, 500); ev != EventNone {
		t.Fatalf("silence before any speech must not produce events, got %s", ev)
	}
}

func TestSpeechResetsSilenceTimer(t *testing.T) {
	d := NewDetector(Config{SilenceTimeout: 200 * time.Millisecond})
	feed(d, loud, 5)

	// Silence almost to the boundary, then speech again.
	feed(d, quiet, 9)
	feed(d, loud, 5)
	if ev := feed(d, quiet, 9); ev != EventNone {
		t.Fatalf("silence timer must reset on renewed speech")
	}
	if _, ev := d.Observe(quiet()); ev != EventEndOfUtterance {
		t.Fatalf("expected boundary after full timeout of silence")
	}
}

func TestClassifyStampsFrames(t *testing.T) {
	d := NewDetector(Config{})
	feed(d, loud, 5)

	stamped := d.Classify(loud())
	if !stamped.IsSpeech() {
		t.Fatalf("expected loud frame stamped as speech")
	}
	if stamped.RawPayload() == nil {
		t.Fatalf("classification must preserve payload")
	}
}

func TestSpeechRatio(t *testing.T) {
	d := NewDetector(Config{})
	feed(d, quiet, 10)
	feed(d, loud, 10)

	if ratio := d.SpeechRatio(5); ratio != 1.0 {
		t.Fatalf("expected recent window all speech, got %f", ratio)
	}
	if ratio := d.SpeechRatio(20); ratio >= 1.0 || ratio <= 0 {
		t.Fatalf("expected mixed window ratio, got %f", ratio)
	}
}

func TestReset(t *testing.T) {
	d := NewDetector(Config{})
	feed(d, loud, 5)
	d.Reset()

	if _, ev := d.Observe(quiet()); ev != EventNone {
		t.Fatalf("reset detector must behave as idle")
	}
	if d.SpeechRatio(10) != 0 {
		t.Fatalf("reset must clear the window")
	}
}
