package frames

import (
	"sync"
	"time"
)

type Kind string

const (
	KindAudio   Kind = "audio"
	KindControl Kind = "control"
)

type ControlCode string

const (
	ControlSynthesisComplete ControlCode = "synthesis_complete"
)

const (
	MetaStreamID = "stream_id"
	MetaSource   = "source"
)

type Frame interface {
	Kind() Kind
	Timestamp() time.Time
	Meta() map[string]string
}

// AudioFrame is a single timestamped slice of captured or synthesized PCM.
// Frames are immutable once produced; Data returns a copy, RawPayload the
// underlying buffer for hot paths that promise not to mutate it.
type AudioFrame struct {
	ts       time.Time
	pcm      []byte
	rate     int
	ch       int
	isSpeech bool
	meta     map[string]string
	pooled   bool
}

func NewAudioFrame(streamID string, ts time.Time, pcm []byte, rate, ch int, meta map[string]string) AudioFrame {
	return AudioFrame{
		ts:   ts,
		pcm:  pcm,
		rate: rate,
		ch:   ch,
		meta: mergeMeta(streamID, meta),
	}
}

// NewAudioFrameFromPool copies pcm into a pooled buffer. Use on the capture
// hot path; callers release with ReleaseAudioFrame when the frame is dropped.
func NewAudioFrameFromPool(streamID string, ts time.Time, pcm []byte, rate, ch int, meta map[string]string) AudioFrame {
	buf := AcquireAudioBuf(len(pcm))
	copy(buf, pcm)
	return AudioFrame{
		ts:     ts,
		pcm:    buf,
		rate:   rate,
		ch:     ch,
		meta:   mergeMeta(streamID, meta),
		pooled: true,
	}
}

func (a AudioFrame) Kind() Kind              { return KindAudio }
func (a AudioFrame) Timestamp() time.Time    { return a.ts }
func (a AudioFrame) Meta() map[string]string { return cloneMeta(a.meta) }
func (a AudioFrame) Data() []byte            { return append([]byte(nil), a.pcm...) }
func (a AudioFrame) RawPayload() []byte      { return a.pcm }
func (a AudioFrame) Rate() int               { return a.rate }
func (a AudioFrame) Channels() int           { return a.ch }
func (a AudioFrame) IsSpeech() bool          { return a.isSpeech }

// WithSpeech returns a copy of the frame with its speech classification set.
// The detector stamps frames once; downstream consumers never reclassify.
func (a AudioFrame) WithSpeech(isSpeech bool) AudioFrame {
	a.isSpeech = isSpeech
	return a
}

// Duration reports the playback duration of the frame's PCM assuming s16le.
func (a AudioFrame) Duration() time.Duration {
	if a.rate <= 0 || a.ch <= 0 {
		return 0
	}
	samples := len(a.pcm) / (2 * a.ch)
	return time.Duration(samples) * time.Second / time.Duration(a.rate)
}

func ReleaseAudioFrame(f Frame) bool {
	af, ok := f.(AudioFrame)
	if !ok {
		if ap, ok := f.(*AudioFrame); ok {
			af = *ap
		} else {
			return false
		}
	}
	if af.pooled {
		ReleaseAudioBuf(af.pcm)
		return true
	}
	return false
}

type ControlFrame struct {
	ts   time.Time
	code ControlCode
	meta map[string]string
}

func NewControlFrame(streamID string, ts time.Time, code ControlCode, meta map[string]string) ControlFrame {
	return ControlFrame{
		ts:   ts,
		code: code,
		meta: mergeMeta(streamID, meta),
	}
}

func (c ControlFrame) Kind() Kind              { return KindControl }
func (c ControlFrame) Timestamp() time.Time    { return c.ts }
func (c ControlFrame) Meta() map[string]string { return cloneMeta(c.meta) }
func (c ControlFrame) Code() ControlCode       { return c.code }

var audioBufPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 4096)
	},
}

func AcquireAudioBuf(size int) []byte {
	b := audioBufPool.Get().([]byte)
	if cap(b) < size {
		return make([]byte, size)
	}
	return b[:size]
}

func ReleaseAudioBuf(b []byte) {
	audioBufPool.Put(b[:0])
}

func mergeMeta(streamID string, meta map[string]string) map[string]string {
	out := make(map[string]string, 2+len(meta))
	if streamID != "" {
		out[MetaStreamID] = streamID
	}
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
