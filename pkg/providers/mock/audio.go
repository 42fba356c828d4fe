package mock

import (
	"context"
	"sync"
	"time"
)

type AudioConfig struct {
	SampleRate int
	// Script is replayed in order, one chunk per tick; when exhausted
	// the device emits silence.
	Script   [][]byte
	Interval time.Duration
	StartErr error
}

// AudioDevice is a capture device and playback sink backed by a
// scripted PCM sequence, for running the engine without hardware.
type AudioDevice struct {
	cfg    AudioConfig
	mu     sync.Mutex
	cancel context.CancelFunc
	played [][]byte
}

func NewAudioDevice(cfg AudioConfig) *AudioDevice {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 20 * time.Millisecond
	}
	return &AudioDevice{cfg: cfg}
}

func (d *AudioDevice) Start(ctx context.Context, onAudio func(pcm []byte)) error {
	if d.cfg.StartErr != nil {
		return d.cfg.StartErr
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	silence := make([]byte, d.cfg.SampleRate/50*2)
	go func() {
		ticker := time.NewTicker(d.cfg.Interval)
		defer ticker.Stop()
		idx := 0
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				chunk := silence
				if idx < len(d.cfg.Script) {
					chunk = d.cfg.Script[idx]
					idx++
				}
				onAudio(chunk)
			}
		}
	}()
	return nil
}

func (d *AudioDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	return nil
}

func (d *AudioDevice) Play(pcm []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.played = append(d.played, append([]byte(nil), pcm...))
	return nil
}

func (d *AudioDevice) Discard() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.played = nil
}

func (d *AudioDevice) Pending() int { return 0 }

// Played returns copies of everything sent to the playback side.
func (d *AudioDevice) Played() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.played))
	copy(out, d.played)
	return out
}
