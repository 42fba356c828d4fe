// Package miniaudio implements the engine's capture and playback devices on
// top of malgo (miniaudio bindings). One allocated context owns both devices.
package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

const (
	defaultSampleRate = 16000
	channels          = 1
)

type Device struct {
	audioContext *malgo.AllocatedContext

	capture  *malgo.Device
	playback *malgo.Device

	sampleRate uint32

	onAudio func(pcm []byte)

	bufMu         sync.Mutex
	leftoverAudio []byte

	mu sync.Mutex
}

func New(sampleRate int) (*Device, error) {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	d := &Device{
		audioContext: audioCtx,
		sampleRate:   uint32(sampleRate),
	}

	if err := d.initCapture(); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.initPlayback(); err != nil {
		d.Close()
		return nil, err
	}

	return d, nil
}

func (d *Device) initCapture() error {
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = d.sampleRate
	config.Capture.Format = format
	config.Capture.Channels = channels
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = d.sampleRate / 50 // 20ms frames
	config.Periods = 3

	var err error
	d.capture, err = malgo.InitDevice(d.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			d.mu.Lock()
			onAudio := d.onAudio
			d.mu.Unlock()
			if onAudio != nil {
				onAudio(pInput[:n])
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}
	return nil
}

func (d *Device) initPlayback() error {
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = d.sampleRate
	config.Playback.Format = format
	config.Playback.Channels = channels
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = d.sampleRate / 10 // ~100ms of audio
	config.Periods = 4

	var err error
	d.playback, err = malgo.InitDevice(d.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			d.bufMu.Lock()
			defer d.bufMu.Unlock()
			copied := copy(pOutput, d.leftoverAudio)
			d.leftoverAudio = d.leftoverAudio[copied:]
			for i := copied; i < n && i < len(pOutput); i++ {
				pOutput[i] = 0
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	return nil
}

// Start begins capture and routes microphone PCM to onAudio.
func (d *Device) Start(_ context.Context, onAudio func(pcm []byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capture == nil {
		return fmt.Errorf("capture device not initialized")
	}
	d.onAudio = onAudio
	if d.capture.IsStarted() {
		return nil
	}
	if err := d.capture.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

// Stop halts capture without tearing the device down.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capture == nil || !d.capture.IsStarted() {
		return nil
	}
	if err := d.capture.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	d.onAudio = nil
	return nil
}

// Play queues synthesized PCM for the speaker.
func (d *Device) Play(pcm []byte) error {
	d.mu.Lock()
	playback := d.playback
	d.mu.Unlock()
	if playback == nil {
		return fmt.Errorf("playback device not initialized")
	}
	if !playback.IsStarted() {
		if err := playback.Start(); err != nil {
			return fmt.Errorf("failed to start playback device: %w", err)
		}
	}

	d.bufMu.Lock()
	d.leftoverAudio = append(d.leftoverAudio, pcm...)
	d.bufMu.Unlock()
	return nil
}

// Discard drops any queued, not-yet-played audio.
func (d *Device) Discard() {
	d.bufMu.Lock()
	d.leftoverAudio = nil
	d.bufMu.Unlock()
}

// Pending reports how many queued bytes have not reached the speaker yet.
func (d *Device) Pending() int {
	d.bufMu.Lock()
	defer d.bufMu.Unlock()
	return len(d.leftoverAudio)
}

func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capture != nil {
		d.capture.Uninit()
		d.capture = nil
	}
	if d.playback != nil {
		d.playback.Uninit()
		d.playback = nil
	}
	if d.audioContext != nil {
		_ = d.audioContext.Uninit()
		d.audioContext.Free()
		d.audioContext = nil
	}
}
