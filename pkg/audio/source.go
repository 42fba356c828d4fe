// Package audio provides the microphone source: continuous capture fanned
// out to any number of independent subscribers.
package audio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sorenkast/voxen/pkg/errorsx"
	"github.com/sorenkast/voxen/pkg/frames"
	"github.com/sorenkast/voxen/pkg/logging"
)

// ErrDeviceUnavailable is returned by Start when the capture device cannot
// be opened. Callers treat it as fatal for voice mode; the source never
// retries on its own.
var ErrDeviceUnavailable = errors.New("audio capture device unavailable")

// CaptureDevice abstracts a microphone. Implementations invoke onAudio from
// a single goroutine with raw PCM chunks until Stop is called.
type CaptureDevice interface {
	Start(ctx context.Context, onAudio func(pcm []byte)) error
	Stop() error
}

type SourceConfig struct {
	StreamID         string
	SampleRate       int
	Channels         int
	SubscriberBuffer int
}

// Source broadcasts captured AudioFrames to every subscriber. Frames are
// published, not consumed exclusively: each subscriber has its own channel
// and cursor, so the detector and the interrupt monitor can read the same
// stream without contending.
type Source struct {
	cfg    SourceConfig
	device CaptureDevice
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	subs    map[<-chan frames.AudioFrame]chan frames.AudioFrame
	started bool
	stopped bool
}

func NewSource(device CaptureDevice, cfg SourceConfig) *Source {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.SubscriberBuffer == 0 {
		cfg.SubscriberBuffer = 256
	}
	return &Source{
		cfg:    cfg,
		device: device,
		logger: logging.NewComponentLogger(slog.Default(), "audio_source"),
		now:    time.Now,
		subs:   make(map[<-chan frames.AudioFrame]chan frames.AudioFrame),
	}
}

// SetClock overrides the frame timestamp source, used by tests.
func (s *Source) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Start opens the capture device and begins broadcasting frames. A device
// failure surfaces as ErrDeviceUnavailable and leaves the source unusable
// for this session.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if s.device == nil {
		return errorsx.Wrap(ErrDeviceUnavailable, errorsx.ReasonDeviceUnavailable)
	}

	if err := s.device.Start(ctx, s.broadcast); err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		s.logger.Error("capture device start failed",
			slog.String("stream_id", s.cfg.StreamID),
			slog.String("error", err.Error()))
		return errorsx.Wrap(errors.Join(ErrDeviceUnavailable, err), errorsx.ReasonDeviceUnavailable)
	}

	s.logger.Info("capture started",
		slog.String("stream_id", s.cfg.StreamID),
		slog.Int("sample_rate", s.cfg.SampleRate),
		slog.Int("channels", s.cfg.Channels))
	return nil
}

// Subscribe registers a new reader. Each subscriber observes frames in
// production order on its own channel; subscribing after Stop returns a
// closed channel.
func (s *Source) Subscribe() <-chan frames.AudioFrame {
	ch := make(chan frames.AudioFrame, s.cfg.SubscriberBuffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		close(ch)
		return ch
	}
	s.subs[ch] = ch
	return ch
}

// Unsubscribe removes a reader and closes its channel.
func (s *Source) Unsubscribe(ch <-chan frames.AudioFrame) {
	s.mu.Lock()
	sub, ok := s.subs[ch]
	if ok {
		delete(s.subs, ch)
	}
	s.mu.Unlock()

	if ok {
		close(sub)
	}
}

// Stop releases the device and closes every subscriber channel.
func (s *Source) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	subs := s.subs
	s.subs = make(map[<-chan frames.AudioFrame]chan frames.AudioFrame)
	started := s.started
	s.mu.Unlock()

	var err error
	if started && s.device != nil {
		err = s.device.Stop()
	}
	for _, sub := range subs {
		close(sub)
	}

	s.logger.Info("capture stopped", slog.String("stream_id", s.cfg.StreamID))
	return err
}

func (s *Source) broadcast(pcm []byte) {
	frame := frames.NewAudioFrame(
		s.cfg.StreamID,
		s.now(),
		append([]byte(nil), pcm...),
		s.cfg.SampleRate,
		s.cfg.Channels,
		map[string]string{frames.MetaSource: "microphone"},
	)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	for _, sub := range s.subs {
		select {
		case sub <- frame:
		default:
			// A stalled subscriber drops its own frames; it must never
			// hold back the capture callback or the other readers.
			s.logger.Warn("subscriber buffer full, dropping frame",
				slog.String("stream_id", s.cfg.StreamID))
		}
	}
	s.mu.Unlock()
}
