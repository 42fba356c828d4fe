package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sorenkast/voxen/pkg/frames"
)

// scriptedDevice replays fixed PCM chunks through the capture callback.
type scriptedDevice struct {
	chunks  [][]byte
	failure error
	stopped bool
}

func (d *scriptedDevice) Start(_ context.Context, onAudio func(pcm []byte)) error {
	if d.failure != nil {
		return d.failure
	}
	go func() {
		for _, chunk := range d.chunks {
			onAudio(chunk)
		}
	}()
	return nil
}

func (d *scriptedDevice) Stop() error {
	d.stopped = true
	return nil
}

func collect(t *testing.T, ch <-chan frames.AudioFrame, n int) []frames.AudioFrame {
	t.Helper()
	out := make([]frames.AudioFrame, 0, n)
	timeout := time.After(time.Second)
	for len(out) < n {
		select {
		case f, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d frames, wanted %d", len(out), n)
			}
			out = append(out, f)
		case <-timeout:
			t.Fatalf("timed out after %d frames, wanted %d", len(out), n)
		}
	}
	return out
}

func TestSourceBroadcastsToAllSubscribers(t *testing.T) {
	device := &scriptedDevice{chunks: [][]byte{{1, 2}, {3, 4}, {5, 6}}}
	src := NewSource(device, SourceConfig{StreamID: "s1"})

	first := src.Subscribe()
	second := src.Subscribe()

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, sub := range []<-chan frames.AudioFrame{first, second} {
		got := collect(t, sub, 3)
		for i, want := range []byte{1, 3, 5} {
			if got[i].RawPayload()[0] != want {
				t.Fatalf("frame %d out of order: got %v", i, got[i].RawPayload())
			}
		}
	}
}

func TestSourceDeviceUnavailable(t *testing.T) {
	device := &scriptedDevice{failure: errors.New("no such device")}
	src := NewSource(device, SourceConfig{StreamID: "s1"})

	err := src.Start(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestSourceNilDevice(t *testing.T) {
	src := NewSource(nil, SourceConfig{})
	if err := src.Start(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestSourceStopClosesSubscribers(t *testing.T) {
	device := &scriptedDevice{}
	src := NewSource(device, SourceConfig{StreamID: "s1"})
	sub := src.Subscribe()

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if _, ok := <-sub; ok {
		t.Fatalf("expected closed subscriber channel after stop")
	}
	if !device.stopped {
		t.Fatalf("expected device released")
	}

	if _, ok := <-src.Subscribe(); ok {
		t.Fatalf("expected closed channel when subscribing after stop")
	}
}
