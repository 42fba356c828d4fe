package runner

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingDrainer struct {
	drained chan struct{}
	delay   time.Duration
}

func (d *recordingDrainer) Drain() error {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	close(d.drained)
	return nil
}

func TestRunReturnsWorkloadError(t *testing.T) {
	want := errors.New("session failed")
	r := NewLifecycleRunner(func(ctx context.Context) error { return want }, nil, Hooks{}, time.Second)

	if err := r.Run(context.Background()); !errors.Is(err, want) {
		t.Fatalf("Run = %v, want workload error", err)
	}
	if r.State() != StateStopped {
		t.Errorf("state = %v, want StateStopped", r.State())
	}
}

func TestCancellationDrains(t *testing.T) {
	d := &recordingDrainer{drained: make(chan struct{})}
	started := make(chan struct{})
	workload := func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	}
	r := NewLifecycleRunner(workload, d, Hooks{}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	<-started
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run after cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	select {
	case <-d.drained:
	default:
		t.Error("drainer was not invoked")
	}
}

func TestDrainTimeout(t *testing.T) {
	d := &recordingDrainer{drained: make(chan struct{}), delay: 200 * time.Millisecond}
	r := NewLifecycleRunner(func(ctx context.Context) error { return nil }, d, Hooks{}, 10*time.Millisecond)

	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected drain timeout error")
	}
}

func TestHooksFireInOrder(t *testing.T) {
	var order []string
	hooks := Hooks{
		OnStart: func() { order = append(order, "start") },
		OnStop:  func() { order = append(order, "stop") },
	}
	r := NewLifecycleRunner(func(ctx context.Context) error {
		order = append(order, "work")
		return nil
	}, nil, Hooks{OnStart: hooks.OnStart, OnStop: hooks.OnStop}, time.Second)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(order) != 3 || order[0] != "start" || order[1] != "work" || order[2] != "stop" {
		t.Errorf("order = %v", order)
	}
}

func TestRunTwiceRejected(t *testing.T) {
	r := NewLifecycleRunner(func(ctx context.Context) error { return nil }, nil, Hooks{}, time.Second)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("second Run should fail")
	}
}
