package turn

import (
	"errors"
	"sync"
	"testing"
)

type captureListener struct {
	mu     sync.Mutex
	events []StateChange
}

func (c *captureListener) OnStateChange(event StateChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureListener) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestStateMachineHappyPath(t *testing.T) {
	sm := NewStateMachine()
	listener := &captureListener{}
	sm.AddListener(listener)

	path := []State{StateListening, StateProcessing, StateSpeaking, StateListening}
	for _, s := range path {
		if err := sm.Transition(s, "test"); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	if sm.State() != StateListening {
		t.Fatalf("expected LISTENING, got %s", sm.State())
	}
	if listener.Count() != len(path) {
		t.Fatalf("expected %d events, got %d", len(path), listener.Count())
	}
	listener.mu.Lock()
	first := listener.events[0]
	listener.mu.Unlock()
	if first.FromState != StateIdle || first.ToState != StateListening {
		t.Fatalf("unexpected first event %+v", first)
	}
}

func TestStateMachineInterruptPath(t *testing.T) {
	sm := NewStateMachine()
	steps := []State{StateListening, StateProcessing, StateSpeaking, StateInterrupted, StateListening}
	for _, s := range steps {
		if err := sm.Transition(s, "test"); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
}

func TestStateMachineProcessingErrorResumesListening(t *testing.T) {
	sm := NewStateMachine()
	mustTransition(t, sm, StateListening, StateProcessing)
	if err := sm.Transition(StateListening, "llm failed"); err != nil {
		t.Fatalf("processing error must resume listening: %v", err)
	}
}

func TestStateMachineRejectsInvalidTransitions(t *testing.T) {
	cases := []struct {
		from, to State
	}{
		{StateIdle, StateSpeaking},
		{StateIdle, StateProcessing},
		{StateListening, StateSpeaking},
		{StateListening, StateInterrupted},
		{StateProcessing, StateInterrupted},
		{StateSpeaking, StateProcessing},
		{StateInterrupted, StateSpeaking},
		{StateInterrupted, StateProcessing},
	}
	for _, tc := range cases {
		sm := newMachineAt(t, tc.from)
		err := sm.Transition(tc.to, "test")
		var ite *InvalidTransitionError
		if !errors.As(err, &ite) {
			t.Errorf("%s -> %s: expected InvalidTransitionError, got %v", tc.from, tc.to, err)
			continue
		}
		if ite.From != tc.from || ite.To != tc.to {
			t.Errorf("error fields %+v, want from=%s to=%s", ite, tc.from, tc.to)
		}
		if sm.State() != tc.from {
			t.Errorf("state changed on rejected transition: %s", sm.State())
		}
	}
}

func TestStateMachineTerminatedIsAbsorbing(t *testing.T) {
	for _, from := range []State{StateIdle, StateListening, StateProcessing, StateSpeaking, StateInterrupted} {
		sm := newMachineAt(t, from)
		sm.Terminate("teardown")
		if !sm.Terminated() {
			t.Fatalf("terminate from %s failed", from)
		}
		for _, to := range []State{StateIdle, StateListening, StateProcessing, StateSpeaking, StateInterrupted, StateTerminated} {
			if err := sm.Transition(to, "test"); err == nil {
				t.Errorf("TERMINATED -> %s was allowed", to)
			}
		}
	}
}

func mustTransition(t *testing.T, sm *StateMachine, states ...State) {
	t.Helper()
	for _, s := range states {
		if err := sm.Transition(s, "test"); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
}

// newMachineAt walks a valid path to the requested state.
func newMachineAt(t *testing.T, target State) *StateMachine {
	t.Helper()
	sm := NewStateMachine()
	var path []State
	switch target {
	case StateIdle:
	case StateListening:
		path = []State{StateListening}
	case StateProcessing:
		path = []State{StateListening, StateProcessing}
	case StateSpeaking:
		path = []State{StateListening, StateProcessing, StateSpeaking}
	case StateInterrupted:
		path = []State{StateListening, StateProcessing, StateSpeaking, StateInterrupted}
	default:
		t.Fatalf("no path to %s", target)
	}
	mustTransition(t, sm, path...)
	return sm
}
