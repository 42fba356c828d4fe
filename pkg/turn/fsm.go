package turn

import (
	"sync"
	"time"
)

type State int

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateSpeaking
	StateInterrupted
	StateTerminated
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateProcessing:
		return "PROCESSING"
	case StateSpeaking:
		return "SPEAKING"
	case StateInterrupted:
		return "INTERRUPTED"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// StateChange represents a state transition event.
type StateChange struct {
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
}

// StateListener observes session state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// StateMachine validates and tracks the conversation lifecycle.
// TERMINATED is absorbing; any state may move there on teardown.
type StateMachine struct {
	mu           sync.RWMutex
	currentState State

	speakingStartTime  time.Time
	listeningStartTime time.Time

	stateChangeListeners []StateListener
}

func NewStateMachine() *StateMachine {
	return &StateMachine{currentState: StateIdle}
}

// State returns the current state.
func (sm *StateMachine) State() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

// transitionValid checks if a state transition is valid (must be called with lock held).
func (sm *StateMachine) transitionValid(from, to State) bool {
	if to == StateTerminated {
		return from != StateTerminated
	}

	validTransitions := map[State][]State{
		StateIdle:        {StateListening},
		StateListening:   {StateProcessing},
		StateProcessing:  {StateSpeaking, StateListening},
		StateSpeaking:    {StateListening, StateInterrupted},
		StateInterrupted: {StateListening},
	}

	allowedStates, exists := validTransitions[from]
	if !exists {
		return false
	}
	for _, allowed := range allowedStates {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves to a new state with validation.
func (sm *StateMachine) Transition(state State, reason string) error {
	sm.mu.Lock()

	if !sm.transitionValid(sm.currentState, state) {
		defer sm.mu.Unlock()
		return &InvalidTransitionError{
			From: sm.currentState,
			To:   state,
		}
	}

	oldState := sm.currentState
	sm.currentState = state

	switch state {
	case StateListening:
		sm.listeningStartTime = time.Now()
	case StateSpeaking:
		sm.speakingStartTime = time.Now()
	}

	event := StateChange{
		FromState: oldState,
		ToState:   state,
		Timestamp: time.Now(),
		Reason:    reason,
	}

	// Notify listeners outside the lock to avoid deadlocks.
	listeners := make([]StateListener, len(sm.stateChangeListeners))
	copy(listeners, sm.stateChangeListeners)
	sm.mu.Unlock()

	for _, listener := range listeners {
		listener.OnStateChange(event)
	}
	return nil
}

// Terminate moves to TERMINATED from any live state.
func (sm *StateMachine) Terminate(reason string) {
	_ = sm.Transition(StateTerminated, reason)
}

// Terminated reports whether the machine reached its final state.
func (sm *StateMachine) Terminated() bool {
	return sm.State() == StateTerminated
}

// SpeakingDuration returns how long the current SPEAKING state has
// lasted, or zero when not speaking.
func (sm *StateMachine) SpeakingDuration() time.Duration {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sm.currentState != StateSpeaking {
		return 0
	}
	return time.Since(sm.speakingStartTime)
}

// AddListener registers a listener for state change events.
func (sm *StateMachine) AddListener(listener StateListener) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.stateChangeListeners = append(sm.stateChangeListeners, listener)
}

// InvalidTransitionError represents an invalid state transition attempt
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}
