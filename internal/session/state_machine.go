package session

import "sync"

type State string

type Event string

const (
	StateIdle             State = "IDLE"
	StateProvisioning     State = "PROVISIONING"
	StateResolvingAccount State = "RESOLVING_ACCOUNT"
	StateLoadingMarkets   State = "LOADING_MARKETS"
	StateReady            State = "READY"
)

const (
	EventStart           Event = "START"
	EventProvisioned     Event = "PROVISIONED"
	EventAccountResolved Event = "ACCOUNT_RESOLVED"
	EventMarketsLoaded   Event = "MARKETS_LOADED"
	EventFailed          Event = "FAILED"
)

type StateMachine struct {
	mu    sync.Mutex
	state State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateIdle}
}

func (s *StateMachine) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *StateMachine) Apply(event Event) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = nextState(s.state, event)
	return s.state
}

// Begin moves Idle to Provisioning and reports whether it did.
func (s *StateMachine) Begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return false
	}
	s.state = StateProvisioning
	return true
}

func nextState(current State, event Event) State {
	switch current {
	case StateIdle:
		if event == EventStart {
			return StateProvisioning
		}
	case StateProvisioning:
		if event == EventProvisioned {
			return StateResolvingAccount
		}
	case StateResolvingAccount:
		if event == EventAccountResolved {
			return StateLoadingMarkets
		}
	case StateLoadingMarkets:
		if event == EventMarketsLoaded {
			return StateReady
		}
	}
	if event == EventFailed && current != StateReady {
		return StateIdle
	}
	return current
}
