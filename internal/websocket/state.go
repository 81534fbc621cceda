package websocket

import (
	"sync"

	"github.com/pkg/errors"
)

// ConnState is the lifecycle of a single connection. DISCONNECTED is terminal.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticating
	StateConnected
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

var allowedTransitions = map[ConnState][]ConnState{
	StateConnecting:     {StateAuthenticating, StateDisconnected},
	StateAuthenticating: {StateConnected, StateDisconnected},
	StateConnected:      {StateDisconnected},
}

var ErrInvalidTransition = errors.New("invalid connection state transition")

type stateMachine struct {
	mu    sync.Mutex
	state ConnState
}

func (m *stateMachine) Current() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// transition moves to next if the edge exists.
func (m *stateMachine) transition(next ConnState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range allowedTransitions[m.state] {
		if allowed == next {
			m.state = next
			return nil
		}
	}
	return errors.Wrapf(ErrInvalidTransition, "%s -> %s", m.state, next)
}
