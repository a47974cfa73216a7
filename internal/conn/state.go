package conn

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nocdem/dna-messenger-sub010/internal/bus"
)

// State represents the engine's view of transport connectivity.
type State string

const (
	Booting      State = "BOOTING"
	Offline      State = "OFFLINE"
	Connecting   State = "CONNECTING"
	Online       State = "ONLINE"
	Reconnecting State = "RECONNECTING"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {Connecting, Offline, Error},
	Offline:      {Connecting, Error},
	Connecting:   {Online, Reconnecting, Offline, Error},
	Online:       {Reconnecting, Offline, Error},
	Reconnecting: {Connecting, Online, Offline, Error},
	Error:        {Booting},
}

// Machine tracks and enforces connectivity state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsOnline reports whether the transport currently has connectivity.
func (m *Machine) IsOnline() bool {
	return m.Current() == Online
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindConnStatusChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for connectivity change events. Tagged for
// the API event stream.
type StatusChange struct {
	From State `json:"from"`
	To   State `json:"to"`
}
