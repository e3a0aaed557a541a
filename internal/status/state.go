// Package status tracks the daemon's runtime state.
package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/coolftc/prompt/internal/bus"
)

// State is a daemon runtime state.
type State string

const (
	Booting      State = "BOOTING"
	Unregistered State = "UNREGISTERED"
	Idle         State = "IDLE"
	Refreshing   State = "REFRESHING"
	Degraded     State = "DEGRADED"
	Error        State = "ERROR"
	Stopping     State = "STOPPING"
)

var validTransitions = map[State][]State{
	Booting:      {Unregistered, Idle, Error, Stopping},
	Unregistered: {Idle, Error, Stopping},
	Idle:         {Refreshing, Unregistered, Error, Stopping},
	Refreshing:   {Idle, Degraded, Unregistered, Error, Stopping},
	Degraded:     {Refreshing, Idle, Error, Stopping},
	Error:        {Booting, Stopping},
}

// Machine enforces the allowed transitions between states.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a machine in the Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition moves to state to, or fails if the move is not allowed.
// Moving to the current state is a no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	m.bus.Emit(bus.KindStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// StatusChange is the payload of bus.KindStatusChanged.
type StatusChange struct {
	From State
	To   State
}
