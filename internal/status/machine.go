// Package status tracks the push-stream link state.
package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/velora/pushsync/internal/bus"
)

// State is the current condition of the push-stream link.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
)

// validTransitions defines the allowed link transitions. Any transport
// error collapses the link back to Disconnected.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Disconnected},
	Connected:    {Disconnected},
}

// Machine enforces link state transitions and announces changes on the bus.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// Change is the payload of stream.state.changed events.
type Change struct {
	From State
	To   State
}

// NewMachine creates a machine starting Disconnected.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Disconnected, bus: b}
}

// Current returns the current link state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to a new state, or errors if the move is not allowed.
// Transitioning to the current state is a no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if to == m.current {
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid link transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Topic:   bus.TopicStreamState + "changed",
			At:      time.Now(),
			Payload: Change{From: from, To: to},
		})
	}
	return nil
}
