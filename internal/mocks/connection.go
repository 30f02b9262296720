package mocks

import (
	"sync"

	"github.com/easelapp/easel-api/internal/backend"
	"github.com/easelapp/easel-api/internal/events"
)

// MockConnection implements the connection view control layers observe.
type MockConnection struct {
	mu    sync.Mutex
	state backend.ConnectionState
	caps  backend.Capabilities

	stateChanged events.Signal[backend.ConnectionState]
}

// NewMockConnection returns a connection in the given state with the
// given capabilities.
func NewMockConnection(state backend.ConnectionState, caps backend.Capabilities) *MockConnection {
	return &MockConnection{state: state, caps: caps}
}

// State implements control.Connection.
func (m *MockConnection) State() backend.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Capabilities implements control.Connection.
func (m *MockConnection) Capabilities() backend.Capabilities {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.caps
}

// StateChanged implements control.Connection.
func (m *MockConnection) StateChanged() *events.Signal[backend.ConnectionState] {
	return &m.stateChanged
}

// SetState transitions the connection and notifies observers.
func (m *MockConnection) SetState(state backend.ConnectionState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	m.stateChanged.Emit(state)
}

// SetCapabilities swaps the reported capabilities.
func (m *MockConnection) SetCapabilities(caps backend.Capabilities) {
	m.mu.Lock()
	m.caps = caps
	m.mu.Unlock()
}
