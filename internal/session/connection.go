package session

import (
	"sync"

	"github.com/easelapp/easel-api/internal/backend"
	"github.com/easelapp/easel-api/internal/events"
)

// Connection tracks the backend client and its lifecycle state.
// Control layers observe it to recompute supportability when the
// connection comes and goes.
type Connection struct {
	mu     sync.Mutex
	client backend.Client
	state  backend.ConnectionState

	stateChanged events.Signal[backend.ConnectionState]
}

// NewConnection returns a disconnected Connection.
func NewConnection() *Connection {
	return &Connection{state: backend.Disconnected}
}

// Connect attaches a backend client and transitions to Connected.
func (c *Connection) Connect(client backend.Client) {
	c.mu.Lock()
	c.client = client
	c.state = backend.Connected
	c.mu.Unlock()
	c.stateChanged.Emit(backend.Connected)
}

// Disconnect drops the client.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	c.client = nil
	c.state = backend.Disconnected
	c.mu.Unlock()
	c.stateChanged.Emit(backend.Disconnected)
}

// Client returns the attached client, or nil while disconnected.
func (c *Connection) Client() backend.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// State returns the connection state.
func (c *Connection) State() backend.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Capabilities returns the connected backend's capabilities, or the
// zero value while disconnected.
func (c *Connection) Capabilities() backend.Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return backend.Capabilities{}
	}
	return c.client.Capabilities()
}

// StateChanged notifies on every connection state transition.
func (c *Connection) StateChanged() *events.Signal[backend.ConnectionState] {
	return &c.stateChanged
}
