package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/easelapp/easel-api/internal/backend"
	"github.com/easelapp/easel-api/internal/workflow"
)

// MockBackendClient implements backend.Client for testing.
type MockBackendClient struct {
	// EnqueueFn allows test cases to mock the Enqueue behavior.
	EnqueueFn func(ctx context.Context, req *workflow.Request) (string, error)

	// Caps is returned by Capabilities.
	Caps backend.Capabilities

	// Err is the default error for Enqueue/Interrupt/ClearQueue.
	Err error

	// Messages channel delivered by Messages(). Created lazily with a
	// generous buffer so tests can push without a consumer.
	messagesOnce sync.Once
	messages     chan backend.Message

	// Call tracking for verification.
	mu             sync.Mutex
	EnqueueCalls   []*workflow.Request
	InterruptCount int
	ClearCount     int
	nextID         int
}

// Enqueue implements backend.Client. Without a custom EnqueueFn it
// assigns sequential ids "job-1", "job-2", ...
func (m *MockBackendClient) Enqueue(ctx context.Context, req *workflow.Request) (string, error) {
	m.mu.Lock()
	m.EnqueueCalls = append(m.EnqueueCalls, req)
	m.nextID++
	id := fmt.Sprintf("job-%d", m.nextID)
	m.mu.Unlock()

	if m.EnqueueFn != nil {
		return m.EnqueueFn(ctx, req)
	}
	if m.Err != nil {
		return "", m.Err
	}
	return id, nil
}

// Interrupt implements backend.Client.
func (m *MockBackendClient) Interrupt(ctx context.Context) error {
	m.mu.Lock()
	m.InterruptCount++
	m.mu.Unlock()
	return m.Err
}

// ClearQueue implements backend.Client.
func (m *MockBackendClient) ClearQueue(ctx context.Context) error {
	m.mu.Lock()
	m.ClearCount++
	m.mu.Unlock()
	return m.Err
}

// Capabilities implements backend.Client.
func (m *MockBackendClient) Capabilities() backend.Capabilities {
	return m.Caps
}

// Messages implements backend.Client.
func (m *MockBackendClient) Messages() <-chan backend.Message {
	m.messagesOnce.Do(func() { m.messages = make(chan backend.Message, 64) })
	return m.messages
}

// Push delivers a message as if the backend sent it.
func (m *MockBackendClient) Push(msg backend.Message) {
	m.messagesOnce.Do(func() { m.messages = make(chan backend.Message, 64) })
	m.messages <- msg
}

// LastEnqueued returns the most recent enqueued request, or nil.
func (m *MockBackendClient) LastEnqueued() *workflow.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.EnqueueCalls) == 0 {
		return nil
	}
	return m.EnqueueCalls[len(m.EnqueueCalls)-1]
}

// NewMockBackendClientWithError creates a client whose operations fail
// with err.
func NewMockBackendClientWithError(err error) *MockBackendClient {
	return &MockBackendClient{Err: err}
}

var _ backend.Client = (*MockBackendClient)(nil)
