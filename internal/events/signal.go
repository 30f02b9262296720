package events

import "sync"

// Signal dispatches values of type T to registered handlers.
// The zero value is ready to use.
type Signal[T any] struct {
	mu       sync.Mutex
	nextID   int
	handlers []handler[T]
}

type handler[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn to receive every value emitted after this call.
// The returned function removes the registration; calling it more than
// once is harmless.
func (s *Signal[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.handlers = append(s.handlers, handler[T]{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, h := range s.handlers {
			if h.id == id {
				s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
				return
			}
		}
	}
}

// Emit invokes all registered handlers with v, in registration order,
// on the calling goroutine. Handlers registered during Emit do not
// receive v.
func (s *Signal[T]) Emit(v T) {
	s.mu.Lock()
	snapshot := make([]handler[T], len(s.handlers))
	copy(snapshot, s.handlers)
	s.mu.Unlock()

	for _, h := range snapshot {
		h.fn(v)
	}
}

// Notifier is a Signal without a payload, for pure "something changed"
// notifications such as queue count changes.
type Notifier struct {
	signal Signal[struct{}]
}

// Subscribe registers fn to be called on every Notify.
func (n *Notifier) Subscribe(fn func()) (unsubscribe func()) {
	return n.signal.Subscribe(func(struct{}) { fn() })
}

// Notify invokes all registered handlers on the calling goroutine.
func (n *Notifier) Notify() {
	n.signal.Emit(struct{}{})
}
