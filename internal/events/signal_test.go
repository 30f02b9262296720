package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalEmit(t *testing.T) {
	var s Signal[int]
	var got []int

	s.Subscribe(func(v int) { got = append(got, v) })
	s.Subscribe(func(v int) { got = append(got, v*10) })

	s.Emit(3)
	s.Emit(4)

	assert.Equal(t, []int{3, 30, 4, 40}, got, "handlers run in registration order")
}

func TestSignalEmitNoHandlers(t *testing.T) {
	var s Signal[string]
	assert.NotPanics(t, func() { s.Emit("nothing listening") })
}

func TestSignalUnsubscribe(t *testing.T) {
	var s Signal[int]
	calls := 0

	unsubscribe := s.Subscribe(func(int) { calls++ })
	s.Emit(1)
	unsubscribe()
	s.Emit(2)

	assert.Equal(t, 1, calls)

	// Unsubscribing twice must not remove other handlers.
	s.Subscribe(func(int) { calls += 100 })
	unsubscribe()
	s.Emit(3)
	assert.Equal(t, 101, calls)
}

func TestNotifier(t *testing.T) {
	var n Notifier
	calls := 0

	unsubscribe := n.Subscribe(func() { calls++ })
	n.Notify()
	n.Notify()
	unsubscribe()
	n.Notify()

	assert.Equal(t, 2, calls)
}
