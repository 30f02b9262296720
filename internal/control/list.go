package control

import (
	"sync"

	"github.com/easelapp/easel-api/internal/events"
	"github.com/easelapp/easel-api/internal/workflow"
)

// List is the ordered set of control layers of one session. Layers
// whose backing document layer disappears are removed automatically.
type List struct {
	mu       sync.Mutex
	deps     Deps
	layers   []*Layer
	lastMode workflow.Mode

	added   events.Signal[*Layer]
	removed events.Signal[*Layer]
}

// NewList creates an empty list observing the document's layer set.
func NewList(deps Deps) *List {
	l := &List{
		deps:     deps,
		lastMode: workflow.ModeScribble,
	}
	deps.Doc.LayersChanged().Subscribe(l.pruneMissing)
	return l
}

// Added notifies with every layer appended through Add.
func (l *List) Added() *events.Signal[*Layer] { return &l.added }

// Removed notifies with every removed layer, both user-initiated and
// automatic cleanup.
func (l *List) Removed() *events.Signal[*Layer] { return &l.removed }

// Add creates a control layer bound to the document's active layer,
// seeded with the last mode used in this session.
func (l *List) Add() *Layer {
	l.mu.Lock()
	mode := l.lastMode
	l.mu.Unlock()

	layer := newLayer(l.deps, mode, l.deps.Doc.ActiveLayer())
	layer.ModeChanged().Subscribe(func(m workflow.Mode) {
		l.mu.Lock()
		l.lastMode = m
		l.mu.Unlock()
	})

	l.mu.Lock()
	l.layers = append(l.layers, layer)
	l.mu.Unlock()
	l.added.Emit(layer)
	return layer
}

// Remove detaches the layer's observers and removes it from the list.
func (l *List) Remove(layer *Layer) {
	l.mu.Lock()
	found := false
	for i, e := range l.layers {
		if e == layer {
			l.layers = append(l.layers[:i], l.layers[i+1:]...)
			found = true
			break
		}
	}
	l.mu.Unlock()
	if !found {
		return
	}
	layer.detach()
	l.removed.Emit(layer)
}

// pruneMissing drops every control layer whose backing document layer
// was deleted.
func (l *List) pruneMissing() {
	l.mu.Lock()
	var stale []*Layer
	for _, layer := range l.layers {
		if !l.deps.Doc.LayerExists(layer.LayerID()) {
			stale = append(stale, layer)
		}
	}
	l.mu.Unlock()
	for _, layer := range stale {
		l.Remove(layer)
	}
}

// Len returns the number of control layers.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.layers)
}

// At returns the layer at index i, or nil when out of range.
func (l *List) At(i int) *Layer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.layers) {
		return nil
	}
	return l.layers[i]
}

// Layers returns a snapshot in insertion order.
func (l *List) Layers() []*Layer {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Layer, len(l.layers))
	copy(out, l.layers)
	return out
}
