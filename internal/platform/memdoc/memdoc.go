// Package memdoc provides an in-memory implementation of the host
// document interface. It backs standalone operation of the service and
// the integration tests; a real deployment substitutes an adapter to
// the host editor.
package memdoc

import (
	"sync"

	"github.com/google/uuid"

	"github.com/easelapp/easel-api/internal/document"
	"github.com/easelapp/easel-api/internal/events"
	"github.com/easelapp/easel-api/internal/imaging"
)

type layer struct {
	id     uuid.UUID
	name   string
	kind   document.LayerKind
	bounds imaging.Bounds
	img    *imaging.Image
	svg    string
	locked bool
	hidden bool
}

// Document is an in-memory document.Document. All methods are safe for
// concurrent use.
type Document struct {
	mu     sync.Mutex
	extent imaging.Extent
	layers []*layer
	active uuid.UUID

	selectionMask   *imaging.Mask
	selectionBounds *imaging.Bounds
	colorModeOK     bool
	colorModeMsg    string

	layersChanged events.Notifier
}

// New creates a document of the given extent with one empty background
// layer.
func New(extent imaging.Extent) *Document {
	d := &Document{extent: extent, colorModeOK: true}
	bg := &layer{
		id:     uuid.New(),
		name:   "Background",
		bounds: imaging.BoundsOf(extent),
	}
	d.layers = append(d.layers, bg)
	d.active = bg.id
	return d
}

// SetSelection installs a selection mask returned by subsequent
// CreateMaskFromSelection calls. A nil mask clears the selection.
func (d *Document) SetSelection(mask *imaging.Mask, bounds *imaging.Bounds) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selectionMask = mask
	d.selectionBounds = bounds
}

// SetColorMode controls the CheckColorMode result.
func (d *Document) SetColorMode(ok bool, msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.colorModeOK = ok
	d.colorModeMsg = msg
}

// SetActiveLayer changes the active layer.
func (d *Document) SetActiveLayer(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = id
}

// Extent implements document.Document.
func (d *Document) Extent() imaging.Extent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.extent
}

// CheckColorMode implements document.Document.
func (d *Document) CheckColorMode() (bool, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.colorModeOK, d.colorModeMsg
}

// ActiveLayer implements document.Document.
func (d *Document) ActiveLayer() uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Layers implements document.Document.
func (d *Document) Layers() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]uuid.UUID, len(d.layers))
	for i, l := range d.layers {
		out[i] = l.id
	}
	return out
}

// LayerExists implements document.Document.
func (d *Document) LayerExists(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.find(id) != nil
}

// LayerKind implements document.Document.
func (d *Document) LayerKind(id uuid.UUID) (document.LayerKind, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.find(id)
	if l == nil {
		return 0, document.ErrLayerNotFound
	}
	return l.kind, nil
}

// LayerBounds implements document.Document.
func (d *Document) LayerBounds(id uuid.UUID) (imaging.Bounds, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.find(id)
	if l == nil {
		return imaging.Bounds{}, document.ErrLayerNotFound
	}
	return l.bounds, nil
}

// LayerName implements document.Document.
func (d *Document) LayerName(id uuid.UUID) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.find(id)
	if l == nil {
		return "", document.ErrLayerNotFound
	}
	return l.name, nil
}

// LayerLocked reports the lock flag, for tests.
func (d *Document) LayerLocked(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.find(id)
	return l != nil && l.locked
}

// LayerHidden reports the hidden flag, for tests.
func (d *Document) LayerHidden(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.find(id)
	return l != nil && l.hidden
}

// GetImage implements document.Document: the composited projection is
// represented by a synthetic opaque payload sized to the region.
func (d *Document) GetImage(bounds imaging.Bounds, exclude []uuid.UUID) (*imaging.Image, error) {
	return &imaging.Image{
		Extent: bounds.Extent(),
		Format: "raw",
		Data:   make([]byte, bounds.Width*bounds.Height*4),
	}, nil
}

// GetLayerImage implements document.Document.
func (d *Document) GetLayerImage(id uuid.UUID, bounds *imaging.Bounds, opaque bool) (*imaging.Image, error) {
	d.mu.Lock()
	l := d.find(id)
	d.mu.Unlock()
	if l == nil {
		return nil, document.ErrLayerNotFound
	}
	b := l.bounds
	if bounds != nil {
		b = *bounds
	}
	if l.img != nil && bounds == nil {
		return l.img, nil
	}
	return &imaging.Image{
		Extent: b.Extent(),
		Format: "raw",
		Data:   make([]byte, b.Width*b.Height*4),
	}, nil
}

// CreateMaskFromSelection implements document.Document. Each call
// returns a fresh mask so callers can rebase its bounds without
// disturbing the stored selection.
func (d *Document) CreateMaskFromSelection(grow, feather, padding float64) (*imaging.Mask, *imaging.Bounds, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.selectionMask == nil {
		return nil, d.selectionBounds, nil
	}
	mask := *d.selectionMask
	var bounds *imaging.Bounds
	if d.selectionBounds != nil {
		b := *d.selectionBounds
		bounds = &b
	}
	return &mask, bounds, nil
}

// InsertLayer implements document.Document.
func (d *Document) InsertLayer(name string, img *imaging.Image, bounds imaging.Bounds, below uuid.UUID) (uuid.UUID, error) {
	l := &layer{
		id:     uuid.New(),
		name:   name,
		bounds: bounds,
		img:    img,
	}
	d.mu.Lock()
	d.insert(l, below)
	d.mu.Unlock()
	d.layersChanged.Notify()
	return l.id, nil
}

// InsertVectorLayer implements document.Document.
func (d *Document) InsertVectorLayer(name string, svg string, below uuid.UUID) (uuid.UUID, error) {
	l := &layer{
		id:   uuid.New(),
		name: name,
		kind: document.LayerVector,
		svg:  svg,
	}
	d.mu.Lock()
	d.insert(l, below)
	d.mu.Unlock()
	d.layersChanged.Notify()
	return l.id, nil
}

func (d *Document) insert(l *layer, below uuid.UUID) {
	if below != document.NoLayer {
		for i, e := range d.layers {
			if e.id == below {
				d.layers = append(d.layers[:i], append([]*layer{l}, d.layers[i:]...)...)
				return
			}
		}
	}
	d.layers = append(d.layers, l)
}

// SetLayerContent implements document.Document.
func (d *Document) SetLayerContent(id uuid.UUID, img *imaging.Image, bounds imaging.Bounds) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.find(id)
	if l == nil {
		return document.ErrLayerNotFound
	}
	l.img = img
	l.bounds = bounds
	l.hidden = false
	return nil
}

// SetLayerName implements document.Document.
func (d *Document) SetLayerName(id uuid.UUID, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.find(id)
	if l == nil {
		return document.ErrLayerNotFound
	}
	l.name = name
	return nil
}

// SetLayerLocked implements document.Document.
func (d *Document) SetLayerLocked(id uuid.UUID, locked bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.find(id)
	if l == nil {
		return document.ErrLayerNotFound
	}
	l.locked = locked
	return nil
}

// HideLayer implements document.Document.
func (d *Document) HideLayer(id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.find(id)
	if l == nil {
		return document.ErrLayerNotFound
	}
	l.hidden = true
	return nil
}

// RemoveLayer implements document.Document.
func (d *Document) RemoveLayer(id uuid.UUID) error {
	d.mu.Lock()
	found := false
	for i, l := range d.layers {
		if l.id == id {
			d.layers = append(d.layers[:i], d.layers[i+1:]...)
			found = true
			break
		}
	}
	d.mu.Unlock()
	if !found {
		return document.ErrLayerNotFound
	}
	d.layersChanged.Notify()
	return nil
}

// Resize implements document.Document.
func (d *Document) Resize(extent imaging.Extent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.extent = extent
	return nil
}

// LayersChanged implements document.Document.
func (d *Document) LayersChanged() *events.Notifier {
	return &d.layersChanged
}

func (d *Document) find(id uuid.UUID) *layer {
	for _, l := range d.layers {
		if l.id == id {
			return l
		}
	}
	return nil
}

var _ document.Document = (*Document)(nil)
