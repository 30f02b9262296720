// Package document defines the host canvas interface the orchestration
// core mutates. The host owns pixels, layers and the user's selection;
// this service only reads composited images and inserts result layers.
package document

import (
	"errors"

	"github.com/google/uuid"

	"github.com/easelapp/easel-api/internal/events"
	"github.com/easelapp/easel-api/internal/imaging"
)

// ErrLayerNotFound is returned for operations on a layer id that no
// longer exists in the document.
var ErrLayerNotFound = errors.New("layer not found")

// LayerKind distinguishes pixel layers from vector layers.
type LayerKind int

const (
	LayerRaster LayerKind = iota
	LayerVector
)

// NoLayer is the zero layer id, used where an optional "below" anchor or
// an absent preview layer is expressed.
var NoLayer = uuid.Nil

// Document is the host document contract. Implementations are expected
// to be safe for use from the orchestration goroutine plus any observers
// they notify.
type Document interface {
	// Extent returns the document canvas size.
	Extent() imaging.Extent

	// CheckColorMode reports whether the document's color mode is
	// compatible with generation, with a user-facing message when not.
	CheckColorMode() (bool, string)

	// ActiveLayer returns the id of the currently active layer.
	ActiveLayer() uuid.UUID

	// Layers returns all layer ids in stacking order.
	Layers() []uuid.UUID

	// LayerExists reports whether id is still present.
	LayerExists(id uuid.UUID) bool

	// LayerKind returns the kind of the layer.
	LayerKind(id uuid.UUID) (LayerKind, error)

	// LayerBounds returns the content bounds of the layer.
	LayerBounds(id uuid.UUID) (imaging.Bounds, error)

	// LayerName returns the layer's display name.
	LayerName(id uuid.UUID) (string, error)

	// GetImage returns the composited document restricted to bounds,
	// with the given layers excluded from the projection.
	GetImage(bounds imaging.Bounds, exclude []uuid.UUID) (*imaging.Image, error)

	// GetLayerImage captures a single layer. A nil bounds captures the
	// layer's own bounds. When opaque is set, transparency is flattened
	// onto a white background.
	GetLayerImage(id uuid.UUID, bounds *imaging.Bounds, opaque bool) (*imaging.Image, error)

	// CreateMaskFromSelection converts the user selection into a mask,
	// grown, feathered and padded by the given fractions of the
	// selection size. Returns a nil mask when there is no selection.
	CreateMaskFromSelection(grow, feather, padding float64) (*imaging.Mask, *imaging.Bounds, error)

	// InsertLayer adds a raster layer with the given content. A non-nil
	// below anchors the new layer directly beneath that layer.
	InsertLayer(name string, img *imaging.Image, bounds imaging.Bounds, below uuid.UUID) (uuid.UUID, error)

	// InsertVectorLayer adds a vector layer from an SVG document.
	InsertVectorLayer(name string, svg string, below uuid.UUID) (uuid.UUID, error)

	// SetLayerContent replaces a raster layer's pixels.
	SetLayerContent(id uuid.UUID, img *imaging.Image, bounds imaging.Bounds) error

	// SetLayerName renames a layer.
	SetLayerName(id uuid.UUID, name string) error

	// SetLayerLocked locks or unlocks a layer against edits.
	SetLayerLocked(id uuid.UUID, locked bool) error

	// HideLayer makes a layer invisible without removing it.
	HideLayer(id uuid.UUID) error

	// RemoveLayer deletes a layer.
	RemoveLayer(id uuid.UUID) error

	// Resize changes the document extent.
	Resize(extent imaging.Extent) error

	// LayersChanged notifies whenever the layer set changes.
	LayersChanged() *events.Notifier
}
