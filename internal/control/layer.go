// Package control implements per-document control layers: auxiliary
// conditioning inputs (pose, line extraction, depth, ...) backed by a
// layer in the host document. Control layers derive their
// supportability from the connected backend's installed models and can
// dispatch their own extraction jobs.
package control

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/easelapp/easel-api/internal/backend"
	"github.com/easelapp/easel-api/internal/document"
	"github.com/easelapp/easel-api/internal/events"
	"github.com/easelapp/easel-api/internal/imaging"
	"github.com/easelapp/easel-api/internal/job"
	"github.com/easelapp/easel-api/internal/settings"
	"github.com/easelapp/easel-api/internal/workflow"
)

// Connection is the view of the backend connection a control layer
// observes to recompute supportability.
type Connection interface {
	State() backend.ConnectionState
	Capabilities() backend.Capabilities
	StateChanged() *events.Signal[backend.ConnectionState]
}

// Deps bundles the collaborators control layers observe and act on.
type Deps struct {
	Doc      document.Document
	Settings *settings.Store
	Jobs     *job.Queue
	Conn     Connection

	// Style returns the session's current style; StyleChanged fires
	// when it changes.
	Style        func() workflow.Style
	StyleChanged *events.Notifier

	// Dispatch submits a control-image extraction for the layer. Wired
	// by the session.
	Dispatch func(*Layer) (*job.Job, error)
}

// Layer is one control input: a conditioning mode bound to a document
// layer, with weighting parameters and derived supportability flags.
type Layer struct {
	mu sync.Mutex

	deps     Deps
	mode     workflow.Mode
	layerID  uuid.UUID
	strength float64
	end      float64

	isSupported  bool
	isPoseVector bool
	canGenerate  bool
	hasActiveJob bool
	showEnd      bool
	errorText    string

	generateJob *job.Job

	modeChanged events.Signal[workflow.Mode]
	unsubscribe []func()
}

func newLayer(deps Deps, mode workflow.Mode, layerID uuid.UUID) *Layer {
	l := &Layer{
		deps:     deps,
		mode:     mode,
		layerID:  layerID,
		strength: 1.0,
		end:      1.0,
	}
	l.recomputeSupported()
	l.recomputePoseVector()

	l.unsubscribe = append(l.unsubscribe,
		deps.StyleChanged.Subscribe(l.recomputeSupported),
		deps.Conn.StateChanged().Subscribe(func(backend.ConnectionState) { l.recomputeSupported() }),
		deps.Jobs.Finished().Subscribe(func(*job.Job) { l.updateActiveJob() }),
		deps.Settings.Changed().Subscribe(func(key string) {
			if key == settings.KeyShowControlEnd {
				l.recomputeSupported()
			}
		}),
	)
	return l
}

func (l *Layer) detach() {
	for _, u := range l.unsubscribe {
		u()
	}
	l.unsubscribe = nil
}

// ControlMode returns the conditioning mode.
func (l *Layer) ControlMode() workflow.Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// SetMode changes the conditioning mode and recomputes the derived
// flags.
func (l *Layer) SetMode(m workflow.Mode) {
	l.mu.Lock()
	l.mode = m
	l.mu.Unlock()
	l.recomputeSupported()
	l.recomputePoseVector()
	l.modeChanged.Emit(m)
}

// LayerID returns the id of the backing document layer.
func (l *Layer) LayerID() uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.layerID
}

// BindLayer points the control input at a new backing layer, as done
// when an extraction job produces its result layer.
func (l *Layer) BindLayer(id uuid.UUID) {
	l.mu.Lock()
	l.layerID = id
	l.mu.Unlock()
	l.recomputePoseVector()
}

// Strength returns the control strength weighting.
func (l *Layer) Strength() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.strength
}

// SetStrength sets the control strength weighting, clamped to [0, 1].
func (l *Layer) SetStrength(v float64) {
	l.mu.Lock()
	l.strength = clamp01(v)
	l.mu.Unlock()
}

// End returns the fraction of sampling after which the control input is
// released.
func (l *Layer) End() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.end
}

// SetEnd sets the control end weighting, clamped to [0, 1].
func (l *Layer) SetEnd(v float64) {
	l.mu.Lock()
	l.end = clamp01(v)
	l.mu.Unlock()
}

// IsSupported reports whether the connected backend has the models this
// mode requires.
func (l *Layer) IsSupported() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isSupported
}

// IsPoseVector reports whether this input is a pose backed by a vector
// layer, editable as keypoints rather than pixels.
func (l *Layer) IsPoseVector() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isPoseVector
}

// CanGenerate reports whether this mode can produce a standalone
// derived image. Pure reference modes condition a generation but have
// nothing to extract.
func (l *Layer) CanGenerate() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canGenerate
}

// HasActiveJob reports whether an extraction job for this layer is in
// flight.
func (l *Layer) HasActiveJob() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasActiveJob
}

// ShowEnd reports whether the end-weight affordance should be shown.
func (l *Layer) ShowEnd() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.showEnd
}

// ErrorText returns the reason the mode is unsupported, or "".
func (l *Layer) ErrorText() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errorText
}

// ModeChanged notifies with the new mode after SetMode.
func (l *Layer) ModeChanged() *events.Signal[workflow.Mode] {
	return &l.modeChanged
}

// GetImage captures the backing layer as a conditioning input. The
// image-reference mode uses the layer's own bounds regardless of the
// mask region; line and stencil captures are flattened onto white.
func (l *Layer) GetImage(bounds *imaging.Bounds) (workflow.Control, error) {
	l.mu.Lock()
	mode := l.mode
	layerID := l.layerID
	strength := l.strength
	end := l.end
	l.mu.Unlock()

	if mode == workflow.ModeImage {
		if lb, err := l.deps.Doc.LayerBounds(layerID); err == nil && !lb.IsEmpty() {
			bounds = nil
		}
	}
	opaque := mode.IsLines() || mode == workflow.ModeStencil
	img, err := l.deps.Doc.GetLayerImage(layerID, bounds, opaque)
	if err != nil {
		return workflow.Control{}, fmt.Errorf("capture control layer: %w", err)
	}
	return workflow.Control{Mode: mode, Image: img, Strength: strength, End: end}, nil
}

// Generate dispatches a control-image extraction for this layer and
// starts tracking the resulting job.
func (l *Layer) Generate() error {
	j, err := l.deps.Dispatch(l)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.generateJob = j
	l.hasActiveJob = true
	l.mu.Unlock()
	return nil
}

func (l *Layer) updateActiveJob() {
	l.mu.Lock()
	active := l.generateJob != nil && l.generateJob.State() != job.StateFinished
	if l.hasActiveJob && !active {
		l.generateJob = nil
	}
	l.hasActiveJob = active
	l.mu.Unlock()
}

func (l *Layer) recomputeSupported() {
	l.mu.Lock()
	mode := l.mode
	l.mu.Unlock()

	supported := true
	errText := ""
	if l.deps.Conn.State() == backend.Connected {
		caps := l.deps.Conn.Capabilities()
		version := caps.ResolveVersion(l.deps.Style())
		if mode == workflow.ModeImage {
			if caps.IPAdapterModel(version) == "" {
				errText = "the server is missing the IP-Adapter model"
				supported = false
			}
		} else if caps.ControlModel(mode, version) == "" {
			errText = fmt.Sprintf("the %s control model is not installed for %s", mode.Text(), version)
			supported = false
		}
	}

	l.mu.Lock()
	l.isSupported = supported
	l.errorText = errText
	l.showEnd = supported && l.deps.Settings.ShowControlEnd()
	l.canGenerate = supported && mode.ProducesImage()
	l.mu.Unlock()
}

func (l *Layer) recomputePoseVector() {
	l.mu.Lock()
	mode := l.mode
	layerID := l.layerID
	l.mu.Unlock()

	kind, err := l.deps.Doc.LayerKind(layerID)
	pose := err == nil && mode == workflow.ModePose && kind == document.LayerVector

	l.mu.Lock()
	l.isPoseVector = pose
	l.mu.Unlock()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
