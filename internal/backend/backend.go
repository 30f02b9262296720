// Package backend defines the interface to the remote diffusion host.
//
// The orchestration core submits workflow requests through Client and
// observes execution through the message channel. Transport and protocol
// encoding belong to the adapter implementing Client, not to this
// package or its consumers.
package backend

import (
	"context"

	"github.com/easelapp/easel-api/internal/imaging"
	"github.com/easelapp/easel-api/internal/workflow"
)

// Event is the kind of a server message.
type Event string

const (
	EventProgress    Event = "progress"
	EventFinished    Event = "finished"
	EventInterrupted Event = "interrupted"
	EventError       Event = "error"
)

// Message is one asynchronous notification from the backend about an
// enqueued job.
type Message struct {
	Event    Event
	JobID    string
	Progress float64
	Images   imaging.ImageSet
	// Result carries structured non-image output, such as pose
	// keypoints produced by a control-image extraction.
	Result map[string]any
	Error  string
}

// Capabilities describes the models installed on the connected backend,
// keyed by model family version.
type Capabilities struct {
	// DefaultUpscaler is the upscaler model used when none is selected.
	DefaultUpscaler string
	// ControlModels maps a control mode to the versions a model is
	// installed for. A missing entry means the mode is unsupported for
	// that version.
	ControlModels map[workflow.Mode]map[workflow.Version]string
	// IPAdapterModels maps versions to the generic image-reference
	// adapter model, required by the image control mode on top of any
	// mode-specific model.
	IPAdapterModels map[workflow.Version]string
	// Checkpoints lists the installed checkpoints and their versions.
	Checkpoints map[string]workflow.Version
}

// ControlModel returns the installed model for the mode/version pair, or
// "" if none is installed.
func (c Capabilities) ControlModel(mode workflow.Mode, v workflow.Version) string {
	byVersion, ok := c.ControlModels[mode]
	if !ok {
		return ""
	}
	return byVersion[v]
}

// IPAdapterModel returns the image-reference adapter model installed for
// the version, or "".
func (c Capabilities) IPAdapterModel(v workflow.Version) string {
	return c.IPAdapterModels[v]
}

// ResolveVersion returns the model family a style runs on for this
// backend. A style with an explicit version wins; VersionAuto resolves
// through the style's checkpoint, defaulting to SD 1.5 when the
// checkpoint is unknown.
func (c Capabilities) ResolveVersion(style workflow.Style) workflow.Version {
	if style.Version != workflow.VersionAuto && style.Version != "" {
		return style.Version
	}
	if v, ok := c.Checkpoints[style.Checkpoint]; ok {
		return v
	}
	return workflow.VersionSD15
}

// Client is the connection to the diffusion backend. Implementations
// own transport, protocol encoding and retry policy; the orchestration
// core only enqueues work and consumes messages.
type Client interface {
	// Enqueue submits a request and returns the backend-assigned job id.
	Enqueue(ctx context.Context, req *workflow.Request) (string, error)

	// Interrupt cancels the currently executing job.
	Interrupt(ctx context.Context) error

	// ClearQueue drops all queued (not yet executing) jobs.
	ClearQueue(ctx context.Context) error

	// Capabilities reports the models available on the backend.
	Capabilities() Capabilities

	// Messages delivers progress and result events in arrival order.
	// The channel is closed when the connection ends.
	Messages() <-chan Message
}

// ConnectionState describes the backend connection lifecycle, observed
// by control layers to recompute supportability.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

// String returns the lowercase state name.
func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}
