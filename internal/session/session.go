// Package session implements the orchestration core for one document:
// it snapshots generation parameters, dispatches work to the diffusion
// backend, reconciles server messages with job state and manages the
// result preview layer.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/easelapp/easel-api/internal/backend"
	"github.com/easelapp/easel-api/internal/control"
	"github.com/easelapp/easel-api/internal/document"
	"github.com/easelapp/easel-api/internal/events"
	"github.com/easelapp/easel-api/internal/imaging"
	"github.com/easelapp/easel-api/internal/job"
	"github.com/easelapp/easel-api/internal/settings"
	"github.com/easelapp/easel-api/internal/workflow"
)

// Session holds all inputs related to image generation for one
// document, launches generation jobs and keeps the queue of enqueued,
// running and finished jobs in sync with server messages.
type Session struct {
	mu sync.Mutex

	doc      document.Document
	conn     *Connection
	settings *settings.Store
	logger   *slog.Logger

	workspace      Workspace
	style          workflow.Style
	prompt         string
	negativePrompt string
	strength       float64
	upscale        UpscaleParams
	live           workflow.LiveParams

	jobs     *job.Queue
	controls *control.List

	previewLayer uuid.UUID
	liveResult   *imaging.Image
	errorMsg     string
	progress     float64
	canApply     bool

	// One tracked dispatch at a time. A new dispatch cancels the
	// previous context so a superseded submission aborts instead of
	// being silently forgotten.
	dispatchCancel context.CancelFunc

	styleChanged     events.Notifier
	workspaceChanged events.Signal[Workspace]
	progressChanged  events.Signal[float64]
	errorChanged     events.Signal[string]
}

// New assembles a session for the given document and connection.
func New(doc document.Document, conn *Connection, store *settings.Store, logger *slog.Logger) *Session {
	s := &Session{
		doc:       doc,
		conn:      conn,
		settings:  store,
		logger:    logger.With("component", "session"),
		workspace: WorkspaceGeneration,
		style:     workflow.Style{Name: "default", Version: workflow.VersionAuto},
		strength:  1.0,
		upscale:   DefaultUpscaleParams(),
		live:      workflow.DefaultLiveParams(),
	}
	s.jobs = job.NewQueue(store.HistorySizeMB, logger)
	s.controls = control.NewList(control.Deps{
		Doc:          doc,
		Settings:     store,
		Jobs:         s.jobs,
		Conn:         conn,
		Style:        s.Style,
		StyleChanged: &s.styleChanged,
		Dispatch:     s.GenerateControlLayer,
	})

	s.jobs.Finished().Subscribe(func(*job.Job) { s.UpdatePreview() })
	s.jobs.SelectionChanged().Subscribe(func(*job.Selection) { s.UpdatePreview() })

	if conn.State() == backend.Connected {
		if up := conn.Capabilities().DefaultUpscaler; up != "" {
			s.upscale.Upscaler = up
		}
	}
	return s
}

// Listen consumes backend messages until the channel closes or ctx is
// cancelled. Messages are reconciled one at a time, in arrival order,
// from this single goroutine.
func (s *Session) Listen(ctx context.Context) {
	client := s.conn.Client()
	if client == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			s.HandleMessage(msg)
		}
	}
}

// Jobs returns the session's job queue.
func (s *Session) Jobs() *job.Queue { return s.jobs }

// Connection returns the backend connection the session dispatches to.
func (s *Session) Connection() *Connection { return s.conn }

// Controls returns the session's control layer list.
func (s *Session) Controls() *control.List { return s.controls }

// Workspace returns the current workspace mode.
func (s *Session) Workspace() Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workspace
}

// SetWorkspace switches the workspace mode. Leaving the live workspace
// deactivates live generation.
func (s *Session) SetWorkspace(w Workspace) {
	s.mu.Lock()
	if s.workspace == WorkspaceLive {
		s.live.IsActive = false
	}
	s.workspace = w
	s.mu.Unlock()
	s.workspaceChanged.Emit(w)
}

// WorkspaceChanged notifies on workspace switches.
func (s *Session) WorkspaceChanged() *events.Signal[Workspace] { return &s.workspaceChanged }

// Style returns the current style.
func (s *Session) Style() workflow.Style {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.style
}

// SetStyle changes the style; control layers recompute supportability.
func (s *Session) SetStyle(style workflow.Style) {
	s.mu.Lock()
	s.style = style
	s.mu.Unlock()
	s.styleChanged.Notify()
}

// StyleChanged notifies on style changes.
func (s *Session) StyleChanged() *events.Notifier { return &s.styleChanged }

// Prompt returns the positive prompt.
func (s *Session) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompt
}

// SetPrompt sets the positive prompt.
func (s *Session) SetPrompt(p string) {
	s.mu.Lock()
	s.prompt = p
	s.mu.Unlock()
}

// NegativePrompt returns the negative prompt.
func (s *Session) NegativePrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.negativePrompt
}

// SetNegativePrompt sets the negative prompt.
func (s *Session) SetNegativePrompt(p string) {
	s.mu.Lock()
	s.negativePrompt = p
	s.mu.Unlock()
}

// Strength returns the denoising strength.
func (s *Session) Strength() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strength
}

// SetStrength sets the denoising strength, clamped to (0, 1].
func (s *Session) SetStrength(v float64) {
	if v <= 0 {
		v = 0.01
	}
	if v > 1 {
		v = 1
	}
	s.mu.Lock()
	s.strength = v
	s.mu.Unlock()
}

// Upscale returns the current upscale parameters.
func (s *Session) Upscale() UpscaleParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upscale
}

// SetUpscale replaces the upscale parameters.
func (s *Session) SetUpscale(p UpscaleParams) {
	s.mu.Lock()
	s.upscale = p
	s.mu.Unlock()
}

// UpscaleTargetExtent returns the document extent after upscaling by
// the current factor.
func (s *Session) UpscaleTargetExtent() imaging.Extent {
	s.mu.Lock()
	factor := s.upscale.Factor
	s.mu.Unlock()
	return s.doc.Extent().Scale(factor)
}

// Live returns the live-preview parameters.
func (s *Session) Live() workflow.LiveParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// SetLive replaces the live-preview parameters.
func (s *Session) SetLive(p workflow.LiveParams) {
	s.mu.Lock()
	s.live = p
	s.mu.Unlock()
}

// HasLiveResult reports whether a live-preview image is cached.
func (s *Session) HasLiveResult() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveResult != nil
}

// Progress returns the generation progress in [0, 1].
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// ProgressChanged notifies with the new progress value.
func (s *Session) ProgressChanged() *events.Signal[float64] { return &s.progressChanged }

// Error returns the current user-visible error message, "" when none.
func (s *Session) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorMsg
}

// HasError reports whether an error message is set.
func (s *Session) HasError() bool { return s.Error() != "" }

// ErrorChanged notifies with the new error message (may be "").
func (s *Session) ErrorChanged() *events.Signal[string] { return &s.errorChanged }

// CanApplyResult reports whether a preview result is currently
// applicable.
func (s *Session) CanApplyResult() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canApply
}

// History returns the finished jobs in submission order.
func (s *Session) History() []*job.Job { return s.jobs.History() }

func (s *Session) setProgress(v float64) {
	s.mu.Lock()
	s.progress = v
	s.mu.Unlock()
	s.progressChanged.Emit(v)
}

// ReportError records a user-visible error. Exactly one message is
// retained; a new error overwrites the previous one. Errors deactivate
// live generation.
func (s *Session) ReportError(msg string) {
	s.logger.Error("session error", "error", msg)
	s.mu.Lock()
	s.errorMsg = msg
	s.live.IsActive = false
	s.mu.Unlock()
	s.errorChanged.Emit(msg)
}

// ClearError resets the error message. Called at the start of every
// dispatch.
func (s *Session) ClearError() {
	s.mu.Lock()
	if s.errorMsg == "" {
		s.mu.Unlock()
		return
	}
	s.errorMsg = ""
	s.mu.Unlock()
	s.errorChanged.Emit("")
}
