// Package job implements the generation job record and the
// memory-bounded job queue at the center of the orchestration core.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/easelapp/easel-api/internal/imaging"
	"github.com/easelapp/easel-api/internal/workflow"
)

// State is a job's lifecycle state.
type State string

const (
	StateQueued    State = "queued"
	StateExecuting State = "executing"
	StateFinished  State = "finished"
	StateCancelled State = "cancelled"
)

// Kind categorizes what a job produces and how its results are handled
// on completion.
type Kind string

const (
	// KindDiffusion jobs are retained as history and pruned by memory
	// budget; every other kind is removed right after completion.
	KindDiffusion   Kind = "diffusion"
	KindControl     Kind = "control_layer"
	KindUpscaling   Kind = "upscaling"
	KindLivePreview Kind = "live_preview"
)

// ErrIDAlreadySet is returned when assigning an id to a job that has
// one.
var ErrIDAlreadySet = errors.New("job id already assigned")

// ControlTarget is the originating control input of a control-layer
// job. The reconciliation path binds the produced document layer back
// to it.
type ControlTarget interface {
	// ControlMode returns the conditioning mode being extracted.
	ControlMode() workflow.Mode

	// BindLayer points the control input at the produced layer.
	BindLayer(id uuid.UUID)
}

// Job is one submitted generation request: immutable identity and
// payload snapshot, mutable lifecycle state and result set. Results are
// attached exclusively through Queue.SetResults.
type Job struct {
	mu sync.Mutex

	id      string
	kind    Kind
	state   State
	prompt  string
	bounds  imaging.Bounds
	control ControlTarget
	created time.Time
	results imaging.ImageSet
}

func newJob(id string, kind Kind, prompt string, bounds imaging.Bounds) *Job {
	return &Job{
		id:      id,
		kind:    kind,
		state:   StateQueued,
		prompt:  prompt,
		bounds:  bounds,
		created: time.Now(),
	}
}

// ID returns the backend-assigned job id, or "" while unassigned.
func (j *Job) ID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.id
}

// SetID assigns the backend job id. The id can be set at most once.
func (j *Job) SetID(id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.id != "" {
		return ErrIDAlreadySet
	}
	j.id = id
	return nil
}

// Kind returns the job kind, fixed at construction.
func (j *Job) Kind() Kind { return j.kind }

// Prompt returns the prompt snapshot taken at submission.
func (j *Job) Prompt() string { return j.prompt }

// Bounds returns the document region the result applies to.
func (j *Job) Bounds() imaging.Bounds { return j.bounds }

// Control returns the originating control input for control-layer
// jobs, nil otherwise.
func (j *Job) Control() ControlTarget { return j.control }

// CreatedAt returns the submission timestamp.
func (j *Job) CreatedAt() time.Time { return j.created }

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Results returns the produced images. Empty unless the job finished.
func (j *Job) Results() imaging.ImageSet {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.results
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

func (j *Job) setResults(results imaging.ImageSet) {
	j.mu.Lock()
	j.results = results
	j.mu.Unlock()
}

func (j *Job) resultSize() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.results.SizeBytes()
}
