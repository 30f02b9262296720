package job

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/easelapp/easel-api/internal/events"
	"github.com/easelapp/easel-api/internal/imaging"
)

const megabyte = 1 << 20

// Selection identifies the result currently chosen for preview: a job
// id and an index into its result set.
type Selection struct {
	JobID string
	Index int
}

// Queue holds the waiting, executing and finished jobs of one session.
//
// Diffusion jobs are kept after completion as browsable history;
// retained result memory is bounded by the history budget and pruned in
// strict submission order. All mutating methods are safe for concurrent
// use; notifications fire after the internal lock is released so
// observers may call back into the queue.
type Queue struct {
	mu          sync.Mutex
	entries     []*Job
	selection   *Selection
	memoryBytes int64

	budgetMB func() int
	logger   *slog.Logger

	countChanged     events.Notifier
	selectionChanged events.Signal[*Selection]
	finished         events.Signal[*Job]
}

// NewQueue creates a queue. budgetMB is consulted on every prune so a
// settings change takes effect on the next completion.
func NewQueue(budgetMB func() int, logger *slog.Logger) *Queue {
	return &Queue{
		budgetMB: budgetMB,
		logger:   logger.With("component", "job_queue"),
	}
}

// CountChanged notifies whenever a job is added, removed or changes
// state.
func (q *Queue) CountChanged() *events.Notifier { return &q.countChanged }

// SelectionChanged notifies with the new selection on every Select or
// Deselect, even when the value is unchanged.
func (q *Queue) SelectionChanged() *events.Signal[*Selection] { return &q.selectionChanged }

// Finished notifies with the job right after it transitions to
// finished.
func (q *Queue) Finished() *events.Signal[*Job] { return &q.finished }

// Add appends a diffusion job with a backend-assigned id.
func (q *Queue) Add(id, prompt string, bounds imaging.Bounds) *Job {
	return q.append(newJob(id, KindDiffusion, prompt, bounds))
}

// AddControl appends a control-image extraction job for the given
// control input. The id is assigned later, once the backend accepts the
// work.
func (q *Queue) AddControl(ctl ControlTarget, bounds imaging.Bounds) *Job {
	j := newJob("", KindControl, fmt.Sprintf("[Control] %s", ctl.ControlMode().Text()), bounds)
	j.control = ctl
	return q.append(j)
}

// AddUpscale appends an upscaling job targeting the given bounds.
func (q *Queue) AddUpscale(bounds imaging.Bounds) *Job {
	j := newJob("", KindUpscaling, fmt.Sprintf("[Upscale] %dx%d", bounds.Width, bounds.Height), bounds)
	return q.append(j)
}

// AddLive appends a live-preview job.
func (q *Queue) AddLive(prompt string, bounds imaging.Bounds) *Job {
	return q.append(newJob("", KindLivePreview, prompt, bounds))
}

func (q *Queue) append(j *Job) *Job {
	q.mu.Lock()
	q.entries = append(q.entries, j)
	q.mu.Unlock()
	q.countChanged.Notify()
	return j
}

// Find returns the job with the given id, or nil. Jobs whose id has not
// been assigned yet never match.
func (q *Queue) Find(id string) *Job {
	if id == "" {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.entries {
		if j.ID() == id {
			return j
		}
	}
	return nil
}

// Count returns the number of jobs in the given state.
func (q *Queue) Count(state State) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, j := range q.entries {
		if j.State() == state {
			n++
		}
	}
	return n
}

// AnyExecuting reports whether any job is currently executing.
func (q *Queue) AnyExecuting() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.entries {
		if j.State() == StateExecuting {
			return true
		}
	}
	return false
}

// SetResults attaches the produced images to j. For diffusion jobs the
// retained-memory accumulator grows by the result size and the queue is
// pruned immediately, protecting j from eviction. Results are attached
// before the finished notification so observers see them.
func (q *Queue) SetResults(j *Job, results imaging.ImageSet) {
	j.setResults(results)
	if j.Kind() != KindDiffusion {
		return
	}
	q.mu.Lock()
	q.memoryBytes += results.SizeBytes()
	q.pruneLocked(j)
	q.mu.Unlock()
}

// NotifyStarted transitions j to executing. Idempotent.
func (q *Queue) NotifyStarted(j *Job) {
	if j.State() == StateExecuting {
		return
	}
	j.setState(StateExecuting)
	q.countChanged.Notify()
}

// NotifyFinished transitions j to finished and emits the finished
// notification followed by a count change.
func (q *Queue) NotifyFinished(j *Job) {
	j.setState(StateFinished)
	q.finished.Emit(j)
	q.countChanged.Notify()
}

// NotifyCancelled transitions j to cancelled.
func (q *Queue) NotifyCancelled(j *Job) {
	j.setState(StateCancelled)
	q.countChanged.Notify()
}

// Remove unconditionally removes j. Policy lives with the caller:
// diffusion jobs are normally retained as history, every other kind is
// removed right after completion.
func (q *Queue) Remove(j *Job) {
	q.mu.Lock()
	for i, e := range q.entries {
		if e == j {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			if j.Kind() == KindDiffusion {
				q.memoryBytes -= j.resultSize()
			}
			break
		}
	}
	q.mu.Unlock()
	q.countChanged.Notify()
}

// Prune evicts the oldest entries, in strict submission order, until
// retained memory fits the history budget or only keep remains. The
// protected job is never evicted, even while over budget.
func (q *Queue) Prune(keep *Job) {
	q.mu.Lock()
	q.pruneLocked(keep)
	q.mu.Unlock()
}

func (q *Queue) pruneLocked(keep *Job) {
	budget := int64(q.budgetMB()) * megabyte
	for q.memoryBytes > budget && len(q.entries) > 0 && q.entries[0] != keep {
		evicted := q.entries[0]
		q.entries = q.entries[1:]
		if evicted.Kind() == KindDiffusion {
			q.memoryBytes -= evicted.resultSize()
		}
		q.logger.Debug("pruned job from history",
			"job_id", evicted.ID(),
			"freed_mb", evicted.resultSize()/megabyte,
			"usage_mb", q.memoryBytes/megabyte)
	}
}

// Select sets the active preview selection. Last writer wins; the
// change notification fires unconditionally.
func (q *Queue) Select(jobID string, index int) {
	q.mu.Lock()
	q.selection = &Selection{JobID: jobID, Index: index}
	sel := q.selection
	q.mu.Unlock()
	q.selectionChanged.Emit(sel)
}

// Deselect clears the active selection.
func (q *Queue) Deselect() {
	q.mu.Lock()
	q.selection = nil
	q.mu.Unlock()
	q.selectionChanged.Emit(nil)
}

// Selection returns the current selection, or nil.
func (q *Queue) Selection() *Selection {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.selection
}

// Len returns the number of jobs currently in the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Jobs returns a snapshot of the queue in submission order.
func (q *Queue) Jobs() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, len(q.entries))
	copy(out, q.entries)
	return out
}

// History returns the finished jobs in submission order.
func (q *Queue) History() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*Job
	for _, j := range q.entries {
		if j.State() == StateFinished {
			out = append(out, j)
		}
	}
	return out
}

// MemoryUsageMB returns the approximate retained result footprint of
// diffusion jobs, in megabytes.
func (q *Queue) MemoryUsageMB() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return float64(q.memoryBytes) / megabyte
}
