package session_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easelapp/easel-api/internal/backend"
	"github.com/easelapp/easel-api/internal/document"
	"github.com/easelapp/easel-api/internal/imaging"
	"github.com/easelapp/easel-api/internal/job"
	"github.com/easelapp/easel-api/internal/mocks"
	"github.com/easelapp/easel-api/internal/platform/memdoc"
	"github.com/easelapp/easel-api/internal/session"
	"github.com/easelapp/easel-api/internal/settings"
	"github.com/easelapp/easel-api/internal/workflow"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fixture struct {
	doc    *memdoc.Document
	client *mocks.MockBackendClient
	conn   *session.Connection
	store  *settings.Store
	s      *session.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		doc:    memdoc.New(imaging.Extent{Width: 512, Height: 512}),
		client: &mocks.MockBackendClient{Caps: backend.Capabilities{DefaultUpscaler: "upscaler-4x"}},
		conn:   session.NewConnection(),
		store:  settings.New(),
	}
	f.conn.Connect(f.client)
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	f.s = session.New(f.doc, f.conn, f.store, logger)
	return f
}

// waitForJob blocks until the queue holds a job with the given id.
func (f *fixture) waitForJob(t *testing.T, id string) *job.Job {
	t.Helper()
	require.Eventually(t, func() bool { return f.s.Jobs().Find(id) != nil }, waitFor, tick,
		"job %s never registered", id)
	return f.s.Jobs().Find(id)
}

func resultImages(mb int) imaging.ImageSet {
	return imaging.ImageSet{
		{Extent: imaging.Extent{Width: 512, Height: 512}, Format: "png", Data: make([]byte, mb<<20)},
	}
}

func TestGenerateDispatchesPlainGeneration(t *testing.T) {
	f := newFixture(t)
	f.s.SetPrompt("a lighthouse at dusk")

	require.NoError(t, f.s.Generate())
	j := f.waitForJob(t, "job-1")

	assert.Equal(t, job.KindDiffusion, j.Kind())
	assert.Equal(t, "a lighthouse at dusk", j.Prompt())
	assert.Equal(t, job.StateQueued, j.State())

	req := f.client.LastEnqueued()
	require.NotNil(t, req)
	assert.Equal(t, workflow.OpGenerate, req.Operation)
	assert.Nil(t, req.Mask)
}

func TestGenerateWithMaskFullStrengthIsInpaint(t *testing.T) {
	f := newFixture(t)
	maskBounds := imaging.Bounds{X: 100, Y: 100, Width: 200, Height: 200}
	f.doc.SetSelection(&imaging.Mask{Bounds: maskBounds, Data: []byte{1}}, &maskBounds)

	require.NoError(t, f.s.Generate())
	j := f.waitForJob(t, "job-1")

	req := f.client.LastEnqueued()
	assert.Equal(t, workflow.OpInpaint, req.Operation)
	require.NotNil(t, req.Mask)
	// The job records the absolute mask bounds for result insertion;
	// the submitted mask is relative to the cropped image.
	assert.Equal(t, maskBounds, j.Bounds())
	assert.NotEqual(t, maskBounds, req.Mask.Bounds)
}

func TestRepeatedGenerateOverSameSelectionKeepsBounds(t *testing.T) {
	f := newFixture(t)
	maskBounds := imaging.Bounds{X: 100, Y: 100, Width: 200, Height: 200}
	f.doc.SetSelection(&imaging.Mask{Bounds: maskBounds, Data: []byte{1}}, &maskBounds)

	require.NoError(t, f.s.Generate())
	first := f.waitForJob(t, "job-1")
	require.NoError(t, f.s.Generate())
	second := f.waitForJob(t, "job-2")

	// Rebasing the submitted mask must not leak into the document's
	// selection, so an unchanged selection targets the same region.
	assert.Equal(t, maskBounds, first.Bounds())
	assert.Equal(t, maskBounds, second.Bounds())

	stored, _, err := f.doc.CreateMaskFromSelection(0, 0, 0)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, maskBounds, stored.Bounds)
}

func TestGenerateWithStrengthBelowOneIsRefine(t *testing.T) {
	f := newFixture(t)
	f.s.SetStrength(0.5)

	require.NoError(t, f.s.Generate())
	f.waitForJob(t, "job-1")

	req := f.client.LastEnqueued()
	assert.Equal(t, workflow.OpRefine, req.Operation)
	require.NotNil(t, req.Image)
}

func TestGenerateWithMaskAndStrengthIsRefineRegion(t *testing.T) {
	f := newFixture(t)
	maskBounds := imaging.Bounds{X: 50, Y: 50, Width: 100, Height: 100}
	f.doc.SetSelection(&imaging.Mask{Bounds: maskBounds, Data: []byte{1}}, &maskBounds)
	f.s.SetStrength(0.5)

	require.NoError(t, f.s.Generate())
	f.waitForJob(t, "job-1")

	assert.Equal(t, workflow.OpRefineRegion, f.client.LastEnqueued().Operation)
}

func TestGenerateRejectsBadColorMode(t *testing.T) {
	f := newFixture(t)
	f.doc.SetColorMode(false, "unsupported color mode CMYK")

	err := f.s.Generate()
	assert.ErrorIs(t, err, session.ErrUnsupportedColorMode)
	assert.Equal(t, "unsupported color mode CMYK", f.s.Error())
	assert.Zero(t, f.s.Jobs().Len(), "no job is created on precondition failure")
	assert.Empty(t, f.client.EnqueueCalls)
}

func TestSubmissionFailureIsReportedNotRaised(t *testing.T) {
	f := newFixture(t)
	f.client.Err = errors.New("connection refused")

	require.NoError(t, f.s.Generate(), "dispatch is fire-and-forget")
	require.Eventually(t, func() bool { return f.s.HasError() }, waitFor, tick)
	assert.Contains(t, f.s.Error(), "connection refused")
}

func TestDispatchClearsPriorError(t *testing.T) {
	f := newFixture(t)
	f.s.ReportError("stale failure")

	require.NoError(t, f.s.Generate())
	f.waitForJob(t, "job-1")
	assert.Empty(t, f.s.Error())
}

func TestSupersededDispatchIsCancelled(t *testing.T) {
	f := newFixture(t)
	calls := 0
	var mu sync.Mutex
	var firstCtx context.Context
	f.client.EnqueueFn = func(ctx context.Context, req *workflow.Request) (string, error) {
		mu.Lock()
		calls++
		n := calls
		if n == 1 {
			firstCtx = ctx
		}
		mu.Unlock()
		if n == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "job-2", nil
	}

	require.NoError(t, f.s.Generate())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, waitFor, tick)

	require.NoError(t, f.s.Generate())
	f.waitForJob(t, "job-2")

	mu.Lock()
	ctx := firstCtx
	mu.Unlock()
	require.Eventually(t, func() bool { return ctx.Err() != nil }, waitFor, tick,
		"superseded dispatch keeps running")
	assert.Empty(t, f.s.Error(), "a cancelled dispatch is not an error")
	assert.Equal(t, 1, f.s.Jobs().Len())
}

func TestProgressMessageStartsJob(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.Generate())
	j := f.waitForJob(t, "job-1")

	f.s.HandleMessage(backend.Message{Event: backend.EventProgress, JobID: "job-1", Progress: 0.4})

	assert.Equal(t, job.StateExecuting, j.State())
	assert.Equal(t, 0.4, f.s.Progress())
	assert.True(t, f.s.Jobs().AnyExecuting())
}

func TestUnknownJobMessageIsIgnored(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.Generate())
	j := f.waitForJob(t, "job-1")

	f.s.HandleMessage(backend.Message{Event: backend.EventProgress, JobID: "phantom", Progress: 0.9})

	assert.Equal(t, job.StateQueued, j.State())
	assert.Zero(t, f.s.Progress())
	assert.Empty(t, f.s.Error(), "unknown ids are not surfaced to the user")
}

func TestInterruptedResetsProgressWithoutError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.Generate())
	j := f.waitForJob(t, "job-1")
	f.s.HandleMessage(backend.Message{Event: backend.EventProgress, JobID: "job-1", Progress: 0.6})

	f.s.HandleMessage(backend.Message{Event: backend.EventInterrupted, JobID: "job-1"})

	assert.Equal(t, job.StateCancelled, j.State())
	assert.Zero(t, f.s.Progress())
	assert.Empty(t, f.s.Error())
}

func TestErrorEventCancelsJobAndReports(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.Generate())
	j := f.waitForJob(t, "job-1")

	f.s.HandleMessage(backend.Message{Event: backend.EventError, JobID: "job-1", Error: "out of VRAM"})

	assert.Equal(t, job.StateCancelled, j.State())
	assert.Contains(t, f.s.Error(), "out of VRAM")
}

func TestFinishedDiffusionJobIsRetainedAndSelected(t *testing.T) {
	f := newFixture(t)
	f.s.SetPrompt("castle")
	require.NoError(t, f.s.Generate())
	j := f.waitForJob(t, "job-1")

	layersBefore := len(f.doc.Layers())
	f.s.HandleMessage(backend.Message{
		Event: backend.EventFinished, JobID: "job-1", Images: resultImages(1),
	})

	assert.Equal(t, job.StateFinished, j.State())
	assert.Equal(t, 1.0, f.s.Progress())
	assert.Equal(t, 1, f.s.Jobs().Len(), "diffusion jobs are kept as history")

	sel := f.s.Jobs().Selection()
	require.NotNil(t, sel, "first finished diffusion job is auto-selected")
	assert.Equal(t, "job-1", sel.JobID)
	assert.Zero(t, sel.Index)

	// Auto-selection materialized the preview layer, locked.
	assert.Len(t, f.doc.Layers(), layersBefore+1)
	assert.True(t, f.s.CanApplyResult())
}

func TestApplyCurrentResultPromotesPreview(t *testing.T) {
	f := newFixture(t)
	f.s.SetPrompt("castle")
	require.NoError(t, f.s.Generate())
	f.waitForJob(t, "job-1")
	f.s.HandleMessage(backend.Message{
		Event: backend.EventFinished, JobID: "job-1", Images: resultImages(1),
	})
	require.True(t, f.s.CanApplyResult())

	require.NoError(t, f.s.ApplyCurrentResult())

	// The promoted layer is unlocked and renamed.
	var promoted bool
	for _, id := range f.doc.Layers() {
		name, err := f.doc.LayerName(id)
		require.NoError(t, err)
		if name == "[Generated] castle" {
			promoted = true
			assert.False(t, f.doc.LayerLocked(id))
		}
	}
	assert.True(t, promoted, "preview layer was renamed on apply")

	assert.ErrorIs(t, f.s.ApplyCurrentResult(), session.ErrNothingToApply)
}

func TestSelectWithNoJobsHidesPreview(t *testing.T) {
	f := newFixture(t)
	f.s.Jobs().Select("ghost", 0)

	assert.False(t, f.s.CanApplyResult())
	assert.Len(t, f.doc.Layers(), 1, "no preview layer materialized")
}

func TestUpscaleFinishResizesDocument(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.UpscaleImage())
	j := f.waitForJob(t, "job-1")
	require.Equal(t, job.KindUpscaling, j.Kind())
	assert.Equal(t, imaging.Extent{Width: 1024, Height: 1024}, j.Bounds().Extent())

	req := f.client.LastEnqueued()
	assert.Equal(t, workflow.OpUpscaleTiled, req.Operation)
	assert.Equal(t, "upscaler-4x", req.Upscaler, "default upscaler adopted from capabilities")

	f.s.HandleMessage(backend.Message{
		Event: backend.EventFinished, JobID: "job-1", Images: resultImages(4),
	})

	assert.Equal(t, imaging.Extent{Width: 1024, Height: 1024}, f.doc.Extent())
	assert.Zero(t, f.s.Jobs().Len(), "upscaling jobs are removed after completion")
}

func TestLiveFinishCachesResult(t *testing.T) {
	f := newFixture(t)
	f.s.SetPrompt("sketch")
	live := f.s.Live()
	live.Strength = 1.0
	f.s.SetLive(live)

	require.NoError(t, f.s.GenerateLive())
	f.waitForJob(t, "job-1")
	require.False(t, f.s.HasLiveResult())

	f.s.HandleMessage(backend.Message{
		Event: backend.EventFinished, JobID: "job-1", Images: resultImages(1),
	})

	assert.True(t, f.s.HasLiveResult())
	assert.Zero(t, f.s.Jobs().Len(), "live jobs are removed after completion")
	assert.Len(t, f.doc.Layers(), 1, "live results do not mutate the document")

	require.NoError(t, f.s.AddLiveLayer())
	assert.Len(t, f.doc.Layers(), 2)
}

func TestControlLayerFinishBindsProducedLayer(t *testing.T) {
	f := newFixture(t)
	l := f.s.Controls().Add()
	require.NoError(t, l.Generate())
	require.Eventually(t, func() bool { return f.s.Jobs().Find("job-1") != nil }, waitFor, tick)

	f.s.HandleMessage(backend.Message{
		Event: backend.EventFinished, JobID: "job-1", Images: resultImages(1),
	})

	assert.NotEqual(t, f.doc.ActiveLayer(), l.LayerID(), "control layer rebinds to the produced layer")
	assert.True(t, f.doc.LayerExists(l.LayerID()))
	assert.Zero(t, f.s.Jobs().Len())
	assert.False(t, l.HasActiveJob())
}

func TestControlLayerPoseResultBecomesVectorLayer(t *testing.T) {
	f := newFixture(t)
	l := f.s.Controls().Add()
	l.SetMode(workflow.ModePose)
	require.NoError(t, l.Generate())
	require.Eventually(t, func() bool { return f.s.Jobs().Find("job-1") != nil }, waitFor, tick)

	f.s.HandleMessage(backend.Message{
		Event: backend.EventFinished,
		JobID: "job-1",
		Result: map[string]any{
			"canvas_width":  float64(512),
			"canvas_height": float64(512),
			"people": []any{
				map[string]any{
					"pose_keypoints_2d": []any{
						float64(100), float64(50), float64(0.9),
						float64(100), float64(120), float64(0.9),
					},
				},
			},
		},
	})

	kind, err := f.doc.LayerKind(l.LayerID())
	require.NoError(t, err)
	assert.Equal(t, document.LayerVector, kind, "pose payload produced a vector layer")
	assert.True(t, l.IsPoseVector())
}

func TestControlLayerCachedExecutionKeepsActiveLayer(t *testing.T) {
	f := newFixture(t)
	active := f.doc.ActiveLayer()
	l := f.s.Controls().Add()
	require.NoError(t, l.Generate())
	require.Eventually(t, func() bool { return f.s.Jobs().Find("job-1") != nil }, waitFor, tick)

	// No images, no structured payload: execution was cached server-side.
	f.s.HandleMessage(backend.Message{Event: backend.EventFinished, JobID: "job-1"})

	assert.Equal(t, active, l.LayerID(), "active layer is left unchanged")
	assert.Len(t, f.doc.Layers(), 1, "no layer inserted")
	assert.Zero(t, f.s.Jobs().Len())
}

func TestCancelQueuedClearsBackendQueue(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.Generate())
	f.waitForJob(t, "job-1")

	require.NoError(t, f.s.Cancel(context.Background(), false, true))

	assert.Equal(t, 1, f.client.ClearCount)
	assert.Zero(t, f.s.Jobs().Len())
}

func TestCancelActiveInterrupts(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.Generate())
	j := f.waitForJob(t, "job-1")
	f.s.Jobs().NotifyStarted(j)

	require.NoError(t, f.s.Cancel(context.Background(), true, false))
	assert.Equal(t, 1, f.client.InterruptCount)

	// Nothing executing: interrupt is skipped.
	f.s.HandleMessage(backend.Message{Event: backend.EventInterrupted, JobID: "job-1"})
	require.NoError(t, f.s.Cancel(context.Background(), true, false))
	assert.Equal(t, 1, f.client.InterruptCount)
}

func TestLeavingLiveWorkspaceDeactivatesLive(t *testing.T) {
	f := newFixture(t)
	live := f.s.Live()
	live.IsActive = true
	f.s.SetLive(live)
	f.s.SetWorkspace(session.WorkspaceLive)
	require.True(t, f.s.Live().IsActive)

	f.s.SetWorkspace(session.WorkspaceGeneration)
	assert.False(t, f.s.Live().IsActive)
}

func TestReportErrorDeactivatesLive(t *testing.T) {
	f := newFixture(t)
	live := f.s.Live()
	live.IsActive = true
	f.s.SetLive(live)

	f.s.ReportError("boom")
	assert.False(t, f.s.Live().IsActive)
}

func TestHistoryMemoryBudgetPrunesOldJobs(t *testing.T) {
	f := newFixture(t)
	f.store.Set(settings.KeyHistorySize, 40)

	require.NoError(t, f.s.Generate())
	f.waitForJob(t, "job-1")
	f.s.HandleMessage(backend.Message{
		Event: backend.EventFinished, JobID: "job-1", Images: resultImages(50),
	})
	assert.NotNil(t, f.s.Jobs().Find("job-1"), "protected job survives over budget")

	require.NoError(t, f.s.Generate())
	f.waitForJob(t, "job-2")
	f.s.HandleMessage(backend.Message{
		Event: backend.EventFinished, JobID: "job-2", Images: resultImages(10),
	})

	assert.Nil(t, f.s.Jobs().Find("job-1"), "oldest job evicted once over budget")
	assert.NotNil(t, f.s.Jobs().Find("job-2"))
	assert.InDelta(t, 10, f.s.Jobs().MemoryUsageMB(), 0.01)
}
