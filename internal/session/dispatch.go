package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/easelapp/easel-api/internal/control"
	"github.com/easelapp/easel-api/internal/document"
	"github.com/easelapp/easel-api/internal/imaging"
	"github.com/easelapp/easel-api/internal/job"
	"github.com/easelapp/easel-api/internal/workflow"
)

// ErrNotConnected is reported when a dispatch runs without a backend
// connection.
var ErrNotConnected = errors.New("not connected to a backend")

// ErrUnsupportedColorMode is returned when the document's color mode
// fails the pre-dispatch check.
var ErrUnsupportedColorMode = errors.New("unsupported color mode")

// Generate snapshots the current parameters and dispatches a generation
// for the document. The call returns once the work is handed to the
// dispatch goroutine; completion is observed through backend messages.
func (s *Session) Generate() error {
	if ok, msg := s.doc.CheckColorMode(); !ok {
		s.ReportError(msg)
		return fmt.Errorf("%w: %s", ErrUnsupportedColorMode, msg)
	}

	extent := s.doc.Extent()
	mask, selectionBounds, err := s.doc.CreateMaskFromSelection(
		s.settings.SelectionGrow()/100,
		s.settings.SelectionFeather()/100,
		s.settings.SelectionPadding()/100,
	)
	if err != nil {
		s.ReportError(err.Error())
		return err
	}

	s.mu.Lock()
	strength := s.strength
	style := s.style
	prompt := s.prompt
	negative := s.negativePrompt
	s.mu.Unlock()

	var maskBounds *imaging.Bounds
	if mask != nil {
		maskBounds = &mask.Bounds
	}
	imageBounds := workflow.ComputeBounds(extent, maskBounds, strength)

	var image *imaging.Image
	if mask != nil || strength < 1.0 {
		if image, err = s.currentImage(imageBounds); err != nil {
			s.ReportError(err.Error())
			return err
		}
	}
	if selectionBounds != nil {
		clipped := selectionBounds.Clip(imageBounds).MinimumSize(workflow.MinTileSize, imageBounds)
		selectionBounds = &clipped
	}

	controls, err := s.captureControls(&imageBounds)
	if err != nil {
		s.ReportError(err.Error())
		return err
	}
	cond := &workflow.Conditioning{
		Prompt:         prompt,
		NegativePrompt: negative,
		Control:        controls,
	}
	if strength == 1.0 {
		cond.Area = selectionBounds
	}

	s.ClearError()
	s.dispatch(func(ctx context.Context) error {
		return s.submitGenerate(ctx, imageBounds, cond, image, mask, style, strength)
	})
	return nil
}

func (s *Session) submitGenerate(ctx context.Context, bounds imaging.Bounds, cond *workflow.Conditioning, image *imaging.Image, mask *imaging.Mask, style workflow.Style, strength float64) error {
	client := s.conn.Client()
	if client == nil {
		return ErrNotConnected
	}
	if !s.jobs.AnyExecuting() {
		s.setProgress(0)
	}

	if mask != nil {
		// The request carries the mask relative to the cropped image;
		// the job keeps the absolute mask bounds for result insertion.
		// The caller's mask stays untouched.
		rebased := *mask
		rebased.Bounds = mask.Bounds.Relative(bounds)
		bounds = mask.Bounds
		mask = &rebased
	}

	req := workflow.Build(style, bounds, cond, image, mask, strength)
	id, err := client.Enqueue(ctx, req)
	if err != nil {
		return fmt.Errorf("enqueue generation: %w", err)
	}
	s.jobs.Add(id, cond.Prompt, bounds)
	return nil
}

// UpscaleImage dispatches an upscale of the whole document.
func (s *Session) UpscaleImage() error {
	extent := s.doc.Extent()
	image, err := s.doc.GetImage(imaging.BoundsOf(extent), nil)
	if err != nil {
		s.ReportError(err.Error())
		return err
	}

	s.mu.Lock()
	params := s.upscale
	style := s.style
	s.mu.Unlock()

	j := s.jobs.AddUpscale(imaging.BoundsOf(extent.Scale(params.Factor)))
	s.ClearError()
	s.dispatch(func(ctx context.Context) error {
		return s.submitUpscale(ctx, j, image, params, style)
	})
	return nil
}

func (s *Session) submitUpscale(ctx context.Context, j *job.Job, image *imaging.Image, params UpscaleParams, style workflow.Style) error {
	client := s.conn.Client()
	if client == nil {
		return ErrNotConnected
	}
	if params.Upscaler == "" {
		params.Upscaler = client.Capabilities().DefaultUpscaler
	}
	var req *workflow.Request
	if params.UseDiffusion {
		req = workflow.UpscaleTiled(image, params.Upscaler, params.Factor, style, params.Strength)
	} else {
		req = workflow.UpscaleSimple(image, params.Upscaler, params.Factor)
	}
	id, err := client.Enqueue(ctx, req)
	if err != nil {
		return fmt.Errorf("enqueue upscale: %w", err)
	}
	return j.SetID(id)
}

// GenerateLive dispatches a single live-preview generation pass.
func (s *Session) GenerateLive() error {
	extent := s.doc.Extent()
	bounds := imaging.BoundsOf(extent)

	s.mu.Lock()
	live := s.live
	style := s.style
	prompt := s.prompt
	negative := s.negativePrompt
	s.mu.Unlock()

	var image *imaging.Image
	var err error
	if live.Strength < 1.0 {
		if image, err = s.currentImage(bounds); err != nil {
			s.ReportError(err.Error())
			return err
		}
	}
	controls, err := s.captureControls(&bounds)
	if err != nil {
		s.ReportError(err.Error())
		return err
	}
	cond := &workflow.Conditioning{Prompt: prompt, NegativePrompt: negative, Control: controls}

	j := s.jobs.AddLive(prompt, bounds)
	s.ClearError()
	s.dispatch(func(ctx context.Context) error {
		return s.submitLive(ctx, j, image, extent, cond, style, live)
	})
	return nil
}

func (s *Session) submitLive(ctx context.Context, j *job.Job, image *imaging.Image, extent imaging.Extent, cond *workflow.Conditioning, style workflow.Style, live workflow.LiveParams) error {
	client := s.conn.Client()
	if client == nil {
		return ErrNotConnected
	}
	var req *workflow.Request
	if image != nil {
		req = workflow.Refine(style, image, cond, live.Strength, &live)
	} else {
		req = workflow.Generate(style, extent, cond, &live)
	}
	id, err := client.Enqueue(ctx, req)
	if err != nil {
		return fmt.Errorf("enqueue live generation: %w", err)
	}
	return j.SetID(id)
}

// GenerateControlLayer dispatches a control-image extraction for the
// given control layer and returns the tracking job.
func (s *Session) GenerateControlLayer(l *control.Layer) (*job.Job, error) {
	if ok, msg := s.doc.CheckColorMode(); !ok {
		s.ReportError(msg)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedColorMode, msg)
	}
	extent := s.doc.Extent()
	image, err := s.doc.GetImage(imaging.BoundsOf(extent), nil)
	if err != nil {
		s.ReportError(err.Error())
		return nil, err
	}

	j := s.jobs.AddControl(l, imaging.BoundsOf(image.Extent))
	mode := l.ControlMode()
	s.ClearError()
	s.dispatch(func(ctx context.Context) error {
		client := s.conn.Client()
		if client == nil {
			return ErrNotConnected
		}
		id, err := client.Enqueue(ctx, workflow.CreateControlImage(image, mode))
		if err != nil {
			return fmt.Errorf("enqueue control extraction: %w", err)
		}
		return j.SetID(id)
	})
	return j, nil
}

// Cancel interrupts the active job and/or drops queued jobs.
func (s *Session) Cancel(ctx context.Context, active, queued bool) error {
	client := s.conn.Client()
	if client == nil {
		return ErrNotConnected
	}
	if queued {
		var toRemove []*job.Job
		for _, j := range s.jobs.Jobs() {
			if j.State() == job.StateQueued {
				toRemove = append(toRemove, j)
			}
		}
		if len(toRemove) > 0 {
			if err := client.ClearQueue(ctx); err != nil {
				return fmt.Errorf("clear backend queue: %w", err)
			}
			for _, j := range toRemove {
				s.jobs.Remove(j)
			}
		}
	}
	if active && s.jobs.AnyExecuting() {
		if err := client.Interrupt(ctx); err != nil {
			return fmt.Errorf("interrupt active job: %w", err)
		}
	}
	return nil
}

// dispatch runs fn on its own goroutine with a fresh cancellation
// token, cancelling the previously tracked dispatch. Errors never
// propagate to the caller of the triggering action; they are reported
// through the session's error field.
func (s *Session) dispatch(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.dispatchCancel != nil {
		s.dispatchCancel()
	}
	s.dispatchCancel = cancel
	s.mu.Unlock()

	go func() {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			s.ReportError(err.Error())
		}
	}()
}

// currentImage composites the document at bounds, excluding in-progress
// preview and control layers that do not contribute image content.
func (s *Session) currentImage(bounds imaging.Bounds) (*imaging.Image, error) {
	var exclude []uuid.UUID
	for _, c := range s.controls.Layers() {
		mode := c.ControlMode()
		if mode != workflow.ModeImage && mode != workflow.ModeBlur {
			exclude = append(exclude, c.LayerID())
		}
	}
	s.mu.Lock()
	preview := s.previewLayer
	s.mu.Unlock()
	if preview != document.NoLayer {
		exclude = append(exclude, preview)
	}
	return s.doc.GetImage(bounds, exclude)
}

func (s *Session) captureControls(bounds *imaging.Bounds) ([]workflow.Control, error) {
	var out []workflow.Control
	for _, c := range s.controls.Layers() {
		ctl, err := c.GetImage(bounds)
		if err != nil {
			return nil, err
		}
		out = append(out, ctl)
	}
	return out, nil
}
