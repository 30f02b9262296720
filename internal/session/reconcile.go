package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/easelapp/easel-api/internal/backend"
	"github.com/easelapp/easel-api/internal/document"
	"github.com/easelapp/easel-api/internal/imaging"
	"github.com/easelapp/easel-api/internal/job"
	"github.com/easelapp/easel-api/internal/pose"
	"github.com/easelapp/easel-api/internal/workflow"
)

// HandleMessage reconciles one backend message with job state. Messages
// for unknown job ids are logged and ignored; reconciliation never
// returns an error to the event source.
func (s *Session) HandleMessage(msg backend.Message) {
	j := s.jobs.Find(msg.JobID)
	if j == nil {
		s.logger.Error("received message for unknown job",
			"job_id", msg.JobID, "event", string(msg.Event))
		return
	}

	switch msg.Event {
	case backend.EventProgress:
		s.jobs.NotifyStarted(j)
		s.setProgress(msg.Progress)

	case backend.EventFinished:
		s.finishJob(j, msg)

	case backend.EventInterrupted:
		s.jobs.NotifyCancelled(j)
		s.setProgress(0)

	case backend.EventError:
		s.jobs.NotifyCancelled(j)
		s.ReportError(fmt.Sprintf("server execution error: %s", msg.Error))
	}
}

// finishJob attaches results, runs the kind-specific side effect and
// retires the job. All four finish paths live here so completion
// handling stays auditable in one place.
func (s *Session) finishJob(j *job.Job, msg backend.Message) {
	if len(msg.Images) > 0 {
		s.jobs.SetResults(j, msg.Images)
	}

	switch j.Kind() {
	case job.KindControl:
		if ctl := j.Control(); ctl != nil {
			ctl.BindLayer(s.insertControlResult(j, msg.Result))
		}
	case job.KindUpscaling:
		s.insertUpscaleResult(j)
	case job.KindLivePreview:
		if results := j.Results(); len(results) > 0 {
			s.mu.Lock()
			s.liveResult = results[0]
			s.mu.Unlock()
		}
	}

	s.setProgress(1)
	s.jobs.NotifyFinished(j)

	if j.Kind() != job.KindDiffusion {
		s.jobs.Remove(j)
		return
	}
	s.mu.Lock()
	noPreview := s.previewLayer == document.NoLayer
	s.mu.Unlock()
	if noPreview && j.ID() != "" {
		s.jobs.Select(j.ID(), 0)
	}
}

// insertControlResult materializes an extraction result as a document
// layer below the preview layer and returns its id. Pose results with
// keypoint payloads become vector layers. When the backend produced
// neither images nor a payload (cached execution), the currently active
// layer is left in place and returned unchanged.
func (s *Session) insertControlResult(j *job.Job, result map[string]any) uuid.UUID {
	s.mu.Lock()
	below := s.previewLayer
	s.mu.Unlock()

	if j.Control().ControlMode() == workflow.ModePose && result != nil {
		if svg := pose.SVG(result, j.Bounds().Extent()); svg != "" {
			id, err := s.doc.InsertVectorLayer(j.Prompt(), svg, below)
			if err == nil {
				return id
			}
			s.logger.Error("failed to insert pose layer", "error", err)
		}
	}
	if results := j.Results(); len(results) > 0 {
		id, err := s.doc.InsertLayer(j.Prompt(), results[0], j.Bounds(), below)
		if err == nil {
			return id
		}
		s.logger.Error("failed to insert control layer", "error", err)
	}
	return s.doc.ActiveLayer()
}

// insertUpscaleResult replaces the preview layer with the upscaled
// image and grows the document to the new extent.
func (s *Session) insertUpscaleResult(j *job.Job) {
	results := j.Results()
	if len(results) == 0 {
		s.logger.Error("upscaling job finished without an image", "job_id", j.ID())
		return
	}

	s.mu.Lock()
	preview := s.previewLayer
	s.previewLayer = document.NoLayer
	s.mu.Unlock()
	if preview != document.NoLayer {
		if err := s.doc.RemoveLayer(preview); err != nil {
			s.logger.Error("failed to remove preview layer", "error", err)
		}
	}

	if err := s.doc.Resize(j.Bounds().Extent()); err != nil {
		s.logger.Error("failed to resize document", "error", err)
	}
	if _, err := s.doc.InsertLayer(j.Prompt(), results[0], j.Bounds(), document.NoLayer); err != nil {
		s.logger.Error("failed to insert upscaled layer", "error", err)
	}
}

// AddLiveLayer promotes the cached live-preview image to a document
// layer.
func (s *Session) AddLiveLayer() error {
	s.mu.Lock()
	img := s.liveResult
	prompt := s.prompt
	s.mu.Unlock()
	if img == nil {
		return fmt.Errorf("no live result available")
	}
	_, err := s.doc.InsertLayer(
		fmt.Sprintf("[Live] %s", prompt), img, imaging.BoundsOf(s.doc.Extent()), document.NoLayer)
	return err
}
