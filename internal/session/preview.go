package session

import (
	"errors"
	"strings"

	"github.com/easelapp/easel-api/internal/document"
)

// ErrNothingToApply is returned when ApplyCurrentResult runs without an
// applicable preview.
var ErrNothingToApply = errors.New("no preview result to apply")

// UpdatePreview reacts to selection and finished-job notifications: it
// materializes the selected result as the preview layer, or hides the
// preview when nothing is selected or the selected job is gone.
func (s *Session) UpdatePreview() {
	sel := s.jobs.Selection()
	if sel == nil {
		s.hidePreview()
		return
	}
	j := s.jobs.Find(sel.JobID)
	if j == nil || sel.Index >= len(j.Results()) {
		s.hidePreview()
		return
	}

	name := "[Preview] " + j.Prompt()
	img := j.Results()[sel.Index]

	s.mu.Lock()
	preview := s.previewLayer
	s.mu.Unlock()

	// The user may have deleted the preview layer out from under us.
	if preview != document.NoLayer && !s.doc.LayerExists(preview) {
		preview = document.NoLayer
	}

	if preview != document.NoLayer {
		if err := s.doc.SetLayerName(preview, name); err != nil {
			s.logger.Error("failed to rename preview layer", "error", err)
		}
		if err := s.doc.SetLayerContent(preview, img, j.Bounds()); err != nil {
			s.logger.Error("failed to update preview layer", "error", err)
			return
		}
	} else {
		id, err := s.doc.InsertLayer(name, img, j.Bounds(), document.NoLayer)
		if err != nil {
			s.logger.Error("failed to insert preview layer", "error", err)
			return
		}
		if err := s.doc.SetLayerLocked(id, true); err != nil {
			s.logger.Error("failed to lock preview layer", "error", err)
		}
		preview = id
	}

	s.mu.Lock()
	s.previewLayer = preview
	s.canApply = true
	s.mu.Unlock()
}

func (s *Session) hidePreview() {
	s.mu.Lock()
	preview := s.previewLayer
	s.canApply = false
	s.mu.Unlock()
	if preview != document.NoLayer {
		if err := s.doc.HideLayer(preview); err != nil {
			s.logger.Error("failed to hide preview layer", "error", err)
		}
	}
}

// ApplyCurrentResult promotes the preview layer to a regular unlocked
// layer and stops tracking it. Irreversible.
func (s *Session) ApplyCurrentResult() error {
	s.mu.Lock()
	preview := s.previewLayer
	canApply := s.canApply
	s.mu.Unlock()
	if preview == document.NoLayer || !canApply {
		return ErrNothingToApply
	}

	if err := s.doc.SetLayerLocked(preview, false); err != nil {
		return err
	}
	name, err := s.doc.LayerName(preview)
	if err != nil {
		return err
	}
	if err := s.doc.SetLayerName(preview, strings.Replace(name, "[Preview]", "[Generated]", 1)); err != nil {
		return err
	}

	s.mu.Lock()
	s.previewLayer = document.NoLayer
	s.mu.Unlock()
	return nil
}
