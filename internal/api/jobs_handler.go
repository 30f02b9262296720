package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/easelapp/easel-api/internal/api/shared"
	"github.com/easelapp/easel-api/internal/session"
)

// JobsHandler exposes the job queue: listing, result selection and
// deselection.
type JobsHandler struct {
	session *session.Session
	logger  *slog.Logger
}

// NewJobsHandler creates a new JobsHandler with the given dependencies.
func NewJobsHandler(s *session.Session, logger *slog.Logger) *JobsHandler {
	return &JobsHandler{
		session: s,
		logger:  logger.With("component", "jobs_handler"),
	}
}

// List handles GET /jobs.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	queue := h.session.Jobs()

	jobs := queue.Jobs()
	resp := JobListResponse{
		Jobs:         make([]JobResponse, 0, len(jobs)),
		MemoryUsedMB: queue.MemoryUsageMB(),
	}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, JobResponse{
			ID:          j.ID(),
			Kind:        string(j.Kind()),
			State:       string(j.State()),
			Prompt:      j.Prompt(),
			ResultCount: len(j.Results()),
		})
	}
	if sel := queue.Selection(); sel != nil {
		resp.SelectedJobID = sel.JobID
		resp.SelectedIndex = sel.Index
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// SelectResult handles POST /jobs/{id}/select: it picks one result image
// of a finished job to preview.
func (h *JobsHandler) SelectResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	var req SelectResultRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	j := h.session.Jobs().Find(jobID)
	if j == nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusNotFound, GetSafeErrorMessage(ErrJobNotFound), ErrJobNotFound)
		return
	}
	if req.Index >= len(j.Results()) {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Result index out of range")
		return
	}

	h.session.Jobs().Select(jobID, req.Index)
	shared.RespondWithJSON(w, r, http.StatusNoContent, nil)
}

// Deselect handles DELETE /jobs/selection: the preview layer is hidden.
func (h *JobsHandler) Deselect(w http.ResponseWriter, r *http.Request) {
	h.session.Jobs().Deselect()
	shared.RespondWithJSON(w, r, http.StatusNoContent, nil)
}
