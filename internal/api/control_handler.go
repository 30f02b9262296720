package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/easelapp/easel-api/internal/api/shared"
	"github.com/easelapp/easel-api/internal/control"
	"github.com/easelapp/easel-api/internal/session"
	"github.com/easelapp/easel-api/internal/workflow"
)

// ControlHandler exposes the session's control layer list.
type ControlHandler struct {
	session *session.Session
	logger  *slog.Logger
}

// NewControlHandler creates a new ControlHandler with the given dependencies.
func NewControlHandler(s *session.Session, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{
		session: s,
		logger:  logger.With("component", "control_handler"),
	}
}

func controlLayerResponse(i int, l *control.Layer) ControlLayerResponse {
	return ControlLayerResponse{
		Index:        i,
		Mode:         string(l.ControlMode()),
		LayerID:      l.LayerID().String(),
		Strength:     l.Strength(),
		End:          l.End(),
		Supported:    l.IsSupported(),
		CanGenerate:  l.CanGenerate(),
		HasActiveJob: l.HasActiveJob(),
		IsPoseVector: l.IsPoseVector(),
		ShowEnd:      l.ShowEnd(),
		Error:        l.ErrorText(),
	}
}

// layerFromURL resolves the {index} URL parameter to a control layer.
func (h *ControlHandler) layerFromURL(r *http.Request) (int, *control.Layer) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return -1, nil
	}
	return i, h.session.Controls().At(i)
}

// List handles GET /control-layers.
func (h *ControlHandler) List(w http.ResponseWriter, r *http.Request) {
	layers := h.session.Controls().Layers()
	resp := make([]ControlLayerResponse, 0, len(layers))
	for i, l := range layers {
		resp = append(resp, controlLayerResponse(i, l))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// Create handles POST /control-layers: a new control layer bound to the
// active document layer.
func (h *ControlHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ControlLayerCreateRequest
	if err := decodeOptional(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	l := h.session.Controls().Add()
	if req.Mode != "" {
		l.SetMode(workflow.Mode(req.Mode))
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, controlLayerResponse(h.session.Controls().Len()-1, l))
}

// Update handles PATCH /control-layers/{index}.
func (h *ControlHandler) Update(w http.ResponseWriter, r *http.Request) {
	i, l := h.layerFromURL(r)
	if l == nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusNotFound, GetSafeErrorMessage(ErrControlLayerNotFound), ErrControlLayerNotFound)
		return
	}

	var req ControlLayerUpdateRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	if req.Mode != nil {
		l.SetMode(workflow.Mode(*req.Mode))
	}
	if req.Strength != nil {
		l.SetStrength(*req.Strength)
	}
	if req.End != nil {
		l.SetEnd(*req.End)
	}
	shared.RespondWithJSON(w, r, http.StatusOK, controlLayerResponse(i, l))
}

// Delete handles DELETE /control-layers/{index}.
func (h *ControlHandler) Delete(w http.ResponseWriter, r *http.Request) {
	_, l := h.layerFromURL(r)
	if l == nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusNotFound, GetSafeErrorMessage(ErrControlLayerNotFound), ErrControlLayerNotFound)
		return
	}
	h.session.Controls().Remove(l)
	shared.RespondWithJSON(w, r, http.StatusNoContent, nil)
}

// GenerateImage handles POST /control-layers/{index}/generate: it
// extracts a control image from the document for this layer's mode.
func (h *ControlHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	_, l := h.layerFromURL(r)
	if l == nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusNotFound, GetSafeErrorMessage(ErrControlLayerNotFound), ErrControlLayerNotFound)
		return
	}
	if err := l.Generate(); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, DispatchResponse{Accepted: true})
}
