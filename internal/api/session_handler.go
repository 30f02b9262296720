package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/easelapp/easel-api/internal/api/shared"
	"github.com/easelapp/easel-api/internal/session"
	"github.com/easelapp/easel-api/internal/settings"
)

// SessionHandler exposes the dispatch operations and observable state of
// the generation session.
type SessionHandler struct {
	session  *session.Session
	settings *settings.Store
	logger   *slog.Logger
}

// NewSessionHandler creates a new SessionHandler with the given dependencies.
func NewSessionHandler(s *session.Session, store *settings.Store, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		session:  s,
		settings: store,
		logger:   logger.With("component", "session_handler"),
	}
}

// decodeOptional decodes the body into v, tolerating an empty body. All
// dispatch payloads are fully defaulted so a bare POST is valid.
func decodeOptional(r *http.Request, v interface{}) error {
	if err := shared.DecodeJSON(r, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Generate handles POST /generate. It snapshots the conditioning inputs
// into the session and dispatches a generation for the document.
func (h *SessionHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeOptional(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	h.session.SetPrompt(req.Prompt)
	h.session.SetNegativePrompt(req.NegativePrompt)
	if req.Strength != nil {
		h.session.SetStrength(*req.Strength)
	}

	if err := h.session.Generate(); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, DispatchResponse{Accepted: true})
}

// Upscale handles POST /upscale.
func (h *SessionHandler) Upscale(w http.ResponseWriter, r *http.Request) {
	var req UpscaleRequest
	if err := decodeOptional(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	params := h.session.Upscale()
	if req.Factor != nil {
		params.Factor = *req.Factor
	}
	if req.UseDiffusion != nil {
		params.UseDiffusion = *req.UseDiffusion
	}
	if req.Strength != nil {
		params.Strength = *req.Strength
	}
	h.session.SetUpscale(params)

	if err := h.session.UpscaleImage(); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, DispatchResponse{Accepted: true})
}

// Live handles POST /live/generate, one preview pass.
func (h *SessionHandler) Live(w http.ResponseWriter, r *http.Request) {
	var req LiveRequest
	if err := decodeOptional(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	if req.Prompt != "" {
		h.session.SetPrompt(req.Prompt)
	}
	if req.Strength != nil {
		live := h.session.Live()
		live.Strength = *req.Strength
		h.session.SetLive(live)
	}

	if err := h.session.GenerateLive(); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, DispatchResponse{Accepted: true})
}

// ApplyLive handles POST /live/apply: the cached live result becomes a
// document layer.
func (h *SessionHandler) ApplyLive(w http.ResponseWriter, r *http.Request) {
	if err := h.session.AddLiveLayer(); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusConflict, "No live result available", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, nil)
}

// Apply handles POST /apply: the selected preview becomes a permanent layer.
func (h *SessionHandler) Apply(w http.ResponseWriter, r *http.Request) {
	if err := h.session.ApplyCurrentResult(); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, nil)
}

// Cancel handles POST /cancel.
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := decodeOptional(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if !req.Active && !req.Queued {
		// Bare cancel means everything.
		req.Active, req.Queued = true, true
	}

	if err := h.session.Cancel(r.Context(), req.Active, req.Queued); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusNoContent, nil)
}

// SetWorkspace handles PUT /workspace.
func (h *SessionHandler) SetWorkspace(w http.ResponseWriter, r *http.Request) {
	var req WorkspaceRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}
	h.session.SetWorkspace(session.Workspace(req.Workspace))
	shared.RespondWithJSON(w, r, http.StatusNoContent, nil)
}

// UpdateSetting handles PUT /settings.
func (h *SessionHandler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	var req SettingUpdateRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}
	h.settings.Set(req.Key, req.Value)
	shared.RespondWithJSON(w, r, http.StatusNoContent, nil)
}

// Status handles GET /status.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Connection:    h.session.Connection().State().String(),
		Workspace:     string(h.session.Workspace()),
		Progress:      h.session.Progress(),
		Error:         h.session.Error(),
		CanApply:      h.session.CanApplyResult(),
		Executing:     h.session.Jobs().AnyExecuting(),
		HasLiveResult: h.session.HasLiveResult(),
		QueueLength:   h.session.Jobs().Len(),
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
