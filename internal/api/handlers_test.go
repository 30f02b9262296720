package api_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easelapp/easel-api/internal/api"
	"github.com/easelapp/easel-api/internal/backend"
	"github.com/easelapp/easel-api/internal/imaging"
	"github.com/easelapp/easel-api/internal/mocks"
	"github.com/easelapp/easel-api/internal/platform/memdoc"
	"github.com/easelapp/easel-api/internal/session"
	"github.com/easelapp/easel-api/internal/settings"
)

type apiFixture struct {
	session *session.Session
	client  *mocks.MockBackendClient
	store   *settings.Store
	router  chi.Router
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	doc := memdoc.New(imaging.Extent{Width: 512, Height: 512})
	client := &mocks.MockBackendClient{}
	conn := session.NewConnection()
	conn.Connect(client)
	store := settings.New()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	s := session.New(doc, conn, store, logger)

	sessionHandler := api.NewSessionHandler(s, store, logger)
	jobsHandler := api.NewJobsHandler(s, logger)
	controlHandler := api.NewControlHandler(s, logger)

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Post("/generate", sessionHandler.Generate)
		r.Post("/upscale", sessionHandler.Upscale)
		r.Post("/live/generate", sessionHandler.Live)
		r.Post("/live/apply", sessionHandler.ApplyLive)
		r.Post("/apply", sessionHandler.Apply)
		r.Post("/cancel", sessionHandler.Cancel)
		r.Put("/workspace", sessionHandler.SetWorkspace)
		r.Put("/settings", sessionHandler.UpdateSetting)
		r.Get("/status", sessionHandler.Status)
		r.Get("/jobs", jobsHandler.List)
		r.Post("/jobs/{id}/select", jobsHandler.SelectResult)
		r.Delete("/jobs/selection", jobsHandler.Deselect)
		r.Get("/control-layers", controlHandler.List)
		r.Post("/control-layers", controlHandler.Create)
		r.Patch("/control-layers/{index}", controlHandler.Update)
		r.Delete("/control-layers/{index}", controlHandler.Delete)
		r.Post("/control-layers/{index}/generate", controlHandler.GenerateImage)
	})

	return &apiFixture{session: s, client: client, store: store, router: r}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) waitForJob(t *testing.T, id string) {
	t.Helper()
	require.Eventually(t, func() bool { return f.session.Jobs().Find(id) != nil },
		2*time.Second, 5*time.Millisecond)
}

func TestStatusEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "connected", resp.Connection)
	assert.Equal(t, "generation", resp.Workspace)
	assert.False(t, resp.CanApply)
	assert.Zero(t, resp.QueueLength)
}

func TestGenerateEndpointDispatches(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/generate", `{"prompt":"a red barn","strength":0.8}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	f.waitForJob(t, "job-1")
	j := f.session.Jobs().Find("job-1")
	assert.Equal(t, "a red barn", j.Prompt())
	assert.InDelta(t, 0.8, f.session.Strength(), 1e-9)
}

func TestGenerateEndpointRejectsBadStrength(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/generate", `{"strength":1.5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid Strength")
	assert.Empty(t, f.client.EnqueueCalls)
}

func TestGenerateEndpointAcceptsEmptyBody(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/generate", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.waitForJob(t, "job-1")
}

func TestCancelEndpointDefaultsToEverything(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodPost, "/v1/generate", `{"prompt":"x"}`)
	f.waitForJob(t, "job-1")

	rec := f.do(t, http.MethodPost, "/v1/cancel", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, f.client.ClearCount)
	assert.Zero(t, f.session.Jobs().Len())
}

func TestJobsListAndSelection(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodPost, "/v1/generate", `{"prompt":"hills"}`)
	f.waitForJob(t, "job-1")
	f.session.HandleMessage(backend.Message{
		Event:  backend.EventFinished,
		JobID:  "job-1",
		Images: imaging.ImageSet{{Extent: imaging.Extent{Width: 512, Height: 512}, Format: "png", Data: []byte{1, 2, 3}}},
	})

	rec := f.do(t, http.MethodGet, "/v1/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.JobListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "job-1", resp.Jobs[0].ID)
	assert.Equal(t, "finished", resp.Jobs[0].State)
	assert.Equal(t, 1, resp.Jobs[0].ResultCount)
	assert.Equal(t, "job-1", resp.SelectedJobID, "first finished job is auto-selected")

	rec = f.do(t, http.MethodPost, "/v1/jobs/job-1/select", `{"index":0}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/jobs/job-1/select", `{"index":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/jobs/ghost/select", `{"index":0}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/jobs/selection", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, f.session.Jobs().Selection())
}

func TestControlLayerLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/control-layers", `{"mode":"depth"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created api.ControlLayerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "depth", created.Mode)
	assert.Zero(t, created.Index)

	rec = f.do(t, http.MethodPatch, "/v1/control-layers/0", `{"strength":0.5,"mode":"canny"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated api.ControlLayerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "canny", updated.Mode)
	assert.InDelta(t, 0.5, updated.Strength, 1e-9)

	rec = f.do(t, http.MethodPatch, "/v1/control-layers/0", `{"mode":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/control-layers/0/generate", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/control-layers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []api.ControlLayerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = f.do(t, http.MethodDelete, "/v1/control-layers/0", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, f.session.Controls().Len())

	rec = f.do(t, http.MethodDelete, "/v1/control-layers/0", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkspaceEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPut, "/v1/workspace", `{"workspace":"live"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, session.WorkspaceLive, f.session.Workspace())

	rec = f.do(t, http.MethodPut, "/v1/workspace", `{"workspace":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPut, "/v1/settings", `{"key":"history_size","value":250}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 250, f.store.HistorySizeMB())

	rec = f.do(t, http.MethodPut, "/v1/settings", `{"value":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyWithoutResultConflicts(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/apply", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/live/apply", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
