package comfy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easelapp/easel-api/internal/backend"
	"github.com/easelapp/easel-api/internal/config"
	"github.com/easelapp/easel-api/internal/imaging"
	"github.com/easelapp/easel-api/internal/workflow"
)

// fakeServer is a minimal ComfyUI-shaped server for the client tests.
type fakeServer struct {
	mu        sync.Mutex
	submitted []map[string]any
	history   map[string]any
	interrupt int
	cleared   int
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.submitted = append(f.submitted, req)
		n := len(f.submitted)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"prompt_id": promptID(n)})
	})
	mux.HandleFunc("/interrupt", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.interrupt++
		f.mu.Unlock()
	})
	mux.HandleFunc("/queue", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.cleared++
		f.mu.Unlock()
	})
	mux.HandleFunc("/history/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/history/"):]
		f.mu.Lock()
		entry, ok := f.history[id]
		f.mu.Unlock()
		resp := map[string]any{}
		if ok {
			resp[id] = entry
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/progress", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int{"value": 5, "max": 10})
	})
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("png-bytes"))
	})
	mux.HandleFunc("/object_info", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"upscale_models": []string{"4x-ultrasharp"},
			"controlnet_models": map[string]map[string]string{
				"scribble": {"sd15": "control_v11p_sd15_scribble"},
			},
			"ip_adapter_models": map[string]string{"sd15": "ip-adapter_sd15"},
			"checkpoints":       map[string]string{"dreamshaper": "sd15"},
		})
	})
	return mux
}

func promptID(n int) string {
	return "prompt-" + string(rune('0'+n))
}

func (f *fakeServer) complete(id string, entry map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.history == nil {
		f.history = map[string]any{}
	}
	f.history[id] = entry
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	c, err := New(config.BackendConfig{
		URL:          srv.URL,
		PollInterval: 10 * time.Millisecond,
	}, logger)
	require.NoError(t, err)
	return c
}

func testRequest() *workflow.Request {
	return workflow.Generate(
		workflow.Style{Name: "default", Version: workflow.VersionSD15},
		imaging.Extent{Width: 512, Height: 512},
		&workflow.Conditioning{Prompt: "a harbor"},
		nil,
	)
}

func TestEnqueueReturnsPromptID(t *testing.T) {
	fake := &fakeServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	c := newTestClient(t, srv)

	id, err := c.Enqueue(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "prompt-1", id)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.submitted, 1)
	assert.NotEmpty(t, fake.submitted[0]["client_id"])
	assert.NotNil(t, fake.submitted[0]["prompt"])
}

func TestInterruptAndClearQueue(t *testing.T) {
	fake := &fakeServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	c := newTestClient(t, srv)

	require.NoError(t, c.Interrupt(context.Background()))
	require.NoError(t, c.ClearQueue(context.Background()))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.interrupt)
	assert.Equal(t, 1, fake.cleared)
}

func TestConnectFetchesCapabilities(t *testing.T) {
	fake := &fakeServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	c := newTestClient(t, srv)

	require.NoError(t, c.Connect(context.Background()))

	caps := c.Capabilities()
	assert.Equal(t, "4x-ultrasharp", caps.DefaultUpscaler)
	assert.Equal(t, "control_v11p_sd15_scribble",
		caps.ControlModel(workflow.ModeScribble, workflow.VersionSD15))
	assert.Equal(t, "ip-adapter_sd15", caps.IPAdapterModel(workflow.VersionSD15))
	assert.Equal(t, workflow.VersionSD15, caps.Checkpoints["dreamshaper"])
}

func TestRunDeliversProgressAndCompletion(t *testing.T) {
	fake := &fakeServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	c := newTestClient(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	id, err := c.Enqueue(ctx, testRequest())
	require.NoError(t, err)

	// While no history entry exists the poller reports progress.
	msg := receive(t, c.Messages())
	assert.Equal(t, backend.EventProgress, msg.Event)
	assert.Equal(t, id, msg.JobID)
	assert.InDelta(t, 0.5, msg.Progress, 1e-9)

	fake.complete(id, map[string]any{
		"status": map[string]any{"completed": true, "status_str": "success"},
		"outputs": map[string]any{
			"9": map[string]any{
				"images": []map[string]any{{"filename": "out.png", "subfolder": ""}},
			},
		},
	})

	for {
		msg = receive(t, c.Messages())
		if msg.Event != backend.EventProgress {
			break
		}
	}
	assert.Equal(t, backend.EventFinished, msg.Event)
	assert.Equal(t, id, msg.JobID)
	require.Len(t, msg.Images, 1)
	assert.Equal(t, []byte("png-bytes"), msg.Images[0].Data)
}

func TestRunReportsServerErrors(t *testing.T) {
	fake := &fakeServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	c := newTestClient(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	id, err := c.Enqueue(ctx, testRequest())
	require.NoError(t, err)
	fake.complete(id, map[string]any{
		"status": map[string]any{"completed": false, "status_str": "error"},
	})

	var msg backend.Message
	for {
		msg = receive(t, c.Messages())
		if msg.Event != backend.EventProgress {
			break
		}
	}
	assert.Equal(t, backend.EventError, msg.Event)
	assert.Contains(t, msg.Error, id)
}

func receive(t *testing.T, ch <-chan backend.Message) backend.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for backend message")
		return backend.Message{}
	}
}
