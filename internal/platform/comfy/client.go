// Package comfy implements the diffusion backend client against a
// ComfyUI-compatible HTTP server: prompt submission, queue control and
// a polling loop that translates execution history into backend
// messages.
package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/easelapp/easel-api/internal/backend"
	"github.com/easelapp/easel-api/internal/config"
	"github.com/easelapp/easel-api/internal/imaging"
	"github.com/easelapp/easel-api/internal/workflow"
)

// Client talks to one ComfyUI-compatible server. It implements
// backend.Client; Run must be started for messages to flow.
type Client struct {
	baseURL      string
	clientID     string
	pollInterval time.Duration
	http         *http.Client
	logger       *slog.Logger

	mu      sync.Mutex
	pending []string // prompt ids awaiting completion, submission order
	caps    backend.Capabilities

	messages chan backend.Message
}

// New creates a client for the configured server. It does not touch the
// network; call Connect to fetch capabilities and Run to start polling.
func New(cfg config.BackendConfig, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = uuid.New().String()
	}
	return &Client{
		baseURL:      base.String(),
		clientID:     clientID,
		pollInterval: cfg.PollInterval,
		http:         &http.Client{Timeout: 30 * time.Second},
		logger:       logger.With("component", "comfy"),
		messages:     make(chan backend.Message, 16),
	}, nil
}

var _ backend.Client = (*Client)(nil)

// promptRequest is the submission envelope.
type promptRequest struct {
	Prompt   *workflow.Request `json:"prompt"`
	ClientID string            `json:"client_id"`
}

type promptResponse struct {
	PromptID string `json:"prompt_id"`
	Error    string `json:"error,omitempty"`
}

// Enqueue submits a request and returns the server-assigned prompt id.
func (c *Client) Enqueue(ctx context.Context, req *workflow.Request) (string, error) {
	body, err := json.Marshal(promptRequest{Prompt: req, ClientID: c.clientID})
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}

	var resp promptResponse
	if err := c.post(ctx, "/prompt", body, &resp); err != nil {
		return "", fmt.Errorf("submit prompt: %w", err)
	}
	if resp.PromptID == "" {
		return "", fmt.Errorf("submit prompt: server returned no prompt id (%s)", resp.Error)
	}

	c.mu.Lock()
	c.pending = append(c.pending, resp.PromptID)
	c.mu.Unlock()

	c.logger.Debug("prompt submitted", "prompt_id", resp.PromptID, "operation", string(req.Operation))
	return resp.PromptID, nil
}

// Interrupt cancels the currently executing prompt.
func (c *Client) Interrupt(ctx context.Context) error {
	return c.post(ctx, "/interrupt", nil, nil)
}

// ClearQueue drops all queued prompts on the server.
func (c *Client) ClearQueue(ctx context.Context) error {
	body, _ := json.Marshal(map[string]bool{"clear": true})
	return c.post(ctx, "/queue", body, nil)
}

// Capabilities reports the models discovered at Connect time.
func (c *Client) Capabilities() backend.Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// Messages delivers progress and result events in arrival order.
func (c *Client) Messages() <-chan backend.Message {
	return c.messages
}

// objectInfo is the subset of the server's model inventory we care
// about.
type objectInfo struct {
	Upscalers   []string                     `json:"upscale_models"`
	ControlNets map[string]map[string]string `json:"controlnet_models"`
	IPAdapters  map[string]string            `json:"ip_adapter_models"`
	Checkpoints map[string]string            `json:"checkpoints"`
}

// Connect fetches the server's model inventory. Call before handing the
// client to a session so control layers can resolve supportability.
func (c *Client) Connect(ctx context.Context) error {
	var info objectInfo
	if err := c.get(ctx, "/object_info", &info); err != nil {
		return fmt.Errorf("fetch server capabilities: %w", err)
	}

	caps := backend.Capabilities{
		ControlModels:   map[workflow.Mode]map[workflow.Version]string{},
		IPAdapterModels: map[workflow.Version]string{},
		Checkpoints:     map[string]workflow.Version{},
	}
	if len(info.Upscalers) > 0 {
		caps.DefaultUpscaler = info.Upscalers[0]
	}
	for mode, versions := range info.ControlNets {
		m := map[workflow.Version]string{}
		for version, model := range versions {
			m[workflow.Version(version)] = model
		}
		caps.ControlModels[workflow.Mode(mode)] = m
	}
	for version, model := range info.IPAdapters {
		caps.IPAdapterModels[workflow.Version(version)] = model
	}
	for checkpoint, version := range info.Checkpoints {
		caps.Checkpoints[checkpoint] = workflow.Version(version)
	}

	c.mu.Lock()
	c.caps = caps
	c.mu.Unlock()
	return nil
}

// Run polls the server until ctx is cancelled, translating history and
// progress into backend messages. The messages channel is closed on
// return.
func (c *Client) Run(ctx context.Context) {
	defer close(c.messages)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

// historyEntry is one finished prompt in the server's history.
type historyEntry struct {
	Status struct {
		Completed bool   `json:"completed"`
		StatusStr string `json:"status_str"`
		Messages  []any  `json:"messages"`
	} `json:"status"`
	Outputs map[string]struct {
		Images []struct {
			Filename  string `json:"filename"`
			Subfolder string `json:"subfolder"`
		} `json:"images"`
		Result map[string]any `json:"result"`
	} `json:"outputs"`
}

type progressResponse struct {
	Value int `json:"value"`
	Max   int `json:"max"`
}

func (c *Client) poll(ctx context.Context) {
	c.mu.Lock()
	pending := append([]string(nil), c.pending...)
	c.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	// Only the head of the queue can be executing; later prompts stay
	// queued until the server reaches them.
	for i, id := range pending {
		var history map[string]historyEntry
		if err := c.get(ctx, "/history/"+url.PathEscape(id), &history); err != nil {
			c.logger.Error("history poll failed", "prompt_id", id, "error", err)
			return
		}
		entry, done := history[id]
		if !done {
			if i == 0 {
				c.reportProgress(ctx, id)
			}
			continue
		}
		c.finish(ctx, id, entry)
		c.forget(id)
	}
}

func (c *Client) reportProgress(ctx context.Context, id string) {
	var prog progressResponse
	if err := c.get(ctx, "/progress", &prog); err != nil || prog.Max == 0 {
		return
	}
	c.emit(ctx, backend.Message{
		Event:    backend.EventProgress,
		JobID:    id,
		Progress: float64(prog.Value) / float64(prog.Max),
	})
}

func (c *Client) finish(ctx context.Context, id string, entry historyEntry) {
	switch entry.Status.StatusStr {
	case "error":
		c.emit(ctx, backend.Message{
			Event: backend.EventError,
			JobID: id,
			Error: fmt.Sprintf("prompt %s failed", id),
		})
		return
	case "interrupted":
		c.emit(ctx, backend.Message{Event: backend.EventInterrupted, JobID: id})
		return
	}

	msg := backend.Message{Event: backend.EventFinished, JobID: id}
	for _, out := range entry.Outputs {
		for _, ref := range out.Images {
			img, err := c.fetchImage(ctx, ref.Filename, ref.Subfolder)
			if err != nil {
				c.logger.Error("failed to fetch result image",
					"prompt_id", id, "filename", ref.Filename, "error", err)
				continue
			}
			msg.Images = append(msg.Images, img)
		}
		if out.Result != nil && msg.Result == nil {
			msg.Result = out.Result
		}
	}
	c.emit(ctx, msg)
}

// fetchImage downloads one result image from the server's view
// endpoint.
func (c *Client) fetchImage(ctx context.Context, filename, subfolder string) (*imaging.Image, error) {
	q := url.Values{"filename": {filename}, "subfolder": {subfolder}, "type": {"output"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/view?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &imaging.Image{Format: "png", Data: data}, nil
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.pending {
		if p == id {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

func (c *Client) emit(ctx context.Context, msg backend.Message) {
	select {
	case c.messages <- msg:
	case <-ctx.Done():
	}
}

func (c *Client) post(ctx context.Context, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
