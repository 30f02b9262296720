package api

// GenerateRequest carries the parameters of a generation dispatch. The
// mask, when any, comes from the document's current selection; only the
// conditioning inputs travel over the API.
type GenerateRequest struct {
	Prompt         string   `json:"prompt"          validate:"max=4000"`
	NegativePrompt string   `json:"negative_prompt" validate:"max=4000"`
	Strength       *float64 `json:"strength"        validate:"omitempty,gt=0,lte=1"`
}

// UpscaleRequest carries the parameters of an upscale dispatch.
type UpscaleRequest struct {
	Factor       *float64 `json:"factor"        validate:"omitempty,gt=1,lte=4"`
	UseDiffusion *bool    `json:"use_diffusion"`
	Strength     *float64 `json:"strength"      validate:"omitempty,gt=0,lte=1"`
}

// LiveRequest carries the parameters of a live-preview pass.
type LiveRequest struct {
	Prompt   string   `json:"prompt"   validate:"max=4000"`
	Strength *float64 `json:"strength" validate:"omitempty,gt=0,lte=1"`
}

// CancelRequest selects which jobs to cancel.
type CancelRequest struct {
	Active bool `json:"active"`
	Queued bool `json:"queued"`
}

// SelectResultRequest picks one result image of a finished job for preview.
type SelectResultRequest struct {
	Index int `json:"index" validate:"gte=0"`
}

// WorkspaceRequest switches the session's workspace mode.
type WorkspaceRequest struct {
	Workspace string `json:"workspace" validate:"required,oneof=generation upscaling live"`
}

// ControlLayerCreateRequest adds a control layer bound to the active
// document layer. Mode defaults to the last used one when omitted.
type ControlLayerCreateRequest struct {
	Mode string `json:"mode" validate:"omitempty,oneof=image scribble line_art soft_edge canny depth normal pose segmentation blur stencil"`
}

// ControlLayerUpdateRequest mutates a control layer. Nil fields are left
// unchanged.
type ControlLayerUpdateRequest struct {
	Mode     *string  `json:"mode"     validate:"omitempty,oneof=image scribble line_art soft_edge canny depth normal pose segmentation blur stencil"`
	Strength *float64 `json:"strength" validate:"omitempty,gte=0,lte=1"`
	End      *float64 `json:"end"      validate:"omitempty,gte=0,lte=1"`
}

// SettingUpdateRequest sets one settings key.
type SettingUpdateRequest struct {
	Key   string      `json:"key"   validate:"required"`
	Value interface{} `json:"value" validate:"required"`
}

// DispatchResponse acknowledges an accepted dispatch.
type DispatchResponse struct {
	Accepted bool `json:"accepted"`
}

// JobResponse describes one queue entry.
type JobResponse struct {
	ID          string `json:"id,omitempty"`
	Kind        string `json:"kind"`
	State       string `json:"state"`
	Prompt      string `json:"prompt,omitempty"`
	ResultCount int    `json:"result_count"`
}

// JobListResponse is the queue in submission order plus the current
// selection.
type JobListResponse struct {
	Jobs          []JobResponse `json:"jobs"`
	SelectedJobID string        `json:"selected_job_id,omitempty"`
	SelectedIndex int           `json:"selected_index"`
	MemoryUsedMB  float64       `json:"memory_used_mb"`
}

// ControlLayerResponse describes one control layer.
type ControlLayerResponse struct {
	Index        int     `json:"index"`
	Mode         string  `json:"mode"`
	LayerID      string  `json:"layer_id"`
	Strength     float64 `json:"strength"`
	End          float64 `json:"end"`
	Supported    bool    `json:"supported"`
	CanGenerate  bool    `json:"can_generate"`
	HasActiveJob bool    `json:"has_active_job"`
	IsPoseVector bool    `json:"is_pose_vector"`
	ShowEnd      bool    `json:"show_end"`
	Error        string  `json:"error,omitempty"`
}

// StatusResponse is the session's observable state.
type StatusResponse struct {
	Connection    string  `json:"connection"`
	Workspace     string  `json:"workspace"`
	Progress      float64 `json:"progress"`
	Error         string  `json:"error,omitempty"`
	CanApply      bool    `json:"can_apply"`
	Executing     bool    `json:"executing"`
	HasLiveResult bool    `json:"has_live_result"`
	QueueLength   int     `json:"queue_length"`
}
