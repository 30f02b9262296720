package session

// Workspace selects which dispatch mode the session is in.
type Workspace string

const (
	WorkspaceGeneration Workspace = "generation"
	WorkspaceUpscaling  Workspace = "upscaling"
	WorkspaceLive       Workspace = "live"
)

// UpscaleParams are the parameters of an upscale dispatch. A plain
// parameter bag owned by the session.
type UpscaleParams struct {
	Upscaler     string
	Factor       float64
	UseDiffusion bool
	Strength     float64
}

// DefaultUpscaleParams returns the upscale defaults. The upscaler model
// is filled from backend capabilities when empty at dispatch time.
func DefaultUpscaleParams() UpscaleParams {
	return UpscaleParams{
		Factor:       2.0,
		UseDiffusion: true,
		Strength:     0.3,
	}
}
