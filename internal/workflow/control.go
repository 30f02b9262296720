package workflow

import "github.com/easelapp/easel-api/internal/imaging"

// Mode enumerates the control conditioning types a control layer can
// supply.
type Mode string

const (
	ModeImage        Mode = "image"
	ModeScribble     Mode = "scribble"
	ModeLineArt      Mode = "line_art"
	ModeSoftEdge     Mode = "soft_edge"
	ModeCanny        Mode = "canny"
	ModeDepth        Mode = "depth"
	ModeNormal       Mode = "normal"
	ModePose         Mode = "pose"
	ModeSegmentation Mode = "segmentation"
	ModeBlur         Mode = "blur"
	ModeStencil      Mode = "stencil"
)

// Text returns the mode's display name, used in generated layer and job
// names.
func (m Mode) Text() string {
	switch m {
	case ModeImage:
		return "Image"
	case ModeScribble:
		return "Scribble"
	case ModeLineArt:
		return "Line Art"
	case ModeSoftEdge:
		return "Soft Edge"
	case ModeCanny:
		return "Canny Edge"
	case ModeDepth:
		return "Depth"
	case ModeNormal:
		return "Normal Map"
	case ModePose:
		return "Pose"
	case ModeSegmentation:
		return "Segmentation"
	case ModeBlur:
		return "Blur"
	case ModeStencil:
		return "Stencil"
	}
	return string(m)
}

// IsLines reports whether the mode produces a line extraction. Line and
// stencil captures are requested with an opaque white background since
// transparency would be read as black by the extractor.
func (m Mode) IsLines() bool {
	switch m {
	case ModeScribble, ModeLineArt, ModeSoftEdge, ModeCanny:
		return true
	}
	return false
}

// ProducesImage reports whether generating from this mode yields a
// standalone derived image. Image reference and stencil modes condition
// a generation but have nothing to generate on their own.
func (m Mode) ProducesImage() bool {
	return m != ModeImage && m != ModeStencil
}

// Control is one conditioning input attached to a generation request:
// the mode, the captured layer image and its weighting.
type Control struct {
	Mode     Mode
	Image    *imaging.Image
	Strength float64
	End      float64
}

// Conditioning is the full guidance for one generation: prompt text and
// the set of control inputs. Area restricts attention to the selection
// bounds when generating at full strength.
type Conditioning struct {
	Prompt         string
	NegativePrompt string
	Control        []Control
	Area           *imaging.Bounds
}
