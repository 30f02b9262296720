// Package workflow builds backend work requests from document state and
// generation parameters. It owns the mapping from available inputs
// (reference image, selection mask, denoising strength) to the operation
// submitted to the diffusion backend.
package workflow

import (
	"github.com/easelapp/easel-api/internal/imaging"
)

// Version identifies the base diffusion model family a style runs on.
type Version string

const (
	VersionAuto Version = "auto"
	VersionSD15 Version = "sd15"
	VersionSDXL Version = "sdxl"
)

// Style bundles the checkpoint and model-family preference used for a
// generation. Styles are selected by the user; the concrete version is
// resolved against backend capabilities when VersionAuto is set.
type Style struct {
	Name       string  `json:"name"`
	Checkpoint string  `json:"checkpoint"`
	Version    Version `json:"version"`
}

// LiveParams holds the parameters of live-preview generation.
type LiveParams struct {
	IsActive bool
	Strength float64
	Seed     int
}

// DefaultLiveParams returns the live-preview defaults.
func DefaultLiveParams() LiveParams {
	return LiveParams{Strength: 0.3}
}

// MinTileSize is the smallest region edge the backend accepts. Selection
// bounds are enlarged to at least this size before submission.
const MinTileSize = 64

// Operation enumerates the request kinds submitted to the backend.
type Operation string

const (
	OpGenerate           Operation = "generate"
	OpRefine             Operation = "refine"
	OpInpaint            Operation = "inpaint"
	OpRefineRegion       Operation = "refine_region"
	OpUpscaleSimple      Operation = "upscale_simple"
	OpUpscaleTiled       Operation = "upscale_tiled"
	OpCreateControlImage Operation = "create_control_image"
)

// Request is one unit of work for the backend client. Fields are set
// according to the operation; unused fields stay zero.
type Request struct {
	Operation    Operation
	Style        Style
	Extent       imaging.Extent
	Image        *imaging.Image
	Mask         *imaging.Mask
	Conditioning *Conditioning
	Strength     float64
	Live         *LiveParams
	Upscaler     string
	Factor       float64
	ControlMode  Mode
}

// Generate builds a plain text-conditioned generation request.
func Generate(style Style, extent imaging.Extent, cond *Conditioning, live *LiveParams) *Request {
	return &Request{
		Operation:    OpGenerate,
		Style:        style,
		Extent:       extent,
		Conditioning: cond,
		Strength:     1.0,
		Live:         live,
	}
}

// Refine builds an image-to-image request over the whole input image.
func Refine(style Style, image *imaging.Image, cond *Conditioning, strength float64, live *LiveParams) *Request {
	return &Request{
		Operation:    OpRefine,
		Style:        style,
		Image:        image,
		Conditioning: cond,
		Strength:     strength,
		Live:         live,
	}
}

// Inpaint builds a full-strength generation restricted to the mask.
func Inpaint(style Style, image *imaging.Image, mask *imaging.Mask, cond *Conditioning) *Request {
	return &Request{
		Operation:    OpInpaint,
		Style:        style,
		Image:        image,
		Mask:         mask,
		Conditioning: cond,
		Strength:     1.0,
	}
}

// RefineRegion builds an image-to-image request restricted to the mask.
func RefineRegion(style Style, image *imaging.Image, mask *imaging.Mask, cond *Conditioning, strength float64) *Request {
	return &Request{
		Operation:    OpRefineRegion,
		Style:        style,
		Image:        image,
		Mask:         mask,
		Conditioning: cond,
		Strength:     strength,
	}
}

// UpscaleSimple builds a plain upscaler pass.
func UpscaleSimple(image *imaging.Image, upscaler string, factor float64) *Request {
	return &Request{
		Operation: OpUpscaleSimple,
		Image:     image,
		Upscaler:  upscaler,
		Factor:    factor,
	}
}

// UpscaleTiled builds a diffusion-assisted tiled upscale.
func UpscaleTiled(image *imaging.Image, upscaler string, factor float64, style Style, strength float64) *Request {
	return &Request{
		Operation: OpUpscaleTiled,
		Image:     image,
		Upscaler:  upscaler,
		Factor:    factor,
		Style:     style,
		Strength:  strength,
	}
}

// CreateControlImage builds a request that extracts a conditioning image
// (lines, depth, pose keypoints, ...) from the given image.
func CreateControlImage(image *imaging.Image, mode Mode) *Request {
	return &Request{
		Operation:   OpCreateControlImage,
		Image:       image,
		ControlMode: mode,
	}
}

// Build selects the operation for a standard generation dispatch from
// the inputs that are present:
//
//	no image, no mask, strength 1.0  -> generate
//	image, no mask, strength < 1.0   -> refine
//	image, mask, strength 1.0        -> inpaint
//	image, mask, strength < 1.0      -> refine_region
func Build(style Style, bounds imaging.Bounds, cond *Conditioning, image *imaging.Image, mask *imaging.Mask, strength float64) *Request {
	switch {
	case image == nil && mask == nil:
		return Generate(style, bounds.Extent(), cond, nil)
	case mask == nil && strength < 1.0:
		return Refine(style, image, cond, strength, nil)
	case strength == 1.0:
		return Inpaint(style, image, mask, cond)
	default:
		return RefineRegion(style, image, mask, cond, strength)
	}
}

// ComputeBounds returns the document region submitted with a generation.
// Without a mask the whole document is used. With a mask, the mask
// bounds are padded by a context margin proportional to the denoising
// strength and clipped to the document, so low-strength refinements see
// just enough surrounding context.
func ComputeBounds(extent imaging.Extent, maskBounds *imaging.Bounds, strength float64) imaging.Bounds {
	doc := imaging.BoundsOf(extent)
	if maskBounds == nil {
		return doc
	}
	margin := int(strength * 0.25 * float64(max(maskBounds.Width, maskBounds.Height)))
	padded := imaging.Bounds{
		X:      maskBounds.X - margin,
		Y:      maskBounds.Y - margin,
		Width:  maskBounds.Width + 2*margin,
		Height: maskBounds.Height + 2*margin,
	}
	return padded.Clip(doc)
}
