// Package imaging defines the geometry and image-handle value types shared
// by the job queue, the workflow builders and the document interface.
//
// Images are opaque payloads: this service routes encoded image bytes
// between the diffusion backend and the host document but never decodes
// or manipulates pixels.
package imaging

// Extent is a width/height pair in pixels.
type Extent struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsZero reports whether the extent has no area.
func (e Extent) IsZero() bool {
	return e.Width <= 0 || e.Height <= 0
}

// Scale returns the extent multiplied by factor, rounded down.
func (e Extent) Scale(factor float64) Extent {
	return Extent{
		Width:  int(float64(e.Width) * factor),
		Height: int(float64(e.Height) * factor),
	}
}

// Bounds is a rectangular region: an offset plus an extent.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BoundsOf returns bounds anchored at the origin covering e.
func BoundsOf(e Extent) Bounds {
	return Bounds{Width: e.Width, Height: e.Height}
}

// Extent returns the bounds' size without its offset.
func (b Bounds) Extent() Extent {
	return Extent{Width: b.Width, Height: b.Height}
}

// IsEmpty reports whether the bounds cover no area.
func (b Bounds) IsEmpty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Union returns the smallest bounds covering both a and b.
func Union(a, b Bounds) Bounds {
	if a.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return a
	}
	x0 := min(a.X, b.X)
	y0 := min(a.Y, b.Y)
	x1 := max(a.X+a.Width, b.X+b.Width)
	y1 := max(a.Y+a.Height, b.Y+b.Height)
	return Bounds{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Clip returns b cropped to the area of within.
func (b Bounds) Clip(within Bounds) Bounds {
	x0 := max(b.X, within.X)
	y0 := max(b.Y, within.Y)
	x1 := min(b.X+b.Width, within.X+within.Width)
	y1 := min(b.Y+b.Height, within.Y+within.Height)
	if x1 <= x0 || y1 <= y0 {
		return Bounds{X: x0, Y: y0}
	}
	return Bounds{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// MinimumSize grows b symmetrically until both sides are at least
// minSize, then clips the result to within. The backend rejects regions
// below its minimum tile size, so selection bounds are enlarged before
// submission.
func (b Bounds) MinimumSize(minSize int, within Bounds) Bounds {
	out := b
	if out.Width < minSize {
		out.X -= (minSize - out.Width) / 2
		out.Width = minSize
	}
	if out.Height < minSize {
		out.Y -= (minSize - out.Height) / 2
		out.Height = minSize
	}
	return out.Clip(within)
}

// Relative returns b expressed in the coordinate space of origin.
func (b Bounds) Relative(origin Bounds) Bounds {
	return Bounds{X: b.X - origin.X, Y: b.Y - origin.Y, Width: b.Width, Height: b.Height}
}

// Image is an opaque encoded image payload with its pixel extent.
type Image struct {
	Extent Extent
	Format string
	Data   []byte
}

// SizeBytes returns the encoded payload size. Memory accounting for
// the job history budget is based on this value.
func (i *Image) SizeBytes() int64 {
	if i == nil {
		return 0
	}
	return int64(len(i.Data))
}

// ImageSet is an ordered sequence of result images for one job.
type ImageSet []*Image

// SizeBytes returns the combined payload size of all images in the set.
func (s ImageSet) SizeBytes() int64 {
	var total int64
	for _, img := range s {
		total += img.SizeBytes()
	}
	return total
}

// Mask is an opaque selection mask restricted to a region of the
// document.
type Mask struct {
	Bounds Bounds
	Data   []byte
}
