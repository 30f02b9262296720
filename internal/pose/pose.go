// Package pose renders pose keypoints returned by a control-image
// extraction into an SVG document, so poses become editable vector
// layers instead of rasterized skeletons.
package pose

import (
	"fmt"
	"strings"

	"github.com/easelapp/easel-api/internal/imaging"
)

// bone connects two keypoint indices in the COCO-18 layout.
type bone struct{ a, b int }

var bones = []bone{
	{1, 2}, {1, 5}, {2, 3}, {3, 4}, {5, 6}, {6, 7},
	{1, 8}, {8, 9}, {9, 10}, {1, 11}, {11, 12}, {12, 13},
	{1, 0}, {0, 14}, {14, 16}, {0, 15}, {15, 17},
}

const (
	jointRadius   = 4
	strokeWidth   = 4
	minConfidence = 0.1
)

type point struct {
	x, y    float64
	visible bool
}

// FromOpenPose reads an OpenPose result payload: a canvas size plus one
// keypoint triplet list per detected person.
func FromOpenPose(result map[string]any) ([][]point, imaging.Extent, bool) {
	canvas := imaging.Extent{
		Width:  intField(result, "canvas_width"),
		Height: intField(result, "canvas_height"),
	}
	people, ok := result["people"].([]any)
	if !ok || canvas.IsZero() {
		return nil, imaging.Extent{}, false
	}

	var all [][]point
	for _, p := range people {
		person, ok := p.(map[string]any)
		if !ok {
			continue
		}
		raw, ok := person["pose_keypoints_2d"].([]any)
		if !ok {
			continue
		}
		var pts []point
		for i := 0; i+2 < len(raw); i += 3 {
			x := floatValue(raw[i])
			y := floatValue(raw[i+1])
			conf := floatValue(raw[i+2])
			pts = append(pts, point{x: x, y: y, visible: conf >= minConfidence})
		}
		all = append(all, pts)
	}
	if len(all) == 0 {
		return nil, imaging.Extent{}, false
	}
	return all, canvas, true
}

// SVG renders the OpenPose result scaled to the target extent. Returns
// "" when the payload carries no usable keypoints.
func SVG(result map[string]any, target imaging.Extent) string {
	people, canvas, ok := FromOpenPose(result)
	if !ok {
		return ""
	}
	sx := float64(target.Width) / float64(canvas.Width)
	sy := float64(target.Height) / float64(canvas.Height)

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d">`,
		target.Width, target.Height)
	for _, pts := range people {
		for _, bn := range bones {
			if bn.a >= len(pts) || bn.b >= len(pts) {
				continue
			}
			p1, p2 := pts[bn.a], pts[bn.b]
			if !p1.visible || !p2.visible {
				continue
			}
			fmt.Fprintf(&b,
				`<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#00b2ff" stroke-width="%d"/>`,
				p1.x*sx, p1.y*sy, p2.x*sx, p2.y*sy, strokeWidth)
		}
		for _, p := range pts {
			if !p.visible {
				continue
			}
			fmt.Fprintf(&b, `<circle cx="%.1f" cy="%.1f" r="%d" fill="#ff0040"/>`,
				p.x*sx, p.y*sy, jointRadius)
		}
	}
	b.WriteString(`</svg>`)
	return b.String()
}

func intField(m map[string]any, key string) int {
	return int(floatValue(m[key]))
}

func floatValue(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
