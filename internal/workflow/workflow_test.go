package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easelapp/easel-api/internal/imaging"
)

func TestBuildSelectsOperation(t *testing.T) {
	style := Style{Name: "test", Version: VersionSD15}
	bounds := imaging.Bounds{Width: 512, Height: 512}
	cond := &Conditioning{Prompt: "a boat"}
	img := &imaging.Image{Extent: bounds.Extent()}
	mask := &imaging.Mask{Bounds: imaging.Bounds{X: 10, Y: 10, Width: 100, Height: 100}}

	tests := []struct {
		name     string
		image    *imaging.Image
		mask     *imaging.Mask
		strength float64
		want     Operation
	}{
		{"no inputs, full strength", nil, nil, 1.0, OpGenerate},
		{"image only, partial strength", img, nil, 0.5, OpRefine},
		{"image and mask, full strength", img, mask, 1.0, OpInpaint},
		{"image and mask, partial strength", img, mask, 0.5, OpRefineRegion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Build(style, bounds, cond, tt.image, tt.mask, tt.strength)
			require.NotNil(t, req)
			assert.Equal(t, tt.want, req.Operation)
			assert.Same(t, cond, req.Conditioning)
		})
	}
}

func TestComputeBoundsWithoutMask(t *testing.T) {
	extent := imaging.Extent{Width: 1024, Height: 768}
	got := ComputeBounds(extent, nil, 1.0)
	assert.Equal(t, imaging.BoundsOf(extent), got)
}

func TestComputeBoundsPadsMaskByStrength(t *testing.T) {
	extent := imaging.Extent{Width: 1024, Height: 768}
	mask := imaging.Bounds{X: 400, Y: 300, Width: 100, Height: 100}

	got := ComputeBounds(extent, &mask, 1.0)
	// 25% of the longer mask side on each side.
	assert.Equal(t, imaging.Bounds{X: 375, Y: 275, Width: 150, Height: 150}, got)

	// Lower strength needs less surrounding context.
	weaker := ComputeBounds(extent, &mask, 0.4)
	assert.Less(t, weaker.Width, got.Width)
	assert.GreaterOrEqual(t, weaker.Width, mask.Width)
}

func TestComputeBoundsClipsToDocument(t *testing.T) {
	extent := imaging.Extent{Width: 512, Height: 512}
	mask := imaging.Bounds{X: 0, Y: 0, Width: 500, Height: 500}

	got := ComputeBounds(extent, &mask, 1.0)
	assert.GreaterOrEqual(t, got.X, 0)
	assert.GreaterOrEqual(t, got.Y, 0)
	assert.LessOrEqual(t, got.X+got.Width, extent.Width)
	assert.LessOrEqual(t, got.Y+got.Height, extent.Height)
}

func TestMinimumSizeGrowsSelection(t *testing.T) {
	within := imaging.Bounds{Width: 512, Height: 512}
	small := imaging.Bounds{X: 200, Y: 200, Width: 10, Height: 20}

	got := small.MinimumSize(MinTileSize, within)
	assert.GreaterOrEqual(t, got.Width, MinTileSize)
	assert.GreaterOrEqual(t, got.Height, MinTileSize)

	// Already large enough: unchanged.
	big := imaging.Bounds{X: 10, Y: 10, Width: 128, Height: 128}
	assert.Equal(t, big, big.MinimumSize(MinTileSize, within))
}

func TestModeFlags(t *testing.T) {
	assert.True(t, ModeScribble.IsLines())
	assert.True(t, ModeCanny.IsLines())
	assert.False(t, ModePose.IsLines())
	assert.False(t, ModeStencil.IsLines())

	assert.False(t, ModeImage.ProducesImage())
	assert.False(t, ModeStencil.ProducesImage())
	assert.True(t, ModePose.ProducesImage())
	assert.True(t, ModeDepth.ProducesImage())
}
