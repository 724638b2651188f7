package visualization

import (
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"photostereo/internal/models"
	"photostereo/pkg/linalg"
)

// heatmapRamp runs from low residual to high residual
var heatmapRamp = []colorful.Color{
	{R: 0.05, G: 0.10, B: 0.60},
	{R: 0.00, G: 0.70, B: 0.70},
	{R: 0.95, G: 0.85, B: 0.10},
	{R: 0.85, G: 0.05, B: 0.05},
}

// rampAt blends the ramp colors in HCL space for t in [0, 1]
func rampAt(t float64) colorful.Color {
	if math.IsNaN(t) || t <= 0 {
		return heatmapRamp[0]
	}
	if t >= 1 {
		return heatmapRamp[len(heatmapRamp)-1]
	}
	pos := t * float64(len(heatmapRamp)-1)
	i := int(pos)
	return heatmapRamp[i].BlendHcl(heatmapRamp[i+1], pos-float64(i)).Clamped()
}

// Heatmap colours every selected pixel by its largest displayed residual over
// the channels, normalised by the largest residual in the image. Unselected
// pixels are black.
func (v *Viewer[T]) Heatmap(Idiff linalg.Matrix[T]) (*image.NRGBA, error) {
	errMap, err := v.ReprojectionErrorMap(Idiff)
	if err != nil {
		return nil, err
	}

	numPixels := v.pixels.Len()
	perPixel := make([]float64, numPixels)
	maxErr := 0.0
	for p, idx := range v.pixels.Indices {
		x, y := models.XY(idx, v.pixels.Width)
		for c := 0; c < errMap.Channels; c++ {
			perPixel[p] = math.Max(perPixel[p], errMap.Value(x, y, c))
		}
		maxErr = math.Max(maxErr, perPixel[p])
	}

	img := image.NewNRGBA(image.Rect(0, 0, v.pixels.Width, v.pixels.Height))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	for p, idx := range v.pixels.Indices {
		x, y := models.XY(idx, v.pixels.Width)
		t := 0.0
		if maxErr > 0 {
			t = perPixel[p] / maxErr
		}
		r, g, b := rampAt(t).RGB255()
		img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: 255})
	}
	return img, nil
}
