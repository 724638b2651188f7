package reconstruction

import (
	"image"
	"image/color"

	"photostereo/internal/models"
)

// PixelIndexSet is the ordered set of reconstructed pixels
type PixelIndexSet = models.PixelIndexSet

// NewPixelIndexSet selects every pixel of mask whose first channel (red, or
// the gray value) is at full intensity: 255 for 8-bit masks, 65535 for 16-bit
// masks. The other channels are ignored. Indices are produced in row-major order.
func NewPixelIndexSet(mask image.Image) PixelIndexSet {
	b := mask.Bounds()
	set := PixelIndexSet{Width: b.Dx(), Height: b.Dy()}

	for y := 0; y < set.Height; y++ {
		for x := 0; x < set.Width; x++ {
			px := color.NRGBA64Model.Convert(mask.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			if px.R == 0xffff {
				set.Indices = append(set.Indices, models.Index(x, y, set.Width))
			}
		}
	}
	return set
}
