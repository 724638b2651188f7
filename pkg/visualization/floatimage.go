package visualization

import (
	"image"
	"image/color"
	"math"

	"github.com/mdouchement/hdr/hdrcolor"
)

// FloatImage is an unquantized map of width×height pixels with 1 to 3
// channels, stored in display units (0 to 255 covers the 8-bit range).
// It implements hdr.Image so it can be written as a Radiance file.
type FloatImage struct {
	Width    int
	Height   int
	Channels int
	Pix      []float64
}

// NewFloatImage creates a zeroed map
func NewFloatImage(width, height, channels int) *FloatImage {
	return &FloatImage{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]float64, width*height*channels),
	}
}

// Value returns channel c of pixel (x, y)
func (f *FloatImage) Value(x, y, c int) float64 {
	return f.Pix[(y*f.Width+x)*f.Channels+c]
}

// SetValue sets channel c of pixel (x, y)
func (f *FloatImage) SetValue(x, y, c int, v float64) {
	f.Pix[(y*f.Width+x)*f.Channels+c] = v
}

// Implement image.Image
func (f *FloatImage) ColorModel() color.Model { return hdrcolor.RGBModel }
func (f *FloatImage) Bounds() image.Rectangle { return image.Rect(0, 0, f.Width, f.Height) }
func (f *FloatImage) At(x, y int) color.Color { return f.HDRAt(x, y) }

// Implement hdr.Image. Values are divided by 255 so the 8-bit range maps to
// [0, 1]; a single channel is replicated and a missing blue channel is zero.
func (f *FloatImage) HDRAt(x, y int) hdrcolor.Color {
	var rgb [3]float64
	for c := 0; c < f.Channels; c++ {
		rgb[c] = math.Max(0, f.Value(x, y, c)/255)
	}
	if f.Channels == 1 {
		rgb[1], rgb[2] = rgb[0], rgb[0]
	}
	return hdrcolor.RGB{R: rgb[0], G: rgb[1], B: rgb[2]}
}
func (f *FloatImage) Size() int { return f.Width * f.Height }

// quantize clamps a display value into a byte, truncating like an integer cast
func quantize(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// Quantize converts the map to an 8-bit image: *image.Gray for one channel,
// otherwise *image.NRGBA with unused channels left at zero and opaque alpha
func (f *FloatImage) Quantize() image.Image {
	rect := f.Bounds()
	if f.Channels == 1 {
		img := image.NewGray(rect)
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				img.SetGray(x, y, color.Gray{Y: quantize(f.Value(x, y, 0))})
			}
		}
		return img
	}

	img := image.NewNRGBA(rect)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := img.PixOffset(x, y)
			for c := 0; c < f.Channels; c++ {
				img.Pix[i+c] = quantize(f.Value(x, y, c))
			}
			img.Pix[i+3] = 255
		}
	}
	return img
}
