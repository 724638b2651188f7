package reconstruction

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// IntensityScale is the full-scale value of the intensity convention used
// for observations. 16-bit inputs are scaled down into this range.
const IntensityScale = 255.0

// loadImage decodes a PNG, JPEG, TIFF or BMP file
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, invalidInput("%v", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, invalidInput("failed to decode %s: %v", path, err)
	}

	return img, nil
}

// channelReader returns a function giving the intensity of channel c (0 R,
// 1 G, 2 B) at a pixel in the 0..IntensityScale range. Single channel images
// report the same value for every channel. Intensities are read without alpha
// premultiplication, whatever the bit depth of the image.
func channelReader(img image.Image) func(x, y, c int) float64 {
	b := img.Bounds()
	switch m := img.(type) {
	case *image.Gray:
		return func(x, y, _ int) float64 {
			return float64(m.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
		}
	case *image.NRGBA:
		return func(x, y, c int) float64 {
			i := m.PixOffset(b.Min.X+x, b.Min.Y+y)
			return float64(m.Pix[i+c])
		}
	default:
		return func(x, y, c int) float64 {
			px := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			v := [3]uint16{px.R, px.G, px.B}
			return float64(v[c]) * IntensityScale / 0xffff
		}
	}
}

// LoadAvailablePixels reads a mask image and returns the indices of every
// pixel at full intensity, together with the mask dimensions
func LoadAvailablePixels(path string) (PixelIndexSet, error) {
	img, err := loadImage(path)
	if err != nil {
		return PixelIndexSet{}, fmt.Errorf("failed to load mask: %w", err)
	}

	set := NewPixelIndexSet(img)
	if set.Len() == 0 {
		return set, invalidInput("mask %s selects no pixels", path)
	}
	return set, nil
}
