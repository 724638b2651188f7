// Package depth integrates a surface normal field into a height map.
package depth

import (
	"image"
	"image/color"
	"math"

	"photostereo/internal/models"
	"photostereo/pkg/linalg"
)

// NormalField is a dense width×height grid of normals. Mask marks the
// reconstructed pixels; a masked pixel with a zero normal is undefined.
type NormalField struct {
	Width   int
	Height  int
	Normals []models.Vec3
	Mask    []bool
}

// NewNormalField scatters a pixel-indexed normal matrix onto the mask raster
func NewNormalField[T linalg.Float](N linalg.Matrix[T], pixels models.PixelIndexSet) *NormalField {
	f := &NormalField{
		Width:   pixels.Width,
		Height:  pixels.Height,
		Normals: make([]models.Vec3, pixels.Width*pixels.Height),
		Mask:    make([]bool, pixels.Width*pixels.Height),
	}
	for p, idx := range pixels.Indices {
		row := N.RawRow(p)
		f.Normals[idx] = models.Vec3{float64(row[0]), float64(row[1]), float64(row[2])}
		f.Mask[idx] = true
	}
	return f
}

// Defined reports whether pixel i is masked and has a usable normal
func (f *NormalField) Defined(i int) bool {
	if !f.Mask[i] {
		return false
	}
	n := f.Normals[i].Norm()
	return n > 0 && !math.IsNaN(n) && !math.IsInf(n, 0)
}

// HeightMap is a dense width×height grid of heights; unmasked pixels are zero
type HeightMap struct {
	Width  int
	Height int
	Z      []float64
	Mask   []bool
}

// At returns the height of pixel (x, y)
func (h *HeightMap) At(x, y int) float64 { return h.Z[models.Index(x, y, h.Width)] }

// Image renders the masked heights into a 16-bit grayscale image, stretching
// the observed range to the full scale. Unmasked pixels are black.
func (h *HeightMap) Image() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, h.Width, h.Height))

	lo, hi := math.Inf(1), math.Inf(-1)
	for i, z := range h.Z {
		if h.Mask[i] {
			lo = math.Min(lo, z)
			hi = math.Max(hi, z)
		}
	}
	span := hi - lo

	for i, z := range h.Z {
		if !h.Mask[i] {
			continue
		}
		v := 0.5
		if span > 0 {
			v = (z - lo) / span
		}
		x, y := models.XY(i, h.Width)
		img.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(v * 0xffff))})
	}
	return img
}
