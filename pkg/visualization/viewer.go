// Package visualization turns the pixel-indexed results of a reconstruction
// back into dense images and writes them to disk.
package visualization

import (
	"fmt"
	"math"

	"photostereo/internal/models"
	"photostereo/internal/workers"
	"photostereo/pkg/linalg"
)

// AlbedoMapping selects how albedo values are mapped to display values
type AlbedoMapping int

const (
	// AlbedoAffine applies 255*(R+1)/2, the same formula as the normal map
	AlbedoAffine AlbedoMapping = iota
	// AlbedoMinMax stretches the observed albedo range to [0, 255]
	AlbedoMinMax
)

// ResidualMode selects which residual is shown for each pixel and channel
type ResidualMode int

const (
	// ResidualDiagonal shows |Idiff(c*P+p, c)|: the residual of image c for
	// channel c. Channels without a matching image (c >= N) are zero.
	ResidualDiagonal ResidualMode = iota
	// ResidualMaxAbs shows the largest |Idiff| over all images
	ResidualMaxAbs
)

// Viewer maps pixel-indexed vectors of one reconstruction back onto the
// mask's raster using the same (index % width, index / width) mapping as
// observation assembly
type Viewer[T linalg.Float] struct {
	pixels models.PixelIndexSet
	color  int

	// AlbedoMapping used by AlbedoMap
	AlbedoMapping AlbedoMapping

	// ResidualMode used by ReprojectionErrorMap and Heatmap
	ResidualMode ResidualMode

	// NumCores bounds the goroutines used to fill maps
	NumCores int
}

// NewViewer creates a viewer for a reconstruction of the given pixels in color channels
func NewViewer[T linalg.Float](pixels models.PixelIndexSet, color int) *Viewer[T] {
	return &Viewer[T]{pixels: pixels, color: color, NumCores: 1}
}

// scatter fills a map by evaluating value for every selected pixel p and
// channel c; unselected pixels stay zero
func (v *Viewer[T]) scatter(channels int, value func(p, c int) float64) *FloatImage {
	img := NewFloatImage(v.pixels.Width, v.pixels.Height, channels)
	workers.Range(v.pixels.Len(), v.NumCores, func(start, end int) {
		for p := start; p < end; p++ {
			x, y := models.XY(v.pixels.Indices[p], v.pixels.Width)
			for c := 0; c < channels; c++ {
				img.SetValue(x, y, c, value(p, c))
			}
		}
	})
	return img
}

// NormalMap maps each normal component from [-1, 1] to [0, 255] with 255*(n+1)/2
func (v *Viewer[T]) NormalMap(N linalg.Matrix[T]) (*FloatImage, error) {
	if r, c := N.Dims(); r != v.pixels.Len() || c != 3 {
		return nil, fmt.Errorf("normal field is %dx%d, expected %dx3: %w", r, c, v.pixels.Len(), linalg.ErrShape)
	}
	return v.scatter(3, func(p, c int) float64 {
		return 255 * (float64(N.At(p, c)) + 1) / 2
	}), nil
}

// AlbedoMap maps the albedo of every pixel and channel according to v.AlbedoMapping
func (v *Viewer[T]) AlbedoMap(R []T) (*FloatImage, error) {
	numPixels := v.pixels.Len()
	if len(R) != numPixels*v.color {
		return nil, fmt.Errorf("albedo has %d entries, expected %d: %w", len(R), numPixels*v.color, linalg.ErrShape)
	}

	mapping := func(r float64) float64 { return 255 * (r + 1) / 2 }
	if v.AlbedoMapping == AlbedoMinMax {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, r := range R {
			lo = math.Min(lo, float64(r))
			hi = math.Max(hi, float64(r))
		}
		span := hi - lo
		mapping = func(r float64) float64 {
			if span <= 0 {
				return 0
			}
			return 255 * (r - lo) / span
		}
	}

	return v.scatter(v.color, func(p, c int) float64 {
		return mapping(float64(R[c*numPixels+p]))
	}), nil
}

// residualAt returns the displayed residual of pixel p in channel c
func (v *Viewer[T]) residualAt(Idiff linalg.Matrix[T], p, c int) float64 {
	row := Idiff.RawRow(c*v.pixels.Len() + p)
	if v.ResidualMode == ResidualMaxAbs {
		m := 0.0
		for _, r := range row {
			m = math.Max(m, math.Abs(float64(r)))
		}
		return m
	}
	if c >= len(row) {
		return 0
	}
	return math.Abs(float64(row[c]))
}

// ReprojectionErrorMap shows the absolute residual of every pixel and
// channel according to v.ResidualMode
func (v *Viewer[T]) ReprojectionErrorMap(Idiff linalg.Matrix[T]) (*FloatImage, error) {
	if r, _ := Idiff.Dims(); r != v.pixels.Len()*v.color {
		return nil, fmt.Errorf("residual has %d rows, expected %d: %w", r, v.pixels.Len()*v.color, linalg.ErrShape)
	}
	return v.scatter(v.color, func(p, c int) float64 {
		return v.residualAt(Idiff, p, c)
	}), nil
}
