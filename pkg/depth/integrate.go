package depth

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// ErrEmptyField is returned when no pixel of the field is defined
var ErrEmptyField = errors.New("depth: normal field has no defined pixels")

// minNormalZ is the smallest z component for which a normal yields a finite
// surface gradient
const minNormalZ = 1e-3

// Integrate recovers a height map z(x, y) from the normal field with the
// Frankot-Chellappa projection: the gradients p = -nx/nz and q = -ny/nz are
// projected onto the nearest integrable surface in the Fourier domain. x runs
// along image columns and y along image rows. Pixels without a defined normal
// contribute a zero gradient.
//
// The result has zero mean over the masked pixels and is zero outside the mask.
func Integrate(f *NormalField, numCores int) (*HeightMap, error) {
	if f.Width == 0 || f.Height == 0 {
		return nil, fmt.Errorf("depth: empty %dx%d field", f.Width, f.Height)
	}

	size := f.Width * f.Height
	P := make([]complex128, size)
	Q := make([]complex128, size)
	defined := 0
	for i := 0; i < size; i++ {
		if !f.Defined(i) {
			continue
		}
		n := f.Normals[i]
		if n[2] < minNormalZ {
			continue
		}
		P[i] = complex(-n[0]/n[2], 0)
		Q[i] = complex(-n[1]/n[2], 0)
		defined++
	}
	if defined == 0 {
		return nil, ErrEmptyField
	}

	fft2D(P, f.Width, f.Height, false, numCores)
	fft2D(Q, f.Width, f.Height, false, numCores)

	freqX := fourier.NewCmplxFFT(f.Width)
	freqY := fourier.NewCmplxFFT(f.Height)
	Z := make([]complex128, size)
	for v := 0; v < f.Height; v++ {
		wy := 2 * math.Pi * freqY.Freq(v)
		for u := 0; u < f.Width; u++ {
			wx := 2 * math.Pi * freqX.Freq(u)
			den := wx*wx + wy*wy
			if den == 0 {
				continue
			}
			i := v*f.Width + u
			Z[i] = (complex(0, -wx)*P[i] + complex(0, -wy)*Q[i]) / complex(den, 0)
		}
	}

	fft2D(Z, f.Width, f.Height, true, numCores)

	h := &HeightMap{
		Width:  f.Width,
		Height: f.Height,
		Z:      make([]float64, size),
		Mask:   append([]bool(nil), f.Mask...),
	}

	mean, count := 0.0, 0
	for i, m := range h.Mask {
		if m {
			mean += real(Z[i])
			count++
		}
	}
	if count > 0 {
		mean /= float64(count)
	}
	for i, m := range h.Mask {
		if m {
			h.Z[i] = real(Z[i]) - mean
		}
	}
	return h, nil
}
