package reconstruction

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"photostereo/internal/workers"
	"photostereo/pkg/linalg"
)

// NormalAveraging selects how per-channel unit vectors are combined into one
// normal per pixel
type NormalAveraging int

const (
	// AverageChannels divides the sum by the number of channels that contributed
	AverageChannels NormalAveraging = iota
	// AverageFixed always divides the sum by 3, whatever the channel count
	AverageFixed
)

// Solver estimates surface, albedo and normals from assembled observations.
// The zero value uses the full SVD pseudoinverse, channel averaging and a
// single goroutine.
type Solver[T linalg.Float] struct {
	// Mode selects the pseudoinverse algorithm used for L⁺
	Mode linalg.Mode

	// Options overrides the pseudoinverse tolerance; nil uses SVDTolerance[T]
	Options *linalg.Options

	// Averaging selects the normal averaging rule
	Averaging NormalAveraging

	// NumCores bounds the goroutines used by the per-row loops
	NumCores int
}

// DegeneracyThreshold is the norm below which an observation row is treated
// as carrying no signal: machine epsilon of T times IntensityScale
func DegeneracyThreshold[T linalg.Float]() float64 {
	return float64(linalg.Epsilon[T]()) * IntensityScale
}

// isDegenerateRow reports whether row i of I is below DegeneracyThreshold
func isDegenerateRow[T linalg.Float](I linalg.Matrix[T], i int) bool {
	row := I.RawRow(i)
	buf := make([]float64, len(row))
	for k, v := range row {
		buf[k] = float64(v)
	}
	return floats.Norm(buf, 2) < DegeneracyThreshold[T]()
}

// EstimateSurface solves I = S·L for S = I·L⁺. Rows of I whose norm is below
// DegeneracyThreshold produce exactly zero rows in S.
func (s Solver[T]) EstimateSurface(I, L linalg.Matrix[T]) (linalg.Matrix[T], error) {
	rows, n := I.Dims()
	lr, lc := L.Dims()
	if lr != 3 || lc != n {
		return linalg.Matrix[T]{}, fmt.Errorf("light matrix is %dx%d, expected 3x%d: %w", lr, lc, n, linalg.ErrShape)
	}

	Linv, err := linalg.PinvOf(L, s.Mode, s.Options)
	if err != nil {
		return linalg.Matrix[T]{}, fmt.Errorf("pseudoinverse of light matrix: %w", err)
	}

	S := linalg.Mul(I, Linv)

	workers.Range(rows, s.NumCores, func(start, end int) {
		for i := start; i < end; i++ {
			if isDegenerateRow(I, i) {
				row := S.RawRow(i)
				for k := range row {
					row[k] = 0
				}
			}
		}
	})
	return S, nil
}

// EstimateSurfaceAlbedo returns the Euclidean norm of every row of S
func (s Solver[T]) EstimateSurfaceAlbedo(S linalg.Matrix[T]) []T {
	rows, _ := S.Dims()
	R := make([]T, rows)

	workers.Range(rows, s.NumCores, func(start, end int) {
		var buf [3]float64
		for i := start; i < end; i++ {
			row := S.RawRow(i)
			for k := range buf {
				buf[k] = float64(row[k])
			}
			R[i] = T(floats.Norm(buf[:], 2))
		}
	})
	return R
}

// EstimateSurfaceNormal combines the per-channel rows of S into one normal
// per pixel. A pixel whose first-channel albedo R(p) is not positive keeps a
// zero normal, which callers must treat as undefined. Otherwise every channel
// c with a positive albedo contributes S(c*P+p)/R(c*P+p) and the sum is
// divided according to s.Averaging.
func (s Solver[T]) EstimateSurfaceNormal(S linalg.Matrix[T], R []T, numPixels, color int) (linalg.Matrix[T], error) {
	rows, cols := S.Dims()
	if cols != 3 || rows != numPixels*color || len(R) != rows {
		return linalg.Matrix[T]{}, fmt.Errorf("surface is %dx%d with %d albedos, expected %dx3: %w",
			rows, cols, len(R), numPixels*color, linalg.ErrShape)
	}

	N := linalg.NewMatrix[T](numPixels, 3, nil)

	workers.Range(numPixels, s.NumCores, func(start, end int) {
		for p := start; p < end; p++ {
			if !(R[p] > 0) {
				continue
			}

			var sum [3]float64
			contributing := 0
			for c := 0; c < color; c++ {
				row := c*numPixels + p
				if !(R[row] > 0) {
					continue
				}
				inv := 1 / float64(R[row])
				src := S.RawRow(row)
				for k := 0; k < 3; k++ {
					sum[k] += inv * float64(src[k])
				}
				contributing++
			}

			div := 3.0
			if s.Averaging == AverageChannels {
				div = float64(contributing)
			}
			dst := N.RawRow(p)
			for k := 0; k < 3; k++ {
				dst[k] = T(sum[k] / div)
			}
		}
	})
	return N, nil
}

// ComputeErrorLambertian returns the reprojection residual I - S·L
func ComputeErrorLambertian[T linalg.Float](I, S, L linalg.Matrix[T]) (linalg.Matrix[T], error) {
	ir, ic := I.Dims()
	sr, sc := S.Dims()
	lr, lc := L.Dims()
	if sr != ir || sc != lr || lc != ic {
		return linalg.Matrix[T]{}, fmt.Errorf("cannot reproject %dx%d surface with %dx%d lights onto %dx%d observations: %w",
			sr, sc, lr, lc, ir, ic, linalg.ErrShape)
	}
	return linalg.Sub(I, linalg.Mul(S, L)), nil
}

// normalIsDefined reports whether a normal row is non-zero and finite
func normalIsDefined[T linalg.Float](n []T) bool {
	zero := true
	for _, v := range n {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
		if v != 0 {
			zero = false
		}
	}
	return !zero
}
