package depth

import (
	"gonum.org/v1/gonum/dsp/fourier"

	"photostereo/internal/workers"
)

// fft2D transforms a row-major width×height grid in place. With inverse set
// the backward transform is applied and the result divided by width*height,
// so fft2D(fft2D(x), inverse) == x.
//
// Rows and columns are transformed in parallel; every goroutine owns its own
// fourier.CmplxFFT since those keep internal work buffers.
func fft2D(data []complex128, width, height int, inverse bool, numCores int) {
	workers.Range(height, numCores, func(start, end int) {
		fft := fourier.NewCmplxFFT(width)
		row := make([]complex128, width)
		for y := start; y < end; y++ {
			copy(row, data[y*width:(y+1)*width])
			if inverse {
				fft.Sequence(row, row)
			} else {
				fft.Coefficients(row, row)
			}
			copy(data[y*width:(y+1)*width], row)
		}
	})

	workers.Range(width, numCores, func(start, end int) {
		fft := fourier.NewCmplxFFT(height)
		col := make([]complex128, height)
		for x := start; x < end; x++ {
			for y := 0; y < height; y++ {
				col[y] = data[y*width+x]
			}
			if inverse {
				fft.Sequence(col, col)
			} else {
				fft.Coefficients(col, col)
			}
			for y := 0; y < height; y++ {
				data[y*width+x] = col[y]
			}
		}
	})

	if inverse {
		scale := complex(1/float64(width*height), 0)
		for i := range data {
			data[i] *= scale
		}
	}
}
