package reconstruction

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"photostereo/pkg/linalg"
)

// histogramBins is the number of bins of the |residual| histogram
const histogramBins = 10

// ResidualMetrics summarises the reprojection residual of a reconstruction.
// Residuals of degenerate rows are excluded from every statistic.
type ResidualMetrics struct {
	// RMSE is the root mean square residual over all rows and images
	RMSE float64 `yaml:"rmse"`

	// MeanAbs is the mean absolute residual
	MeanAbs float64 `yaml:"meanAbs"`

	// MaxAbs is the largest absolute residual
	MaxAbs float64 `yaml:"maxAbs"`

	// StdDev is the standard deviation of the signed residual
	StdDev float64 `yaml:"stdDev"`

	// P95 is the 95th percentile of the absolute residual
	P95 float64 `yaml:"p95"`

	// ChannelRMSE holds the RMSE of each color channel
	ChannelRMSE []float64 `yaml:"channelRMSE"`

	// Pixels is the number of reconstructed pixels
	Pixels int `yaml:"pixels"`

	// DegenerateRows counts observation rows treated as carrying no signal
	DegenerateRows int `yaml:"degenerateRows"`

	// UndefinedNormals counts pixels left with a zero normal
	UndefinedNormals int `yaml:"undefinedNormals"`

	// Histogram of the absolute residual
	Histogram struct {
		Dividers []float64 `yaml:"dividers"`
		Counts   []float64 `yaml:"counts"`
	} `yaml:"histogram"`
}

// ComputeResidualMetrics gathers statistics of the residual Idiff for a
// reconstruction of numPixels pixels in color channels
func ComputeResidualMetrics[T linalg.Float](I, Idiff, N linalg.Matrix[T], numPixels, color int) ResidualMetrics {
	var m ResidualMetrics
	m.Pixels = numPixels
	m.ChannelRMSE = make([]float64, color)

	rows, cols := Idiff.Dims()
	signed := make([]float64, 0, rows*cols)
	channelSq := make([]float64, color)
	channelCount := make([]int, color)

	for i := 0; i < rows; i++ {
		if isDegenerateRow(I, i) {
			m.DegenerateRows++
			continue
		}
		c := i / numPixels
		for _, v := range Idiff.RawRow(i) {
			f := float64(v)
			signed = append(signed, f)
			channelSq[c] += f * f
			channelCount[c]++
		}
	}

	for c := range channelSq {
		if channelCount[c] > 0 {
			m.ChannelRMSE[c] = math.Sqrt(channelSq[c] / float64(channelCount[c]))
		}
	}

	for p := 0; p < numPixels; p++ {
		if !normalIsDefined(N.RawRow(p)) {
			m.UndefinedNormals++
		}
	}

	if len(signed) == 0 {
		m.Histogram.Dividers = floats.Span(make([]float64, histogramBins+1), 0, 1)
		m.Histogram.Counts = make([]float64, histogramBins)
		return m
	}

	abs := make([]float64, len(signed))
	sumSq := 0.0
	for i, v := range signed {
		abs[i] = math.Abs(v)
		sumSq += v * v
	}
	sort.Float64s(abs)

	m.RMSE = math.Sqrt(sumSq / float64(len(signed)))
	m.MeanAbs = stat.Mean(abs, nil)
	m.MaxAbs = floats.Max(abs)
	if len(signed) > 1 {
		m.StdDev = stat.StdDev(signed, nil)
	}
	m.P95 = stat.Quantile(0.95, stat.Empirical, abs, nil)

	upper := math.Nextafter(m.MaxAbs, math.Inf(1))
	if m.MaxAbs == 0 {
		upper = 1
	}
	m.Histogram.Dividers = floats.Span(make([]float64, histogramBins+1), 0, upper)
	m.Histogram.Counts = stat.Histogram(nil, m.Histogram.Dividers, abs, nil)

	return m
}
