// Package binner counts values into fixed-width histogram bins.
package binner

import (
	"errors"
	"fmt"
	"math"

	"salesviz/internal/models"
)

// ErrInvalidWidth is returned for a bin width that is not a positive
// finite number.
var ErrInvalidWidth = errors.New("bin width must be positive")

// ErrTooManyBins is returned when the largest value is too far from zero for
// the width, so the histogram would exceed MaxBins.
var ErrTooManyBins = errors.New("too many histogram bins")

// MaxBins bounds the number of bins one histogram may produce.
const MaxBins = 100000

// Result is a histogram plus the values that could not be binned.
type Result struct {
	Bins []models.HistogramBin
	// Rejected counts negative, NaN and infinite values.
	Rejected int
}

// Histogram bins values into contiguous half-open intervals
// [k*width, (k+1)*width) starting at 0. Every bin up to the one holding the
// maximum is emitted, including empty ones. Negative, NaN and infinite values are
// rejected and counted. An input with nothing to bin yields no bins.
func Histogram(values []float64, width float64) (Result, error) {
	if !(width > 0) || math.IsInf(width, 0) {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidWidth, width)
	}

	var res Result
	maxVal := math.Inf(-1)
	accepted := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || v < 0 || math.IsInf(v, 1) {
			res.Rejected++
			continue
		}
		accepted = append(accepted, v)
		if v > maxVal {
			maxVal = v
		}
	}
	if len(accepted) == 0 {
		return res, nil
	}

	// Compared as a float: int() of a huge quotient overflows.
	nf := math.Floor(maxVal/width) + 1
	if nf > MaxBins {
		return Result{}, fmt.Errorf("%w: max %v with width %v needs %.0f bins, limit %d", ErrTooManyBins, maxVal, width, nf, MaxBins)
	}
	n := int(nf)

	res.Bins = make([]models.HistogramBin, n)
	for i := range res.Bins {
		res.Bins[i] = models.HistogramBin{
			LowerBound: float64(i) * width,
			UpperBound: float64(i+1) * width,
		}
	}
	for _, v := range accepted {
		idx := int(math.Floor(v / width))
		if idx >= n {
			idx = n - 1
		}
		res.Bins[idx].Count++
	}
	return res, nil
}
