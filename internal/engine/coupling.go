package engine

import (
	"math"
	"time"

	"aircon_manager/internal/models"
)

// Coupling detection thresholds.
const (
	CouplingMinOverlap  = 50
	couplingCorrelation = 0.5
)

// Pearson returns the sample correlation coefficient of two equally long
// series, using n-1 divisors for both the covariance and the standard
// deviations. ok is false for fewer than two pairs or a flat series.
func Pearson(a, b []float64) (r float64, ok bool) {
	n := len(a)
	if n != len(b) || n < 2 {
		return 0, false
	}

	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA := sumA / float64(n)
	meanB := sumB / float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	div := float64(n - 1)
	cov /= div
	sdA := math.Sqrt(varA / div)
	sdB := math.Sqrt(varB / div)
	if sdA == 0 || sdB == 0 {
		return 0, false
	}
	return cov / (sdA * sdB), true
}

// AlignSeries pairs samples from two histories whose timestamps fall within
// tolerance of each other. Both inputs must be in chronological order. Each
// sample matches at most once.
func AlignSeries(x, y []models.TempSample, tolerance time.Duration) (ax, by []float64) {
	i, j := 0, 0
	for i < len(x) && j < len(y) {
		d := x[i].At.Sub(y[j].At)
		switch {
		case d < -tolerance:
			i++
		case d > tolerance:
			j++
		default:
			ax = append(ax, x[i].Value)
			by = append(by, y[j].Value)
			i++
			j++
		}
	}
	return ax, by
}

// CouplingFactor correlates two aligned temperature series and maps the
// result to a factor in [0,1]. Pairs with fewer than CouplingMinOverlap
// shared samples, or a correlation at or below the detection threshold,
// are not coupled.
func CouplingFactor(x, y []models.TempSample, tolerance time.Duration) (factor float64, coupled bool) {
	ax, by := AlignSeries(x, y, tolerance)
	if len(ax) < CouplingMinOverlap {
		return 0, false
	}
	r, ok := Pearson(ax, by)
	if !ok || r <= couplingCorrelation {
		return 0, false
	}
	factor = (r - couplingCorrelation) / (1 - couplingCorrelation)
	if factor > 1 {
		factor = 1
	}
	return factor, true
}
