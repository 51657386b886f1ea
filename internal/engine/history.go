package engine

import (
	"math"
	"time"

	"aircon_manager/internal/models"
)

// Outlier rejection only engages once the history is long and noisy enough
// to make a standard deviation meaningful.
const (
	outlierMinSamples  = 5
	outlierMinStddev   = 0.1
	outlierSigmaLimit  = 2.0
	outlierMinSurvivor = 3
)

// projectionRetained is the share of the raw linear projection kept after
// dampening toward the current temperature.
const projectionRetained = 0.4

// AppendSample appends s and evicts the oldest entries beyond capacity.
func AppendSample(h []models.TempSample, s models.TempSample, capacity int) []models.TempSample {
	h = append(h, s)
	if capacity > 0 && len(h) > capacity {
		h = h[len(h)-capacity:]
	}
	return h
}

// RateOfChange fits an ordinary least squares line through the history and
// returns the slope in degrees per minute. Readings further than two standard
// deviations from the mean are dropped first when the series is long and
// spread out enough; if filtering would leave fewer than three points the
// unfiltered series is used. ok is false when fewer than two points remain or
// the timestamps are degenerate.
func RateOfChange(h []models.TempSample) (perMinute float64, ok bool) {
	if len(h) < 2 {
		return 0, false
	}

	samples := h
	if len(h) >= outlierMinSamples {
		if filtered := rejectOutliers(h); len(filtered) >= outlierMinSurvivor {
			samples = filtered
		}
	}
	if len(samples) < 2 {
		return 0, false
	}

	base := samples[0].At
	var sumX, sumY float64
	for _, s := range samples {
		sumX += s.At.Sub(base).Minutes()
		sumY += s.Value
	}
	n := float64(len(samples))
	meanX := sumX / n
	meanY := sumY / n

	var num, den float64
	for _, s := range samples {
		dx := s.At.Sub(base).Minutes() - meanX
		num += dx * (s.Value - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

// rejectOutliers drops samples more than outlierSigmaLimit standard
// deviations from the mean. It returns the input unchanged when the series
// is too flat to judge.
func rejectOutliers(h []models.TempSample) []models.TempSample {
	var sum float64
	for _, s := range h {
		sum += s.Value
	}
	mean := sum / float64(len(h))

	var sq float64
	for _, s := range h {
		d := s.Value - mean
		sq += d * d
	}
	stddev := math.Sqrt(sq / float64(len(h)))
	if stddev <= outlierMinStddev {
		return h
	}

	kept := make([]models.TempSample, 0, len(h))
	for _, s := range h {
		if math.Abs(s.Value-mean) <= outlierSigmaLimit*stddev {
			kept = append(kept, s)
		}
	}
	return kept
}

// Project extrapolates the temperature lookahead minutes out at the given
// rate, then dampens the move toward the current value so a noisy slope
// cannot swing the prediction hard.
func Project(current, ratePerMinute, lookaheadMinutes float64) float64 {
	predicted := current + ratePerMinute*lookaheadMinutes
	return current + (predicted-current)*projectionRetained
}

// StaleAfter reports whether the newest reading is older than maxAge.
func StaleAfter(lastReading time.Time, now time.Time, maxAge time.Duration) bool {
	if lastReading.IsZero() {
		return true
	}
	return now.Sub(lastReading) > maxAge
}

// BlendPredictive mixes the banded speed for the projected deviation into the
// raw speed. weight is clamped to [0,1]; zero leaves the raw speed untouched.
func BlendPredictive(raw, predictive, weight float64) float64 {
	if weight < 0 {
		weight = 0
	}
	if weight > 1 {
		weight = 1
	}
	return clampSpeed(raw*(1-weight) + predictive*weight)
}
