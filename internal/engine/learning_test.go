package engine_test

import (
	"testing"
	"time"

	"aircon_manager/internal/engine"
	"aircon_manager/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func performanceSeries(start time.Time, n int, temp func(i int) float64, fan float64, target float64) []engine.PerformanceSample {
	out := make([]engine.PerformanceSample, n)
	for i := 0; i < n; i++ {
		out[i] = engine.PerformanceSample{
			At:       start.Add(time.Duration(i) * time.Minute),
			Temp:     temp(i),
			Target:   target,
			FanSpeed: fan,
		}
	}
	return out
}

func TestTracker_CapsSampleBuffer(t *testing.T) {
	t.Parallel()

	tr := engine.NewTracker()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < models.ProfileSampleLimit+5; i++ {
		tr.Record("living", engine.PerformanceSample{At: start.Add(time.Duration(i) * time.Minute), Temp: 22, Target: 22, FanSpeed: 50})
	}

	assert.Equal(t, models.ProfileSampleLimit, tr.SampleCount("living"))
	samples := tr.Samples("living")
	assert.Equal(t, start.Add(5*time.Minute), samples[0].At, "the oldest five should be evicted")
}

func TestTracker_OvershootWindowRolls(t *testing.T) {
	t.Parallel()

	tr := engine.NewTracker()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	tr.RecordOvershoot("living", now.Add(-25*time.Hour))
	tr.RecordOvershoot("living", now.Add(-1*time.Hour))
	tr.RecordOvershoot("living", now)

	assert.Len(t, tr.Overshoots("living"), 2, "the day-old event ages out")
}

func TestTracker_DropRoomAndReset(t *testing.T) {
	t.Parallel()

	tr := engine.NewTracker()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	tr.Record("living", engine.PerformanceSample{At: now, Temp: 23, Target: 22, FanSpeed: 40})
	tr.Record("bedroom", engine.PerformanceSample{At: now, Temp: 21, Target: 22, FanSpeed: 40})

	tr.DropRoom("living")
	assert.Zero(t, tr.SampleCount("living"))
	assert.Equal(t, 1, tr.SampleCount("bedroom"))

	tr.Reset()
	assert.Zero(t, tr.SampleCount("bedroom"))
	assert.Empty(t, tr.Rooms())
}

func TestAnalyze_ThermalMassFromStableWindows(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Fan held at 50 while the room drifts 0.05°C a minute: a slow, heavy room.
	samples := performanceSeries(start, 60, func(i int) float64 { return 25 - 0.05*float64(i) }, 50, 22)

	a := engine.Analyze(samples, nil, start.Add(time.Hour), models.ModeCool)
	require.True(t, a.HasThermalMass)
	assert.InDelta(t, 0.95, a.ThermalMass, 0.01)
}

func TestAnalyze_ThermalMassNeedsData(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	samples := performanceSeries(start, 20, func(i int) float64 { return 25 }, 50, 22)

	a := engine.Analyze(samples, nil, start.Add(time.Hour), models.ModeCool)
	assert.False(t, a.HasThermalMass)
}

func TestAnalyze_EfficiencyFromFanResponse(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Each minute at fan 50 pulls the room 0.2°C toward target:
	// 0.2 / 0.5 fan fraction = 0.4°C/min per unit, 0.8 of the full rate.
	samples := performanceSeries(start, 15, func(i int) float64 { return 26 - 0.2*float64(i) }, 50, 22)

	a := engine.Analyze(samples, nil, start.Add(time.Hour), models.ModeCool)
	require.True(t, a.HasEfficiency)
	assert.InDelta(t, 0.8, a.Efficiency, 1e-9)
}

func TestAnalyze_EfficiencyIgnoresIdleFan(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	samples := performanceSeries(start, 15, func(i int) float64 { return 26 - 0.2*float64(i) }, 20, 22)

	a := engine.Analyze(samples, nil, start.Add(time.Hour), models.ModeCool)
	assert.False(t, a.HasEfficiency, "drift with the fan nearly off says nothing about efficiency")
}

func TestAnalyze_ConvergenceFromApproachRate(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Deviation closes 0.1°C a minute: half a degree takes 300 seconds.
	samples := performanceSeries(start, 10, func(i int) float64 { return 24 - 0.1*float64(i) }, 60, 22)

	a := engine.Analyze(samples, nil, start.Add(time.Hour), models.ModeCool)
	require.True(t, a.HasConvergence)
	assert.InDelta(t, 300.0, a.ConvergenceRate, 1e-6)
}

func TestAnalyze_OvershootsPerDay(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	events := []time.Time{now.Add(-30 * time.Hour), now.Add(-3 * time.Hour), now.Add(-1 * time.Hour)}

	a := engine.Analyze(nil, events, now, models.ModeCool)
	assert.InDelta(t, 2.0, a.OvershootPerDay, 1e-9)
}

func TestAnalyze_BiasFromSystematicDeviation(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// The room runs a steady degree hot: it deserves standing extra air.
	samples := performanceSeries(start, 12, func(i int) float64 { return 23 }, 50, 22)

	a := engine.Analyze(samples, nil, start.Add(time.Hour), models.ModeCool)
	require.True(t, a.HasBias)
	assert.InDelta(t, 2.0, a.BalancingBias, 1e-9)
}

func TestAnalyze_BiasClampsAtLimit(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	samples := performanceSeries(start, 12, func(i int) float64 { return 28 }, 50, 22)

	a := engine.Analyze(samples, nil, start.Add(time.Hour), models.ModeCool)
	require.True(t, a.HasBias)
	assert.InDelta(t, models.BalancingBiasLimit, a.BalancingBias, 1e-9)
}

func TestApplyAnalysis_BoundsTheStep(t *testing.T) {
	t.Parallel()

	p := models.NewLearningProfile("living")
	a := engine.ProfileAnalysis{
		ThermalMass:    0.95,
		HasThermalMass: true,
	}

	engine.ApplyAnalysis(p, a, 0.1, 1.0)
	assert.InDelta(t, 0.55, p.ThermalMass, 1e-9, "one step moves at most a tenth of the scale")

	engine.ApplyAnalysis(p, a, 0.1, 1.0)
	assert.InDelta(t, 0.6, p.ThermalMass, 1e-9, "repeated analysis keeps walking toward the target")
}

func TestApplyAnalysis_ConfidenceScalesTheStep(t *testing.T) {
	t.Parallel()

	p := models.NewLearningProfile("living")
	a := engine.ProfileAnalysis{ThermalMass: 0.95, HasThermalMass: true}

	engine.ApplyAnalysis(p, a, 0.1, 0.5)
	assert.InDelta(t, 0.525, p.ThermalMass, 1e-9)
}

func TestApplyAnalysis_StepsDownToo(t *testing.T) {
	t.Parallel()

	p := models.NewLearningProfile("living")
	p.CoolingEfficiency = 0.9
	a := engine.ProfileAnalysis{Efficiency: 0.2, HasEfficiency: true}

	engine.ApplyAnalysis(p, a, 0.1, 1.0)
	assert.InDelta(t, 0.85, p.CoolingEfficiency, 1e-9)
}

func TestApplyAnalysis_SeedsConvergenceOutright(t *testing.T) {
	t.Parallel()

	p := models.NewLearningProfile("living")
	a := engine.ProfileAnalysis{ConvergenceRate: 420, HasConvergence: true, OvershootPerDay: 3}

	engine.ApplyAnalysis(p, a, 0.1, 1.0)
	assert.InDelta(t, 420.0, p.ConvergenceRate, 1e-9, "the first measurement seeds the value")
	assert.InDelta(t, 3.0, p.OvershootRate, 1e-9)

	a.ConvergenceRate = 300
	engine.ApplyAnalysis(p, a, 0.1, 1.0)
	assert.InDelta(t, 360.0, p.ConvergenceRate, 1e-9, "later measurements move it stepwise")
}

func TestApplyAnalysis_UntouchedWithoutData(t *testing.T) {
	t.Parallel()

	p := models.NewLearningProfile("living")
	engine.ApplyAnalysis(p, engine.ProfileAnalysis{}, 0.1, 1.0)

	assert.InDelta(t, models.DefaultThermalMass, p.ThermalMass, 1e-9)
	assert.InDelta(t, models.DefaultEfficiency, p.CoolingEfficiency, 1e-9)
	assert.Zero(t, p.ConvergenceRate)
}
