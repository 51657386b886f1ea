package engine

import (
	"math"
	"time"

	"aircon_manager/internal/models"
)

// Sample requirements and normalization constants for profile analysis.
const (
	massMinSamples  = 50
	massWindow      = 10
	massMaxFanDrift = 10.0 // pp of fan spread still counted as a stable window
	massFullRate    = 1.0  // °C/min treated as a fully light room

	efficiencyMinPairs = 10
	efficiencyMinFan   = 30.0
	efficiencyMaxGap   = 10 * time.Minute
	efficiencyFullRate = 0.5 // °C/min per unit of fan treated as fully efficient

	convergenceMinSamples = 10
	convergenceMinRate    = 0.005 // °C/min below which a trend is noise
	convergenceSpan       = 0.5   // °C used to express convergence as seconds

	overshootWindow = 24 * time.Hour

	biasGain = 2.0
)

// PerformanceSample is one control cycle's record for a room.
type PerformanceSample struct {
	At       time.Time
	Temp     float64
	Target   float64
	FanSpeed float64
}

// Tracker buffers per-room performance samples and overshoot events for
// analysis. Buffers are bounded; callers serialize access.
type Tracker struct {
	samples    map[string][]PerformanceSample
	overshoots map[string][]time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		samples:    make(map[string][]PerformanceSample),
		overshoots: make(map[string][]time.Time),
	}
}

// Record appends a sample for the room, evicting the oldest beyond the
// per-room cap.
func (t *Tracker) Record(room string, s PerformanceSample) {
	buf := append(t.samples[room], s)
	if len(buf) > models.ProfileSampleLimit {
		buf = buf[len(buf)-models.ProfileSampleLimit:]
	}
	t.samples[room] = buf
}

// RecordOvershoot notes an overshoot event and drops events older than the
// counting window.
func (t *Tracker) RecordOvershoot(room string, at time.Time) {
	events := append(t.overshoots[room], at)
	cutoff := at.Add(-overshootWindow)
	for len(events) > 0 && events[0].Before(cutoff) {
		events = events[1:]
	}
	t.overshoots[room] = events
}

// Samples returns the room's buffered samples in arrival order.
func (t *Tracker) Samples(room string) []PerformanceSample {
	return t.samples[room]
}

// Overshoots returns the room's overshoot events still inside the window.
func (t *Tracker) Overshoots(room string) []time.Time {
	return t.overshoots[room]
}

// TempSeries converts the room's samples to timestamped temperatures for
// coupling analysis.
func (t *Tracker) TempSeries(room string) []models.TempSample {
	buf := t.samples[room]
	out := make([]models.TempSample, len(buf))
	for i, s := range buf {
		out[i] = models.TempSample{At: s.At, Value: s.Temp}
	}
	return out
}

// Rooms lists rooms with at least one sample.
func (t *Tracker) Rooms() []string {
	names := make([]string, 0, len(t.samples))
	for name := range t.samples {
		names = append(names, name)
	}
	return names
}

// SampleCount returns the number of buffered samples for the room.
func (t *Tracker) SampleCount(room string) int {
	return len(t.samples[room])
}

// DropRoom forgets everything recorded for the room.
func (t *Tracker) DropRoom(room string) {
	delete(t.samples, room)
	delete(t.overshoots, room)
}

// Reset clears all buffered data.
func (t *Tracker) Reset() {
	t.samples = make(map[string][]PerformanceSample)
	t.overshoots = make(map[string][]time.Time)
}

// ProfileAnalysis holds freshly computed parameter targets. The Has flags
// mark which parameters had enough data this round.
type ProfileAnalysis struct {
	ThermalMass    float64
	HasThermalMass bool

	Efficiency    float64
	HasEfficiency bool

	ConvergenceRate float64
	HasConvergence  bool

	OvershootPerDay float64

	BalancingBias float64
	HasBias       bool
}

// Analyze derives parameter targets for one room from its buffered samples.
func Analyze(samples []PerformanceSample, overshoots []time.Time, now time.Time, dir models.HVACMode) ProfileAnalysis {
	var a ProfileAnalysis
	a.ThermalMass, a.HasThermalMass = analyzeThermalMass(samples)
	a.Efficiency, a.HasEfficiency = analyzeEfficiency(samples, dir)
	a.ConvergenceRate, a.HasConvergence = analyzeConvergence(samples)
	a.OvershootPerDay = overshootsPerDay(overshoots, now)
	a.BalancingBias, a.HasBias = analyzeBias(samples, dir)
	return a
}

// analyzeThermalMass estimates how slowly the room drifts while the fan
// holds roughly steady. Fast drift means a light room, slow drift a heavy
// one.
func analyzeThermalMass(samples []PerformanceSample) (float64, bool) {
	if len(samples) < massMinSamples {
		return 0, false
	}

	var rates []float64
	for i := 0; i+massWindow <= len(samples); i += massWindow {
		win := samples[i : i+massWindow]
		minFan, maxFan := win[0].FanSpeed, win[0].FanSpeed
		for _, s := range win[1:] {
			if s.FanSpeed < minFan {
				minFan = s.FanSpeed
			}
			if s.FanSpeed > maxFan {
				maxFan = s.FanSpeed
			}
		}
		if maxFan-minFan > massMaxFanDrift {
			continue
		}
		minutes := win[len(win)-1].At.Sub(win[0].At).Minutes()
		if minutes <= 0 {
			continue
		}
		rates = append(rates, math.Abs(win[len(win)-1].Temp-win[0].Temp)/minutes)
	}
	if len(rates) == 0 {
		return 0, false
	}

	var sum float64
	for _, r := range rates {
		sum += r
	}
	mass := 1 - (sum/float64(len(rates)))/massFullRate
	return clamp01(mass), true
}

// analyzeEfficiency measures how much the temperature moves toward target
// per unit of fan effort.
func analyzeEfficiency(samples []PerformanceSample, dir models.HVACMode) (float64, bool) {
	var rates []float64
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		if prev.FanSpeed < efficiencyMinFan {
			continue
		}
		gap := cur.At.Sub(prev.At)
		if gap <= 0 || gap > efficiencyMaxGap {
			continue
		}
		toward := prev.Temp - cur.Temp
		if dir == models.ModeHeat {
			toward = -toward
		}
		if toward <= 0 {
			continue
		}
		rates = append(rates, toward/gap.Minutes()/(prev.FanSpeed/100))
	}
	if len(rates) < efficiencyMinPairs {
		return 0, false
	}

	var sum float64
	for _, r := range rates {
		sum += r
	}
	return clamp01((sum / float64(len(rates))) / efficiencyFullRate), true
}

// analyzeConvergence expresses the recent approach rate as the seconds the
// room needs to close half a degree.
func analyzeConvergence(samples []PerformanceSample) (float64, bool) {
	if len(samples) < convergenceMinSamples {
		return 0, false
	}
	recent := samples[len(samples)-convergenceMinSamples:]

	series := make([]models.TempSample, len(recent))
	for i, s := range recent {
		series[i] = models.TempSample{At: s.At, Value: math.Abs(s.Temp - s.Target)}
	}
	slope, ok := RateOfChange(series)
	if !ok || slope >= -convergenceMinRate {
		return 0, false
	}
	return convergenceSpan / (-slope) * 60, true
}

// overshootsPerDay counts events inside the rolling window.
func overshootsPerDay(events []time.Time, now time.Time) float64 {
	cutoff := now.Add(-overshootWindow)
	var n int
	for _, e := range events {
		if !e.Before(cutoff) {
			n++
		}
	}
	return float64(n)
}

// analyzeBias turns a systematic deviation in the conditioning direction
// into a standing airflow bias.
func analyzeBias(samples []PerformanceSample, dir models.HVACMode) (float64, bool) {
	if len(samples) < convergenceMinSamples {
		return 0, false
	}
	var sum float64
	for _, s := range samples {
		sum += s.Temp - s.Target
	}
	mean := sum / float64(len(samples))
	if dir == models.ModeHeat {
		mean = -mean
	}
	bias := mean * biasGain
	if bias > models.BalancingBiasLimit {
		bias = models.BalancingBiasLimit
	}
	if bias < -models.BalancingBiasLimit {
		bias = -models.BalancingBiasLimit
	}
	return bias, true
}

// Reference step scales per learned parameter, so a parameter sitting at
// zero can still move.
const (
	stepScaleMass        = 0.5
	stepScaleEfficiency  = 0.5
	stepScaleConvergence = 600.0
	stepScaleBias        = 1.0
)

// ApplyAnalysis moves the profile's parameters toward the analysis targets.
// Each step is bounded by maxFrac of the parameter's reference scale and
// shrinks further at low confidence. Measured rates are assigned outright.
func ApplyAnalysis(p *models.LearningProfile, a ProfileAnalysis, maxFrac, confidence float64) {
	weight := maxFrac * confidence
	if a.HasThermalMass {
		p.ThermalMass = clamp01(stepToward(p.ThermalMass, a.ThermalMass, weight*stepScaleMass))
	}
	if a.HasEfficiency {
		p.CoolingEfficiency = clamp01(stepToward(p.CoolingEfficiency, a.Efficiency, weight*stepScaleEfficiency))
	}
	if a.HasConvergence {
		if p.ConvergenceRate == 0 {
			p.ConvergenceRate = a.ConvergenceRate
		} else {
			p.ConvergenceRate = stepToward(p.ConvergenceRate, a.ConvergenceRate, weight*stepScaleConvergence)
		}
	}
	p.OvershootRate = a.OvershootPerDay
	if a.HasBias {
		p.BalancingBias = stepToward(p.BalancingBias, a.BalancingBias, weight*stepScaleBias)
		p.ClampBias()
	}
}

// stepToward moves cur toward want by at most maxStep.
func stepToward(cur, want, maxStep float64) float64 {
	d := want - cur
	if d > maxStep {
		d = maxStep
	}
	if d < -maxStep {
		d = -maxStep
	}
	return cur + d
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
