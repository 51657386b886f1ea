package engine

// Smoothing factor bounds enforced when the factor is tuned at runtime.
const (
	smoothingFactorMin = 0.3
	smoothingFactorMax = 0.9
)

// Smoother applies exponential smoothing to per-room fan speeds so small
// band flips do not rattle the dampers. Large jumps bypass smoothing and
// take effect immediately. The zero value is not usable; construct with
// NewSmoother. Callers serialize access.
type Smoother struct {
	factor    float64
	threshold float64
	prev      map[string]float64
}

// NewSmoother returns a smoother weighing the new speed by factor against
// the previous one, unless the requested change exceeds threshold percentage
// points.
func NewSmoother(factor, threshold float64) *Smoother {
	return &Smoother{
		factor:    factor,
		threshold: threshold,
		prev:      make(map[string]float64),
	}
}

// Smooth blends next against the room's previous smoothed speed and records
// the result. The first value for a room passes through unsmoothed, as does
// any change larger than the bypass threshold.
func (s *Smoother) Smooth(room string, next float64) float64 {
	prev, seen := s.prev[room]
	if !seen {
		s.prev[room] = next
		return next
	}

	delta := next - prev
	if delta < 0 {
		delta = -delta
	}
	if delta > s.threshold {
		s.prev[room] = next
		return next
	}

	out := clampSpeed(s.factor*next + (1-s.factor)*prev)
	s.prev[room] = out
	return out
}

// Previous returns the last smoothed speed recorded for the room.
func (s *Smoother) Previous(room string) (float64, bool) {
	v, ok := s.prev[room]
	return v, ok
}

// Forget drops the recorded speed for a single room.
func (s *Smoother) Forget(room string) {
	delete(s.prev, room)
}

// Reset clears all recorded speeds; the next value per room passes through.
func (s *Smoother) Reset() {
	s.prev = make(map[string]float64)
}

// Factor returns the current smoothing factor.
func (s *Smoother) Factor() float64 {
	return s.factor
}

// SetFactor updates the smoothing factor, clamped to a safe range.
func (s *Smoother) SetFactor(f float64) {
	if f < smoothingFactorMin {
		f = smoothingFactorMin
	}
	if f > smoothingFactorMax {
		f = smoothingFactorMax
	}
	s.factor = f
}
