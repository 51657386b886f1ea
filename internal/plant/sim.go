package plant

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"aircon_manager/internal/models"
)

// ----------- Simulation constants -----------
const (
	defaultOutdoorC      = 30.0 // summer outdoor temperature °C
	defaultStartC        = 26.0 // initial room temperature °C
	defaultHumidity      = 55.0 // initial and baseline relative humidity %
	leakRatePerMinute    = 0.02 // fraction of the room/outdoor gap closed per minute
	coolRatePerMinute    = 0.15 // °C per minute at full airflow
	heatRatePerMinute    = 0.12 // °C per minute at full airflow
	dryCoolPerMinute     = 0.03 // mild cooling side effect of dry mode
	dryHumidityPerMinute = 0.8  // %RH removed per minute in dry mode
	humidityDriftPerMin  = 0.2  // %RH drift toward baseline per minute
	setpointPullPerMin   = 0.1  // extra pull per °C between room and unit setpoint
)

// Unit fan multipliers on the conditioning rate.
const (
	fanLowFactor    = 0.6
	fanMediumFactor = 1.0
	fanHighFactor   = 1.3
)

// SimOptions tune the simulated house. Zero values fall back to defaults.
type SimOptions struct {
	OutdoorC       float64
	StartC         float64
	StartHumidity  float64
	NoiseAmplitude float64 // °C of per-tick jitter, 0 for deterministic runs
	Seed           int64
}

type simRoom struct {
	temp     float64
	humidity float64
	occupied bool
	airflow  float64
}

// SimPlant is an in-memory thermal model of the house. The physics advance
// on Run's ticker (or via Advance in tests); sensor reads and actuator
// writes may come from any goroutine.
type SimPlant struct {
	mu sync.Mutex

	rooms   map[string]*simRoom
	outdoor float64
	noise   float64
	rng     *rand.Rand

	unitOn       bool
	unitMode     models.HVACMode
	unitFan      models.UnitFanSpeed
	unitSetpoint float64
}

// NewSimPlant builds a simulated house with the given rooms.
func NewSimPlant(roomNames []string, opts SimOptions) *SimPlant {
	if opts.OutdoorC == 0 {
		opts.OutdoorC = defaultOutdoorC
	}
	if opts.StartC == 0 {
		opts.StartC = defaultStartC
	}
	if opts.StartHumidity == 0 {
		opts.StartHumidity = defaultHumidity
	}

	rooms := make(map[string]*simRoom, len(roomNames))
	for _, name := range roomNames {
		rooms[name] = &simRoom{
			temp:     opts.StartC,
			humidity: opts.StartHumidity,
			occupied: true,
		}
	}
	return &SimPlant{
		rooms:        rooms,
		outdoor:      opts.OutdoorC,
		noise:        opts.NoiseAmplitude,
		rng:          rand.New(rand.NewSource(opts.Seed)),
		unitMode:     models.ModeOff,
		unitFan:      models.FanLow,
		unitSetpoint: 23,
	}
}

// Run advances the physics at the given interval until ctx is canceled.
func (p *SimPlant) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			p.Advance(now.Sub(last))
			last = now
		}
	}
}

// Advance applies elapsed wall time to every room.
func (p *SimPlant) Advance(elapsed time.Duration) {
	minutes := elapsed.Minutes()
	if minutes <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fanFactor := fanMediumFactor
	switch p.unitFan {
	case models.FanLow:
		fanFactor = fanLowFactor
	case models.FanHigh:
		fanFactor = fanHighFactor
	}

	for _, r := range p.rooms {
		// Envelope leakage always pulls toward outdoor.
		r.temp += (p.outdoor - r.temp) * leakRatePerMinute * minutes

		if p.unitOn {
			flow := r.airflow / 100
			switch p.unitMode {
			case models.ModeCool:
				rate := coolRatePerMinute + setpointPull(r.temp, p.unitSetpoint)
				r.temp -= rate * flow * fanFactor * minutes
			case models.ModeHeat:
				rate := heatRatePerMinute + setpointPull(p.unitSetpoint, r.temp)
				r.temp += rate * flow * fanFactor * minutes
			case models.ModeDry:
				r.temp -= dryCoolPerMinute * flow * minutes
				r.humidity -= dryHumidityPerMinute * flow * minutes
			}
		}

		// Humidity drifts back toward its baseline.
		if r.humidity < defaultHumidity {
			r.humidity += humidityDriftPerMin * minutes
			if r.humidity > defaultHumidity {
				r.humidity = defaultHumidity
			}
		}
		if r.humidity < 0 {
			r.humidity = 0
		}

		if p.noise > 0 {
			r.temp += (p.rng.Float64()*2 - 1) * p.noise
		}
	}
}

// setpointPull adds conditioning power proportional to how far the room is
// from the unit setpoint, never negative.
func setpointPull(warmer, cooler float64) float64 {
	gap := warmer - cooler
	if gap <= 0 {
		return 0
	}
	return gap * setpointPullPerMin / 10
}

func (p *SimPlant) room(name string) (*simRoom, error) {
	r, ok := p.rooms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoom, name)
	}
	return r, nil
}

// RoomTemperature implements SensorSource.
func (p *SimPlant) RoomTemperature(_ context.Context, room string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, err := p.room(room)
	if err != nil {
		return 0, err
	}
	return r.temp, nil
}

// RoomHumidity implements SensorSource.
func (p *SimPlant) RoomHumidity(_ context.Context, room string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, err := p.room(room)
	if err != nil {
		return 0, err
	}
	return r.humidity, nil
}

// RoomOccupancy implements SensorSource.
func (p *SimPlant) RoomOccupancy(_ context.Context, room string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, err := p.room(room)
	if err != nil {
		return false, err
	}
	return r.occupied, nil
}

// OutdoorTemperature implements SensorSource.
func (p *SimPlant) OutdoorTemperature(_ context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outdoor, nil
}

// SetZoneAirflow implements ActuatorSink.
func (p *SimPlant) SetZoneAirflow(_ context.Context, room string, percent float64) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: airflow %.1f out of range", ErrActuatorRejected, percent)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r, err := p.room(room)
	if err != nil {
		return err
	}
	r.airflow = percent
	return nil
}

// SetUnitMode implements ActuatorSink.
func (p *SimPlant) SetUnitMode(_ context.Context, mode models.HVACMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: mode %q", ErrActuatorRejected, mode)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unitMode = mode
	return nil
}

// SetUnitFanSpeed implements ActuatorSink.
func (p *SimPlant) SetUnitFanSpeed(_ context.Context, speed models.UnitFanSpeed) error {
	switch speed {
	case models.FanLow, models.FanMedium, models.FanHigh:
	default:
		return fmt.Errorf("%w: fan speed %q", ErrActuatorRejected, speed)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unitFan = speed
	return nil
}

// SetUnitSetpoint implements ActuatorSink.
func (p *SimPlant) SetUnitSetpoint(_ context.Context, setpoint float64) error {
	if setpoint < 16 || setpoint > 30 {
		return fmt.Errorf("%w: setpoint %.1f out of range", ErrActuatorRejected, setpoint)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unitSetpoint = setpoint
	return nil
}

// SetUnitPower implements ActuatorSink.
func (p *SimPlant) SetUnitPower(_ context.Context, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unitOn = on
	return nil
}

// SetRoomOccupied flips simulated presence, for demos and tests.
func (p *SimPlant) SetRoomOccupied(room string, occupied bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, err := p.room(room)
	if err != nil {
		return err
	}
	r.occupied = occupied
	return nil
}

// SetRoomTemperature overrides a simulated reading, for demos and tests.
func (p *SimPlant) SetRoomTemperature(room string, temp float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, err := p.room(room)
	if err != nil {
		return err
	}
	r.temp = temp
	return nil
}

// SetOutdoor overrides the outdoor temperature.
func (p *SimPlant) SetOutdoor(temp float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outdoor = temp
}

// ZoneAirflow reports the last commanded airflow for a room.
func (p *SimPlant) ZoneAirflow(room string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, err := p.room(room)
	if err != nil {
		return 0, err
	}
	return r.airflow, nil
}

var _ Plant = (*SimPlant)(nil)
