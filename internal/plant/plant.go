// Package plant is the boundary to the physical system: sensors that report
// room conditions and actuators that move dampers and drive the main unit.
// Two implementations exist, an in-process thermal simulation and an HTTP
// bridge to a hardware gateway.
package plant

import (
	"context"
	"errors"

	"aircon_manager/internal/models"
)

// Sentinel errors the control loop uses to classify failures.
var (
	ErrUnknownRoom       = errors.New("unknown room")
	ErrSensorUnavailable = errors.New("sensor unavailable")
	ErrActuatorRejected  = errors.New("actuator rejected command")
)

// SensorSource reads current conditions. Implementations must be safe for
// concurrent use.
type SensorSource interface {
	RoomTemperature(ctx context.Context, room string) (float64, error)
	RoomHumidity(ctx context.Context, room string) (float64, error)
	RoomOccupancy(ctx context.Context, room string) (bool, error)
	OutdoorTemperature(ctx context.Context) (float64, error)
}

// ActuatorSink applies commands to the zone dampers and the main unit.
type ActuatorSink interface {
	SetZoneAirflow(ctx context.Context, room string, percent float64) error
	SetUnitMode(ctx context.Context, mode models.HVACMode) error
	SetUnitFanSpeed(ctx context.Context, speed models.UnitFanSpeed) error
	SetUnitSetpoint(ctx context.Context, setpoint float64) error
	SetUnitPower(ctx context.Context, on bool) error
}

// Plant is the full hardware surface the controller drives.
type Plant interface {
	SensorSource
	ActuatorSink
}
