package plant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"aircon_manager/internal/models"
)

const defaultBridgeTimeout = 5 * time.Second

// HTTPBridge talks to a hardware gateway over its REST surface. Sensor reads
// map gateway failures to ErrSensorUnavailable, actuator writes to
// ErrActuatorRejected, so the control loop can classify them without caring
// about transport detail.
type HTTPBridge struct {
	base string
	hc   *http.Client
}

// NewHTTPBridge returns a bridge for the gateway at base, e.g.
// "http://10.0.0.5:8000". A zero timeout falls back to five seconds.
func NewHTTPBridge(base string, timeout time.Duration) *HTTPBridge {
	if timeout <= 0 {
		timeout = defaultBridgeTimeout
	}
	return &HTTPBridge{
		base: base,
		hc:   &http.Client{Timeout: timeout},
	}
}

type valueReading struct {
	Value float64 `json:"value"`
}

type occupancyReading struct {
	Occupied bool `json:"occupied"`
}

// RoomTemperature implements SensorSource.
func (b *HTTPBridge) RoomTemperature(ctx context.Context, room string) (float64, error) {
	var out valueReading
	if err := b.getJSON(ctx, "/rooms/"+url.PathEscape(room)+"/temperature", &out); err != nil {
		return 0, err
	}
	return out.Value, nil
}

// RoomHumidity implements SensorSource.
func (b *HTTPBridge) RoomHumidity(ctx context.Context, room string) (float64, error) {
	var out valueReading
	if err := b.getJSON(ctx, "/rooms/"+url.PathEscape(room)+"/humidity", &out); err != nil {
		return 0, err
	}
	return out.Value, nil
}

// RoomOccupancy implements SensorSource.
func (b *HTTPBridge) RoomOccupancy(ctx context.Context, room string) (bool, error) {
	var out occupancyReading
	if err := b.getJSON(ctx, "/rooms/"+url.PathEscape(room)+"/occupancy", &out); err != nil {
		return false, err
	}
	return out.Occupied, nil
}

// OutdoorTemperature implements SensorSource.
func (b *HTTPBridge) OutdoorTemperature(ctx context.Context) (float64, error) {
	var out valueReading
	if err := b.getJSON(ctx, "/outdoor/temperature", &out); err != nil {
		return 0, err
	}
	return out.Value, nil
}

// SetZoneAirflow implements ActuatorSink.
func (b *HTTPBridge) SetZoneAirflow(ctx context.Context, room string, percent float64) error {
	return b.postJSON(ctx, "/zones/"+url.PathEscape(room)+"/airflow", map[string]any{"percent": percent})
}

// SetUnitMode implements ActuatorSink.
func (b *HTTPBridge) SetUnitMode(ctx context.Context, mode models.HVACMode) error {
	return b.postJSON(ctx, "/unit/mode", map[string]any{"mode": string(mode)})
}

// SetUnitFanSpeed implements ActuatorSink.
func (b *HTTPBridge) SetUnitFanSpeed(ctx context.Context, speed models.UnitFanSpeed) error {
	return b.postJSON(ctx, "/unit/fan", map[string]any{"speed": string(speed)})
}

// SetUnitSetpoint implements ActuatorSink.
func (b *HTTPBridge) SetUnitSetpoint(ctx context.Context, setpoint float64) error {
	return b.postJSON(ctx, "/unit/setpoint", map[string]any{"value": setpoint})
}

// SetUnitPower implements ActuatorSink.
func (b *HTTPBridge) SetUnitPower(ctx context.Context, on bool) error {
	return b.postJSON(ctx, "/unit/power", map[string]any{"on": on})
}

func (b *HTTPBridge) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.base+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSensorUnavailable, err)
	}
	resp, err := b.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSensorUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrUnknownRoom, path)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: non-2xx from %s: %d", ErrSensorUnavailable, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrSensorUnavailable, path, err)
	}
	return nil
}

func (b *HTTPBridge) postJSON(ctx context.Context, path string, body any) error {
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrActuatorRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrActuatorRejected, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: non-2xx from %s: %d", ErrActuatorRejected, path, resp.StatusCode)
	}
	return nil
}

var _ Plant = (*HTTPBridge)(nil)
