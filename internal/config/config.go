package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"aircon_manager/internal/models"

	"github.com/spf13/viper"
)

// Config is the full typed configuration of the daemon. Out-of-range numeric
// values are clamped by Validate, never fatal; only an unreadable file or an
// empty room list aborts startup.
type Config struct {
	Port string `mapstructure:"port"`

	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	Log struct {
		Level      string `mapstructure:"level"`
		File       string `mapstructure:"file"` // empty = console only
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
	} `mapstructure:"log"`

	Auth struct {
		SigningKey string        `mapstructure:"signing_key"`
		TokenTTL   time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`

	Controller Controller `mapstructure:"controller"`
	Rooms      []Room     `mapstructure:"rooms"`

	Balancing  Balancing  `mapstructure:"balancing"`
	Smoothing  Smoothing  `mapstructure:"smoothing"`
	Predictive Predictive `mapstructure:"predictive"`

	Protection         Protection         `mapstructure:"protection"`
	EnhancedProtection EnhancedProtection `mapstructure:"enhanced_protection"`
	Hysteresis         Hysteresis         `mapstructure:"hysteresis"`

	Humidity  Humidity  `mapstructure:"humidity"`
	Occupancy Occupancy `mapstructure:"occupancy"`
	Weather   Weather   `mapstructure:"weather"`

	Schedules []Schedule `mapstructure:"schedules"`
	Actions   Actions    `mapstructure:"actions"`
	Learning  Learning   `mapstructure:"learning"`
	Unit      Unit       `mapstructure:"unit"`
	Critical  Critical   `mapstructure:"critical"`

	Sim    Sim    `mapstructure:"sim"`
	Bridge Bridge `mapstructure:"bridge"`
	Kafka  Kafka  `mapstructure:"kafka"`
}

type Controller struct {
	UpdateInterval   time.Duration   `mapstructure:"update_interval"`
	TargetTemp       float64         `mapstructure:"target_temp"`
	Deadband         float64         `mapstructure:"deadband"`
	Mode             models.HVACMode `mapstructure:"mode"` // cool | heat
	StartupDelay     time.Duration   `mapstructure:"startup_delay"`
	StalenessCeiling time.Duration   `mapstructure:"staleness_ceiling"`
	SensorMin        float64         `mapstructure:"sensor_min"`
	SensorMax        float64         `mapstructure:"sensor_max"`
}

type Room struct {
	Name         string   `mapstructure:"name"`
	MaxTemp      *float64 `mapstructure:"max_temp"`  // critical monitor limit
	SafeTemp     *float64 `mapstructure:"safe_temp"` // recovery ends below this; defaults to max_temp - warning_offset
	TargetOffset float64  `mapstructure:"target_offset"`
}

type Balancing struct {
	Enabled        bool    `mapstructure:"enabled"`
	TargetVariance float64 `mapstructure:"target_variance"`
	Aggressiveness float64 `mapstructure:"aggressiveness"` // 0..0.5
	MinAirflow     float64 `mapstructure:"min_airflow"`    // percent floor
	PriorityDelta  float64 `mapstructure:"priority_delta"` // beyond this a room is conditioned directly, not balanced
}

type Smoothing struct {
	Enabled   bool    `mapstructure:"enabled"`
	Factor    float64 `mapstructure:"factor"`    // weight of the new value, 0..1
	Threshold float64 `mapstructure:"threshold"` // percentage points; larger jumps bypass smoothing
}

type Predictive struct {
	Enabled          bool    `mapstructure:"enabled"`
	LookaheadMinutes float64 `mapstructure:"lookahead_minutes"`
	BoostFactor      float64 `mapstructure:"boost_factor"` // 0..1 blend weight
	AdaptiveBands    bool    `mapstructure:"adaptive_bands"`
	EfficiencyAdjust bool    `mapstructure:"efficiency_adjust"`
}

type Protection struct {
	Enabled    bool          `mapstructure:"enabled"`
	MinOnTime  time.Duration `mapstructure:"min_on_time"`
	MinOffTime time.Duration `mapstructure:"min_off_time"`
}

type EnhancedProtection struct {
	Enabled         bool          `mapstructure:"enabled"`
	UndercoolMargin float64       `mapstructure:"undercool_margin"`
	MinModeDuration time.Duration `mapstructure:"min_mode_duration"`
	MinRunCycles    int           `mapstructure:"min_run_cycles"`
}

type Hysteresis struct {
	Time time.Duration `mapstructure:"time"`
	Temp float64       `mapstructure:"temp"` // deviation beyond deadband that overrides the time gate
}

type Humidity struct {
	Enabled      bool    `mapstructure:"enabled"`
	Target       float64 `mapstructure:"target"`
	Deadband     float64 `mapstructure:"deadband"`
	DryThreshold float64 `mapstructure:"dry_threshold"`
}

type Occupancy struct {
	Enabled        bool          `mapstructure:"enabled"`
	Setback        float64       `mapstructure:"setback"`
	VacancyTimeout time.Duration `mapstructure:"vacancy_timeout"`
}

type Weather struct {
	Enabled         bool    `mapstructure:"enabled"`
	InfluenceFactor float64 `mapstructure:"influence_factor"` // 0..1
}

// Schedule is a target override window. End before Start means the window
// crosses midnight.
type Schedule struct {
	Days   []string `mapstructure:"days"` // weekday names, "weekdays", "weekends", "all"
	Start  string   `mapstructure:"start"`
	End    string   `mapstructure:"end"`
	Target float64  `mapstructure:"target"`
}

type Actions struct {
	BoostMinutes int     `mapstructure:"boost_minutes"`
	SleepMinutes int     `mapstructure:"sleep_minutes"`
	PartyMinutes int     `mapstructure:"party_minutes"`
	SleepShift   float64 `mapstructure:"sleep_shift"` // target shift while sleeping, °C
}

type Learning struct {
	Enabled             bool    `mapstructure:"enabled"`
	Mode                string  `mapstructure:"mode"` // passive | active
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	MaxAdjustment       float64 `mapstructure:"max_adjustment"` // fraction per update
}

type Unit struct {
	AutoPower          bool    `mapstructure:"auto_power"`
	AutoFan            bool    `mapstructure:"auto_fan"`
	AutoSetpoint       bool    `mapstructure:"auto_setpoint"`
	FanHighThreshold   float64 `mapstructure:"fan_high_threshold"`
	FanMediumThreshold float64 `mapstructure:"fan_medium_threshold"`
	OnThreshold        float64 `mapstructure:"on_threshold"`  // average deviation that turns the unit on
	OffThreshold       float64 `mapstructure:"off_threshold"` // average overshoot that allows turning it off
}

type Critical struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	WarningOffset float64       `mapstructure:"warning_offset"` // °C below a room's max_temp
	Cooldown      time.Duration `mapstructure:"cooldown"`       // between emergency triggers
}

type Sim struct {
	Enabled     bool    `mapstructure:"enabled"`
	AmbientTemp float64 `mapstructure:"ambient_temp"`
	OutdoorTemp float64 `mapstructure:"outdoor_temp"`
}

type Bridge struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Kafka struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	Acks    int      `mapstructure:"acks"`
}

var errNoRooms = errors.New("no rooms configured")

// Load reads the YAML config at dir/name, applies defaults, unmarshals and
// validates. The returned warnings describe every value that was clamped.
func Load(dir, name string) (*Config, []string, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName(name)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	warnings, err := cfg.Validate()
	if err != nil {
		return nil, warnings, err
	}
	return &cfg, warnings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db.path", "app.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 20)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("auth.token_ttl", time.Hour)

	v.SetDefault("controller.update_interval", 30*time.Second)
	v.SetDefault("controller.target_temp", 22.0)
	v.SetDefault("controller.deadband", 0.5)
	v.SetDefault("controller.mode", string(models.ModeCool))
	v.SetDefault("controller.startup_delay", 120*time.Second)
	v.SetDefault("controller.staleness_ceiling", 15*time.Minute)
	v.SetDefault("controller.sensor_min", -50.0)
	v.SetDefault("controller.sensor_max", 70.0)

	v.SetDefault("balancing.enabled", true)
	v.SetDefault("balancing.target_variance", 1.5)
	v.SetDefault("balancing.aggressiveness", 0.2)
	v.SetDefault("balancing.min_airflow", 15.0)
	v.SetDefault("balancing.priority_delta", 2.0)

	v.SetDefault("smoothing.enabled", true)
	v.SetDefault("smoothing.factor", 0.7)
	v.SetDefault("smoothing.threshold", 10.0)

	v.SetDefault("predictive.enabled", false)
	v.SetDefault("predictive.lookahead_minutes", 5.0)
	v.SetDefault("predictive.boost_factor", 0.3)
	v.SetDefault("predictive.adaptive_bands", false)
	v.SetDefault("predictive.efficiency_adjust", false)

	v.SetDefault("protection.enabled", true)
	v.SetDefault("protection.min_on_time", 180*time.Second)
	v.SetDefault("protection.min_off_time", 180*time.Second)

	v.SetDefault("enhanced_protection.enabled", false)
	v.SetDefault("enhanced_protection.undercool_margin", 0.5)
	v.SetDefault("enhanced_protection.min_mode_duration", 600*time.Second)
	v.SetDefault("enhanced_protection.min_run_cycles", 10)

	v.SetDefault("hysteresis.time", 300*time.Second)
	v.SetDefault("hysteresis.temp", 1.0)

	v.SetDefault("humidity.enabled", false)
	v.SetDefault("humidity.target", 50.0)
	v.SetDefault("humidity.deadband", 5.0)
	v.SetDefault("humidity.dry_threshold", 65.0)

	v.SetDefault("occupancy.enabled", false)
	v.SetDefault("occupancy.setback", 2.0)
	v.SetDefault("occupancy.vacancy_timeout", 600*time.Second)

	v.SetDefault("weather.enabled", false)
	v.SetDefault("weather.influence_factor", 0.5)

	v.SetDefault("actions.boost_minutes", 30)
	v.SetDefault("actions.sleep_minutes", 480)
	v.SetDefault("actions.party_minutes", 120)
	v.SetDefault("actions.sleep_shift", 1.0)

	v.SetDefault("learning.enabled", false)
	v.SetDefault("learning.mode", "passive")
	v.SetDefault("learning.confidence_threshold", 0.7)
	v.SetDefault("learning.max_adjustment", 0.10)

	v.SetDefault("unit.auto_power", false)
	v.SetDefault("unit.auto_fan", false)
	v.SetDefault("unit.auto_setpoint", false)
	v.SetDefault("unit.fan_high_threshold", 2.5)
	v.SetDefault("unit.fan_medium_threshold", 1.0)
	v.SetDefault("unit.on_threshold", 1.0)
	v.SetDefault("unit.off_threshold", 2.0)

	v.SetDefault("critical.enabled", true)
	v.SetDefault("critical.interval", 30*time.Second)
	v.SetDefault("critical.warning_offset", 2.0)
	v.SetDefault("critical.cooldown", 5*time.Minute)

	v.SetDefault("sim.enabled", true)
	v.SetDefault("sim.ambient_temp", 25.0)
	v.SetDefault("sim.outdoor_temp", 28.0)

	v.SetDefault("bridge.timeout", 5*time.Second)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "aircon.telemetry")
	v.SetDefault("kafka.acks", 1)
}

// Validate clamps every out-of-range value to its nearest bound and returns a
// note per clamp. It fails only for conditions that cannot be repaired.
func (c *Config) Validate() ([]string, error) {
	var notes []string

	clampF := func(v *float64, lo, hi float64, key string) {
		if *v < lo {
			notes = append(notes, fmt.Sprintf("%s %.2f below minimum, clamped to %.2f", key, *v, lo))
			*v = lo
		} else if *v > hi {
			notes = append(notes, fmt.Sprintf("%s %.2f above maximum, clamped to %.2f", key, *v, hi))
			*v = hi
		}
	}
	clampI := func(v *int, lo, hi int, key string) {
		if *v < lo {
			notes = append(notes, fmt.Sprintf("%s %d below minimum, clamped to %d", key, *v, lo))
			*v = lo
		} else if *v > hi {
			notes = append(notes, fmt.Sprintf("%s %d above maximum, clamped to %d", key, *v, hi))
			*v = hi
		}
	}
	clampD := func(v *time.Duration, lo, hi time.Duration, key string) {
		if *v < lo {
			notes = append(notes, fmt.Sprintf("%s %s below minimum, clamped to %s", key, *v, lo))
			*v = lo
		} else if *v > hi {
			notes = append(notes, fmt.Sprintf("%s %s above maximum, clamped to %s", key, *v, hi))
			*v = hi
		}
	}

	if len(c.Rooms) == 0 {
		return notes, errNoRooms
	}
	seen := map[string]bool{}
	for _, r := range c.Rooms {
		if strings.TrimSpace(r.Name) == "" {
			return notes, errors.New("room with empty name")
		}
		if seen[r.Name] {
			return notes, fmt.Errorf("duplicate room %q", r.Name)
		}
		seen[r.Name] = true
	}

	if c.Controller.Mode != models.ModeCool && c.Controller.Mode != models.ModeHeat {
		notes = append(notes, fmt.Sprintf("controller.mode %q unsupported, using cool", c.Controller.Mode))
		c.Controller.Mode = models.ModeCool
	}
	clampD(&c.Controller.UpdateInterval, 5*time.Second, time.Hour, "controller.update_interval")
	clampF(&c.Controller.TargetTemp, 10, 35, "controller.target_temp")
	clampF(&c.Controller.Deadband, 0.1, 5, "controller.deadband")
	clampD(&c.Controller.StartupDelay, 0, time.Hour, "controller.startup_delay")
	clampD(&c.Controller.StalenessCeiling, time.Minute, 24*time.Hour, "controller.staleness_ceiling")

	clampF(&c.Balancing.TargetVariance, 0.5, 5, "balancing.target_variance")
	clampF(&c.Balancing.Aggressiveness, 0, 0.5, "balancing.aggressiveness")
	clampF(&c.Balancing.MinAirflow, 0, 50, "balancing.min_airflow")
	clampF(&c.Balancing.PriorityDelta, 0.5, 10, "balancing.priority_delta")

	clampF(&c.Smoothing.Factor, 0, 1, "smoothing.factor")
	clampF(&c.Smoothing.Threshold, 1, 100, "smoothing.threshold")

	clampF(&c.Predictive.LookaheadMinutes, 1, 60, "predictive.lookahead_minutes")
	clampF(&c.Predictive.BoostFactor, 0, 1, "predictive.boost_factor")

	clampD(&c.Protection.MinOnTime, 0, time.Hour, "protection.min_on_time")
	clampD(&c.Protection.MinOffTime, 0, time.Hour, "protection.min_off_time")

	clampF(&c.EnhancedProtection.UndercoolMargin, 0, 5, "enhanced_protection.undercool_margin")
	clampD(&c.EnhancedProtection.MinModeDuration, 0, 2*time.Hour, "enhanced_protection.min_mode_duration")
	clampI(&c.EnhancedProtection.MinRunCycles, 0, 100, "enhanced_protection.min_run_cycles")

	clampD(&c.Hysteresis.Time, 0, time.Hour, "hysteresis.time")
	clampF(&c.Hysteresis.Temp, 0, 10, "hysteresis.temp")

	clampF(&c.Humidity.Target, 20, 80, "humidity.target")
	clampF(&c.Humidity.Deadband, 1, 20, "humidity.deadband")
	clampF(&c.Humidity.DryThreshold, 30, 95, "humidity.dry_threshold")

	clampF(&c.Occupancy.Setback, 0, 10, "occupancy.setback")
	clampD(&c.Occupancy.VacancyTimeout, time.Minute, 24*time.Hour, "occupancy.vacancy_timeout")

	clampF(&c.Weather.InfluenceFactor, 0, 1, "weather.influence_factor")

	clampI(&c.Actions.BoostMinutes, 10, 120, "actions.boost_minutes")
	clampI(&c.Actions.SleepMinutes, 60, 720, "actions.sleep_minutes")
	clampI(&c.Actions.PartyMinutes, 30, 360, "actions.party_minutes")
	clampF(&c.Actions.SleepShift, 0, 5, "actions.sleep_shift")

	if c.Learning.Mode != "passive" && c.Learning.Mode != "active" {
		notes = append(notes, fmt.Sprintf("learning.mode %q unknown, using passive", c.Learning.Mode))
		c.Learning.Mode = "passive"
	}
	clampF(&c.Learning.ConfidenceThreshold, 0, 1, "learning.confidence_threshold")
	clampF(&c.Learning.MaxAdjustment, 0.01, 0.5, "learning.max_adjustment")

	clampF(&c.Unit.FanHighThreshold, 0.5, 10, "unit.fan_high_threshold")
	clampF(&c.Unit.FanMediumThreshold, 0.1, 5, "unit.fan_medium_threshold")
	clampF(&c.Unit.OnThreshold, 0.1, 5, "unit.on_threshold")
	clampF(&c.Unit.OffThreshold, 0.1, 10, "unit.off_threshold")

	clampD(&c.Critical.Interval, 5*time.Second, 10*time.Minute, "critical.interval")
	clampF(&c.Critical.WarningOffset, 0.5, 10, "critical.warning_offset")
	clampD(&c.Critical.Cooldown, time.Minute, time.Hour, "critical.cooldown")

	clampD(&c.Bridge.Timeout, time.Second, time.Minute, "bridge.timeout")

	for i := range c.Schedules {
		if _, err := ParseClock(c.Schedules[i].Start); err != nil {
			return notes, fmt.Errorf("schedule %d: %w", i, err)
		}
		if _, err := ParseClock(c.Schedules[i].End); err != nil {
			return notes, fmt.Errorf("schedule %d: %w", i, err)
		}
		clampF(&c.Schedules[i].Target, 10, 35, fmt.Sprintf("schedules[%d].target", i))
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		notes = append(notes, "kafka.enabled set without brokers, disabling telemetry")
		c.Kafka.Enabled = false
	}
	if !c.Sim.Enabled && c.Bridge.BaseURL == "" {
		notes = append(notes, "sim disabled and bridge.base_url empty, enabling sim")
		c.Sim.Enabled = true
	}

	if c.Auth.SigningKey == "" {
		notes = append(notes, "auth.signing_key empty, using an insecure built-in key")
		c.Auth.SigningKey = "aircon-dev-signing-key"
	}

	return notes, nil
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q, expected HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ScheduleActive reports whether the schedule applies at the given local time.
// Windows where end <= start cross midnight.
func (s Schedule) ScheduleActive(now time.Time) bool {
	if !s.dayMatches(now.Weekday()) {
		return false
	}
	start, err := ParseClock(s.Start)
	if err != nil {
		return false
	}
	end, err := ParseClock(s.End)
	if err != nil {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	if start < end {
		return minute >= start && minute < end
	}
	// crosses midnight
	return minute >= start || minute < end
}

func (s Schedule) dayMatches(d time.Weekday) bool {
	for _, day := range s.Days {
		switch strings.ToLower(strings.TrimSpace(day)) {
		case "all":
			return true
		case "weekdays":
			if d >= time.Monday && d <= time.Friday {
				return true
			}
		case "weekends":
			if d == time.Saturday || d == time.Sunday {
				return true
			}
		case strings.ToLower(d.String()):
			return true
		}
	}
	return false
}
