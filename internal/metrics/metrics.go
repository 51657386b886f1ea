// Package metrics exposes the controller's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts completed optimization cycles by trigger (scheduled|forced).
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aircon_manager",
		Name:      "cycles_total",
		Help:      "Completed optimization cycles",
	}, []string{"trigger"})

	// CycleErrorsTotal counts per-room faults encountered during cycles.
	CycleErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aircon_manager",
		Name:      "cycle_errors_total",
		Help:      "Room faults during optimization cycles",
	}, []string{"kind"})

	// RoomTemperature is the last valid temperature reading per room.
	RoomTemperature = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "aircon_manager",
		Name:      "room_temperature_celsius",
		Help:      "Last valid room temperature",
	}, []string{"room"})

	// RoomFanSpeed is the last commanded zone airflow per room.
	RoomFanSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "aircon_manager",
		Name:      "room_fan_speed_percent",
		Help:      "Last commanded zone airflow",
	}, []string{"room"})

	// UnitOn is 1 while the main unit is powered.
	UnitOn = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aircon_manager",
		Name:      "unit_on",
		Help:      "Main unit power state",
	})

	// ModeChangesTotal counts state machine transitions by resulting mode.
	ModeChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aircon_manager",
		Name:      "mode_changes_total",
		Help:      "HVAC mode transitions",
	}, []string{"mode"})

	// QuickActionActive is 1 while the named quick action is active.
	QuickActionActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "aircon_manager",
		Name:      "quick_action_active",
		Help:      "Active quick action overlay",
	}, []string{"action"})

	// CriticalStatus is 0 normal, 1 warning, 2 critical, 3 recovering per room.
	CriticalStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "aircon_manager",
		Name:      "critical_status",
		Help:      "Critical monitor status per room",
	}, []string{"room"})
)
