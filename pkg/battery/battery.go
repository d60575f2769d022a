// Package battery reads live telemetry from the host battery service and
// normalizes the raw hardware properties into a typed snapshot.
package battery

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrServiceUnavailable is returned when the host battery service cannot
// be located, e.g. on machines without a battery or when the power
// service is not running. Callers should keep their last good snapshot
// instead of treating this as fatal.
var ErrServiceUnavailable = errors.New("battery service unavailable")

// Condition is the battery condition as reported by the power service.
type Condition string

const (
	ConditionNormal             Condition = "Normal"
	ConditionFair               Condition = "Fair"
	ConditionPoor               Condition = "Poor"
	ConditionServiceRecommended Condition = "Service Recommended"
	ConditionUnknown            Condition = "Unknown"
)

// Snapshot is an immutable view of the battery at one point in time.
// A new one is produced on every read; nothing mutates it afterwards.
type Snapshot struct {
	// Level is the charge percent, 0-100.
	Level int `json:"level"`
	// IsCharging is true while the battery is accepting charge.
	IsCharging bool `json:"is_charging"`
	// IsPluggedIn is true while external power is connected, whether or
	// not the battery is charging.
	IsPluggedIn  bool `json:"is_plugged_in"`
	FullyCharged bool `json:"fully_charged"`

	TemperatureC float64 `json:"temperature_c"`
	CycleCount   int     `json:"cycle_count"`

	// Capacities are in mAh.
	CurrentCapacity int `json:"current_capacity_mah"`
	MaxCapacity     int `json:"max_capacity_mah"`
	DesignCapacity  int `json:"design_capacity_mah"`

	// Amperage is the instantaneous battery current in mA, negative
	// while discharging.
	Amperage int `json:"amperage_ma"`
	// Voltage is the battery voltage in volts.
	Voltage float64 `json:"voltage_v"`
	// AdapterWattage is the connected adapter's rating in watts, 0 when
	// unplugged.
	AdapterWattage int `json:"adapter_wattage"`

	// HealthPercent is MaxCapacity relative to DesignCapacity.
	HealthPercent float64   `json:"health_percent"`
	Condition     Condition `json:"condition"`

	// TimeRemainingMin is the estimated minutes to full (while charging)
	// or to empty (while discharging). TimeIndeterminate is true while
	// the firmware is still calculating the estimate.
	TimeRemainingMin  int  `json:"time_remaining_min"`
	TimeIndeterminate bool `json:"time_indeterminate"`

	// ManufactureDate is zero when the battery does not report a valid
	// packed date.
	ManufactureDate time.Time `json:"manufacture_date,omitempty"`

	ReadAt time.Time `json:"read_at"`
}

// Reader produces telemetry snapshots. Read blocks on the underlying
// battery service, so do not call it from a latency-sensitive goroutine.
type Reader interface {
	Read(ctx context.Context) (*Snapshot, error)
}
