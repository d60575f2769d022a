// Package metrics exposes the daemon's view of the battery and the
// charging policy as a prometheus collector. Metrics are built fresh
// from the controller status on every scrape; nothing is cached here.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sailmode/sail/pkg/policy"
)

// StatusFunc supplies the current controller status for a scrape.
type StatusFunc func() policy.Status

// Collector implements prometheus.Collector over the policy status.
type Collector struct {
	version string
	status  StatusFunc

	level           *prometheus.Desc
	charging        *prometheus.Desc
	pluggedIn       *prometheus.Desc
	temperature     *prometheus.Desc
	cycleCount      *prometheus.Desc
	currentCapacity *prometheus.Desc
	maxCapacity     *prometheus.Desc
	designCapacity  *prometheus.Desc
	amperage        *prometheus.Desc
	voltage         *prometheus.Desc
	healthPercent   *prometheus.Desc
	timeRemaining   *prometheus.Desc
	adapterWattage  *prometheus.Desc

	chargeLimit    *prometheus.Desc
	sailingMode    *prometheus.Desc
	travelMode     *prometheus.Desc
	inhibited      *prometheus.Desc
	telemetryStale *prometheus.Desc
	policyState    *prometheus.Desc
	info           *prometheus.Desc
}

// NewCollector creates a collector that reads the controller status on
// every scrape.
func NewCollector(version string, status StatusFunc) *Collector {
	return &Collector{
		version: version,
		status:  status,
		level: prometheus.NewDesc(
			"sail_battery_level_percent",
			"Battery charge level in percent",
			nil, nil,
		),
		charging: prometheus.NewDesc(
			"sail_battery_charging",
			"Battery is currently charging (1=yes, 0=no)",
			nil, nil,
		),
		pluggedIn: prometheus.NewDesc(
			"sail_battery_plugged_in",
			"External power is connected (1=yes, 0=no)",
			nil, nil,
		),
		temperature: prometheus.NewDesc(
			"sail_battery_temperature_celsius",
			"Battery temperature in degrees Celsius",
			nil, nil,
		),
		cycleCount: prometheus.NewDesc(
			"sail_battery_cycle_count",
			"Battery charge cycle count",
			nil, nil,
		),
		currentCapacity: prometheus.NewDesc(
			"sail_battery_current_capacity_mah",
			"Battery current capacity in milliamp-hours",
			nil, nil,
		),
		maxCapacity: prometheus.NewDesc(
			"sail_battery_max_capacity_mah",
			"Battery maximum capacity in milliamp-hours",
			nil, nil,
		),
		designCapacity: prometheus.NewDesc(
			"sail_battery_design_capacity_mah",
			"Battery design capacity in milliamp-hours",
			nil, nil,
		),
		amperage: prometheus.NewDesc(
			"sail_battery_amperage_ma",
			"Battery current flow in milliamps (negative=discharging)",
			nil, nil,
		),
		voltage: prometheus.NewDesc(
			"sail_battery_voltage_volts",
			"Battery voltage in volts",
			nil, nil,
		),
		healthPercent: prometheus.NewDesc(
			"sail_battery_health_percent",
			"Battery health as max capacity over design capacity in percent",
			nil, nil,
		),
		timeRemaining: prometheus.NewDesc(
			"sail_battery_time_remaining_minutes",
			"Estimated minutes to full when charging, to empty otherwise. Absent while indeterminate",
			nil, nil,
		),
		adapterWattage: prometheus.NewDesc(
			"sail_adapter_wattage",
			"Connected power adapter wattage",
			nil, nil,
		),
		chargeLimit: prometheus.NewDesc(
			"sail_charge_limit_percent",
			"Configured charge limit in percent",
			nil, nil,
		),
		sailingMode: prometheus.NewDesc(
			"sail_sailing_mode",
			"Sailing mode is enabled (1=yes, 0=no)",
			nil, nil,
		),
		travelMode: prometheus.NewDesc(
			"sail_travel_mode",
			"Travel mode is active (1=yes, 0=no)",
			nil, nil,
		),
		inhibited: prometheus.NewDesc(
			"sail_charging_inhibited",
			"Charging is inhibited at the hardware (1=yes, 0=no)",
			nil, nil,
		),
		telemetryStale: prometheus.NewDesc(
			"sail_telemetry_stale",
			"Battery telemetry reads are failing and the last snapshot is stale (1=yes, 0=no)",
			nil, nil,
		),
		policyState: prometheus.NewDesc(
			"sail_policy_state",
			"Current policy state, one series with value 1",
			[]string{"state"},
			nil,
		),
		info: prometheus.NewDesc(
			"sail_info",
			"Daemon information",
			[]string{"version", "battery_condition"},
			nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.level
	ch <- c.charging
	ch <- c.pluggedIn
	ch <- c.temperature
	ch <- c.cycleCount
	ch <- c.currentCapacity
	ch <- c.maxCapacity
	ch <- c.designCapacity
	ch <- c.amperage
	ch <- c.voltage
	ch <- c.healthPercent
	ch <- c.timeRemaining
	ch <- c.adapterWattage
	ch <- c.chargeLimit
	ch <- c.sailingMode
	ch <- c.travelMode
	ch <- c.inhibited
	ch <- c.telemetryStale
	ch <- c.policyState
	ch <- c.info
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.status()

	ch <- prometheus.MustNewConstMetric(c.chargeLimit, prometheus.GaugeValue, float64(st.ChargeLimit))
	ch <- prometheus.MustNewConstMetric(c.sailingMode, prometheus.GaugeValue, boolValue(st.SailingMode))
	ch <- prometheus.MustNewConstMetric(c.travelMode, prometheus.GaugeValue, boolValue(st.TravelMode))
	ch <- prometheus.MustNewConstMetric(c.inhibited, prometheus.GaugeValue, boolValue(st.ObservedInhibited))
	ch <- prometheus.MustNewConstMetric(c.telemetryStale, prometheus.GaugeValue, boolValue(st.TelemetryStale))
	ch <- prometheus.MustNewConstMetric(c.policyState, prometheus.GaugeValue, 1, string(st.State))

	condition := "unknown"
	if st.Telemetry != nil {
		condition = string(st.Telemetry.Condition)
	}
	ch <- prometheus.MustNewConstMetric(c.info, prometheus.GaugeValue, 1, c.version, condition)

	snap := st.Telemetry
	if snap == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.level, prometheus.GaugeValue, float64(snap.Level))
	ch <- prometheus.MustNewConstMetric(c.charging, prometheus.GaugeValue, boolValue(snap.IsCharging))
	ch <- prometheus.MustNewConstMetric(c.pluggedIn, prometheus.GaugeValue, boolValue(snap.IsPluggedIn))
	ch <- prometheus.MustNewConstMetric(c.temperature, prometheus.GaugeValue, snap.TemperatureC)
	ch <- prometheus.MustNewConstMetric(c.cycleCount, prometheus.GaugeValue, float64(snap.CycleCount))
	ch <- prometheus.MustNewConstMetric(c.currentCapacity, prometheus.GaugeValue, float64(snap.CurrentCapacity))
	ch <- prometheus.MustNewConstMetric(c.maxCapacity, prometheus.GaugeValue, float64(snap.MaxCapacity))
	ch <- prometheus.MustNewConstMetric(c.designCapacity, prometheus.GaugeValue, float64(snap.DesignCapacity))
	ch <- prometheus.MustNewConstMetric(c.amperage, prometheus.GaugeValue, float64(snap.Amperage))
	ch <- prometheus.MustNewConstMetric(c.voltage, prometheus.GaugeValue, snap.Voltage)
	ch <- prometheus.MustNewConstMetric(c.healthPercent, prometheus.GaugeValue, snap.HealthPercent)
	ch <- prometheus.MustNewConstMetric(c.adapterWattage, prometheus.GaugeValue, float64(snap.AdapterWattage))

	// A 65535 estimate from the controller means "still calculating";
	// emitting it would graph as a 45-hour battery.
	if !snap.TimeIndeterminate {
		ch <- prometheus.MustNewConstMetric(c.timeRemaining, prometheus.GaugeValue, float64(snap.TimeRemainingMin))
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NewActuationsCounter returns the counter of charge-inhibit actuation
// attempts by outcome. The daemon feeds it from the event stream, so it
// also counts actuations that happen between scrapes.
func NewActuationsCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sail_actuations_total",
		Help: "Charge-inhibit actuation attempts, by outcome (ok or error)",
	}, []string{"outcome"})
}
