package main

import (
	"encoding/json"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/sailmode/sail/pkg/client"
)

type statusJSON struct {
	Policy statusPolicyJSON `json:"policy"`
	// Battery is omitted until the daemon has completed a telemetry read.
	Battery       *statusBatteryJSON  `json:"battery,omitempty"`
	Configuration statusConfigJSON    `json:"configuration"`
	Schedule      *statusScheduleJSON `json:"schedule,omitempty"`
}

type statusPolicyJSON struct {
	State             string `json:"state"`
	SailingMode       bool   `json:"sailingMode"`
	ChargingInhibited bool   `json:"chargingInhibited"`
	PluggedIn         bool   `json:"pluggedIn"`
	SetupComplete     bool   `json:"setupComplete"`
	TelemetryStale    bool   `json:"telemetryStale"`
}

type statusBatteryJSON struct {
	CurrentChargePercent int     `json:"currentChargePercent"`
	State                string  `json:"state"`
	TimeToLimitMinutes   *int    `json:"timeToLimitMinutes"`
	HealthPercent        float64 `json:"healthPercent"`
	Condition            string  `json:"condition"`
	CycleCount           int     `json:"cycleCount"`
	TemperatureCelsius   float64 `json:"temperatureCelsius"`
	FullCapacityMah      int     `json:"fullCapacityMah"`
	DesignCapacityMah    int     `json:"designCapacityMah"`
	ChargeRateWatts      float64 `json:"chargeRateWatts"`
	VoltageVolts         float64 `json:"voltageVolts"`
}

type statusConfigJSON struct {
	ChargeLimitPercent     int                 `json:"chargeLimitPercent"`
	AutoPause              statusAutoPauseJSON `json:"autoPause"`
	MonitorIntervalSeconds int                 `json:"monitorIntervalSeconds"`
	TravelMode             statusTravelJSON    `json:"travelMode"`
}

type statusAutoPauseJSON struct {
	Enabled          bool `json:"enabled"`
	ThresholdPercent int  `json:"thresholdPercent"`
}

type statusTravelJSON struct {
	Enabled bool       `json:"enabled"`
	Expiry  *time.Time `json:"expiry,omitempty"`
}

type statusScheduleJSON struct {
	Cron    string     `json:"cron"`
	NextRun *time.Time `json:"nextRun,omitempty"`
}

// batteryStateString returns a camelCase string for the battery state.
func batteryStateString(state client.BatteryState, chargeRate float64) string {
	switch state {
	case client.BatteryCharging:
		return "charging"
	case client.BatteryDischarging:
		if chargeRate != 0 {
			return "discharging"
		}
		return "notCharging"
	case client.BatteryFull:
		return "full"
	default:
		return "notCharging"
	}
}

func printStatusJSON(cmd *cobra.Command, data *statusData) error {
	st := data.status
	snap := st.Telemetry

	out := statusJSON{
		Policy: statusPolicyJSON{
			State:             string(st.State),
			SailingMode:       st.SailingMode,
			ChargingInhibited: st.ObservedInhibited,
			PluggedIn:         snap != nil && snap.IsPluggedIn,
			SetupComplete:     st.SetupComplete,
			TelemetryStale:    st.TelemetryStale,
		},
		Configuration: statusConfigJSON{
			ChargeLimitPercent: st.ChargeLimit,
			AutoPause: statusAutoPauseJSON{
				Enabled:          st.AutoPauseEnabled,
				ThresholdPercent: st.AutoPauseThreshold,
			},
			MonitorIntervalSeconds: st.MonitorIntervalSeconds,
			TravelMode: statusTravelJSON{
				Enabled: st.TravelMode,
				Expiry:  st.TravelModeExpiry,
			},
		},
	}

	if snap != nil {
		out.Battery = &statusBatteryJSON{
			CurrentChargePercent: snap.Level,
			State:                batteryStateString(data.batteryInfo.State, data.batteryInfo.ChargeRate),
			TimeToLimitMinutes:   computeTimeToLimit(st),
			HealthPercent:        math.Round(snap.HealthPercent*10) / 10,
			Condition:            string(snap.Condition),
			CycleCount:           snap.CycleCount,
			TemperatureCelsius:   math.Round(snap.TemperatureC*10) / 10,
			FullCapacityMah:      snap.MaxCapacity,
			DesignCapacityMah:    snap.DesignCapacity,
			ChargeRateWatts:      math.Round(data.batteryInfo.ChargeRate/1e3*10) / 10,
			VoltageVolts:         math.Round(data.batteryInfo.DesignVoltage*100) / 100,
		}
	}

	if data.schedule.Active {
		out.Schedule = &statusScheduleJSON{
			Cron:    data.schedule.Spec,
			NextRun: data.schedule.NextRun,
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
