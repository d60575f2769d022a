package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sailmode/sail/pkg/battery"
	"github.com/sailmode/sail/pkg/client"
	"github.com/sailmode/sail/pkg/policy"
)

type statusData struct {
	status      *policy.Status
	batteryInfo *client.BatteryInfo
	schedule    *client.ScheduleStatus
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	st, err := apiClient.GetStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to get daemon status: %w", err)
	}

	bat, err := apiClient.GetBatteryInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get battery info: %w", err)
	}

	sched, err := apiClient.GetSchedule()
	if err != nil {
		return nil, fmt.Errorf("failed to get top-up schedule: %w", err)
	}

	return &statusData{
		status:      st,
		batteryInfo: bat,
		schedule:    sched,
	}, nil
}

// computeTimeToLimit estimates minutes until the charge reaches the
// limit. Returns nil when not charging, already at or above the limit,
// or the battery is not reporting a usable current.
func computeTimeToLimit(st *policy.Status) *int {
	snap := st.Telemetry
	if snap == nil || !snap.IsCharging || snap.Amperage <= 0 {
		return nil
	}
	if snap.Level >= st.ChargeLimit {
		return nil
	}

	targetCapacitymAh := float64(st.ChargeLimit) / 100.0 * float64(snap.MaxCapacity)
	capacityToChargemAh := targetCapacitymAh - float64(snap.CurrentCapacity)
	if capacityToChargemAh <= 0 {
		return nil
	}

	timeToLimitMinutes := int(capacityToChargemAh / float64(snap.Amperage) * 60)
	if timeToLimitMinutes <= 0 {
		return nil
	}
	return &timeToLimitMinutes
}

func NewStatusCommand() *cobra.Command {
	jsonOutput := false

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of sail",
		Long:    `Get sail status, battery info, and configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Get various info first.
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			if jsonOutput {
				return printStatusJSON(cmd, data)
			}

			st := data.status
			snap := st.Telemetry

			// Charging status.
			cmd.Println(bold("Charging status:"))

			pluggedIn := snap != nil && snap.IsPluggedIn

			additionalMsg := fmt.Sprintf(" (refreshes can take up to %d seconds)", st.MonitorIntervalSeconds)
			switch st.State {
			case policy.StateUnmanaged:
				cmd.Println("  Sailing mode: " + bool2Text(false))
				cmd.Println("    Charging is not being managed. Your Mac will charge to 100%.")
			case policy.StateAwaitingSetup:
				cmd.Println("  Sailing mode: " + bool2Text(false) + " (waiting for setup)")
				cmd.Println("    Sailing mode is requested but the one-time setup has not completed. Run `sudo sail setup`.")
			case policy.StateInhibiting:
				cmd.Println("  Charging inhibited: " + bool2Text(true) + additionalMsg)
				cmd.Print("    Your Mac will not charge")
				if pluggedIn {
					cmd.Print(" even though you are plugged in")
				}
				cmd.Printf(", because your current charge is at or above the %d%% limit.\n", st.ChargeLimit)
			default: // monitoring
				cmd.Println("  Charging inhibited: " + bool2Text(false) + additionalMsg)
				cmd.Print("    Your Mac will charge")
				if !pluggedIn {
					cmd.Print(", but you are not plugged in yet.")
				} else {
					cmd.Printf(" until it reaches the %d%% limit.", st.ChargeLimit)
				}
				cmd.Println()
			}

			cmd.Println("  Plugged in: " + bool2Text(pluggedIn))

			cmd.Println()

			// Battery Info.
			cmd.Println(bold("Battery status:"))

			if snap == nil {
				cmd.Println("  No telemetry yet. The daemon has not completed a battery read.")
			} else {
				if st.TelemetryStale {
					cmd.Println("  " + color.YellowString("Telemetry is stale. Battery reads are currently failing; values below are the last known good ones."))
				}

				cmd.Printf("  Current charge: %s\n", bold("%d%%", snap.Level))

				if minutes := computeTimeToLimit(st); minutes != nil {
					cmd.Printf("  Time to limit (%d%%): %s\n", st.ChargeLimit, bold("~%d minutes", *minutes))
				}

				state := "not charging"
				switch data.batteryInfo.State {
				case client.BatteryCharging:
					state = color.GreenString("charging")
				case client.BatteryDischarging:
					if data.batteryInfo.ChargeRate != 0 {
						state = color.RedString("discharging")
					}
				case client.BatteryFull:
					state = "full"
				}
				cmd.Printf("  State: %s\n", bold("%s", state))

				cmd.Printf("  Health: %s\n", bold("%.0f%% of design capacity (%d/%d mAh)", snap.HealthPercent, snap.MaxCapacity, snap.DesignCapacity))
				if snap.Condition != battery.ConditionNormal && snap.Condition != battery.ConditionUnknown {
					cmd.Printf("  Condition: %s\n", color.New(color.Bold, color.FgYellow).Sprint(string(snap.Condition)))
				}
				cmd.Printf("  Cycle count: %s\n", bold("%d", snap.CycleCount))
				cmd.Printf("  Temperature: %s\n", bold("%.1f °C", snap.TemperatureC))

				// Show charge rate in Watts with sign (+ charging, - discharging) and bright color (bold)
				watts := data.batteryInfo.ChargeRate / 1e3
				var rateStr string
				switch {
				case watts > 0:
					rateStr = color.New(color.Bold, color.FgGreen).Sprintf("%+.1f W", watts)
				case watts < 0:
					rateStr = color.New(color.Bold, color.FgRed).Sprintf("%+.1f W", watts)
				default:
					rateStr = bold("%+.1f W", watts)
				}
				cmd.Printf("  Charge rate: %s\n", rateStr)
				cmd.Printf("  Voltage: %s\n", bold("%.2f V", data.batteryInfo.DesignVoltage))
			}

			cmd.Println()

			// Config.
			cmd.Println(bold("Battery configuration:"))
			if st.ChargeLimit < 100 {
				cmd.Printf("  Charge limit: %s\n", bold("%d%%", st.ChargeLimit))
			} else {
				cmd.Printf("  Charge limit: %s\n", bold("100%% (no limit)"))
			}
			if st.AutoPauseEnabled {
				cmd.Printf("  Auto pause below %d%%: %s\n", st.AutoPauseThreshold, bool2Text(true))
			} else {
				cmd.Printf("  Auto pause: %s\n", bool2Text(false))
			}
			cmd.Printf("  Monitor interval: %s\n", bold("%ds", st.MonitorIntervalSeconds))
			if st.TravelMode {
				if st.TravelModeExpiry != nil {
					cmd.Printf("  Travel mode: %s (until %s)\n", bool2Text(true), st.TravelModeExpiry.Local().Format(time.DateTime))
				} else {
					cmd.Printf("  Travel mode: %s (until disabled)\n", bool2Text(true))
				}
			} else {
				cmd.Printf("  Travel mode: %s\n", bool2Text(false))
			}
			if data.schedule.Active {
				if data.schedule.NextRun != nil {
					cmd.Printf("  Top-up schedule: %s (next run %s)\n", bold("%s", data.schedule.Spec), data.schedule.NextRun.Local().Format(time.DateTime))
				} else {
					cmd.Printf("  Top-up schedule: %s\n", bold("%s", data.schedule.Spec))
				}
			} else {
				cmd.Printf("  Top-up schedule: %s\n", bool2Text(false))
			}
			cmd.Printf("  One-time setup completed: %s\n", bool2Text(st.SetupComplete))

			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
