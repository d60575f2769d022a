package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewAutoPauseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "auto-pause",
		Short:   "Pause limit enforcement when the battery runs low",
		GroupID: gAdvanced,
		Long: `Pause limit enforcement when the battery runs low.

If charging is inhibited and the battery keeps draining, for example because the adapter cannot keep up with a heavy load, the charge can fall well below the limit. Auto pause is the safety net: when the charge drops below the threshold while unplugged, sail stops managing charging until you re-enable sailing mode, so the next time you plug in the battery charges normally.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable [threshold]",
			Short: "Enable auto pause, optionally setting the threshold",
			Args:  cobra.MaximumNArgs(1),
			Example: `  sail auto-pause enable    (keep the current threshold)
  sail auto-pause enable 15 (pause below 15%)`,
			RunE: func(_ *cobra.Command, args []string) error {
				threshold := 0
				if len(args) == 1 {
					var err error
					threshold, err = parseIntArg(args, "threshold")
					if err != nil {
						return err
					}
				}

				ret, err := apiClient.SetAutoPause(true, threshold)
				if err != nil {
					return fmt.Errorf("failed to enable auto pause: %v", err)
				}

				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}

				logrus.Infof("successfully enabled auto pause")

				return nil
			},
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Disable auto pause",
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := apiClient.SetAutoPause(false, 0)
				if err != nil {
					return fmt.Errorf("failed to disable auto pause: %v", err)
				}

				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}

				logrus.Infof("successfully disabled auto pause")

				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Get the current status of auto pause",
			RunE: func(_ *cobra.Command, _ []string) error {
				st, err := apiClient.GetStatus()
				if err != nil {
					return fmt.Errorf("failed to get auto pause status: %v", err)
				}

				if st.AutoPauseEnabled {
					logrus.Infof("auto pause is enabled below %d%%", st.AutoPauseThreshold)
				} else {
					logrus.Infof("auto pause is disabled")
				}

				return nil
			},
		},
	)

	return cmd
}

func NewIntervalCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "interval [seconds]",
		Short:   "Set how often the daemon polls the battery",
		GroupID: gAdvanced,
		Long: `Set how often the daemon polls the battery, in seconds from 5 to 60.

A shorter interval reacts faster to reaching the limit at the cost of slightly more wakeups. The default of 10 seconds is fine for almost everyone.`,
		RunE: func(_ *cobra.Command, args []string) error {
			seconds, err := parseIntArg(args, "interval")
			if err != nil {
				return err
			}

			ret, err := apiClient.SetInterval(seconds)
			if err != nil {
				return fmt.Errorf("failed to set monitor interval: %v", err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			logrus.Infof("successfully set monitor interval to %ds", seconds)

			return nil
		},
	}
}

func NewTelemetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "telemetry",
		Short:   "Print the latest battery telemetry snapshot as JSON",
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := apiClient.GetTelemetry()
			if err != nil {
				return fmt.Errorf("failed to get telemetry: %v", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
}

func NewEventsCommand() *cobra.Command {
	jsonOutput := false

	cmd := &cobra.Command{
		Use:     "events",
		Short:   "Stream daemon events until interrupted",
		GroupID: gAdvanced,
		Long: `Stream daemon events until interrupted.

Prints every state transition, actuation result, travel mode change, and top-up schedule event as it happens. Useful for debugging and for scripting on top of sail.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// The stream itself only logs failures, so probe first to
			// surface a dead daemon as a proper error.
			if _, err := apiClient.GetVersion(); err != nil {
				return fmt.Errorf("failed to reach daemon: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for ev := range apiClient.SubscribeEvents(ctx) {
				if jsonOutput {
					line, err := json.Marshal(map[string]any{
						"name": ev.Name,
						"data": ev.Data,
					})
					if err != nil {
						continue
					}
					cmd.Println(string(line))
				} else {
					cmd.Printf("%s %-20s %s\n", time.Now().Format(time.TimeOnly), ev.Name, string(ev.Data))
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print one JSON object per line")

	return cmd
}
