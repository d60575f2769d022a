package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sailmode/sail/pkg/policy"
	"github.com/sailmode/sail/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewLimitCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "limit [percentage]",
		Short:   "Set charge limit",
		GroupID: gBasic,
		Long: `Set charge limit.

This is a percentage from 20 to 100. While sailing mode is enabled, charging stops once the battery reaches this percentage and resumes when it drops below.

Setting the limit to 100 effectively disables the limit, which is the default behavior of macOS.`,
		RunE: func(_ *cobra.Command, args []string) error {
			limit, err := parseIntArg(args, "limit")
			if err != nil {
				return err
			}

			ret, err := apiClient.SetLimit(limit)
			if err != nil {
				return fmt.Errorf("failed to set limit: %v", err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			logrus.Infof("successfully set battery charge limit to %d%%", limit)

			return nil
		},
	}
}

func NewSailingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sailing",
		Short:   "Enable or disable charge limit enforcement",
		GroupID: gBasic,
		Long: `Enable or disable sailing mode.

Sailing mode is the master switch. While enabled, sail holds the battery at the configured charge limit. While disabled, sail only watches the battery and your Mac charges to 100% as usual.

Disabling sailing mode always re-enables charging, so you are never left with a Mac that refuses to charge.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Enable sailing mode",
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := apiClient.SetSailing(true)
				if err != nil {
					return fmt.Errorf("failed to enable sailing mode: %v", err)
				}

				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}

				logrus.Infof("successfully enabled sailing mode")

				return nil
			},
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Disable sailing mode",
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := apiClient.SetSailing(false)
				if err != nil {
					return fmt.Errorf("failed to disable sailing mode: %v", err)
				}

				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}

				logrus.Infof("successfully disabled sailing mode")

				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Get the current status of sailing mode",
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := apiClient.GetSailing()
				if err != nil {
					return fmt.Errorf("failed to get sailing mode status: %v", err)
				}

				if ret {
					logrus.Infof("sailing mode is enabled")
				} else {
					logrus.Infof("sailing mode is disabled")
				}

				return nil
			},
		},
	)

	return cmd
}

func NewTravelCommand() *cobra.Command {
	var duration time.Duration

	enableCmd := &cobra.Command{
		Use:   "enable",
		Short: "Enable travel mode",
		Example: `  sail travel enable                (full charge for the default 24h)
  sail travel enable --duration 48h (full charge for two days)
  sail travel enable --duration 0   (full charge until disabled)`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.SetTravel(true, duration)
			if err != nil {
				return fmt.Errorf("failed to enable travel mode: %v", err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			if duration > 0 {
				logrus.Infof("successfully enabled travel mode for %s", duration)
			} else {
				logrus.Infof("successfully enabled travel mode until you disable it")
			}

			return nil
		},
	}
	enableCmd.Flags().DurationVar(&duration, "duration", policy.DefaultTravelDuration, "automatically end travel mode after this long (e.g. 48h). 0 means until disabled")

	cmd := &cobra.Command{
		Use:     "travel",
		Short:   "Temporarily charge to 100% for a trip",
		GroupID: gBasic,
		Long: `Temporarily charge to 100% for a trip.

Travel mode lifts the charge limit to 100% and remembers the limit you had. When travel mode ends, either because you disable it or because the optional duration expires, the previous limit is restored and enforced again.

Changing the charge limit while travel mode is active updates the remembered limit without ending the trip.`,
	}

	cmd.AddCommand(
		enableCmd,
		&cobra.Command{
			Use:   "disable",
			Short: "Disable travel mode and restore the previous limit",
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := apiClient.SetTravel(false, 0)
				if err != nil {
					return fmt.Errorf("failed to disable travel mode: %v", err)
				}

				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}

				logrus.Infof("successfully disabled travel mode")

				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Get the current status of travel mode",
			RunE: func(_ *cobra.Command, _ []string) error {
				st, err := apiClient.GetStatus()
				if err != nil {
					return fmt.Errorf("failed to get travel mode status: %v", err)
				}

				if !st.TravelMode {
					logrus.Infof("travel mode is disabled")
					return nil
				}

				if st.TravelModeExpiry != nil {
					logrus.Infof("travel mode is enabled until %s", st.TravelModeExpiry.Local().Format(time.DateTime))
				} else {
					logrus.Infof("travel mode is enabled until you disable it")
				}

				return nil
			},
		},
	)

	return cmd
}
