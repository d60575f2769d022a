package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule [cron-expression]",
		Aliases: []string{"sch", "sche", "sched"},
		Short:   "Manage the automatic top-up schedule",
		Long: `Manage the automatic top-up schedule.

A top-up temporarily lifts the charge limit to 100% so the battery is full when you need it, for example before a Monday commute. The limit is restored a couple of hours later.

The schedule command can be used in multiple ways:
  sail schedule 'minute hour day month weekday' Set schedule with cron expression
  sail schedule disable                         Disable the schedule
  sail schedule postpone [duration]             Postpone next run
  sail schedule skip                            Skip next run
  sail schedule show                            Show current schedule`,
		Example: `  sail schedule '0 7 * * 1'  (At 07:00 on Monday)
  sail schedule '0 7 * * 1-5' (At 07:00 on every weekday)
  sail schedule '0 9 1 * *'  (At 09:00 on the first day of every month)`,
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, args []string) error {
			// If no arguments, show the current schedule
			if len(args) == 0 {
				return runScheduleShow(cmd)
			}
			// Otherwise, treat as a cron expression to set
			return runScheduleSet(cmd, args[0])
		},
	}

	cmd.AddCommand(
		newScheduleDisableCommand(),
		newSchedulePostponeCommand(),
		newScheduleSkipCommand(),
		newScheduleShowCommand(),
	)

	return cmd
}

func newScheduleDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Disable the top-up schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleDisable(cmd)
		},
	}
}

func newSchedulePostponeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "postpone [duration]",
		Short: "Postpone the next scheduled top-up",
		Example: `  sail schedule postpone      (Postpone by 1 hour)
  sail schedule postpone 90m  (Postpone by 90 minutes)
  sail schedule postpone 2h   (Postpone by 2 hours)`,
		Long: `Postpone the next scheduled top-up by a specified duration.
If no duration is provided, defaults to 1 hour. The postponed run must still come before the following scheduled occurrence.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := time.Hour // default
			if len(args) > 0 {
				parsed, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", args[0], err)
				}
				d = parsed
			}
			return runSchedulePostpone(cmd, d)
		},
	}
}

func newScheduleSkipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Skip the next scheduled top-up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleSkip(cmd)
		},
	}
}

func newScheduleShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current top-up schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleShow(cmd)
		},
	}
}

func runScheduleSet(cmd *cobra.Command, cronExpr string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	if _, err := apiClient.SetSchedule(cronExpr); err != nil {
		return err
	}
	return runScheduleShow(cmd)
}

func runScheduleDisable(cmd *cobra.Command) error {
	if _, err := apiClient.DeleteSchedule(); err != nil {
		return err
	}
	cmd.Println("Top-up schedule disabled.")
	return nil
}

func runSchedulePostpone(cmd *cobra.Command, duration time.Duration) error {
	if _, err := apiClient.PostponeSchedule(duration); err != nil {
		return err
	}
	cmd.Printf("Next top-up postponed by %s.\n", duration)
	return nil
}

func runScheduleSkip(cmd *cobra.Command) error {
	if _, err := apiClient.SkipSchedule(); err != nil {
		return err
	}
	cmd.Println("Next scheduled top-up skipped.")
	return nil
}

func runScheduleShow(cmd *cobra.Command) error {
	st, err := apiClient.GetSchedule()
	if err != nil {
		return err
	}
	if !st.Active {
		cmd.Println("Top-up schedule is not set.")
		return nil
	}
	cmd.Printf("Top-up schedule: %s\n", st.Spec)
	if st.NextRun != nil {
		cmd.Printf("Next run: %s\n", st.NextRun.Local().Format(time.DateTime))
	}
	return nil
}
