package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sailmode/sail/pkg/setup"
)

func NewSetupCommand() *cobra.Command {
	yes := false

	cmd := &cobra.Command{
		Use:     "setup",
		Short:   "Run the one-time privileged setup",
		GroupID: gInstallation,
		Long: `Run the one-time privileged setup.

The sail daemon runs as your user and cannot touch the SMC by itself. This command installs the two artifacts that make charging control possible without a root daemon:

  - a root-owned copy of the sail binary, pinned at a fixed path, that only knows how to read and write the charging-related SMC keys
  - a sudoers rule that lets admin users run exactly the enumerated helper commands, and nothing else, without a password

Nothing is installed without your confirmation. Run it again any time to repair or upgrade the artifacts. Remove them with 'sudo sail setup remove'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if os.Geteuid() != 0 {
				return fmt.Errorf("setup must run as root. Run 'sudo sail setup'")
			}

			s := setup.New()

			cmd.Println("This will install:")
			cmd.Printf("  - a root-owned helper copy of this binary at %s\n", s.HelperPath)
			cmd.Printf("  - a sudoers rule at %s allowing admin users to run\n", s.RulePath)
			cmd.Println("    exactly the enumerated helper commands without a password")

			if !yes {
				cmd.Print("\nProceed? [y/N]: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil {
					return fmt.Errorf("failed to read answer: %v", err)
				}
				switch strings.ToLower(strings.TrimSpace(line)) {
				case "y", "yes":
				default:
					cmd.Println("Aborted. Nothing was installed.")
					return nil
				}
			}

			if err := s.PerformOneTimeSetup(cmd.Context()); err != nil {
				return fmt.Errorf("setup failed: %v", err)
			}

			logrus.Infof("setup succeeded")

			// The artifacts exist, but the daemon also keeps its own flag
			// so it never trusts a stale config. Flip it now if the daemon
			// is reachable.
			if ret, err := apiClient.RecordSetup(); err != nil {
				logrus.WithError(err).Warn("could not notify the daemon. Once it is running, run 'sail setup record' to finish.")
			} else if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	cmd.AddCommand(
		newSetupStatusCommand(),
		newSetupRecordCommand(),
		newSetupRemoveCommand(),
	)

	return cmd
}

func newSetupStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the privileged setup artifacts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if st, err := apiClient.GetSetup(); err == nil {
				cmd.Printf("Helper: %s\n", st.HelperPath)
				cmd.Printf("Sudoers rule: %s\n", st.RulePath)
				cmd.Printf("Artifacts verified: %s\n", bool2Text(st.Complete))
				cmd.Printf("Recorded in config: %s\n", bool2Text(st.Flagged))
				if st.Problem != "" {
					cmd.Printf("Problem: %s\n", st.Problem)
				}
				return nil
			}

			// Daemon not reachable, check the artifacts directly.
			s := setup.New()
			cmd.Printf("Helper: %s\n", s.HelperPath)
			cmd.Printf("Sudoers rule: %s\n", s.RulePath)
			if err := s.VerifyArtifacts(); err != nil {
				cmd.Printf("Artifacts verified: %s\n", bool2Text(false))
				cmd.Printf("Problem: %v\n", err)
				return nil
			}
			cmd.Printf("Artifacts verified: %s\n", bool2Text(true))
			return nil
		},
	}
}

func newSetupRecordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "record",
		Short: "Tell the daemon that setup has completed",
		Long: `Tell the daemon that setup has completed.

The daemon re-verifies the artifacts before accepting, so this is safe to run any time. You only need it when 'sudo sail setup' could not reach the daemon.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.RecordSetup()
			if err != nil {
				return fmt.Errorf("failed to record setup: %v", err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			logrus.Infof("setup recorded")

			return nil
		},
	}
}

func newSetupRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove",
		Short: "Remove the privileged helper and sudoers rule",
		Long: `Remove the privileged helper and sudoers rule.

Run 'sail sailing disable' first if charging is currently inhibited: once the helper is gone the daemon has no password-free way to re-enable charging.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if os.Geteuid() != 0 {
				return fmt.Errorf("removal must run as root. Run 'sudo sail setup remove'")
			}

			if err := setup.New().Remove(); err != nil {
				return fmt.Errorf("failed to remove setup artifacts: %v", err)
			}

			logrus.Infof("setup artifacts removed")

			return nil
		},
	}
}
