package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sailmode/sail/pkg/config"
	"github.com/sailmode/sail/pkg/utils/agent"
)

func init() {
	commandGroups = append(commandGroups, gInstallation)
}

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install sail (login agent for your user)",
		GroupID: gInstallation,
		Long: `Install the sail daemon as a launchd agent for your user.

This makes the daemon run in the background and start automatically when you log in. The daemon runs as you, not as root; the only privileged pieces are the helper and sudoers rule installed by 'sudo sail setup'.

Run this command as your normal user, without sudo.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// A root-owned agent plist in the user's home breaks later
			// launchctl runs, so refuse early.
			if os.Geteuid() == 0 {
				return fmt.Errorf("do not run install as root. The daemon runs as your user; run 'sail install' without sudo")
			}

			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			err = agent.Install(configPath, unixSocketPath)
			if err != nil {
				return fmt.Errorf("failed to install agent: %v", err)
			}

			err = conf.Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("`launchd' will use current binary (%s) at startup so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run ``sail install'' again.\n", exePath)

			if !conf.SetupComplete() {
				cmd.Println("\nNext step: run `sudo sail setup` to install the privileged helper, then `sail sailing enable` to start enforcing the charge limit.")
			}

			return nil
		},
	}

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	noResetCharging := false

	cmd := &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall sail (login agent for your user)",
		GroupID: gInstallation,
		Long: `Remove the sail launchd agent for your user.

Before stopping the daemon, charging is re-enabled so your Mac does not stay stuck at the limit. The privileged helper and sudoers rule are left in place; remove them with 'sudo sail setup remove'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if os.Geteuid() == 0 {
				return fmt.Errorf("do not run uninstall as root. Run 'sail uninstall' without sudo")
			}

			if !noResetCharging {
				// Best effort. The daemon also force-uninhibits on
				// shutdown, this just does it before launchd pulls the
				// plug.
				if ret, err := apiClient.SetSailing(false); err != nil {
					logrus.WithError(err).Warn("could not reset charging via the daemon")
				} else if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}
			}

			err := agent.Uninstall()
			if err != nil {
				return fmt.Errorf("failed to uninstall agent: %v", err)
			}

			logrus.Infof("uninstallation succeeded")

			cmd.Println("The privileged helper and sudoers rule were kept. Run `sudo sail setup remove` to delete them too.")

			return nil
		},
	}

	cmd.Flags().BoolVar(&noResetCharging, "no-reset-charging", false, "do not re-enable charging before uninstalling")

	return cmd
}
