package main

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sailmode/sail/pkg/client"
	"github.com/sailmode/sail/pkg/helper"
	"github.com/sailmode/sail/pkg/utils/osver"
)

var (
	logLevel       = "info"
	unixSocketPath = defaultStatePath("daemon.sock")
	configPath     = defaultStatePath("config.json")
)

var (
	gBasic        = "Basic:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gBasic,
		gAdvanced,
	}
)

var apiClient = client.NewClient(unixSocketPath)

// defaultStatePath resolves a file under ~/.sail. The daemon runs as
// the login user, so its state lives in the home directory instead of
// /etc and /var/run.
func defaultStatePath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "sail", name)
	}
	return filepath.Join(home, ".sail", name)
}

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: sail daemon is not running")
		fmt.Fprintln(os.Stderr, "Is the daemon running? Have you run 'sail install'?")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - The daemon socket belongs to a different user")
		fmt.Fprintln(os.Stderr, "  - Run the command as the user who installed sail, or point --daemon-socket at your own daemon")
	}
}

func main() {
	// sudo invokes the privileged helper copy of this binary under a
	// different name. Dispatch before cobra parses anything.
	if path.Base(os.Args[0]) == helper.InvocationName || os.Getenv(helper.EnvVar) != "" {
		os.Exit(helper.Main(os.Args[1:], os.Stdout, os.Stderr))
	}

	if !osver.IsAtLeast(11, 0, 0) {
		fmt.Fprintln(os.Stderr, "sail requires macOS 11.0 or later")
		os.Exit(1)
	}

	// Reduce the number of CPUs used by sail.
	// sail does not need to use much.
	if os.Getenv("GOMAXPROCS") == "" {
		runtime.GOMAXPROCS(2)
	}

	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sail",
		Short: "sail is a tool to control battery charging on Apple Silicon MacBooks",
		Long: `sail is a tool to control battery charging on Apple Silicon MacBooks.

Website: https://github.com/sailmode/sail
Report issues: https://github.com/sailmode/sail/issues`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			// Rebind in case --daemon-socket changed the path.
			apiClient = client.NewClient(unixSocketPath)

			if clientVersion, daemonVersion, err := getVersion(); err == nil {
				if daemonVersion != clientVersion {
					logrus.WithFields(logrus.Fields{
						"clientVersion": clientVersion,
						"daemonVersion": daemonVersion,
					}).Warn("Version mismatch between client and daemon. sail may not work as expected. You should follow the installation / upgrade instructions precisely to ensure both client and daemon are the same version.")
				}
			} else {
				if errors.Is(err, client.ErrNotFound) {
					logrus.Error("sail daemon is too old to report its version. You should follow the installation / upgrade instructions precisely to ensure both client and daemon are the same version.")
				}
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "sail daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewLimitCommand(),
		NewSailingCommand(),
		NewTravelCommand(),
		NewStatusCommand(),
		NewAutoPauseCommand(),
		NewIntervalCommand(),
		NewScheduleCommand(),
		NewEventsCommand(),
		NewTelemetryCommand(),
		NewSetupCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
