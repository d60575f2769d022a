package agent

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sailmode/sail/hack"
)

const plistName = "com.sailmode.sail.plist"

// plistPath resolves ~/Library/LaunchAgents/<plistName> for the
// current user.
func plistPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, "Library", "LaunchAgents", plistName), nil
}

// Install writes the launch agent plist for the current user and loads
// it, so the daemon starts at login with the given config and socket
// paths.
func Install(configPath, socketPath string) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	err = os.Chmod(exePath, 0755)
	if err != nil {
		return fmt.Errorf("failed to chmod the current executable to 0755: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	logPath := filepath.Join(filepath.Dir(configPath), "daemon.log")

	tmpl := hack.LaunchAgentPlistTemplate
	tmpl = strings.ReplaceAll(tmpl, "/path/to/sail", exePath)
	tmpl = strings.ReplaceAll(tmpl, "/path/to/config.json", configPath)
	tmpl = strings.ReplaceAll(tmpl, "/path/to/daemon.sock", socketPath)
	tmpl = strings.ReplaceAll(tmpl, "/path/to/daemon.log", logPath)

	target, err := plistPath()
	if err != nil {
		return err
	}

	logrus.Infof("writing launch agent to %s", filepath.Dir(target))

	// mkdir -p. The state dir too, so launchd can open the log file.
	err = os.MkdirAll(filepath.Dir(target), 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
	}
	err = os.MkdirAll(filepath.Dir(configPath), 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(configPath), err)
	}

	// warn if the file already exists
	_, err = os.Stat(target)
	if err == nil {
		logrus.Errorf("%s already exists", target)
		return fmt.Errorf("%s already exists. This is often caused by an incorrect installation. Did you forget to uninstall sail before installing it again? Please uninstall it first, by running 'sail uninstall'. If you already removed sail, you can solve this problem by 'rm %s'", target, target)
	}

	err = os.WriteFile(target, []byte(tmpl), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}

	logrus.Infof("starting sail")

	// run launchctl load ~/Library/LaunchAgents/com.sailmode.sail.plist
	err = exec.Command(
		"/bin/launchctl",
		"load",
		target,
	).Run()
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", target, err)
	}

	return nil
}
