package agent

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"
)

func Uninstall() error {
	target, err := plistPath()
	if err != nil {
		return err
	}

	logrus.Infof("stopping sail")

	// run launchctl unload ~/Library/LaunchAgents/com.sailmode.sail.plist
	err = exec.Command(
		"/bin/launchctl",
		"unload",
		target,
	).Run()
	if err != nil {
		return fmt.Errorf("failed to unload %s: %w. Is sail installed?", target, err)
	}

	logrus.Infof("removing launch agent")

	// if the file doesn't exist, we don't need to remove it
	_, err = os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", target, err)
	}

	err = os.Remove(target)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", target, err)
	}

	return nil
}
