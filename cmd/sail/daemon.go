package main

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sailmode/sail/pkg/daemon"
	"github.com/sailmode/sail/pkg/version"
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "daemon",
		Hidden:  true,
		Short:   "Run sail daemon in the foreground",
		GroupID: gAdvanced,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("sail daemon starting")

			// First run on a fresh machine, ~/.sail does not exist yet.
			if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
				return err
			}

			return daemon.Run(configPath, unixSocketPath)
		},
	}
}
