// Package hack holds install-time assets embedded into the binary.
package hack

import (
	_ "embed"
)

// LaunchAgentPlistTemplate is the launchd property list installed to
// ~/Library/LaunchAgents. The /path/to/* tokens are replaced with real
// paths at install time.
//
//go:embed com.sailmode.sail.plist
var LaunchAgentPlistTemplate string
