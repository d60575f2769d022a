// Package config persists user-facing policy configuration. The policy
// layer owns a Config and writes it back on every mutation, so settings
// survive daemon restarts.
package config

import (
	"time"

	"github.com/sirupsen/logrus"
)

type Config interface {
	ChargeLimit() int
	SailingMode() bool
	TravelMode() bool
	// TravelModeExpiry reports when travel mode ends. ok is false when
	// travel mode has no scheduled expiry.
	TravelModeExpiry() (expiry time.Time, ok bool)
	// SavedLimitBeforeTravel is the charge limit to restore once travel
	// mode ends. ok is false when nothing was saved.
	SavedLimitBeforeTravel() (limit int, ok bool)
	AutoPauseEnabled() bool
	AutoPauseThreshold() int
	MonitorIntervalSeconds() int
	SetupComplete() bool
	// TopUpSchedule is the cron spec for scheduled top-ups, empty when
	// none is configured.
	TopUpSchedule() string

	SetChargeLimit(int)
	SetSailingMode(bool)
	SetTravelMode(bool)
	SetTravelModeExpiry(time.Time)
	ClearTravelModeExpiry()
	SetSavedLimitBeforeTravel(int)
	ClearSavedLimitBeforeTravel()
	SetAutoPauseEnabled(bool)
	SetAutoPauseThreshold(int)
	SetMonitorIntervalSeconds(int)
	SetSetupComplete(bool)
	SetTopUpSchedule(string)

	// LogrusFields reports the current settings as structured log fields.
	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
