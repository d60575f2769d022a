package policy

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sailmode/sail/pkg/config"
	"github.com/sailmode/sail/pkg/events"
)

// All configuration flows through these methods so every mutation is
// persisted and immediately re-evaluated. Nothing else may write the
// config.

// SetChargeLimit changes the charge ceiling. While travel mode is
// active the new value becomes the limit to restore afterwards; the
// active ceiling stays at 100 until travel ends.
func (c *Controller) SetChargeLimit(limit int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.TravelMode() {
		c.cfg.SetSavedLimitBeforeTravel(clampLimit(limit))
	} else {
		c.cfg.SetChargeLimit(limit)
	}
	err := c.cfg.Save()

	// A limit change while inhibited at a now-stale level must take
	// effect now, not at the next tick.
	c.evaluateLocked()
	return err
}

// SetSailingMode turns the charge-limiting feature on or off. Enabling
// without completed setup parks the machine in AwaitingSetup and does
// not actuate. Disabling always drives the hardware back to
// "charging allowed", whatever the observed state claims.
func (c *Controller) SetSailingMode(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg.SetSailingMode(enabled)
	err := c.cfg.Save()

	if !enabled {
		c.setStateLocked(StateUnmanaged, "sailing mode disabled")
		if c.isSetupCompleteLocked() {
			c.dispatchLocked(false)
		}
		return err
	}

	c.evaluateLocked()
	return err
}

// SetTravelMode raises the ceiling to 100 for a bounded time. A zero
// duration keeps the window open until an explicit disable. Re-enabling
// while active replaces the expiry. Disabling restores the saved limit.
func (c *Controller) SetTravelMode(enabled bool, duration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !enabled {
		// endTravelLocked persists on its own.
		if c.cfg.TravelMode() {
			c.endTravelLocked("disabled by user")
		}
		c.evaluateLocked()
		return nil
	}

	if !c.cfg.TravelMode() {
		c.cfg.SetSavedLimitBeforeTravel(c.cfg.ChargeLimit())
		c.cfg.SetTravelMode(true)
		c.cfg.SetChargeLimit(config.MaxChargeLimit)
	}

	evt := events.TravelModeEvent{Enabled: true, Ts: c.now().Unix()}
	expiryField := "never"
	if duration > 0 {
		expiry := c.now().Add(duration)
		c.cfg.SetTravelModeExpiry(expiry)
		c.armTravelTimerLocked(expiry)
		evt.Expiry = expiry.Format(time.RFC3339)
		expiryField = evt.Expiry
	} else {
		// Open-ended trip. Only an explicit disable ends it, so any
		// timer from a previous bounded window must not fire.
		c.cfg.ClearTravelModeExpiry()
		if c.travelTimer != nil {
			c.travelTimer.Stop()
			c.travelTimer = nil
		}
	}
	err := c.cfg.Save()

	logrus.WithField("expiry", expiryField).Info("Travel mode enabled")
	c.hub.Publish(events.TravelMode, evt)

	c.evaluateLocked()
	return err
}

// SetAutoPause configures the low-battery safety override.
func (c *Controller) SetAutoPause(enabled bool, threshold int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg.SetAutoPauseEnabled(enabled)
	c.cfg.SetAutoPauseThreshold(threshold)
	err := c.cfg.Save()

	c.evaluateLocked()
	return err
}

// SetMonitorInterval changes the telemetry refresh period. The loop
// picks it up on its next tick.
func (c *Controller) SetMonitorInterval(seconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg.SetMonitorIntervalSeconds(seconds)
	return c.cfg.Save()
}

// SetTopUpSchedule persists the top-up cron spec. The daemon's
// scheduler consumes it; an empty spec clears the schedule.
func (c *Controller) SetTopUpSchedule(spec string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg.SetTopUpSchedule(spec)
	return c.cfg.Save()
}

// MarkSetupComplete records that the privilege elevation artifacts were
// installed and re-evaluates, so a machine parked in AwaitingSetup
// starts managing immediately.
func (c *Controller) MarkSetupComplete() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg.SetSetupComplete(true)
	err := c.cfg.Save()

	c.evaluateLocked()
	return err
}

func clampLimit(limit int) int {
	if limit < config.MinChargeLimit {
		return config.MinChargeLimit
	}
	if limit > config.MaxChargeLimit {
		return config.MaxChargeLimit
	}
	return limit
}
