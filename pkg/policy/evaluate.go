package policy

import (
	"github.com/sirupsen/logrus"

	"github.com/sailmode/sail/pkg/events"
)

// evaluateLocked runs the decision rules in priority order. It is
// called on every telemetry delivery, every config mutation, travel
// expiry, and actuation completion. It must stay cheap and must never
// block: actuation is dispatched to a goroutine.
func (c *Controller) evaluateLocked() {
	// Safety override. Draining the battery below the threshold while
	// unplugged means the user needs charge more than they need
	// longevity, so sailing mode turns itself off.
	if snap := c.lastSnap; snap != nil &&
		c.cfg.SailingMode() &&
		c.cfg.AutoPauseEnabled() &&
		!snap.IsPluggedIn &&
		snap.Level < c.cfg.AutoPauseThreshold() {
		c.safetyPauseLocked(snap.Level)
		return
	}

	// Travel expiry. Falls through so the restored limit is acted on in
	// this same evaluation, not the next tick.
	if c.cfg.TravelMode() {
		if expiry, ok := c.cfg.TravelModeExpiry(); ok && c.now().After(expiry) {
			c.endTravelLocked("expired")
		}
	}

	if !c.cfg.SailingMode() {
		c.setStateLocked(StateUnmanaged, "sailing mode off")
		// Never leave the hardware inhibited while the feature is off.
		if c.observedInhibited {
			c.dispatchLocked(false)
		}
		return
	}

	if !c.isSetupCompleteLocked() {
		c.setStateLocked(StateAwaitingSetup, "privilege setup incomplete")
		return
	}

	if c.observedInhibited {
		c.setStateLocked(StateInhibiting, "charging inhibited")
	} else {
		c.setStateLocked(StateMonitoring, "charging allowed")
	}

	snap := c.lastSnap
	if snap == nil {
		// Sailing mode is on but no telemetry arrived yet.
		return
	}

	target := snap.IsPluggedIn && snap.Level >= c.cfg.ChargeLimit()

	logrus.WithFields(logrus.Fields{
		"level":     snap.Level,
		"limit":     c.cfg.ChargeLimit(),
		"pluggedIn": snap.IsPluggedIn,
		"target":    target,
		"observed":  c.observedInhibited,
	}).Trace("Steady-state evaluation")

	// Only a divergence between desire and hardware is worth a
	// privileged subprocess. Re-issuing for a state already in effect
	// would spawn one per tick.
	if target != c.observedInhibited {
		c.dispatchLocked(target)
	}
}

// desiredTargetLocked recomputes the inhibit target from current state.
// ok is false when no decision can be made (no telemetry, setup
// missing). With sailing mode off the desired state is always
// "not inhibited".
func (c *Controller) desiredTargetLocked() (target, ok bool) {
	if !c.cfg.SailingMode() {
		return false, true
	}
	if !c.isSetupCompleteLocked() {
		return false, false
	}
	if c.lastSnap == nil {
		return false, false
	}
	return c.lastSnap.IsPluggedIn && c.lastSnap.Level >= c.cfg.ChargeLimit(), true
}

// safetyPauseLocked forces sailing mode off because the battery is
// draining below the auto-pause threshold. The sailing flag flips
// exactly once, so the event and log fire once per transition rather
// than on every tick.
func (c *Controller) safetyPauseLocked(level int) {
	threshold := c.cfg.AutoPauseThreshold()

	logrus.WithFields(logrus.Fields{
		"level":     level,
		"threshold": threshold,
	}).Warn("Battery below auto-pause threshold while unplugged, pausing sailing mode")

	c.cfg.SetSailingMode(false)
	if err := c.cfg.Save(); err != nil {
		logrus.WithError(err).Error("Failed to persist config after auto-pause")
	}

	c.hub.Publish(events.SafetyPause, events.SafetyPauseEvent{
		Level:     level,
		Threshold: threshold,
		Ts:        c.now().Unix(),
	})
	c.setStateLocked(StateUnmanaged, "auto-pause: battery low while unplugged")

	// Unplugged hardware cannot charge either way, so only a known
	// inhibit is worth a privileged call here.
	if c.observedInhibited {
		c.dispatchLocked(false)
	}
}

// endTravelLocked disables travel mode and restores the saved limit.
func (c *Controller) endTravelLocked(reason string) {
	restored := 0
	if saved, ok := c.cfg.SavedLimitBeforeTravel(); ok {
		c.cfg.SetChargeLimit(saved)
		restored = c.cfg.ChargeLimit()
	}
	c.cfg.SetTravelMode(false)
	c.cfg.ClearTravelModeExpiry()
	c.cfg.ClearSavedLimitBeforeTravel()
	if err := c.cfg.Save(); err != nil {
		logrus.WithError(err).Error("Failed to persist config after travel mode ended")
	}

	if c.travelTimer != nil {
		c.travelTimer.Stop()
		c.travelTimer = nil
	}

	logrus.WithFields(logrus.Fields{
		"reason":        reason,
		"restoredLimit": restored,
	}).Info("Travel mode ended")

	c.hub.Publish(events.TravelMode, events.TravelModeEvent{
		Enabled:       false,
		RestoredLimit: restored,
		Reason:        reason,
		Ts:            c.now().Unix(),
	})
}

// dispatchLocked hands an actuation to a background goroutine. At most
// one runs at a time; if one is already in flight its completion
// re-evaluates and issues the correction, so skipping here loses
// nothing.
func (c *Controller) dispatchLocked(target bool) {
	if c.pending != nil {
		logrus.WithFields(logrus.Fields{
			"inFlight": *c.pending,
			"wanted":   target,
		}).Trace("Actuation already in flight, deferring")
		return
	}
	t := target
	c.pending = &t
	go c.runActuation(t)
}

// runActuation blocks on the privileged helper and applies the result.
// A success is recorded as the new hardware-confirmed observed state.
// If the desired target moved while the call was in flight, the result
// no longer settles anything and the follow-up evaluation issues the
// corrective call.
func (c *Controller) runActuation(target bool) {
	err := c.actuator.SetInhibited(c.ctx, target)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = nil

	if err != nil {
		// Observed state stays untouched, and no re-evaluation here:
		// re-dispatching right away would hammer the failing helper.
		// The next telemetry tick retries naturally.
		logrus.WithError(err).WithField("target", target).Error("Actuation failed")
		c.hub.Publish(events.ActuationDone, events.ActuationResultEvent{
			Target: target,
			OK:     false,
			Ts:     c.now().Unix(),
		})
		return
	}

	c.observedInhibited = target
	if desired, ok := c.desiredTargetLocked(); ok && desired != target {
		logrus.WithFields(logrus.Fields{
			"applied": target,
			"desired": desired,
		}).Debug("Actuation result is stale, correcting")
	}

	c.hub.Publish(events.ActuationDone, events.ActuationResultEvent{
		Target: target,
		OK:     true,
		Ts:     c.now().Unix(),
	})

	c.evaluateLocked()
}
