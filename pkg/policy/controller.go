// Package policy is the decision core: it folds telemetry and user
// configuration into a target charge-inhibit state, drives the actuator
// only when the hardware needs to change, and owns every mutation of
// the persisted configuration. All state transitions are serialized
// behind one mutex; blocking work (telemetry reads, helper subprocesses)
// happens on background goroutines and reports back in.
package policy

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sailmode/sail/pkg/battery"
	"github.com/sailmode/sail/pkg/config"
	"github.com/sailmode/sail/pkg/events"
)

// State is the policy state machine's current posture.
type State string

const (
	// StateUnmanaged means sailing mode is off and the hardware charges
	// as it pleases.
	StateUnmanaged State = "unmanaged"
	// StateAwaitingSetup means sailing mode was requested but the
	// privilege elevation setup has not completed, so nothing can be
	// actuated yet.
	StateAwaitingSetup State = "awaiting_setup"
	// StateMonitoring means sailing mode is on and charging is
	// currently allowed.
	StateMonitoring State = "monitoring"
	// StateInhibiting means sailing mode is on and charging is
	// inhibited at the hardware.
	StateInhibiting State = "inhibiting"
)

// DefaultTravelDuration is the travel window the CLI offers when the
// user does not pick one. SetTravelMode itself treats a zero duration
// as open-ended.
const DefaultTravelDuration = 24 * time.Hour

// Actuator is the slice of pkg/actuator the controller needs.
type Actuator interface {
	SetInhibited(ctx context.Context, target bool) error
	QueryInhibited(ctx context.Context) bool
}

// SetupChecker reports whether the privilege elevation artifacts are on
// disk and consistent.
type SetupChecker interface {
	VerifyArtifacts() error
}

// Controller owns PolicyConfig and the observed actuator state. Safe
// for concurrent use.
type Controller struct {
	mu sync.Mutex

	cfg      config.Config
	actuator Actuator
	setup    SetupChecker
	hub      *events.EventHub

	ctx context.Context

	state             State
	observedInhibited bool
	// pending is the target of the actuation currently in flight, nil
	// when idle. At most one actuation runs at a time; its completion
	// re-evaluates, so a target change while in flight is corrected
	// right after.
	pending *bool

	lastSnap     *battery.Snapshot
	telemetryErr error

	travelTimer *time.Timer

	// now is a seam for tests.
	now func() time.Time
}

// NewController wires the policy core. hub may be nil when nobody
// listens for events.
func NewController(cfg config.Config, act Actuator, setup SetupChecker, hub *events.EventHub) *Controller {
	return &Controller{
		cfg:      cfg,
		actuator: act,
		setup:    setup,
		hub:      hub,
		state:    StateUnmanaged,
		now:      time.Now,
	}
}

// Start queries the true hardware state and runs the first evaluation.
// The persisted config is never trusted for the inhibited flag: a prior
// crashed process could have left the hardware either way, so only a
// fresh hardware read counts.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ctx = ctx

	if c.isSetupCompleteLocked() {
		c.observedInhibited = c.actuator.QueryInhibited(ctx)
		logrus.WithField("inhibited", c.observedInhibited).Info("Queried hardware inhibit state on startup")
	}

	if c.cfg.TravelMode() {
		if expiry, ok := c.cfg.TravelModeExpiry(); ok {
			c.armTravelTimerLocked(expiry)
		}
	}

	c.evaluateLocked()
}

// Shutdown re-allows charging if this process left it inhibited.
// Best effort: a dying daemon must never pin the battery at its limit
// forever, but exiting must not block on a wedged helper either.
func (c *Controller) Shutdown(ctx context.Context) {
	c.mu.Lock()
	if c.travelTimer != nil {
		c.travelTimer.Stop()
	}
	inhibited := c.observedInhibited
	c.mu.Unlock()

	if !inhibited {
		return
	}
	if err := c.actuator.SetInhibited(ctx, false); err != nil {
		logrus.WithError(err).Warn("Failed to re-allow charging on shutdown")
		return
	}
	logrus.Info("Charging re-allowed on shutdown")
}

// Deliver feeds one telemetry read into the state machine. A read error
// keeps the last good snapshot; the battery service being briefly
// unavailable must not flap any decisions.
func (c *Controller) Deliver(snap *battery.Snapshot, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.telemetryErr = err
		logrus.WithError(err).Debug("Telemetry read failed, keeping last snapshot")
	} else {
		c.lastSnap = snap
		c.telemetryErr = nil
	}

	c.evaluateLocked()
}

// Evaluate re-runs the decision rules immediately, outside the regular
// telemetry tick. Config mutations call this so a changed limit takes
// effect now, not at the next tick.
func (c *Controller) Evaluate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evaluateLocked()
}

// Status is a point-in-time view of the controller for display.
type Status struct {
	State             State `json:"state"`
	ObservedInhibited bool  `json:"observed_inhibited"`
	SetupComplete     bool  `json:"setup_complete"`

	ChargeLimit            int        `json:"charge_limit"`
	SailingMode            bool       `json:"sailing_mode"`
	TravelMode             bool       `json:"travel_mode"`
	TravelModeExpiry       *time.Time `json:"travel_mode_expiry,omitempty"`
	AutoPauseEnabled       bool       `json:"auto_pause_enabled"`
	AutoPauseThreshold     int        `json:"auto_pause_threshold"`
	MonitorIntervalSeconds int        `json:"monitor_interval_seconds"`
	TopUpSchedule          string     `json:"top_up_schedule,omitempty"`

	Telemetry *battery.Snapshot `json:"telemetry,omitempty"`
	// TelemetryStale is true while reads are failing and Telemetry is
	// the retained last good snapshot.
	TelemetryStale bool `json:"telemetry_stale"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:                  c.state,
		ObservedInhibited:      c.observedInhibited,
		SetupComplete:          c.isSetupCompleteLocked(),
		ChargeLimit:            c.cfg.ChargeLimit(),
		SailingMode:            c.cfg.SailingMode(),
		TravelMode:             c.cfg.TravelMode(),
		AutoPauseEnabled:       c.cfg.AutoPauseEnabled(),
		AutoPauseThreshold:     c.cfg.AutoPauseThreshold(),
		MonitorIntervalSeconds: c.cfg.MonitorIntervalSeconds(),
		TopUpSchedule:          c.cfg.TopUpSchedule(),
		Telemetry:              c.lastSnap,
		TelemetryStale:         c.telemetryErr != nil,
	}
	if expiry, ok := c.cfg.TravelModeExpiry(); ok {
		st.TravelModeExpiry = &expiry
	}
	return st
}

// isSetupCompleteLocked is the two-part setup invariant: the persisted
// flag and the on-disk artifacts must both check out. The flag alone
// can desynchronize from the filesystem across reinstalls; artifacts
// alone mean setup never finished recording.
func (c *Controller) isSetupCompleteLocked() bool {
	return c.cfg.SetupComplete() && c.setup.VerifyArtifacts() == nil
}

func (c *Controller) setStateLocked(to State, reason string) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to

	logrus.WithFields(logrus.Fields{
		"from":   from,
		"to":     to,
		"reason": reason,
	}).Info("Policy state changed")

	c.hub.Publish(events.PolicyState, events.PolicyStateEvent{
		From:   string(from),
		To:     string(to),
		Reason: reason,
		Ts:     c.now().Unix(),
	})
}

func (c *Controller) armTravelTimerLocked(expiry time.Time) {
	if c.travelTimer != nil {
		c.travelTimer.Stop()
	}
	d := expiry.Sub(c.now())
	if d < 0 {
		d = 0
	}
	// The timer only nudges an evaluation; the expiry rule itself runs
	// there, so a spurious fire is harmless.
	c.travelTimer = time.AfterFunc(d, c.Evaluate)
}
