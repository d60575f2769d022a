// Package actuator flips the hardware charge-inhibit state through the
// privileged helper installed by pkg/setup. It is the only place that
// spawns privileged subprocesses.
package actuator

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/sailmode/sail/pkg/helper"
	"github.com/sailmode/sail/pkg/smc"
)

var (
	// ErrSetupIncomplete means actuation was attempted before the
	// privilege elevation setup finished. Actuating anyway would hang on
	// a password prompt, so the call refuses instead.
	ErrSetupIncomplete = errors.New("privilege elevation setup is not complete")

	// ErrActuationFailed means every hardware method failed. The
	// observed state is left unchanged and the next tick retries.
	ErrActuationFailed = errors.New("all actuation methods failed")
)

// Actuator drives the charge-inhibit state. Safe for concurrent use;
// concurrent calls for the same target coalesce into one helper run.
type Actuator struct {
	runner        Runner
	strategies    []Strategy
	group         singleflight.Group
	setupComplete func() bool
	chargeLimit   func() int
}

// New returns an Actuator. setupComplete gates every privileged call;
// chargeLimit feeds the BCLM fallback its cap value.
func New(runner Runner, setupComplete func() bool, chargeLimit func() int) *Actuator {
	return &Actuator{
		runner:        runner,
		strategies:    defaultStrategies(),
		setupComplete: setupComplete,
		chargeLimit:   chargeLimit,
	}
}

// SetInhibited drives every strategy toward target. It succeeds if at
// least one method succeeded, and retries the whole sweep once before
// reporting ErrActuationFailed. Concurrent calls with the same target
// share a single in-flight sweep, keyed by the target value, so a slow
// helper cannot pile up duplicate privileged subprocesses.
func (a *Actuator) SetInhibited(ctx context.Context, target bool) error {
	if !a.setupComplete() {
		return ErrSetupIncomplete
	}

	_, err, shared := a.group.Do(strconv.FormatBool(target), func() (interface{}, error) {
		err := a.applyAll(ctx, target)
		if err != nil {
			logrus.WithError(err).WithField("target", target).Warn("Actuation sweep failed, retrying once")
			err = a.applyAll(ctx, target)
		}
		return nil, err
	})
	if shared {
		logrus.WithField("target", target).Trace("Actuation coalesced into in-flight call")
	}
	return err
}

// applyAll runs every strategy in priority order without short-
// circuiting. Trying all of them costs a few extra helper runs but
// means a no-op surface on this hardware generation cannot mask a
// working one further down the list.
func (a *Actuator) applyAll(ctx context.Context, target bool) error {
	limit := a.chargeLimit()

	var succeeded []string
	for _, s := range a.strategies {
		if err := s.Apply(ctx, a.runner, target, limit); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"method": s.Name(),
				"target": target,
			}).Debug("Actuation method failed")
			continue
		}
		succeeded = append(succeeded, s.Name())
	}

	if len(succeeded) == 0 {
		return ErrActuationFailed
	}

	logrus.WithFields(logrus.Fields{
		"target":  target,
		"methods": succeeded,
	}).Debug("Actuation applied")
	return nil
}

// QueryInhibited reads the true hardware inhibit state, trying CHTE
// first and falling back to CH0B. It defaults to false when nothing can
// be read: assuming "not inhibited" on an unreadable machine only costs
// one redundant actuation, while assuming "inhibited" could leave a
// machine stuck uninhibited forever.
func (a *Actuator) QueryInhibited(ctx context.Context) bool {
	if !a.setupComplete() {
		return false
	}

	for _, key := range []string{smc.ChargeInhibitKey, smc.LegacyChargingKey} {
		out, err := a.runner.Run(ctx, "-k", key, "-r")
		if err != nil {
			continue
		}
		v, err := helper.ParseReadOutput(out)
		if err != nil {
			logrus.WithError(err).WithField("key", key).Debug("Unparseable helper read output")
			continue
		}
		return smc.Inhibited(v)
	}
	return false
}
