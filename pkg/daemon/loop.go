package daemon

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// runTelemetryLoop reads the battery on the configured interval and
// feeds every result, including failures, into the controller. The
// interval is re-read each tick so a PUT /interval takes effect on the
// next one without restarting the loop.
func runTelemetryLoop(ctx context.Context) {
	logrus.Debug("telemetry loop starts")

	for {
		tick(ctx)

		interval := time.Duration(conf.MonitorIntervalSeconds()) * time.Second
		select {
		case <-ctx.Done():
			logrus.Debug("telemetry loop stopped")
			return
		case <-time.After(interval):
		}
	}
}

func tick(ctx context.Context) {
	snap, err := reader.Read(ctx)
	if err != nil {
		// The controller keeps its last snapshot; one flaky ioreg run
		// must not flap any decision.
		logrus.WithError(err).Debug("telemetry read failed")
	}
	ctrl.Deliver(snap, err)
}
