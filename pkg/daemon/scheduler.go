package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/sailmode/sail/pkg/events"
	"github.com/sailmode/sail/pkg/policy"
)

const (
	// topUpHold is how long the charge ceiling stays at 100 once a
	// scheduled top-up fires. Long enough to fill from any level.
	topUpHold = 2 * time.Hour

	// A top-up with no charger attached waits for one instead of
	// silently doing nothing.
	pluggedCheckInterval = 30 * time.Second
	pluggedCheckMax      = 20
)

// TopUpScheduler opens a temporary full-charge window on a cron
// schedule: useful before a weekly meeting day or a regular commute.
// The window itself is travel-mode machinery with a bounded duration,
// so expiry and limit restoration are the controller's problem.
type TopUpScheduler struct {
	ctrl *policy.Controller
	hub  *events.EventHub

	parser cron.Parser

	mu       sync.Mutex
	spec     string
	schedule cron.Schedule
	nextRun  time.Time
	running  bool

	// rearmCh pokes the run loop after any schedule mutation.
	rearmCh chan struct{}
	stopCh  chan struct{}
}

func NewTopUpScheduler(ctrl *policy.Controller, hub *events.EventHub) *TopUpScheduler {
	return &TopUpScheduler{
		ctrl:    ctrl,
		hub:     hub,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		rearmCh: make(chan struct{}, 4),
		stopCh:  make(chan struct{}),
	}
}

func (s *TopUpScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.run()
}

func (s *TopUpScheduler) Stop() {
	select {
	case <-s.stopCh: // already closed
	default:
		close(s.stopCh)
	}
}

// Schedule replaces the cron expression. The previous schedule, if
// any, is dropped.
func (s *TopUpScheduler) Schedule(spec string) error {
	sh, err := s.parser.Parse(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.spec = spec
	s.schedule = sh
	s.nextRun = sh.Next(time.Now())
	next := s.nextRun
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"spec":    spec,
		"nextRun": next.Format(time.DateTime),
	}).Info("Top-up scheduled")

	s.hub.Publish(events.TopUpScheduled, events.TopUpEvent{
		State: "scheduled",
		Spec:  spec,
		Ts:    time.Now().Unix(),
	})

	s.rearm()
	return nil
}

// Clear removes the schedule entirely.
func (s *TopUpScheduler) Clear() {
	s.mu.Lock()
	had := s.schedule != nil
	spec := s.spec
	s.spec = ""
	s.schedule = nil
	s.nextRun = time.Time{}
	s.mu.Unlock()

	if !had {
		return
	}

	logrus.Info("Top-up schedule removed")
	s.hub.Publish(events.TopUpScheduled, events.TopUpEvent{
		State: "canceled",
		Spec:  spec,
		Ts:    time.Now().Unix(),
	})

	s.rearm()
}

// Skip drops the next occurrence and keeps the ones after it.
func (s *TopUpScheduler) Skip() error {
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.rearm()
	}()

	if s.schedule == nil || s.nextRun.IsZero() {
		return fmt.Errorf("no active schedule to skip")
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	logrus.WithField("nextRun", s.nextRun.Format(time.DateTime)).Info("Skipped next top-up")
	return nil
}

// Postpone delays the next occurrence. It must still land before the
// occurrence after it, otherwise skipping is the right tool.
func (s *TopUpScheduler) Postpone(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("postpone duration must be positive")
	}

	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.rearm()
	}()

	if s.schedule == nil || s.nextRun.IsZero() {
		return fmt.Errorf("no active schedule to postpone")
	}

	postponed := s.nextRun.Add(d)
	if following := s.schedule.Next(s.nextRun); !postponed.Before(following) {
		return fmt.Errorf("postponing by %s would pass the next scheduled run", d)
	}
	s.nextRun = postponed
	logrus.WithField("nextRun", postponed.Format(time.DateTime)).Info("Postponed next top-up")
	return nil
}

// Status reports the schedule for display.
func (s *TopUpScheduler) Status() (spec string, nextRun time.Time, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec, s.nextRun, s.schedule != nil
}

func (s *TopUpScheduler) rearm() {
	select {
	case s.rearmCh <- struct{}{}:
	default:
	}
}

func (s *TopUpScheduler) run() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logrus.Debug("top-up scheduler stopped")
	}()

	logrus.Debug("top-up scheduler started")

	for {
		s.mu.Lock()
		nextRun := s.nextRun
		scheduled := s.schedule != nil
		s.mu.Unlock()

		var timer *time.Timer
		if !scheduled || nextRun.IsZero() {
			// Parked until a schedule shows up.
			timer = time.NewTimer(time.Hour * 10000)
		} else {
			wait := time.Until(nextRun)
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
		}

		select {
		case <-timer.C:
			if scheduled {
				s.fire()
			}
		case <-s.rearmCh:
			timer.Stop()
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

// fire runs one scheduled top-up: wait for a charger (bounded), then
// open the full-charge window. Always advances to the next occurrence.
func (s *TopUpScheduler) fire() {
	defer s.advance()

	if s.ctrl.Status().TravelMode {
		// A user-armed travel window is already pinning the limit at
		// 100. Re-arming it here would shorten their window.
		logrus.Info("Skipping scheduled top-up: travel mode already active")
		s.publishState("skipped")
		return
	}

	for attempt := 0; ; attempt++ {
		if s.pluggedIn() {
			break
		}
		if attempt >= pluggedCheckMax {
			logrus.Warn("Skipping scheduled top-up: no charger appeared in time")
			s.publishState("skipped")
			return
		}
		logrus.WithField("attempt", attempt+1).Debug("Top-up waiting for charger")
		select {
		case <-time.After(pluggedCheckInterval):
		case <-s.stopCh:
			return
		}
	}

	logrus.WithField("hold", topUpHold.String()).Info("Starting scheduled top-up")
	if err := s.ctrl.SetTravelMode(true, topUpHold); err != nil {
		logrus.WithError(err).Error("Failed to start scheduled top-up")
		return
	}
	s.publishState("started")
}

func (s *TopUpScheduler) advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return
	}
	s.nextRun = s.schedule.Next(time.Now())
}

func (s *TopUpScheduler) pluggedIn() bool {
	st := s.ctrl.Status()
	return st.Telemetry != nil && st.Telemetry.IsPluggedIn
}

func (s *TopUpScheduler) publishState(state string) {
	s.mu.Lock()
	spec := s.spec
	s.mu.Unlock()

	s.hub.Publish(events.TopUpScheduled, events.TopUpEvent{
		State: state,
		Spec:  spec,
		Ts:    time.Now().Unix(),
	})
}
