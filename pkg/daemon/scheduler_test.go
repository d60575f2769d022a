package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sailmode/sail/pkg/battery"
	"github.com/sailmode/sail/pkg/config"
	"github.com/sailmode/sail/pkg/events"
	"github.com/sailmode/sail/pkg/policy"
)

type nopActuator struct{}

func (nopActuator) SetInhibited(context.Context, bool) error { return nil }
func (nopActuator) QueryInhibited(context.Context) bool      { return false }

type okSetup struct{}

func (okSetup) VerifyArtifacts() error { return nil }

func newSchedulerRig(t *testing.T) (*TopUpScheduler, *policy.Controller, *events.EventHub) {
	t.Helper()
	cfg, err := config.NewFile(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	h := events.NewEventHub()
	ctrl := policy.NewController(cfg, nopActuator{}, okSetup{}, h)
	ctrl.Start(context.Background())
	return NewTopUpScheduler(ctrl, h), ctrl, h
}

func pluggedSnapshot(level int) *battery.Snapshot {
	return &battery.Snapshot{Level: level, IsPluggedIn: true, ReadAt: time.Now()}
}

func TestTopUpScheduleStatus(t *testing.T) {
	s, _, _ := newSchedulerRig(t)

	if _, _, active := s.Status(); active {
		t.Fatal("scheduler active before any schedule")
	}

	if err := s.Schedule("@every 10m"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	spec, next, active := s.Status()
	if !active {
		t.Fatal("scheduler should be active after scheduling")
	}
	if spec != "@every 10m" {
		t.Fatalf("spec = %q, want %q", spec, "@every 10m")
	}
	if next.IsZero() {
		t.Fatal("next run should be set after scheduling")
	}
}

func TestTopUpScheduleRejectsGarbage(t *testing.T) {
	s, _, _ := newSchedulerRig(t)
	if err := s.Schedule("not a cron line"); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
	if _, _, active := s.Status(); active {
		t.Fatal("invalid expression must not activate the schedule")
	}
}

func TestTopUpSkip(t *testing.T) {
	s, _, _ := newSchedulerRig(t)
	if err := s.Schedule("@every 10m"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	_, orig, _ := s.Status()

	s.Start()
	defer s.Stop()

	if err := s.Skip(); err != nil {
		t.Fatalf("Skip returned error: %v", err)
	}
	_, skipped, _ := s.Status()
	if !skipped.After(orig) {
		t.Fatalf("expected skip to move schedule forward, got %v <= %v", skipped, orig)
	}
}

func TestTopUpSkipWithoutSchedule(t *testing.T) {
	s, _, _ := newSchedulerRig(t)
	if err := s.Skip(); err == nil {
		t.Fatal("expected error skipping with no schedule")
	}
}

func TestTopUpPostpone(t *testing.T) {
	s, _, _ := newSchedulerRig(t)
	if err := s.Schedule("@every 10m"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	_, orig, _ := s.Status()

	if err := s.Postpone(-time.Minute); err == nil {
		t.Fatal("expected error for negative postpone")
	}
	if err := s.Postpone(time.Hour); err == nil {
		t.Fatal("expected error postponing past the following run")
	}

	if err := s.Postpone(2 * time.Minute); err != nil {
		t.Fatalf("Postpone returned error: %v", err)
	}
	_, postponed, _ := s.Status()
	if want := orig.Add(2 * time.Minute); !postponed.Equal(want) {
		t.Fatalf("postponed next run = %v, want %v", postponed, want)
	}
}

func TestTopUpClear(t *testing.T) {
	s, _, h := newSchedulerRig(t)
	sub := h.Subscribe()
	defer h.Unsubscribe(sub)

	if err := s.Schedule("@every 10m"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	s.Clear()

	if _, _, active := s.Status(); active {
		t.Fatal("schedule still active after Clear")
	}

	var states []string
	for {
		var done bool
		select {
		case ev := <-sub:
			if ev.Name == events.TopUpScheduled {
				payload, err := events.DecodeAs[events.TopUpEvent](ev)
				if err != nil {
					t.Fatal(err)
				}
				states = append(states, payload.State)
			}
		default:
			done = true
		}
		if done {
			break
		}
	}
	if len(states) != 2 || states[0] != "scheduled" || states[1] != "canceled" {
		t.Fatalf("topup event states = %v, want [scheduled canceled]", states)
	}
}

func TestTopUpFireOpensFullChargeWindow(t *testing.T) {
	s, ctrl, _ := newSchedulerRig(t)
	ctrl.Deliver(pluggedSnapshot(70), nil)

	if err := s.Schedule("@every 10m"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	s.mu.Lock()
	s.nextRun = time.Now().Add(30 * time.Millisecond)
	s.mu.Unlock()
	s.rearm()

	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := ctrl.Status(); st.TravelMode && st.ChargeLimit == 100 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	st := ctrl.Status()
	if !st.TravelMode || st.ChargeLimit != 100 {
		t.Fatalf("top-up did not open the window: travel=%v limit=%d", st.TravelMode, st.ChargeLimit)
	}

	// The occurrence advanced past the forced one.
	_, next, _ := s.Status()
	if !next.After(time.Now()) {
		t.Fatalf("next run %v not advanced", next)
	}
}

func TestTopUpSkipsWhenTravelAlreadyActive(t *testing.T) {
	s, ctrl, h := newSchedulerRig(t)
	ctrl.Deliver(pluggedSnapshot(70), nil)

	if err := ctrl.SetTravelMode(true, time.Hour); err != nil {
		t.Fatal(err)
	}
	expiryBefore := ctrl.Status().TravelModeExpiry

	sub := h.Subscribe()
	defer h.Unsubscribe(sub)

	if err := s.Schedule("@every 10m"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	s.mu.Lock()
	s.nextRun = time.Now().Add(30 * time.Millisecond)
	s.mu.Unlock()
	s.rearm()

	s.Start()
	defer s.Stop()

	var skipped bool
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !skipped {
		select {
		case ev := <-sub:
			if ev.Name != events.TopUpScheduled {
				continue
			}
			payload, err := events.DecodeAs[events.TopUpEvent](ev)
			if err != nil {
				t.Fatal(err)
			}
			if payload.State == "skipped" {
				skipped = true
			}
		case <-time.After(100 * time.Millisecond):
		}
	}
	if !skipped {
		t.Fatal("expected a skipped event while travel mode is active")
	}

	// The user's window is untouched.
	expiryAfter := ctrl.Status().TravelModeExpiry
	if expiryBefore == nil || expiryAfter == nil || !expiryAfter.Equal(*expiryBefore) {
		t.Fatalf("travel expiry changed: before=%v after=%v", expiryBefore, expiryAfter)
	}
}
