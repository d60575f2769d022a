package policy

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/sailmode/sail/pkg/battery"
	"github.com/sailmode/sail/pkg/config"
	"github.com/sailmode/sail/pkg/events"
)

type fakeActuator struct {
	mu         sync.Mutex
	calls      []bool
	err        error
	queryValue bool
	queryCalls int

	// When set, SetInhibited waits for the channel to close first.
	block chan struct{}
}

func (f *fakeActuator) SetInhibited(_ context.Context, target bool) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, target)
	return f.err
}

func (f *fakeActuator) QueryInhibited(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	return f.queryValue
}

func (f *fakeActuator) targets() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool{}, f.calls...)
}

func (f *fakeActuator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSetup struct {
	mu  sync.Mutex
	err error
}

func (f *fakeSetup) VerifyArtifacts() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeSetup) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type testRig struct {
	c   *Controller
	act *fakeActuator
	cfg *config.File
	fs  *fakeSetup
	hub *events.EventHub
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	cfg, err := config.NewFile(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	act := &fakeActuator{}
	fs := &fakeSetup{}
	hub := events.NewEventHub()
	return &testRig{
		c:   NewController(cfg, act, fs, hub),
		act: act,
		cfg: cfg,
		fs:  fs,
		hub: hub,
	}
}

// enableSailing puts the rig in the steady managed state: setup done,
// sailing on, default limit 80.
func (r *testRig) enableSailing(t *testing.T) {
	t.Helper()
	r.cfg.SetSetupComplete(true)
	r.c.Start(context.Background())
	if err := r.c.SetSailingMode(true); err != nil {
		t.Fatal(err)
	}
}

func snap(level int, pluggedIn bool) *battery.Snapshot {
	return &battery.Snapshot{
		Level:       level,
		IsPluggedIn: pluggedIn,
		IsCharging:  pluggedIn,
		ReadAt:      time.Now(),
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// drainEvents returns how many buffered events with the given name are
// waiting on the channel.
func drainEvents(ch chan events.Event, name string) int {
	n := 0
	for {
		select {
		case ev := <-ch:
			if ev.Name == name {
				n++
			}
		default:
			return n
		}
	}
}

func TestInhibitsAtLimitAndStaysQuiet(t *testing.T) {
	r := newTestRig(t)
	r.enableSailing(t)

	r.c.Deliver(snap(85, true), nil)
	waitFor(t, func() bool { return r.c.Status().ObservedInhibited }, "never became inhibited")

	if got := r.c.Status().State; got != StateInhibiting {
		t.Errorf("State = %q, want %q", got, StateInhibiting)
	}

	// Same conditions on later ticks must not re-issue the actuation.
	for i := 0; i < 5; i++ {
		r.c.Deliver(snap(85, true), nil)
	}
	if got := r.act.callCount(); got != 1 {
		t.Errorf("SetInhibited calls = %d, want exactly 1", got)
	}
}

func TestUninhibitsBelowLimit(t *testing.T) {
	r := newTestRig(t)
	r.enableSailing(t)

	r.c.Deliver(snap(85, true), nil)
	waitFor(t, func() bool { return r.c.Status().ObservedInhibited }, "never became inhibited")

	// Battery drained below the limit while plugged in (heavy load).
	r.c.Deliver(snap(75, true), nil)
	waitFor(t, func() bool { return !r.c.Status().ObservedInhibited }, "never uninhibited")

	if got := r.act.targets(); len(got) != 2 || !got[0] || got[1] {
		t.Errorf("actuation targets = %v, want [true false]", got)
	}
}

func TestUnpluggedNeverInhibits(t *testing.T) {
	r := newTestRig(t)
	r.enableSailing(t)

	r.c.Deliver(snap(95, false), nil)
	time.Sleep(50 * time.Millisecond)

	if got := r.c.Status().ObservedInhibited; got {
		t.Error("inhibited while unplugged")
	}
	if got := r.act.callCount(); got != 0 {
		t.Errorf("SetInhibited calls = %d, want 0", got)
	}
}

func TestSafetyPauseFiresExactlyOnce(t *testing.T) {
	r := newTestRig(t)
	sub := r.hub.Subscribe()
	defer r.hub.Unsubscribe(sub)
	r.enableSailing(t)

	// Threshold defaults to 20. Unplugged at 19 trips the override.
	r.c.Deliver(snap(19, false), nil)

	st := r.c.Status()
	if st.SailingMode {
		t.Error("sailing mode still on after safety pause")
	}
	if st.State != StateUnmanaged {
		t.Errorf("State = %q, want %q", st.State, StateUnmanaged)
	}

	// Keep draining; the pause already happened, so nothing new fires.
	r.c.Deliver(snap(18, false), nil)
	r.c.Deliver(snap(17, false), nil)

	if got := drainEvents(sub, events.SafetyPause); got != 1 {
		t.Errorf("safety pause events = %d, want 1", got)
	}
	if got := r.act.callCount(); got != 0 {
		t.Errorf("SetInhibited calls after safety pause = %d, want 0", got)
	}

	// The forced-off flag must be persisted, not just in memory.
	if r.cfg.SailingMode() {
		t.Error("sailing mode still enabled in config")
	}
}

func TestSafetyPauseIgnoredWhilePluggedIn(t *testing.T) {
	r := newTestRig(t)
	r.enableSailing(t)

	r.c.Deliver(snap(19, true), nil)

	if !r.c.Status().SailingMode {
		t.Error("sailing mode paused while plugged in")
	}
}

func TestAwaitingSetupBlocksActuation(t *testing.T) {
	r := newTestRig(t)
	r.fs.setErr(errors.New("helper missing"))
	r.c.Start(context.Background())

	if err := r.c.SetSailingMode(true); err != nil {
		t.Fatal(err)
	}
	if got := r.c.Status().State; got != StateAwaitingSetup {
		t.Errorf("State = %q, want %q", got, StateAwaitingSetup)
	}

	r.c.Deliver(snap(90, true), nil)
	time.Sleep(50 * time.Millisecond)

	if got := r.act.callCount(); got != 0 {
		t.Errorf("SetInhibited calls = %d, want 0 before setup", got)
	}
}

func TestSetupCompletionUnblocksImmediately(t *testing.T) {
	r := newTestRig(t)
	r.fs.setErr(errors.New("helper missing"))
	r.c.Start(context.Background())
	if err := r.c.SetSailingMode(true); err != nil {
		t.Fatal(err)
	}
	r.c.Deliver(snap(90, true), nil)

	// Artifacts land, then the flag is recorded.
	r.fs.setErr(nil)
	if err := r.c.MarkSetupComplete(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return r.c.Status().ObservedInhibited }, "no actuation after setup completed")
	if got := r.c.Status().State; got != StateInhibiting {
		t.Errorf("State = %q, want %q", got, StateInhibiting)
	}
}

func TestSetupFlagAloneIsNotTrusted(t *testing.T) {
	r := newTestRig(t)
	r.cfg.SetSetupComplete(true)
	r.fs.setErr(errors.New("artifacts deleted"))
	r.c.Start(context.Background())

	if err := r.c.SetSailingMode(true); err != nil {
		t.Fatal(err)
	}
	if got := r.c.Status().State; got != StateAwaitingSetup {
		t.Errorf("State = %q, want %q with flag set but artifacts gone", got, StateAwaitingSetup)
	}
}

func TestDisableSailingAlwaysUninhibits(t *testing.T) {
	r := newTestRig(t)
	r.enableSailing(t)

	r.c.Deliver(snap(85, true), nil)
	waitFor(t, func() bool { return r.c.Status().ObservedInhibited }, "never became inhibited")

	if err := r.c.SetSailingMode(false); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return !r.c.Status().ObservedInhibited }, "still inhibited after disable")

	targets := r.act.targets()
	if targets[len(targets)-1] != false {
		t.Errorf("last actuation target = %v, want false", targets[len(targets)-1])
	}
	if got := r.c.Status().State; got != StateUnmanaged {
		t.Errorf("State = %q, want %q", got, StateUnmanaged)
	}
}

func TestLimitChangeWhileInhibitedReevaluatesImmediately(t *testing.T) {
	r := newTestRig(t)
	r.enableSailing(t)

	r.c.Deliver(snap(85, true), nil)
	waitFor(t, func() bool { return r.c.Status().ObservedInhibited }, "never became inhibited")

	// Raising the limit above the current level makes the standing
	// inhibit stale. No new telemetry tick arrives; the change itself
	// must trigger the correction.
	if err := r.c.SetChargeLimit(95); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return !r.c.Status().ObservedInhibited }, "stale inhibit never corrected")
}

func TestTravelModeLifecycle(t *testing.T) {
	r := newTestRig(t)
	fakeNow := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	r.c.now = func() time.Time { return fakeNow }
	sub := r.hub.Subscribe()
	defer r.hub.Unsubscribe(sub)
	r.enableSailing(t)

	if err := r.c.SetTravelMode(true, 2*time.Hour); err != nil {
		t.Fatal(err)
	}

	st := r.c.Status()
	if !st.TravelMode {
		t.Error("travel mode not enabled")
	}
	if st.ChargeLimit != 100 {
		t.Errorf("ChargeLimit = %d, want 100 during travel", st.ChargeLimit)
	}
	if st.TravelModeExpiry == nil || !st.TravelModeExpiry.Equal(fakeNow.Add(2*time.Hour)) {
		t.Errorf("TravelModeExpiry = %v, want %v", st.TravelModeExpiry, fakeNow.Add(2*time.Hour))
	}
	if saved, ok := r.cfg.SavedLimitBeforeTravel(); !ok || saved != 80 {
		t.Errorf("SavedLimitBeforeTravel = (%d, %v), want (80, true)", saved, ok)
	}

	// At 90% plugged in, the pinned 100 ceiling keeps charging allowed.
	r.c.Deliver(snap(90, true), nil)
	time.Sleep(50 * time.Millisecond)
	if r.c.Status().ObservedInhibited {
		t.Error("inhibited during travel mode below 100")
	}

	// Past the expiry the limit snaps back and the same evaluation acts
	// on it: 90 >= 80 means inhibit, without waiting for a tick.
	fakeNow = fakeNow.Add(3 * time.Hour)
	r.c.Evaluate()

	st = r.c.Status()
	if st.TravelMode {
		t.Error("travel mode still on after expiry")
	}
	if st.ChargeLimit != 80 {
		t.Errorf("ChargeLimit = %d, want restored 80", st.ChargeLimit)
	}
	waitFor(t, func() bool { return r.c.Status().ObservedInhibited }, "restored limit never acted on")

	if got := drainEvents(sub, events.TravelMode); got != 2 {
		t.Errorf("travel mode events = %d, want 2 (enabled, ended)", got)
	}
}

func TestTravelModeOpenEndedWindow(t *testing.T) {
	r := newTestRig(t)
	fakeNow := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	r.c.now = func() time.Time { return fakeNow }
	r.enableSailing(t)

	if err := r.c.SetTravelMode(true, 0); err != nil {
		t.Fatal(err)
	}

	st := r.c.Status()
	if !st.TravelMode {
		t.Error("travel mode not enabled")
	}
	if st.TravelModeExpiry != nil {
		t.Errorf("TravelModeExpiry = %v, want none for a zero duration", st.TravelModeExpiry)
	}

	// Days later nothing expires on its own.
	fakeNow = fakeNow.Add(14 * 24 * time.Hour)
	r.c.Evaluate()
	if !r.c.Status().TravelMode {
		t.Error("open-ended travel mode ended by itself")
	}

	// Re-enabling with a duration converts it to a bounded window.
	if err := r.c.SetTravelMode(true, time.Hour); err != nil {
		t.Fatal(err)
	}
	st = r.c.Status()
	if st.TravelModeExpiry == nil || !st.TravelModeExpiry.Equal(fakeNow.Add(time.Hour)) {
		t.Errorf("TravelModeExpiry = %v, want %v", st.TravelModeExpiry, fakeNow.Add(time.Hour))
	}
}

func TestTravelModeManualDisableRestoresLimit(t *testing.T) {
	r := newTestRig(t)
	r.enableSailing(t)

	if err := r.c.SetChargeLimit(60); err != nil {
		t.Fatal(err)
	}
	if err := r.c.SetTravelMode(true, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := r.c.SetTravelMode(false, 0); err != nil {
		t.Fatal(err)
	}

	st := r.c.Status()
	if st.TravelMode {
		t.Error("travel mode still on")
	}
	if st.ChargeLimit != 60 {
		t.Errorf("ChargeLimit = %d, want restored 60", st.ChargeLimit)
	}
	if _, ok := r.cfg.SavedLimitBeforeTravel(); ok {
		t.Error("saved limit not cleared")
	}
	if _, ok := r.cfg.TravelModeExpiry(); ok {
		t.Error("expiry not cleared")
	}
}

func TestLimitChangeDuringTravelDefersToSavedLimit(t *testing.T) {
	r := newTestRig(t)
	r.enableSailing(t)

	if err := r.c.SetTravelMode(true, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := r.c.SetChargeLimit(50); err != nil {
		t.Fatal(err)
	}

	if got := r.c.Status().ChargeLimit; got != 100 {
		t.Errorf("ChargeLimit = %d, want 100 while travel is active", got)
	}
	if saved, ok := r.cfg.SavedLimitBeforeTravel(); !ok || saved != 50 {
		t.Errorf("SavedLimitBeforeTravel = (%d, %v), want (50, true)", saved, ok)
	}

	if err := r.c.SetTravelMode(false, 0); err != nil {
		t.Fatal(err)
	}
	if got := r.c.Status().ChargeLimit; got != 50 {
		t.Errorf("ChargeLimit after travel = %d, want 50", got)
	}
}

func TestStaleActuationResultIsCorrected(t *testing.T) {
	r := newTestRig(t)
	r.act.block = make(chan struct{})
	r.enableSailing(t)

	// Inhibit dispatched and stuck in flight.
	r.c.Deliver(snap(85, true), nil)

	// Desire flips while the call is still running.
	if err := r.c.SetChargeLimit(95); err != nil {
		t.Fatal(err)
	}

	close(r.act.block)

	// The stale success lands as observed=true, then the follow-up
	// evaluation corrects back to uninhibited.
	waitFor(t, func() bool {
		ts := r.act.targets()
		return len(ts) == 2 && ts[0] == true && ts[1] == false
	}, "corrective actuation never issued")
	waitFor(t, func() bool { return !r.c.Status().ObservedInhibited }, "observed state never corrected")
}

func TestActuationFailureRetriesNextTick(t *testing.T) {
	r := newTestRig(t)
	r.act.err = errors.New("all methods failed")
	r.enableSailing(t)

	r.c.Deliver(snap(85, true), nil)
	waitFor(t, func() bool { return r.act.callCount() == 1 }, "first actuation never attempted")

	if r.c.Status().ObservedInhibited {
		t.Error("observed flipped despite failed actuation")
	}

	// Next tick retries.
	r.c.Deliver(snap(85, true), nil)
	waitFor(t, func() bool { return r.act.callCount() == 2 }, "no retry on next tick")
}

func TestShutdownUninhibits(t *testing.T) {
	r := newTestRig(t)
	r.enableSailing(t)

	r.c.Deliver(snap(85, true), nil)
	waitFor(t, func() bool { return r.c.Status().ObservedInhibited }, "never became inhibited")

	r.c.Shutdown(context.Background())

	targets := r.act.targets()
	if targets[len(targets)-1] != false {
		t.Error("Shutdown did not re-allow charging")
	}
}

func TestShutdownSkipsWhenNotInhibited(t *testing.T) {
	r := newTestRig(t)
	r.enableSailing(t)

	before := r.act.callCount()
	r.c.Shutdown(context.Background())
	if got := r.act.callCount(); got != before {
		t.Errorf("Shutdown issued %d extra calls, want 0", got-before)
	}
}

func TestShutdownSwallowsActuationError(t *testing.T) {
	r := newTestRig(t)
	r.enableSailing(t)

	r.c.Deliver(snap(85, true), nil)
	waitFor(t, func() bool { return r.c.Status().ObservedInhibited }, "never became inhibited")

	r.act.mu.Lock()
	r.act.err = errors.New("helper wedged")
	r.act.mu.Unlock()

	// Must return, not hang or panic.
	r.c.Shutdown(context.Background())
}

func TestStartRequeriesHardware(t *testing.T) {
	r := newTestRig(t)
	r.cfg.SetSetupComplete(true)
	r.act.queryValue = true

	r.c.Start(context.Background())

	r.act.mu.Lock()
	queries := r.act.queryCalls
	r.act.mu.Unlock()
	if queries != 1 {
		t.Errorf("QueryInhibited calls on start = %d, want 1", queries)
	}
	if !r.c.Status().ObservedInhibited {
		t.Error("observed state does not reflect the hardware query")
	}
}

func TestStartSkipsQueryBeforeSetup(t *testing.T) {
	r := newTestRig(t)
	r.fs.setErr(errors.New("not installed"))

	r.c.Start(context.Background())

	r.act.mu.Lock()
	queries := r.act.queryCalls
	r.act.mu.Unlock()
	if queries != 0 {
		t.Errorf("QueryInhibited calls = %d, want 0 without setup", queries)
	}
}

func TestTelemetryErrorKeepsLastSnapshot(t *testing.T) {
	r := newTestRig(t)
	r.enableSailing(t)

	r.c.Deliver(snap(85, true), nil)
	waitFor(t, func() bool { return r.c.Status().ObservedInhibited }, "never became inhibited")

	r.c.Deliver(nil, battery.ErrServiceUnavailable)

	st := r.c.Status()
	if st.Telemetry == nil || st.Telemetry.Level != 85 {
		t.Error("last good snapshot was not retained")
	}
	if !st.TelemetryStale {
		t.Error("TelemetryStale = false after a failed read")
	}
	if !st.ObservedInhibited {
		t.Error("a failed read must not change the inhibit state")
	}

	// Recovery clears staleness.
	r.c.Deliver(snap(86, true), nil)
	if r.c.Status().TelemetryStale {
		t.Error("TelemetryStale = true after recovery")
	}
}

func TestStateTransitionEventsEmitted(t *testing.T) {
	r := newTestRig(t)
	sub := r.hub.Subscribe()
	defer r.hub.Unsubscribe(sub)
	r.enableSailing(t)

	r.c.Deliver(snap(85, true), nil)
	waitFor(t, func() bool { return r.c.Status().State == StateInhibiting }, "never reached inhibiting")

	var sawInhibiting bool
drain:
	for {
		select {
		case ev := <-sub:
			if ev.Name != events.PolicyState {
				continue
			}
			payload, err := events.DecodeAs[events.PolicyStateEvent](ev)
			if err != nil {
				t.Fatal(err)
			}
			if payload.To == string(StateInhibiting) {
				sawInhibiting = true
			}
		default:
			break drain
		}
	}
	if !sawInhibiting {
		t.Error("no policy.state event for the inhibiting transition")
	}
}

func TestMutationsPersist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	cfg, err := config.NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	c := NewController(cfg, &fakeActuator{}, &fakeSetup{}, nil)
	c.Start(context.Background())

	if err := c.SetChargeLimit(60); err != nil {
		t.Fatal(err)
	}
	if err := c.SetAutoPause(false, 25); err != nil {
		t.Fatal(err)
	}
	if err := c.SetMonitorInterval(30); err != nil {
		t.Fatal(err)
	}
	if err := c.SetTopUpSchedule("0 9 * * 1"); err != nil {
		t.Fatal(err)
	}

	reloaded, err := config.NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.ChargeLimit(); got != 60 {
		t.Errorf("ChargeLimit = %d, want 60", got)
	}
	if reloaded.AutoPauseEnabled() {
		t.Error("AutoPauseEnabled should be persisted false")
	}
	if got := reloaded.AutoPauseThreshold(); got != 25 {
		t.Errorf("AutoPauseThreshold = %d, want 25", got)
	}
	if got := reloaded.MonitorIntervalSeconds(); got != 30 {
		t.Errorf("MonitorIntervalSeconds = %d, want 30", got)
	}
	if got := reloaded.TopUpSchedule(); got != "0 9 * * 1" {
		t.Errorf("TopUpSchedule = %q, want %q", got, "0 9 * * 1")
	}
}
