package network

import (
	"errors"
	"testing"
	"time"

	"github.com/oht50/firmware/internal/fsutil"
	"github.com/oht50/firmware/internal/timeutil"
)

func newTestSupervisor(t *testing.T, clock *timeutil.MockClock, cap *MockWifiCapability) (*Supervisor, *APController, *MockProcessLauncher) {
	t.Helper()
	station := NewStationController(clock, cap)
	fs := fsutil.NewMemoryFileSystem()
	launcher := &MockProcessLauncher{}
	ap := NewAPController(fs, launcher, "/etc/oht50", "wlan1")

	cfg := FallbackConfig{
		AutoFallback:               true,
		ConnectionTimeoutMS:        10000,
		RetryIntervalMS:            1000,
		MaxRetryAttempts:           2,
		APStartupTimeoutMS:         5000,
		RecoveryCheckIntervalMS:    10000,
		SignalStrengthThresholdDBm: -70,
	}
	sup, err := NewSupervisor(clock, station, ap, cfg, validAPConfig(), "plant-ap", "supersecret1")
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	if err := sup.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	return sup, ap, launcher
}

// spec.md §8 scenario 4: fallback trigger after two consecutive
// failed connection checks.
func TestSupervisor_FallbackTriggerOnRepeatedFailure(t *testing.T) {
	now := time.Now()
	clock := timeutil.NewMockClock(now)
	cap := &MockWifiCapability{LinkErr: errors.New("nl80211: no such device")}
	sup, _, launcher := newTestSupervisor(t, clock, cap)

	if err := sup.HandleTick(clock.Now()); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if sup.State() != StateMonitoring {
		t.Fatalf("state after first failure = %s, want monitoring", sup.State())
	}

	if err := sup.HandleTick(clock.Now()); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	if sup.State() != StateTriggered {
		t.Fatalf("state after second failure = %s, want triggered", sup.State())
	}
	if len(launcher.Launches) != 1 {
		t.Fatalf("expected exactly 1 AP start, got %d", len(launcher.Launches))
	}
	if sup.Statistics().TotalTriggers != 1 {
		t.Fatalf("fallback_triggers = %d, want 1", sup.Statistics().TotalTriggers)
	}
}

// spec.md §8 scenario 4 variant: low signal alone also triggers.
func TestSupervisor_FallbackTriggerOnWeakSignal(t *testing.T) {
	now := time.Now()
	clock := timeutil.NewMockClock(now)
	cap := &MockWifiCapability{LinkStatus: Status{Connected: true, CurrentSSID: "plant-ap", SignalStrengthDBm: -80}}
	sup, _, launcher := newTestSupervisor(t, clock, cap)

	if err := sup.HandleTick(clock.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if sup.State() != StateTriggered {
		t.Fatalf("state = %s, want triggered", sup.State())
	}
	if len(launcher.Launches) != 1 {
		t.Fatalf("expected 1 AP start, got %d", len(launcher.Launches))
	}
}

// spec.md §8 scenario 5: recovery success after the window elapses.
func TestSupervisor_RecoverySuccessAfterWindow(t *testing.T) {
	now := time.Now()
	clock := timeutil.NewMockClock(now)
	cap := &MockWifiCapability{LinkErr: errors.New("down")}
	sup, _, _ := newTestSupervisor(t, clock, cap)

	sup.HandleTick(clock.Now())
	sup.HandleTick(clock.Now())
	if sup.State() != StateTriggered {
		t.Fatalf("precondition: state = %s, want triggered", sup.State())
	}

	// Recovery should now succeed: clear the failure and advance past
	// the 10s recovery_check_interval_ms.
	cap.LinkErr = nil
	cap.ConnectErr = nil
	clock.Advance(10100 * time.Millisecond)

	if err := sup.HandleTick(clock.Now()); err != nil {
		t.Fatalf("recovery tick: %v", err)
	}
	if sup.State() != StateMonitoring {
		t.Fatalf("state after recovery = %s, want monitoring", sup.State())
	}
	if sup.Statistics().SuccessfulRecoveries != 1 {
		t.Fatalf("successful_recoveries = %d, want 1", sup.Statistics().SuccessfulRecoveries)
	}
}

// spec.md §8 scenario 6: a failed recovery attempt restarts the AP.
func TestSupervisor_RecoveryFailureRestartsAP(t *testing.T) {
	now := time.Now()
	clock := timeutil.NewMockClock(now)
	cap := &MockWifiCapability{LinkErr: errors.New("down"), ConnectErr: ErrWifiConnectFailed}
	sup, ap, launcher := newTestSupervisor(t, clock, cap)

	sup.HandleTick(clock.Now())
	sup.HandleTick(clock.Now())
	if sup.State() != StateTriggered {
		t.Fatalf("precondition: state = %s, want triggered", sup.State())
	}
	launchesBefore := len(launcher.Launches)

	clock.Advance(10100 * time.Millisecond)
	if err := sup.HandleTick(clock.Now()); err != nil {
		t.Fatalf("recovery tick: %v", err)
	}

	if sup.State() != StateTriggered {
		t.Fatalf("state after failed recovery = %s, want triggered", sup.State())
	}
	if sup.Statistics().FailedRecoveries != 1 {
		t.Fatalf("failed_recoveries = %d, want 1", sup.Statistics().FailedRecoveries)
	}
	if len(launcher.Launches) != launchesBefore+1 {
		t.Fatalf("expected AP restarted once more, launches = %d", len(launcher.Launches))
	}
	if ap.State() != APRunning {
		t.Fatalf("ap state = %s, want running", ap.State())
	}
}

// spec.md §8 invariant 8: every (state, event) pair has a defined
// next state, and HandleTick never errors out of Disabled/Error.
func TestSupervisor_TickIsTotalFromDisabled(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	cap := &MockWifiCapability{}
	sup, _, _ := newTestSupervisor(t, clock, cap)
	sup.Disable()

	if err := sup.HandleTick(clock.Now()); err != nil {
		t.Fatalf("tick from disabled should be a no-op, got %v", err)
	}
	if sup.State() != StateDisabled {
		t.Fatalf("state = %s, want disabled", sup.State())
	}
}

// spec.md §8 invariant 9: force_wifi then force_ap restores the
// original observable state.
func TestSupervisor_ForceWifiThenForceAPRestoresState(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	cap := &MockWifiCapability{LinkErr: errors.New("down")}
	sup, _, launcher := newTestSupervisor(t, clock, cap)

	sup.HandleTick(clock.Now())
	sup.HandleTick(clock.Now())
	if sup.State() != StateTriggered {
		t.Fatalf("precondition: state = %s, want triggered", sup.State())
	}

	cap.LinkErr = nil
	if err := sup.ForceWifi(); err != nil {
		t.Fatalf("ForceWifi: %v", err)
	}
	if sup.State() != StateMonitoring {
		t.Fatalf("state after ForceWifi = %s, want monitoring", sup.State())
	}

	if err := sup.ForceAP(); err != nil {
		t.Fatalf("ForceAP: %v", err)
	}
	if sup.State() != StateTriggered {
		t.Fatalf("state after ForceAP = %s, want triggered", sup.State())
	}
	if len(launcher.Launches) < 2 {
		t.Fatalf("expected at least 2 AP launches across the cycle, got %d", len(launcher.Launches))
	}
}

// Boundary: signal_strength_threshold_dbm = -30 is the top of the
// valid range, so a connected link at a typical -40 dBm is below it
// and triggers the fallback.
func TestSupervisor_ThresholdBoundaryAlwaysTriggers(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	cap := &MockWifiCapability{LinkStatus: Status{Connected: true, CurrentSSID: "plant-ap", SignalStrengthDBm: -40}}
	station := NewStationController(clock, cap)
	fs := fsutil.NewMemoryFileSystem()
	ap := NewAPController(fs, &MockProcessLauncher{}, "/etc/oht50", "wlan1")

	cfg := FallbackConfig{
		AutoFallback:               true,
		ConnectionTimeoutMS:        10000,
		RetryIntervalMS:            1000,
		MaxRetryAttempts:           2,
		APStartupTimeoutMS:         5000,
		RecoveryCheckIntervalMS:    10000,
		SignalStrengthThresholdDBm: -30,
	}
	sup, err := NewSupervisor(clock, station, ap, cfg, validAPConfig(), "plant-ap", "supersecret1")
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	sup.Enable()

	if err := sup.HandleTick(clock.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if sup.State() != StateTriggered {
		t.Fatalf("state = %s, want triggered at -30 threshold boundary", sup.State())
	}
}

// Boundary: signal_strength_threshold_dbm = -100 never triggers on
// signal alone (dBm is always >= -100 in practice, never strictly
// less than the floor).
func TestSupervisor_ThresholdBoundaryNeverTriggers(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	cap := &MockWifiCapability{LinkStatus: Status{Connected: true, CurrentSSID: "plant-ap", SignalStrengthDBm: -100}}
	station := NewStationController(clock, cap)
	fs := fsutil.NewMemoryFileSystem()
	ap := NewAPController(fs, &MockProcessLauncher{}, "/etc/oht50", "wlan1")

	cfg := FallbackConfig{
		AutoFallback:               true,
		ConnectionTimeoutMS:        10000,
		RetryIntervalMS:            1000,
		MaxRetryAttempts:           2,
		APStartupTimeoutMS:         5000,
		RecoveryCheckIntervalMS:    10000,
		SignalStrengthThresholdDBm: -100,
	}
	sup, err := NewSupervisor(clock, station, ap, cfg, validAPConfig(), "plant-ap", "supersecret1")
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	sup.Enable()

	if err := sup.HandleTick(clock.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if sup.State() != StateMonitoring {
		t.Fatalf("state = %s, want monitoring at -100 threshold floor", sup.State())
	}
}

func TestSupervisor_ConnectionQualityScore(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	cap := &MockWifiCapability{LinkStatus: Status{Connected: true, SignalStrengthDBm: -45}}
	sup, _, _ := newTestSupervisor(t, clock, cap)
	sup.station.RefreshStatus()

	if got := sup.ConnectionQualityScore(); got != 100 {
		t.Errorf("score at -45 dBm = %d, want 100", got)
	}
}

func TestSupervisor_DisableIsIdempotent(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	cap := &MockWifiCapability{}
	sup, _, _ := newTestSupervisor(t, clock, cap)

	if err := sup.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if err := sup.Disable(); err != nil {
		t.Fatalf("second Disable: %v", err)
	}
	if sup.State() != StateDisabled {
		t.Fatalf("state = %s, want disabled", sup.State())
	}
}
