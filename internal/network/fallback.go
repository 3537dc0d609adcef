package network

import (
	"fmt"
	"sync"
	"time"

	"github.com/oht50/firmware/internal/monitoring"
	"github.com/oht50/firmware/internal/timeutil"
)

// Counters accumulates the fallback supervisor's lifetime statistics
// (spec.md §4.H "Counters"). Averages are derived, never stored
// directly, per spec.md §9's correction of the source's hardcoded
// fallback_success_rate.
type Counters struct {
	TotalTriggers        uint32
	RecoveryAttempts     uint32
	SuccessfulRecoveries uint32
	FailedRecoveries     uint32
	APUptimeS            uint32
	WifiUptimeS          uint32

	fallbackDurationTotal time.Duration
	recoveryDurationTotal time.Duration
}

// SuccessRate is successful_recoveries / total_fallback_triggers,
// zero when no trigger has happened yet — the corrected formula from
// spec.md §9, not the source's unconditional 100%.
func (c Counters) SuccessRate() float64 {
	if c.TotalTriggers == 0 {
		return 0
	}
	return float64(c.SuccessfulRecoveries) / float64(c.TotalTriggers)
}

// AverageFallbackDuration is the mean wall-clock time spent hosting an
// AP per triggered episode, from the initial trigger to the recovery
// that finally succeeded.
func (c Counters) AverageFallbackDuration() time.Duration {
	if c.SuccessfulRecoveries == 0 {
		return 0
	}
	return c.fallbackDurationTotal / time.Duration(c.SuccessfulRecoveries)
}

// AverageRecoveryDuration is the mean wall-clock time spent evaluating
// a single recovery attempt (stop AP, try Wi-Fi).
func (c Counters) AverageRecoveryDuration() time.Duration {
	if c.RecoveryAttempts == 0 {
		return 0
	}
	return c.recoveryDurationTotal / time.Duration(c.RecoveryAttempts)
}

// Supervisor is the failure state machine of spec.md §4.H: it owns a
// StationController and an APController and drives exactly one of
// them at a time, never both. HandleTick is invoked externally at a
// cadence the caller controls (a ticker in cmd/oht50d, or a test
// advancing a timeutil.MockClock) so the scenario tests in spec.md §8
// run deterministically instead of sleeping.
type Supervisor struct {
	clock   timeutil.Clock
	station *StationController
	ap      *APController

	stationSSID     string
	stationPassword string

	mu               sync.Mutex
	state            FallbackState
	cfg              FallbackConfig
	apCfg            APConfig
	consecutiveFails int
	recoveryAttempts int
	lastFallbackTime time.Time
	triggerStart     time.Time
	apEnteredAt      time.Time
	monitoringSince  time.Time
	stats            Counters
}

// NewSupervisor builds a Supervisor around the given station and AP
// controllers. cfg and apCfg are validated up front; stationSSID/
// stationPassword are the plant credentials the supervisor retries
// during recovery and force_wifi.
func NewSupervisor(clock timeutil.Clock, station *StationController, ap *APController, cfg FallbackConfig, apCfg APConfig, stationSSID, stationPassword string) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := apCfg.Validate(); err != nil {
		return nil, err
	}
	return &Supervisor{
		clock:           clock,
		station:         station,
		ap:              ap,
		stationSSID:     stationSSID,
		stationPassword: stationPassword,
		cfg:             cfg,
		apCfg:           apCfg,
		state:           StateDisabled,
	}, nil
}

// State returns the supervisor's current state.
func (s *Supervisor) State() FallbackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Statistics returns a snapshot of the cumulative counters.
func (s *Supervisor) Statistics() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// SetConfig validates and installs a new FallbackConfig. It takes
// effect on the next tick, never mid-transition.
func (s *Supervisor) SetConfig(cfg FallbackConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// Enable transitions Disabled -> Monitoring. Re-entering Monitoring
// from any other state is a no-op, matching spec.md §4.H's "every
// transition is idempotent" rule.
func (s *Supervisor) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisabled {
		return nil
	}
	s.state = StateMonitoring
	s.consecutiveFails = 0
	s.recoveryAttempts = 0
	s.monitoringSince = s.clock.Now()
	monitoring.Logf("network: fallback supervisor enabled")
	return nil
}

// Disable transitions any state to Disabled, stopping the hosted AP
// first if one is running.
func (s *Supervisor) Disable() error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == StateDisabled {
		return nil
	}
	if state == StateTriggered || state == StateRecovering {
		if err := s.ap.Stop(s.clock); err != nil {
			monitoring.Logf("network: disable: ap stop failed: %v", err)
		}
		s.noteAPUptime(s.clock.Now())
	}

	s.mu.Lock()
	s.state = StateDisabled
	s.mu.Unlock()
	monitoring.Logf("network: fallback supervisor disabled")
	return nil
}

// HandleTick runs the predicate for the current state and effects at
// most one transition, per spec.md §4.H "Periodic tick". now is
// supplied by the caller (the real clock in production, a MockClock
// in tests) so elapsed-time math never touches the wall clock
// directly.
func (s *Supervisor) HandleTick(now time.Time) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateMonitoring:
		return s.tickMonitoring(now)
	case StateTriggered:
		return s.tickTriggered(now)
	default:
		// Disabled, Recovering (resolved synchronously inside
		// tickTriggered), and Error take no action on a tick.
		return nil
	}
}

// tickMonitoring evaluates spec.md §4.H's wifi_unhealthy predicate: (connection
// check fails AND retries >= max_retry_attempts) OR current dBm below
// the configured threshold.
func (s *Supervisor) tickMonitoring(now time.Time) error {
	st, connErr := s.station.RefreshStatus()

	s.mu.Lock()
	if connErr != nil {
		s.consecutiveFails++
	} else {
		s.consecutiveFails = 0
	}
	fails := s.consecutiveFails
	cfg := s.cfg
	s.mu.Unlock()

	unhealthy := (connErr != nil && fails >= cfg.MaxRetryAttempts) ||
		(connErr == nil && st.SignalStrengthDBm < cfg.SignalStrengthThresholdDBm)

	if !unhealthy || !cfg.AutoFallback {
		return nil
	}
	return s.trigger(now)
}

// trigger starts the hosted AP and moves Monitoring -> Triggered.
func (s *Supervisor) trigger(now time.Time) error {
	s.mu.Lock()
	apCfg := s.apCfg
	s.mu.Unlock()

	if err := s.ap.Start(apCfg); err != nil {
		monitoring.Logf("network: fallback trigger: ap start failed: %v", err)
		return fmt.Errorf("%w: %v", ErrApManagerFailed, err)
	}

	s.mu.Lock()
	s.noteWifiUptimeLocked(now)
	s.state = StateTriggered
	s.lastFallbackTime = now
	s.triggerStart = now
	s.apEnteredAt = now
	s.consecutiveFails = 0
	s.recoveryAttempts = 0
	s.stats.TotalTriggers++
	s.mu.Unlock()

	monitoring.Logf("network: fallback triggered, hosting AP %s", apCfg.SSID)
	return nil
}

// tickTriggered evaluates spec.md §4.H's second predicate,
// recovery_window_elapsed.
func (s *Supervisor) tickTriggered(now time.Time) error {
	s.mu.Lock()
	cfg := s.cfg
	last := s.lastFallbackTime
	attempts := s.recoveryAttempts
	s.mu.Unlock()

	elapsed := now.Sub(last)
	windowElapsed := elapsed >= time.Duration(cfg.RecoveryCheckIntervalMS)*time.Millisecond &&
		attempts < cfg.MaxRetryAttempts
	if !windowElapsed {
		return nil
	}
	return s.attemptRecovery(now)
}

// attemptRecovery stops the hosted AP and tries the station
// connection. On success: Triggered -> Recovering -> Monitoring. On
// failure: Triggered -> Recovering -> Triggered, with the AP
// restarted, per spec.md §4.H.
func (s *Supervisor) attemptRecovery(now time.Time) error {
	s.mu.Lock()
	s.state = StateRecovering
	s.recoveryAttempts++
	s.stats.RecoveryAttempts++
	ssid, password := s.stationSSID, s.stationPassword
	s.mu.Unlock()

	attemptStart := now

	if err := s.ap.Stop(s.clock); err != nil {
		monitoring.Logf("network: recovery: ap stop failed: %v", err)
	}

	connectErr := s.station.Connect(ssid, password)
	now = s.clock.Now()

	if connectErr != nil {
		s.mu.Lock()
		s.stats.FailedRecoveries++
		s.stats.recoveryDurationTotal += now.Sub(attemptStart)
		s.state = StateTriggered
		s.lastFallbackTime = now
		apCfg := s.apCfg
		s.mu.Unlock()

		monitoring.Logf("network: recovery attempt failed, restarting AP: %v", connectErr)
		if startErr := s.ap.Start(apCfg); startErr != nil {
			s.mu.Lock()
			s.state = StateError
			s.mu.Unlock()
			return fmt.Errorf("%w: recovery restart: %v", ErrApManagerFailed, startErr)
		}
		s.mu.Lock()
		s.apEnteredAt = now
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	s.stats.SuccessfulRecoveries++
	s.stats.recoveryDurationTotal += now.Sub(attemptStart)
	s.stats.fallbackDurationTotal += now.Sub(s.triggerStart)
	s.noteAPUptimeLocked(now)
	s.state = StateMonitoring
	s.consecutiveFails = 0
	s.recoveryAttempts = 0
	s.monitoringSince = now
	s.mu.Unlock()

	monitoring.Logf("network: recovery succeeded, back to station mode")
	return nil
}

// ForceWifi bypasses the predicates and moves directly to station
// mode, stopping the AP first if one is hosting. It succeeds only
// from Disabled, Monitoring, or Triggered per spec.md §4.H.
func (s *Supervisor) ForceWifi() error {
	s.mu.Lock()
	state := s.state
	ssid, password := s.stationSSID, s.stationPassword
	s.mu.Unlock()

	if state != StateDisabled && state != StateMonitoring && state != StateTriggered {
		return fmt.Errorf("%w: cannot force wifi from %s", ErrInvalidParameter, state)
	}

	now := s.clock.Now()
	if state == StateTriggered {
		if err := s.ap.Stop(s.clock); err != nil {
			monitoring.Logf("network: force_wifi: ap stop failed: %v", err)
		}
		s.noteAPUptime(now)
	}

	if err := s.station.Connect(ssid, password); err != nil {
		return fmt.Errorf("%w: force_wifi connect: %v", ErrWifiManagerFailed, err)
	}

	s.mu.Lock()
	s.state = StateMonitoring
	s.consecutiveFails = 0
	s.recoveryAttempts = 0
	s.monitoringSince = s.clock.Now()
	s.mu.Unlock()
	monitoring.Logf("network: forced to wifi station mode")
	return nil
}

// ForceAP bypasses the predicates and moves directly to AP mode. A
// call while already Triggered is a no-op (already hosting).
func (s *Supervisor) ForceAP() error {
	s.mu.Lock()
	state := s.state
	apCfg := s.apCfg
	s.mu.Unlock()

	if state != StateDisabled && state != StateMonitoring && state != StateTriggered {
		return fmt.Errorf("%w: cannot force ap from %s", ErrInvalidParameter, state)
	}
	if state == StateTriggered {
		return nil
	}

	if err := s.ap.Start(apCfg); err != nil {
		return fmt.Errorf("%w: force_ap start: %v", ErrApManagerFailed, err)
	}

	now := s.clock.Now()
	s.mu.Lock()
	s.noteWifiUptimeLocked(now)
	s.state = StateTriggered
	s.lastFallbackTime = now
	s.triggerStart = now
	s.apEnteredAt = now
	s.stats.TotalTriggers++
	s.mu.Unlock()
	monitoring.Logf("network: forced to ap mode")
	return nil
}

func (s *Supervisor) noteAPUptime(now time.Time) {
	s.mu.Lock()
	s.noteAPUptimeLocked(now)
	s.mu.Unlock()
}

func (s *Supervisor) noteAPUptimeLocked(now time.Time) {
	if s.apEnteredAt.IsZero() {
		return
	}
	s.stats.APUptimeS += uint32(now.Sub(s.apEnteredAt).Seconds())
	s.apEnteredAt = time.Time{}
}

func (s *Supervisor) noteWifiUptimeLocked(now time.Time) {
	if s.monitoringSince.IsZero() {
		return
	}
	s.stats.WifiUptimeS += uint32(now.Sub(s.monitoringSince).Seconds())
	s.monitoringSince = time.Time{}
}

// ConnectionQualityScore derives the 0-100 score spec.md §4.H exposes
// to callers: 60 while hosting an AP, a dBm-banded score while
// connected to the plant Wi-Fi, 0 when disconnected with no fallback.
func (s *Supervisor) ConnectionQualityScore() int {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == StateTriggered || state == StateRecovering {
		return 60
	}

	st := s.station.Status()
	if !st.Connected {
		return 0
	}

	switch dbm := st.SignalStrengthDBm; {
	case dbm > -50:
		return 100
	case dbm > -60:
		return 90
	case dbm > -70:
		return 80
	case dbm > -80:
		return 70
	case dbm > -90:
		return 60
	default:
		return 50
	}
}
