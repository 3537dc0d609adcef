package network

import (
	"fmt"
	"sync"
	"time"

	"github.com/oht50/firmware/internal/monitoring"
	"github.com/oht50/firmware/internal/timeutil"
)

// Statistics tracks cumulative station-controller counters (spec.md
// §3.2 WifiStatistics), exposed for diagnostics.
type Statistics struct {
	ConnectAttempts   uint32
	ConnectSuccesses  uint32
	ConnectFailures   uint32
	Disconnects       uint32
	RoamEvents        uint32
	TotalUptimeS      uint32
}

// StationController wraps a WifiCapability with the connect/scan/
// roam/status lifecycle described in spec.md §4.F. It never shells
// out directly; every OS interaction goes through the injected
// WifiCapability so tests substitute a fake implementation.
type StationController struct {
	clock      timeutil.Clock
	capability WifiCapability

	mu       sync.Mutex
	roaming  RoamingConfig
	status   Status
	stats    Statistics
	lastScan []ScanResult
}

// NewStationController builds a controller around the given
// capability. clock drives EvaluateRoam's handover wait so tests can
// advance time deterministically instead of sleeping. The controller
// does not track uptime: Statistics.TotalUptimeS stays 0.
func NewStationController(clock timeutil.Clock, capability WifiCapability) *StationController {
	return &StationController{
		clock:      clock,
		capability: capability,
	}
}

// Scan lists visible networks, sorted strongest-signal-first by the
// capability layer, and caches the result for Roam's candidate pool.
func (s *StationController) Scan() ([]ScanResult, error) {
	results, err := s.capability.ScanNetworks()
	if err != nil {
		monitoring.Logf("network: scan failed: %v", err)
		return nil, err
	}

	s.mu.Lock()
	s.lastScan = results
	s.mu.Unlock()

	monitoring.Logf("network: scan found %d networks", len(results))
	return results, nil
}

// Connect attempts to join ssid with the given password. It validates
// the SSID charset before shelling out, matching spec.md §3.2's SSID
// pattern, and updates Statistics regardless of outcome.
func (s *StationController) Connect(ssid, password string) error {
	if !ssidPattern.MatchString(ssid) {
		return fmt.Errorf("%w: %q", ErrInvalidSSID, ssid)
	}

	s.mu.Lock()
	s.stats.ConnectAttempts++
	s.mu.Unlock()

	if err := s.capability.Connect(ssid, password); err != nil {
		s.mu.Lock()
		s.stats.ConnectFailures++
		s.mu.Unlock()
		monitoring.Logf("network: connect to %q failed: %v", ssid, err)
		return err
	}

	st, err := s.capability.QueryActiveLink()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.status = st
	s.stats.ConnectSuccesses++
	s.mu.Unlock()

	monitoring.Logf("network: connected to %q", ssid)
	return nil
}

// Disconnect tears down the active association, if any.
func (s *StationController) Disconnect() error {
	if err := s.capability.Disconnect(); err != nil {
		return err
	}

	s.mu.Lock()
	s.status = Status{}
	s.stats.Disconnects++
	s.mu.Unlock()

	monitoring.Logf("network: disconnected")
	return nil
}

// RefreshStatus re-queries the active link and updates the cached Status.
func (s *StationController) RefreshStatus() (Status, error) {
	st, err := s.capability.QueryActiveLink()
	if err != nil {
		return Status{}, err
	}

	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
	return st, nil
}

// Status returns the last-known link status without querying the OS.
func (s *StationController) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Statistics returns a snapshot of the cumulative counters.
func (s *StationController) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// SetRoamingConfig validates and installs the roaming policy.
func (s *StationController) SetRoamingConfig(cfg RoamingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.roaming = cfg
	s.mu.Unlock()
	return nil
}

// EvaluateRoam implements spec.md §4.F's handle_roaming: when the
// current link is weaker than SignalThresholdDBm, it transitions to a
// Roaming sub-state, waits HandoverTimeoutMS via the injected clock,
// and rechecks before deciding. If the link recovered during the wait
// it stays; otherwise it looks for a materially stronger same-SSID
// candidate from the last scan and hands back to Connect for the
// handover, or stays if none qualifies. Every attempt — reconnect or
// stay — increments RoamEvents.
func (s *StationController) EvaluateRoam(password string) (bool, error) {
	s.mu.Lock()
	roaming := s.roaming
	current := s.status
	candidates := s.lastScan
	s.mu.Unlock()

	if !roaming.Enabled {
		return false, nil
	}
	if current.SignalStrengthDBm >= roaming.SignalThresholdDBm {
		return false, nil
	}

	s.setRoamingActive(true)
	defer s.setRoamingActive(false)

	s.clock.Sleep(time.Duration(roaming.HandoverTimeoutMS) * time.Millisecond)

	s.mu.Lock()
	s.stats.RoamEvents++
	s.mu.Unlock()

	rechecked, err := s.capability.QueryActiveLink()
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.status.Connected = rechecked.Connected
	s.status.CurrentSSID = rechecked.CurrentSSID
	s.status.SignalStrengthDBm = rechecked.SignalStrengthDBm
	s.mu.Unlock()

	if rechecked.SignalStrengthDBm >= roaming.SignalThresholdDBm {
		monitoring.Logf("network: signal recovered to %d dBm during handover wait, staying", rechecked.SignalStrengthDBm)
		return false, nil
	}

	var best *ScanResult
	for i := range candidates {
		c := candidates[i]
		if c.SSID != rechecked.CurrentSSID {
			continue
		}
		if c.Connected {
			continue
		}
		if best == nil || c.SignalDBm > best.SignalDBm {
			cc := c
			best = &cc
		}
	}
	if best == nil {
		return false, nil
	}

	minGainDBm := 10
	if !roaming.AggressiveRoaming {
		minGainDBm = 15
	}
	if best.SignalDBm < rechecked.SignalStrengthDBm+minGainDBm {
		return false, nil
	}

	if err := s.Connect(best.SSID, password); err != nil {
		return false, err
	}

	monitoring.Logf("network: roamed to stronger BSSID %s (%d dBm)", best.BSSID, best.SignalDBm)
	return true, nil
}

// setRoamingActive toggles the cached status's RoamingActive flag
// while a handover decision is in flight (spec.md §3.2 NetworkStatus).
func (s *StationController) setRoamingActive(active bool) {
	s.mu.Lock()
	s.status.RoamingActive = active
	s.mu.Unlock()
}
