package network

import (
	"errors"
	"testing"
	"time"

	"github.com/oht50/firmware/internal/timeutil"
)

func TestStationController_ConnectSuccess(t *testing.T) {
	cap := &MockWifiCapability{
		LinkStatus: Status{Connected: true, CurrentSSID: "plant-ap", SignalStrengthDBm: -40},
	}
	sc := NewStationController(timeutil.NewMockClock(time.Now()), cap)

	if err := sc.Connect("plant-ap", "supersecret1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	stats := sc.Statistics()
	if stats.ConnectAttempts != 1 || stats.ConnectSuccesses != 1 || stats.ConnectFailures != 0 {
		t.Errorf("unexpected statistics: %+v", stats)
	}
	if got := sc.Status(); got.CurrentSSID != "plant-ap" {
		t.Errorf("Status() = %+v, want CurrentSSID plant-ap", got)
	}
}

func TestStationController_ConnectRejectsInvalidSSID(t *testing.T) {
	cap := &MockWifiCapability{}
	sc := NewStationController(timeutil.NewMockClock(time.Now()), cap)

	err := sc.Connect("has a space", "whatever1")
	if !errors.Is(err, ErrInvalidSSID) {
		t.Fatalf("expected ErrInvalidSSID, got %v", err)
	}
	if len(cap.ConnectCalls) != 0 {
		t.Error("capability should not be invoked for an invalid SSID")
	}
}

func TestStationController_ConnectFailureCountsStatistics(t *testing.T) {
	cap := &MockWifiCapability{ConnectErr: ErrWifiAuthFailed}
	sc := NewStationController(timeutil.NewMockClock(time.Now()), cap)

	err := sc.Connect("plant-ap", "wrongpass1")
	if !errors.Is(err, ErrWifiAuthFailed) {
		t.Fatalf("expected ErrWifiAuthFailed, got %v", err)
	}

	stats := sc.Statistics()
	if stats.ConnectAttempts != 1 || stats.ConnectFailures != 1 || stats.ConnectSuccesses != 0 {
		t.Errorf("unexpected statistics: %+v", stats)
	}
}

func TestStationController_Scan(t *testing.T) {
	cap := &MockWifiCapability{
		ScanResults: []ScanResult{
			{SSID: "plant-ap", SignalDBm: -60},
			{SSID: "plant-ap", SignalDBm: -40},
		},
	}
	sc := NewStationController(timeutil.NewMockClock(time.Now()), cap)

	results, err := sc.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 scan results, got %d", len(results))
	}
}

func TestStationController_Disconnect(t *testing.T) {
	cap := &MockWifiCapability{LinkStatus: Status{Connected: true, CurrentSSID: "plant-ap"}}
	sc := NewStationController(timeutil.NewMockClock(time.Now()), cap)
	sc.status = cap.LinkStatus

	if err := sc.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if sc.Status().Connected {
		t.Error("status should be cleared after disconnect")
	}
	if sc.Statistics().Disconnects != 1 {
		t.Error("disconnect counter not incremented")
	}
}

func TestStationController_EvaluateRoam_DisabledIsNoop(t *testing.T) {
	cap := &MockWifiCapability{}
	sc := NewStationController(timeutil.NewMockClock(time.Now()), cap)

	roamed, err := sc.EvaluateRoam("pw")
	if err != nil || roamed {
		t.Fatalf("expected no roam with disabled config, got roamed=%v err=%v", roamed, err)
	}
}

// sequencedWifiCapability returns a different QueryActiveLink result on
// each successive call, so tests can assert on the post-wait recheck
// without racing a real clock.
type sequencedWifiCapability struct {
	MockWifiCapability
	linkSequence []Status
	queryCalls   int
}

func (m *sequencedWifiCapability) QueryActiveLink() (Status, error) {
	m.queryCalls++
	if m.queryCalls-1 < len(m.linkSequence) {
		return m.linkSequence[m.queryCalls-1], nil
	}
	return m.MockWifiCapability.QueryActiveLink()
}

func TestStationController_EvaluateRoam_WaitsHandoverTimeoutBeforeRechecking(t *testing.T) {
	cap := &sequencedWifiCapability{
		linkSequence: []Status{
			{Connected: true, CurrentSSID: "plant-ap", SignalStrengthDBm: -80},
		},
	}
	clock := timeutil.NewMockClock(time.Now())
	sc := NewStationController(clock, cap)
	sc.status = Status{Connected: true, CurrentSSID: "plant-ap", SignalStrengthDBm: -80}
	sc.lastScan = []ScanResult{
		{SSID: "plant-ap", SignalDBm: -40, BSSID: "aa:bb"},
	}
	if err := sc.SetRoamingConfig(RoamingConfig{Enabled: true, SignalThresholdDBm: -70, HandoverTimeoutMS: 2000}); err != nil {
		t.Fatalf("SetRoamingConfig: %v", err)
	}

	roamed, err := sc.EvaluateRoam("pw")
	if err != nil {
		t.Fatalf("EvaluateRoam: %v", err)
	}
	if !roamed {
		t.Fatal("expected a roam to the stronger candidate after the recheck")
	}

	sleeps := clock.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 2000*time.Millisecond {
		t.Fatalf("expected a single 2s handover wait, got %v", sleeps)
	}
	// One QueryActiveLink for the post-wait recheck, one more inside
	// Connect confirming the new association.
	if cap.queryCalls != 2 {
		t.Errorf("expected recheck plus post-connect query, got %d calls", cap.queryCalls)
	}
}

func TestStationController_EvaluateRoam_StaysIfSignalRecoversDuringWait(t *testing.T) {
	cap := &sequencedWifiCapability{
		linkSequence: []Status{
			{Connected: true, CurrentSSID: "plant-ap", SignalStrengthDBm: -50},
		},
	}
	clock := timeutil.NewMockClock(time.Now())
	sc := NewStationController(clock, cap)
	sc.status = Status{Connected: true, CurrentSSID: "plant-ap", SignalStrengthDBm: -80}
	sc.lastScan = []ScanResult{
		{SSID: "plant-ap", SignalDBm: -40, BSSID: "aa:bb"},
	}
	if err := sc.SetRoamingConfig(RoamingConfig{Enabled: true, SignalThresholdDBm: -70, HandoverTimeoutMS: 1000}); err != nil {
		t.Fatalf("SetRoamingConfig: %v", err)
	}

	roamed, err := sc.EvaluateRoam("pw")
	if err != nil {
		t.Fatalf("EvaluateRoam: %v", err)
	}
	if roamed {
		t.Fatal("expected no handover once the recheck finds signal recovered")
	}
	if len(cap.ConnectCalls) != 0 {
		t.Error("Connect should not be called when the recheck finds the link recovered")
	}
	if sc.Status().RoamingActive {
		t.Error("RoamingActive must clear once the decision completes")
	}
}

func TestStationController_EvaluateRoam_SwitchesToStrongerBSSID(t *testing.T) {
	cap := &MockWifiCapability{
		LinkStatus: Status{Connected: true, CurrentSSID: "plant-ap", SignalStrengthDBm: -80},
	}
	sc := NewStationController(timeutil.NewMockClock(time.Now()), cap)
	sc.status = cap.LinkStatus
	sc.lastScan = []ScanResult{
		{SSID: "plant-ap", SignalDBm: -40, BSSID: "aa:bb"},
		{SSID: "other-ap", SignalDBm: -20, BSSID: "cc:dd"},
	}
	if err := sc.SetRoamingConfig(RoamingConfig{Enabled: true, SignalThresholdDBm: -70}); err != nil {
		t.Fatalf("SetRoamingConfig: %v", err)
	}

	roamed, err := sc.EvaluateRoam("pw")
	if err != nil {
		t.Fatalf("EvaluateRoam: %v", err)
	}
	if !roamed {
		t.Fatal("expected a roam event to the stronger same-SSID BSSID")
	}
	if sc.Statistics().RoamEvents != 1 {
		t.Error("roam event counter not incremented")
	}
}
