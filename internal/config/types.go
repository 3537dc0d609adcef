// Package config implements the Persistent Config Store (spec.md
// §4.I): two line-oriented key=value files, network.conf and
// roaming.conf, with validation, safe defaults, and backup/restore.
package config

import (
	"fmt"

	"github.com/oht50/firmware/internal/network"
)

// NetworkFileConfig mirrors network.conf's recognized keys (spec.md
// §6.2). It is a flat record, not network.Status or network.APConfig —
// the file format predates and outlives any in-memory manager shape.
type NetworkFileConfig struct {
	WifiEnabled      bool
	WifiSSID         string
	WifiPassword     string
	WifiSecurityType int
	SignalStrength   int
	RoamingEnabled   bool
	MobileAppEnabled bool
	LastUpdateTimeS  uint32
}

// DefaultNetworkFileConfig returns the safe defaults written on first
// load when network.conf does not yet exist.
func DefaultNetworkFileConfig() NetworkFileConfig {
	return NetworkFileConfig{
		WifiEnabled:      true,
		WifiSSID:         "",
		WifiPassword:     "",
		WifiSecurityType: int(network.SecurityWPA2),
		SignalStrength:   0,
		RoamingEnabled:   false,
		MobileAppEnabled: false,
		LastUpdateTimeS:  0,
	}
}

// Validate checks the domain ranges from spec.md §6.2. An empty SSID
// is accepted (it means "not yet provisioned"); a non-empty one must
// be 1-32 bytes long. The SSID's characters are not checked.
func (c NetworkFileConfig) Validate() error {
	if c.WifiSSID != "" && (len(c.WifiSSID) < 1 || len(c.WifiSSID) > 32) {
		return fmt.Errorf("%w: wifi_ssid must be 1-32 bytes", ErrInvalidParameter)
	}
	if c.WifiPassword != "" && (len(c.WifiPassword) < 8 || len(c.WifiPassword) > 64) {
		return fmt.Errorf("%w: wifi_password must be 8-64 bytes", ErrInvalidParameter)
	}
	if c.WifiSecurityType < int(network.SecurityOpen) || c.WifiSecurityType > int(network.SecurityWPA3) {
		return fmt.Errorf("%w: wifi_security_type %d out of range", ErrInvalidParameter, c.WifiSecurityType)
	}
	if c.SignalStrength < -100 || c.SignalStrength > 0 {
		return fmt.Errorf("%w: signal_strength %d out of [-100,0]", ErrInvalidParameter, c.SignalStrength)
	}
	return nil
}

// RoamingFileConfig mirrors roaming.conf's recognized keys (spec.md §6.2).
type RoamingFileConfig struct {
	Enabled            bool
	SignalThresholdDBm int
	ScanIntervalMS     uint32
	HandoverTimeoutMS  uint32
	AggressiveRoaming  bool
}

// DefaultRoamingFileConfig returns mid-range defaults within the
// valid ranges enumerated in spec.md §6.2.
func DefaultRoamingFileConfig() RoamingFileConfig {
	return RoamingFileConfig{
		Enabled:            false,
		SignalThresholdDBm: -70,
		ScanIntervalMS:     5000,
		HandoverTimeoutMS:  2000,
		AggressiveRoaming:  false,
	}
}

// Validate checks the domain ranges from spec.md §6.2.
func (c RoamingFileConfig) Validate() error {
	if c.SignalThresholdDBm < -100 || c.SignalThresholdDBm > -30 {
		return fmt.Errorf("%w: signal_threshold_dbm %d out of [-100,-30]", ErrInvalidParameter, c.SignalThresholdDBm)
	}
	if c.ScanIntervalMS < 1000 || c.ScanIntervalMS > 60000 {
		return fmt.Errorf("%w: scan_interval_ms %d out of [1000,60000]", ErrInvalidParameter, c.ScanIntervalMS)
	}
	if c.HandoverTimeoutMS < 500 || c.HandoverTimeoutMS > 10000 {
		return fmt.Errorf("%w: handover_timeout_ms %d out of [500,10000]", ErrInvalidParameter, c.HandoverTimeoutMS)
	}
	return nil
}

// ToRoamingConfig converts the on-disk record to the in-memory
// network.RoamingConfig the Station Controller (component F) accepts
// via SetRoamingConfig — this is the "apply hands the validated
// struct to its manager" step of spec.md §4.I.
func (c RoamingFileConfig) ToRoamingConfig() network.RoamingConfig {
	return network.RoamingConfig{
		Enabled:            c.Enabled,
		SignalThresholdDBm: c.SignalThresholdDBm,
		ScanIntervalMS:     int(c.ScanIntervalMS),
		HandoverTimeoutMS:  int(c.HandoverTimeoutMS),
		AggressiveRoaming:  c.AggressiveRoaming,
	}
}
