package network

import "errors"

// Error kinds returned by the network resilience core (spec.md §6.4, §7).
var (
	ErrInvalidParameter   = errors.New("network: invalid parameter")
	ErrInvalidSSID        = errors.New("network: invalid SSID")
	ErrWeakPassword       = errors.New("network: weak password")
	ErrNotInitialized     = errors.New("network: not initialized")
	ErrAlreadyRunning     = errors.New("network: already running")
	ErrNotRunning         = errors.New("network: not running")
	ErrTimeout            = errors.New("network: operation timed out")
	ErrWifiConnectFailed  = errors.New("network: wifi connection failed")
	ErrWifiAuthFailed     = errors.New("network: wifi authentication failed")
	ErrWifiScanFailed     = errors.New("network: wifi scan failed")
	ErrWifiManagerFailed  = errors.New("network: wifi manager operation failed")
	ErrApManagerFailed    = errors.New("network: ap manager operation failed")
	ErrClientNotFound     = errors.New("network: client not found")
)
