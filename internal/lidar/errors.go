package lidar

import "errors"

// Error kinds returned by the facade and its components. Each maps to
// a stable sentinel so callers can compare with errors.Is; messages
// are rendered unchanged by the caller.
var (
	ErrInvalidParameter      = errors.New("lidar: invalid parameter")
	ErrNotInitialized        = errors.New("lidar: not initialized")
	ErrAlreadyInitialized    = errors.New("lidar: already initialized")
	ErrAlreadyActive         = errors.New("lidar: already scanning")
	ErrTransportIO           = errors.New("lidar: transport i/o error")
	ErrTransportWriteShort   = errors.New("lidar: transport wrote fewer bytes than requested")
	ErrProtocolShortResponse = errors.New("lidar: short or garbled device response")
	ErrUnhealthy             = errors.New("lidar: device reports unhealthy")
	ErrTimeout               = errors.New("lidar: operation timed out")
	ErrFacadeError           = errors.New("lidar: facade entered error state")
)
