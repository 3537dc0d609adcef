package config

import "errors"

// Error kinds returned by the persistent config store (spec.md §4.I, §7).
var (
	ErrInvalidParameter = errors.New("config: invalid parameter")
	ErrConfigParse      = errors.New("config: malformed line")
)
