package config

import "errors"

var (
	// ErrInvalidDelay is returned when default_delay is negative
	ErrInvalidDelay = errors.New("default_delay must not be negative")
	// ErrInvalidTimeLimit is returned when time_limit is not greater than 0
	ErrInvalidTimeLimit = errors.New("time_limit must be greater than 0")
	// ErrResumeWithoutSnapshot is returned when resume is set without a snapshot path
	ErrResumeWithoutSnapshot = errors.New("resume requires a snapshot path")
)
