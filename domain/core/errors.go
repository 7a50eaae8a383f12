package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Lookup errors
	ErrDetectorNotFound = errors.New("detector not found")
	ErrFindingNotFound  = errors.New("finding not found")

	// Scheduling errors
	ErrDetectorBusy = errors.New("detector already running")
	ErrQuarantined  = errors.New("detector is quarantined")
	ErrFleetPaused  = errors.New("fleet paused by governor")
	ErrInactive     = errors.New("detector is not started")

	// Registration errors
	ErrDuplicateDetector = errors.New("detector already registered")
	ErrSelfBackup        = errors.New("detector cannot back up itself")
	ErrBackupCycle       = errors.New("backup chain forms a cycle")
	ErrInvalidInterval   = errors.New("schedule interval must be positive")
)

// NewRegistrationError wraps a registration failure with the detector name.
// Registration failures are fatal to that registration only, never to the
// process.
func NewRegistrationError(name string, err error) error {
	return fmt.Errorf("register detector %s: %w", name, err)
}

// IsSchedulingRejection reports whether an error is one of the deliberate
// no-op rejections (busy, quarantined, paused, inactive) rather than a real
// failure. Callers use this to distinguish "try again later" from "broken".
func IsSchedulingRejection(err error) bool {
	return errors.Is(err, ErrDetectorBusy) ||
		errors.Is(err, ErrQuarantined) ||
		errors.Is(err, ErrFleetPaused) ||
		errors.Is(err, ErrInactive)
}
