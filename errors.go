package bleloop

import (
	"errors"
	"fmt"
)

// Lifecycle phases reported by LifecycleError.
const (
	PhasePreInit  = "pre-init"
	PhaseBringUp  = "bring-up"
	PhaseTearDown = "tear-down"
)

var (
	// ErrFailed is returned by operations on a controller whose lifecycle
	// has permanently failed.
	ErrFailed = errors.New("ble lifecycle permanently failed")

	// ErrPollTimeout reports that the vendor controller did not reach the
	// expected status within the configured poll window.
	ErrPollTimeout = errors.New("controller status poll timed out")
)

// LifecycleError describes a vendor stack step that failed during setup,
// bring-up or tear-down. The controller marks itself permanently failed
// when it records one.
type LifecycleError struct {
	Phase string
	Step  string
	Err   error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("ble %s: %s: %v", e.Phase, e.Step, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}
