package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/bleloop/bleloop"
)

// FormatUserError converts internal errors into messages fit for the
// terminal. Lifecycle failures name the phase and step instead of
// dumping the whole wrapped chain; everything else passes through.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var lerr *bleloop.LifecycleError
	if errors.As(err, &lerr) {
		return fmt.Sprintf("BLE %s failed at %s: %v", lerr.Phase, lerr.Step, lerr.Err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "operation timed out"
	}

	return err.Error()
}
