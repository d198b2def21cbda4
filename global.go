package bleloop

import "sync/atomic"

// defaultController is the optional process-wide handle. Unlike the
// registries it is published with an atomic so late readers on other
// goroutines observe a fully built controller.
var defaultController atomic.Pointer[Controller]

// SetDefault publishes c as the process-wide controller for code that
// cannot carry an explicit handle. Intended to be called once during
// application setup, before the dispatch loop starts.
func SetDefault(c *Controller) {
	defaultController.Store(c)
}

// Default returns the controller published by SetDefault, or nil.
func Default() *Controller {
	return defaultController.Load()
}
