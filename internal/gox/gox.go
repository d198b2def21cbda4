// Package gox starts named background goroutines: a pprof label for
// profiling, the name carried in the context for logging, and panic
// containment so a crashing worker cannot take the process down with it.
package gox

import (
	"context"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const nameKey ctxKey = "goroutine_name"

// Go runs fn on a new goroutine labeled name. A panic in fn is recovered
// and logged through logger (logrus.StandardLogger when nil); the
// goroutine then exits. If parent is nil, context.Background is used.
func Go(parent context.Context, logger *logrus.Logger, name string, fn func(ctx context.Context)) {
	if parent == nil {
		parent = context.Background()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parent, labels, func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithField("goroutine", name).Errorf("goroutine panicked (recovered): %v", r)
			}
		}()
		fn(context.WithValue(ctx, nameKey, name))
	})
}

// Name retrieves the goroutine name stored by Go, or "" when absent.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(nameKey).(string); ok {
		return s
	}
	return ""
}
