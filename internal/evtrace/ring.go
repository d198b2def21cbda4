// Package evtrace keeps a bounded in-memory trace of recently dispatched
// pipeline events for diagnostics. The ring overwrites its oldest entries
// under pressure, so tracing never applies backpressure to the dispatch
// path that feeds it.
package evtrace

import (
	"fmt"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// MaxCapacity guards against accidental misconfiguration; traces are
// diagnostics, not storage.
const MaxCapacity uint32 = 1 << 16

// Metrics is a snapshot of the ring's lock-free counters.
type Metrics struct {
	Recorded    int64 // entries accepted by Put
	Overwritten int64 // entries lost to overflow
	Snapshots   int64 // Snapshot calls
	Errors      int64 // unexpected ring errors (should stay zero)
}

// Ring is a fixed-capacity overwriting trace buffer. All methods are safe
// for concurrent use.
type Ring[T any] struct {
	buf mpmc.RichOverlappedRingBuffer[T]

	recorded    atomic.Int64
	overwritten atomic.Int64
	snapshots   atomic.Int64
	errors      atomic.Int64
}

// New creates a ring holding up to capacity entries. The underlying buffer
// may round the capacity up internally; Snapshot length is bounded by what
// it actually retains.
func New[T any](capacity uint32) (*Ring[T], error) {
	if capacity == 0 {
		return nil, fmt.Errorf("trace capacity must be > 0")
	}
	if capacity > MaxCapacity {
		return nil, fmt.Errorf("trace capacity %d exceeds maximum %d", capacity, MaxCapacity)
	}
	return &Ring[T]{buf: mpmc.NewOverlappedRingBuffer[T](capacity)}, nil
}

// Put records one entry, silently overwriting the oldest when the ring is
// full. Best-effort: an unexpected buffer error is counted and the entry
// dropped rather than surfaced to the dispatch path.
func (r *Ring[T]) Put(v T) {
	overwrites, err := r.buf.EnqueueM(v)
	if err != nil {
		r.errors.Add(1)
		return
	}
	r.overwritten.Add(int64(overwrites))
	r.recorded.Add(1)
}

// IsEmpty reports whether the ring currently holds no entries.
func (r *Ring[T]) IsEmpty() bool { return r.buf.IsEmpty() }

// Snapshot drains and returns the retained entries, oldest first. Entries
// recorded concurrently with the drain land in this snapshot or the next
// one. Returns nil when the ring is empty.
func (r *Ring[T]) Snapshot() []T {
	r.snapshots.Add(1)

	var out []T
	for !r.buf.IsEmpty() {
		v, err := r.buf.Dequeue()
		if err != nil {
			r.errors.Add(1)
			break
		}
		out = append(out, v)
	}
	return out
}

// GetMetrics returns a copy of the current counters.
func (r *Ring[T]) GetMetrics() Metrics {
	return Metrics{
		Recorded:    r.recorded.Load(),
		Overwritten: r.overwritten.Load(),
		Snapshots:   r.snapshots.Load(),
		Errors:      r.errors.Load(),
	}
}
