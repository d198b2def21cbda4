// Package wake implements the consumer wake side-channel of the event
// pipeline. The producer signals after every enqueue; the consumer drains
// the channel at the start of each dispatch pass and can select on it to
// cut idle latency. Signals carry no data and may be coalesced freely;
// losing one never affects event delivery, which rides the queue alone.
package wake

import (
	"errors"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"
)

// DefaultCapacity is the signal ring capacity used when the caller passes
// a non-positive value.
const DefaultCapacity = 64

// wakeByte is the single token written per signal. Read-only.
var wakeByte = []byte{0x01}

// Stats carries monitoring counters.
type Stats struct {
	Signaled  uint64 // Signal calls
	Coalesced uint64 // signals merged because the ring was full
	Drained   uint64 // signal bytes consumed by Drain
}

// Notifier is the wake channel between the producer and the consumer. The
// ring holds one byte per pending signal; a 1-buffered edge channel lets a
// sleeping consumer select on arrival.
type Notifier struct {
	ring *ringbuffer.RingBuffer
	c    chan struct{}

	signaled  atomic.Uint64
	coalesced atomic.Uint64
	drained   atomic.Uint64
}

// New creates a Notifier with the given signal ring capacity.
func New(capacity int) *Notifier {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Notifier{
		ring: ringbuffer.New(capacity),
		c:    make(chan struct{}, 1),
	}
}

// Signal notes that work is pending. Producer side; never blocks. A full
// ring coalesces the signal instead of growing or waiting.
func (n *Notifier) Signal() {
	n.signaled.Add(1)
	if written, _ := n.ring.Write(wakeByte); written == 0 {
		n.coalesced.Add(1)
	}
	select {
	case n.c <- struct{}{}:
	default:
		// edge already pending
	}
}

// C returns the edge channel for consumer select loops. At most one token
// is buffered; Drain re-arms it.
func (n *Notifier) C() <-chan struct{} { return n.c }

// Drain empties the side-channel and returns the number of signals
// consumed. Consumer side. The edge channel is cleared before the ring so
// a signal racing the drain leaves the edge set and wakes the consumer
// again rather than being lost.
func (n *Notifier) Drain() int {
	select {
	case <-n.c:
	default:
	}

	var buf [64]byte
	total := 0
	for {
		m, err := n.ring.TryRead(buf[:])
		total += m
		if m == 0 || errors.Is(err, ringbuffer.ErrIsEmpty) {
			break
		}
	}
	if total > 0 {
		n.drained.Add(uint64(total))
	}
	return total
}

// Pending returns the number of undrained signals. Advisory.
func (n *Notifier) Pending() int { return n.ring.Length() }

// Stats returns instantaneous counters for monitoring.
func (n *Notifier) Stats() Stats {
	return Stats{
		Signaled:  n.signaled.Load(),
		Coalesced: n.coalesced.Load(),
		Drained:   n.drained.Load(),
	}
}
