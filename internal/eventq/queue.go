package eventq

import "sync/atomic"

// Queue is a fixed-capacity single-producer/single-consumer FIFO of Event
// pointers. Push may only be called from one producer goroutine at a time,
// Pop only from one consumer goroutine; under that discipline no mutex is
// needed. Head and tail are free-running counters accessed atomically,
// which gives (at least) the acquire/release ordering the slot handoff
// requires.
//
// The queue also owns the pipeline's dropped-event counter. The producer
// increments it whenever a record could not be captured (pool exhausted)
// or could not be enqueued (queue full); the consumer reads-and-resets it
// once per tick. An increment racing the reset is reported on the next
// tick, never lost.
type Queue struct {
	slots    []*Event
	capacity uint64

	head    atomic.Uint64 // next slot to pop, advanced only by the consumer
	tail    atomic.Uint64 // next slot to push, advanced only by the producer
	dropped atomic.Uint32
}

// NewQueue creates a queue holding up to capacity records. Panics if
// capacity is not positive.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		panic("eventq: queue capacity must be positive")
	}
	return &Queue{
		slots:    make([]*Event, capacity),
		capacity: uint64(capacity),
	}
}

// Push appends a record. Producer-only. Returns false when the queue is
// full; the record is not retained, so the caller must release it back
// to its pool and note a drop.
func (q *Queue) Push(e *Event) bool {
	t := q.tail.Load()
	if t-q.head.Load() >= q.capacity {
		return false
	}
	q.slots[t%q.capacity] = e
	q.tail.Store(t + 1)
	return true
}

// Pop removes and returns the oldest record, or nil when the queue is
// empty. Consumer-only. Nil is the drain sentinel: the dispatch loop stops
// on the first nil even if a producer races in a new record, which is then
// handled next tick.
func (q *Queue) Pop() *Event {
	h := q.head.Load()
	if h == q.tail.Load() {
		return nil
	}
	i := h % q.capacity
	e := q.slots[i]
	q.slots[i] = nil
	q.head.Store(h + 1)
	return e
}

// Len returns the number of queued records. Exact only from the consumer
// goroutine; advisory elsewhere.
func (q *Queue) Len() int { return int(q.tail.Load() - q.head.Load()) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return int(q.capacity) }

// NoteDropped counts one dropped event.
func (q *Queue) NoteDropped() { q.dropped.Add(1) }

// TakeDropped atomically returns the drop count accumulated since the last
// call and resets it to zero.
func (q *Queue) TakeDropped() uint32 { return q.dropped.Swap(0) }
