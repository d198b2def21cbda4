package eventq

// Pool is a fixed-capacity arena of preallocated Events. All records live
// in one backing slice allocated at construction; the free list is a
// buffered channel of record pointers, so Get and Put are O(1), lock-free
// and safe to call from the producer and consumer concurrently.
//
// Records are lent out: every successful Get must be balanced by exactly
// one Put. Double Put is a caller bug; the pool never blocks on it.
type Pool struct {
	records []Event
	free    chan *Event
}

// NewPool creates a pool with the given number of record slots. Capacity
// is sized to the worst-case callback burst expected between two consumer
// ticks. Panics if capacity is not positive.
func NewPool(capacity int) *Pool {
	if capacity <= 0 {
		panic("eventq: pool capacity must be positive")
	}
	p := &Pool{
		records: make([]Event, capacity),
		free:    make(chan *Event, capacity),
	}
	for i := range p.records {
		p.free <- &p.records[i]
	}
	return p
}

// Get returns a free record, or nil when the pool is saturated. It never
// blocks; a nil result is the producer's signal to count a drop and move
// on. The record's previous contents are overwritten by the next Load
// call, not here.
func (p *Pool) Get() *Event {
	select {
	case e := <-p.free:
		return e
	default:
		return nil
	}
}

// Put returns a record to the pool. Putting nil is a no-op. A full free
// list means a double Put; the record is discarded rather than blocking
// the caller.
func (p *Pool) Put(e *Event) {
	if e == nil {
		return
	}
	select {
	case p.free <- e:
	default:
	}
}

// Capacity returns the total number of record slots.
func (p *Pool) Capacity() int { return cap(p.free) }

// Free returns the current number of free slots. The value is a snapshot
// and only advisory under concurrent use.
func (p *Pool) Free() int { return len(p.free) }
