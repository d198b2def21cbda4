package bleloop

import (
	"github.com/bleloop/bleloop/internal/eventq"
	"github.com/bleloop/bleloop/stack"
)

// The Enqueue methods are the producer half of the pipeline. They are
// registered as vendor stack callbacks during bring-up and must be
// called from a single goroutine, the stack's delivery goroutine. They
// never block: when the pool is exhausted the event is counted as
// dropped and the producer moves on. Payloads are copied before the
// call returns, so vendor-owned parameter memory is never retained.

// EnqueueGAPEvent captures a GAP event. Matches stack.GAPCallback.
func (c *Controller) EnqueueGAPEvent(event stack.GAPEvent, param *stack.GAPParam) {
	e := c.pool.Get()
	if e == nil {
		c.events.NoteDropped()
		return
	}
	e.LoadGAP(event, param)
	c.push(e)
}

// EnqueueGATTServerEvent captures a GATT server event. Matches
// stack.GATTServerCallback.
func (c *Controller) EnqueueGATTServerEvent(event stack.GATTServerEvent, iface stack.GATTIf, param *stack.GATTServerParam) {
	e := c.pool.Get()
	if e == nil {
		c.events.NoteDropped()
		return
	}
	e.LoadGATTServer(event, iface, param)
	c.push(e)
}

// EnqueueGATTClientEvent captures a GATT client event. Matches
// stack.GATTClientCallback.
func (c *Controller) EnqueueGATTClientEvent(event stack.GATTClientEvent, iface stack.GATTIf, param *stack.GATTClientParam) {
	e := c.pool.Get()
	if e == nil {
		c.events.NoteDropped()
		return
	}
	e.LoadGATTClient(event, iface, param)
	c.push(e)
}

func (c *Controller) push(e *eventq.Event) {
	if !c.events.Push(e) {
		// Unreachable while the queue is at least pool-sized; counted
		// anyway so a misconfigured queue surfaces in the drop counter.
		c.pool.Put(e)
		c.events.NoteDropped()
		return
	}
	c.wake.Signal()
}
