package bleloop

import (
	"context"
	"time"

	"github.com/bleloop/bleloop/internal/eventq"
	"github.com/bleloop/bleloop/stack"
)

// TraceEntry is one dispatched event in the diagnostic trace ring.
type TraceEntry struct {
	TsUs  int64  `json:"ts_us"`
	Kind  string `json:"kind"`
	Event uint16 `json:"event"`
	If    uint8  `json:"if"`
}

// Tick runs one pass of the dispatch loop on the calling goroutine. A
// pending enable or disable intent is resolved first; while active, the
// queue is drained to empty, loop modules run once, and accumulated
// drops are reported in a single warning.
func (c *Controller) Tick() {
	if c.failed.Load() {
		return
	}

	switch State(c.state.Load()) {
	case StateOff, StateDisabled:
		return

	case StateDisable:
		c.logger.Debug("Disabling BLE stack")
		for _, h := range c.statusHandlers {
			h.OnBLEBeforeDisabled()
		}
		if err := c.tearDown(); err != nil {
			c.markFailed(err)
			return
		}
		// Events captured before the stack went down are stale; recycle
		// them instead of replaying on the next enable.
		c.wake.Drain()
		for e := c.events.Pop(); e != nil; e = c.events.Pop() {
			c.pool.Put(e)
		}
		c.state.Store(uint32(StateDisabled))
		return

	case StateEnable:
		c.logger.Debug("Enabling BLE stack")
		c.state.Store(uint32(StateOff))
		if err := c.bringUp(); err != nil {
			c.markFailed(err)
			return
		}
		c.state.Store(uint32(StateActive))
		// Queued events wait for the next tick.
		return

	case StateActive:
	}

	c.wake.Drain()
	for e := c.events.Pop(); e != nil; e = c.events.Pop() {
		switch e.Kind {
		case eventq.KindGAP:
			c.dispatchGAP(&e.GAP)
		case eventq.KindGATTServer:
			c.dispatchGATTServer(&e.GATTServer)
		case eventq.KindGATTClient:
			c.dispatchGATTClient(&e.GATTClient)
		}
		c.traceEvent(e)
		c.pool.Put(e)
	}

	for _, m := range c.modules {
		m.Tick()
	}

	if n := c.events.TakeDropped(); n > 0 {
		c.dropped.Add(uint64(n))
		c.logger.Warnf("Dropped %d BLE events due to buffer overflow", n)
	}
}

func (c *Controller) dispatchGAP(d *eventq.GAPData) {
	if d.Event == stack.GAPScanResult {
		for _, h := range c.scanHandlers {
			h.OnGAPScanResult(&d.Param.ScanResult)
		}
		return
	}
	status, ok := d.Param.CompletionStatus(d.Event)
	if !ok {
		c.logger.Warnf("Unhandled GAP event: %d", d.Event)
		return
	}
	for _, h := range c.gapHandlers {
		h.OnGAPEvent(d.Event, status)
	}
}

func (c *Controller) dispatchGATTServer(d *eventq.GATTServerData) {
	c.logger.Tracef("gatts event %d (if %d)", d.Event, d.If)
	for _, h := range c.gattsHandlers {
		h.OnGATTServerEvent(d.Event, d.If, &d.Param)
	}
}

func (c *Controller) dispatchGATTClient(d *eventq.GATTClientData) {
	c.logger.Tracef("gattc event %d (if %d)", d.Event, d.If)
	for _, h := range c.gattcHandlers {
		h.OnGATTClientEvent(d.Event, d.If, &d.Param)
	}
}

func (c *Controller) traceEvent(e *eventq.Event) {
	if c.trace == nil {
		return
	}
	entry := TraceEntry{TsUs: e.TsUs, Kind: e.Kind.String()}
	switch e.Kind {
	case eventq.KindGAP:
		entry.Event = uint16(e.GAP.Event)
	case eventq.KindGATTServer:
		entry.Event = uint16(e.GATTServer.Event)
		entry.If = uint8(e.GATTServer.If)
	case eventq.KindGATTClient:
		entry.Event = uint16(e.GATTClient.Event)
		entry.If = uint8(e.GATTClient.If)
	}
	c.trace.Put(entry)
}

// TraceSnapshot drains and returns the diagnostic trace, oldest first.
// Nil when tracing is disabled or the ring is empty.
func (c *Controller) TraceSnapshot() []TraceEntry {
	if c.trace == nil {
		return nil
	}
	return c.trace.Snapshot()
}

// Run drives Tick until ctx is canceled, waking on enqueued events and
// on a safety-net ticker. It returns the lifecycle failure if the
// controller fails, ctx.Err() otherwise.
func (c *Controller) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		c.Tick()
		if c.failed.Load() {
			return c.Failure()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-c.wake.C():
		}
	}
}
