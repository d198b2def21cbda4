package bleloop

import "github.com/bleloop/bleloop/stack"

// GAPEventHandler receives completion and security GAP events together
// with their extracted status. Scan results are delivered separately
// through GAPScanHandler.
type GAPEventHandler interface {
	OnGAPEvent(event stack.GAPEvent, status stack.Status)
}

// GAPScanHandler receives advertisement reports. The result pointer is
// valid only for the duration of the call; handlers must copy what they
// keep.
type GAPScanHandler interface {
	OnGAPScanResult(result *stack.ScanResult)
}

// GATTServerEventHandler receives GATT server events. The param pointer
// is valid only for the duration of the call.
type GATTServerEventHandler interface {
	OnGATTServerEvent(event stack.GATTServerEvent, iface stack.GATTIf, param *stack.GATTServerParam)
}

// GATTClientEventHandler receives GATT client events. The param pointer
// is valid only for the duration of the call.
type GATTClientEventHandler interface {
	OnGATTClientEvent(event stack.GATTClientEvent, iface stack.GATTIf, param *stack.GATTClientParam)
}

// StatusEventHandler is notified of lifecycle edges from the dispatch
// goroutine.
type StatusEventHandler interface {
	OnBLEBeforeDisabled()
}

// LoopModule runs once per dispatch tick while the stack is active,
// after queued events have been dispatched.
type LoopModule interface {
	Tick()
}

// Registration appends to the controller's ordered registries. Handlers
// are invoked in registration order and are never removed. Register
// before Setup, or from the dispatch goroutine; the registries are read
// without locks during dispatch and bring-up.

func (c *Controller) RegisterGAPHandler(h GAPEventHandler) {
	c.gapHandlers = append(c.gapHandlers, h)
}

func (c *Controller) RegisterGAPScanHandler(h GAPScanHandler) {
	c.scanHandlers = append(c.scanHandlers, h)
}

func (c *Controller) RegisterGATTServerHandler(h GATTServerEventHandler) {
	c.gattsHandlers = append(c.gattsHandlers, h)
}

func (c *Controller) RegisterGATTClientHandler(h GATTClientEventHandler) {
	c.gattcHandlers = append(c.gattcHandlers, h)
}

func (c *Controller) RegisterStatusHandler(h StatusEventHandler) {
	c.statusHandlers = append(c.statusHandlers, h)
}

func (c *Controller) RegisterLoopModule(m LoopModule) {
	c.modules = append(c.modules, m)
}
