package testutils

import (
	"sync"

	"github.com/bleloop/bleloop/stack"
)

// The recording handlers satisfy the pipeline's handler contracts and
// capture deliveries for assertions. They copy every payload, honoring
// the rule that pointers are only valid during the callback. All of
// them are safe to read while a dispatch loop runs on another
// goroutine.

// CallRecorder notes invocations across several handlers so tests can
// assert cross-handler ordering.
type CallRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *CallRecorder) Note(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

// Calls returns the noted invocations, oldest first.
func (r *CallRecorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// GAPRecord is one grouped GAP delivery.
type GAPRecord struct {
	Event  stack.GAPEvent `json:"event"`
	Status stack.Status   `json:"status"`
}

// RecordingGAPHandler records grouped GAP deliveries in arrival order.
type RecordingGAPHandler struct {
	name string
	rec  *CallRecorder

	mu     sync.Mutex
	events []GAPRecord
}

// NewRecordingGAPHandler creates a recorder. rec may be nil; when set,
// every delivery is also noted there under name.
func NewRecordingGAPHandler(name string, rec *CallRecorder) *RecordingGAPHandler {
	return &RecordingGAPHandler{name: name, rec: rec}
}

func (h *RecordingGAPHandler) OnGAPEvent(event stack.GAPEvent, status stack.Status) {
	h.mu.Lock()
	h.events = append(h.events, GAPRecord{Event: event, Status: status})
	h.mu.Unlock()
	if h.rec != nil {
		h.rec.Note(h.name)
	}
}

func (h *RecordingGAPHandler) Events() []GAPRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]GAPRecord(nil), h.events...)
}

// RecordingScanHandler records scan results by value.
type RecordingScanHandler struct {
	name string
	rec  *CallRecorder

	mu      sync.Mutex
	results []stack.ScanResult
}

func NewRecordingScanHandler(name string, rec *CallRecorder) *RecordingScanHandler {
	return &RecordingScanHandler{name: name, rec: rec}
}

func (h *RecordingScanHandler) OnGAPScanResult(result *stack.ScanResult) {
	h.mu.Lock()
	h.results = append(h.results, *result)
	h.mu.Unlock()
	if h.rec != nil {
		h.rec.Note(h.name)
	}
}

func (h *RecordingScanHandler) Results() []stack.ScanResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]stack.ScanResult(nil), h.results...)
}

// GATTServerRecord is one GATT server delivery.
type GATTServerRecord struct {
	Event stack.GATTServerEvent
	If    stack.GATTIf
	Param stack.GATTServerParam
}

// RecordingGATTServerHandler records GATT server deliveries by value.
type RecordingGATTServerHandler struct {
	mu     sync.Mutex
	events []GATTServerRecord
}

func (h *RecordingGATTServerHandler) OnGATTServerEvent(event stack.GATTServerEvent, iface stack.GATTIf, param *stack.GATTServerParam) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, GATTServerRecord{Event: event, If: iface, Param: *param})
}

func (h *RecordingGATTServerHandler) Events() []GATTServerRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]GATTServerRecord(nil), h.events...)
}

// GATTClientRecord is one GATT client delivery.
type GATTClientRecord struct {
	Event stack.GATTClientEvent
	If    stack.GATTIf
	Param stack.GATTClientParam
}

// RecordingGATTClientHandler records GATT client deliveries by value.
type RecordingGATTClientHandler struct {
	mu     sync.Mutex
	events []GATTClientRecord
}

func (h *RecordingGATTClientHandler) OnGATTClientEvent(event stack.GATTClientEvent, iface stack.GATTIf, param *stack.GATTClientParam) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, GATTClientRecord{Event: event, If: iface, Param: *param})
}

func (h *RecordingGATTClientHandler) Events() []GATTClientRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]GATTClientRecord(nil), h.events...)
}

// RecordingStatusHandler counts before-disabled notifications.
type RecordingStatusHandler struct {
	name string
	rec  *CallRecorder

	mu    sync.Mutex
	count int
}

func NewRecordingStatusHandler(name string, rec *CallRecorder) *RecordingStatusHandler {
	return &RecordingStatusHandler{name: name, rec: rec}
}

func (h *RecordingStatusHandler) OnBLEBeforeDisabled() {
	h.mu.Lock()
	h.count++
	h.mu.Unlock()
	if h.rec != nil {
		h.rec.Note(h.name)
	}
}

func (h *RecordingStatusHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// CountingModule counts loop module ticks.
type CountingModule struct {
	mu    sync.Mutex
	ticks int
}

func (m *CountingModule) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
}

func (m *CountingModule) Ticks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks
}
