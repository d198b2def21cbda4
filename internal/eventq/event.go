// Package eventq implements the fixed-capacity primitives of the BLE event
// pipeline: a tagged event record, a preallocated record pool, and a
// single-producer/single-consumer queue with a dropped-event counter.
//
// The producer side (stack callback goroutine) allocates a record, copies
// the vendor payload into it and pushes it; the consumer side (dispatch
// loop) pops, fans out and releases. Nothing in this package blocks and
// nothing allocates after construction.
package eventq

import (
	"time"

	"github.com/bleloop/bleloop/stack"
)

// Kind selects which payload group of an Event is meaningful.
type Kind uint8

const (
	KindNone Kind = iota
	KindGAP
	KindGATTServer
	KindGATTClient
)

// String returns a short label for logging and traces.
func (k Kind) String() string {
	switch k {
	case KindGAP:
		return "gap"
	case KindGATTServer:
		return "gatts"
	case KindGATTClient:
		return "gattc"
	default:
		return "none"
	}
}

// GAPData is the GAP half of an event record.
type GAPData struct {
	Event stack.GAPEvent
	Param stack.GAPParam
}

// GATTServerData is the GATT server half of an event record.
type GATTServerData struct {
	Event stack.GATTServerEvent
	If    stack.GATTIf
	Param stack.GATTServerParam
}

// GATTClientData is the GATT client half of an event record.
type GATTClientData struct {
	Event stack.GATTClientEvent
	If    stack.GATTIf
	Param stack.GATTClientParam
}

// Event is one captured stack callback. Exactly one payload group is
// meaningful, selected by Kind.
//
// IMPORTANT: Events are pooled and reused. An Event pointer is only valid
// between Pool.Get and Pool.Put; handlers that need payload bytes beyond
// the dispatch callback must copy them immediately.
type Event struct {
	// TsUs is the capture timestamp in microseconds.
	TsUs int64
	Kind Kind

	GAP        GAPData
	GATTServer GATTServerData
	GATTClient GATTClientData
}

// LoadGAP overwrites the whole record with a GAP event. The previous
// contents never survive, whatever kind they were.
func (e *Event) LoadGAP(event stack.GAPEvent, param *stack.GAPParam) {
	fresh := Event{TsUs: time.Now().UnixMicro(), Kind: KindGAP}
	fresh.GAP.Event = event
	if param != nil {
		fresh.GAP.Param = *param
	}
	*e = fresh
}

// LoadGATTServer overwrites the whole record with a GATT server event.
func (e *Event) LoadGATTServer(event stack.GATTServerEvent, iface stack.GATTIf, param *stack.GATTServerParam) {
	fresh := Event{TsUs: time.Now().UnixMicro(), Kind: KindGATTServer}
	fresh.GATTServer.Event = event
	fresh.GATTServer.If = iface
	if param != nil {
		fresh.GATTServer.Param = *param
	}
	*e = fresh
}

// LoadGATTClient overwrites the whole record with a GATT client event.
func (e *Event) LoadGATTClient(event stack.GATTClientEvent, iface stack.GATTIf, param *stack.GATTClientParam) {
	fresh := Event{TsUs: time.Now().UnixMicro(), Kind: KindGATTClient}
	fresh.GATTClient.Event = event
	fresh.GATTClient.If = iface
	if param != nil {
		fresh.GATTClient.Param = *param
	}
	*e = fresh
}
