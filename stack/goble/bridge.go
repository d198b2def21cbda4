// Package goble bridges a go-ble device scan into the pipeline's GAP
// event stream, so real radio advertisements flow through the same
// queue and dispatch path the simulator feeds. It is a pure adapter:
// no lifecycle or dispatch semantics live here.
package goble

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/bleloop/bleloop/stack"
)

// Scanner is the slice of ble.Device the bridge drives. ble.Device
// satisfies it.
type Scanner interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
}

// ScanBridge converts go-ble advertisements into GAPScanResult
// deliveries on a stack.GAPCallback, closing each scan with a
// GAPScanStopComplete.
type ScanBridge struct {
	dev Scanner
	log *logrus.Entry

	// deliverMu serializes callback invocations so the device's
	// delivery goroutine and the completion emitted by Scan keep the
	// pipeline's single-producer discipline.
	deliverMu sync.Mutex
}

// NewScanBridge builds a bridge over dev. A nil logger falls back to
// the process-wide standard logger.
func NewScanBridge(dev Scanner, logger *logrus.Logger) *ScanBridge {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ScanBridge{
		dev: dev,
		log: logger.WithField("module", "goble"),
	}
}

// Scan runs one scan until ctx ends, delivering every advertisement to
// cb as a GAPScanResult and closing the stream with a scan-stop
// completion. Advertisements arrive on the device's delivery
// goroutine; the completion is delivered on the calling goroutine
// after the device stops. A canceled or expired context is a normal
// end of scan, not an error.
func (b *ScanBridge) Scan(ctx context.Context, allowDup bool, cb stack.GAPCallback) error {
	var seen atomic.Uint64

	err := b.dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		var p stack.GAPParam
		p.ScanResult = b.convert(adv)
		seen.Add(1)
		b.deliver(cb, stack.GAPScanResult, &p)
	})

	status := stack.StatusSuccess
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		status = stack.StatusFail
	} else {
		err = nil
	}

	var p stack.GAPParam
	p.ScanComplete = stack.ScanComplete{Status: status}
	b.deliver(cb, stack.GAPScanStopComplete, &p)

	b.log.WithFields(logrus.Fields{
		"results": seen.Load(),
		"status":  status.String(),
	}).Debug("Scan finished")
	return err
}

func (b *ScanBridge) deliver(cb stack.GAPCallback, event stack.GAPEvent, p *stack.GAPParam) {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()
	cb(event, p)
}

// convert rebuilds a fixed-size scan result from a decoded go-ble
// advertisement. Only the fields the pipeline consumes are carried
// over: address, RSSI and the complete local name.
func (b *ScanBridge) convert(adv ble.Advertisement) stack.ScanResult {
	res := stack.ScanResult{
		SearchEvent: stack.SearchInquiryResult,
		AddrType:    stack.AddrTypePublic,
		RSSI:        clampRSSI(adv.RSSI()),
	}

	raw := adv.Addr().String()
	if addr, err := stack.ParseAddr(raw); err == nil {
		res.Addr = addr
	} else {
		// macOS reports peripheral UUIDs instead of hardware addresses;
		// keep the result with a zero address rather than dropping it.
		b.log.WithField("addr", raw).Trace("Unparseable advertiser address")
	}

	res.AdvDataLen = uint8(copy(res.AdvData[:], encodeADPayload(adv.LocalName())))
	return res
}

// encodeADPayload rebuilds the raw records the pipeline parses: a
// flags record plus, when the advertiser named itself, a complete
// local name record clamped to the 31-byte advertising PDU.
func encodeADPayload(name string) []byte {
	payload := []byte{2, stack.ADTypeFlags, 0x06}
	if name == "" {
		return payload
	}
	if len(name) > 29 {
		name = name[:29]
	}
	payload = append(payload, byte(1+len(name)), stack.ADTypeCompleteLocalName)
	return append(payload, name...)
}

func clampRSSI(v int) int8 {
	switch {
	case v < -128:
		return -128
	case v > 127:
		return 127
	}
	return int8(v)
}
