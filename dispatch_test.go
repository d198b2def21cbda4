package bleloop_test

import (
	"context"
	"errors"
	"testing"
	"time"

	suitelib "github.com/stretchr/testify/suite"

	"github.com/bleloop/bleloop"
	"github.com/bleloop/bleloop/internal/stacksim"
	"github.com/bleloop/bleloop/internal/testutils"
	"github.com/bleloop/bleloop/stack"
)

type DispatchSuite struct {
	testutils.SimSuite
}

func TestDispatchSuite(t *testing.T) {
	suitelib.Run(t, new(DispatchSuite))
}

func (s *DispatchSuite) newController(cfg bleloop.Config) *bleloop.Controller {
	c, err := bleloop.New(s.Sim, cfg, s.Logger)
	s.Require().NoError(err)
	s.Require().NoError(c.Setup())
	return c
}

func (s *DispatchSuite) activate(c *bleloop.Controller) {
	c.Enable()
	c.Tick()
	s.Require().True(c.IsActive())
}

func scanResult(addr string, rssi int8) *stack.ScanResult {
	res := &stack.ScanResult{
		SearchEvent: stack.SearchInquiryResult,
		Addr:        stack.MustParseAddr(addr),
		RSSI:        rssi,
	}
	res.AdvDataLen = uint8(copy(res.AdvData[:], []byte{2, stack.ADTypeFlags, 0x06}))
	return res
}

func (s *DispatchSuite) TestScanResultsFanOutInRegistrationOrder() {
	rec := &testutils.CallRecorder{}
	scanA := testutils.NewRecordingScanHandler("scanA", rec)
	scanB := testutils.NewRecordingScanHandler("scanB", rec)
	gap := testutils.NewRecordingGAPHandler("gap", rec)

	c := s.newController(bleloop.Config{})
	c.RegisterGAPScanHandler(scanA)
	c.RegisterGAPScanHandler(scanB)
	c.RegisterGAPHandler(gap)
	s.activate(c)

	res := scanResult("AA:BB:CC:DD:EE:FF", -61)
	s.Require().True(s.Sim.EmitScanResult(res))
	s.Empty(scanA.Results(), "delivery waits for the tick")

	c.Tick()

	s.Require().Len(scanA.Results(), 1)
	s.Require().Len(scanB.Results(), 1)
	s.Equal(res.Addr, scanA.Results()[0].Addr)
	s.Equal(int8(-61), scanB.Results()[0].RSSI)
	s.Empty(gap.Events(), "scan results must not reach grouped handlers")
	s.Equal([]string{"scanA", "scanB"}, rec.Calls())
}

func (s *DispatchSuite) TestGroupedEventsCarryStatus() {
	rec := &testutils.CallRecorder{}
	gapA := testutils.NewRecordingGAPHandler("gapA", rec)
	gapB := testutils.NewRecordingGAPHandler("gapB", rec)
	scan := testutils.NewRecordingScanHandler("scan", rec)

	c := s.newController(bleloop.Config{})
	c.RegisterGAPHandler(gapA)
	c.RegisterGAPHandler(gapB)
	c.RegisterGAPScanHandler(scan)
	s.activate(c)

	s.Sim.EmitCompletion(stack.GAPScanStartComplete, stack.StatusSuccess)
	s.Sim.EmitCompletion(stack.GAPAdvStartComplete, stack.StatusFail)
	s.Sim.EmitRSSI(stack.MustParseAddr("11:22:33:44:55:66"), -42, stack.StatusSuccess)
	s.Sim.EmitCompletion(stack.GAPAuthComplete, stack.StatusBusy)
	c.Tick()

	want := []testutils.GAPRecord{
		{Event: stack.GAPScanStartComplete, Status: stack.StatusSuccess},
		{Event: stack.GAPAdvStartComplete, Status: stack.StatusFail},
		{Event: stack.GAPReadRSSIComplete, Status: stack.StatusSuccess},
		{Event: stack.GAPAuthComplete, Status: stack.StatusBusy},
	}
	s.Equal(want, gapA.Events())
	s.Equal(want, gapB.Events(), "every grouped handler sees every event")
	s.Empty(scan.Results())

	s.Equal([]string{
		"gapA", "gapB",
		"gapA", "gapB",
		"gapA", "gapB",
		"gapA", "gapB",
	}, rec.Calls(), "registration order holds per event")
}

func (s *DispatchSuite) TestGATTFanOut() {
	gatts := &testutils.RecordingGATTServerHandler{}
	gattc := &testutils.RecordingGATTClientHandler{}

	c := s.newController(bleloop.Config{})
	c.RegisterGATTServerHandler(gatts)
	c.RegisterGATTClientHandler(gattc)
	s.activate(c)

	peer := stack.MustParseAddr("66:55:44:33:22:11")
	s.Require().True(s.Sim.Connect(2, 7, peer))

	var wp stack.GATTServerParam
	wp.Write = stack.GATTSWriteParam{ConnID: 7, Addr: peer, Handle: 0x2A, NeedRsp: true}
	wp.Write.Value.Set([]byte("hello"))
	s.Require().True(s.Sim.EmitGATTServer(stack.GATTSWrite, 2, &wp))

	var np stack.GATTClientParam
	np.Notify = stack.GATTCNotifyParam{ConnID: 7, Addr: peer, Handle: 0x2B, IsNotify: true}
	np.Notify.Value.Set([]byte("ping"))
	s.Require().True(s.Sim.EmitGATTClient(stack.GATTCNotify, 3, &np))

	c.Tick()

	events := gatts.Events()
	s.Require().Len(events, 2)
	s.Equal(stack.GATTSConnect, events[0].Event)
	s.Equal(stack.GATTIf(2), events[0].If)
	s.Equal(stack.ConnID(7), events[0].Param.Connect.ConnID)
	s.Equal(stack.GATTSWrite, events[1].Event)
	s.Equal([]byte("hello"), events[1].Param.Write.Value.Bytes())
	s.True(events[1].Param.Write.NeedRsp)

	cEvents := gattc.Events()
	s.Require().Len(cEvents, 1)
	s.Equal(stack.GATTCNotify, cEvents[0].Event)
	s.Equal(stack.GATTIf(3), cEvents[0].If)
	s.Equal([]byte("ping"), cEvents[0].Param.Notify.Value.Bytes())
}

func (s *DispatchSuite) TestDroppedEventsWarnedOnce() {
	gap := testutils.NewRecordingGAPHandler("gap", nil)

	c := s.newController(bleloop.Config{PoolCapacity: 4})
	c.RegisterGAPHandler(gap)
	s.activate(c)

	for i := 0; i < 5; i++ {
		s.Sim.EmitCompletion(stack.GAPScanStartComplete, stack.StatusSuccess)
	}
	c.Tick()

	s.Len(gap.Events(), 4, "pool of four admits four events")
	s.Equal(uint64(1), c.DroppedEvents())
	s.Equal(1, s.Helper.CountMessagesContaining("Dropped 1 BLE events due to buffer overflow"))

	// Records are recycled and the counter was reset.
	for i := 0; i < 4; i++ {
		s.Sim.EmitCompletion(stack.GAPAdvStopComplete, stack.StatusSuccess)
	}
	c.Tick()

	s.Len(gap.Events(), 8)
	s.Equal(uint64(1), c.DroppedEvents(), "total drops stay at one")
	s.Equal(1, s.Helper.CountMessagesContaining("Dropped"), "no second warning without new drops")
}

func (s *DispatchSuite) TestUnknownGAPEventIsWarnedAndDropped() {
	gap := testutils.NewRecordingGAPHandler("gap", nil)

	c := s.newController(bleloop.Config{})
	c.RegisterGAPHandler(gap)
	s.activate(c)

	var p stack.GAPParam
	s.Require().True(s.Sim.EmitGAP(stack.GAPEvent(99), &p))
	c.Tick()

	s.Empty(gap.Events())
	s.Equal(1, s.Helper.CountMessagesContaining("Unhandled GAP event"))
}

func (s *DispatchSuite) TestLoopModulesRunOncePerActiveTick() {
	mod := &testutils.CountingModule{}

	c := s.newController(bleloop.Config{})
	c.RegisterGAPHandler(testutils.NewRecordingGAPHandler("gap", nil))
	c.RegisterLoopModule(mod)
	s.activate(c)

	s.Zero(mod.Ticks(), "the bring-up tick must not run modules")
	c.Tick()
	c.Tick()
	s.Equal(2, mod.Ticks())

	c.Disable()
	c.Tick()
	c.Tick()
	s.Equal(2, mod.Ticks(), "modules stop with the stack")
}

func (s *DispatchSuite) TestDisableDiscardsPendingEvents() {
	gap := testutils.NewRecordingGAPHandler("gap", nil)

	c := s.newController(bleloop.Config{})
	c.RegisterGAPHandler(gap)
	s.activate(c)

	s.Sim.EmitCompletion(stack.GAPScanStartComplete, stack.StatusSuccess)
	s.Sim.EmitCompletion(stack.GAPScanStopComplete, stack.StatusSuccess)
	c.Disable()
	c.Tick()
	s.Empty(gap.Events(), "disable tick must not dispatch")

	s.activate(c)
	c.Tick()
	s.Empty(gap.Events(), "stale events must not replay after re-enable")

	// The records went back to the pool: a full pool's worth fits again.
	for i := 0; i < bleloop.DefaultPoolCapacity; i++ {
		s.Sim.EmitCompletion(stack.GAPScanStartComplete, stack.StatusSuccess)
	}
	c.Tick()
	s.Len(gap.Events(), bleloop.DefaultPoolCapacity)
	s.Zero(s.Helper.CountMessagesContaining("Dropped"))
}

func (s *DispatchSuite) TestTraceSnapshot() {
	gatts := &testutils.RecordingGATTServerHandler{}
	gap := testutils.NewRecordingGAPHandler("gap", nil)

	c := s.newController(bleloop.Config{TraceCapacity: 16})
	c.RegisterGAPHandler(gap)
	c.RegisterGAPScanHandler(testutils.NewRecordingScanHandler("scan", nil))
	c.RegisterGATTServerHandler(gatts)
	s.activate(c)

	s.Sim.EmitScanResult(scanResult("AA:BB:CC:DD:EE:FF", -61))
	s.Sim.EmitCompletion(stack.GAPScanStartComplete, stack.StatusSuccess)
	s.Sim.Connect(2, 7, stack.MustParseAddr("66:55:44:33:22:11"))
	c.Tick()

	trace := c.TraceSnapshot()
	s.Require().Len(trace, 3)
	for _, entry := range trace {
		s.Positive(entry.TsUs)
	}

	ja := testutils.NewJSONAsserter(s.T()).WithOptions(testutils.WithIgnoredFields("ts_us"))
	ja.AssertValue(trace, `[
		{"kind": "gap",   "event": 0, "if": 0},
		{"kind": "gap",   "event": 2, "if": 0},
		{"kind": "gatts", "event": 5, "if": 2}
	]`)

	s.Nil(c.TraceSnapshot(), "snapshot drains the ring")
}

func (s *DispatchSuite) TestTraceDisabledByDefault() {
	c := s.newController(bleloop.Config{})
	c.RegisterGAPHandler(testutils.NewRecordingGAPHandler("gap", nil))
	s.activate(c)

	s.Sim.EmitCompletion(stack.GAPScanStartComplete, stack.StatusSuccess)
	c.Tick()
	s.Nil(c.TraceSnapshot())
}

func (s *DispatchSuite) TestRunDispatchesUntilCanceled() {
	gap := testutils.NewRecordingGAPHandler("gap", nil)

	c := s.newController(bleloop.Config{})
	c.RegisterGAPHandler(gap)
	c.Enable()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, 5*time.Millisecond) }()

	s.Require().Eventually(c.IsActive, time.Second, time.Millisecond)

	s.Sim.EmitCompletion(stack.GAPScanStartComplete, stack.StatusSuccess)
	s.Require().Eventually(func() bool {
		return len(gap.Events()) == 1
	}, time.Second, time.Millisecond, "wake signal must cut dispatch latency")

	cancel()
	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		s.Fail("Run did not return after cancel")
	}
}

func (s *DispatchSuite) TestRunReturnsLifecycleFailure() {
	s.Sim.FailAt(stacksim.StepInitHost, errors.New("wedged"))

	c := s.newController(bleloop.Config{})
	c.Enable()

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), time.Millisecond) }()

	select {
	case err := <-done:
		var lerr *bleloop.LifecycleError
		s.Require().ErrorAs(err, &lerr)
		s.Equal("host init", lerr.Step)
	case <-time.After(time.Second):
		s.Fail("Run did not return after lifecycle failure")
	}
}
