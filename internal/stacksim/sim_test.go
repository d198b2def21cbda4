package stacksim

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bleloop/bleloop/stack"
)

func newSim(t *testing.T, opts Options) *Sim {
	t.Helper()
	s, err := New(opts, nil)
	require.NoError(t, err)
	return s
}

// bringUp walks the sim through the full vendor bring-up order.
func bringUp(t *testing.T, s *Sim) {
	t.Helper()
	require.NoError(t, s.PreInitialize())
	require.NoError(t, s.InitController())
	require.NoError(t, s.EnableController())
	require.NoError(t, s.InitHost())
	require.NoError(t, s.EnableHost())
}

func TestLifecycleHappyPath(t *testing.T) {
	s := newSim(t, Options{Addr: "AA:BB:CC:DD:EE:FF"})

	require.Equal(t, stack.ControllerIdle, s.ControllerStatus())
	_, ok := s.Address()
	assert.False(t, ok, "address must be unavailable before enable")

	bringUp(t, s)
	require.Equal(t, stack.ControllerEnabled, s.ControllerStatus())

	addr, ok := s.Address()
	require.True(t, ok)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", addr.String())

	require.NoError(t, s.SetDeviceName("probe-DDEEFF"))
	require.NoError(t, s.SetSecurityIOCap(stack.IOCapKeyboardDisplay))
	assert.Equal(t, "probe-DDEEFF", s.DeviceName())
	assert.Equal(t, stack.IOCapKeyboardDisplay, s.IOCap())

	require.NoError(t, s.DisableHost())
	require.NoError(t, s.DeinitHost())
	require.NoError(t, s.DisableController())
	require.NoError(t, s.DeinitController())
	require.Equal(t, stack.ControllerIdle, s.ControllerStatus())

	_, ok = s.Address()
	assert.False(t, ok, "address must be unavailable after host down")

	c := s.Counters()
	assert.Equal(t, 1, c.InitCalls)
	assert.Equal(t, 1, c.EnableCalls)
	assert.Equal(t, 1, c.DisableCalls)
	assert.Equal(t, 1, c.DeinitCalls)
}

func TestLifecycleOrderEnforced(t *testing.T) {
	s := newSim(t, Options{})

	assert.Error(t, s.InitController(), "init before pre-initialize")
	require.NoError(t, s.PreInitialize())
	assert.Error(t, s.EnableController(), "enable from idle")
	assert.Error(t, s.InitHost(), "host init with controller down")
	require.NoError(t, s.InitController())
	assert.Error(t, s.InitController(), "double init")
	require.NoError(t, s.EnableController())
	assert.Error(t, s.DeinitController(), "deinit while enabled")
	assert.Error(t, s.EnableHost(), "host enable before host init")
}

func TestFailAt(t *testing.T) {
	s := newSim(t, Options{})
	boom := errors.New("no memory")
	s.FailAt(StepEnableHost, boom)

	require.NoError(t, s.PreInitialize())
	require.NoError(t, s.InitController())
	require.NoError(t, s.EnableController())
	require.NoError(t, s.InitHost())

	err := s.EnableHost()
	require.Error(t, err)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepEnableHost, stepErr.Step)
	assert.ErrorIs(t, err, boom)

	s.FailAt(StepEnableHost, nil)
	require.NoError(t, s.EnableHost())
}

func TestStatusDelay(t *testing.T) {
	s := newSim(t, Options{StatusDelay: 20 * time.Millisecond})
	require.NoError(t, s.PreInitialize())
	require.NoError(t, s.InitController())

	assert.Equal(t, stack.ControllerIdle, s.ControllerStatus(), "transition must not land synchronously")
	require.Eventually(t, func() bool {
		return s.ControllerStatus() == stack.ControllerInited
	}, time.Second, time.Millisecond)
}

func TestEmitWithoutCallbackIsLost(t *testing.T) {
	s := newSim(t, Options{})
	bringUp(t, s)

	ok := s.EmitCompletion(stack.GAPScanStartComplete, stack.StatusSuccess)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), s.Counters().Lost)
	assert.Equal(t, uint64(0), s.Counters().Emitted)
}

func TestEmitDeliversCopiedPayload(t *testing.T) {
	s := newSim(t, Options{})
	bringUp(t, s)

	var got []stack.ScanResult
	err := s.RegisterGAPCallback(func(event stack.GAPEvent, param *stack.GAPParam) {
		if event == stack.GAPScanResult {
			got = append(got, param.ScanResult)
		}
	})
	require.NoError(t, err)

	res := stack.ScanResult{
		Addr: stack.MustParseAddr("11:22:33:44:55:66"),
		RSSI: -63,
	}
	res.AdvDataLen = uint8(copy(res.AdvData[:], []byte{2, stack.ADTypeFlags, 0x06}))
	require.True(t, s.EmitScanResult(&res))

	require.Len(t, got, 1)
	assert.Equal(t, res.Addr, got[0].Addr)
	assert.Equal(t, int8(-63), got[0].RSSI)
	assert.Equal(t, []byte{2, stack.ADTypeFlags, 0x06}, got[0].Payload())
	assert.Equal(t, uint64(1), s.Counters().Emitted)
}

func TestEmitCompletionRejectsNonCompletionEvent(t *testing.T) {
	s := newSim(t, Options{})
	bringUp(t, s)
	require.NoError(t, s.RegisterGAPCallback(func(stack.GAPEvent, *stack.GAPParam) {}))

	assert.False(t, s.EmitCompletion(stack.GAPScanResult, stack.StatusSuccess))
}

func TestRegisterAppAssignsInterfacesInOrder(t *testing.T) {
	s := newSim(t, Options{})
	bringUp(t, s)

	type reg struct {
		iface stack.GATTIf
		appID uint16
	}
	var regs []reg
	err := s.RegisterGATTServerCallback(func(event stack.GATTServerEvent, iface stack.GATTIf, param *stack.GATTServerParam) {
		if event == stack.GATTSRegister {
			regs = append(regs, reg{iface: iface, appID: param.Register.AppID})
		}
	})
	require.NoError(t, err)

	if1, ok := s.RegisterApp(7)
	require.True(t, ok)
	if2, ok := s.RegisterApp(9)
	require.True(t, ok)
	assert.Equal(t, stack.GATTIf(1), if1)
	assert.Equal(t, stack.GATTIf(2), if2)

	require.Equal(t, []reg{{1, 7}, {2, 9}}, regs)
	assert.Equal(t, []App{{AppID: 7, If: 1}, {AppID: 9, If: 2}}, s.Apps())
}

func TestConnectTracksPeers(t *testing.T) {
	s := newSim(t, Options{})
	bringUp(t, s)

	var events []stack.GATTServerEvent
	err := s.RegisterGATTServerCallback(func(event stack.GATTServerEvent, _ stack.GATTIf, _ *stack.GATTServerParam) {
		events = append(events, event)
	})
	require.NoError(t, err)

	peer := stack.MustParseAddr("66:55:44:33:22:11")
	require.True(t, s.Connect(1, 3, peer))
	assert.Equal(t, 1, s.PeerCount())

	got, ok := s.Peer(peer)
	require.True(t, ok)
	assert.Equal(t, stack.ConnID(3), got.ConnID)
	assert.Equal(t, peer, got.Addr)
	assert.False(t, got.ConnectedAt.IsZero())

	require.True(t, s.Disconnect(1, 3, peer, 0x13))
	assert.Equal(t, 0, s.PeerCount())
	_, ok = s.Peer(peer)
	assert.False(t, ok)

	assert.Equal(t, []stack.GATTServerEvent{stack.GATTSConnect, stack.GATTSDisconnect}, events)
}

func TestDeinitHostDropsRegistrations(t *testing.T) {
	s := newSim(t, Options{})
	bringUp(t, s)

	require.NoError(t, s.RegisterGAPCallback(func(stack.GAPEvent, *stack.GAPParam) {}))
	s.RegisterApp(1)
	s.Connect(1, 1, stack.MustParseAddr("01:02:03:04:05:06"))

	require.NoError(t, s.DisableHost())
	require.NoError(t, s.DeinitHost())

	assert.Empty(t, s.Apps())
	assert.Equal(t, 0, s.PeerCount())
	assert.False(t, s.EmitCompletion(stack.GAPScanStartComplete, stack.StatusSuccess))
}

func TestSetAdvDataAcknowledges(t *testing.T) {
	s := newSim(t, Options{})
	bringUp(t, s)

	var acks []stack.Status
	err := s.RegisterGAPCallback(func(event stack.GAPEvent, param *stack.GAPParam) {
		if event == stack.GAPAdvDataSetComplete {
			acks = append(acks, param.AdvComplete.Status)
		}
	})
	require.NoError(t, err)

	payload := []byte{2, stack.ADTypeFlags, 0x06}
	require.True(t, s.SetAdvData(payload))
	assert.Equal(t, payload, s.AdvData())
	require.Equal(t, []stack.Status{stack.StatusSuccess}, acks)
}

func TestAdvertiserRotatesPayloads(t *testing.T) {
	s := newSim(t, Options{})
	bringUp(t, s)
	require.NoError(t, s.RegisterGAPCallback(func(stack.GAPEvent, *stack.GAPParam) {}))

	p0 := []byte{0x01}
	p1 := []byte{0x02}
	adv := NewAdvertiser(s, 0, [][]byte{p0, p1}, nil)

	adv.Tick()
	assert.Equal(t, p0, s.AdvData())
	adv.Tick()
	assert.Equal(t, p1, s.AdvData())
	adv.Tick()
	assert.Equal(t, p0, s.AdvData())
	assert.Equal(t, 3, adv.Rotations())
}

func TestAdvertiserHonorsInterval(t *testing.T) {
	s := newSim(t, Options{})
	bringUp(t, s)
	require.NoError(t, s.RegisterGAPCallback(func(stack.GAPEvent, *stack.GAPParam) {}))

	adv := NewAdvertiser(s, time.Hour, [][]byte{{0x01}, {0x02}}, nil)
	adv.Tick()
	adv.Tick()
	adv.Tick()
	assert.Equal(t, 1, adv.Rotations(), "interval must gate rotation")
}

func TestAdvertiserNoPayloads(t *testing.T) {
	s := newSim(t, Options{})
	adv := NewAdvertiser(s, 0, nil, nil)
	adv.Tick()
	assert.Equal(t, 0, adv.Rotations())
}
