// Package stacksim simulates the vendor Bluetooth stack in process so
// tests, scenario playback and the demo binary can drive the same
// lifecycle, callback and event paths they would against hardware.
//
// Only the controller status transitions the lifecycle poller spin-waits
// on (init, disable) can be delayed; every other operation completes
// before returning, matching the hardware contract the lifecycle
// sequencer relies on.
package stacksim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/bleloop/bleloop/stack"
)

// Step names a vendor operation for fault injection.
type Step string

const (
	StepPreInitialize      Step = "pre_initialize"
	StepInitController     Step = "init_controller"
	StepEnableController   Step = "enable_controller"
	StepDisableController  Step = "disable_controller"
	StepDeinitController   Step = "deinit_controller"
	StepReleaseClassicMem  Step = "release_classic_memory"
	StepInitHost           Step = "init_host"
	StepEnableHost         Step = "enable_host"
	StepDisableHost        Step = "disable_host"
	StepDeinitHost         Step = "deinit_host"
	StepRegisterGAP        Step = "register_gap_callback"
	StepRegisterGATTServer Step = "register_gatts_callback"
	StepRegisterGATTClient Step = "register_gattc_callback"
	StepSetDeviceName      Step = "set_device_name"
	StepSetSecurityIOCap   Step = "set_security_io_cap"
)

// StepError is returned by an operation armed with FailAt.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("simulated %s failure: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Peer is one simulated connection in the peer table.
type Peer struct {
	ConnID      stack.ConnID
	Addr        stack.BDAddr
	ConnectedAt time.Time
}

// App is one registered GATT application.
type App struct {
	AppID uint16
	If    stack.GATTIf
}

// Options configure a Sim.
type Options struct {
	// Addr is the simulated controller hardware address.
	Addr string `default:"02:00:00:AA:BB:CC"`

	// StatusDelay postpones the controller status transitions the
	// lifecycle poller waits on. Zero applies them before the call
	// returns; a value beyond the poller's timeout simulates a stuck
	// controller.
	StatusDelay time.Duration
}

// DefaultOptions returns the options a zero value resolves to.
func DefaultOptions() Options {
	var o Options
	defaults.SetDefaults(&o)
	return o
}

// Counters exposes sim-side call and delivery counts for tests.
type Counters struct {
	InitCalls    int
	EnableCalls  int
	DisableCalls int
	DeinitCalls  int

	// Emitted counts events delivered to a registered callback, Lost
	// counts emits that found no callback or a downed host.
	Emitted uint64
	Lost    uint64
}

// Sim implements stack.Stack. Lifecycle methods are called from the
// dispatch goroutine. The Emit and Connect helpers run callbacks on the
// caller's goroutine; deliveries are serialized by an internal mutex,
// which models the vendor's single callback task and preserves the
// pipeline's single-producer discipline whatever goroutine emits.
type Sim struct {
	logger *logrus.Logger
	addr   stack.BDAddr
	delay  time.Duration

	// emitMu serializes callback invocations.
	emitMu sync.Mutex

	mu         sync.Mutex
	preInited  bool
	status     stack.ControllerStatus
	hostInited bool
	hostUp     bool
	deviceName string
	ioCap      stack.IOCapability
	advData    []byte
	failures   map[Step]error
	counters   Counters
	nextIf     stack.GATTIf

	gapCb   stack.GAPCallback
	gattsCb stack.GATTServerCallback
	gattcCb stack.GATTClientCallback

	apps  *orderedmap.OrderedMap[uint16, App]
	peers *hashmap.Map[uint64, Peer]
}

// New builds a simulator. A nil logger falls back to the process-wide
// standard logger.
func New(opts Options, logger *logrus.Logger) (*Sim, error) {
	defaults.SetDefaults(&opts)
	addr, err := stack.ParseAddr(opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("stacksim: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sim{
		logger:   logger,
		addr:     addr,
		delay:    opts.StatusDelay,
		status:   stack.ControllerIdle,
		failures: make(map[Step]error),
		nextIf:   1,
		apps:     orderedmap.New[uint16, App](),
		peers:    hashmap.New[uint64, Peer](),
	}, nil
}

// FailAt arms step to fail with err on every call until cleared with a
// nil err.
func (s *Sim) FailAt(step Step, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, step)
		return
	}
	s.failures[step] = err
}

// failure is called with mu held.
func (s *Sim) failure(step Step) error {
	if err := s.failures[step]; err != nil {
		return &StepError{Step: step, Err: err}
	}
	return nil
}

// transition is called with mu held. Delayed transitions land on a timer
// goroutine; immediate ones land before the lifecycle call returns.
func (s *Sim) transition(to stack.ControllerStatus) {
	if s.delay <= 0 {
		s.status = to
		return
	}
	time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		s.status = to
		s.mu.Unlock()
	})
}

func (s *Sim) PreInitialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(StepPreInitialize); err != nil {
		return err
	}
	s.preInited = true
	return nil
}

func (s *Sim) ControllerStatus() stack.ControllerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Sim) InitController() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(StepInitController); err != nil {
		return err
	}
	if !s.preInited {
		return errors.New("stacksim: controller init before pre-initialize")
	}
	if s.status != stack.ControllerIdle {
		return fmt.Errorf("stacksim: controller init in status %s", s.status)
	}
	s.counters.InitCalls++
	s.transition(stack.ControllerInited)
	return nil
}

func (s *Sim) EnableController() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(StepEnableController); err != nil {
		return err
	}
	if s.status != stack.ControllerInited {
		return fmt.Errorf("stacksim: controller enable in status %s", s.status)
	}
	s.counters.EnableCalls++
	s.status = stack.ControllerEnabled
	return nil
}

func (s *Sim) DisableController() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(StepDisableController); err != nil {
		return err
	}
	if s.status != stack.ControllerEnabled {
		return fmt.Errorf("stacksim: controller disable in status %s", s.status)
	}
	s.counters.DisableCalls++
	s.transition(stack.ControllerInited)
	return nil
}

func (s *Sim) DeinitController() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(StepDeinitController); err != nil {
		return err
	}
	if s.status != stack.ControllerInited {
		return fmt.Errorf("stacksim: controller deinit in status %s", s.status)
	}
	s.counters.DeinitCalls++
	s.status = stack.ControllerIdle
	return nil
}

func (s *Sim) ReleaseClassicMemory() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure(StepReleaseClassicMem)
}

func (s *Sim) InitHost() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(StepInitHost); err != nil {
		return err
	}
	if s.status != stack.ControllerEnabled {
		return fmt.Errorf("stacksim: host init with controller in status %s", s.status)
	}
	s.hostInited = true
	return nil
}

func (s *Sim) EnableHost() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(StepEnableHost); err != nil {
		return err
	}
	if !s.hostInited {
		return errors.New("stacksim: host enable before host init")
	}
	s.hostUp = true
	return nil
}

func (s *Sim) DisableHost() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(StepDisableHost); err != nil {
		return err
	}
	s.hostUp = false
	return nil
}

// DeinitHost drops callback registrations, connections and application
// registrations with the host, the way a real host deinit would.
func (s *Sim) DeinitHost() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(StepDeinitHost); err != nil {
		return err
	}
	s.hostInited = false
	s.gapCb = nil
	s.gattsCb = nil
	s.gattcCb = nil
	s.apps = orderedmap.New[uint16, App]()
	s.peers.Range(func(key uint64, _ Peer) bool {
		s.peers.Del(key)
		return true
	})
	return nil
}

func (s *Sim) RegisterGAPCallback(cb stack.GAPCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(StepRegisterGAP); err != nil {
		return err
	}
	if !s.hostUp {
		return errors.New("stacksim: gap callback registration with host down")
	}
	s.gapCb = cb
	return nil
}

func (s *Sim) RegisterGATTServerCallback(cb stack.GATTServerCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(StepRegisterGATTServer); err != nil {
		return err
	}
	if !s.hostUp {
		return errors.New("stacksim: gatts callback registration with host down")
	}
	s.gattsCb = cb
	return nil
}

func (s *Sim) RegisterGATTClientCallback(cb stack.GATTClientCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(StepRegisterGATTClient); err != nil {
		return err
	}
	if !s.hostUp {
		return errors.New("stacksim: gattc callback registration with host down")
	}
	s.gattcCb = cb
	return nil
}

func (s *Sim) SetDeviceName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(StepSetDeviceName); err != nil {
		return err
	}
	if !s.hostUp {
		return errors.New("stacksim: device name with host down")
	}
	s.deviceName = name
	return nil
}

func (s *Sim) SetSecurityIOCap(ioCap stack.IOCapability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(StepSetSecurityIOCap); err != nil {
		return err
	}
	if !s.hostUp {
		return errors.New("stacksim: io capability with host down")
	}
	s.ioCap = ioCap
	return nil
}

func (s *Sim) Address() (stack.BDAddr, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr, s.hostUp
}

// DeviceName returns the name last assigned by SetDeviceName.
func (s *Sim) DeviceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceName
}

// IOCap returns the capability last assigned by SetSecurityIOCap.
func (s *Sim) IOCap() stack.IOCapability {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ioCap
}

// Counters returns a snapshot of the call and delivery counts.
func (s *Sim) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// EmitGAP delivers a GAP event through the registered callback. Returns
// false when the host is down or no callback is registered; the emit is
// then counted as lost.
func (s *Sim) EmitGAP(event stack.GAPEvent, param *stack.GAPParam) bool {
	s.mu.Lock()
	cb := s.gapCb
	if cb == nil || !s.hostUp {
		s.counters.Lost++
		s.mu.Unlock()
		return false
	}
	s.counters.Emitted++
	s.mu.Unlock()

	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	cb(event, param)
	return true
}

// EmitGATTServer delivers a GATT server event. Same contract as EmitGAP.
func (s *Sim) EmitGATTServer(event stack.GATTServerEvent, iface stack.GATTIf, param *stack.GATTServerParam) bool {
	s.mu.Lock()
	cb := s.gattsCb
	if cb == nil || !s.hostUp {
		s.counters.Lost++
		s.mu.Unlock()
		return false
	}
	s.counters.Emitted++
	s.mu.Unlock()

	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	cb(event, iface, param)
	return true
}

// EmitGATTClient delivers a GATT client event. Same contract as EmitGAP.
func (s *Sim) EmitGATTClient(event stack.GATTClientEvent, iface stack.GATTIf, param *stack.GATTClientParam) bool {
	s.mu.Lock()
	cb := s.gattcCb
	if cb == nil || !s.hostUp {
		s.counters.Lost++
		s.mu.Unlock()
		return false
	}
	s.counters.Emitted++
	s.mu.Unlock()

	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	cb(event, iface, param)
	return true
}

// EmitScanResult delivers one advertisement report.
func (s *Sim) EmitScanResult(res *stack.ScanResult) bool {
	var p stack.GAPParam
	p.ScanResult = *res
	return s.EmitGAP(stack.GAPScanResult, &p)
}

// EmitCompletion delivers a status-only completion for any grouped GAP
// event. Returns false for events outside the grouped families.
func (s *Sim) EmitCompletion(event stack.GAPEvent, status stack.Status) bool {
	var p stack.GAPParam
	switch event {
	case stack.GAPScanParamSetComplete, stack.GAPScanStartComplete, stack.GAPScanStopComplete:
		p.ScanComplete = stack.ScanComplete{Status: status}
	case stack.GAPAdvDataSetComplete, stack.GAPScanRspDataSetComplete,
		stack.GAPAdvStartComplete, stack.GAPAdvStopComplete:
		p.AdvComplete = stack.AdvComplete{Status: status}
	case stack.GAPReadRSSIComplete:
		p.RSSIComplete = stack.RSSIComplete{Status: status}
	case stack.GAPAuthComplete, stack.GAPSecurityRequest:
		p.Security = stack.Security{Status: status}
	default:
		return false
	}
	return s.EmitGAP(event, &p)
}

// EmitRSSI delivers a read-RSSI completion for addr.
func (s *Sim) EmitRSSI(addr stack.BDAddr, rssi int8, status stack.Status) bool {
	var p stack.GAPParam
	p.RSSIComplete = stack.RSSIComplete{Status: status, Addr: addr, RSSI: rssi}
	return s.EmitGAP(stack.GAPReadRSSIComplete, &p)
}

// SetAdvData records data as the current advertisement payload and
// acknowledges it with an adv-data-set completion, the way a vendor
// stack confirms an advertising configuration call.
func (s *Sim) SetAdvData(data []byte) bool {
	s.mu.Lock()
	s.advData = append(s.advData[:0], data...)
	s.mu.Unlock()
	return s.EmitCompletion(stack.GAPAdvDataSetComplete, stack.StatusSuccess)
}

// AdvData returns a copy of the current advertisement payload.
func (s *Sim) AdvData() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.advData...)
}

// RegisterApp simulates GATT application registration: the app is
// recorded in registration order, assigned the next interface id and
// announced through a register event.
func (s *Sim) RegisterApp(appID uint16) (stack.GATTIf, bool) {
	s.mu.Lock()
	iface := s.nextIf
	s.nextIf++
	s.apps.Set(appID, App{AppID: appID, If: iface})
	s.mu.Unlock()

	var p stack.GATTServerParam
	p.Register = stack.GATTSRegisterParam{Status: stack.StatusSuccess, AppID: appID}
	return iface, s.EmitGATTServer(stack.GATTSRegister, iface, &p)
}

// Apps returns registered applications in registration order.
func (s *Sim) Apps() []App {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]App, 0, s.apps.Len())
	for pair := s.apps.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Connect simulates a central connecting: the peer enters the table and
// the connect event is delivered to iface.
func (s *Sim) Connect(iface stack.GATTIf, connID stack.ConnID, addr stack.BDAddr) bool {
	s.peers.Set(addr.Uint64(), Peer{ConnID: connID, Addr: addr, ConnectedAt: time.Now()})
	var p stack.GATTServerParam
	p.Connect = stack.GATTSConnectParam{ConnID: connID, Addr: addr}
	return s.EmitGATTServer(stack.GATTSConnect, iface, &p)
}

// Disconnect removes the peer and delivers the disconnect event.
func (s *Sim) Disconnect(iface stack.GATTIf, connID stack.ConnID, addr stack.BDAddr, reason uint8) bool {
	s.peers.Del(addr.Uint64())
	var p stack.GATTServerParam
	p.Disconnect = stack.GATTSDisconnectParam{ConnID: connID, Addr: addr, Reason: reason}
	return s.EmitGATTServer(stack.GATTSDisconnect, iface, &p)
}

// Peer looks up a connected peer by address.
func (s *Sim) Peer(addr stack.BDAddr) (Peer, bool) {
	return s.peers.Get(addr.Uint64())
}

// PeerCount returns the number of connected peers.
func (s *Sim) PeerCount() int {
	return s.peers.Len()
}
