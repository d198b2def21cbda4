package bleloop

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bleloop/bleloop/internal/eventq"
	"github.com/bleloop/bleloop/internal/evtrace"
	"github.com/bleloop/bleloop/internal/wake"
	"github.com/bleloop/bleloop/stack"
)

// State is the lifecycle state machine position. Enable and Disable are
// pending transitions the dispatch loop resolves on its next tick.
type State uint32

const (
	StateOff State = iota
	StateDisabled
	StateEnable
	StateDisable
	StateActive
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateDisabled:
		return "disabled"
	case StateEnable:
		return "enable-pending"
	case StateDisable:
		return "disable-pending"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Controller owns the BLE lifecycle and the event pipeline between the
// vendor stack's callback goroutine (producer) and the dispatch loop
// (consumer). State transitions and all handler invocations happen on
// the dispatch goroutine; Enable, Disable and the Enqueue methods are
// safe from other goroutines.
type Controller struct {
	logger *logrus.Logger
	cfg    Config
	stack  stack.Stack

	pool   *eventq.Pool
	events *eventq.Queue
	wake   *wake.Notifier
	trace  *evtrace.Ring[TraceEntry]

	state   atomic.Uint32
	failed  atomic.Bool
	failure atomic.Value
	dropped atomic.Uint64

	// Dispatch-goroutine state, no locking.
	gapHandlers    []GAPEventHandler
	scanHandlers   []GAPScanHandler
	gattsHandlers  []GATTServerEventHandler
	gattcHandlers  []GATTClientEventHandler
	statusHandlers []StatusEventHandler
	modules        []LoopModule
}

// New builds a controller over st. A nil logger falls back to the
// process-wide standard logger.
func New(st stack.Stack, cfg Config, logger *logrus.Logger) (*Controller, error) {
	if st == nil {
		return nil, errors.New("bleloop: stack must not be nil")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bleloop: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Controller{
		logger: logger,
		cfg:    cfg,
		stack:  st,
		pool:   eventq.NewPool(cfg.PoolCapacity),
		events: eventq.NewQueue(cfg.QueueCapacity),
		wake:   wake.New(wake.DefaultCapacity),
	}
	if cfg.TraceCapacity > 0 {
		trace, err := evtrace.New[TraceEntry](cfg.TraceCapacity)
		if err != nil {
			return nil, fmt.Errorf("bleloop: %w", err)
		}
		c.trace = trace
	}
	return c, nil
}

// Setup initializes persistent storage through the stack and moves the
// controller out of the off state. It runs once; the radio itself is
// not touched until an enable intent is resolved by the dispatch loop.
// Once the lifecycle has failed, Setup returns ErrFailed.
func (c *Controller) Setup() error {
	if c.failed.Load() {
		return ErrFailed
	}
	if State(c.state.Load()) != StateOff {
		return nil
	}
	c.logger.Info("Running setup")
	if err := c.stack.PreInitialize(); err != nil {
		lerr := &LifecycleError{Phase: PhasePreInit, Step: "persistent storage init", Err: err}
		c.markFailed(lerr)
		return lerr
	}
	c.state.Store(uint32(StateDisabled))
	if c.cfg.EnableOnBoot {
		c.Enable()
	}
	return nil
}

// Enable requests bring-up. It only records intent; the dispatch loop
// performs the work. Calling it in any state but disabled is a no-op,
// so repeated enables cause a single bring-up.
func (c *Controller) Enable() {
	c.state.CompareAndSwap(uint32(StateDisabled), uint32(StateEnable))
}

// Disable requests tear-down. Like Enable it only records intent. It is
// a no-op while off, disabled or already disabling.
func (c *Controller) Disable() {
	for {
		cur := State(c.state.Load())
		switch cur {
		case StateOff, StateDisabled, StateDisable:
			return
		}
		if c.state.CompareAndSwap(uint32(cur), uint32(StateDisable)) {
			return
		}
	}
}

// IsActive reports whether the stack is up and events are being
// dispatched.
func (c *Controller) IsActive() bool {
	return State(c.state.Load()) == StateActive && !c.failed.Load()
}

// IsFailed reports whether the lifecycle has permanently failed.
func (c *Controller) IsFailed() bool {
	return c.failed.Load()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Failure returns the error that marked the controller failed, or nil.
func (c *Controller) Failure() error {
	if v := c.failure.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// DroppedEvents returns the total number of events lost to pool or
// queue exhaustion since construction.
func (c *Controller) DroppedEvents() uint64 {
	return c.dropped.Load()
}

func (c *Controller) markFailed(err error) {
	if !c.failed.CompareAndSwap(false, true) {
		return
	}
	c.failure.Store(err)
	c.logger.WithError(err).Error("BLE lifecycle failed; controller is now inert")
}

// bringUp walks the vendor stack to fully enabled. The order is fixed:
// controller first, classic memory release, host, callbacks, identity.
func (c *Controller) bringUp() error {
	st := c.stack

	if st.ControllerStatus() != stack.ControllerEnabled {
		if st.ControllerStatus() == stack.ControllerIdle {
			if err := st.InitController(); err != nil {
				return &LifecycleError{Phase: PhaseBringUp, Step: "controller init", Err: err}
			}
			err := c.waitControllerStatus(PhaseBringUp, "controller init", func(s stack.ControllerStatus) bool {
				return s != stack.ControllerIdle
			})
			if err != nil {
				return err
			}
		}
		if st.ControllerStatus() == stack.ControllerInited {
			if err := st.EnableController(); err != nil {
				return &LifecycleError{Phase: PhaseBringUp, Step: "controller enable", Err: err}
			}
		}
		if got := st.ControllerStatus(); got != stack.ControllerEnabled {
			return &LifecycleError{
				Phase: PhaseBringUp,
				Step:  "controller enable",
				Err:   fmt.Errorf("controller stuck in status %s", got),
			}
		}
	}

	// Classic BT memory cannot be reclaimed on every chip; failure here
	// does not block BLE operation.
	if err := st.ReleaseClassicMemory(); err != nil {
		c.logger.WithError(err).Warn("Release of classic BT memory failed")
	}

	if err := st.InitHost(); err != nil {
		return &LifecycleError{Phase: PhaseBringUp, Step: "host init", Err: err}
	}
	if err := st.EnableHost(); err != nil {
		return &LifecycleError{Phase: PhaseBringUp, Step: "host enable", Err: err}
	}

	if len(c.gapHandlers) > 0 || len(c.scanHandlers) > 0 {
		if err := st.RegisterGAPCallback(c.EnqueueGAPEvent); err != nil {
			return &LifecycleError{Phase: PhaseBringUp, Step: "gap callback registration", Err: err}
		}
	}
	if len(c.gattsHandlers) > 0 {
		if err := st.RegisterGATTServerCallback(c.EnqueueGATTServerEvent); err != nil {
			return &LifecycleError{Phase: PhaseBringUp, Step: "gatts callback registration", Err: err}
		}
	}
	if len(c.gattcHandlers) > 0 {
		if err := st.RegisterGATTClientCallback(c.EnqueueGATTClientEvent); err != nil {
			return &LifecycleError{Phase: PhaseBringUp, Step: "gattc callback registration", Err: err}
		}
	}

	name := DeriveName(c.cfg.Name, c.cfg.AppName, c.cfg.NameAddMACSuffix, c.hwAddr())
	if err := st.SetDeviceName(name); err != nil {
		return &LifecycleError{Phase: PhaseBringUp, Step: "device name assignment", Err: err}
	}
	if err := st.SetSecurityIOCap(c.cfg.IOCap); err != nil {
		return &LifecycleError{Phase: PhaseBringUp, Step: "security io capability", Err: err}
	}

	if c.cfg.SettleTime > 0 {
		time.Sleep(c.cfg.SettleTime)
	}
	c.logger.WithField("name", name).Debug("BLE stack enabled")
	return nil
}

// tearDown reverses bringUp: host down first, then the controller back
// to idle.
func (c *Controller) tearDown() error {
	st := c.stack

	if err := st.DisableHost(); err != nil {
		return &LifecycleError{Phase: PhaseTearDown, Step: "host disable", Err: err}
	}
	if err := st.DeinitHost(); err != nil {
		return &LifecycleError{Phase: PhaseTearDown, Step: "host deinit", Err: err}
	}

	if st.ControllerStatus() != stack.ControllerIdle {
		if st.ControllerStatus() == stack.ControllerEnabled {
			if err := st.DisableController(); err != nil {
				return &LifecycleError{Phase: PhaseTearDown, Step: "controller disable", Err: err}
			}
			err := c.waitControllerStatus(PhaseTearDown, "controller disable", func(s stack.ControllerStatus) bool {
				return s != stack.ControllerEnabled
			})
			if err != nil {
				return err
			}
		}
		if st.ControllerStatus() == stack.ControllerInited {
			if err := st.DeinitController(); err != nil {
				return &LifecycleError{Phase: PhaseTearDown, Step: "controller deinit", Err: err}
			}
		}
		if got := st.ControllerStatus(); got != stack.ControllerIdle {
			return &LifecycleError{
				Phase: PhaseTearDown,
				Step:  "controller deinit",
				Err:   fmt.Errorf("controller stuck in status %s", got),
			}
		}
	}

	c.logger.Debug("BLE stack disabled")
	return nil
}

func (c *Controller) waitControllerStatus(phase, step string, ready func(stack.ControllerStatus) bool) error {
	deadline := time.Now().Add(c.cfg.StatusPollTimeout)
	for !ready(c.stack.ControllerStatus()) {
		if time.Now().After(deadline) {
			return &LifecycleError{
				Phase: phase,
				Step:  step,
				Err: fmt.Errorf("%w after %v in status %s",
					ErrPollTimeout, c.cfg.StatusPollTimeout, c.stack.ControllerStatus()),
			}
		}
		time.Sleep(c.cfg.StatusPollInterval)
	}
	return nil
}

func (c *Controller) hwAddr() stack.BDAddr {
	addr, _ := c.stack.Address()
	return addr
}

// DumpConfig logs the advertised identity of the stack, or notes that
// it is not up.
func (c *Controller) DumpConfig() {
	if addr, ok := c.stack.Address(); ok {
		c.logger.WithFields(logrus.Fields{
			"mac_address":   addr.String(),
			"io_capability": c.cfg.IOCap.String(),
		}).Info("BLE stack configuration")
		return
	}
	c.logger.Info("BLE stack configuration: bluetooth stack is not enabled")
}
