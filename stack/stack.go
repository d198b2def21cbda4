// Package stack defines the contract between the BLE event pipeline and a
// vendor Bluetooth stack: the ordered lifecycle operations the controller
// drives during bring-up and tear-down, and the callback signatures through
// which the stack delivers asynchronous GAP and GATT events.
//
// Implementations of Stack are "vendors": the in-process simulator used by
// tests and the CLI, or a platform port wrapping a real radio. The pipeline
// core never talks to hardware directly; it only sequences the operations
// below and consumes the callbacks.
package stack

// ControllerStatus is the coarse hardware controller state reported by the
// vendor stack. Bring-up and tear-down poll it until the controller reaches
// the expected status.
type ControllerStatus uint8

const (
	// ControllerIdle means the controller has not been initialized.
	ControllerIdle ControllerStatus = iota
	// ControllerInited means the controller is initialized but not enabled.
	ControllerInited
	// ControllerEnabled means the controller is fully operational.
	ControllerEnabled
)

// String returns a short lowercase label for logging.
func (s ControllerStatus) String() string {
	switch s {
	case ControllerIdle:
		return "idle"
	case ControllerInited:
		return "inited"
	case ControllerEnabled:
		return "enabled"
	default:
		return "unknown"
	}
}

// Status is the vendor status code carried by completion events.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusFail
	StatusNoMem
	StatusBusy
	StatusTimeout
)

// String returns a short lowercase label for logging.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFail:
		return "fail"
	case StatusNoMem:
		return "nomem"
	case StatusBusy:
		return "busy"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// OK reports whether the status indicates success.
func (s Status) OK() bool { return s == StatusSuccess }

// IOCapability is the security input/output capability advertised during
// pairing. The values follow the vendor numbering so simulated and real
// stacks agree.
type IOCapability uint8

const (
	IOCapDisplayOnly IOCapability = iota
	IOCapDisplayYesNo
	IOCapKeyboardOnly
	IOCapNone
	IOCapKeyboardDisplay
)

// String returns the diagnostic label reported at startup.
func (c IOCapability) String() string {
	switch c {
	case IOCapDisplayOnly:
		return "display_only"
	case IOCapDisplayYesNo:
		return "display_yes_no"
	case IOCapKeyboardOnly:
		return "keyboard_only"
	case IOCapNone:
		return "none"
	case IOCapKeyboardDisplay:
		return "keyboard_display"
	default:
		return "invalid"
	}
}

// ParseIOCapability converts a configuration string (the same labels String
// produces) into an IOCapability.
func ParseIOCapability(s string) (IOCapability, bool) {
	switch s {
	case "display_only":
		return IOCapDisplayOnly, true
	case "display_yes_no":
		return IOCapDisplayYesNo, true
	case "keyboard_only":
		return IOCapKeyboardOnly, true
	case "none", "":
		return IOCapNone, true
	case "keyboard_display":
		return IOCapKeyboardDisplay, true
	default:
		return IOCapNone, false
	}
}

// GAPCallback receives GAP events from the vendor stack. The param pointer
// is only valid for the duration of the call; receivers must copy what they
// keep.
type GAPCallback func(event GAPEvent, param *GAPParam)

// GATTServerCallback receives GATT server events from the vendor stack.
// Same retention rule as GAPCallback.
type GATTServerCallback func(event GATTServerEvent, iface GATTIf, param *GATTServerParam)

// GATTClientCallback receives GATT client events from the vendor stack.
// Same retention rule as GAPCallback.
type GATTClientCallback func(event GATTClientEvent, iface GATTIf, param *GATTClientParam)

// Stack is the vendor Bluetooth stack boundary. Every method is invoked
// from the pipeline's consumer goroutine only; implementations may deliver
// callbacks from a single producer goroutine of their own.
//
// Bring-up calls the methods in this order: PreInitialize (once, at setup),
// then InitController, EnableController, ReleaseClassicMemory, InitHost,
// EnableHost, the callback registrations, SetDeviceName and
// SetSecurityIOCap. Tear-down runs the reverse: DisableHost, DeinitHost,
// DisableController, DeinitController. ControllerStatus is polled between
// controller steps until the expected status is observed.
type Stack interface {
	// PreInitialize prepares persistent storage required by the stack.
	// Called exactly once before any other method.
	PreInitialize() error

	// ControllerStatus reports the current hardware controller status.
	ControllerStatus() ControllerStatus

	InitController() error
	EnableController() error
	DisableController() error
	DeinitController() error

	// ReleaseClassicMemory releases controller memory reserved for classic
	// Bluetooth, which the pipeline never uses.
	ReleaseClassicMemory() error

	InitHost() error
	EnableHost() error
	DisableHost() error
	DeinitHost() error

	RegisterGAPCallback(cb GAPCallback) error
	RegisterGATTServerCallback(cb GATTServerCallback) error
	RegisterGATTClientCallback(cb GATTClientCallback) error

	// SetDeviceName assigns the advertised device name.
	SetDeviceName(name string) error

	// SetSecurityIOCap assigns the pairing IO capability.
	SetSecurityIOCap(ioCap IOCapability) error

	// Address returns the controller hardware address. The second return is
	// false while the stack is not enabled.
	Address() (BDAddr, bool)
}
