package bleloop

import (
	"fmt"
	"time"

	"github.com/bleloop/bleloop/stack"
)

// Default configuration values. Capacities and poll timings are applied
// to unset fields by withDefaults; DefaultSettleTime and
// DefaultTickInterval are consumed by the config file layer and Run.
const (
	DefaultPoolCapacity       = 32
	DefaultStatusPollInterval = time.Millisecond
	DefaultStatusPollTimeout  = 500 * time.Millisecond
	DefaultSettleTime         = 200 * time.Millisecond
	DefaultTickInterval       = 50 * time.Millisecond
)

// Config carries the controller's static configuration. The zero value is
// usable: withDefaults fills capacities and timings, leaving the name empty
// and the stack disabled until Enable.
type Config struct {
	// Name is the explicitly configured device name. When set it is
	// advertised as-is, optionally suffixed with the hardware address.
	Name string

	// AppName is the application-wide node name used when Name is empty.
	// It is expected to already carry any address suffix the application
	// appended; derivation only shortens it when it exceeds the stack
	// limit.
	AppName string

	// NameAddMACSuffix appends "-" plus the upper-case hex of the last
	// three address bytes to an explicit Name, and switches long AppNames
	// to head+tail elision instead of plain truncation.
	NameAddMACSuffix bool

	// IOCap is the security IO capability advertised to peers.
	IOCap stack.IOCapability

	// EnableOnBoot requests bring-up on the first dispatch tick after
	// Setup.
	EnableOnBoot bool

	// PoolCapacity bounds the number of event records in flight.
	PoolCapacity int

	// QueueCapacity bounds the producer/consumer queue. Zero means
	// PoolCapacity; values above it are harmless, the pool saturates
	// first.
	QueueCapacity int

	// StatusPollInterval and StatusPollTimeout bound the wait for vendor
	// controller status transitions during bring-up and tear-down.
	StatusPollInterval time.Duration
	StatusPollTimeout  time.Duration

	// SettleTime is slept after bring-up before the stack is considered
	// active, covering the vendor's post-enable settling requirement.
	// Zero skips settling; deployments get DefaultSettleTime through the
	// config file layer.
	SettleTime time.Duration

	// TraceCapacity enables the diagnostic dispatch trace when non-zero.
	TraceCapacity uint32
}

// DefaultConfig returns a Config with every defaultable field filled in.
// Passing the zero value to New is equivalent; this form suits callers
// that tweak individual fields first.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.PoolCapacity == 0 {
		c.PoolCapacity = DefaultPoolCapacity
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = c.PoolCapacity
	}
	if c.StatusPollInterval == 0 {
		c.StatusPollInterval = DefaultStatusPollInterval
	}
	if c.StatusPollTimeout == 0 {
		c.StatusPollTimeout = DefaultStatusPollTimeout
	}
	return c
}

// Validate reports configuration values the controller cannot run with.
func (c Config) Validate() error {
	if c.PoolCapacity < 0 {
		return fmt.Errorf("pool capacity must be positive, got %d", c.PoolCapacity)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("queue capacity must be positive, got %d", c.QueueCapacity)
	}
	if c.StatusPollInterval < 0 {
		return fmt.Errorf("status poll interval must not be negative, got %v", c.StatusPollInterval)
	}
	if c.StatusPollTimeout < 0 {
		return fmt.Errorf("status poll timeout must not be negative, got %v", c.StatusPollTimeout)
	}
	if c.SettleTime < 0 {
		return fmt.Errorf("settle time must not be negative, got %v", c.SettleTime)
	}
	return nil
}
