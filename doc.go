// Package bleloop implements the core BLE event pipeline: the lifecycle
// controller that brings a vendor Bluetooth stack up and down, and the
// bounded single-producer/single-consumer event path that moves GAP and
// GATT callbacks from the stack's delivery goroutine into a cooperative
// dispatch loop.
//
// The package provides:
//   - Lifecycle state machine with non-blocking Enable/Disable intents
//   - Fixed-capacity event capture with counted, never-blocking drops
//   - Per-tick dispatch fanning events out to ordered handler registries
//   - Periodic loop modules driven once per tick while active
//   - Device name derivation with hardware-address suffixing
//
// Vendors of the stack contract live elsewhere: internal/stacksim for
// tests and simulation, stack/goble for scan ingestion through go-ble.
package bleloop
