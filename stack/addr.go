package stack

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// BDAddr is a 6-byte Bluetooth device address in big-endian display order:
// addr[0] is the most significant byte of the printed form.
type BDAddr [6]byte

// AddrType distinguishes public from random device addresses.
type AddrType uint8

const (
	AddrTypePublic AddrType = iota
	AddrTypeRandom
)

// String formats the address as colon-separated upper-case hex,
// e.g. "AA:BB:CC:DD:EE:FF".
func (a BDAddr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Uint64 packs the address into the low 48 bits of a uint64, most
// significant address byte first. Useful as a compact map key.
func (a BDAddr) Uint64() uint64 {
	var u uint64
	for _, b := range a {
		u = u<<8 | uint64(b)
	}
	return u
}

// Suffix returns the upper-case hex of the last three address bytes,
// e.g. "AABBCC". Device name derivation appends it after a dash to
// disambiguate devices sharing a configured name.
func (a BDAddr) Suffix() string {
	return strings.ToUpper(hex.EncodeToString(a[3:]))
}

// IsZero reports whether the address is all zeroes.
func (a BDAddr) IsZero() bool { return a == BDAddr{} }

// ParseAddr parses "AA:BB:CC:DD:EE:FF" (case-insensitive, ':' or '-'
// separators, or 12 bare hex digits) into a BDAddr.
func ParseAddr(s string) (BDAddr, error) {
	var a BDAddr
	clean := strings.NewReplacer(":", "", "-", "").Replace(s)
	if len(clean) != 12 {
		return a, fmt.Errorf("invalid device address %q", s)
	}
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return a, fmt.Errorf("invalid device address %q: %w", s, err)
	}
	copy(a[:], raw)
	return a, nil
}

// MustParseAddr is ParseAddr for constants and tests; it panics on error.
func MustParseAddr(s string) BDAddr {
	a, err := ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}
