package bleloop

import "github.com/bleloop/bleloop/stack"

// maxDeviceNameLen is the longest advertised name the vendor stack
// accepts.
const maxDeviceNameLen = 20

// Elision split for over-long fallback names with suffixing enabled:
// keep the head, drop the middle, keep the tail that carries the
// address suffix the application appended.
const (
	elideHeadLen = 13
	elideTailLen = 7
)

// DeriveName computes the name advertised by the stack.
//
// An explicit name is used verbatim; with addSuffix it gains "-" plus
// the upper-case hex of the last three address bytes, without length
// enforcement. Otherwise appName is used, shortened only when it
// exceeds the stack limit: with addSuffix the middle is elided so the
// trailing suffix survives, without it the name is truncated outright.
func DeriveName(explicit, appName string, addSuffix bool, addr stack.BDAddr) string {
	if explicit != "" {
		if addSuffix {
			return explicit + "-" + addr.Suffix()
		}
		return explicit
	}
	name := appName
	if len(name) > maxDeviceNameLen {
		if addSuffix {
			name = name[:elideHeadLen] + name[len(name)-elideTailLen:]
		} else {
			name = name[:maxDeviceNameLen]
		}
	}
	return name
}
