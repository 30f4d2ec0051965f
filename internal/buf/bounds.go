// Package buf holds overflow-checked size arithmetic for buffer requests.
package buf

import "math"

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow int.
func AddOverflowSafe(a, b int) (int, bool) {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return 0, false
	case b < 0 && a < math.MinInt-b:
		return 0, false
	default:
		return a + b, true
	}
}

// FitsUint32 reports whether n can be passed to a driver taking a 32-bit size.
// Drivers of this kind reject zero sizes, so 0 does not fit.
func FitsUint32(n int) bool {
	return n > 0 && uint64(n) <= math.MaxUint32
}
