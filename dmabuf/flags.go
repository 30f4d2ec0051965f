package dmabuf

import (
	"fmt"
	"strings"
)

// MapFlags controls how a buffer is mapped into the process address space.
type MapFlags uint32

const (
	// MapWrite requests write access.
	MapWrite MapFlags = 1 << iota
	// MapRead requests read access.
	MapRead
	// MapManualSync disables the implicit sync session around Map/Unmap.
	// The caller then uses StartSyncSession and StopSyncSession.
	MapManualSync
	// MapPrivate requests a copy-on-write mapping instead of a shared one.
	MapPrivate
)

// MapReadWrite is the set of access bits.
const MapReadWrite = MapRead | MapWrite

// Access returns only the read/write bits of f.
func (f MapFlags) Access() MapFlags {
	return f & MapReadWrite
}

// Normalize returns f with read+write access if f carries no access bit.
func (f MapFlags) Normalize() MapFlags {
	if f.Access() == 0 {
		f |= MapReadWrite
	}
	return f
}

// Has reports whether all bits of b are set in f.
func (f MapFlags) Has(b MapFlags) bool {
	return f&b == b
}

// Covers reports whether the access requested by other is already granted by f.
// Only read/write bits take part in the comparison.
func (f MapFlags) Covers(other MapFlags) bool {
	return f.Access()&other.Access() == other.Access()
}

func (f MapFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f.Has(MapRead) {
		parts = append(parts, "read")
	}
	if f.Has(MapWrite) {
		parts = append(parts, "write")
	}
	if f.Has(MapManualSync) {
		parts = append(parts, "manual-sync")
	}
	if f.Has(MapPrivate) {
		parts = append(parts, "private")
	}
	return strings.Join(parts, "|")
}

// ParseMapFlags parses a "|" or "," separated list of flag names as produced
// by MapFlags.String. The empty string yields 0.
func ParseMapFlags(s string) (MapFlags, error) {
	var f MapFlags
	for _, name := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "read", "r":
			f |= MapRead
		case "write", "w":
			f |= MapWrite
		case "rw", "readwrite":
			f |= MapReadWrite
		case "manual-sync", "manual":
			f |= MapManualSync
		case "private":
			f |= MapPrivate
		case "none", "":
		default:
			return 0, fmt.Errorf("%w: %q", ErrUnknownFlag, name)
		}
	}
	return f, nil
}
