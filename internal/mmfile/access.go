package mmfile

import "github.com/joshuapare/dmabufkit/dmabuf"

// Access selects the protection and sharing of a mapping.
type Access struct {
	Read    bool
	Write   bool
	Private bool // copy-on-write instead of shared
}

// AccessOf translates buffer map flags into mapping access.
func AccessOf(flags dmabuf.MapFlags) Access {
	return Access{
		Read:    flags.Has(dmabuf.MapRead),
		Write:   flags.Has(dmabuf.MapWrite),
		Private: flags.Has(dmabuf.MapPrivate),
	}
}
