package dmabuf

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrInvalidSize indicates a requested size below one byte, or one too
	// large to accommodate alignment slack.
	ErrInvalidSize = errors.New("dmabuf: invalid buffer size")

	// ErrInvalidAlignment indicates a negative alignment.
	ErrInvalidAlignment = errors.New("dmabuf: invalid alignment")

	// ErrNilBuffer indicates a nil Buffer was passed to a dispatch function.
	ErrNilBuffer = errors.New("dmabuf: nil buffer")

	// ErrNoAllocator indicates a Buffer that is not bound to any allocator.
	ErrNoAllocator = errors.New("dmabuf: buffer has no allocator")

	// ErrForeignBuffer indicates a Buffer that was produced by another allocator.
	ErrForeignBuffer = errors.New("dmabuf: buffer does not belong to this allocator")

	// ErrDeallocated indicates use of a buffer after Deallocate.
	ErrDeallocated = errors.New("dmabuf: buffer already deallocated")

	// ErrAllocatorDestroyed indicates use of an allocator after Destroy.
	ErrAllocatorDestroyed = errors.New("dmabuf: allocator destroyed")

	// ErrIncompatibleFlags indicates a redundant Map requesting access that the
	// active mapping does not grant.
	ErrIncompatibleFlags = errors.New("dmabuf: map flags not covered by active mapping")

	// ErrNotMapped indicates a sync session operation on an unmapped buffer.
	ErrNotMapped = errors.New("dmabuf: buffer is not mapped")

	// ErrSyncSessionActive indicates a final Unmap while a manual sync session is open.
	ErrSyncSessionActive = errors.New("dmabuf: sync session still active")

	// ErrNoPhysicalAddress indicates the backend returned memory without a bus address.
	ErrNoPhysicalAddress = errors.New("dmabuf: backend returned no physical address")

	// ErrUnknownFlag indicates an unrecognized map flag name.
	ErrUnknownFlag = errors.New("dmabuf: unknown map flag")

	// ErrUnsupported indicates a backend that is not available on this platform.
	ErrUnsupported = errors.New("dmabuf: backend not supported on this platform")
)

// Error describes a failed backend operation.
type Error struct {
	Op      string // operation, e.g. "allocate", "map", "open"
	Backend string // backend name
	Err     error  // underlying error, usually a syscall.Errno
}

func (e *Error) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("dmabuf: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("dmabuf: %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errno returns the platform error number carried by err, or 0 if it carries none.
func Errno(err error) syscall.Errno {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return 0
}
