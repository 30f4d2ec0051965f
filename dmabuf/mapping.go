package dmabuf

import "github.com/hashicorp/go-multierror"

// Mapper performs the raw, non-refcounted mapping of one block of memory.
type Mapper interface {
	Map(flags MapFlags) ([]byte, error)
	Unmap(data []byte) error
}

// Mapping is the refcounted map/unmap state of one buffer.
//
// The first Map performs the raw mapping; further Maps only increment the
// count and must request access covered by the first. The final Unmap
// performs the raw unmap. The zero value is an unmapped Mapping exposing the
// whole raw mapping.
//
// A Mapping is not safe for concurrent use.
type Mapping struct {
	offset int
	length int

	raw     []byte
	view    []byte
	refs    int
	flags   MapFlags
	syncing bool
}

// NewMapping returns an unmapped Mapping exposing length bytes starting at
// offset of the raw mapping.
func NewMapping(offset, length int) *Mapping {
	return &Mapping{offset: offset, length: length}
}

// Mapped reports whether the buffer is currently mapped.
func (m *Mapping) Mapped() bool { return m.refs > 0 }

// Refs returns the number of outstanding Map calls.
func (m *Mapping) Refs() int { return m.refs }

// Flags returns the normalized flags of the active mapping, or 0.
func (m *Mapping) Flags() MapFlags { return m.flags }

// Bytes returns the mapped window, or nil when unmapped.
func (m *Mapping) Bytes() []byte { return m.view }

// SyncActive reports whether a sync session has been started and not stopped.
func (m *Mapping) SyncActive() bool { return m.syncing }

// Map maps the buffer with flags. sync may be nil for non-cached memory.
func (m *Mapping) Map(flags MapFlags, mapper Mapper, sync CacheSyncer) ([]byte, error) {
	flags = flags.Normalize()

	if m.refs > 0 {
		if !m.flags.Covers(flags) {
			return nil, ErrIncompatibleFlags
		}
		m.refs++
		return m.view, nil
	}

	raw, err := mapper.Map(flags)
	if err != nil {
		return nil, err
	}
	m.raw = raw
	m.view = m.window(raw)
	m.refs = 1
	m.flags = flags

	if !flags.Has(MapManualSync) {
		if err := m.begin(sync); err != nil {
			_ = mapper.Unmap(raw)
			m.reset()
			return nil, err
		}
	}
	return m.view, nil
}

// Unmap undoes one Map. Unmapping an unmapped buffer is a no-op.
func (m *Mapping) Unmap(mapper Mapper, sync CacheSyncer) error {
	switch {
	case m.refs == 0:
		return nil
	case m.refs > 1:
		m.refs--
		return nil
	}

	if m.syncing {
		if m.flags.Has(MapManualSync) {
			return ErrSyncSessionActive
		}
		if err := m.end(sync); err != nil {
			return err
		}
	}
	return m.unmapRaw(mapper)
}

// Release unmaps the buffer regardless of the refcount, ending any active
// sync session first.
func (m *Mapping) Release(mapper Mapper, sync CacheSyncer) error {
	if m.refs == 0 {
		return nil
	}
	var result *multierror.Error
	if m.syncing {
		if err := m.end(sync); err != nil {
			result = multierror.Append(result, err)
		}
		m.syncing = false
	}
	if err := m.unmapRaw(mapper); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (m *Mapping) unmapRaw(mapper Mapper) error {
	raw := m.raw
	m.reset()
	return mapper.Unmap(raw)
}

func (m *Mapping) reset() {
	m.raw = nil
	m.view = nil
	m.refs = 0
	m.flags = 0
	m.syncing = false
}

func (m *Mapping) window(raw []byte) []byte {
	if m.length == 0 {
		return raw
	}
	end := m.offset + m.length
	return raw[m.offset:end:end]
}
