package dmabuf

// CacheSyncer is implemented by backend memory whose CPU mapping is cached
// and needs explicit coherency operations around CPU access.
//
// flags are the normalized flags of the active mapping, so implementations
// can restrict the operation to the access actually granted.
type CacheSyncer interface {
	BeginAccess(flags MapFlags) error
	EndAccess(flags MapFlags) error
}

// StartSync begins a manual sync session. It only acts on a mapping created
// with MapManualSync that has no session running.
func (m *Mapping) StartSync(sync CacheSyncer) error {
	if m.refs == 0 {
		return ErrNotMapped
	}
	if !m.flags.Has(MapManualSync) || m.syncing {
		return nil
	}
	return m.begin(sync)
}

// StopSync ends a manual sync session started by StartSync.
func (m *Mapping) StopSync(sync CacheSyncer) error {
	if m.refs == 0 {
		return ErrNotMapped
	}
	if !m.flags.Has(MapManualSync) || !m.syncing {
		return nil
	}
	return m.end(sync)
}

func (m *Mapping) begin(sync CacheSyncer) error {
	if sync == nil {
		return nil
	}
	if err := sync.BeginAccess(m.flags); err != nil {
		return err
	}
	m.syncing = true
	return nil
}

func (m *Mapping) end(sync CacheSyncer) error {
	if sync == nil {
		m.syncing = false
		return nil
	}
	if err := sync.EndAccess(m.flags); err != nil {
		return err
	}
	m.syncing = false
	return nil
}

// syncerOf returns mem as a CacheSyncer if it is one.
func syncerOf(mem Memory) CacheSyncer {
	if s, ok := mem.(CacheSyncer); ok {
		return s
	}
	return nil
}
