package connectivity

import "sync"

// ManualMonitor is a Monitor whose state is driven explicitly by the caller.
// It is primarily intended for tests and for hosts that already receive
// connectivity events from elsewhere (for example a desktop runtime's network
// status API) and only need to forward them.
type ManualMonitor struct {
	mu       sync.Mutex
	online   bool
	handlers []func()
}

// NewManualMonitor creates a ManualMonitor with the given initial state.
func NewManualMonitor(online bool) *ManualMonitor {
	return &ManualMonitor{online: online}
}

// IsOnline reports the current connectivity state.
func (m *ManualMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnOnline registers a transition handler.
func (m *ManualMonitor) OnOnline(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// SetOnline updates the connectivity state. Handlers fire synchronously on an
// offline-to-online transition, so callers get deterministic ordering between
// the state change and the work it triggers.
func (m *ManualMonitor) SetOnline(online bool) {
	m.mu.Lock()
	transition := online && !m.online
	m.online = online
	handlers := make([]func(), len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	if !transition {
		return
	}
	for _, handler := range handlers {
		handler()
	}
}

// Close is a no-op for the manual monitor but satisfies the Monitor interface.
func (m *ManualMonitor) Close() error {
	return nil
}
