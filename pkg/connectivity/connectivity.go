// Package connectivity reports whether the remote service is currently
// reachable and notifies subscribers when a lost connection comes back.
package connectivity

import "io"

// Monitor is the contract consumed by components that change behaviour while
// offline. Implementations must be safe for concurrent use.
type Monitor interface {
	// IsOnline reports the current connectivity state.
	IsOnline() bool
	// OnOnline registers a handler invoked on every offline-to-online
	// transition. Handlers are not invoked for the initial state.
	OnOnline(handler func())
	// Closer is included for implementations that own background goroutines
	// or network clients.
	io.Closer
}
