// Package presence delivers best-effort activity-status signals to a remote
// endpoint, tolerating transient send failures and connectivity loss without
// flooding the endpoint with duplicates.
package presence

import "context"

// Status is the activity state a device reports, for example "working" or
// "idle". The dispatcher does not interpret the value beyond equality.
type Status string

// Common statuses used by the time-tracking clients. Callers may send any
// Status value; these exist for convenience.
const (
	StatusWorking Status = "working"
	StatusIdle    Status = "idle"
	StatusOffline Status = "offline"
)

// Signal is the payload transmitted to the presence endpoint.
type Signal struct {
	Status   Status `json:"status"`
	DeviceID string `json:"deviceId,omitempty"`
}

// Outcome describes what Heartbeat did with a signal. Exactly one shape is
// ever returned: sent, queued for later delivery, or throttled as a
// duplicate. Transmission errors are never part of it; reliability is the
// dispatcher's job, not the caller's.
type Outcome struct {
	Sent      bool
	Queued    bool
	Throttled bool
}

// Transmitter performs a single delivery attempt. Implementations should
// return an error for anything short of confirmed acceptance; the dispatcher
// treats any error as a failed attempt.
type Transmitter interface {
	Send(ctx context.Context, signal Signal) error
}
