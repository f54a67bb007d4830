package presence_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-resilience/pkg/connectivity"
	"github.com/illmade-knight/go-resilience/pkg/presence"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTransmitter records every delivery attempt and fails the first
// failFirst of them.
type mockTransmitter struct {
	mu        sync.Mutex
	sent      []presence.Signal
	failFirst int
}

func (m *mockTransmitter) Send(_ context.Context, signal presence.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, signal)
	if len(m.sent) <= m.failFirst {
		return errors.New("transmit failed")
	}
	return nil
}

func (m *mockTransmitter) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockTransmitter) sentStatuses() []presence.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	statuses := make([]presence.Status, len(m.sent))
	for i, s := range m.sent {
		statuses[i] = s.Status
	}
	return statuses
}

func newTestDispatcher(t *testing.T, cfg presence.Config, transmitter presence.Transmitter, monitor connectivity.Monitor) *presence.Dispatcher {
	t.Helper()
	d, err := presence.NewDispatcher(cfg, transmitter, monitor, zerolog.Nop())
	require.NoError(t, err)
	return d
}

func TestDispatcher_ThrottlesDuplicateStatus(t *testing.T) {
	transmitter := &mockTransmitter{}
	monitor := connectivity.NewManualMonitor(true)
	d := newTestDispatcher(t, presence.Config{MinSendInterval: time.Minute}, transmitter, monitor)
	ctx := context.Background()

	// First heartbeat transmits.
	outcome := d.Heartbeat(ctx, presence.StatusWorking, "")
	assert.Equal(t, presence.Outcome{Sent: true}, outcome)

	// An immediate repeat of the same status is throttled with no attempt.
	outcome = d.Heartbeat(ctx, presence.StatusWorking, "")
	assert.Equal(t, presence.Outcome{Sent: true, Throttled: true}, outcome)
	assert.Equal(t, 1, transmitter.sendCount(), "Exactly one network attempt should occur")

	// A different status inside the window is not throttled.
	outcome = d.Heartbeat(ctx, presence.StatusIdle, "")
	assert.Equal(t, presence.Outcome{Sent: true}, outcome)
	assert.Equal(t, 2, transmitter.sendCount())
}

func TestDispatcher_SameStatusOutsideWindowIsSent(t *testing.T) {
	transmitter := &mockTransmitter{}
	monitor := connectivity.NewManualMonitor(true)
	d := newTestDispatcher(t, presence.Config{MinSendInterval: 30 * time.Millisecond}, transmitter, monitor)
	ctx := context.Background()

	assert.Equal(t, presence.Outcome{Sent: true}, d.Heartbeat(ctx, presence.StatusWorking, ""))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, presence.Outcome{Sent: true}, d.Heartbeat(ctx, presence.StatusWorking, ""))
	assert.Equal(t, 2, transmitter.sendCount())
}

func TestDispatcher_OfflineQueueThenDrain(t *testing.T) {
	transmitter := &mockTransmitter{}
	monitor := connectivity.NewManualMonitor(false)
	d := newTestDispatcher(t, presence.Config{MinSendInterval: time.Minute}, transmitter, monitor)
	ctx := context.Background()

	// Offline: no network attempt, the signal is queued.
	outcome := d.Heartbeat(ctx, presence.StatusIdle, "")
	assert.Equal(t, presence.Outcome{Queued: true}, outcome)
	assert.Equal(t, 0, transmitter.sendCount())
	assert.Equal(t, 1, d.QueueLen())

	// Reconnecting triggers a drain; the signal is transmitted exactly once.
	monitor.SetOnline(true)
	assert.Equal(t, 1, transmitter.sendCount())
	assert.Equal(t, 0, d.QueueLen())
	assert.Equal(t, []presence.Status{presence.StatusIdle}, transmitter.sentStatuses())

	// The drained status now counts as last-sent, so a repeat is throttled.
	outcome = d.Heartbeat(ctx, presence.StatusIdle, "")
	assert.Equal(t, presence.Outcome{Sent: true, Throttled: true}, outcome)
	assert.Equal(t, 1, transmitter.sendCount())
}

func TestDispatcher_CoalescesConsecutiveSameStatus(t *testing.T) {
	transmitter := &mockTransmitter{}
	monitor := connectivity.NewManualMonitor(false)
	d := newTestDispatcher(t, presence.Config{MinSendInterval: time.Minute}, transmitter, monitor)
	ctx := context.Background()

	// Three idle heartbeats while offline collapse into a single slot.
	for i := 0; i < 3; i++ {
		outcome := d.Heartbeat(ctx, presence.StatusIdle, "")
		assert.Equal(t, presence.Outcome{Queued: true}, outcome)
	}
	assert.Equal(t, 1, d.QueueLen())

	// Distinct statuses still queue separately.
	d.Heartbeat(ctx, presence.StatusWorking, "")
	d.Heartbeat(ctx, presence.StatusWorking, "")
	assert.Equal(t, 2, d.QueueLen())

	// On reconnect exactly one transmit per distinct queued status occurs.
	monitor.SetOnline(true)
	assert.Equal(t, 2, transmitter.sendCount())
	assert.Equal(t, []presence.Status{presence.StatusIdle, presence.StatusWorking}, transmitter.sentStatuses())
	assert.Equal(t, 0, d.QueueLen())
}

func TestDispatcher_SendFailureIsQueuedNotSurfaced(t *testing.T) {
	transmitter := &mockTransmitter{failFirst: 1}
	monitor := connectivity.NewManualMonitor(true)
	d := newTestDispatcher(t, presence.Config{
		MinSendInterval:  time.Minute,
		RetryBackoffBase: time.Millisecond,
	}, transmitter, monitor)
	ctx := context.Background()

	// The failed attempt is absorbed; the caller only sees Queued.
	outcome := d.Heartbeat(ctx, presence.StatusWorking, "")
	assert.Equal(t, presence.Outcome{Queued: true}, outcome)
	assert.Equal(t, 1, d.QueueLen())

	// A flush delivers the queued signal.
	d.Flush(ctx)
	assert.Equal(t, 0, d.QueueLen())
	assert.Equal(t, 2, transmitter.sendCount())

	// Delivery during the drain updated last-sent state.
	outcome = d.Heartbeat(ctx, presence.StatusWorking, "")
	assert.Equal(t, presence.Outcome{Sent: true, Throttled: true}, outcome)
}

func TestDispatcher_RetryCeilingDropsSignal(t *testing.T) {
	var dropped []presence.Signal
	transmitter := &mockTransmitter{failFirst: 100} // Never succeeds.
	monitor := connectivity.NewManualMonitor(true)
	d := newTestDispatcher(t, presence.Config{
		MinSendInterval:  time.Minute,
		MaxRetries:       2,
		RetryBackoffBase: time.Millisecond,
		OnDrop:           func(s presence.Signal) { dropped = append(dropped, s) },
	}, transmitter, monitor)
	ctx := context.Background()

	// Initial attempt fails and queues the signal.
	assert.Equal(t, presence.Outcome{Queued: true}, d.Heartbeat(ctx, presence.StatusWorking, ""))
	assert.Equal(t, 1, transmitter.sendCount())

	// First drain attempt fails: retry count 1, slot kept.
	d.Flush(ctx)
	assert.Equal(t, 2, transmitter.sendCount())
	assert.Equal(t, 1, d.QueueLen())
	assert.Empty(t, dropped)

	// Second drain attempt reaches the ceiling: the slot is dropped.
	d.Flush(ctx)
	assert.Equal(t, 3, transmitter.sendCount())
	assert.Equal(t, 0, d.QueueLen())
	require.Len(t, dropped, 1)
	assert.Equal(t, presence.StatusWorking, dropped[0].Status)

	// No further attempts occur for the dropped signal.
	d.Flush(ctx)
	assert.Equal(t, 3, transmitter.sendCount())
}

func TestDispatcher_CapacityEvictsOldest(t *testing.T) {
	var dropped []presence.Signal
	transmitter := &mockTransmitter{}
	monitor := connectivity.NewManualMonitor(false)
	d := newTestDispatcher(t, presence.Config{
		MinSendInterval: time.Minute,
		MaxQueueSize:    2,
		OnDrop:          func(s presence.Signal) { dropped = append(dropped, s) },
	}, transmitter, monitor)
	ctx := context.Background()

	d.Heartbeat(ctx, presence.Status("a"), "")
	d.Heartbeat(ctx, presence.Status("b"), "")
	d.Heartbeat(ctx, presence.Status("c"), "")

	assert.Equal(t, 2, d.QueueLen())
	require.Len(t, dropped, 1)
	assert.Equal(t, presence.Status("a"), dropped[0].Status, "The oldest slot should be evicted")

	monitor.SetOnline(true)
	assert.Equal(t, []presence.Status{presence.Status("b"), presence.Status("c")}, transmitter.sentStatuses())
}

// scriptedTransmitter runs a per-call hook before reporting the outcome,
// letting tests hold a delivery in flight while the dispatcher state changes.
type scriptedTransmitter struct {
	mu     sync.Mutex
	sent   []presence.Signal
	script []func() error
}

func (s *scriptedTransmitter) Send(_ context.Context, signal presence.Signal) error {
	s.mu.Lock()
	index := len(s.sent)
	s.sent = append(s.sent, signal)
	s.mu.Unlock()

	if index < len(s.script) && s.script[index] != nil {
		return s.script[index]()
	}
	return nil
}

func (s *scriptedTransmitter) sentSignals() []presence.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]presence.Signal(nil), s.sent...)
}

func TestDispatcher_CoalescedPayloadDuringDrainIsNotLost(t *testing.T) {
	inFlight := make(chan struct{})
	release := make(chan struct{})
	transmitter := &scriptedTransmitter{
		script: []func() error{
			// First attempt fails so the signal lands in the queue.
			func() error { return errors.New("transmit failed") },
			// The drain's attempt signals entry and blocks until released.
			func() error {
				close(inFlight)
				<-release
				return nil
			},
		},
	}
	monitor := connectivity.NewManualMonitor(true)
	d := newTestDispatcher(t, presence.Config{
		MinSendInterval:  time.Minute,
		RetryBackoffBase: time.Millisecond,
	}, transmitter, monitor)
	ctx := context.Background()

	// Queue a slot for device dev-a via a failed online send.
	assert.Equal(t, presence.Outcome{Queued: true}, d.Heartbeat(ctx, presence.StatusWorking, "dev-a"))
	require.Equal(t, 1, d.QueueLen())

	// Start a drain; it blocks inside the transmitter with dev-a in flight.
	drained := make(chan struct{})
	go func() {
		d.Flush(ctx)
		close(drained)
	}()
	select {
	case <-inFlight:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the drain to reach the transmitter")
	}

	// While the send is in flight, go offline and coalesce a fresher payload
	// into the same slot.
	monitor.SetOnline(false)
	assert.Equal(t, presence.Outcome{Queued: true}, d.Heartbeat(ctx, presence.StatusWorking, "dev-b"))
	require.Equal(t, 1, d.QueueLen(), "The fresher same-status payload should coalesce, not append")

	// Let the in-flight send complete; the coalesced payload must survive it
	// and be transmitted on the drain's next iteration.
	close(release)
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the drain to finish")
	}

	assert.Equal(t, 0, d.QueueLen())
	sent := transmitter.sentSignals()
	require.Len(t, sent, 3)
	assert.Equal(t, "dev-a", sent[1].DeviceID)
	assert.Equal(t, "dev-b", sent[2].DeviceID, "The payload coalesced during the in-flight send must still be delivered")
}

func TestDispatcher_DeviceIDDefaultsAndOverrides(t *testing.T) {
	transmitter := &mockTransmitter{}
	monitor := connectivity.NewManualMonitor(true)
	d := newTestDispatcher(t, presence.Config{MinSendInterval: time.Minute}, transmitter, monitor)
	ctx := context.Background()

	require.NotEmpty(t, d.DeviceID(), "A device ID should be generated when none is configured")

	d.Heartbeat(ctx, presence.StatusWorking, "")
	d.Heartbeat(ctx, presence.StatusIdle, "laptop-2")

	transmitter.mu.Lock()
	defer transmitter.mu.Unlock()
	require.Len(t, transmitter.sent, 2)
	assert.Equal(t, d.DeviceID(), transmitter.sent[0].DeviceID)
	assert.Equal(t, "laptop-2", transmitter.sent[1].DeviceID)
}

func TestDispatcher_ConstructorValidation(t *testing.T) {
	monitor := connectivity.NewManualMonitor(true)

	_, err := presence.NewDispatcher(presence.Config{}, nil, monitor, zerolog.Nop())
	require.Error(t, err)

	_, err = presence.NewDispatcher(presence.Config{}, &mockTransmitter{}, nil, zerolog.Nop())
	require.Error(t, err)
}
