package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-resilience/pkg/connectivity"
	"github.com/rs/zerolog"
)

// Config holds configuration for a Dispatcher, fixed at construction.
type Config struct {
	// MinSendInterval is the window within which a repeat of the last
	// successfully transmitted status is throttled instead of sent.
	MinSendInterval time.Duration
	// MaxQueueSize caps the offline/retry queue; beyond it the oldest slot
	// is evicted, favouring recency over completeness.
	MaxQueueSize int
	// MaxRetries is the number of failed drain attempts before a queued
	// signal is dropped.
	MaxRetries int
	// RetryBackoffBase is multiplied by the slot's retry count to produce
	// the backoff delay between drain attempts.
	RetryBackoffBase time.Duration
	// DeviceID identifies this client in transmitted signals. A random ID
	// is generated when empty.
	DeviceID string
	// OnDrop, when set, is invoked for every signal lost to the retry
	// ceiling or to queue eviction. It exists for observability only; the
	// best-effort contract does not change.
	OnDrop func(Signal)
}

// slot is one undelivered signal waiting in the retry queue.
type slot struct {
	signal     Signal
	retryCount int
}

// Dispatcher is a throttled, offline-tolerant signal sender. Callers invoke
// Heartbeat as often as they like; the dispatcher bounds the network event
// rate, queues while offline and retries failed transmissions with bounded
// attempts. Queued state is process-memory only and is lost on restart.
type Dispatcher struct {
	cfg         Config
	transmitter Transmitter
	monitor     connectivity.Monitor
	logger      zerolog.Logger

	mu         sync.Mutex
	queue      []*slot
	lastStatus Status
	lastSentAt time.Time
	draining   bool
}

// NewDispatcher creates a Dispatcher and registers its drain trigger with the
// connectivity monitor. Registration happens exactly once per dispatcher;
// construct one dispatcher per process and share it.
func NewDispatcher(
	cfg Config,
	transmitter Transmitter,
	monitor connectivity.Monitor,
	logger zerolog.Logger,
) (*Dispatcher, error) {
	if transmitter == nil {
		return nil, fmt.Errorf("transmitter cannot be nil")
	}
	if monitor == nil {
		return nil, fmt.Errorf("connectivity monitor cannot be nil")
	}
	if cfg.MinSendInterval <= 0 {
		cfg.MinSendInterval = 30 * time.Second
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 10
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoffBase <= 0 {
		cfg.RetryBackoffBase = 2 * time.Second
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
	}

	d := &Dispatcher{
		cfg:         cfg,
		transmitter: transmitter,
		monitor:     monitor,
		logger:      logger.With().Str("component", "PresenceDispatcher").Str("device_id", cfg.DeviceID).Logger(),
	}
	monitor.OnOnline(func() {
		d.logger.Debug().Msg("Connectivity restored, draining presence queue.")
		d.drain(context.Background())
	})
	return d, nil
}

// Heartbeat reports the device's current status. An empty deviceID uses the
// configured one. The returned Outcome is the only caller-visible result;
// transmission failures are absorbed into the retry queue.
func (d *Dispatcher) Heartbeat(ctx context.Context, status Status, deviceID string) Outcome {
	if deviceID == "" {
		deviceID = d.cfg.DeviceID
	}
	signal := Signal{Status: status, DeviceID: deviceID}

	d.mu.Lock()
	throttled := status == d.lastStatus && time.Since(d.lastSentAt) < d.cfg.MinSendInterval
	d.mu.Unlock()
	if throttled {
		d.logger.Debug().Str("status", string(status)).Msg("Duplicate status inside send interval, throttled.")
		return Outcome{Sent: true, Throttled: true}
	}

	if !d.monitor.IsOnline() {
		d.enqueue(signal)
		d.logger.Debug().Str("status", string(status)).Msg("Offline, queued presence signal.")
		return Outcome{Queued: true}
	}

	if err := d.transmitter.Send(ctx, signal); err != nil {
		d.logger.Warn().Err(err).Str("status", string(status)).Msg("Presence send failed, queueing for retry.")
		d.enqueue(signal)
		return Outcome{Queued: true}
	}

	d.mu.Lock()
	d.lastStatus = status
	d.lastSentAt = time.Now()
	d.mu.Unlock()
	d.logger.Debug().Str("status", string(status)).Msg("Presence signal sent.")
	return Outcome{Sent: true}
}

// Flush forces one drain pass, used for best-effort delivery before the
// application is suspended. It returns once the pass completes or the
// context is cancelled during a retry backoff.
func (d *Dispatcher) Flush(ctx context.Context) {
	d.drain(ctx)
}

// QueueLen reports the number of undelivered signals currently queued.
func (d *Dispatcher) QueueLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// DeviceID returns the identifier this dispatcher stamps on signals when the
// caller does not supply one.
func (d *Dispatcher) DeviceID() string {
	return d.cfg.DeviceID
}

// enqueue adds a signal to the retry queue. A tail slot holding the same
// status is replaced in place with its retry count reset, so the queue never
// holds two consecutive slots for one status. Beyond capacity the oldest
// slot is evicted.
func (d *Dispatcher) enqueue(signal Signal) {
	var evicted *Signal

	d.mu.Lock()
	if n := len(d.queue); n > 0 && d.queue[n-1].signal.Status == signal.Status {
		d.queue[n-1].signal = signal
		d.queue[n-1].retryCount = 0
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, &slot{signal: signal})
	if len(d.queue) > d.cfg.MaxQueueSize {
		oldest := d.queue[0].signal
		evicted = &oldest
		d.queue = d.queue[1:]
	}
	d.mu.Unlock()

	if evicted != nil {
		d.logger.Warn().Str("status", string(evicted.Status)).Msg("Presence queue full, evicting oldest signal.")
		d.notifyDrop(*evicted)
	}
}

// drain delivers queued signals head-first while online. A boolean guard
// ensures only one pass runs at a time; a failed attempt backs off in
// proportion to the slot's retry count and ends the pass, leaving the slot
// at the head for the next trigger.
func (d *Dispatcher) drain(ctx context.Context) {
	d.mu.Lock()
	if d.draining || !d.monitor.IsOnline() {
		d.mu.Unlock()
		return
	}
	d.draining = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.draining = false
		d.mu.Unlock()
	}()

	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		head := d.queue[0]
		signal := head.signal
		d.mu.Unlock()

		err := d.transmitter.Send(ctx, signal)
		if err == nil {
			d.mu.Lock()
			d.lastStatus = signal.Status
			d.lastSentAt = time.Now()
			// A concurrent enqueue may have coalesced a fresh payload into
			// this slot while the send was in flight; only remove the slot if
			// it still holds the payload that was transmitted.
			if head.signal == signal {
				d.removeSlot(head)
			}
			d.mu.Unlock()
			d.logger.Debug().Str("status", string(signal.Status)).Msg("Queued presence signal delivered.")
			continue
		}

		d.mu.Lock()
		head.retryCount++
		retries := head.retryCount
		exhausted := retries >= d.cfg.MaxRetries
		if exhausted {
			d.removeSlot(head)
		}
		d.mu.Unlock()

		if exhausted {
			d.logger.Warn().Str("status", string(signal.Status)).Int("retries", retries).Msg("Dropping presence signal after exhausting retries.")
			d.notifyDrop(signal)
			continue
		}

		backoff := time.Duration(retries) * d.cfg.RetryBackoffBase
		d.logger.Debug().Err(err).Dur("backoff", backoff).Msg("Queued presence send failed, backing off.")
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		return
	}
}

// removeSlot must be called within a locked mutex. It tolerates the slot
// having been evicted by a concurrent enqueue.
func (d *Dispatcher) removeSlot(target *slot) {
	for i, s := range d.queue {
		if s == target {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			return
		}
	}
}

func (d *Dispatcher) notifyDrop(signal Signal) {
	if d.cfg.OnDrop != nil {
		d.cfg.OnDrop(signal)
	}
}
