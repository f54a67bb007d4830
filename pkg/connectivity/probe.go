package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Probe reports whether the remote service is currently reachable.
type Probe func(ctx context.Context) bool

// ProbeMonitorConfig holds configuration for the ProbeMonitor.
type ProbeMonitorConfig struct {
	// Interval is how often the probe runs.
	Interval time.Duration
	// ProbeTimeout bounds a single probe attempt.
	ProbeTimeout time.Duration
}

// ProbeMonitor derives connectivity state by polling a probe function on an
// interval. It fires registered handlers on every offline-to-online
// transition.
type ProbeMonitor struct {
	cfg    ProbeMonitorConfig
	probe  Probe
	logger zerolog.Logger

	mu       sync.Mutex
	online   bool
	handlers []func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProbeMonitor creates a new ProbeMonitor. The monitor starts offline and
// performs its first probe when Start is called.
func NewProbeMonitor(cfg ProbeMonitorConfig, probe Probe, logger zerolog.Logger) (*ProbeMonitor, error) {
	if probe == nil {
		return nil, fmt.Errorf("probe cannot be nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	return &ProbeMonitor{
		cfg:    cfg,
		probe:  probe,
		logger: logger.With().Str("component", "ProbeMonitor").Logger(),
	}, nil
}

// Start begins the polling loop. It probes once immediately so the state is
// populated before the first interval elapses.
func (m *ProbeMonitor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.check(runCtx)

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				m.check(runCtx)
			}
		}
	}()
}

// IsOnline reports the most recently probed state.
func (m *ProbeMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnOnline registers a transition handler.
func (m *ProbeMonitor) OnOnline(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// Close stops the polling loop and waits for it to exit.
func (m *ProbeMonitor) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	return nil
}

// check runs one probe and fires handlers if the service came back.
func (m *ProbeMonitor) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	up := m.probe(probeCtx)
	cancel()

	m.mu.Lock()
	transition := up && !m.online
	m.online = up
	handlers := make([]func(), len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	if !transition {
		return
	}
	m.logger.Info().Msg("Connectivity restored.")
	for _, handler := range handlers {
		handler()
	}
}

// HTTPProbe returns a Probe that issues a HEAD request against the given URL.
// Any 2xx-4xx response counts as reachable; only transport errors and 5xx
// responses count as down, since an authentication failure still proves the
// network path works.
func HTTPProbe(url string, client *http.Client) Probe {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode < http.StatusInternalServerError
	}
}
