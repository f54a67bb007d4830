package connectivity_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-resilience/pkg/connectivity"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualMonitor(t *testing.T) {
	t.Run("Handlers fire only on offline-to-online transitions", func(t *testing.T) {
		monitor := connectivity.NewManualMonitor(false)
		var fired atomic.Int32
		monitor.OnOnline(func() { fired.Add(1) })

		assert.False(t, monitor.IsOnline())

		monitor.SetOnline(true)
		assert.True(t, monitor.IsOnline())
		assert.Equal(t, int32(1), fired.Load())

		// Setting online again is not a transition.
		monitor.SetOnline(true)
		assert.Equal(t, int32(1), fired.Load())

		monitor.SetOnline(false)
		assert.Equal(t, int32(1), fired.Load(), "Going offline should not fire the handler")

		monitor.SetOnline(true)
		assert.Equal(t, int32(2), fired.Load())
	})

	t.Run("Starting online does not fire handlers", func(t *testing.T) {
		monitor := connectivity.NewManualMonitor(true)
		var fired atomic.Int32
		monitor.OnOnline(func() { fired.Add(1) })

		monitor.SetOnline(true)
		assert.Equal(t, int32(0), fired.Load())
	})
}

func TestProbeMonitor(t *testing.T) {
	t.Run("Detects recovery and fires handler", func(t *testing.T) {
		var up atomic.Bool
		probe := func(_ context.Context) bool { return up.Load() }

		monitor, err := connectivity.NewProbeMonitor(connectivity.ProbeMonitorConfig{
			Interval:     10 * time.Millisecond,
			ProbeTimeout: 10 * time.Millisecond,
		}, probe, zerolog.Nop())
		require.NoError(t, err)

		var fired atomic.Int32
		monitor.OnOnline(func() { fired.Add(1) })

		monitor.Start(context.Background())
		defer func() { _ = monitor.Close() }()

		assert.False(t, monitor.IsOnline())

		up.Store(true)
		assert.Eventually(t, func() bool {
			return monitor.IsOnline() && fired.Load() == 1
		}, time.Second, 5*time.Millisecond)

		up.Store(false)
		assert.Eventually(t, func() bool {
			return !monitor.IsOnline()
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, int32(1), fired.Load())
	})

	t.Run("Nil probe is rejected", func(t *testing.T) {
		_, err := connectivity.NewProbeMonitor(connectivity.ProbeMonitorConfig{}, nil, zerolog.Nop())
		require.Error(t, err)
	})
}
