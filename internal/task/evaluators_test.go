package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/alarmd/internal/platform"
)

func TestStepCounter(t *testing.T) {
	t.Run("baseline is first reading", func(t *testing.T) {
		c := &StepCounter{Target: 30}
		p := c.Observe(platform.StepSample{Count: 1000})
		require.Zero(t, p.Fraction)
		require.False(t, p.Complete)

		p = c.Observe(platform.StepSample{Count: 1029})
		require.False(t, p.Complete)
		require.InDelta(t, 29.0/30.0, p.Fraction, 1e-9)

		p = c.Observe(platform.StepSample{Count: 1030})
		require.True(t, p.Complete)
		require.Equal(t, 1.0, p.Fraction)
	})

	t.Run("overshoot is capped", func(t *testing.T) {
		c := &StepCounter{Target: 10}
		c.Observe(platform.StepSample{Count: 5})
		p := c.Observe(platform.StepSample{Count: 50})
		require.Equal(t, 1.0, p.Fraction)
		require.Equal(t, int64(10), p.Current)
		require.True(t, p.Complete)
	})

	t.Run("counter reset never goes negative", func(t *testing.T) {
		c := &StepCounter{Target: 10}
		c.Observe(platform.StepSample{Count: 500})
		p := c.Observe(platform.StepSample{Count: 2})
		require.Zero(t, p.Fraction)
		require.False(t, p.Complete)
	})
}

func TestIsVertical(t *testing.T) {
	require.True(t, IsVertical(platform.OrientationSample{X: 0.5, Y: -1, Z: 9.7}))
	require.True(t, IsVertical(platform.OrientationSample{X: 0, Y: 0, Z: -9.8}))
	require.False(t, IsVertical(platform.OrientationSample{X: 0, Y: 0, Z: 8.0}))
	require.False(t, IsVertical(platform.OrientationSample{X: 3.0, Y: 0, Z: 9.8}))
	require.False(t, IsVertical(platform.OrientationSample{X: 0, Y: 9.8, Z: 1}))
}

func TestHoldTimer(t *testing.T) {
	up := platform.OrientationSample{Z: 9.8}
	flat := platform.OrientationSample{Y: 9.8}
	start := time.Date(2025, 3, 3, 7, 0, 0, 0, time.UTC)

	h := &HoldTimer{Target: 3}
	h.Start(start)

	p := h.Observe(up, start.Add(500*time.Millisecond))
	require.Equal(t, int64(0), p.Current, "half a second earns nothing")

	p = h.Observe(up, start.Add(time.Second))
	require.Equal(t, int64(1), p.Current)

	p = h.Observe(up, start.Add(2*time.Second))
	require.Equal(t, int64(2), p.Current)

	p = h.Observe(flat, start.Add(2500*time.Millisecond))
	require.Equal(t, int64(0), p.Current, "strict reset")
	require.False(t, p.Complete)

	for i := 1; i <= 3; i++ {
		p = h.Observe(up, start.Add(2500*time.Millisecond+time.Duration(i)*time.Second))
	}
	require.True(t, p.Complete)
	require.Equal(t, 1.0, p.Fraction)
}

func TestCountdown(t *testing.T) {
	c := &Countdown{Target: 15}
	require.Zero(t, c.Current().Fraction)
	var p Progress
	for range 14 {
		p = c.Tick()
	}
	require.False(t, p.Complete)
	p = c.Tick()
	require.True(t, p.Complete)
	require.Equal(t, int64(15), p.Current)
}
