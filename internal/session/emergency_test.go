package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmergencyStop(t *testing.T) {
	start := time.Date(2025, 3, 3, 7, 0, 0, 0, time.UTC)

	t.Run("five quick taps fire", func(t *testing.T) {
		e := NewEmergencyStop()
		for i := 1; i <= 4; i++ {
			n, fired := e.Tap(start.Add(time.Duration(i) * 300 * time.Millisecond))
			require.Equal(t, i, n)
			require.False(t, fired)
		}
		_, fired := e.Tap(start.Add(1500 * time.Millisecond))
		require.True(t, fired)
		require.Equal(t, 5, e.Remaining())
	})

	t.Run("gap longer than timeout restarts at one", func(t *testing.T) {
		e := NewEmergencyStop()
		at := start
		for range 4 {
			at = at.Add(200 * time.Millisecond)
			e.Tap(at)
		}
		n, fired := e.Tap(at.Add(2001 * time.Millisecond))
		require.Equal(t, 1, n)
		require.False(t, fired)
		require.Equal(t, 4, e.Remaining())
	})

	t.Run("exactly the timeout still counts", func(t *testing.T) {
		e := NewEmergencyStop()
		e.Tap(start)
		n, _ := e.Tap(start.Add(EmergencyTimeout))
		require.Equal(t, 2, n)
	})

	t.Run("tap after firing starts over", func(t *testing.T) {
		e := NewEmergencyStop()
		at := start
		for range 5 {
			at = at.Add(100 * time.Millisecond)
			e.Tap(at)
		}
		n, fired := e.Tap(at.Add(3 * time.Second))
		require.Equal(t, 1, n)
		require.False(t, fired)
	})
}

func TestVisibility(t *testing.T) {
	v := NewVisibility()
	var seen []bool
	unsubscribe := v.Watch(func(b bool) { seen = append(seen, b) })
	defer unsubscribe()

	v.SetVisible(true)
	v.SetVisible(true)
	v.SetVisible(false)
	require.Equal(t, []bool{false, true, false}, seen)
	require.False(t, v.Visible())
}
