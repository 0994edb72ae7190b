package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/alarmd/internal/config"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	require.Equal(t, config.RetryBackoffLinear, p.Mode)
	require.Equal(t, time.Second, p.Initial)
	require.Equal(t, 30*time.Second, p.Max)
	require.Equal(t, 2, p.MaxRetries)
}

// Initial above max is clamped.
func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, 5*time.Second, 2*time.Second, 5)
	require.Equal(t, 2*time.Second, p.Initial)
	require.Equal(t, 2*time.Second, p.Max)
	require.Equal(t, config.RetryBackoffFixed, p.Mode)
	require.Equal(t, 5, p.MaxRetries)

	p = NewPolicy("bogus", 0, 0, -1)
	require.Equal(t, DefaultPolicy(), p)
}

func TestDelayModes(t *testing.T) {
	ms := time.Millisecond
	cases := []struct {
		name   string
		policy Policy
		want   []time.Duration // attempts 1..n
	}{
		{"fixed", NewPolicy(config.RetryBackoffFixed, 100*ms, 500*ms, 3), []time.Duration{100 * ms, 100 * ms, 100 * ms}},
		{"linear", NewPolicy(config.RetryBackoffLinear, 100*ms, 250*ms, 5), []time.Duration{100 * ms, 200 * ms, 250 * ms, 250 * ms}},
		{"exponential", NewPolicy(config.RetryBackoffExponential, 50*ms, 160*ms, 5), []time.Duration{50 * ms, 100 * ms, 160 * ms, 160 * ms}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i, want := range tc.want {
				require.Equal(t, want, tc.policy.Delay(i+1), "attempt %d", i+1)
			}
		})
	}

	require.Zero(t, DefaultPolicy().Delay(0))
	require.Zero(t, DefaultPolicy().Delay(-1))
	require.Equal(t, 30*time.Second, NewPolicy(config.RetryBackoffExponential, time.Second, 30*time.Second, 1).Delay(80))
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())
	require.Error(t, Policy{Initial: 0, Max: time.Second}.Validate())
	require.Error(t, Policy{Initial: time.Second, Max: 0}.Validate())
	require.Error(t, Policy{Initial: time.Second, Max: time.Second, MaxRetries: -1}.Validate())
}

func TestDo(t *testing.T) {
	fast := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 3)
	boom := stderrors.New("boom")

	t.Run("succeeds after failures", func(t *testing.T) {
		var attempts []int
		err := Do(t.Context(), fast, func(attempt int) error {
			attempts = append(attempts, attempt)
			if attempt < 3 {
				return boom
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, []int{1, 2, 3}, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := Do(t.Context(), fast, func(int) error { calls++; return boom })
		require.ErrorIs(t, err, boom)
		require.Equal(t, 4, calls)
	})

	t.Run("stops when context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		slow := NewPolicy(config.RetryBackoffFixed, time.Hour, time.Hour, 5)
		calls := 0
		err := Do(ctx, slow, func(int) error {
			calls++
			cancel()
			return boom
		})
		require.ErrorIs(t, err, context.Canceled)
		require.ErrorIs(t, err, boom)
		require.Equal(t, 1, calls)
	})
}
