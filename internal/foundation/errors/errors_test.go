package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifiedError(t *testing.T) {
	t.Run("builder fields", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			Fatal().
			WithContext("file", "alarmd.yaml").
			Build()

		require.Equal(t, CategoryConfig, err.Category())
		require.Equal(t, SeverityFatal, err.Severity())
		require.Equal(t, "invalid configuration", err.Message())
		file, ok := err.Context().GetString("file")
		require.True(t, ok)
		require.Equal(t, "alarmd.yaml", file)
	})

	t.Run("sentinel matches through fmt wrapping", func(t *testing.T) {
		sentinel := LimitError("alarm limit reached").Build()
		wrapped := fmt.Errorf("insert: %w", sentinel.WithContext("count", 3))

		require.ErrorIs(t, wrapped, sentinel)
		require.True(t, HasCategory(wrapped, CategoryLimit))
		require.Equal(t, CategoryLimit, GetCategory(wrapped))
	})

	t.Run("wrap keeps cause reachable", func(t *testing.T) {
		cause := stderrors.New("disk full")
		sentinel := StoreError("write failed").Build()
		err := sentinel.Wrap(cause)

		require.ErrorIs(t, err, sentinel)
		require.ErrorIs(t, err, cause)
		require.Nil(t, sentinel.Cause(), "sentinel must stay untouched")
		require.True(t, err.CanRetry())
	})

	t.Run("unclassified defaults", func(t *testing.T) {
		err := stderrors.New("plain")
		require.Equal(t, CategoryInternal, GetCategory(err))
		require.Equal(t, SeverityError, GetSeverity(err))
	})

	t.Run("permission is user action", func(t *testing.T) {
		err := PermissionError("exact alarms not permitted").Build()
		require.False(t, err.CanRetry())
		require.Equal(t, RetryUserAction, err.RetryStrategy())
	})
}

func TestErrorContextMergeDoesNotAlias(t *testing.T) {
	base := ErrorContext{"a": 1}
	merged := base.Merge(ErrorContext{"b": 2})
	merged["c"] = 3

	require.Len(t, base, 1)
	require.Len(t, merged, 3)
}
