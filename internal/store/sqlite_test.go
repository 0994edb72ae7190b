package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
)

func newTestStore(t *testing.T) (*SQLiteStore, *clockwork.FakeClock) {
	t.Helper()
	clk := clockwork.NewFakeClockAt(time.Date(2025, 3, 3, 6, 0, 0, 0, time.UTC))
	s, err := NewSQLiteStore(t.Context(), ":memory:", WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, clk
}

func def(hour, minute int) alarm.Definition {
	return alarm.Definition{Hour: hour, Minute: minute, Enabled: true, TaskKind: alarm.TaskSteps}
}

func TestSQLiteStore_CRUD(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := t.Context()

	d := def(7, 30)
	d.RepeatDays = alarm.WorkingDays
	d.Label = "work"
	id, err := s.Insert(ctx, d)
	require.NoError(t, err)
	require.Positive(t, id)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 7, got.Hour)
	require.Equal(t, 30, got.Minute)
	require.Equal(t, alarm.WorkingDays, got.RepeatDays)
	require.Equal(t, "work", got.Label)
	require.True(t, got.Enabled)
	require.Equal(t, clk.Now().Unix(), got.CreatedAt.Unix())

	got.Hour = 8
	got.RepeatDays = 0
	got.TaskKind = alarm.TaskTimeDelay
	require.NoError(t, s.Update(ctx, got))
	got, err = s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 8, got.Hour)
	require.True(t, got.RepeatDays.Empty())
	require.Equal(t, alarm.TaskTimeDelay, got.TaskKind)

	require.NoError(t, s.SetEnabled(ctx, id, false))
	enabled, err := s.Enabled(ctx)
	require.NoError(t, err)
	require.Empty(t, enabled)

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Get(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, id), ErrNotFound)
	require.ErrorIs(t, s.SetEnabled(ctx, id, true), ErrNotFound)
}

func TestSQLiteStore_LimitReached(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := t.Context()

	for i := range MaxAlarms {
		_, err := s.Insert(ctx, def(6+i, 0))
		require.NoError(t, err)
	}

	_, err := s.Insert(ctx, def(10, 0))
	require.ErrorIs(t, err, ErrLimitReached)
	require.True(t, errors.HasCategory(err, errors.CategoryLimit))

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, MaxAlarms)

	// Disabled rows count against the ceiling too.
	require.NoError(t, s.SetEnabled(ctx, all[0].ID, false))
	_, err = s.Insert(ctx, def(11, 0))
	require.ErrorIs(t, err, ErrLimitReached)
}

func TestSQLiteStore_IDsNotReused(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := t.Context()

	first, err := s.Insert(ctx, def(6, 0))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, first))

	second, err := s.Insert(ctx, def(6, 0))
	require.NoError(t, err)
	require.Greater(t, second, first)
}

func TestSQLiteStore_RejectsInvalid(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Insert(t.Context(), alarm.Definition{Hour: 25, TaskKind: alarm.TaskSteps})
	require.ErrorIs(t, err, alarm.ErrInvalidDefinition)
}

func TestSQLiteStore_Watch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := t.Context()

	var allSeen, enabledSeen [][]alarm.Definition
	unsubAll := s.WatchAll(func(v []alarm.Definition) { allSeen = append(allSeen, v) })
	defer unsubAll()
	unsubEnabled := s.WatchEnabled(func(v []alarm.Definition) { enabledSeen = append(enabledSeen, v) })
	defer unsubEnabled()

	require.Len(t, allSeen, 1, "snapshot on subscribe")
	require.Empty(t, allSeen[0])

	id, err := s.Insert(ctx, def(7, 0))
	require.NoError(t, err)
	require.NoError(t, s.SetEnabled(ctx, id, false))

	require.Len(t, allSeen, 3)
	require.Len(t, allSeen[2], 1)
	require.False(t, allSeen[2][0].Enabled)
	require.Len(t, enabledSeen[1], 1)
	require.Empty(t, enabledSeen[2])
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alarms.db")
	s, err := NewSQLiteStore(t.Context(), path)
	require.NoError(t, err)
	id, err := s.Insert(t.Context(), def(5, 45))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(t.Context(), path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	got, err := s.Get(t.Context(), id)
	require.NoError(t, err)
	require.Equal(t, 45, got.Minute)
}

func TestSQLiteStore_Ledger(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := t.Context()
	at := time.Date(2025, 3, 3, 7, 0, 0, 0, time.UTC)

	handled, err := s.Handled(ctx, 1, at)
	require.NoError(t, err)
	require.False(t, handled)

	fresh, err := s.MarkHandled(ctx, 1, at)
	require.NoError(t, err)
	require.True(t, fresh)

	fresh, err = s.MarkHandled(ctx, 1, at)
	require.NoError(t, err)
	require.False(t, fresh)

	handled, err = s.Handled(ctx, 1, at)
	require.NoError(t, err)
	require.True(t, handled)

	other, err := s.Handled(ctx, 1, at.Add(5*time.Minute))
	require.NoError(t, err)
	require.False(t, other)

	clk.Advance(8 * 24 * time.Hour)
	n, err := s.PruneHandled(ctx, clk.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
