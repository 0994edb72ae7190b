package store

import (
	"context"
	"time"
)

// MarkHandled inserts the (alarmID, scheduledFor) pair. It returns false when the pair
// was already present.
func (s *SQLiteStore) MarkHandled(ctx context.Context, alarmID int64, scheduledFor time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO handled_triggers (alarm_id, scheduled_for, handled_at) VALUES (?, ?, ?)",
		alarmID, scheduledFor.Unix(), s.clock.Now().Unix(),
	)
	if err != nil {
		return false, ErrWriteFailed.Wrap(err).WithContext("alarm_id", alarmID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, ErrWriteFailed.Wrap(err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) Handled(ctx context.Context, alarmID int64, scheduledFor time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM handled_triggers WHERE alarm_id = ? AND scheduled_for = ?",
		alarmID, scheduledFor.Unix(),
	).Scan(&n)
	if err != nil {
		return false, ErrQueryFailed.Wrap(err).WithContext("alarm_id", alarmID)
	}
	return n > 0, nil
}

// PruneHandled drops ledger rows handled before the cutoff.
func (s *SQLiteStore) PruneHandled(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM handled_triggers WHERE handled_at < ?", before.Unix())
	if err != nil {
		return 0, ErrWriteFailed.Wrap(err)
	}
	return res.RowsAffected()
}
