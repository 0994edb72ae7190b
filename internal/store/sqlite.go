package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/events"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
)

// SQLiteStore implements Alarms and TriggerLedger on SQLite.
type SQLiteStore struct {
	db    *sql.DB
	mu    sync.RWMutex
	pubMu sync.Mutex // orders reload+notify so watchers never see an older list last
	clock clockwork.Clock

	all     *events.State[[]alarm.Definition]
	enabled *events.State[[]alarm.Definition]
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the clock used for creation and handled timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(s *SQLiteStore) { s.clock = c }
}

// NewSQLiteStore opens (and creates if needed) the alarm database.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(ctx context.Context, dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ErrOpenFailed.Wrap(err).WithContext("path", dbPath)
	}
	// One connection keeps ":memory:" databases shared and writes serialized.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:      db,
		clock:   clockwork.NewRealClock(),
		all:     events.NewState[[]alarm.Definition](nil),
		enabled: events.NewState[[]alarm.Definition](nil),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initialize(ctx); err != nil {
		_ = db.Close()
		return nil, ErrSchemaFailed.Wrap(err).WithContext("path", dbPath)
	}
	if err := s.publish(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize(ctx context.Context) error {
	schema := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS alarms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		hour INTEGER NOT NULL,
		minute INTEGER NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		repeat_days TEXT NOT NULL DEFAULT '',
		task_kind TEXT NOT NULL,
		sound_ref TEXT NOT NULL DEFAULT '',
		label TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS handled_triggers (
		alarm_id INTEGER NOT NULL,
		scheduled_for INTEGER NOT NULL,
		handled_at INTEGER NOT NULL,
		PRIMARY KEY (alarm_id, scheduled_for)
	);
	CREATE INDEX IF NOT EXISTS idx_handled_at ON handled_triggers(handled_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectAlarm = "SELECT id, hour, minute, enabled, repeat_days, task_kind, sound_ref, label, created_at FROM alarms"

// Get returns the alarm with id, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (alarm.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectAlarm+" WHERE id = ?", id)
	d, err := scanAlarm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return alarm.Definition{}, ErrNotFound.WithContext("id", id)
	}
	if err != nil {
		return alarm.Definition{}, ErrQueryFailed.Wrap(err).WithContext("id", id)
	}
	return d, nil
}

// All returns every alarm ordered by id.
func (s *SQLiteStore) All(ctx context.Context) ([]alarm.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(ctx, selectAlarm+" ORDER BY id")
}

// Enabled returns the enabled alarms ordered by id.
func (s *SQLiteStore) Enabled(ctx context.Context) ([]alarm.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(ctx, selectAlarm+" WHERE enabled = 1 ORDER BY id")
}

func (s *SQLiteStore) list(ctx context.Context, query string) ([]alarm.Definition, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, ErrQueryFailed.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var out []alarm.Definition
	for rows.Next() {
		d, err := scanAlarm(rows)
		if err != nil {
			return nil, ErrQueryFailed.Wrap(err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrQueryFailed.Wrap(err)
	}
	return out, nil
}

// Insert stores d under a fresh id. The ID field of d is ignored.
// It fails with ErrLimitReached once MaxAlarms rows exist.
func (s *SQLiteStore) Insert(ctx context.Context, d alarm.Definition) (int64, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	id, err := s.insertLocked(ctx, d)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return id, s.publish(ctx)
}

func (s *SQLiteStore) insertLocked(ctx context.Context, d alarm.Definition) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, ErrWriteFailed.Wrap(err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM alarms").Scan(&count); err != nil {
		return 0, ErrQueryFailed.Wrap(err)
	}
	if count >= MaxAlarms {
		return 0, ErrLimitReached
	}

	created := d.CreatedAt
	if created.IsZero() {
		created = s.clock.Now()
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO alarms (hour, minute, enabled, repeat_days, task_kind, sound_ref, label, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		d.Hour, d.Minute, d.Enabled, d.RepeatDays.String(), string(d.TaskKind), d.SoundRef, d.Label, created.Unix(),
	)
	if err != nil {
		return 0, ErrWriteFailed.Wrap(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, ErrWriteFailed.Wrap(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, ErrWriteFailed.Wrap(err)
	}
	return id, nil
}

// Update replaces every mutable field of the row with d.ID.
func (s *SQLiteStore) Update(ctx context.Context, d alarm.Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return s.mutate(ctx, d.ID,
		"UPDATE alarms SET hour = ?, minute = ?, enabled = ?, repeat_days = ?, task_kind = ?, sound_ref = ?, label = ? WHERE id = ?",
		d.Hour, d.Minute, d.Enabled, d.RepeatDays.String(), string(d.TaskKind), d.SoundRef, d.Label, d.ID,
	)
}

// SetEnabled toggles only the enabled flag.
func (s *SQLiteStore) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	return s.mutate(ctx, id, "UPDATE alarms SET enabled = ? WHERE id = ?", enabled, id)
}

// Delete removes the row. Deleting an unknown id returns ErrNotFound.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	return s.mutate(ctx, id, "DELETE FROM alarms WHERE id = ?", id)
}

func (s *SQLiteStore) mutate(ctx context.Context, id int64, query string, args ...any) error {
	s.mu.Lock()
	res, err := s.db.ExecContext(ctx, query, args...)
	s.mu.Unlock()
	if err != nil {
		return ErrWriteFailed.Wrap(err).WithContext("id", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound.WithContext("id", id)
	}
	return s.publish(ctx)
}

// publish reloads both lists and pushes them to watchers.
func (s *SQLiteStore) publish(ctx context.Context) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	all, err := s.All(ctx)
	if err != nil {
		return err
	}
	enabled := make([]alarm.Definition, 0, len(all))
	for _, d := range all {
		if d.Enabled {
			enabled = append(enabled, d)
		}
	}
	s.all.Set(all)
	s.enabled.Set(enabled)
	return nil
}

func (s *SQLiteStore) WatchAll(fn func([]alarm.Definition)) func() {
	return s.all.Subscribe(fn)
}

func (s *SQLiteStore) WatchEnabled(fn func([]alarm.Definition)) func() {
	return s.enabled.Subscribe(fn)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlarm(row scanner) (alarm.Definition, error) {
	var (
		d       alarm.Definition
		days    string
		kind    string
		created int64
	)
	if err := row.Scan(&d.ID, &d.Hour, &d.Minute, &d.Enabled, &days, &kind, &d.SoundRef, &d.Label, &created); err != nil {
		return d, err
	}
	w, err := alarm.ParseWeekdays(days)
	if err != nil {
		return d, err
	}
	d.RepeatDays = w
	d.TaskKind = alarm.TaskKind(kind)
	d.CreatedAt = time.Unix(created, 0)
	return d, nil
}
