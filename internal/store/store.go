// Package store persists alarm definitions and the ledger of handled triggers.
package store

import (
	"context"
	"time"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
)

// MaxAlarms is the hard ceiling on stored alarm rows, enabled or not.
const MaxAlarms = 3

var (
	// ErrNotFound is returned when no alarm row has the requested id.
	ErrNotFound = errors.NotFoundError("alarm not found").Build()

	// ErrLimitReached is returned by Insert when MaxAlarms rows already exist.
	ErrLimitReached = errors.LimitError("alarm limit reached").
			WithContext("max", MaxAlarms).
			Build()

	ErrOpenFailed   = errors.StoreError("could not open alarm database").Fatal().Build()
	ErrSchemaFailed = errors.StoreError("failed to initialize alarm schema").Fatal().Build()
	ErrQueryFailed  = errors.StoreError("alarm query failed").Build()
	ErrWriteFailed  = errors.StoreError("alarm write failed").Build()
)

// Alarms is the alarm record store contract used by the scheduler, the dispatcher
// and the ringing session.
type Alarms interface {
	Get(ctx context.Context, id int64) (alarm.Definition, error)
	All(ctx context.Context) ([]alarm.Definition, error)
	Enabled(ctx context.Context) ([]alarm.Definition, error)
	Insert(ctx context.Context, d alarm.Definition) (int64, error)
	Update(ctx context.Context, d alarm.Definition) error
	SetEnabled(ctx context.Context, id int64, enabled bool) error
	Delete(ctx context.Context, id int64) error

	// WatchAll and WatchEnabled call fn with the current list right away and
	// again after every committed mutation.
	WatchAll(fn func([]alarm.Definition)) (unsubscribe func())
	WatchEnabled(fn func([]alarm.Definition)) (unsubscribe func())
}

// TriggerLedger remembers which (alarm, scheduled instant) pairs already ran to completion,
// so a re-delivered wake-up cannot start a second session.
type TriggerLedger interface {
	// MarkHandled records the trigger and reports whether it was new.
	MarkHandled(ctx context.Context, alarmID int64, scheduledFor time.Time) (bool, error)
	Handled(ctx context.Context, alarmID int64, scheduledFor time.Time) (bool, error)
	PruneHandled(ctx context.Context, before time.Time) (int64, error)
}
