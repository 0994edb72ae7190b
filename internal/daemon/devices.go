package daemon

import (
	"log/slog"

	"git.home.luguber.info/inful/alarmd/internal/logfields"
	"git.home.luguber.info/inful/alarmd/internal/platform"
)

// headlessVibrator stands in when no companion device is attached. The ringing
// session still tracks vibration state; the pattern only reaches the log.
type headlessVibrator struct{ logger *slog.Logger }

func (v headlessVibrator) Vibrate(p platform.VibrationPattern, repeat bool) error {
	v.logger.Debug("Vibration requested without a device", slog.Int("segments", len(p)), slog.Bool("repeat", repeat))
	return nil
}

func (v headlessVibrator) Stop() error { return nil }

// headlessPresenter logs the ringing surface instead of drawing it.
type headlessPresenter struct{ logger *slog.Logger }

func (p headlessPresenter) ShowRinging(n platform.RingingNotice) error {
	p.logger.Info("Alarm ringing", logfields.AlarmID(n.AlarmID),
		slog.String("time", n.Time), slog.String("label", n.Label), logfields.TaskKind(n.TaskKind))
	return nil
}

func (p headlessPresenter) ClearRinging(id int64) error {
	p.logger.Debug("Ringing surface cleared", logfields.AlarmID(id))
	return nil
}
