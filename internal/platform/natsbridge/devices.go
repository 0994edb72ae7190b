package natsbridge

import (
	"encoding/json"
	"log/slog"

	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/logfields"
	"git.home.luguber.info/inful/alarmd/internal/platform"
)

// source is a sensor stream fed by companion messages on one subject.
type source[T any] struct {
	b       *Bridge
	subject string
	decode  func([]byte) (T, error)
}

func (s *source[T]) Available() bool { return s.b.t.Connected() }

func (s *source[T]) Subscribe(fn func(T)) (platform.Subscription, error) {
	if !s.Available() {
		return nil, platform.ErrUnavailable.WithContext("subject", s.subject)
	}
	sub, err := s.b.t.Subscribe(s.subject, func(data []byte) {
		v, err := s.decode(data)
		if err != nil {
			s.b.logger.Debug("Dropping malformed sensor sample", logfields.Subject(s.subject), logfields.Error(err))
			return
		}
		fn(v)
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.CategorySensor, "sensor subscription failed").
			WithContext("subject", s.subject).
			Build()
	}
	return sub, nil
}

// Sensors exposes the companion's step counter and accelerometer.
func (b *Bridge) Sensors() platform.Sensors {
	return platform.Sensors{
		Steps:       &source[platform.StepSample]{b: b, subject: b.subjects.Steps(), decode: decodeSteps},
		Orientation: &source[platform.OrientationSample]{b: b, subject: b.subjects.Orientation(), decode: decodeOrientation},
	}
}

func (b *Bridge) publishJSON(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to encode bridge message").Build()
	}
	if err := b.t.Publish(subject, data); err != nil {
		return errors.WrapError(err, errors.CategoryNetwork, "failed to publish bridge message").
			WithContext("subject", subject).
			Build()
	}
	return nil
}

// Vibrator drives the companion's vibration motor.
type Vibrator struct{ b *Bridge }

func (b *Bridge) Vibrator() *Vibrator { return &Vibrator{b: b} }

func (v *Vibrator) Vibrate(p platform.VibrationPattern, repeat bool) error {
	return v.b.publishJSON(v.b.subjects.Vibrate(), vibrateStart(p, repeat))
}

func (v *Vibrator) Stop() error {
	return v.b.publishJSON(v.b.subjects.Vibrate(), VibrateCommand{Action: "stop"})
}

// Presenter shows the ringing screen on the companion.
type Presenter struct{ b *Bridge }

func (b *Bridge) Presenter() *Presenter { return &Presenter{b: b} }

func (p *Presenter) ShowRinging(n platform.RingingNotice) error {
	cmd := RingingCommand{Action: "show", AlarmID: n.AlarmID, Label: n.Label, Time: n.Time, TaskKind: n.TaskKind}
	if err := p.b.publishJSON(p.b.subjects.Ringing(), cmd); err != nil {
		return err
	}
	p.b.logger.Debug("Ringing screen requested", logfields.AlarmID(n.AlarmID), slog.String("label", n.Label))
	return nil
}

func (p *Presenter) ClearRinging(id int64) error {
	return p.b.publishJSON(p.b.subjects.Ringing(), RingingCommand{Action: "clear", AlarmID: id})
}
