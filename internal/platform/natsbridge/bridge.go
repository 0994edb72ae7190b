// Package natsbridge connects the alarm core to a companion device over NATS.
//
// The companion publishes step counter and accelerometer readings and receives vibration
// and ringing-screen commands. Wake-up triggers, the boot signal and visibility changes
// can also arrive over NATS; lifecycle events and the next-alarm indicator are relayed out.
package natsbridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/logfields"
	"git.home.luguber.info/inful/alarmd/internal/platform"
	"git.home.luguber.info/inful/alarmd/internal/retry"
)

var ErrConnectFailed = errors.NetworkError("failed to connect to NATS").Build()

// Subjects derives every subject from one prefix.
type Subjects struct{ Prefix string }

func (s Subjects) Steps() string       { return s.Prefix + ".sensor.steps" }
func (s Subjects) Orientation() string { return s.Prefix + ".sensor.orientation" }
func (s Subjects) Vibrate() string     { return s.Prefix + ".device.vibrate" }
func (s Subjects) Ringing() string     { return s.Prefix + ".device.ringing" }
func (s Subjects) Visibility() string  { return s.Prefix + ".device.visibility" }
func (s Subjects) Trigger() string     { return s.Prefix + ".trigger" }
func (s Subjects) Boot() string        { return s.Prefix + ".boot" }
func (s Subjects) Next() string        { return s.Prefix + ".next" }
func (s Subjects) Events() string      { return s.Prefix + ".events" }

// transport is the slice of a NATS connection the bridge uses.
type transport interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, fn func(data []byte)) (platform.Subscription, error)
	Connected() bool
	Close() error
}

type natsTransport struct{ nc *nats.Conn }

func (t natsTransport) Publish(subject string, data []byte) error { return t.nc.Publish(subject, data) }

func (t natsTransport) Subscribe(subject string, fn func([]byte)) (platform.Subscription, error) {
	sub, err := t.nc.Subscribe(subject, func(m *nats.Msg) { fn(m.Data) })
	if err != nil {
		return nil, err
	}
	return platform.SubscriptionFunc(sub.Unsubscribe), nil
}

func (t natsTransport) Connected() bool { return t.nc.IsConnected() }

func (t natsTransport) Close() error { return t.nc.Drain() }

// Bridge owns the NATS connection.
type Bridge struct {
	t        transport
	subjects Subjects
	logger   *slog.Logger
}

// Config holds connection parameters.
type Config struct {
	URL           string
	SubjectPrefix string
	Policy        retry.Policy
}

// Connect dials NATS, retrying with cfg.Policy. The connection reconnects on its own
// once established.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name("alarmd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}

	var nc *nats.Conn
	err := retry.Do(ctx, cfg.Policy, func(attempt int) error {
		var err error
		nc, err = nats.Connect(cfg.URL, opts...)
		if err != nil {
			logger.Warn("NATS connect attempt failed", slog.Int("attempt", attempt), logfields.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, ErrConnectFailed.Wrap(err).WithContext("url", cfg.URL)
	}

	logger.Info("NATS bridge connected", slog.String("url", cfg.URL), logfields.Subject(cfg.SubjectPrefix+".>"))
	return newBridge(natsTransport{nc: nc}, cfg.SubjectPrefix, logger), nil
}

func newBridge(t transport, prefix string, logger *slog.Logger) *Bridge {
	if prefix == "" {
		prefix = "alarmd"
	}
	return &Bridge{t: t, subjects: Subjects{Prefix: prefix}, logger: logger}
}

func (b *Bridge) Subjects() Subjects { return b.subjects }

// Close drains the connection.
func (b *Bridge) Close() error { return b.t.Close() }

// Connected reports whether the broker connection is currently up.
func (b *Bridge) Connected() bool { return b.t.Connected() }
