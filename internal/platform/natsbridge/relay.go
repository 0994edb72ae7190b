package natsbridge

import (
	"context"
	"sync"
	"time"

	"git.home.luguber.info/inful/alarmd/internal/events"
	"git.home.luguber.info/inful/alarmd/internal/logfields"
	"git.home.luguber.info/inful/alarmd/internal/platform"
)

// Inbound are the handlers for signals arriving from NATS. Nil handlers are not subscribed.
type Inbound struct {
	Trigger    platform.TriggerFunc
	Boot       func()
	Visibility func(visible bool)
}

// Serve subscribes the inbound handlers. Close the returned subscription to stop.
func (b *Bridge) Serve(in Inbound) (platform.Subscription, error) {
	var subs []platform.Subscription
	closeAll := func() error {
		for _, s := range subs {
			_ = s.Close()
		}
		return nil
	}
	add := func(subject string, fn func([]byte)) error {
		sub, err := b.t.Subscribe(subject, fn)
		if err != nil {
			return err
		}
		subs = append(subs, sub)
		return nil
	}

	if in.Trigger != nil {
		err := add(b.subjects.Trigger(), func(data []byte) {
			trig, err := decodeTrigger(data)
			if err != nil {
				b.logger.Warn("Ignoring malformed trigger", logfields.Subject(b.subjects.Trigger()), logfields.Error(err))
				return
			}
			in.Trigger(trig)
		})
		if err != nil {
			_ = closeAll()
			return nil, err
		}
	}
	if in.Boot != nil {
		if err := add(b.subjects.Boot(), func([]byte) { in.Boot() }); err != nil {
			_ = closeAll()
			return nil, err
		}
	}
	if in.Visibility != nil {
		err := add(b.subjects.Visibility(), func(data []byte) {
			visible, err := decodeVisibility(data)
			if err != nil {
				b.logger.Warn("Ignoring malformed visibility update", logfields.Error(err))
				return
			}
			in.Visibility(visible)
		})
		if err != nil {
			_ = closeAll()
			return nil, err
		}
	}
	return platform.SubscriptionFunc(closeAll), nil
}

// PublishNext announces the next pending wake-up; the zero time clears it.
func (b *Bridge) PublishNext(alarmID int64, at time.Time) error {
	msg := NextMessage{TriggerAt: at}
	if !at.IsZero() {
		msg.AlarmID = alarmID
	}
	return b.publishJSON(b.subjects.Next(), msg)
}

// RelayEvents forwards lifecycle events from bus to <prefix>.events until ctx ends.
func (b *Bridge) RelayEvents(ctx context.Context, bus *events.Bus) {
	var wg sync.WaitGroup
	wg.Add(4)
	go relay[events.SessionStarted](ctx, &wg, b, bus)
	go relay[events.SessionEnded](ctx, &wg, b, bus)
	go relay[events.DispatchAborted](ctx, &wg, b, bus)
	go relay[events.AlarmsChanged](ctx, &wg, b, bus)
	wg.Wait()
}

func relay[T events.Event](ctx context.Context, wg *sync.WaitGroup, b *Bridge, bus *events.Bus) {
	defer wg.Done()
	ch, unsubscribe := events.Subscribe[T](bus, 16)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := b.publishJSON(b.subjects.Events(), EventMessage{Name: evt.EventName(), Data: evt}); err != nil {
				b.logger.Warn("Lifecycle event not relayed", logfields.Error(err))
			}
		}
	}
}
