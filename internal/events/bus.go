package events

import (
	"context"
	"reflect"
	"sync"

	ferrors "git.home.luguber.info/inful/alarmd/internal/foundation/errors"
)

// Bus fans alarm lifecycle events out to in-process listeners: the SSE stream and the
// companion relay. Delivery is synchronous; a full listener holds up Publish until it
// drains or the publish context ends.
type Bus struct {
	mu     sync.RWMutex
	sinks  []sink
	lastID uint64
	closed bool
}

// sink is one listener as the bus sees it, independent of its element type.
type sink interface {
	id() uint64
	accepts(t reflect.Type) bool
	deliver(ctx context.Context, evt any) error
	shut()
}

func NewBus() *Bus { return &Bus{} }

type listener[T any] struct {
	key  uint64
	want reflect.Type
	ch   chan T
	gone chan struct{}

	// mu orders sends against close of ch.
	mu   sync.RWMutex
	once sync.Once
}

func (l *listener[T]) id() uint64 { return l.key }

func (l *listener[T]) accepts(t reflect.Type) bool {
	if t == l.want {
		return true
	}
	return l.want.Kind() == reflect.Interface && t.Implements(l.want)
}

func (l *listener[T]) deliver(ctx context.Context, evt any) error {
	v, ok := evt.(T)
	if !ok {
		return ferrors.InternalError("event type mismatch").
			WithContext("expected", l.want.String()).
			WithContext("actual", reflect.TypeOf(evt).String()).
			Build()
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	select {
	case <-l.gone:
		return nil
	default:
	}
	select {
	case l.ch <- v:
		return nil
	case <-l.gone:
		return nil
	case <-ctx.Done():
		return ferrors.WrapError(ctx.Err(), ferrors.CategoryRuntime, "event publish canceled").
			WithContext("event_type", l.want.String()).
			Build()
	}
}

// shut unblocks a pending deliver first, then closes ch once no send holds the lock.
func (l *listener[T]) shut() {
	l.once.Do(func() {
		close(l.gone)
		l.mu.Lock()
		close(l.ch)
		l.mu.Unlock()
	})
}

// Subscribe returns a channel of T events. An interface T also receives every event
// implementing it. The cancel func may run while a Publish to this channel is blocked.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	l := &listener[T]{
		want: reflect.TypeFor[T](),
		ch:   make(chan T, buffer),
		gone: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		l.shut()
		return l.ch, func() {}
	}
	b.lastID++
	l.key = b.lastID
	b.sinks = append(b.sinks, l)
	b.mu.Unlock()

	return l.ch, func() {
		b.remove(l.key)
		l.shut()
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.sinks {
		if s.id() == id {
			b.sinks = append(b.sinks[:i], b.sinks[i+1:]...)
			return
		}
	}
}

// SubscriberCount counts listeners subscribed with exactly T.
func SubscriberCount[T any](b *Bus) int {
	if b == nil {
		return 0
	}
	want := reflect.TypeFor[T]()
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.sinks {
		if l, ok := s.(*listener[T]); ok && l.want == want {
			n++
		}
	}
	return n
}

// Publish hands evt to every accepting listener in subscription order and stops at the
// first delivery error.
func (b *Bus) Publish(ctx context.Context, evt any) error {
	if evt == nil {
		return ferrors.ValidationError("event cannot be nil").Build()
	}
	t := reflect.TypeOf(evt)

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ferrors.DaemonError("event bus is closed").Build()
	}
	var targets []sink
	for _, s := range b.sinks {
		if s.accepts(t) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if err := s.deliver(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Close ends every subscription. Later Subscribe calls get a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	sinks := b.sinks
	b.sinks = nil
	b.mu.Unlock()

	for _, s := range sinks {
		s.shut()
	}
}
