// Package platformtest provides in-memory platform backends for tests.
package platformtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"git.home.luguber.info/inful/alarmd/internal/platform"
)

// Wakeups records registrations in a map keyed by alarm id.
type Wakeups struct {
	mu        sync.Mutex
	permitted bool
	pending   map[int64]time.Time
	calls     int
	Err       error // returned by the next ScheduleExactAt when set
}

func NewWakeups() *Wakeups {
	return &Wakeups{permitted: true, pending: make(map[int64]time.Time)}
}

func (w *Wakeups) SetPermitted(ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.permitted = ok
}

func (w *Wakeups) CanScheduleExact() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.permitted
}

func (w *Wakeups) ScheduleExactAt(_ context.Context, id int64, at time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.Err != nil {
		err := w.Err
		w.Err = nil
		return err
	}
	if !w.permitted {
		return platform.ErrPermissionDenied
	}
	w.pending[id] = at
	return nil
}

func (w *Wakeups) Cancel(_ context.Context, id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, id)
	return nil
}

// Pending returns the registered instant for id.
func (w *Wakeups) Pending(id int64) (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	at, ok := w.pending[id]
	return at, ok
}

// IDs lists registered alarm ids in ascending order.
func (w *Wakeups) IDs() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]int64, 0, len(w.pending))
	for id := range w.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (w *Wakeups) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

// Sound records playback requests. Refs listed in Invalid fail to play;
// FailDefault makes the default sound fail as well.
type Sound struct {
	mu          sync.Mutex
	Invalid     map[string]bool
	FailDefault bool
	played      []string
	active      int
}

func NewSound() *Sound { return &Sound{Invalid: map[string]bool{}} }

func (s *Sound) PlayLooping(ref string) (platform.Playback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if (ref == "" && s.FailDefault) || (ref != "" && s.Invalid[ref]) {
		return nil, platform.ErrUnavailable
	}
	s.played = append(s.played, ref)
	s.active++
	return &playback{s: s}, nil
}

// Played lists refs that started, "" for the default sound.
func (s *Sound) Played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.played...)
}

// Active is the number of playbacks not yet stopped.
func (s *Sound) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

type playback struct {
	s    *Sound
	once sync.Once
}

func (p *playback) Stop() {
	p.once.Do(func() {
		p.s.mu.Lock()
		p.s.active--
		p.s.mu.Unlock()
	})
}

// Vibrator tracks whether it is currently vibrating.
type Vibrator struct {
	mu      sync.Mutex
	running bool
	starts  int
	pattern platform.VibrationPattern
}

func (v *Vibrator) Vibrate(p platform.VibrationPattern, _ bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.running = true
	v.starts++
	v.pattern = p
	return nil
}

func (v *Vibrator) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.running = false
	return nil
}

func (v *Vibrator) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

func (v *Vibrator) Starts() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.starts
}

// Presenter records what is on screen.
type Presenter struct {
	mu      sync.Mutex
	showing map[int64]platform.RingingNotice
	shows   int
}

func NewPresenter() *Presenter {
	return &Presenter{showing: make(map[int64]platform.RingingNotice)}
}

func (p *Presenter) ShowRinging(n platform.RingingNotice) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.showing[n.AlarmID] = n
	p.shows++
	return nil
}

func (p *Presenter) ClearRinging(id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.showing, id)
	return nil
}

func (p *Presenter) Showing() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]int64, 0, len(p.showing))
	for id := range p.showing {
		ids = append(ids, id)
	}
	return ids
}

func (p *Presenter) Shows() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shows
}

// Source is a push-driven sensor: tests call Emit to deliver a sample to every listener.
type Source[T any] struct {
	mu        sync.Mutex
	available bool
	nextID    int
	listeners map[int]func(T)
}

func NewSource[T any](available bool) *Source[T] {
	return &Source[T]{available: available, listeners: make(map[int]func(T))}
}

func (s *Source[T]) Available() bool { return s.available }

func (s *Source[T]) Subscribe(fn func(T)) (platform.Subscription, error) {
	if !s.available {
		return nil, platform.ErrUnavailable
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return platform.SubscriptionFunc(func() error {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
		return nil
	}), nil
}

// Emit delivers v synchronously.
func (s *Source[T]) Emit(v T) {
	s.mu.Lock()
	fns := make([]func(T), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// Listeners is the number of open subscriptions.
func (s *Source[T]) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}
