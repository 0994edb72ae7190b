package events

import (
	"sync"
	"sync/atomic"
)

// State is a single-writer broadcast value. Observers get the current snapshot
// synchronously on Subscribe and every later value pushed by Set, in order.
//
// Callbacks run on the writer's goroutine, outside the state lock, so they may call
// Get but must not call Set or Subscribe on the same State.
type State[T any] struct {
	value atomic.Pointer[T]

	writeMu sync.Mutex // serializes Set so observers see values in write order

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]func(T)
}

func NewState[T any](initial T) *State[T] {
	s := &State[T]{subs: make(map[uint64]func(T))}
	s.value.Store(&initial)
	return s
}

// Get returns the current snapshot without blocking writers.
func (s *State[T]) Get() T {
	return *s.value.Load()
}

// Set replaces the value and notifies observers.
func (s *State[T]) Set(v T) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.value.Store(&v)
	for _, fn := range s.observers() {
		fn(v)
	}
}

// Update applies fn to the current value under the writer lock.
func (s *State[T]) Update(fn func(T) T) T {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	v := fn(*s.value.Load())
	s.value.Store(&v)
	for _, obs := range s.observers() {
		obs(v)
	}
	return v
}

// Subscribe registers fn and immediately calls it with the current value.
// The returned function unregisters fn.
func (s *State[T]) Subscribe(fn func(T)) func() {
	s.writeMu.Lock()
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	fn(*s.value.Load())
	s.writeMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *State[T]) observers() []func(T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}
