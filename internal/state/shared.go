package state

import "sync"

// Shared is the handle passed to every goroutine that needs a Manager.
// All access is serialized through one mutex; never copy the Manager out.
type Shared[C any] struct {
	mu sync.Mutex
	m  *Manager[C]
}

// NewShared wraps m.
func NewShared[C any](m *Manager[C]) *Shared[C] {
	return &Shared[C]{m: m}
}

// With runs fn while holding the lock.
func (s *Shared[C]) With(fn func(m *Manager[C]) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.m)
}

// State returns the current value.
func (s *Shared[C]) State() C {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.State()
}

// Update calls Manager.UpdateState under the lock.
func (s *Shared[C]) Update(f func(C) C) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.UpdateState(f)
}

// Set calls Manager.SetState under the lock.
func (s *Shared[C]) Set(v C) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.SetState(v)
}

// Subscribe registers f under the lock. Subscribers run while the lock is
// held and must not call back into s.
func (s *Shared[C]) Subscribe(f Subscriber[C]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.Subscribe(f)
}
