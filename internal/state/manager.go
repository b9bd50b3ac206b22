// Package state holds one configuration value in memory and commits every
// mutation through a durable store before notifying subscribers.
package state

import (
	"log/slog"

	"github.com/micro-nova/laserguard/internal/config"
)

// Subscriber is called with the previous and the new value after a committed mutation.
type Subscriber[C any] func(prev, next C)

// Manager is the authoritative in-memory copy of one configuration domain.
//
// Manager does no locking of its own and assumes at most one mutation in
// flight. Wrap it in a Shared when more than one goroutine can reach it.
type Manager[C any] struct {
	state       C
	store       config.Store[C]
	subscribers []Subscriber[C]
}

// New creates a manager around an already known value.
func New[C any](initial C, store config.Store[C]) *Manager[C] {
	return &Manager[C]{state: initial, store: store}
}

// NewLoadedOrDefault loads the persisted value from store. When none exists
// (or it does not decode) def() is used and written back; a failure to write
// the default is logged and the manager still starts with it in memory.
func NewLoadedOrDefault[C any](store config.Store[C], def func() C) (*Manager[C], error) {
	v, ok, err := store.Load()
	if err != nil {
		return nil, err
	}
	if !ok {
		v = def()
		if err := store.Save(v); err != nil {
			slog.Error("state: failed to save default state", "path", store.Path(), "err", err)
		}
	}
	return New(v, store), nil
}

// State returns the current value.
func (m *Manager[C]) State() C {
	return m.state
}

// UpdateState replaces the value with f(current), persists it and notifies
// subscribers. If persisting fails the new value stays in memory, subscribers
// are not called and the error is returned; callers that need memory and disk
// to agree must reload.
func (m *Manager[C]) UpdateState(f func(C) C) error {
	return m.commit(f(m.state))
}

// SetState is UpdateState with the replacement supplied directly.
func (m *Manager[C]) SetState(v C) error {
	return m.commit(v)
}

// Subscribe registers f for the lifetime of the manager.
func (m *Manager[C]) Subscribe(f Subscriber[C]) {
	m.subscribers = append(m.subscribers, f)
}

func (m *Manager[C]) commit(next C) error {
	old := m.state
	m.state = next
	if err := m.store.Save(m.state); err != nil {
		return err
	}
	for _, sub := range m.subscribers {
		sub(old, m.state)
	}
	return nil
}
