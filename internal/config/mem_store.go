package config

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrInjected is returned by MemStore.Save when SetFailSave(true) is active.
var ErrInjected = errors.New("mem store: save failure configured")

// MemStore is an in-memory Store for tests that never writes to disk.
// It keeps the encoded bytes, so loads go through the same codec as a FileStore.
type MemStore[C any] struct {
	mu       sync.Mutex
	data     []byte
	codec    Codec
	failSave bool
	saves    int
}

// NewMemStore returns an empty in-memory store using the CBOR codec.
func NewMemStore[C any]() *MemStore[C] {
	return &MemStore[C]{codec: CBOR}
}

// SetFailSave configures the store to fail all save operations.
func (m *MemStore[C]) SetFailSave(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSave = fail
}

// Corrupt replaces the stored record with raw bytes.
func (m *MemStore[C]) Corrupt(raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), raw...)
}

// Saves returns the number of successful saves.
func (m *MemStore[C]) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Load decodes the stored record, or reports absence.
func (m *MemStore[C]) Load() (C, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var v C
	if m.data == nil {
		return v, false, nil
	}
	if err := m.codec.Unmarshal(m.data, &v); err != nil {
		slog.Warn("config: corrupt in-memory record, treating as absent", "err", err)
		var zero C
		return zero, false, nil
	}
	return v, true, nil
}

// Save encodes v and keeps the bytes.
func (m *MemStore[C]) Save(v C) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return &StorageError{Op: "write", Path: m.Path(), Err: ErrInjected}
	}
	data, err := m.codec.Marshal(v)
	if err != nil {
		return &StorageError{Op: "encode", Path: m.Path(), Err: err}
	}
	m.data = data
	m.saves++
	return nil
}

// Path returns ":memory:" to indicate this is an in-memory store.
func (m *MemStore[C]) Path() string { return ":memory:" }

// Ensure MemStore implements Store
var _ Store[struct{}] = (*MemStore[struct{}])(nil)
