package hardware

import (
	"errors"
	"sync"
)

// Mock is a thread-safe in-memory LED for testing and development.
type Mock struct {
	mu      sync.Mutex
	on      bool
	history []bool
	failSet bool
	closed  bool
}

// NewMock creates an LED that starts off.
func NewMock() *Mock {
	return &Mock{}
}

// SetFailSet configures the mock to fail Set.
func (m *Mock) SetFailSet(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSet = fail
}

func (m *Mock) Set(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("mock: led set failure configured")
	}
	m.on = on
	m.history = append(m.history, on)
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.on = false
	m.closed = true
	return nil
}

// On reports the current LED state.
func (m *Mock) On() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on
}

// History returns every value passed to Set.
func (m *Mock) History() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.history...)
}

// Ensure Mock implements LED
var _ LED = (*Mock)(nil)
