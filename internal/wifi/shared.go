package wifi

import (
	"log/slog"
	"sync"
	"time"
)

// Shared is the handle through which concurrent callers use one Wifi.
// Every access is serialized through its single lock.
type Shared struct {
	mu    sync.Mutex
	w     *Wifi
	wg    sync.WaitGroup
	watch func(Status)
	last  *Status
}

// NewShared wraps w.
func NewShared(w *Wifi) *Shared {
	return &Shared{w: w}
}

// Watch registers fn to receive the radio status each time a locked
// operation leaves it changed. fn runs under the lock and must not call
// back into s.
func (s *Shared) Watch(fn func(Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watch = fn
	s.last = nil
	if st, err := s.w.Status(); err == nil {
		s.last = &st
	}
}

// With runs fn while holding the lock.
func (s *Shared) With(fn func(w *Wifi) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fn(s.w)
	s.notify()
	return err
}

func (s *Shared) notify() {
	if s.watch == nil {
		return
	}
	st, err := s.w.Status()
	if err != nil {
		slog.Debug("wifi: status unavailable", "err", err)
		return
	}
	if s.last != nil && sameStatus(*s.last, st) {
		return
	}
	s.last = &st
	s.watch(st)
}

// sameStatus ignores signal strength and addressing, which drift on their own.
func sameStatus(a, b Status) bool {
	if a.Started != b.Started || a.Connected != b.Connected || a.Mode != b.Mode || a.Saved != b.Saved {
		return false
	}
	if (a.AccessPoint == nil) != (b.AccessPoint == nil) {
		return false
	}
	if a.AccessPoint == nil {
		return true
	}
	return a.AccessPoint.SSID == b.AccessPoint.SSID && a.AccessPoint.BSSID == b.AccessPoint.BSSID
}

// Go runs fn in a detached goroutine after delay, holding the lock. Its
// error is logged and otherwise dropped.
func (s *Shared) Go(name string, delay time.Duration, fn func(w *Wifi) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if delay > 0 {
			time.Sleep(delay)
		}
		if err := s.With(fn); err != nil {
			slog.Error("wifi: background task failed", "task", name, "err", err)
			return
		}
		slog.Debug("wifi: background task done", "task", name)
	}()
}

// Wait blocks until every task started with Go has returned.
func (s *Shared) Wait() {
	s.wg.Wait()
}
