package credentials

import (
	"github.com/micro-nova/laserguard/internal/config"
	"github.com/micro-nova/laserguard/internal/state"
)

// Manager is the state manager that persists the credential set.
type Manager = state.Manager[Set]

// DefaultSet is the value written when no credential record exists.
func DefaultSet() Set { return Set{Credentials: []Credential{}} }

// Load opens the credential record in store, writing an empty set if absent.
func Load(store config.Store[Set]) (*Manager, error) {
	m, err := state.NewLoadedOrDefault(store, DefaultSet)
	if err != nil {
		return nil, err
	}
	if n := m.State().Normalize(); n.Len() != m.State().Len() {
		if err := m.SetState(n); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Service mutates the credential set through its state manager.
// Like the manager, it is not safe for concurrent use on its own.
type Service struct {
	m *Manager
}

// NewService wraps m.
func NewService(m *Manager) *Service {
	return &Service{m: m}
}

// Manager exposes the underlying state manager, e.g. for subscriptions.
func (s *Service) Manager() *Manager { return s.m }

// SaveCredential stores a credential, replacing the PSK of an existing entry
// with the same SSID and BSSID.
func (s *Service) SaveCredential(ssid, psk string, bssid BSSID) error {
	cred := Credential{SSID: ssid, PSK: psk, BSSID: bssid}
	return s.m.UpdateState(func(set Set) Set {
		return set.Replace(cred)
	})
}

// Forget removes credentials. With a bssid, every entry whose SSID matches
// OR whose BSSID matches is removed; without one, every entry with the SSID.
func (s *Service) Forget(ssid string, bssid *BSSID) error {
	return s.m.UpdateState(func(set Set) Set {
		return set.Retain(func(c Credential) bool {
			if bssid != nil {
				return c.SSID != ssid && c.BSSID != *bssid
			}
			return c.SSID != ssid
		})
	})
}

// All returns a snapshot of the stored credentials.
func (s *Service) All() []Credential {
	return s.m.State().Sorted()
}

// Len returns the number of stored credentials.
func (s *Service) Len() int {
	return s.m.State().Len()
}
