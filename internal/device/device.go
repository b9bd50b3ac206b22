// Package device owns the device settings domain (name, provisioning mode,
// id) and the restart and factory reset actions.
package device

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/micro-nova/laserguard/internal/config"
	"github.com/micro-nova/laserguard/internal/models"
	"github.com/micro-nova/laserguard/internal/state"
)

// Manager is the state manager that persists the device settings.
type Manager = state.Manager[models.DeviceSettings]

// Rebooter restarts the machine.
type Rebooter interface {
	Reboot() error
}

// RebooterFunc adapts a function to Rebooter.
type RebooterFunc func() error

func (f RebooterFunc) Reboot() error { return f() }

// Load opens the device record in store, creating default settings if absent.
func Load(store config.Store[models.DeviceSettings]) (*Manager, error) {
	m, err := state.NewLoadedOrDefault(store, models.DefaultDeviceSettings)
	if err != nil {
		return nil, err
	}
	// Records written before the id existed decode with a zero id.
	if m.State().ID == uuid.Nil {
		if err := m.UpdateState(func(s models.DeviceSettings) models.DeviceSettings {
			s.ID = uuid.New()
			return s
		}); err != nil {
			slog.Error("device: could not persist generated id", "err", err)
		}
	}
	return m, nil
}

// Info is the public description of the device.
type Info struct {
	ID   uuid.UUID   `json:"id"`
	Name string      `json:"name"`
	Mode models.Mode `json:"mode"`
}

// Service is safe for concurrent use: every access goes through one lock.
type Service struct {
	settings *state.Shared[models.DeviceSettings]
	confDir  string
	rebooter Rebooter
}

// NewService wraps m. confDir is the directory holding every configuration
// record; Reset removes it.
func NewService(m *Manager, confDir string, rebooter Rebooter) *Service {
	return &Service{
		settings: state.NewShared(m),
		confDir:  confDir,
		rebooter: rebooter,
	}
}

func (s *Service) Settings() models.DeviceSettings { return s.settings.State() }

func (s *Service) Info() Info {
	cur := s.settings.State()
	return Info{ID: cur.ID, Name: cur.Name, Mode: cur.Mode}
}

func (s *Service) Mode() models.Mode { return s.settings.State().Mode }

// SetName renames the device.
func (s *Service) SetName(name string) error {
	if err := models.ValidateDeviceName(name); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	return s.settings.Update(func(cur models.DeviceSettings) models.DeviceSettings {
		cur.Name = name
		return cur
	})
}

// SetMode records the provisioning mode.
func (s *Service) SetMode(mode models.Mode) error {
	return s.settings.Update(func(cur models.DeviceSettings) models.DeviceSettings {
		cur.Mode = mode
		return cur
	})
}

// Subscribe registers fn for every committed change of the settings.
func (s *Service) Subscribe(fn state.Subscriber[models.DeviceSettings]) {
	s.settings.Subscribe(fn)
}

// Restart reboots the machine.
func (s *Service) Restart() error {
	slog.Warn("device: restarting")
	if err := s.rebooter.Reboot(); err != nil {
		return fmt.Errorf("device: restart: %w", err)
	}
	return nil
}

// Reset erases every stored configuration record, then reboots. The next
// boot starts from defaults.
func (s *Service) Reset() error {
	slog.Warn("device: factory reset", "dir", s.confDir)
	if s.confDir != "" {
		if err := os.RemoveAll(s.confDir); err != nil {
			return &config.StorageError{Op: "reset", Path: s.confDir, Err: err}
		}
	}
	return s.Restart()
}
