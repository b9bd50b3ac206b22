// Package zeroconf advertises the device's management API over mDNS/DNS-SD
// so the companion app can find it on the LAN.
package zeroconf

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceType = "_laserguard._tcp"
	Domain      = "local."
)

// Info is what the advertisement says about the device.
type Info struct {
	ID      string
	Name    string
	Version string
}

// TXT renders info as TXT records.
func (i Info) TXT() []string {
	return []string{"id=" + i.ID, "name=" + i.Name, "version=" + i.Version}
}

type server interface {
	Shutdown()
}

// register is a variable so tests can run without multicast.
var register = func(instance, service, domain string, port int, txt []string) (server, error) {
	s, err := zeroconf.Register(instance, service, domain, port, txt, nil) // nil ifaces: all interfaces
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Service manages mDNS service registration. The instance name is the
// device name, so renaming the device re-registers the service.
type Service struct {
	mu     sync.Mutex
	port   int
	info   Info
	server server
}

// New creates a Service that will advertise port.
func New(port int, info Info) *Service {
	return &Service{port: port, info: info}
}

// Start registers the mDNS service and blocks until ctx is cancelled, at which
// point it shuts down the server cleanly.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	err := s.registerLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	<-ctx.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		s.server.Shutdown()
		s.server = nil
	}
	slog.Info("zeroconf: mDNS service unregistered")
	return nil
}

func (s *Service) registerLocked() error {
	txt := s.info.TXT()
	srv, err := register(s.info.Name, ServiceType, Domain, s.port, txt)
	if err != nil {
		return fmt.Errorf("zeroconf register: %w", err)
	}
	s.server = srv
	slog.Info("zeroconf: registered mDNS service",
		"name", s.info.Name,
		"port", s.port,
		"txt", txt,
	)
	return nil
}

// Update changes the advertised info. grandcat/zeroconf has no live TXT
// update, so a running registration is shut down and registered again.
func (s *Service) Update(info Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if info == s.info {
		return nil
	}
	s.info = info
	if s.server == nil {
		return nil
	}
	s.server.Shutdown()
	s.server = nil
	return s.registerLocked()
}

// Current returns the advertised info.
func (s *Service) Current() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}
