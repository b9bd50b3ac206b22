package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/micro-nova/laserguard/internal/models"
	"github.com/micro-nova/laserguard/internal/wifi"
)

func (s *Service) runWatchdog(ctx context.Context) {
	ticker := time.NewTicker(s.opts.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckConnectivity(ctx)
		}
	}
}

// CheckConnectivity runs one watchdog pass.
//
// In connected mode a lost link is reconnected; after FailuresBeforePair
// consecutive failures the provisioning access point comes back up and the
// device returns to pair mode. In pair mode every PairRetryTicks passes the
// saved networks are tried again.
func (s *Service) CheckConnectivity(ctx context.Context) {
	mode := s.device.Mode()
	err := s.wifi.With(func(w *wifi.Wifi) error {
		if mode == models.ModePair {
			return s.retryFromPair(ctx, w)
		}
		return s.checkLink(ctx, w)
	})
	if err != nil {
		slog.Warn("maintenance: connectivity check failed", "mode", mode, "err", err)
	}
}

func (s *Service) checkLink(ctx context.Context, w *wifi.Wifi) error {
	connected, err := w.IsConnected()
	if err != nil {
		return err
	}
	if connected {
		s.failures = 0
		return nil
	}

	s.failures++
	slog.Warn("maintenance: link lost, reconnecting", "failures", s.failures)
	ok, err := w.Reconnect(ctx, s.opts.ReconnectRetries)
	if err == nil && ok {
		slog.Info("maintenance: link restored")
		s.failures = 0
		return nil
	}
	if s.failures < s.opts.FailuresBeforePair {
		return err
	}

	s.failures = 0
	slog.Warn("maintenance: giving up on saved networks, back to pair mode")
	if err := w.StartAPDefault(ctx); err != nil {
		return err
	}
	return s.device.SetMode(models.ModePair)
}

func (s *Service) retryFromPair(ctx context.Context, w *wifi.Wifi) error {
	s.pairTicks++
	if s.pairTicks < s.opts.PairRetryTicks || !w.HasSavedCredentials() {
		return nil
	}
	s.pairTicks = 0

	ok, err := w.Reconnect(ctx, s.opts.ReconnectRetries)
	if err != nil || !ok {
		return err
	}
	slog.Info("maintenance: rejoined a saved network")
	return s.device.SetMode(models.ModeConnected)
}
