// Package wifi orchestrates the radio: it connects to provisioned networks,
// falls back to a provisioning access point, and switches between the two.
package wifi

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/micro-nova/laserguard/internal/credentials"
	"github.com/micro-nova/laserguard/internal/radio"
)

// Defaults for the provisioning access point.
const (
	DefaultAPSSID             = "Laser Security"
	DefaultAPPSK              = ""
	DefaultAPChannel          = 6
	DefaultAPSecondaryChannel = 11
	DefaultAPMaxConnections   = 1
)

// Hardware limits on credential text, in bytes.
const (
	MaxSSIDLen = 32
	MaxPSKLen  = 64
)

// RetryDelay is the pause between failed association attempts.
const RetryDelay = time.Second

// Wifi owns the radio driver handle and the saved credentials.
// It is not safe for concurrent use; share it through a Shared.
type Wifi struct {
	driver radio.Driver
	creds  *credentials.Service
	sleep  func(time.Duration)
}

// New creates an orchestrator over driver and creds.
func New(driver radio.Driver, creds *credentials.Service) *Wifi {
	return &Wifi{
		driver: driver,
		creds:  creds,
		sleep:  time.Sleep,
	}
}

// SetSleep replaces the function used to wait between association attempts.
func (w *Wifi) SetSleep(fn func(time.Duration)) {
	w.sleep = fn
}

// Start powers the radio up unless it already runs.
func (w *Wifi) Start(ctx context.Context) error {
	started, err := w.driver.IsStarted()
	if err != nil {
		return err
	}
	if started {
		return nil
	}
	return w.driver.Start(ctx)
}

// Stop powers the radio down unless it is already stopped.
func (w *Wifi) Stop(ctx context.Context) error {
	started, err := w.driver.IsStarted()
	if err != nil {
		return err
	}
	if !started {
		return nil
	}
	return w.driver.Stop(ctx)
}

// Disconnect drops the station association, if any. The configuration is
// kept, so a later Reconnect or Connect can rejoin.
func (w *Wifi) Disconnect(ctx context.Context) error {
	connected, err := w.driver.IsConnected()
	if err != nil || !connected {
		return err
	}
	return w.driver.Disconnect(ctx)
}

func (w *Wifi) restart(ctx context.Context) error {
	if err := w.driver.Stop(ctx); err != nil {
		return err
	}
	return w.driver.Start(ctx)
}

// Connect joins the network ssid. The client side is merged into the current
// configuration, so an active access point stays up. Association is attempted
// retries+1 times, RetryDelay apart; the last error is returned when every
// attempt fails.
func (w *Wifi) Connect(ctx context.Context, ssid, psk string, bssid *credentials.BSSID, channel *uint8, retries uint8) error {
	if err := validateCredential(ssid, psk); err != nil {
		return err
	}

	client := radio.ClientConfig{
		SSID:     ssid,
		Password: psk,
		Auth:     radio.AuthForPSK(psk),
	}
	if bssid != nil {
		hw := radio.HWAddr(*bssid)
		client.BSSID = &hw
	}
	if channel != nil {
		ch := *channel
		client.Channel = &ch
	}
	if err := w.setClientConfiguration(client); err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= int(retries); attempt++ {
		if attempt > 0 {
			w.sleep(RetryDelay)
		}
		lastErr = w.driver.Connect(ctx)
		if lastErr == nil {
			break
		}
		slog.Warn("wifi: connect attempt failed",
			"ssid", ssid, "attempt", attempt+1, "of", int(retries)+1, "err", lastErr)
	}
	if lastErr != nil {
		return fmt.Errorf("wifi: connect %q: %w", ssid, lastErr)
	}

	if err := w.driver.WaitNetifUp(ctx); err != nil {
		return fmt.Errorf("wifi: wait for address: %w", err)
	}
	slog.Info("wifi: connected", "ssid", ssid)
	return nil
}

// ScanAccessPoints lists the networks in range. A default client side is
// installed first when none exists; an existing one is left alone.
func (w *Wifi) ScanAccessPoints(ctx context.Context) ([]radio.AccessPointInfo, error) {
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	if err := w.ensureClientSide(); err != nil {
		return nil, err
	}
	return w.driver.Scan(ctx)
}

// Reconnect scans and tries every access point that matches a saved
// credential, weakest signal first. It reports false without associating
// when nothing matches. Each attempt's outcome replaces the previous one, so
// the result is that of the last (strongest) match. After a successful final
// attempt an enabled access point side is dropped.
func (w *Wifi) Reconnect(ctx context.Context, retries uint8) (bool, error) {
	if err := w.ensureClientSide(); err != nil {
		return false, err
	}

	saved := w.creds.All()
	aps, err := w.ScanAccessPoints(ctx)
	if err != nil {
		return false, err
	}
	sort.SliceStable(aps, func(i, j int) bool {
		return aps[i].SignalStrength < aps[j].SignalStrength
	})

	var matches []credentials.Credential
	for _, ap := range aps {
		for _, cred := range saved {
			if cred.SSID == ap.SSID && cred.BSSID == credentials.BSSID(ap.BSSID) {
				matches = append(matches, cred)
				break
			}
		}
	}
	if len(matches) == 0 {
		slog.Info("wifi: no saved network in range", "scanned", len(aps), "saved", len(saved))
		return false, nil
	}

	connected := false
	for _, cred := range matches {
		err := w.Connect(ctx, cred.SSID, cred.PSK, nil, nil, retries)
		if err != nil {
			slog.Warn("wifi: reconnect attempt failed", "ssid", cred.SSID, "bssid", cred.BSSID, "err", err)
		}
		connected = err == nil
	}

	if connected {
		apEnabled, err := w.IsAPEnabled()
		if err != nil {
			return false, err
		}
		if apEnabled {
			if _, err := w.SwitchToSTAOnly(ctx); err != nil {
				return false, err
			}
		}
	}
	return connected, nil
}

// SwitchToSTAOnly drops the access point side of a Mixed configuration,
// restarts the radio and re-associates. It reports true when the radio ends
// up client-only, including when it already was.
func (w *Wifi) SwitchToSTAOnly(ctx context.Context) (bool, error) {
	cfg, err := w.driver.Configuration()
	if err != nil {
		return false, err
	}
	switch cfg.Mode() {
	case radio.ModeClient:
		return true, nil
	case radio.ModeMixed:
	default:
		return false, nil
	}

	if err := w.driver.SetConfiguration(radio.ClientOnly(*cfg.Client)); err != nil {
		return false, err
	}
	if err := w.restart(ctx); err != nil {
		return false, err
	}
	if err := w.driver.Connect(ctx); err != nil {
		return false, err
	}
	slog.Info("wifi: switched to client only", "ssid", cfg.Client.SSID)
	return true, nil
}

// SwitchToAPOnly drops the client side of a Mixed configuration and restarts
// the radio. It reports true when the radio ends up access-point-only,
// including when it already was.
func (w *Wifi) SwitchToAPOnly(ctx context.Context) (bool, error) {
	cfg, err := w.driver.Configuration()
	if err != nil {
		return false, err
	}
	switch cfg.Mode() {
	case radio.ModeAccessPoint:
		return true, nil
	case radio.ModeMixed:
	default:
		return false, nil
	}

	if err := w.driver.SetConfiguration(radio.AccessPointOnly(*cfg.AccessPoint)); err != nil {
		return false, err
	}
	if err := w.restart(ctx); err != nil {
		return false, err
	}
	slog.Info("wifi: switched to access point only", "ssid", cfg.AccessPoint.SSID)
	return true, nil
}

// StartAP brings up an access point named ssid, keeping any client side.
func (w *Wifi) StartAP(ctx context.Context, ssid, psk string) error {
	if err := validateCredential(ssid, psk); err != nil {
		return err
	}
	secondary := uint8(DefaultAPSecondaryChannel)
	ap := radio.APConfig{
		SSID:             ssid,
		Password:         psk,
		Auth:             radio.AuthForPSK(psk),
		MaxConnections:   DefaultAPMaxConnections,
		Channel:          DefaultAPChannel,
		SecondaryChannel: &secondary,
	}
	if err := w.setAPConfiguration(ap); err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	slog.Info("wifi: access point up", "ssid", ssid)
	return nil
}

// StartAPDefault brings up the open provisioning access point.
func (w *Wifi) StartAPDefault(ctx context.Context) error {
	return w.StartAP(ctx, DefaultAPSSID, DefaultAPPSK)
}

func (w *Wifi) addConfiguration(client *radio.ClientConfig, ap *radio.APConfig) error {
	cfg, err := w.driver.Configuration()
	if err != nil {
		return err
	}
	if client != nil {
		cfg = cfg.MergeClient(*client)
	}
	if ap != nil {
		cfg = cfg.MergeAccessPoint(*ap)
	}
	return w.driver.SetConfiguration(cfg)
}

func (w *Wifi) setClientConfiguration(c radio.ClientConfig) error {
	return w.addConfiguration(&c, nil)
}

func (w *Wifi) setAPConfiguration(ap radio.APConfig) error {
	return w.addConfiguration(nil, &ap)
}

func (w *Wifi) ensureClientSide() error {
	enabled, err := w.IsSTAEnabled()
	if err != nil || enabled {
		return err
	}
	return w.setClientConfiguration(radio.ClientConfig{})
}
