// Command laserguard is the laser tripwire appliance daemon: it keeps the
// device on Wi-Fi, falls back to a provisioning access point, and serves the
// management API.
// Run with --mock to use a simulated radio (no NetworkManager required).
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/micro-nova/laserguard/internal/api"
	"github.com/micro-nova/laserguard/internal/auth"
	"github.com/micro-nova/laserguard/internal/config"
	"github.com/micro-nova/laserguard/internal/credentials"
	"github.com/micro-nova/laserguard/internal/device"
	"github.com/micro-nova/laserguard/internal/events"
	"github.com/micro-nova/laserguard/internal/hardware"
	"github.com/micro-nova/laserguard/internal/identity"
	"github.com/micro-nova/laserguard/internal/maintenance"
	"github.com/micro-nova/laserguard/internal/models"
	"github.com/micro-nova/laserguard/internal/radio"
	"github.com/micro-nova/laserguard/internal/state"
	"github.com/micro-nova/laserguard/internal/wifi"
	"github.com/micro-nova/laserguard/internal/zeroconf"
)

// startupRetries is the retry budget of the boot-time reconnect.
const startupRetries = 5

func main() {
	var (
		mock      = flag.Bool("mock", false, "use the mock radio driver (no NetworkManager required)")
		addr      = flag.String("addr", ":80", "HTTP listen address")
		dataDir   = flag.String("data-dir", "/var/lib/laserguard", "directory holding conf/, backups/ and metadata.json")
		debug     = flag.Bool("debug", false, "enable debug logging")
		staIface  = flag.String("sta-iface", "wlan0", "wireless interface used as client")
		apIface   = flag.String("ap-iface", "", "wireless interface used for the access point (default: sta-iface)")
		ledPin    = flag.String("led-pin", "", "GPIO pin of the status LED, e.g. GPIO17 (empty: no LED)")
		ledLow    = flag.Bool("led-active-low", false, "status LED lights when the pin is low")
		retries   = flag.Uint("reconnect-retries", 2, "retries per saved network when the watchdog reconnects")
		addAPIKey = flag.String("add-api-key", "", "create an API key with this name, print it and exit")
		revokeKey = flag.String("revoke-api-key", "", "remove the API key with this name and exit")
		options   = flag.String("config", DefaultOptionsPath, "YAML file with defaults for these flags")
	)
	flag.Parse()
	optionsErr := applyOptionsFile(flag.CommandLine, *options)

	// Configure logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	if optionsErr != nil {
		slog.Error("invalid options file", "err", optionsErr)
		os.Exit(1)
	}

	confDir := filepath.Join(*dataDir, "conf")
	if err := os.MkdirAll(confDir, 0755); err != nil {
		slog.Error("cannot create config directory", "path", confDir, "err", err)
		os.Exit(1)
	}

	// Auth service
	authSvc, err := auth.NewService(*dataDir)
	if err != nil {
		slog.Error("auth service initialization failed", "err", err)
		os.Exit(1)
	}
	defer authSvc.Close()
	if handled, err := runKeyCommand(authSvc, *addAPIKey, *revokeKey, os.Stdout); handled {
		if err != nil {
			slog.Error("api key command failed", "err", err)
			os.Exit(1)
		}
		return
	}

	// Graceful shutdown context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bus := events.NewBus()

	// Configuration domains
	credMgr, err := credentials.Load(config.NewFileStore[credentials.Set](filepath.Join(confDir, "wifi.bin")))
	if err != nil {
		slog.Error("cannot load wifi credentials", "err", err)
		os.Exit(1)
	}
	credMgr.Subscribe(events.Forward(bus, events.KindCredentials, redactCredentials))

	devMgr, err := device.Load(config.NewFileStore[models.DeviceSettings](filepath.Join(confDir, "device.bin")))
	if err != nil {
		slog.Error("cannot load device settings", "err", err)
		os.Exit(1)
	}

	notifMgr, err := state.NewLoadedOrDefault(
		config.NewFileStore[models.NotificationSettings](filepath.Join(confDir, "notification.bin")),
		models.DefaultNotificationSettings)
	if err != nil {
		slog.Error("cannot load notification settings", "err", err)
		os.Exit(1)
	}
	notifMgr.Subscribe(events.Forward[models.NotificationSettings](bus, events.KindNotification, nil))

	schedMgr, err := state.NewLoadedOrDefault(
		config.NewFileStore[models.ActivationWindow](filepath.Join(confDir, "schedule.bin")),
		models.DefaultActivationWindow)
	if err != nil {
		slog.Error("cannot load schedule", "err", err)
		os.Exit(1)
	}
	schedMgr.Subscribe(events.Forward[models.ActivationWindow](bus, events.KindSchedule, nil))

	// Radio driver
	var driver radio.Driver
	if *mock {
		slog.Info("using mock radio driver")
		m := radio.NewMock()
		m.SetScanResults(demoAccessPoints())
		driver = m
	} else {
		slog.Info("using NetworkManager radio driver", "sta", *staIface, "ap", *apIface)
		nm := radio.NewNetworkManager(*staIface, *apIface)
		if err := nm.Init(ctx); err != nil {
			slog.Error("radio initialization failed", "err", err)
			os.Exit(1)
		}
		defer nm.Close()
		driver = nm
	}

	var rebooter device.Rebooter = device.SystemRebooter{}
	if *mock {
		rebooter = device.RebooterFunc(func() error {
			slog.Warn("mock: reboot requested, ignoring")
			return nil
		})
	}
	dev := device.NewService(devMgr, confDir, rebooter)
	dev.Subscribe(events.Forward(bus, events.KindDevice, func(s models.DeviceSettings) any {
		return device.Info{ID: s.ID, Name: s.Name, Mode: s.Mode}
	}))

	// Status LED
	var led hardware.LED
	switch {
	case *mock:
		led = hardware.NewMock()
	case *ledPin != "":
		gl, err := hardware.NewGPIOLED(*ledPin, *ledLow)
		if err != nil {
			slog.Warn("status led unavailable", "pin", *ledPin, "err", err)
		} else {
			led = gl
		}
	}
	if led != nil {
		defer led.Close()
		dev.Subscribe(hardware.FollowMode(led))
	}

	// Connectivity: rejoin a saved network, or open the provisioning AP.
	w := wifi.New(driver, credentials.NewService(credMgr))
	shared := wifi.NewShared(w)
	shared.Watch(func(st wifi.Status) { bus.Publish(events.KindWifi, st) })
	if err := shared.With(func(w *wifi.Wifi) error {
		return bringUp(ctx, w, dev)
	}); err != nil {
		slog.Error("wifi bring-up failed", "err", err)
	}
	if led != nil {
		if err := hardware.ShowMode(led, dev.Mode()); err != nil {
			slog.Warn("status led", "err", err)
		}
	}

	notif := state.NewShared(notifMgr)
	sched := state.NewShared(schedMgr)

	// Maintenance goroutines (connectivity watchdog, online check, config backups)
	maint := maintenance.New(shared, dev, maintenance.Options{
		DataDir:          *dataDir,
		ReconnectRetries: uint8(min(*retries, 255)),
		OnOnline: func(online bool) {
			slog.Info("online status changed", "online", online)
		},
		Snapshot: func() any {
			var creds credentials.Set
			_ = shared.With(func(*wifi.Wifi) error {
				creds = credMgr.State()
				return nil
			})
			return newSettingsSnapshot(dev.Settings(), notif.State(), sched.State(), creds)
		},
	})
	go maint.Start(ctx)

	// Zeroconf mDNS registration
	ident := identity.Get(*dataDir)
	zc := zeroconf.New(listenPort(*addr), advertisement(dev.Settings(), ident))
	dev.Subscribe(func(prev, next models.DeviceSettings) {
		if prev.Name == next.Name {
			return
		}
		if err := zc.Update(advertisement(next, ident)); err != nil {
			slog.Warn("zeroconf update failed", "err", err)
		}
	})
	go func() {
		if err := zc.Start(ctx); err != nil {
			slog.Warn("zeroconf failed", "err", err)
		}
	}()

	// HTTP server
	cpuTemp := hardware.CPUTempPath
	if *mock {
		cpuTemp = ""
	}
	router := api.NewRouter(api.Deps{
		Wifi:         shared,
		Device:       dev,
		Notification: notif,
		Schedule:     sched,
		Events:       bus,
		Maintenance:  maint,
		Identity:     ident,
		CPUTempPath:  cpuTemp,
	}, authSvc)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout (needed for SSE, and connect may take a while)
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("laserguard listening", "addr", *addr, "mock", *mock, "data", *dataDir, "version", ident.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()

	// Graceful HTTP shutdown
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}
	shared.Wait()

	slog.Info("shutdown complete")
}

// bringUp runs at boot: saved networks are tried first, the provisioning
// access point is the fallback.
func bringUp(ctx context.Context, w *wifi.Wifi, dev *device.Service) error {
	ok, err := w.Reconnect(ctx, startupRetries)
	if err != nil {
		slog.Warn("reconnect to saved networks failed", "err", err)
	}
	if err == nil && ok {
		slog.Info("joined a saved network")
		return dev.SetMode(models.ModeConnected)
	}
	slog.Info("no saved network reachable, starting provisioning access point", "ssid", wifi.DefaultAPSSID)
	if err := w.StartAPDefault(ctx); err != nil {
		return err
	}
	return dev.SetMode(models.ModePair)
}

// redactCredentials drops the secrets before credentials are published.
func redactCredentials(s credentials.Set) any {
	type public struct {
		SSID  string            `json:"ssid"`
		BSSID credentials.BSSID `json:"bssid"`
	}
	out := make([]public, 0, s.Len())
	for _, c := range s.Sorted() {
		out = append(out, public{SSID: c.SSID, BSSID: c.BSSID})
	}
	return out
}

// settingsSnapshot is the readable copy of the configuration kept next to
// each backup archive. Network secrets are left out.
type settingsSnapshot struct {
	Device       models.DeviceSettings       `json:"device"`
	Notification models.NotificationSettings `json:"notification"`
	Schedule     models.ActivationWindow     `json:"schedule"`
	Networks     any                         `json:"networks"`
}

func newSettingsSnapshot(dev models.DeviceSettings, notif models.NotificationSettings, sched models.ActivationWindow, creds credentials.Set) settingsSnapshot {
	return settingsSnapshot{
		Device:       dev,
		Notification: notif,
		Schedule:     sched,
		Networks:     redactCredentials(creds),
	}
}

func advertisement(s models.DeviceSettings, ident identity.Info) zeroconf.Info {
	return zeroconf.Info{ID: s.ID.String(), Name: s.Name, Version: ident.Version}
}

// listenPort extracts the port of a listen address, defaulting to 80.
func listenPort(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 80
	}
	p, err := strconv.Atoi(port)
	if err != nil || p == 0 {
		return 80
	}
	return p
}

// demoAccessPoints gives the mock radio something to find.
func demoAccessPoints() []radio.AccessPointInfo {
	return []radio.AccessPointInfo{
		{SSID: "HomeNet", BSSID: radio.HWAddr{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}, SignalStrength: -48, Channel: 6, Auth: radio.AuthForPSK("x")},
		{SSID: "Neighbor", BSSID: radio.HWAddr{0x02, 0x66, 0x77, 0x88, 0x99, 0xaa}, SignalStrength: -81, Channel: 11, Auth: radio.AuthForPSK("x")},
		{SSID: "CoffeeShop", BSSID: radio.HWAddr{0x02, 0xbb, 0xcc, 0xdd, 0xee, 0xff}, SignalStrength: -67, Channel: 1},
	}
}
