// Package maintenance runs the background housekeeping of the device: the
// connectivity watchdog, the internet reachability check and configuration
// backups.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/micro-nova/laserguard/internal/config"
	"github.com/micro-nova/laserguard/internal/device"
	"github.com/micro-nova/laserguard/internal/wifi"
)

const (
	backupPrefix      = "laserguard-config-"
	backupSuffix      = ".tar.gz"
	snapshotPrefix    = "laserguard-settings-"
	snapshotSuffix    = ".json"
	backupMaxAge      = 30 * 24 * time.Hour
	onlineCheckAddr   = "1.1.1.1:53"
	onlineDialTimeout = 3 * time.Second
)

// dialFunc is a variable so tests can inject a mock dialer.
var dialFunc = func(network, address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(network, address, timeout)
}

// Options tunes the background loops. Zero fields take the defaults below.
type Options struct {
	// DataDir holds conf/ (backed up) and backups/.
	DataDir string

	WatchdogInterval    time.Duration // default 1m
	OnlineCheckInterval time.Duration // default 5m

	// ReconnectRetries is passed to every reconnect the watchdog issues.
	ReconnectRetries uint8
	// FailuresBeforePair is how many consecutive failed checks of a lost link
	// the watchdog tolerates before bringing the provisioning AP back. Default 3.
	FailuresBeforePair int
	// PairRetryTicks is how many watchdog ticks pass in pair mode between
	// attempts to rejoin a saved network. Default 10.
	PairRetryTicks int

	// OnOnline is called when internet reachability changes.
	OnOnline func(bool)

	// Snapshot, when set, returns the settings written as readable JSON
	// next to each backup archive.
	Snapshot func() any
}

func (o *Options) setDefaults() {
	if o.WatchdogInterval <= 0 {
		o.WatchdogInterval = time.Minute
	}
	if o.OnlineCheckInterval <= 0 {
		o.OnlineCheckInterval = 5 * time.Minute
	}
	if o.FailuresBeforePair <= 0 {
		o.FailuresBeforePair = 3
	}
	if o.PairRetryTicks <= 0 {
		o.PairRetryTicks = 10
	}
}

// Service manages background maintenance goroutines.
type Service struct {
	opts   Options
	wifi   *wifi.Shared
	device *device.Service
	online atomic.Bool

	// watchdog state, only touched from the watchdog goroutine
	failures  int
	pairTicks int
}

// New creates a maintenance Service.
func New(w *wifi.Shared, dev *device.Service, opts Options) *Service {
	opts.setDefaults()
	return &Service{opts: opts, wifi: w, device: dev}
}

// Start launches all background maintenance goroutines.
// Blocks until ctx is cancelled; all goroutines respect the context.
func (s *Service) Start(ctx context.Context) {
	go s.runWatchdog(ctx)
	go s.runCheckOnline(ctx)
	go s.runBackup(ctx)

	// Block until cancelled
	<-ctx.Done()
}

// Online reports the result of the last reachability check.
func (s *Service) Online() bool { return s.online.Load() }

// RunBackupNow performs a backup immediately and returns the backup file path or error.
// A failed settings snapshot is logged but does not fail the backup.
func (s *Service) RunBackupNow() (string, error) {
	path, err := runBackup(filepath.Join(s.opts.DataDir, "conf"), s.backupDir())
	if err != nil {
		return "", err
	}
	if s.opts.Snapshot != nil {
		if _, err := writeSnapshot(s.backupDir(), s.opts.Snapshot()); err != nil {
			slog.Warn("maintenance: settings snapshot failed", "err", err)
		}
	}
	return path, nil
}

// ListBackups returns the backup archives, oldest first.
func (s *Service) ListBackups() ([]string, error) {
	return listBackups(s.backupDir())
}

func (s *Service) backupDir() string {
	return filepath.Join(s.opts.DataDir, "backups")
}

func listBackups(backupDir string) ([]string, error) {
	entries, err := os.ReadDir(backupDir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	files := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), backupPrefix) && strings.HasSuffix(e.Name(), backupSuffix) {
			files = append(files, filepath.Join(backupDir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// checkOnline dials a public resolver and reports whether it answered.
func checkOnline() bool {
	conn, err := dialFunc("tcp", onlineCheckAddr, onlineDialTimeout)
	if conn != nil {
		conn.Close()
	}
	return err == nil
}

// runCheckOnline checks internet reachability every OnlineCheckInterval.
func (s *Service) runCheckOnline(ctx context.Context) {
	first := true

	check := func() {
		online := checkOnline()
		if first || online != s.online.Load() {
			first = false
			s.online.Store(online)
			if s.opts.OnOnline != nil {
				s.opts.OnOnline(online)
			}
			slog.Info("maintenance: online status", "online", online)
		}
	}

	check() // immediate first check

	ticker := time.NewTicker(s.opts.OnlineCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// runBackup performs daily backups at 2am.
func (s *Service) runBackup(ctx context.Context) {
	for {
		now := time.Now()
		// Next 2am
		next2am := time.Date(now.Year(), now.Month(), now.Day(), 2, 0, 0, 0, now.Location())
		if !next2am.After(now) {
			next2am = next2am.Add(24 * time.Hour)
		}
		delay := next2am.Sub(now)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
			path, err := s.RunBackupNow()
			if err != nil {
				slog.Error("maintenance: backup failed", "err", err)
			} else {
				slog.Info("maintenance: backup created", "file", path)
			}
		}
	}
}

// runBackup archives confDir into backupDir as a dated .tar.gz.
func runBackup(confDir, backupDir string) (string, error) {
	if _, err := os.Stat(confDir); err != nil {
		return "", fmt.Errorf("config dir: %w", err)
	}
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	date := time.Now().Format("2006-01-02")
	destFile := filepath.Join(backupDir, backupPrefix+date+backupSuffix)

	cmd := exec.Command("tar", "-czf", destFile, "-C", filepath.Dir(confDir), filepath.Base(confDir))
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("tar: %w: %s", err, out)
	}

	pruneOldBackups(backupDir, backupMaxAge)

	return destFile, nil
}

// writeSnapshot saves v as dated, indented JSON in backupDir.
func writeSnapshot(backupDir string, v any) (string, error) {
	date := time.Now().Format("2006-01-02")
	path := filepath.Join(backupDir, snapshotPrefix+date+snapshotSuffix)
	if err := config.NewFileStoreWithCodec[any](path, config.JSON).Save(v); err != nil {
		return "", err
	}
	return path, nil
}

// pruneOldBackups deletes archives and snapshots older than maxAge from backupDir.
func pruneOldBackups(backupDir string, maxAge time.Duration) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if e.IsDir() || !(strings.HasPrefix(e.Name(), backupPrefix) || strings.HasPrefix(e.Name(), snapshotPrefix)) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(backupDir, e.Name())
			if err := os.Remove(path); err != nil {
				slog.Warn("maintenance: failed to prune old backup", "file", path, "err", err)
			} else {
				slog.Info("maintenance: pruned old backup", "file", path)
			}
		}
	}
}
