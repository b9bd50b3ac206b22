package device_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/micro-nova/laserguard/internal/config"
	"github.com/micro-nova/laserguard/internal/device"
	"github.com/micro-nova/laserguard/internal/models"
)

type fakeRebooter struct {
	calls int
	err   error
}

func (f *fakeRebooter) Reboot() error {
	f.calls++
	return f.err
}

func newService(t *testing.T, confDir string) (*device.Service, *config.MemStore[models.DeviceSettings], *fakeRebooter) {
	t.Helper()
	store := config.NewMemStore[models.DeviceSettings]()
	m, err := device.Load(store)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rb := &fakeRebooter{}
	return device.NewService(m, confDir, rb), store, rb
}

func TestLoad_Defaults(t *testing.T) {
	svc, store, _ := newService(t, "")

	info := svc.Info()
	if info.Name != models.DefaultDeviceName || info.Mode != models.ModePair || info.ID == uuid.Nil {
		t.Errorf("Info() = %+v", info)
	}
	saved, ok, err := store.Load()
	if err != nil || !ok || saved.ID != info.ID {
		t.Errorf("stored default = %+v, %v, %v", saved, ok, err)
	}
}

func TestLoad_FillsMissingID(t *testing.T) {
	store := config.NewMemStore[models.DeviceSettings]()
	_ = store.Save(models.DeviceSettings{Name: "Gate"})

	m, err := device.Load(store)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.State().ID == uuid.Nil || m.State().Name != "Gate" {
		t.Errorf("state = %+v", m.State())
	}
}

func TestSetName(t *testing.T) {
	svc, store, _ := newService(t, "")

	if err := svc.SetName("  Back Gate "); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	if got := svc.Info().Name; got != "Back Gate" {
		t.Errorf("Name = %q", got)
	}
	saved, _, _ := store.Load()
	if saved.Name != "Back Gate" {
		t.Errorf("stored name = %q", saved.Name)
	}

	var appErr *models.AppError
	if err := svc.SetName(""); !errors.As(err, &appErr) || appErr.Status != 400 {
		t.Errorf("SetName(\"\") = %v, want 400", err)
	}
}

func TestSetMode_NotifiesSubscribers(t *testing.T) {
	svc, _, _ := newService(t, "")
	var seen []models.Mode
	svc.Subscribe(func(prev, next models.DeviceSettings) {
		seen = append(seen, prev.Mode, next.Mode)
	})

	if err := svc.SetMode(models.ModeConnected); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if svc.Mode() != models.ModeConnected {
		t.Errorf("Mode() = %v", svc.Mode())
	}
	if len(seen) != 2 || seen[0] != models.ModePair || seen[1] != models.ModeConnected {
		t.Errorf("subscriber saw %v", seen)
	}
}

func TestSetMode_StorageFailure(t *testing.T) {
	svc, store, _ := newService(t, "")
	store.SetFailSave(true)

	if err := svc.SetMode(models.ModeConnected); !errors.Is(err, config.ErrInjected) {
		t.Errorf("SetMode = %v, want injected failure", err)
	}
}

func TestRestart(t *testing.T) {
	svc, _, rb := newService(t, "")
	if err := svc.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if rb.calls != 1 {
		t.Errorf("reboots = %d", rb.calls)
	}

	rb.err = errors.New("permission denied")
	if err := svc.Restart(); !errors.Is(err, rb.err) {
		t.Errorf("Restart = %v", err)
	}
}

func TestReset_RemovesRecordsThenReboots(t *testing.T) {
	conf := filepath.Join(t.TempDir(), "conf")
	if err := os.MkdirAll(conf, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(conf, "wifi.bin"), []byte{0xa0}, 0o644); err != nil {
		t.Fatal(err)
	}
	svc, _, rb := newService(t, conf)

	if err := svc.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := os.Stat(conf); !os.IsNotExist(err) {
		t.Errorf("conf dir still present: %v", err)
	}
	if rb.calls != 1 {
		t.Errorf("reboots = %d", rb.calls)
	}
}
