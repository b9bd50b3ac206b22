package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/micro-nova/laserguard/internal/hardware"
	"github.com/micro-nova/laserguard/internal/models"
)

type deviceInfo struct {
	ID       uuid.UUID   `json:"id"`
	Name     string      `json:"name"`
	Mode     models.Mode `json:"mode"`
	Hostname string      `json:"hostname"`
	Serial   string      `json:"serial"`
	Version  string      `json:"version"`
	Online   *bool       `json:"online,omitempty"`
	CPUTemp  *float32    `json:"cpu_temp_c,omitempty"`
}

type deviceInfoData struct {
	DeviceInfo deviceInfo `json:"device_info"`
}

func (h *Handlers) deviceInfo(w http.ResponseWriter, r *http.Request) {
	dev := h.Device.Info()
	info := deviceInfo{
		ID:       dev.ID,
		Name:     dev.Name,
		Mode:     dev.Mode,
		Hostname: h.Identity.Hostname,
		Serial:   h.Identity.Serial,
		Version:  h.Identity.Version,
	}
	if h.Maintenance != nil {
		online := h.Maintenance.Online()
		info.Online = &online
	}
	if h.CPUTempPath != "" {
		if temp, err := hardware.ReadCPUTemp(h.CPUTempPath); err == nil {
			info.CPUTemp = &temp
		} else {
			slog.Debug("api: cpu temperature unavailable", "err", err)
		}
	}
	writeData(w, deviceInfoData{DeviceInfo: info})
}

type setNameRequest struct {
	Name string `json:"name"`
}

func (h *Handlers) setDeviceName(w http.ResponseWriter, r *http.Request) {
	var req setNameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Device.SetName(req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, h.Device.Info())
}

// restart answers first and reboots after RebootDelay.
func (h *Handlers) restart(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, "Restarting")
	h.afterResponse("restart", h.Device.Restart)
}

// reset answers first, then erases the configuration and reboots.
func (h *Handlers) reset(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, "Resetting to factory defaults")
	h.afterResponse("reset", h.Device.Reset)
}

func (h *Handlers) afterResponse(name string, fn func() error) {
	time.AfterFunc(h.RebootDelay, func() {
		if err := fn(); err != nil {
			slog.Error("api: deferred action failed", "action", name, "err", err)
		}
	})
}

type backupData struct {
	Path string `json:"path"`
}

func (h *Handlers) createBackup(w http.ResponseWriter, r *http.Request) {
	if h.Maintenance == nil {
		writeError(w, models.ErrUnavailable("backups are not enabled"))
		return
	}
	path, err := h.Maintenance.RunBackupNow()
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, backupData{Path: path})
}

func (h *Handlers) listBackups(w http.ResponseWriter, r *http.Request) {
	if h.Maintenance == nil {
		writeError(w, models.ErrUnavailable("backups are not enabled"))
		return
	}
	names, err := h.Maintenance.ListBackups()
	if err != nil {
		writeError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeData(w, names)
}
