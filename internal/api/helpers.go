// Package api implements the HTTP provisioning and management API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/micro-nova/laserguard/internal/device"
	"github.com/micro-nova/laserguard/internal/events"
	"github.com/micro-nova/laserguard/internal/identity"
	"github.com/micro-nova/laserguard/internal/models"
	"github.com/micro-nova/laserguard/internal/state"
	"github.com/micro-nova/laserguard/internal/wifi"
)

// Delays of the work handlers schedule after responding.
const (
	DefaultSwitchDelay = 5 * time.Second // connect: time for the phone to follow the device onto the new network
	DefaultForgetDelay = time.Second
	DefaultRebootDelay = 500 * time.Millisecond
)

// EventBus is the interface for subscribing to configuration change events.
type EventBus interface {
	Subscribe(id string) <-chan events.Event
	Unsubscribe(id string)
}

// Maintenance is the part of the maintenance service the API exposes.
type Maintenance interface {
	Online() bool
	RunBackupNow() (string, error)
	ListBackups() ([]string, error)
}

// Deps are the collaborators of the handlers. Maintenance may be nil.
type Deps struct {
	Wifi         *wifi.Shared
	Device       *device.Service
	Notification *state.Shared[models.NotificationSettings]
	Schedule     *state.Shared[models.ActivationWindow]
	Events       EventBus
	Maintenance  Maintenance
	Identity     identity.Info

	// CPUTempPath is read for the device info; empty leaves the field out.
	CPUTempPath string

	// ScanLimiter throttles radio scans. Nil means one scan every 2s.
	ScanLimiter *rate.Limiter

	SwitchDelay time.Duration
	ForgetDelay time.Duration
	RebootDelay time.Duration
}

func (d *Deps) setDefaults() {
	if d.ScanLimiter == nil {
		d.ScanLimiter = rate.NewLimiter(rate.Every(2*time.Second), 1)
	}
	if d.SwitchDelay == 0 {
		d.SwitchDelay = DefaultSwitchDelay
	}
	if d.ForgetDelay == 0 {
		d.ForgetDelay = DefaultForgetDelay
	}
	if d.RebootDelay == 0 {
		d.RebootDelay = DefaultRebootDelay
	}
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	Deps
}

type dataResponse struct {
	Data any `json:"data"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, dataResponse{Data: v})
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

// writeError writes err as a JSON AppError. Validation failures map to 400,
// anything unrecognized to 500.
func writeError(w http.ResponseWriter, err error) {
	var appErr *models.AppError
	var valErr *wifi.ValidationError
	switch {
	case errors.As(err, &appErr):
	case errors.As(err, &valErr):
		appErr = models.ErrBadRequest(valErr.Error())
		appErr.Field = valErr.Field
	default:
		appErr = models.ErrInternal(err.Error())
	}
	writeJSON(w, appErr.Status, appErr)
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.ErrBadRequest("invalid JSON: " + err.Error())
	}
	return nil
}
