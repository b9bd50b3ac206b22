// Package hardware drives the board peripherals the daemon owns: the status
// LED and the CPU thermal sensor.
package hardware

import (
	"log/slog"

	"github.com/micro-nova/laserguard/internal/models"
)

// LED is a single on/off indicator.
type LED interface {
	Set(on bool) error
	Close() error
}

// ShowMode lights led when the device is connected and turns it off in pair mode.
func ShowMode(led LED, mode models.Mode) error {
	return led.Set(mode == models.ModeConnected)
}

// FollowMode returns a device settings subscriber that keeps led in step
// with the provisioning mode. Failures are logged.
func FollowMode(led LED) func(prev, next models.DeviceSettings) {
	return func(prev, next models.DeviceSettings) {
		if prev.Mode == next.Mode {
			return
		}
		if err := ShowMode(led, next.Mode); err != nil {
			slog.Warn("hardware: status led", "mode", next.Mode, "err", err)
		}
	}
}
