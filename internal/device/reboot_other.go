//go:build !linux

package device

import "errors"

// SystemRebooter is unsupported off Linux.
type SystemRebooter struct{}

func (SystemRebooter) Reboot() error {
	return errors.New("device: reboot is only supported on linux")
}
