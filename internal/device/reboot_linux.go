//go:build linux

package device

import "golang.org/x/sys/unix"

// SystemRebooter flushes filesystems and restarts the kernel.
type SystemRebooter struct{}

func (SystemRebooter) Reboot() error {
	unix.Sync()
	return unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART)
}
