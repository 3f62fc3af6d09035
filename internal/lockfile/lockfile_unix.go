//go:build !windows

package lockfile

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isProcessRunning sends signal 0 to pid.
func isProcessRunning(pid int) bool {
	err := unix.Kill(pid, 0)
	// EPERM means the process exists under another user
	return err == nil || errors.Is(err, unix.EPERM)
}
