// status.go decodes raw wait statuses for logs and reports. The supervisor
// itself never interprets a status beyond zero/non-zero; the kernel
// encoding is preserved so callers can tell an exit code from a
// terminating signal.
package script

import (
	"fmt"
	"syscall"
)

// ExitCode returns the exit code encoded in a raw wait status, or -1 if
// the script did not exit normally (killed by a signal, or never started).
func ExitCode(status int) int {
	if status < 0 {
		return -1
	}
	ws := syscall.WaitStatus(status)
	if ws.Exited() {
		return ws.ExitStatus()
	}
	return -1
}

// Signal returns the signal that terminated the script, or -1 if the
// script was not killed by a signal.
func Signal(status int) syscall.Signal {
	if status < 0 {
		return -1
	}
	ws := syscall.WaitStatus(status)
	if ws.Signaled() {
		return ws.Signal()
	}
	return -1
}

// FormatStatus renders a raw wait status for human-readable logs.
func FormatStatus(status int) string {
	if status < 0 {
		return "failed to start"
	}
	ws := syscall.WaitStatus(status)
	switch {
	case ws.Signaled():
		return fmt.Sprintf("killed by signal %d (%s)", int(ws.Signal()), ws.Signal())
	case ws.Exited():
		return fmt.Sprintf("exit code %d", ws.ExitStatus())
	default:
		return fmt.Sprintf("status 0x%04x", status)
	}
}
