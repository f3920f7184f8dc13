package ipc

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
)

// WritePID writes pid to path.
func WritePID(pidPath string, pid int) error {
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", pid)), 0o600); err != nil {
		return errors.Wrap(err, "failed to write PID file")
	}
	return nil
}

// ReadPID reads a PID file.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, err
	}

	var pid int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &pid); err != nil {
		return 0, errors.Wrapf(err, "parse PID file %s", pidPath)
	}
	return pid, nil
}

// IsRunning reports whether a process with pid exists.
func IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// signal 0 only checks that the process exists
	return process.Signal(syscall.Signal(0)) == nil
}

// AcquirePID writes the current PID unless another instance is running.
// On conflict it returns the PID of the running instance.
func AcquirePID(pidPath string) (int, error) {
	if pid, err := ReadPID(pidPath); err == nil && pid != os.Getpid() && IsRunning(pid) {
		return pid, errors.Newf("already running with pid %d", pid)
	}
	return 0, WritePID(pidPath, os.Getpid())
}

// Cleanup removes the PID file and the socket.
func Cleanup(pidPath, socketPath string) error {
	for _, p := range []string{pidPath, socketPath} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
