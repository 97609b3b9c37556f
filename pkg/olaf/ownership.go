package olaf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// pidFile is the ownership marker inside the index directory.
const pidFile = "olaf.pid"

// ErrIndexOwned is returned when another live process holds the index.
var ErrIndexOwned = errors.New("olaf: index directory owned by another process")

// AcquireOwnership claims the index directory for this process by writing
// a PID file next to the index. A live PID from another process refuses
// startup; a stale file from a dead process is replaced. Re-acquiring an
// index this process already owns succeeds.
func (x *Index) AcquireOwnership() error {
	if err := os.MkdirAll(x.DBDir, 0o755); err != nil {
		return fmt.Errorf("olaf: create index dir: %w", err)
	}
	path := filepath.Join(x.DBDir, pidFile)

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// No owner.
	case err != nil:
		return fmt.Errorf("olaf: read pid file: %w", err)
	default:
		pid, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if convErr == nil && pid != os.Getpid() && pidAlive(pid) {
			return fmt.Errorf("%w: pid %d", ErrIndexOwned, pid)
		}
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("olaf: write pid file: %w", err)
	}
	return nil
}

// ReleaseOwnership removes the PID file if this process holds it.
func (x *Index) ReleaseOwnership() error {
	path := filepath.Join(x.DBDir, pidFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("olaf: read pid file: %w", err)
	}
	if pid, convErr := strconv.Atoi(strings.TrimSpace(string(data))); convErr == nil && pid != os.Getpid() {
		// Someone else took over; leave their marker alone.
		return nil
	}
	return os.Remove(path)
}

// pidAlive probes a PID with signal 0. EPERM still means alive, just not
// ours to signal.
func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
