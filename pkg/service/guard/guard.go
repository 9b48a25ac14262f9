// Package guard prevents two server processes from sharing one local
// database. A lock file records the holder's PID; a lock whose process is
// gone is considered stale and taken over.
package guard

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/utils/logging"
	"github.com/shirou/gopsutil/v3/process"
)

// ErrAlreadyRunning indicates another live process holds the lock.
var ErrAlreadyRunning = goerr.New("another instance is already running")

// Lock is a held instance lock. Release it on shutdown.
type Lock struct {
	path string
	pid  int
}

// Acquire takes the instance lock at path, replacing a stale lock whose
// owning process no longer exists.
func Acquire(ctx context.Context, path string) (*Lock, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, goerr.Wrap(err, "failed to create lock directory", goerr.V("dir", dir))
		}
	}

	pid := os.Getpid()

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			if _, werr := f.WriteString(strconv.Itoa(pid)); werr != nil {
				f.Close()
				os.Remove(path)
				return nil, goerr.Wrap(werr, "failed to write lock file", goerr.V("path", path))
			}
			f.Close()
			return &Lock{path: path, pid: pid}, nil
		}
		if !os.IsExist(err) {
			return nil, goerr.Wrap(err, "failed to create lock file", goerr.V("path", path))
		}

		holder, herr := readHolder(path)
		if herr == nil && holder != pid {
			alive, aerr := process.PidExists(int32(holder))
			if aerr == nil && alive {
				return nil, goerr.Wrap(ErrAlreadyRunning, "lock is held",
					goerr.V("path", path), goerr.V("holder_pid", holder))
			}
		}

		// Holder is gone or the file is unreadable: take the lock over
		logging.From(ctx).Warn("removing stale instance lock",
			"path", path, "holder_pid", holder)
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			return nil, goerr.Wrap(rerr, "failed to remove stale lock", goerr.V("path", path))
		}
	}

	return nil, goerr.Wrap(ErrAlreadyRunning, "failed to acquire lock", goerr.V("path", path))
}

// Release removes the lock file. Releasing twice is harmless.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return goerr.Wrap(err, "failed to remove lock file", goerr.V("path", l.path))
	}
	return nil
}

func readHolder(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, goerr.Wrap(err, "malformed lock file", goerr.V("path", path))
	}
	return pid, nil
}
