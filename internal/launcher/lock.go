package launcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
)

// DefaultStaleGrace is how old an unreadable marker must be before it is
// treated as abandoned. A fresh marker may still be mid-write.
const DefaultStaleGrace = 10 * time.Second

// Lock is the cross-process marker deciding which launcher starts the service.
type Lock interface {
	// TryAcquire creates the marker. It reports false without error when
	// another launcher already holds it.
	TryAcquire() (bool, error)
	// Release removes a marker this Lock created. It is a no-op otherwise.
	Release() error
	// IsStale reports whether the current marker belongs to a dead owner.
	IsStale() (bool, error)
	// Reclaim removes a stale marker and tries to acquire it.
	Reclaim() (bool, error)
}

// FileLock implements Lock with exclusive creation of a file holding the
// owner's PID followed by a token unique to each acquisition.
type FileLock struct {
	Path string
	// Grace is the age after which an unparseable marker is stale.
	Grace time.Duration

	pid   int
	held  bool
	token string
	alive func(pid int) bool
}

func NewFileLock(path string) *FileLock {
	return &FileLock{
		Path:  path,
		Grace: DefaultStaleGrace,
		pid:   os.Getpid(),
		alive: processAlive,
	}
}

func (l *FileLock) TryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(l.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create lock marker: %w", err)
	}

	token := strconv.Itoa(l.pid) + " " + ksuid.New().String()
	_, werr := f.WriteString(token)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(l.Path)
		return false, fmt.Errorf("failed to write lock marker: %w", werr)
	}

	l.held = true
	l.token = token
	return true, nil
}

// Release removes the marker only if it still carries this lock's token. A
// marker created by another launcher after a reclaim is put back untouched.
func (l *FileLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false

	aside, err := l.moveAside()
	if err != nil || aside == "" {
		return err
	}
	defer os.Remove(aside)

	data, err := os.ReadFile(aside)
	if err != nil {
		return fmt.Errorf("failed to read lock marker: %w", err)
	}
	if string(data) != l.token {
		return l.restore(aside)
	}
	return nil
}

// IsStale reports false when there is no marker at all.
func (l *FileLock) IsStale() (bool, error) {
	stale, err := l.staleFile(l.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return stale, err
}

// Reclaim moves the marker aside before judging it, so only one launcher
// gets to judge a given marker. A marker that turns out to be live is linked
// back in place.
func (l *FileLock) Reclaim() (bool, error) {
	aside, err := l.moveAside()
	if err != nil || aside == "" {
		return false, err
	}
	defer os.Remove(aside)

	stale, err := l.staleFile(aside)
	if err != nil {
		return false, err
	}
	if !stale {
		return false, l.restore(aside)
	}

	return l.TryAcquire()
}

// moveAside renames the marker to a private name. It returns "" when there
// is no marker.
func (l *FileLock) moveAside() (string, error) {
	aside := fmt.Sprintf("%s.%d.%d.aside", l.Path, l.pid, time.Now().UnixNano())
	if err := os.Rename(l.Path, aside); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to move lock marker: %w", err)
	}
	return aside, nil
}

// restore links a moved marker back unless a newer one already took its place.
func (l *FileLock) restore(aside string) error {
	if err := os.Link(aside, l.Path); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("failed to restore lock marker: %w", err)
	}
	return nil
}

func (l *FileLock) staleFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	pid, err := parsePID(data)
	if err != nil {
		return time.Since(info.ModTime()) > l.Grace, nil
	}
	return !l.alive(pid), nil
}

// parsePID reads the PID, the first field of the marker.
func parsePID(data []byte) (int, error) {
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty lock marker")
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("invalid pid in lock marker: %w", err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid pid in lock marker: %d", pid)
	}
	return pid, nil
}
