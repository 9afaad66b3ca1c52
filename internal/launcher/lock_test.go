package launcher

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// markerPID returns the PID recorded in the marker at path.
func markerPID(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	pid, err := parsePID(data)
	require.NoError(t, err)
	return pid
}

func TestFileLock_AcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "service.starting")

	a := NewFileLock(path)
	b := NewFileLock(path)

	ok, err := a.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, os.Getpid(), markerPID(t, path))

	ok, err = b.TryAcquire()
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while the marker exists")

	// Releasing a lock that was never acquired leaves the marker alone.
	require.NoError(t, b.Release())
	assert.FileExists(t, path)

	require.NoError(t, a.Release())
	assert.NoFileExists(t, path)
	require.NoError(t, a.Release())

	ok, err = b.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileLock_IsStale(t *testing.T) {
	tests := []struct {
		name    string
		content string
		age     time.Duration
		alive   bool
		want    bool
	}{
		{"live owner", "123", 0, true, false},
		{"dead owner", "123", 0, false, true},
		{"dead owner fresh marker", "123", time.Hour, false, true},
		{"garbage fresh", "not-a-pid", 0, false, false},
		{"garbage old", "not-a-pid", time.Minute, false, true},
		{"empty fresh", "", 0, false, false},
		{"negative pid old", "-5", time.Minute, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "service.starting")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			if tt.age > 0 {
				old := time.Now().Add(-tt.age)
				require.NoError(t, os.Chtimes(path, old, old))
			}

			l := NewFileLock(path)
			l.alive = func(int) bool { return tt.alive }

			stale, err := l.IsStale()
			require.NoError(t, err)
			assert.Equal(t, tt.want, stale)
		})
	}
}

func TestFileLock_MarkersAreUniquePerAcquisition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.starting")
	l := NewFileLock(path)

	ok, err := l.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, l.Release())

	ok, err = l.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.NotEqual(t, string(first), string(second))
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.Fields(string(second))[0])
}

func TestFileLock_ReleaseKeepsReplacedMarker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "service.starting")

	a := NewFileLock(path)
	ok, err := a.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)

	// Another launcher reclaimed a's marker and created its own. Both run in
	// this process, so only the token tells the markers apart.
	require.NoError(t, os.Remove(path))
	b := NewFileLock(path)
	ok, err = b.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	want, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, a.Release())

	got, err := os.ReadFile(path)
	require.NoError(t, err, "release must not delete a marker it does not own")
	assert.Equal(t, string(want), string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no moved-aside file left behind")

	require.NoError(t, b.Release())
	assert.NoFileExists(t, path)
}

func TestFileLock_ReleaseAfterMarkerRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.starting")
	l := NewFileLock(path)
	ok, err := l.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, os.Remove(path))
	assert.NoError(t, l.Release())
	assert.NoFileExists(t, path)
}

func TestFileLock_IsStaleWithoutMarker(t *testing.T) {
	l := NewFileLock(filepath.Join(t.TempDir(), "service.starting"))
	stale, err := l.IsStale()
	require.NoError(t, err)
	assert.False(t, stale)
}

func TestFileLock_Reclaim(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "service.starting")
	require.NoError(t, os.WriteFile(path, []byte("4242"), 0o644))

	l := NewFileLock(path)
	l.alive = func(pid int) bool { return pid != 4242 }

	ok, err := l.Reclaim()
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, os.Getpid(), markerPID(t, path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "the moved-aside marker must be removed")
}

func TestFileLock_ReclaimLeavesLiveMarker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "service.starting")
	require.NoError(t, os.WriteFile(path, []byte("777"), 0o644))

	l := NewFileLock(path)
	l.alive = func(int) bool { return true }

	ok, err := l.Reclaim()
	require.NoError(t, err)
	assert.False(t, ok)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "777", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileLock_ReclaimWithoutMarker(t *testing.T) {
	l := NewFileLock(filepath.Join(t.TempDir(), "service.starting"))
	ok, err := l.Reclaim()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, processAlive(os.Getpid()))
	assert.False(t, processAlive(0))
	assert.False(t, processAlive(-1))
}

func TestParsePID(t *testing.T) {
	pid, err := parsePID([]byte(" " + strconv.Itoa(31337) + "\n"))
	require.NoError(t, err)
	assert.Equal(t, 31337, pid)

	pid, err = parsePID([]byte("4242 2CZ0ZbCbTs8fsDZg3oY6JMaAX4e"))
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	_, err = parsePID([]byte("abc"))
	assert.Error(t, err)
	_, err = parsePID([]byte("0"))
	assert.Error(t, err)
}
