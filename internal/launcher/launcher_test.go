package launcher

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ironsheep/passport-rembg/internal/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// fakeService stands in for a spawned process: Spawn binds the port after a
// short start-up delay.
type fakeService struct {
	t      *testing.T
	delay  time.Duration
	spawns atomic.Int32

	mu sync.Mutex
	ln net.Listener
}

func newFakeService(t *testing.T) *fakeService {
	f := &fakeService{t: t, delay: 100 * time.Millisecond}
	t.Cleanup(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.ln != nil {
			f.ln.Close()
		}
	})
	return f
}

func (f *fakeService) Spawn(port int) error {
	f.spawns.Add(1)
	go func() {
		time.Sleep(f.delay)
		ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			return
		}
		f.mu.Lock()
		f.ln = ln
		f.mu.Unlock()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return nil
}

func newLauncher(dir string, port int, spawner Spawner) *Launcher {
	return &Launcher{
		Probe:        client.New("127.0.0.1", port, nil),
		Lock:         NewFileLock(filepath.Join(dir, "service.starting")),
		Spawner:      spawner,
		Port:         port,
		WaitTimeout:  5 * time.Second,
		PollInterval: 20 * time.Millisecond,
		ErrorPath:    filepath.Join(dir, "service_error.txt"),
	}
}

func TestEnsure_ConcurrentLaunchersSpawnOnce(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	svc := newFakeService(t)

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		// Separate launchers share only the marker path, like separate processes.
		l := newLauncher(dir, port, svc)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = l.Ensure(context.Background())
		}()
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "launcher %d", i)
	}
	assert.EqualValues(t, 1, svc.spawns.Load())
	assert.NoFileExists(t, filepath.Join(dir, "service.starting"))
}

func TestEnsure_SameLauncherFromManyGoroutines(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	svc := newFakeService(t)
	l := newLauncher(dir, port, svc)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Ensure(context.Background()))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, svc.spawns.Load())
}

func TestEnsure_FastPath(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	dir := t.TempDir()
	spawns := 0
	l := newLauncher(dir, ln.Addr().(*net.TCPAddr).Port, SpawnFunc(func(int) error {
		spawns++
		return nil
	}))

	require.NoError(t, l.Ensure(context.Background()))
	assert.Zero(t, spawns)
	assert.NoFileExists(t, filepath.Join(dir, "service.starting"))
}

func TestEnsure_SpawnFailure(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	boom := errors.New("exec format error")

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		l := newLauncher(dir, port, SpawnFunc(func(int) error { return boom }))
		l.WaitTimeout = 400 * time.Millisecond
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = l.Ensure(context.Background())
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.Error(t, err, "launcher %d", i)
		assert.True(t, errors.Is(err, boom) || errors.Is(err, ErrNotReachable), "launcher %d: %v", i, err)
	}

	// Whoever held the marker must have removed it.
	assert.NoFileExists(t, filepath.Join(dir, "service.starting"))
}

func TestEnsure_ReclaimsStaleMarker(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	svc := newFakeService(t)

	marker := filepath.Join(dir, "service.starting")
	require.NoError(t, os.WriteFile(marker, []byte("4242"), 0o644))

	l := newLauncher(dir, port, svc)
	l.Lock.(*FileLock).alive = func(pid int) bool { return pid != 4242 }

	require.NoError(t, l.Ensure(context.Background()))
	assert.EqualValues(t, 1, svc.spawns.Load())
	assert.NoFileExists(t, marker)
}

func TestEnsure_WaiterTakesOverWhenOwnerDies(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	svc := newFakeService(t)

	marker := filepath.Join(dir, "service.starting")
	require.NoError(t, os.WriteFile(marker, []byte("4242"), 0o644))

	var ownerDead atomic.Bool
	l := newLauncher(dir, port, svc)
	l.Lock.(*FileLock).alive = func(pid int) bool { return pid != 4242 || !ownerDead.Load() }

	time.AfterFunc(150*time.Millisecond, func() { ownerDead.Store(true) })

	require.NoError(t, l.Ensure(context.Background()))
	assert.EqualValues(t, 1, svc.spawns.Load())
}

func TestEnsure_TimeoutIncludesDiagnostic(t *testing.T) {
	dir := t.TempDir()
	l := newLauncher(dir, freePort(t), SpawnFunc(func(int) error { return nil }))
	l.WaitTimeout = 200 * time.Millisecond

	msg := "Permission error: cannot access the model folder: /models/u2net"
	require.NoError(t, os.WriteFile(l.ErrorPath, []byte(msg+"\n"), 0o644))

	err := l.Ensure(context.Background())
	require.ErrorIs(t, err, ErrNotReachable)
	assert.Contains(t, err.Error(), msg)
	assert.NoFileExists(t, filepath.Join(dir, "service.starting"))
}

func TestEnsure_TimeoutWithoutDiagnostic(t *testing.T) {
	l := newLauncher(t.TempDir(), freePort(t), SpawnFunc(func(int) error { return nil }))
	l.WaitTimeout = 100 * time.Millisecond

	err := l.Ensure(context.Background())
	assert.Equal(t, ErrNotReachable, err)
}

func TestEnsure_ContextCancelled(t *testing.T) {
	l := newLauncher(t.TempDir(), freePort(t), SpawnFunc(func(int) error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, l.Ensure(ctx), context.DeadlineExceeded)
}
