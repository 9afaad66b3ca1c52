package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ironsheep/passport-rembg/internal/config"
	"github.com/ironsheep/passport-rembg/internal/logging"
	"go.uber.org/zap"
)

// ErrNotReachable is returned when the service did not answer within the
// wait timeout.
var ErrNotReachable = errors.New("service did not become reachable")

// Prober reports whether the service accepts connections.
type Prober interface {
	IsReachable() bool
}

// Launcher ensures the service is running, starting it at most once across
// concurrent callers and processes.
type Launcher struct {
	Probe   Prober
	Lock    Lock
	Spawner Spawner
	Port    int

	WaitTimeout  time.Duration
	PollInterval time.Duration
	// ErrorPath is the diagnostic file the service writes when it fails to
	// start. Its contents are attached to ErrNotReachable.
	ErrorPath string

	Logger *zap.Logger

	// mu keeps goroutines of one process from racing each other for the marker.
	mu sync.Mutex
}

// FromConfig builds a Launcher that re-executes the running binary.
func FromConfig(cfg *config.Config, probe Prober, logger *zap.Logger) *Launcher {
	logger = logging.OrNop(logger)
	return &Launcher{
		Probe:        probe,
		Lock:         NewFileLock(cfg.LockPath()),
		Spawner:      ExecSpawner{Executable: cfg.Launcher.Executable, Args: serviceArgs(cfg), Logger: logger},
		Port:         cfg.Service.Port,
		WaitTimeout:  cfg.Launcher.WaitTimeout,
		PollInterval: cfg.Launcher.PollInterval,
		ErrorPath:    cfg.ErrorPath(),
		Logger:       logger,
	}
}

// Ensure returns nil once the service is reachable.
//
// The caller that creates the marker re-checks reachability, spawns the
// service and polls for it; the marker is removed whatever the outcome.
// Other callers poll, taking over only if the marker's owner has died.
func (l *Launcher) Ensure(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.Probe.IsReachable() {
		return nil
	}

	deadline := time.Now().Add(l.waitTimeout())

	starter, err := l.acquire()
	if err != nil {
		return err
	}
	if starter {
		return l.start(ctx, deadline)
	}

	l.logger().Debug("another launcher is starting the service, waiting")
	return l.wait(ctx, deadline, true)
}

// acquire creates the marker, or reclaims it when its owner is gone.
func (l *Launcher) acquire() (bool, error) {
	ok, err := l.Lock.TryAcquire()
	if err != nil || ok {
		return ok, err
	}
	return l.takeOver()
}

func (l *Launcher) takeOver() (bool, error) {
	stale, err := l.Lock.IsStale()
	if err != nil || !stale {
		return false, err
	}

	l.logger().Info("reclaiming stale launch marker")
	return l.Lock.Reclaim()
}

func (l *Launcher) start(ctx context.Context, deadline time.Time) error {
	defer func() {
		if err := l.Lock.Release(); err != nil {
			l.logger().Warn("failed to release launch marker", zap.Error(err))
		}
	}()

	// Someone may have finished starting it between our probe and the marker.
	if l.Probe.IsReachable() {
		return nil
	}

	l.logger().Info("starting service", zap.Int("port", l.Port))
	if err := l.Spawner.Spawn(l.Port); err != nil {
		return fmt.Errorf("failed to spawn service: %w", err)
	}

	return l.wait(ctx, deadline, false)
}

// wait polls until the service answers. A waiter that finds a stale marker
// becomes the starter for the rest of the deadline.
func (l *Launcher) wait(ctx context.Context, deadline time.Time, canTakeOver bool) error {
	ticker := time.NewTicker(l.pollInterval())
	defer ticker.Stop()

	for {
		if l.Probe.IsReachable() {
			return nil
		}
		if !time.Now().Before(deadline) {
			return l.notReachable()
		}

		if canTakeOver {
			ok, err := l.takeOver()
			if err != nil {
				l.logger().Warn("failed to check launch marker", zap.Error(err))
			}
			if ok {
				return l.start(ctx, deadline)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Launcher) notReachable() error {
	if l.ErrorPath == "" {
		return ErrNotReachable
	}
	data, err := os.ReadFile(l.ErrorPath)
	if err != nil {
		return ErrNotReachable
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return fmt.Errorf("%w: %s", ErrNotReachable, msg)
	}
	return ErrNotReachable
}

func (l *Launcher) waitTimeout() time.Duration {
	if l.WaitTimeout > 0 {
		return l.WaitTimeout
	}
	return 90 * time.Second
}

func (l *Launcher) pollInterval() time.Duration {
	if l.PollInterval > 0 {
		return l.PollInterval
	}
	return time.Second
}

func (l *Launcher) logger() *zap.Logger {
	return logging.OrNop(l.Logger)
}
