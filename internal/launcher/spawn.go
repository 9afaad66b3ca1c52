package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/ironsheep/passport-rembg/internal/config"
	"github.com/ironsheep/passport-rembg/internal/logging"
	"go.uber.org/zap"
)

// Spawner starts a detached service process listening on port.
type Spawner interface {
	Spawn(port int) error
}

// ExecSpawner re-executes a binary in service mode. Standard streams go to
// the null device and the child is detached from the caller's session.
type ExecSpawner struct {
	// Executable defaults to the running binary.
	Executable string
	// Args are appended after the service flags.
	Args   []string
	Logger *zap.Logger
}

func (s ExecSpawner) Spawn(port int) error {
	cmd, err := s.command(port)
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}

	if s.Logger != nil {
		s.Logger.Info("service process started", zap.String("exe", cmd.Path), zap.Int("pid", cmd.Process.Pid), zap.Int("port", port), zap.Strings("args", cmd.Args[1:]))
	}

	// Reap the child if it exits while we are still running.
	go cmd.Wait()
	return nil
}

func (s ExecSpawner) command(port int) (*exec.Cmd, error) {
	exe := s.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
	}

	args := append([]string{"--service", "--port", strconv.Itoa(port)}, s.Args...)
	cmd := exec.Command(exe, args...)
	cmd.Dir = filepath.Dir(exe)
	cmd.Env = append(os.Environ(), config.PortEnv+"="+strconv.Itoa(port))
	cmd.SysProcAttr = detached()
	return cmd, nil
}

// serviceArgs carries the caller's data directory and log mode over to the
// spawned service so both sides agree on the lock and diagnostic paths.
func serviceArgs(cfg *config.Config) []string {
	args := []string{"--data-dir", cfg.DataDir}
	if cfg.Log.Mode == logging.ModeDebug {
		args = append(args, "--debug")
	}
	return args
}

// SpawnFunc adapts a function to Spawner.
type SpawnFunc func(port int) error

func (f SpawnFunc) Spawn(port int) error { return f(port) }
