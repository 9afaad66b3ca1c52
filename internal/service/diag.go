package service

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// diagnosticMessage is what the launching client shows when warm-up fails.
func (s *ServiceState) diagnosticMessage(err error) string {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Sprintf("Permission error: cannot access the model folder: %s\n%v\n", s.opts.ModelDir, err)
	}
	return fmt.Sprintf("Service failed to start: %v\n", err)
}

func (s *ServiceState) writeDiagnostic(err error) error {
	if s.opts.ErrorPath == "" {
		return nil
	}
	return writeFile(s.opts.ErrorPath, s.diagnosticMessage(err))
}

func (s *ServiceState) clearDiagnostic() {
	if s.opts.ErrorPath != "" {
		os.Remove(s.opts.ErrorPath)
	}
}

func (s *ServiceState) writePID() error {
	if s.opts.PIDPath == "" {
		return nil
	}
	return writeFile(s.opts.PIDPath, strconv.Itoa(os.Getpid()))
}

func (s *ServiceState) removePID() {
	if s.opts.PIDPath != "" {
		os.Remove(s.opts.PIDPath)
	}
}

// pidFileMissing reports whether the PID file should exist but does not.
func (s *ServiceState) pidFileMissing() bool {
	if s.opts.PIDPath == "" {
		return false
	}
	_, err := os.Stat(s.opts.PIDPath)
	return errors.Is(err, fs.ErrNotExist)
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
