package service

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// startHousekeeping schedules the periodic maintenance job and returns a
// function that stops it and waits for a running job to finish.
func (s *ServiceState) startHousekeeping() (func(), error) {
	if s.opts.HousekeepingSchedule == "" {
		return func() {}, nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.opts.HousekeepingSchedule, s.housekeep); err != nil {
		return nil, fmt.Errorf("invalid housekeeping schedule %q: %w", s.opts.HousekeepingSchedule, err)
	}
	c.Start()

	return func() { <-c.Stop().Done() }, nil
}

// housekeep logs the counters and restores the PID file if something removed
// it while the service is still serving.
func (s *ServiceState) housekeep() {
	stats := s.Stats()
	s.logger.Info("service stats",
		zap.Stringer("state", s.State()),
		zap.Int64("served", stats.Served),
		zap.Int64("failed", stats.Failed),
		zap.Int64("in_flight", stats.InFlight),
	)

	if s.State() == StateServing && s.pidFileMissing() {
		if err := s.writePID(); err != nil {
			s.logger.Warn("failed to restore pid file", zap.Error(err))
			return
		}
		s.logger.Info("restored pid file", zap.String("path", s.opts.PIDPath))
	}
}
