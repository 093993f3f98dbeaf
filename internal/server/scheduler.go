package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"fieldmap/internal/history"
)

// Scheduler revalidates the whole workspace on a cron schedule and records
// the results to history. The sweep lists documents at fire time, so
// additions and removals need no reload.
type Scheduler struct {
	cron     *cron.Cron
	ws       *Workspace
	history  *history.Store
	schedule string
	logger   *slog.Logger
}

// NewScheduler creates a scheduler. An empty schedule disables it.
func NewScheduler(ws *Workspace, hist *history.Store, schedule string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:     cron.New(),
		ws:       ws,
		history:  hist,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the revalidation sweep and starts the cron runner.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("workspace revalidation disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("invalid revalidate schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("workspace revalidation scheduled", "schedule", s.schedule)
	return nil
}

// Stop gracefully stops the cron runner.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("workspace revalidation stopped")
}

// sweep validates every document currently in the workspace.
func (s *Scheduler) sweep() {
	ctx := context.Background()
	names, err := s.ws.List()
	if err != nil {
		s.logger.Warn("workspace sweep failed", "error", err)
		return
	}

	for _, name := range names {
		res, err := s.ws.Validate(ctx, name)
		if err != nil {
			s.logger.Warn("scheduled validation failed", "document", name, "error", err)
			continue
		}
		if s.history != nil {
			if _, err := s.history.Record(ctx, res); err != nil {
				s.logger.Warn("record validation run", "document", name, "error", err)
			}
		}
		s.logger.Info("document revalidated",
			"document", name,
			"status", res.Status,
			"diagnostics", len(res.Diagnostics),
		)
	}
}
