// internal/schedule/schedule.go
package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Runner is the slice of the engine the scheduler drives.
type Runner interface {
	Start(ctx context.Context) error
	Stop()
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler opens and closes the automation window on cron expressions.
// Empty specs mean the window never opens or never closes on its own.
type Scheduler struct {
	startSpec string
	stopSpec  string
	runner    Runner
	log       *slog.Logger
	cron      *cron.Cron
}

func New(startSpec, stopSpec string, runner Runner, log *slog.Logger) *Scheduler {
	return &Scheduler{
		startSpec: startSpec,
		stopSpec:  stopSpec,
		runner:    runner,
		log:       log,
		cron:      cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the window edges and starts the cron ticker. The runner
// keeps its own already-running / already-stopped checks, so overlapping
// fires are harmless.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.startSpec != "" {
		_, err := s.cron.AddFunc(s.startSpec, func() {
			s.log.Info("automation window opening", "schedule", s.startSpec)
			if err := s.runner.Start(ctx); err != nil {
				s.log.Warn("scheduled start ignored", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid start schedule %q: %w", s.startSpec, err)
		}
	}

	if s.stopSpec != "" {
		_, err := s.cron.AddFunc(s.stopSpec, func() {
			s.log.Info("automation window closing", "schedule", s.stopSpec)
			s.runner.Stop()
		})
		if err != nil {
			return fmt.Errorf("invalid stop schedule %q: %w", s.stopSpec, err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron ticker. The runner is left in whatever state the last
// fired edge put it in.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
