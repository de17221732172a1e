package market

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the periodic reconciliation and liveliness ticks
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	logger  *zap.Logger
}

func NewScheduler(service *Service, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		service: service,
		logger:  logger,
	}
}

// Start registers the periodic jobs and starts the scheduler. The 5s
// reconcile tick is the safety net that catches offers slipping below the
// floor between price updates.
func (s *Scheduler) Start(reconcileEvery, livelinessEvery time.Duration) error {
	if _, err := s.cron.AddFunc(every(reconcileEvery), s.service.ReconcileNow); err != nil {
		return fmt.Errorf("failed to schedule reconcile job: %w", err)
	}
	if _, err := s.cron.AddFunc(every(livelinessEvery), s.service.LivelinessTick); err != nil {
		return fmt.Errorf("failed to schedule liveliness job: %w", err)
	}

	// Run one pass immediately so the book is valid before the first tick.
	s.service.ReconcileNow()

	s.cron.Start()
	s.logger.Info("market scheduler started",
		zap.Duration("reconcile_every", reconcileEvery),
		zap.Duration("liveliness_every", livelinessEvery))
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("market scheduler stopped")
}

func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}
