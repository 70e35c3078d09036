package scheduler

import (
	"context"
	"sync"
	"time"

	"lead_notification_bot/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CycleScheduler drives the periodic lead processing cycle and the health
// staleness check. Stopping it cancels the in-flight cycle's context, so the
// cycle finishes its current lead (it checks the context each iteration) and
// exits; Start hands out a fresh context for the next run.
type CycleScheduler struct {
	cronEngine          *cron.Cron
	leadService         *app.LeadService
	health              *app.HealthMonitor
	logger              *logrus.Logger
	cronSpecCycle       string
	cronSpecHealthCheck string

	mu         sync.Mutex // guards runCtx, cancelRun, registered
	runCtx     context.Context
	cancelRun  context.CancelFunc
	registered bool
}

func NewCycleScheduler(
	leadService *app.LeadService,
	health *app.HealthMonitor,
	logger *logrus.Logger,
	cronSpecCycle string, // e.g. "*/30 * * * *"
	cronSpecHealthCheck string, // e.g. "*/10 * * * *"
) *CycleScheduler {
	return &CycleScheduler{
		cronEngine:          cron.New(cron.WithLocation(time.Local)), // server's local time
		leadService:         leadService,
		health:              health,
		logger:              logger,
		cronSpecCycle:       cronSpecCycle,
		cronSpecHealthCheck: cronSpecHealthCheck,
	}
}

// cycleContext returns the context for the current run window.
func (s *CycleScheduler) cycleContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx == nil {
		return context.Background()
	}
	return s.runCtx
}

// Start registers the jobs (first call only), derives a fresh run context and
// runs the cron engine. Safe to call again after Stop to resume the periodic
// trigger.
func (s *CycleScheduler) Start() {
	s.logger.Info("Starting cycle scheduler...")

	s.mu.Lock()
	s.runCtx, s.cancelRun = context.WithCancel(context.Background())
	registered := s.registered
	s.mu.Unlock()

	if registered {
		s.cronEngine.Start()
		s.logger.Info("Cycle scheduler resumed.")
		return
	}

	_, err := s.cronEngine.AddFunc(s.cronSpecCycle, func() {
		s.logger.Info("Cron job triggered: lead processing cycle.")
		if err := s.leadService.RunCycle(s.cycleContext()); err != nil {
			s.logger.Errorf("Error during scheduled cycle: %v", err)
		}
	})
	if err != nil {
		s.logger.Fatalf("FATAL: Could not add cycle cron job: %v", err)
	}

	_, err = s.cronEngine.AddFunc(s.cronSpecHealthCheck, func() {
		s.logger.Debug("Cron job triggered: fetch staleness check.")
		s.health.CheckStaleness()
	})
	if err != nil {
		s.logger.Fatalf("FATAL: Could not add health check cron job: %v", err)
	}

	s.mu.Lock()
	s.registered = true
	s.mu.Unlock()
	s.cronEngine.Start()
	s.logger.Info("Cycle scheduler started with jobs.")
}

// Stop pauses the periodic trigger and cancels the run context, so an
// in-flight cycle exits after its current lead. Returns once the running job
// has drained.
func (s *CycleScheduler) Stop() {
	s.logger.Info("Stopping cycle scheduler...")

	s.mu.Lock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.mu.Unlock()

	ctx := s.cronEngine.Stop() // no new jobs; wait for running ones
	<-ctx.Done()
	s.logger.Info("Cycle scheduler stopped.")
}

// Shutdown stops the scheduler for process exit.
func (s *CycleScheduler) Shutdown() {
	s.Stop()
	s.logger.Info("Cycle scheduler gracefully shut down.")
}
