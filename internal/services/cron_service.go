package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/tourlink/marketplace-backend/internal/metrics"
)

// CronService manages scheduled background jobs. Jobs only report; they
// never change bookings, tours or agencies.
type CronService struct {
	cron     *cron.Cron
	schedule string
	audits   AuditStore
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

// NewCronService creates a new CronService. schedule uses the six-field
// format: second minute hour day month weekday.
func NewCronService(schedule string, audits AuditStore, m *metrics.Metrics, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:     cron.New(cron.WithSeconds()),
		schedule: schedule,
		audits:   audits,
		metrics:  m,
		logger:   logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.reconciliationReportJob); err != nil {
		return fmt.Errorf("failed to schedule reconciliation report: %w", err)
	}
	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// RunReconciliationReport runs the report immediately and returns the queue size
func (s *CronService) RunReconciliationReport(ctx context.Context) (int, error) {
	count, err := s.audits.CountUnresolved(ctx)
	if err != nil {
		return 0, err
	}
	s.metrics.ReconciliationQueue.Set(float64(count))
	if count == 0 {
		return 0, nil
	}

	entry := s.logger.WithField("unresolved", count)
	newest, err := s.audits.GetAmountMismatches(ctx, 1)
	if err == nil && len(newest) > 0 {
		entry = entry.WithField("newest_at", newest[0].CreatedAt)
	}
	entry.Warn("Payment mismatches awaiting manual reconciliation")
	return count, nil
}

func (s *CronService) reconciliationReportJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	count, err := s.RunReconciliationReport(ctx)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Reconciliation report failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"unresolved":  count,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("[CRON] Reconciliation report finished")
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
