package reconcile

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"shikkha/internal/index/metrics"
)

// Scheduler runs the Sweeper and then the Auditor on a cron schedule.
// A run that is still going when the next one is due is skipped.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	sweeper *Sweeper
	auditor *Auditor
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewScheduler validates spec, which accepts standard five-field cron
// expressions and descriptors such as "@every 1m".
func NewScheduler(spec string, sweeper *Sweeper, auditor *Auditor, m *metrics.Metrics, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		spec:    spec,
		sweeper: sweeper,
		auditor: auditor,
		metrics: m,
		logger:  logger,
	}, nil
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// an in-flight pass to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "reconciliation scheduled", "schedule", s.spec)
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

// RunOnce performs a single sweep and audit pass.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	applied, err := s.sweeper.Run(ctx)
	if err != nil {
		s.fail(ctx, "sweeper", err)
	} else if applied > 0 {
		s.logger.InfoContext(ctx, "ledger receipts projected", "count", applied)
	}

	if s.auditor == nil {
		return
	}
	report, err := s.auditor.Run(ctx)
	if err != nil {
		s.fail(ctx, "auditor", err)
		return
	}
	if report.Orphaned+report.Restored+report.Revoked+report.Rewritten > 0 {
		s.logger.InfoContext(ctx, "index audit repaired entries",
			"scanned", report.Scanned,
			"orphaned", report.Orphaned,
			"restored", report.Restored,
			"revoked", report.Revoked,
			"rewritten", report.Rewritten,
		)
	}
}

func (s *Scheduler) fail(ctx context.Context, job string, err error) {
	if s.metrics != nil {
		s.metrics.IncrementReconcileFailure(job)
	}
	s.logger.ErrorContext(ctx, "reconciliation failed", "job", job, "error", err)
}
