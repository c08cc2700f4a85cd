package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/rentfold/rentfold/internal/billing/domain"
	"github.com/rentfold/rentfold/internal/clock"
	obsmetrics "github.com/rentfold/rentfold/internal/observability/metrics"
	rewardsdomain "github.com/rentfold/rentfold/internal/rewards/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	InvoiceSvc billingdomain.InvoiceService
	PaymentSvc billingdomain.PaymentService
	LateFeeSvc billingdomain.LateFeeService
	RewardsSvc rewardsdomain.Service
	Config     Config `optional:"true"`
}

// Scheduler drives the periodic ledger jobs: invoice generation, overdue
// sweeps, credit and reward application, and pending-payment reconciliation.
type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	invoiceSvc billingdomain.InvoiceService
	paymentSvc billingdomain.PaymentService
	lateFeeSvc billingdomain.LateFeeService
	rewardsSvc rewardsdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil ||
		p.InvoiceSvc == nil || p.PaymentSvc == nil || p.LateFeeSvc == nil || p.RewardsSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
		paymentSvc: p.PaymentSvc,
		lateFeeSvc: p.LateFeeSvc,
		rewardsSvc: p.RewardsSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) (int, error),
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	runID := s.genID.Generate().String()
	log := s.log.With(zap.String("job", name), zap.String("run_id", runID))
	jobMetrics := obsmetrics.Jobs()
	jobMetrics.IncJobRun(name)
	log.Info("scheduler.job.start")

	processed, err := fn(ctx)
	jobMetrics.ObserveJobDuration(name, time.Since(start))
	jobMetrics.AddBatchProcessed(name, processed)

	fields := []zap.Field{
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Int("processed_count", processed),
	}
	if err == nil {
		log.Info("scheduler.job.finish", fields...)
		return nil
	}

	// Deadline and cancellation are soft failures: the next tick picks the
	// remaining work back up.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		jobMetrics.IncJobTimeout(name)
		jobMetrics.IncJobError(name, err)
		log.Warn("job timed out", append(fields, zap.Duration("timeout", timeout), zap.Error(err))...)
		return nil
	}

	jobMetrics.IncJobError(name, err)
	log.Warn("scheduler.job.finish", append(fields, zap.Error(err))...)
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Timeout time.Duration
		Run     func(context.Context) (int, error)
	}{
		{"generate_invoices", s.cfg.JobTimeout, s.GenerateInvoicesJob},
		{"late_fee_sweep", s.cfg.JobTimeout, s.LateFeeSweepJob},
		{"auto_apply_credits", s.cfg.JobTimeout, s.AutoApplyCreditsJob},
		{"streak_evaluation", s.cfg.JobTimeout, s.StreakEvaluationJob},
		{"reward_auto_apply", s.cfg.JobTimeout, s.RewardAutoApplyJob},
		// Pending reconciliation polls gateways, so it gets more room.
		{"reconcile_pending", 2 * time.Minute, s.ReconcilePendingPaymentsJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Timeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	jobMetrics := obsmetrics.Jobs()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			jobMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty allowlist enables every job (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
