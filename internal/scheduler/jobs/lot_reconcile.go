package jobs

import (
	"context"
	"time"

	"github.com/wonny/rigledger/internal/ledger"
	"github.com/wonny/rigledger/internal/localday"
	"github.com/wonny/rigledger/pkg/logger"
)

// Reconciler recomputes the lot totals of one local day
type Reconciler interface {
	ReconcileDay(ctx context.Context, day string) (*ledger.ReconcileResult, error)
}

// LotReconcileJob repairs yesterday's lot totals once the day is closed
type LotReconcileJob struct {
	reconciler Reconciler
	zone       localday.Zone
	now        func() time.Time
	logger     *logger.Logger
}

// NewLotReconcileJob creates a new lot reconcile job
func NewLotReconcileJob(r Reconciler, zone localday.Zone, log *logger.Logger) *LotReconcileJob {
	return &LotReconcileJob{
		reconciler: r,
		zone:       zone,
		now:        time.Now,
		logger:     log,
	}
}

// Name returns the job name
func (j *LotReconcileJob) Name() string {
	return "lot_reconcile"
}

// Schedule returns the cron schedule (00:05 local, daily)
func (j *LotReconcileJob) Schedule() string {
	return "0 5 0 * * *"
}

// Run reconciles the previous local day
func (j *LotReconcileJob) Run(ctx context.Context) error {
	day, err := localday.PreviousDay(j.zone.Today(j.now()))
	if err != nil {
		return err
	}

	result, err := j.reconciler.ReconcileDay(ctx, day)
	if err != nil {
		return err
	}

	if len(result.Drifted) > 0 {
		j.logger.WithFields(map[string]interface{}{
			"day":     day,
			"drifted": len(result.Drifted),
		}).Warn("Lot totals repaired")
	}
	return nil
}
