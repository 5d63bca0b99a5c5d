package ledger

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/rigledger/internal/localday"
	"github.com/wonny/rigledger/pkg/database"
	"github.com/wonny/rigledger/pkg/logger"
)

// driftTolerance is below the NUMERIC(18,3) resolution of lot totals
const driftTolerance = 0.0005

// LotDrift records a lot whose stored total differed from its readings
type LotDrift struct {
	LotID  int64   `json:"lotId"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

// ReconcileResult summarizes one reconcile pass
type ReconcileResult struct {
	Day     string     `json:"day"`
	Checked int        `json:"checked"`
	Drifted []LotDrift `json:"drifted"`
}

// Reconciler recomputes lot totals from their readings
type Reconciler struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(pool *pgxpool.Pool, log *logger.Logger) *Reconciler {
	return &Reconciler{pool: pool, logger: log.Component("reconcile")}
}

// ReconcileDay recomputes every lot of one local day, one transaction per lot
// so row locks stay short while ingestion continues.
func (r *Reconciler) ReconcileDay(ctx context.Context, day string) (*ReconcileResult, error) {
	if !localday.ValidDay(day) {
		return nil, fmt.Errorf("invalid day %q", day)
	}

	ids, err := LotIDsForDay(ctx, r.pool, day)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{Day: day, Drifted: []LotDrift{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var before, after float64
		err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
			var err error
			before, after, err = RecomputeTotal(ctx, tx, id)
			return err
		})
		if err != nil {
			return result, fmt.Errorf("reconcile lot %d: %w", id, err)
		}

		result.Checked++
		if math.Abs(before-after) > driftTolerance {
			result.Drifted = append(result.Drifted, LotDrift{LotID: id, Before: before, After: after})
			r.logger.Lot(id).WithFields(map[string]interface{}{
				"before": before,
				"after":  after,
			}).Warn("Lot total drifted")
		}
	}

	r.logger.WithFields(map[string]interface{}{
		"day":     day,
		"checked": result.Checked,
		"drifted": len(result.Drifted),
	}).Info("Reconcile complete")

	return result, nil
}
