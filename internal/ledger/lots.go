package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wonny/rigledger/internal/contracts"
	"github.com/wonny/rigledger/internal/localday"
	"github.com/wonny/rigledger/pkg/database"
)

// DBTX is the unit of work every ledger write runs on.
// Satisfied by pgx.Tx, *pgxpool.Conn and *pgxpool.Pool.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrLotNotFound is returned when no lot exists for a (rig, day)
var ErrLotNotFound = errors.New("lot not found")

const (
	insertLotSQL = `
		INSERT INTO ledger.lots (rig_id, lot_date)
		VALUES ($1, $2::date)
		ON CONFLICT (rig_id, lot_date) DO NOTHING
		RETURNING id`

	selectLotIDSQL = `
		SELECT id FROM ledger.lots
		WHERE rig_id = $1 AND lot_date = $2::date`
)

// LotResolver maps (rig, local calendar day) to the one lot id of that key
// ⭐ SSOT: lot 생성은 여기서만 (UNIQUE (rig_id, lot_date))
type LotResolver struct {
	zone        localday.Zone
	maxAttempts int
}

// NewLotResolver creates a resolver bucketing days in zone
func NewLotResolver(zone localday.Zone) *LotResolver {
	return &LotResolver{zone: zone, maxAttempts: 3}
}

// Zone returns the local-day zone of the resolver
func (r *LotResolver) Zone() localday.Zone { return r.zone }

// EnsureLotAt resolves the lot of the local day containing t
func (r *LotResolver) EnsureLotAt(ctx context.Context, q DBTX, rigID int64, t time.Time) (int64, error) {
	return r.EnsureLot(ctx, q, rigID, r.zone.DayOf(t))
}

// EnsureLot returns the id of the lot for (rigID, day), creating it if absent.
// Concurrent callers converge on one id: the insert yields to the unique
// constraint and the lookup then sees the winner's row. The lookup can only
// miss when the winning transaction rolled back, so the pair is retried.
func (r *LotResolver) EnsureLot(ctx context.Context, q DBTX, rigID int64, day string) (int64, error) {
	if rigID <= 0 {
		return 0, contracts.ValidationError{Field: "rigId", Message: "required"}
	}
	if !localday.ValidDay(day) {
		return 0, contracts.ValidationError{Field: "lotDate", Message: fmt.Sprintf("invalid date %q", day)}
	}

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		var id int64
		err := q.QueryRow(ctx, insertLotSQL, rigID, day).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) && !database.IsUniqueViolation(err) {
			return 0, fmt.Errorf("insert lot (%d, %s): %w", rigID, day, err)
		}

		err = q.QueryRow(ctx, selectLotIDSQL, rigID, day).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("select lot (%d, %s): %w", rigID, day, err)
		}
	}

	return 0, fmt.Errorf("lot (%d, %s) not resolved after %d attempts", rigID, day, r.maxAttempts)
}

// LookupLot returns the id of an existing lot without creating one
func LookupLot(ctx context.Context, q DBTX, rigID int64, day string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, selectLotIDSQL, rigID, day).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrLotNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("select lot (%d, %s): %w", rigID, day, err)
	}
	return id, nil
}

// GetLot loads the lot of (rigID, day) with its reading count
func GetLot(ctx context.Context, q DBTX, rigID int64, day string) (*contracts.Lot, error) {
	query := `
		SELECT l.id, l.rig_id, l.lot_date, l.status, l.total_qty::float8,
		       (SELECT COUNT(*) FROM ledger.readings r WHERE r.lot_id = l.id)
		FROM ledger.lots l
		WHERE l.rig_id = $1 AND l.lot_date = $2::date`

	var lot contracts.Lot
	var lotDate time.Time
	err := q.QueryRow(ctx, query, rigID, day).Scan(
		&lot.ID, &lot.RigID, &lotDate, &lot.Status, &lot.TotalQty, &lot.ReadingCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query lot: %w", err)
	}
	lot.LotDate = lotDate.Format(localday.DayLayout)

	return &lot, nil
}

// RecomputeTotal replaces a lot's total with a fresh SUM over its readings.
// The lot row is locked first, so an incremental update racing with the
// recompute is applied either fully before it (and included in the SUM) or
// after it (on top of the recomputed value), never twice.
func RecomputeTotal(ctx context.Context, q DBTX, lotID int64) (before, after float64, err error) {
	err = q.QueryRow(ctx,
		`SELECT total_qty::float8 FROM ledger.lots WHERE id = $1 FOR UPDATE`, lotID,
	).Scan(&before)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, ErrLotNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("lock lot %d: %w", lotID, err)
	}

	err = q.QueryRow(ctx, `
		UPDATE ledger.lots
		SET total_qty = COALESCE((SELECT SUM(ROUND(quantity::numeric, 3)) FROM ledger.readings WHERE lot_id = $1), 0),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING total_qty::float8`, lotID,
	).Scan(&after)
	if err != nil {
		return 0, 0, fmt.Errorf("recompute lot %d: %w", lotID, err)
	}

	return before, after, nil
}

// DeleteReadingsInWindow removes a rig's readings in [start, end)
func DeleteReadingsInWindow(ctx context.Context, q DBTX, rigID int64, start, end time.Time) (int64, error) {
	tag, err := q.Exec(ctx, `
		DELETE FROM ledger.readings
		WHERE rig_id = $1 AND recorded_at >= $2 AND recorded_at < $3`,
		rigID, start, end,
	)
	if err != nil {
		return 0, fmt.Errorf("delete readings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LotIDsForDay lists the lots of one local day
func LotIDsForDay(ctx context.Context, q DBTX, day string) ([]int64, error) {
	rows, err := q.Query(ctx, `SELECT id FROM ledger.lots WHERE lot_date = $1::date ORDER BY id`, day)
	if err != nil {
		return nil, fmt.Errorf("query lots for %s: %w", day, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
