package simulator

import (
	"context"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/rigledger/internal/ledger"
	"github.com/wonny/rigledger/internal/localday"
	"github.com/wonny/rigledger/pkg/database"
)

// DayStore does the lot maintenance around a backfill
type DayStore interface {
	// ClearDay deletes a rig's readings in the day window and re-derives the
	// lot total from what remains, atomically.
	ClearDay(ctx context.Context, rigID int64, day string) (int64, error)
	// RecomputeLot replaces the lot total with a fresh sum of its readings
	RecomputeLot(ctx context.Context, rigID int64, day string) (lotID int64, total float64, err error)
	// LockDay excludes every other backfill of the same rig and day, across
	// processes, until unlock is called.
	LockDay(ctx context.Context, rigID int64, day string) (unlock func(), err error)
}

// PgDayStore implements DayStore on Postgres
type PgDayStore struct {
	pool *pgxpool.Pool
	zone localday.Zone
}

// NewPgDayStore creates a new day store
func NewPgDayStore(pool *pgxpool.Pool, zone localday.Zone) *PgDayStore {
	return &PgDayStore{pool: pool, zone: zone}
}

// ClearDay implements DayStore
func (s *PgDayStore) ClearDay(ctx context.Context, rigID int64, day string) (int64, error) {
	start, end, err := s.zone.Window(day)
	if err != nil {
		return 0, err
	}

	var deleted int64
	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		n, err := ledger.DeleteReadingsInWindow(ctx, tx, rigID, start, end)
		if err != nil {
			return err
		}
		deleted = n

		lotID, err := ledger.LookupLot(ctx, tx, rigID, day)
		if errors.Is(err, ledger.ErrLotNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		_, _, err = ledger.RecomputeTotal(ctx, tx, lotID)
		return err
	})
	return deleted, err
}

// RecomputeLot implements DayStore
func (s *PgDayStore) RecomputeLot(ctx context.Context, rigID int64, day string) (int64, float64, error) {
	var lotID int64
	var total float64
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		id, err := ledger.LookupLot(ctx, tx, rigID, day)
		if err != nil {
			return err
		}
		lotID = id
		_, total, err = ledger.RecomputeTotal(ctx, tx, id)
		return err
	})
	return lotID, total, err
}

// LockDay implements DayStore with a session advisory lock held on one pooled
// connection for the whole clear, ingest and recompute sequence.
func (s *PgDayStore) LockDay(ctx context.Context, rigID int64, day string) (func(), error) {
	key := advisoryKey(rigID, day)

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("lock backfill %d/%s: %w", rigID, day, err)
	}

	return func() {
		// 세션 락: 같은 커넥션에서 풀어야 함
		if _, err := conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, key); err != nil {
			// a connection that still holds the lock must not go back to the pool
			_ = conn.Conn().Close(context.WithoutCancel(ctx))
		}
		conn.Release()
	}, nil
}

// advisoryKey maps (rig, day) onto the bigint advisory lock space
func advisoryKey(rigID int64, day string) int64 {
	return int64(xxhash.Sum64String(fmt.Sprintf("rigledger/backfill/%d/%s", rigID, day)))
}
