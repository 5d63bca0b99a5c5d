package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/rigledger/internal/contracts"
	"github.com/wonny/rigledger/pkg/database"
	"github.com/wonny/rigledger/pkg/logger"
)

// readingColumns is the column order of every reading insert
var readingColumns = []string{
	"lot_id", "rig_id", "recorded_at",
	"quantity", "pressure", "temperature", "humidity", "co2", "h2s", "mercury", "water",
	"product_status",
}

const (
	insertReadingSQL = `
		INSERT INTO ledger.readings (
			lot_id, rig_id, recorded_at,
			quantity, pressure, temperature, humidity, co2, h2s, mercury, water,
			product_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	addToTotalSQL = `
		UPDATE ledger.lots
		SET total_qty = COALESCE(total_qty, 0) + $2::numeric,
		    updated_at = NOW()
		WHERE id = $1`
)

// Publisher receives readings after their transaction committed
type Publisher interface {
	Publish(readings []contracts.Reading)
}

// Options configures an Ingestor
type Options struct {
	// MaxBulkRows rejects larger batches before any I/O
	MaxBulkRows int
}

// Ingestor persists readings and maintains each lot's running total
// ⭐ SSOT: readings 쓰기 경로는 여기서만
type Ingestor struct {
	pool      *pgxpool.Pool
	lots      *LotResolver
	opts      Options
	now       func() time.Time
	publisher Publisher
	logger    *logger.Logger
}

// NewIngestor creates a new ingestor
func NewIngestor(pool *pgxpool.Pool, lots *LotResolver, opts Options, log *logger.Logger) *Ingestor {
	if opts.MaxBulkRows <= 0 {
		opts.MaxBulkRows = 5000
	}
	return &Ingestor{
		pool:   pool,
		lots:   lots,
		opts:   opts,
		now:    time.Now,
		logger: log.Component("ledger"),
	}
}

// SetPublisher registers the post-commit listener
func (i *Ingestor) SetPublisher(p Publisher) {
	i.publisher = p
}

// Pool returns the underlying database pool
func (i *Ingestor) Pool() *pgxpool.Pool {
	return i.pool
}

// Lots returns the lot resolver used by the ingestor
func (i *Ingestor) Lots() *LotResolver {
	return i.lots
}

// MaxBulkRows is the largest batch IngestBulk accepts
func (i *Ingestor) MaxBulkRows() int {
	return i.opts.MaxBulkRows
}

// IngestOne stores one reading. The lot is resolved, the row inserted and the
// lot total incremented (only when a quantity is present) in one transaction.
func (i *Ingestor) IngestOne(ctx context.Context, in contracts.ReadingInput) (*contracts.IngestResult, error) {
	plan, err := planBatch([]contracts.ReadingInput{in}, i.lots.Zone(), i.now())
	if err != nil {
		return nil, err
	}
	row := plan.rows[0]

	var reading contracts.Reading
	err = database.WithTx(ctx, i.pool, func(tx pgx.Tx) error {
		lotID, err := i.lots.EnsureLot(ctx, tx, row.key.RigID, row.key.Day)
		if err != nil {
			return err
		}

		reading = toReading(lotID, row)
		args := append([]interface{}{lotID, row.key.RigID, row.at}, row.values.Args()...)
		args = append(args, row.input.ProductStatus)
		if err := tx.QueryRow(ctx, insertReadingSQL, args...).Scan(&reading.ID); err != nil {
			return fmt.Errorf("insert reading: %w", err)
		}

		if row.qty != nil {
			if _, err := tx.Exec(ctx, addToTotalSQL, lotID, row.qty.String()); err != nil {
				return fmt.Errorf("update lot total: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		i.logger.Rig(in.RigID, "").WithError(err).Error("Failed to ingest reading")
		return nil, classify("ingest one", 1, err)
	}

	i.publish([]contracts.Reading{reading})

	return &contracts.IngestResult{
		OK:                  true,
		LotID:               reading.LotID,
		NormalizedTimestamp: i.lots.Zone().Format(row.at),
		RecordedAt:          row.at,
	}, nil
}

// IngestBulk stores a batch atomically: lots are resolved once per distinct
// (rig, local day), all rows go in with one COPY, and each touched lot gets one
// aggregated total update. Any failure rolls the whole batch back.
func (i *Ingestor) IngestBulk(ctx context.Context, inputs []contracts.ReadingInput) (*contracts.BulkResult, error) {
	if len(inputs) == 0 {
		return nil, contracts.ValidationError{Field: "readings", Message: "empty batch"}
	}
	if len(inputs) > i.opts.MaxBulkRows {
		return nil, &contracts.PayloadTooLargeError{Rows: len(inputs), Limit: i.opts.MaxBulkRows}
	}

	plan, err := planBatch(inputs, i.lots.Zone(), i.now())
	if err != nil {
		return nil, err
	}

	lotIDs := make(map[lotKey]int64, len(plan.keys))
	err = database.WithTx(ctx, i.pool, func(tx pgx.Tx) error {
		// memoized per distinct key, in lock order
		for _, key := range plan.keys {
			id, err := i.lots.EnsureLot(ctx, tx, key.RigID, key.Day)
			if err != nil {
				return err
			}
			lotIDs[key] = id
		}

		rows := make([][]interface{}, len(plan.rows))
		for n, row := range plan.rows {
			r := append([]interface{}{lotIDs[row.key], row.key.RigID, row.at}, row.values.Args()...)
			rows[n] = append(r, row.input.ProductStatus)
		}

		copied, err := tx.CopyFrom(ctx, pgx.Identifier{"ledger", "readings"}, readingColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy readings: %w", err)
		}
		if int(copied) != len(rows) {
			return fmt.Errorf("copy readings: wrote %d of %d rows", copied, len(rows))
		}

		deltas := quantityDeltas(plan.rows, lotIDs)
		if len(deltas) == 0 {
			return nil
		}

		ids := sortedLotIDs(deltas)
		batch := &pgx.Batch{}
		for _, id := range ids {
			batch.Queue(addToTotalSQL, id, deltas[id].String())
		}

		br := tx.SendBatch(ctx, batch)
		for _, id := range ids {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("update lot %d total: %w", id, err)
			}
		}
		return br.Close()
	})
	if err != nil {
		i.logger.WithError(err).WithField("rows", len(inputs)).Error("Failed to ingest batch")
		return nil, classify("ingest bulk", len(inputs), err)
	}

	i.logger.WithFields(map[string]interface{}{
		"rows": len(plan.rows),
		"lots": len(plan.keys),
	}).Debug("Bulk ingested")

	if i.publisher != nil {
		readings := make([]contracts.Reading, len(plan.rows))
		for n, row := range plan.rows {
			readings[n] = toReading(lotIDs[row.key], row)
		}
		i.publish(readings)
	}

	ids := make([]int64, 0, len(plan.keys))
	for _, key := range plan.keys {
		ids = append(ids, lotIDs[key])
	}

	return &contracts.BulkResult{
		InsertedCount:    len(plan.rows),
		DistinctLotCount: len(plan.keys),
		LotIDs:           ids,
	}, nil
}

func (i *Ingestor) publish(readings []contracts.Reading) {
	if i.publisher == nil || len(readings) == 0 {
		return
	}
	i.publisher.Publish(readings)
}

func toReading(lotID int64, row plannedRow) contracts.Reading {
	return contracts.Reading{
		LotID:         lotID,
		RigID:         row.key.RigID,
		RecordedAt:    row.at,
		Values:        row.values,
		ProductStatus: row.input.ProductStatus,
	}
}

// classify maps a failed transaction onto the error taxonomy
func classify(op string, rows int, err error) error {
	switch {
	case err == nil:
		return nil
	case contracts.IsValidation(err), contracts.IsPayloadTooLarge(err):
		return err
	case database.IsPayloadTooLarge(err):
		return &contracts.PayloadTooLargeError{Rows: rows, Err: err}
	default:
		return &contracts.StorageError{Op: op, Err: err}
	}
}
