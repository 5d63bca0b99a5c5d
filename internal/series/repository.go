package series

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/rigledger/internal/contracts"
	"github.com/wonny/rigledger/internal/ledger"
)

// MinuteBucket holds the per-channel means of one minute of a local day
type MinuteBucket struct {
	Minute int
	Means  [contracts.NumChannels]*float64
}

// Store is the read side the aggregator queries
type Store interface {
	LatestPerRig(ctx context.Context) ([]contracts.RigReading, error)
	WindowStats(ctx context.Context, start, end time.Time) ([]contracts.RigSummary, error)
	Readings(ctx context.Context, rigID int64, start, end time.Time, limit int) ([]contracts.Reading, error)
	MinuteMeans(ctx context.Context, rigID int64, start, end time.Time) ([]MinuteBucket, error)
	Lot(ctx context.Context, rigID int64, day string) (*contracts.Lot, error)
}

// channelList is the channel columns in column order
var channelList = strings.Join(channelNames(), ", ")

func channelNames() []string {
	names := make([]string, 0, contracts.NumChannels)
	for _, c := range contracts.Channels() {
		names = append(names, c.String())
	}
	return names
}

// channelAggregates renders "AGG(quantity), AGG(pressure), …"
func channelAggregates(agg string) string {
	parts := make([]string, 0, contracts.NumChannels)
	for _, name := range channelNames() {
		parts = append(parts, fmt.Sprintf("%s(%s)", agg, name))
	}
	return strings.Join(parts, ", ")
}

// Repository implements Store on Postgres. Reads run straight on the pool.
// ⭐ SSOT: readings 조회 쿼리는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new series repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LatestPerRig returns exactly one reading per rig: the newest by
// recorded_at, ties broken by the highest id.
func (r *Repository) LatestPerRig(ctx context.Context) ([]contracts.RigReading, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT ON (rd.rig_id)
			rd.id, rd.lot_id, rd.rig_id, rd.recorded_at, %s, rd.product_status,
			COALESCE(rg.name, ''), COALESCE(rg.status, '')
		FROM ledger.readings rd
		LEFT JOIN ledger.rigs rg ON rg.id = rd.rig_id
		ORDER BY rd.rig_id, rd.recorded_at DESC, rd.id DESC
	`, prefixed("rd", channelNames()))

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query latest readings: %w", err)
	}
	defer rows.Close()

	out := []contracts.RigReading{}
	for rows.Next() {
		var rr contracts.RigReading
		dest := append(readingDest(&rr.Reading), &rr.RigName, &rr.RigStatus)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan latest reading: %w", err)
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

// WindowStats aggregates every rig's readings in [start, end)
func (r *Repository) WindowStats(ctx context.Context, start, end time.Time) ([]contracts.RigSummary, error) {
	query := fmt.Sprintf(`
		SELECT rig_id, COUNT(*), COALESCE(SUM(quantity), 0), %s,
		       MIN(recorded_at), MAX(recorded_at)
		FROM ledger.readings
		WHERE recorded_at >= $1 AND recorded_at < $2
		GROUP BY rig_id
		ORDER BY rig_id
	`, channelAggregates("AVG"))

	rows, err := r.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query window stats: %w", err)
	}
	defer rows.Close()

	out := []contracts.RigSummary{}
	for rows.Next() {
		var s contracts.RigSummary
		var avgs [contracts.NumChannels]*float64

		dest := []interface{}{&s.RigID, &s.Readings, &s.TotalQuantity}
		for i := range avgs {
			dest = append(dest, &avgs[i])
		}
		dest = append(dest, &s.FirstAt, &s.LastAt)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan window stats: %w", err)
		}

		s.Averages = make(map[string]*float64, contracts.NumChannels)
		for _, c := range contracts.Channels() {
			s.Averages[c.String()] = avgs[c]
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Readings returns one rig's readings in [start, end), oldest first, at most limit rows
func (r *Repository) Readings(ctx context.Context, rigID int64, start, end time.Time, limit int) ([]contracts.Reading, error) {
	query := fmt.Sprintf(`
		SELECT id, lot_id, rig_id, recorded_at, %s, product_status
		FROM ledger.readings
		WHERE rig_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		ORDER BY recorded_at ASC, id ASC
		LIMIT $4
	`, channelList)

	rows, err := r.pool.Query(ctx, query, rigID, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	out := []contracts.Reading{}
	for rows.Next() {
		var rd contracts.Reading
		if err := rows.Scan(readingDest(&rd)...); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, rd)
	}
	return out, rows.Err()
}

// MinuteMeans buckets one rig's readings in [start, end) by whole minutes
// since start and averages every channel per bucket. Empty minutes are absent.
func (r *Repository) MinuteMeans(ctx context.Context, rigID int64, start, end time.Time) ([]MinuteBucket, error) {
	query := fmt.Sprintf(`
		SELECT FLOOR(EXTRACT(EPOCH FROM (recorded_at - $2::timestamptz)) / 60)::int AS minute, %s
		FROM ledger.readings
		WHERE rig_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		GROUP BY 1
		ORDER BY 1
	`, channelAggregates("AVG"))

	rows, err := r.pool.Query(ctx, query, rigID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query minute means: %w", err)
	}
	defer rows.Close()

	var out []MinuteBucket
	for rows.Next() {
		var b MinuteBucket
		dest := []interface{}{&b.Minute}
		for i := range b.Means {
			dest = append(dest, &b.Means[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan minute bucket: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Lot returns the lot of (rigID, day)
func (r *Repository) Lot(ctx context.Context, rigID int64, day string) (*contracts.Lot, error) {
	return ledger.GetLot(ctx, r.pool, rigID, day)
}

func readingDest(rd *contracts.Reading) []interface{} {
	v := &rd.Values
	return []interface{}{
		&rd.ID, &rd.LotID, &rd.RigID, &rd.RecordedAt,
		&v.Quantity, &v.Pressure, &v.Temperature, &v.Humidity, &v.CO2, &v.H2S, &v.Mercury, &v.Water,
		&rd.ProductStatus,
	}
}

func prefixed(alias string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}
