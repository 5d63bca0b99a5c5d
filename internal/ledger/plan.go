package ledger

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/rigledger/internal/contracts"
	"github.com/wonny/rigledger/internal/localday"
)

// lotKey is the idempotency key of a lot
type lotKey struct {
	RigID int64
	Day   string
}

func (k lotKey) less(o lotKey) bool {
	if k.RigID != o.RigID {
		return k.RigID < o.RigID
	}
	return k.Day < o.Day
}

// QuantityScale is the number of decimals kept for quantities; it matches
// ledger.lots.total_qty NUMERIC(18,3).
const QuantityScale = 3

// plannedRow is a validated reading with its resolved timestamp and lot key.
// values is what gets stored: the input's channels with quantity rounded to
// QuantityScale, so the row and the lot delta carry the same number.
type plannedRow struct {
	key    lotKey
	at     time.Time
	input  *contracts.ReadingInput
	values contracts.Values
	qty    *decimal.Decimal
}

// batchPlan is everything a bulk ingest needs before touching the store
type batchPlan struct {
	rows []plannedRow
	// distinct lot keys in ascending (rig, day) order
	keys []lotKey
}

// planBatch validates inputs and resolves every row's timestamp and lot key.
// It does no I/O; any error here means nothing was written.
func planBatch(inputs []contracts.ReadingInput, zone localday.Zone, now time.Time) (*batchPlan, error) {
	plan := &batchPlan{rows: make([]plannedRow, 0, len(inputs))}
	seen := make(map[lotKey]struct{})

	for i := range inputs {
		in := &inputs[i]
		field := func(name string) string {
			if len(inputs) == 1 {
				return name
			}
			return fmt.Sprintf("readings[%d].%s", i, name)
		}

		if in.RigID <= 0 {
			return nil, contracts.ValidationError{Field: field("rigId"), Message: "required"}
		}

		at, day, err := resolveTimestamp(in, zone, now)
		if err != nil {
			return nil, contracts.ValidationError{Field: field("recordedAt"), Message: err.Error()}
		}

		for _, c := range contracts.Channels() {
			if v := in.Values.Get(c); v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
				return nil, contracts.ValidationError{Field: field(c.String()), Message: "must be a finite number"}
			}
		}

		row := plannedRow{key: lotKey{RigID: in.RigID, Day: day}, at: at, input: in, values: in.Values}
		if in.Quantity != nil {
			q := decimal.NewFromFloat(*in.Quantity).Round(QuantityScale)
			rounded := q.InexactFloat64()
			row.qty = &q
			row.values.Quantity = &rounded
		}

		key := row.key
		plan.rows = append(plan.rows, row)
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			plan.keys = append(plan.keys, key)
		}
	}

	// one lock order for every batch
	sort.Slice(plan.keys, func(a, b int) bool { return plan.keys[a].less(plan.keys[b]) })

	return plan, nil
}

// resolveTimestamp picks the effective instant of a reading and its local day.
// "now" is used when forced or when no timestamp was supplied.
func resolveTimestamp(in *contracts.ReadingInput, zone localday.Zone, now time.Time) (time.Time, string, error) {
	raw := strings.TrimSpace(in.RecordedAt)
	if in.ForceNow || raw == "" {
		return now, zone.DayOf(now), nil
	}

	at, err := zone.Parse(raw)
	if err != nil {
		return time.Time{}, "", err
	}
	day, err := zone.DayOfString(raw)
	if err != nil {
		return time.Time{}, "", err
	}
	return at, day, nil
}

// quantityDeltas sums the rounded quantities per resolved lot id. Lots whose
// rows carry no quantity get no entry.
func quantityDeltas(rows []plannedRow, lotIDs map[lotKey]int64) map[int64]decimal.Decimal {
	deltas := make(map[int64]decimal.Decimal)
	for _, row := range rows {
		if row.qty == nil {
			continue
		}
		id := lotIDs[row.key]
		deltas[id] = deltas[id].Add(*row.qty)
	}
	return deltas
}

// sortedLotIDs returns the keys of deltas in ascending order
func sortedLotIDs(deltas map[int64]decimal.Decimal) []int64 {
	ids := make([]int64, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}
