// Package series answers the read-side questions over persisted readings:
// latest per rig, today's summary, raw history and the daily minute grid.
package series

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wonny/rigledger/internal/contracts"
	"github.com/wonny/rigledger/internal/ledger"
	"github.com/wonny/rigledger/internal/localday"
	"github.com/wonny/rigledger/pkg/logger"
	"github.com/wonny/rigledger/pkg/redis"
)

// MaxHistoryLimit caps any requested history limit
const MaxHistoryLimit = 50000

// ErrLotNotFound is returned by LotSummary when the rig has no lot that day
var ErrLotNotFound = ledger.ErrLotNotFound

// Options configures an Aggregator
type Options struct {
	HistoryLimit int
	CacheTTL     time.Duration
}

// Aggregator serves read queries, optionally through the Redis cache
type Aggregator struct {
	store  Store
	cache  *redis.Cache
	zone   localday.Zone
	opts   Options
	now    func() time.Time
	group  singleflight.Group
	logger *logger.Logger
}

// NewAggregator creates a new aggregator. cache may be nil.
func NewAggregator(store Store, cache *redis.Cache, zone localday.Zone, opts Options, log *logger.Logger) *Aggregator {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 5000
	}
	if opts.HistoryLimit > MaxHistoryLimit {
		opts.HistoryLimit = MaxHistoryLimit
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = redis.TTLRealtime
	}
	return &Aggregator{
		store:  store,
		cache:  cache,
		zone:   zone,
		opts:   opts,
		now:    time.Now,
		logger: log.Component("series"),
	}
}

// Zone returns the local-day zone of the aggregator
func (a *Aggregator) Zone() localday.Zone { return a.zone }

// LatestPerRig returns the newest reading of every rig
func (a *Aggregator) LatestPerRig(ctx context.Context) ([]contracts.RigReading, error) {
	return cached(ctx, a, redis.LatestKey, a.opts.CacheTTL, func(ctx context.Context) ([]contracts.RigReading, error) {
		out, err := a.store.LatestPerRig(ctx)
		if err != nil {
			return nil, &contracts.StorageError{Op: "latest per rig", Err: err}
		}
		return out, nil
	})
}

// SummaryToday aggregates every rig over [today local midnight, next local midnight)
func (a *Aggregator) SummaryToday(ctx context.Context) (*contracts.TodaySummary, error) {
	day := a.zone.Today(a.now())
	return cached(ctx, a, redis.TodayKey(day), a.opts.CacheTTL, func(ctx context.Context) (*contracts.TodaySummary, error) {
		start, end, err := a.zone.Window(day)
		if err != nil {
			return nil, err
		}
		rigs, err := a.store.WindowStats(ctx, start, end)
		if err != nil {
			return nil, &contracts.StorageError{Op: "summary today", Err: err}
		}
		return &contracts.TodaySummary{Date: day, Rigs: rigs}, nil
	})
}

// History returns one rig's raw readings in ascending time. A date selects
// that local day; from/to select a half-open range. Limit truncates.
func (a *Aggregator) History(ctx context.Context, rigID int64, q contracts.HistoryQuery) ([]contracts.Reading, error) {
	if rigID <= 0 {
		return nil, contracts.ValidationError{Field: "rigId", Message: "required"}
	}

	start, end, err := a.historyWindow(q)
	if err != nil {
		return nil, err
	}

	out, err := a.store.Readings(ctx, rigID, start, end, a.historyLimit(q.Limit))
	if err != nil {
		return nil, &contracts.StorageError{Op: "history", Err: err}
	}
	return out, nil
}

func (a *Aggregator) historyWindow(q contracts.HistoryQuery) (time.Time, time.Time, error) {
	if q.Date != "" {
		if !localday.ValidDay(q.Date) {
			return time.Time{}, time.Time{}, contracts.ValidationError{Field: "date", Message: fmt.Sprintf("invalid date %q", q.Date)}
		}
		return a.zone.Window(q.Date)
	}

	if q.From == "" || q.To == "" {
		return time.Time{}, time.Time{}, contracts.ValidationError{Field: "date", Message: "either date or both from and to are required"}
	}
	from, err := a.zone.Parse(q.From)
	if err != nil {
		return time.Time{}, time.Time{}, contracts.ValidationError{Field: "from", Message: err.Error()}
	}
	to, err := a.zone.Parse(q.To)
	if err != nil {
		return time.Time{}, time.Time{}, contracts.ValidationError{Field: "to", Message: err.Error()}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, contracts.ValidationError{Field: "to", Message: "must not be before from"}
	}
	return from, to, nil
}

func (a *Aggregator) historyLimit(requested int) int {
	switch {
	case requested <= 0:
		return a.opts.HistoryLimit
	case requested > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return requested
	}
}

// DailySeries returns the fixed 1440-minute grid of one rig's local day
func (a *Aggregator) DailySeries(ctx context.Context, rigID int64, day string) (*contracts.DailySeries, error) {
	if rigID <= 0 {
		return nil, contracts.ValidationError{Field: "rigId", Message: "required"}
	}
	if !localday.ValidDay(day) {
		return nil, contracts.ValidationError{Field: "date", Message: fmt.Sprintf("invalid date %q", day)}
	}

	// 지난 날짜만 오래 캐시 (오늘은 계속 바뀜)
	ttl := a.opts.CacheTTL
	if day < a.zone.Today(a.now()) {
		ttl = redis.TTLMedium
	}

	return cached(ctx, a, redis.SeriesKey(rigID, day), ttl, func(ctx context.Context) (*contracts.DailySeries, error) {
		start, end, err := a.zone.Window(day)
		if err != nil {
			return nil, err
		}
		buckets, err := a.store.MinuteMeans(ctx, rigID, start, end)
		if err != nil {
			return nil, &contracts.StorageError{Op: "daily series", Err: err}
		}
		return buildGrid(day, buckets), nil
	})
}

// LotSummary returns the lot of (rigID, day) with its reading count
func (a *Aggregator) LotSummary(ctx context.Context, rigID int64, day string) (*contracts.Lot, error) {
	if rigID <= 0 {
		return nil, contracts.ValidationError{Field: "rigId", Message: "required"}
	}
	if !localday.ValidDay(day) {
		return nil, contracts.ValidationError{Field: "date", Message: fmt.Sprintf("invalid date %q", day)}
	}

	lot, err := a.store.Lot(ctx, rigID, day)
	if errors.Is(err, ErrLotNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &contracts.StorageError{Op: "lot summary", Err: err}
	}
	return lot, nil
}

// Invalidate drops cached answers touched by a rewrite of (rigID, day)
func (a *Aggregator) Invalidate(ctx context.Context, rigID int64, day string) {
	if !a.cache.Enabled() {
		return
	}
	keys := []string{redis.LatestKey, redis.TodayKey(day), redis.SeriesKey(rigID, day)}
	if err := a.cache.Delete(ctx, keys...); err != nil {
		a.logger.WithError(err).Warn("Cache invalidation failed")
	}
}

// cached serves key from the cache, otherwise loads it once for all
// concurrent callers and stores the result. Cache failures only log.
func cached[T any](ctx context.Context, a *Aggregator, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if !a.cache.Enabled() {
		return load(ctx)
	}

	v, err, _ := a.group.Do(key, func() (interface{}, error) {
		var out T
		hit, err := a.cache.Get(ctx, key, &out)
		if err != nil {
			a.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
		}
		if hit {
			return out, nil
		}

		out, err = load(ctx)
		if err != nil {
			return out, err
		}
		if err := a.cache.Set(ctx, key, out, ttl); err != nil {
			a.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
		}
		return out, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
