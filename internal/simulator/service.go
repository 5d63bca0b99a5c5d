package simulator

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/rigledger/internal/contracts"
	"github.com/wonny/rigledger/internal/localday"
	"github.com/wonny/rigledger/pkg/logger"
)

// BulkIngestor is the ledger write path generated samples go through
type BulkIngestor interface {
	IngestBulk(ctx context.Context, inputs []contracts.ReadingInput) (*contracts.BulkResult, error)
}

// Invalidator drops cached query answers after a day was rewritten
type Invalidator interface {
	Invalidate(ctx context.Context, rigID int64, day string)
}

// Options configures a Service
type Options struct {
	// Chunk is the number of samples per IngestBulk call during a backfill
	Chunk int
	// Parallelism bounds concurrent rigs in BackfillRigs
	Parallelism int
	// PinnedRigs keep their live stream forever (the scheduled tick rigs)
	PinnedRigs []int64
	// MaxStreams caps live streams of other rigs; the least recently used is dropped
	MaxStreams int
}

// BackfillRequest asks for one rig's whole local day
type BackfillRequest struct {
	RigID     int64  `json:"rigId"`
	Date      string `json:"date"`
	Overwrite bool   `json:"overwrite"`
}

// BackfillResult reports a finished backfill
type BackfillResult struct {
	RigID    int64         `json:"rigId"`
	Date     string        `json:"date"`
	Deleted  int64         `json:"deleted"`
	Inserted int           `json:"inserted"`
	Chunks   int           `json:"chunks"`
	LotID    int64         `json:"lotId"`
	TotalQty float64       `json:"totalQty"`
	Duration time.Duration `json:"duration"`
}

// Service drives the generator into the ledger
// ⭐ SSOT: 시뮬레이터 → ledger 경로는 여기서만
type Service struct {
	gen         *Generator
	ingestor    BulkIngestor
	store       DayStore
	invalidator Invalidator
	opts        Options
	now         func() time.Time
	logger      *logger.Logger

	locks *dayLocks

	mu      sync.Mutex
	streams map[int64]*streamEntry
	pinned  map[int64]struct{}
	tick    uint64
}

type streamEntry struct {
	stream   *Stream
	lastUsed uint64
}

// NewService creates a new simulator service
func NewService(gen *Generator, ingestor BulkIngestor, store DayStore, opts Options, log *logger.Logger) *Service {
	if opts.Chunk <= 0 {
		opts.Chunk = 1000
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if opts.MaxStreams <= 0 {
		opts.MaxStreams = 256
	}
	pinned := make(map[int64]struct{}, len(opts.PinnedRigs))
	for _, id := range opts.PinnedRigs {
		pinned[id] = struct{}{}
	}
	return &Service{
		gen:      gen,
		ingestor: ingestor,
		store:    store,
		opts:     opts,
		now:      time.Now,
		logger:   log.Component("simulator"),
		locks:    newDayLocks(),
		streams:  make(map[int64]*streamEntry),
		pinned:   pinned,
	}
}

// SetInvalidator registers the cache to clear after backfills
func (s *Service) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// BulkGenerate ingests one live sample per rig, stamped now, as one batch
func (s *Service) BulkGenerate(ctx context.Context, rigIDs []int64) (*contracts.BulkResult, error) {
	if len(rigIDs) == 0 {
		return nil, contracts.ValidationError{Field: "rigIds", Message: "required"}
	}

	ids := make([]int64, 0, len(rigIDs))
	seen := make(map[int64]struct{}, len(rigIDs))
	for i, id := range rigIDs {
		if id <= 0 {
			return nil, contracts.ValidationError{Field: fmt.Sprintf("rigIds[%d]", i), Message: "must be > 0"}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	at := s.now().Truncate(time.Second)
	inputs := make([]contracts.ReadingInput, 0, len(ids))
	for _, id := range ids {
		inputs = append(inputs, s.stream(id).Next(at).Input(id))
	}

	return s.ingestor.IngestBulk(ctx, inputs)
}

func (s *Service) stream(rigID int64) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tick++
	if e, ok := s.streams[rigID]; ok {
		e.lastUsed = s.tick
		return e.stream
	}

	if _, pinned := s.pinned[rigID]; !pinned && s.unpinnedStreams() >= s.opts.MaxStreams {
		s.evictOldest()
	}
	e := &streamEntry{stream: s.gen.NewStream(rigID), lastUsed: s.tick}
	s.streams[rigID] = e
	return e.stream
}

func (s *Service) unpinnedStreams() int {
	n := 0
	for id := range s.streams {
		if _, ok := s.pinned[id]; !ok {
			n++
		}
	}
	return n
}

// evictOldest drops the least recently used unpinned stream
func (s *Service) evictOldest() {
	var (
		victim int64
		oldest uint64
		found  bool
	)
	for id, e := range s.streams {
		if _, ok := s.pinned[id]; ok {
			continue
		}
		if !found || e.lastUsed < oldest {
			victim, oldest, found = id, e.lastUsed, true
		}
	}
	if found {
		delete(s.streams, victim)
	}
}

// StreamCount reports how many live streams are held
func (s *Service) StreamCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

// Backfill generates a rig's whole local day and ingests it in chunks.
// With Overwrite the day is cleared first. The lot total is recomputed from
// its readings at the end. Backfills of the same rig and day run one at a
// time, in this process and across processes sharing the store.
func (s *Service) Backfill(ctx context.Context, req BackfillRequest) (*BackfillResult, error) {
	if req.RigID <= 0 {
		return nil, contracts.ValidationError{Field: "rigId", Message: "required"}
	}
	if !localday.ValidDay(req.Date) {
		return nil, contracts.ValidationError{Field: "date", Message: fmt.Sprintf("invalid date %q", req.Date)}
	}

	seq, err := s.gen.Day(req.RigID, req.Date)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.lock(ctx, BackfillKey{RigID: req.RigID, Date: req.Date})
	if err != nil {
		return nil, err
	}
	defer unlock()

	unlockStore, err := s.store.LockDay(ctx, req.RigID, req.Date)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &contracts.StorageError{Op: "backfill lock day", Err: err}
	}
	defer unlockStore()

	started := s.now()
	result := &BackfillResult{RigID: req.RigID, Date: req.Date}
	log := s.logger.Rig(req.RigID, req.Date)

	if req.Overwrite {
		deleted, err := s.store.ClearDay(ctx, req.RigID, req.Date)
		if err != nil {
			return nil, &contracts.StorageError{Op: "backfill clear day", Err: err}
		}
		result.Deleted = deleted
	}

	chunk := make([]contracts.ReadingInput, 0, s.opts.Chunk)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.ingestor.IngestBulk(ctx, chunk)
		if err != nil {
			return fmt.Errorf("backfill chunk %d (%d rows): %w", result.Chunks+1, len(chunk), err)
		}
		result.Inserted += res.InsertedCount
		result.Chunks++
		chunk = chunk[:0]
		return nil
	}

	for _, sample := range seq {
		chunk = append(chunk, sample.Input(req.RigID))
		if len(chunk) == s.opts.Chunk {
			if err := flush(); err != nil {
				log.WithError(err).WithField("inserted", result.Inserted).Error("Backfill aborted")
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		log.WithError(err).WithField("inserted", result.Inserted).Error("Backfill aborted")
		return nil, err
	}

	lotID, total, err := s.store.RecomputeLot(ctx, req.RigID, req.Date)
	if err != nil {
		return nil, &contracts.StorageError{Op: "backfill recompute", Err: err}
	}
	result.LotID = lotID
	result.TotalQty = total
	result.Duration = s.now().Sub(started)

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, req.RigID, req.Date)
	}

	log.WithFields(map[string]interface{}{
		"deleted":   result.Deleted,
		"inserted":  result.Inserted,
		"chunks":    result.Chunks,
		"total_qty": result.TotalQty,
	}).Info("Backfill complete")

	return result, nil
}

// BackfillRigs runs several backfills concurrently, at most Parallelism at
// once. The first failure cancels the rest. A (rig, day) listed twice runs
// once, the first listing's overwrite flag wins. Results follow the order of
// the distinct requests.
func (s *Service) BackfillRigs(ctx context.Context, reqs []BackfillRequest) ([]*BackfillResult, error) {
	if len(reqs) == 0 {
		return nil, contracts.ValidationError{Field: "requests", Message: "required"}
	}
	reqs = dedupeRequests(reqs)

	results := make([]*BackfillResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallelism)

	for i, req := range reqs {
		g.Go(func() error {
			res, err := s.Backfill(gctx, req)
			if err != nil {
				return fmt.Errorf("rig %d %s: %w", req.RigID, req.Date, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func dedupeRequests(reqs []BackfillRequest) []BackfillRequest {
	seen := make(map[BackfillKey]struct{}, len(reqs))
	out := make([]BackfillRequest, 0, len(reqs))
	for _, req := range reqs {
		key := BackfillKey{RigID: req.RigID, Date: req.Date}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, req)
	}
	return out
}

// ExpandRequests builds one request per distinct rig and day in [from, to]
func ExpandRequests(rigIDs []int64, from, to string, overwrite bool) ([]BackfillRequest, error) {
	start, err := time.Parse(localday.DayLayout, from)
	if err != nil {
		return nil, contracts.ValidationError{Field: "from", Message: err.Error()}
	}
	end, err := time.Parse(localday.DayLayout, to)
	if err != nil {
		return nil, contracts.ValidationError{Field: "to", Message: err.Error()}
	}
	if end.Before(start) {
		return nil, contracts.ValidationError{Field: "to", Message: "must not be before from"}
	}

	ids := append([]int64(nil), rigIDs...)
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	ids = slices.Compact(ids)

	var reqs []BackfillRequest
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		for _, id := range ids {
			reqs = append(reqs, BackfillRequest{RigID: id, Date: d.Format(localday.DayLayout), Overwrite: overwrite})
		}
	}
	return reqs, nil
}
