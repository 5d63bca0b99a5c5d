package commands

import (
	"fmt"

	"github.com/wonny/rigledger/internal/ledger"
	"github.com/wonny/rigledger/internal/localday"
	"github.com/wonny/rigledger/internal/series"
	"github.com/wonny/rigledger/internal/simulator"
	"github.com/wonny/rigledger/pkg/config"
	"github.com/wonny/rigledger/pkg/database"
	"github.com/wonny/rigledger/pkg/logger"
	"github.com/wonny/rigledger/pkg/redis"
)

// app holds the wired components shared by the commands
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *database.DB
	redis *redis.Client
	zone  localday.Zone

	ingestor   *ledger.Ingestor
	reconciler *ledger.Reconciler
	series     *series.Aggregator
	simulator  *simulator.Service
}

// loadConfig loads config and builds the logger
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, logger.New(cfg), nil
}

// loadGenerator builds the generator from SIM_PROFILE_PATH (or the built-in profile)
func loadGenerator(cfg *config.Config, zone localday.Zone) (*simulator.Generator, error) {
	profile := simulator.DefaultProfile()
	if cfg.Simulator.ProfilePath != "" {
		p, err := simulator.LoadProfile(cfg.Simulator.ProfilePath)
		if err != nil {
			return nil, fmt.Errorf("load profile %s: %w", cfg.Simulator.ProfilePath, err)
		}
		profile = p
	}
	return simulator.NewGenerator(profile, zone, cfg.Simulator.Seed)
}

// newApp connects to PostgreSQL (and Redis when enabled) and wires the ledger.
// Caller must call Close.
func newApp() (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	zone, err := localday.ParseZone(cfg.Ledger.UTCOffset)
	if err != nil {
		return nil, fmt.Errorf("parse utc offset: %w", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	rc, err := redis.New(cfg)
	if err != nil {
		// 캐시는 선택 사항: 연결 실패 시 캐시 없이 계속
		log.WithError(err).Warn("Redis unavailable, continuing without cache")
		rc = nil
	}

	lots := ledger.NewLotResolver(zone)
	ing := ledger.NewIngestor(db.Pool, lots, ledger.Options{MaxBulkRows: cfg.Ledger.MaxBulkRows}, log)

	var cache *redis.Cache
	if rc.Enabled() {
		cache = redis.NewCache(rc, "rigledger")
	}
	agg := series.NewAggregator(series.NewRepository(db.Pool), cache, zone, series.Options{
		HistoryLimit: cfg.Ledger.HistoryLimit,
		CacheTTL:     cfg.Ledger.QueryCacheTTL,
	}, log)

	gen, err := loadGenerator(cfg, zone)
	if err != nil {
		db.Close()
		return nil, err
	}
	sim := simulator.NewService(gen, ing, simulator.NewPgDayStore(db.Pool, zone), simulator.Options{
		Chunk:       cfg.Simulator.BackfillChunk,
		Parallelism: cfg.Simulator.Parallelism,
		PinnedRigs:  cfg.Simulator.RigIDs,
	}, log)
	sim.SetInvalidator(agg)

	return &app{
		cfg:        cfg,
		log:        log,
		db:         db,
		redis:      rc,
		zone:       zone,
		ingestor:   ing,
		reconciler: ledger.NewReconciler(db.Pool, log),
		series:     agg,
		simulator:  sim,
	}, nil
}

// Close releases the database and Redis connections
func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.db.Close()
}
