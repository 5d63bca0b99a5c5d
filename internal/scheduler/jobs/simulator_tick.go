package jobs

import (
	"context"
	"time"

	"github.com/wonny/rigledger/internal/contracts"
	"github.com/wonny/rigledger/internal/scheduler"
	"github.com/wonny/rigledger/pkg/logger"
)

// Generator produces one live sample per rig and ingests them as a batch
type Generator interface {
	BulkGenerate(ctx context.Context, rigIDs []int64) (*contracts.BulkResult, error)
}

// SimulatorTickJob feeds live synthetic readings for the configured rigs
type SimulatorTickJob struct {
	gen      Generator
	rigIDs   []int64
	schedule string
	logger   *logger.Logger
}

// NewSimulatorTickJob creates a new simulator tick job
func NewSimulatorTickJob(gen Generator, rigIDs []int64, schedule string, log *logger.Logger) *SimulatorTickJob {
	if schedule == "" {
		schedule = "*/5 * * * * *"
	}
	return &SimulatorTickJob{
		gen:      gen,
		rigIDs:   rigIDs,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *SimulatorTickJob) Name() string {
	return "simulator_tick"
}

// Schedule returns the cron schedule (every 5 seconds by default)
func (j *SimulatorTickJob) Schedule() string {
	return j.schedule
}

// Policy disables retries: a missed tick is simply the next tick
func (j *SimulatorTickJob) Policy() scheduler.Policy {
	return scheduler.Policy{Timeout: 4 * time.Second}
}

// Run generates and ingests one sample per rig
func (j *SimulatorTickJob) Run(ctx context.Context) error {
	if len(j.rigIDs) == 0 {
		return nil
	}

	result, err := j.gen.BulkGenerate(ctx, j.rigIDs)
	if err != nil {
		return err
	}

	j.logger.WithField("inserted", result.InsertedCount).Debug("Simulator tick ingested")
	return nil
}
