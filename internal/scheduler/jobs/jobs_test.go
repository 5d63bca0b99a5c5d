package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/rigledger/internal/contracts"
	"github.com/wonny/rigledger/internal/ledger"
	"github.com/wonny/rigledger/internal/localday"
	"github.com/wonny/rigledger/pkg/logger"
)

type fakeGenerator struct {
	calls [][]int64
	err   error
}

func (f *fakeGenerator) BulkGenerate(_ context.Context, ids []int64) (*contracts.BulkResult, error) {
	f.calls = append(f.calls, ids)
	if f.err != nil {
		return nil, f.err
	}
	return &contracts.BulkResult{InsertedCount: len(ids)}, nil
}

func TestSimulatorTickJob(t *testing.T) {
	gen := &fakeGenerator{}
	job := NewSimulatorTickJob(gen, []int64{1, 2}, "", logger.Nop())

	assert.Equal(t, "simulator_tick", job.Name())
	assert.Equal(t, "*/5 * * * * *", job.Schedule())
	assert.Zero(t, job.Policy().MaxRetries)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, [][]int64{{1, 2}}, gen.calls)

	gen.err = errors.New("db down")
	assert.Error(t, job.Run(context.Background()))
}

func TestSimulatorTickJob_NoRigsIsNoop(t *testing.T) {
	gen := &fakeGenerator{}
	job := NewSimulatorTickJob(gen, nil, "", logger.Nop())
	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, gen.calls)
}

type fakeReconciler struct {
	days []string
}

func (f *fakeReconciler) ReconcileDay(_ context.Context, day string) (*ledger.ReconcileResult, error) {
	f.days = append(f.days, day)
	return &ledger.ReconcileResult{Day: day, Drifted: []ledger.LotDrift{{LotID: 1, Before: 2, After: 3}}}, nil
}

func TestLotReconcileJob_PreviousLocalDay(t *testing.T) {
	rec := &fakeReconciler{}
	job := NewLotReconcileJob(rec, localday.NewZone(7*3600), logger.Nop())
	// 17:05 UTC on the 9th is 00:05 on the 10th at +07:00
	job.now = func() time.Time { return time.Date(2024, 3, 9, 17, 5, 0, 0, time.UTC) }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"2024-03-09"}, rec.days)
}
