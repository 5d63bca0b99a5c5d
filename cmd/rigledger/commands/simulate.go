package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/rigledger/internal/localday"
	"github.com/wonny/rigledger/internal/simulator"
)

// simulateCmd represents the simulate command
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "합성 판독값 생성",
	Long: `합성 센서 데이터를 생성하여 ledger 에 적재합니다.

Subcommands:
  generate  - 리그별 현재 시각 1샘플 적재
  backfill  - 리그의 로컬 하루(17,280 샘플) 적재
  preview   - DB 없이 하루치 생성 결과 요약

Example:
  go run ./cmd/rigledger simulate generate --rig 1 --rig 2
  go run ./cmd/rigledger simulate backfill --rig 1 --date 2024-03-01 --overwrite
  go run ./cmd/rigledger simulate backfill --rig 1 --from 2024-03-01 --to 2024-03-07
  go run ./cmd/rigledger simulate preview --rig 1 --date 2024-03-01`,
}

var (
	simRigIDs    []int64
	simDate      string
	simFrom      string
	simTo        string
	simOverwrite bool
)

var (
	simulateGenerateCmd = &cobra.Command{
		Use:   "generate",
		Short: "리그별 1샘플 적재",
		RunE:  runSimulateGenerate,
	}

	simulateBackfillCmd = &cobra.Command{
		Use:   "backfill",
		Short: "하루 단위 백필",
		Long: `각 리그의 로컬 하루를 5초 간격으로 채웁니다.

--overwrite 를 주면 해당 하루의 기존 판독값을 먼저 삭제하므로
여러 번 실행해도 하루 17,280 행이 유지됩니다.`,
		RunE: runSimulateBackfill,
	}

	simulatePreviewCmd = &cobra.Command{
		Use:   "preview",
		Short: "하루치 생성 결과 요약 (DB 미사용)",
		RunE:  runSimulatePreview,
	}
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.AddCommand(simulateGenerateCmd)
	simulateCmd.AddCommand(simulateBackfillCmd)
	simulateCmd.AddCommand(simulatePreviewCmd)

	simulateCmd.PersistentFlags().Int64SliceVar(&simRigIDs, "rig", nil, "rig id (반복 가능, 기본값: SIM_RIG_IDS)")

	simulateBackfillCmd.Flags().StringVar(&simDate, "date", "", "로컬 날짜 (YYYY-MM-DD)")
	simulateBackfillCmd.Flags().StringVar(&simFrom, "from", "", "시작 날짜 (YYYY-MM-DD)")
	simulateBackfillCmd.Flags().StringVar(&simTo, "to", "", "종료 날짜 (YYYY-MM-DD, 포함)")
	simulateBackfillCmd.Flags().BoolVar(&simOverwrite, "overwrite", false, "기존 판독값 삭제 후 적재")
	simulateBackfillCmd.MarkFlagsMutuallyExclusive("date", "from")
	simulateBackfillCmd.MarkFlagsRequiredTogether("from", "to")

	simulatePreviewCmd.Flags().StringVar(&simDate, "date", "", "로컬 날짜 (기본값: 오늘)")
}

// signalContext is cancelled on Ctrl+C so long backfills stop between chunks
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func rigsOrDefault(defaults []int64) ([]int64, error) {
	if len(simRigIDs) > 0 {
		return simRigIDs, nil
	}
	if len(defaults) > 0 {
		return defaults, nil
	}
	return nil, fmt.Errorf("no rig ids: pass --rig or set SIM_RIG_IDS")
}

func runSimulateGenerate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rigIDs, err := rigsOrDefault(a.cfg.Simulator.RigIDs)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := a.simulator.BulkGenerate(ctx, rigIDs)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	fmt.Printf("✅ Inserted %d readings into %d lots\n", result.InsertedCount, result.DistinctLotCount)
	return nil
}

func runSimulateBackfill(cmd *cobra.Command, args []string) error {
	from, to := simFrom, simTo
	if simDate != "" {
		from, to = simDate, simDate
	}
	if from == "" {
		return fmt.Errorf("pass --date or --from/--to")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rigIDs, err := rigsOrDefault(a.cfg.Simulator.RigIDs)
	if err != nil {
		return err
	}

	reqs, err := simulator.ExpandRequests(rigIDs, from, to, simOverwrite)
	if err != nil {
		return err
	}

	fmt.Printf("=== Backfill: %d rig(s), %s ~ %s (overwrite=%v) ===\n", len(rigIDs), from, to, simOverwrite)

	ctx, cancel := signalContext()
	defer cancel()

	results, err := a.simulator.BackfillRigs(ctx, reqs)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	for _, r := range results {
		fmt.Printf("  rig %-6d %s  deleted=%-6d inserted=%-6d chunks=%-3d lot=%d total=%.3f (%v)\n",
			r.RigID, r.Date, r.Deleted, r.Inserted, r.Chunks, r.LotID, r.TotalQty, r.Duration)
	}
	fmt.Println("\n✅ Backfill complete")
	return nil
}

func runSimulatePreview(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	zone, err := localday.ParseZone(cfg.Ledger.UTCOffset)
	if err != nil {
		return err
	}

	gen, err := loadGenerator(cfg, zone)
	if err != nil {
		return err
	}

	rigIDs, err := rigsOrDefault(cfg.Simulator.RigIDs)
	if err != nil {
		return err
	}

	day := simDate
	if day == "" {
		day = zone.Today(time.Now())
	}

	out := make(map[int64]simulator.Stats, len(rigIDs))
	for _, id := range rigIDs {
		seq, err := gen.Day(id, day)
		if err != nil {
			return err
		}
		out[id] = simulator.Summarize(seq)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
