package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rigledger",
	Short: "Rig sensor reading ledger",
	Long: `rigledger Unified CLI

리그 센서 판독값을 일별 lot 단위로 적재하고 조회하는 서비스.
합성 데이터 생성기와 하루 단위 백필을 포함합니다.

Usage:
  go run ./cmd/rigledger [command]

Examples:
  go run ./cmd/rigledger api
  go run ./cmd/rigledger migrate
  go run ./cmd/rigledger scheduler start
  go run ./cmd/rigledger simulate backfill --rig 1 --date 2024-03-01 --overwrite
  go run ./cmd/rigledger test-db`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (LOG_LEVEL=debug)")
}
