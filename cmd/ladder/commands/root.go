package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	strategyFile string
	dataDir      string
	jsonOutput   bool
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ladder",
	Short: "连板接力 - 연속 상한가 신호/시뮬레이션 엔진",
	Long: `Lianban Ladder CLI

A주 연속 상한가(连板) 종목의 신호 점수화와 일별 매매 시뮬레이션.
涨停股池 → red flag → 점수 → 신호 → 시뮬레이터 → 결과.

Usage:
  go run ./cmd/ladder [command]

Examples:
  go run ./cmd/ladder backtest run --from 2024-01-02 --days 60
  go run ./cmd/ladder signals --date 2024-03-04
  go run ./cmd/ladder fetch --date 2024-03-04
  go run ./cmd/ladder api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&strategyFile, "config", "", "strategy YAML (default: STRATEGY_CONFIG or built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "data directory (default: DATA_DIR)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logs)")
}
