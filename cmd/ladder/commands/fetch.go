package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/feed"
	"github.com/wonny/lianban/internal/scheduler/jobs"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "zhitu 股池 다운로드",
	Long: `zhitu API에서 涨停/跌停/炸板 股池를 받아 data 디렉터리에 저장합니다.
휴장일 (涨停股池 없음)은 건너뜁니다.

Example:
  go run ./cmd/ladder fetch --date 2024-03-04
  go run ./cmd/ladder fetch --from 2024-01-02 --to 2024-03-29`,
	RunE: runFetch,
}

var (
	fetchDate string
	fetchFrom string
	fetchTo   string
)

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchDate, "date", "", "거래일 (YYYY-MM-DD)")
	fetchCmd.Flags().StringVar(&fetchFrom, "from", "", "시작 날짜 (YYYY-MM-DD)")
	fetchCmd.Flags().StringVar(&fetchTo, "to", "", "종료 날짜 (YYYY-MM-DD, 포함)")
}

// dayClock pins the archive job to one date
type dayClock time.Time

func (c dayClock) Today() time.Time { return time.Time(c) }

func fetchDates() ([]time.Time, error) {
	if fetchDate != "" {
		d, err := contracts.ParseDate(fetchDate)
		if err != nil {
			return nil, fmt.Errorf("invalid --date: %w", err)
		}
		return []time.Time{d}, nil
	}
	if fetchFrom == "" || fetchTo == "" {
		return nil, fmt.Errorf("--date or --from/--to is required")
	}
	from, err := contracts.ParseDate(fetchFrom)
	if err != nil {
		return nil, fmt.Errorf("invalid --from: %w", err)
	}
	to, err := contracts.ParseDate(fetchTo)
	if err != nil {
		return nil, fmt.Errorf("invalid --to: %w", err)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("--to %s is before --from %s", fetchTo, fetchFrom)
	}
	return feed.TradingDates(from, to), nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	dates, err := fetchDates()
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	client := feed.NewZhituClientFromConfig(a.cfg, a.rdb, a.log)

	if !jsonOutput {
		PrintHeader("Fetch 股池")
		PrintKeyValue("Dir", a.cfg.Data.Dir, 6)
		PrintKeyValue("Days", fmt.Sprintf("%d", len(dates)), 6)
		PrintSeparator()
	}

	failed := 0
	for _, d := range dates {
		if err := ctx.Err(); err != nil {
			return err
		}
		job := jobs.NewPoolArchiveJob(client, a.cfg.Data.Dir, dayClock(d), a.log)
		if err := job.Run(ctx); err != nil {
			failed++
			PrintWarning(fmt.Sprintf("%s: %v", d.Format(contracts.DateLayout), err))
			continue
		}
		if !jsonOutput {
			fmt.Printf("   %s ✓\n", d.Format(contracts.DateLayout))
		}
	}

	if jsonOutput {
		return printJSON(map[string]int{"days": len(dates), "failed": failed})
	}
	fmt.Println()
	if failed > 0 {
		return fmt.Errorf("%d of %d days failed", failed, len(dates))
	}
	PrintSuccess(fmt.Sprintf("Fetched %d days", len(dates)))
	return nil
}
