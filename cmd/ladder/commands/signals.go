package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/feed"
	"github.com/wonny/lianban/internal/signal"
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "당일 신호 생성",
	Long: `하루치 涨停股池로 red flag 검사, 점수 계산, 신호 생성을 실행합니다.
신규 계좌 기준 (보유 종목 없음)으로 판단합니다.

Example:
  go run ./cmd/ladder signals --date 2024-03-04
  go run ./cmd/ladder signals --date 2024-03-04 --all
  go run ./cmd/ladder signals --date 2024-03-04 --save`,
	RunE: runSignals,
}

var (
	signalsDate   string
	signalsSource string
	signalsAll    bool
	signalsSave   bool
)

func init() {
	rootCmd.AddCommand(signalsCmd)

	signalsCmd.Flags().StringVar(&signalsDate, "date", "", "거래일 (YYYY-MM-DD, 필수)")
	signalsCmd.Flags().StringVar(&signalsSource, "source", "file", "데이터 소스 (file|zhitu)")
	signalsCmd.Flags().BoolVar(&signalsAll, "all", false, "hold/skip 신호도 출력")
	signalsCmd.Flags().BoolVar(&signalsSave, "save", false, "DB에 저장 (DATABASE_URL 필요)")
	_ = signalsCmd.MarkFlagRequired("date")
}

func runSignals(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	date, err := contracts.ParseDate(signalsDate)
	if err != nil {
		return fmt.Errorf("invalid --date: %w", err)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	src, err := a.source(signalsSource)
	if err != nil {
		return err
	}

	batch, err := src.Load(ctx, date)
	if errors.Is(err, feed.ErrNoData) {
		return fmt.Errorf("no market data for %s", date.Format(contracts.DateLayout))
	}
	if err != nil {
		return err
	}

	signals := a.generator().Generate(date, batch.Snapshots, nil)

	if signalsSave {
		if a.signals == nil {
			return fmt.Errorf("--save needs DATABASE_URL")
		}
		if err := a.signals.SaveSignals(ctx, date, signals); err != nil {
			return err
		}
	}

	if jsonOutput {
		out := struct {
			Date      string                     `json:"date"`
			Sentiment *contracts.MarketSentiment `json:"sentiment,omitempty"`
			Ladder    []contracts.LadderLevel    `json:"ladder"`
			Signals   []contracts.Signal         `json:"signals"`
		}{date.Format(contracts.DateLayout), batch.Sentiment, batch.Ladder(), signals}
		if !signalsAll {
			out.Signals = signal.Buys(signals)
		}
		return printJSON(out)
	}

	mood := ""
	if batch.Sentiment != nil {
		st := a.strategy.Sentiment
		mood = batch.Sentiment.Mood(st.Freezing, st.Heating, st.Boiling)
	}
	printSignals(date, batch, signals, mood)
	if signalsSave {
		PrintSuccess(fmt.Sprintf("Saved %d signals", len(signals)))
	}
	return nil
}

func printSignals(date time.Time, batch *contracts.DailyBatch, signals []contracts.Signal, mood string) {
	PrintHeader("连板信号 " + date.Format(contracts.DateLayout))

	if s := batch.Sentiment; s != nil {
		fmt.Println("🌡  Market Sentiment")
		PrintKeyValue("涨停 / 跌停", fmt.Sprintf("%d / %d", s.LimitUpCount, s.LimitDownCount), 12)
		PrintKeyValue("炸板率", fmt.Sprintf("%.1f%% (%d)", s.ExplodeRate*100, s.ExplodeCount), 12)
		PrintKeyValue("最高板", fmt.Sprintf("%d", s.MaxHeight), 12)
		PrintKeyValue("Heat", fmt.Sprintf("%.1f (%s)", s.HeatIndex, mood), 12)
		fmt.Println()
	} else {
		PrintWarning("sentiment unavailable (limit_down / explode pools missing)")
		fmt.Println()
	}

	fmt.Println("🪜 Ladder")
	for _, lvl := range batch.Ladder() {
		codes := lvl.Codes
		more := ""
		if len(codes) > 6 {
			more = fmt.Sprintf(" +%d", len(codes)-6)
			codes = codes[:6]
		}
		fmt.Printf("   %2d板 × %-3d %s%s\n", lvl.Height, lvl.Count, strings.Join(codes, " "), more)
	}
	fmt.Println()

	counts := contracts.CountByAction(signals)
	fmt.Printf("📋 Signals (buy %d / hold %d / skip %d)\n",
		counts[contracts.ActionBuy], counts[contracts.ActionHold], counts[contracts.ActionSkip])

	widths := []int{9, 10, 5, 4, 6, 6, 8, 8, 8, 24}
	PrintTableHeader([]string{"CODE", "NAME", "ACT", "板", "SCORE", "FRAC", "PRICE", "STOP", "TP1", "REASON"}, widths)
	for _, s := range signals {
		if !signalsAll && !s.IsBuy() {
			continue
		}
		PrintTableRow([]string{
			s.Code,
			s.Name,
			string(s.Action),
			fmt.Sprintf("%d", s.Boards),
			fmt.Sprintf("%.1f", s.Score),
			fmt.Sprintf("%.0f%%", s.Fraction*100),
			fmt.Sprintf("%.2f", s.Price),
			fmt.Sprintf("%.2f", s.StopLoss),
			fmt.Sprintf("%.2f", s.TakeProfit1),
			s.Reason,
		}, widths)
	}
	fmt.Println()
}
