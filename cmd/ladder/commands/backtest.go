package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wonny/lianban/internal/backtest"
	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/data/repos"
	"github.com/wonny/lianban/internal/risk"
	"github.com/wonny/lianban/internal/strategyconfig"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "백테스팅",
	Long: `과거 涨停股池 데이터로 신호 생성과 매매를 일별 시뮬레이션합니다.

검증 항목:
- 총 수익률, 승률, 최대 낙폭, 평균 보유일
- 연환산 수익률, 변동성, Sharpe/Sortino
- 손절/익절/스킵 기록

Example:
  go run ./cmd/ladder backtest run --from 2024-01-02 --days 60
  go run ./cmd/ladder backtest run --from 2024-01-02 --to 2024-06-28 --capital 500000
  go run ./cmd/ladder backtest run --resume <run_id> --days 20
  go run ./cmd/ladder backtest runs`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "백테스트 실행",
		Long: `지정된 기간 동안 백테스트를 실행합니다.

Flags:
  --from        시작 날짜 (YYYY-MM-DD)
  --days        시뮬레이션 거래일 수
  --to          종료 날짜 (YYYY-MM-DD, 포함)
  --capital     초기 자본 (기본: 전략 설정 initial_capital)
  --source      데이터 소스 (file | zhitu)
  --range       독립 구간 병렬 실행 (FROM:TO, 반복 가능)
  --resume      저장된 run_id 이어서 실행 (DB 필요)
  --checkpoint  매일 상태 저장 (DB 필요)

Example:
  go run ./cmd/ladder backtest run --from 2024-01-02 --days 60
  go run ./cmd/ladder backtest run --range 2023-01-03:2023-06-30 --range 2023-07-03:2023-12-29`,
		RunE: runBacktest,
	}

	backtestRunsCmd = &cobra.Command{
		Use:   "runs",
		Short: "저장된 백테스트 목록",
		RunE:  listBacktestRuns,
	}

	// Flags
	backtestFrom       string
	backtestTo         string
	backtestDays       int
	backtestCapital    float64
	backtestSource     string
	backtestRanges     []string
	backtestResume     string
	backtestCheckpoint bool
	backtestTrades     bool
	backtestRisk       bool
	backtestSeed       int64
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)
	backtestCmd.AddCommand(backtestRunsCmd)

	backtestRunCmd.Flags().StringVar(&backtestFrom, "from", "", "시작 날짜 (YYYY-MM-DD)")
	backtestRunCmd.Flags().StringVar(&backtestTo, "to", "", "종료 날짜 (YYYY-MM-DD, 포함)")
	backtestRunCmd.Flags().IntVar(&backtestDays, "days", 0, "거래일 수")
	backtestRunCmd.Flags().Float64Var(&backtestCapital, "capital", 0, "초기 자본 (元)")
	backtestRunCmd.Flags().StringVar(&backtestSource, "source", "file", "데이터 소스 (file|zhitu)")
	backtestRunCmd.Flags().StringArrayVar(&backtestRanges, "range", nil, "독립 구간 FROM:TO (반복 가능)")
	backtestRunCmd.Flags().StringVar(&backtestResume, "resume", "", "이어서 실행할 run_id")
	backtestRunCmd.Flags().BoolVar(&backtestCheckpoint, "checkpoint", false, "매일 상태를 DB에 저장")
	backtestRunCmd.Flags().BoolVar(&backtestTrades, "trades", false, "매매 기록 출력")
	backtestRunCmd.Flags().BoolVar(&backtestRisk, "risk", false, "VaR / Monte Carlo 리스크 리포트")
	backtestRunCmd.Flags().Int64Var(&backtestSeed, "seed", 0, "Monte Carlo seed (0 = 랜덤)")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	src, err := a.source(backtestSource)
	if err != nil {
		return err
	}

	opts := []backtest.Option{}
	if backtestCheckpoint || backtestResume != "" {
		if a.runs == nil {
			return fmt.Errorf("--checkpoint/--resume need DATABASE_URL")
		}
		opts = append(opts, backtest.WithCheckpoint(checkpointTo(a.runs)))
	}
	if !jsonOutput {
		opts = append(opts, backtest.WithDayHook(printDay))
	}

	engine, err := backtest.NewEngine(src, a.strategy, a.log, opts...)
	if err != nil {
		return err
	}

	var result *backtest.Result
	switch {
	case backtestResume != "":
		result, err = resumeBacktest(ctx, engine, a.runs)
	case len(backtestRanges) > 0:
		result, err = runRanges(ctx, engine)
	default:
		var c backtest.Config
		c, err = backtestConfig()
		if err != nil {
			return err
		}
		if !jsonOutput {
			printBacktestHeader(c)
		}
		result, err = engine.Run(ctx, c)
	}

	if result != nil {
		var report *risk.Report
		if backtestRisk && err == nil {
			report = analyzeRisk(ctx, a, result)
		}
		if jsonOutput {
			out := backtestOutput(result)
			out.Decision = decisionSnapshot(a)
			out.Risk = report
			if perr := printJSON(out); perr != nil {
				return perr
			}
		} else {
			printBacktestResult(result)
			if report != nil {
				printRiskReport(report)
			}
		}
	}
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}
	return nil
}

func backtestConfig() (backtest.Config, error) {
	var c backtest.Config
	if backtestFrom == "" {
		return c, fmt.Errorf("--from is required")
	}
	from, err := contracts.ParseDate(backtestFrom)
	if err != nil {
		return c, fmt.Errorf("invalid --from: %w", err)
	}
	c.StartDate = from
	c.Days = backtestDays

	if backtestTo != "" {
		to, err := contracts.ParseDate(backtestTo)
		if err != nil {
			return c, fmt.Errorf("invalid --to: %w", err)
		}
		c.EndDate = to
	}
	if c.Days <= 0 && c.EndDate.IsZero() {
		return c, fmt.Errorf("--days or --to is required")
	}
	if backtestCapital > 0 {
		c.Capital = decimal.NewFromFloat(backtestCapital)
	}
	return c, nil
}

func parseRanges(specs []string) ([]backtest.Config, error) {
	out := make([]backtest.Config, 0, len(specs))
	for _, spec := range specs {
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --range %q (expected FROM:TO)", spec)
		}
		from, err := contracts.ParseDate(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid --range %q: %w", spec, err)
		}
		to, err := contracts.ParseDate(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid --range %q: %w", spec, err)
		}
		c := backtest.Config{StartDate: from, EndDate: to}
		if backtestCapital > 0 {
			c.Capital = decimal.NewFromFloat(backtestCapital)
		}
		out = append(out, c)
	}
	return out, nil
}

func runRanges(ctx context.Context, engine *backtest.Engine) (*backtest.Result, error) {
	ranges, err := parseRanges(backtestRanges)
	if err != nil {
		return nil, err
	}
	results, err := engine.RunRanges(ctx, ranges)
	return backtest.MergeResults(results...), err
}

func resumeBacktest(ctx context.Context, engine *backtest.Engine, runs *repos.RunRepository) (*backtest.Result, error) {
	if backtestDays <= 0 {
		return nil, fmt.Errorf("--resume needs --days")
	}
	rec, err := runs.LoadState(ctx, backtestResume)
	if errors.Is(err, repos.ErrRunNotFound) {
		return nil, fmt.Errorf("run %s not found", backtestResume)
	}
	if err != nil {
		return nil, err
	}
	st, err := backtest.UnmarshalState(rec.State)
	if err != nil {
		return nil, err
	}
	if !jsonOutput {
		fmt.Printf("\n🔁 Resuming %s from %s (%d days done)\n\n",
			st.RunID, st.NextDate.Format(contracts.DateLayout), st.DaysDone)
	}
	return engine.Resume(ctx, st, backtestDays)
}

// checkpointTo saves the state after each day
func checkpointTo(runs *repos.RunRepository) backtest.CheckpointFunc {
	return func(ctx context.Context, st *backtest.State) error {
		rec, err := repos.RunRecordFrom(st)
		if err != nil {
			return err
		}
		return runs.SaveState(ctx, rec)
	}
}

func listBacktestRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.runs == nil {
		return fmt.Errorf("listing runs needs DATABASE_URL")
	}
	runs, err := a.runs.ListRuns(ctx, 20)
	if err != nil {
		return err
	}

	if jsonOutput {
		type item struct {
			RunID      string    `json:"run_id"`
			ConfigHash string    `json:"config_hash"`
			NextDate   string    `json:"next_date"`
			DaysDone   int       `json:"days_done"`
			UpdatedAt  time.Time `json:"updated_at"`
		}
		items := make([]item, 0, len(runs))
		for _, r := range runs {
			items = append(items, item{r.RunID, r.ConfigHash, r.NextDate.Format(contracts.DateLayout), r.DaysDone, r.UpdatedAt})
		}
		return printJSON(items)
	}

	widths := []int{36, 12, 10, 6, 19}
	PrintTableHeader([]string{"RUN ID", "CONFIG", "NEXT", "DAYS", "UPDATED"}, widths)
	for _, r := range runs {
		hash := r.ConfigHash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		PrintTableRow([]string{
			r.RunID,
			hash,
			r.NextDate.Format(contracts.DateLayout),
			fmt.Sprintf("%d", r.DaysDone),
			r.UpdatedAt.Format("2006-01-02 15:04:05"),
		}, widths)
	}
	return nil
}

// backtestOutput is the --json shape
type backtestOutputJSON struct {
	RunID       string                  `json:"run_id"`
	ConfigHash  string                  `json:"config_hash"`
	StartDate   string                  `json:"start_date"`
	EndDate     string                  `json:"end_date"`
	DaysSkipped int                     `json:"days_skipped"`
	Summary     backtest.Summary        `json:"summary"`
	Attribution backtest.Attribution    `json:"attribution"`
	EquityCurve []contracts.EquityPoint `json:"equity_curve"`
	Trades      []contracts.TradeRecord `json:"trades,omitempty"`

	Decision *strategyconfig.DecisionSnapshot `json:"decision,omitempty"`
	Risk     *risk.Report                     `json:"risk,omitempty"`
}

func analyzeRisk(ctx context.Context, a *app, result *backtest.Result) *risk.Report {
	mc := risk.DefaultMonteCarloConfig()
	mc.Seed = backtestSeed
	report, err := risk.NewEngine(risk.DefaultRiskLimits(), mc).Analyze(ctx, result.EquityCurve)
	if err != nil {
		a.log.WithError(err).Warn("Risk analysis skipped")
		return nil
	}
	return report
}

func printRiskReport(r *risk.Report) {
	fmt.Println("🛡  Risk Report")
	PrintKeyValue("VaR 95 / 99", fmt.Sprintf("%.2f%% / %.2f%% (daily)", r.Historical95.VaR*100, r.Historical99.VaR*100), 16)
	PrintKeyValue("CVaR 95", fmt.Sprintf("%.2f%%", r.Historical95.CVaR*100), 16)
	PrintKeyValue("Parametric 95", fmt.Sprintf("%.2f%%", r.Parametric95.VaR*100), 16)
	if mc := r.MonteCarlo; mc != nil {
		PrintKeyValue("MC horizon", fmt.Sprintf("%d days × %d paths", mc.Config.HorizonDays, mc.Config.NumSimulations), 16)
		PrintKeyValue("MC P5 / P50 / P95", fmt.Sprintf("%s / %s / %s",
			formatPct(mc.Percentiles[5]), formatPct(mc.Percentiles[50]), formatPct(mc.Percentiles[95])), 16)
		PrintKeyValue("MC P(loss)", fmt.Sprintf("%.1f%%", mc.LossProbability*100), 16)
		PrintKeyValue("MC drawdown", fmt.Sprintf("median %.2f%% / p95 %.2f%%", mc.MedianDrawdown*100, mc.WorstDrawdown95*100), 16)
	} else {
		PrintWarning("too few days for Monte Carlo")
	}
	if r.Passed {
		PrintSuccess("Risk limits passed")
	} else {
		for _, v := range r.Violations {
			PrintWarning(v)
		}
	}
	fmt.Println()
}

// decisionSnapshot records the effective strategy YAML for reproduction
func decisionSnapshot(a *app) *strategyconfig.DecisionSnapshot {
	raw, err := yaml.Marshal(a.strategy)
	if err != nil {
		a.log.WithError(err).Warn("Failed to encode strategy config")
		return nil
	}
	snap, err := strategyconfig.NewDecisionSnapshot(a.strategy, raw, backtestSource)
	if err != nil {
		a.log.WithError(err).Warn("Failed to hash strategy config")
		return nil
	}
	return snap
}

func backtestOutput(r *backtest.Result) backtestOutputJSON {
	out := backtestOutputJSON{
		RunID:       r.RunID,
		ConfigHash:  r.ConfigHash,
		StartDate:   r.StartDate.Format(contracts.DateLayout),
		DaysSkipped: r.DaysSkipped,
		Summary:     r.Summary,
		Attribution: r.Attribution,
		EquityCurve: r.EquityCurve,
	}
	if !r.EndDate.IsZero() {
		out.EndDate = r.EndDate.Format(contracts.DateLayout)
	}
	if backtestTrades {
		out.Trades = r.Trades
	}
	return out
}

func printBuckets(prefix string, buckets []backtest.Bucket, widths []int) {
	for _, b := range buckets {
		PrintTableRow([]string{
			prefix + b.Key,
			fmt.Sprintf("%d", b.Count),
			fmt.Sprintf("%.0f%%", b.WinRate*100),
			formatYuan(b.PnL),
			formatPct(b.AvgReturnPct),
		}, widths)
	}
}

func printBacktestHeader(c backtest.Config) {
	PrintHeader("连板接力 Backtest")
	period := c.StartDate.Format(contracts.DateLayout)
	switch {
	case !c.EndDate.IsZero():
		period += " ~ " + c.EndDate.Format(contracts.DateLayout)
	default:
		period += fmt.Sprintf(" (+%d trading days)", c.Days)
	}
	PrintKeyValue("Period", period, 10)
	if c.Capital.IsPositive() {
		PrintKeyValue("Capital", formatYuan(c.Capital)+" 元", 10)
	}
	PrintSeparator()
}

// printDay prints one line per simulated day
func printDay(day *backtest.DayResult, signals []contracts.Signal) {
	counts := contracts.CountByAction(signals)
	line := fmt.Sprintf("%s  equity %s  buy %d/%d  closed %d",
		day.Date.Format(contracts.DateLayout),
		formatYuan(day.Equity.Equity),
		day.Accepted, counts[contracts.ActionBuy],
		day.Closed)
	if day.Cooldown {
		line += "  🧊 cooldown"
	}
	fmt.Println(line)
}

func printBacktestResult(result *backtest.Result) {
	s := result.Summary

	fmt.Println()
	PrintDoubleSeparator()
	fmt.Println("✅ Backtest Completed")
	PrintSeparator()

	fmt.Println("📊 Summary")
	end := "-"
	if !result.EndDate.IsZero() {
		end = result.EndDate.Format(contracts.DateLayout)
	}
	PrintKeyValue("Run", result.RunID, 16)
	PrintKeyValue("Period", fmt.Sprintf("%s ~ %s (%d trading days)",
		result.StartDate.Format(contracts.DateLayout), end, s.TradingDays), 16)
	if result.DaysSkipped > 0 {
		PrintKeyValue("Skipped days", fmt.Sprintf("%d (load errors)", result.DaysSkipped), 16)
	}
	PrintKeyValue("Duration", fmt.Sprintf("%.2fs", result.Duration.Seconds()), 16)
	fmt.Println()

	fmt.Println("💰 Performance")
	PrintKeyValue("Initial Capital", formatYuan(s.InitialCapital)+" 元", 16)
	PrintKeyValue("Final Equity", formatYuan(s.FinalEquity)+" 元", 16)
	PrintKeyValue("Total Return", formatPct(s.TotalReturn), 16)
	PrintKeyValue("Annual Return", formatPct(s.AnnualizedReturn), 16)
	PrintKeyValue("Volatility", fmt.Sprintf("%.2f%%", s.Volatility*100), 16)
	fmt.Println()

	fmt.Println("📉 Risk Metrics")
	PrintKeyValue("Sharpe Ratio", fmt.Sprintf("%.2f", s.SharpeRatio), 16)
	PrintKeyValue("Sortino Ratio", fmt.Sprintf("%.2f", s.SortinoRatio), 16)
	PrintKeyValue("Max Drawdown", fmt.Sprintf("%.2f%%", s.MaxDrawdown*100), 16)
	fmt.Println()

	fmt.Println("💹 Trading Metrics")
	PrintKeyValue("Closed", fmt.Sprintf("%d (win %d / loss %d)", s.ClosedPositions, s.Wins, s.Losses), 16)
	PrintKeyValue("Win Rate", fmt.Sprintf("%.1f%%", s.WinRate*100), 16)
	PrintKeyValue("Profit Factor", fmt.Sprintf("%.2f", s.ProfitFactor), 16)
	PrintKeyValue("Avg Holding", fmt.Sprintf("%.1f days", s.AvgHoldingDays), 16)
	PrintKeyValue("Trades", fmt.Sprintf("buy %d / sell %d / skip %d / cancel %d", s.Buys, s.Sells, s.Skips, s.Cancels), 16)
	if len(result.Open) > 0 {
		PrintKeyValue("Open Positions", fmt.Sprintf("%d", len(result.Open)), 16)
	}
	fmt.Println()

	if len(result.Attribution.ByBoards) > 0 {
		fmt.Println("🎯 Attribution")
		widths := []int{12, 6, 8, 14, 10}
		PrintTableHeader([]string{"GROUP", "N", "WIN", "PNL", "AVG RET"}, widths)
		printBuckets("板 ", result.Attribution.ByBoards, widths)
		printBuckets("", result.Attribution.ByExit, widths)
		fmt.Println()
	}

	if backtestTrades {
		fmt.Println("🧾 Trades")
		widths := []int{10, 9, 6, 8, 8, 12, 30}
		PrintTableHeader([]string{"DATE", "CODE", "KIND", "PRICE", "SHARES", "PNL", "REASON"}, widths)
		for _, t := range result.Trades {
			PrintTableRow([]string{
				t.Date.Format(contracts.DateLayout),
				t.Code,
				string(t.Kind),
				t.Price.StringFixed(2),
				t.Shares.String(),
				t.PnL.StringFixed(2),
				t.Reason,
			}, widths)
		}
		fmt.Println()
	}

	fmt.Println("📈 Equity Curve (Last 10 Days)")
	start := len(result.EquityCurve) - 10
	if start < 0 {
		start = 0
	}
	for _, p := range result.EquityCurve[start:] {
		fmt.Printf("   %s: %s 元 (%s)\n", p.Date.Format(contracts.DateLayout), formatYuan(p.Equity), formatPct(p.DailyReturn))
	}
	fmt.Println()
}
