// Package backtest drives the daily simulation over a date range and
// summarizes the result.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/feed"
	"github.com/wonny/lianban/internal/ledger"
	"github.com/wonny/lianban/internal/redflag"
	"github.com/wonny/lianban/internal/scoring"
	"github.com/wonny/lianban/internal/signal"
	"github.com/wonny/lianban/internal/strategyconfig"
	"github.com/wonny/lianban/pkg/logger"
)

// defaultMaxIdleDays stops a run after this many weekdays without data
// (春节 휴장 ~7 거래일)
const defaultMaxIdleDays = 30

// CheckpointFunc persists state after each simulated day
type CheckpointFunc func(ctx context.Context, st *State) error

// Engine runs backtesting simulations
// ⭐ SSOT: 백테스팅 실행은 여기서만
type Engine struct {
	source     contracts.BatchSource
	generator  *signal.Generator
	cfg        *strategyconfig.Config
	configHash string
	logger     *logger.Logger

	maxIdleDays int
	checkpoint  CheckpointFunc
	onDay       func(*DayResult, []contracts.Signal)
}

// Config holds one backtest range
type Config struct {
	StartDate time.Time
	Days      int       // trading days to simulate (0 = until EndDate)
	EndDate   time.Time // optional, inclusive
	Capital   decimal.Decimal
}

// Result holds backtest results
type Result struct {
	RunID       string                  `json:"run_id"`
	ConfigHash  string                  `json:"config_hash"`
	StartDate   time.Time               `json:"start_date"`
	EndDate     time.Time               `json:"end_date"`
	Duration    time.Duration           `json:"duration"`
	DaysSkipped int                     `json:"days_skipped"`
	Summary     Summary                 `json:"summary"`
	Attribution Attribution             `json:"attribution"`
	EquityCurve []contracts.EquityPoint `json:"equity_curve"`
	Trades      []contracts.TradeRecord `json:"trades"`
	Closed      []*ledger.Position      `json:"closed"`
	Open        []*ledger.Position      `json:"open"`
	State       *State                  `json:"-"`
}

// Option configures an Engine
type Option func(*Engine)

// WithCheckpoint saves state after every simulated day
func WithCheckpoint(fn CheckpointFunc) Option {
	return func(e *Engine) { e.checkpoint = fn }
}

// WithMaxIdleDays overrides the consecutive no-data weekday limit
func WithMaxIdleDays(n int) Option {
	return func(e *Engine) { e.maxIdleDays = n }
}

// WithDayHook observes each simulated day (CLI progress, reports)
func WithDayHook(fn func(*DayResult, []contracts.Signal)) Option {
	return func(e *Engine) { e.onDay = fn }
}

// NewEngine creates a backtest engine over a batch source
func NewEngine(source contracts.BatchSource, cfg *strategyconfig.Config, log *logger.Logger, opts ...Option) (*Engine, error) {
	if log == nil {
		log = logger.Nop()
	}
	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		return nil, fmt.Errorf("hash strategy config: %w", err)
	}

	e := &Engine{
		source:      source,
		generator:   signal.NewGenerator(redflag.New(cfg.RedFlags), scoring.NewCalculator(cfg.Scoring), cfg, log),
		cfg:         cfg,
		configHash:  hash,
		logger:      log,
		maxIdleDays: defaultMaxIdleDays,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Generator exposes the signal generator (API/scheduler reuse)
func (e *Engine) Generator() *signal.Generator { return e.generator }

// NewState builds a fresh state for c
func (e *Engine) NewState(c Config) *State {
	capital := c.Capital
	if !capital.IsPositive() {
		capital = decimal.NewFromFloat(e.cfg.Execution.InitialCapital)
	}
	return NewState(c.StartDate, capital, ledger.LimitsFromConfig(e.cfg.Risk), e.configHash)
}

// Run executes a backtest from a fresh account
func (e *Engine) Run(ctx context.Context, c Config) (*Result, error) {
	if c.Days <= 0 && c.EndDate.IsZero() {
		return nil, fmt.Errorf("backtest needs days or end date")
	}
	if !c.EndDate.IsZero() && c.EndDate.Before(c.StartDate) {
		return nil, fmt.Errorf("end date %s before start %s",
			c.EndDate.Format(contracts.DateLayout), c.StartDate.Format(contracts.DateLayout))
	}
	return e.advance(ctx, e.NewState(c), c.Days, c.EndDate)
}

// Resume continues a saved state for up to days more trading days
func (e *Engine) Resume(ctx context.Context, st *State, days int) (*Result, error) {
	if days <= 0 {
		return nil, fmt.Errorf("resume needs positive days")
	}
	if st.ConfigHash != "" && st.ConfigHash != e.configHash {
		e.logger.WithRun(st.RunID).WithFields(map[string]interface{}{
			"state":    st.ConfigHash,
			"strategy": e.configHash,
		}).Warn("Resuming with a different strategy config")
	}
	return e.advance(ctx, st, days, time.Time{})
}

func (e *Engine) advance(ctx context.Context, st *State, days int, end time.Time) (*Result, error) {
	started := time.Now()

	log := e.logger.WithRun(st.RunID)
	sim := NewSimulator(e.cfg, st.Account, log)
	sim.restore(st.Trades, st.EquityCurve)

	log.WithFields(map[string]interface{}{
		"next_date":  st.NextDate.Format(contracts.DateLayout),
		"days":       days,
		"days_done":  st.DaysDone,
		"cash":       st.Account.Cash.StringFixed(2),
		"config_sha": st.ConfigHash,
	}).Info("Starting backtest")

	done := 0
	idle := 0
	var runErr error

	for date := st.NextDate; ; date = date.AddDate(0, 0, 1) {
		if days > 0 && done >= days {
			break
		}
		if !end.IsZero() && date.After(end) {
			break
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if !contracts.IsTradingWeekday(date) {
			st.NextDate = date.AddDate(0, 0, 1)
			continue
		}
		if e.maxIdleDays > 0 && idle >= e.maxIdleDays {
			log.WithDate(date).WithField("idle_days", idle).Warn("No data for too long, stopping")
			break
		}

		batch, err := e.source.Load(ctx, date)
		if err != nil {
			st.NextDate = date.AddDate(0, 0, 1)
			idle++
			if errors.Is(err, feed.ErrNoData) {
				continue // 휴장일
			}
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			st.DaysSkipped++
			log.WithDate(date).WithError(err).Warn("Batch load failed, skipping day")
			continue
		}
		idle = 0

		signals := e.generator.Generate(date, batch.Snapshots, st.Account)
		day, err := sim.Step(date, signals, batch)
		if err != nil {
			// ledger 불일치: 마지막 완료일까지의 결과와 함께 중단
			runErr = fmt.Errorf("simulate %s: %w", date.Format(contracts.DateLayout), err)
			break
		}

		done++
		st.DaysDone++
		st.NextDate = date.AddDate(0, 0, 1)
		st.Trades = sim.Trades()
		st.EquityCurve = sim.EquityCurve()

		if e.onDay != nil {
			e.onDay(day, signals)
		}
		if e.checkpoint != nil {
			if err := e.checkpoint(ctx, st); err != nil {
				log.WithDate(date).WithError(err).Warn("Checkpoint failed")
			}
		}
	}

	st.Trades = sim.Trades()
	st.EquityCurve = sim.EquityCurve()

	result := e.buildResult(st, started)

	fields := map[string]interface{}{
		"duration":     result.Duration.Seconds(),
		"trading_days": result.Summary.TradingDays,
		"closed":       result.Summary.ClosedPositions,
		"total_return": fmt.Sprintf("%.2f%%", result.Summary.TotalReturn*100),
		"win_rate":     fmt.Sprintf("%.2f%%", result.Summary.WinRate*100),
		"max_drawdown": fmt.Sprintf("%.2f%%", result.Summary.MaxDrawdown*100),
	}
	if runErr != nil {
		log.WithFields(fields).WithError(runErr).Error("Backtest stopped")
		return result, runErr
	}
	log.WithFields(fields).Info("Backtest completed")
	return result, nil
}

func (e *Engine) buildResult(st *State, started time.Time) *Result {
	acct := st.Account
	summary := Summarize(acct.InitialCapital, st.EquityCurve, acct.Closed, st.Trades)

	// 단일 계좌: 최종 equity/수익률은 decimal 그대로
	if n := len(st.EquityCurve); n > 0 {
		final := st.EquityCurve[n-1].Equity
		summary.FinalEquity = final
		if acct.InitialCapital.IsPositive() {
			summary.TotalReturn = final.Sub(acct.InitialCapital).Div(acct.InitialCapital).InexactFloat64()
		}
	}

	return &Result{
		RunID:       st.RunID,
		ConfigHash:  st.ConfigHash,
		StartDate:   st.StartDate,
		EndDate:     st.LastDate(),
		Duration:    time.Since(started),
		DaysSkipped: st.DaysSkipped,
		Summary:     summary,
		Attribution: Attribute(acct.Closed),
		EquityCurve: st.EquityCurve,
		Trades:      st.Trades,
		Closed:      acct.Closed,
		Open:        acct.Open(),
		State:       st,
	}
}

// RunRanges runs independent ranges concurrently, each with its own account.
// Results keep the order of ranges.
func (e *Engine) RunRanges(ctx context.Context, ranges []Config) ([]*Result, error) {
	results := make([]*Result, len(ranges))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, c := range ranges {
		i, c := i, c
		g.Go(func() error {
			res, err := e.Run(gctx, c)
			results[i] = res
			if err != nil {
				return fmt.Errorf("range %s: %w", c.StartDate.Format(contracts.DateLayout), err)
			}
			return nil
		})
	}

	err := g.Wait()
	return results, err
}

// MergeResults concatenates independent results by date and re-summarizes
func MergeResults(results ...*Result) *Result {
	merged := &Result{
		EquityCurve: make([]contracts.EquityPoint, 0),
		Trades:      make([]contracts.TradeRecord, 0),
		Closed:      make([]*ledger.Position, 0),
		Open:        make([]*ledger.Position, 0),
	}

	valid := make([]*Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return merged
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].StartDate.Before(valid[j].StartDate) })

	merged.RunID = valid[0].RunID
	merged.ConfigHash = valid[0].ConfigHash
	merged.StartDate = valid[0].StartDate
	for _, r := range valid {
		merged.EquityCurve = append(merged.EquityCurve, r.EquityCurve...)
		merged.Trades = append(merged.Trades, r.Trades...)
		merged.Closed = append(merged.Closed, r.Closed...)
		merged.Open = append(merged.Open, r.Open...)
		merged.DaysSkipped += r.DaysSkipped
		merged.Duration += r.Duration
		if r.EndDate.After(merged.EndDate) {
			merged.EndDate = r.EndDate
		}
	}

	sort.SliceStable(merged.EquityCurve, func(i, j int) bool {
		return merged.EquityCurve[i].Date.Before(merged.EquityCurve[j].Date)
	})
	sort.SliceStable(merged.Trades, func(i, j int) bool {
		return merged.Trades[i].Date.Before(merged.Trades[j].Date)
	})

	merged.Summary = Summarize(valid[0].Summary.InitialCapital, merged.EquityCurve, merged.Closed, merged.Trades)
	merged.Attribution = Attribute(merged.Closed)
	return merged
}
