package backtest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/ledger"
	"github.com/wonny/lianban/internal/signal"
	"github.com/wonny/lianban/internal/strategyconfig"
	"github.com/wonny/lianban/pkg/logger"
)

// Simulator applies one day of signals and bars to the account
// ⭐ SSOT: Account 변경은 Step()에서만
type Simulator struct {
	cfg     *strategyconfig.Config
	account *ledger.Account
	logger  *logger.Logger

	lot    decimal.Decimal
	trades []contracts.TradeRecord
	curve  []contracts.EquityPoint
}

// DayResult summarizes one Step
type DayResult struct {
	Date     time.Time               `json:"date"`
	Trades   []contracts.TradeRecord `json:"trades"`
	Equity   contracts.EquityPoint   `json:"equity"`
	Accepted int                     `json:"accepted"`
	Rejected int                     `json:"rejected"`
	Closed   int                     `json:"closed"`
	Cooldown bool                    `json:"cooldown"`
}

// NewSimulator creates a simulator over an existing account
func NewSimulator(cfg *strategyconfig.Config, account *ledger.Account, log *logger.Logger) *Simulator {
	if log == nil {
		log = logger.Nop()
	}
	lot := cfg.Execution.LotSize
	if lot <= 0 {
		lot = 100
	}
	return &Simulator{
		cfg:     cfg,
		account: account,
		logger:  log,
		lot:     decimal.NewFromInt(int64(lot)),
		trades:  make([]contracts.TradeRecord, 0),
		curve:   make([]contracts.EquityPoint, 0),
	}
}

// restore re-attaches history from a saved state
func (s *Simulator) restore(trades []contracts.TradeRecord, curve []contracts.EquityPoint) {
	s.trades = append(s.trades[:0], trades...)
	s.curve = append(s.curve[:0], curve...)
}

// Account returns the simulated account
func (s *Simulator) Account() *ledger.Account { return s.account }

// Trades returns the trade log
func (s *Simulator) Trades() []contracts.TradeRecord { return s.trades }

// EquityCurve returns one point per simulated day
func (s *Simulator) EquityCurve() []contracts.EquityPoint { return s.curve }

// Step runs one trading day: fill pending → exits → entries → mark.
// Rule violations become skip records; ledger inconsistencies are returned.
func (s *Simulator) Step(date time.Time, signals []contracts.Signal, batch *contracts.DailyBatch) (*DayResult, error) {
	if n := len(s.curve); n > 0 && !date.After(s.curve[n-1].Date) {
		return nil, fmt.Errorf("%w: step %s not after %s", ledger.ErrStateInconsistency,
			date.Format(contracts.DateLayout), s.curve[n-1].Date.Format(contracts.DateLayout))
	}

	day := &DayResult{Date: date, Trades: make([]contracts.TradeRecord, 0)}
	prevEquity := s.account.Equity()
	prevUnrealized := s.account.Unrealized()
	realizedBefore := s.account.RealizedPnL

	// 1. pending 체결 (next_open)
	if err := s.fillPending(date, batch, day); err != nil {
		return nil, err
	}

	// 2. 손절/익절 (T+1: 오늘 체결분 제외)
	if err := s.evaluateExits(date, batch, day); err != nil {
		return nil, err
	}

	// 3-5. 신규 진입, 자본 기준 = 장 시작 시점 equity
	if s.account.ExpireCooldown(date) {
		s.logger.WithDate(date).Info("Cooldown expired: rest over, no open positions")
	}
	day.Cooldown = s.account.CooldownActive(date)
	if err := s.executeEntries(date, signals, prevEquity, day); err != nil {
		return nil, err
	}

	// 6. 종가 평가 + equity point
	point := s.markToMarket(date, batch, prevEquity, realizedBefore)
	if err := s.checkIdentity(point, prevEquity, prevUnrealized); err != nil {
		return nil, err
	}
	if err := s.account.CheckInvariants(); err != nil {
		return nil, err
	}

	s.curve = append(s.curve, point)
	s.trades = append(s.trades, day.Trades...)
	day.Equity = point

	s.logger.WithDate(date).WithFields(map[string]interface{}{
		"equity":   point.Equity.StringFixed(2),
		"cash":     point.Cash.StringFixed(2),
		"open":     point.OpenCount,
		"accepted": day.Accepted,
		"rejected": day.Rejected,
		"closed":   day.Closed,
		"cooldown": day.Cooldown,
	}).Debug("Day simulated")

	return day, nil
}

func (s *Simulator) fillPending(date time.Time, batch *contracts.DailyBatch, day *DayResult) error {
	for _, p := range s.account.Open() {
		if !p.IsPending() || !p.SignalDate.Before(date) {
			continue
		}

		bar, ok := batch.Bar(p.Code)
		reason := ""
		switch {
		case !ok || !bar.Valid():
			reason = "unfillable: no bar"
		case s.lockedAtOpen(p, bar, batch):
			reason = "unfillable: locked limit-up at open"
		}

		var shares decimal.Decimal
		var price decimal.Decimal
		if reason == "" {
			price = decimal.NewFromFloat(bar.Open)
			shares = s.roundLots(p.Reserved, price)
			if !shares.IsPositive() {
				reason = "unfillable: budget below one lot"
			}
		}

		if reason != "" {
			rec, err := s.account.Cancel(p.Code, date, reason)
			if err != nil {
				return err
			}
			day.Trades = append(day.Trades, rec)
			continue
		}

		rec, err := s.account.Fill(p.Code, date, price, shares)
		if err != nil {
			return err
		}
		day.Trades = append(day.Trades, rec)
	}
	return nil
}

// lockedAtOpen reports a one-word board: open == high == limit
func (s *Simulator) lockedAtOpen(p *ledger.Position, bar contracts.Bar, batch *contracts.DailyBatch) bool {
	limit := 0.0
	for i := range batch.Snapshots {
		if batch.Snapshots[i].Code == p.Code {
			limit = batch.Snapshots[i].LimitPrice
			break
		}
	}
	if limit <= 0 {
		limit = contracts.LimitUpPrice(p.Code, p.EntryPrice.InexactFloat64())
	}
	return limit > 0 && bar.Open == bar.High && bar.High >= limit-0.005
}

func (s *Simulator) evaluateExits(date time.Time, batch *contracts.DailyBatch, day *DayResult) error {
	exit := s.cfg.Exit

	for _, p := range s.account.Open() {
		if !p.IsOpen() || !p.EntryDate.Before(date) {
			continue
		}
		bar, ok := batch.Bar(p.Code)
		if !ok || !bar.Valid() {
			continue // 停牌: 마지막 가격 유지
		}
		low := decimal.NewFromFloat(bar.Low)
		high := decimal.NewFromFloat(bar.High)

		if low.LessThanOrEqual(p.StopLoss) {
			if err := s.sell(p, date, p.StopLoss, p.Shares, contracts.ExitStopLoss,
				fmt.Sprintf("low %.2f <= stop %s", bar.Low, p.StopLoss.StringFixed(2)), day); err != nil {
				return err
			}
			continue
		}

		if !p.TP1Done && high.GreaterThanOrEqual(p.TakeProfit1) {
			shares := p.Shares.Mul(decimal.NewFromFloat(exit.TP1SellRatio)).Div(s.lot).Floor().Mul(s.lot)
			if !shares.IsPositive() || shares.GreaterThanOrEqual(p.Shares) {
				shares = p.Shares
			}
			if err := s.sell(p, date, p.TakeProfit1, shares, contracts.ExitTakeProfit,
				fmt.Sprintf("tp1 %s hit", p.TakeProfit1.StringFixed(2)), day); err != nil {
				return err
			}
			if !p.IsOpen() {
				continue
			}
			p.TP1Done = true
			if exit.BreakevenAfterTP1 {
				p.RaiseStop(p.EntryPrice)
			}
		}

		if p.TP1Done && high.GreaterThanOrEqual(p.TakeProfit2) {
			if err := s.sell(p, date, p.TakeProfit2, p.Shares, contracts.ExitTakeProfit,
				fmt.Sprintf("tp2 %s hit", p.TakeProfit2.StringFixed(2)), day); err != nil {
				return err
			}
			continue
		}

		// 수익 구간에서만 trailing stop 상향
		closePrice := decimal.NewFromFloat(bar.Close)
		if exit.TrailPct > 0 && closePrice.GreaterThan(p.EntryPrice) {
			trail := closePrice.Mul(decimal.NewFromFloat(1 - exit.TrailPct)).Round(2)
			p.RaiseStop(trail)
		}
	}
	return nil
}

func (s *Simulator) sell(p *ledger.Position, date time.Time, price, shares decimal.Decimal, reason contracts.ExitReason, note string, day *DayResult) error {
	rec, closed, err := s.account.Sell(p.Code, date, price, shares, reason, note)
	if err != nil {
		return err
	}
	day.Trades = append(day.Trades, rec)
	if closed {
		day.Closed++
		s.logger.WithCode(p.Code).WithDate(date).WithFields(map[string]interface{}{
			"reason": string(reason),
			"pnl":    p.RealizedPnL.StringFixed(2),
			"streak": s.account.ConsecutiveLosses,
		}).Info("Position closed")
	}
	return nil
}

func (s *Simulator) executeEntries(date time.Time, signals []contracts.Signal, capital decimal.Decimal, day *DayResult) error {
	buys := signal.Buys(signals)
	signal.Sort(buys)

	for _, sig := range buys {
		price := decimal.NewFromFloat(sig.Price)
		budget := capital.Mul(decimal.NewFromFloat(sig.Fraction)).Round(2)
		shares := s.roundLots(budget, price)

		amount := shares.Mul(price)
		if s.cfg.Execution.EntryMode == strategyconfig.EntryAtNextOpen {
			amount = budget
		}
		if !shares.IsPositive() || !price.IsPositive() {
			amount = decimal.Zero
		}

		if reason := s.account.CheckEntry(sig.Code, sig.Fraction, amount, date); reason != "" {
			day.Rejected++
			day.Trades = append(day.Trades, contracts.TradeRecord{
				Date:   date,
				Code:   sig.Code,
				Kind:   contracts.TradeSkip,
				Price:  price,
				Shares: decimal.Zero,
				Amount: decimal.Zero,
				PnL:    decimal.Zero,
				Reason: reason,
			})
			continue
		}

		order := ledger.Order{
			Code:        sig.Code,
			Name:        sig.Name,
			Boards:      sig.Boards,
			Sector:      sig.Sector,
			Date:        date,
			Price:       price,
			Shares:      shares,
			Budget:      budget,
			Fraction:    sig.Fraction,
			StopLoss:    decimal.NewFromFloat(sig.StopLoss),
			TakeProfit1: decimal.NewFromFloat(sig.TakeProfit1),
			TakeProfit2: decimal.NewFromFloat(sig.TakeProfit2),
		}

		if s.cfg.Execution.EntryMode == strategyconfig.EntryAtNextOpen {
			if _, err := s.account.Reserve(order); err != nil {
				return err
			}
		} else {
			_, rec, err := s.account.OpenPosition(order)
			if err != nil {
				return err
			}
			day.Trades = append(day.Trades, rec)
		}
		day.Accepted++
	}
	return nil
}

func (s *Simulator) markToMarket(date time.Time, batch *contracts.DailyBatch, prevEquity, realizedBefore decimal.Decimal) contracts.EquityPoint {
	open := 0
	for _, p := range s.account.Open() {
		if !p.IsOpen() {
			continue
		}
		open++
		if bar, ok := batch.Bar(p.Code); ok && bar.Valid() {
			s.account.Mark(p.Code, decimal.NewFromFloat(bar.Close))
		}
		if p.EntryDate.Before(date) {
			p.HoldingDays++
		}
	}

	equity := s.account.Equity()
	ret := 0.0
	if prevEquity.IsPositive() {
		ret = equity.Sub(prevEquity).Div(prevEquity).InexactFloat64()
	}

	return contracts.EquityPoint{
		Date:        date,
		Equity:      equity,
		Cash:        s.account.Cash,
		Unrealized:  s.account.Unrealized(),
		RealizedDay: s.account.RealizedPnL.Sub(realizedBefore),
		OpenCount:   open,
		DailyReturn: ret,
	}
}

// checkIdentity asserts equity[d] = equity[d-1] + realized[d] + Δunrealized[d]
func (s *Simulator) checkIdentity(point contracts.EquityPoint, prevEquity, prevUnrealized decimal.Decimal) error {
	want := prevEquity.Add(point.RealizedDay).Add(point.Unrealized.Sub(prevUnrealized))
	if !want.Equal(point.Equity) {
		return fmt.Errorf("%w: equity %s != %s on %s", ledger.ErrStateInconsistency,
			point.Equity, want, point.Date.Format(contracts.DateLayout))
	}
	return nil
}

// roundLots floors budget/price to whole lots
func (s *Simulator) roundLots(budget, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || !budget.IsPositive() {
		return decimal.Zero
	}
	return budget.Div(price.Mul(s.lot)).Floor().Mul(s.lot)
}
