package backtest

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/ledger"
)

const tradingDaysPerYear = 252

// Summary holds performance metrics of a run
type Summary struct {
	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalEquity    decimal.Decimal `json:"final_equity"`
	TradingDays    int             `json:"trading_days"`

	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`

	// Closed positions (cancelled pending fills excluded)
	ClosedPositions int     `json:"closed_positions"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	WinRate         float64 `json:"win_rate"`
	ProfitFactor    float64 `json:"profit_factor"`
	AvgHoldingDays  float64 `json:"avg_holding_days"`
	AvgReturnPct    float64 `json:"avg_return_pct"`

	// Trade log counts
	Buys    int `json:"buys"`
	Sells   int `json:"sells"`
	Skips   int `json:"skips"`
	Cancels int `json:"cancels"`
}

// Summarize computes metrics from the equity curve, closed positions and
// trade log. Returns compound the daily returns, so concatenated curves of
// independent ranges are summarized correctly.
func Summarize(initial decimal.Decimal, curve []contracts.EquityPoint, closed []*ledger.Position, trades []contracts.TradeRecord) Summary {
	s := Summary{
		InitialCapital: initial,
		FinalEquity:    initial,
		TradingDays:    len(curve),
	}

	returns := make([]float64, 0, len(curve))
	for _, p := range curve {
		returns = append(returns, p.DailyReturn)
	}

	index := 1.0
	peak := 1.0
	for _, r := range returns {
		index *= 1 + r
		if index > peak {
			peak = index
		}
		if dd := (peak - index) / peak; dd > s.MaxDrawdown {
			s.MaxDrawdown = dd
		}
	}
	s.TotalReturn = index - 1
	s.FinalEquity = initial.Mul(decimal.NewFromFloat(index)).Round(2)

	if len(returns) > 0 {
		years := float64(len(returns)) / tradingDaysPerYear
		if index > 0 {
			s.AnnualizedReturn = math.Pow(index, 1/years) - 1
		} else {
			s.AnnualizedReturn = -1
		}
	}

	s.Volatility = stddev(returns) * math.Sqrt(tradingDaysPerYear)
	if s.Volatility > 0 {
		s.SharpeRatio = s.AnnualizedReturn / s.Volatility
	}

	downside := make([]float64, 0)
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if dd := stddev(downside) * math.Sqrt(tradingDaysPerYear); dd > 0 {
		s.SortinoRatio = s.AnnualizedReturn / dd
	}

	s.summarizePositions(closed)

	for _, t := range trades {
		switch t.Kind {
		case contracts.TradeBuy:
			s.Buys++
		case contracts.TradeSell:
			s.Sells++
		case contracts.TradeSkip:
			s.Skips++
		case contracts.TradeCancel:
			s.Cancels++
		}
	}

	return s
}

func (s *Summary) summarizePositions(closed []*ledger.Position) {
	grossWin := decimal.Zero
	grossLoss := decimal.Zero
	holding := 0
	retSum := 0.0

	for _, p := range closed {
		if p.ExitReason == contracts.ExitUnfillable || !p.InitialShares.IsPositive() {
			continue
		}
		s.ClosedPositions++
		holding += p.HoldingDays
		retSum += p.ReturnPct()

		switch {
		case p.RealizedPnL.IsPositive():
			s.Wins++
			grossWin = grossWin.Add(p.RealizedPnL)
		case p.RealizedPnL.IsNegative():
			s.Losses++
			grossLoss = grossLoss.Add(p.RealizedPnL.Neg())
		}
	}

	if s.ClosedPositions == 0 {
		return
	}
	n := float64(s.ClosedPositions)
	s.WinRate = float64(s.Wins) / n
	s.AvgHoldingDays = float64(holding) / n
	s.AvgReturnPct = retSum / n
	if grossLoss.IsPositive() {
		s.ProfitFactor = grossWin.Div(grossLoss).InexactFloat64()
	}
}

// stddev calculates population standard deviation
func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))

	return math.Sqrt(variance)
}
