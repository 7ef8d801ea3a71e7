package backtest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/ledger"
	"github.com/wonny/lianban/internal/strategyconfig"
)

var (
	day1 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC) // Mon
	day2 = day1.AddDate(0, 0, 1)
	day3 = day1.AddDate(0, 0, 2)
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newSim(t *testing.T, mutate func(*strategyconfig.Config)) *Simulator {
	t.Helper()
	cfg := strategyconfig.Default()
	if mutate != nil {
		mutate(cfg)
	}
	acct := ledger.NewAccount(d("1000000"), ledger.LimitsFromConfig(cfg.Risk))
	return NewSimulator(cfg, acct, nil)
}

func buy(code string, date time.Time, price, fraction float64) contracts.Signal {
	return contracts.Signal{
		Code:        code,
		Name:        code,
		Date:        date,
		Action:      contracts.ActionBuy,
		Price:       price,
		Fraction:    fraction,
		Score:       90,
		StopLoss:    round2(price * 0.93),
		TakeProfit1: round2(price * 1.15),
		TakeProfit2: round2(price * 1.25),
	}
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func bars(date time.Time, b map[string][4]float64) *contracts.DailyBatch {
	out := &contracts.DailyBatch{Date: date, Bars: map[string]contracts.Bar{}}
	for code, ohlc := range b {
		out.Bars[code] = contracts.Bar{Date: date, Open: ohlc[0], High: ohlc[1], Low: ohlc[2], Close: ohlc[3]}
	}
	return out
}

func step(t *testing.T, sim *Simulator, date time.Time, signals []contracts.Signal, batch *contracts.DailyBatch) *DayResult {
	t.Helper()
	res, err := sim.Step(date, signals, batch)
	require.NoError(t, err)
	return res
}

func tradesOf(res *DayResult, kind contracts.TradeKind) []contracts.TradeRecord {
	out := make([]contracts.TradeRecord, 0)
	for _, tr := range res.Trades {
		if tr.Kind == kind {
			out = append(out, tr)
		}
	}
	return out
}

func TestStep_StopLossAtStopPrice(t *testing.T) {
	sim := newSim(t, nil)

	res := step(t, sim, day1, []contracts.Signal{buy("600001.SH", day1, 10.00, 0.20)},
		bars(day1, map[string][4]float64{"600001.SH": {9.50, 10.00, 9.40, 10.00}}))
	require.Equal(t, 1, res.Accepted)

	p, ok := sim.Account().Position("600001.SH")
	require.True(t, ok)
	assert.True(t, p.Shares.Equal(d("20000")))
	assert.True(t, p.StopLoss.Equal(d("9.3")))

	res = step(t, sim, day2, nil,
		bars(day2, map[string][4]float64{"600001.SH": {9.80, 9.90, 9.20, 9.25}}))

	sells := tradesOf(res, contracts.TradeSell)
	require.Len(t, sells, 1)
	assert.True(t, sells[0].Price.Equal(d("9.30")))
	assert.Equal(t, contracts.ExitStopLoss, sells[0].Exit)
	assert.True(t, sells[0].PnL.Equal(d("-14000")))

	assert.False(t, sim.Account().Holds("600001.SH"))
	assert.Equal(t, 1, sim.Account().ConsecutiveLosses)
	assert.True(t, res.Equity.Equity.Equal(d("986000")))
	assert.True(t, res.Equity.RealizedDay.Equal(d("-14000")))
}

func TestStep_NoExitOnEntryDay(t *testing.T) {
	sim := newSim(t, nil)

	// low breaches the stop on the signal day itself (T+1 rule)
	res := step(t, sim, day1, []contracts.Signal{buy("600001.SH", day1, 10.00, 0.20)},
		bars(day1, map[string][4]float64{"600001.SH": {9.00, 10.00, 9.00, 10.00}}))
	assert.Empty(t, tradesOf(res, contracts.TradeSell))
	assert.True(t, sim.Account().Holds("600001.SH"))
}

func TestStep_TakeProfitTiers(t *testing.T) {
	sim := newSim(t, nil)
	step(t, sim, day1, []contracts.Signal{buy("600001.SH", day1, 10.00, 0.20)},
		bars(day1, map[string][4]float64{"600001.SH": {9.50, 10.00, 9.40, 10.00}}))

	res := step(t, sim, day2, nil,
		bars(day2, map[string][4]float64{"600001.SH": {10.50, 11.80, 10.20, 11.60}}))

	sells := tradesOf(res, contracts.TradeSell)
	require.Len(t, sells, 1)
	assert.True(t, sells[0].Shares.Equal(d("10000")))
	assert.True(t, sells[0].Price.Equal(d("11.5")))
	assert.True(t, sells[0].PnL.Equal(d("15000")))

	p, ok := sim.Account().Position("600001.SH")
	require.True(t, ok)
	assert.True(t, p.TP1Done)
	assert.Equal(t, contracts.PositionOpen, p.State)
	// breakeven 10.00, then trailed to 11.60 × 0.93
	assert.True(t, p.StopLoss.Equal(d("10.79")), p.StopLoss.String())
	assert.InDelta(t, 0.10, p.Fraction, 1e-9)

	res = step(t, sim, day3, nil,
		bars(day3, map[string][4]float64{"600001.SH": {11.90, 12.60, 11.80, 12.40}}))
	sells = tradesOf(res, contracts.TradeSell)
	require.Len(t, sells, 1)
	assert.True(t, sells[0].Price.Equal(d("12.5")))
	assert.True(t, sells[0].PnL.Equal(d("25000")))

	require.Len(t, sim.Account().Closed, 1)
	assert.True(t, sim.Account().Closed[0].RealizedPnL.Equal(d("40000")))
	assert.Equal(t, 0, sim.Account().ConsecutiveLosses)
}

func TestStep_BothTiersSameDay(t *testing.T) {
	sim := newSim(t, nil)
	step(t, sim, day1, []contracts.Signal{buy("600001.SH", day1, 10.00, 0.20)},
		bars(day1, map[string][4]float64{"600001.SH": {9.50, 10.00, 9.40, 10.00}}))

	res := step(t, sim, day2, nil,
		bars(day2, map[string][4]float64{"600001.SH": {10.50, 12.60, 10.20, 12.00}}))

	assert.Len(t, tradesOf(res, contracts.TradeSell), 2)
	assert.Equal(t, 1, res.Closed)
	assert.True(t, sim.Account().Cash.Equal(d("1040000")))
}

func TestStep_FractionCaps(t *testing.T) {
	sim := newSim(t, nil)

	signals := []contracts.Signal{buy("600009.SH", day1, 10.00, 0.25)}
	for _, code := range []string{"600001.SH", "600002.SH", "600003.SH", "600004.SH", "600005.SH", "600006.SH"} {
		signals = append(signals, buy(code, day1, 10.00, 0.20))
	}

	res := step(t, sim, day1, signals, bars(day1, nil))
	assert.Equal(t, 5, res.Accepted)
	assert.Equal(t, 2, res.Rejected)
	assert.InDelta(t, 1.0, sim.Account().CommittedFraction(), 1e-9)

	reasons := map[string]string{}
	for _, tr := range tradesOf(res, contracts.TradeSkip) {
		reasons[tr.Code] = tr.Reason
	}
	assert.Contains(t, reasons["600009.SH"], "single fraction")
	assert.Contains(t, reasons["600006.SH"], "committed")

	for _, p := range sim.Account().Open() {
		assert.LessOrEqual(t, p.Fraction, 0.20)
	}
}

func TestStep_CooldownAfterThreeLosses(t *testing.T) {
	sim := newSim(t, nil)
	codes := []string{"600001.SH", "600002.SH", "600003.SH"}

	signals := make([]contracts.Signal, 0)
	entry := map[string][4]float64{}
	drop := map[string][4]float64{}
	for _, c := range codes {
		signals = append(signals, buy(c, day1, 10.00, 0.20))
		entry[c] = [4]float64{9.50, 10.00, 9.40, 10.00}
		drop[c] = [4]float64{9.80, 9.90, 9.20, 9.25}
	}
	step(t, sim, day1, signals, bars(day1, entry))

	// day N: third loss, same-day entry already rejected
	res := step(t, sim, day2, []contracts.Signal{buy("600004.SH", day2, 10.00, 0.20)}, bars(day2, drop))
	assert.Equal(t, 3, res.Closed)
	assert.Equal(t, 3, sim.Account().ConsecutiveLosses)
	assert.True(t, res.Cooldown)

	// day N+1
	res = step(t, sim, day3, []contracts.Signal{buy("600005.SH", day3, 10.00, 0.20)}, bars(day3, nil))
	assert.Equal(t, 0, res.Accepted)
	skips := tradesOf(res, contracts.TradeSkip)
	require.Len(t, skips, 1)
	assert.Contains(t, skips[0].Reason, "cooldown")

	// day N+2: rest is over and the account is flat
	day4 := day1.AddDate(0, 0, 3)
	res = step(t, sim, day4, []contracts.Signal{buy("600006.SH", day4, 10.00, 0.20)}, bars(day4, nil))
	assert.False(t, res.Cooldown)
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, 0, sim.Account().ConsecutiveLosses)
}

func TestStep_RestDayHoldsDespiteProfitableClose(t *testing.T) {
	sim := newSim(t, nil)
	losers := []string{"600001.SH", "600002.SH", "600003.SH"}
	const winner = "600009.SH"

	signals := []contracts.Signal{buy(winner, day1, 10.00, 0.20)}
	entry := map[string][4]float64{winner: {9.50, 10.00, 9.40, 10.00}}
	drop := map[string][4]float64{winner: {10.00, 10.20, 9.90, 10.10}}
	for _, c := range losers {
		signals = append(signals, buy(c, day1, 10.00, 0.20))
		entry[c] = [4]float64{9.50, 10.00, 9.40, 10.00}
		drop[c] = [4]float64{9.80, 9.90, 9.20, 9.25}
	}
	step(t, sim, day1, signals, bars(day1, entry))

	res := step(t, sim, day2, nil, bars(day2, drop))
	require.Equal(t, 3, res.Closed)
	require.Equal(t, 3, sim.Account().ConsecutiveLosses)

	// day N+1: the winner runs through TP1 and TP2 before entries
	top := buy("600010.SH", day3, 10.00, 0.20)
	top.Score = 100
	res = step(t, sim, day3, []contracts.Signal{top},
		bars(day3, map[string][4]float64{winner: {11.00, 12.60, 10.90, 12.50}}))

	assert.Equal(t, 1, res.Closed)
	assert.Equal(t, 0, sim.Account().ConsecutiveLosses)
	assert.True(t, res.Cooldown)
	assert.Equal(t, 0, res.Accepted)
	skips := tradesOf(res, contracts.TradeSkip)
	require.Len(t, skips, 1)
	assert.Contains(t, skips[0].Reason, "cooldown")
}

func TestStep_EquityIdentity(t *testing.T) {
	sim := newSim(t, nil)

	days := []struct {
		date    time.Time
		signals []contracts.Signal
		bars    map[string][4]float64
	}{
		{day1, []contracts.Signal{buy("600001.SH", day1, 10.00, 0.20), buy("600002.SH", day1, 7.77, 0.15)},
			map[string][4]float64{"600001.SH": {9.5, 10, 9.4, 10}, "600002.SH": {7.2, 7.77, 7.1, 7.77}}},
		{day2, []contracts.Signal{buy("600003.SH", day2, 13.33, 0.20)},
			map[string][4]float64{"600001.SH": {10.5, 11.8, 10.2, 11.6}, "600002.SH": {7.5, 7.6, 7.0, 7.1}, "600003.SH": {12.5, 13.33, 12.4, 13.33}}},
		{day3, nil,
			map[string][4]float64{"600001.SH": {11.0, 11.1, 10.5, 10.6}, "600003.SH": {13.9, 14.2, 13.1, 13.8}}},
	}

	prev := d("1000000")
	prevUnrealized := decimal.Zero
	for _, day := range days {
		res := step(t, sim, day.date, day.signals, bars(day.date, day.bars))
		p := res.Equity
		want := prev.Add(p.RealizedDay).Add(p.Unrealized.Sub(prevUnrealized))
		assert.True(t, want.Equal(p.Equity), "%s: %s != %s", day.date.Format("01-02"), want, p.Equity)
		prev, prevUnrealized = p.Equity, p.Unrealized
	}
	assert.Len(t, sim.EquityCurve(), 3)
}

func TestStep_NextOpenFillAndCancel(t *testing.T) {
	sim := newSim(t, func(c *strategyconfig.Config) {
		c.Execution.EntryMode = strategyconfig.EntryAtNextOpen
	})

	res := step(t, sim, day1, []contracts.Signal{
		buy("600001.SH", day1, 10.00, 0.20),
		buy("600002.SH", day1, 10.00, 0.10),
	}, bars(day1, nil))
	assert.Equal(t, 2, res.Accepted)
	assert.Empty(t, tradesOf(res, contracts.TradeBuy))
	assert.True(t, res.Equity.Equity.Equal(d("1000000")))

	res = step(t, sim, day2, nil, bars(day2, map[string][4]float64{
		"600001.SH": {10.30, 10.80, 10.10, 10.50},
		"600002.SH": {11.00, 11.00, 11.00, 11.00}, // 一字板
	}))

	fills := tradesOf(res, contracts.TradeBuy)
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Shares.Equal(d("19400")))
	assert.True(t, fills[0].Price.Equal(d("10.3")))

	cancels := tradesOf(res, contracts.TradeCancel)
	require.Len(t, cancels, 1)
	assert.Equal(t, "600002.SH", cancels[0].Code)
	assert.Contains(t, cancels[0].Reason, "unfillable")

	assert.False(t, sim.Account().Holds("600002.SH"))
	assert.Equal(t, 0, sim.Account().ConsecutiveLosses)
	// 1,000,000 - 19400 × 10.30
	assert.True(t, sim.Account().Cash.Equal(d("800180")))
}

func TestStep_NextOpenGapDownKeepsDistance(t *testing.T) {
	sim := newSim(t, func(c *strategyconfig.Config) {
		c.Execution.EntryMode = strategyconfig.EntryAtNextOpen
	})

	step(t, sim, day1, []contracts.Signal{buy("600001.SH", day1, 10.00, 0.20)}, bars(day1, nil))

	res := step(t, sim, day2, nil, bars(day2, map[string][4]float64{
		"600001.SH": {9.20, 9.40, 9.10, 9.15},
	}))
	require.Len(t, tradesOf(res, contracts.TradeBuy), 1)

	p := sim.Account().Positions["600001.SH"]
	require.NotNil(t, p)
	assert.True(t, p.EntryPrice.Equal(d("9.2")))
	// 9.30 × 9.20 / 10.00
	assert.True(t, p.StopLoss.Equal(d("8.56")), p.StopLoss.String())

	// low under the signal-day stop (9.30) but above the filled one
	res = step(t, sim, day3, nil, bars(day3, map[string][4]float64{
		"600001.SH": {9.18, 9.25, 9.10, 9.15},
	}))
	assert.Empty(t, tradesOf(res, contracts.TradeSell))
	assert.True(t, sim.Account().Holds("600001.SH"))
}

func TestStep_DateMustAdvance(t *testing.T) {
	sim := newSim(t, nil)
	step(t, sim, day2, nil, bars(day2, nil))

	_, err := sim.Step(day1, nil, bars(day1, nil))
	assert.ErrorIs(t, err, ledger.ErrStateInconsistency)
}
