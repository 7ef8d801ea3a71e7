// Package ledger owns the simulated account: cash, positions and the
// losing-streak cool-down. Money is held in shopspring/decimal so the
// equity identity holds exactly.
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/strategyconfig"
)

// fractionEpsilon absorbs float drift when summing committed fractions
const fractionEpsilon = 1e-9

// Limits are the hard risk caps checked before any accepted buy
type Limits struct {
	MaxSingleFraction    float64 `json:"max_single_fraction"`
	MaxTotalFraction     float64 `json:"max_total_fraction"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	RestDays             int     `json:"rest_days"`
	CooldownRelease      string  `json:"cooldown_release"`
}

// LimitsFromConfig maps strategy risk config to ledger limits
func LimitsFromConfig(r strategyconfig.Risk) Limits {
	return Limits{
		MaxSingleFraction:    r.MaxSingleFraction,
		MaxTotalFraction:     r.MaxTotalFraction,
		MaxConsecutiveLosses: r.MaxConsecutiveLosses,
		RestDays:             r.RestDays,
		CooldownRelease:      r.CooldownRelease,
	}
}

// Account is the single ledger of one simulation run.
// Mutated only by the simulator, one day at a time.
// ⭐ SSOT: 현금/포지션/연패 상태는 여기서만
type Account struct {
	InitialCapital decimal.Decimal `json:"initial_capital"`
	Cash           decimal.Decimal `json:"cash"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	Limits         Limits          `json:"limits"`

	Positions map[string]*Position `json:"positions"` // pending + open, key: code
	Closed    []*Position          `json:"closed"`    // close-date order

	ConsecutiveLosses int       `json:"consecutive_losses"`
	RestUntil         time.Time `json:"rest_until,omitempty"`
}

// NewAccount creates an account with all capital in cash
func NewAccount(capital decimal.Decimal, limits Limits) *Account {
	return &Account{
		InitialCapital: capital,
		Cash:           capital,
		RealizedPnL:    decimal.Zero,
		Limits:         limits,
		Positions:      make(map[string]*Position),
		Closed:         make([]*Position, 0),
	}
}

// Holds reports a pending or open position for code
func (a *Account) Holds(code string) bool {
	_, ok := a.Positions[code]
	return ok
}

// Position returns the live position for code
func (a *Account) Position(code string) (*Position, bool) {
	p, ok := a.Positions[code]
	return p, ok
}

// Open returns live positions sorted by code (deterministic iteration)
func (a *Account) Open() []*Position {
	out := make([]*Position, 0, len(a.Positions))
	for _, p := range a.Positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// CooldownActive reports whether new entries are blocked on date.
// Both modes: blocked through RestUntil (the forced rest after the streak).
// profit mode: after the rest, still blocked while the counter is at max
// and a live position can release it with a profitable close.
func (a *Account) CooldownActive(date time.Time) bool {
	if !a.RestUntil.IsZero() && !date.After(a.RestUntil) {
		return true
	}
	if a.Limits.CooldownRelease == strategyconfig.ReleaseRestDays {
		return false
	}
	return a.streakLocked() && len(a.Positions) > 0
}

func (a *Account) streakLocked() bool {
	return a.Limits.MaxConsecutiveLosses > 0 && a.ConsecutiveLosses >= a.Limits.MaxConsecutiveLosses
}

// ExpireCooldown clears a profit-mode streak once the rest is over and the
// account is flat (nothing left to close at a profit). Reports a release.
func (a *Account) ExpireCooldown(date time.Time) bool {
	if a.Limits.CooldownRelease == strategyconfig.ReleaseRestDays || !a.streakLocked() {
		return false
	}
	if (!a.RestUntil.IsZero() && !date.After(a.RestUntil)) || len(a.Positions) > 0 {
		return false
	}
	a.ConsecutiveLosses = 0
	return true
}

// CommittedFraction sums fractions of live positions
func (a *Account) CommittedFraction() float64 {
	total := 0.0
	for _, p := range a.Positions {
		total += p.Fraction
	}
	return total
}

// Reserved sums cash reserved by pending positions
func (a *Account) Reserved() decimal.Decimal {
	total := decimal.Zero
	for _, p := range a.Positions {
		if p.IsPending() {
			total = total.Add(p.Reserved)
		}
	}
	return total
}

// Unrealized sums mark-to-market P&L of open positions
func (a *Account) Unrealized() decimal.Decimal {
	total := decimal.Zero
	for _, p := range a.Positions {
		total = total.Add(p.Unrealized())
	}
	return total
}

// Equity is cash + market value + pending reservations
func (a *Account) Equity() decimal.Decimal {
	total := a.Cash.Add(a.Reserved())
	for _, p := range a.Positions {
		total = total.Add(p.MarketValue())
	}
	return total
}

// CheckEntry applies the rule checks for a new entry. A non-empty reason
// means the entry must be skipped (RuleViolation, not an error).
func (a *Account) CheckEntry(code string, fraction float64, cost decimal.Decimal, date time.Time) string {
	switch {
	case a.Holds(code):
		return "already holding position"
	case a.CooldownActive(date):
		return fmt.Sprintf("cooldown: %d consecutive losses", a.ConsecutiveLosses)
	case fraction <= 0:
		return "non-positive fraction"
	case fraction > a.Limits.MaxSingleFraction+fractionEpsilon:
		return fmt.Sprintf("single fraction %.4f > %.2f", fraction, a.Limits.MaxSingleFraction)
	case a.CommittedFraction()+fraction > a.Limits.MaxTotalFraction+fractionEpsilon:
		return fmt.Sprintf("committed %.4f + %.4f > %.2f", a.CommittedFraction(), fraction, a.Limits.MaxTotalFraction)
	case !cost.IsPositive():
		return "position rounds to zero lots"
	case cost.GreaterThan(a.Cash):
		return fmt.Sprintf("insufficient cash: need %s, have %s", cost.StringFixed(2), a.Cash.StringFixed(2))
	}
	return ""
}

// guardEntry re-checks the hard invariants inside the ledger
func (a *Account) guardEntry(o Order, cost decimal.Decimal) error {
	if a.Holds(o.Code) {
		return fmt.Errorf("%w: %s", ErrDuplicatePosition, o.Code)
	}
	if o.Fraction > a.Limits.MaxSingleFraction+fractionEpsilon ||
		a.CommittedFraction()+o.Fraction > a.Limits.MaxTotalFraction+fractionEpsilon {
		return fmt.Errorf("%w: %s fraction %.4f", ErrFractionCap, o.Code, o.Fraction)
	}
	if !cost.IsPositive() {
		return fmt.Errorf("%w: %s cost %s", ErrInvalidQuantity, o.Code, cost)
	}
	if cost.GreaterThan(a.Cash) {
		return fmt.Errorf("%w: %s cost %s > cash %s", ErrNegativeCash, o.Code, cost, a.Cash)
	}
	return nil
}

// OpenPosition fills an order immediately (pending skipped: new → open)
func (a *Account) OpenPosition(o Order) (*Position, contracts.TradeRecord, error) {
	cost := o.Shares.Mul(o.Price)
	if err := a.guardEntry(o, cost); err != nil {
		return nil, contracts.TradeRecord{}, err
	}

	p := newPosition(o)
	if err := p.transition(contracts.PositionOpen); err != nil {
		return nil, contracts.TradeRecord{}, err
	}
	p.fill(o.Date, o.Price, o.Shares)

	a.Cash = a.Cash.Sub(cost)
	a.Positions[o.Code] = p

	return p, contracts.TradeRecord{
		Date:       o.Date,
		Code:       o.Code,
		PositionID: p.ID,
		Kind:       contracts.TradeBuy,
		Price:      o.Price,
		Shares:     o.Shares,
		Amount:     cost,
		PnL:        decimal.Zero,
		Reason:     fmt.Sprintf("entry fraction %.2f", o.Fraction),
	}, nil
}

// Reserve creates a pending position holding o.Budget of cash
func (a *Account) Reserve(o Order) (*Position, error) {
	if err := a.guardEntry(o, o.Budget); err != nil {
		return nil, err
	}

	p := newPosition(o)
	if err := p.transition(contracts.PositionPending); err != nil {
		return nil, err
	}
	p.Reserved = o.Budget
	p.EntryPrice = o.Price

	a.Cash = a.Cash.Sub(o.Budget)
	a.Positions[o.Code] = p
	return p, nil
}

// Fill converts a pending position at price with lot-rounded shares.
// Unused reservation returns to cash.
func (a *Account) Fill(code string, date time.Time, price, shares decimal.Decimal) (contracts.TradeRecord, error) {
	p, ok := a.Positions[code]
	if !ok {
		return contracts.TradeRecord{}, fmt.Errorf("%w: fill %s", ErrPositionNotFound, code)
	}
	if !p.IsPending() {
		return contracts.TradeRecord{}, fmt.Errorf("%w: fill %s in state %s", ErrInvalidTransition, code, p.State)
	}

	cost := shares.Mul(price)
	if !shares.IsPositive() || cost.GreaterThan(p.Reserved) {
		return contracts.TradeRecord{}, fmt.Errorf("%w: fill %s cost %s > reserved %s", ErrInvalidQuantity, code, cost, p.Reserved)
	}
	if err := p.transition(contracts.PositionOpen); err != nil {
		return contracts.TradeRecord{}, err
	}

	a.Cash = a.Cash.Add(p.Reserved.Sub(cost))
	p.Reserved = decimal.Zero
	p.rebaseLevels(price)
	p.fill(date, price, shares)

	return contracts.TradeRecord{
		Date:       date,
		Code:       code,
		PositionID: p.ID,
		Kind:       contracts.TradeBuy,
		Price:      price,
		Shares:     shares,
		Amount:     cost,
		PnL:        decimal.Zero,
		Reason:     "pending fill at open",
	}, nil
}

// Cancel closes a pending position without a fill and releases its cash
func (a *Account) Cancel(code string, date time.Time, reason string) (contracts.TradeRecord, error) {
	p, ok := a.Positions[code]
	if !ok {
		return contracts.TradeRecord{}, fmt.Errorf("%w: cancel %s", ErrPositionNotFound, code)
	}
	if !p.IsPending() {
		return contracts.TradeRecord{}, fmt.Errorf("%w: cancel %s in state %s", ErrInvalidTransition, code, p.State)
	}
	if err := p.transition(contracts.PositionClosed); err != nil {
		return contracts.TradeRecord{}, err
	}

	a.Cash = a.Cash.Add(p.Reserved)
	p.Reserved = decimal.Zero
	p.Fraction = 0
	p.ExitDate = date
	p.ExitReason = contracts.ExitUnfillable

	delete(a.Positions, code)
	a.Closed = append(a.Closed, p)

	return contracts.TradeRecord{
		Date:       date,
		Code:       code,
		PositionID: p.ID,
		Kind:       contracts.TradeCancel,
		Price:      decimal.Zero,
		Shares:     decimal.Zero,
		Amount:     decimal.Zero,
		PnL:        decimal.Zero,
		Reason:     reason,
	}, nil
}

// Sell exits shares of an open position at price. Selling the remainder
// closes it (open → closed) and updates the losing-streak counter;
// otherwise it stays open with fraction and cost reduced pro rata.
func (a *Account) Sell(code string, date time.Time, price, shares decimal.Decimal, reason contracts.ExitReason, note string) (contracts.TradeRecord, bool, error) {
	p, ok := a.Positions[code]
	if !ok {
		return contracts.TradeRecord{}, false, fmt.Errorf("%w: sell %s", ErrPositionNotOpen, code)
	}
	if !p.IsOpen() {
		return contracts.TradeRecord{}, false, fmt.Errorf("%w: sell %s in state %s", ErrPositionNotOpen, code, p.State)
	}
	if !shares.IsPositive() || shares.GreaterThan(p.Shares) {
		return contracts.TradeRecord{}, false, fmt.Errorf("%w: sell %s shares %s of %s", ErrInvalidQuantity, code, shares, p.Shares)
	}

	full := shares.Equal(p.Shares)
	next := contracts.PositionOpen
	if full {
		next = contracts.PositionClosed
	}
	if err := p.transition(next); err != nil {
		return contracts.TradeRecord{}, false, err
	}

	costPortion := p.CostBasis
	fractionPortion := p.Fraction
	if !full {
		ratio := shares.Div(p.Shares)
		costPortion = p.CostBasis.Mul(ratio)
		fractionPortion = p.Fraction * ratio.InexactFloat64()
	}

	proceeds := shares.Mul(price)
	pnl := proceeds.Sub(costPortion)

	a.Cash = a.Cash.Add(proceeds)
	a.RealizedPnL = a.RealizedPnL.Add(pnl)

	p.Shares = p.Shares.Sub(shares)
	p.CostBasis = p.CostBasis.Sub(costPortion)
	p.Fraction -= fractionPortion
	p.RealizedPnL = p.RealizedPnL.Add(pnl)
	p.LastPrice = price

	if full {
		p.Fraction = 0
		p.ExitDate = date
		p.ExitPrice = price
		p.ExitReason = reason
		delete(a.Positions, code)
		a.Closed = append(a.Closed, p)
		a.registerClose(p.RealizedPnL, date)
	}

	return contracts.TradeRecord{
		Date:       date,
		Code:       code,
		PositionID: p.ID,
		Kind:       contracts.TradeSell,
		Price:      price,
		Shares:     shares,
		Amount:     proceeds,
		PnL:        pnl,
		Exit:       reason,
		Reason:     note,
	}, full, nil
}

// registerClose updates the losing streak from a full close's total P&L.
// Break-even leaves the counter unchanged.
func (a *Account) registerClose(pnl decimal.Decimal, date time.Time) {
	switch {
	case pnl.IsPositive():
		a.ConsecutiveLosses = 0
	case pnl.IsNegative():
		a.ConsecutiveLosses++
		if a.Limits.MaxConsecutiveLosses > 0 && a.ConsecutiveLosses >= a.Limits.MaxConsecutiveLosses {
			a.RestUntil = contracts.AddTradingDays(date, a.Limits.RestDays)
			if a.Limits.CooldownRelease == strategyconfig.ReleaseRestDays {
				// 휴식 후 재개: 연패 카운터는 휴식으로 소진
				a.ConsecutiveLosses = 0
			}
		}
	}
}

// Mark updates the last price of an open position
func (a *Account) Mark(code string, price decimal.Decimal) {
	if p, ok := a.Positions[code]; ok && p.IsOpen() && price.IsPositive() {
		p.LastPrice = price
	}
}

// CheckInvariants verifies the hard caps and non-negative cash
func (a *Account) CheckInvariants() error {
	if a.Cash.IsNegative() {
		return fmt.Errorf("%w: cash %s", ErrNegativeCash, a.Cash)
	}
	for code, p := range a.Positions {
		if p.Code != code {
			return fmt.Errorf("%w: key %s holds %s", ErrStateInconsistency, code, p.Code)
		}
		if p.State == contracts.PositionClosed {
			return fmt.Errorf("%w: closed position %s still live", ErrStateInconsistency, code)
		}
		if p.Fraction > a.Limits.MaxSingleFraction+fractionEpsilon {
			return fmt.Errorf("%w: %s fraction %.4f", ErrFractionCap, code, p.Fraction)
		}
	}
	if a.CommittedFraction() > a.Limits.MaxTotalFraction+fractionEpsilon {
		return fmt.Errorf("%w: committed %.4f", ErrFractionCap, a.CommittedFraction())
	}
	return nil
}

// fill records entry data on a position becoming open
// rebaseLevels moves stop and targets from the signal reference price to
// the actual fill, keeping their percentage distance.
func (p *Position) rebaseLevels(fill decimal.Decimal) {
	ref := p.EntryPrice
	if !ref.IsPositive() || ref.Equal(fill) {
		return
	}
	scale := func(level decimal.Decimal) decimal.Decimal {
		if !level.IsPositive() {
			return level
		}
		return level.Mul(fill).Div(ref).Round(2)
	}
	p.StopLoss = scale(p.StopLoss)
	p.TakeProfit1 = scale(p.TakeProfit1)
	p.TakeProfit2 = scale(p.TakeProfit2)
}

func (p *Position) fill(date time.Time, price, shares decimal.Decimal) {
	p.EntryDate = date
	p.EntryPrice = price
	p.Shares = shares
	p.InitialShares = shares
	p.CostBasis = shares.Mul(price)
	p.LastPrice = price
	p.RealizedPnL = decimal.Zero
}
