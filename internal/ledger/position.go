package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wonny/lianban/internal/contracts"
)

// Position is one holding. State moves only through transition().
// Fields are exported for JSON state snapshots.
type Position struct {
	ID    string                  `json:"id"`
	Code  string                  `json:"code"`
	Name  string                  `json:"name"`
	State contracts.PositionState `json:"state"`

	Boards int    `json:"boards"` // 진입 시 连板数
	Sector string `json:"sector,omitempty"`

	SignalDate time.Time       `json:"signal_date"`
	EntryDate  time.Time       `json:"entry_date,omitempty"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Reserved   decimal.Decimal `json:"reserved"` // pending 예약 현금

	Shares        decimal.Decimal `json:"shares"`         // 잔여 수량
	InitialShares decimal.Decimal `json:"initial_shares"` // 최초 체결 수량
	CostBasis     decimal.Decimal `json:"cost_basis"`     // 잔여 원가
	Fraction      float64         `json:"fraction"`       // 잔여 committed fraction

	StopLoss    decimal.Decimal `json:"stop_loss"`
	TakeProfit1 decimal.Decimal `json:"take_profit_1"`
	TakeProfit2 decimal.Decimal `json:"take_profit_2"`
	TP1Done     bool            `json:"tp1_done"`

	LastPrice   decimal.Decimal `json:"last_price"`
	HoldingDays int             `json:"holding_days"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`

	ExitDate   time.Time            `json:"exit_date,omitempty"`
	ExitPrice  decimal.Decimal      `json:"exit_price"`
	ExitReason contracts.ExitReason `json:"exit_reason,omitempty"`
}

// Order describes a requested entry
type Order struct {
	Code        string
	Name        string
	Boards      int
	Sector      string
	Date        time.Time
	Price       decimal.Decimal // fill price (close mode) or reference (next_open)
	Shares      decimal.Decimal // close mode: exact lot-rounded shares
	Budget      decimal.Decimal // next_open mode: cash reserved
	Fraction    float64
	StopLoss    decimal.Decimal
	TakeProfit1 decimal.Decimal
	TakeProfit2 decimal.Decimal
}

func newPosition(o Order) *Position {
	return &Position{
		ID:          uuid.NewString(),
		Code:        o.Code,
		Name:        o.Name,
		Boards:      o.Boards,
		Sector:      o.Sector,
		SignalDate:  o.Date,
		Fraction:    o.Fraction,
		StopLoss:    o.StopLoss,
		TakeProfit1: o.TakeProfit1,
		TakeProfit2: o.TakeProfit2,
	}
}

// transition enforces the pending → open → closed lifecycle
func (p *Position) transition(to contracts.PositionState) error {
	if p.State == "" {
		if to != contracts.PositionPending && to != contracts.PositionOpen {
			return fmt.Errorf("%w: new → %s (%s)", ErrInvalidTransition, to, p.Code)
		}
		p.State = to
		return nil
	}
	if !p.State.CanTransition(to) {
		return fmt.Errorf("%w: %s → %s (%s)", ErrInvalidTransition, p.State, to, p.Code)
	}
	p.State = to
	return nil
}

// IsOpen reports an open (filled) position
func (p *Position) IsOpen() bool {
	return p.State == contracts.PositionOpen
}

// IsPending reports an unfilled position
func (p *Position) IsPending() bool {
	return p.State == contracts.PositionPending
}

// MarketValue is shares × last price (0 when pending)
func (p *Position) MarketValue() decimal.Decimal {
	if !p.IsOpen() {
		return decimal.Zero
	}
	return p.Shares.Mul(p.LastPrice)
}

// Unrealized is market value minus remaining cost
func (p *Position) Unrealized() decimal.Decimal {
	if !p.IsOpen() {
		return decimal.Zero
	}
	return p.MarketValue().Sub(p.CostBasis)
}

// ReturnPct is total realized P&L over initial cost (closed positions)
func (p *Position) ReturnPct() float64 {
	cost := p.InitialShares.Mul(p.EntryPrice)
	if cost.IsZero() {
		return 0
	}
	return p.RealizedPnL.Div(cost).InexactFloat64()
}

// RaiseStop ratchets the stop upward; lower values are ignored
func (p *Position) RaiseStop(stop decimal.Decimal) bool {
	if stop.GreaterThan(p.StopLoss) {
		p.StopLoss = stop
		return true
	}
	return false
}
