package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionState is the explicit lifecycle state of a position
// ⭐ SSOT: 포지션 상태 전이는 ledger.Position 메서드로만
type PositionState string

const (
	PositionPending PositionState = "pending" // 신호 수락, 체결 대기 (next_open)
	PositionOpen    PositionState = "open"
	PositionClosed  PositionState = "closed"
)

// CanTransition reports whether from → to is a legal lifecycle move.
// open → open covers partial take-profit.
func (s PositionState) CanTransition(to PositionState) bool {
	switch s {
	case PositionPending:
		return to == PositionOpen || to == PositionClosed
	case PositionOpen:
		return to == PositionOpen || to == PositionClosed
	default:
		return false
	}
}

// TradeKind classifies a trade-log entry
type TradeKind string

const (
	TradeBuy    TradeKind = "buy"
	TradeSell   TradeKind = "sell"
	TradeSkip   TradeKind = "skip"   // rejected entry (RuleViolation)
	TradeCancel TradeKind = "cancel" // pending fill cancelled
)

// TradeRecord is one audit-log line. Every rejection carries a reason.
type TradeRecord struct {
	Date       time.Time       `json:"date"`
	Code       string          `json:"code"`
	PositionID string          `json:"position_id,omitempty"`
	Kind       TradeKind       `json:"kind"`
	Price      decimal.Decimal `json:"price"`
	Shares     decimal.Decimal `json:"shares"`
	Amount     decimal.Decimal `json:"amount"`
	PnL        decimal.Decimal `json:"pnl"`
	Exit       ExitReason      `json:"exit,omitempty"`
	Reason     string          `json:"reason"`
}

// EquityPoint is one day of the equity curve; appended once, never mutated
type EquityPoint struct {
	Date        time.Time       `json:"date"`
	Equity      decimal.Decimal `json:"equity"`
	Cash        decimal.Decimal `json:"cash"`
	Unrealized  decimal.Decimal `json:"unrealized"`
	RealizedDay decimal.Decimal `json:"realized_day"`
	OpenCount   int             `json:"open_count"`
	DailyReturn float64         `json:"daily_return"`
}
