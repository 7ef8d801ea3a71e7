package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is a read-only copy of the account for reports and the API
type Snapshot struct {
	Date              time.Time       `json:"date"`
	Cash              decimal.Decimal `json:"cash"`
	Reserved          decimal.Decimal `json:"reserved"`
	Equity            decimal.Decimal `json:"equity"`
	Unrealized        decimal.Decimal `json:"unrealized"`
	RealizedPnL       decimal.Decimal `json:"realized_pnl"`
	Committed         float64         `json:"committed_fraction"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
	Cooldown          bool            `json:"cooldown"`
	Positions         []Position      `json:"positions"`
	ClosedCount       int             `json:"closed_count"`
}

// Snapshot copies the account state as of date. Mutating the result does
// not touch the account.
func (a *Account) Snapshot(date time.Time) Snapshot {
	open := a.Open()
	positions := make([]Position, 0, len(open))
	for _, p := range open {
		positions = append(positions, *p)
	}

	return Snapshot{
		Date:              date,
		Cash:              a.Cash,
		Reserved:          a.Reserved(),
		Equity:            a.Equity(),
		Unrealized:        a.Unrealized(),
		RealizedPnL:       a.RealizedPnL,
		Committed:         a.CommittedFraction(),
		ConsecutiveLosses: a.ConsecutiveLosses,
		Cooldown:          a.CooldownActive(date),
		Positions:         positions,
		ClosedCount:       len(a.Closed),
	}
}
