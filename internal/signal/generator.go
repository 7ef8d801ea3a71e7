// Package signal turns red-flag verdicts and scores into ordered buy/hold/skip signals.
package signal

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/strategyconfig"
	"github.com/wonny/lianban/pkg/logger"
)

// AccountView is the read-only account state the generator consults
type AccountView interface {
	CooldownActive(date time.Time) bool
	Holds(code string) bool
}

// Generator produces advisory signals for one trading day.
// It never mutates the account.
// ⭐ SSOT: 매수/보유/스킵 판단은 여기서만
type Generator struct {
	filter contracts.EligibilityFilter
	scorer contracts.Scorer
	cfg    *strategyconfig.Config
	logger *logger.Logger
}

// NewGenerator creates a generator
func NewGenerator(filter contracts.EligibilityFilter, scorer contracts.Scorer, cfg *strategyconfig.Config, log *logger.Logger) *Generator {
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{filter: filter, scorer: scorer, cfg: cfg, logger: log}
}

// Generate evaluates every snapshot and returns signals ordered by
// descending score (ties: taller ladder, then code). account may be nil.
func (g *Generator) Generate(date time.Time, snapshots []contracts.StockSnapshot, account AccountView) []contracts.Signal {
	cooldown := account != nil && account.CooldownActive(date)
	signals := make([]contracts.Signal, 0, len(snapshots))

	for i := range snapshots {
		s := &snapshots[i]
		sig := contracts.Signal{
			Code:   s.Code,
			Name:   s.Name,
			Date:   date,
			Price:  s.Price,
			Boards: s.ConsecutiveLimitUps,
			Sector: s.Sector,
		}

		// 红旗 먼저: 탈락 종목은 점수와 무관하게 skip
		verdict := g.filter.Evaluate(s)
		if !verdict.Eligible {
			sig.Action = contracts.ActionSkip
			sig.Reason = fmt.Sprintf("red flag %s: %s", verdict.Rule, verdict.Reason)
			signals = append(signals, sig)
			continue
		}

		sig.Breakdown = g.scorer.Score(s)
		sig.Score = sig.Breakdown.Total

		if sig.Score < g.cfg.Signal.BuyThreshold {
			sig.Action = contracts.ActionHold
			sig.Reason = fmt.Sprintf("score %.1f < %.0f", sig.Score, g.cfg.Signal.BuyThreshold)
			signals = append(signals, sig)
			continue
		}

		sig.Action = contracts.ActionBuy
		sig.Fraction = math.Min(g.cfg.Signal.BuyFraction, g.cfg.Risk.MaxSingleFraction)
		sig.StopLoss, sig.TakeProfit1, sig.TakeProfit2 = g.levels(s)
		sig.Reason = fmt.Sprintf("score %.1f >= %.0f, %d板", sig.Score, g.cfg.Signal.BuyThreshold, s.ConsecutiveLimitUps)

		switch {
		case cooldown:
			sig.Reason += "; cooldown active"
		case account != nil && account.Holds(s.Code):
			sig.Reason += "; already held"
		}
		signals = append(signals, sig)
	}

	Sort(signals)

	counts := contracts.CountByAction(signals)
	g.logger.WithDate(date).WithFields(map[string]interface{}{
		"candidates": len(snapshots),
		"buy":        counts[contracts.ActionBuy],
		"hold":       counts[contracts.ActionHold],
		"skip":       counts[contracts.ActionSkip],
		"cooldown":   cooldown,
	}).Debug("Signals generated")

	return signals
}

// levels returns stop-loss and take-profit prices rounded to the 0.01 tick
func (g *Generator) levels(s *contracts.StockSnapshot) (stop, tp1, tp2 float64) {
	e := g.cfg.Exit
	stopPct := e.StopLossPct
	if e.HighBoardStopLossPct > 0 && e.HighBoardFrom > 0 && s.ConsecutiveLimitUps >= e.HighBoardFrom {
		stopPct = e.HighBoardStopLossPct
	}
	return RoundTick(s.Price * (1 - stopPct)),
		RoundTick(s.Price * (1 + e.TakeProfit1Pct)),
		RoundTick(s.Price * (1 + e.TakeProfit2Pct))
}

// Sort orders signals by score desc, boards desc, code asc
func Sort(signals []contracts.Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		a, b := signals[i], signals[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Boards != b.Boards {
			return a.Boards > b.Boards
		}
		return a.Code < b.Code
	})
}

// Buys filters buy signals, preserving order
func Buys(signals []contracts.Signal) []contracts.Signal {
	out := make([]contracts.Signal, 0, len(signals))
	for _, s := range signals {
		if s.IsBuy() {
			out = append(out, s)
		}
	}
	return out
}

// RoundTick rounds a price to 0.01 (A股 최소 호가)
func RoundTick(p float64) float64 {
	return math.Round(p*100) / 100
}
