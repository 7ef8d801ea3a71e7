// Package scoring computes the 0-100 next-day suitability score for
// consecutive limit-up candidates.
package scoring

import (
	"math"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/strategyconfig"
)

// Calculator scores snapshots with six additive, individually clamped factors
// ⭐ SSOT: 연판 점수 계산은 여기서만
type Calculator struct {
	cfg         strategyconfig.Scoring
	earlyCutoff contracts.TimeOfDay
}

// NewCalculator creates a calculator from validated strategy config
func NewCalculator(cfg strategyconfig.Scoring) *Calculator {
	return &Calculator{
		cfg:         cfg,
		earlyCutoff: strategyconfig.MustClock(cfg.Timing.EarlyCutoff),
	}
}

// Score returns the breakdown for one snapshot. Deterministic, no I/O.
// Missing or non-finite inputs earn zero credit for their factor.
func (c *Calculator) Score(s *contracts.StockSnapshot) contracts.ScoreBreakdown {
	if s == nil {
		return contracts.ScoreBreakdown{}
	}

	b := contracts.ScoreBreakdown{
		Height:         c.height(s.ConsecutiveLimitUps),
		SealStrength:   c.seal(s.SealAmount, s.CirculatingCap),
		SectorHeat:     c.sector(s.SectorPeerCount),
		TurnoverHealth: c.turnover(s.TurnoverRate),
		Timing:         c.timing(s.FirstLimitUpTime),
		MarketCap:      c.marketCap(s.CirculatingCap),
	}
	b.Total = clamp(b.Sum(), 0, 100)
	return b
}

// height: sweet spot (3-4板) full, higher boards partial, 1-2板 linear
func (c *Calculator) height(n int) float64 {
	h := c.cfg.Height
	switch {
	case n <= 0:
		return 0
	case n < h.SweetMin:
		return clamp(h.Max*float64(n)/float64(h.SweetMin), 0, h.Max)
	case n <= h.SweetMax:
		return h.Max
	default:
		return clamp(h.Max*h.HighRiskCredit, 0, h.Max)
	}
}

// seal: 封单/流通市值, full above FullRatio
func (c *Calculator) seal(amount, circCap float64) float64 {
	if !positive(amount) || !positive(circCap) {
		return 0
	}
	ratio := amount / circCap
	if ratio > c.cfg.Seal.FullRatio {
		return c.cfg.Seal.Max
	}
	return clamp(c.cfg.Seal.Max*ratio/c.cfg.Seal.FullRatio, 0, c.cfg.Seal.Max)
}

// sector: peers > FullAbove → full, else linear to reach full at FullAbove+1
func (c *Calculator) sector(peers int) float64 {
	full := c.cfg.Sector.FullAbove
	if peers <= 0 {
		return 0
	}
	if peers > full {
		return c.cfg.Sector.Max
	}
	return clamp(c.cfg.Sector.Max*float64(peers)/float64(full+1), 0, c.cfg.Sector.Max)
}

// turnover: band (low, high) exclusive full; linear ramp below, linear decay above
func (c *Calculator) turnover(t float64) float64 {
	tc := c.cfg.Turnover
	if !positive(t) {
		return 0
	}
	switch {
	case t > tc.BandLow && t < tc.BandHigh:
		return tc.Max
	case t <= tc.BandLow:
		return clamp(tc.Max*t/tc.BandLow, 0, tc.Max)
	default:
		return clamp(tc.Max*(tc.ZeroAt-t)/(tc.ZeroAt-tc.BandHigh), 0, tc.Max)
	}
}

// timing: 首次封板 before the early-session cutoff
func (c *Calculator) timing(first contracts.TimeOfDay) float64 {
	if first.IsZero() || first >= c.earlyCutoff {
		return 0
	}
	return c.cfg.Timing.Max
}

// marketCap: 流通市值 within [MinCap, MaxCap]
func (c *Calculator) marketCap(circCap float64) float64 {
	if !positive(circCap) {
		return 0
	}
	if circCap >= c.cfg.MarketCap.MinCap && circCap <= c.cfg.MarketCap.MaxCap {
		return c.cfg.MarketCap.Max
	}
	return 0
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
