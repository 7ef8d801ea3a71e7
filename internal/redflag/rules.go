package redflag

import (
	"fmt"
	"math"
	"strings"

	"github.com/wonny/lianban/internal/contracts"
)

// Rule is one hard exclusion. Evaluate returns (eligible, reason).
type Rule interface {
	Name() string
	Evaluate(s *contracts.StockSnapshot) (bool, string)
}

// RuleFunc adapts a function into a Rule
type RuleFunc struct {
	RuleName string
	Fn       func(s *contracts.StockSnapshot) (bool, string)
}

func (r RuleFunc) Name() string { return r.RuleName }

func (r RuleFunc) Evaluate(s *contracts.StockSnapshot) (bool, string) { return r.Fn(s) }

const priceEpsilon = 0.005

// DataQualityRule rejects snapshots missing required fields
type DataQualityRule struct{}

func (DataQualityRule) Name() string { return "data_quality" }

func (DataQualityRule) Evaluate(s *contracts.StockSnapshot) (bool, string) {
	switch {
	case strings.TrimSpace(s.Code) == "":
		return false, "missing code"
	case !(s.Price > 0) || math.IsInf(s.Price, 0):
		return false, "missing or invalid price"
	case s.FirstLimitUpTime.IsZero():
		return false, "missing first limit-up time"
	}
	return true, ""
}

// OneWordRule rejects 一字板: locked at limit from the open, no trading window
type OneWordRule struct {
	AuctionCutoff contracts.TimeOfDay // 09:25 집합경쟁
}

func (OneWordRule) Name() string { return "one_word_board" }

func (r OneWordRule) Evaluate(s *contracts.StockSnapshot) (bool, string) {
	if s.IsOneWord {
		return false, "one-word board (一字板)"
	}

	// open == high == low == close: 하루 종일 한 가격
	if s.Open > 0 && s.Low > 0 && s.High > 0 &&
		near(s.Open, s.Price) && near(s.Low, s.Price) && near(s.High, s.Price) {
		return false, fmt.Sprintf("one-word board: open=low=high=close=%.2f", s.Price)
	}

	// sealed at the auction and never opened
	if !s.FirstLimitUpTime.IsZero() && r.AuctionCutoff > 0 &&
		s.FirstLimitUpTime <= r.AuctionCutoff && s.OpenCount == 0 {
		return false, fmt.Sprintf("one-word board: sealed at %s with no explode", s.FirstLimitUpTime)
	}
	return true, ""
}

// TailBoardRule rejects 尾盘板 (first limit-up at or after the cutoff)
type TailBoardRule struct {
	Cutoff contracts.TimeOfDay
}

func (TailBoardRule) Name() string { return "tail_board" }

func (r TailBoardRule) Evaluate(s *contracts.StockSnapshot) (bool, string) {
	if !s.FirstLimitUpTime.IsZero() && s.FirstLimitUpTime >= r.Cutoff {
		return false, fmt.Sprintf("tail board: first limit-up %s >= %s", s.FirstLimitUpTime, r.Cutoff)
	}
	return true, ""
}

// MaverickRule rejects 独立妖股: sole ≥2-board name in its sector for several days
type MaverickRule struct {
	Days int
}

func (MaverickRule) Name() string { return "maverick" }

func (r MaverickRule) Evaluate(s *contracts.StockSnapshot) (bool, string) {
	if r.Days > 0 && s.SectorSoleDays >= r.Days {
		return false, fmt.Sprintf("maverick: sole ladder name in %q for %d days", s.Sector, s.SectorSoleDays)
	}
	return true, ""
}

// STRule rejects ST / *ST names
type STRule struct{}

func (STRule) Name() string { return "st" }

func (STRule) Evaluate(s *contracts.StockSnapshot) (bool, string) {
	if s.IsST || contracts.IsSTName(s.Name) {
		return false, "ST stock"
	}
	return true, ""
}

// RecentlyListedRule rejects 次新股
type RecentlyListedRule struct{}

func (RecentlyListedRule) Name() string { return "recently_listed" }

func (RecentlyListedRule) Evaluate(s *contracts.StockSnapshot) (bool, string) {
	if s.IsRecentlyListed {
		return false, "recently listed"
	}
	return true, ""
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= priceEpsilon
}
