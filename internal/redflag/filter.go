// Package redflag holds the hard exclusion rules (红旗) evaluated before scoring.
package redflag

import (
	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/strategyconfig"
)

// Filter runs rules in order; the first failing rule disqualifies
// ⭐ SSOT: 红旗 판정은 여기서만
type Filter struct {
	rules []Rule
}

// New builds the default rule chain from config toggles
func New(cfg strategyconfig.RedFlags) *Filter {
	f := &Filter{}
	if cfg.DataQuality {
		f.rules = append(f.rules, DataQualityRule{})
	}
	if cfg.OneWord {
		f.rules = append(f.rules, OneWordRule{AuctionCutoff: strategyconfig.MustClock(cfg.AuctionCutoff)})
	}
	if cfg.TailBoard {
		f.rules = append(f.rules, TailBoardRule{Cutoff: strategyconfig.MustClock(cfg.TailCutoff)})
	}
	if cfg.Maverick {
		f.rules = append(f.rules, MaverickRule{Days: cfg.MaverickDays})
	}
	if cfg.ST {
		f.rules = append(f.rules, STRule{})
	}
	if cfg.RecentlyListed {
		f.rules = append(f.rules, RecentlyListedRule{})
	}
	return f
}

// NewWithRules builds a filter from an explicit rule list
func NewWithRules(rules ...Rule) *Filter {
	return &Filter{rules: append([]Rule(nil), rules...)}
}

// With returns a copy of the filter with extra rules appended
func (f *Filter) With(rules ...Rule) *Filter {
	next := make([]Rule, 0, len(f.rules)+len(rules))
	next = append(next, f.rules...)
	next = append(next, rules...)
	return &Filter{rules: next}
}

// Rules lists rule names in evaluation order
func (f *Filter) Rules() []string {
	names := make([]string, len(f.rules))
	for i, r := range f.rules {
		names[i] = r.Name()
	}
	return names
}

// Evaluate returns the verdict for one snapshot. A nil snapshot is ineligible.
func (f *Filter) Evaluate(s *contracts.StockSnapshot) contracts.Verdict {
	if s == nil {
		return contracts.Verdict{Eligible: false, Rule: "data_quality", Reason: "nil snapshot"}
	}
	for _, r := range f.rules {
		if ok, reason := r.Evaluate(s); !ok {
			return contracts.Verdict{Eligible: false, Rule: r.Name(), Reason: reason}
		}
	}
	return contracts.Verdict{Eligible: true}
}
