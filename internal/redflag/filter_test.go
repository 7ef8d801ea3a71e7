package redflag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/strategyconfig"
)

func clean() contracts.StockSnapshot {
	return contracts.StockSnapshot{
		Code:                "002001.SZ",
		Name:                "新和成",
		Price:               11.00,
		Open:                10.20,
		High:                11.00,
		Low:                 10.10,
		ConsecutiveLimitUps: 3,
		FirstLimitUpTime:    contracts.Clock(9, 50, 0),
		OpenCount:           1,
		Sector:              "化工",
	}
}

func TestEvaluate(t *testing.T) {
	f := New(strategyconfig.Default().RedFlags)

	tests := []struct {
		name     string
		mutate   func(s *contracts.StockSnapshot)
		eligible bool
		rule     string
	}{
		{"clean candidate", func(s *contracts.StockSnapshot) {}, true, ""},
		{"missing code", func(s *contracts.StockSnapshot) { s.Code = "" }, false, "data_quality"},
		{"zero price", func(s *contracts.StockSnapshot) { s.Price = 0 }, false, "data_quality"},
		{"missing first time", func(s *contracts.StockSnapshot) { s.FirstLimitUpTime = 0 }, false, "data_quality"},
		{"explicit one word", func(s *contracts.StockSnapshot) { s.IsOneWord = true }, false, "one_word_board"},
		{"flat bar one word", func(s *contracts.StockSnapshot) {
			s.Open, s.High, s.Low = s.Price, s.Price, s.Price
		}, false, "one_word_board"},
		{"auction seal no explode", func(s *contracts.StockSnapshot) {
			s.FirstLimitUpTime = contracts.Clock(9, 25, 0)
			s.OpenCount = 0
		}, false, "one_word_board"},
		{"auction seal then exploded", func(s *contracts.StockSnapshot) {
			s.FirstLimitUpTime = contracts.Clock(9, 25, 0)
			s.OpenCount = 2
		}, true, ""},
		{"tail board at cutoff", func(s *contracts.StockSnapshot) { s.FirstLimitUpTime = contracts.Clock(14, 30, 0) }, false, "tail_board"},
		{"just before tail", func(s *contracts.StockSnapshot) { s.FirstLimitUpTime = contracts.Clock(14, 29, 59) }, true, ""},
		{"maverick", func(s *contracts.StockSnapshot) { s.SectorSoleDays = 2 }, false, "maverick"},
		{"sole one day only", func(s *contracts.StockSnapshot) { s.SectorSoleDays = 1 }, true, ""},
		{"st flag", func(s *contracts.StockSnapshot) { s.IsST = true }, false, "st"},
		{"st name", func(s *contracts.StockSnapshot) { s.Name = "*ST海润" }, false, "st"},
		{"st inside name", func(s *contracts.StockSnapshot) { s.Name = "BEST科技" }, true, ""},
		{"recently listed", func(s *contracts.StockSnapshot) { s.IsRecentlyListed = true }, false, "recently_listed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := clean()
			tt.mutate(&s)

			v := f.Evaluate(&s)
			assert.Equal(t, tt.eligible, v.Eligible)
			assert.Equal(t, tt.rule, v.Rule)
			if !tt.eligible {
				assert.NotEmpty(t, v.Reason)
			}
		})
	}
}

func TestEvaluateFirstFailureWins(t *testing.T) {
	f := New(strategyconfig.Default().RedFlags)
	s := clean()
	s.IsST = true
	s.FirstLimitUpTime = contracts.Clock(14, 50, 0)

	assert.Equal(t, "tail_board", f.Evaluate(&s).Rule)
}

func TestNilSnapshot(t *testing.T) {
	v := New(strategyconfig.Default().RedFlags).Evaluate(nil)
	assert.False(t, v.Eligible)
}

func TestTogglesAndCustomRules(t *testing.T) {
	cfg := strategyconfig.Default().RedFlags
	cfg.ST = false
	f := New(cfg)
	assert.NotContains(t, f.Rules(), "st")

	s := clean()
	s.IsST = true
	assert.True(t, f.Evaluate(&s).Eligible)

	highBoard := RuleFunc{RuleName: "max_height", Fn: func(s *contracts.StockSnapshot) (bool, string) {
		if s.ConsecutiveLimitUps > 7 {
			return false, "too high"
		}
		return true, ""
	}}
	extended := f.With(highBoard)
	require.Len(t, extended.Rules(), len(f.Rules())+1)

	s = clean()
	s.ConsecutiveLimitUps = 8
	v := extended.Evaluate(&s)
	assert.False(t, v.Eligible)
	assert.Equal(t, "max_height", v.Rule)
	assert.True(t, f.Evaluate(&s).Eligible, "original filter unchanged")

	assert.Equal(t, []string{"max_height"}, NewWithRules(highBoard).Rules())
}
