package scoring

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/strategyconfig"
)

func newCalc() *Calculator {
	return NewCalculator(strategyconfig.Default().Scoring)
}

func perfect() *contracts.StockSnapshot {
	return &contracts.StockSnapshot{
		Code:                "600001.SH",
		Price:               10,
		ConsecutiveLimitUps: 4,
		SealAmount:          0.12 * 8e9,
		CirculatingCap:      8e9,
		TurnoverRate:        15,
		FirstLimitUpTime:    contracts.Clock(9, 45, 0),
		SectorPeerCount:     6,
	}
}

func TestScore_AllMaxima(t *testing.T) {
	b := newCalc().Score(perfect())

	assert.Equal(t, 40.0, b.Height)
	assert.Equal(t, 25.0, b.SealStrength)
	assert.Equal(t, 20.0, b.SectorHeat)
	assert.Equal(t, 15.0, b.TurnoverHealth)
	assert.Equal(t, 10.0, b.Timing)
	assert.Equal(t, 10.0, b.MarketCap)
	assert.Equal(t, 100.0, b.Total)
}

func TestHeight(t *testing.T) {
	c := newCalc()
	tests := []struct {
		boards int
		want   float64
	}{
		{-1, 0},
		{0, 0},
		{1, 40.0 / 3},
		{2, 80.0 / 3},
		{3, 40},
		{4, 40},
		{5, 20},
		{9, 20},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, c.height(tt.boards), 1e-9, "boards=%d", tt.boards)
	}
}

func TestSeal(t *testing.T) {
	c := newCalc()
	assert.Equal(t, 0.0, c.seal(1e8, 0), "zero cap is worst case")
	assert.Equal(t, 0.0, c.seal(0, 1e9))
	assert.Equal(t, 0.0, c.seal(math.NaN(), 1e9))
	assert.InDelta(t, 12.5, c.seal(0.05e9, 1e9), 1e-9)
	assert.InDelta(t, 25.0, c.seal(0.10e9, 1e9), 1e-9)
	assert.Equal(t, 25.0, c.seal(0.5e9, 1e9))
}

func TestSector(t *testing.T) {
	c := newCalc()
	assert.Equal(t, 0.0, c.sector(0))
	assert.InDelta(t, 20.0*3/6, c.sector(3), 1e-9)
	assert.InDelta(t, 20.0*5/6, c.sector(5), 1e-9)
	assert.Equal(t, 20.0, c.sector(6))
}

func TestTurnover(t *testing.T) {
	c := newCalc()
	tests := []struct {
		rate float64
		want float64
	}{
		{0, 0},
		{5, 7.5},
		{10, 15},
		{10.01, 15},
		{29.99, 15},
		{30, 15},
		{45, 7.5},
		{60, 0},
		{95, 0},
		{math.Inf(1), 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, c.turnover(tt.rate), 1e-9, "rate=%v", tt.rate)
	}
}

func TestTiming(t *testing.T) {
	c := newCalc()
	assert.Equal(t, 10.0, c.timing(contracts.Clock(9, 30, 0)))
	assert.Equal(t, 10.0, c.timing(contracts.Clock(10, 29, 59)))
	assert.Equal(t, 0.0, c.timing(contracts.Clock(10, 30, 0)))
	assert.Equal(t, 0.0, c.timing(0), "missing time")
}

func TestMarketCap(t *testing.T) {
	c := newCalc()
	assert.Equal(t, 10.0, c.marketCap(5e9))
	assert.Equal(t, 10.0, c.marketCap(2e10))
	assert.Equal(t, 0.0, c.marketCap(4.9e9))
	assert.Equal(t, 0.0, c.marketCap(3e10))
	assert.Equal(t, 0.0, c.marketCap(0))
}

func TestScore_Nil(t *testing.T) {
	assert.Equal(t, contracts.ScoreBreakdown{}, newCalc().Score(nil))
}

func TestScore_BoundsRandomized(t *testing.T) {
	c := newCalc()
	rng := rand.New(rand.NewSource(42))
	weird := []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1), 1e30}

	pick := func(scale float64) float64 {
		if rng.Intn(5) == 0 {
			return weird[rng.Intn(len(weird))]
		}
		return (rng.Float64()*2 - 0.5) * scale
	}

	for i := 0; i < 5000; i++ {
		s := &contracts.StockSnapshot{
			ConsecutiveLimitUps: rng.Intn(15) - 2,
			SealAmount:          pick(5e9),
			CirculatingCap:      pick(5e10),
			TurnoverRate:        pick(100),
			SectorPeerCount:     rng.Intn(20) - 2,
			FirstLimitUpTime:    contracts.TimeOfDay(rng.Intn(86400)),
		}
		b := c.Score(s)

		assert.True(t, b.Height >= 0 && b.Height <= 40)
		assert.True(t, b.SealStrength >= 0 && b.SealStrength <= 25)
		assert.True(t, b.SectorHeat >= 0 && b.SectorHeat <= 20)
		assert.True(t, b.TurnoverHealth >= 0 && b.TurnoverHealth <= 15)
		assert.True(t, b.Timing >= 0 && b.Timing <= 10)
		assert.True(t, b.MarketCap >= 0 && b.MarketCap <= 10)
		assert.True(t, b.Total >= 0 && b.Total <= 100, "total=%v", b.Total)
	}
}
