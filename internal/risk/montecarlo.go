package risk

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// MonteCarloSimulator resamples daily strategy returns into horizon paths.
// Not safe for concurrent use (one rng per simulator).
type MonteCarloSimulator struct {
	config MonteCarloConfig
	rng    *rand.Rand
}

// NewMonteCarloSimulator 새 시뮬레이터 생성 (Seed 0 = 랜덤)
func NewMonteCarloSimulator(config MonteCarloConfig) *MonteCarloSimulator {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MonteCarloSimulator{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Simulate runs NumSimulations paths of HorizonDays each
func (mc *MonteCarloSimulator) Simulate(ctx context.Context, daily []float64) (*MonteCarloResult, error) {
	cfg := mc.config
	if cfg.NumSimulations <= 0 || cfg.HorizonDays <= 0 {
		return nil, fmt.Errorf("%w: %d simulations × %d days", ErrInvalidConfig, cfg.NumSimulations, cfg.HorizonDays)
	}
	// Fail-closed: 샘플 부족
	if len(daily) < cfg.MinSamples || len(daily) == 0 {
		return nil, fmt.Errorf("%w: %d samples (min %d)", ErrInsufficientData, len(daily), cfg.MinSamples)
	}

	draw := mc.bootstrap(daily)
	if cfg.Method == MethodParametricNormal {
		draw = mc.normal(Mean(daily), StdDev(daily))
	}

	outcomes := make([]float64, cfg.NumSimulations)
	drawdowns := make([]float64, cfg.NumSimulations)
	path := make([]float64, cfg.HorizonDays)

	for i := range outcomes {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		cum := 1.0
		for d := range path {
			path[d] = draw()
			cum *= 1 + path[d]
		}
		outcomes[i] = cum - 1
		drawdowns[i] = PathDrawdown(path)
	}

	return mc.summarize(len(daily), outcomes, drawdowns), nil
}

func (mc *MonteCarloSimulator) bootstrap(daily []float64) func() float64 {
	return func() float64 { return daily[mc.rng.Intn(len(daily))] }
}

func (mc *MonteCarloSimulator) normal(mean, std float64) func() float64 {
	return func() float64 {
		r := mean + std*mc.rng.NormFloat64()
		// 전액 손실 이하로는 내려가지 않음
		if r < -1 {
			r = -1
		}
		return r
	}
}

func (mc *MonteCarloSimulator) summarize(samples int, outcomes, drawdowns []float64) *MonteCarloResult {
	var95 := HistoricalVaR(outcomes, 0.95)
	var99 := HistoricalVaR(outcomes, 0.99)

	losses := 0
	for _, r := range outcomes {
		if r < 0 {
			losses++
		}
	}

	sorted := sortedCopy(outcomes)
	pct := make(map[int]float64, 7)
	for _, p := range []int{1, 5, 25, 50, 75, 95, 99} {
		pct[p] = Percentile(sorted, float64(p))
	}
	dd := sortedCopy(drawdowns)

	return &MonteCarloResult{
		Config:           mc.config,
		InputSampleCount: samples,
		MeanReturn:       Mean(outcomes),
		StdDev:           StdDev(outcomes),
		VaR95:            var95.VaR,
		VaR99:            var99.VaR,
		CVaR95:           var95.CVaR,
		CVaR99:           var99.CVaR,
		LossProbability:  float64(losses) / float64(len(outcomes)),
		MedianDrawdown:   Percentile(dd, 50),
		WorstDrawdown95:  Percentile(dd, 95),
		Percentiles:      pct,
	}
}
