package risk

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/lianban/internal/contracts"
)

// Engine 리스크 엔진 (순수 계산기)
// ⭐ SSOT: 백테스트 equity curve → 리스크 리포트는 여기서만
type Engine struct {
	limits RiskLimits
	mc     MonteCarloConfig
}

// NewEngine creates a risk engine with limits and Monte Carlo settings
func NewEngine(limits RiskLimits, mc MonteCarloConfig) *Engine {
	return &Engine{limits: limits, mc: mc}
}

// DailyReturns extracts the daily returns of an equity curve
func DailyReturns(curve []contracts.EquityPoint) []float64 {
	out := make([]float64, len(curve))
	for i, p := range curve {
		out[i] = p.DailyReturn
	}
	return out
}

// Analyze builds a risk report from an equity curve.
// Monte Carlo is skipped (nil) below MinSamples; the rest needs two points.
func (e *Engine) Analyze(ctx context.Context, curve []contracts.EquityPoint) (*Report, error) {
	returns := DailyReturns(curve)
	if len(returns) < 2 {
		return nil, fmt.Errorf("%w: %d days", ErrInsufficientData, len(returns))
	}

	report := &Report{
		Samples:      len(returns),
		Historical95: HistoricalVaR(returns, 0.95),
		Historical99: HistoricalVaR(returns, 0.99),
		Parametric95: ParametricVaR(Mean(returns), StdDev(returns), 0.95),
		MaxDrawdown:  PathDrawdown(returns),
		Limits:       e.limits,
		Violations:   make([]string, 0),
	}

	mc, err := NewMonteCarloSimulator(e.mc).Simulate(ctx, returns)
	switch {
	case err == nil:
		report.MonteCarlo = mc
	case errors.Is(err, ErrInsufficientData):
		// 짧은 구간: 과거 VaR만
	default:
		return nil, err
	}

	report.Violations = e.check(report)
	report.Passed = len(report.Violations) == 0
	return report, nil
}

// check compares the report with the limits (0 = 한도 없음)
func (e *Engine) check(r *Report) []string {
	violations := make([]string, 0)
	if l := e.limits.MaxVaR95; l > 0 && r.Historical95.VaR > l {
		violations = append(violations, fmt.Sprintf("VaR95 %.2f%% > %.2f%%", r.Historical95.VaR*100, l*100))
	}
	if l := e.limits.MaxCVaR95; l > 0 && r.Historical95.CVaR > l {
		violations = append(violations, fmt.Sprintf("CVaR95 %.2f%% > %.2f%%", r.Historical95.CVaR*100, l*100))
	}
	if l := e.limits.MaxDrawdown; l > 0 && r.MaxDrawdown > l {
		violations = append(violations, fmt.Sprintf("MDD %.2f%% > %.2f%%", r.MaxDrawdown*100, l*100))
	}
	return violations
}
