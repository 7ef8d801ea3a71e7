package risk

import (
	"math"
	"sort"
)

// HistoricalVaR 과거 수익률 기반 VaR (Historical Simulation)
// returns: 일별 수익률 (양수=이익, 음수=손실)
func HistoricalVaR(returns []float64, confidence float64) VaRResult {
	res := VaRResult{Confidence: confidence}
	if len(returns) == 0 {
		return res
	}

	sorted := sortedCopy(returns)

	// 하위 (1-confidence) 백분위
	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	res.VaR = lossOf(sorted[idx])
	res.CVaR = lossOf(Mean(sorted[:idx+1]))
	return res
}

// ParametricVaR 정규분포 가정 VaR
func ParametricVaR(mean, stdDev, confidence float64) VaRResult {
	z := NormInv(confidence)
	// E[X | X < μ-zσ] = μ - σφ(z)/(1-c)
	return VaRResult{
		Confidence: confidence,
		VaR:        lossOf(mean - z*stdDev),
		CVaR:       lossOf(mean - stdDev*NormPDF(z)/(1-confidence)),
	}
}

// lossOf flips a return into a positive loss (0 for gains)
func lossOf(r float64) float64 {
	if r < 0 {
		return -r
	}
	return 0
}

// NormInv 정규분포 분위수 함수 (Acklam 근사, 상대오차 < 1.2e-9)
func NormInv(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}

	a := [6]float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := [5]float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01}
	c := [6]float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := [4]float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00}

	tail := func(q float64) float64 {
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	}

	const pLow = 0.02425
	switch {
	case p < pLow:
		return tail(math.Sqrt(-2 * math.Log(p)))
	case p > 1-pLow:
		return -tail(math.Sqrt(-2 * math.Log(1-p)))
	default:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	}
}

// NormPDF 표준정규 확률밀도
func NormPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

// Mean 평균
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev 표본 표준편차 (n-1)
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sumSq float64
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

// Percentile 선형 보간 백분위수 (sorted 오름차순, p: 0-100)
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	idx := p / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	if lower+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	w := idx - float64(lower)
	return sorted[lower]*(1-w) + sorted[lower+1]*w
}

// PathDrawdown is the largest peak-to-trough loss of a compounded return path
func PathDrawdown(returns []float64) float64 {
	value, peak, maxDD := 1.0, 1.0, 0.0
	for _, r := range returns {
		value *= 1 + r
		if value > peak {
			peak = value
		}
		if dd := (peak - value) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}
