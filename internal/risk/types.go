package risk

import "errors"

// VaRConvention VaR 부호 규약
// ⭐ SSOT: Loss를 양수로 표현 (VaR=0.05 → 5% 손실 가능)
const VaRConvention = "loss_positive"

var (
	// ErrInsufficientData is returned when the equity curve is too short
	ErrInsufficientData = errors.New("insufficient data for risk analysis")
	// ErrInvalidConfig is returned for a non-positive simulation size
	ErrInvalidConfig = errors.New("invalid risk configuration")
)

// VaRResult VaR 계산 결과
// ⭐ SSOT: VaR/CVaR는 손실을 양수로 표현
// - VaR=0.05 → 95% 신뢰수준에서 하루 최대 5% 손실
// - CVaR=0.07 → 5% tail에서 평균 7% 손실
type VaRResult struct {
	Confidence float64 `json:"confidence"` // 신뢰수준 (0.95, 0.99)
	VaR        float64 `json:"var"`        // Value at Risk (손실, 양수)
	CVaR       float64 `json:"cvar"`       // Expected Shortfall (손실, 양수)
}

// MonteCarloMethod 시뮬레이션 방법
type MonteCarloMethod string

const (
	MethodHistoricalBootstrap MonteCarloMethod = "historical_bootstrap" // 일별 수익률 재샘플링
	MethodParametricNormal    MonteCarloMethod = "parametric_normal"    // 정규분포 가정
)

// MonteCarloConfig Monte Carlo 설정
// ⭐ SSOT: 재현성을 위해 결과에 그대로 기록
type MonteCarloConfig struct {
	NumSimulations int              `json:"num_simulations"` // 경로 수 (기본: 2000)
	HorizonDays    int              `json:"horizon_days"`    // 경로 길이, 거래일 (기본: 20)
	Method         MonteCarloMethod `json:"method"`
	Seed           int64            `json:"seed"`        // 0 = 랜덤
	MinSamples     int              `json:"min_samples"` // fail-closed (기본: 20)
}

// DefaultMonteCarloConfig 기본 Monte Carlo 설정
func DefaultMonteCarloConfig() MonteCarloConfig {
	return MonteCarloConfig{
		NumSimulations: 2000,
		HorizonDays:    20,
		Method:         MethodHistoricalBootstrap,
		Seed:           0,
		MinSamples:     20,
	}
}

// MonteCarloResult is the distribution of simulated horizon outcomes
type MonteCarloResult struct {
	Config           MonteCarloConfig `json:"config"`
	InputSampleCount int              `json:"input_sample_count"`
	MeanReturn       float64          `json:"mean_return"` // horizon 누적 수익률 평균
	StdDev           float64          `json:"std_dev"`
	VaR95            float64          `json:"var_95"`
	VaR99            float64          `json:"var_99"`
	CVaR95           float64          `json:"cvar_95"`
	CVaR99           float64          `json:"cvar_99"`
	LossProbability  float64          `json:"loss_probability"`  // P(horizon return < 0)
	MedianDrawdown   float64          `json:"median_drawdown"`   // 경로 내 최대 낙폭의 중앙값
	WorstDrawdown95  float64          `json:"worst_drawdown_95"` // 경로 낙폭 95 백분위
	Percentiles      map[int]float64  `json:"percentiles"`       // 1, 5, 25, 50, 75, 95, 99
}

// RiskLimits 리스크 한도
type RiskLimits struct {
	MaxVaR95    float64 `json:"max_var_95"`   // 일별 95% VaR 한도
	MaxCVaR95   float64 `json:"max_cvar_95"`  // 일별 95% CVaR 한도
	MaxDrawdown float64 `json:"max_drawdown"` // 실현 MDD 한도
}

// DefaultRiskLimits 기본 한도 (连板 전략은 변동성이 커서 느슨하게)
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxVaR95:    0.05,
		MaxCVaR95:   0.08,
		MaxDrawdown: 0.25,
	}
}

// Report is the risk analysis of one equity curve
type Report struct {
	Samples      int               `json:"samples"` // 일별 수익률 수
	Historical95 VaRResult         `json:"historical_95"`
	Historical99 VaRResult         `json:"historical_99"`
	Parametric95 VaRResult         `json:"parametric_95"`
	MaxDrawdown  float64           `json:"max_drawdown"`
	MonteCarlo   *MonteCarloResult `json:"monte_carlo,omitempty"`

	Limits     RiskLimits `json:"limits"`
	Passed     bool       `json:"passed"`
	Violations []string   `json:"violations"`
}
