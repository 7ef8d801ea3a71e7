package strategyconfig

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/lianban/internal/contracts"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// hardSingleCap is the absolute per-position ceiling; config may tighten it, never loosen
const hardSingleCap = 0.20

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.StrategyID == "" {
		return ValidationError{"meta.strategy_id", "required"}
	}
	if _, err := time.LoadLocation(cfg.Meta.Timezone); err != nil {
		return ValidationError{"meta.timezone", err.Error()}
	}
	if err := validateHHMM(cfg.Meta.DecisionTimeLocal); err != nil {
		return ValidationError{"meta.decision_time_local", err.Error()}
	}

	// === Scoring ===
	s := cfg.Scoring
	sum := s.Height.Max + s.Seal.Max + s.Sector.Max + s.Turnover.Max + s.Timing.Max + s.MarketCap.Max
	if math.Abs(sum-100) > 1e-9 {
		return ValidationError{"scoring", fmt.Sprintf("factor maxima must sum to 100, got %.2f", sum)}
	}
	for field, v := range map[string]float64{
		"scoring.height.max":     s.Height.Max,
		"scoring.seal.max":       s.Seal.Max,
		"scoring.sector.max":     s.Sector.Max,
		"scoring.turnover.max":   s.Turnover.Max,
		"scoring.timing.max":     s.Timing.Max,
		"scoring.market_cap.max": s.MarketCap.Max,
	} {
		if v < 0 {
			return ValidationError{field, "must be >= 0"}
		}
	}
	if s.Height.SweetMin < 1 || s.Height.SweetMin > s.Height.SweetMax {
		return ValidationError{"scoring.height", "must satisfy 1 <= sweet_min <= sweet_max"}
	}
	if s.Height.HighRiskCredit < 0 || s.Height.HighRiskCredit > 1 {
		return ValidationError{"scoring.height.high_risk_credit", "must be in [0, 1]"}
	}
	if s.Seal.FullRatio <= 0 {
		return ValidationError{"scoring.seal.full_ratio", "must be > 0"}
	}
	if s.Sector.FullAbove < 0 {
		return ValidationError{"scoring.sector.full_above", "must be >= 0"}
	}
	if s.Turnover.BandLow <= 0 || s.Turnover.BandLow >= s.Turnover.BandHigh || s.Turnover.BandHigh >= s.Turnover.ZeroAt {
		return ValidationError{"scoring.turnover", "must satisfy 0 < band_low < band_high < zero_at"}
	}
	if err := validateHHMM(s.Timing.EarlyCutoff); err != nil {
		return ValidationError{"scoring.timing.early_cutoff", err.Error()}
	}
	if s.MarketCap.MinCap <= 0 || s.MarketCap.MinCap > s.MarketCap.MaxCap {
		return ValidationError{"scoring.market_cap", "must satisfy 0 < min_cap <= max_cap"}
	}

	// === RedFlags ===
	if err := validateHHMM(cfg.RedFlags.TailCutoff); err != nil {
		return ValidationError{"red_flags.tail_cutoff", err.Error()}
	}
	if err := validateHHMM(cfg.RedFlags.AuctionCutoff); err != nil {
		return ValidationError{"red_flags.auction_cutoff", err.Error()}
	}
	if cfg.RedFlags.MaverickDays < 1 {
		return ValidationError{"red_flags.maverick_days", "must be >= 1"}
	}

	// === Risk ===
	r := cfg.Risk
	if r.MaxSingleFraction <= 0 || r.MaxSingleFraction > hardSingleCap {
		return ValidationError{"risk.max_single_fraction", fmt.Sprintf("must be in (0, %.2f]", hardSingleCap)}
	}
	if r.MaxTotalFraction <= 0 || r.MaxTotalFraction > 1.0 {
		return ValidationError{"risk.max_total_fraction", "must be in (0, 1]"}
	}
	if r.MaxConsecutiveLosses < 1 {
		return ValidationError{"risk.max_consecutive_losses", "must be >= 1"}
	}
	if r.RestDays < 0 {
		return ValidationError{"risk.rest_days", "must be >= 0"}
	}
	if r.CooldownRelease != ReleaseOnProfit && r.CooldownRelease != ReleaseRestDays {
		return ValidationError{"risk.cooldown_release", "must be profit or rest_days"}
	}

	// === Signal ===
	if cfg.Signal.BuyThreshold < 0 || cfg.Signal.BuyThreshold > 100 {
		return ValidationError{"signal.buy_threshold", "must be in [0, 100]"}
	}
	if cfg.Signal.BuyFraction <= 0 || cfg.Signal.BuyFraction > r.MaxSingleFraction {
		return ValidationError{"signal.buy_fraction", fmt.Sprintf("must be in (0, max_single_fraction=%.2f]", r.MaxSingleFraction)}
	}

	// === Exit ===
	e := cfg.Exit
	if e.StopLossPct <= 0 || e.StopLossPct >= 1 {
		return ValidationError{"exit.stop_loss_pct", "must be in (0, 1)"}
	}
	if e.HighBoardStopLossPct < 0 || e.HighBoardStopLossPct >= 1 {
		return ValidationError{"exit.high_board_stop_loss_pct", "must be in [0, 1)"}
	}
	if e.TakeProfit1Pct <= 0 || e.TakeProfit1Pct >= e.TakeProfit2Pct {
		return ValidationError{"exit", "must satisfy 0 < take_profit1_pct < take_profit2_pct"}
	}
	if e.TP1SellRatio <= 0 || e.TP1SellRatio > 1 {
		return ValidationError{"exit.tp1_sell_ratio", "must be in (0, 1]"}
	}
	if e.TrailPct < 0 || e.TrailPct >= 1 {
		return ValidationError{"exit.trail_pct", "must be in [0, 1)"}
	}

	// === Execution ===
	x := cfg.Execution
	if x.EntryMode != EntryAtClose && x.EntryMode != EntryAtNextOpen {
		return ValidationError{"execution.entry_mode", "must be close or next_open"}
	}
	if x.LotSize < 1 {
		return ValidationError{"execution.lot_size", "must be >= 1"}
	}
	if x.InitialCapital <= 0 {
		return ValidationError{"execution.initial_capital", "must be > 0"}
	}

	// === Sentiment ===
	if !(cfg.Sentiment.Freezing <= cfg.Sentiment.Heating && cfg.Sentiment.Heating <= cfg.Sentiment.Boiling) {
		return ValidationError{"sentiment", "must satisfy freezing <= heating <= boiling"}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if cfg.Execution.InitialCapital*cfg.Signal.BuyFraction < float64(cfg.Execution.LotSize)*100 {
		warnings = append(warnings, Warning{
			Code:    "SMALL_CAPITAL",
			Message: "position budget below one lot of a 100-yuan stock: many entries will round to zero",
		})
	}

	if cfg.Risk.MaxConsecutiveLosses > 0 && cfg.Risk.RestDays == 0 {
		warnings = append(warnings, Warning{
			Code:    "NO_FORCED_REST",
			Message: "rest_days = 0: the day after a losing streak is not rested",
		})
	}

	if cfg.Exit.TrailPct > 0 && cfg.Exit.TrailPct < 0.03 {
		warnings = append(warnings, Warning{
			Code:    "TIGHT_TRAIL",
			Message: "trail_pct < 3%: 连板 변동성 대비 너무 타이트함",
		})
	}

	return warnings
}

// ParseClock parses HH:MM into a TimeOfDay
func ParseClock(s string) (contracts.TimeOfDay, error) {
	if err := validateHHMM(s); err != nil {
		return 0, err
	}
	return contracts.ParseTimeOfDay(s)
}

// MustClock parses a validated HH:MM; invalid input yields 0
func MustClock(s string) contracts.TimeOfDay {
	t, err := ParseClock(s)
	if err != nil {
		return 0
	}
	return t
}

func validateHHMM(s string) error {
	if _, err := time.Parse("15:04", s); err != nil {
		return fmt.Errorf("must be HH:MM, got %q", s)
	}
	return nil
}
