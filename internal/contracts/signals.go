package contracts

import "time"

// ScoreBreakdown holds per-factor sub-scores, each within its maximum
// ⭐ SSOT: scoring → signal 점수 전달
type ScoreBreakdown struct {
	Height         float64 `json:"height"`          // 连板高度 (max 40)
	SealStrength   float64 `json:"seal_strength"`   // 封单强度 (max 25)
	SectorHeat     float64 `json:"sector_heat"`     // 板块热度 (max 20)
	TurnoverHealth float64 `json:"turnover_health"` // 换手健康 (max 15)
	Timing         float64 `json:"timing"`          // 时间优势 (max 10)
	MarketCap      float64 `json:"market_cap"`      // 市值适中 (max 10)
	Total          float64 `json:"total"`           // 0-100
}

// Sum adds the six components without clamping
func (b ScoreBreakdown) Sum() float64 {
	return b.Height + b.SealStrength + b.SectorHeat + b.TurnoverHealth + b.Timing + b.MarketCap
}

// Action is a signal decision
type Action string

const (
	ActionBuy  Action = "buy"
	ActionHold Action = "hold"
	ActionSkip Action = "skip"
)

// Verdict is the red-flag outcome for one snapshot
type Verdict struct {
	Eligible bool   `json:"eligible"`
	Rule     string `json:"rule,omitempty"`   // failed rule name
	Reason   string `json:"reason,omitempty"` // human-readable
}

// Signal is an advisory decision for one candidate on one day
// ⭐ SSOT: signal → simulator/report 전달. Account는 절대 수정하지 않음
type Signal struct {
	Code      string         `json:"code"`
	Name      string         `json:"name"`
	Date      time.Time      `json:"date"`
	Action    Action         `json:"action"`
	Price     float64        `json:"price"`    // entry reference (当日收盘)
	Fraction  float64        `json:"fraction"` // 0.0 ~ 0.20 of capital
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
	Boards    int            `json:"boards"`
	Sector    string         `json:"sector,omitempty"`
	Reason    string         `json:"reason"`

	StopLoss    float64 `json:"stop_loss"`
	TakeProfit1 float64 `json:"take_profit_1"`
	TakeProfit2 float64 `json:"take_profit_2"`
}

// IsBuy reports a buy action
func (s Signal) IsBuy() bool {
	return s.Action == ActionBuy
}

// CountByAction tallies signals per action
func CountByAction(signals []Signal) map[Action]int {
	counts := make(map[Action]int, 3)
	for _, s := range signals {
		counts[s.Action]++
	}
	return counts
}
