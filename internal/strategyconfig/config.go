package strategyconfig

import "time"

// Config는 连板 전략의 전체 설정
// ⭐ SSOT: 가중치/임계값/손절/익절/리스크 상수는 여기서만
type Config struct {
	Meta      Meta      `yaml:"meta" json:"meta"`
	Scoring   Scoring   `yaml:"scoring" json:"scoring"`
	RedFlags  RedFlags  `yaml:"red_flags" json:"red_flags"`
	Signal    Signal    `yaml:"signal" json:"signal"`
	Exit      Exit      `yaml:"exit" json:"exit"`
	Risk      Risk      `yaml:"risk" json:"risk"`
	Execution Execution `yaml:"execution" json:"execution"`
	Sentiment Sentiment `yaml:"sentiment" json:"sentiment"`
}

// Meta 메타 정보
type Meta struct {
	StrategyID        string `yaml:"strategy_id" json:"strategy_id"`
	Version           string `yaml:"version" json:"version"`
	Timezone          string `yaml:"timezone" json:"timezone"`
	DecisionTimeLocal string `yaml:"decision_time_local" json:"decision_time_local"` // HH:MM, 收盘 후
}

// Scoring 6팩터 점수화 (합계 100)
type Scoring struct {
	Height    HeightFactor    `yaml:"height" json:"height"`
	Seal      SealFactor      `yaml:"seal" json:"seal"`
	Sector    SectorFactor    `yaml:"sector" json:"sector"`
	Turnover  TurnoverFactor  `yaml:"turnover" json:"turnover"`
	Timing    TimingFactor    `yaml:"timing" json:"timing"`
	MarketCap MarketCapFactor `yaml:"market_cap" json:"market_cap"`
}

// HeightFactor 连板高度
type HeightFactor struct {
	Max            float64 `yaml:"max" json:"max"`                           // 40
	SweetMin       int     `yaml:"sweet_min" json:"sweet_min"`               // 3
	SweetMax       int     `yaml:"sweet_max" json:"sweet_max"`               // 4
	HighRiskCredit float64 `yaml:"high_risk_credit" json:"high_risk_credit"` // ≥ sweet_max+1 → 0.5 × max
}

// SealFactor 封单/流通市值
type SealFactor struct {
	Max       float64 `yaml:"max" json:"max"`               // 25
	FullRatio float64 `yaml:"full_ratio" json:"full_ratio"` // 0.10
}

// SectorFactor 同板块涨停 수
type SectorFactor struct {
	Max       float64 `yaml:"max" json:"max"`               // 20
	FullAbove int     `yaml:"full_above" json:"full_above"` // peers > 5 → full
}

// TurnoverFactor 换手率 (percent)
type TurnoverFactor struct {
	Max      float64 `yaml:"max" json:"max"`             // 15
	BandLow  float64 `yaml:"band_low" json:"band_low"`   // 10
	BandHigh float64 `yaml:"band_high" json:"band_high"` // 30
	ZeroAt   float64 `yaml:"zero_at" json:"zero_at"`     // 60: 상단 감쇠가 0이 되는 지점
}

// TimingFactor 首次封板 시각
type TimingFactor struct {
	Max         float64 `yaml:"max" json:"max"`                   // 10
	EarlyCutoff string  `yaml:"early_cutoff" json:"early_cutoff"` // HH:MM (10:30)
}

// MarketCapFactor 流通市值 밴드
type MarketCapFactor struct {
	Max    float64 `yaml:"max" json:"max"`         // 10
	MinCap float64 `yaml:"min_cap" json:"min_cap"` // 50亿
	MaxCap float64 `yaml:"max_cap" json:"max_cap"` // 200亿
}

// RedFlags 红旗 규칙 on/off + 파라미터
type RedFlags struct {
	DataQuality    bool   `yaml:"data_quality" json:"data_quality"`
	OneWord        bool   `yaml:"one_word" json:"one_word"`
	AuctionCutoff  string `yaml:"auction_cutoff" json:"auction_cutoff"` // HH:MM, 이 시각 이전 封板 + 炸板 0 → 一字板
	TailBoard      bool   `yaml:"tail_board" json:"tail_board"`
	TailCutoff     string `yaml:"tail_cutoff" json:"tail_cutoff"` // HH:MM (14:30)
	Maverick       bool   `yaml:"maverick" json:"maverick"`
	MaverickDays   int    `yaml:"maverick_days" json:"maverick_days"` // 2
	ST             bool   `yaml:"st" json:"st"`
	RecentlyListed bool   `yaml:"recently_listed" json:"recently_listed"`
	NewStockDays   int    `yaml:"new_stock_days" json:"new_stock_days"` // 60 (data layer)
}

// Signal 매수 신호 규칙
type Signal struct {
	BuyThreshold float64 `yaml:"buy_threshold" json:"buy_threshold"` // 75
	BuyFraction  float64 `yaml:"buy_fraction" json:"buy_fraction"`   // ≤ risk.max_single_fraction
}

// Exit 손절/익절
type Exit struct {
	StopLossPct          float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`                     // 0.07
	HighBoardStopLossPct float64 `yaml:"high_board_stop_loss_pct" json:"high_board_stop_loss_pct"` // 0 = disabled
	HighBoardFrom        int     `yaml:"high_board_from" json:"high_board_from"`                 // 5
	TakeProfit1Pct       float64 `yaml:"take_profit1_pct" json:"take_profit1_pct"`               // 0.15
	TakeProfit2Pct       float64 `yaml:"take_profit2_pct" json:"take_profit2_pct"`               // 0.25
	TP1SellRatio         float64 `yaml:"tp1_sell_ratio" json:"tp1_sell_ratio"`                   // 0.5
	BreakevenAfterTP1    bool    `yaml:"breakeven_after_tp1" json:"breakeven_after_tp1"`
	TrailPct             float64 `yaml:"trail_pct" json:"trail_pct"` // 0 = no trailing
}

// Cool-down release modes
const (
	ReleaseOnProfit = "profit"    // 다음 수익 청산까지 (counter reset)
	ReleaseRestDays = "rest_days" // rest_days 거래일 후 자동 해제
)

// Risk 포지션/연패 제한
type Risk struct {
	MaxSingleFraction    float64 `yaml:"max_single_fraction" json:"max_single_fraction"`       // 0.20 (hard cap)
	MaxTotalFraction     float64 `yaml:"max_total_fraction" json:"max_total_fraction"`         // 1.0 (hard cap)
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses" json:"max_consecutive_losses"` // 3
	RestDays             int     `yaml:"rest_days" json:"rest_days"`                           // 1
	CooldownRelease      string  `yaml:"cooldown_release" json:"cooldown_release"`             // profit | rest_days
}

// Entry modes
const (
	EntryAtClose    = "close"     // 신호일 종가 체결
	EntryAtNextOpen = "next_open" // 다음 거래일 시가 체결 (pending)
)

// Execution 체결 모델
type Execution struct {
	EntryMode      string  `yaml:"entry_mode" json:"entry_mode"`
	LotSize        int     `yaml:"lot_size" json:"lot_size"` // 100股 = 1手
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
}

// Sentiment 情绪 지표 임계값 (0-100 heat index)
type Sentiment struct {
	Freezing float64 `yaml:"freezing" json:"freezing"`
	Heating  float64 `yaml:"heating" json:"heating"`
	Boiling  float64 `yaml:"boiling" json:"boiling"`
}

// DecisionSnapshot 의사결정 스냅샷 (재현성용)
type DecisionSnapshot struct {
	ConfigHash string    `json:"config_hash"`
	ConfigYAML string    `json:"config_yaml"`
	StrategyID string    `json:"strategy_id"`
	DataSource string    `json:"data_source"`
	CreatedAt  time.Time `json:"created_at"`
}
