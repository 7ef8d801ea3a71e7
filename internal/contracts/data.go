package contracts

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical trading-date format (YYYY-MM-DD)
const DateLayout = "2006-01-02"

// TimeOfDay is seconds since midnight (交易所时间). Zero means missing.
type TimeOfDay int

// Clock builds a TimeOfDay from hour, minute and second
func Clock(h, m, s int) TimeOfDay {
	return TimeOfDay(h*3600 + m*60 + s)
}

// ParseTimeOfDay accepts "HH:MM:SS", "HH:MM", "HHMMSS" and "HMMSS".
// Empty input yields 0 (missing) without error.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, nil
	}

	var h, m, sec int
	var err error
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		nums := make([]int, 3)
		for i, p := range parts {
			if nums[i], err = strconv.Atoi(p); err != nil {
				return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
			}
		}
		h, m, sec = nums[0], nums[1], nums[2]
	} else {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
		}
		h, m, sec = n/10000, (n/100)%100, n%100
	}

	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("time of day out of range %q", s)
	}
	return Clock(h, m, sec), nil
}

// IsZero reports a missing time
func (t TimeOfDay) IsZero() bool {
	return t <= 0
}

// String formats as HH:MM:SS
func (t TimeOfDay) String() string {
	if t.IsZero() {
		return ""
	}
	v := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", v/3600, (v/60)%60, v%60)
}

// MarshalText implements encoding.TextMarshaler
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// StockSnapshot is one candidate's cleaned daily data (涨停股池 + 日K)
// ⭐ SSOT: feed → scoring/redflag/signal 전달, core에서는 절대 수정하지 않음
type StockSnapshot struct {
	Code string    `json:"code"` // 600001.SH
	Name string    `json:"name"`
	Date time.Time `json:"date"`

	Price      float64 `json:"price"` // 收盘价
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	LimitPrice float64 `json:"limit_price"` // 涨停价 (0 = unknown)
	ChangePct  float64 `json:"change_pct"`

	ConsecutiveLimitUps int     `json:"consecutive_limit_ups"` // 连板数
	SealAmount          float64 `json:"seal_amount"`           // 封单金额
	CirculatingCap      float64 `json:"circulating_cap"`       // 流通市值
	TotalCap            float64 `json:"total_cap"`
	TurnoverRate        float64 `json:"turnover_rate"` // percent, 15 = 15%

	FirstLimitUpTime TimeOfDay `json:"first_limit_up_time"` // 首次封板
	LastLimitUpTime  TimeOfDay `json:"last_limit_up_time"`  // 最后封板
	OpenCount        int       `json:"open_count"`          // 炸板次数

	Sector          string `json:"sector"`
	SectorPeerCount int    `json:"sector_peer_count"` // 同板块当日涨停数 (자기 포함)
	SectorSoleDays  int    `json:"sector_sole_days"`  // 板块内唯一连板 연속 일수

	IsST             bool `json:"is_st"`
	IsRecentlyListed bool `json:"is_recently_listed"` // 次新股
	IsOneWord        bool `json:"is_one_word"`        // 一字板
}

// Bar is one daily K-line bar
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Valid reports whether the bar has usable prices
func (b Bar) Valid() bool {
	return b.Open > 0 && b.High > 0 && b.Low > 0 && b.Close > 0 && b.High >= b.Low
}

// MarketSentiment summarizes the day's limit-up market (情绪)
type MarketSentiment struct {
	LimitUpCount   int     `json:"limit_up_count"`
	LimitDownCount int     `json:"limit_down_count"`
	ExplodeCount   int     `json:"explode_count"` // 炸板
	ExplodeRate    float64 `json:"explode_rate"`  // explode / (limit-up + explode)
	MaxHeight      int     `json:"max_height"`
	HeatIndex      float64 `json:"heat_index"` // 0-100
}

// Mood buckets the heat index with the given thresholds
func (m MarketSentiment) Mood(freezing, heating, boiling float64) string {
	switch {
	case m.HeatIndex >= boiling:
		return "boiling"
	case m.HeatIndex >= heating:
		return "heating"
	case m.HeatIndex < freezing:
		return "freezing"
	default:
		return "neutral"
	}
}

// DailyBatch is everything the core needs for one trading day
// ⭐ SSOT: feed.Source → backtest/signal 일별 입력
type DailyBatch struct {
	Date      time.Time        `json:"date"`
	Snapshots []StockSnapshot  `json:"snapshots"`
	Bars      map[string]Bar   `json:"bars"` // key: normalized code
	Sentiment *MarketSentiment `json:"sentiment,omitempty"`
}

// Bar returns the bar for a code on this day
func (b *DailyBatch) Bar(code string) (Bar, bool) {
	if b == nil || b.Bars == nil {
		return Bar{}, false
	}
	bar, ok := b.Bars[code]
	return bar, ok
}

// LadderLevel is the count of names at one board height (连板梯队)
type LadderLevel struct {
	Height int      `json:"height"`
	Count  int      `json:"count"`
	Codes  []string `json:"codes"`
}

// Ladder groups snapshots by consecutive-limit-up height, tallest first
func (b *DailyBatch) Ladder() []LadderLevel {
	byHeight := make(map[int][]string)
	for _, s := range b.Snapshots {
		if s.ConsecutiveLimitUps <= 0 {
			continue
		}
		byHeight[s.ConsecutiveLimitUps] = append(byHeight[s.ConsecutiveLimitUps], s.Code)
	}

	levels := make([]LadderLevel, 0, len(byHeight))
	for h, codes := range byHeight {
		sort.Strings(codes)
		levels = append(levels, LadderLevel{Height: h, Count: len(codes), Codes: codes})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Height > levels[j].Height })
	return levels
}

// NormalizeCode converts a bare 6-digit code to XXXXXX.SH/SZ/BJ.
// Already-suffixed codes are upper-cased and returned.
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || strings.Contains(code, ".") {
		return code
	}
	switch {
	case strings.HasPrefix(code, "6"), strings.HasPrefix(code, "9"):
		return code + ".SH"
	case strings.HasPrefix(code, "0"), strings.HasPrefix(code, "2"), strings.HasPrefix(code, "3"):
		return code + ".SZ"
	case strings.HasPrefix(code, "4"), strings.HasPrefix(code, "8"):
		return code + ".BJ"
	default:
		return code
	}
}

// LimitRatio is the daily price limit for a normalized code:
// 创业板/科创板 20%, 北交所 30%, otherwise 10%.
func LimitRatio(code string) float64 {
	code = NormalizeCode(code)
	switch {
	case strings.HasSuffix(code, ".BJ"):
		return 0.30
	case strings.HasPrefix(code, "30"), strings.HasPrefix(code, "68"):
		return 0.20
	default:
		return 0.10
	}
}

// stPrefixes mark risk-warning names (S = 未股改)
var stPrefixes = []string{"ST", "*ST", "S*ST", "SST"}

// IsSTName reports a risk-warning board name. Only the prefix counts:
// names such as "BEST科技" are not ST.
func IsSTName(name string) bool {
	n := strings.ToUpper(strings.TrimSpace(name))
	for _, p := range stPrefixes {
		if strings.HasPrefix(n, p) {
			return true
		}
	}
	return false
}

// LimitUpPrice is prevClose × (1 + limit) rounded to the 0.01 tick
func LimitUpPrice(code string, prevClose float64) float64 {
	if prevClose <= 0 {
		return 0
	}
	return math.Round(prevClose*(1+LimitRatio(code))*100) / 100
}

// IsTradingWeekday reports Mon-Fri
func IsTradingWeekday(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// ParseDate parses YYYY-MM-DD (or YYYYMMDD) in UTC
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) == 8 && !strings.Contains(s, "-") {
		return time.Parse("20060102", s)
	}
	return time.Parse(DateLayout, s)
}

// AddTradingDays moves n weekdays forward (n may be 0)
func AddTradingDays(d time.Time, n int) time.Time {
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if IsTradingWeekday(d) {
			n--
		}
	}
	return d
}
