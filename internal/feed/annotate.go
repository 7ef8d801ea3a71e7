package feed

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/wonny/lianban/internal/contracts"
)

// auctionEnd is the close of the opening call auction (集合竞价)
var auctionEnd = contracts.Clock(9, 25, 0)

// Annotate turns one day's limit-up pool into snapshots.
// history holds previous trading days' pools, most recent first; it feeds
// SectorSoleDays. bars are the day's K-line bars keyed by code.
func Annotate(date time.Time, pool []PoolRecord, history [][]PoolRecord, bars map[string]contracts.Bar) []contracts.StockSnapshot {
	peers := sectorCounts(pool)

	soleToday := soleLeaders(pool)
	soleHistory := make([]map[string]bool, len(history))
	for i, day := range history {
		soleHistory[i] = soleLeaders(day)
	}

	out := make([]contracts.StockSnapshot, 0, len(pool))
	for _, r := range pool {
		s := contracts.StockSnapshot{
			Code:                r.Code,
			Name:                r.Name,
			Date:                date,
			Price:               r.Price,
			ChangePct:           r.ChangePct,
			LimitPrice:          r.Price, // 涨停股池: 收盘 = 涨停价
			ConsecutiveLimitUps: r.Boards,
			SealAmount:          r.SealAmount,
			CirculatingCap:      r.CircCap,
			TotalCap:            r.TotalCap,
			TurnoverRate:        r.TurnoverRate,
			FirstLimitUpTime:    r.FirstSealTime,
			LastLimitUpTime:     r.LastSealTime,
			OpenCount:           r.OpenCount,
			Sector:              r.Sector,
			IsST:                contracts.IsSTName(r.Name),
			IsRecentlyListed:    isNewListing(r.Name),
		}

		if r.Sector != "" {
			s.SectorPeerCount = peers[r.Sector]
		} else {
			s.SectorPeerCount = 1
		}

		if bar, ok := bars[r.Code]; ok {
			s.Open, s.High, s.Low = bar.Open, bar.High, bar.Low
			if s.Price <= 0 {
				s.Price = bar.Close
				s.LimitPrice = bar.Close
			}
		}

		s.IsOneWord = isOneWord(r, bars)
		s.SectorSoleDays = soleDays(r.Code, soleToday, soleHistory)

		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// sectorCounts counts same-day limit-ups per sector
func sectorCounts(pool []PoolRecord) map[string]int {
	counts := make(map[string]int)
	for _, r := range pool {
		if r.Sector != "" {
			counts[r.Sector]++
		}
	}
	return counts
}

// soleLeaders returns codes that are the only ≥2-board name in their sector
func soleLeaders(pool []PoolRecord) map[string]bool {
	multi := make(map[string][]string)
	for _, r := range pool {
		if r.Boards >= 2 && r.Sector != "" {
			multi[r.Sector] = append(multi[r.Sector], r.Code)
		}
	}
	out := make(map[string]bool)
	for _, codes := range multi {
		if len(codes) == 1 {
			out[codes[0]] = true
		}
	}
	return out
}

// soleDays counts consecutive days (today backwards) the code led its
// sector alone
func soleDays(code string, today map[string]bool, history []map[string]bool) int {
	if !today[code] {
		return 0
	}
	n := 1
	for _, day := range history {
		if !day[code] {
			break
		}
		n++
	}
	return n
}

// isNewListing: N = 上市首日, C = 注册制 上市 5日 이내
func isNewListing(name string) bool {
	return strings.HasPrefix(name, "N") || strings.HasPrefix(name, "C")
}

// isOneWord: sealed in the auction and never opened, or a flat bar at the limit
func isOneWord(r PoolRecord, bars map[string]contracts.Bar) bool {
	if !r.FirstSealTime.IsZero() && r.FirstSealTime <= auctionEnd && r.OpenCount == 0 {
		return true
	}
	bar, ok := bars[r.Code]
	if !ok || !bar.Valid() {
		return false
	}
	const eps = 0.005
	return math.Abs(bar.Open-bar.High) <= eps &&
		math.Abs(bar.Low-bar.High) <= eps &&
		math.Abs(bar.Close-bar.High) <= eps
}

// ComputeSentiment summarizes the day's pools. Heat index (0-100):
// 40 × breadth (limit-ups / 100, capped) + 30 × seal success (1 - 炸板率)
// + 20 × ladder height (max / 7, capped) + 10 × up/down balance.
func ComputeSentiment(limitUp, limitDown, explode []PoolRecord) *contracts.MarketSentiment {
	s := &contracts.MarketSentiment{
		LimitUpCount:   len(limitUp),
		LimitDownCount: len(limitDown),
		ExplodeCount:   len(explode),
	}
	for _, r := range limitUp {
		if r.Boards > s.MaxHeight {
			s.MaxHeight = r.Boards
		}
	}

	if attempts := s.LimitUpCount + s.ExplodeCount; attempts > 0 {
		s.ExplodeRate = float64(s.ExplodeCount) / float64(attempts)
	}

	breadth := math.Min(float64(s.LimitUpCount)/100, 1)
	height := math.Min(float64(s.MaxHeight)/7, 1)
	balance := 0.5
	if total := s.LimitUpCount + s.LimitDownCount; total > 0 {
		balance = float64(s.LimitUpCount) / float64(total)
	}
	success := 1 - s.ExplodeRate
	if s.LimitUpCount == 0 && s.ExplodeCount == 0 {
		success = 0
	}

	heat := 40*breadth + 30*success + 20*height + 10*balance
	s.HeatIndex = math.Round(math.Max(0, math.Min(100, heat))*10) / 10
	return s
}
