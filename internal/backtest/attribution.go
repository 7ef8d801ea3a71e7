package backtest

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/ledger"
)

// Bucket is realized performance of one group of closed positions
type Bucket struct {
	Key          string          `json:"key"`
	Count        int             `json:"count"`
	Wins         int             `json:"wins"`
	WinRate      float64         `json:"win_rate"`
	PnL          decimal.Decimal `json:"pnl"`
	AvgReturnPct float64         `json:"avg_return_pct"`
	AvgHolding   float64         `json:"avg_holding_days"`
}

// Attribution splits realized PnL by entry board height, exit reason and sector
// ⭐ SSOT: 수익 기여 분석은 여기서만
type Attribution struct {
	ByBoards []Bucket `json:"by_boards"` // "2", "3", ..., "5+"
	ByExit   []Bucket `json:"by_exit"`
	BySector []Bucket `json:"by_sector"` // PnL 내림차순
}

// highBoardBucket groups tall ladders together
const highBoardBucket = 5

// Attribute groups closed positions. Unfilled cancellations are excluded,
// same as Summarize.
func Attribute(closed []*ledger.Position) Attribution {
	boards := newGrouper()
	exits := newGrouper()
	sectors := newGrouper()

	for _, p := range closed {
		if p.ExitReason == contracts.ExitUnfillable || !p.InitialShares.IsPositive() {
			continue
		}
		boards.add(boardKey(p.Boards), p)
		exits.add(string(p.ExitReason), p)
		sector := p.Sector
		if sector == "" {
			sector = "unknown"
		}
		sectors.add(sector, p)
	}

	byBoards := boards.buckets()
	sort.Slice(byBoards, func(i, j int) bool { return boardOrder(byBoards[i].Key) < boardOrder(byBoards[j].Key) })

	byExit := exits.buckets()
	sort.Slice(byExit, func(i, j int) bool { return byExit[i].Key < byExit[j].Key })

	bySector := sectors.buckets()
	sort.Slice(bySector, func(i, j int) bool {
		if c := bySector[i].PnL.Cmp(bySector[j].PnL); c != 0 {
			return c > 0
		}
		return bySector[i].Key < bySector[j].Key
	})

	return Attribution{ByBoards: byBoards, ByExit: byExit, BySector: bySector}
}

func boardKey(n int) string {
	if n >= highBoardBucket {
		return strconv.Itoa(highBoardBucket) + "+"
	}
	return strconv.Itoa(n)
}

func boardOrder(key string) int {
	n, err := strconv.Atoi(key)
	if err != nil {
		return highBoardBucket
	}
	return n
}

type accum struct {
	count, wins, holding int
	pnl                  decimal.Decimal
	retSum               float64
}

type grouper struct {
	groups map[string]*accum
}

func newGrouper() *grouper {
	return &grouper{groups: make(map[string]*accum)}
}

func (g *grouper) add(key string, p *ledger.Position) {
	a, ok := g.groups[key]
	if !ok {
		a = &accum{pnl: decimal.Zero}
		g.groups[key] = a
	}
	a.count++
	a.holding += p.HoldingDays
	a.retSum += p.ReturnPct()
	a.pnl = a.pnl.Add(p.RealizedPnL)
	if p.RealizedPnL.IsPositive() {
		a.wins++
	}
}

func (g *grouper) buckets() []Bucket {
	out := make([]Bucket, 0, len(g.groups))
	for key, a := range g.groups {
		n := float64(a.count)
		out = append(out, Bucket{
			Key:          key,
			Count:        a.count,
			Wins:         a.wins,
			WinRate:      float64(a.wins) / n,
			PnL:          a.pnl,
			AvgReturnPct: a.retSum / n,
			AvgHolding:   float64(a.holding) / n,
		})
	}
	return out
}
