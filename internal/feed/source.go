package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/pkg/logger"
)

// Source loads one trading day of cleaned data.
// ErrNoData means the date is not a trading day (or has no pool).
type Source interface {
	Load(ctx context.Context, date time.Time) (*contracts.DailyBatch, error)
}

var _ contracts.BatchSource = (Source)(nil)

// soleLookback bounds the walk back through previous pools (孤狼 판정)
const soleLookback = 5

// maxCalendarGap bounds the search for a previous trading day (holidays)
const maxCalendarGap = 14

// poolReader fetches one raw pool for a date; ErrNoData when absent
type poolReader interface {
	readPool(ctx context.Context, kind PoolKind, date time.Time) ([]PoolRecord, error)
}

// maxCachedPools bounds the pool memo (oldest entries evicted first)
const maxCachedPools = 256

// assembler builds batches from any poolReader, memoizing pools so the
// history walk does not refetch.
// A missing pool is remembered only when a later date already had data
// (a holiday); a missing pool at the data edge may still be written.
type assembler struct {
	reader poolReader
	klines *KlineStore // optional
	logger *logger.Logger

	mu     sync.Mutex
	pools  map[string][]PoolRecord // kind|date → records (nil = no data)
	order  []string                // insertion order for eviction
	latest time.Time               // newest date that had a limit-up pool
}

func newAssembler(reader poolReader, klines *KlineStore, log *logger.Logger) *assembler {
	if log == nil {
		log = logger.Nop()
	}
	return &assembler{
		reader: reader,
		klines: klines,
		logger: log,
		pools:  make(map[string][]PoolRecord),
	}
}

func (a *assembler) pool(ctx context.Context, kind PoolKind, date time.Time) ([]PoolRecord, error) {
	key := string(kind) + "|" + date.Format(contracts.DateLayout)

	a.mu.Lock()
	cached, ok := a.pools[key]
	a.mu.Unlock()
	if ok {
		if cached == nil {
			return nil, ErrNoData
		}
		return cached, nil
	}

	records, err := a.reader.readPool(ctx, kind, date)
	if err != nil && !errors.Is(err, ErrNoData) {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if errors.Is(err, ErrNoData) {
		if date.Before(a.latest) {
			a.remember(key, nil)
		}
		return nil, err
	}
	if records == nil {
		records = []PoolRecord{}
	}
	if kind == PoolLimitUp && date.After(a.latest) {
		a.latest = date
	}
	a.remember(key, records)
	return records, nil
}

// remember stores an entry; caller holds mu
func (a *assembler) remember(key string, records []PoolRecord) {
	if _, ok := a.pools[key]; !ok {
		a.order = append(a.order, key)
	}
	a.pools[key] = records
	for len(a.order) > maxCachedPools {
		delete(a.pools, a.order[0])
		a.order = a.order[1:]
	}
}

// load assembles the batch for date
func (a *assembler) load(ctx context.Context, date time.Time) (*contracts.DailyBatch, error) {
	if !contracts.IsTradingWeekday(date) {
		return nil, ErrNoData
	}

	limitUp, err := a.pool(ctx, PoolLimitUp, date)
	if err != nil {
		return nil, err
	}

	history := a.history(ctx, date)

	bars := map[string]contracts.Bar{}
	if a.klines != nil {
		bars = a.klines.BarsOn(date)
	}

	// 跌停/炸板 풀은 선택: 없으면 0으로 집계
	limitDown, err := a.optionalPool(ctx, PoolLimitDown, date)
	if err != nil {
		return nil, err
	}
	explode, err := a.optionalPool(ctx, PoolExplode, date)
	if err != nil {
		return nil, err
	}

	batch := &contracts.DailyBatch{
		Date:      date,
		Snapshots: Annotate(date, limitUp, history, bars),
		Bars:      bars,
		Sentiment: ComputeSentiment(limitUp, limitDown, explode),
	}

	a.logger.WithDate(date).WithFields(map[string]interface{}{
		"limit_up": len(limitUp),
		"bars":     len(bars),
		"history":  len(history),
		"heat":     batch.Sentiment.HeatIndex,
	}).Debug("Batch assembled")

	return batch, nil
}

func (a *assembler) optionalPool(ctx context.Context, kind PoolKind, date time.Time) ([]PoolRecord, error) {
	records, err := a.pool(ctx, kind, date)
	if errors.Is(err, ErrNoData) {
		return nil, nil
	}
	return records, err
}

// history returns up to soleLookback previous pools, most recent first.
// Read failures end the walk early.
func (a *assembler) history(ctx context.Context, date time.Time) [][]PoolRecord {
	out := make([][]PoolRecord, 0, soleLookback)
	d := date
	gap := 0
	for len(out) < soleLookback && gap < maxCalendarGap {
		d = d.AddDate(0, 0, -1)
		if !contracts.IsTradingWeekday(d) {
			continue
		}
		records, err := a.pool(ctx, PoolLimitUp, d)
		if errors.Is(err, ErrNoData) {
			gap++
			continue
		}
		if err != nil {
			a.logger.WithDate(d).WithError(err).Debug("History pool unavailable")
			break
		}
		gap = 0
		out = append(out, records)
	}
	return out
}

// TradingDates lists weekdays in [start, end]
func TradingDates(start, end time.Time) []time.Time {
	out := make([]time.Time, 0)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if contracts.IsTradingWeekday(d) {
			out = append(out, d)
		}
	}
	return out
}

// LastTradingDays lists the n weekdays ending at end (inclusive), ascending
func LastTradingDays(end time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for d := end; len(out) < n; d = d.AddDate(0, 0, -1) {
		if contracts.IsTradingWeekday(d) {
			out = append(out, d)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// dateString is the canonical date key
func dateString(d time.Time) string {
	return d.Format(contracts.DateLayout)
}

// describe names a date for error messages
func describe(kind PoolKind, date time.Time) string {
	return fmt.Sprintf("%s pool %s", kind, dateString(date))
}
