package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/pkg/config"
	"github.com/wonny/lianban/pkg/httputil"
	"github.com/wonny/lianban/pkg/logger"
	"github.com/wonny/lianban/pkg/redis"
)

var (
	mon = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	tue = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
)

const poolMon = `{"date":"2024-03-04","count":3,"data":[
 {"dm":"600001","mc":"测试一","p":10.0,"zf":10.0,"hs":15.2,"lt":8000000000,"zsz":9000000000,"zj":900000000,"lbc":2,"fbt":"09:45:00","lbt":"09:45:00","zbc":0,"hy":"机器人"},
 {"dm":"000002","mc":"BEST二","p":5.5,"zf":10.0,"hs":8.0,"lt":3000000000,"zsz":3000000000,"zj":10000000,"lbc":1,"fbt":"14:40:00","lbt":"14:55:00","zbc":2,"hy":"机器人"},
 {"dm":"300003","mc":"*ST三","p":3.3,"zf":20.0,"hs":30.0,"lt":1000000000,"zsz":1000000000,"zj":5000000,"lbc":1,"fbt":"092500","lbt":"092500","zbc":0,"hy":"医药"}
]}`

const poolTue = `{"date":"2024-03-05","count":2,"data":[
 {"dm":"600001","mc":"测试一","p":11.0,"zf":10.0,"hs":12.0,"lt":8800000000,"zsz":9900000000,"zj":1000000000,"lbc":3,"fbt":"09:35:00","lbt":"09:35:00","zbc":1,"hy":"机器人"},
 {"dm":"600004","mc":"N新股","p":20.0,"zf":44.0,"hs":70.0,"lt":2000000000,"zsz":8000000000,"zj":0,"lbc":1,"fbt":"09:30:00","lbt":"09:30:00","zbc":0,"hy":"半导体"}
]}`

const klines = `{
 "600001.SH":[{"date":"2024-03-04","open":9.3,"close":10.0,"low":9.2,"high":10.0,"volume":100},
              {"date":"2024-03-05","open":10.5,"close":11.0,"low":10.4,"high":11.0,"volume":120}],
 "600999.SH":[{"date":"2024-03-05","open":5.0,"close":5.1,"low":4.9,"high":5.2,"volume":50}]
}`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func newFileSource(t *testing.T) *FileSource {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, PoolPath(dir, PoolLimitUp, mon), poolMon)
	writeFile(t, PoolPath(dir, PoolLimitUp, tue), poolTue)
	writeFile(t, PoolPath(dir, PoolExplode, tue), `{"date":"2024-03-05","count":1,"data":[{"dm":"600005","mc":"炸","zbc":3}]}`)
	klineFile := filepath.Join(dir, "kline_optimized", "kline_data.json")
	writeFile(t, klineFile, klines)

	src, err := OpenFileSource(dir, klineFile, logger.Nop())
	require.NoError(t, err)
	return src
}

func TestParsePool_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bare array", `[{"dm":"600001","mc":"a"},{"dm":"000001","mc":"b"}]`, 2},
		{"history file", `{"date":"2024-03-04","count":1,"data":[{"dm":"600001"}]}`, 1},
		{"api envelope", `{"code":200,"data":{"list":[{"dm":"600001"}]}}`, 1},
		{"truncated", `[{"dm":"600001","mc":"a"},{"dm":"000001","mc":"b"`, 2},
		{"row without code dropped", `[{"mc":"x"},{"dm":"600001"}]`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := ParsePool([]byte(tt.body))
			require.NoError(t, err)
			assert.Len(t, records, tt.want)
		})
	}

	_, err := ParsePool([]byte(`{"code":500,"msg":"token invalid"}`))
	assert.ErrorContains(t, err, "token invalid")
}

func TestParsePool_Fields(t *testing.T) {
	records, err := ParsePool([]byte(poolMon))
	require.NoError(t, err)
	require.Len(t, records, 3)

	r := records[0]
	assert.Equal(t, "600001.SH", r.Code)
	assert.Equal(t, "测试一", r.Name)
	assert.Equal(t, 2, r.Boards)
	assert.Equal(t, 8e9, r.CircCap)
	assert.Equal(t, 9e8, r.SealAmount)
	assert.Equal(t, contracts.Clock(9, 45, 0), r.FirstSealTime)
	assert.Equal(t, "机器人", r.Sector)
	assert.Equal(t, contracts.Clock(9, 25, 0), records[2].FirstSealTime)
}

func TestEncodePool_RoundTrip(t *testing.T) {
	records := []PoolRecord{{Code: "600001.SH", Name: "测试", Price: 10, Boards: 2, FirstSealTime: contracts.Clock(9, 31, 0)}}
	body, err := EncodePool(mon, records)
	require.NoError(t, err)

	back, err := ParsePool(body)
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, "600001.SH", back[0].Code)
	assert.Equal(t, contracts.Clock(9, 31, 0), back[0].FirstSealTime)
}

func TestFileSource_Load(t *testing.T) {
	src := newFileSource(t)

	batch, err := src.Load(context.Background(), tue)
	require.NoError(t, err)
	require.Len(t, batch.Snapshots, 2)

	s := batch.Snapshots[0]
	assert.Equal(t, "600001.SH", s.Code)
	assert.Equal(t, 3, s.ConsecutiveLimitUps)
	assert.Equal(t, 10.5, s.Open)
	assert.Equal(t, 10.4, s.Low)
	assert.Equal(t, 1, s.SectorPeerCount)
	// sole ≥2-board name in 机器人 on both days
	assert.Equal(t, 2, s.SectorSoleDays)

	assert.True(t, batch.Snapshots[1].IsRecentlyListed)

	// bars cover held names outside the pool
	_, ok := batch.Bar("600999.SH")
	assert.True(t, ok)

	require.NotNil(t, batch.Sentiment)
	assert.Equal(t, 2, batch.Sentiment.LimitUpCount)
	assert.Equal(t, 1, batch.Sentiment.ExplodeCount)
	assert.InDelta(t, 1.0/3, batch.Sentiment.ExplodeRate, 1e-9)
}

func TestFileSource_Annotations(t *testing.T) {
	src := newFileSource(t)

	batch, err := src.Load(context.Background(), mon)
	require.NoError(t, err)
	require.Len(t, batch.Snapshots, 3)

	byCode := map[string]contracts.StockSnapshot{}
	for _, s := range batch.Snapshots {
		byCode[s.Code] = s
	}

	assert.Equal(t, 2, byCode["600001.SH"].SectorPeerCount)
	assert.Equal(t, 1, byCode["600001.SH"].SectorSoleDays)
	assert.Equal(t, 0, byCode["000002.SZ"].SectorSoleDays)
	assert.True(t, byCode["300003.SZ"].IsST)
	assert.False(t, byCode["000002.SZ"].IsST)
	assert.True(t, byCode["300003.SZ"].IsOneWord)
	assert.False(t, byCode["600001.SH"].IsOneWord)
}

func TestFileSource_NoData(t *testing.T) {
	src := newFileSource(t)

	_, err := src.Load(context.Background(), time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNoData)

	// weekend
	_, err = src.Load(context.Background(), time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNoData)

	dates, err := src.AvailableDates()
	require.NoError(t, err)
	assert.Equal(t, []time.Time{mon, tue}, dates)
}

func TestWritePool(t *testing.T) {
	dir := t.TempDir()
	records, err := ParsePool([]byte(poolMon))
	require.NoError(t, err)

	path, err := WritePool(dir, PoolLimitUp, mon, records)
	require.NoError(t, err)
	assert.Equal(t, PoolPath(dir, PoolLimitUp, mon), path)

	src := NewFileSource(dir, nil, nil)
	batch, err := src.Load(context.Background(), mon)
	require.NoError(t, err)
	assert.Len(t, batch.Snapshots, 3)
	assert.Empty(t, batch.Bars)
}

func TestFileSource_PoolWrittenAfterMiss(t *testing.T) {
	dir := t.TempDir()
	src := NewFileSource(dir, nil, nil)
	ctx := context.Background()

	_, err := src.Load(ctx, mon)
	require.ErrorIs(t, err, ErrNoData)

	// 15:35 archive job writes today's pool
	records, err := ParsePool([]byte(poolMon))
	require.NoError(t, err)
	_, err = WritePool(dir, PoolLimitUp, mon, records)
	require.NoError(t, err)

	batch, err := src.Load(ctx, mon)
	require.NoError(t, err)
	assert.Len(t, batch.Snapshots, 3)
}

func TestAssembler_RemembersHolidaysOnly(t *testing.T) {
	reader := &countingReader{pools: map[string][]PoolRecord{
		dateString(tue): {{Code: "600001.SH", Name: "测试一", Price: 10, Boards: 2}},
	}}
	a := newAssembler(reader, nil, nil)
	ctx := context.Background()
	wed := tue.AddDate(0, 0, 1)

	// edge miss is not remembered
	_, err := a.pool(ctx, PoolLimitUp, wed)
	require.ErrorIs(t, err, ErrNoData)
	_, err = a.pool(ctx, PoolLimitUp, wed)
	require.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, 2, reader.calls[dateString(wed)])

	// once a later pool exists, an earlier miss is a holiday
	_, err = a.pool(ctx, PoolLimitUp, tue)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = a.pool(ctx, PoolLimitUp, mon)
		require.ErrorIs(t, err, ErrNoData)
	}
	assert.Equal(t, 1, reader.calls[dateString(mon)])
}

func TestAssembler_EvictsOldest(t *testing.T) {
	reader := &countingReader{pools: map[string][]PoolRecord{}}
	a := newAssembler(reader, nil, nil)
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i <= maxCachedPools; i++ {
		d := start.AddDate(0, 0, i)
		reader.pools[dateString(d)] = []PoolRecord{{Code: "600001.SH"}}
		_, err := a.pool(context.Background(), PoolLimitUp, d)
		require.NoError(t, err)
	}
	assert.Len(t, a.pools, maxCachedPools)
	assert.NotContains(t, a.pools, string(PoolLimitUp)+"|"+dateString(start))
}

type countingReader struct {
	pools map[string][]PoolRecord
	calls map[string]int
}

func (r *countingReader) readPool(_ context.Context, _ PoolKind, date time.Time) ([]PoolRecord, error) {
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	key := dateString(date)
	r.calls[key]++
	records, ok := r.pools[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoData, key)
	}
	return records, nil
}

func TestComputeSentiment(t *testing.T) {
	up := make([]PoolRecord, 100)
	for i := range up {
		up[i] = PoolRecord{Code: fmt.Sprintf("%06d.SH", 600000+i), Boards: 1}
	}
	up[0].Boards = 7

	hot := ComputeSentiment(up, nil, nil)
	assert.Equal(t, 100.0, hot.HeatIndex)
	assert.Equal(t, 7, hot.MaxHeight)
	assert.Equal(t, "boiling", hot.Mood(30, 50, 80))

	cold := ComputeSentiment(nil, make([]PoolRecord, 50), nil)
	assert.Equal(t, 0.0, cold.HeatIndex)
	assert.Equal(t, "freezing", cold.Mood(30, 50, 80))
}

func TestTradingDates(t *testing.T) {
	dates := TradingDates(time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC))
	require.Len(t, dates, 3)
	assert.Equal(t, time.Friday, dates[0].Weekday())
	assert.Equal(t, time.Monday, dates[1].Weekday())

	last := LastTradingDays(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), 2)
	assert.Equal(t, []time.Time{time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)}, last)
}

func TestZhituSource(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		switch {
		case strings.HasSuffix(r.URL.Path, "/hs/pool/ztgc/2024-03-05"):
			_, _ = w.Write([]byte(poolTue[strings.Index(poolTue, "["):strings.LastIndex(poolTue, "]")+1]))
		case strings.HasSuffix(r.URL.Path, "/hs/pool/ztgc/2024-03-04"):
			_, _ = w.Write([]byte(`{"code":200,"data":{"list":[{"dm":"600001","lbc":2,"hy":"机器人"}]}}`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	hc := httputil.New(logger.Nop(), time.Second).DisableRetry().WithRate(1000)
	client := NewZhituClient(hc, config.ZhituConfig{Token: "secret", BaseURL: srv.URL + "/"}, nil)
	src := NewZhituSource(client, nil, nil)

	batch, err := src.Load(context.Background(), tue)
	require.NoError(t, err)
	require.Len(t, batch.Snapshots, 2)
	assert.Equal(t, 2, batch.Snapshots[0].SectorSoleDays)

	before := calls.Load()
	_, err = src.Load(context.Background(), tue)
	require.NoError(t, err)
	assert.Equal(t, before, calls.Load(), "pools are memoized")
}

func TestZhituClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	hc := httputil.New(logger.Nop(), time.Second).DisableRetry()
	client := NewZhituClient(hc, config.ZhituConfig{Token: "t", BaseURL: srv.URL}, nil)

	_, err := client.FetchLimitUpPool(context.Background(), mon)
	var se *httputil.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)

	_, err = NewZhituClient(hc, config.ZhituConfig{BaseURL: srv.URL}, nil).FetchLimitUpPool(context.Background(), mon)
	assert.ErrorContains(t, err, "token")
}

type countingSource struct {
	calls int
}

func (c *countingSource) Load(_ context.Context, date time.Time) (*contracts.DailyBatch, error) {
	c.calls++
	return &contracts.DailyBatch{Date: date}, nil
}

func TestCachedSource_DisabledRedisPassesThrough(t *testing.T) {
	rdb, err := redis.New(context.Background(), &config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)

	inner := &countingSource{}
	src := NewCachedSource(inner, redis.NewCache(rdb, "lianban"), "file", 0, nil)

	for i := 0; i < 2; i++ {
		batch, err := src.Load(context.Background(), mon)
		require.NoError(t, err)
		assert.Equal(t, mon, batch.Date)
	}
	assert.Equal(t, 2, inner.calls)
}
