package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/lianban/internal/api/handlers"
	"github.com/wonny/lianban/internal/backtest"
	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/data/repos"
	"github.com/wonny/lianban/internal/feed"
	"github.com/wonny/lianban/internal/strategyconfig"
	"github.com/wonny/lianban/pkg/logger"
)

var monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

type mapSource map[string]*contracts.DailyBatch

func (m mapSource) Load(_ context.Context, date time.Time) (*contracts.DailyBatch, error) {
	b, ok := m[date.Format(contracts.DateLayout)]
	if !ok {
		return nil, feed.ErrNoData
	}
	return b, nil
}

type fakeSignalStore struct{ signals []contracts.Signal }

func (f fakeSignalStore) ListSignals(_ context.Context, _ time.Time, action contracts.Action) ([]contracts.Signal, error) {
	out := make([]contracts.Signal, 0)
	for _, s := range f.signals {
		if action == "" || s.Action == action {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeRunStore struct {
	runs  []repos.RunRecord
	saved []repos.RunRecord
	err   error
}

func (f *fakeRunStore) SaveState(_ context.Context, rec repos.RunRecord) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeRunStore) ListRuns(context.Context, int) ([]repos.RunRecord, error) { return f.runs, nil }

func snapshot(code string, boards int) contracts.StockSnapshot {
	return contracts.StockSnapshot{
		Code:                code,
		Name:                "测试",
		Price:               10.00,
		Open:                9.50,
		High:                10.00,
		Low:                 9.40,
		ConsecutiveLimitUps: boards,
		SealAmount:          0.12 * 8e9,
		CirculatingCap:      8e9,
		TurnoverRate:        15,
		FirstLimitUpTime:    contracts.Clock(9, 45, 0),
		OpenCount:           1,
		SectorPeerCount:     6,
	}
}

func testSource() mapSource {
	src := mapSource{}
	for i := 0; i < 5; i++ {
		date := monday.AddDate(0, 0, i)
		src[date.Format(contracts.DateLayout)] = &contracts.DailyBatch{
			Date:      date,
			Snapshots: []contracts.StockSnapshot{snapshot("600001.SH", 4), snapshot("000002.SZ", 1)},
			Bars: map[string]contracts.Bar{
				"600001.SH": {Date: date, Open: 9.5, High: 10, Low: 9.4, Close: 10},
			},
			Sentiment: &contracts.MarketSentiment{LimitUpCount: 2, HeatIndex: 62},
		}
	}
	return src
}

func newTestRouter(t *testing.T, store handlers.SignalStore, runs handlers.RunStore, checks ...HealthCheck) http.Handler {
	t.Helper()
	cfg := strategyconfig.Default()
	src := testSource()

	engine, err := backtest.NewEngine(src, cfg, logger.Nop())
	require.NoError(t, err)

	return NewRouter(
		handlers.NewSignalHandler(src, engine.Generator(), cfg, store, logger.Nop()),
		handlers.NewBacktestHandler(engine, runs, logger.Nop()),
		logger.Nop(),
		checks...,
	)
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	up := HealthCheck{Name: "redis", Probe: func(context.Context) error { return nil }}
	down := HealthCheck{Name: "postgres", Probe: func(context.Context) error { return errors.New("connection refused") }}

	tests := []struct {
		name   string
		checks []HealthCheck
		status int
		body   []string
	}{
		{"no dependencies", nil, http.StatusOK, []string{`"status":"ok"`}},
		{"all up", []HealthCheck{up}, http.StatusOK, []string{`"status":"ok"`, `"redis":"ok"`}},
		{"one down", []HealthCheck{up, down}, http.StatusServiceUnavailable,
			[]string{`"status":"degraded"`, `"postgres":"connection refused"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newTestRouter(t, nil, nil, tt.checks...), http.MethodGet, "/health", "")
			assert.Equal(t, tt.status, rec.Code)
			for _, want := range tt.body {
				assert.Contains(t, rec.Body.String(), want)
			}
		})
	}
}

func TestGetSignals(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing date", "/api/signals", http.StatusBadRequest},
		{"bad date", "/api/signals?date=04/03/2024", http.StatusBadRequest},
		{"bad action", "/api/signals?date=2024-03-04&action=sell", http.StatusBadRequest},
		{"weekend", "/api/signals?date=2024-03-09", http.StatusNotFound},
		{"ok", "/api/signals?date=2024-03-04", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestGetSignals_Body(t *testing.T) {
	rec := do(newTestRouter(t, nil, nil), http.MethodGet, "/api/signals?date=2024-03-04&action=buy", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.SignalsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "2024-03-04", resp.Date)
	assert.Equal(t, "heating", resp.Mood)
	require.Len(t, resp.Signals, 1)
	assert.Equal(t, "600001.SH", resp.Signals[0].Code)
	assert.Equal(t, 2, resp.Counts[contracts.ActionBuy]+resp.Counts[contracts.ActionHold]+resp.Counts[contracts.ActionSkip])
	require.Len(t, resp.Ladder, 2)
	assert.Equal(t, 4, resp.Ladder[0].Height)
}

func TestGetStoredSignals(t *testing.T) {
	rec := do(newTestRouter(t, nil, nil), http.MethodGet, "/api/signals/stored?date=2024-03-04", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	store := fakeSignalStore{signals: []contracts.Signal{
		{Code: "600001.SH", Action: contracts.ActionBuy, Score: 90},
		{Code: "000002.SZ", Action: contracts.ActionHold, Score: 60},
	}}
	rec = do(newTestRouter(t, store, nil), http.MethodGet, "/api/signals/stored?date=2024-03-04&action=buy", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.SignalsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Signals, 1)
	assert.Equal(t, "600001.SH", resp.Signals[0].Code)
}

func TestRunBacktest(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing from", `{"days": 5}`, http.StatusBadRequest},
		{"no length", `{"from": "2024-03-04"}`, http.StatusBadRequest},
		{"too long", `{"from": "2024-03-04", "days": 5000}`, http.StatusBadRequest},
		{"to before from", `{"from": "2024-03-04", "to": "2024-03-01"}`, http.StatusBadRequest},
		{"negative capital", `{"from": "2024-03-04", "days": 3, "capital": -1}`, http.StatusBadRequest},
		{"ok", `{"from": "2024-03-04", "days": 3}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, http.MethodPost, "/api/backtest", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestRunBacktest_Body(t *testing.T) {
	rec := do(newTestRouter(t, nil, nil), http.MethodPost, "/api/backtest",
		`{"from": "2024-03-04", "to": "2024-03-08", "capital": 500000, "include_trades": true, "include_risk": true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.BacktestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, "2024-03-04", resp.StartDate)
	assert.Equal(t, "2024-03-08", resp.EndDate)
	assert.Len(t, resp.EquityCurve, 5)
	assert.Equal(t, 5, resp.Summary.TradingDays)
	assert.NotEmpty(t, resp.Trades)
	require.NotNil(t, resp.Account)
	assert.True(t, resp.Account.Equity.Equal(resp.EquityCurve[4].Equity))

	// 5일은 Monte Carlo 최소 샘플 미만
	require.NotNil(t, resp.Risk)
	assert.Equal(t, 5, resp.Risk.Samples)
	assert.Nil(t, resp.Risk.MonteCarlo)
}

func TestRunBacktest_SavesRun(t *testing.T) {
	const body = `{"from": "2024-03-04", "to": "2024-03-08"}`

	runs := &fakeRunStore{}
	rec := do(newTestRouter(t, nil, runs), http.MethodPost, "/api/backtest", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.BacktestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Saved)
	require.Len(t, runs.saved, 1)

	saved := runs.saved[0]
	assert.Equal(t, resp.RunID, saved.RunID)
	assert.Equal(t, resp.ConfigHash, saved.ConfigHash)
	assert.Equal(t, 5, saved.DaysDone)

	st, err := backtest.UnmarshalState(saved.State)
	require.NoError(t, err)
	assert.Len(t, st.EquityCurve, 5)

	// a failing store does not fail the run
	failing := &fakeRunStore{err: errors.New("db down")}
	rec = do(newTestRouter(t, nil, failing), http.MethodPost, "/api/backtest", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Saved)

	// no store: not saved
	rec = do(newTestRouter(t, nil, nil), http.MethodPost, "/api/backtest", body)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Saved)
}

func TestListRuns(t *testing.T) {
	rec := do(newTestRouter(t, nil, nil), http.MethodGet, "/api/backtest/runs", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	runs := &fakeRunStore{runs: []repos.RunRecord{
		{RunID: "r1", ConfigHash: "abc", NextDate: monday, DaysDone: 10, UpdatedAt: monday},
	}}
	rec = do(newTestRouter(t, nil, runs), http.MethodGet, "/api/backtest/runs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"r1"`)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestRecoveryMiddleware(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
	r.Use(recoveryMiddleware(logger.Nop()))

	rec := do(r, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}
