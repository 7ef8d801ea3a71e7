package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/wonny/lianban/internal/backtest"
	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/data/repos"
	"github.com/wonny/lianban/internal/ledger"
	"github.com/wonny/lianban/internal/risk"
	"github.com/wonny/lianban/pkg/logger"
)

// maxBacktestDays caps a synchronous API run (~3 years)
const maxBacktestDays = 750

// RunStore saves and lists backtest runs
type RunStore interface {
	SaveState(ctx context.Context, rec repos.RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]repos.RunRecord, error)
}

// BacktestHandler handles backtest API endpoints
// ⭐ SSOT: 백테스트 API 핸들러는 이 구조체에서만
type BacktestHandler struct {
	engine *backtest.Engine
	runs   RunStore // nil: DB 미사용
	risk   *risk.Engine
	logger *logger.Logger
}

// NewBacktestHandler creates a new backtest handler. runs may be nil.
func NewBacktestHandler(engine *backtest.Engine, runs RunStore, log *logger.Logger) *BacktestHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &BacktestHandler{
		engine: engine,
		runs:   runs,
		risk:   risk.NewEngine(risk.DefaultRiskLimits(), risk.DefaultMonteCarloConfig()),
		logger: log,
	}
}

// BacktestRequest represents a backtest request
type BacktestRequest struct {
	From          string  `json:"from"`              // YYYY-MM-DD
	Days          int     `json:"days"`              // trading days
	To            string  `json:"to"`                // optional, inclusive
	Capital       float64 `json:"capital,omitempty"` // default: strategy initial capital
	IncludeTrades bool    `json:"include_trades"`
	IncludeRisk   bool    `json:"include_risk"` // VaR + Monte Carlo
}

// BacktestResponse is the run summary with its equity curve
type BacktestResponse struct {
	RunID       string                  `json:"run_id"`
	ConfigHash  string                  `json:"config_hash"`
	StartDate   string                  `json:"start_date"`
	EndDate     string                  `json:"end_date"`
	DaysSkipped int                     `json:"days_skipped"`
	Summary     backtest.Summary        `json:"summary"`
	Attribution backtest.Attribution    `json:"attribution"`
	EquityCurve []contracts.EquityPoint `json:"equity_curve"`
	Account     *ledger.Snapshot        `json:"account,omitempty"`
	Trades      []contracts.TradeRecord `json:"trades,omitempty"`
	Risk        *risk.Report            `json:"risk,omitempty"`
	Saved       bool                    `json:"saved"` // resumable with `backtest run --resume`
	Error       string                  `json:"error,omitempty"`
}

// RunBacktest runs a backtest synchronously
// POST /api/backtest
func (h *BacktestHandler) RunBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cfg, msg := req.config()
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"from":    req.From,
		"days":    req.Days,
		"to":      req.To,
		"capital": req.Capital,
	}).Info("Backtest requested")

	result, err := h.engine.Run(r.Context(), cfg)
	if result == nil {
		h.logger.WithError(err).Error("Backtest failed")
		respondError(w, http.StatusInternalServerError, "Backtest failed")
		return
	}

	resp := BacktestResponse{
		RunID:       result.RunID,
		ConfigHash:  result.ConfigHash,
		StartDate:   result.StartDate.Format(contracts.DateLayout),
		DaysSkipped: result.DaysSkipped,
		Summary:     result.Summary,
		Attribution: result.Attribution,
		EquityCurve: result.EquityCurve,
	}
	if !result.EndDate.IsZero() {
		resp.EndDate = result.EndDate.Format(contracts.DateLayout)
	}
	if result.State != nil {
		snap := result.State.Account.Snapshot(result.EndDate)
		resp.Account = &snap
	}
	if req.IncludeTrades {
		resp.Trades = result.Trades
	}
	if req.IncludeRisk && err == nil {
		report, rerr := h.risk.Analyze(r.Context(), result.EquityCurve)
		if rerr != nil {
			h.logger.WithError(rerr).Warn("Risk analysis skipped")
		}
		resp.Risk = report
	}
	resp.Saved = h.saveRun(r.Context(), result.State)

	status := http.StatusOK
	if err != nil {
		// 부분 결과 + 에러
		h.logger.WithError(err).Error("Backtest stopped early")
		resp.Error = err.Error()
		status = http.StatusInternalServerError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
	}
	respondJSON(w, status, resp)
}

// saveRun persists the final state; failures are logged, the result is still returned
func (h *BacktestHandler) saveRun(ctx context.Context, st *backtest.State) bool {
	if h.runs == nil || st == nil {
		return false
	}
	rec, err := repos.RunRecordFrom(st)
	if err == nil {
		err = h.runs.SaveState(ctx, rec)
	}
	if err != nil {
		h.logger.WithRun(st.RunID).WithError(err).Warn("Backtest run not saved")
		return false
	}
	return true
}

func (req BacktestRequest) config() (backtest.Config, string) {
	var cfg backtest.Config

	if req.From == "" {
		return cfg, "'from' is required (YYYY-MM-DD)"
	}
	from, err := contracts.ParseDate(req.From)
	if err != nil {
		return cfg, "Invalid 'from' date format (expected YYYY-MM-DD)"
	}
	cfg.StartDate = from

	if req.To != "" {
		to, err := contracts.ParseDate(req.To)
		if err != nil {
			return cfg, "Invalid 'to' date format (expected YYYY-MM-DD)"
		}
		if to.Before(from) {
			return cfg, "'to' must not be before 'from'"
		}
		if to.Sub(from).Hours()/24 > maxBacktestDays*7/5 {
			return cfg, "Date range too long"
		}
		cfg.EndDate = to
	}

	switch {
	case req.Days < 0 || req.Days > maxBacktestDays:
		return cfg, "'days' must be between 1 and " + strconv.Itoa(maxBacktestDays)
	case req.Days == 0 && req.To == "":
		return cfg, "'days' or 'to' is required"
	}
	cfg.Days = req.Days

	if req.Capital < 0 {
		return cfg, "'capital' must be positive"
	}
	if req.Capital > 0 {
		cfg.Capital = decimal.NewFromFloat(req.Capital)
	}
	return cfg, ""
}

// ListRuns returns recent saved runs
// GET /api/backtest/runs?limit=20
func (h *BacktestHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "Run store not configured")
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}

	type runItem struct {
		RunID      string `json:"run_id"`
		ConfigHash string `json:"config_hash"`
		NextDate   string `json:"next_date"`
		DaysDone   int    `json:"days_done"`
		UpdatedAt  string `json:"updated_at"`
	}
	items := make([]runItem, 0, len(runs))
	for _, rec := range runs {
		items = append(items, runItem{
			RunID:      rec.RunID,
			ConfigHash: rec.ConfigHash,
			NextDate:   rec.NextDate.Format(contracts.DateLayout),
			DaysDone:   rec.DaysDone,
			UpdatedAt:  rec.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  items,
		"count": len(items),
	})
}
