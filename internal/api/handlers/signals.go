package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/feed"
	"github.com/wonny/lianban/internal/signal"
	"github.com/wonny/lianban/internal/strategyconfig"
	"github.com/wonny/lianban/pkg/logger"
)

// SignalStore reads persisted daily signals
type SignalStore interface {
	ListSignals(ctx context.Context, date time.Time, action contracts.Action) ([]contracts.Signal, error)
}

// SignalHandler handles signal API endpoints
// ⭐ SSOT: 신호 API 핸들러는 이 구조체에서만
type SignalHandler struct {
	source    contracts.BatchSource
	generator *signal.Generator
	cfg       *strategyconfig.Config
	store     SignalStore // nil: DB 미사용
	logger    *logger.Logger
}

// NewSignalHandler creates a new signal handler. store may be nil.
func NewSignalHandler(source contracts.BatchSource, generator *signal.Generator, cfg *strategyconfig.Config, store SignalStore, log *logger.Logger) *SignalHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SignalHandler{
		source:    source,
		generator: generator,
		cfg:       cfg,
		store:     store,
		logger:    log,
	}
}

// SignalsResponse is one day of signals with market context
type SignalsResponse struct {
	Date      string                     `json:"date"`
	Sentiment *contracts.MarketSentiment `json:"sentiment,omitempty"`
	Mood      string                     `json:"mood,omitempty"`
	Ladder    []contracts.LadderLevel    `json:"ladder,omitempty"`
	Counts    map[contracts.Action]int   `json:"counts"`
	Signals   []contracts.Signal         `json:"signals"`
}

// GetSignals generates signals for a day with a fresh account
// GET /api/signals?date=YYYY-MM-DD&action=buy
func (h *SignalHandler) GetSignals(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDateParam(w, r, "date")
	if !ok {
		return
	}
	action, ok := parseAction(r.URL.Query().Get("action"))
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid action (valid: buy, hold, skip)")
		return
	}

	batch, err := h.source.Load(r.Context(), date)
	if errors.Is(err, feed.ErrNoData) {
		respondError(w, http.StatusNotFound, "No market data for "+date.Format(contracts.DateLayout))
		return
	}
	if err != nil {
		h.logger.WithDate(date).WithError(err).Error("Failed to load daily batch")
		respondError(w, http.StatusInternalServerError, "Failed to load market data")
		return
	}

	signals := h.generator.Generate(date, batch.Snapshots, nil)

	resp := SignalsResponse{
		Date:      date.Format(contracts.DateLayout),
		Sentiment: batch.Sentiment,
		Ladder:    batch.Ladder(),
		Counts:    contracts.CountByAction(signals),
		Signals:   filterAction(signals, action),
	}
	if batch.Sentiment != nil {
		st := h.cfg.Sentiment
		resp.Mood = batch.Sentiment.Mood(st.Freezing, st.Heating, st.Boiling)
	}

	respondJSON(w, http.StatusOK, resp)
}

// GetStoredSignals returns signals saved by the daily job
// GET /api/signals/stored?date=YYYY-MM-DD&action=buy
func (h *SignalHandler) GetStoredSignals(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "Signal store not configured")
		return
	}
	date, ok := parseDateParam(w, r, "date")
	if !ok {
		return
	}
	action, ok := parseAction(r.URL.Query().Get("action"))
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid action (valid: buy, hold, skip)")
		return
	}

	signals, err := h.store.ListSignals(r.Context(), date, action)
	if err != nil {
		h.logger.WithDate(date).WithError(err).Error("Failed to list stored signals")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve signals")
		return
	}

	respondJSON(w, http.StatusOK, SignalsResponse{
		Date:    date.Format(contracts.DateLayout),
		Counts:  contracts.CountByAction(signals),
		Signals: signals,
	})
}

func filterAction(signals []contracts.Signal, action contracts.Action) []contracts.Signal {
	if action == "" {
		return signals
	}
	out := make([]contracts.Signal, 0, len(signals))
	for _, s := range signals {
		if s.Action == action {
			out = append(out, s)
		}
	}
	return out
}
