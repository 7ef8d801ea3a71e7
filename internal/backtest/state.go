package backtest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/internal/ledger"
)

// State is everything needed to continue a backtest. Plain data,
// JSON-serializable; no hidden globals.
type State struct {
	RunID       string                  `json:"run_id"`
	ConfigHash  string                  `json:"config_hash"`
	StartDate   time.Time               `json:"start_date"`
	NextDate    time.Time               `json:"next_date"`
	DaysDone    int                     `json:"days_done"`
	DaysSkipped int                     `json:"days_skipped"`
	Account     *ledger.Account         `json:"account"`
	EquityCurve []contracts.EquityPoint `json:"equity_curve"`
	Trades      []contracts.TradeRecord `json:"trades"`
}

// NewState starts a fresh run at start with all capital in cash
func NewState(start time.Time, capital decimal.Decimal, limits ledger.Limits, configHash string) *State {
	return &State{
		RunID:       uuid.NewString(),
		ConfigHash:  configHash,
		StartDate:   start,
		NextDate:    start,
		Account:     ledger.NewAccount(capital, limits),
		EquityCurve: make([]contracts.EquityPoint, 0),
		Trades:      make([]contracts.TradeRecord, 0),
	}
}

// Marshal encodes the state as JSON
func (s *State) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalState decodes a saved state and checks the ledger invariants
func UnmarshalState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if s.Account == nil {
		return nil, fmt.Errorf("%w: state without account", ledger.ErrStateInconsistency)
	}
	if s.Account.Positions == nil {
		s.Account.Positions = make(map[string]*ledger.Position)
	}
	if err := s.Account.CheckInvariants(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LastDate returns the last simulated day (zero if none)
func (s *State) LastDate() time.Time {
	if len(s.EquityCurve) == 0 {
		return time.Time{}
	}
	return s.EquityCurve[len(s.EquityCurve)-1].Date
}
