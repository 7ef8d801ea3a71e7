package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/lianban/internal/contracts"
)

// SignalRepository persists daily signals to ladder.signals
// ⭐ SSOT: Signal 데이터 저장/조회는 여기서만
type SignalRepository struct {
	pool *pgxpool.Pool
}

// NewSignalRepository creates a new signal repository
func NewSignalRepository(pool *pgxpool.Pool) *SignalRepository {
	return &SignalRepository{pool: pool}
}

// SaveSignals upserts one day of signals in a single transaction
func (r *SignalRepository) SaveSignals(ctx context.Context, date time.Time, signals []contracts.Signal) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, s := range signals {
		args, err := signalArgs(date, s)
		if err != nil {
			return fmt.Errorf("failed to encode signal %s: %w", s.Code, err)
		}
		batch.Queue(upsertSignalSQL, args...)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save signals for %s: %w", date.Format(contracts.DateLayout), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

const upsertSignalSQL = `
	INSERT INTO ladder.signals (
		trade_date, code, name, action,
		score, fraction, price, stop_loss,
		reason, breakdown
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (trade_date, code) DO UPDATE SET
		name = EXCLUDED.name,
		action = EXCLUDED.action,
		score = EXCLUDED.score,
		fraction = EXCLUDED.fraction,
		price = EXCLUDED.price,
		stop_loss = EXCLUDED.stop_loss,
		reason = EXCLUDED.reason,
		breakdown = EXCLUDED.breakdown
`

// signalArgs flattens a signal into upsert arguments
func signalArgs(date time.Time, s contracts.Signal) ([]any, error) {
	breakdown, err := json.Marshal(s.Breakdown)
	if err != nil {
		return nil, err
	}
	return []any{
		date, s.Code, s.Name, string(s.Action),
		s.Score, s.Fraction, s.Price, s.StopLoss,
		s.Reason, breakdown,
	}, nil
}

// ListSignals returns signals for a date, highest score first.
// An empty action matches all.
func (r *SignalRepository) ListSignals(ctx context.Context, date time.Time, action contracts.Action) ([]contracts.Signal, error) {
	query := `
		SELECT
			trade_date, code, name, action,
			score, fraction, price, stop_loss,
			reason, breakdown
		FROM ladder.signals
		WHERE trade_date = $1
		  AND ($2::text = '' OR action = $2::text)
		ORDER BY score DESC, code
	`

	rows, err := r.pool.Query(ctx, query, date, string(action))
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	signals := make([]contracts.Signal, 0)
	for rows.Next() {
		var (
			s         contracts.Signal
			act       string
			breakdown []byte
		)
		err := rows.Scan(
			&s.Date, &s.Code, &s.Name, &act,
			&s.Score, &s.Fraction, &s.Price, &s.StopLoss,
			&s.Reason, &breakdown,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		s.Action = contracts.Action(act)
		if err := json.Unmarshal(breakdown, &s.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to decode breakdown for %s: %w", s.Code, err)
		}
		signals = append(signals, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return signals, nil
}

// DeleteSignals removes one day (re-run before regenerating)
func (r *SignalRepository) DeleteSignals(ctx context.Context, date time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM ladder.signals WHERE trade_date = $1`, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete signals: %w", err)
	}
	return tag.RowsAffected(), nil
}
