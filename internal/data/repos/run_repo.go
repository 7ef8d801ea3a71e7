package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/lianban/internal/backtest"
)

// ErrRunNotFound is returned when no checkpoint exists for a run ID
var ErrRunNotFound = errors.New("backtest run not found")

// RunRecord is one persisted backtest checkpoint.
// State is the JSON-encoded simulator state.
type RunRecord struct {
	RunID      string
	ConfigHash string
	NextDate   time.Time
	DaysDone   int
	State      []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RunRecordFrom encodes a backtest state as a checkpoint record
func RunRecordFrom(st *backtest.State) (RunRecord, error) {
	data, err := st.Marshal()
	if err != nil {
		return RunRecord{}, err
	}
	return RunRecord{
		RunID:      st.RunID,
		ConfigHash: st.ConfigHash,
		NextDate:   st.NextDate,
		DaysDone:   st.DaysDone,
		State:      data,
	}, nil
}

// RunRepository persists resumable backtest state to ladder.backtest_runs
type RunRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository creates a new run repository
func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

// SaveState upserts the checkpoint for rec.RunID
func (r *RunRepository) SaveState(ctx context.Context, rec RunRecord) error {
	if rec.RunID == "" {
		return fmt.Errorf("save state: empty run id")
	}

	query := `
		INSERT INTO ladder.backtest_runs (
			run_id, config_hash, next_date, days_done, state
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
			config_hash = EXCLUDED.config_hash,
			next_date = EXCLUDED.next_date,
			days_done = EXCLUDED.days_done,
			state = EXCLUDED.state,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, rec.RunID, rec.ConfigHash, rec.NextDate, rec.DaysDone, rec.State)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.RunID, err)
	}
	return nil
}

// LoadState reads the checkpoint for runID
func (r *RunRepository) LoadState(ctx context.Context, runID string) (*RunRecord, error) {
	query := `
		SELECT run_id, config_hash, next_date, days_done, state, created_at, updated_at
		FROM ladder.backtest_runs
		WHERE run_id = $1
	`

	var rec RunRecord
	err := r.pool.QueryRow(ctx, query, runID).Scan(
		&rec.RunID, &rec.ConfigHash, &rec.NextDate, &rec.DaysDone,
		&rec.State, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	return &rec, nil
}

// ListRuns returns the most recently updated checkpoints (state omitted)
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `
		SELECT run_id, config_hash, next_date, days_done, created_at, updated_at
		FROM ladder.backtest_runs
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RunRecord, error) {
		var rec RunRecord
		err := row.Scan(&rec.RunID, &rec.ConfigHash, &rec.NextDate, &rec.DaysDone, &rec.CreatedAt, &rec.UpdatedAt)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan runs: %w", err)
	}
	return runs, nil
}
