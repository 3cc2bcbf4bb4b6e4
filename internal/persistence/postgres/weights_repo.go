package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/marketdoctor/internal/persistence"
)

// weightsRepo implements persistence.WeightsStorage over the
// scoring_weights(id, name UNIQUE, weights_json, description, created_at_ms,
// is_active) table (spec §6), grounded on the teacher's
// internal/domain/regime/weights.go save/load/activate shape reconciled
// with the single-active-row schema from original_source weights_storage.py.
type weightsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewWeightsRepo builds a PostgreSQL-backed WeightsStorage.
func NewWeightsRepo(db *sqlx.DB, timeout time.Duration) persistence.WeightsStorage {
	return &weightsRepo{db: db, timeout: timeout}
}

type weightsRow struct {
	Name        string `db:"name"`
	WeightsJSON []byte `db:"weights_json"`
	Description sql.NullString `db:"description"`
	CreatedAtMS int64  `db:"created_at_ms"`
	IsActive    bool   `db:"is_active"`
}

func (row weightsRow) toConfig() (persistence.WeightsConfiguration, error) {
	var weights map[string]float64
	if err := json.Unmarshal(row.WeightsJSON, &weights); err != nil {
		return persistence.WeightsConfiguration{}, fmt.Errorf("weights: failed to unmarshal weights for %q: %w", row.Name, err)
	}
	return persistence.WeightsConfiguration{
		Name: row.Name, Weights: weights, Description: row.Description.String,
		CreatedAtMS: row.CreatedAtMS, IsActive: row.IsActive,
	}, nil
}

func (r *weightsRepo) SaveWeights(ctx context.Context, cfg persistence.WeightsConfiguration, setActive bool) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	weightsJSON, err := json.Marshal(cfg.Weights)
	if err != nil {
		return fmt.Errorf("weights: failed to marshal weights for %q: %w", cfg.Name, err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("weights: failed to begin save transaction: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO scoring_weights (name, weights_json, description, created_at_ms, is_active)
		VALUES ($1, $2, $3, $4, false)
		ON CONFLICT (name) DO UPDATE SET
			weights_json = EXCLUDED.weights_json, description = EXCLUDED.description`
	if _, err := tx.ExecContext(ctx, upsert, cfg.Name, weightsJSON, cfg.Description, cfg.CreatedAtMS); err != nil {
		return fmt.Errorf("weights: failed to upsert configuration %q: %w", cfg.Name, err)
	}

	if setActive {
		if _, err := tx.ExecContext(ctx, `UPDATE scoring_weights SET is_active = false`); err != nil {
			return fmt.Errorf("weights: failed to clear previous active configuration: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE scoring_weights SET is_active = true WHERE name = $1`, cfg.Name); err != nil {
			return fmt.Errorf("weights: failed to activate %q: %w", cfg.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("weights: failed to commit save of %q: %w", cfg.Name, err)
	}
	return nil
}

func (r *weightsRepo) LoadWeights(ctx context.Context, name string) (*persistence.WeightsConfiguration, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row weightsRow
	err := r.db.GetContext(ctx, &row, `SELECT name, weights_json, description, created_at_ms, is_active FROM scoring_weights WHERE name = $1`, name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("weights: failed to load %q: %w", name, err)
	}
	cfg, err := row.toConfig()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *weightsRepo) ListConfigurations(ctx context.Context) ([]persistence.WeightsConfiguration, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []weightsRow
	err := r.db.SelectContext(ctx, &rows, `SELECT name, weights_json, description, created_at_ms, is_active FROM scoring_weights ORDER BY created_at_ms DESC`)
	if err != nil {
		return nil, fmt.Errorf("weights: failed to list configurations: %w", err)
	}
	out := make([]persistence.WeightsConfiguration, 0, len(rows))
	for _, row := range rows {
		cfg, err := row.toConfig()
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// SetActive atomically swaps the single active configuration (spec §4.10:
// "at most one active"). Callers must invalidate the score cache afterward
// (spec §4.6/§4.12) — this layer only owns persistence, not the cache.
func (r *weightsRepo) SetActive(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("weights: failed to begin activation transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE scoring_weights SET is_active = true WHERE name = $1`, name)
	if err != nil {
		return false, fmt.Errorf("weights: failed to activate %q: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("weights: failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `UPDATE scoring_weights SET is_active = false WHERE name != $1`, name); err != nil {
		return false, fmt.Errorf("weights: failed to deactivate other configurations: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("weights: failed to commit activation of %q: %w", name, err)
	}
	return true, nil
}

func (r *weightsRepo) GetActiveWeights(ctx context.Context) (*persistence.WeightsConfiguration, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row weightsRow
	err := r.db.GetContext(ctx, &row, `SELECT name, weights_json, description, created_at_ms, is_active FROM scoring_weights WHERE is_active = true LIMIT 1`)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("weights: failed to load active configuration: %w", err)
	}
	cfg, err := row.toConfig()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
