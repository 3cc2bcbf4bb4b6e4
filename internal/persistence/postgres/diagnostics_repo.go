package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/marketdoctor/internal/persistence"
)

// diagnosticsRepo implements persistence.DiagnosticsRepository over the
// diagnostics_snapshots / diagnostics_outcomes tables (spec §6 canonical
// schema), grounded on the teacher's regime_repo.go ON CONFLICT upsert and
// context-timeout-per-call style.
type diagnosticsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewDiagnosticsRepo builds a PostgreSQL-backed DiagnosticsRepository.
func NewDiagnosticsRepo(db *sqlx.DB, timeout time.Duration) persistence.DiagnosticsRepository {
	return &diagnosticsRepo{db: db, timeout: timeout}
}

func (r *diagnosticsRepo) LogSnapshot(ctx context.Context, snap persistence.DiagnosticsSnapshot) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO diagnostics_snapshots (
			symbol, timeframe, timestamp_ms, aggregated_long, aggregated_short,
			direction, confidence, risk_score, pump_score, per_tf_scores_json, phase, trend, volatility,
			liquidity, nearest_support, nearest_resistance, distance_to_support,
			distance_to_resistance, has_unfilled_imbalance, imbalance_distance,
			bias, position_r, bullish_trigger_level, bearish_trigger_level,
			invalidation_level, setup_type, setup_description, current_price
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28
		)
		ON CONFLICT (symbol, timeframe, timestamp_ms) DO UPDATE SET
			aggregated_long = EXCLUDED.aggregated_long,
			aggregated_short = EXCLUDED.aggregated_short,
			direction = EXCLUDED.direction,
			confidence = EXCLUDED.confidence,
			risk_score = EXCLUDED.risk_score,
			pump_score = EXCLUDED.pump_score,
			per_tf_scores_json = EXCLUDED.per_tf_scores_json,
			phase = EXCLUDED.phase,
			trend = EXCLUDED.trend,
			volatility = EXCLUDED.volatility,
			liquidity = EXCLUDED.liquidity,
			nearest_support = EXCLUDED.nearest_support,
			nearest_resistance = EXCLUDED.nearest_resistance,
			distance_to_support = EXCLUDED.distance_to_support,
			distance_to_resistance = EXCLUDED.distance_to_resistance,
			has_unfilled_imbalance = EXCLUDED.has_unfilled_imbalance,
			imbalance_distance = EXCLUDED.imbalance_distance,
			bias = EXCLUDED.bias,
			position_r = EXCLUDED.position_r,
			bullish_trigger_level = EXCLUDED.bullish_trigger_level,
			bearish_trigger_level = EXCLUDED.bearish_trigger_level,
			invalidation_level = EXCLUDED.invalidation_level,
			setup_type = EXCLUDED.setup_type,
			setup_description = EXCLUDED.setup_description,
			current_price = EXCLUDED.current_price
		RETURNING id`

	var id int64
	err := r.db.QueryRowxContext(ctx, query,
		snap.Symbol, snap.Timeframe, snap.TimestampMS, snap.AggregatedLong, snap.AggregatedShort,
		snap.Direction, snap.Confidence, snap.RiskScore, snap.PumpScore, snap.PerTFScoresJSON, snap.Phase, snap.Trend, snap.Volatility,
		snap.Liquidity, snap.NearestSupport, snap.NearestResistance, snap.DistanceToSupport,
		snap.DistanceToResistance, snap.HasUnfilledImbalance, snap.ImbalanceDistance,
		snap.Bias, snap.PositionR, snap.BullishTriggerLevel, snap.BearishTriggerLevel,
		snap.InvalidationLevel, snap.SetupType, snap.SetupDescription, snap.CurrentPrice,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("diagnostics: failed to log snapshot for %s/%s@%d: %w", snap.Symbol, snap.Timeframe, snap.TimestampMS, err)
	}
	return id, nil
}

func (r *diagnosticsRepo) LogOutcome(ctx context.Context, o persistence.DiagnosticsOutcome) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO diagnostics_outcomes (
			snapshot_id, horizon_bars, horizon_hours, max_r_up, max_r_down,
			hit_tp, hit_sl, r_at_horizon, entry_price, price_at_horizon,
			highest_price, lowest_price
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (snapshot_id, horizon_bars, horizon_hours) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		o.SnapshotID, o.HorizonBars, o.HorizonHours, o.MaxRUp, o.MaxRDown,
		o.HitTP, o.HitSL, o.RAtHorizon, o.EntryPrice, o.PriceAtHorizon,
		o.HighestPrice, o.LowestPrice,
	)
	if err != nil {
		return fmt.Errorf("diagnostics: failed to log outcome for snapshot %d horizon %d/%.1fh: %w", o.SnapshotID, o.HorizonBars, o.HorizonHours, err)
	}
	return nil
}

func (r *diagnosticsRepo) GetSnapshots(ctx context.Context, filter persistence.SnapshotFilter) ([]persistence.DiagnosticsSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT * FROM diagnostics_snapshots WHERE 1=1`
	var args []interface{}
	idx := 1
	if filter.Symbol != "" {
		query += fmt.Sprintf(" AND symbol = $%d", idx)
		args = append(args, filter.Symbol)
		idx++
	}
	if filter.Timeframe != "" {
		query += fmt.Sprintf(" AND timeframe = $%d", idx)
		args = append(args, filter.Timeframe)
		idx++
	}
	if filter.FromMS != nil {
		query += fmt.Sprintf(" AND timestamp_ms >= $%d", idx)
		args = append(args, *filter.FromMS)
		idx++
	}
	if filter.ToMS != nil {
		query += fmt.Sprintf(" AND timestamp_ms <= $%d", idx)
		args = append(args, *filter.ToMS)
		idx++
	}
	query += " ORDER BY timestamp_ms DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, filter.Limit)
	}

	var snaps []persistence.DiagnosticsSnapshot
	if err := r.db.SelectContext(ctx, &snaps, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("diagnostics: failed to query snapshots: %w", err)
	}
	return snaps, nil
}

func (r *diagnosticsRepo) GetOutcomesForSnapshot(ctx context.Context, snapshotID int64) ([]persistence.DiagnosticsOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `SELECT * FROM diagnostics_outcomes WHERE snapshot_id = $1 ORDER BY horizon_bars ASC`
	var outcomes []persistence.DiagnosticsOutcome
	if err := r.db.SelectContext(ctx, &outcomes, query, snapshotID); err != nil {
		return nil, fmt.Errorf("diagnostics: failed to query outcomes for snapshot %d: %w", snapshotID, err)
	}
	return outcomes, nil
}

// GetUnevaluatedSnapshots returns snapshots older than olderThanMS (so their
// horizon has had time to elapse) that do not yet have an outcome row for
// (horizon_bars, horizon_hours), per spec §4.9/§4.12 — the outcome evaluator
// drives its work queue from this query.
func (r *diagnosticsRepo) GetUnevaluatedSnapshots(ctx context.Context, horizonBars int, horizonHours float64, olderThanMS int64, limit int) ([]persistence.DiagnosticsSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT s.* FROM diagnostics_snapshots s
		WHERE s.timestamp_ms <= $1
		AND NOT EXISTS (
			SELECT 1 FROM diagnostics_outcomes o
			WHERE o.snapshot_id = s.id AND o.horizon_bars = $2 AND o.horizon_hours = $3
		)
		ORDER BY s.timestamp_ms ASC
		LIMIT $4`

	var snaps []persistence.DiagnosticsSnapshot
	if err := r.db.SelectContext(ctx, &snaps, query, olderThanMS, horizonBars, horizonHours, limit); err != nil {
		return nil, fmt.Errorf("diagnostics: failed to query unevaluated snapshots: %w", err)
	}
	return snaps, nil
}
