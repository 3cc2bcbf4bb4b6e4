// Package postgres implements the persistence.* repository interfaces over
// PostgreSQL via sqlx + lib/pq, grounded on the teacher's
// internal/persistence/postgres/regime_repo.go (context-timeout-per-call,
// ON CONFLICT upserts, JSON-column marshal/unmarshal).
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/marketdoctor/internal/domain/bars"
	"github.com/sawpanic/marketdoctor/internal/persistence"
)

// barsRepo implements persistence.BarRepository over a bars(symbol,
// timeframe, ts_ms, o, h, l, c, v) table (spec §6 canonical schema).
type barsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewBarsRepo builds a PostgreSQL-backed BarRepository.
func NewBarsRepo(db *sqlx.DB, timeout time.Duration) persistence.BarRepository {
	return &barsRepo{db: db, timeout: timeout}
}

type barRow struct {
	TsMS   int64           `db:"ts_ms"`
	Open   float64         `db:"o"`
	High   float64         `db:"h"`
	Low    float64         `db:"l"`
	Close  float64         `db:"c"`
	Volume sql.NullFloat64 `db:"v"`
}

func (r barRow) toBar() bars.Bar {
	b := bars.Bar{TimestampMS: r.TsMS, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close}
	if r.Volume.Valid {
		b.Volume = r.Volume.Float64
		b.HasVolume = true
	}
	return b
}

func (r *barsRepo) LastN(ctx context.Context, symbol, timeframe string, n int) (bars.Series, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ts_ms, o, h, l, c, v FROM bars
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY ts_ms DESC
		LIMIT $3`

	var rows []barRow
	if err := r.db.SelectContext(ctx, &rows, query, symbol, timeframe, n); err != nil {
		return nil, fmt.Errorf("bars: failed to fetch last %d for %s/%s: %w", n, symbol, timeframe, err)
	}
	series := make(bars.Series, len(rows))
	for i := range rows {
		series[len(rows)-1-i] = rows[i].toBar()
	}
	return series, nil
}

func (r *barsRepo) BarsBetween(ctx context.Context, symbol, timeframe string, fromMS, toMS int64) (bars.Series, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ts_ms, o, h, l, c, v FROM bars
		WHERE symbol = $1 AND timeframe = $2 AND ts_ms >= $3 AND ts_ms <= $4
		ORDER BY ts_ms ASC`

	var rows []barRow
	if err := r.db.SelectContext(ctx, &rows, query, symbol, timeframe, fromMS, toMS); err != nil {
		return nil, fmt.Errorf("bars: failed to fetch range for %s/%s: %w", symbol, timeframe, err)
	}
	series := make(bars.Series, len(rows))
	for i, row := range rows {
		series[i] = row.toBar()
	}
	return series, nil
}

func (r *barsRepo) LastTimestamp(ctx context.Context, symbol, timeframe string) (*int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var ts sql.NullInt64
	query := `SELECT MAX(ts_ms) FROM bars WHERE symbol = $1 AND timeframe = $2`
	if err := r.db.GetContext(ctx, &ts, query, symbol, timeframe); err != nil {
		return nil, fmt.Errorf("bars: failed to fetch last timestamp for %s/%s: %w", symbol, timeframe, err)
	}
	if !ts.Valid {
		return nil, nil
	}
	v := ts.Int64
	return &v, nil
}

func (r *barsRepo) UpsertBar(ctx context.Context, symbol, timeframe string, bar bars.Bar) error {
	return r.UpsertBars(ctx, symbol, timeframe, bars.Series{bar})
}

func (r *barsRepo) UpsertBars(ctx context.Context, symbol, timeframe string, bs bars.Series) error {
	if len(bs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("bars: failed to begin upsert transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO bars (symbol, timeframe, ts_ms, o, h, l, c, v)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, timeframe, ts_ms) DO UPDATE SET
			o = EXCLUDED.o, h = EXCLUDED.h, l = EXCLUDED.l, c = EXCLUDED.c, v = EXCLUDED.v`

	for _, b := range bs {
		var vol sql.NullFloat64
		if b.HasVolume {
			vol = sql.NullFloat64{Float64: b.Volume, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, query, symbol, timeframe, b.TimestampMS, b.Open, b.High, b.Low, b.Close, vol); err != nil {
			return fmt.Errorf("bars: failed to upsert bar at ts=%d: %w", b.TimestampMS, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bars: failed to commit upsert batch: %w", err)
	}
	return nil
}
