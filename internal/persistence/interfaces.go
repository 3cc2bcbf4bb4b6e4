// Package persistence defines the repository-interface boundary the core
// depends on (spec §6): BarRepository and DerivativesProvider/
// CurrentPriceSource are consumed from outside the core; DiagnosticsRepository
// and WeightsStorage are exposed by the core and implemented by a concrete
// backend (see the postgres subpackage).
//
// Grounded on the teacher's internal/persistence/interfaces.go
// (repo-interface-per-entity, aggregate Repository struct, HealthCheck /
// RepositoryHealth).
package persistence

import (
	"context"
	"time"

	"github.com/sawpanic/marketdoctor/internal/domain/bars"
)

// BarRepository is the IN collaborator interface for OHLCV storage (spec §6).
// Implementations must upsert idempotently on (symbol, timeframe, ts) and
// return read timestamps in non-decreasing order.
type BarRepository interface {
	LastN(ctx context.Context, symbol, timeframe string, n int) (bars.Series, error)
	BarsBetween(ctx context.Context, symbol, timeframe string, fromMS, toMS int64) (bars.Series, error)
	LastTimestamp(ctx context.Context, symbol, timeframe string) (*int64, error)
	UpsertBar(ctx context.Context, symbol, timeframe string, bar bars.Bar) error
	UpsertBars(ctx context.Context, symbol, timeframe string, bs bars.Series) error
}

// Derivatives is the best-effort derivatives snapshot a provider returns;
// any field may be absent (nil) per spec §6.
type Derivatives struct {
	FundingRate *float64
	OpenInterest *float64
	OIChangePct *float64
	CVD          *float64
}

// DerivativesProvider is the optional IN collaborator for funding/OI/CVD
// data. Implementations must never error in normal paths; on failure the
// core degrades to nil and continues (spec §4.13, §7 DependencyUnavailable).
type DerivativesProvider interface {
	GetDerivatives(ctx context.Context, symbol string) (Derivatives, error)
}

// CurrentPriceSource is the optional IN collaborator for a fast spot-price
// lookup. On failure the core falls back to the last 1h close (spec §4.13).
type CurrentPriceSource interface {
	SpotPrice(ctx context.Context, symbolAndQuote string) (*float64, error)
}

// DiagnosticsSnapshot is the persisted, flattened form of a CompactReport
// plus the levels needed for outcome evaluation (spec §3). RiskScore and
// PumpScore extend the canonical column set (spec §6) so the anomaly
// detector's doctor_concerned rule (spec §4.11) has a risk-score history to
// compare against; the spec's schema is silent on persisting these two
// C4 outputs even though C13 explicitly requires delta-over-history on one
// of them.
type DiagnosticsSnapshot struct {
	ID                   int64      `db:"id"`
	Symbol               string     `db:"symbol"`
	Timeframe            string     `db:"timeframe"`
	TimestampMS          int64      `db:"timestamp_ms"`
	AggregatedLong       float64    `db:"aggregated_long"`
	AggregatedShort      float64    `db:"aggregated_short"`
	Direction            string     `db:"direction"`
	Confidence           float64    `db:"confidence"`
	RiskScore            float64    `db:"risk_score"`
	PumpScore            float64    `db:"pump_score"`
	PerTFScoresJSON      string     `db:"per_tf_scores_json"`
	Phase                string     `db:"phase"`
	Trend                string     `db:"trend"`
	Volatility           string     `db:"volatility"`
	Liquidity            string     `db:"liquidity"`
	NearestSupport       *float64   `db:"nearest_support"`
	NearestResistance    *float64   `db:"nearest_resistance"`
	DistanceToSupport    *float64   `db:"distance_to_support"`
	DistanceToResistance *float64   `db:"distance_to_resistance"`
	HasUnfilledImbalance bool       `db:"has_unfilled_imbalance"`
	ImbalanceDistance    *float64   `db:"imbalance_distance"`
	Bias                 *string    `db:"bias"`
	PositionR            *float64   `db:"position_r"`
	BullishTriggerLevel  *float64   `db:"bullish_trigger_level"`
	BearishTriggerLevel  *float64   `db:"bearish_trigger_level"`
	InvalidationLevel    *float64   `db:"invalidation_level"`
	SetupType            *string    `db:"setup_type"`
	SetupDescription     *string    `db:"setup_description"`
	CurrentPrice         *float64   `db:"current_price"`
	CreatedAt            time.Time  `db:"created_at"`
}

// DiagnosticsOutcome is one horizon's realized-R-multiple row for a
// snapshot (spec §3 / §4.9).
type DiagnosticsOutcome struct {
	ID             int64    `db:"id"`
	SnapshotID     int64    `db:"snapshot_id"`
	HorizonBars    int      `db:"horizon_bars"`
	HorizonHours   float64  `db:"horizon_hours"`
	MaxRUp         *float64 `db:"max_r_up"`
	MaxRDown       *float64 `db:"max_r_down"`
	HitTP          bool     `db:"hit_tp"`
	HitSL          bool     `db:"hit_sl"`
	RAtHorizon     *float64 `db:"r_at_horizon"`
	EntryPrice     *float64 `db:"entry_price"`
	PriceAtHorizon *float64 `db:"price_at_horizon"`
	HighestPrice   *float64 `db:"highest_price"`
	LowestPrice    *float64 `db:"lowest_price"`
}

// SnapshotFilter narrows a DiagnosticsRepository.GetSnapshots query.
type SnapshotFilter struct {
	Symbol    string
	Timeframe string
	FromMS    *int64
	ToMS      *int64
	Limit     int
}

// DiagnosticsRepository is the OUT collaborator interface (spec §6) that the
// core both exposes and consumes for the snapshot/outcome loop.
type DiagnosticsRepository interface {
	LogSnapshot(ctx context.Context, snap DiagnosticsSnapshot) (int64, error)
	LogOutcome(ctx context.Context, outcome DiagnosticsOutcome) error
	GetSnapshots(ctx context.Context, filter SnapshotFilter) ([]DiagnosticsSnapshot, error)
	GetOutcomesForSnapshot(ctx context.Context, snapshotID int64) ([]DiagnosticsOutcome, error)
	GetUnevaluatedSnapshots(ctx context.Context, horizonBars int, horizonHours float64, olderThanMS int64, limit int) ([]DiagnosticsSnapshot, error)
}

// WeightsConfiguration is a named, versioned group-weight vector (spec §4.10).
type WeightsConfiguration struct {
	Name        string
	Weights     map[string]float64
	Description string
	CreatedAtMS int64
	IsActive    bool
}

// WeightsStorage is the OUT collaborator interface for C12's weight
// configurations (spec §6). At most one configuration is active; activating
// a new one must invalidate the score cache (spec §4.6/§4.10/§4.12).
type WeightsStorage interface {
	SaveWeights(ctx context.Context, cfg WeightsConfiguration, setActive bool) error
	LoadWeights(ctx context.Context, name string) (*WeightsConfiguration, error)
	ListConfigurations(ctx context.Context) ([]WeightsConfiguration, error)
	SetActive(ctx context.Context, name string) (bool, error)
	GetActiveWeights(ctx context.Context) (*WeightsConfiguration, error)
}

// Repository aggregates every persistence interface the core depends on,
// mirroring the teacher's aggregate Repository struct.
type Repository struct {
	Bars        BarRepository
	Diagnostics DiagnosticsRepository
	Weights     WeightsStorage
}

// HealthCheck reports repository health, mirroring the teacher's shape.
type HealthCheck struct {
	Healthy        bool
	Errors         []string
	ConnectionPool map[string]int
	LastCheck      time.Time
	ResponseTimeMS int64
}

// RepositoryHealth is implemented by backends that support a liveness probe.
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}
