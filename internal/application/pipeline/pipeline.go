// Package pipeline wires C1 IndicatorCalculator through C10 DiagnosticsLogger
// (plus the C13 AnomalyDetector advisory pass) into one ordered run for a
// single (symbol, target_tf), per spec §5's "one (symbol, target_tf) pass is
// the unit of work" framing.
//
// Grounded on the teacher's internal/application/pipeline/executor.go
// (sequential stage execution with a StepTimer per stage, one aggregate
// error return that aborts the remaining stages) generalized from the
// teacher's universe->data->guards->factors->score->gates chain to this
// engine's indicators->features->structure->diagnostics->momentum->
// scoring->aggregate->tradeplan->report->persist chain.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sawpanic/marketdoctor/internal/cache"
	"github.com/sawpanic/marketdoctor/internal/config"
	"github.com/sawpanic/marketdoctor/internal/domain/aggregate"
	"github.com/sawpanic/marketdoctor/internal/domain/anomaly"
	"github.com/sawpanic/marketdoctor/internal/domain/bars"
	"github.com/sawpanic/marketdoctor/internal/domain/diagnostics"
	"github.com/sawpanic/marketdoctor/internal/domain/features"
	"github.com/sawpanic/marketdoctor/internal/domain/indicators"
	"github.com/sawpanic/marketdoctor/internal/domain/momentum"
	"github.com/sawpanic/marketdoctor/internal/domain/report"
	"github.com/sawpanic/marketdoctor/internal/domain/scoring"
	"github.com/sawpanic/marketdoctor/internal/domain/structure"
	"github.com/sawpanic/marketdoctor/internal/domain/tradeplan"
	applog "github.com/sawpanic/marketdoctor/internal/log"
	"github.com/sawpanic/marketdoctor/internal/persistence"
	"github.com/sawpanic/marketdoctor/internal/telemetry"
)

// Steps names every stage a pass logs timing for, in execution order.
var Steps = []string{
	"fetch_bars", "indicators", "features", "structure", "diagnostics",
	"momentum", "scoring", "aggregate", "tradeplan", "report", "anomaly", "persist",
}

// Pipeline holds every collaborator a single analytical pass needs. One
// Pipeline is shared across all (symbol, target_tf) passes; it carries no
// per-pass mutable state.
type Pipeline struct {
	cfg     *config.Config
	bars    persistence.BarRepository
	diag    persistence.DiagnosticsRepository
	deriv   persistence.DerivativesProvider // optional, may be nil
	price   persistence.CurrentPriceSource  // optional, may be nil
	cache   *cache.ScoreCache
	engine  *scoring.Engine
	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

// New builds a Pipeline. deriv and price may be nil; their absence degrades
// the pass to derivatives-less, last-close-price behavior per spec §4.13.
// The scoring engine loads WeightsStorage's active configuration now (spec
// §4.6 "loaded from WeightsStorage.active at construction"); repo.Weights
// may itself be nil, in which case scoring runs on cfg.GroupWeights alone.
func New(ctx context.Context, cfg *config.Config, repo persistence.Repository, deriv persistence.DerivativesProvider, price persistence.CurrentPriceSource, scoreCache *cache.ScoreCache, metrics *telemetry.Metrics, logger zerolog.Logger) (*Pipeline, error) {
	engine, err := scoring.NewEngine(ctx, cfg, scoreCache, repo.Weights)
	if err != nil {
		return nil, fmt.Errorf("pipeline: failed to construct scoring engine: %w", err)
	}
	return &Pipeline{
		cfg:     cfg,
		bars:    repo.Bars,
		diag:    repo.Diagnostics,
		deriv:   deriv,
		price:   price,
		cache:   scoreCache,
		engine:  engine,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// ReloadWeights re-reads WeightsStorage's active configuration into the live
// scoring engine, clearing the score cache if it changed (spec §4.6/§4.10/
// §4.12). A no-op if the pipeline was built without a WeightsStorage or the
// active configuration hasn't changed since the last load. Safe to call
// concurrently with Run — the scheduler calls this at the start of every
// pass round so a `marketdoctor weights activate` from another process is
// picked up without restarting the daemon.
func (p *Pipeline) ReloadWeights(ctx context.Context) (bool, error) {
	return p.engine.ReloadActiveWeights(ctx)
}

// Result is the output of one successful pass: the report consumers read,
// plus any anomaly alerts raised alongside it.
type Result struct {
	Report  report.CompactReport
	Alerts  []anomaly.Alert
	Skipped []string // contributing timeframes for which no bars were returned
}

// Run executes one (symbol, targetTF) analytical pass: fetch bars for every
// timeframe the target depends on, compute C1-C9 for each, aggregate, plan,
// build the report, check for anomalies against snapshot history, and
// persist the snapshot (spec §5, §4.13).
func (p *Pipeline) Run(ctx context.Context, symbol, targetTF string) (*Result, error) {
	logger := p.logger.With().Str("symbol", symbol).Str("target_tf", targetTF).Logger()
	sl := applog.NewStepLogger(logger, Steps)
	timer := p.metrics.StartPass()

	row, ok := p.cfg.TargetTF[targetTF]
	if !ok {
		timer.Stop("error")
		return nil, fmt.Errorf("pipeline: no target-timeframe weight row configured for %q", targetTF)
	}

	derivSnap := p.fetchDerivatives(ctx, symbol, &logger)

	perTF := make(map[string]scoring.TimeframeScore, len(row))
	perTFDiag := make(map[string]diagnostics.Diagnostics, len(row))
	perTFStruc := make(map[string]structure.Analysis, len(row))
	perTFInd := make(map[string]indicators.Set, len(row))
	perTFSeries := make(map[string]bars.Series, len(row))
	perTFInsight := make(map[string]*momentum.Insight, len(row))
	var skipped []string

	for _, tf := range aggregate.OrderedTimeframes(row) {
		sl.StartStep("fetch_bars")
		series, err := p.bars.LastN(ctx, symbol, tf, p.cfg.MinFullBars)
		if err != nil {
			timer.Stop("error")
			return nil, fmt.Errorf("pipeline: failed to fetch %s/%s bars: %w", symbol, tf, err)
		}
		if len(series) == 0 {
			// Per spec §4.13, a missing contributing timeframe skips that
			// timeframe rather than aborting the whole pass.
			skipped = append(skipped, tf)
			continue
		}

		sl.StartStep("indicators")
		ind := indicators.Compute(series)

		sl.StartStep("features")
		feat := features.Extract(series, ind, derivSnap, p.cfg)

		sl.StartStep("structure")
		struc := structure.Analyze(series)

		sl.StartStep("diagnostics")
		profile := p.cfg.ProfileFor(symbol)
		diag := diagnostics.Analyze(symbol, tf, series, ind, feat, struc, derivSnap, p.cfg, profile)

		sl.StartStep("momentum")
		insight := momentum.Analyse(diag, ind, feat, derivSnap)

		sl.StartStep("scoring")
		barTimestamp := time.UnixMilli(series[len(series)-1].TimestampMS)
		score, err := p.engine.Score(scoring.ScoreContext{
			Symbol: symbol, Timeframe: tf, Series: series,
			Indicators: ind, Features: feat, Deriv: derivSnap, Diag: diag, Momentum: insight,
		}, barTimestamp)
		if err != nil {
			timer.Stop("error")
			sl.Fail(err)
			return nil, fmt.Errorf("pipeline: scoring failed for %s/%s: %w", symbol, tf, err)
		}

		perTF[tf] = *score
		perTFDiag[tf] = diag
		perTFStruc[tf] = struc
		perTFInd[tf] = ind
		perTFSeries[tf] = series
		perTFInsight[tf] = insight
	}

	targetDiag, ok := perTFDiag[targetTF]
	if !ok {
		timer.Stop("skipped")
		return &Result{Skipped: skipped}, nil
	}
	targetInsight := perTFInsight[targetTF]

	sl.StartStep("aggregate")
	multiTF, err := aggregate.Aggregate(perTF, targetTF, targetInsight, p.cfg)
	if err != nil {
		timer.Stop("error")
		sl.Fail(err)
		return nil, fmt.Errorf("pipeline: aggregation failed for %s/%s: %w", symbol, targetTF, err)
	}

	sl.StartStep("tradeplan")
	globalRegime := tradeplan.RegimeNeutral
	plan := tradeplan.Plan(targetDiag, perTFStruc[targetTF], perTFInd[targetTF], perTFSeries[targetTF].Closes(), globalRegime, targetInsight, p.cfg.ProfileFor(symbol))

	sl.StartStep("report")
	barTimestamp := time.UnixMilli(perTFSeries[targetTF][len(perTFSeries[targetTF])-1].TimestampMS)
	compact := report.Build(symbol, targetTF, barTimestamp, targetDiag, multiTF, plan, targetInsight)

	currentPrice := resolveCurrentPrice(ctx, p.price, symbol, perTFSeries[targetTF])

	sl.StartStep("anomaly")
	history, err := p.diag.GetSnapshots(ctx, persistence.SnapshotFilter{Symbol: symbol, Timeframe: targetTF, Limit: anomaly.MaxHistory})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load snapshot history for anomaly detection; continuing without it")
		history = nil
	}
	alerts := anomaly.Detect(targetDiag, derivSnap, currentPrice, history)
	for _, a := range alerts {
		p.metrics.AnomalyAlerts.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	}

	sl.StartStep("persist")
	snap, err := toSnapshot(symbol, targetTF, barTimestamp, targetDiag, multiTF, plan, targetInsight, compact, currentPrice)
	if err != nil {
		timer.Stop("error")
		sl.Fail(err)
		return nil, fmt.Errorf("pipeline: failed to build snapshot for %s/%s: %w", symbol, targetTF, err)
	}
	if _, err := p.diag.LogSnapshot(ctx, snap); err != nil {
		timer.Stop("error")
		sl.Fail(err)
		return nil, fmt.Errorf("pipeline: failed to persist snapshot for %s/%s: %w", symbol, targetTF, err)
	}

	sl.Finish()
	timer.Stop("success")
	cacheStats := p.cache.Stats()
	p.metrics.RecordCacheStats(cacheStats.Hits, cacheStats.Misses, cacheStats.HitRatio)

	return &Result{Report: compact, Alerts: alerts, Skipped: skipped}, nil
}

// fetchDerivatives pulls the best-effort derivatives snapshot for symbol,
// degrading to nil (no derivatives) on any provider error or absence, per
// spec §4.13 DependencyUnavailable semantics.
func (p *Pipeline) fetchDerivatives(ctx context.Context, symbol string, logger *zerolog.Logger) *features.Derivatives {
	if p.deriv == nil {
		return nil
	}
	d, err := p.deriv.GetDerivatives(ctx, symbol)
	if err != nil {
		logger.Warn().Err(err).Msg("derivatives provider failed; continuing without derivatives")
		return nil
	}
	if d.FundingRate == nil && d.OpenInterest == nil && d.OIChangePct == nil && d.CVD == nil {
		return nil
	}
	out := &features.Derivatives{}
	if d.FundingRate != nil {
		out.FundingRate = *d.FundingRate
	}
	if d.OIChangePct != nil {
		out.OIChangePct = *d.OIChangePct
	}
	if d.CVD != nil {
		out.CVD = *d.CVD
	}
	return out
}

// resolveCurrentPrice prefers a fast spot-price lookup, falling back to the
// target timeframe's last close per spec §4.13.
func resolveCurrentPrice(ctx context.Context, price persistence.CurrentPriceSource, symbol string, series bars.Series) *float64 {
	if price != nil {
		if p, err := price.SpotPrice(ctx, symbol); err == nil && p != nil {
			return p
		}
	}
	if len(series) == 0 {
		return nil
	}
	last := series[len(series)-1].Close
	return &last
}

// toSnapshot flattens one pass's outputs into the persisted row shape (spec
// §6 diagnostics_snapshots, §3 CompactReport).
func toSnapshot(symbol, targetTF string, ts time.Time, diag diagnostics.Diagnostics, multiTF *aggregate.MultiTFScore, plan tradeplan.TradePlan, insight *momentum.Insight, compact report.CompactReport, currentPrice *float64) (persistence.DiagnosticsSnapshot, error) {
	perTFJSON, err := json.Marshal(multiTF.PerTF)
	if err != nil {
		return persistence.DiagnosticsSnapshot{}, fmt.Errorf("failed to marshal per-tf scores: %w", err)
	}

	snap := persistence.DiagnosticsSnapshot{
		Symbol:          symbol,
		Timeframe:       targetTF,
		TimestampMS:     ts.UnixMilli(),
		AggregatedLong:  multiTF.AggregatedLong,
		AggregatedShort: multiTF.AggregatedShort,
		Direction:       string(multiTF.Direction),
		Confidence:      multiTF.Confidence,
		RiskScore:       diag.RiskScore,
		PumpScore:       diag.PumpScore,
		PerTFScoresJSON: string(perTFJSON),
		Phase:           string(diag.Phase),
		Trend:           string(diag.Trend),
		Volatility:      string(diag.Volatility),
		Liquidity:       string(diag.Liquidity),
		PositionR:       ptr(plan.PositionSizeFactor),
		InvalidationLevel: plan.InvalidationLevel,
		CurrentPrice:    currentPrice,
		SetupType:       strPtr(string(compact.SetupType)),
		SetupDescription: strPtr(plan.ScenarioPlaybook),
	}

	if insight != nil {
		snap.Bias = strPtr(string(insight.Bias))
	}

	var currentPx float64
	if currentPrice != nil {
		currentPx = *currentPrice
	}
	if sup := nearestSupportLevel(diag.KeyLevels, currentPx); sup != nil {
		snap.NearestSupport = &sup.Price
		if currentPx > 0 {
			d := (currentPx - sup.Price) / currentPx
			snap.DistanceToSupport = &d
		}
	}
	if res := nearestResistanceLevel(diag.KeyLevels, currentPx); res != nil {
		snap.NearestResistance = &res.Price
		if currentPx > 0 {
			d := (res.Price - currentPx) / currentPx
			snap.DistanceToResistance = &d
		}
	}

	for _, fvg := range diag.SMC.FVGs {
		if !fvg.Filled {
			snap.HasUnfilledImbalance = true
			if currentPx > 0 {
				mid := (fvg.PriceHigh + fvg.PriceLow) / 2
				dist := (mid - currentPx) / currentPx
				snap.ImbalanceDistance = &dist
			}
			break
		}
	}

	switch multiTF.Direction {
	case aggregate.DirectionLong:
		snap.BullishTriggerLevel = plan.AddOnBreakoutLevel
	case aggregate.DirectionShort:
		snap.BearishTriggerLevel = plan.AddOnBreakoutLevel
	}

	return snap, nil
}

// SnapshotIdempotencyKey returns the idempotency key a caller can attach
// alongside a snapshot write, per spec §6's google/uuid-backed log_snapshot
// contract; the (symbol, timeframe, timestamp_ms) triple is itself unique,
// so this is an auxiliary key for outbound event correlation, not the
// database uniqueness constraint.
func SnapshotIdempotencyKey(symbol, timeframe string, timestampMS int64) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s|%s|%d", symbol, timeframe, timestampMS))).String()
}

func ptr(v float64) *float64 { return &v }
func strPtr(s string) *string { return &s }

// nearestSupportLevel and nearestResistanceLevel mirror tradeplan's
// unexported nearestSupport/nearestResistance: closest support below price,
// closest resistance above it.
func nearestSupportLevel(levels []structure.Level, price float64) *structure.Level {
	var best *structure.Level
	for i := range levels {
		l := levels[i]
		if l.Kind != structure.LevelSupport || l.Price >= price {
			continue
		}
		if best == nil || l.Price > best.Price {
			best = &levels[i]
		}
	}
	return best
}

func nearestResistanceLevel(levels []structure.Level, price float64) *structure.Level {
	var best *structure.Level
	for i := range levels {
		l := levels[i]
		if l.Kind != structure.LevelResistance || l.Price <= price {
			continue
		}
		if best == nil || l.Price < best.Price {
			best = &levels[i]
		}
	}
	return best
}
