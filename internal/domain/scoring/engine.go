package scoring

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sawpanic/marketdoctor/internal/cache"
	"github.com/sawpanic/marketdoctor/internal/config"
	"github.com/sawpanic/marketdoctor/internal/domain/momentum"
	"github.com/sawpanic/marketdoctor/internal/persistence"
)

// Engine composes the six GroupScorer implementations into a per-timeframe
// TimeframeScore, reading regime-dependent weights from config (overlaid
// with WeightsStorage's active configuration, spec §4.6 "loaded from
// WeightsStorage.active at construction") and caching results per (symbol,
// timeframe, bar timestamp) with a single-writer-per-key policy (spec §4.6,
// §5).
type Engine struct {
	cfg     *config.Config
	scorers []GroupScorer
	cache   *cache.ScoreCache
	weights persistence.WeightsStorage // optional; nil means config.yaml's weights never change at runtime

	mu           sync.RWMutex
	groupWeights map[string]config.GroupWeightSet
	activeName   string // name of the WeightsStorage configuration currently loaded, "" if none
}

// NewEngine builds an Engine over the default six-scorer array. cache may be
// nil, in which case scoring runs uncached. weights may be nil, in which
// case the engine only ever uses cfg.GroupWeights; otherwise its active
// configuration (if any) is loaded now and overlaid onto the DEFAULT regime
// row (spec §4.6/§4.10 — see DESIGN.md on why DEFAULT is the row a
// WeightsStorage activation targets).
func NewEngine(ctx context.Context, cfg *config.Config, scoreCache *cache.ScoreCache, weights persistence.WeightsStorage) (*Engine, error) {
	e := &Engine{
		cfg: cfg,
		scorers: []GroupScorer{
			TrendScorer{},
			MomentumScorer{},
			VolumeScorer{},
			VolatilityScorer{},
			StructureGroupScorer{},
			DerivativesScorer{},
		},
		cache:        scoreCache,
		weights:      weights,
		groupWeights: cloneGroupWeights(cfg.GroupWeights),
	}
	if _, err := e.applyActiveWeights(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func cloneGroupWeights(src map[string]config.GroupWeightSet) map[string]config.GroupWeightSet {
	out := make(map[string]config.GroupWeightSet, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// ReloadActiveWeights re-reads WeightsStorage's active configuration and, if
// it differs from the one currently loaded, overlays it onto the DEFAULT
// regime row and clears the score cache (spec §4.6 "purged on any change to
// the active weights configuration", §4.10/§4.12 "activation transition
// invalidates every cache entry"). Returns whether the active configuration
// changed. A nil WeightsStorage or an unchanged active configuration is a
// no-op. Safe to call concurrently with Score.
func (e *Engine) ReloadActiveWeights(ctx context.Context) (bool, error) {
	changed, err := e.applyActiveWeights(ctx)
	if err != nil {
		return false, err
	}
	if changed && e.cache != nil {
		e.cache.Clear()
	}
	return changed, nil
}

func (e *Engine) applyActiveWeights(ctx context.Context) (bool, error) {
	if e.weights == nil {
		return false, nil
	}
	active, err := e.weights.GetActiveWeights(ctx)
	if err != nil {
		return false, fmt.Errorf("scoring: failed to load active weights configuration: %w", err)
	}
	if active == nil {
		return false, nil
	}

	e.mu.RLock()
	unchanged := active.Name == e.activeName
	e.mu.RUnlock()
	if unchanged {
		return false, nil
	}

	gw, err := config.GroupWeightSetFromMap(active.Weights)
	if err != nil {
		return false, fmt.Errorf("scoring: active weights configuration %q is invalid: %w", active.Name, err)
	}

	e.mu.Lock()
	e.groupWeights["DEFAULT"] = gw
	e.activeName = active.Name
	e.mu.Unlock()
	return true, nil
}

// Score computes the TimeframeScore for ctx, using barTimestamp as the cache
// key's freshness component. A cache miss (or nil cache) runs all six
// scorers; a hit across concurrent callers for the same key computes once.
func (e *Engine) Score(ctx ScoreContext, barTimestamp time.Time) (*TimeframeScore, error) {
	if e.cache == nil {
		return e.compute(ctx)
	}

	key := fmt.Sprintf("%s|%s|%d", ctx.Symbol, ctx.Timeframe, barTimestamp.Unix())
	v, err := e.cache.GetOrCompute(key, func() (interface{}, error) {
		return e.compute(ctx)
	})
	if err != nil {
		return nil, err
	}
	score, ok := v.(*TimeframeScore)
	if !ok {
		return nil, fmt.Errorf("scoring: cache returned unexpected type %T for key %s", v, key)
	}
	return score, nil
}

func (e *Engine) compute(ctx ScoreContext) (*TimeframeScore, error) {
	regime := momentum.RegimeNeutral
	if ctx.Momentum != nil {
		regime = ctx.Momentum.Regime
	}

	weights := e.weightsForRegime(regime)

	groupScores := make(map[Group]GroupScore, len(e.scorers))
	var net float64
	for _, scorer := range e.scorers {
		gs := scorer.Score(ctx)
		groupScores[gs.Group] = gs
		net += gs.RawScore * e.weightFor(weights, gs.Group)
	}
	net = clamp(net, -2, 2)

	normalizedLong := clamp(10*(net+2)/4, 0, 10)
	normalizedShort := 10 - normalizedLong

	score := &TimeframeScore{
		Timeframe:       ctx.Timeframe,
		Regime:          regime,
		Trend:           ctx.Features.Trend,
		GroupScores:     groupScores,
		NetScore:        net,
		NormalizedLong:  normalizedLong,
		NormalizedShort: normalizedShort,
	}

	if err := ValidateScore(score); err != nil {
		return nil, fmt.Errorf("scoring: invariant violated for %s/%s: %w", ctx.Symbol, ctx.Timeframe, err)
	}
	return score, nil
}

func (e *Engine) weightsForRegime(regime momentum.Regime) config.GroupWeightSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if w, ok := e.groupWeights[string(regime)]; ok {
		return w
	}
	if w, ok := e.groupWeights["DEFAULT"]; ok {
		return w
	}
	return config.GroupWeightSet{Trend: 1.0 / 6, Momentum: 1.0 / 6, Volume: 1.0 / 6, Volatility: 1.0 / 6, Structure: 1.0 / 6, Derivatives: 1.0 / 6}
}

func (e *Engine) weightFor(w config.GroupWeightSet, g Group) float64 {
	switch g {
	case GroupTrend:
		return w.Trend
	case GroupMomentum:
		return w.Momentum
	case GroupVolume:
		return w.Volume
	case GroupVolatility:
		return w.Volatility
	case GroupStructure:
		return w.Structure
	case GroupDerivatives:
		return w.Derivatives
	default:
		return 0
	}
}

// ValidateScore enforces the C6 output invariants from spec §8: every group
// score clamped to [-2,2], the net score clamped to the same band, and the
// normalized long/short pair summing to 10 within tolerance.
func ValidateScore(score *TimeframeScore) error {
	if score == nil {
		return fmt.Errorf("score cannot be nil")
	}
	if math.IsNaN(score.NetScore) || math.IsInf(score.NetScore, 0) {
		return fmt.Errorf("net score is NaN or infinite: %f", score.NetScore)
	}
	if score.NetScore < -2.0001 || score.NetScore > 2.0001 {
		return fmt.Errorf("net score %.4f outside [-2,2]", score.NetScore)
	}
	for group, gs := range score.GroupScores {
		if gs.RawScore < -2.0001 || gs.RawScore > 2.0001 {
			return fmt.Errorf("group %s score %.4f outside [-2,2]", group, gs.RawScore)
		}
	}
	sum := score.NormalizedLong + score.NormalizedShort
	if math.Abs(sum-10.0) > 1e-6 {
		return fmt.Errorf("normalized long+short %.6f != 10", sum)
	}
	return nil
}

// GetScoreExplanation renders a human-readable breakdown of a TimeframeScore,
// one line per group plus the net and normalized pair.
func GetScoreExplanation(score *TimeframeScore) string {
	if score == nil {
		return "No score available"
	}
	out := fmt.Sprintf("Timeframe %s (regime %s): net=%.3f long=%.2f short=%.2f\n",
		score.Timeframe, score.Regime, score.NetScore, score.NormalizedLong, score.NormalizedShort)
	for _, g := range []Group{GroupTrend, GroupMomentum, GroupVolume, GroupVolatility, GroupStructure, GroupDerivatives} {
		if gs, ok := score.GroupScores[g]; ok {
			out += fmt.Sprintf("  %-11s %+.3f  %s\n", g, gs.RawScore, gs.Summary)
		}
	}
	return out
}
