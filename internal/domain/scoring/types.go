// Package scoring implements C6 ScoringEngine: six independent indicator-
// group scorers composed by an indexed array rather than a switch (spec §9
// Design Notes), aggregated into a per-timeframe net score and normalized
// LONG/SHORT pair, cached per (symbol, timeframe, bar timestamp) with a
// single-writer-per-key policy, per spec §4.6.
//
// Grounded on the teacher's internal/domain/scoring/composite.go
// (weighted-component struct, ValidateScore invariant checks,
// GetScoreExplanation renderer) and internal/domain/factors/orthogonalization.go
// for the indexed-array-of-scorers shape.
package scoring

import (
	"github.com/sawpanic/marketdoctor/internal/domain/bars"
	"github.com/sawpanic/marketdoctor/internal/domain/diagnostics"
	"github.com/sawpanic/marketdoctor/internal/domain/features"
	"github.com/sawpanic/marketdoctor/internal/domain/indicators"
	"github.com/sawpanic/marketdoctor/internal/domain/momentum"
)

// Group identifies one of the six indicator-group scorers.
type Group string

const (
	GroupTrend       Group = "trend"
	GroupMomentum    Group = "momentum"
	GroupVolume      Group = "volume"
	GroupVolatility  Group = "volatility"
	GroupStructure   Group = "structure"
	GroupDerivatives Group = "derivatives"
)

// GroupScore is the per-group scoring result, clamped to [-2,2].
type GroupScore struct {
	Group    Group
	RawScore float64
	Signals  map[string]interface{}
	Summary  string
}

// ScoreContext bundles every C1-C5 output a group scorer may need. Not every
// scorer reads every field.
type ScoreContext struct {
	Symbol    string
	Timeframe string
	Series    bars.Series
	Indicators indicators.Set
	Features  features.Set
	Deriv     *features.Derivatives
	Diag      diagnostics.Diagnostics
	Momentum  *momentum.Insight
}

// GroupScorer is the capability every indicator-group scorer implements,
// composed by Engine's ordered scorer list instead of a type switch.
type GroupScorer interface {
	Group() Group
	Score(ctx ScoreContext) GroupScore
}

// TimeframeScore is the full C6 output for one (symbol, timeframe, timestamp).
type TimeframeScore struct {
	Timeframe       string
	Regime          momentum.Regime
	Trend           features.TrendState
	GroupScores     map[Group]GroupScore
	NetScore        float64 // -2..2
	NormalizedLong  float64 // 0..10
	NormalizedShort float64 // 0..10, = 10 - NormalizedLong
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
