// Package aggregate implements C7 Multi-TF Aggregator: combines the
// per-timeframe scores produced by C6 under a target-timeframe-dependent
// weight matrix, yielding an aggregated LONG/SHORT pair, a direction, and a
// confidence derived from cross-timeframe agreement, per spec §4.7.
//
// Grounded on the teacher's internal/domain/regime/weights.go regime->weights
// map pattern, generalized here to a target-tf->contributing-tf matrix
// (spec §9 Design Notes: "target-TF-dependent weight matrix... design
// decision; not hardcoded at call sites").
package aggregate

import (
	"fmt"
	"math"
	"sort"

	"github.com/sawpanic/marketdoctor/internal/config"
	"github.com/sawpanic/marketdoctor/internal/domain/momentum"
	"github.com/sawpanic/marketdoctor/internal/domain/scoring"
)

// Direction is the aggregated directional call.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// MomentumGrade buckets the target-timeframe momentum read into a display
// grade alongside the numeric MultiTFScore, per spec §4.7.
type MomentumGrade string

const (
	GradeStrongBullish MomentumGrade = "STRONG_BULLISH"
	GradeWeakBullish   MomentumGrade = "WEAK_BULLISH"
	GradeNeutral       MomentumGrade = "NEUTRAL"
	GradeWeakBearish   MomentumGrade = "WEAK_BEARISH"
	GradeStrongBearish MomentumGrade = "STRONG_BEARISH"
)

// MultiTFScore is the full C7 output for one (symbol, target timeframe, timestamp).
type MultiTFScore struct {
	TargetTF        string
	PerTF           map[string]scoring.TimeframeScore
	AggregatedLong  float64 // 0..10
	AggregatedShort float64 // 0..10, = 10 - AggregatedLong
	Confidence      float64 // 0..1
	Direction       Direction
	MomentumGrade   MomentumGrade
	MomentumComment string
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

// Aggregate combines perTF scores into a MultiTFScore for targetTF, reading
// the target-tf weight row from cfg.TargetTF. Timeframes absent from perTF
// contribute zero weight share (spec §4.13: per-timeframe failures skip that
// timeframe, never abort the multi-TF pass).
func Aggregate(perTF map[string]scoring.TimeframeScore, targetTF string, insight *momentum.Insight, cfg *config.Config) (*MultiTFScore, error) {
	row, ok := cfg.TargetTF[targetTF]
	if !ok {
		return nil, fmt.Errorf("aggregate: no target-timeframe weight row configured for %q", targetTF)
	}

	var weightedNet, weightSum float64
	for tf, w := range row {
		ts, present := perTF[tf]
		if !present {
			continue
		}
		weightedNet += ts.NetScore * w
		weightSum += w
	}
	if weightSum == 0 {
		return nil, fmt.Errorf("aggregate: none of target %q's contributing timeframes were available", targetTF)
	}
	// spec §4.7: aggregated_net = Σ per_tf[tf].net_score · W[target][tf], taken
	// directly over the available timeframes; a missing timeframe reduces the
	// weighted mass rather than being re-normalized away.
	aggregatedNet := clamp(weightedNet, -2, 2)

	aggregatedLong := clamp(10*(aggregatedNet+2)/4, 0, 10)
	aggregatedShort := 10 - aggregatedLong

	direction := DirectionLong
	if aggregatedShort > aggregatedLong {
		direction = DirectionShort
	}

	confidence := crossTFConfidence(perTF, targetTF, row)

	score := &MultiTFScore{
		TargetTF:        targetTF,
		PerTF:           perTF,
		AggregatedLong:  aggregatedLong,
		AggregatedShort: aggregatedShort,
		Confidence:      confidence,
		Direction:       direction,
	}
	score.MomentumGrade, score.MomentumComment = gradeMomentum(perTF[targetTF], insight)

	if err := Validate(score); err != nil {
		return nil, fmt.Errorf("aggregate: invariant violated for target %s: %w", targetTF, err)
	}
	return score, nil
}

// crossTFConfidence implements spec §4.7: agreement of each contributing
// timeframe's sign against the target timeframe's sign (with a dead-band),
// weighted by the matrix row, folded into confidence = 0.3 + 0.7*agreement.
func crossTFConfidence(perTF map[string]scoring.TimeframeScore, targetTF string, row config.TFWeightSet) float64 {
	target, ok := perTF[targetTF]
	if !ok {
		return 0.3
	}
	targetSign := sign(target.NetScore, 0.2)

	var weightedAgreement, weightSum float64
	for tf, w := range row {
		ts, present := perTF[tf]
		if !present {
			continue
		}
		tfSign := sign(ts.NetScore, 0.2)
		var agreement float64
		switch {
		case tfSign == targetSign:
			agreement = 1.0
		case tfSign == 0 || targetSign == 0:
			agreement = 0.3
		default:
			agreement = 0.0
		}
		weightedAgreement += w * agreement
		weightSum += w
	}
	if weightSum == 0 {
		return 0.3
	}
	confidence := 0.3 + 0.7*(weightedAgreement/weightSum)
	return math.Round(clamp(confidence, 0, 1)*100) / 100
}

func sign(v, deadband float64) int {
	switch {
	case v > deadband:
		return 1
	case v < -deadband:
		return -1
	default:
		return 0
	}
}

// gradeMomentum derives the display momentum grade from the target
// timeframe's momentum group score and the attached C5 insight.
func gradeMomentum(target scoring.TimeframeScore, insight *momentum.Insight) (MomentumGrade, string) {
	momentumRaw := 0.0
	if gs, ok := target.GroupScores[scoring.GroupMomentum]; ok {
		momentumRaw = gs.RawScore
	}

	strong := math.Abs(momentumRaw) > 1.0
	if insight != nil && insight.Strength > 0.7 {
		strong = strong || true
	}

	switch {
	case momentumRaw > 0.3 && strong:
		return GradeStrongBullish, commentFor(insight, "strong bullish momentum across the oscillator ensemble")
	case momentumRaw > 0.1:
		return GradeWeakBullish, commentFor(insight, "mild bullish momentum lean")
	case momentumRaw < -0.3 && strong:
		return GradeStrongBearish, commentFor(insight, "strong bearish momentum across the oscillator ensemble")
	case momentumRaw < -0.1:
		return GradeWeakBearish, commentFor(insight, "mild bearish momentum lean")
	default:
		return GradeNeutral, commentFor(insight, "momentum balanced, no clear edge")
	}
}

func commentFor(insight *momentum.Insight, fallback string) string {
	if insight != nil && insight.Comment != "" {
		return insight.Comment
	}
	return fallback
}

// Validate enforces the C7 output invariants from spec §8: aggregated
// long+short sums to 10 within tolerance and confidence stays in [0,1].
func Validate(score *MultiTFScore) error {
	if score == nil {
		return fmt.Errorf("score cannot be nil")
	}
	sum := score.AggregatedLong + score.AggregatedShort
	if math.Abs(sum-10.0) > 1e-6 {
		return fmt.Errorf("aggregated long+short %.6f != 10", sum)
	}
	if score.Confidence < -1e-9 || score.Confidence > 1+1e-9 {
		return fmt.Errorf("confidence %.4f outside [0,1]", score.Confidence)
	}
	return nil
}

// OrderedTimeframes returns the timeframes present in row, sorted for
// deterministic iteration/rendering (map iteration order is not stable).
func OrderedTimeframes(row config.TFWeightSet) []string {
	tfs := make([]string, 0, len(row))
	for tf := range row {
		tfs = append(tfs, tf)
	}
	sort.Strings(tfs)
	return tfs
}
