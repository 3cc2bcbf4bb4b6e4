// Package calibration implements C12 CalibrationAnalyzer: retrospectively
// buckets aggregated scores against realized R-multiples, correlates each
// scoring group's raw contribution against outcomes, and recommends weight
// and threshold adjustments, per spec §4.10.
//
// Grounded on the teacher's internal/score/calibration/{harness,collector}.go
// (regime-bucketed sample collection, buffered batch analysis) reconciled
// with original_source calibration_analyzer.py's bucket/correlation/
// threshold-stepping shape, which this package follows more closely since
// the teacher's harness is a live isotonic-regression collector rather than
// a retrospective batch analyzer.
package calibration

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/sawpanic/marketdoctor/internal/config"
	"github.com/sawpanic/marketdoctor/internal/persistence"
)

func weightSetToMap(w config.GroupWeightSet) map[string]float64 {
	return map[string]float64{
		"trend":       w.Trend,
		"momentum":    w.Momentum,
		"volume":      w.Volume,
		"volatility":  w.Volatility,
		"structure":   w.Structure,
		"derivatives": w.Derivatives,
	}
}

// Bucket is a closed score range, per spec §4.10.
type Bucket string

const (
	BucketWeak     Bucket = "weak"
	BucketModerate Bucket = "moderate"
	BucketStrong   Bucket = "strong"
	BucketExtreme  Bucket = "extreme"
)

// classifyBucket maps an aggregated score in [0,10] to its bucket.
func classifyBucket(score float64) Bucket {
	switch {
	case score < 4:
		return BucketWeak
	case score < 6:
		return BucketModerate
	case score < 8:
		return BucketStrong
	default:
		return BucketExtreme
	}
}

// BucketStats is the summary for one (direction, bucket) partition.
type BucketStats struct {
	Direction  string
	Bucket     Bucket
	Count      int
	AvgR       float64
	WinRate    float64
	LossRate   float64
	AvgMaxRUp  float64
	AvgMaxRDown float64
}

// GroupCorrelation is the Pearson correlation between one scoring group's
// raw contribution and realized R, with the recommended weight adjustment.
type GroupCorrelation struct {
	Group             string
	SampleSize        int
	Correlation       float64
	RecommendedWeight *float64 // nil when no adjustment is recommended
}

// ThresholdRecommendation is the canonical "strong" threshold for a
// direction, per spec §4.10's step-up-to-extreme rule.
type ThresholdRecommendation struct {
	Direction       string
	StrongThreshold float64
}

// Report bundles every C12 output for one analysis pass.
type Report struct {
	Buckets      []BucketStats
	Correlations []GroupCorrelation
	Thresholds   []ThresholdRecommendation
}

// sample is one (snapshot, outcome) pair flattened for analysis; a
// snapshot with multiple configured horizons contributes one sample per
// horizon that has resolved.
type sample struct {
	direction     string
	aggregatedScore float64
	rAtHorizon    float64
	maxRUp        float64
	maxRDown      float64
	groupRaw      map[string]float64
}

// Analyzer runs C12 over persisted snapshots and outcomes.
type Analyzer struct {
	diagRepo persistence.DiagnosticsRepository
	cfg      *config.Config
}

// NewAnalyzer builds an Analyzer.
func NewAnalyzer(diagRepo persistence.DiagnosticsRepository, cfg *config.Config) *Analyzer {
	return &Analyzer{diagRepo: diagRepo, cfg: cfg}
}

// Analyze fetches every snapshot matching filter, pairs it with its
// resolved outcomes, and computes the full C12 report.
func (a *Analyzer) Analyze(ctx context.Context, filter persistence.SnapshotFilter) (*Report, error) {
	snaps, err := a.diagRepo.GetSnapshots(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("calibration: failed to fetch snapshots: %w", err)
	}

	var samples []sample
	for _, snap := range snaps {
		outcomes, err := a.diagRepo.GetOutcomesForSnapshot(ctx, snap.ID)
		if err != nil {
			return nil, fmt.Errorf("calibration: failed to fetch outcomes for snapshot %d: %w", snap.ID, err)
		}
		samples = append(samples, samplesFromSnapshot(snap, outcomes)...)
	}

	return BuildReport(samples, a.cfg), nil
}

// samplesFromSnapshot flattens one snapshot's resolved outcomes into
// analysis samples, decoding the per-timeframe group raw scores once.
func samplesFromSnapshot(snap persistence.DiagnosticsSnapshot, outcomes []persistence.DiagnosticsOutcome) []sample {
	groupRaw := decodeGroupRaw(snap)
	score := snap.AggregatedLong
	if snap.Direction == "SHORT" {
		score = snap.AggregatedShort
	}

	var out []sample
	for _, o := range outcomes {
		if o.RAtHorizon == nil {
			continue
		}
		s := sample{
			direction:       snap.Direction,
			aggregatedScore: score,
			rAtHorizon:      *o.RAtHorizon,
			groupRaw:        groupRaw,
		}
		if o.MaxRUp != nil {
			s.maxRUp = *o.MaxRUp
		}
		if o.MaxRDown != nil {
			s.maxRDown = *o.MaxRDown
		}
		out = append(out, s)
	}
	return out
}

// perTFGroupScores mirrors the subset of scoring.TimeframeScore this
// package needs to decode from per_tf_scores_json without importing the
// scoring package (avoids a persistence->domain dependency edge the rest
// of the codebase doesn't otherwise need).
type perTFGroupScores struct {
	GroupScores map[string]struct {
		RawScore float64 `json:"RawScore"`
	} `json:"GroupScores"`
}

func decodeGroupRaw(snap persistence.DiagnosticsSnapshot) map[string]float64 {
	if snap.PerTFScoresJSON == "" {
		return nil
	}
	var perTF map[string]perTFGroupScores
	if err := json.Unmarshal([]byte(snap.PerTFScoresJSON), &perTF); err != nil {
		return nil
	}
	tfScore, ok := perTF[snap.Timeframe]
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(tfScore.GroupScores))
	for group, gs := range tfScore.GroupScores {
		out[group] = gs.RawScore
	}
	return out
}

// BuildReport computes bucket stats, group correlations, and threshold
// recommendations over a flat sample set. Exported for direct testing
// without a persistence.DiagnosticsRepository. Current group weights are
// read from the DEFAULT regime row (spec §4.10 does not name a regime to
// use as the correlation-adjustment baseline; DEFAULT is the canonical
// fallback row the ScoringEngine itself uses when no regime is active).
func BuildReport(samples []sample, cfg *config.Config) *Report {
	calib := cfg.Calibration
	minBucket := calib.MinBucketSamples
	if minBucket == 0 {
		minBucket = 10
	}
	minCorr := calib.MinCorrelationSamples
	if minCorr == 0 {
		minCorr = 10
	}

	report := &Report{}
	report.Buckets = bucketStats(samples, minBucket)
	report.Correlations = groupCorrelations(samples, calib, cfg.GroupWeights["DEFAULT"], minCorr)
	report.Thresholds = thresholdRecommendations(report.Buckets, calib)
	return report
}

func bucketStats(samples []sample, minSamples int) []BucketStats {
	type accum struct {
		count, wins, losses       int
		sumR, sumMaxUp, sumMaxDown float64
	}
	groups := map[string]*accum{}
	for _, s := range samples {
		key := s.direction + "|" + string(classifyBucket(s.aggregatedScore))
		a, ok := groups[key]
		if !ok {
			a = &accum{}
			groups[key] = a
		}
		a.count++
		a.sumR += s.rAtHorizon
		a.sumMaxUp += s.maxRUp
		a.sumMaxDown += s.maxRDown
		if s.rAtHorizon >= 1 {
			a.wins++
		}
		if s.rAtHorizon <= -1 {
			a.losses++
		}
	}

	var out []BucketStats
	for key, a := range groups {
		if a.count < minSamples {
			continue
		}
		direction, bucket := splitKey(key)
		out = append(out, BucketStats{
			Direction: direction, Bucket: Bucket(bucket),
			Count: a.count, AvgR: a.sumR / float64(a.count),
			WinRate: float64(a.wins) / float64(a.count), LossRate: float64(a.losses) / float64(a.count),
			AvgMaxRUp: a.sumMaxUp / float64(a.count), AvgMaxRDown: a.sumMaxDown / float64(a.count),
		})
	}
	return out
}

func splitKey(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

func groupCorrelations(samples []sample, cfg config.CalibrationConfig, currentWeights config.GroupWeightSet, minSamples int) []GroupCorrelation {
	groupNames := map[string]bool{}
	for _, s := range samples {
		for g := range s.groupRaw {
			groupNames[g] = true
		}
	}

	var out []GroupCorrelation
	for group := range groupNames {
		var xs, ys []float64
		for _, s := range samples {
			raw, ok := s.groupRaw[group]
			if !ok {
				continue
			}
			switch s.direction {
			case "SHORT":
				if raw >= 0 {
					continue
				}
				xs = append(xs, -raw)
			default:
				if raw < 0 {
					continue
				}
				xs = append(xs, raw)
			}
			ys = append(ys, s.rAtHorizon)
		}
		if len(xs) < minSamples {
			continue
		}
		corr := pearson(xs, ys)
		out = append(out, GroupCorrelation{
			Group: group, SampleSize: len(xs), Correlation: corr,
			RecommendedWeight: recommendWeight(corr, currentGroupWeight(group, currentWeights), cfg),
		})
	}
	return out
}

// currentGroupWeight looks up a group's configured weight by name; 0 when
// the group is unknown to the current weight set.
func currentGroupWeight(group string, weights config.GroupWeightSet) float64 {
	switch group {
	case "trend":
		return weights.Trend
	case "momentum":
		return weights.Momentum
	case "volume":
		return weights.Volume
	case "volatility":
		return weights.Volatility
	case "structure":
		return weights.Structure
	case "derivatives":
		return weights.Derivatives
	default:
		return 0
	}
}

// recommendWeight implements spec §4.10's correlation-to-weight-multiplier
// rule: a strong positive correlation scales currentWeight up (capped);
// a negative correlation scales it down (floored).
func recommendWeight(corr float64, currentWeight float64, cfg config.CalibrationConfig) *float64 {
	boostAbove := cfg.CorrelationBoostAbove
	penaltyBelow := cfg.CorrelationPenaltyBelow
	boostFactor := cfg.WeightBoostFactor
	penaltyFactor := cfg.WeightPenaltyFactor
	weightCap := cfg.WeightCap
	weightFloor := cfg.WeightFloor
	if boostAbove == 0 && penaltyBelow == 0 {
		boostAbove, penaltyBelow, boostFactor, penaltyFactor, weightCap, weightFloor = 0.3, -0.1, 1.2, 0.8, 0.35, 0.05
	}

	switch {
	case corr > boostAbove:
		w := math.Min(weightCap, currentWeight*boostFactor)
		return &w
	case corr < penaltyBelow:
		w := math.Max(weightFloor, currentWeight*penaltyFactor)
		return &w
	default:
		return nil
	}
}

// thresholdRecommendations implements spec §4.10's per-direction threshold
// calibration: the strong bucket's win rate decides whether the canonical
// "strong" cutoff stays at 6.0 or steps up to the extreme cutoff.
func thresholdRecommendations(buckets []BucketStats, cfg config.CalibrationConfig) []ThresholdRecommendation {
	winRateThreshold := cfg.StrongWinRateThreshold
	strongThreshold := cfg.StrongThreshold
	extremeThreshold := cfg.ExtremeThreshold
	if winRateThreshold == 0 {
		winRateThreshold, strongThreshold, extremeThreshold = 0.6, 6.0, 7.5
	}

	var out []ThresholdRecommendation
	for _, b := range buckets {
		if b.Bucket != BucketStrong {
			continue
		}
		threshold := extremeThreshold
		if b.WinRate >= winRateThreshold {
			threshold = strongThreshold
		}
		out = append(out, ThresholdRecommendation{Direction: b.Direction, StrongThreshold: threshold})
	}
	return out
}

// pearson computes the Pearson correlation coefficient; returns 0 when
// either series has zero variance.
func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n == 0 {
		return 0
	}
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

// RecommendedWeights merges a Report's group correlation recommendations
// onto the current DEFAULT weight set, leaving every group the report did
// not recommend adjusting at its current value. Spec §4.10 names no regime
// to adjust other than the DEFAULT baseline used for the correlation pass
// itself.
func RecommendedWeights(report *Report, cfg *config.Config) config.GroupWeightSet {
	w := cfg.GroupWeights["DEFAULT"]
	for _, gc := range report.Correlations {
		if gc.RecommendedWeight == nil {
			continue
		}
		switch gc.Group {
		case "trend":
			w.Trend = *gc.RecommendedWeight
		case "momentum":
			w.Momentum = *gc.RecommendedWeight
		case "volume":
			w.Volume = *gc.RecommendedWeight
		case "volatility":
			w.Volatility = *gc.RecommendedWeight
		case "structure":
			w.Structure = *gc.RecommendedWeight
		case "derivatives":
			w.Derivatives = *gc.RecommendedWeight
		}
	}
	return w
}

// PersistRecommendation saves a Report's recommended weight set as a new
// named, INACTIVE WeightsStorage configuration (spec §4.10: "recommended
// group weights, persisted via WeightsStorage"). It deliberately does not
// activate the configuration: §4.12 names activation as its own state
// transition ("exactly one active... activation invalidates caches"), and
// nothing in §4.10 says a retrospective recommendation should unilaterally
// replace the configuration currently driving live scoring. Activation is
// a separate, explicit operation (see cmd/marketdoctor's "weights activate"
// subcommand) so a human reviews a calibration run's recommendation before
// it starts shaping new scores.
func PersistRecommendation(ctx context.Context, store persistence.WeightsStorage, report *Report, cfg *config.Config, name, description string, createdAtMS int64) error {
	weights := RecommendedWeights(report, cfg)
	return store.SaveWeights(ctx, persistence.WeightsConfiguration{
		Name:        name,
		Weights:     weightSetToMap(weights),
		Description: description,
		CreatedAtMS: createdAtMS,
	}, false)
}
