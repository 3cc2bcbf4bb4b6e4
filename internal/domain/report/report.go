// Package report implements C9 ReportBuilder: assembles the timestamp-
// invariant, serializable CompactReport from the C4-C8 outputs for one
// (symbol, target timeframe), per spec §4.9 / §3. Rendering to a display
// string is pluggable and deliberately thin — the chat-bot front-end that
// turns this into presentation markup is out of scope (spec §1).
//
// Grounded on the teacher's internal/domain/scoring/composite.go
// GetScoreExplanation (a plain-text renderer over a struct) and
// original_source report_builder.py / setup_type.py for the setup-type
// taxonomy and tl;dr composition.
package report

import (
	"fmt"
	"time"

	"github.com/sawpanic/marketdoctor/internal/domain/aggregate"
	"github.com/sawpanic/marketdoctor/internal/domain/diagnostics"
	"github.com/sawpanic/marketdoctor/internal/domain/momentum"
	"github.com/sawpanic/marketdoctor/internal/domain/scoring"
	"github.com/sawpanic/marketdoctor/internal/domain/structure"
	"github.com/sawpanic/marketdoctor/internal/domain/tradeplan"
)

// SetupType is a closed enumeration describing the dominant trade setup
// shape implied by the current phase/direction/momentum combination.
type SetupType string

const (
	SetupBreakout     SetupType = "BREAKOUT"
	SetupPullback     SetupType = "PULLBACK"
	SetupRange        SetupType = "RANGE"
	SetupReversal     SetupType = "REVERSAL"
	SetupContinuation SetupType = "CONTINUATION"
	SetupNone         SetupType = "NONE"
)

// SMCSummary is the slice of the target timeframe's SMC context carried
// through to the report, trimmed to what a consumer needs without
// re-deriving the full structure.Context.
type SMCSummary struct {
	LastBOS         *structure.StructureEvent
	LastCHOCH       *structure.StructureEvent
	CurrentPosition structure.Position
	HasUnfilledFVG  bool
}

// CompactReport is the canonical serializable snapshot of one analytical
// pass for one (symbol, target_tf), per spec §3.
type CompactReport struct {
	Symbol     string
	TargetTF   string
	Timestamp  time.Time
	Regime     momentum.Regime
	Direction  aggregate.Direction
	ScoreLong  float64
	ScoreShort float64
	Confidence float64
	SetupType  SetupType
	PerTF      map[string]scoring.TimeframeScore
	SMC        SMCSummary
	TradePlan  tradeplan.TradePlan
	TLDR       string
}

// Build assembles a CompactReport from the target timeframe's diagnostics,
// the C7 aggregated score, and the C8 trade plan. timestamp should be the
// target timeframe's bar timestamp that anchored this analytical pass.
func Build(symbol, targetTF string, timestamp time.Time, diag diagnostics.Diagnostics, multiTF *aggregate.MultiTFScore, plan tradeplan.TradePlan, insight *momentum.Insight) CompactReport {
	regime := momentum.RegimeNeutral
	if insight != nil {
		regime = insight.Regime
	}

	smc := SMCSummary{
		LastBOS:         diag.SMC.LastBOS,
		LastCHOCH:       diag.SMC.LastCHOCH,
		CurrentPosition: diag.SMC.CurrentPosition,
	}
	for _, fvg := range diag.SMC.FVGs {
		if !fvg.Filled {
			smc.HasUnfilledFVG = true
			break
		}
	}

	rep := CompactReport{
		Symbol:     symbol,
		TargetTF:   targetTF,
		Timestamp:  timestamp,
		Regime:     regime,
		Direction:  multiTF.Direction,
		ScoreLong:  multiTF.AggregatedLong,
		ScoreShort: multiTF.AggregatedShort,
		Confidence: multiTF.Confidence,
		PerTF:      multiTF.PerTF,
		SMC:        smc,
		TradePlan:  plan,
	}
	rep.SetupType = ClassifySetupType(diag, multiTF, plan)
	rep.TLDR = tlDr(rep, diag)
	return rep
}

// ClassifySetupType derives the SetupType enum from phase + SMC/momentum
// context + trade-plan mode, per SPEC_FULL.md's setup_type.py supplement.
func ClassifySetupType(diag diagnostics.Diagnostics, multiTF *aggregate.MultiTFScore, plan tradeplan.TradePlan) SetupType {
	if plan.SkipTrading {
		return SetupNone
	}
	switch diag.Phase {
	case diagnostics.PhaseAccumulation:
		return SetupPullback
	case diagnostics.PhaseExpansionUp, diagnostics.PhaseExpansionDown:
		switch multiTF.MomentumGrade {
		case aggregate.GradeStrongBullish, aggregate.GradeStrongBearish:
			return SetupContinuation
		default:
			return SetupBreakout
		}
	case diagnostics.PhaseShakeout:
		return SetupReversal
	case diagnostics.PhaseDistribution:
		return SetupRange
	default:
		return SetupNone
	}
}

// tlDr renders a short human summary, the one display-facing piece this
// package owns directly; richer presentation belongs to the out-of-scope
// chat-bot front-end (spec §1).
func tlDr(rep CompactReport, diag diagnostics.Diagnostics) string {
	dir := "leaning long"
	if rep.Direction == aggregate.DirectionShort {
		dir = "leaning short"
	}
	skip := ""
	if rep.TradePlan.SkipTrading {
		skip = " — skip trading: " + rep.TradePlan.SkipReason
	}
	return fmt.Sprintf("%s %s: %s, %s (long %.2f / short %.2f), setup=%s%s",
		rep.Symbol, rep.TargetTF, diag.Phase, dir, rep.ScoreLong, rep.ScoreShort, rep.SetupType, skip)
}

// Render is the plain-text presentation this package owns directly (spec
// §1: rendering to richer display strings is pluggable, owned by the
// chat-bot front-end). It is deliberately minimal — a few lines suitable for
// a CLI or log line, not a dashboard.
func Render(rep CompactReport) string {
	lines := []string{rep.TLDR}
	if rep.TradePlan.LimitBuyZone != nil {
		lines = append(lines, fmt.Sprintf("  limit buy zone: %.4f - %.4f", rep.TradePlan.LimitBuyZone.Low, rep.TradePlan.LimitBuyZone.High))
	}
	if rep.TradePlan.InvalidationLevel != nil {
		lines = append(lines, fmt.Sprintf("  invalidation: %.4f", *rep.TradePlan.InvalidationLevel))
	}
	if rep.TradePlan.AddOnBreakoutLevel != nil {
		lines = append(lines, fmt.Sprintf("  add-on breakout: %.4f", *rep.TradePlan.AddOnBreakoutLevel))
	}
	lines = append(lines, fmt.Sprintf("  position size factor: %.2f, regime: %s, playbook: %s",
		rep.TradePlan.PositionSizeFactor, rep.TradePlan.RegimeInfo, rep.TradePlan.ScenarioPlaybook))
	out := lines[0]
	for _, l := range lines[1:] {
		out += "\n" + l
	}
	return out
}
