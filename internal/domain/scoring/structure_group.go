package scoring

import (
	"github.com/sawpanic/marketdoctor/internal/domain/diagnostics"
	"github.com/sawpanic/marketdoctor/internal/domain/structure"
)

// StructureGroupScorer implements the structure indicator group (spec
// §4.6): SMC break-of-structure direction, premium/discount position, and
// market phase.
type StructureGroupScorer struct{}

func (StructureGroupScorer) Group() Group { return GroupStructure }

func (StructureGroupScorer) Score(ctx ScoreContext) GroupScore {
	signals := map[string]interface{}{}
	var score float64

	if bos := ctx.Diag.SMC.LastBOS; bos != nil {
		switch bos.Direction {
		case structure.DirectionUp:
			score += 0.8
		case structure.DirectionDown:
			score -= 0.8
		}
		signals["last_bos"] = string(bos.Direction)
	}

	switch ctx.Diag.SMC.CurrentPosition {
	case structure.PositionDiscount:
		score += 0.5
		signals["zone"] = "discount"
	case structure.PositionPremium:
		score -= 0.5
		signals["zone"] = "premium"
	}

	switch ctx.Diag.Phase {
	case diagnostics.PhaseAccumulation, diagnostics.PhaseExpansionUp:
		score += 0.5
	case diagnostics.PhaseDistribution, diagnostics.PhaseExpansionDown:
		score -= 0.5
	}
	signals["phase"] = string(ctx.Diag.Phase)

	raw := clamp(score/2.0, -2, 2)
	summary := "structure neutral"
	switch {
	case raw > 0.3:
		summary = "structure bullish"
	case raw < -0.3:
		summary = "structure bearish"
	}
	return GroupScore{Group: GroupStructure, RawScore: raw, Signals: signals, Summary: summary}
}
