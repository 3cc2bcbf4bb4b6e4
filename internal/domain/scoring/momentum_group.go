package scoring

import (
	"fmt"

	"github.com/sawpanic/marketdoctor/internal/domain/momentum"
)

// MomentumScorer implements the momentum indicator group (spec §4.6): RSI,
// MACD, StochRSI, WaveTrend, STC votes plus weighted divergence signals,
// then modulated by the C5 MomentumInsight (EXHAUSTION/REVERSAL_RISK/
// CONTINUATION/NEUTRAL) for auditability of the double-dip between C5 and
// C6 (spec §9 Open Question 2).
type MomentumScorer struct{}

func (MomentumScorer) Group() Group { return GroupMomentum }

func (MomentumScorer) Score(ctx ScoreContext) GroupScore {
	signals := map[string]interface{}{}
	var score float64

	if rsi, ok := lastValid(ctx.Indicators.RSI14); ok {
		switch {
		case rsi > 70:
			score += 0.5
			signals["rsi"] = rsi
		case rsi < 30:
			score -= 0.5
			signals["rsi"] = rsi
		}
	}

	if macd, ok := lastValid(ctx.Indicators.MACD); ok {
		if sig, ok2 := lastValid(ctx.Indicators.MACDSignal); ok2 {
			switch {
			case macd > sig:
				score += 0.5
			case macd < sig:
				score -= 0.5
			}
			signals["macd_vs_signal"] = macd - sig
		}
	}

	if k, ok := lastValid(ctx.Indicators.StochK); ok {
		if d, ok2 := lastValid(ctx.Indicators.StochD); ok2 {
			switch {
			case k > d && k > 50:
				score += 0.5
			case k < d && k < 50:
				score -= 0.5
			}
			signals["stoch_rsi"] = fmt.Sprintf("K=%.1f D=%.1f", k, d)
		}
	}

	if wt1, ok := lastValid(ctx.Indicators.WT1); ok {
		if wt2, ok2 := lastValid(ctx.Indicators.WT2); ok2 {
			switch {
			case wt1 > wt2:
				score += 0.5
			case wt1 < wt2:
				score -= 0.5
			}
		}
	}

	if stc, ok := lastValid(ctx.Indicators.STC); ok {
		switch {
		case stc > 75:
			score += 0.5
		case stc < 25:
			score -= 0.5
		}
		signals["stc"] = stc
	}

	for _, d := range ctx.Features.Divergences {
		weight := 1.0
		switch d.Strength {
		case "strong":
			weight = 1.5
		case "weak":
			weight = 0.5
		}
		if d.Bullish {
			score += weight
		} else {
			score -= weight
		}
	}
	if len(ctx.Features.Divergences) > 0 {
		signals["divergence_count"] = len(ctx.Features.Divergences)
	}

	raw := clamp(score, -2, 2)
	originalScore := raw

	multiplier := 1.0
	if ctx.Momentum != nil {
		insight := ctx.Momentum
		aligned := (raw > 0 && insight.Bias == momentum.BiasLong) || (raw < 0 && insight.Bias == momentum.BiasShort)
		switch {
		case insight.Regime == momentum.RegimeExhaustion && aligned:
			multiplier = mathMax(0.5, 1-insight.Strength*0.5)
		case insight.Regime == momentum.RegimeReversalRisk && aligned:
			multiplier = 1 + insight.Strength*0.4
		case insight.Regime == momentum.RegimeContinuation && absF(raw) > 0.3:
			multiplier = 1 + insight.Strength*0.15
		case insight.Regime == momentum.RegimeNeutral && absF(raw) > 0.5:
			multiplier = 0.9
		}
		raw = clamp(raw*multiplier, -2, 2)
		signals["momentum_insight_regime"] = string(insight.Regime)
		signals["momentum_insight_multiplier"] = multiplier
		signals["momentum_pre_modulation_score"] = originalScore
	}

	summary := "momentum neutral"
	switch {
	case raw > 0.5:
		summary = "momentum bullish"
	case raw < -0.5:
		summary = "momentum bearish"
	}

	return GroupScore{Group: GroupMomentum, RawScore: raw, Signals: signals, Summary: summary}
}

func mathMax(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
