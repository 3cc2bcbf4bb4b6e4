package scoring

import "github.com/sawpanic/marketdoctor/internal/domain/features"

// VolatilityScorer implements the volatility indicator group (spec §4.6):
// Bollinger-band position and the volatility state's interaction with trend.
type VolatilityScorer struct{}

func (VolatilityScorer) Group() Group { return GroupVolatility }

func (VolatilityScorer) Score(ctx ScoreContext) GroupScore {
	signals := map[string]interface{}{}
	var score float64

	currentPrice := 0.0
	if len(ctx.Series) > 0 {
		currentPrice = ctx.Series[len(ctx.Series)-1].Close
	}

	upper, okU := lastValid(ctx.Indicators.BBUpper)
	lower, okL := lastValid(ctx.Indicators.BBLower)
	middle, okM := lastValid(ctx.Indicators.BBMiddle)
	if okU && okL && okM && upper > lower {
		position := (currentPrice - lower) / (upper - lower)
		switch {
		case position > 0.8:
			score -= 0.5
			signals["bb_position"] = "upper_band"
		case position < 0.2:
			score += 0.5
			signals["bb_position"] = "lower_band"
		}
	}

	switch {
	case ctx.Features.Volatility == features.VolatilityLow && ctx.Features.Trend == features.TrendBullish:
		score += 0.3
		signals["vol_trend_interaction"] = "low_vol_bullish_compression"
	case ctx.Features.Volatility == features.VolatilityHigh && ctx.Features.Trend == features.TrendBearish:
		score -= 0.3
		signals["vol_trend_interaction"] = "high_vol_bearish_expansion"
	}

	raw := clamp(score/1.5, -2, 2)
	summary := "volatility neutral"
	switch {
	case raw > 0.3:
		summary = "volatility favors longs"
	case raw < -0.3:
		summary = "volatility favors shorts"
	}
	return GroupScore{Group: GroupVolatility, RawScore: raw, Signals: signals, Summary: summary}
}
