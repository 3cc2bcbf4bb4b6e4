package scoring

import "github.com/sawpanic/marketdoctor/internal/domain/features"

// DerivativesScorer implements the derivatives indicator group (spec §4.6):
// funding-rate extremes (inverted, since extreme funding pressures the
// crowded side) and open-interest change against the prevailing trend.
type DerivativesScorer struct{}

func (DerivativesScorer) Group() Group { return GroupDerivatives }

func (DerivativesScorer) Score(ctx ScoreContext) GroupScore {
	signals := map[string]interface{}{}
	var score float64

	if ctx.Deriv != nil {
		funding := ctx.Deriv.FundingRate
		switch {
		case funding > 0.005:
			score -= 0.5
			signals["funding"] = funding
		case funding < -0.005:
			score += 0.5
			signals["funding"] = funding
		}

		oi := ctx.Deriv.OIChangePct
		trendUp := ctx.Diag.Trend == features.TrendBullish
		trendDown := ctx.Diag.Trend == features.TrendBearish
		switch {
		case trendUp && oi < 0:
			score -= 0.5
			signals["oi_vs_trend"] = "falling_oi_against_uptrend"
		case trendDown && oi > 0:
			score += 0.5
			signals["oi_vs_trend"] = "rising_oi_against_downtrend"
		}
		signals["oi_change_pct"] = oi
	}

	raw := clamp(score/1.5, -2, 2)
	summary := "derivatives neutral"
	switch {
	case raw > 0.3:
		summary = "derivatives favor longs"
	case raw < -0.3:
		summary = "derivatives favor shorts"
	}
	return GroupScore{Group: GroupDerivatives, RawScore: raw, Signals: signals, Summary: summary}
}
