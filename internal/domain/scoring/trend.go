package scoring

import (
	"fmt"
	"math"

	"github.com/sawpanic/marketdoctor/internal/domain/features"
)

// TrendScorer implements the trend indicator group (spec §4.6): EMA stack
// alignment, ADX/DI confirmation, Ichimoku position, market structure, and
// the already-classified feature trend state.
type TrendScorer struct{}

func (TrendScorer) Group() Group { return GroupTrend }

func (TrendScorer) Score(ctx ScoreContext) GroupScore {
	signals := map[string]interface{}{}
	var score float64

	currentPrice := 0.0
	if len(ctx.Series) > 0 {
		currentPrice = ctx.Series[len(ctx.Series)-1].Close
	}

	ema20, ok20 := lastValid(ctx.Indicators.EMA[20])
	ema50, ok50 := lastValid(ctx.Indicators.EMA[50])
	ema200, ok200 := lastValid(ctx.Indicators.EMA[200])
	if ok20 && ok50 && ok200 {
		switch {
		case ema20 > ema50 && ema50 > ema200 && currentPrice > ema20:
			score += 1.5
			signals["ema_stack"] = "full_bullish"
		case ema20 < ema50 && ema50 < ema200 && currentPrice < ema20:
			score -= 1.5
			signals["ema_stack"] = "full_bearish"
		default:
			signals["ema_stack"] = "mixed"
		}
	} else if ok20 && ok50 {
		switch {
		case ema50 > ema200:
			score += 0.5
		case ema50 < ema200:
			score -= 0.5
		}
	}

	adx, adxOK := lastValid(ctx.Indicators.ADX)
	plusDI, plusOK := lastValid(ctx.Indicators.PlusDI)
	minusDI, minusOK := lastValid(ctx.Indicators.MinusDI)
	if adxOK && plusOK && minusOK && adx > 25 {
		switch {
		case plusDI > minusDI:
			score += 0.5
			signals["adx_di"] = fmt.Sprintf("+DI over -DI, adx=%.1f", adx)
		case minusDI > plusDI:
			score -= 0.5
			signals["adx_di"] = fmt.Sprintf("-DI over +DI, adx=%.1f", adx)
		}
	}

	tenkan, tOK := lastValid(ctx.Indicators.Tenkan)
	kijun, kOK := lastValid(ctx.Indicators.Kijun)
	if tOK && kOK && currentPrice > 0 {
		switch {
		case currentPrice > tenkan && currentPrice > kijun:
			score += 0.5
			signals["ichimoku"] = "above_cloud_lines"
		case currentPrice < tenkan && currentPrice < kijun:
			score -= 0.5
			signals["ichimoku"] = "below_cloud_lines"
		}
	}

	switch ctx.Features.Structure {
	case features.StructureHigherHigh:
		score += 1.0
		signals["structure"] = "higher_high"
	case features.StructureLowerLow:
		score -= 1.0
		signals["structure"] = "lower_low"
	}

	switch ctx.Features.Trend {
	case features.TrendBullish:
		score += 0.5
	case features.TrendBearish:
		score -= 0.5
	}
	signals["feature_trend"] = string(ctx.Features.Trend)

	raw := clamp(score/3.0, -2, 2)
	summary := "trend neutral"
	switch {
	case raw > 0.5:
		summary = "trend bullish"
	case raw < -0.5:
		summary = "trend bearish"
	}

	return GroupScore{Group: GroupTrend, RawScore: raw, Signals: signals, Summary: summary}
}

func lastValid(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}
