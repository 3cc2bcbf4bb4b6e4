// Package momentum implements C5 MomentumIntelligence: a conservative,
// rule-based read layer over the already-computed oscillators that never
// touches the numeric scoring system, per spec §4.5.
package momentum

import (
	"math"

	"github.com/sawpanic/marketdoctor/internal/domain/diagnostics"
	"github.com/sawpanic/marketdoctor/internal/domain/features"
	"github.com/sawpanic/marketdoctor/internal/domain/indicators"
)

// Bias is the directional lean of the current momentum read.
type Bias string

const (
	BiasLong    Bias = "LONG"
	BiasShort   Bias = "SHORT"
	BiasNeutral Bias = "NEUTRAL"
)

// Regime classifies what the momentum read implies about the prevailing trend.
type Regime string

const (
	RegimeContinuation  Regime = "CONTINUATION"
	RegimeExhaustion    Regime = "EXHAUSTION"
	RegimeReversalRisk  Regime = "REVERSAL_RISK"
	RegimeNeutral       Regime = "NEUTRAL"
)

// Insight is the full C5 output for one (symbol, timeframe, timestamp).
type Insight struct {
	Bias       Bias
	Regime     Regime
	Strength   float64 // 0..1
	Confidence float64 // 0..1
	Comment    string
	Details    map[string]float64
}

// thresholds are volatility-calibrated oscillator cutoffs.
type thresholds struct {
	rsiOverbought, rsiOversold         float64
	stochOverbought, stochOversold     float64
	stcOverbought, stcOversold         float64
}

func defaultThresholds() thresholds {
	return thresholds{rsiOverbought: 70, rsiOversold: 30, stochOverbought: 80, stochOversold: 20, stcOverbought: 75, stcOversold: 25}
}

func calibrate(atrPct float64) thresholds {
	t := defaultThresholds()
	switch {
	case atrPct > 3:
		t = thresholds{75, 25, 85, 15, 80, 20}
	case atrPct < 1:
		t = thresholds{65, 35, 75, 25, 70, 30}
	}
	return t
}

func last(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}

func changeOver(series []float64, periods int) (float64, bool) {
	if len(series) < periods+1 {
		return 0, false
	}
	cur, curOK := last(series)
	if !curOK {
		return 0, false
	}
	prevIdx := len(series) - 1 - periods
	if prevIdx < 0 || math.IsNaN(series[prevIdx]) {
		return 0, false
	}
	return cur - series[prevIdx], true
}

// Analyse reads the oscillator ensemble and produces a consolidated
// momentum insight, or nil when too few oscillators are available.
func Analyse(diag diagnostics.Diagnostics, ind indicators.Set, feat features.Set, deriv *features.Derivatives) *Insight {
	rsi, rsiOK := last(ind.RSI14)
	stochK, stochKOK := last(ind.StochK)
	stochD, stochDOK := last(ind.StochD)
	macd, macdOK := last(ind.MACD)
	macdSignal, macdSignalOK := last(ind.MACDSignal)
	macdHist, macdHistOK := last(ind.MACDHist)
	wt1, wt1OK := last(ind.WT1)
	wt2, wt2OK := last(ind.WT2)
	stc, stcOK := last(ind.STC)
	adx, adxOK := last(ind.ADX)
	plusDI, plusDIOK := last(ind.PlusDI)
	minusDI, minusDIOK := last(ind.MinusDI)
	atr, atrOK := last(ind.ATR14)

	available := 0
	for _, ok := range []bool{rsiOK, stochKOK, macdOK, wt1OK, stcOK} {
		if ok {
			available++
		}
	}
	if available < 2 {
		return nil
	}

	th := defaultThresholds()
	if price, ok := currentCloseFromDiag(diag); atrOK && atr > 0 && ok && price > 0 {
		th = calibrate(atr / price * 100)
	}

	var bullish, bearish, exhaustionUp, exhaustionDown float64
	details := map[string]float64{}

	if rsiOK {
		rsiChange, _ := changeOver(ind.RSI14, 3)
		switch {
		case rsi > th.rsiOverbought:
			exhaustionUp += 1.0
			bearish += 0.3
			details["rsi"] = -0.7
			if rsiChange < -2 {
				exhaustionUp += 0.3
			}
		case rsi < th.rsiOversold:
			exhaustionDown += 1.0
			bullish += 0.3
			details["rsi"] = 0.7
			if rsiChange > 2 {
				exhaustionDown += 0.3
			}
		case rsi > 55:
			bullish += 0.6
			details["rsi"] = 0.6
			if rsiChange > 1 {
				bullish += 0.2
			}
		case rsi < 45:
			bearish += 0.6
			details["rsi"] = -0.6
			if rsiChange < -1 {
				bearish += 0.2
			}
		default:
			details["rsi"] = 0.0
		}
	}

	if stochKOK && stochDOK {
		switch {
		case stochK > th.stochOverbought && stochD > th.stochOverbought:
			exhaustionUp += 0.5
			bearish += 0.2
			details["stoch_rsi"] = -0.6
		case stochK < th.stochOversold && stochD < th.stochOversold:
			exhaustionDown += 0.5
			bullish += 0.2
			details["stoch_rsi"] = 0.6
		case stochK > stochD && stochK > 50:
			bullish += 0.4
			details["stoch_rsi"] = 0.4
		case stochK < stochD && stochK < 50:
			bearish += 0.4
			details["stoch_rsi"] = -0.4
		}
	}

	if macdOK && macdSignalOK {
		switch {
		case macd > macdSignal && macd > 0:
			bullish += 0.7
			details["macd"] = 0.7
		case macd < macdSignal && macd < 0:
			bearish += 0.7
			details["macd"] = -0.7
		case macd > 0:
			bullish += 0.3
			details["macd"] = 0.3
		case macd < 0:
			bearish += 0.3
			details["macd"] = -0.3
		}
	}

	if macdHistOK {
		histChange, histChangeOK := changeOver(ind.MACDHist, 2)
		switch {
		case macdHist > 0 && histChangeOK && histChange < 0:
			bullish -= 0.2
		case macdHist > 0 && histChangeOK && histChange > 0:
			bullish += 0.2
		case macdHist < 0 && histChangeOK && histChange > 0:
			bearish -= 0.2
		case macdHist < 0 && histChangeOK && histChange < 0:
			bearish += 0.2
		}
	}

	if wt1OK && wt2OK {
		if wt1 > wt2 {
			bullish += 0.5
			details["wt"] = 0.5
		} else if wt1 < wt2 {
			bearish += 0.5
			details["wt"] = -0.5
		}
	}

	if stcOK {
		switch {
		case stc > th.stcOverbought:
			exhaustionUp += 0.5
			bearish += 0.2
			details["stc"] = -0.6
		case stc < th.stcOversold:
			exhaustionDown += 0.5
			bullish += 0.2
			details["stc"] = 0.6
		case stc > 50:
			bullish += 0.3
			details["stc"] = 0.3
		default:
			bearish += 0.1
			details["stc"] = -0.1
		}
	}

	for _, d := range feat.Divergences {
		weight := 0.5
		switch d.Strength {
		case "strong":
			weight = 0.8
		case "weak":
			weight = 0.3
		}
		if d.Bullish {
			bullish += weight * 0.5
		} else {
			bearish += weight * 0.5
		}
	}
	if len(feat.Divergences) > 0 {
		details["divergence_count"] = float64(len(feat.Divergences))
	}

	totalTrend := bullish - bearish
	var bias Bias
	switch {
	case totalTrend > 0.6:
		bias = BiasLong
	case totalTrend < -0.6:
		bias = BiasShort
	default:
		bias = BiasNeutral
	}

	for _, d := range feat.Divergences {
		weight := 0.5
		switch d.Strength {
		case "strong":
			weight = 0.8
		case "weak":
			weight = 0.3
		}
		if d.Bullish && bias == BiasShort {
			exhaustionDown += weight * 0.3
		} else if !d.Bullish && bias == BiasLong {
			exhaustionUp += weight * 0.3
		}
	}

	extremeOverbought, extremeOversold := 0, 0
	if rsiOK && rsi > th.rsiOverbought {
		extremeOverbought++
	}
	if stochKOK && stochK > th.stochOverbought {
		extremeOverbought++
	}
	if stcOK && stc > th.stcOverbought {
		extremeOverbought++
	}
	if rsiOK && rsi < th.rsiOversold {
		extremeOversold++
	}
	if stochKOK && stochK < th.stochOversold {
		extremeOversold++
	}
	if stcOK && stc < th.stcOversold {
		extremeOversold++
	}
	if extremeOverbought >= 2 {
		exhaustionUp += 0.5
	}
	if extremeOversold >= 2 {
		exhaustionDown += 0.5
	}

	totalExhaustion := exhaustionUp + exhaustionDown
	strength := math.Min(1.0, math.Abs(totalTrend))

	var regime Regime
	var comment string
	trendBullish := diag.Trend == features.TrendBullish
	trendBearish := diag.Trend == features.TrendBearish

	switch {
	case bias == BiasLong && trendBearish:
		regime, comment = RegimeReversalRisk, "local bullish momentum against a bearish trend; elevated reversal risk"
	case bias == BiasShort && trendBullish:
		regime, comment = RegimeReversalRisk, "local bearish momentum against a bullish trend; possible reversal"
	case totalExhaustion >= 1.0:
		regime = RegimeExhaustion
		switch bias {
		case BiasLong:
			comment = "bullish momentum showing overheated signs; correction risk"
		case BiasShort:
			comment = "bearish momentum showing fatigue; possible bounce"
		default:
			comment = "momentum fading against the trend; consolidation likely"
		}
	case math.Abs(totalTrend) >= 0.8:
		regime = RegimeContinuation
		if bias == BiasLong {
			comment = "strong bullish momentum in line with the trend"
		} else if bias == BiasShort {
			comment = "strong bearish momentum in line with the trend"
		}
	default:
		regime, comment = RegimeNeutral, "momentum moderate, no clear edge"
	}

	strength = math.Min(1.0, strength+totalExhaustion*0.2)

	baseConfidence := math.Min(1.0, float64(available)/5.0)
	totalSignals := math.Abs(bullish) + math.Abs(bearish)
	if totalSignals > 0 {
		consensus := math.Max(math.Abs(bullish), math.Abs(bearish)) / totalSignals
		baseConfidence *= 0.5 + consensus*0.5
	}
	switch feat.Volatility {
	case features.VolatilityHigh:
		baseConfidence *= 0.75
	case features.VolatilityLow:
		baseConfidence = math.Min(1.0, baseConfidence*1.1)
	}
	confidence := baseConfidence

	if len(feat.Divergences) > 0 {
		confidence = math.Min(1.0, confidence*1.05)
	}
	if adxOK {
		switch {
		case adx > 40 && regime == RegimeContinuation:
			confidence *= 0.9
		case adx > 40 && regime == RegimeExhaustion:
			confidence = math.Min(1.0, confidence*1.15)
		case adx > 25 && regime == RegimeContinuation:
			confidence = math.Min(1.0, confidence*1.1)
		case adx < 20 && regime == RegimeReversalRisk:
			confidence *= 0.9
		}
		if plusDIOK && minusDIOK {
			switch {
			case bias == BiasLong && plusDI > minusDI:
				confidence = math.Min(1.0, confidence*1.05)
			case bias == BiasShort && minusDI > plusDI:
				confidence = math.Min(1.0, confidence*1.05)
			case bias == BiasLong && minusDI > plusDI:
				confidence *= 0.95
			case bias == BiasShort && plusDI > minusDI:
				confidence *= 0.95
			}
		}
	}

	if deriv != nil {
		funding := deriv.FundingRate
		switch {
		case math.Abs(funding) > 0.01:
			if bias == BiasLong && funding > 0.01 {
				confidence *= 0.9
			} else if bias == BiasShort && funding < -0.01 {
				confidence *= 0.9
			}
		case math.Abs(funding) > 0.001:
			// tracked for audit only; no confidence adjustment at this tier
		}
		oi := deriv.OIChangePct
		switch {
		case math.Abs(oi) > 10:
			if (bias == BiasLong && oi > 0) || (bias == BiasShort && oi < 0) {
				confidence = math.Min(1.0, confidence*1.1)
			} else if (bias == BiasLong && oi < -10) || (bias == BiasShort && oi > 10) {
				confidence *= 0.9
			}
		case math.Abs(oi) > 5:
			if (bias == BiasLong && oi > 0) || (bias == BiasShort && oi < 0) {
				confidence = math.Min(1.0, confidence*1.05)
			}
		}
	}

	if currentPrice, ok := currentCloseFromDiag(diag); ok {
		for _, lvl := range diag.KeyLevels {
			if lvl.Price < currentPrice {
				dist := (currentPrice - lvl.Price) / currentPrice
				if bias == BiasShort && dist < 0.02 {
					exhaustionDown += 0.2
				}
			}
			if lvl.Price > currentPrice {
				dist := (lvl.Price - currentPrice) / currentPrice
				if bias == BiasLong && dist < 0.02 {
					exhaustionUp += 0.2
				}
				if bias == BiasLong && dist < 0.01 && regime == RegimeContinuation {
					regime = RegimeExhaustion
					comment = "bullish momentum but price is near strong resistance; elevated correction risk"
					confidence = math.Min(1.0, confidence*1.1)
				}
			}
		}
	}

	bullishCount, bearishCount := 0, 0
	if rsiOK {
		if rsi > 55 {
			bullishCount++
		} else if rsi < 45 {
			bearishCount++
		}
	}
	if macdOK && macdSignalOK {
		if macd > macdSignal {
			bullishCount++
		} else if macd < macdSignal {
			bearishCount++
		}
	}
	if wt1OK && wt2OK {
		if wt1 > wt2 {
			bullishCount++
		} else if wt1 < wt2 {
			bearishCount++
		}
	}
	if stcOK {
		if stc > 50 {
			bullishCount++
		} else {
			bearishCount++
		}
	}
	totalIndicators := bullishCount + bearishCount
	if totalIndicators > 0 && bullishCount > 0 && bearishCount > 0 {
		conflictRatio := math.Min(float64(bullishCount), float64(bearishCount)) / float64(totalIndicators)
		if conflictRatio > 0.3 {
			confidence *= 1.0 - conflictRatio*0.3
			details["indicator_conflict"] = conflictRatio
		}
	}

	confidence = math.Max(0, math.Min(1.0, confidence))
	strength = math.Round(strength*100) / 100
	confidence = math.Round(confidence*100) / 100

	return &Insight{Bias: bias, Regime: regime, Strength: strength, Confidence: confidence, Comment: comment, Details: details}
}

func currentCloseFromDiag(diag diagnostics.Diagnostics) (float64, bool) {
	if diag.Fibonacci != nil {
		return diag.Fibonacci.CurrentPrice, true
	}
	return 0, false
}
