// Package diagnostics implements C4 MarketAnalyzer: classifies the current
// market phase from C2 features and derives risk_score/pump_score/confidence,
// per spec §4.4.
package diagnostics

import (
	"math"

	"github.com/sawpanic/marketdoctor/internal/config"
	"github.com/sawpanic/marketdoctor/internal/domain/bars"
	"github.com/sawpanic/marketdoctor/internal/domain/features"
	"github.com/sawpanic/marketdoctor/internal/domain/indicators"
	"github.com/sawpanic/marketdoctor/internal/domain/structure"
)

// Phase is the classified market regime.
type Phase string

const (
	PhaseAccumulation  Phase = "ACCUMULATION"
	PhaseDistribution  Phase = "DISTRIBUTION"
	PhaseExpansionUp   Phase = "EXPANSION_UP"
	PhaseExpansionDown Phase = "EXPANSION_DOWN"
	PhaseShakeout      Phase = "SHAKEOUT"
)

// Diagnostics is the full C4 output for one (symbol, timeframe, timestamp).
type Diagnostics struct {
	Symbol          string
	Timeframe       string
	Phase           Phase
	Trend           features.TrendState
	Volatility      features.VolatilityState
	Liquidity       features.LiquidityState
	RiskScore       float64 // 0..1
	PumpScore       float64 // 0..1
	Confidence      float64 // 0..1
	KeyLevels       []structure.Level
	SMC             structure.Context
	Legs            []structure.PriceLeg
	Wave            structure.ElliottRead
	Fibonacci       *structure.FibonacciAnalysis
}

// Analyze classifies the market phase and scores risk/pump/confidence.
// profile is optional (nil uses cfg unmodified) and overlays a per-symbol
// risk posture onto the computed risk score (spec SPEC_FULL.md's
// profile_provider.py supplement).
func Analyze(symbol, timeframe string, series bars.Series, ind indicators.Set, feat features.Set, struc structure.Analysis, deriv *features.Derivatives, cfg *config.Config, profile *config.SymbolProfile) Diagnostics {
	phase := classifyPhase(feat.Trend, feat.Volatility, feat.Liquidity, feat.Structure, deriv, cfg)

	d := Diagnostics{
		Symbol: symbol, Timeframe: timeframe, Phase: phase,
		Trend: feat.Trend, Volatility: feat.Volatility, Liquidity: feat.Liquidity,
		KeyLevels: struc.Levels, SMC: struc.SMC, Legs: struc.Legs, Wave: struc.Wave,
		Fibonacci: struc.Fibonacci,
	}
	d.RiskScore = calculateRiskScore(phase, feat.Trend, feat.Volatility, feat.Liquidity, deriv, cfg)
	d.RiskScore = math.Max(0, math.Min(1, d.RiskScore*profile.RiskScoreMultiplier()))
	d.PumpScore = calculatePumpScore(phase, feat.Trend, feat.Volatility, feat.Structure, deriv, series, ind, cfg)
	d.Confidence = calculateConfidence(series, ind, deriv)
	return d
}

func classifyPhase(trend features.TrendState, vol features.VolatilityState, liq features.LiquidityState, struc features.StructureState, deriv *features.Derivatives, cfg *config.Config) Phase {
	var phase Phase
	switch {
	case vol == features.VolatilityHigh && liq == features.LiquidityLow:
		phase = PhaseShakeout
	case trend == features.TrendBullish && (liq == features.LiquidityMedium || liq == features.LiquidityHigh):
		phase = PhaseExpansionUp
	case trend == features.TrendBearish && (liq == features.LiquidityMedium || liq == features.LiquidityHigh):
		phase = PhaseExpansionDown
	case trend == features.TrendNeutral || trend == features.TrendBullish:
		phase = PhaseAccumulation
	case trend == features.TrendNeutral || trend == features.TrendBearish:
		phase = PhaseDistribution
	default:
		phase = PhaseAccumulation
	}

	if deriv != nil {
		t := cfg.Thresholds
		if phase == PhaseAccumulation && deriv.FundingRate < t.FundingLow && deriv.OIChangePct > t.OIIncreasePct {
			return PhaseShakeout
		}
		if phase == PhaseExpansionUp && deriv.FundingRate > t.FundingExtremeLong && deriv.OIChangePct < t.OIDecreasePct {
			return PhaseDistribution
		}
	}
	return phase
}

func calculateRiskScore(phase Phase, trend features.TrendState, vol features.VolatilityState, liq features.LiquidityState, deriv *features.Derivatives, cfg *config.Config) float64 {
	w := cfg.RiskScore
	score := 0.0

	volComponent := 0.0
	switch vol {
	case features.VolatilityHigh:
		volComponent = 1.0
	case features.VolatilityMedium:
		volComponent = 0.5
	}
	score += w.Volatility * volComponent

	liqComponent := 0.0
	switch liq {
	case features.LiquidityLow:
		liqComponent = 1.0
	case features.LiquidityMedium:
		liqComponent = 0.5
	}
	score += w.Liquidity * liqComponent

	score += w.Phase * cfg.RiskPhase[string(phase)]

	derivComponent := 0.0
	if deriv != nil {
		funding := math.Abs(deriv.FundingRate)
		switch {
		case funding > cfg.Thresholds.FundingExtremeLong:
			derivComponent = 1.0
		case funding > cfg.Thresholds.FundingHigh:
			derivComponent = 0.6
		case funding > 0:
			derivComponent = 0.3
		}
	}
	score += w.Derivatives * derivComponent

	trendComponent := 0.0
	switch trend {
	case features.TrendBearish:
		trendComponent = 1.0
	case features.TrendNeutral:
		trendComponent = 0.5
	}
	score += w.Trend * trendComponent

	return math.Min(score, 1.0)
}

func calculatePumpScore(phase Phase, trend features.TrendState, vol features.VolatilityState, struc features.StructureState, deriv *features.Derivatives, series bars.Series, ind indicators.Set, cfg *config.Config) float64 {
	w := cfg.PumpScore
	score := w.Phase * cfg.PumpPhase[string(phase)]

	trendComponent := 0.0
	switch trend {
	case features.TrendBullish:
		trendComponent = 1.0
	case features.TrendNeutral:
		trendComponent = 0.5
	}
	score += w.Trend * trendComponent

	structureComponent := 0.0
	switch struc {
	case features.StructureHigherHigh:
		structureComponent = 1.0
	case features.StructureRange:
		structureComponent = 0.5
	}
	score += w.Structure * structureComponent

	volComponent := 0.0
	switch vol {
	case features.VolatilityLow:
		volComponent = 1.0
	case features.VolatilityMedium:
		volComponent = 0.5
	}
	score += w.Volatility * volComponent

	derivComponent := 0.0
	if deriv != nil {
		if deriv.CVD > 0 {
			derivComponent += 0.3
		}
		switch {
		case deriv.OIChangePct > cfg.Thresholds.OIIncreasePct:
			derivComponent += 0.3
		case deriv.OIChangePct > 0:
			derivComponent += 0.15
		}
		switch {
		case deriv.FundingRate < cfg.Thresholds.FundingLow:
			derivComponent += 0.2
		case deriv.FundingRate < 0:
			derivComponent += 0.1
		}
		derivComponent = math.Min(derivComponent, 1.0)
	}
	score += w.Derivatives * derivComponent

	if len(series) > 0 {
		currentPrice := series[len(series)-1].Close
		if vwap, ok := lastValid(ind.VWAP); ok && vwap > 0 {
			dev := (currentPrice - vwap) / vwap
			if dev < -cfg.Thresholds.VWAPDeviation {
				score += 0.05
			}
		}
		if ema200, ok := lastValid(ind.EMA[200]); ok && ema200 > 0 {
			dev := (currentPrice - ema200) / ema200
			if dev < -cfg.Thresholds.EMA200Deviation {
				score += 0.05
			}
		}
	}
	return math.Min(score, 1.0)
}

func calculateConfidence(series bars.Series, ind indicators.Set, deriv *features.Derivatives) float64 {
	confidence := 0.5

	switch {
	case len(series) >= 200:
		confidence += 0.2
	case len(series) >= 100:
		confidence += 0.1
	case len(series) < 50:
		confidence -= 0.2
	}

	if deriv != nil {
		confidence += 0.15
	} else {
		confidence -= 0.1
	}

	trendConsistency := 0.0
	ema50, ok50 := lastValid(ind.EMA[50])
	ema200, ok200 := lastValid(ind.EMA[200])
	if ok50 && ok200 {
		emaBullish := ema50 > ema200
		if rsi, ok := lastValid(ind.RSI14); ok {
			if (rsi > 50) == emaBullish {
				trendConsistency += 0.1
			}
		}
		if macd, okM := lastValid(ind.MACD); okM {
			if signal, okS := lastValid(ind.MACDSignal); okS {
				if (macd > signal) == emaBullish {
					trendConsistency += 0.1
				}
			}
		}
	}
	confidence += trendConsistency

	available := 0
	total := 6
	if _, ok := lastValid(ind.RSI14); ok {
		available++
	}
	if _, ok := lastValid(ind.MACD); ok {
		available++
	}
	if _, ok := lastValid(ind.EMA[50]); ok {
		available++
	}
	if _, ok := lastValid(ind.EMA[200]); ok {
		available++
	}
	if _, ok := lastValid(ind.BBUpper); ok {
		available++
	}
	if _, ok := lastValid(ind.BBLower); ok {
		available++
	}
	confidence += (float64(available) / float64(total)) * 0.1

	return math.Max(0.0, math.Min(1.0, confidence))
}

func lastValid(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}
