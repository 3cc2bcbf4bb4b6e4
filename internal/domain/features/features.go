// Package features implements C2 FeatureExtractor: folding raw indicators
// down into the discrete trend/volatility/liquidity/structure states every
// later stage classifies against, per spec §4.2.
package features

import (
	"math"

	"github.com/sawpanic/marketdoctor/internal/config"
	"github.com/sawpanic/marketdoctor/internal/domain/bars"
	"github.com/sawpanic/marketdoctor/internal/domain/indicators"
)

// TrendState is the classified price-trend direction.
type TrendState string

const (
	TrendBullish TrendState = "BULLISH"
	TrendBearish TrendState = "BEARISH"
	TrendNeutral TrendState = "NEUTRAL"
)

// VolatilityState is the classified volatility regime.
type VolatilityState string

const (
	VolatilityLow    VolatilityState = "LOW"
	VolatilityMedium VolatilityState = "MEDIUM"
	VolatilityHigh   VolatilityState = "HIGH"
)

// LiquidityState is the classified volume/liquidity regime.
type LiquidityState string

const (
	LiquidityLow    LiquidityState = "LOW"
	LiquidityMedium LiquidityState = "MEDIUM"
	LiquidityHigh   LiquidityState = "HIGH"
)

// StructureState is a coarse swing-structure read, refined later by C3.
type StructureState string

const (
	StructureHigherHigh StructureState = "HIGHER_HIGH"
	StructureLowerLow   StructureState = "LOWER_LOW"
	StructureRange      StructureState = "RANGE"
)

// FundingState classifies the derivatives funding rate.
type FundingState string

const (
	FundingExtremeLong  FundingState = "EXTREME_LONG"
	FundingLong         FundingState = "LONG"
	FundingExtremeShort FundingState = "EXTREME_SHORT"
	FundingShort        FundingState = "SHORT"
	FundingNeutral      FundingState = "NEUTRAL"
)

// OIState classifies the open-interest rate of change.
type OIState string

const (
	OIRapidIncrease OIState = "RAPID_INCREASE"
	OIIncrease      OIState = "INCREASE"
	OIRapidDecrease OIState = "RAPID_DECREASE"
	OIDecrease      OIState = "DECREASE"
	OIStable        OIState = "STABLE"
)

// CVDState classifies the sign of cumulative volume delta.
type CVDState string

const (
	CVDBuyingPressure  CVDState = "BUYING_PRESSURE"
	CVDSellingPressure CVDState = "SELLING_PRESSURE"
	CVDNeutral         CVDState = "NEUTRAL"
)

// Derivatives is the raw derivatives snapshot an upstream provider supplies;
// a nil *Derivatives means none was available for this symbol.
type Derivatives struct {
	FundingRate float64
	OIChangePct float64
	CVD         float64
}

// DerivativesFeatures is the classified form of Derivatives.
type DerivativesFeatures struct {
	FundingState FundingState
	OIState      OIState
	CVDState     CVDState
}

// Divergence records a single detected price/indicator divergence.
type Divergence struct {
	Indicator string
	Bullish   bool
	Strength  string // "strong", "medium", "weak"
}

// Set is the full C2 output for one (symbol, timeframe, timestamp).
type Set struct {
	Trend       TrendState
	Volatility  VolatilityState
	Liquidity   LiquidityState
	Structure   StructureState
	Derivatives *DerivativesFeatures
	Divergences []Divergence
}

// Default returns the neutral feature set used when there is no bar data,
// matching the original system's _default_features fallback.
func Default() Set {
	return Set{
		Trend:      TrendNeutral,
		Volatility: VolatilityMedium,
		Liquidity:  LiquidityMedium,
		Structure:  StructureRange,
	}
}

// Extract folds a bar series, its computed indicators, and an optional
// derivatives snapshot down into classified features. Pure and deterministic.
func Extract(series bars.Series, ind indicators.Set, deriv *Derivatives, cfg *config.Config) Set {
	if len(series) == 0 {
		return Default()
	}

	currentPrice := series[len(series)-1].Close

	set := Set{
		Trend:      extractTrend(currentPrice, ind, cfg),
		Volatility: extractVolatility(ind, cfg),
		Liquidity:  extractLiquidity(series, cfg),
		Structure:  extractStructure(series),
	}
	if deriv != nil {
		df := extractDerivatives(*deriv, cfg)
		set.Derivatives = &df
	}
	set.Divergences = detectDivergences(series, ind)
	return set
}

func lastValid(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}

func extractTrend(currentPrice float64, ind indicators.Set, cfg *config.Config) TrendState {
	var scores []float64

	ema20, ok20 := lastValid(ind.EMA[20])
	ema50, ok50 := lastValid(ind.EMA[50])
	if ok20 && ok50 {
		switch {
		case currentPrice > ema20 && ema20 > ema50:
			scores = append(scores, 1)
		case currentPrice < ema20 && ema20 < ema50:
			scores = append(scores, -1)
		}
	}

	ema200, ok200 := lastValid(ind.EMA[200])
	if ok50 && ok200 {
		switch {
		case ema50 > ema200:
			scores = append(scores, 1)
		case ema50 < ema200:
			scores = append(scores, -1)
		}
	}

	if rsi, ok := lastValid(ind.RSI14); ok {
		mid := (cfg.Thresholds.RSIOverbought + cfg.Thresholds.RSIOversold) / 2
		bullish := mid + 10
		bearish := mid - 10
		switch {
		case rsi > bullish:
			scores = append(scores, 1)
		case rsi < bearish:
			scores = append(scores, -1)
		}
	}

	if hist, ok := lastValid(ind.MACDHist); ok {
		switch {
		case hist > 0:
			scores = append(scores, 1)
		case hist < 0:
			scores = append(scores, -1)
		}
	}

	if len(scores) == 0 {
		return TrendNeutral
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	avg := sum / float64(len(scores))
	switch {
	case avg > 0.3:
		return TrendBullish
	case avg < -0.3:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

func extractVolatility(ind indicators.Set, cfg *config.Config) VolatilityState {
	if len(ind.ATR14) == 0 {
		return VolatilityMedium
	}
	current, ok := lastValid(ind.ATR14)
	if !ok {
		return VolatilityMedium
	}
	sum, n := 0.0, 0
	for _, v := range ind.ATR14 {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 || sum == 0 {
		return VolatilityMedium
	}
	mean := sum / float64(n)
	if mean == 0 {
		return VolatilityMedium
	}
	ratio := current / mean
	switch {
	case ratio > cfg.Thresholds.BBHigh:
		return VolatilityHigh
	case ratio < cfg.Thresholds.BBLow:
		return VolatilityLow
	default:
		return VolatilityMedium
	}
}

func extractLiquidity(series bars.Series, cfg *config.Config) LiquidityState {
	if !series.HasVolume() {
		return LiquidityMedium
	}
	volumes := series.Volumes()
	total := 0.0
	for _, v := range volumes {
		total += v
	}
	if total == 0 {
		return LiquidityLow
	}
	avg := indicators.SMA(volumes, 20)
	avgVol, ok := lastValid(avg)
	current := volumes[len(volumes)-1]
	if !ok || avgVol == 0 {
		return LiquidityMedium
	}
	ratio := current / avgVol
	switch {
	case ratio > cfg.Thresholds.VolHighRatio:
		return LiquidityHigh
	case ratio < cfg.Thresholds.VolLowRatio:
		return LiquidityLow
	default:
		return LiquidityMedium
	}
}

func extractStructure(series bars.Series) StructureState {
	if len(series) < 20 {
		return StructureRange
	}
	lookback := len(series) / 4
	if lookback > 10 {
		lookback = 10
	}
	if lookback == 0 {
		return StructureRange
	}

	n := len(series)
	recentHighs := series[n-lookback:]
	recentLows := recentHighs
	if n >= lookback*2 {
		prev := series[n-lookback*2 : n-lookback]
		if maxHigh(recentHighs) > maxHigh(prev) {
			return StructureHigherHigh
		}
		if minLow(recentLows) < minLow(prev) {
			return StructureLowerLow
		}
	}
	return StructureRange
}

func maxHigh(s bars.Series) float64 {
	m := math.Inf(-1)
	for _, b := range s {
		m = math.Max(m, b.High)
	}
	return m
}

func minLow(s bars.Series) float64 {
	m := math.Inf(1)
	for _, b := range s {
		m = math.Min(m, b.Low)
	}
	return m
}

func extractDerivatives(d Derivatives, cfg *config.Config) DerivativesFeatures {
	t := cfg.Thresholds
	out := DerivativesFeatures{FundingState: FundingNeutral, OIState: OIStable, CVDState: CVDNeutral}

	switch {
	case d.FundingRate > t.FundingExtremeLong:
		out.FundingState = FundingExtremeLong
	case d.FundingRate > t.FundingHigh:
		out.FundingState = FundingLong
	case d.FundingRate < t.FundingExtremeShort:
		out.FundingState = FundingExtremeShort
	case d.FundingRate < t.FundingLow:
		out.FundingState = FundingShort
	}

	switch {
	case d.OIChangePct > t.OIRapidIncreasePct:
		out.OIState = OIRapidIncrease
	case d.OIChangePct > t.OIIncreasePct:
		out.OIState = OIIncrease
	case d.OIChangePct < t.OIRapidDecreasePct:
		out.OIState = OIRapidDecrease
	case d.OIChangePct < t.OIDecreasePct:
		out.OIState = OIDecrease
	}

	switch {
	case d.CVD > 0:
		out.CVDState = CVDBuyingPressure
	case d.CVD < 0:
		out.CVDState = CVDSellingPressure
	}
	return out
}

// detectDivergences looks for price/oscillator divergences across the four
// indicators the original system's dedicated divergence detector enables by
// default — RSI, MACD, STOCH, OBV (original_source/lesson_6_mvp/app/domain/
// market_diagnostics/features.py:295-365's enabled_indicators, VOLUME/CCI/MFI
// left disabled there too) — over the trailing window. A lightweight
// in-package analogue scoped to what C2 needs, rather than a port of that
// detector module.
func detectDivergences(series bars.Series, ind indicators.Set) []Divergence {
	const window = 50
	if len(series) < window {
		return nil
	}
	var out []Divergence
	closes := series.Closes()
	n := len(closes)
	half := window / 2

	if d, ok := divergenceBetween(closes[n-window:], ind.RSI14[n-window:], half); ok {
		d.Indicator = "RSI"
		out = append(out, d)
	}
	if d, ok := divergenceBetween(closes[n-window:], ind.MACDHist[n-window:], half); ok {
		d.Indicator = "MACD"
		out = append(out, d)
	}
	if d, ok := divergenceBetween(closes[n-window:], ind.StochK[n-window:], half); ok {
		d.Indicator = "STOCH"
		out = append(out, d)
	}
	if d, ok := divergenceBetween(closes[n-window:], ind.OBV[n-window:], half); ok {
		d.Indicator = "OBV"
		out = append(out, d)
	}
	return out
}

// divergenceBetween compares the price extreme and the oscillator's last
// value across the window's two halves, then grades the divergence strength
// from how far the price moved (as a fraction of its level) and how far the
// oscillator moved relative to its own range over the window — the latter
// keeps the grading comparable across oscillators on wildly different
// scales (RSI/StochRSI in [0,100] vs. MACD histogram vs. cumulative OBV).
func divergenceBetween(price, osc []float64, half int) (Divergence, bool) {
	priceFirst, priceSecond := extreme(price[:half]), extreme(price[half:])
	oscFirst, okF := lastValid(osc[:half])
	oscSecond, okS := lastValid(osc[half:])
	if !okF || !okS {
		return Divergence{}, false
	}
	priceUp := priceSecond.high > priceFirst.high
	oscUp := oscSecond > oscFirst

	var bullish bool
	var priceMove float64
	switch {
	case priceSecond.low < priceFirst.low && oscUp:
		bullish = true
		priceMove = priceFirst.low - priceSecond.low
	case priceUp && !oscUp:
		bullish = false
		priceMove = priceSecond.high - priceFirst.high
	default:
		return Divergence{}, false
	}

	var priceMovePct float64
	if priceFirst.low != 0 {
		priceMovePct = math.Abs(priceMove) / math.Abs(priceFirst.low)
	}
	oscMoveRatio := relativeMove(oscFirst, oscSecond, osc)

	return Divergence{Bullish: bullish, Strength: divergenceStrength(priceMovePct, oscMoveRatio)}, true
}

// relativeMove expresses |second-first| as a fraction of the oscillator's
// own high-low range over window, so a divergence can be graded without
// hardcoding the oscillator's scale.
func relativeMove(first, second float64, window []float64) float64 {
	e := extreme(window)
	rng := e.high - e.low
	if rng <= 0 {
		return 0
	}
	return math.Abs(second-first) / rng
}

func divergenceStrength(priceMovePct, oscMoveRatio float64) string {
	switch {
	case priceMovePct > 0.03 && oscMoveRatio > 0.5:
		return "strong"
	case priceMovePct < 0.01 || oscMoveRatio < 0.15:
		return "weak"
	default:
		return "medium"
	}
}

type priceExtreme struct{ high, low float64 }

func extreme(p []float64) priceExtreme {
	e := priceExtreme{high: math.Inf(-1), low: math.Inf(1)}
	for _, v := range p {
		e.high = math.Max(e.high, v)
		e.low = math.Min(e.low, v)
	}
	return e
}
