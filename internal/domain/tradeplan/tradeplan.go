// Package tradeplan implements C8 TradePlanner: turns a MarketDiagnostics
// plus the global regime and MomentumInsight into a concrete TradePlan
// (mode, entry zones, invalidation, position-size factor, skip flag), per
// spec §4.8.
//
// Grounded on the teacher's internal/domain/gates/evaluate.go
// (GateReason-style pass/fail plus metrics plus human explanation,
// short-circuit-but-keep-collecting evaluation order) for the skip-trading
// / small-position-allowed decision logic.
package tradeplan

import (
	"math"

	"github.com/sawpanic/marketdoctor/internal/config"
	"github.com/sawpanic/marketdoctor/internal/domain/diagnostics"
	"github.com/sawpanic/marketdoctor/internal/domain/indicators"
	"github.com/sawpanic/marketdoctor/internal/domain/momentum"
	"github.com/sawpanic/marketdoctor/internal/domain/structure"
)

// Mode is the strategic posture the plan recommends.
type Mode string

const (
	ModeNeutral           Mode = "neutral"
	ModeAccumulationPlay  Mode = "accumulation_play"
	ModeTrendFollow       Mode = "trend_follow"
	ModeMeanReversion     Mode = "mean_reversion"
	ModeDistributionWait  Mode = "distribution_wait"
)

// GlobalRegime is the macro risk backdrop, a closed enumeration per spec §9.
type GlobalRegime string

const (
	RegimeRiskOn    GlobalRegime = "RISK_ON"
	RegimeRiskOff   GlobalRegime = "RISK_OFF"
	RegimePanic     GlobalRegime = "PANIC"
	RegimeAltSeason GlobalRegime = "ALT_SEASON"
	RegimeNeutral   GlobalRegime = "NEUTRAL"
)

// Zone is an inclusive [low, high] price band.
type Zone struct {
	Low  float64
	High float64
}

// TradePlan is the full C8 output for one (symbol, timeframe, timestamp).
type TradePlan struct {
	Mode                Mode
	SmallPositionAllowed bool
	LimitBuyZone        *Zone
	AddOnBreakoutLevel  *float64
	DontDCAAbove        *float64
	InvalidationLevel   *float64
	SkipTrading         bool
	SkipReason          string
	PositionSizeFactor  float64 // 0.3..1.5
	ScenarioPlaybook    string
	RegimeInfo          GlobalRegime
}

func ptr(v float64) *float64 { return &v }

// Plan builds a TradePlan from a MarketDiagnostics, its structure analysis,
// indicators, an optional global regime (defaults to NEUTRAL), an optional
// C5 MomentumInsight, and an optional per-symbol profile overriding the
// phase-derived mode and position-size factor (spec SPEC_FULL.md's
// profile_provider.py supplement; nil uses the phase-derived mode
// unmodified).
func Plan(diag diagnostics.Diagnostics, struc structure.Analysis, ind indicators.Set, series []float64, regime GlobalRegime, insight *momentum.Insight, profile *config.SymbolProfile) TradePlan {
	if regime == "" {
		regime = RegimeNeutral
	}

	mode := modeForPhase(diag.Phase)
	if profile != nil && profile.DefaultMode != "" {
		mode = Mode(profile.DefaultMode)
	}

	plan := TradePlan{
		Mode:       mode,
		RegimeInfo: regime,
	}

	plan.SkipTrading, plan.SkipReason = shouldSkip(diag, regime, insight)
	plan.SmallPositionAllowed = smallPositionAllowed(diag, regime, insight)
	plan.PositionSizeFactor = positionSizeFactor(diag, regime, insight) * profile.PositionSizeFactor()
	plan.PositionSizeFactor = math.Max(0.3, math.Min(1.5, plan.PositionSizeFactor))

	currentPrice := 0.0
	if len(series) > 0 {
		currentPrice = series[len(series)-1]
	}

	switch plan.Mode {
	case ModeAccumulationPlay:
		buildAccumulationLevels(&plan, diag, struc, ind, currentPrice)
	case ModeTrendFollow:
		buildTrendFollowLevels(&plan, diag, struc, ind)
	case ModeMeanReversion:
		buildMeanReversionLevels(&plan, ind, currentPrice)
	}
	buildInvalidationLevel(&plan, diag, struc, ind, currentPrice)

	plan.ScenarioPlaybook = scenarioPlaybook(plan.Mode, diag.Phase)
	return plan
}

// buildInvalidationLevel picks the stop-out price the outcome evaluator
// resolves SL from (spec §4.9): 2% below the limit-buy zone's floor, else
// 2% below the nearest support below price, else one ATR below price.
func buildInvalidationLevel(plan *TradePlan, diag diagnostics.Diagnostics, struc structure.Analysis, ind indicators.Set, currentPrice float64) {
	switch {
	case plan.LimitBuyZone != nil:
		plan.InvalidationLevel = ptr(plan.LimitBuyZone.Low * 0.98)
	default:
		if sup := nearestSupport(diag.KeyLevels, currentPrice); sup != nil {
			plan.InvalidationLevel = ptr(sup.Price * 0.98)
		} else if currentPrice > 0 {
			if atr, ok := lastValid(ind.ATR14); ok {
				plan.InvalidationLevel = ptr(currentPrice - atr)
			}
		}
	}
}

func modeForPhase(phase diagnostics.Phase) Mode {
	switch phase {
	case diagnostics.PhaseAccumulation:
		return ModeAccumulationPlay
	case diagnostics.PhaseExpansionUp:
		return ModeTrendFollow
	case diagnostics.PhaseDistribution:
		return ModeDistributionWait
	case diagnostics.PhaseShakeout:
		// a shakeout is a spike away from value that tends to snap back,
		// which is exactly buildMeanReversionLevels' VWAP/BB-middle ± 2.5%
		// fade setup rather than a no-edge NEUTRAL read.
		return ModeMeanReversion
	default:
		return ModeNeutral
	}
}

func riskThreshold(regime GlobalRegime) float64 {
	switch regime {
	case RegimePanic:
		return 0.6
	case RegimeRiskOff:
		return 0.7
	default:
		return 0.8
	}
}

func pumpThreshold(regime GlobalRegime) float64 {
	switch regime {
	case RegimePanic:
		return 0.5
	case RegimeRiskOff:
		return 0.4
	default:
		return 0.3
	}
}

// shouldSkip evaluates spec §4.8's skip-trading conditions in order,
// returning the first one that fires along with its human explanation.
func shouldSkip(diag diagnostics.Diagnostics, regime GlobalRegime, insight *momentum.Insight) (bool, string) {
	if insight != nil && insight.Regime == momentum.RegimeExhaustion && insight.Confidence > 0.8 {
		return true, "momentum exhaustion with high confidence"
	}
	if diag.RiskScore > riskThreshold(regime) && diag.PumpScore < pumpThreshold(regime) {
		return true, "risk elevated for this regime while pump signal is weak"
	}
	riskCap := 0.85
	if regime == RegimePanic {
		riskCap = 0.75
	}
	if diag.RiskScore > riskCap {
		return true, "risk score above the regime's hard cap"
	}
	if diag.PumpScore < 0.2 && diag.RiskScore > 0.5 {
		return true, "pump signal absent while risk remains meaningful"
	}
	return false, ""
}

// smallPositionAllowed applies the phase+volatility table, down-weighted by
// an EXHAUSTION or REVERSAL_RISK momentum read at high confidence.
func smallPositionAllowed(diag diagnostics.Diagnostics, regime GlobalRegime, insight *momentum.Insight) bool {
	if insight != nil && insight.Confidence > 0.7 {
		if insight.Regime == momentum.RegimeExhaustion || insight.Regime == momentum.RegimeReversalRisk {
			return false
		}
	}
	switch diag.Phase {
	case diagnostics.PhaseExpansionDown:
		return false
	case diagnostics.PhaseDistribution:
		return false
	case diagnostics.PhaseShakeout:
		return false
	case diagnostics.PhaseAccumulation:
		return true
	case diagnostics.PhaseExpansionUp:
		return diag.Volatility != "HIGH"
	default:
		return true
	}
}

// positionSizeFactor composes the spec §4.8 multiplier chain, clamped to
// [0.3, 1.5].
func positionSizeFactor(diag diagnostics.Diagnostics, regime GlobalRegime, insight *momentum.Insight) float64 {
	factor := 1.0

	switch regime {
	case RegimePanic:
		factor *= 0.3
	case RegimeRiskOff:
		factor *= 0.5
	case RegimeRiskOn:
		factor *= 1.1
	case RegimeAltSeason:
		factor *= 1.15
	}

	switch {
	case diag.PumpScore > 0.6 && diag.RiskScore < 0.4:
		factor *= 1.1
	case diag.RiskScore > 0.6:
		factor *= 0.8
	}

	switch {
	case diag.Confidence >= 0.7:
		factor *= 1.05
	case diag.Confidence < 0.4:
		factor *= 0.85
	}

	switch diag.Liquidity {
	case "LOW":
		factor *= 0.6
	case "HIGH":
		factor *= 1.05
	}

	if insight != nil {
		switch insight.Regime {
		case momentum.RegimeExhaustion:
			factor *= 0.4 + 0.2*(1-insight.Strength) // 0.4..0.6
		case momentum.RegimeReversalRisk:
			factor *= 0.5 + 0.2*(1-insight.Strength) // 0.5..0.7
		case momentum.RegimeContinuation:
			if insight.Confidence > 0.7 {
				factor = math.Min(factor*1.05, 1.1)
			}
		}
	}

	return math.Max(0.3, math.Min(1.5, factor))
}

func nearestSupport(levels []structure.Level, price float64) *structure.Level {
	var best *structure.Level
	for i := range levels {
		l := levels[i]
		if l.Kind != structure.LevelSupport || l.Price >= price {
			continue
		}
		if best == nil || l.Price > best.Price {
			best = &levels[i]
		}
	}
	return best
}

func nearestResistance(levels []structure.Level, price float64) *structure.Level {
	var best *structure.Level
	for i := range levels {
		l := levels[i]
		if l.Kind != structure.LevelResistance || l.Price <= price {
			continue
		}
		if best == nil || l.Price < best.Price {
			best = &levels[i]
		}
	}
	return best
}

func lastValid(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}

// buildAccumulationLevels implements spec §4.8's accumulation_play priority
// order: SMC demand order block > strong support cluster > discount-zone
// boundary > EMA20-50 > recent lows minus 0.3*ATR for the buy zone; nearest
// liquidity-above pool > strongest resistance > clustered highs for the
// breakout add-on; premium-zone start > strong resistance > EMA200 > upper
// BB for the don't-DCA-above ceiling.
func buildAccumulationLevels(plan *TradePlan, diag diagnostics.Diagnostics, struc structure.Analysis, ind indicators.Set, currentPrice float64) {
	var zoneLow, zoneHigh float64
	switch {
	case len(struc.SMC.OrderBlocksDemand) > 0:
		ob := struc.SMC.OrderBlocksDemand[len(struc.SMC.OrderBlocksDemand)-1]
		zoneLow, zoneHigh = ob.PriceLow, ob.PriceHigh
	default:
		if sup := nearestSupport(diag.KeyLevels, currentPrice); sup != nil {
			zoneLow, zoneHigh = sup.Price*0.995, sup.Price*1.005
		} else if struc.SMC.DiscountZoneEnd > 0 {
			zoneLow, zoneHigh = struc.SMC.DiscountZoneEnd*0.995, struc.SMC.DiscountZoneEnd*1.005
		} else if ema20, ok20 := lastValid(ind.EMA[20]); ok20 {
			if ema50, ok50 := lastValid(ind.EMA[50]); ok50 {
				zoneLow, zoneHigh = math.Min(ema20, ema50), math.Max(ema20, ema50)
			}
		}
		if zoneLow == 0 && currentPrice > 0 {
			atr, _ := lastValid(ind.ATR14)
			zoneLow = currentPrice - atr*0.3
			zoneHigh = currentPrice
		}
	}
	if zoneLow > 0 && zoneHigh > 0 {
		plan.LimitBuyZone = &Zone{Low: zoneLow, High: zoneHigh}
	}

	switch {
	case len(struc.SMC.LiquidityHighs) > 0:
		plan.AddOnBreakoutLevel = ptr(struc.SMC.LiquidityHighs[0])
	default:
		if res := nearestResistance(diag.KeyLevels, currentPrice); res != nil {
			plan.AddOnBreakoutLevel = ptr(res.Price)
		} else if bb, ok := lastValid(ind.BBUpper); ok {
			plan.AddOnBreakoutLevel = ptr(bb)
		}
	}

	switch {
	case struc.SMC.PremiumZoneStart > 0:
		plan.DontDCAAbove = ptr(struc.SMC.PremiumZoneStart)
	default:
		if res := nearestResistance(diag.KeyLevels, currentPrice); res != nil {
			plan.DontDCAAbove = ptr(res.Price)
		} else if ema200, ok := lastValid(ind.EMA[200]); ok {
			plan.DontDCAAbove = ptr(ema200)
		} else if bb, ok := lastValid(ind.BBUpper); ok {
			plan.DontDCAAbove = ptr(bb)
		}
	}
}

// buildTrendFollowLevels implements spec §4.8: no limit zone below, only a
// breakout trigger and a distribution-zone ceiling.
func buildTrendFollowLevels(plan *TradePlan, diag diagnostics.Diagnostics, struc structure.Analysis, ind indicators.Set) {
	switch {
	case len(struc.SMC.LiquidityHighs) > 0:
		plan.AddOnBreakoutLevel = ptr(struc.SMC.LiquidityHighs[0])
	default:
		if bb, ok := lastValid(ind.BBUpper); ok {
			plan.AddOnBreakoutLevel = ptr(bb)
		}
	}
	if struc.SMC.PremiumZoneStart > 0 {
		plan.DontDCAAbove = ptr(struc.SMC.PremiumZoneStart)
	}
}

// buildMeanReversionLevels implements spec §4.8: a zone around VWAP / BB
// middle ± 2.5%, resistance at BB-upper or VWAP*1.05.
func buildMeanReversionLevels(plan *TradePlan, ind indicators.Set, currentPrice float64) {
	anchor, ok := lastValid(ind.VWAP)
	if !ok {
		anchor, ok = lastValid(ind.BBMiddle)
	}
	if !ok {
		anchor = currentPrice
	}
	if anchor > 0 {
		plan.LimitBuyZone = &Zone{Low: anchor * 0.975, High: anchor * 1.025}
	}
	if bb, ok := lastValid(ind.BBUpper); ok {
		plan.DontDCAAbove = ptr(bb)
	} else if anchor > 0 {
		plan.DontDCAAbove = ptr(anchor * 1.05)
	}
}

func scenarioPlaybook(mode Mode, phase diagnostics.Phase) string {
	switch mode {
	case ModeAccumulationPlay:
		return "scale in within the accumulation zone; add on a confirmed breakout above resistance"
	case ModeTrendFollow:
		return "ride the established trend; add on breakout confirmation, trail stops under swing lows"
	case ModeMeanReversion:
		return "fade the extension back toward the anchor mean; exit at resistance"
	case ModeDistributionWait:
		return "stand aside while distribution plays out; wait for a confirmed reversal"
	default:
		return "no clear edge; wait for the next phase to confirm"
	}
}
