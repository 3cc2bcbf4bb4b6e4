package tradeplan

import (
	"testing"

	"github.com/sawpanic/marketdoctor/internal/config"
	"github.com/sawpanic/marketdoctor/internal/domain/diagnostics"
	"github.com/sawpanic/marketdoctor/internal/domain/indicators"
	"github.com/sawpanic/marketdoctor/internal/domain/momentum"
	"github.com/sawpanic/marketdoctor/internal/domain/structure"
)

func baseIndicators() indicators.Set {
	return indicators.Set{
		EMA: map[int][]float64{20: {100}, 50: {98}, 200: {90}},
		SMA: map[int][]float64{20: {100}},
	}
}

func TestPlanAccumulationHasBuyZone(t *testing.T) {
	diag := diagnostics.Diagnostics{Phase: diagnostics.PhaseAccumulation, RiskScore: 0.2, PumpScore: 0.5, Confidence: 0.7, Volatility: "LOW", Liquidity: "MEDIUM"}
	plan := Plan(diag, structure.Analysis{}, baseIndicators(), []float64{100}, RegimeNeutral, nil, nil)
	if plan.Mode != ModeAccumulationPlay {
		t.Fatalf("mode = %s, want accumulation_play", plan.Mode)
	}
	if plan.LimitBuyZone == nil {
		t.Fatal("expected a non-nil limit buy zone")
	}
	if plan.SkipTrading {
		t.Fatal("low risk / decent pump should not skip trading")
	}
	if plan.PositionSizeFactor < 0.3 || plan.PositionSizeFactor > 1.5 {
		t.Fatalf("position size factor %.2f outside [0.3,1.5]", plan.PositionSizeFactor)
	}
}

func TestPlanSkipsOnHighRiskLowPump(t *testing.T) {
	diag := diagnostics.Diagnostics{Phase: diagnostics.PhaseDistribution, RiskScore: 0.9, PumpScore: 0.1, Confidence: 0.5, Volatility: "HIGH", Liquidity: "LOW"}
	plan := Plan(diag, structure.Analysis{}, baseIndicators(), []float64{100}, RegimeNeutral, nil, nil)
	if !plan.SkipTrading {
		t.Fatal("expected skip-trading to fire for high risk / low pump")
	}
}

func TestPlanExhaustionDisallowsSmallPosition(t *testing.T) {
	diag := diagnostics.Diagnostics{Phase: diagnostics.PhaseExpansionUp, RiskScore: 0.3, PumpScore: 0.4, Confidence: 0.6, Volatility: "MEDIUM", Liquidity: "MEDIUM"}
	insight := &momentum.Insight{Regime: momentum.RegimeExhaustion, Confidence: 0.9, Strength: 0.8}
	plan := Plan(diag, structure.Analysis{}, baseIndicators(), []float64{100}, RegimeNeutral, insight, nil)
	if plan.SmallPositionAllowed {
		t.Fatal("high-confidence exhaustion should disallow small positions")
	}
}

func TestPlanPanicRegimeShrinksSize(t *testing.T) {
	diag := diagnostics.Diagnostics{Phase: diagnostics.PhaseAccumulation, RiskScore: 0.3, PumpScore: 0.3, Confidence: 0.5, Volatility: "LOW", Liquidity: "MEDIUM"}
	plan := Plan(diag, structure.Analysis{}, baseIndicators(), []float64{100}, RegimePanic, nil, nil)
	if plan.PositionSizeFactor >= 0.6 {
		t.Fatalf("panic regime should shrink size well below default, got %.2f", plan.PositionSizeFactor)
	}
}

func TestPlanShakeoutFadesBackToMeanReversion(t *testing.T) {
	ind := baseIndicators()
	ind.VWAP = []float64{100}
	ind.BBUpper = []float64{108}
	diag := diagnostics.Diagnostics{Phase: diagnostics.PhaseShakeout, RiskScore: 0.4, PumpScore: 0.3, Confidence: 0.5, Volatility: "HIGH", Liquidity: "LOW"}
	plan := Plan(diag, structure.Analysis{}, ind, []float64{110}, RegimeNeutral, nil, nil)
	if plan.Mode != ModeMeanReversion {
		t.Fatalf("mode = %s, want mean_reversion", plan.Mode)
	}
	if plan.LimitBuyZone == nil {
		t.Fatal("expected a VWAP-anchored limit buy zone")
	}
}

func TestPlanSymbolProfileOverridesModeAndSize(t *testing.T) {
	diag := diagnostics.Diagnostics{Phase: diagnostics.PhaseAccumulation, RiskScore: 0.2, PumpScore: 0.5, Confidence: 0.7, Volatility: "LOW", Liquidity: "MEDIUM"}
	profile := &config.SymbolProfile{Symbol: "BTCUSDT", Risk: config.RiskProfileConservative, DefaultMode: string(ModeDistributionWait)}
	plan := Plan(diag, structure.Analysis{}, baseIndicators(), []float64{100}, RegimeNeutral, nil, profile)
	if plan.Mode != ModeDistributionWait {
		t.Fatalf("mode = %s, want the profile's override of distribution_wait", plan.Mode)
	}
	unscaled := Plan(diag, structure.Analysis{}, baseIndicators(), []float64{100}, RegimeNeutral, nil, nil)
	if plan.PositionSizeFactor >= unscaled.PositionSizeFactor {
		t.Fatalf("conservative profile should shrink position size factor: got %.3f vs unscaled %.3f", plan.PositionSizeFactor, unscaled.PositionSizeFactor)
	}
}
