package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/marketdoctor/internal/config"
	"github.com/sawpanic/marketdoctor/internal/domain/bars"
	"github.com/sawpanic/marketdoctor/internal/domain/features"
	"github.com/sawpanic/marketdoctor/internal/domain/indicators"
	"github.com/sawpanic/marketdoctor/internal/domain/structure"
)

func TestAnalyze_ScoresAreBounded(t *testing.T) {
	cfg := config.LoadDefault()
	series := bars.SyntheticUptrend(200, 100, 1.01, 10)
	ind := indicators.Compute(series)
	feat := features.Extract(series, ind, nil, cfg)
	struc := structure.Analyze(series)

	d := Analyze("BTCUSDT", "1h", series, ind, feat, struc, nil, cfg, nil)
	assert.GreaterOrEqual(t, d.RiskScore, 0.0)
	assert.LessOrEqual(t, d.RiskScore, 1.0)
	assert.GreaterOrEqual(t, d.PumpScore, 0.0)
	assert.LessOrEqual(t, d.PumpScore, 1.0)
	assert.GreaterOrEqual(t, d.Confidence, 0.0)
	assert.LessOrEqual(t, d.Confidence, 1.0)
}

func TestAnalyze_ConservativeProfileRaisesRiskScore(t *testing.T) {
	cfg := config.LoadDefault()
	series := bars.SyntheticUptrend(200, 100, 1.01, 10)
	ind := indicators.Compute(series)
	feat := features.Extract(series, ind, nil, cfg)
	struc := structure.Analyze(series)

	base := Analyze("BTCUSDT", "1h", series, ind, feat, struc, nil, cfg, nil)
	conservative := Analyze("BTCUSDT", "1h", series, ind, feat, struc, nil, cfg, &config.SymbolProfile{Risk: config.RiskProfileConservative})
	if base.RiskScore > 0 && conservative.RiskScore <= base.RiskScore {
		t.Fatalf("conservative profile should raise the risk score: base=%.4f conservative=%.4f", base.RiskScore, conservative.RiskScore)
	}
	assert.LessOrEqual(t, conservative.RiskScore, 1.0)
}

func TestClassifyPhase_ShakeoutOnHighVolLowLiquidity(t *testing.T) {
	cfg := config.LoadDefault()
	phase := classifyPhase(features.TrendNeutral, features.VolatilityHigh, features.LiquidityLow, features.StructureRange, nil, cfg)
	assert.Equal(t, PhaseShakeout, phase)
}

func TestClassifyPhase_DerivativesOverrideToShakeout(t *testing.T) {
	cfg := config.LoadDefault()
	deriv := &features.Derivatives{FundingRate: -0.02, OIChangePct: 8}
	phase := classifyPhase(features.TrendNeutral, features.VolatilityLow, features.LiquidityLow, features.StructureRange, deriv, cfg)
	assert.Equal(t, PhaseShakeout, phase)
}
