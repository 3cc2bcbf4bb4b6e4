package momentum

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/marketdoctor/internal/config"
	"github.com/sawpanic/marketdoctor/internal/domain/bars"
	"github.com/sawpanic/marketdoctor/internal/domain/diagnostics"
	"github.com/sawpanic/marketdoctor/internal/domain/features"
	"github.com/sawpanic/marketdoctor/internal/domain/indicators"
	"github.com/sawpanic/marketdoctor/internal/domain/structure"
)

func buildInsight(t *testing.T, series bars.Series) (diagnostics.Diagnostics, indicators.Set, features.Set) {
	t.Helper()
	cfg := config.LoadDefault()
	ind := indicators.Compute(series)
	feat := features.Extract(series, ind, nil, cfg)
	struc := structure.Analyze(series)
	diag := diagnostics.Analyze("BTCUSDT", "1h", series, ind, feat, struc, nil, cfg, nil)
	return diag, ind, feat
}

func TestAnalyse_UptrendYieldsNonNilInsightWithBoundedOutputs(t *testing.T) {
	series := bars.SyntheticUptrend(200, 100, 1.01, 10)
	diag, ind, feat := buildInsight(t, series)

	insight := Analyse(diag, ind, feat, nil)
	if insight == nil {
		t.Fatal("expected non-nil insight for a well-formed 200-bar series")
	}
	assert.GreaterOrEqual(t, insight.Strength, 0.0)
	assert.LessOrEqual(t, insight.Strength, 1.0)
	assert.GreaterOrEqual(t, insight.Confidence, 0.0)
	assert.LessOrEqual(t, insight.Confidence, 1.0)
	assert.Contains(t, []Regime{RegimeContinuation, RegimeExhaustion, RegimeReversalRisk, RegimeNeutral}, insight.Regime)
	assert.Contains(t, []Bias{BiasLong, BiasShort, BiasNeutral}, insight.Bias)
}

func TestAnalyse_TooFewOscillatorsReturnsNil(t *testing.T) {
	series := bars.SyntheticRange(3, 100, 0.01, 5)
	cfg := config.LoadDefault()
	ind := indicators.Compute(series)
	feat := features.Extract(series, ind, nil, cfg)
	struc := structure.Analyze(series)
	diag := diagnostics.Analyze("BTCUSDT", "1h", series, ind, feat, struc, nil, cfg, nil)

	insight := Analyse(diag, ind, feat, nil)
	assert.Nil(t, insight)
}

func TestAnalyse_DerivativesAdjustConfidenceWithoutPanicking(t *testing.T) {
	series := bars.SyntheticUptrend(200, 100, 1.01, 10)
	diag, ind, feat := buildInsight(t, series)

	deriv := &features.Derivatives{FundingRate: 0.02, OIChangePct: 15}
	insight := Analyse(diag, ind, feat, deriv)
	if insight == nil {
		t.Fatal("expected non-nil insight")
	}
	assert.GreaterOrEqual(t, insight.Confidence, 0.0)
	assert.LessOrEqual(t, insight.Confidence, 1.0)
}

func TestAnalyse_DowntrendLeansShortOrNeutral(t *testing.T) {
	series := bars.SyntheticUptrend(200, 100, 0.99, 10)
	diag, ind, feat := buildInsight(t, series)

	insight := Analyse(diag, ind, feat, nil)
	if insight == nil {
		t.Fatal("expected non-nil insight")
	}
	assert.NotEqual(t, BiasLong, insight.Bias)
}
