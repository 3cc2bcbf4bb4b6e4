package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketdoctor/internal/config"
	"github.com/sawpanic/marketdoctor/internal/domain/bars"
	"github.com/sawpanic/marketdoctor/internal/domain/indicators"
)

func TestExtract_EmptySeriesReturnsDefault(t *testing.T) {
	set := Extract(bars.Series{}, indicators.Set{}, nil, config.LoadDefault())
	assert.Equal(t, Default(), set)
}

func TestExtract_UptrendClassifiesBullish(t *testing.T) {
	cfg := config.LoadDefault()
	series := bars.SyntheticUptrend(200, 100, 1.01, 10)
	ind := indicators.Compute(series)
	set := Extract(series, ind, nil, cfg)
	assert.Equal(t, TrendBullish, set.Trend)
}

func TestExtract_MissingVolumeDefaultsMediumLiquidity(t *testing.T) {
	cfg := config.LoadDefault()
	series := bars.SyntheticUptrend(50, 100, 1.01, 0)
	require.False(t, series.HasVolume())
	ind := indicators.Compute(series)
	set := Extract(series, ind, nil, cfg)
	assert.Equal(t, LiquidityMedium, set.Liquidity)
}

func TestExtract_DerivativesClassification(t *testing.T) {
	cfg := config.LoadDefault()
	series := bars.SyntheticRange(60, 100, 0.01, 5)
	ind := indicators.Compute(series)

	set := Extract(series, ind, &Derivatives{FundingRate: 0.02, OIChangePct: 12, CVD: 5}, cfg)
	require.NotNil(t, set.Derivatives)
	assert.Equal(t, FundingExtremeLong, set.Derivatives.FundingState)
	assert.Equal(t, OIRapidIncrease, set.Derivatives.OIState)
	assert.Equal(t, CVDBuyingPressure, set.Derivatives.CVDState)
}

func TestExtract_NoDerivativesLeavesNil(t *testing.T) {
	cfg := config.LoadDefault()
	series := bars.SyntheticRange(60, 100, 0.01, 5)
	ind := indicators.Compute(series)
	set := Extract(series, ind, nil, cfg)
	assert.Nil(t, set.Derivatives)
}
