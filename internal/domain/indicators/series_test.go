package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketdoctor/internal/domain/bars"
)

func TestCompute_MinimalSubsetBelowThreshold(t *testing.T) {
	series := bars.SyntheticUptrend(MinFullBars-1, 100, 1.001, 10)
	set := Compute(series)

	require.True(t, set.Minimal)
	assert.Nil(t, set.ADX)
	assert.Nil(t, set.PlusDI)
	assert.Nil(t, set.MinusDI)
	assert.Nil(t, set.Tenkan)
	assert.Nil(t, set.STC)
	_, has200 := set.EMA[200]
	assert.False(t, has200)

	_, has20 := set.EMA[20]
	assert.True(t, has20, "short-warmup indicators still populate below the full-bar threshold")
}

func TestCompute_FullSubsetAtThreshold(t *testing.T) {
	series := bars.SyntheticUptrend(MinFullBars, 100, 1.001, 10)
	set := Compute(series)

	require.False(t, set.Minimal)
	assert.Len(t, set.RSI14, len(series))
	assert.Len(t, set.ADX, len(series))
	assert.Len(t, set.Tenkan, len(series))
	assert.Len(t, set.STC, len(series))
}

func TestRSI_BoundedZeroToHundred(t *testing.T) {
	series := bars.SyntheticUptrend(200, 100, 1.02, 10)
	rsi := RSI(series.Closes(), 14)
	for i, v := range rsi {
		if math.IsNaN(v) {
			continue
		}
		assert.GreaterOrEqualf(t, v, 0.0, "rsi[%d]", i)
		assert.LessOrEqualf(t, v, 100.0, "rsi[%d]", i)
	}
	// A clean, strong uptrend should eventually push RSI well above neutral.
	assert.Greater(t, rsi[len(rsi)-1], 60.0)
}

func TestRSI_WarmupIsNaNNeverFabricated(t *testing.T) {
	series := bars.SyntheticRange(30, 100, 0.01, 5)
	rsi := RSI(series.Closes(), 14)
	for i := 0; i < 14; i++ {
		assert.Truef(t, math.IsNaN(rsi[i]), "expected warm-up NaN at index %d", i)
	}
	assert.False(t, math.IsNaN(rsi[14]))
}

func TestStochRSI_Bounded(t *testing.T) {
	series := bars.SyntheticRange(200, 100, 0.02, 5)
	k, d := StochRSI(series.Closes(), 14, 14, 3, 3)
	for i := range k {
		if !math.IsNaN(k[i]) {
			assert.GreaterOrEqual(t, k[i], 0.0)
			assert.LessOrEqual(t, k[i], 100.0)
		}
		if !math.IsNaN(d[i]) {
			assert.GreaterOrEqual(t, d[i], 0.0)
			assert.LessOrEqual(t, d[i], 100.0)
		}
	}
}

func TestSTC_Bounded(t *testing.T) {
	series := bars.SyntheticUptrend(200, 100, 1.01, 10)
	stc := STC(series.Closes(), 23, 50, 10)
	for i, v := range stc {
		if math.IsNaN(v) {
			continue
		}
		assert.GreaterOrEqualf(t, v, 0.0, "stc[%d]", i)
		assert.LessOrEqualf(t, v, 100.0, "stc[%d]", i)
	}
}

func TestOBV_MissingVolumeDefaultsFlat(t *testing.T) {
	series := bars.SyntheticUptrend(50, 100, 1.01, 0)
	require.False(t, series.HasVolume())
	obv := OBV(series.Closes(), series.Volumes(), series.HasVolume())
	for _, v := range obv {
		assert.Zero(t, v)
	}
}

func TestVolumeSpike_MissingVolumeDefaultsNeutral(t *testing.T) {
	series := bars.SyntheticRange(40, 100, 0.01, 0)
	spike := VolumeSpike(series.Volumes(), series.HasVolume(), 20)
	for _, v := range spike {
		assert.Equal(t, 1.0, v)
	}
}

func TestCompute_EmptySeriesDoesNotPanic(t *testing.T) {
	set := Compute(bars.Series{})
	assert.True(t, set.Minimal)
	assert.Empty(t, set.RSI14)
}

func TestMACD_HistogramIsDifferenceOfLines(t *testing.T) {
	series := bars.SyntheticUptrend(200, 100, 1.01, 10)
	macd, signal, hist := MACD(series.Closes(), 12, 26, 9)
	for i := range macd {
		if math.IsNaN(macd[i]) || math.IsNaN(signal[i]) {
			assert.Truef(t, math.IsNaN(hist[i]), "hist[%d] should be NaN when inputs are undefined", i)
			continue
		}
		assert.InDelta(t, macd[i]-signal[i], hist[i], 1e-9)
	}
}
