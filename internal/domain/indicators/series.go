// Package indicators implements C1 IndicatorCalculator: a pure, deterministic
// transform from an OHLCV bar series to a Set of named, index-aligned
// indicator series. Warm-up positions are NaN ("undefined"), never fabricated values,
// per spec §4.1 / §8 invariant 1.
package indicators

import "github.com/sawpanic/marketdoctor/internal/domain/bars"

// MinFullBars is the warm-up threshold below which only a minimal indicator
// subset is computed (spec §4.1).
const MinFullBars = 150

// Set is the full indicator output for one bar series: every series has the
// same length as the input bars; undefined positions hold math.NaN().
type Set struct {
	EMA        map[int][]float64 // keyed by period
	SMA        map[int][]float64
	VWAP       []float64
	BBUpper    []float64
	BBMiddle   []float64
	BBLower    []float64
	RSI14      []float64
	StochK     []float64
	StochD     []float64
	MACD       []float64
	MACDSignal []float64
	MACDHist   []float64
	ATR14      []float64
	OBV        []float64
	CMF20      []float64
	ADX        []float64
	PlusDI     []float64
	MinusDI    []float64
	Tenkan     []float64
	Kijun      []float64
	SenkouA    []float64
	SenkouB    []float64
	WT1        []float64
	WT2        []float64
	STC        []float64
	VolSpike   []float64

	Minimal bool // true when bars fell below MinFullBars and only a reduced subset was computed
}

// Compute runs the full C1 transform. Deterministic and side-effect free.
func Compute(series bars.Series) Set {
	closes := series.Closes()
	highs := make([]float64, len(series))
	lows := make([]float64, len(series))
	for i, b := range series {
		highs[i] = b.High
		lows[i] = b.Low
	}
	volumes := series.Volumes()
	hasVolume := series.HasVolume()

	minimal := len(series) < MinFullBars

	set := Set{
		EMA:     map[int][]float64{20: EMA(closes, 20), 50: EMA(closes, 50), 200: EMA(closes, 200)},
		SMA:     map[int][]float64{20: SMA(closes, 20)},
		VWAP:    VWAP(series, hasVolume),
		RSI14:   RSI(closes, 14),
		ATR14:   ATR(series, 14),
		OBV:     OBV(closes, volumes, hasVolume),
		Minimal: minimal,
	}
	set.BBUpper, set.BBMiddle, set.BBLower = Bollinger(closes, 20, 2.0)
	set.StochK, set.StochD = StochRSI(closes, 14, 14, 3, 3)
	set.MACD, set.MACDSignal, set.MACDHist = MACD(closes, 12, 26, 9)
	set.CMF20 = CMF(series, 20, hasVolume)
	set.ADX, set.PlusDI, set.MinusDI = ADX(series, 14)
	set.WT1, set.WT2 = WaveTrend(highs, lows, closes, 10, 21)
	set.STC = STC(closes, 23, 50, 10)
	set.VolSpike = VolumeSpike(volumes, hasVolume, 20)

	if minimal {
		// Only indicators whose warm-up genuinely fits len(series) are kept;
		// everything requiring long warm-up (EMA200, ADX, Ichimoku, STC) is dropped.
		delete(set.EMA, 200)
		set.ADX, set.PlusDI, set.MinusDI = nil, nil, nil
		set.Tenkan, set.Kijun, set.SenkouA, set.SenkouB = nil, nil, nil, nil
		set.STC = nil
		return set
	}

	set.Tenkan, set.Kijun, set.SenkouA, set.SenkouB = Ichimoku(highs, lows, 9, 26, 52, 26)
	return set
}
