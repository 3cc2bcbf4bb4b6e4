package indicators

import (
	"math"

	"github.com/sawpanic/marketdoctor/internal/domain/bars"
)

func undefinedSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA computes the simple moving average over period, NaN before warm-up.
func SMA(prices []float64, period int) []float64 {
	out := undefinedSeries(len(prices))
	if period <= 0 {
		return out
	}
	sum := 0.0
	for i, p := range prices {
		sum += p
		if i >= period {
			sum -= prices[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes the exponential moving average, seeded by the SMA of the first period.
func EMA(prices []float64, period int) []float64 {
	out := undefinedSeries(len(prices))
	if period <= 0 || len(prices) < period {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += prices[i]
	}
	seed /= float64(period)
	out[period-1] = seed
	prev := seed
	for i := period; i < len(prices); i++ {
		prev = prices[i]*alpha + prev*(1-alpha)
		out[i] = prev
	}
	return out
}

// VWAP anchors from index 0 over the full window; falls back to SMA(20) when
// no bar carries volume, per spec §4.1.
func VWAP(series bars.Series, hasVolume bool) []float64 {
	if !hasVolume {
		return SMA(series.Closes(), 20)
	}
	out := undefinedSeries(len(series))
	cumPV, cumV := 0.0, 0.0
	for i, b := range series {
		typical := (b.High + b.Low + b.Close) / 3
		cumPV += typical * b.Volume
		cumV += b.Volume
		if cumV > 0 {
			out[i] = cumPV / cumV
		}
	}
	return out
}

// Bollinger returns upper, middle (SMA20), lower bands at k standard deviations.
func Bollinger(prices []float64, period int, k float64) (upper, middle, lower []float64) {
	middle = SMA(prices, period)
	upper = undefinedSeries(len(prices))
	lower = undefinedSeries(len(prices))
	for i := range prices {
		if i < period-1 {
			continue
		}
		mean := middle[i]
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := prices[j] - mean
			variance += d * d
		}
		stdev := math.Sqrt(variance / float64(period))
		upper[i] = mean + k*stdev
		lower[i] = mean - k*stdev
	}
	return
}

// RSI computes Wilder-smoothed relative strength index. Invariant: 0<=RSI<=100.
func RSI(prices []float64, period int) []float64 {
	out := undefinedSeries(len(prices))
	if len(prices) < period+1 {
		return out
	}
	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFromAvg(avgGain, avgLoss)

	alpha := 1.0 / float64(period)
	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = avgGain*(1-alpha) + gain*alpha
		avgLoss = avgLoss*(1-alpha) + loss*alpha
		out[i] = rsiFromAvg(avgGain, avgLoss)
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	v := 100.0 - (100.0 / (1.0 + rs))
	return math.Max(0, math.Min(100, v))
}

// StochRSI returns smoothed %K and %D of the RSI over rsiPeriod/stochPeriod,
// both clamped to [0,100].
func StochRSI(prices []float64, rsiPeriod, stochPeriod, kSmooth, dSmooth int) (k, d []float64) {
	rsi := RSI(prices, rsiPeriod)
	rawK := undefinedSeries(len(prices))
	for i := range prices {
		if i < stochPeriod-1 {
			continue
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		valid := true
		for j := i - stochPeriod + 1; j <= i; j++ {
			if math.IsNaN(rsi[j]) {
				valid = false
				break
			}
			lo = math.Min(lo, rsi[j])
			hi = math.Max(hi, rsi[j])
		}
		if !valid {
			continue
		}
		if hi-lo == 0 {
			rawK[i] = 50.0
		} else {
			rawK[i] = 100 * (rsi[i] - lo) / (hi - lo)
		}
	}
	k = smoothSeries(rawK, kSmooth)
	d = smoothSeries(k, dSmooth)
	for i := range k {
		if !math.IsNaN(k[i]) {
			k[i] = math.Max(0, math.Min(100, k[i]))
		}
		if !math.IsNaN(d[i]) {
			d[i] = math.Max(0, math.Min(100, d[i]))
		}
	}
	return
}

func smoothSeries(in []float64, period int) []float64 {
	out := undefinedSeries(len(in))
	sum, count := 0.0, 0
	window := make([]float64, 0, period)
	for i, v := range in {
		if math.IsNaN(v) {
			window = window[:0]
			sum, count = 0, 0
			continue
		}
		window = append(window, v)
		sum += v
		count++
		if len(window) > period {
			sum -= window[0]
			window = window[1:]
			count--
		}
		if count == period {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// MACD returns the macd line, signal line, and histogram.
func MACD(prices []float64, fast, slow, signalPeriod int) (macd, signal, hist []float64) {
	emaFast := EMA(prices, fast)
	emaSlow := EMA(prices, slow)
	macd = undefinedSeries(len(prices))
	for i := range prices {
		if !math.IsNaN(emaFast[i]) && !math.IsNaN(emaSlow[i]) {
			macd[i] = emaFast[i] - emaSlow[i]
		}
	}
	signal = EMA(compactNaN(macd), signalPeriod)
	signal = realignAfterCompact(macd, signal)
	hist = undefinedSeries(len(prices))
	for i := range prices {
		if !math.IsNaN(macd[i]) && !math.IsNaN(signal[i]) {
			hist[i] = macd[i] - signal[i]
		}
	}
	return
}

// compactNaN drops leading NaNs so EMA's warm-up logic operates on defined values only.
func compactNaN(in []float64) []float64 {
	start := 0
	for start < len(in) && math.IsNaN(in[start]) {
		start++
	}
	return in[start:]
}

// realignAfterCompact maps an EMA computed on a NaN-stripped slice back onto
// the original index space.
func realignAfterCompact(original, compactResult []float64) []float64 {
	out := undefinedSeries(len(original))
	offset := len(original) - len(compactResult)
	for i, v := range compactResult {
		out[offset+i] = v
	}
	return out
}

// ATR computes Wilder-smoothed average true range.
func ATR(series bars.Series, period int) []float64 {
	out := undefinedSeries(len(series))
	if len(series) < period+1 {
		return out
	}
	tr := make([]float64, len(series))
	for i := 1; i < len(series); i++ {
		hl := series[i].High - series[i].Low
		hc := math.Abs(series[i].High - series[i-1].Close)
		lc := math.Abs(series[i].Low - series[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += tr[i]
	}
	atr /= float64(period)
	out[period] = atr
	alpha := 1.0 / float64(period)
	for i := period + 1; i < len(series); i++ {
		atr = atr*(1-alpha) + tr[i]*alpha
		out[i] = atr
	}
	return out
}

// OBV computes on-balance volume; defaults to a flat 0 series without volume.
func OBV(closes, volumes []float64, hasVolume bool) []float64 {
	out := make([]float64, len(closes))
	if !hasVolume {
		return out
	}
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volumes[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// CMF computes the Chaikin Money Flow over period bars; 0 without volume.
func CMF(series bars.Series, period int, hasVolume bool) []float64 {
	out := undefinedSeries(len(series))
	if !hasVolume {
		for i := range out {
			out[i] = 0
		}
		return out
	}
	mfv := make([]float64, len(series))
	for i, b := range series {
		rng := b.High - b.Low
		if rng == 0 {
			mfv[i] = 0
			continue
		}
		mult := ((b.Close - b.Low) - (b.High - b.Close)) / rng
		mfv[i] = mult * b.Volume
	}
	for i := range series {
		if i < period-1 {
			continue
		}
		sumMFV, sumVol := 0.0, 0.0
		for j := i - period + 1; j <= i; j++ {
			sumMFV += mfv[j]
			sumVol += series[j].Volume
		}
		if sumVol > 0 {
			out[i] = sumMFV / sumVol
		} else {
			out[i] = 0
		}
	}
	return out
}

// ADX computes the Average Directional Index with +DI/-DI, Wilder smoothed.
func ADX(series bars.Series, period int) (adx, plusDI, minusDI []float64) {
	n := len(series)
	adx, plusDI, minusDI = undefinedSeries(n), undefinedSeries(n), undefinedSeries(n)
	if n < period*2+1 {
		return
	}
	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		hl := series[i].High - series[i].Low
		hc := math.Abs(series[i].High - series[i-1].Close)
		lc := math.Abs(series[i].Low - series[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
		upMove := series[i].High - series[i-1].High
		downMove := series[i-1].Low - series[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	smoothedTR, smoothedPlus, smoothedMinus := 0.0, 0.0, 0.0
	for i := 1; i <= period; i++ {
		smoothedTR += tr[i]
		smoothedPlus += plusDM[i]
		smoothedMinus += minusDM[i]
	}

	dxValues := make([]float64, n)
	alpha := 1.0 / float64(period)
	for i := period; i < n; i++ {
		if i > period {
			smoothedTR = smoothedTR*(1-alpha) + tr[i]*alpha
			smoothedPlus = smoothedPlus*(1-alpha) + plusDM[i]*alpha
			smoothedMinus = smoothedMinus*(1-alpha) + minusDM[i]*alpha
		}
		if smoothedTR == 0 {
			continue
		}
		pdi := 100 * smoothedPlus / smoothedTR
		mdi := 100 * smoothedMinus / smoothedTR
		plusDI[i] = pdi
		minusDI[i] = mdi
		sum := pdi + mdi
		if sum > 0 {
			dxValues[i] = 100 * math.Abs(pdi-mdi) / sum
		}
	}

	adxSeed := 0.0
	seedStart := period * 2
	if seedStart >= n {
		return
	}
	for i := period; i < seedStart; i++ {
		adxSeed += dxValues[i]
	}
	adxSeed /= float64(period)
	adx[seedStart] = adxSeed
	prevADX := adxSeed
	for i := seedStart + 1; i < n; i++ {
		prevADX = prevADX*(1-alpha) + dxValues[i]*alpha
		adx[i] = prevADX
	}
	return
}

// Ichimoku returns tenkan-sen, kijun-sen, senkou span A and B (not shifted forward;
// callers needing the displaced projection should offset by `displacement`).
func Ichimoku(highs, lows []float64, tenkanP, kijunP, senkouP, displacement int) (tenkan, kijun, senkouA, senkouB []float64) {
	n := len(highs)
	tenkan = midpointChannel(highs, lows, tenkanP)
	kijun = midpointChannel(highs, lows, kijunP)
	senkouB = midpointChannel(highs, lows, senkouP)
	senkouA = undefinedSeries(n)
	for i := 0; i < n; i++ {
		if !math.IsNaN(tenkan[i]) && !math.IsNaN(kijun[i]) {
			senkouA[i] = (tenkan[i] + kijun[i]) / 2
		}
	}
	return
}

func midpointChannel(highs, lows []float64, period int) []float64 {
	out := undefinedSeries(len(highs))
	for i := range highs {
		if i < period-1 {
			continue
		}
		hi, lo := math.Inf(-1), math.Inf(1)
		for j := i - period + 1; j <= i; j++ {
			hi = math.Max(hi, highs[j])
			lo = math.Min(lo, lows[j])
		}
		out[i] = (hi + lo) / 2
	}
	return out
}

// WaveTrend returns wt1 (the smoothed oscillator) and wt2 (its SMA(4) signal).
func WaveTrend(highs, lows, closes []float64, channelLen, avgLen int) (wt1, wt2 []float64) {
	n := len(closes)
	ap := make([]float64, n)
	for i := range closes {
		ap[i] = (highs[i] + lows[i] + closes[i]) / 3
	}
	esa := EMA(ap, channelLen)
	diff := undefinedSeries(n)
	for i := range ap {
		if !math.IsNaN(esa[i]) {
			diff[i] = math.Abs(ap[i] - esa[i])
		}
	}
	d := EMA(compactNaN(diff), channelLen)
	d = realignAfterCompact(diff, d)

	ci := undefinedSeries(n)
	for i := range ap {
		if !math.IsNaN(esa[i]) && !math.IsNaN(d[i]) && d[i] != 0 {
			ci[i] = (ap[i] - esa[i]) / (0.015 * d[i])
		}
	}
	tci := EMA(compactNaN(ci), avgLen)
	wt1 = realignAfterCompact(ci, tci)
	wt2 = SMA(wt1, 4)
	return
}

// STC (Schaff Trend Cycle) approximates a cycle-corrected MACD stochastic, 0-100.
func STC(prices []float64, fast, slow, cycle int) []float64 {
	macd, _, _ := MACD(prices, fast, slow, cycle)
	n := len(prices)
	stoch1 := stochasticOf(macd, cycle)
	stoch1Smoothed := smoothSeries(stoch1, 3)
	stoch2 := stochasticOf(stoch1Smoothed, cycle)
	out := smoothSeries(stoch2, 3)
	for i := 0; i < n; i++ {
		if !math.IsNaN(out[i]) {
			out[i] = math.Max(0, math.Min(100, out[i]))
		}
	}
	return out
}

func stochasticOf(series []float64, period int) []float64 {
	out := undefinedSeries(len(series))
	for i := range series {
		if i < period-1 || math.IsNaN(series[i]) {
			continue
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		valid := true
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(series[j]) {
				valid = false
				break
			}
			lo = math.Min(lo, series[j])
			hi = math.Max(hi, series[j])
		}
		if !valid {
			continue
		}
		if hi-lo == 0 {
			out[i] = 50
		} else {
			out[i] = 100 * (series[i] - lo) / (hi - lo)
		}
	}
	return out
}

// VolumeSpike returns the ratio of current volume to its rolling mean,
// defaulting to 1.0 (neutral) wherever volume is absent, per spec §4.1.
func VolumeSpike(volumes []float64, hasVolume bool, period int) []float64 {
	out := make([]float64, len(volumes))
	if !hasVolume {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	means := SMA(volumes, period)
	for i := range volumes {
		if math.IsNaN(means[i]) || means[i] == 0 {
			out[i] = 1.0
			continue
		}
		out[i] = volumes[i] / means[i]
	}
	return out
}
