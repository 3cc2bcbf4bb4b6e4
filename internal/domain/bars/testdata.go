package bars

import "math"

// SyntheticUptrend generates n bars of a clean compounding uptrend, used by
// the S1 scenario (spec §8): close[i] = start*rate^i, constant volume.
func SyntheticUptrend(n int, start, rate, volume float64) Series {
	out := make(Series, n)
	prevClose := start
	for i := 0; i < n; i++ {
		close := start * math.Pow(rate, float64(i))
		open := prevClose
		high := math.Max(open, close) * 1.001
		low := math.Min(open, close) * 0.999
		out[i] = Bar{
			TimestampMS: int64(i) * 3_600_000,
			Open:        open,
			High:        high,
			Low:         low,
			Close:       close,
			Volume:      volume,
			HasVolume:   volume > 0,
		}
		prevClose = close
	}
	return out
}

// SyntheticRange generates n bars oscillating within +/- bandPct of mid,
// used by the S2 accumulation scenario.
func SyntheticRange(n int, mid, bandPct, volume float64) Series {
	out := make(Series, n)
	for i := 0; i < n; i++ {
		phase := float64(i) * 0.3
		close := mid * (1 + bandPct*math.Sin(phase))
		open := mid * (1 + bandPct*math.Sin(phase-0.3))
		high := math.Max(open, close) * 1.0005
		low := math.Min(open, close) * 0.9995
		out[i] = Bar{
			TimestampMS: int64(i) * 3_600_000,
			Open:        open,
			High:        high,
			Low:         low,
			Close:       close,
			Volume:      volume,
			HasVolume:   volume > 0,
		}
	}
	return out
}

// SyntheticShakeout returns a clean range for the first n-tailLen bars and a
// volatility/volume shock for the final tailLen bars, per the S3 scenario.
func SyntheticShakeout(n, tailLen int, mid, bandPct, volume float64) Series {
	out := SyntheticRange(n, mid, bandPct, volume)
	stableLen := n - tailLen
	for i := stableLen; i < n; i++ {
		b := out[i]
		mult := 3.0
		center := b.Close
		b.High = center * (1 + bandPct*mult)
		b.Low = center * (1 - bandPct*mult)
		b.Volume = volume / 3
		out[i] = b
	}
	return out
}

// AppendBars extends a series with follow-on bars whose highs/lows are given
// explicitly — used to construct the S4 snapshot->outcome scenario.
func AppendBars(base Series, startTS int64, highs, lows, closes []float64) Series {
	out := make(Series, 0, len(base)+len(highs))
	out = append(out, base...)
	ts := startTS
	for i := range highs {
		open := closes[i]
		if i > 0 {
			open = closes[i-1]
		}
		out = append(out, Bar{
			TimestampMS: ts,
			Open:        open,
			High:        highs[i],
			Low:         lows[i],
			Close:       closes[i],
			Volume:      1.0,
			HasVolume:   true,
		})
		ts += 3_600_000
	}
	return out
}
