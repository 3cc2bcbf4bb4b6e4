// Package bars defines the OHLCV primitive every downstream pipeline stage consumes.
package bars

import "fmt"

// Bar is one OHLCV candle for a single symbol/timeframe.
type Bar struct {
	TimestampMS int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	HasVolume   bool
}

// Series is an ascending-by-time slice of Bar for one (symbol, timeframe).
type Series []Bar

// Closes returns the close-price series, in the same order as the bars.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Close
	}
	return out
}

// Volumes returns the volume series; entries default to 0 when a bar has no volume.
func (s Series) Volumes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Volume
	}
	return out
}

// HasVolume reports whether any bar in the series carries real volume data.
func (s Series) HasVolume() bool {
	for _, b := range s {
		if b.HasVolume {
			return true
		}
	}
	return false
}

// Validate enforces the ingest-boundary invariants from spec §3/§7
// (InputMalformed never reaches the core). Callers at the repository
// boundary should reject bars failing this check before they enter C1.
func Validate(s Series) error {
	var prevTS int64 = -1
	for i, b := range s {
		if b.Low > min(b.Open, b.Close) || max(b.Open, b.Close) > b.High {
			return fmt.Errorf("bars: OHLC invariant violated at index %d: low=%.8f high=%.8f open=%.8f close=%.8f",
				i, b.Low, b.High, b.Open, b.Close)
		}
		if b.TimestampMS <= prevTS {
			return fmt.Errorf("bars: non-monotone timestamp at index %d: %d <= %d", i, b.TimestampMS, prevTS)
		}
		prevTS = b.TimestampMS
	}
	return nil
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
