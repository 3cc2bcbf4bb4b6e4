package structure

import "math"

// FibRetracementRatios are the standard Fibonacci retracement ratios.
var FibRetracementRatios = []float64{0.0, 0.236, 0.382, 0.5, 0.618, 0.786, 1.0}

// FibExtensionRatios are the standard Fibonacci extension ratios.
var FibExtensionRatios = []float64{1.0, 1.272, 1.618, 2.0, 2.618}

// FibLevelKind distinguishes retracement from extension levels.
type FibLevelKind string

const (
	FibRetracement FibLevelKind = "retracement"
	FibExtension   FibLevelKind = "extension"
)

// FibonacciLevel is a single price level at a given Fibonacci ratio.
type FibonacciLevel struct {
	Price float64
	Ratio float64
	Kind  FibLevelKind
}

// FibonacciAnalysis is the full retracement/extension ladder for one swing.
type FibonacciAnalysis struct {
	SwingHigh         float64
	SwingLow          float64
	RetracementLevels []FibonacciLevel
	ExtensionLevels   []FibonacciLevel
	CurrentPrice      float64
	NearestLevel      *FibonacciLevel
}

// CalculateFibonacciLevels builds the retracement and extension ladders for
// a swing range. direction is "up", "down", or "" to auto-detect from where
// the current price sits relative to the swing midpoint.
func CalculateFibonacciLevels(swingHigh, swingLow, currentPrice float64, direction string) FibonacciAnalysis {
	if swingHigh <= swingLow {
		swingHigh = math.Max(swingHigh, currentPrice*1.1)
		swingLow = math.Min(swingLow, currentPrice*0.9)
	}
	if direction == "" || direction == "auto" {
		mid := (swingHigh + swingLow) / 2
		if currentPrice > mid {
			direction = "up"
		} else {
			direction = "down"
		}
	}
	diff := swingHigh - swingLow

	var retracements []FibonacciLevel
	for _, ratio := range FibRetracementRatios {
		var price float64
		if direction == "up" {
			price = swingHigh - diff*ratio
		} else {
			price = swingLow + diff*ratio
		}
		retracements = append(retracements, FibonacciLevel{Price: price, Ratio: ratio, Kind: FibRetracement})
	}

	var extensions []FibonacciLevel
	for _, ratio := range FibExtensionRatios {
		if ratio <= 1.0 {
			continue
		}
		var price float64
		if direction == "up" {
			price = swingLow + diff*ratio
		} else {
			price = swingHigh - diff*ratio
		}
		extensions = append(extensions, FibonacciLevel{Price: price, Ratio: ratio, Kind: FibExtension})
	}

	analysis := FibonacciAnalysis{
		SwingHigh: swingHigh, SwingLow: swingLow,
		RetracementLevels: retracements, ExtensionLevels: extensions,
		CurrentPrice: currentPrice,
	}

	var nearest *FibonacciLevel
	minDist := math.Inf(1)
	all := append(append([]FibonacciLevel{}, retracements...), extensions...)
	for i := range all {
		d := math.Abs(all[i].Price - currentPrice)
		if d < minDist {
			minDist = d
			nearest = &all[i]
		}
	}
	analysis.NearestLevel = nearest
	return analysis
}

// FindSwingPoints returns the single most recent swing high and swing low
// within the series using a symmetric lookback window; used by the
// Fibonacci/Elliott heuristics which need one dominant swing rather than
// the full cluster FindSwings produces.
func FindSwingPoints(highs, lows []float64, lookback int) (swingHighIdx int, swingHigh float64, swingLowIdx int, swingLow float64, ok bool) {
	n := len(highs)
	if n < lookback*2+1 || len(lows) < lookback*2+1 {
		return 0, 0, 0, 0, false
	}
	swingHighIdx, swingLowIdx = -1, -1
	for i := lookback; i < n-lookback; i++ {
		isHigh := true
		for j := i - lookback; j <= i+lookback; j++ {
			if j != i && highs[j] >= highs[i] {
				isHigh = false
				break
			}
		}
		if isHigh {
			swingHighIdx = i
			swingHigh = highs[i]
		}
	}
	for i := lookback; i < n-lookback; i++ {
		isLow := true
		for j := i - lookback; j <= i+lookback; j++ {
			if j != i && lows[j] <= lows[i] {
				isLow = false
				break
			}
		}
		if isLow {
			swingLowIdx = i
			swingLow = lows[i]
		}
	}
	if swingHighIdx == -1 || swingLowIdx == -1 {
		return 0, 0, 0, 0, false
	}
	return swingHighIdx, swingHigh, swingLowIdx, swingLow, true
}
