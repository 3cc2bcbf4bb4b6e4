package structure

import "github.com/sawpanic/marketdoctor/internal/domain/bars"

// Analysis is the full C3 output for one bar series.
type Analysis struct {
	SwingHighs []int
	SwingLows  []int
	Levels     []Level
	SMC        Context
	Legs       []PriceLeg
	Wave       ElliottRead
	Fibonacci  *FibonacciAnalysis
}

// Analyze runs the full structure pipeline: swings, level clustering, SMC
// context, price legs, and the Elliott-style wave heuristic.
func Analyze(series bars.Series) Analysis {
	const (
		swingLeft   = 2
		swingRight  = 2
		bosLookback = 20
		minLegPct   = 2.0
	)
	if len(series) < swingLeft+swingRight+1 {
		return Analysis{Wave: ElliottRead{Phase: WaveUndefined, Description: "insufficient data for wave structure"}}
	}

	swingHighs, swingLows := FindSwings(series, swingLeft, swingRight)
	levels := BuildSupportResistanceLevels(series, swingLeft, swingRight, 0.3, 0.2)
	smc := AnalyzeSMCContext(series, swingLeft, swingRight, bosLookback)
	legs := AnalyzeLegs(series, swingHighs, swingLows, minLegPct)
	wave := ClassifyWavePhase(legs)

	analysis := Analysis{
		SwingHighs: swingHighs, SwingLows: swingLows,
		Levels: levels, SMC: smc, Legs: legs, Wave: wave,
	}

	highs := make([]float64, len(series))
	lows := make([]float64, len(series))
	for i, b := range series {
		highs[i] = b.High
		lows[i] = b.Low
	}
	if _, swingHigh, _, swingLow, ok := FindSwingPoints(highs, lows, 5); ok {
		fib := CalculateFibonacciLevels(swingHigh, swingLow, series[len(series)-1].Close, "auto")
		analysis.Fibonacci = &fib
	}
	return analysis
}
