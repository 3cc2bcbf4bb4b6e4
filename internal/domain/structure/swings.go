// Package structure implements C3 StructureAnalyzer: swing detection,
// support/resistance clustering, and smart-money-concept (SMC) structure
// reads (BOS/CHOCH, liquidity pools, order blocks, FVGs, premium/discount),
// per spec §4.3.
package structure

import "github.com/sawpanic/marketdoctor/internal/domain/bars"

// FindSwings returns the indices of swing highs and swing lows: a swing high
// is a bar whose high is the maximum within [i-left, i+right]; symmetric for
// swing lows. Grounded on the original system's find_swings.
func FindSwings(series bars.Series, left, right int) (highs, lows []int) {
	n := len(series)
	if n < left+right+1 {
		return nil, nil
	}
	for i := left; i < n-right; i++ {
		isHigh, isLow := true, true
		for j := i - left; j <= i+right; j++ {
			if series[j].High > series[i].High {
				isHigh = false
			}
			if series[j].Low < series[i].Low {
				isLow = false
			}
		}
		if isHigh {
			highs = append(highs, i)
		}
		if isLow {
			lows = append(lows, i)
		}
	}
	return highs, lows
}
