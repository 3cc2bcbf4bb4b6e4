package structure

import (
	"math"

	"github.com/sawpanic/marketdoctor/internal/domain/bars"
)

// StructureEventKind distinguishes a break of structure from a change of character.
type StructureEventKind string

const (
	EventBOS   StructureEventKind = "BOS"
	EventCHOCH StructureEventKind = "CHOCH"
)

// Direction is the bias of a structure event.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// StructureEvent is a single detected BOS or CHOCH.
type StructureEvent struct {
	Kind      StructureEventKind
	Direction Direction
	Price     float64
	Index     int
	Strength  float64
}

// OrderBlock is a demand or supply zone preceding a BOS.
type OrderBlock struct {
	Kind        LevelKind
	PriceLow    float64
	PriceHigh   float64
	Index       int
	Strength    float64
	VolumeRatio float64
}

// FairValueGap is an imbalance left between three consecutive candles.
type FairValueGap struct {
	PriceLow  float64
	PriceHigh float64
	Index     int
	Bullish   bool
	Filled    bool
}

// Position classifies where the current price sits within the active range.
type Position string

const (
	PositionPremium  Position = "premium"
	PositionDiscount Position = "discount"
	PositionNeutral  Position = "neutral"
)

// Context is the full SMC read for one bar series.
type Context struct {
	LastBOS            *StructureEvent
	LastCHOCH          *StructureEvent
	LiquidityHighs     []float64
	LiquidityLows      []float64
	OrderBlocksDemand  []OrderBlock
	OrderBlocksSupply  []OrderBlock
	FVGs               []FairValueGap
	PremiumZoneStart   float64
	DiscountZoneEnd    float64
	CurrentPosition    Position
}

// DetectBOSCHOCH finds the most recent break-of-structure and
// change-of-character events within the trailing lookback window.
func DetectBOSCHOCH(series bars.Series, swingHighs, swingLows []int, lookback int) (lastBOS, lastCHOCH *StructureEvent) {
	n := len(series)
	if n < lookback || len(swingHighs) == 0 || len(swingLows) == 0 {
		return nil, nil
	}
	minIdx := n - lookback
	var recentHighs, recentLows []int
	for _, i := range swingHighs {
		if i >= minIdx {
			recentHighs = append(recentHighs, i)
		}
	}
	for _, i := range swingLows {
		if i >= minIdx {
			recentLows = append(recentLows, i)
		}
	}
	if len(recentHighs) < 2 || len(recentLows) < 2 {
		return nil, nil
	}

	curHighIdx, prevHighIdx := recentHighs[len(recentHighs)-1], recentHighs[len(recentHighs)-2]
	curHigh, prevHigh := series[curHighIdx].High, series[prevHighIdx].High
	if curHigh > prevHigh*1.01 {
		lastBOS = &StructureEvent{
			Kind: EventBOS, Direction: DirectionUp, Price: curHigh, Index: curHighIdx,
			Strength: math.Min((curHigh/prevHigh-1.0)*10, 1.0),
		}
	}

	curLowIdx, prevLowIdx := recentLows[len(recentLows)-1], recentLows[len(recentLows)-2]
	curLow, prevLow := series[curLowIdx].Low, series[prevLowIdx].Low
	if curLow < prevLow*0.99 {
		if lastBOS == nil || lastBOS.Direction != DirectionDown {
			lastBOS = &StructureEvent{
				Kind: EventBOS, Direction: DirectionDown, Price: curLow, Index: curLowIdx,
				Strength: math.Min((1.0-curLow/prevLow)*10, 1.0),
			}
		}
	}

	if lastBOS != nil && lastBOS.Direction == DirectionUp && len(recentLows) >= 2 {
		if curLow < prevLow {
			lastCHOCH = &StructureEvent{Kind: EventCHOCH, Direction: DirectionDown, Price: curLow, Index: curLowIdx, Strength: 0.7}
		}
	}
	if lastBOS != nil && lastBOS.Direction == DirectionDown && len(recentHighs) >= 2 {
		if curHigh > prevHigh {
			lastCHOCH = &StructureEvent{Kind: EventCHOCH, Direction: DirectionUp, Price: curHigh, Index: curHighIdx, Strength: 0.7}
		}
	}
	return lastBOS, lastCHOCH
}

// DetectLiquidityPools groups equal highs/lows (within toleranceBps) into
// liquidity-pool price levels; a pool requires at least 2 swing points.
func DetectLiquidityPools(series bars.Series, swingIndexes []int, high bool, toleranceBps float64) []float64 {
	if len(swingIndexes) < 2 {
		return nil
	}
	type pt struct {
		idx   int
		price float64
	}
	pts := make([]pt, len(swingIndexes))
	for i, idx := range swingIndexes {
		p := series[idx].Low
		if high {
			p = series[idx].High
		}
		pts[i] = pt{idx, p}
	}
	// insertion sort by price (small n, keeps this dependency-free)
	for i := 1; i < len(pts); i++ {
		for j := i; j > 0 && pts[j].price < pts[j-1].price; j-- {
			pts[j], pts[j-1] = pts[j-1], pts[j]
		}
	}

	var pools []float64
	group := []pt{pts[0]}
	flush := func() {
		if len(group) >= 2 {
			sum := 0.0
			for _, g := range group {
				sum += g.price
			}
			pools = append(pools, sum/float64(len(group)))
		}
	}
	for _, p := range pts[1:] {
		last := group[len(group)-1].price
		if last != 0 && math.Abs(p.price-last)/last*100 <= toleranceBps {
			group = append(group, p)
		} else {
			flush()
			group = []pt{p}
		}
	}
	flush()
	return pools
}

// DetectOrderBlocks finds the last strong-bodied, above-average-volume
// candle opposing the BOS direction within lookbackBars before it.
func DetectOrderBlocks(series bars.Series, bos *StructureEvent, lookbackBars int) (demand, supply []OrderBlock) {
	if bos == nil || len(series) < lookbackBars+1 || bos.Index < lookbackBars {
		return nil, nil
	}
	bosIdx := bos.Index
	start := bosIdx - 50
	if start < 0 {
		start = 0
	}
	avgVolume := 0.0
	count := 0
	for i := start; i < bosIdx; i++ {
		avgVolume += series[i].Volume
		count++
	}
	if count > 0 {
		avgVolume /= float64(count)
	}
	if avgVolume == 0 {
		avgVolume = 1.0
	}

	searchStart := bosIdx - lookbackBars
	if searchStart < 0 {
		searchStart = 0
	}

	if bos.Direction == DirectionDown {
		for i := bosIdx - 1; i >= searchStart; i-- {
			c := series[i]
			body := math.Abs(c.Close - c.Open)
			rng := c.High - c.Low
			if c.Close > c.Open && rng > 0 && body > rng*0.6 {
				ratio := c.Volume / avgVolume
				if ratio > 1.2 {
					supply = append(supply, OrderBlock{
						Kind: LevelOrderblockSupply, PriceLow: c.Low, PriceHigh: c.High,
						Index: i, Strength: math.Min(ratio/2.0, 1.0), VolumeRatio: ratio,
					})
					break
				}
			}
		}
	} else if bos.Direction == DirectionUp {
		for i := bosIdx - 1; i >= searchStart; i-- {
			c := series[i]
			body := math.Abs(c.Close - c.Open)
			rng := c.High - c.Low
			if c.Close < c.Open && rng > 0 && body > rng*0.6 {
				ratio := c.Volume / avgVolume
				if ratio > 1.2 {
					demand = append(demand, OrderBlock{
						Kind: LevelOrderblockDemand, PriceLow: c.Low, PriceHigh: c.High,
						Index: i, Strength: math.Min(ratio/2.0, 1.0), VolumeRatio: ratio,
					})
					break
				}
			}
		}
	}
	return demand, supply
}

// DetectFairValueGaps finds three-candle imbalances in the trailing lookback window.
func DetectFairValueGaps(series bars.Series, lookback int) []FairValueGap {
	n := len(series)
	start := n - lookback
	if start < 2 {
		start = 2
	}
	var gaps []FairValueGap
	for i := start; i < n; i++ {
		if i < 2 {
			continue
		}
		prev2, cur := series[i-2], series[i]
		if cur.Low > prev2.High {
			gaps = append(gaps, FairValueGap{PriceLow: prev2.High, PriceHigh: cur.Low, Index: i, Bullish: true})
		} else if cur.High < prev2.Low {
			gaps = append(gaps, FairValueGap{PriceLow: cur.High, PriceHigh: prev2.Low, Index: i, Bullish: false})
		}
	}
	markFilled(gaps, series)
	return gaps
}

// markFilled flags a gap as filled once a later bar's range traverses it.
func markFilled(gaps []FairValueGap, series bars.Series) {
	for g := range gaps {
		for j := gaps[g].Index + 1; j < len(series); j++ {
			if series[j].Low <= gaps[g].PriceLow && series[j].High >= gaps[g].PriceHigh {
				gaps[g].Filled = true
				break
			}
		}
	}
}

// CalculatePremiumDiscount splits the swing-defined range at its midpoint and
// classifies the current price's position within it.
func CalculatePremiumDiscount(series bars.Series, swingHighs, swingLows []int) (premiumStart, discountEnd float64, position Position) {
	if len(swingHighs) == 0 || len(swingLows) == 0 {
		return 0, 0, PositionNeutral
	}
	rangeHigh := math.Inf(-1)
	rangeLow := math.Inf(1)
	for _, i := range swingHighs {
		rangeHigh = math.Max(rangeHigh, series[i].High)
	}
	for _, i := range swingLows {
		rangeLow = math.Min(rangeLow, series[i].Low)
	}
	mid := (rangeHigh + rangeLow) / 2
	premiumStart, discountEnd = mid, mid

	currentPrice := series[len(series)-1].Close
	switch {
	case currentPrice >= premiumStart:
		position = PositionPremium
	case currentPrice <= discountEnd:
		position = PositionDiscount
	default:
		position = PositionNeutral
	}
	return
}

// AnalyzeSMCContext runs the full SMC pipeline over a bar series.
func AnalyzeSMCContext(series bars.Series, swingLeft, swingRight, lookback int) Context {
	swingHighs, swingLows := FindSwings(series, swingLeft, swingRight)
	lastBOS, lastCHOCH := DetectBOSCHOCH(series, swingHighs, swingLows, lookback)

	ctx := Context{LastBOS: lastBOS, LastCHOCH: lastCHOCH}
	ctx.LiquidityHighs = DetectLiquidityPools(series, swingHighs, true, 0.05)
	ctx.LiquidityLows = DetectLiquidityPools(series, swingLows, false, 0.05)
	ctx.OrderBlocksDemand, ctx.OrderBlocksSupply = DetectOrderBlocks(series, lastBOS, 10)
	ctx.FVGs = DetectFairValueGaps(series, lookback)
	ctx.PremiumZoneStart, ctx.DiscountZoneEnd, ctx.CurrentPosition = CalculatePremiumDiscount(series, swingHighs, swingLows)
	return ctx
}
