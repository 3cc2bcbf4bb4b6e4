package structure

import (
	"math"
	"sort"

	"github.com/sawpanic/marketdoctor/internal/domain/bars"
)

// LevelKind classifies the nature of a structural price level.
type LevelKind string

const (
	LevelSupport           LevelKind = "support"
	LevelResistance        LevelKind = "resistance"
	LevelLiquidityHigh     LevelKind = "liquidity_high"
	LevelLiquidityLow      LevelKind = "liquidity_low"
	LevelOrderblockDemand  LevelKind = "orderblock_demand"
	LevelOrderblockSupply  LevelKind = "orderblock_supply"
	LevelFVG               LevelKind = "fvg"
)

// LevelOrigin records which analysis step produced a Level.
type LevelOrigin string

const (
	OriginSwingHigh LevelOrigin = "swing_high"
	OriginSwingLow  LevelOrigin = "swing_low"
	OriginSMC       LevelOrigin = "smc"
)

// Level is a single support/resistance/SMC price level.
type Level struct {
	Price        float64
	Kind         LevelKind
	Strength     float64 // 0..1
	TouchedTimes int
	FirstIndex   int
	LastIndex    int
	Origin       LevelOrigin
	PriceLow     float64 // zone levels (order blocks, FVG)
	PriceHigh    float64
}

// ClusterLevels groups close prices (within toleranceBps percent of the
// running cluster anchor) and returns each cluster's mean price.
func ClusterLevels(prices []float64, toleranceBps float64) []float64 {
	if len(prices) == 0 {
		return nil
	}
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)

	var clusters [][]float64
	current := []float64{sorted[0]}
	for _, p := range sorted[1:] {
		anchor := current[len(current)-1]
		if anchor != 0 && math.Abs(p-anchor)/anchor*100 <= toleranceBps {
			current = append(current, p)
		} else {
			clusters = append(clusters, current)
			current = []float64{p}
		}
	}
	clusters = append(clusters, current)

	out := make([]float64, len(clusters))
	for i, c := range clusters {
		sum := 0.0
		for _, v := range c {
			sum += v
		}
		out[i] = sum / float64(len(c))
	}
	return out
}

// LevelStrength scores a candidate level in [0,1] from touch count, age, and
// nearby volume, weighted 0.4/0.3/0.3 as in the original analyzer.
func LevelStrength(levelPrice float64, series bars.Series, swingIndexes []int, toleranceBps float64) (strength float64, touched int) {
	if len(swingIndexes) == 0 {
		return 0, 0
	}
	tolerance := levelPrice * toleranceBps / 100.0
	touchScoreRaw := 0.0
	for _, idx := range swingIndexes {
		if idx >= len(series) {
			continue
		}
		b := series[idx]
		if b.Low <= levelPrice+tolerance && b.High >= levelPrice-tolerance {
			touchScoreRaw++
		}
	}
	for _, b := range series {
		if levelPrice != 0 && math.Abs(b.Close-levelPrice)/levelPrice*100 <= toleranceBps {
			touchScoreRaw += 0.5
		}
	}
	touchScore := math.Min(touchScoreRaw/5.0, 1.0)

	firstTouch := swingIndexes[0]
	for _, idx := range swingIndexes {
		if idx < firstTouch {
			firstTouch = idx
		}
	}
	ageBars := len(series) - firstTouch
	ageScore := math.Min(float64(ageBars)/100.0, 1.0)

	volumeScore := 0.0
	if series.HasVolume() {
		var nearSum, nearCount, allSum float64
		for _, b := range series {
			allSum += b.Volume
			if b.Low <= levelPrice+tolerance && b.High >= levelPrice-tolerance {
				nearSum += b.Volume
				nearCount++
			}
		}
		if nearCount > 0 && allSum > 0 {
			avgAll := allSum / float64(len(series))
			avgNear := nearSum / nearCount
			if avgAll > 0 {
				volumeScore = math.Min((avgNear/avgAll)/2.0, 1.0)
			}
		}
	}

	strength = 0.4*touchScore + 0.3*ageScore + 0.3*volumeScore
	return strength, int(touchScoreRaw)
}

// BuildSupportResistanceLevels clusters swing highs/lows and keeps clusters
// scoring at or above minStrength, classified as support/resistance relative
// to the current close.
func BuildSupportResistanceLevels(series bars.Series, left, right int, toleranceBps, minStrength float64) []Level {
	if len(series) < left+right+1 {
		return nil
	}
	currentPrice := series[len(series)-1].Close
	swingHighs, swingLows := FindSwings(series, left, right)

	var allPrices []float64
	priceIndexes := map[float64][]int{}
	addPrice := func(p float64, idx int) {
		allPrices = append(allPrices, p)
		priceIndexes[p] = append(priceIndexes[p], idx)
	}
	for _, i := range swingHighs {
		addPrice(series[i].High, i)
	}
	for _, i := range swingLows {
		addPrice(series[i].Low, i)
	}

	clustered := ClusterLevels(allPrices, toleranceBps)
	var levels []Level
	for _, price := range clustered {
		var clusterIndices []int
		for swingPrice, indices := range priceIndexes {
			if price != 0 && math.Abs(swingPrice-price)/price*100 <= toleranceBps {
				clusterIndices = append(clusterIndices, indices...)
			}
		}
		if len(clusterIndices) == 0 {
			continue
		}
		strength, touched := LevelStrength(price, series, clusterIndices, toleranceBps)
		if strength < minStrength {
			continue
		}
		kind, origin := LevelResistance, OriginSwingHigh
		if price < currentPrice {
			kind, origin = LevelSupport, OriginSwingLow
		}
		first, last := clusterIndices[0], clusterIndices[0]
		for _, idx := range clusterIndices {
			if idx < first {
				first = idx
			}
			if idx > last {
				last = idx
			}
		}
		levels = append(levels, Level{
			Price: price, Kind: kind, Strength: strength, TouchedTimes: touched,
			FirstIndex: first, LastIndex: last, Origin: origin,
		})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Strength > levels[j].Strength })
	return levels
}
