package aggregate

import (
	"math"
	"testing"

	"github.com/sawpanic/marketdoctor/internal/config"
	"github.com/sawpanic/marketdoctor/internal/domain/scoring"
)

func tfScore(tf string, net float64) scoring.TimeframeScore {
	return scoring.TimeframeScore{
		Timeframe:       tf,
		NetScore:        net,
		NormalizedLong:  clamp(10*(net+2)/4, 0, 10),
		NormalizedShort: 10 - clamp(10*(net+2)/4, 0, 10),
		GroupScores:     map[scoring.Group]scoring.GroupScore{},
	}
}

func TestAggregateSumsToTen(t *testing.T) {
	cfg := config.LoadDefault()
	perTF := map[string]scoring.TimeframeScore{
		"1h": tfScore("1h", 1.2),
		"4h": tfScore("4h", 0.8),
		"1d": tfScore("1d", 0.4),
		"1w": tfScore("1w", 0.1),
	}
	score, err := Aggregate(perTF, "1h", nil, cfg)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if math.Abs(score.AggregatedLong+score.AggregatedShort-10) > 1e-6 {
		t.Fatalf("long+short = %.6f, want 10", score.AggregatedLong+score.AggregatedShort)
	}
	if score.Direction != DirectionLong {
		t.Fatalf("direction = %s, want LONG", score.Direction)
	}
}

func TestAggregateMissingTimeframeSkipsNotAborts(t *testing.T) {
	cfg := config.LoadDefault()
	perTF := map[string]scoring.TimeframeScore{
		"1h": tfScore("1h", 1.0),
	}
	score, err := Aggregate(perTF, "1h", nil, cfg)
	if err != nil {
		t.Fatalf("Aggregate with partial timeframes should not error: %v", err)
	}
	if score.AggregatedLong <= 5 {
		t.Fatalf("expected a bullish lean from the single available timeframe, got %.2f", score.AggregatedLong)
	}
}

func TestAggregateUnknownTargetErrors(t *testing.T) {
	cfg := config.LoadDefault()
	if _, err := Aggregate(map[string]scoring.TimeframeScore{}, "5m", nil, cfg); err == nil {
		t.Fatal("expected an error for an unconfigured target timeframe")
	}
}

func TestCrossTFConfidenceBounded(t *testing.T) {
	cfg := config.LoadDefault()
	perTF := map[string]scoring.TimeframeScore{
		"1h": tfScore("1h", 1.5),
		"4h": tfScore("4h", -1.5),
		"1d": tfScore("1d", 0.0),
		"1w": tfScore("1w", -0.9),
	}
	score, err := Aggregate(perTF, "1h", nil, cfg)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if score.Confidence < 0 || score.Confidence > 1 {
		t.Fatalf("confidence %.3f outside [0,1]", score.Confidence)
	}
}
