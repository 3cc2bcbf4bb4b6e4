package report

import (
	"testing"
	"time"

	"github.com/sawpanic/marketdoctor/internal/domain/aggregate"
	"github.com/sawpanic/marketdoctor/internal/domain/diagnostics"
	"github.com/sawpanic/marketdoctor/internal/domain/momentum"
	"github.com/sawpanic/marketdoctor/internal/domain/scoring"
	"github.com/sawpanic/marketdoctor/internal/domain/tradeplan"
)

func TestBuildRoundTripsScores(t *testing.T) {
	diag := diagnostics.Diagnostics{Symbol: "BTCUSDT", Timeframe: "1h", Phase: diagnostics.PhaseExpansionUp}
	multiTF := &aggregate.MultiTFScore{
		TargetTF:        "1h",
		AggregatedLong:  7.5,
		AggregatedShort: 2.5,
		Confidence:      0.8,
		Direction:       aggregate.DirectionLong,
		MomentumGrade:   aggregate.GradeStrongBullish,
		PerTF:           map[string]scoring.TimeframeScore{},
	}
	plan := tradeplan.TradePlan{Mode: tradeplan.ModeTrendFollow, PositionSizeFactor: 1.0}
	insight := &momentum.Insight{Regime: momentum.RegimeContinuation}

	rep := Build("BTCUSDT", "1h", time.Unix(1700000000, 0), diag, multiTF, plan, insight)

	if rep.ScoreLong+rep.ScoreShort != 10 {
		t.Fatalf("long+short = %.2f, want 10", rep.ScoreLong+rep.ScoreShort)
	}
	if rep.SetupType == SetupNone {
		t.Fatal("expected a non-NONE setup for a trending expansion-up phase")
	}
	if rep.TLDR == "" {
		t.Fatal("expected a non-empty tl;dr")
	}
}

func TestBuildSkipTradingYieldsNoneSetup(t *testing.T) {
	diag := diagnostics.Diagnostics{Symbol: "ETHUSDT", Timeframe: "4h", Phase: diagnostics.PhaseShakeout}
	multiTF := &aggregate.MultiTFScore{AggregatedLong: 5, AggregatedShort: 5, PerTF: map[string]scoring.TimeframeScore{}}
	plan := tradeplan.TradePlan{Mode: tradeplan.ModeNeutral, SkipTrading: true, SkipReason: "risk elevated"}

	rep := Build("ETHUSDT", "4h", time.Unix(1700000000, 0), diag, multiTF, plan, nil)
	if rep.SetupType != SetupNone {
		t.Fatalf("setup = %s, want NONE when skip-trading fires", rep.SetupType)
	}
}
