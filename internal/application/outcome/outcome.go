// Package outcome implements C11 OutcomeEvaluator: on a separate cadence
// from the analytical pass, measures realized R-multiples for previously
// persisted snapshots once their configured horizons have elapsed, per
// spec §4.9.
//
// Grounded on the teacher's internal/application/outcomes (horizon-bucketed
// forward-return measurement over a bar series) reconciled with
// original_source outcome_evaluator.py's entry/TP/SL resolution order.
package outcome

import (
	"context"
	"fmt"
	"time"

	"github.com/sawpanic/marketdoctor/internal/config"
	"github.com/sawpanic/marketdoctor/internal/domain/bars"
	"github.com/sawpanic/marketdoctor/internal/persistence"
)

// Evaluator drives the snapshot -> outcome loop for every configured
// horizon (spec §4.9).
type Evaluator struct {
	barsRepo persistence.BarRepository
	diagRepo persistence.DiagnosticsRepository
	cfg      *config.Config
	now      func() time.Time
}

// NewEvaluator builds an Evaluator. now defaults to time.Now when nil; tests
// inject a fixed clock.
func NewEvaluator(barsRepo persistence.BarRepository, diagRepo persistence.DiagnosticsRepository, cfg *config.Config, now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{barsRepo: barsRepo, diagRepo: diagRepo, cfg: cfg, now: now}
}

// RunResult tallies one evaluation pass for observability.
type RunResult struct {
	Evaluated int
	Skipped   int
	Errored   int
}

// Run evaluates every configured horizon against every unevaluated snapshot
// older than that horizon's elapsed time. It is idempotent and restartable
// (spec §4.13): re-running over the same data produces no duplicate rows
// because LogOutcome is a DO-NOTHING upsert keyed on
// (snapshot_id, horizon_bars, horizon_hours).
func (e *Evaluator) Run(ctx context.Context) (RunResult, error) {
	var result RunResult
	nowMS := e.now().UnixMilli()

	for _, h := range e.cfg.Horizons {
		olderThanMS := nowMS - int64(h.Hours*float64(time.Hour/time.Millisecond))
		snaps, err := e.diagRepo.GetUnevaluatedSnapshots(ctx, h.Bars, h.Hours, olderThanMS, 200)
		if err != nil {
			return result, fmt.Errorf("outcome: failed to list unevaluated snapshots for horizon %d/%.1fh: %w", h.Bars, h.Hours, err)
		}

		for _, snap := range snaps {
			outcome, skip, err := e.evaluateOne(ctx, snap, h)
			switch {
			case err != nil:
				result.Errored++
				continue
			case skip:
				result.Skipped++
				continue
			}
			if err := e.diagRepo.LogOutcome(ctx, *outcome); err != nil {
				result.Errored++
				continue
			}
			result.Evaluated++
		}
	}

	return result, nil
}

// evaluateOne implements the per-snapshot, per-horizon resolution in spec
// §4.9 steps 1-6.
func (e *Evaluator) evaluateOne(ctx context.Context, snap persistence.DiagnosticsSnapshot, h config.HorizonSpec) (*persistence.DiagnosticsOutcome, bool, error) {
	series, err := e.barsRepo.BarsBetween(ctx, snap.Symbol, snap.Timeframe, snap.TimestampMS, e.now().UnixMilli())
	if err != nil {
		return nil, false, fmt.Errorf("outcome: failed to fetch bars for %s/%s: %w", snap.Symbol, snap.Timeframe, err)
	}
	if len(series) == 0 {
		// No bar at or after the snapshot timestamp yet: skip, don't
		// fabricate an outcome (resolves the open question in favor of
		// correctness over completeness).
		return nil, true, nil
	}
	if len(series) < h.Bars+1 {
		return nil, true, nil
	}

	entryIdx := 0
	window := series[entryIdx : entryIdx+h.Bars+1]
	entryPrice := window[0].Close
	if snap.CurrentPrice != nil {
		entryPrice = *snap.CurrentPrice
	}

	highest, lowest := windowExtremes(window)
	priceAtHorizon := window[len(window)-1].Close

	tp, sl := resolveTPSL(snap, entryPrice)

	outcome := persistence.DiagnosticsOutcome{
		SnapshotID:     snap.ID,
		HorizonBars:    h.Bars,
		HorizonHours:   h.Hours,
		EntryPrice:     &entryPrice,
		PriceAtHorizon: &priceAtHorizon,
		HighestPrice:   &highest,
		LowestPrice:    &lowest,
	}

	isShort := snap.Direction == "SHORT"
	if isShort {
		outcome.HitTP = lowest <= tp
		outcome.HitSL = highest >= sl
	} else {
		outcome.HitTP = highest >= tp
		outcome.HitSL = lowest <= sl
	}

	risk := entryPrice - sl
	if isShort {
		risk = sl - entryPrice
	}
	if risk == 0 {
		// entry == sl: R is undefined, but hit_tp/hit_sl booleans and
		// high/low/entry/horizon prices are still persisted (spec §8
		// boundary: "entry_price == sl_level ⇒ R metrics are undefined").
		return &outcome, false, nil
	}

	var maxRUp, maxRDown, rAtHorizon float64
	if isShort {
		maxRUp = (entryPrice - lowest) / risk
		maxRDown = (highest - entryPrice) / risk
		rAtHorizon = (entryPrice - priceAtHorizon) / risk
	} else {
		maxRUp = (highest - entryPrice) / risk
		maxRDown = (entryPrice - lowest) / risk
		rAtHorizon = (priceAtHorizon - entryPrice) / risk
	}
	outcome.MaxRUp = &maxRUp
	outcome.MaxRDown = &maxRDown
	outcome.RAtHorizon = &rAtHorizon

	return &outcome, false, nil
}

func windowExtremes(window bars.Series) (highest, lowest float64) {
	highest, lowest = window[0].High, window[0].Low
	for _, b := range window[1:] {
		if b.High > highest {
			highest = b.High
		}
		if b.Low < lowest {
			lowest = b.Low
		}
	}
	return highest, lowest
}

// resolveTPSL implements spec §4.9 step 4's fallback chain.
func resolveTPSL(snap persistence.DiagnosticsSnapshot, entryPrice float64) (tp, sl float64) {
	isShort := snap.Direction == "SHORT"
	if isShort {
		switch {
		case snap.BearishTriggerLevel != nil:
			tp = *snap.BearishTriggerLevel
		case snap.InvalidationLevel != nil:
			tp = *snap.InvalidationLevel
		default:
			tp = entryPrice * 0.98
		}
		if snap.InvalidationLevel != nil {
			sl = *snap.InvalidationLevel
		} else {
			sl = entryPrice * 1.02
		}
		return tp, sl
	}

	switch {
	case snap.BullishTriggerLevel != nil:
		tp = *snap.BullishTriggerLevel
	case snap.InvalidationLevel != nil:
		tp = *snap.InvalidationLevel
	default:
		tp = entryPrice * 1.02
	}
	if snap.InvalidationLevel != nil {
		sl = *snap.InvalidationLevel
	} else {
		sl = entryPrice * 0.98
	}
	return tp, sl
}
