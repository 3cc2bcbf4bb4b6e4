package outcome

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketdoctor/internal/config"
	"github.com/sawpanic/marketdoctor/internal/domain/bars"
	"github.com/sawpanic/marketdoctor/internal/persistence"
)

type fakeBarRepo struct {
	series bars.Series
}

func (f *fakeBarRepo) LastN(ctx context.Context, symbol, timeframe string, n int) (bars.Series, error) {
	return f.series, nil
}
func (f *fakeBarRepo) BarsBetween(ctx context.Context, symbol, timeframe string, fromMS, toMS int64) (bars.Series, error) {
	var out bars.Series
	for _, b := range f.series {
		if b.TimestampMS >= fromMS && b.TimestampMS <= toMS {
			out = append(out, b)
		}
	}
	return out, nil
}
func (f *fakeBarRepo) LastTimestamp(ctx context.Context, symbol, timeframe string) (*int64, error) {
	return nil, nil
}
func (f *fakeBarRepo) UpsertBar(ctx context.Context, symbol, timeframe string, bar bars.Bar) error {
	return nil
}
func (f *fakeBarRepo) UpsertBars(ctx context.Context, symbol, timeframe string, bs bars.Series) error {
	return nil
}

type fakeDiagRepo struct {
	outcomes []persistence.DiagnosticsOutcome
}

func (f *fakeDiagRepo) LogSnapshot(ctx context.Context, snap persistence.DiagnosticsSnapshot) (int64, error) {
	return 0, nil
}
func (f *fakeDiagRepo) LogOutcome(ctx context.Context, o persistence.DiagnosticsOutcome) error {
	f.outcomes = append(f.outcomes, o)
	return nil
}
func (f *fakeDiagRepo) GetSnapshots(ctx context.Context, filter persistence.SnapshotFilter) ([]persistence.DiagnosticsSnapshot, error) {
	return nil, nil
}
func (f *fakeDiagRepo) GetOutcomesForSnapshot(ctx context.Context, snapshotID int64) ([]persistence.DiagnosticsOutcome, error) {
	return nil, nil
}
func (f *fakeDiagRepo) GetUnevaluatedSnapshots(ctx context.Context, horizonBars int, horizonHours float64, olderThanMS int64, limit int) ([]persistence.DiagnosticsSnapshot, error) {
	return nil, nil
}

func ptr(v float64) *float64 { return &v }

func makeSeries(baseMS int64, highs, lows, closes []float64) bars.Series {
	out := make(bars.Series, len(highs))
	for i := range highs {
		out[i] = bars.Bar{
			TimestampMS: baseMS + int64(i)*3600_000,
			Open:        closes[i], High: highs[i], Low: lows[i], Close: closes[i],
		}
	}
	return out
}

func TestEvaluateOneLongHitsTPMatchesScenario(t *testing.T) {
	snap := persistence.DiagnosticsSnapshot{
		ID: 1, Symbol: "BTCUSDT", Timeframe: "1h", TimestampMS: 0,
		Direction: "LONG", CurrentPrice: ptr(100),
		BullishTriggerLevel: ptr(102), InvalidationLevel: ptr(98),
	}
	series := makeSeries(0,
		[]float64{100, 101, 103, 104, 103, 102},
		[]float64{99, 99, 99.5, 100, 101, 101},
		[]float64{100, 100, 102, 103, 102, 102},
	)
	e := NewEvaluator(&fakeBarRepo{series: series}, &fakeDiagRepo{}, config.LoadDefault(), func() time.Time { return time.UnixMilli(1_000_000_000) })

	out, skip, err := e.evaluateOne(context.Background(), snap, config.HorizonSpec{Bars: 4, Hours: 4})
	require.NoError(t, err)
	require.False(t, skip)
	require.NotNil(t, out)

	assert.True(t, out.HitTP)
	assert.False(t, out.HitSL)
	require.NotNil(t, out.MaxRUp)
	assert.InDelta(t, 2.0, *out.MaxRUp, 1e-9)
	require.NotNil(t, out.RAtHorizon)
	assert.InDelta(t, 1.0, *out.RAtHorizon, 1e-9)
}

func TestEvaluateOneSkipsWhenNoBarAtOrAfterTimestamp(t *testing.T) {
	snap := persistence.DiagnosticsSnapshot{ID: 1, Symbol: "BTCUSDT", Timeframe: "1h", TimestampMS: 10_000_000_000, Direction: "LONG"}
	e := NewEvaluator(&fakeBarRepo{series: nil}, &fakeDiagRepo{}, config.LoadDefault(), func() time.Time { return time.UnixMilli(1_000_000_000) })

	out, skip, err := e.evaluateOne(context.Background(), snap, config.HorizonSpec{Bars: 4, Hours: 4})
	require.NoError(t, err)
	assert.True(t, skip)
	assert.Nil(t, out)
}

func TestEvaluateOneSkipsWhenInsufficientBars(t *testing.T) {
	snap := persistence.DiagnosticsSnapshot{ID: 1, Symbol: "BTCUSDT", Timeframe: "1h", TimestampMS: 0, Direction: "LONG"}
	series := makeSeries(0, []float64{100, 101}, []float64{99, 99}, []float64{100, 100})
	e := NewEvaluator(&fakeBarRepo{series: series}, &fakeDiagRepo{}, config.LoadDefault(), func() time.Time { return time.UnixMilli(1_000_000_000) })

	out, skip, err := e.evaluateOne(context.Background(), snap, config.HorizonSpec{Bars: 4, Hours: 4})
	require.NoError(t, err)
	assert.True(t, skip)
	assert.Nil(t, out)
}

func TestEvaluateOneUndefinedRWhenEntryEqualsSL(t *testing.T) {
	snap := persistence.DiagnosticsSnapshot{
		ID: 1, Symbol: "BTCUSDT", Timeframe: "1h", TimestampMS: 0,
		Direction: "LONG", CurrentPrice: ptr(100), InvalidationLevel: ptr(100),
	}
	series := makeSeries(0,
		[]float64{100, 101, 102, 103, 104},
		[]float64{99, 99, 99, 99, 99},
		[]float64{100, 100, 100, 100, 100},
	)
	e := NewEvaluator(&fakeBarRepo{series: series}, &fakeDiagRepo{}, config.LoadDefault(), func() time.Time { return time.UnixMilli(1_000_000_000) })

	out, skip, err := e.evaluateOne(context.Background(), snap, config.HorizonSpec{Bars: 4, Hours: 4})
	require.NoError(t, err)
	assert.False(t, skip)
	require.NotNil(t, out)
	assert.Nil(t, out.MaxRUp)
	assert.Nil(t, out.RAtHorizon)
}
