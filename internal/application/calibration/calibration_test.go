package calibration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketdoctor/internal/config"
	"github.com/sawpanic/marketdoctor/internal/persistence"
)

type fakeWeightsStorage struct {
	saved    []persistence.WeightsConfiguration
	active   []bool
}

func (f *fakeWeightsStorage) SaveWeights(ctx context.Context, cfg persistence.WeightsConfiguration, setActive bool) error {
	f.saved = append(f.saved, cfg)
	f.active = append(f.active, setActive)
	return nil
}
func (f *fakeWeightsStorage) LoadWeights(ctx context.Context, name string) (*persistence.WeightsConfiguration, error) {
	for _, c := range f.saved {
		if c.Name == name {
			return &c, nil
		}
	}
	return nil, nil
}
func (f *fakeWeightsStorage) ListConfigurations(ctx context.Context) ([]persistence.WeightsConfiguration, error) {
	return f.saved, nil
}
func (f *fakeWeightsStorage) SetActive(ctx context.Context, name string) (bool, error) {
	return false, nil
}
func (f *fakeWeightsStorage) GetActiveWeights(ctx context.Context) (*persistence.WeightsConfiguration, error) {
	return nil, nil
}

func longSample(score, r, maxUp, maxDown float64, groupRaw map[string]float64) sample {
	return sample{direction: "LONG", aggregatedScore: score, rAtHorizon: r, maxRUp: maxUp, maxRDown: maxDown, groupRaw: groupRaw}
}

func TestClassifyBucket(t *testing.T) {
	assert.Equal(t, BucketWeak, classifyBucket(2))
	assert.Equal(t, BucketModerate, classifyBucket(4))
	assert.Equal(t, BucketStrong, classifyBucket(6))
	assert.Equal(t, BucketExtreme, classifyBucket(9))
}

func TestBuildReportBucketsRequireMinimumSamples(t *testing.T) {
	cfg := config.LoadDefault()
	var samples []sample
	for i := 0; i < 9; i++ {
		samples = append(samples, longSample(7, 1.5, 2, 0, nil))
	}
	report := BuildReport(samples, cfg)
	assert.Empty(t, report.Buckets)

	samples = append(samples, longSample(7, 1.5, 2, 0, nil))
	report = BuildReport(samples, cfg)
	require.Len(t, report.Buckets, 1)
	assert.Equal(t, BucketStrong, report.Buckets[0].Bucket)
	assert.Equal(t, 10, report.Buckets[0].Count)
	assert.InDelta(t, 1.0, report.Buckets[0].WinRate, 1e-9)
}

func TestGroupCorrelationsPositiveBoostsWeight(t *testing.T) {
	cfg := config.LoadDefault()
	var samples []sample
	for i := 0; i < 12; i++ {
		x := float64(i) * 0.1
		samples = append(samples, longSample(7, x, x, 0, map[string]float64{"trend": x}))
	}
	report := BuildReport(samples, cfg)
	require.Len(t, report.Correlations, 1)
	c := report.Correlations[0]
	assert.Equal(t, "trend", c.Group)
	assert.Greater(t, c.Correlation, 0.3)
	require.NotNil(t, c.RecommendedWeight)
	assert.InDelta(t, cfg.GroupWeights["DEFAULT"].Trend*1.2, *c.RecommendedWeight, 1e-9)
}

func TestThresholdRecommendationStepsUpWhenWinRateLow(t *testing.T) {
	cfg := config.LoadDefault()
	var samples []sample
	for i := 0; i < 10; i++ {
		r := -1.5
		if i < 3 {
			r = 1.5
		}
		samples = append(samples, longSample(7, r, 0, 0, nil))
	}
	report := BuildReport(samples, cfg)
	require.Len(t, report.Thresholds, 1)
	assert.Equal(t, 7.5, report.Thresholds[0].StrongThreshold)
}

func TestThresholdRecommendationStaysAtSixWhenWinRateHigh(t *testing.T) {
	cfg := config.LoadDefault()
	var samples []sample
	for i := 0; i < 10; i++ {
		samples = append(samples, longSample(7, 1.5, 0, 0, nil))
	}
	report := BuildReport(samples, cfg)
	require.Len(t, report.Thresholds, 1)
	assert.Equal(t, 6.0, report.Thresholds[0].StrongThreshold)
}

func TestRecommendedWeightsAppliesBoostLeavesOthersUnchanged(t *testing.T) {
	cfg := config.LoadDefault()
	boosted := cfg.GroupWeights["DEFAULT"].Trend * 1.2
	report := &Report{Correlations: []GroupCorrelation{
		{Group: "trend", Correlation: 0.5, RecommendedWeight: &boosted},
	}}
	w := RecommendedWeights(report, cfg)
	assert.InDelta(t, boosted, w.Trend, 1e-9)
	assert.Equal(t, cfg.GroupWeights["DEFAULT"].Momentum, w.Momentum)
	assert.Equal(t, cfg.GroupWeights["DEFAULT"].Structure, w.Structure)
}

func TestPersistRecommendationSavesInactiveConfiguration(t *testing.T) {
	cfg := config.LoadDefault()
	store := &fakeWeightsStorage{}
	report := &Report{Correlations: []GroupCorrelation{}}

	err := PersistRecommendation(context.Background(), store, report, cfg, "auto-1", "test run", 12345)
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	assert.Equal(t, "auto-1", store.saved[0].Name)
	assert.Equal(t, "test run", store.saved[0].Description)
	assert.Equal(t, int64(12345), store.saved[0].CreatedAtMS)
	assert.False(t, store.active[0], "a calibration recommendation must not auto-activate")
	assert.InDelta(t, cfg.GroupWeights["DEFAULT"].Trend, store.saved[0].Weights["trend"], 1e-9)
}
