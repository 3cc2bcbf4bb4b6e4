package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketdoctor/internal/domain/diagnostics"
	"github.com/sawpanic/marketdoctor/internal/domain/features"
	"github.com/sawpanic/marketdoctor/internal/persistence"
)

func ptr(v float64) *float64 { return &v }

func TestDetectFundingSpike(t *testing.T) {
	cur := diagnostics.Diagnostics{Phase: diagnostics.PhaseAccumulation, RiskScore: 0.3}
	deriv := &features.Derivatives{FundingRate: 0.015, OIChangePct: 1}

	alerts := Detect(cur, deriv, nil, nil)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFundingSpike, alerts[0].Type)
	assert.Equal(t, SeverityMedium, alerts[0].Severity)
}

func TestDetectOIAnomalyIsHigh(t *testing.T) {
	cur := diagnostics.Diagnostics{Phase: diagnostics.PhaseAccumulation, RiskScore: 0.3}
	deriv := &features.Derivatives{OIChangePct: 11}

	alerts := Detect(cur, deriv, nil, nil)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertOIAnomaly, alerts[0].Type)
	assert.Equal(t, SeverityHigh, alerts[0].Severity)
}

func TestDetectCVDDivergenceRequiresRisingPrice(t *testing.T) {
	cur := diagnostics.Diagnostics{Phase: diagnostics.PhaseAccumulation, RiskScore: 0.3}
	deriv := &features.Derivatives{CVD: -0.4}
	history := []persistence.DiagnosticsSnapshot{{CurrentPrice: ptr(100)}}

	noAlerts := Detect(cur, deriv, ptr(99), history)
	assert.Empty(t, noAlerts)

	alerts := Detect(cur, deriv, ptr(101), history)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCVDDivergence, alerts[0].Type)
}

func TestDetectPhaseTransitionSeverityTable(t *testing.T) {
	cur := diagnostics.Diagnostics{Phase: diagnostics.PhaseExpansionDown, RiskScore: 0.3}
	history := []persistence.DiagnosticsSnapshot{{Phase: string(diagnostics.PhaseAccumulation), RiskScore: 0.3}}

	alerts := Detect(cur, nil, nil, history)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertPhaseTransition, alerts[0].Type)
	assert.Equal(t, SeverityHigh, alerts[0].Severity)
}

func TestDetectNoTransitionWhenPhaseUnchanged(t *testing.T) {
	cur := diagnostics.Diagnostics{Phase: diagnostics.PhaseAccumulation, RiskScore: 0.3}
	history := []persistence.DiagnosticsSnapshot{{Phase: string(diagnostics.PhaseAccumulation), RiskScore: 0.3}}

	alerts := Detect(cur, nil, nil, history)
	assert.Empty(t, alerts)
}

func TestRiskSpikeEscalatesAboveSeventyPercent(t *testing.T) {
	alert, ok := RiskSpike(0.75, 0.5)
	require.True(t, ok)
	assert.Equal(t, SeverityHigh, alert.Severity)

	alert, ok = RiskSpike(0.6, 0.35)
	require.True(t, ok)
	assert.Equal(t, SeverityMedium, alert.Severity)
}

func TestRiskSpikeBelowThresholdDoesNotFire(t *testing.T) {
	_, ok := RiskSpike(0.5, 0.4)
	assert.False(t, ok)
}
