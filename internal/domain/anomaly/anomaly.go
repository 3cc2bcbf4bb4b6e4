// Package anomaly implements C13 AnomalyDetector: compares a freshly
// produced diagnostics snapshot against recent history for the same
// (symbol, timeframe) and emits best-effort alerts (spec §4.11).
//
// Grounded on the teacher's internal/data/validate/anomaly.go
// (AnomalyConfig/AnomalyResult shape, severity-level naming), adapted from
// MAD-threshold outlier detection on raw OHLCV fields to rule-based alerts
// on derivatives, phase transitions, and risk-score deltas over diagnostics
// history.
package anomaly

import (
	"fmt"

	"github.com/sawpanic/marketdoctor/internal/domain/diagnostics"
	"github.com/sawpanic/marketdoctor/internal/domain/features"
	"github.com/sawpanic/marketdoctor/internal/persistence"
)

// Severity is the alert severity level.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AlertType identifies the rule that fired.
type AlertType string

const (
	AlertFundingSpike    AlertType = "funding_spike"
	AlertOIAnomaly       AlertType = "oi_anomaly"
	AlertCVDDivergence   AlertType = "cvd_divergence"
	AlertPhaseTransition AlertType = "phase_transition"
	AlertDoctorConcerned AlertType = "doctor_concerned"
)

// Alert is one emitted observation, per spec §4.11.
type Alert struct {
	Type     AlertType
	Severity Severity
	Message  string
	Metadata map[string]interface{}
}

// phaseTransitionSeverity is the table-driven severity for a (from, to)
// phase pair (spec §4.11: "e.g. ACCUMULATION→EXPANSION_DOWN = high"). Pairs
// absent from this table default to medium.
var phaseTransitionSeverity = map[diagnostics.Phase]map[diagnostics.Phase]Severity{
	diagnostics.PhaseAccumulation: {
		diagnostics.PhaseExpansionDown: SeverityHigh,
		diagnostics.PhaseDistribution:  SeverityHigh,
		diagnostics.PhaseShakeout:      SeverityMedium,
		diagnostics.PhaseExpansionUp:   SeverityMedium,
	},
	diagnostics.PhaseDistribution: {
		diagnostics.PhaseExpansionUp:  SeverityHigh,
		diagnostics.PhaseAccumulation: SeverityMedium,
		diagnostics.PhaseShakeout:     SeverityMedium,
	},
	diagnostics.PhaseExpansionUp: {
		diagnostics.PhaseExpansionDown: SeverityHigh,
		diagnostics.PhaseDistribution:  SeverityMedium,
		diagnostics.PhaseShakeout:      SeverityMedium,
	},
	diagnostics.PhaseExpansionDown: {
		diagnostics.PhaseExpansionUp:  SeverityHigh,
		diagnostics.PhaseAccumulation: SeverityMedium,
		diagnostics.PhaseShakeout:     SeverityMedium,
	},
	diagnostics.PhaseShakeout: {
		diagnostics.PhaseExpansionUp:   SeverityMedium,
		diagnostics.PhaseExpansionDown: SeverityMedium,
	},
}

// MaxHistory bounds how many prior snapshots Detect consults (spec §4.11:
// "the last ≤10 persisted snapshots"). Callers are expected to pass history
// already truncated to this length, newest first.
const MaxHistory = 10

// Detect compares cur against history (newest first, at most MaxHistory
// entries) and emits zero or more alerts. Detect never panics or returns an
// error: per spec §4.13 the anomaly detector is strictly advisory.
func Detect(cur diagnostics.Diagnostics, deriv *features.Derivatives, currentPrice *float64, history []persistence.DiagnosticsSnapshot) []Alert {
	var alerts []Alert

	if deriv != nil {
		alerts = append(alerts, derivativeAlerts(deriv, currentPrice, history)...)
	}

	if len(history) > 0 {
		prev := history[0]
		if a, ok := phaseTransitionAlert(string(cur.Phase), prev.Phase); ok {
			alerts = append(alerts, a)
		}
		if a, ok := RiskSpike(cur.RiskScore, prev.RiskScore); ok {
			alerts = append(alerts, a)
		}
	}

	return alerts
}

func derivativeAlerts(deriv *features.Derivatives, currentPrice *float64, history []persistence.DiagnosticsSnapshot) []Alert {
	var out []Alert

	if absFloat(deriv.FundingRate) > 0.01 && absFloat(deriv.OIChangePct) < 2 {
		out = append(out, Alert{
			Type: AlertFundingSpike, Severity: SeverityMedium,
			Message:  fmt.Sprintf("funding rate %.4f elevated while open interest change %.4f is flat", deriv.FundingRate, deriv.OIChangePct),
			Metadata: map[string]interface{}{"funding_rate": deriv.FundingRate, "oi_change_pct": deriv.OIChangePct},
		})
	}

	if deriv.OIChangePct > 10 {
		out = append(out, Alert{
			Type: AlertOIAnomaly, Severity: SeverityHigh,
			Message:  fmt.Sprintf("open interest change %.4f exceeds 10%%", deriv.OIChangePct),
			Metadata: map[string]interface{}{"oi_change_pct": deriv.OIChangePct},
		})
	}

	if deriv.CVD < -0.3 && priceRising(currentPrice, history) {
		out = append(out, Alert{
			Type: AlertCVDDivergence, Severity: SeverityMedium,
			Message:  fmt.Sprintf("CVD %.4f diverges from rising price", deriv.CVD),
			Metadata: map[string]interface{}{"cvd": deriv.CVD},
		})
	}

	return out
}

// priceRising reports whether currentPrice is above the most recent
// history entry's recorded price; false (not an anomaly) when either side
// is unavailable.
func priceRising(currentPrice *float64, history []persistence.DiagnosticsSnapshot) bool {
	if currentPrice == nil || len(history) == 0 || history[0].CurrentPrice == nil {
		return false
	}
	return *currentPrice > *history[0].CurrentPrice
}

func phaseTransitionAlert(currentPhase, previousPhase string) (Alert, bool) {
	if previousPhase == "" || previousPhase == currentPhase {
		return Alert{}, false
	}
	severity := SeverityMedium
	if row, ok := phaseTransitionSeverity[diagnostics.Phase(previousPhase)]; ok {
		if sev, ok := row[diagnostics.Phase(currentPhase)]; ok {
			severity = sev
		}
	}
	return Alert{
		Type: AlertPhaseTransition, Severity: severity,
		Message:  fmt.Sprintf("phase transition %s -> %s", previousPhase, currentPhase),
		Metadata: map[string]interface{}{"from": previousPhase, "to": currentPhase},
	}, true
}

// RiskSpike implements the doctor_concerned rule (spec §4.11): a risk-score
// jump of at least 0.2 over the immediately preceding snapshot, escalated
// to high severity once the current risk score itself exceeds 0.7.
func RiskSpike(currentRisk, previousRisk float64) (Alert, bool) {
	delta := currentRisk - previousRisk
	if delta < 0.2 {
		return Alert{}, false
	}
	severity := SeverityMedium
	if currentRisk > 0.7 {
		severity = SeverityHigh
	}
	return Alert{
		Type: AlertDoctorConcerned, Severity: severity,
		Message:  fmt.Sprintf("risk score jumped by %.4f to %.4f", delta, currentRisk),
		Metadata: map[string]interface{}{"delta": delta, "current_risk": currentRisk, "previous_risk": previousRisk},
	}, true
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
