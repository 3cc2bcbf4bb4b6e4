package config

// RiskProfile names a per-symbol risk-appetite override, grounded on the
// original system's profile_provider.py RiskProfile class.
type RiskProfile string

const (
	RiskProfileConservative RiskProfile = "conservative"
	RiskProfileBalanced     RiskProfile = "balanced"
	RiskProfileAggressive   RiskProfile = "aggressive"
)

// SymbolProfile is the optional per-symbol override MarketAnalyzer (C4) and
// TradePlanner (C8) consult instead of the global Config — e.g. a symbol
// with unusually low ADV gets a tighter risk posture. A nil *SymbolProfile
// means the symbol uses the global config unmodified; this type never
// replaces Config, it only overlays a handful of derived multipliers onto
// it (profile_provider.py's RiskProfile.get_config/get_position_size_factor/
// get_default_strategy_mode, collapsed into a config-shaped overlay instead
// of swapping in a whole alternate Config).
type SymbolProfile struct {
	Symbol string
	Risk   RiskProfile
	// DefaultMode, when non-empty, overrides TradePlanner's phase-derived
	// mode outright (tradeplan.Mode value). Empty means TradePlanner decides
	// from phase as usual.
	DefaultMode string
}

// RiskScoreMultiplier scales C4's computed risk score: a conservative
// profile treats the same conditions as riskier (tighter thresholds), an
// aggressive profile as less risky. Mirrors the inverse relationship
// between risk appetite and position sizing in the original's
// RiskProfile.get_position_size_factor base table.
func (p *SymbolProfile) RiskScoreMultiplier() float64 {
	if p == nil {
		return 1.0
	}
	switch p.Risk {
	case RiskProfileConservative:
		return 1.3
	case RiskProfileAggressive:
		return 0.8
	default:
		return 1.0
	}
}

// PositionSizeFactor mirrors the original's RiskProfile.get_position_size_factor
// base table (conservative=0.5, balanced=1.0, aggressive=1.5).
func (p *SymbolProfile) PositionSizeFactor() float64 {
	if p == nil {
		return 1.0
	}
	switch p.Risk {
	case RiskProfileConservative:
		return 0.5
	case RiskProfileAggressive:
		return 1.5
	default:
		return 1.0
	}
}
