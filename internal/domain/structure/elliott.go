package structure

// WavePhase is a coarse Elliott-style read of the current move, derived from
// the trailing price legs rather than a full 5-3 wave count.
type WavePhase string

const (
	WaveImpulseUp    WavePhase = "IMPULSE_UP"
	WaveImpulseDown  WavePhase = "IMPULSE_DOWN"
	WaveCorrectionUp WavePhase = "CORRECTION_UP"
	WaveCorrectionDown WavePhase = "CORRECTION_DOWN"
	WaveUndefined    WavePhase = "UNDEFINED"
)

// ElliottRead is the heuristic wave classification for the most recent legs.
type ElliottRead struct {
	Phase       WavePhase
	RecentLegs  []PriceLeg
	Description string
}

// ClassifyWavePhase reads the last up-to-3 legs and labels the current phase
// as an impulse or a correction, the same heuristic the original system's
// generate_legs_summary applies before rendering its text description.
func ClassifyWavePhase(legs []PriceLeg) ElliottRead {
	if len(legs) == 0 {
		return ElliottRead{Phase: WaveUndefined, Description: "insufficient data for wave structure"}
	}
	start := len(legs) - 3
	if start < 0 {
		start = 0
	}
	recent := legs[start:]
	last := recent[len(recent)-1]

	var phase WavePhase
	var desc string
	switch {
	case last.Direction == LegUp && last.IsImpulse:
		phase, desc = WaveImpulseUp, "active impulse higher"
	case last.Direction == LegDown && last.IsImpulse:
		phase, desc = WaveImpulseDown, "active impulse lower"
	case last.Direction == LegUp && !last.IsImpulse:
		phase, desc = WaveCorrectionUp, "corrective bounce after a decline"
	case last.Direction == LegDown && !last.IsImpulse:
		phase, desc = WaveCorrectionDown, "corrective pullback after an advance"
	default:
		phase, desc = WaveUndefined, "undetermined phase"
	}
	return ElliottRead{Phase: phase, RecentLegs: recent, Description: desc}
}
