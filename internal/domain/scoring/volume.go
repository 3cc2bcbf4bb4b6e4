package scoring

// VolumeScorer implements the volume indicator group (spec §4.6): OBV
// direction and CMF sign.
type VolumeScorer struct{}

func (VolumeScorer) Group() Group { return GroupVolume }

func (VolumeScorer) Score(ctx ScoreContext) GroupScore {
	signals := map[string]interface{}{}
	var score float64

	if len(ctx.Indicators.OBV) >= 2 {
		last, lastOK := lastValid(ctx.Indicators.OBV)
		prev, prevOK := lastValid(ctx.Indicators.OBV[:len(ctx.Indicators.OBV)-1])
		if lastOK && prevOK {
			switch {
			case last > prev:
				score += 0.8
				signals["obv"] = "rising"
			case last < prev:
				score -= 0.8
				signals["obv"] = "falling"
			}
		}
	}

	if cmf, ok := lastValid(ctx.Indicators.CMF20); ok {
		switch {
		case cmf > 0:
			score += 0.5
		case cmf < 0:
			score -= 0.5
		}
		signals["cmf"] = cmf
	}

	raw := clamp(score/1.5, -2, 2)
	summary := "volume neutral"
	switch {
	case raw > 0.5:
		summary = "volume supportive"
	case raw < -0.5:
		summary = "volume distributive"
	}
	return GroupScore{Group: GroupVolume, RawScore: raw, Signals: signals, Summary: summary}
}
