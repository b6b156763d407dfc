package rounds

// Schedule maps wall-clock seconds to round ids and phases. Round r starts
// at AnchorTime + (r-AnchorRound)*Gap for every r at or after AnchorRound.
// The anchor is the genesis time until the first duration reset.
type Schedule struct {
	AnchorTime  int64
	AnchorRound uint64
	Open        uint64
	Freeze      uint64
	Gap         uint64
}

// RoundAt returns the current round id. Before the anchor the anchor round
// is reported; before genesis that is round 0.
func (s Schedule) RoundAt(now int64) uint64 {
	if now < s.AnchorTime || s.Gap == 0 {
		return s.AnchorRound
	}
	return s.AnchorRound + uint64(now-s.AnchorTime)/s.Gap
}

// StartOf returns the start time of round. Rounds before the anchor have no
// well-defined start after a reset.
func (s Schedule) StartOf(round uint64) (int64, bool) {
	if round < s.AnchorRound {
		return 0, false
	}
	return s.AnchorTime + int64((round-s.AnchorRound)*s.Gap), true
}

// PhaseOf derives the phase of round at now. Earlier rounds have always
// settled because the gap covers open plus freeze.
func (s Schedule) PhaseOf(round uint64, now int64) Phase {
	current := s.RoundAt(now)
	switch {
	case round > current:
		return PhasePending
	case round < current:
		return PhaseSettle
	}
	start, ok := s.StartOf(round)
	if !ok || now < start {
		return PhasePending
	}
	offset := uint64(now - start)
	switch {
	case offset < s.Open:
		return PhaseOpen
	case offset < s.Open+s.Freeze:
		return PhaseFreeze
	default:
		return PhaseSettle
	}
}

// Current describes the round in progress at now.
func (s Schedule) Current(now int64) RoundInfo {
	round := s.RoundAt(now)
	start, _ := s.StartOf(round)
	phase := s.PhaseOf(round, now)
	return RoundInfo{
		RoundID:     round,
		StartTime:   start,
		Phase:       phase,
		PhaseName:   phase.String(),
		FreezeAt:    start + int64(s.Open),
		SettleAt:    start + int64(s.Open+s.Freeze),
		NextRoundAt: start + int64(s.Gap),
	}
}
