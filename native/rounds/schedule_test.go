package rounds

import "testing"

func TestScheduleFromGenesis(t *testing.T) {
	s := baseConfig().Schedule()
	s.AnchorTime = testGenesis

	cases := []struct {
		name  string
		now   int64
		round uint64
		phase Phase
	}{
		{"before genesis", testGenesis - 1, 0, PhasePending},
		{"genesis", testGenesis, 0, PhaseOpen},
		{"last open second", testGenesis + testOpen - 1, 0, PhaseOpen},
		{"freeze starts", testGenesis + testOpen, 0, PhaseFreeze},
		{"last freeze second", testGenesis + testOpen + testFreeze - 1, 0, PhaseFreeze},
		{"settle starts", testGenesis + testOpen + testFreeze, 0, PhaseSettle},
		{"next round", testGenesis + testGap, 1, PhaseOpen},
		{"far future", testGenesis + 10*testGap + testOpen, 10, PhaseFreeze},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.RoundAt(tc.now); got != tc.round {
				t.Fatalf("round: want %d got %d", tc.round, got)
			}
			if got := s.PhaseOf(tc.round, tc.now); got != tc.phase {
				t.Fatalf("phase: want %s got %s", tc.phase, got)
			}
		})
	}
}

func TestSchedulePastAndFutureRounds(t *testing.T) {
	s := baseConfig().Schedule()
	s.AnchorTime = testGenesis
	now := testGenesis + 3*testGap + 10

	if got := s.PhaseOf(2, now); got != PhaseSettle {
		t.Fatalf("past round should be settled, got %s", got)
	}
	if got := s.PhaseOf(0, now); got != PhaseSettle {
		t.Fatalf("genesis round should be settled, got %s", got)
	}
	if got := s.PhaseOf(4, now); got != PhasePending {
		t.Fatalf("future round should be pending, got %s", got)
	}
}

func TestScheduleAfterReanchor(t *testing.T) {
	s := Schedule{
		AnchorTime:  testGenesis + 530,
		AnchorRound: 3,
		Open:        10,
		Freeze:      5,
		Gap:         20,
	}
	if got := s.RoundAt(testGenesis + 530); got != 3 {
		t.Fatalf("anchor round should start at the anchor, got %d", got)
	}
	if got := s.PhaseOf(3, testGenesis+530); got != PhaseOpen {
		t.Fatalf("anchor round should open immediately, got %s", got)
	}
	if got := s.RoundAt(testGenesis + 550); got != 4 {
		t.Fatalf("want round 4 one gap later, got %d", got)
	}
	if got := s.PhaseOf(2, testGenesis+530); got != PhaseSettle {
		t.Fatalf("rounds before the anchor are settled, got %s", got)
	}
	if _, ok := s.StartOf(2); ok {
		t.Fatalf("rounds before the anchor have no start")
	}

	info := s.Current(testGenesis + 546)
	if info.RoundID != 3 || info.Phase != PhaseSettle || info.StartTime != testGenesis+530 {
		t.Fatalf("unexpected current round %+v", info)
	}
	if info.FreezeAt != testGenesis+540 || info.SettleAt != testGenesis+545 || info.NextRoundAt != testGenesis+550 {
		t.Fatalf("unexpected boundaries %+v", info)
	}
}

func TestRoundIDMonotonic(t *testing.T) {
	s := baseConfig().Schedule()
	s.AnchorTime = testGenesis
	var last uint64
	for now := testGenesis - 50; now < testGenesis+5*testGap; now += 7 {
		id := s.RoundAt(now)
		if id < last {
			t.Fatalf("round id decreased from %d to %d at %d", last, id, now)
		}
		last = id
	}
}
