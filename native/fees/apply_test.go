package fees

import (
	"math/big"
	"testing"
)

func TestApplyFreeTier(t *testing.T) {
	policy := DomainPolicy{FreeTierAllowance: 2, RateBps: 100}
	for usage := uint64(0); usage < 2; usage++ {
		result := Apply(ApplyInput{Gross: big.NewInt(1_000), UsageCount: usage, Config: policy})
		if !result.FreeTierApplied {
			t.Fatalf("usage %d: expected free tier", usage)
		}
		if result.Fee.Sign() != 0 {
			t.Fatalf("usage %d: expected zero fee, got %s", usage, result.Fee)
		}
		if result.Total.Cmp(big.NewInt(1_000)) != 0 {
			t.Fatalf("usage %d: unexpected total %s", usage, result.Total)
		}
		if result.Counter != usage+1 {
			t.Fatalf("usage %d: unexpected counter %d", usage, result.Counter)
		}
	}

	result := Apply(ApplyInput{Gross: big.NewInt(1_000), UsageCount: 2, Config: policy})
	if result.FreeTierApplied {
		t.Fatalf("third entry should be charged")
	}
	if result.Fee.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected fee 100, got %s", result.Fee)
	}
	if result.Total.Cmp(big.NewInt(1_100)) != 0 {
		t.Fatalf("expected total 1100, got %s", result.Total)
	}
}

func TestApplyEdgeCases(t *testing.T) {
	t.Run("nil gross", func(t *testing.T) {
		result := Apply(ApplyInput{Config: DomainPolicy{RateBps: 500}})
		if result.Fee.Sign() != 0 || result.Total.Sign() != 0 {
			t.Fatalf("expected zero result, got fee=%s total=%s", result.Fee, result.Total)
		}
	})

	t.Run("zero rate", func(t *testing.T) {
		result := Apply(ApplyInput{Gross: big.NewInt(10), Config: DomainPolicy{}})
		if result.Fee.Sign() != 0 || result.Total.Cmp(big.NewInt(10)) != 0 {
			t.Fatalf("unexpected result fee=%s total=%s", result.Fee, result.Total)
		}
	})

	t.Run("rounds down", func(t *testing.T) {
		result := Apply(ApplyInput{Gross: big.NewInt(999), Config: DomainPolicy{RateBps: 1}})
		if result.Fee.Sign() != 0 {
			t.Fatalf("expected fee to floor to zero, got %s", result.Fee)
		}
	})
}

func TestDeduct(t *testing.T) {
	split := Deduct(big.NewInt(3_000), 50)
	if split.Fee.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("expected fee 150, got %s", split.Fee)
	}
	if split.Net.Cmp(big.NewInt(2_850)) != 0 {
		t.Fatalf("expected net 2850, got %s", split.Net)
	}

	full := Deduct(big.NewInt(77), MaxRateBps)
	if full.Fee.Cmp(big.NewInt(77)) != 0 || full.Net.Sign() != 0 {
		t.Fatalf("full rate should retain everything, got fee=%s net=%s", full.Fee, full.Net)
	}

	empty := Deduct(nil, 10)
	if empty.Fee.Sign() != 0 || empty.Net.Sign() != 0 {
		t.Fatalf("nil amount should split to zero")
	}
}

func TestValidateRate(t *testing.T) {
	if err := ValidateRate(MaxRateBps); err != nil {
		t.Fatalf("rate at cap should be accepted: %v", err)
	}
	if err := ValidateRate(MaxRateBps + 1); err != ErrRateOutOfBounds {
		t.Fatalf("expected ErrRateOutOfBounds, got %v", err)
	}
}
