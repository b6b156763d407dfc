package fees

import (
	"errors"
	"math/big"
)

// Denominator is the fixed-point scale of every rate. A rate of 1000 is the
// whole amount.
const Denominator = 1_000

// MaxRateBps is the largest rate accepted by ValidateRate.
const MaxRateBps = Denominator

var ErrRateOutOfBounds = errors.New("fees: rate exceeds denominator")

// DomainPolicy captures the surcharge applied to entries of a round.
type DomainPolicy struct {
	FreeTierAllowance uint64
	RateBps           uint32
}

// ApplyInput captures the context required to evaluate the surcharge owed by
// an entry.
type ApplyInput struct {
	Gross      *big.Int
	UsageCount uint64
	Config     DomainPolicy
}

// ApplyResult summarises the computed fee, the total the payer must transfer
// and the updated usage counter.
type ApplyResult struct {
	Fee             *big.Int
	Total           *big.Int
	Counter         uint64
	FreeTierApplied bool
}

// Apply evaluates the surcharge for an entry. The first FreeTierAllowance
// entries pay nothing; later ones pay Gross*RateBps/Denominator on top of
// Gross.
func Apply(input ApplyInput) ApplyResult {
	result := ApplyResult{Counter: input.UsageCount + 1, Fee: big.NewInt(0)}
	if input.Gross != nil {
		result.Total = new(big.Int).Set(input.Gross)
	} else {
		result.Total = big.NewInt(0)
	}
	if result.Total.Sign() <= 0 {
		return result
	}
	if input.Config.FreeTierAllowance > input.UsageCount {
		result.FreeTierApplied = true
		return result
	}
	fee := Portion(input.Gross, input.Config.RateBps)
	if fee.Sign() <= 0 {
		return result
	}
	result.Fee = fee
	result.Total = new(big.Int).Add(result.Total, fee)
	return result
}

// Portion returns floor(amount*rate/Denominator). Rates above the
// denominator are clamped to it.
func Portion(amount *big.Int, rateBps uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 || rateBps == 0 {
		return big.NewInt(0)
	}
	if rateBps > MaxRateBps {
		rateBps = MaxRateBps
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(rateBps)))
	return fee.Quo(fee, big.NewInt(Denominator))
}

// Split divides an amount into the retained fee and the remainder.
type Split struct {
	Fee *big.Int
	Net *big.Int
}

// Deduct carves the rate's portion out of amount.
func Deduct(amount *big.Int, rateBps uint32) Split {
	fee := Portion(amount, rateBps)
	net := big.NewInt(0)
	if amount != nil && amount.Sign() > 0 {
		net.Sub(amount, fee)
	}
	return Split{Fee: fee, Net: net}
}

// ValidateRate rejects rates above the denominator.
func ValidateRate(rateBps uint32) error {
	if rateBps > MaxRateBps {
		return ErrRateOutOfBounds
	}
	return nil
}
