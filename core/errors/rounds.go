package errors

import stderrors "errors"

// Failure kinds surfaced by the round ledger. Every rejected operation wraps
// exactly one of these.
var (
	ErrUnauthorized      = stderrors.New("rounds: unauthorized")
	ErrWrongPhase        = stderrors.New("rounds: wrong phase")
	ErrInvalidRound      = stderrors.New("rounds: invalid round")
	ErrDuplicateStake    = stderrors.New("rounds: profile already staked")
	ErrDuplicateClaim    = stderrors.New("rounds: slot already claimed")
	ErrCapacityExceeded  = stderrors.New("rounds: round is full")
	ErrInvalidMask       = stderrors.New("rounds: mask must be nonzero")
	ErrNotEligible       = stderrors.New("rounds: slot not eligible")
	ErrConfigOutOfBounds = stderrors.New("rounds: config value out of bounds")
	ErrHaltedState       = stderrors.New("rounds: halted state")
)

// Kind names used on the wire.
const (
	KindUnauthorized      = "Unauthorized"
	KindWrongPhase        = "WrongPhase"
	KindInvalidRound      = "InvalidRound"
	KindDuplicateStake    = "DuplicateStake"
	KindDuplicateClaim    = "DuplicateClaim"
	KindCapacityExceeded  = "CapacityExceeded"
	KindInvalidMask       = "InvalidMask"
	KindNotEligible       = "NotEligible"
	KindConfigOutOfBounds = "ConfigOutOfBounds"
	KindHaltedState       = "HaltedState"
	KindInternal          = "Internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrUnauthorized, KindUnauthorized},
	{ErrWrongPhase, KindWrongPhase},
	{ErrInvalidRound, KindInvalidRound},
	{ErrDuplicateStake, KindDuplicateStake},
	{ErrDuplicateClaim, KindDuplicateClaim},
	{ErrCapacityExceeded, KindCapacityExceeded},
	{ErrInvalidMask, KindInvalidMask},
	{ErrNotEligible, KindNotEligible},
	{ErrConfigOutOfBounds, KindConfigOutOfBounds},
	{ErrHaltedState, KindHaltedState},
}

// KindOf maps err to its failure kind. Errors that do not wrap a ledger
// failure (storage, bank, encoding) report KindInternal; nil reports "".
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, candidate := range kinds {
		if stderrors.Is(err, candidate.err) {
			return candidate.kind
		}
	}
	return KindInternal
}
