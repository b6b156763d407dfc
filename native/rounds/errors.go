package rounds

import (
	"errors"

	ledgererrors "roundledger/core/errors"
)

var (
	ErrUnauthorized      = ledgererrors.ErrUnauthorized
	ErrWrongPhase        = ledgererrors.ErrWrongPhase
	ErrInvalidRound      = ledgererrors.ErrInvalidRound
	ErrDuplicateStake    = ledgererrors.ErrDuplicateStake
	ErrDuplicateClaim    = ledgererrors.ErrDuplicateClaim
	ErrCapacityExceeded  = ledgererrors.ErrCapacityExceeded
	ErrInvalidMask       = ledgererrors.ErrInvalidMask
	ErrNotEligible       = ledgererrors.ErrNotEligible
	ErrConfigOutOfBounds = ledgererrors.ErrConfigOutOfBounds
	ErrHaltedState       = ledgererrors.ErrHaltedState

	errNilState        = errors.New("rounds engine: state not configured")
	errNilBank         = errors.New("rounds engine: bank not configured")
	errNotBootstrapped = errors.New("rounds engine: config not initialised")
)
