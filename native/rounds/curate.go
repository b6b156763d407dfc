package rounds

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"roundledger/core/events"
)

// Qualify marks the slots in mask as qualified and returns the accumulated
// qualify mask. Bits beyond the staked slots are ignored.
func (e *Engine) Qualify(ctx context.Context, caller common.Address, roundID, mask uint64) (uint64, error) {
	return e.curate(ctx, "qualify", caller, roundID, mask, false)
}

// Exclude marks the slots in mask as excluded and returns the accumulated
// exclude mask. Exclusion wins over qualification regardless of order.
func (e *Engine) Exclude(ctx context.Context, caller common.Address, roundID, mask uint64) (uint64, error) {
	return e.curate(ctx, "exclude", caller, roundID, mask, true)
}

func (e *Engine) curate(ctx context.Context, op string, caller common.Address, roundID, mask uint64, exclude bool) (uint64, error) {
	var result uint64
	err := e.mutate(ctx, op, func(now int64) error {
		cfg, err := e.config()
		if err != nil {
			return err
		}
		if err := requireRole(cfg, RoleApp, caller); err != nil {
			return err
		}
		if mask == 0 {
			return ErrInvalidMask
		}
		round, ok, err := e.state.RoundGet(roundID)
		if err != nil {
			return fmt.Errorf("rounds engine: load round %d: %w", roundID, err)
		}
		if !ok || round == nil || len(round.Entries) == 0 {
			return fmt.Errorf("%w: round %d has no entries", ErrInvalidRound, roundID)
		}
		if phase := cfg.Schedule().PhaseOf(roundID, now); phase != PhaseFreeze {
			return fmt.Errorf("%w: round %d is %s", ErrWrongPhase, roundID, phase)
		}

		applied := mask & round.SlotMask()
		work := round.Clone()
		for slot, entry := range work.Entries {
			if applied&(uint64(1)<<uint(slot)) == 0 {
				continue
			}
			if exclude {
				entry.Excluded = true
			} else {
				entry.Qualified = true
			}
		}
		if err := e.commit(work, nil); err != nil {
			return err
		}

		if exclude {
			result = work.ExcludeMask()
			e.emit(events.ProfilesExcluded{Round: roundID, Applied: applied, ExcludeMask: result})
		} else {
			result = work.QualifyMask()
			e.emit(events.ProfilesQualified{Round: roundID, Applied: applied, QualifyMask: result})
		}
		e.logger.Info("round curated",
			"op", op,
			"round", roundID,
			"applied", applied,
			"mask", result)
		return nil
	})
	return result, err
}
