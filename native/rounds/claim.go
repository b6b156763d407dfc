package rounds

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"roundledger/core/events"
)

// Claim releases the payout of slot to its owner once the round has
// settled. The first claim also forwards the round's reward fee.
func (e *Engine) Claim(ctx context.Context, caller common.Address, roundID, slot, profileID uint64) (*big.Int, error) {
	var payout *big.Int
	err := e.mutate(ctx, "claim", func(now int64) error {
		cfg, err := e.config()
		if err != nil {
			return err
		}
		if phase := cfg.Schedule().PhaseOf(roundID, now); phase != PhaseSettle {
			return fmt.Errorf("%w: round %d is %s", ErrWrongPhase, roundID, phase)
		}
		round, ok, err := e.state.RoundGet(roundID)
		if err != nil {
			return fmt.Errorf("rounds engine: load round %d: %w", roundID, err)
		}
		if !ok || round == nil || slot >= uint64(len(round.Entries)) {
			return fmt.Errorf("%w: round %d has no slot %d", ErrInvalidRound, roundID, slot)
		}
		entry := round.Entries[slot]
		if entry.ProfileID != profileID {
			return fmt.Errorf("%w: slot %d does not belong to profile %d", ErrUnauthorized, slot, profileID)
		}
		if entry.Owner != caller {
			return fmt.Errorf("%w: %s does not own profile %d", ErrUnauthorized, caller.Hex(), profileID)
		}
		if entry.Claimed {
			return fmt.Errorf("%w: round %d slot %d", ErrDuplicateClaim, roundID, slot)
		}
		if !round.Eligible(slot) {
			return fmt.Errorf("%w: round %d slot %d is %s", ErrNotEligible, roundID, slot, entry.Status())
		}

		work := round.Clone()
		settlement := settle(work, cfg)
		weight := work.Weight(slot)
		amount := settlement.Payout(entry.StakeAmount, weight)

		claimed := work.Entries[slot]
		claimed.Claimed = true
		claimed.Payout = new(big.Int).Set(amount)

		transfers := []transfer{{from: e.custody, to: entry.Owner, amount: amount}}
		fee := e.takeRewardFee(work, cfg)
		if fee != nil {
			transfers = append(transfers, *fee)
		}
		if err := e.commit(work, transfers); err != nil {
			return err
		}

		e.emit(events.ProfileClaimed{
			Round:     roundID,
			Slot:      slot,
			ProfileID: profileID,
			Owner:     entry.Owner,
			Fund:      amount,
			Weight:    weight,
		})
		e.metrics.AddValue("payout", amount)
		if fee != nil {
			e.emit(events.RoundFeeForwarded{Round: roundID, Wallet: cfg.Wallet, Amount: fee.amount})
			e.metrics.AddValue("reward_fee", fee.amount)
		}
		e.logger.Info("profile claimed",
			"round", roundID,
			"slot", slot,
			"profile", profileID,
			"payout", amount.String(),
			"weight", weight)
		payout = amount
		return nil
	})
	return payout, err
}
