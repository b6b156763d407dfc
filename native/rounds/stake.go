package rounds

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"roundledger/core/events"
	"roundledger/native/fees"
)

// Stake enters profileID into the current round. The caller must own the
// profile and pays the stake value plus any surcharge into custody. inviter
// names another profile already staked in the round; unknown or self
// inviters are ignored.
func (e *Engine) Stake(ctx context.Context, caller common.Address, roundID, profileID uint64, owner common.Address, inviter *uint64) (*Entry, error) {
	var staked *Entry
	err := e.mutate(ctx, "stake", func(now int64) error {
		halted, err := e.halted()
		if err != nil {
			return err
		}
		if halted {
			return fmt.Errorf("%w: staking is halted", ErrHaltedState)
		}
		cfg, err := e.config()
		if err != nil {
			return err
		}
		schedule := cfg.Schedule()
		if current := schedule.RoundAt(now); roundID != current {
			return fmt.Errorf("%w: round %d is not the current round %d", ErrInvalidRound, roundID, current)
		}
		if phase := schedule.PhaseOf(roundID, now); phase != PhaseOpen {
			return fmt.Errorf("%w: round %d is %s", ErrWrongPhase, roundID, phase)
		}
		if caller != owner {
			return fmt.Errorf("%w: %s cannot stake for %s", ErrUnauthorized, caller.Hex(), owner.Hex())
		}
		round, err := e.loadRound(roundID)
		if err != nil {
			return err
		}
		if _, exists := round.SlotOf(profileID); exists {
			return fmt.Errorf("%w: profile %d in round %d", ErrDuplicateStake, profileID, roundID)
		}
		if uint64(len(round.Entries)) >= uint64(cfg.MaxProfiles) {
			return fmt.Errorf("%w: %d of %d slots taken", ErrCapacityExceeded, len(round.Entries), cfg.MaxProfiles)
		}

		slot := uint64(len(round.Entries))
		quote := fees.Apply(fees.ApplyInput{
			Gross:      cfg.StakeValue,
			UsageCount: slot,
			Config: fees.DomainPolicy{
				FreeTierAllowance: uint64(cfg.FirstNFree),
				RateBps:           cfg.GasFeeBps,
			},
		})
		entry := &Entry{
			ProfileID:   profileID,
			Owner:       owner,
			StakeAmount: new(big.Int).Set(cfg.StakeValue),
			Fee:         quote.Fee,
			StakedAt:    now,
		}
		if inviter != nil && *inviter != profileID {
			if inviterSlot, ok := round.SlotOf(*inviter); ok {
				entry.HasInviter = true
				entry.InviterSlot = inviterSlot
			}
		}

		work := round.Clone()
		work.Entries = append(work.Entries, entry)
		work.TotalStaked = new(big.Int).Add(work.TotalStaked, entry.StakeAmount)
		work.StakeFees = new(big.Int).Add(work.StakeFees, entry.Fee)

		transfers := []transfer{
			{from: owner, to: e.custody, amount: quote.Total},
			{from: e.custody, to: cfg.Wallet, amount: quote.Fee},
		}
		if err := e.commit(work, transfers); err != nil {
			return err
		}

		evt := events.ProfileStaked{
			Round:     roundID,
			Slot:      slot,
			ProfileID: profileID,
			Owner:     owner,
			Amount:    entry.StakeAmount,
			Fee:       entry.Fee,
		}
		if entry.HasInviter {
			inviterSlot := entry.InviterSlot
			evt.InviterSlot = &inviterSlot
		}
		e.emit(evt)
		e.metrics.AddValue("stake", entry.StakeAmount)
		e.metrics.AddValue("stake_fee", entry.Fee)
		e.logger.Info("profile staked",
			"round", roundID,
			"slot", slot,
			"profile", profileID,
			"owner", owner.Hex(),
			"fee", entry.Fee.String(),
			"freeTier", quote.FreeTierApplied)
		staked = entry.Clone()
		return nil
	})
	return staked, err
}
