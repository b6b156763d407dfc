package rounds

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"roundledger/core/events"
	"roundledger/native/fees"
)

// computeSettlement splits the forfeited stakes of ineligible entries. The
// fee is taken only when someone can claim; abandoned rounds keep the whole
// pool in custody.
func computeSettlement(round *Round, rewardFeeBps uint32) *Settlement {
	s := &Settlement{
		Pool:          big.NewInt(0),
		RewardFee:     big.NewInt(0),
		Distributable: big.NewInt(0),
		Share:         big.NewInt(0),
		RewardFeeBps:  rewardFeeBps,
	}
	for slot, entry := range round.Entries {
		idx := uint64(slot)
		if round.Eligible(idx) {
			s.Eligible++
			s.TotalWeight += round.Weight(idx)
			continue
		}
		s.Pool.Add(s.Pool, entry.StakeAmount)
	}
	if s.Eligible == 0 {
		return s
	}
	split := fees.Deduct(s.Pool, rewardFeeBps)
	s.RewardFee = split.Fee
	s.Distributable = split.Net
	s.Share = new(big.Int).Quo(s.Distributable, new(big.Int).SetUint64(s.TotalWeight))
	return s
}

// Payout is the amount owed to an eligible slot: its stake plus one share
// per unit of weight.
func (s *Settlement) Payout(stake *big.Int, weight uint64) *big.Int {
	reward := new(big.Int).Mul(s.Share, new(big.Int).SetUint64(weight))
	return reward.Add(reward, newBigInt(stake))
}

// settle freezes the settlement on work if it has not been computed yet.
func settle(work *Round, cfg Config) *Settlement {
	if work.Settlement == nil {
		work.Settlement = computeSettlement(work, cfg.RewardFeeBps)
	}
	return work.Settlement
}

// takeRewardFee marks the round fee as forwarded and returns the transfer
// that moves it, or nil when it was already forwarded or is zero.
func (e *Engine) takeRewardFee(work *Round, cfg Config) *transfer {
	s := settle(work, cfg)
	if s.FeeForwarded {
		return nil
	}
	s.FeeForwarded = true
	if s.RewardFee.Sign() == 0 {
		return nil
	}
	return &transfer{from: e.custody, to: cfg.Wallet, amount: new(big.Int).Set(s.RewardFee)}
}

// WithdrawRoundFee forwards the settled round's reward fee to the wallet.
// It returns the amount moved, zero when it has already been forwarded.
func (e *Engine) WithdrawRoundFee(ctx context.Context, caller common.Address, roundID uint64) (*big.Int, error) {
	forwarded := big.NewInt(0)
	err := e.mutate(ctx, "withdraw_fee", func(now int64) error {
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
		if !ok || round == nil || len(round.Entries) == 0 {
			return fmt.Errorf("%w: round %d has no entries", ErrInvalidRound, roundID)
		}
		if round.Settlement != nil && round.Settlement.FeeForwarded {
			return nil
		}

		work := round.Clone()
		var transfers []transfer
		if fee := e.takeRewardFee(work, cfg); fee != nil {
			transfers = append(transfers, *fee)
		}
		if err := e.commit(work, transfers); err != nil {
			return err
		}
		for _, t := range transfers {
			forwarded.Add(forwarded, t.amount)
		}
		if forwarded.Sign() > 0 {
			e.emit(events.RoundFeeForwarded{Round: roundID, Wallet: cfg.Wallet, Amount: forwarded})
			e.metrics.AddValue("reward_fee", forwarded)
		}
		e.logger.Info("round fee settled",
			"round", roundID,
			"caller", caller.Hex(),
			"amount", forwarded.String())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return forwarded, nil
}
