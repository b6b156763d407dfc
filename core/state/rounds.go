package state

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"roundledger/native/rounds"
)

var (
	roundPrefix        = []byte("rounds:round:")
	profileRoundPrefix = []byte("rounds:profile:")
)

func uint64Key(prefix []byte, id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return prefixedKey(prefix, buf[:])
}

func roundKey(id uint64) []byte {
	return uint64Key(roundPrefix, id)
}

func profileRoundsKey(profileID uint64) []byte {
	return uint64Key(profileRoundPrefix, profileID)
}

type storedEntry struct {
	ProfileID   uint64
	Owner       common.Address
	StakeAmount *big.Int
	Fee         *big.Int
	HasInviter  bool
	InviterSlot uint64
	StakedAt    uint64
	Qualified   bool
	Excluded    bool
	Claimed     bool
	Payout      *big.Int
}

type storedSettlement struct {
	Pool          *big.Int
	RewardFee     *big.Int
	Distributable *big.Int
	Share         *big.Int
	TotalWeight   uint64
	Eligible      uint64
	RewardFeeBps  uint32
	FeeForwarded  bool
}

type storedRound struct {
	ID          uint64
	Entries     []storedEntry
	TotalStaked *big.Int
	StakeFees   *big.Int
	Settled     bool
	Settlement  storedSettlement
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func newStoredRound(round *rounds.Round) *storedRound {
	stored := &storedRound{
		ID:          round.ID,
		Entries:     make([]storedEntry, len(round.Entries)),
		TotalStaked: nonNil(round.TotalStaked),
		StakeFees:   nonNil(round.StakeFees),
	}
	for i, entry := range round.Entries {
		stakedAt := uint64(0)
		if entry.StakedAt > 0 {
			stakedAt = uint64(entry.StakedAt)
		}
		stored.Entries[i] = storedEntry{
			ProfileID:   entry.ProfileID,
			Owner:       entry.Owner,
			StakeAmount: nonNil(entry.StakeAmount),
			Fee:         nonNil(entry.Fee),
			HasInviter:  entry.HasInviter,
			InviterSlot: entry.InviterSlot,
			StakedAt:    stakedAt,
			Qualified:   entry.Qualified,
			Excluded:    entry.Excluded,
			Claimed:     entry.Claimed,
			Payout:      nonNil(entry.Payout),
		}
	}
	if s := round.Settlement; s != nil {
		stored.Settled = true
		stored.Settlement = storedSettlement{
			Pool:          nonNil(s.Pool),
			RewardFee:     nonNil(s.RewardFee),
			Distributable: nonNil(s.Distributable),
			Share:         nonNil(s.Share),
			TotalWeight:   s.TotalWeight,
			Eligible:      s.Eligible,
			RewardFeeBps:  s.RewardFeeBps,
			FeeForwarded:  s.FeeForwarded,
		}
	} else {
		stored.Settlement = storedSettlement{
			Pool:          big.NewInt(0),
			RewardFee:     big.NewInt(0),
			Distributable: big.NewInt(0),
			Share:         big.NewInt(0),
		}
	}
	return stored
}

func (s *storedRound) toRound() *rounds.Round {
	round := &rounds.Round{
		ID:          s.ID,
		TotalStaked: nonNil(s.TotalStaked),
		StakeFees:   nonNil(s.StakeFees),
	}
	if len(s.Entries) > 0 {
		round.Entries = make([]*rounds.Entry, len(s.Entries))
	}
	for i, stored := range s.Entries {
		entry := &rounds.Entry{
			ProfileID:   stored.ProfileID,
			Owner:       stored.Owner,
			StakeAmount: nonNil(stored.StakeAmount),
			Fee:         nonNil(stored.Fee),
			HasInviter:  stored.HasInviter,
			InviterSlot: stored.InviterSlot,
			StakedAt:    int64(stored.StakedAt),
			Qualified:   stored.Qualified,
			Excluded:    stored.Excluded,
			Claimed:     stored.Claimed,
		}
		if stored.Claimed {
			entry.Payout = nonNil(stored.Payout)
		}
		round.Entries[i] = entry
	}
	if s.Settled {
		round.Settlement = &rounds.Settlement{
			Pool:          nonNil(s.Settlement.Pool),
			RewardFee:     nonNil(s.Settlement.RewardFee),
			Distributable: nonNil(s.Settlement.Distributable),
			Share:         nonNil(s.Settlement.Share),
			TotalWeight:   s.Settlement.TotalWeight,
			Eligible:      s.Settlement.Eligible,
			RewardFeeBps:  s.Settlement.RewardFeeBps,
			FeeForwarded:  s.Settlement.FeeForwarded,
		}
	}
	return round
}

// RoundGet loads a round record.
func (m *Manager) RoundGet(id uint64) (*rounds.Round, bool, error) {
	var stored storedRound
	ok, err := m.KVGet(roundKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toRound(), true, nil
}

// RoundPut writes the round and indexes it under every staked profile in a
// single batch.
func (m *Manager) RoundPut(round *rounds.Round) error {
	if round == nil {
		return nil
	}
	return m.Update(func(w *Writer) error {
		if err := w.KVPut(roundKey(round.ID), newStoredRound(round)); err != nil {
			return err
		}
		for _, entry := range round.Entries {
			if err := w.KVAppendUint64(profileRoundsKey(entry.ProfileID), round.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// ProfileRounds lists the rounds a profile has staked in, ascending.
func (m *Manager) ProfileRounds(profileID uint64) ([]uint64, error) {
	var list []uint64
	if err := m.KVGetList(profileRoundsKey(profileID), &list); err != nil {
		return nil, err
	}
	return list, nil
}
