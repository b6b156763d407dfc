package rounds

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestSlotStatusPrecedence(t *testing.T) {
	require.Equal(t, SlotUnset, (&Entry{}).Status())
	require.Equal(t, SlotQualified, (&Entry{Qualified: true}).Status())
	require.Equal(t, SlotExcluded, (&Entry{Qualified: true, Excluded: true}).Status())
	require.Equal(t, SlotClaimed, (&Entry{Qualified: true, Claimed: true}).Status())
	require.Equal(t, SlotUnset, (*Entry)(nil).Status())
}

func TestPackMasks(t *testing.T) {
	packed := PackMasks(0b101, 0b010)
	want := new(uint256.Int).Or(uint256.NewInt(0b101), new(uint256.Int).Lsh(uint256.NewInt(0b010), ExcludeBitOffset))
	require.True(t, packed.Eq(want))

	qualify, exclude := UnpackMasks(packed)
	require.EqualValues(t, 0b101, qualify)
	require.EqualValues(t, 0b010, exclude)

	full := uint64(1)<<MaxProfilesCap - 1
	qualify, exclude = UnpackMasks(PackMasks(full, full))
	require.Equal(t, full, qualify)
	require.Equal(t, full, exclude)
}

func TestRoundCloneIsDeep(t *testing.T) {
	round := newRound(1)
	round.Entries = []*Entry{{ProfileID: 1, StakeAmount: big.NewInt(5), Fee: big.NewInt(0)}}
	round.Settlement = &Settlement{Pool: big.NewInt(1), RewardFee: big.NewInt(0), Distributable: big.NewInt(1), Share: big.NewInt(1)}

	clone := round.Clone()
	clone.Entries[0].StakeAmount.SetInt64(99)
	clone.Entries[0].Qualified = true
	clone.Settlement.Share.SetInt64(42)
	clone.TotalStaked.SetInt64(7)

	require.EqualValues(t, 5, round.Entries[0].StakeAmount.Int64())
	require.False(t, round.Entries[0].Qualified)
	require.EqualValues(t, 1, round.Settlement.Share.Int64())
	require.Zero(t, round.TotalStaked.Sign())
}

func TestEligibility(t *testing.T) {
	round := newRound(1)
	round.Entries = []*Entry{{Excluded: true}}
	require.True(t, round.Eligible(0), "lone participant is always eligible")
	require.False(t, round.Eligible(1))

	round.Entries = append(round.Entries, &Entry{Qualified: true}, &Entry{})
	require.False(t, round.Eligible(0))
	require.True(t, round.Eligible(1))
	require.False(t, round.Eligible(2))
}

func TestComputeSettlementScenario(t *testing.T) {
	round := newRound(1)
	for i := 0; i < 3; i++ {
		round.Entries = append(round.Entries, &Entry{ProfileID: uint64(i), StakeAmount: big.NewInt(1_000)})
	}
	round.Entries[0].Qualified = true

	s := computeSettlement(round, 100)
	require.EqualValues(t, 2_000, s.Pool.Int64())
	require.EqualValues(t, 200, s.RewardFee.Int64())
	require.EqualValues(t, 1_800, s.Distributable.Int64())
	require.EqualValues(t, 1, s.TotalWeight)
	require.EqualValues(t, 2_800, s.Payout(round.Entries[0].StakeAmount, round.Weight(0)).Int64())
}

func TestComputeSettlementAbandoned(t *testing.T) {
	round := newRound(1)
	round.Entries = []*Entry{
		{StakeAmount: big.NewInt(1_000)},
		{StakeAmount: big.NewInt(1_000), Excluded: true},
	}
	s := computeSettlement(round, 500)
	require.Zero(t, s.Eligible)
	require.EqualValues(t, 2_000, s.Pool.Int64())
	require.Zero(t, s.RewardFee.Sign())
	require.Zero(t, s.Share.Sign())
}
