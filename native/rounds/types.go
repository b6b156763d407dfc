package rounds

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// ModuleName identifies the ledger in pause configuration and metrics.
	ModuleName = "rounds"
	// MaxProfilesCap bounds the number of slots in any round. Slot indices
	// must fit below ExcludeBitOffset in the packed reporting word.
	MaxProfilesCap = 50
	// ExcludeBitOffset is the bit position of slot 0's exclusion flag in the
	// packed qualify/exclude word.
	ExcludeBitOffset = 50
)

// Phase is the lifecycle stage of a round at a given instant.
type Phase uint8

const (
	PhasePending Phase = iota
	PhaseOpen
	PhaseFreeze
	PhaseSettle
)

func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "open"
	case PhaseFreeze:
		return "freeze"
	case PhaseSettle:
		return "settle"
	default:
		return "pending"
	}
}

// SlotStatus is the effective state of a slot. Precedence is
// Claimed > Excluded > Qualified > Unset.
type SlotStatus uint8

const (
	SlotUnset SlotStatus = iota
	SlotQualified
	SlotExcluded
	SlotClaimed
)

func (s SlotStatus) String() string {
	switch s {
	case SlotQualified:
		return "qualified"
	case SlotExcluded:
		return "excluded"
	case SlotClaimed:
		return "claimed"
	default:
		return "unset"
	}
}

// Entry is a profile's stake in a round. Its slot is its index in
// Round.Entries.
type Entry struct {
	ProfileID   uint64         `json:"profileId"`
	Owner       common.Address `json:"owner"`
	StakeAmount *big.Int       `json:"stakeAmount"`
	Fee         *big.Int       `json:"fee"`
	HasInviter  bool           `json:"hasInviter"`
	InviterSlot uint64         `json:"inviterSlot"`
	StakedAt    int64          `json:"stakedAt"`
	Qualified   bool           `json:"qualified"`
	Excluded    bool           `json:"excluded"`
	Claimed     bool           `json:"claimed"`
	Payout      *big.Int       `json:"payout,omitempty"`
}

// Status derives the tagged slot status from the individual flags.
func (e *Entry) Status() SlotStatus {
	switch {
	case e == nil:
		return SlotUnset
	case e.Claimed:
		return SlotClaimed
	case e.Excluded:
		return SlotExcluded
	case e.Qualified:
		return SlotQualified
	default:
		return SlotUnset
	}
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	clone.StakeAmount = newBigInt(e.StakeAmount)
	clone.Fee = newBigInt(e.Fee)
	if e.Payout != nil {
		clone.Payout = new(big.Int).Set(e.Payout)
	}
	return &clone
}

// Settlement is frozen the first time a round is settled so every claim of
// the round sees the same pool, fee and share.
type Settlement struct {
	Pool          *big.Int `json:"pool"`
	RewardFee     *big.Int `json:"rewardFee"`
	Distributable *big.Int `json:"distributable"`
	Share         *big.Int `json:"share"`
	TotalWeight   uint64   `json:"totalWeight"`
	Eligible      uint64   `json:"eligible"`
	RewardFeeBps  uint32   `json:"rewardFeeBps"`
	FeeForwarded  bool     `json:"feeForwarded"`
}

// Clone returns a deep copy of the settlement.
func (s *Settlement) Clone() *Settlement {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Pool = newBigInt(s.Pool)
	clone.RewardFee = newBigInt(s.RewardFee)
	clone.Distributable = newBigInt(s.Distributable)
	clone.Share = newBigInt(s.Share)
	return &clone
}

// Round holds every entry staked under one round id.
type Round struct {
	ID          uint64      `json:"id"`
	Entries     []*Entry    `json:"entries"`
	TotalStaked *big.Int    `json:"totalStaked"`
	StakeFees   *big.Int    `json:"stakeFees"`
	Settlement  *Settlement `json:"settlement,omitempty"`
}

func newRound(id uint64) *Round {
	return &Round{ID: id, TotalStaked: big.NewInt(0), StakeFees: big.NewInt(0)}
}

// Clone returns a deep copy of the round.
func (r *Round) Clone() *Round {
	if r == nil {
		return nil
	}
	clone := &Round{
		ID:          r.ID,
		TotalStaked: newBigInt(r.TotalStaked),
		StakeFees:   newBigInt(r.StakeFees),
		Settlement:  r.Settlement.Clone(),
	}
	if len(r.Entries) > 0 {
		clone.Entries = make([]*Entry, len(r.Entries))
		for i, entry := range r.Entries {
			clone.Entries[i] = entry.Clone()
		}
	}
	return clone
}

// SlotOf returns the slot staked by profileID.
func (r *Round) SlotOf(profileID uint64) (uint64, bool) {
	if r == nil {
		return 0, false
	}
	for slot, entry := range r.Entries {
		if entry.ProfileID == profileID {
			return uint64(slot), true
		}
	}
	return 0, false
}

// InviteCount counts entries that named slot as their inviter.
func (r *Round) InviteCount(slot uint64) uint64 {
	if r == nil {
		return 0
	}
	var count uint64
	for _, entry := range r.Entries {
		if entry.HasInviter && entry.InviterSlot == slot {
			count++
		}
	}
	return count
}

// Weight is the distribution weight of slot: itself plus its invites.
func (r *Round) Weight(slot uint64) uint64 {
	return 1 + r.InviteCount(slot)
}

// Eligible reports whether slot may claim. A lone participant is always
// eligible; otherwise the slot must be qualified and not excluded.
func (r *Round) Eligible(slot uint64) bool {
	if r == nil || slot >= uint64(len(r.Entries)) {
		return false
	}
	if len(r.Entries) == 1 {
		return true
	}
	entry := r.Entries[slot]
	return entry.Qualified && !entry.Excluded
}

// SlotMask covers every staked slot.
func (r *Round) SlotMask() uint64 {
	if r == nil || len(r.Entries) == 0 {
		return 0
	}
	return (uint64(1) << uint(len(r.Entries))) - 1
}

func (r *Round) mask(flag func(*Entry) bool) uint64 {
	if r == nil {
		return 0
	}
	var mask uint64
	for slot, entry := range r.Entries {
		if flag(entry) {
			mask |= uint64(1) << uint(slot)
		}
	}
	return mask
}

// QualifyMask packs the qualified flags, slot i at bit i.
func (r *Round) QualifyMask() uint64 {
	return r.mask(func(e *Entry) bool { return e.Qualified })
}

// ExcludeMask packs the excluded flags, slot i at bit i.
func (r *Round) ExcludeMask() uint64 {
	return r.mask(func(e *Entry) bool { return e.Excluded })
}

// ClaimedMask packs the claimed flags, slot i at bit i.
func (r *Round) ClaimedMask() uint64 {
	return r.mask(func(e *Entry) bool { return e.Claimed })
}

// PackMasks builds the combined reporting word: qualify bits in the low
// positions and exclude bits starting at ExcludeBitOffset.
func PackMasks(qualify, exclude uint64) *uint256.Int {
	packed := new(uint256.Int).Lsh(uint256.NewInt(exclude), ExcludeBitOffset)
	return packed.Or(packed, uint256.NewInt(qualify))
}

// UnpackMasks reverses PackMasks.
func UnpackMasks(packed *uint256.Int) (qualify, exclude uint64) {
	if packed == nil {
		return 0, 0
	}
	low := uint64(1)<<ExcludeBitOffset - 1
	qualify = packed.Uint64() & low
	exclude = new(uint256.Int).Rsh(packed, ExcludeBitOffset).Uint64() & low
	return qualify, exclude
}

// EntryView is the read model of an entry in RoundData.
type EntryView struct {
	Slot    uint64 `json:"slot"`
	Status  string `json:"status"`
	Invites uint64 `json:"invites"`
	Weight  uint64 `json:"weight"`
	*Entry
}

// RoundData is the reporting snapshot of a round.
type RoundData struct {
	RoundID     uint64       `json:"roundId"`
	Phase       string       `json:"phase"`
	QualifyMask uint64       `json:"qualifyMask"`
	ExcludeMask uint64       `json:"excludeMask"`
	ClaimedMask uint64       `json:"claimedMask"`
	Packed      *uint256.Int `json:"packed"`
	Entries     []EntryView  `json:"entries"`
	TotalStaked *big.Int     `json:"totalStaked"`
	StakeFees   *big.Int     `json:"stakeFees"`
	Settlement  *Settlement  `json:"settlement,omitempty"`
}

func newRoundData(round *Round, phase Phase) *RoundData {
	qualify := round.QualifyMask()
	exclude := round.ExcludeMask()
	data := &RoundData{
		RoundID:     round.ID,
		Phase:       phase.String(),
		QualifyMask: qualify,
		ExcludeMask: exclude,
		ClaimedMask: round.ClaimedMask(),
		Packed:      PackMasks(qualify, exclude),
		Entries:     make([]EntryView, 0, len(round.Entries)),
		TotalStaked: newBigInt(round.TotalStaked),
		StakeFees:   newBigInt(round.StakeFees),
		Settlement:  round.Settlement.Clone(),
	}
	for slot, entry := range round.Entries {
		idx := uint64(slot)
		data.Entries = append(data.Entries, EntryView{
			Slot:    idx,
			Status:  entry.Status().String(),
			Invites: round.InviteCount(idx),
			Weight:  round.Weight(idx),
			Entry:   entry.Clone(),
		})
	}
	return data
}

// RoundInfo describes the current round at a point in time.
type RoundInfo struct {
	RoundID     uint64 `json:"roundId"`
	StartTime   int64  `json:"roundStartTime"`
	Phase       Phase  `json:"-"`
	PhaseName   string `json:"phase"`
	FreezeAt    int64  `json:"freezeAt"`
	SettleAt    int64  `json:"settleAt"`
	NextRoundAt int64  `json:"nextRoundAt"`
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
