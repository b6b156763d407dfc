package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"roundledger/core/types"
)

const (
	TypeProfileStaked     = "rounds.profile.staked"
	TypeProfileQualified  = "rounds.profile.qualified"
	TypeProfileExcluded   = "rounds.profile.excluded"
	TypeProfileClaimed    = "rounds.profile.claimed"
	TypeRoundFeeForwarded = "rounds.fee.forwarded"
	TypeLedgerHalted      = "rounds.ledger.halted"
	TypeLedgerResumed     = "rounds.ledger.resumed"
	TypeLedgerSwept       = "rounds.ledger.swept"
	TypeConfigUpdated     = "rounds.config.updated"
	TypeScheduleReset     = "rounds.schedule.reset"
)

// ProfileStaked is emitted when a profile enters a round.
type ProfileStaked struct {
	Round       uint64
	Slot        uint64
	ProfileID   uint64
	Owner       common.Address
	Amount      *big.Int
	Fee         *big.Int
	InviterSlot *uint64
}

func (ProfileStaked) EventType() string { return TypeProfileStaked }

func (e ProfileStaked) Event() *types.Event {
	attrs := map[string]string{
		"round":     uintToString(e.Round),
		"slot":      uintToString(e.Slot),
		"profileId": uintToString(e.ProfileID),
		"owner":     e.Owner.Hex(),
		"amount":    formatAmount(e.Amount),
		"fee":       formatAmount(e.Fee),
	}
	if e.InviterSlot != nil {
		attrs["inviterSlot"] = uintToString(*e.InviterSlot)
	}
	return &types.Event{Type: TypeProfileStaked, Attributes: attrs}
}

// ProfilesQualified reports the bits applied by a qualify call and the
// resulting accumulated mask.
type ProfilesQualified struct {
	Round       uint64
	Applied     uint64
	QualifyMask uint64
}

func (ProfilesQualified) EventType() string { return TypeProfileQualified }

func (e ProfilesQualified) Event() *types.Event {
	return &types.Event{
		Type: TypeProfileQualified,
		Attributes: map[string]string{
			"round":   uintToString(e.Round),
			"applied": maskToString(e.Applied),
			"mask":    maskToString(e.QualifyMask),
		},
	}
}

// ProfilesExcluded mirrors ProfilesQualified for the exclusion mask.
type ProfilesExcluded struct {
	Round       uint64
	Applied     uint64
	ExcludeMask uint64
}

func (ProfilesExcluded) EventType() string { return TypeProfileExcluded }

func (e ProfilesExcluded) Event() *types.Event {
	return &types.Event{
		Type: TypeProfileExcluded,
		Attributes: map[string]string{
			"round":   uintToString(e.Round),
			"applied": maskToString(e.Applied),
			"mask":    maskToString(e.ExcludeMask),
		},
	}
}

// ProfileClaimed is emitted once per slot when its payout is released.
type ProfileClaimed struct {
	Round     uint64
	Slot      uint64
	ProfileID uint64
	Owner     common.Address
	Fund      *big.Int
	Weight    uint64
}

func (ProfileClaimed) EventType() string { return TypeProfileClaimed }

func (e ProfileClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeProfileClaimed,
		Attributes: map[string]string{
			"round":     uintToString(e.Round),
			"slot":      uintToString(e.Slot),
			"profileId": uintToString(e.ProfileID),
			"owner":     e.Owner.Hex(),
			"fund":      formatAmount(e.Fund),
			"weight":    uintToString(e.Weight),
		},
	}
}

// RoundFeeForwarded is emitted when a round's settlement fee reaches the wallet.
type RoundFeeForwarded struct {
	Round  uint64
	Wallet common.Address
	Amount *big.Int
}

func (RoundFeeForwarded) EventType() string { return TypeRoundFeeForwarded }

func (e RoundFeeForwarded) Event() *types.Event {
	return &types.Event{
		Type: TypeRoundFeeForwarded,
		Attributes: map[string]string{
			"round":  uintToString(e.Round),
			"wallet": e.Wallet.Hex(),
			"amount": formatAmount(e.Amount),
		},
	}
}

// LedgerHalted is emitted when the circuit breaker engages.
type LedgerHalted struct {
	By common.Address
}

func (LedgerHalted) EventType() string { return TypeLedgerHalted }

func (e LedgerHalted) Event() *types.Event {
	return &types.Event{Type: TypeLedgerHalted, Attributes: map[string]string{"by": e.By.Hex()}}
}

// LedgerResumed is emitted when the circuit breaker is released.
type LedgerResumed struct {
	By common.Address
}

func (LedgerResumed) EventType() string { return TypeLedgerResumed }

func (e LedgerResumed) Event() *types.Event {
	return &types.Event{Type: TypeLedgerResumed, Attributes: map[string]string{"by": e.By.Hex()}}
}

// LedgerSwept records an emergency withdrawal of the custody balance.
type LedgerSwept struct {
	To     common.Address
	Amount *big.Int
}

func (LedgerSwept) EventType() string { return TypeLedgerSwept }

func (e LedgerSwept) Event() *types.Event {
	return &types.Event{
		Type: TypeLedgerSwept,
		Attributes: map[string]string{
			"to":     e.To.Hex(),
			"amount": formatAmount(e.Amount),
		},
	}
}

// ConfigUpdated is emitted for every accepted parameter change.
type ConfigUpdated struct {
	Param string
	Value string
}

func (ConfigUpdated) EventType() string { return TypeConfigUpdated }

func (e ConfigUpdated) Event() *types.Event {
	return &types.Event{
		Type:       TypeConfigUpdated,
		Attributes: map[string]string{"param": e.Param, "value": e.Value},
	}
}

// ScheduleReset records a change of round durations. NextRound starts at Anchor.
type ScheduleReset struct {
	NextRound uint64
	Anchor    int64
	Open      uint64
	Freeze    uint64
	Gap       uint64
}

func (ScheduleReset) EventType() string { return TypeScheduleReset }

func (e ScheduleReset) Event() *types.Event {
	return &types.Event{
		Type: TypeScheduleReset,
		Attributes: map[string]string{
			"nextRound": uintToString(e.NextRound),
			"anchor":    strconv.FormatInt(e.Anchor, 10),
			"open":      uintToString(e.Open),
			"freeze":    uintToString(e.Freeze),
			"gap":       uintToString(e.Gap),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func maskToString(v uint64) string {
	return "0b" + strconv.FormatUint(v, 2)
}
