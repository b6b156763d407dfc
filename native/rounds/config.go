package rounds

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"roundledger/native/fees"
)

// Config is the mutable economic and timing configuration of the ledger.
type Config struct {
	StakeValue          *big.Int       `json:"stakeValue"`
	GasFeeBps           uint32         `json:"gasFeeBps"`
	RewardFeeBps        uint32         `json:"rewardFeeBps"`
	MaxProfiles         uint32         `json:"maxProfiles"`
	FirstNFree          uint32         `json:"firstNFree"`
	GenesisTime         int64          `json:"genesisTime"`
	RoundOpenDuration   uint64         `json:"roundOpenDuration"`
	RoundFreezeDuration uint64         `json:"roundFreezeDuration"`
	RoundGap            uint64         `json:"roundGap"`
	AnchorTime          int64          `json:"anchorTime"`
	AnchorRound         uint64         `json:"anchorRound"`
	Owner               common.Address `json:"owner"`
	App                 common.Address `json:"app"`
	Wallet              common.Address `json:"wallet"`
}

// Clone returns a copy that shares no pointers with c.
func (c Config) Clone() Config {
	clone := c
	clone.StakeValue = newBigInt(c.StakeValue)
	return clone
}

// Validate enforces the configuration invariants. Every failure wraps
// ErrConfigOutOfBounds.
func (c Config) Validate() error {
	if c.StakeValue == nil || c.StakeValue.Sign() <= 0 {
		return fmt.Errorf("%w: stake value must be positive", ErrConfigOutOfBounds)
	}
	if err := fees.ValidateRate(c.GasFeeBps); err != nil {
		return fmt.Errorf("%w: gas fee %d", ErrConfigOutOfBounds, c.GasFeeBps)
	}
	if err := fees.ValidateRate(c.RewardFeeBps); err != nil {
		return fmt.Errorf("%w: reward fee %d", ErrConfigOutOfBounds, c.RewardFeeBps)
	}
	if c.MaxProfiles == 0 || c.MaxProfiles > MaxProfilesCap {
		return fmt.Errorf("%w: max profiles %d", ErrConfigOutOfBounds, c.MaxProfiles)
	}
	if c.FirstNFree > c.MaxProfiles {
		return fmt.Errorf("%w: first %d free exceeds max profiles %d", ErrConfigOutOfBounds, c.FirstNFree, c.MaxProfiles)
	}
	if err := validateDurations(c.RoundOpenDuration, c.RoundFreezeDuration, c.RoundGap); err != nil {
		return err
	}
	if c.AnchorRound == 0 && c.AnchorTime != c.GenesisTime {
		return fmt.Errorf("%w: anchor must start at genesis", ErrConfigOutOfBounds)
	}
	if c.Owner == (common.Address{}) || c.App == (common.Address{}) || c.Wallet == (common.Address{}) {
		return fmt.Errorf("%w: role addresses must be set", ErrConfigOutOfBounds)
	}
	return nil
}

func validateDurations(open, freeze, gap uint64) error {
	if open == 0 || gap == 0 {
		return fmt.Errorf("%w: open and gap durations must be positive", ErrConfigOutOfBounds)
	}
	if open+freeze < open || gap < open+freeze {
		return fmt.Errorf("%w: gap %d shorter than open %d + freeze %d", ErrConfigOutOfBounds, gap, open, freeze)
	}
	return nil
}

// Schedule extracts the timing parameters used by the scheduler.
func (c Config) Schedule() Schedule {
	return Schedule{
		AnchorTime:  c.AnchorTime,
		AnchorRound: c.AnchorRound,
		Open:        c.RoundOpenDuration,
		Freeze:      c.RoundFreezeDuration,
		Gap:         c.RoundGap,
	}
}
