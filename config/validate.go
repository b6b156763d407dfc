package config

import (
	"fmt"
	"strings"
)

var (
	// MaxProfilesCap mirrors the bit width reserved for slots in the packed
	// mask word.
	MaxProfilesCap = uint32(50)
	// FeeRateCap is the per-mille fee denominator.
	FeeRateCap = uint32(1_000)
)

// Validate checks the node configuration for values the ledger would reject
// at genesis.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case "", "leveldb", "bolt", "bbolt", "memory":
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Backend)
	}
	stake, err := c.Economics.StakeAmount()
	if err != nil {
		return err
	}
	if stake.Sign() <= 0 {
		return fmt.Errorf("economics: StakeValue must be positive")
	}
	if c.Economics.GasFeeBps > FeeRateCap || c.Economics.RewardFeeBps > FeeRateCap {
		return fmt.Errorf("economics: fee rates must not exceed %d", FeeRateCap)
	}
	if c.Economics.MaxProfiles == 0 || c.Economics.MaxProfiles > MaxProfilesCap {
		return fmt.Errorf("economics: MaxProfiles must be within 1..%d", MaxProfilesCap)
	}
	if c.Economics.FirstNFree > c.Economics.MaxProfiles {
		return fmt.Errorf("economics: FirstNFree > MaxProfiles")
	}
	s := c.Schedule
	if s.OpenSeconds == 0 || s.GapSeconds == 0 {
		return fmt.Errorf("schedule: open and gap must be positive")
	}
	if s.GapSeconds < s.OpenSeconds+s.FreezeSeconds {
		return fmt.Errorf("schedule: gap < open + freeze")
	}
	if _, _, _, err := c.Roles.Addresses(); err != nil {
		return err
	}
	if _, _, err := c.Roles.CustodyAddress(); err != nil {
		return err
	}
	for _, alloc := range c.Genesis {
		if _, _, err := alloc.Parse(); err != nil {
			return err
		}
	}
	return nil
}
