package config

import "strings"

// Pauses captures the circuit-breaker flags persisted in the parameter store.
type Pauses struct {
	Rounds bool
}

// IsPaused reports whether the named module is halted.
func (p Pauses) IsPaused(module string) bool {
	switch strings.ToLower(strings.TrimSpace(module)) {
	case "rounds":
		return p.Rounds
	default:
		return false
	}
}

// Economics holds the round economics applied at genesis. Amounts are
// decimal strings so they survive TOML's int64 limit.
type Economics struct {
	StakeValue   string `toml:"StakeValue"`
	GasFeeBps    uint32 `toml:"GasFeeBps"`
	RewardFeeBps uint32 `toml:"RewardFeeBps"`
	MaxProfiles  uint32 `toml:"MaxProfiles"`
	FirstNFree   uint32 `toml:"FirstNFree"`
}

// Schedule holds the round timing in seconds.
type Schedule struct {
	GenesisTime   int64  `toml:"GenesisTime"`
	OpenSeconds   uint64 `toml:"OpenSeconds"`
	FreezeSeconds uint64 `toml:"FreezeSeconds"`
	GapSeconds    uint64 `toml:"GapSeconds"`
}

// Roles lists the hex addresses bound to each capability. Custody is
// optional and defaults to the derived ledger account.
type Roles struct {
	Owner   string `toml:"Owner"`
	App     string `toml:"App"`
	Wallet  string `toml:"Wallet"`
	Custody string `toml:"Custody,omitempty"`
}

// Allocation credits an address in the bank when the data directory is
// initialised.
type Allocation struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}
