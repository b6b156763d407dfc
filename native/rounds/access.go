package rounds

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Role is a capability bound to a configured address.
type Role uint8

const (
	RoleOwner Role = iota
	RoleApp
	RoleWallet
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleApp:
		return "app"
	case RoleWallet:
		return "wallet"
	default:
		return "unknown"
	}
}

// HasRole reports whether addr holds role.
func (c Config) HasRole(role Role, addr common.Address) bool {
	if addr == (common.Address{}) {
		return false
	}
	switch role {
	case RoleOwner:
		return c.Owner == addr
	case RoleApp:
		return c.App == addr
	case RoleWallet:
		return c.Wallet == addr
	default:
		return false
	}
}

func requireRole(cfg Config, role Role, caller common.Address) error {
	if !cfg.HasRole(role, caller) {
		return fmt.Errorf("%w: %s is not the %s", ErrUnauthorized, caller.Hex(), role)
	}
	return nil
}
