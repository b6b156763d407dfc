package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// StakeAmount parses the configured stake value.
func (e Economics) StakeAmount() (*big.Int, error) {
	amount, err := parseUintAmount(e.StakeValue)
	if err != nil {
		return nil, fmt.Errorf("invalid economics.StakeValue: %w", err)
	}
	return amount, nil
}

// Addresses resolves the configured role addresses.
func (r Roles) Addresses() (owner, app, wallet common.Address, err error) {
	if owner, err = parseAddress("roles.Owner", r.Owner); err != nil {
		return
	}
	if app, err = parseAddress("roles.App", r.App); err != nil {
		return
	}
	wallet, err = parseAddress("roles.Wallet", r.Wallet)
	return
}

// CustodyAddress resolves the optional custody override.
func (r Roles) CustodyAddress() (common.Address, bool, error) {
	if strings.TrimSpace(r.Custody) == "" {
		return common.Address{}, false, nil
	}
	addr, err := parseAddress("roles.Custody", r.Custody)
	if err != nil {
		return common.Address{}, false, err
	}
	return addr, true, nil
}

// Parse resolves the allocation into an address and amount.
func (a Allocation) Parse() (common.Address, *big.Int, error) {
	addr, err := parseAddress("genesis.Address", a.Address)
	if err != nil {
		return common.Address{}, nil, err
	}
	amount, err := parseUintAmount(a.Amount)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("invalid genesis.Amount for %s: %w", a.Address, err)
	}
	return addr, amount, nil
}

func parseAddress(field, value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid %s: %q is not a hex address", field, value)
	}
	addr := common.HexToAddress(trimmed)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("invalid %s: zero address", field)
	}
	return addr, nil
}

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a base-10 integer", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%q must not be negative", value)
	}
	return amount, nil
}
