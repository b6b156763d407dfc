package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var balancePrefix = []byte("balance:")

func balanceKey(addr common.Address) []byte {
	return prefixedKey(balancePrefix, addr.Bytes())
}

// Balance retrieves the balance of addr. Unknown accounts hold zero.
func (m *Manager) Balance(addr common.Address) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(balanceKey(addr), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// Balance retrieves the balance of addr including staged writes.
func (w *Writer) Balance(addr common.Address) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := w.KVGet(balanceKey(addr), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// SetBalance stages a new balance for addr.
func (w *Writer) SetBalance(addr common.Address, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative balance not allowed")
	}
	return w.KVPut(balanceKey(addr), amount)
}
