package bank

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	ledgerstate "roundledger/core/state"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	errNilState            = errors.New("bank: state manager required")
)

// Ledger moves value between accounts stored in the state manager. Each
// transfer debits and credits in one storage batch.
type Ledger struct {
	mu    sync.Mutex
	state *ledgerstate.Manager
}

// NewLedger constructs a ledger over the supplied state manager.
func NewLedger(state *ledgerstate.Manager) *Ledger {
	return &Ledger{state: state}
}

// Balance returns the spendable balance of addr.
func (l *Ledger) Balance(addr common.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.state.Balance(addr)
}

// Transfer moves amount from one account to another. Zero amounts are a
// no-op.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Update(func(w *ledgerstate.Writer) error {
		fromBalance, err := w.Balance(from)
		if err != nil {
			return err
		}
		if fromBalance.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBalance, amount)
		}
		toBalance, err := w.Balance(to)
		if err != nil {
			return err
		}
		if err := w.SetBalance(from, new(big.Int).Sub(fromBalance, amount)); err != nil {
			return err
		}
		return w.SetBalance(to, new(big.Int).Add(toBalance, amount))
	})
}

// Credit mints amount into addr. It is used for genesis allocations only.
func (l *Ledger) Credit(addr common.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Update(func(w *ledgerstate.Writer) error {
		balance, err := w.Balance(addr)
		if err != nil {
			return err
		}
		return w.SetBalance(addr, new(big.Int).Add(balance, amount))
	})
}
