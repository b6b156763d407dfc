package rounds

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func (e *Engine) view(fn func() error) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fn()
}

// Config returns a snapshot of the current configuration.
func (e *Engine) Config() (Config, error) {
	var cfg Config
	err := e.view(func() error {
		loaded, err := e.config()
		if err != nil {
			return err
		}
		cfg = loaded.Clone()
		return nil
	})
	return cfg, err
}

// CurrentRound reports the round id, start time and phase at the current
// instant.
func (e *Engine) CurrentRound() (RoundInfo, error) {
	var info RoundInfo
	err := e.view(func() error {
		cfg, err := e.config()
		if err != nil {
			return err
		}
		info = cfg.Schedule().Current(e.clock.Now().Unix())
		return nil
	})
	return info, err
}

// RoundData returns the reporting snapshot of a round. Rounds nobody staked
// in report empty data.
func (e *Engine) RoundData(roundID uint64) (*RoundData, error) {
	var data *RoundData
	err := e.view(func() error {
		cfg, err := e.config()
		if err != nil {
			return err
		}
		round, err := e.loadRound(roundID)
		if err != nil {
			return err
		}
		data = newRoundData(round, cfg.Schedule().PhaseOf(roundID, e.clock.Now().Unix()))
		return nil
	})
	return data, err
}

// ProfileRounds lists the rounds profileID has staked in, ascending.
func (e *Engine) ProfileRounds(profileID uint64) ([]uint64, error) {
	var ids []uint64
	err := e.view(func() error {
		list, err := e.state.ProfileRounds(profileID)
		if err != nil {
			return fmt.Errorf("rounds engine: profile %d rounds: %w", profileID, err)
		}
		ids = append([]uint64{}, list...)
		return nil
	})
	return ids, err
}

// ProfileInvites counts the entries of roundID that named profileID as
// inviter. Profiles absent from the round have none.
func (e *Engine) ProfileInvites(roundID, profileID uint64) (uint64, error) {
	var count uint64
	err := e.view(func() error {
		round, err := e.loadRound(roundID)
		if err != nil {
			return err
		}
		if slot, ok := round.SlotOf(profileID); ok {
			count = round.InviteCount(slot)
		}
		return nil
	})
	return count, err
}

// Halted reports whether the circuit breaker is engaged.
func (e *Engine) Halted() (bool, error) {
	var halted bool
	err := e.view(func() error {
		var err error
		halted, err = e.halted()
		return err
	})
	return halted, err
}

// Balance returns the bank balance of addr.
func (e *Engine) Balance(addr common.Address) (*big.Int, error) {
	if e.bank == nil {
		return nil, errNilBank
	}
	return e.bank.Balance(addr)
}

// CustodyAddress is the account holding staked funds.
func (e *Engine) CustodyAddress() common.Address {
	return e.custody
}
