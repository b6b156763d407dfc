package rounds

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"roundledger/core/events"
	"roundledger/native/fees"
)

// Parameter names accepted by SetParam.
const (
	ParamStakeValue  = "stakeValue"
	ParamGasFee      = "gasFee"
	ParamRewardFee   = "rewardFee"
	ParamMaxProfiles = "maxProfiles"
	ParamFirstNFree  = "firstNFree"
	ParamApp         = "app"
	ParamWallet      = "wallet"
)

// updateConfig applies an owner-only change to the configuration.
func (e *Engine) updateConfig(ctx context.Context, caller common.Address, param, value string, apply func(cfg *Config) error) error {
	return e.mutate(ctx, "set_"+param, func(int64) error {
		cfg, err := e.config()
		if err != nil {
			return err
		}
		if err := requireRole(cfg, RoleOwner, caller); err != nil {
			return err
		}
		next := cfg.Clone()
		if err := apply(&next); err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}
		if err := e.params.SetRoundsConfig(next); err != nil {
			return fmt.Errorf("rounds engine: persist config: %w", err)
		}
		e.emit(events.ConfigUpdated{Param: param, Value: value})
		e.logger.Info("rounds config updated", "param", param, "value", value)
		return nil
	})
}

func (e *Engine) SetStakeValue(ctx context.Context, caller common.Address, value *big.Int) error {
	amount := newBigInt(value)
	return e.updateConfig(ctx, caller, ParamStakeValue, amount.String(), func(cfg *Config) error {
		if amount.Sign() <= 0 {
			return fmt.Errorf("%w: stake value must be positive", ErrConfigOutOfBounds)
		}
		cfg.StakeValue = amount
		return nil
	})
}

func (e *Engine) SetGasFee(ctx context.Context, caller common.Address, bps uint32) error {
	return e.updateConfig(ctx, caller, ParamGasFee, strconv.FormatUint(uint64(bps), 10), func(cfg *Config) error {
		if err := fees.ValidateRate(bps); err != nil {
			return fmt.Errorf("%w: gas fee %d", ErrConfigOutOfBounds, bps)
		}
		cfg.GasFeeBps = bps
		return nil
	})
}

func (e *Engine) SetRewardFee(ctx context.Context, caller common.Address, bps uint32) error {
	return e.updateConfig(ctx, caller, ParamRewardFee, strconv.FormatUint(uint64(bps), 10), func(cfg *Config) error {
		if err := fees.ValidateRate(bps); err != nil {
			return fmt.Errorf("%w: reward fee %d", ErrConfigOutOfBounds, bps)
		}
		cfg.RewardFeeBps = bps
		return nil
	})
}

func (e *Engine) SetMaxProfiles(ctx context.Context, caller common.Address, max uint32) error {
	return e.updateConfig(ctx, caller, ParamMaxProfiles, strconv.FormatUint(uint64(max), 10), func(cfg *Config) error {
		if max == 0 || max > MaxProfilesCap || max < cfg.FirstNFree {
			return fmt.Errorf("%w: max profiles %d", ErrConfigOutOfBounds, max)
		}
		cfg.MaxProfiles = max
		return nil
	})
}

func (e *Engine) SetFirstNFree(ctx context.Context, caller common.Address, n uint32) error {
	return e.updateConfig(ctx, caller, ParamFirstNFree, strconv.FormatUint(uint64(n), 10), func(cfg *Config) error {
		if n > cfg.MaxProfiles {
			return fmt.Errorf("%w: first %d free exceeds max profiles %d", ErrConfigOutOfBounds, n, cfg.MaxProfiles)
		}
		cfg.FirstNFree = n
		return nil
	})
}

func (e *Engine) SetApp(ctx context.Context, caller common.Address, app common.Address) error {
	return e.updateConfig(ctx, caller, ParamApp, app.Hex(), func(cfg *Config) error {
		if app == (common.Address{}) {
			return fmt.Errorf("%w: app address must be set", ErrConfigOutOfBounds)
		}
		cfg.App = app
		return nil
	})
}

func (e *Engine) SetWallet(ctx context.Context, caller common.Address, wallet common.Address) error {
	return e.updateConfig(ctx, caller, ParamWallet, wallet.Hex(), func(cfg *Config) error {
		if wallet == (common.Address{}) {
			return fmt.Errorf("%w: wallet address must be set", ErrConfigOutOfBounds)
		}
		cfg.Wallet = wallet
		return nil
	})
}

// SetParam parses a textual value and dispatches to the matching setter.
func (e *Engine) SetParam(ctx context.Context, caller common.Address, name, value string) error {
	value = strings.TrimSpace(value)
	switch name {
	case ParamStakeValue:
		amount, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return fmt.Errorf("%w: %s is not an integer", ErrConfigOutOfBounds, value)
		}
		return e.SetStakeValue(ctx, caller, amount)
	case ParamGasFee, ParamRewardFee, ParamMaxProfiles, ParamFirstNFree:
		parsed, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfigOutOfBounds, name, err)
		}
		n := uint32(parsed)
		switch name {
		case ParamGasFee:
			return e.SetGasFee(ctx, caller, n)
		case ParamRewardFee:
			return e.SetRewardFee(ctx, caller, n)
		case ParamMaxProfiles:
			return e.SetMaxProfiles(ctx, caller, n)
		default:
			return e.SetFirstNFree(ctx, caller, n)
		}
	case ParamApp, ParamWallet:
		if !common.IsHexAddress(value) {
			return fmt.Errorf("%w: %s is not an address", ErrConfigOutOfBounds, value)
		}
		if name == ParamApp {
			return e.SetApp(ctx, caller, common.HexToAddress(value))
		}
		return e.SetWallet(ctx, caller, common.HexToAddress(value))
	default:
		return fmt.Errorf("%w: unknown parameter %q", ErrConfigOutOfBounds, name)
	}
}

func (e *Engine) setHalted(ctx context.Context, caller common.Address, halt bool) error {
	op := "resume"
	if halt {
		op = "halt"
	}
	return e.mutate(ctx, op, func(int64) error {
		cfg, err := e.config()
		if err != nil {
			return err
		}
		if err := requireRole(cfg, RoleOwner, caller); err != nil {
			return err
		}
		pauses, err := e.params.Pauses()
		if err != nil {
			return fmt.Errorf("rounds engine: load pauses: %w", err)
		}
		if pauses.Rounds == halt {
			return nil
		}
		pauses.Rounds = halt
		if err := e.params.SetPauses(pauses); err != nil {
			return fmt.Errorf("rounds engine: persist pauses: %w", err)
		}
		if halt {
			e.emit(events.LedgerHalted{By: caller})
			e.logger.Warn("rounds ledger halted", "by", caller.Hex())
		} else {
			e.emit(events.LedgerResumed{By: caller})
			e.logger.Info("rounds ledger resumed", "by", caller.Hex())
		}
		return nil
	})
}

// CircuitBreaker halts staking. Repeated calls leave the ledger halted.
func (e *Engine) CircuitBreaker(ctx context.Context, caller common.Address) error {
	return e.setHalted(ctx, caller, true)
}

// Resume clears the halt flag.
func (e *Engine) Resume(ctx context.Context, caller common.Address) error {
	return e.setHalted(ctx, caller, false)
}

// Withdraw sweeps the whole custody balance to the owner. It is only
// available while the ledger is halted.
func (e *Engine) Withdraw(ctx context.Context, caller common.Address) (*big.Int, error) {
	swept := big.NewInt(0)
	err := e.mutate(ctx, "withdraw", func(int64) error {
		cfg, err := e.config()
		if err != nil {
			return err
		}
		if err := requireRole(cfg, RoleOwner, caller); err != nil {
			return err
		}
		halted, err := e.halted()
		if err != nil {
			return err
		}
		if !halted {
			return fmt.Errorf("%w: withdraw requires a halted ledger", ErrHaltedState)
		}
		balance, err := e.bank.Balance(e.custody)
		if err != nil {
			return fmt.Errorf("rounds engine: custody balance: %w", err)
		}
		if _, err := e.applyTransfers([]transfer{{from: e.custody, to: cfg.Owner, amount: balance}}); err != nil {
			return err
		}
		swept.Set(balance)
		e.emit(events.LedgerSwept{To: cfg.Owner, Amount: swept})
		e.metrics.AddValue("sweep", swept)
		e.logger.Warn("custody swept", "to", cfg.Owner.Hex(), "amount", swept.String())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return swept, nil
}

// ResetRoundDuration replaces the round timing while halted. The round after
// the current one starts immediately under the new durations.
func (e *Engine) ResetRoundDuration(ctx context.Context, caller common.Address, open, freeze, gap uint64) (RoundInfo, error) {
	var info RoundInfo
	err := e.mutate(ctx, "reset_schedule", func(now int64) error {
		cfg, err := e.config()
		if err != nil {
			return err
		}
		if err := requireRole(cfg, RoleOwner, caller); err != nil {
			return err
		}
		halted, err := e.halted()
		if err != nil {
			return err
		}
		if !halted {
			return fmt.Errorf("%w: schedule reset requires a halted ledger", ErrHaltedState)
		}
		if err := validateDurations(open, freeze, gap); err != nil {
			return err
		}
		next := cfg.Clone()
		next.AnchorRound = cfg.Schedule().RoundAt(now) + 1
		next.AnchorTime = now
		next.RoundOpenDuration = open
		next.RoundFreezeDuration = freeze
		next.RoundGap = gap
		if err := next.Validate(); err != nil {
			return err
		}
		if err := e.params.SetRoundsConfig(next); err != nil {
			return fmt.Errorf("rounds engine: persist config: %w", err)
		}
		info = next.Schedule().Current(now)
		e.emit(events.ScheduleReset{NextRound: next.AnchorRound, Anchor: now, Open: open, Freeze: freeze, Gap: gap})
		e.logger.Info("round schedule reset",
			"nextRound", next.AnchorRound,
			"open", open,
			"freeze", freeze,
			"gap", gap)
		return nil
	})
	return info, err
}
