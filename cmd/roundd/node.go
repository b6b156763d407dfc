package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"roundledger/config"
	"roundledger/core/events"
	"roundledger/core/state"
	"roundledger/native/bank"
	"roundledger/native/params"
	"roundledger/native/rounds"
	"roundledger/observability"
	"roundledger/storage"
)

// node bundles the storage, bank and engine opened from a node config.
type node struct {
	db     storage.Database
	bank   *bank.Ledger
	engine *rounds.Engine
}

func (n *node) Close() {
	if n != nil && n.db != nil {
		n.db.Close()
	}
}

// roundsConfig converts the TOML economics, schedule and roles into the
// engine's genesis configuration.
func roundsConfig(cfg *config.Config) (rounds.Config, error) {
	stake, err := cfg.Economics.StakeAmount()
	if err != nil {
		return rounds.Config{}, err
	}
	owner, app, wallet, err := cfg.Roles.Addresses()
	if err != nil {
		return rounds.Config{}, err
	}
	return rounds.Config{
		StakeValue:          stake,
		GasFeeBps:           cfg.Economics.GasFeeBps,
		RewardFeeBps:        cfg.Economics.RewardFeeBps,
		MaxProfiles:         cfg.Economics.MaxProfiles,
		FirstNFree:          cfg.Economics.FirstNFree,
		GenesisTime:         cfg.Schedule.GenesisTime,
		RoundOpenDuration:   cfg.Schedule.OpenSeconds,
		RoundFreezeDuration: cfg.Schedule.FreezeSeconds,
		RoundGap:            cfg.Schedule.GapSeconds,
		AnchorTime:          cfg.Schedule.GenesisTime,
		Owner:               owner,
		App:                 app,
		Wallet:              wallet,
	}, nil
}

func dataPath(cfg *config.Config) string {
	dir := strings.TrimSpace(cfg.DataDir)
	if dir == "" {
		dir = "./roundledger-data"
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "bolt", "bbolt":
		return filepath.Join(dir, "ledger.bolt")
	default:
		return filepath.Join(dir, "ledger")
	}
}

// openNode opens the configured backend and wires the engine. The genesis
// allocations are credited only when the stored configuration is written for
// the first time.
func openNode(cfg *config.Config, logger *slog.Logger) (*node, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	db, err := storage.Open(backend, dataPath(cfg))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	manager := state.NewManager(db)
	ledger := bank.NewLedger(manager)

	engine := rounds.NewEngine()
	engine.SetState(manager)
	engine.SetParams(params.NewStore(manager))
	engine.SetBank(ledger)
	engine.SetLogger(logger)
	engine.SetMetrics(observability.Rounds())
	engine.SetEmitter(events.Fanout{events.LogEmitter{Logger: logger}, observability.Events()})
	custody, ok, err := cfg.Roles.CustodyAddress()
	if err != nil {
		db.Close()
		return nil, err
	}
	if ok {
		engine.SetCustody(custody)
	}

	genesis, err := roundsConfig(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	written, err := engine.Bootstrap(genesis)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap rounds: %w", err)
	}
	if written {
		for _, alloc := range cfg.Genesis {
			addr, amount, err := alloc.Parse()
			if err != nil {
				db.Close()
				return nil, err
			}
			if amount.Sign() == 0 {
				continue
			}
			if err := ledger.Credit(addr, amount); err != nil {
				db.Close()
				return nil, fmt.Errorf("credit genesis %s: %w", addr.Hex(), err)
			}
			logger.Info("genesis allocation credited", "address", addr.Hex(), "amount", amount.String())
		}
	}
	return &node{db: db, bank: ledger, engine: engine}, nil
}

// reportStatus refreshes the halted and custody gauges until ctx ends.
func reportStatus(ctx context.Context, engine *rounds.Engine, metrics *observability.RoundsMetrics, interval time.Duration, logger *slog.Logger) {
	refresh := func() {
		if halted, err := engine.Halted(); err == nil {
			metrics.SetHalted(halted)
		} else {
			logger.Warn("read halted flag", "error", err)
		}
		if balance, err := engine.Balance(engine.CustodyAddress()); err == nil {
			metrics.RecordCustody(balance)
		} else {
			logger.Warn("read custody balance", "error", err)
		}
	}
	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
