package rounds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"

	"roundledger/config"
	ledgererrors "roundledger/core/errors"
	"roundledger/core/events"
	nativecommon "roundledger/native/common"
)

type engineState interface {
	RoundGet(id uint64) (*Round, bool, error)
	RoundPut(round *Round) error
	ProfileRounds(profileID uint64) ([]uint64, error)
}

type paramStore interface {
	RoundsConfig() (Config, bool, error)
	SetRoundsConfig(cfg Config) error
	Pauses() (config.Pauses, error)
	SetPauses(pauses config.Pauses) error
}

// Bank moves value between accounts. Transfers are all-or-nothing.
type Bank interface {
	Transfer(from, to common.Address, amount *big.Int) error
	Balance(addr common.Address) (*big.Int, error)
}

// Metrics receives operation outcomes and value flows.
type Metrics interface {
	ObserveOperation(op, outcome string, elapsed time.Duration)
	AddValue(flow string, amount *big.Int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, string, time.Duration) {}
func (noopMetrics) AddValue(string, *big.Int)                      {}

// DefaultCustodyAddress is the ledger's own account when none is configured.
func DefaultCustodyAddress() common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte("roundledger/custody"))[12:])
}

// Engine runs the round lifecycle: staking, curation, settlement and the
// owner controls. Mutations are serialised; queries run concurrently.
type Engine struct {
	mu      sync.RWMutex
	state   engineState
	params  paramStore
	bank    Bank
	emitter events.Emitter
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics Metrics
	custody common.Address
}

// NewEngine constructs a rounds engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
		metrics: noopMetrics{},
		custody: DefaultCustodyAddress(),
	}
}

// SetState configures the round storage backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetParams configures the parameter store holding config and pauses.
func (e *Engine) SetParams(params paramStore) { e.params = params }

// SetBank configures the value-transfer collaborator.
func (e *Engine) SetBank(bank Bank) { e.bank = bank }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetClock overrides the time source.
func (e *Engine) SetClock(clock clockwork.Clock) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	e.clock = clock
}

// SetLogger sets the structured logger. A nil logger falls back to slog.Default.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With("module", ModuleName)
}

// SetMetrics configures the metrics sink. Nil disables recording.
func (e *Engine) SetMetrics(metrics Metrics) {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	e.metrics = metrics
}

// SetCustody overrides the account that holds staked funds.
func (e *Engine) SetCustody(addr common.Address) {
	if addr == (common.Address{}) {
		addr = DefaultCustodyAddress()
	}
	e.custody = addr
}

func (e *Engine) ready() error {
	switch {
	case e.state == nil || e.params == nil:
		return errNilState
	case e.bank == nil:
		return errNilBank
	}
	return nil
}

// Bootstrap stores cfg as the initial configuration unless one is already
// persisted. It reports whether cfg was written.
func (e *Engine) Bootstrap(cfg Config) (bool, error) {
	if e.params == nil {
		return false, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok, err := e.params.RoundsConfig(); err != nil || ok {
		return false, err
	}
	cfg = cfg.Clone()
	if cfg.AnchorRound == 0 {
		cfg.AnchorTime = cfg.GenesisTime
	}
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	if err := e.params.SetRoundsConfig(cfg); err != nil {
		return false, err
	}
	e.logger.Info("rounds config initialised",
		"genesis", cfg.GenesisTime,
		"gap", cfg.RoundGap,
		"maxProfiles", cfg.MaxProfiles)
	return true, nil
}

// mutate runs fn under the write lock with a single clock reading.
func (e *Engine) mutate(ctx context.Context, op string, fn func(now int64) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.ready(); err != nil {
		return err
	}
	began := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	err := fn(e.clock.Now().Unix())
	e.observe(op, began, err)
	return err
}

func (e *Engine) observe(op string, began time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = ledgererrors.KindOf(err)
		if outcome == ledgererrors.KindInternal {
			e.logger.Error("rounds operation failed", "op", op, "error", err)
		} else {
			e.logger.Debug("rounds operation rejected", "op", op, "kind", outcome, "error", err)
		}
	}
	e.metrics.ObserveOperation(op, outcome, time.Since(began))
}

func (e *Engine) config() (Config, error) {
	cfg, ok, err := e.params.RoundsConfig()
	if err != nil {
		return Config{}, fmt.Errorf("rounds engine: load config: %w", err)
	}
	if !ok {
		return Config{}, errNotBootstrapped
	}
	return cfg, nil
}

func (e *Engine) halted() (bool, error) {
	pauses, err := e.params.Pauses()
	if err != nil {
		return false, fmt.Errorf("rounds engine: load pauses: %w", err)
	}
	if err := nativecommon.Guard(pauses, ModuleName); errors.Is(err, nativecommon.ErrModulePaused) {
		return true, nil
	}
	return false, nil
}

// loadRound returns the stored round or an empty one when none exists.
func (e *Engine) loadRound(id uint64) (*Round, error) {
	round, ok, err := e.state.RoundGet(id)
	if err != nil {
		return nil, fmt.Errorf("rounds engine: load round %d: %w", id, err)
	}
	if !ok || round == nil {
		return newRound(id), nil
	}
	return round, nil
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

type transfer struct {
	from   common.Address
	to     common.Address
	amount *big.Int
}

// applyTransfers executes transfers in order. When one fails the ones
// already applied are reversed. The returned revert undoes all of them.
func (e *Engine) applyTransfers(transfers []transfer) (func(), error) {
	applied := make([]transfer, 0, len(transfers))
	revert := func() {
		for i := len(applied) - 1; i >= 0; i-- {
			t := applied[i]
			if err := e.bank.Transfer(t.to, t.from, t.amount); err != nil {
				e.logger.Error("compensating transfer failed",
					"from", t.to.Hex(),
					"to", t.from.Hex(),
					"amount", t.amount.String(),
					"error", err)
			}
		}
	}
	for _, t := range transfers {
		if t.amount == nil || t.amount.Sign() == 0 {
			continue
		}
		if err := e.bank.Transfer(t.from, t.to, t.amount); err != nil {
			revert()
			return nil, fmt.Errorf("rounds engine: transfer %s to %s: %w", t.from.Hex(), t.to.Hex(), err)
		}
		applied = append(applied, t)
	}
	return revert, nil
}

// commit moves funds and persists round as one unit.
func (e *Engine) commit(round *Round, transfers []transfer) error {
	revert, err := e.applyTransfers(transfers)
	if err != nil {
		return err
	}
	if err := e.state.RoundPut(round); err != nil {
		revert()
		return fmt.Errorf("rounds engine: persist round %d: %w", round.ID, err)
	}
	return nil
}
