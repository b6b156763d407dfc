package rounds

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"roundledger/config"
	"roundledger/core/events"
)

type mockState struct {
	rounds   map[uint64]*Round
	profiles map[uint64][]uint64
	failPut  error
}

func newMockState() *mockState {
	return &mockState{rounds: map[uint64]*Round{}, profiles: map[uint64][]uint64{}}
}

func (m *mockState) RoundGet(id uint64) (*Round, bool, error) {
	round, ok := m.rounds[id]
	if !ok {
		return nil, false, nil
	}
	return round.Clone(), true, nil
}

func (m *mockState) RoundPut(round *Round) error {
	if m.failPut != nil {
		return m.failPut
	}
	m.rounds[round.ID] = round.Clone()
	for _, entry := range round.Entries {
		list := m.profiles[entry.ProfileID]
		idx := sort.Search(len(list), func(i int) bool { return list[i] >= round.ID })
		if idx < len(list) && list[idx] == round.ID {
			continue
		}
		list = append(list, 0)
		copy(list[idx+1:], list[idx:])
		list[idx] = round.ID
		m.profiles[entry.ProfileID] = list
	}
	return nil
}

func (m *mockState) ProfileRounds(profileID uint64) ([]uint64, error) {
	return append([]uint64{}, m.profiles[profileID]...), nil
}

type mockParams struct {
	cfg    *Config
	pauses config.Pauses
}

func (m *mockParams) RoundsConfig() (Config, bool, error) {
	if m.cfg == nil {
		return Config{}, false, nil
	}
	return m.cfg.Clone(), true, nil
}

func (m *mockParams) SetRoundsConfig(cfg Config) error {
	clone := cfg.Clone()
	m.cfg = &clone
	return nil
}

func (m *mockParams) Pauses() (config.Pauses, error) { return m.pauses, nil }

func (m *mockParams) SetPauses(p config.Pauses) error {
	m.pauses = p
	return nil
}

var errBankDown = errors.New("bank unavailable")

type mockBank struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	failTo   map[common.Address]bool
}

func newMockBank() *mockBank {
	return &mockBank{balances: map[common.Address]*big.Int{}, failTo: map[common.Address]bool{}}
}

func (b *mockBank) Transfer(from, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failTo[to] {
		return errBankDown
	}
	balance := b.balanceLocked(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance: %s < %s", balance, amount)
	}
	b.balances[from] = new(big.Int).Sub(balance, amount)
	b.balances[to] = new(big.Int).Add(b.balanceLocked(to), amount)
	return nil
}

func (b *mockBank) Balance(addr common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balanceLocked(addr)), nil
}

func (b *mockBank) balanceLocked(addr common.Address) *big.Int {
	if balance, ok := b.balances[addr]; ok {
		return balance
	}
	return big.NewInt(0)
}

type recordedOp struct {
	op      string
	outcome string
}

type mockMetrics struct {
	mu   sync.Mutex
	ops  []recordedOp
	flow map[string]*big.Int
}

func (m *mockMetrics) ObserveOperation(op, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, recordedOp{op: op, outcome: outcome})
}

func (m *mockMetrics) AddValue(flow string, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flow == nil {
		m.flow = map[string]*big.Int{}
	}
	total, ok := m.flow[flow]
	if !ok {
		total = big.NewInt(0)
	}
	m.flow[flow] = new(big.Int).Add(total, amount)
}

const (
	testGenesis = int64(1_700_000_000)
	testOpen    = 100
	testFreeze  = 50
	testGap     = 200
	testFunding = 10_000
)

var (
	ownerAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	appAddr      = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	walletAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	strangerAddr = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

func userAddr(i int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0x1000 + i)))
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	engine  *Engine
	state   *mockState
	params  *mockParams
	bank    *mockBank
	clock   *clockwork.FakeClock
	events  *events.Recorder
	metrics *mockMetrics
}

func baseConfig() Config {
	return Config{
		StakeValue:          big.NewInt(1_000),
		GasFeeBps:           0,
		RewardFeeBps:        100,
		MaxProfiles:         5,
		FirstNFree:          0,
		GenesisTime:         testGenesis,
		RoundOpenDuration:   testOpen,
		RoundFreezeDuration: testFreeze,
		RoundGap:            testGap,
		Owner:               ownerAddr,
		App:                 appAddr,
		Wallet:              walletAddr,
	}
}

func newFixture(t *testing.T, mutate func(cfg *Config)) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		engine:  NewEngine(),
		state:   newMockState(),
		params:  &mockParams{},
		bank:    newMockBank(),
		clock:   clockwork.NewFakeClockAt(time.Unix(testGenesis, 0)),
		events:  &events.Recorder{},
		metrics: &mockMetrics{},
	}
	f.engine.SetState(f.state)
	f.engine.SetParams(f.params)
	f.engine.SetBank(f.bank)
	f.engine.SetClock(f.clock)
	f.engine.SetEmitter(f.events)
	f.engine.SetMetrics(f.metrics)

	cfg := baseConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	written, err := f.engine.Bootstrap(cfg)
	require.NoError(t, err)
	require.True(t, written)

	for i := 0; i < MaxProfilesCap; i++ {
		f.bank.balances[userAddr(i)] = big.NewInt(testFunding)
	}
	return f
}

// advanceTo moves the clock to genesis+offset seconds.
func (f *fixture) advanceTo(offset int64) {
	f.t.Helper()
	target := time.Unix(testGenesis+offset, 0)
	delta := target.Sub(f.clock.Now())
	require.GreaterOrEqual(f.t, delta, time.Duration(0), "clock cannot move backwards")
	f.clock.Advance(delta)
}

func (f *fixture) stake(round uint64, profile uint64, user int, inviter *uint64) *Entry {
	f.t.Helper()
	entry, err := f.engine.Stake(f.ctx, userAddr(user), round, profile, userAddr(user), inviter)
	require.NoError(f.t, err)
	return entry
}

func (f *fixture) balance(addr common.Address) int64 {
	f.t.Helper()
	balance, err := f.bank.Balance(addr)
	require.NoError(f.t, err)
	return balance.Int64()
}

func (f *fixture) custody() int64 {
	return f.balance(f.engine.CustodyAddress())
}

func ptr(v uint64) *uint64 { return &v }
