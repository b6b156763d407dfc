package routes

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"roundledger/core/state"
	"roundledger/gateway/middleware"
	"roundledger/native/bank"
	"roundledger/native/params"
	"roundledger/native/rounds"
	"roundledger/storage"
)

const (
	genesis = int64(1_700_000_000)
	openFor = 100
	freeze  = 50
	gap     = 200
	funding = 10_000
)

var (
	ownerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	appAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	walletAddr = common.HexToAddress("0x00000000000000000000000000000000000000a3")
)

func user(i int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0x1000 + i)))
}

type harness struct {
	t       *testing.T
	handler http.Handler
	clock   *clockwork.FakeClock
	engine  *rounds.Engine
	token   func(caller common.Address, scopes ...string) string
}

type harnessOptions struct {
	auth       *middleware.AuthConfig
	adminScope string
	limits     map[string]middleware.RateLimit
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	ledger := bank.NewLedger(manager)
	for i := 0; i < 5; i++ {
		require.NoError(t, ledger.Credit(user(i), big.NewInt(funding)))
	}

	clock := clockwork.NewFakeClockAt(time.Unix(genesis, 0))
	engine := rounds.NewEngine()
	engine.SetState(manager)
	engine.SetParams(params.NewStore(manager))
	engine.SetBank(ledger)
	engine.SetClock(clock)
	_, err := engine.Bootstrap(rounds.Config{
		StakeValue:          big.NewInt(1_000),
		RewardFeeBps:        100,
		MaxProfiles:         5,
		GenesisTime:         genesis,
		RoundOpenDuration:   openFor,
		RoundFreezeDuration: freeze,
		RoundGap:            gap,
		Owner:               ownerAddr,
		App:                 appAddr,
		Wallet:              walletAddr,
	})
	require.NoError(t, err)

	authCfg := middleware.AuthConfig{Enabled: false}
	if opts.auth != nil {
		authCfg = *opts.auth
	}
	handler, err := New(Config{
		Ledger:        engine,
		Authenticator: middleware.NewAuthenticator(authCfg, nil),
		RateLimiter:   middleware.NewRateLimiter(opts.limits, nil),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{ServiceName: "routes-test", Enabled: true}, nil),
		AdminScope:    opts.adminScope,
	})
	require.NoError(t, err)

	h := &harness{t: t, handler: handler, clock: clock, engine: engine}
	h.token = func(caller common.Address, scopes ...string) string {
		token, err := middleware.SignToken(middleware.TokenRequest{
			Secret: authCfg.HMACSecret,
			Caller: caller,
			Issuer: authCfg.Issuer,
			Scopes: scopes,
			TTL:    time.Hour,
		})
		require.NoError(t, err)
		return token
	}
	return h
}

func (h *harness) advanceTo(offset int64) {
	now := h.clock.Now().Unix()
	h.clock.Advance(time.Duration(genesis+offset-now) * time.Second)
}

type call struct {
	method string
	path   string
	body   string
	caller *common.Address
	token  string
}

func (h *harness) do(c call) *httptest.ResponseRecorder {
	h.t.Helper()
	var body *bytes.Reader
	if c.body != "" {
		body = bytes.NewReader([]byte(c.body))
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set("Content-Type", "application/json")
	if c.caller != nil {
		req.Header.Set("X-Caller", c.caller.Hex())
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	res := httptest.NewRecorder()
	h.handler.ServeHTTP(res, req)
	return res
}

func as(addr common.Address) *common.Address { return &addr }

func decode[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out), res.Body.String())
	return out
}

func errorKind(t *testing.T, res *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[map[string]errorBody](t, res)
	return body["error"].Kind
}

func TestRoundLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	for i := 0; i < 3; i++ {
		res := h.do(call{
			method: http.MethodPost,
			path:   "/v1/rounds/0/stake",
			body:   `{"profileId":` + big.NewInt(int64(100+i)).String() + `}`,
			caller: as(user(i)),
		})
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())
		entry := decode[rounds.Entry](t, res)
		require.Equal(t, user(i), entry.Owner)
		require.EqualValues(t, 1_000, entry.StakeAmount.Int64())
	}

	res := h.do(call{method: http.MethodGet, path: "/v1/rounds/current"})
	require.Equal(t, http.StatusOK, res.Code)
	info := decode[rounds.RoundInfo](t, res)
	require.EqualValues(t, 0, info.RoundID)
	require.Equal(t, "open", info.PhaseName)
	require.Equal(t, genesis+openFor, info.FreezeAt)

	h.advanceTo(openFor)
	res = h.do(call{method: http.MethodPost, path: "/v1/rounds/0/qualify", body: `{"mask":1}`, caller: as(appAddr)})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.EqualValues(t, 1, decode[maskResponse](t, res).Mask)

	h.advanceTo(openFor + freeze)
	res = h.do(call{method: http.MethodPost, path: "/v1/rounds/0/claim", body: `{"slot":0,"profileId":100}`, caller: as(user(0))})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, "2800", decode[amountResponse](t, res).Amount)

	res = h.do(call{method: http.MethodPost, path: "/v1/rounds/0/claim", body: `{"slot":1,"profileId":101}`, caller: as(user(1))})
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	require.Equal(t, "NotEligible", errorKind(t, res))

	res = h.do(call{method: http.MethodGet, path: "/v1/balances/" + walletAddr.Hex()})
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "200", decode[balanceResponse](t, res).Balance)

	res = h.do(call{method: http.MethodGet, path: "/v1/rounds/0"})
	require.Equal(t, http.StatusOK, res.Code)
	var data struct {
		Phase       string `json:"phase"`
		QualifyMask uint64 `json:"qualifyMask"`
		ClaimedMask uint64 `json:"claimedMask"`
		Entries     []struct {
			Status string `json:"status"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &data))
	require.Equal(t, "settle", data.Phase)
	require.EqualValues(t, 1, data.QualifyMask)
	require.EqualValues(t, 1, data.ClaimedMask)
	require.Len(t, data.Entries, 3)
	require.Equal(t, "claimed", data.Entries[0].Status)

	res = h.do(call{method: http.MethodGet, path: "/v1/profiles/100/rounds"})
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, []uint64{0}, decode[profileRoundsResponse](t, res).Rounds)

	res = h.do(call{method: http.MethodGet, path: "/v1/profiles/999/rounds"})
	require.Equal(t, http.StatusOK, res.Code)
	require.Empty(t, decode[profileRoundsResponse](t, res).Rounds)
}

func TestStakeWithInviterReportsInvites(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	res := h.do(call{method: http.MethodPost, path: "/v1/rounds/0/stake", body: `{"profileId":1}`, caller: as(user(0))})
	require.Equal(t, http.StatusOK, res.Code)
	res = h.do(call{method: http.MethodPost, path: "/v1/rounds/0/stake", body: `{"profileId":2,"inviter":1}`, caller: as(user(1))})
	require.Equal(t, http.StatusOK, res.Code)

	res = h.do(call{method: http.MethodGet, path: "/v1/rounds/0/invites/1"})
	require.Equal(t, http.StatusOK, res.Code)
	require.EqualValues(t, 1, decode[invitesResponse](t, res).Invites)
}

func TestRequestErrorsMapToStatus(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	cases := []struct {
		name   string
		call   call
		status int
		kind   string
	}{
		{
			name:   "no caller",
			call:   call{method: http.MethodPost, path: "/v1/rounds/0/stake", body: `{"profileId":1}`},
			status: http.StatusUnauthorized,
			kind:   kindUnauthenticated,
		},
		{
			name:   "stake for someone else",
			call:   call{method: http.MethodPost, path: "/v1/rounds/0/stake", body: `{"profileId":1,"owner":"` + user(1).Hex() + `"}`, caller: as(user(0))},
			status: http.StatusForbidden,
			kind:   "Unauthorized",
		},
		{
			name:   "future round",
			call:   call{method: http.MethodPost, path: "/v1/rounds/3/stake", body: `{"profileId":1}`, caller: as(user(0))},
			status: http.StatusNotFound,
			kind:   "InvalidRound",
		},
		{
			name:   "unknown field",
			call:   call{method: http.MethodPost, path: "/v1/rounds/0/stake", body: `{"profile":1}`, caller: as(user(0))},
			status: http.StatusBadRequest,
			kind:   kindBadRequest,
		},
		{
			name:   "round id not a number",
			call:   call{method: http.MethodPost, path: "/v1/rounds/zero/stake", body: `{"profileId":1}`, caller: as(user(0))},
			status: http.StatusBadRequest,
			kind:   kindBadRequest,
		},
		{
			name:   "curate during open",
			call:   call{method: http.MethodPost, path: "/v1/rounds/0/qualify", body: `{"mask":1}`, caller: as(appAddr)},
			status: http.StatusConflict,
			kind:   "WrongPhase",
		},
		{
			name:   "claim during open",
			call:   call{method: http.MethodPost, path: "/v1/rounds/0/claim", body: `{"slot":0,"profileId":1}`, caller: as(user(0))},
			status: http.StatusConflict,
			kind:   "WrongPhase",
		},
		{
			name:   "bad balance address",
			call:   call{method: http.MethodGet, path: "/v1/balances/nobody"},
			status: http.StatusBadRequest,
			kind:   kindBadRequest,
		},
		{
			name:   "reward fee out of bounds",
			call:   call{method: http.MethodPut, path: "/v1/admin/config/rewardFee", body: `{"value":"1001"}`, caller: as(ownerAddr)},
			status: http.StatusUnprocessableEntity,
			kind:   "ConfigOutOfBounds",
		},
		{
			name:   "halt by stranger",
			call:   call{method: http.MethodPost, path: "/v1/admin/halt", caller: as(user(0))},
			status: http.StatusForbidden,
			kind:   "Unauthorized",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := h.do(tc.call)
			require.Equal(t, tc.status, res.Code, res.Body.String())
			require.Equal(t, tc.kind, errorKind(t, res))
		})
	}

	res := h.do(call{method: http.MethodPost, path: "/v1/rounds/0/stake", body: `{"profileId":1}`, caller: as(user(0))})
	require.Equal(t, http.StatusOK, res.Code)
	res = h.do(call{method: http.MethodPost, path: "/v1/rounds/0/stake", body: `{"profileId":1}`, caller: as(user(0))})
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "DuplicateStake", errorKind(t, res))
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	res := h.do(call{method: http.MethodPost, path: "/v1/admin/halt", caller: as(ownerAddr)})
	require.Equal(t, http.StatusOK, res.Code)
	require.True(t, decode[haltResponse](t, res).Halted)

	res = h.do(call{method: http.MethodGet, path: "/v1/status"})
	require.True(t, decode[haltResponse](t, res).Halted)

	res = h.do(call{method: http.MethodPost, path: "/v1/rounds/0/stake", body: `{"profileId":1}`, caller: as(user(0))})
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "HaltedState", errorKind(t, res))

	res = h.do(call{method: http.MethodPost, path: "/v1/admin/withdraw", caller: as(ownerAddr)})
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "0", decode[amountResponse](t, res).Amount)

	res = h.do(call{method: http.MethodPost, path: "/v1/admin/resume", caller: as(ownerAddr)})
	require.Equal(t, http.StatusOK, res.Code)
	require.False(t, decode[haltResponse](t, res).Halted)

	res = h.do(call{method: http.MethodPut, path: "/v1/admin/config/stakeValue", body: `{"value":"2500"}`, caller: as(ownerAddr)})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	cfg := decode[rounds.Config](t, res)
	require.EqualValues(t, 2_500, cfg.StakeValue.Int64())

	res = h.do(call{method: http.MethodGet, path: "/v1/config"})
	require.Equal(t, http.StatusOK, res.Code)
	require.EqualValues(t, 2_500, decode[rounds.Config](t, res).StakeValue.Int64())

	h.advanceTo(30)
	res = h.do(call{method: http.MethodPost, path: "/v1/admin/schedule", body: `{"open":10,"freeze":5,"gap":20}`, caller: as(ownerAddr)})
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "HaltedState", errorKind(t, res))

	res = h.do(call{method: http.MethodPost, path: "/v1/admin/halt", caller: as(ownerAddr)})
	require.Equal(t, http.StatusOK, res.Code)
	res = h.do(call{method: http.MethodPost, path: "/v1/admin/schedule", body: `{"open":10,"freeze":5,"gap":20}`, caller: as(ownerAddr)})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	info := decode[rounds.RoundInfo](t, res)
	require.EqualValues(t, 1, info.RoundID)
	require.Equal(t, genesis+30, info.StartTime)
	require.Equal(t, genesis+40, info.FreezeAt)
}

func TestAdminScopeAndTokens(t *testing.T) {
	h := newHarness(t, harnessOptions{
		auth:       &middleware.AuthConfig{Enabled: true, HMACSecret: "s3cret", Issuer: "roundctl"},
		adminScope: "rounds:admin",
	})

	res := h.do(call{method: http.MethodGet, path: "/v1/config"})
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = h.do(call{method: http.MethodGet, path: "/v1/config", token: h.token(user(0))})
	require.Equal(t, http.StatusOK, res.Code)

	res = h.do(call{method: http.MethodPost, path: "/v1/rounds/0/stake", body: `{"profileId":7}`, token: h.token(user(0))})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	// X-Caller is ignored once tokens are required.
	res = h.do(call{method: http.MethodPost, path: "/v1/rounds/0/stake", body: `{"profileId":8}`, caller: as(user(1))})
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = h.do(call{method: http.MethodPost, path: "/v1/admin/halt", token: h.token(ownerAddr)})
	require.Equal(t, http.StatusForbidden, res.Code)

	res = h.do(call{method: http.MethodPost, path: "/v1/admin/halt", token: h.token(user(0), "rounds:admin")})
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Equal(t, "Unauthorized", errorKind(t, res))

	res = h.do(call{method: http.MethodPost, path: "/v1/admin/halt", token: h.token(ownerAddr, "rounds:admin")})
	require.Equal(t, http.StatusOK, res.Code)
}

func TestWriteRateLimit(t *testing.T) {
	h := newHarness(t, harnessOptions{limits: map[string]middleware.RateLimit{
		RateLimitWrite: {RatePerSecond: 0.001, Burst: 1},
	}})

	res := h.do(call{method: http.MethodPost, path: "/v1/rounds/0/stake", body: `{"profileId":1}`, caller: as(user(0))})
	require.Equal(t, http.StatusOK, res.Code)
	res = h.do(call{method: http.MethodPost, path: "/v1/rounds/0/stake", body: `{"profileId":2}`, caller: as(user(0))})
	require.Equal(t, http.StatusTooManyRequests, res.Code)

	// Buckets are per caller and reads are not limited.
	res = h.do(call{method: http.MethodPost, path: "/v1/rounds/0/stake", body: `{"profileId":3}`, caller: as(user(1))})
	require.Equal(t, http.StatusOK, res.Code)
	for i := 0; i < 3; i++ {
		res = h.do(call{method: http.MethodGet, path: "/v1/config", caller: as(user(0))})
		require.Equal(t, http.StatusOK, res.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	res := h.do(call{method: http.MethodGet, path: "/healthz"})
	require.Equal(t, http.StatusOK, res.Code)
	require.NotEmpty(t, res.Header().Get(middleware.HeaderRequestID))

	h.do(call{method: http.MethodGet, path: "/v1/config"})
	res = h.do(call{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, res.Code)
	require.True(t, strings.Contains(res.Body.String(), "gateway_requests_total"))
}

func TestNewRequiresLedger(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}
