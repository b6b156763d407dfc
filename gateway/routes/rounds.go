package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"roundledger/gateway/middleware"
	"roundledger/native/rounds"
)

const maxBodyBytes = 64 << 10

// Ledger is the engine surface served over HTTP. *rounds.Engine satisfies it.
type Ledger interface {
	Config() (rounds.Config, error)
	CurrentRound() (rounds.RoundInfo, error)
	RoundData(roundID uint64) (*rounds.RoundData, error)
	ProfileRounds(profileID uint64) ([]uint64, error)
	ProfileInvites(roundID, profileID uint64) (uint64, error)
	Halted() (bool, error)
	Balance(addr common.Address) (*big.Int, error)

	Stake(ctx context.Context, caller common.Address, roundID, profileID uint64, owner common.Address, inviter *uint64) (*rounds.Entry, error)
	Qualify(ctx context.Context, caller common.Address, roundID, mask uint64) (uint64, error)
	Exclude(ctx context.Context, caller common.Address, roundID, mask uint64) (uint64, error)
	Claim(ctx context.Context, caller common.Address, roundID, slot, profileID uint64) (*big.Int, error)
	WithdrawRoundFee(ctx context.Context, caller common.Address, roundID uint64) (*big.Int, error)
	CircuitBreaker(ctx context.Context, caller common.Address) error
	Resume(ctx context.Context, caller common.Address) error
	Withdraw(ctx context.Context, caller common.Address) (*big.Int, error)
	ResetRoundDuration(ctx context.Context, caller common.Address, open, freeze, gap uint64) (rounds.RoundInfo, error)
	SetParam(ctx context.Context, caller common.Address, name, value string) error
}

type roundsRoutes struct {
	ledger Ledger
}

type stakeRequest struct {
	ProfileID uint64  `json:"profileId"`
	Owner     string  `json:"owner,omitempty"`
	Inviter   *uint64 `json:"inviter,omitempty"`
}

type maskRequest struct {
	Mask uint64 `json:"mask"`
}

type maskResponse struct {
	RoundID uint64 `json:"roundId"`
	Mask    uint64 `json:"mask"`
}

type claimRequest struct {
	Slot      uint64 `json:"slot"`
	ProfileID uint64 `json:"profileId"`
}

type amountResponse struct {
	Amount string `json:"amount"`
}

type scheduleRequest struct {
	Open   uint64 `json:"open"`
	Freeze uint64 `json:"freeze"`
	Gap    uint64 `json:"gap"`
}

type paramRequest struct {
	Value string `json:"value"`
}

type invitesResponse struct {
	RoundID   uint64 `json:"roundId"`
	ProfileID uint64 `json:"profileId"`
	Invites   uint64 `json:"invites"`
}

type profileRoundsResponse struct {
	ProfileID uint64   `json:"profileId"`
	Rounds    []uint64 `json:"rounds"`
}

type balanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type haltResponse struct {
	Halted bool `json:"halted"`
}

func (rr *roundsRoutes) mountReads(r chi.Router) {
	r.Get("/config", rr.getConfig)
	r.Get("/rounds/current", rr.currentRound)
	r.Get("/rounds/{roundID}", rr.roundData)
	r.Get("/rounds/{roundID}/invites/{profileID}", rr.invites)
	r.Get("/profiles/{profileID}/rounds", rr.profileRounds)
	r.Get("/balances/{address}", rr.balance)
	r.Get("/status", rr.status)
}

func (rr *roundsRoutes) mountWrites(r chi.Router) {
	r.Post("/rounds/{roundID}/stake", rr.stake)
	r.Post("/rounds/{roundID}/qualify", rr.curate(false))
	r.Post("/rounds/{roundID}/exclude", rr.curate(true))
	r.Post("/rounds/{roundID}/claim", rr.claim)
	r.Post("/rounds/{roundID}/fee", rr.withdrawFee)
}

func (rr *roundsRoutes) mountAdmin(r chi.Router) {
	r.Post("/halt", rr.setHalted(true))
	r.Post("/resume", rr.setHalted(false))
	r.Post("/withdraw", rr.withdraw)
	r.Post("/schedule", rr.resetSchedule)
	r.Put("/config/{param}", rr.setParam)
}

func (rr *roundsRoutes) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := rr.ledger.Config()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (rr *roundsRoutes) currentRound(w http.ResponseWriter, r *http.Request) {
	info, err := rr.ledger.CurrentRound()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (rr *roundsRoutes) roundData(w http.ResponseWriter, r *http.Request) {
	roundID, ok := uintParam(w, r, "roundID")
	if !ok {
		return
	}
	data, err := rr.ledger.RoundData(roundID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (rr *roundsRoutes) invites(w http.ResponseWriter, r *http.Request) {
	roundID, ok := uintParam(w, r, "roundID")
	if !ok {
		return
	}
	profileID, ok := uintParam(w, r, "profileID")
	if !ok {
		return
	}
	count, err := rr.ledger.ProfileInvites(roundID, profileID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invitesResponse{RoundID: roundID, ProfileID: profileID, Invites: count})
}

func (rr *roundsRoutes) profileRounds(w http.ResponseWriter, r *http.Request) {
	profileID, ok := uintParam(w, r, "profileID")
	if !ok {
		return
	}
	ids, err := rr.ledger.ProfileRounds(profileID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, profileRoundsResponse{ProfileID: profileID, Rounds: ids})
}

func (rr *roundsRoutes) balance(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(chi.URLParam(r, "address"))
	if !common.IsHexAddress(raw) {
		writeBadRequest(w, fmt.Errorf("%q is not an address", raw))
		return
	}
	addr := common.HexToAddress(raw)
	amount, err := rr.ledger.Balance(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: addr.Hex(), Balance: amount.String()})
}

func (rr *roundsRoutes) status(w http.ResponseWriter, r *http.Request) {
	halted, err := rr.ledger.Halted()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, haltResponse{Halted: halted})
}

func (rr *roundsRoutes) stake(w http.ResponseWriter, r *http.Request) {
	caller, roundID, ok := callerAndRound(w, r)
	if !ok {
		return
	}
	var req stakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	owner := caller
	if req.Owner != "" {
		if !common.IsHexAddress(req.Owner) {
			writeBadRequest(w, fmt.Errorf("owner %q is not an address", req.Owner))
			return
		}
		owner = common.HexToAddress(req.Owner)
	}
	entry, err := rr.ledger.Stake(r.Context(), caller, roundID, req.ProfileID, owner, req.Inviter)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (rr *roundsRoutes) curate(exclude bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, roundID, ok := callerAndRound(w, r)
		if !ok {
			return
		}
		var req maskRequest
		if !decodeBody(w, r, &req) {
			return
		}
		apply := rr.ledger.Qualify
		if exclude {
			apply = rr.ledger.Exclude
		}
		mask, err := apply(r.Context(), caller, roundID, req.Mask)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, maskResponse{RoundID: roundID, Mask: mask})
	}
}

func (rr *roundsRoutes) claim(w http.ResponseWriter, r *http.Request) {
	caller, roundID, ok := callerAndRound(w, r)
	if !ok {
		return
	}
	var req claimRequest
	if !decodeBody(w, r, &req) {
		return
	}
	payout, err := rr.ledger.Claim(r.Context(), caller, roundID, req.Slot, req.ProfileID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: payout.String()})
}

func (rr *roundsRoutes) withdrawFee(w http.ResponseWriter, r *http.Request) {
	caller, roundID, ok := callerAndRound(w, r)
	if !ok {
		return
	}
	amount, err := rr.ledger.WithdrawRoundFee(r.Context(), caller, roundID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amount.String()})
}

func (rr *roundsRoutes) setHalted(halt bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		toggle := rr.ledger.Resume
		if halt {
			toggle = rr.ledger.CircuitBreaker
		}
		if err := toggle(r.Context(), caller); err != nil {
			writeEngineError(w, err)
			return
		}
		rr.status(w, r)
	}
}

func (rr *roundsRoutes) withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	amount, err := rr.ledger.Withdraw(r.Context(), caller)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amount.String()})
}

func (rr *roundsRoutes) resetSchedule(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req scheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	info, err := rr.ledger.ResetRoundDuration(r.Context(), caller, req.Open, req.Freeze, req.Gap)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (rr *roundsRoutes) setParam(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req paramRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := rr.ledger.SetParam(r.Context(), caller, chi.URLParam(r, "param"), req.Value); err != nil {
		writeEngineError(w, err)
		return
	}
	rr.getConfig(w, r)
}

func requireCaller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeUnauthenticated(w)
		return common.Address{}, false
	}
	return caller, true
}

func callerAndRound(w http.ResponseWriter, r *http.Request) (common.Address, uint64, bool) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return common.Address{}, 0, false
	}
	roundID, ok := uintParam(w, r, "roundID")
	if !ok {
		return common.Address{}, 0, false
	}
	return caller, roundID, true
}

func uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("%s must be an unsigned integer", name))
		return 0, false
	}
	return value, true
}

// decodeBody reads a single JSON object. An empty body decodes to the zero
// value.
func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, fmt.Errorf("decode request: %w", err))
		return false
	}
	return true
}
