package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	ledgererrors "roundledger/core/errors"
)

// Kinds produced by the transport itself rather than the engine.
const (
	kindBadRequest      = "BadRequest"
	kindUnauthenticated = "Unauthenticated"
)

var errMissingCaller = errors.New("request carries no caller identity")

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusForKind maps a failure kind to its HTTP status.
func statusForKind(kind string) int {
	switch kind {
	case ledgererrors.KindUnauthorized:
		return http.StatusForbidden
	case ledgererrors.KindWrongPhase,
		ledgererrors.KindHaltedState,
		ledgererrors.KindDuplicateStake,
		ledgererrors.KindDuplicateClaim,
		ledgererrors.KindCapacityExceeded:
		return http.StatusConflict
	case ledgererrors.KindInvalidRound:
		return http.StatusNotFound
	case ledgererrors.KindInvalidMask,
		ledgererrors.KindConfigOutOfBounds,
		ledgererrors.KindNotEligible:
		return http.StatusUnprocessableEntity
	case kindBadRequest:
		return http.StatusBadRequest
	case kindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError renders err using its failure kind. Internal failures do
// not leak their message.
func writeEngineError(w http.ResponseWriter, err error) {
	kind := ledgererrors.KindOf(err)
	message := err.Error()
	if kind == ledgererrors.KindInternal {
		message = http.StatusText(http.StatusInternalServerError)
	}
	writeJSONError(w, kind, message)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, kindBadRequest, err.Error())
}

func writeUnauthenticated(w http.ResponseWriter) {
	writeJSONError(w, kindUnauthenticated, errMissingCaller.Error())
}

func writeJSONError(w http.ResponseWriter, kind, message string) {
	status := statusForKind(kind)
	message = strings.TrimSpace(message)
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]errorBody{"error": {Kind: kind, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
