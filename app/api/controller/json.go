package controller

import (
	"errors"
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/tiervault/tiervault/pkg/staking"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps engine sentinels onto HTTP statuses: malformed input
// is 400, unknown entities 404, and recoverable business conditions 409.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, staking.ErrInvalidAmount),
		errors.Is(err, staking.ErrInvalidTier),
		errors.Is(err, staking.ErrInvalidInterval),
		errors.Is(err, staking.ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, staking.ErrUnknownAccount),
		errors.Is(err, staking.ErrUnknownRank),
		errors.Is(err, staking.ErrUnknownRequest):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, staking.ErrInsufficientBalance),
		errors.Is(err, staking.ErrCapacityExceeded),
		errors.Is(err, staking.ErrWindowNotElapsed),
		errors.Is(err, staking.ErrAlreadyCompleted),
		errors.Is(err, staking.ErrInsufficientReserve),
		errors.Is(err, staking.ErrCompoundingDisabled):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

func decodeAmount(r *http.Request) (uint64, error) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, err
	}
	return req.Amount, nil
}
