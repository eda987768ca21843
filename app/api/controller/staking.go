package controller

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// HandleStake credits a deposit and returns the resulting tier.
// The custody transfer-in is assumed committed by the caller before this
// endpoint is invoked.
func (c *Controller) HandleStake(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}
	amount, err := decodeAmount(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tier, err := c.App.Vault.Stake(address, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": address, "tier": tier})
}

// HandleRequestWithdraw queues a time-locked withdrawal; no value moves yet.
func (c *Controller) HandleRequestWithdraw(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	amount, err := decodeAmount(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := c.App.Vault.RequestWithdraw(address, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requestId": id})
}

// HandleListWithdrawals lists the account's withdrawal requests.
func (c *Controller) HandleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	writeJSON(w, http.StatusOK, c.App.Vault.PendingWithdrawals(address))
}

// HandleCompleteWithdraw completes a matured request and releases the value
// through custody.
func (c *Controller) HandleCompleteWithdraw(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	amount, err := c.App.Vault.CompleteWithdraw(r.Context(), address, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amount": amount})
}

// HandleClaim settles and pays accrued interest out of the reserve.
func (c *Controller) HandleClaim(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	amount, err := c.App.Vault.SettleAndClaim(r.Context(), address)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amount": amount})
}

// HandleCompound settles accrued interest into the balance.
func (c *Controller) HandleCompound(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	amount, err := c.App.Vault.SettleAndCompound(address)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amount": amount})
}
