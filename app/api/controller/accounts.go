package controller

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// HandleAccount returns the account projection: balance, tier, current rate
// and a live interest preview.
func (c *Controller) HandleAccount(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	info, err := c.App.Vault.AccountInfo(address)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleRank returns the account's live 1-based rank; 0 means unranked.
func (c *Controller) HandleRank(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	rank, err := c.App.Vault.RankOf(address)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": address, "rank": rank})
}

// HandleAccountAtRank resolves a rank back to its account.
func (c *Controller) HandleAccountAtRank(w http.ResponseWriter, r *http.Request) {
	rank, err := strconv.Atoi(mux.Vars(r)["rank"])
	if err != nil || rank < 1 {
		writeError(w, http.StatusBadRequest, "invalid rank")
		return
	}
	address, err := c.App.Vault.AccountAtRank(rank)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	info, err := c.App.Vault.AccountInfo(address)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
