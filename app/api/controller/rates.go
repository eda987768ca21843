package controller

import (
	"net/http"
	"strconv"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"github.com/tiervault/tiervault/pkg/staking"
)

// HandleSetTierRate updates one tier's annual rate going forward.
func (c *Controller) HandleSetTierRate(w http.ResponseWriter, r *http.Request) {
	tierNum, err := strconv.ParseUint(mux.Vars(r)["tier"], 10, 8)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tier")
		return
	}
	var req struct {
		Rate uint64 `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := c.App.Vault.SetTierRate(staking.Tier(tierNum), req.Rate); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tier": tierNum, "rate": req.Rate})
}

// HandleSetAllRates updates all three tier rates in one step so readers never
// observe a partially applied schedule.
func (c *Controller) HandleSetAllRates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tier1 uint64 `json:"tier1"`
		Tier2 uint64 `json:"tier2"`
		Tier3 uint64 `json:"tier3"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c.App.Vault.SetAllRates(req.Tier1, req.Tier2, req.Tier3)
	writeJSON(w, http.StatusOK, map[string]any{
		"tier1": req.Tier1, "tier2": req.Tier2, "tier3": req.Tier3,
	})
}

// HandleSetThreshold updates the ranking eligibility threshold. Existing
// members keep their standing; only future stakes are judged by the new bar.
func (c *Controller) HandleSetThreshold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Threshold uint64 `json:"threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c.App.Vault.SetEligibilityThreshold(req.Threshold)
	writeJSON(w, http.StatusOK, map[string]any{"threshold": req.Threshold})
}

// HandleSetCompounding toggles the compound operation.
func (c *Controller) HandleSetCompounding(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c.App.Vault.SetCompounding(req.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"enabled": req.Enabled})
}

// HandleFundReserve credits the interest reserve.
func (c *Controller) HandleFundReserve(w http.ResponseWriter, r *http.Request) {
	amount, err := decodeAmount(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c.App.Reserve.Credit(amount)
	writeJSON(w, http.StatusOK, map[string]any{"available": c.App.Reserve.Available()})
}
