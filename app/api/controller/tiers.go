package controller

import (
	"net/http"

	"github.com/tiervault/tiervault/pkg/staking"
)

type tierStatus struct {
	Tier  staking.Tier `json:"tier"`
	Count int          `json:"count"`
	Rate  uint64       `json:"rate"`
}

// HandleTiers returns the live population split and current rates.
func (c *Controller) HandleTiers(w http.ResponseWriter, _ *http.Request) {
	t1, t2, t3 := c.App.Vault.TierCounts()
	counts := map[staking.Tier]int{staking.Tier1: t1, staking.Tier2: t2, staking.Tier3: t3}

	out := make([]tierStatus, 0, 3)
	for _, tier := range []staking.Tier{staking.Tier1, staking.Tier2, staking.Tier3} {
		rate, err := c.App.Vault.CurrentRate(tier)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		out = append(out, tierStatus{Tier: tier, Count: counts[tier], Rate: rate})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"population": c.App.Vault.Population(),
		"threshold":  c.App.Vault.EligibilityThreshold(),
		"tiers":      out,
	})
}
