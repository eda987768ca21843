package controller

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/tiervault/tiervault/pkg/db/models"
	"github.com/tiervault/tiervault/pkg/staking"
)

// HandleTierHistory returns an account's tier transitions, oldest-first by
// default. Reads go to the history store when configured and fall back to the
// engine's in-memory log otherwise.
func (c *Controller) HandleTierHistory(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	page, err := parsePageSpec(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var rows []models.TierChange
	if c.App.HistoryDB != nil {
		rows, err = c.App.HistoryDB.QueryTierChanges(r.Context(), address, page.Cursor, page.Limit+1, page.Sort == SortOrderDesc)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "history query failed")
			return
		}
	} else {
		changes, qErr := c.App.Vault.TierHistoryOf(address)
		if qErr != nil {
			writeEngineError(w, qErr)
			return
		}
		for _, ch := range changes {
			rows = append(rows, models.TierChange{
				Address:  address,
				FromTier: uint8(ch.From),
				ToTier:   uint8(ch.To),
				At:       ch.At,
			})
		}
		rows = pageInMemory(rows, page, func(r models.TierChange) uint64 { return r.At })
	}

	resp := pagedResponse[models.TierChange]{Data: rows, Limit: page.Limit}
	if len(rows) > page.Limit {
		resp.Data = rows[:page.Limit]
		cursor := resp.Data[len(resp.Data)-1].At
		resp.NextCursor = &cursor
	}
	if resp.Data == nil {
		resp.Data = []models.TierChange{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleRateHistory returns a tier's rate entries with the same pagination
// contract as tier history.
func (c *Controller) HandleRateHistory(w http.ResponseWriter, r *http.Request) {
	tierNum, err := strconv.ParseUint(mux.Vars(r)["tier"], 10, 8)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tier")
		return
	}
	tier := staking.Tier(tierNum)
	if !tier.Valid() {
		writeEngineError(w, staking.ErrInvalidTier)
		return
	}
	page, err := parsePageSpec(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var rows []models.RateChange
	if c.App.HistoryDB != nil {
		rows, err = c.App.HistoryDB.QueryRateChanges(r.Context(), uint8(tier), page.Cursor, page.Limit+1, page.Sort == SortOrderDesc)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "history query failed")
			return
		}
	} else {
		entries, qErr := c.App.Vault.RateHistoryOf(tier)
		if qErr != nil {
			writeEngineError(w, qErr)
			return
		}
		for _, e := range entries {
			rows = append(rows, models.RateChange{Tier: uint8(tier), Rate: e.Rate, At: e.EffectiveFrom})
		}
		rows = pageInMemory(rows, page, func(r models.RateChange) uint64 { return r.At })
	}

	resp := pagedResponse[models.RateChange]{Data: rows, Limit: page.Limit}
	if len(rows) > page.Limit {
		resp.Data = rows[:page.Limit]
		cursor := resp.Data[len(resp.Data)-1].At
		resp.NextCursor = &cursor
	}
	if resp.Data == nil {
		resp.Data = []models.RateChange{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// pageInMemory applies the store's cursor semantics to an in-memory,
// ascending-by-time slice: exclusive cursor, limit+1 rows so the caller can
// detect the next page.
func pageInMemory[T any](rows []T, page pageSpec, at func(T) uint64) []T {
	if page.Sort == SortOrderDesc {
		reversed := make([]T, 0, len(rows))
		for i := len(rows) - 1; i >= 0; i-- {
			reversed = append(reversed, rows[i])
		}
		rows = reversed
	}
	out := make([]T, 0, page.Limit+1)
	for _, row := range rows {
		if page.Cursor > 0 {
			if page.Sort == SortOrderDesc && at(row) >= page.Cursor {
				continue
			}
			if page.Sort == SortOrderAsc && at(row) <= page.Cursor {
				continue
			}
		}
		out = append(out, row)
		if len(out) == page.Limit+1 {
			break
		}
	}
	return out
}
