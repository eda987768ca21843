package controller

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tiervault/tiervault/app/api/types"
)

type Controller struct {
	App *types.App
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	return &Controller{App: app}
}

// NewRouter returns a new router with all the routes defined in this package.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/healthz", http.HandlerFunc(c.HandleHealth)).Methods("GET")
	r.Handle("/readyz", http.HandlerFunc(c.HandleReady)).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()

	// staking operations
	v1.HandleFunc("/accounts/{address}/stake", c.HandleStake).Methods("POST")
	v1.HandleFunc("/accounts/{address}/withdrawals", c.HandleRequestWithdraw).Methods("POST")
	v1.HandleFunc("/accounts/{address}/withdrawals", c.HandleListWithdrawals).Methods("GET")
	v1.HandleFunc("/accounts/{address}/withdrawals/{id}/complete", c.HandleCompleteWithdraw).Methods("POST")
	v1.HandleFunc("/accounts/{address}/claim", c.HandleClaim).Methods("POST")
	v1.HandleFunc("/accounts/{address}/compound", c.HandleCompound).Methods("POST")

	// queries
	v1.HandleFunc("/accounts/{address}", c.HandleAccount).Methods("GET")
	v1.HandleFunc("/accounts/{address}/rank", c.HandleRank).Methods("GET")
	v1.HandleFunc("/accounts/{address}/tier-history", c.HandleTierHistory).Methods("GET")
	v1.HandleFunc("/ranks/{rank}", c.HandleAccountAtRank).Methods("GET")
	v1.HandleFunc("/tiers", c.HandleTiers).Methods("GET")
	v1.HandleFunc("/tiers/{tier}/rate-history", c.HandleRateHistory).Methods("GET")

	// real-time event stream
	v1.HandleFunc("/ws", c.HandleWebSocket).Methods("GET")

	// admin surface
	admin := v1.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/login", c.HandleLogin).Methods("POST")
	admin.Handle("/rates/{tier}", c.RequireAdmin(http.HandlerFunc(c.HandleSetTierRate))).Methods("PUT")
	admin.Handle("/rates", c.RequireAdmin(http.HandlerFunc(c.HandleSetAllRates))).Methods("PUT")
	admin.Handle("/threshold", c.RequireAdmin(http.HandlerFunc(c.HandleSetThreshold))).Methods("PUT")
	admin.Handle("/compounding", c.RequireAdmin(http.HandlerFunc(c.HandleSetCompounding))).Methods("PUT")
	admin.Handle("/reserve", c.RequireAdmin(http.HandlerFunc(c.HandleFundReserve))).Methods("POST")

	return r, nil
}

// WithCORS wraps the router with permissive CORS for browser clients.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodPut+", "+http.MethodOptions)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
