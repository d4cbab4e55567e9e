package httpapi

import "net/http"

func Router(h *Handlers, maxInflight int) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/v1/accounts", h.OpenAccount)               // POST
	mux.HandleFunc("/v1/accounts/", h.GetAccountByPath)         // GET /v1/accounts/{number}
	mux.HandleFunc("/v1/transfers", h.PostTransfer)             // POST
	mux.HandleFunc("/v1/transactions/", h.GetTransactionByPath) // GET /v1/transactions/{uuid}
	mux.HandleFunc("/v1/qr", h.IssueQR)                         // POST
	mux.HandleFunc("/v1/qr/redeem", h.RedeemQR)                 // POST
	mux.HandleFunc("/v1/qr/", h.QRByPath)                       // GET, POST .../deactivate

	// Backpressure at the edge.
	// Prevents unbounded goroutine/pool queueing when the store is saturated.
	return withConcurrencyLimit(mux, maxInflight)
}

func withConcurrencyLimit(next http.Handler, max int) http.Handler {
	if max <= 0 {
		max = 64
	}
	sem := make(chan struct{}, max)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		default:
			// Fast fail instead of queueing forever.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"server busy"}`))
		}
	})
}
