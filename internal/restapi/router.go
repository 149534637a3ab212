package restapi

import "net/http"

// NewRouter registers every public REST route on a fresh ServeMux.
func NewRouter(api *API) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/api/v1/candles", api.HandleCandles)
	mux.HandleFunc("/api/v1/exchanges", api.HandleExchanges)
	mux.HandleFunc("/api/v1/symbols", api.HandleSymbols)
	mux.HandleFunc("/api/v1/alerts", api.HandleAlerts)
	mux.HandleFunc("/api/v1/signals", api.HandleSignals)

	return mux
}
