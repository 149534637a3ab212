package restapi

import (
	"net/http"
	"strconv"

	"livermore/internal/alertengine"
	"livermore/internal/cache"
	"livermore/internal/config"
	"livermore/internal/gateway"
	"livermore/internal/model"
)

// defaultLimit/maxLimit bound every cursor-paginated list read.
const (
	defaultLimit = 200
	maxLimit     = 1000
)

// API wires the REST handlers to their data sources: the candle cache,
// the per-exchange alert record stores, and the static exchange/symbol
// descriptor table.
type API struct {
	Cache       *cache.Store
	Descriptors *config.Descriptors
	AlertStores map[string]*alertengine.Store // exchangeID -> store
}

// New builds an API over the given collaborators.
func New(store *cache.Store, descriptors *config.Descriptors, alertStores map[string]*alertengine.Store) *API {
	return &API{Cache: store, Descriptors: descriptors, AlertStores: alertStores}
}

func parseLimit(r *http.Request) int {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= maxLimit {
			limit = n
		}
	}
	return limit
}

func parseCursor(r *http.Request) int64 {
	raw := r.URL.Query().Get("cursor")
	if raw == "" {
		return 0
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// HandleCandles serves GET /api/v1/candles?exchange=&symbol=&tf=&cursor=&limit=
func (a *API) HandleCandles(w http.ResponseWriter, r *http.Request) {
	exchangeID := r.URL.Query().Get("exchange")
	symbol := r.URL.Query().Get("symbol")
	tf := r.URL.Query().Get("tf")
	if exchangeID == "" || symbol == "" || tf == "" {
		writeError(w, CodeBadRequest, "exchange, symbol and tf are required")
		return
	}

	limit := parseLimit(r)
	cursor := parseCursor(r)

	candles, err := a.Cache.CandlesBefore(r.Context(), exchangeID, symbol, tf, cursor, int64(limit))
	if err != nil {
		writeError(w, CodeInternal, "failed to read candles")
		return
	}

	out := make([]gateway.PublicCandle, 0, len(candles))
	for _, c := range candles {
		out = append(out, gateway.TransformCandle(c))
	}

	var next *string
	hasMore := len(candles) == limit
	if hasMore {
		cursorVal := strconv.FormatInt(candles[len(candles)-1].Timestamp, 10)
		next = &cursorVal
	}
	writeSuccess(w, out, len(out), next, hasMore)
}

// HandleExchanges serves GET /api/v1/exchanges
func (a *API) HandleExchanges(w http.ResponseWriter, r *http.Request) {
	exchanges := a.Descriptors.Active()
	writeSuccess(w, exchanges, len(exchanges), nil, false)
}

// HandleSymbols serves GET /api/v1/symbols?exchange=
func (a *API) HandleSymbols(w http.ResponseWriter, r *http.Request) {
	exchangeID := r.URL.Query().Get("exchange")
	if exchangeID == "" {
		writeError(w, CodeBadRequest, "exchange is required")
		return
	}
	if _, ok := a.Descriptors.ByID(exchangeID); !ok {
		writeError(w, CodeNotFound, "unknown exchange")
		return
	}
	symbols := a.Descriptors.ClassifyTier1(exchangeID)
	writeSuccess(w, symbols, len(symbols), nil, false)
}

// HandleAlerts serves GET /api/v1/alerts?exchange=&symbol=&tf=&cursor=&limit=
// returning raw persisted alert records (internal shape; this endpoint is
// an operator/debugging read, distinct from the public-facing /signals
// endpoint below which runs every record through the whitelist
// transformer).
func (a *API) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	records, limit, ok := a.queryAlerts(w, r)
	if !ok {
		return
	}
	var next *string
	hasMore := len(records) == limit
	if hasMore {
		cursorVal := strconv.FormatInt(records[len(records)-1].TriggeredAt, 10)
		next = &cursorVal
	}
	writeSuccess(w, records, len(records), next, hasMore)
}

// HandleSignals serves GET /api/v1/signals?exchange=&symbol=&tf=&cursor=&limit=,
// the whitelisted public rendering of the same alert history HandleAlerts
// exposes internally.
func (a *API) HandleSignals(w http.ResponseWriter, r *http.Request) {
	exchangeID := r.URL.Query().Get("exchange")
	records, limit, ok := a.queryAlerts(w, r)
	if !ok {
		return
	}
	exchange, _ := a.Descriptors.ByID(exchangeID)

	out := make([]gateway.PublicSignal, 0, len(records))
	for _, rec := range records {
		out = append(out, gateway.TransformAlert(exchange.Name, rec))
	}

	var next *string
	hasMore := len(records) == limit
	if hasMore {
		cursorVal := strconv.FormatInt(records[len(records)-1].TriggeredAt, 10)
		next = &cursorVal
	}
	writeSuccess(w, out, len(out), next, hasMore)
}

func (a *API) queryAlerts(w http.ResponseWriter, r *http.Request) (records []model.AlertRecord, limit int, ok bool) {
	exchangeID := r.URL.Query().Get("exchange")
	symbol := r.URL.Query().Get("symbol")
	tf := r.URL.Query().Get("tf")
	if exchangeID == "" || symbol == "" || tf == "" {
		writeError(w, CodeBadRequest, "exchange, symbol and tf are required")
		return nil, 0, false
	}

	store, found := a.AlertStores[exchangeID]
	if !found {
		writeError(w, CodeNotFound, "unknown exchange")
		return nil, 0, false
	}

	limit = parseLimit(r)
	cursor := parseCursor(r)
	recs, err := store.RecentBefore(exchangeID, symbol, tf, cursor, limit)
	if err != nil {
		writeError(w, CodeInternal, "failed to read alerts")
		return nil, 0, false
	}
	return recs, limit, true
}
