package gateway

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MaxConnectionsPerKey is the default per-API-key WebSocket connection
// cap. A key already at this many live sessions has any further upgrade
// rejected with closeCodeConnectionCap.
const MaxConnectionsPerKey = 5

// closeCodeConnectionCap is the WebSocket close code sent to a
// connection rejected for exceeding its key's connection cap. 4000-4999
// is the reserved private-use range.
const closeCodeConnectionCap = 4001

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server multiplexes the public /ws endpoint across every exchange's Hub
// and enforces the per-API-key connection cap across all of them.
type Server struct {
	Hubs map[string]*Hub // exchangeID -> Hub
	Log  *slog.Logger

	mu    sync.Mutex
	byKey map[string]int
}

// NewServer builds a Server fronting the given exchange hubs.
func NewServer(hubs map[string]*Hub, log *slog.Logger) *Server {
	return &Server{Hubs: hubs, Log: log, byKey: make(map[string]int)}
}

// ServeWS upgrades the request to a WebSocket and attaches the resulting
// session to the hub named by the "exchange" query parameter. The
// connecting client's API key is read from the "X-API-Key" header,
// falling back to the "api_key" query parameter.
func (srv *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	exchangeID := r.URL.Query().Get("exchange")
	hub, ok := srv.Hubs[exchangeID]
	if !ok {
		http.Error(w, "unknown exchange", http.StatusNotFound)
		return
	}

	apiKey := apiKeyFromRequest(r)
	if !srv.acquire(apiKey) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		msg := websocket.FormatCloseMessage(closeCodeConnectionCap, "connection cap exceeded")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}
	defer srv.release(apiKey)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if srv.Log != nil {
			srv.Log.Error("gateway: ws upgrade failed", "err", err)
		}
		return
	}

	session := NewSession(hub, conn, srv.Log)
	session.Serve()
}

func apiKeyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

func (srv *Server) acquire(apiKey string) bool {
	if apiKey == "" {
		return true // unauthenticated access is gated upstream, not here
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.byKey[apiKey] >= MaxConnectionsPerKey {
		return false
	}
	srv.byKey[apiKey]++
	return true
}

func (srv *Server) release(apiKey string) {
	if apiKey == "" {
		return
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.byKey[apiKey]--
	if srv.byKey[apiKey] <= 0 {
		delete(srv.byKey, apiKey)
	}
}
