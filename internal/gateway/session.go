package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// errInvalidChannel is returned when a subscribe request names a channel
// this boundary doesn't recognize (wrong kind, or an unsupported
// timeframe).
var errInvalidChannel = errors.New("gateway: invalid channel")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second // must be < pongWait
	maxMessageSize = 4096

	// Backpressure guards on a session's outbound buffer. The write
	// pump coalesces everything queued past these thresholds into a
	// single frame via NextWriter, so these measure queued bytes, not
	// frame count.
	softBufferLimit = 64 * 1024
	hardBufferLimit = 256 * 1024
)

// Session is one external client's WebSocket connection. A Session is
// registered with exactly one Hub and receives every broadcast matching
// its subscription set.
type Session struct {
	hub  *Hub
	conn *websocket.Conn
	log  *slog.Logger

	send chan json.RawMessage

	mu   sync.RWMutex
	subs map[string]struct{} // external channel names, wildcards allowed
}

// NewSession returns the Session driving conn on hub; it does not register
// the session. Call Serve to register it and start its pumps; Serve blocks
// until the connection closes.
func NewSession(hub *Hub, conn *websocket.Conn, log *slog.Logger) *Session {
	return &Session{
		hub:  hub,
		conn: conn,
		log:  log,
		send: make(chan json.RawMessage, 256),
		subs: make(map[string]struct{}),
	}
}

// Serve registers the session, runs its read and write pumps, and blocks
// until either pump exits. It always unregisters and closes the
// connection before returning.
func (s *Session) Serve() {
	s.hub.register(s)
	defer s.hub.unregister(s)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readPump()
	}()
	s.writePump()
	<-done
}

// deliver enqueues a pre-rendered payload for this session, applying the
// backpressure guards to an estimate of the queued bytes: the number of
// queued messages times the new payload's length (the actual sizes of the
// queued messages are not summed). Past softBufferLimit the new message is
// dropped and the connection stays open; past hardBufferLimit, or when the
// send queue is full, the session is terminated outright.
func (s *Session) deliver(payload json.RawMessage) {
	queued := len(s.send) * len(payload)
	if queued > hardBufferLimit || len(s.send) >= cap(s.send) {
		if s.log != nil {
			s.log.Warn("gateway: session send buffer exceeded hard limit, terminating")
		}
		s.dropped("terminate")
		s.terminate()
		return
	}
	if queued > softBufferLimit {
		s.dropped("skip")
		return // drop this message, connection stays open
	}
	select {
	case s.send <- payload:
	default:
		s.dropped("terminate")
		s.terminate()
	}
}

func (s *Session) dropped(reason string) {
	if s.hub.OnBackpressureDrop != nil {
		s.hub.OnBackpressureDrop(reason)
	}
}

func (s *Session) terminate() {
	s.conn.Close()
}

// matches reports whether this session is subscribed to a channel that
// matches the given event's (kind, symbol, tf).
func (s *Session) matches(kind, symbol, tf string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for sub := range s.subs {
		subKind, subSymbol, subTF, ok := parseExternalChannel(sub)
		if !ok || subKind != kind {
			continue
		}
		if matchesPart(subSymbol, symbol) && matchesPart(subTF, tf) {
			return true
		}
	}
	return false
}

func (s *Session) subscribe(channel string) error {
	kind, symbol, tf, ok := parseExternalChannel(channel)
	if !ok {
		return errInvalidChannel
	}
	s.mu.Lock()
	s.subs[channel] = struct{}{}
	s.mu.Unlock()
	s.replayLatest(kind, symbol, tf)
	return nil
}

// replayLatest sends the last known payload for every channel matching a
// session's new subscription, so a client doesn't wait for the next live
// event to see current state.
func (s *Session) replayLatest(kind, symbol, tf string) {
	s.hub.latestMu.RLock()
	defer s.hub.latestMu.RUnlock()
	for ch, payload := range s.hub.latest {
		chKind, chSymbol, chTF, ok := parseExternalChannel(ch)
		if !ok || chKind != kind {
			continue
		}
		if matchesPart(symbol, chSymbol) && matchesPart(tf, chTF) {
			select {
			case s.send <- payload:
			default:
			}
		}
	}
}

func (s *Session) unsubscribe(channel string) {
	s.mu.Lock()
	delete(s.subs, channel)
	s.mu.Unlock()
}

// writePump drains the send queue, coalescing everything queued at the
// moment of each tick into a single WebSocket text frame via NextWriter,
// and drives the 30s heartbeat ping.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.conn.Close()

	for {
		select {
		case payload, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := s.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(payload)
			sent := 1

			n := len(s.send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-s.send)
				sent++
			}
			if err := w.Close(); err != nil {
				return
			}
			if s.hub.OnMessageOut != nil {
				for i := 0; i < sent; i++ {
					s.hub.OnMessageOut()
				}
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump dispatches subscribe/unsubscribe control frames and enforces
// the heartbeat: the connection is terminated if a pong isn't seen within
// pongWait of the previous one.
func (s *Session) readPump() {
	defer s.conn.Close()
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleInbound(raw)
	}
}

// handleInbound dispatches one client frame: a batch subscribe or
// unsubscribe request against one or more external channel names. Each
// malformed channel in the batch gets its own per-channel error envelope;
// the session is never torn down for a bad channel name.
func (s *Session) handleInbound(raw []byte) {
	var m inboundMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		s.sendErrorEnvelope("", "malformed message")
		return
	}
	switch m.Action {
	case "subscribe":
		var accepted []string
		for _, ch := range m.Channels {
			if err := s.subscribe(ch); err != nil {
				s.sendErrorEnvelope(ch, "unknown channel: "+ch)
				continue
			}
			accepted = append(accepted, ch)
		}
		if len(accepted) > 0 {
			s.sendAck(msgTypeSubscribed, accepted)
		}
	case "unsubscribe":
		for _, ch := range m.Channels {
			s.unsubscribe(ch)
		}
		s.sendAck(msgTypeUnsubscribed, m.Channels)
	default:
		s.sendErrorEnvelope("", "unknown action: "+m.Action)
	}
}

func (s *Session) sendAck(msgType string, channels []string) {
	s.enqueueEnvelope(outboundMessage{Type: msgType, Channels: channels})
}

func (s *Session) sendErrorEnvelope(channel, msg string) {
	s.enqueueEnvelope(outboundMessage{Type: msgTypeError, Channel: channel, Code: errCodeBadRequest, Message: msg})
}

func (s *Session) enqueueEnvelope(m outboundMessage) {
	payload, err := json.Marshal(m)
	if err != nil {
		return
	}
	select {
	case s.send <- payload:
	default:
	}
}
