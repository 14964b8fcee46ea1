package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/auth"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

// WebSocket frame types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// wsSendBufferSize is how many frames may queue for one slow client
// before events for it are dropped.
const wsSendBufferSize = 256

// eventChannels are the channels clients may subscribe to.
var eventChannels = map[string]bool{
	vacuum.ChannelRequest:  true,
	vacuum.ChannelDispatch: true,
	vacuum.ChannelState:    true,
}

// WSMessage is the JSON envelope of every frame in either direction.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels and, optionally, masters. With no
// masters listed a client receives events for every master its token may
// see.
type WSSubscribePayload struct {
	Channels []string          `json:"channels"`
	Masters  []vacuum.MasterID `json:"masters,omitempty"`
}

// Hub fans vacuum events out to WebSocket clients. It implements
// vacuum.Broadcaster.
//
// Events are filtered per client by channel, by the masters the client
// subscribed to and by the master scope of the client's token.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}

	dropped atomic.Uint64
}

// WSClient is one WebSocket connection.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	subject string
	scope   *auth.MasterScope

	// send is closed by shutdown under mu, so enqueue never writes to a
	// closed channel.
	mu       sync.RWMutex
	send     chan []byte
	closed   bool
	channels map[string]bool
	masters  map[vacuum.MasterID]bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub. Run must be started for clients to be closed on
// shutdown.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

func newWSClient(hub *Hub, conn *websocket.Conn, claims *auth.CustomClaims) *WSClient {
	c := &WSClient{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]bool),
	}
	if claims != nil {
		c.subject = claims.Subject
		c.scope = claims.Scope()
	}
	return c
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Register adds a client.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subject", c.subject, "clients", n)
}

// Unregister removes a client and closes its send queue. Safe to call
// more than once.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.shutdown()
	h.logger.Debug("websocket client disconnected", "subject", c.subject, "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many event frames were discarded because a
// client's send queue was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Broadcast sends payload on channel to every client that wants it.
// Payloads carrying a "master_id" are only delivered to clients whose
// subscription and token scope include that master.
func (h *Hub) Broadcast(channel string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal websocket event", "channel", channel, "error", err)
		return
	}
	var head struct {
		MasterID vacuum.MasterID `json:"master_id"`
	}
	_ = json.Unmarshal(body, &head) //nolint:errcheck // payloads without master_id reach every subscriber

	frame, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   body,
	})
	if err != nil {
		h.logger.Error("failed to marshal websocket frame", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.wants(channel, head.MasterID) {
			continue
		}
		if !c.enqueue(frame) {
			h.dropped.Add(1)
			h.logger.Debug("websocket event dropped", "channel", channel, "subject", c.subject)
		}
	}
}

// handleWebSocket upgrades the connection. With authentication enabled
// the client presents a single-use ticket from POST /auth/ws-ticket; the
// ticket's claims decide which masters' events it may see.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims := anonymousClaims
	if s.authEnabled() {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		var ok bool
		if claims, ok = s.tickets.redeem(ticket); !ok {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(s.hub, conn, claims)
	s.hub.Register(c)
	go c.writeLoop(s.wsCfg)
	go c.readLoop(s.wsCfg)
}

func (c *WSClient) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // the first read reports a broken conn
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			}
			return
		}
		// Panels that ignore protocol pings stay alive by sending frames.
		extend() //nolint:errcheck // the next read reports a broken conn
		c.handleMessage(data)
	}
}

func (c *WSClient) writeLoop(cfg config.WebSocketConfig) {
	ping := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // the write reports it
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if write(websocket.TextMessage, frame) != nil {
				return
			}
		case <-ping.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, errorBody("invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.subscribe(msg)
	case WSTypeUnsubscribe:
		c.unsubscribe(msg)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.reply(msg.ID, WSTypeError, errorBody("unknown message type: "+msg.Type))
	}
}

// subscribe adds channels and replaces the master filter. The request is
// all-or-nothing: an unknown channel or a master outside the token scope
// rejects it without changing the subscription.
func (c *WSClient) subscribe(msg WSMessage) {
	var req WSSubscribePayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil || len(req.Channels) == 0 {
		c.reply(msg.ID, WSTypeError, errorBody("subscribe needs a channels list"))
		return
	}
	for _, ch := range req.Channels {
		if !eventChannels[ch] {
			c.reply(msg.ID, WSTypeError, errorBody("unknown channel: "+ch))
			return
		}
	}
	for _, m := range req.Masters {
		if !c.scope.CanControl(string(m)) {
			c.reply(msg.ID, WSTypeError, errorBody(fmt.Sprintf("master %s is outside the token scope", m)))
			return
		}
	}

	c.mu.Lock()
	for _, ch := range req.Channels {
		c.channels[ch] = true
	}
	if len(req.Masters) > 0 {
		c.masters = make(map[vacuum.MasterID]bool, len(req.Masters))
		for _, m := range req.Masters {
			c.masters[m] = true
		}
	}
	c.mu.Unlock()

	c.hub.logger.Info("websocket client subscribed",
		"subject", c.subject,
		"channels", req.Channels,
		"masters", req.Masters,
	)
	c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": req.Channels, "masters": req.Masters})
}

func (c *WSClient) unsubscribe(msg WSMessage) {
	var req WSSubscribePayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		c.reply(msg.ID, WSTypeError, errorBody("invalid unsubscribe payload"))
		return
	}

	c.mu.Lock()
	for _, ch := range req.Channels {
		delete(c.channels, ch)
	}
	c.mu.Unlock()

	c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": req.Channels})
}

// wants reports whether an event on channel about master should reach c.
// An empty master matches every client subscribed to the channel.
func (c *WSClient) wants(channel string, master vacuum.MasterID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.channels[channel] {
		return false
	}
	if master == "" {
		return true
	}
	if c.masters != nil && !c.masters[master] {
		return false
	}
	return c.scope.CanControl(string(master))
}

// enqueue queues a frame without blocking. It returns false when the
// queue is full; frames for a closed client are discarded silently.
func (c *WSClient) enqueue(frame []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *WSClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) reply(id, frameType string, payload any) {
	msg := WSMessage{
		Type:      frameType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return
		}
		msg.Payload = body
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func errorBody(message string) map[string]string {
	return map[string]string{"message": message}
}
