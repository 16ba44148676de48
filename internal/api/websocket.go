package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	zwbridge "github.com/nerrad567/gray-logic-zwave/internal/bridges/zwave"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/mqtt"
	zw "github.com/nerrad567/gray-logic-zwave/internal/zwave"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Event channels.
const (
	ChannelFrame = "zwave.frame"
	ChannelState = "zwave.state"
)

// wsSendBufferSize is the per-client outbound queue. Events for a client
// with a full queue are dropped and counted.
const wsSendBufferSize = 256

var knownChannels = map[string]bool{
	ChannelFrame: true,
	ChannelState: true,
}

// WSMessage is an outbound WebSocket message.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is an inbound WebSocket message.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe and unsubscribe.
// NodeIDs, when non-empty on subscribe, limits node-scoped events to
// those nodes; an empty list on a later subscribe keeps the filter.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	NodeIDs  []int    `json:"node_ids,omitempty"`
}

// FramePayload is the event payload on the zwave.frame channel.
type FramePayload struct {
	Direction    string `json:"direction"`
	DeviceID     string `json:"device_id,omitempty"`
	NodeID       byte   `json:"node_id"`
	CommandClass byte   `json:"command_class"`
	ClassName    string `json:"command_class_name"`
	Command      byte   `json:"command"`
	Hex          string `json:"hex"`
}

// Hub fans events out to connected WebSocket clients.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
	dropped atomic.Uint64
}

// WSClient is one WebSocket connection and its subscriptions.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]struct{}
	nodes         map[byte]struct{} // empty means every node
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

func newWSClient(hub *Hub, conn *websocket.Conn) *WSClient {
	return &WSClient{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
		nodes:         make(map[byte]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. Only the call that removes the client
// closes its send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// Broadcast sends an event to every client subscribed to channel,
// regardless of node filters.
func (h *Hub) Broadcast(channel string, payload any) {
	h.publish(channel, -1, payload)
}

// BroadcastNode sends a node-scoped event. Clients with a node filter
// only receive it when nodeID is in the filter.
func (h *Hub) BroadcastNode(channel string, nodeID byte, payload any) {
	h.publish(channel, int(nodeID), payload)
}

func (h *Hub) publish(channel string, nodeID int, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	// Client locks are never taken while holding the hub lock.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if client.wants(channel, nodeID) && !client.trySend(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// broadcastFrame is registered as a bridge frame observer. Received frames
// show the bytes as they arrived; sent frames show their encoding.
func (s *Server) broadcastFrame(direction string, msg zw.Message, deviceID string) {
	hex := msg.HexString()
	if direction == "rx" && len(msg.Raw) > 0 {
		hex = zw.FormatHex(msg.Raw)
	}
	s.hub.BroadcastNode(ChannelFrame, msg.NodeID, FramePayload{
		Direction:    direction,
		DeviceID:     deviceID,
		NodeID:       msg.NodeID,
		CommandClass: msg.CommandClass.Byte(),
		ClassName:    msg.CommandClass.String(),
		Command:      msg.Command,
		Hex:          hex,
	})
}

// subscribeStateUpdates relays the bridge's retained state publications
// to clients subscribed to zwave.state.
func (s *Server) subscribeStateUpdates() error {
	if s.mqtt == nil {
		return nil
	}

	topic := mqtt.Topics{}.BridgeState(zwbridge.Protocol, "+")
	s.logger.Info("subscribing to state updates for WebSocket relay", "topic", topic)
	return s.mqtt.Subscribe(topic, 1, s.relayState)
}

func (s *Server) relayState(topic string, payload []byte) error {
	var state map[string]any
	if err := json.Unmarshal(payload, &state); err != nil {
		s.logger.Warn("failed to parse state message for WebSocket broadcast", "topic", topic, "error", err)
		return nil
	}

	nodeID, err := zwbridge.ParseNodeAddress(path.Base(topic))
	if err != nil {
		s.hub.Broadcast(ChannelState, state)
		return nil
	}
	s.hub.BroadcastNode(ChannelState, nodeID, state)
	return nil
}

// handleWebSocket upgrades the connection. Channels listed in the optional
// comma-separated "channels" query parameter are subscribed immediately.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn)
	if channels := r.URL.Query().Get("channels"); channels != "" {
		client.subscribe(strings.Split(channels, ","), nil)
	}

	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// readPump reads client requests until the connection fails.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }
	//nolint:errcheck // Best-effort deadline on connection setup
	extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message counts as liveness.
		//nolint:errcheck // Best-effort deadline reset
		extend()
		c.handleMessage(data)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	write := func(kind int, data []byte) error {
		//nolint:errcheck // Best-effort deadline; write error caught by caller
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if err := json.Unmarshal(req.Payload, &sub); err != nil {
			c.sendError(req.ID, "invalid "+req.Type+" payload")
			return
		}
		if req.Type == WSTypeUnsubscribe {
			c.unsubscribe(sub.Channels)
			c.sendResponse(req.ID, WSTypeResponse, map[string]any{"unsubscribed": sub.Channels})
			return
		}
		if bad := invalidNodeIDs(sub.NodeIDs); len(bad) > 0 {
			c.sendError(req.ID, "node_ids out of range")
			return
		}
		accepted, rejected := c.subscribe(sub.Channels, sub.NodeIDs)
		c.hub.logger.Debug("websocket client subscribed", "channels", accepted, "nodes", sub.NodeIDs)
		resp := map[string]any{"subscribed": accepted}
		if len(rejected) > 0 {
			resp["rejected"] = rejected
		}
		c.sendResponse(req.ID, WSTypeResponse, resp)
	case WSTypePing:
		c.sendResponse(req.ID, WSTypePong, nil)
	default:
		c.sendError(req.ID, "unknown message type: "+req.Type)
	}
}

func invalidNodeIDs(ids []int) []int {
	var bad []int
	for _, id := range ids {
		if id < zwbridge.MinNodeID || id > zwbridge.MaxNodeID {
			bad = append(bad, id)
		}
	}
	return bad
}

// subscribe adds known channels and, when nodeIDs is non-empty, replaces
// the node filter. Unknown channel names are returned as rejected.
func (c *WSClient) subscribe(channels []string, nodeIDs []int) (accepted, rejected []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range channels {
		ch = strings.TrimSpace(ch)
		if !knownChannels[ch] {
			rejected = append(rejected, ch)
			continue
		}
		c.subscriptions[ch] = struct{}{}
		accepted = append(accepted, ch)
	}

	if len(nodeIDs) > 0 {
		c.nodes = make(map[byte]struct{}, len(nodeIDs))
		for _, id := range nodeIDs {
			c.nodes[byte(id)] = struct{}{}
		}
	}
	return accepted, rejected
}

func (c *WSClient) unsubscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		delete(c.subscriptions, ch)
	}
}

// wants reports whether an event on channel for nodeID (-1 for events not
// tied to a node) should go to this client.
func (c *WSClient) wants(channel string, nodeID int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.subscriptions[channel]; !ok {
		return false
	}
	if nodeID < 0 || len(c.nodes) == 0 {
		return true
	}
	_, ok := c.nodes[byte(nodeID)]
	return ok
}

// trySend queues data without blocking. It returns false when the queue is
// full or the client has already been unregistered.
func (c *WSClient) trySend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
