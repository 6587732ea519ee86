package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ajkula/plistener/domain/model"
	"github.com/ajkula/plistener/domain/port/inbound"
	"github.com/ajkula/plistener/domain/port/outbound"
)

const writeTimeout = 5 * time.Second

// Handler streams recorded changes to websocket clients
type Handler struct {
	history     inbound.HistoryService
	instance    string
	logger      outbound.Logger
	upgrader    websocket.Upgrader
	connections map[*websocketConnection]struct{}
	mu          sync.Mutex
}

// one client; writes come from the publisher and the read loop, so they are serialized
type websocketConnection struct {
	conn           *websocket.Conn
	subscriptionID string
	writeMu        sync.Mutex
}

func NewHandler(history inbound.HistoryService, instance string, logger outbound.Logger) *Handler {
	return &Handler{
		history:  history,
		instance: instance,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the HTTP view binds to loopback by default
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		connections: make(map[*websocketConnection]struct{}),
	}
}

// HandleConnection upgrades the request and subscribes the client to the change feed
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Error upgrading to WebSocket", "error", err)
		return
	}

	wsConn := &websocketConnection{conn: conn}

	subID, err := h.history.Subscribe(func(event *model.ChangeEvent) error {
		return wsConn.writeJSON(map[string]any{
			"type":   "change",
			"change": event,
		})
	})
	if err != nil {
		h.logger.Error("Error subscribing to changes", "error", err)
		conn.Close()
		return
	}
	wsConn.subscriptionID = subID

	h.mu.Lock()
	h.connections[wsConn] = struct{}{}
	h.mu.Unlock()

	wsConn.writeJSON(map[string]string{
		"type":           "connected",
		"subscriptionId": subID,
		"instance":       h.instance,
	})

	h.logger.Debug("Change feed client connected", "subscriptionID", subID, "remote", r.RemoteAddr)

	go h.handleWebSocketSession(wsConn)
}

// handleWebSocketSession reads client messages until the connection closes
func (h *Handler) handleWebSocketSession(wsConn *websocketConnection) {
	defer h.release(wsConn)

	for {
		messageType, data, err := wsConn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket error", "error", err)
			}
			return
		}

		h.handleClientMessage(wsConn, messageType, data)
	}
}

func (h *Handler) handleClientMessage(wsConn *websocketConnection, messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		return
	}

	var message map[string]any
	if err := json.Unmarshal(data, &message); err != nil {
		h.logger.Debug("Ignoring malformed client message", "error", err)
		return
	}

	if msgType, _ := message["type"].(string); msgType == "ping" {
		wsConn.writeJSON(map[string]string{"type": "pong"})
	}
}

func (h *Handler) release(wsConn *websocketConnection) {
	h.mu.Lock()
	_, live := h.connections[wsConn]
	delete(h.connections, wsConn)
	h.mu.Unlock()

	if !live {
		return
	}

	if err := h.history.Unsubscribe(wsConn.subscriptionID); err != nil {
		h.logger.Warn("Error unsubscribing change feed client", "subscriptionID", wsConn.subscriptionID, "error", err)
	}
	wsConn.conn.Close()
}

func (c *websocketConnection) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// Count returns the number of connected clients
func (h *Handler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

// Cleanup closes every client connection
func (h *Handler) Cleanup() {
	h.mu.Lock()
	conns := make([]*websocketConnection, 0, len(h.connections))
	for c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Server shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		h.release(c)
	}

	h.logger.Info("WebSocket handler cleanup complete", "closed", len(conns))
}
