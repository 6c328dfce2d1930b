package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ev-monitor/backend/internal/utils"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 256
)

// HubMessageType defines types of messages pushed to dashboard clients
type HubMessageType string

const (
	// HubMessageAlert carries an AlertEvent
	HubMessageAlert HubMessageType = "alert_event"
)

// HubMessage is a message pushed to websocket clients
type HubMessage struct {
	Type      HubMessageType `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Topic     string         `json:"topic"`
	Payload   interface{}    `json:"payload"`
}

// hubClient is one dashboard connection. An empty topic set receives
// every alert action.
type hubClient struct {
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	topics map[string]bool
}

func (c *hubClient) wants(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.topics) == 0 || c.topics[topic]
}

func (c *hubClient) setTopic(topic string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.topics[topic] = true
	} else {
		delete(c.topics, topic)
	}
}

// AlertHub streams alert events to connected dashboards over websocket
type AlertHub struct {
	logger     *utils.Logger
	upgrader   websocket.Upgrader
	clients    map[*hubClient]bool
	register   chan *hubClient
	unregister chan *hubClient
	broadcast  chan *HubMessage
	done       chan struct{}
	mu         sync.RWMutex
}

// NewAlertHub creates a hub. Run must be started before clients connect.
func NewAlertHub(logger *utils.Logger) *AlertHub {
	return &AlertHub{
		logger: logger.Named("alert_hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[*hubClient]bool),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		broadcast:  make(chan *HubMessage, sendBufferSize),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is canceled
func (h *AlertHub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Alert hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("Client registered", zap.String("remote", client.conn.RemoteAddr().String()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// OnAlertEvent queues event for every interested client. Events are
// dropped when the hub is saturated.
func (h *AlertHub) OnAlertEvent(event AlertEvent) {
	message := &HubMessage{
		Type:      HubMessageAlert,
		Timestamp: event.Timestamp,
		Topic:     string(event.Action),
		Payload:   event,
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Alert hub saturated, dropping event", zap.String("event_id", event.EventID))
	}
}

// ClientCount returns the number of connected clients
func (h *AlertHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and attaches the connection to the hub
func (h *AlertHub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &hubClient{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		topics: make(map[string]bool),
	}
	for _, topic := range r.URL.Query()["topic"] {
		client.setTopic(topic, true)
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return websocket.ErrCloseSent
	}

	go h.readPump(client)
	go h.writePump(client)
	return nil
}

func (h *AlertHub) deliver(message *HubMessage) {
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal hub message", zap.String("topic", message.Topic), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.wants(message.Topic) {
			continue
		}

		select {
		case client.send <- payload:
		default:
			delete(h.clients, client)
			close(client.send)
			h.logger.Warn("Client buffer full, connection closed")
		}
	}
}

// readPump handles subscribe and unsubscribe requests from the client
func (h *AlertHub) readPump(client *hubClient) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("Unexpected websocket close", zap.Error(err))
			}
			return
		}

		var request struct {
			Action string `json:"action"`
			Topic  string `json:"topic"`
		}
		if err := json.Unmarshal(message, &request); err != nil || request.Topic == "" {
			h.logger.Warn("Invalid client message", zap.ByteString("message", message))
			continue
		}

		switch request.Action {
		case "subscribe":
			client.setTopic(request.Topic, true)
		case "unsubscribe":
			client.setTopic(request.Topic, false)
		}
	}
}

// writePump writes queued messages and keeps the connection alive
func (h *AlertHub) writePump(client *hubClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
