// Package hub owns the websocket channels: one Client per connection with a
// buffered send queue, a read pump and a write pump, plus session-scoped
// fan-out. The hub mirrors session membership purely for delivery; the
// registry stays the authority on who is in a session.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Abhishekhack2909/StreamVerse/internal/config"
	"github.com/Abhishekhack2909/StreamVerse/internal/domain"
	pkglog "github.com/Abhishekhack2909/StreamVerse/pkg/log"
)

// DisconnectHandler is called when a client's transport closes, before the
// client is unregistered. This is the sole cancellation primitive: close of
// the channel must translate into a registry leave.
type DisconnectHandler func(*Client)

// Client represents a connected websocket channel.
type Client struct {
	ID                string
	Hub               *Hub
	Conn              *websocket.Conn
	Send              chan []byte
	State             *domain.ConnState
	disconnectHandler DisconnectHandler
}

// NewClient creates a client for a freshly upgraded connection.
func NewClient(id string, h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:    id,
		Hub:   h,
		Conn:  conn,
		Send:  make(chan []byte, 256),
		State: domain.NewConnState(id),
	}
}

// SetDisconnectHandler sets the handler to be called on disconnect.
func (c *Client) SetDisconnectHandler(handler DisconnectHandler) {
	c.disconnectHandler = handler
}

// Hub manages all websocket connections.
type Hub struct {
	clients    map[string]*Client
	sessions   map[string]map[string]*Client // sessionID -> channelID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *sessionMessage
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

type sessionMessage struct {
	sessionID string
	message   []byte
	exclude   string // channel id to skip
	closing   bool   // drop the delivery set after fan-out
}

// NewHub creates a new Hub.
func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		sessions:   make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *sessionMessage, 256),
		config:     cfg,
	}
}

// Run starts the hub's main loop. Fan-out messages are consumed here one at
// a time, so enqueue order is delivery order for every receiver.
func (h *Hub) Run() {
	l := pkglog.L()
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l.Info().Str(pkglog.FieldChannelID, client.ID).Msg("channel registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for sessionID, members := range h.sessions {
					delete(members, client.ID)
					if len(members) == 0 {
						delete(h.sessions, sessionID)
					}
				}
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			l.Info().Str(pkglog.FieldChannelID, client.ID).Msg("channel unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()
			if members, ok := h.sessions[msg.sessionID]; ok {
				for channelID, client := range members {
					if channelID == msg.exclude {
						continue
					}
					select {
					case client.Send <- msg.message:
					default:
						// Send buffer full: the receiver is too slow to
						// keep, drop the channel.
						go h.removeClient(client)
					}
				}
				if msg.closing {
					delete(h.sessions, msg.sessionID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// JoinSession adds a client to a session's delivery set.
func (h *Hub) JoinSession(client *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[sessionID]; !ok {
		h.sessions[sessionID] = make(map[string]*Client)
	}
	h.sessions[sessionID][client.ID] = client
}

// LeaveSession removes a client from a session's delivery set.
func (h *Hub) LeaveSession(client *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.sessions[sessionID]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.sessions, sessionID)
		}
	}
}

// BroadcastToSession queues a message for every member of a session except
// the excluded channel.
func (h *Hub) BroadcastToSession(sessionID string, message interface{}, exclude string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.broadcast <- &sessionMessage{
		sessionID: sessionID,
		message:   data,
		exclude:   exclude,
	}
	return nil
}

// CloseSession delivers a final message to every member except the excluded
// channel and then drops the session's delivery set. Because the close rides
// the fan-out queue, members see every earlier broadcast before delivery
// stops.
func (h *Hub) CloseSession(sessionID string, message interface{}, exclude string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.broadcast <- &sessionMessage{
		sessionID: sessionID,
		message:   data,
		exclude:   exclude,
		closing:   true,
	}
	return nil
}

// SendToChannel sends a message to one channel. Unknown channels are
// silently ignored; the peer may have just disconnected.
func (h *Hub) SendToChannel(channelID string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	client, ok := h.clients[channelID]
	h.mu.RUnlock()

	if !ok {
		return nil
	}

	select {
	case client.Send <- data:
	default:
		go h.removeClient(client)
	}
	return nil
}

func (h *Hub) removeClient(client *Client) {
	h.unregister <- client
}

// ReadPump pumps messages from the websocket connection to the handler.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		if c.disconnectHandler != nil {
			c.disconnectHandler(c)
		}
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := pkglog.L()
				l.Error().Err(err).Str(pkglog.FieldChannelID, c.ID).Msg("websocket error")
			}
			break
		}

		if c.State != nil {
			c.State.Touch()
		}

		handler(c, message)
	}
}

// WritePump pumps messages from the send queue to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues a message for this client. A full buffer drops the
// message rather than blocking the caller.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
	default:
	}
	return nil
}
