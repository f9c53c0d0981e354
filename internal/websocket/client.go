package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

// Client is one socket held by this process for (room, player).
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	roomID   string
	playerID string
	nickname string
	known    bool // playerID is a member of the room

	mu     sync.Mutex
	closed bool
	// stateVersion is the game version of the last STATE_UPDATE queued.
	stateVersion int64
	hasState     bool
}

func NewClient(hub *Hub, conn *websocket.Conn, roomID, playerID, nickname string, known bool) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		roomID:   roomID,
		playerID: playerID,
		nickname: nickname,
		known:    known,
	}
}

// ReadPump handles inbound heartbeat frames. A socket that stays silent for
// longer than the heartbeat interval plus timeout is dropped.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	timeout := c.hub.readTimeout()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(timeout))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read error",
					zap.String("room_id", c.roomID), zap.String("player_id", c.playerID), zap.Error(err))
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(timeout))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("INVALID_MESSAGE", "message is not valid JSON")
			continue
		}
		c.handleMessage(&msg)
	}
}

func (c *Client) WritePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		w, err := c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)
		if err := w.Close(); err != nil {
			return
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypePong:
		c.hub.touch(c)

	case MessageTypePing:
		c.hub.touch(c)
		pong, err := NewMessage(MessageTypePong, c.roomID, nil)
		if err == nil {
			c.Send(pong)
		}
	}
}

func (c *Client) sendError(code, message string) {
	msg, err := NewMessage(MessageTypeError, c.roomID, ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.Send(msg)
}

// Send queues msg for the socket. It is dropped if the socket is closed or
// its buffer is full.
func (c *Client) Send(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("failed to marshal message", zap.Error(err))
		return
	}
	c.trySend(data)
}

func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// trySendState queues a STATE_UPDATE unless a newer one was already queued.
// A skipped stale state counts as delivered.
func (c *Client) trySendState(version int64, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if c.hasState && version < c.stateVersion {
		return true
	}
	select {
	case c.send <- data:
		c.stateVersion = version
		c.hasState = true
		return true
	default:
		return false
	}
}

// Close stops the write pump, which then closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
