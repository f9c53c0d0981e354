package testutil

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dom/werewolf/internal/domain"
	"github.com/dom/werewolf/internal/websocket"
	gorillaWS "github.com/gorilla/websocket"
)

// WSClient is a test WebSocket client
type WSClient struct {
	t        *testing.T
	conn     *gorillaWS.Conn
	messages chan *websocket.Message
	errors   chan error
	done     chan struct{}
	mu       sync.Mutex
}

// NewWSClient creates a new WebSocket test client
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()

	dialer := *gorillaWS.DefaultDialer
	dialer.HandshakeTimeout = 5 * time.Second

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect to websocket: %v", err)
	}

	client := &WSClient{
		t:        t,
		conn:     conn,
		messages: make(chan *websocket.Message, 100),
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
	}

	go client.readPump()

	t.Cleanup(func() {
		client.Close()
	})

	return client
}

// readPump reads messages from the WebSocket connection
func (c *WSClient) readPump() {
	defer close(c.messages)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			case c.errors <- err:
			default:
			}
			return
		}

		var msg websocket.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			select {
			case c.errors <- err:
			default:
			}
			continue
		}

		select {
		case c.messages <- &msg:
		case <-c.done:
			return
		}
	}
}

// Close sends a close frame and closes the connection
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
		c.conn.WriteMessage(gorillaWS.CloseMessage, gorillaWS.FormatCloseMessage(gorillaWS.CloseNormalClosure, ""))
		c.conn.Close()
	}
}

// Send writes a message of the given type
func (c *WSClient) Send(msgType websocket.MessageType, roomID string) {
	c.t.Helper()

	data, err := json.Marshal(websocket.Message{
		Type:      msgType,
		RoomID:    roomID,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		c.t.Fatalf("failed to marshal message: %v", err)
	}

	c.mu.Lock()
	err = c.conn.WriteMessage(gorillaWS.TextMessage, data)
	c.mu.Unlock()

	if err != nil {
		c.t.Fatalf("failed to send %s: %v", msgType, err)
	}
}

// Pong answers a heartbeat
func (c *WSClient) Pong(roomID string) {
	c.Send(websocket.MessageTypePong, roomID)
}

// ExpectMessage waits for a message of the specified type, skipping others
func (c *WSClient) ExpectMessage(msgType websocket.MessageType, timeout time.Duration) *websocket.Message {
	c.t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case msg := <-c.messages:
			if msg == nil {
				c.t.Fatalf("connection closed while waiting for %s", msgType)
			}
			if msg.Type == msgType {
				return msg
			}
		case err := <-c.errors:
			c.t.Fatalf("error while waiting for %s: %v", msgType, err)
		case <-deadline:
			c.t.Fatalf("timeout waiting for message type %s", msgType)
		}
	}
}

// ExpectState waits for a STATE_UPDATE accepted by match and decodes it. A
// nil match accepts the next one.
func (c *WSClient) ExpectState(timeout time.Duration, match func(*domain.GameView) bool) *domain.GameView {
	c.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timeout waiting for matching state update")
		}
		msg := c.ExpectMessage(websocket.MessageTypeStateUpdate, remaining)

		var view domain.GameView
		if err := json.Unmarshal(msg.Payload, &view); err != nil {
			c.t.Fatalf("failed to decode state update: %v", err)
		}
		if match == nil || match(&view) {
			return &view
		}
	}
}

// ExpectPresence waits for a presence event about playerID
func (c *WSClient) ExpectPresence(msgType websocket.MessageType, playerID string, timeout time.Duration) *websocket.PresencePayload {
	c.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timeout waiting for %s of %s", msgType, playerID)
		}
		msg := c.ExpectMessage(msgType, remaining)

		var payload websocket.PresencePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.t.Fatalf("failed to decode presence payload: %v", err)
		}
		if payload.PlayerID == playerID {
			return &payload
		}
	}
}

// ExpectClose waits for the server to close the connection and returns the
// close code.
func (c *WSClient) ExpectClose(timeout time.Duration) int {
	c.t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case msg := <-c.messages:
			if msg != nil {
				continue
			}
			select {
			case err := <-c.errors:
				if ce, ok := err.(*gorillaWS.CloseError); ok {
					return ce.Code
				}
				c.t.Fatalf("connection ended without close frame: %v", err)
			case <-time.After(time.Second):
				c.t.Fatal("connection ended without error")
			}
		case err := <-c.errors:
			if ce, ok := err.(*gorillaWS.CloseError); ok {
				return ce.Code
			}
			c.t.Fatalf("connection ended without close frame: %v", err)
		case <-deadline:
			c.t.Fatal("timeout waiting for close")
		}
	}
}

// DrainMessages drains all pending messages until the channel settles
func (c *WSClient) DrainMessages() {
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case msg := <-c.messages:
			if msg == nil {
				return
			}
			deadline = time.After(50 * time.Millisecond)
		case <-deadline:
			return
		case <-c.done:
			return
		}
	}
}
