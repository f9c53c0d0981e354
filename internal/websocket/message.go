package websocket

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	// Client to Server
	MessageTypePong MessageType = "PONG"

	// Both directions
	MessageTypePing MessageType = "PING"

	// Server to Client
	MessageTypeStateUpdate        MessageType = "STATE_UPDATE"
	MessageTypePlayerDisconnected MessageType = "PLAYER_DISCONNECTED"
	MessageTypePlayerReconnected  MessageType = "PLAYER_RECONNECTED"
	MessageTypeError              MessageType = "ERROR"
)

type Message struct {
	Type      MessageType     `json:"type"`
	RoomID    string          `json:"room_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

func NewMessage(msgType MessageType, roomID string, payload interface{}) (*Message, error) {
	msg := &Message{
		Type:      msgType,
		RoomID:    roomID,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload == nil {
		return msg, nil
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msg.Payload = payloadBytes
	return msg, nil
}

// Server to Client payloads

type PresencePayload struct {
	PlayerID string `json:"player_id"`
	Nickname string `json:"nickname"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// envelope is what travels on the bus. A state update carries one projection
// per player so each process can hand every local socket its own view
// without touching the store.
type envelope struct {
	Type    MessageType                `json:"type"`
	RoomID  string                     `json:"room_id"`
	Version int64                      `json:"version,omitempty"`
	Views   map[string]json.RawMessage `json:"views,omitempty"`
	Public  json.RawMessage            `json:"public,omitempty"`
	Payload json.RawMessage            `json:"payload,omitempty"`
}

// messageFor builds the socket message for playerID out of e.
func (e *envelope) messageFor(playerID string) *Message {
	msg := &Message{
		Type:      e.Type,
		RoomID:    e.RoomID,
		Payload:   e.Payload,
		Timestamp: time.Now().UnixMilli(),
	}
	if e.Type == MessageTypeStateUpdate {
		if view, ok := e.Views[playerID]; ok {
			msg.Payload = view
		} else {
			msg.Payload = e.Public
		}
	}
	return msg
}
