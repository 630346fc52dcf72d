// Package server defines shared event names, payload types and utility helpers
// that are reused across client and hub logic.
package server

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType names an inbound or outbound event.
type EventType string

// Inbound events, sent by a connection to the hub.
const (
	EventJoin        EventType = "join"
	EventSend        EventType = "send"
	EventTypingStart EventType = "typing-start"
	EventTypingStop  EventType = "typing-stop"
	EventDisconnect  EventType = "disconnect"
)

// Outbound events, sent by the hub to one or more connections.
const (
	EventHistory          EventType = "history"
	EventPresenceJoined   EventType = "presence-joined"
	EventPresenceLeft     EventType = "presence-left"
	EventParticipantCount EventType = "participantCount"
	EventMessage          EventType = "message"
	EventPresenceTyping   EventType = "presence-typing"
	EventError            EventType = "error"
)

// Envelope is the JSON frame exchanged over the wire.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound event before encoding.
type Event struct {
	Type    EventType
	Payload any
}

// MarshalJSON encodes the event as an Envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	out := struct {
		Event EventType `json:"event"`
		Data  any       `json:"data,omitempty"`
	}{Event: e.Type, Data: e.Payload}
	return json.Marshal(out)
}

// Inbound is an event received from a connection.
type Inbound struct {
	ConnID string
	Type   EventType
	Data   json.RawMessage
}

// Session is the server side record of one joined participant.
type Session struct {
	ConnectionID string    `json:"connectionId"`
	DisplayName  string    `json:"displayName"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Message is one accepted chat message. Messages are never mutated once stored.
type Message struct {
	ID                 string    `json:"id"`
	Content            string    `json:"content"`
	AuthorName         string    `json:"authorName"`
	AuthorConnectionID string    `json:"authorConnectionId"`
	Timestamp          time.Time `json:"timestamp"`
}

// JoinPayload is the data of a join event.
type JoinPayload struct {
	Username string `json:"username"`
}

// SendPayload is the data of a send event.
type SendPayload struct {
	Content string `json:"content"`
}

// PresencePayload announces a participant joining or leaving.
type PresencePayload struct {
	DisplayName string    `json:"displayName"`
	Timestamp   time.Time `json:"timestamp"`
}

// TypingPayload relays a typing indicator.
type TypingPayload struct {
	DisplayName string `json:"displayName"`
	IsTyping    bool   `json:"isTyping"`
}

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
