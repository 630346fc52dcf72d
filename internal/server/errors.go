// Package server defines the error taxonomy reported to connections as
// unicast error events.
package server

import "errors"

// ErrorKind classifies a failure reported back to the originating connection.
type ErrorKind string

// Error kinds sent in the "kind" field of an error event.
const (
	KindInvalidUsername ErrorKind = "InvalidUsername"
	KindAlreadyJoined   ErrorKind = "AlreadyJoined"
	KindMustJoinFirst   ErrorKind = "MustJoinFirst"
	KindRateLimited     ErrorKind = "RateLimited"
	KindInvalidMessage  ErrorKind = "InvalidMessage"
	KindUnknownEvent    ErrorKind = "UnknownEvent"
	KindInternalError   ErrorKind = "InternalError"
)

// HubError is a recoverable failure local to a single connection. Message is
// safe to show to the client.
type HubError struct {
	Kind    ErrorKind
	Message string
}

func (e *HubError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Payload converts the error into the wire representation of an error event.
func (e *HubError) Payload() ErrorPayload {
	return ErrorPayload{Kind: e.Kind, Message: e.Message}
}

var (
	ErrInvalidUsername = &HubError{Kind: KindInvalidUsername, Message: "Invalid username"}
	ErrAlreadyJoined   = &HubError{Kind: KindAlreadyJoined, Message: "Already joined the chat"}
	ErrMustJoinFirst   = &HubError{Kind: KindMustJoinFirst, Message: "Please join the chat first"}
	ErrRateLimited     = &HubError{Kind: KindRateLimited, Message: "Too many messages. Please slow down."}
	ErrInvalidMessage  = &HubError{Kind: KindInvalidMessage, Message: "Invalid message content"}
	ErrUnknownEvent    = &HubError{Kind: KindUnknownEvent, Message: "Unknown event"}

	errJoinFailed     = &HubError{Kind: KindInternalError, Message: "Failed to join chat"}
	errSendFailed     = &HubError{Kind: KindInternalError, Message: "Failed to send message"}
	errInternalFailed = &HubError{Kind: KindInternalError, Message: "Internal server error"}
)

// Transport level errors returned by Conn implementations.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// asHubError extracts a *HubError from err, falling back to the given
// internal error so implementation details never reach the client.
func asHubError(err error, fallback *HubError) *HubError {
	var ee *HubError
	if errors.As(err, &ee) {
		return ee
	}
	return fallback
}
