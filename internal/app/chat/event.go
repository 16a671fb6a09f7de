/*
Package chat contains the core logic of the chat engine: the Registry that
tracks who is online and fans out events, and the per-connection Client that
drives one session's lifecycle.

This file defines the wire types: the tagged ChatEvent union pushed to
clients and the tagged Intent union received from them. Events are immutable
once constructed and are never mutated after broadcast.
*/
package chat

import (
	"encoding/json"

	"relaychat/internal/app/user"
	"relaychat/internal/pkg/randx"
)

// EventType tags the active case of an outbound Event.
type EventType string

const (
	// EventConnectionAccepted carries the joining user's id and the roster of
	// everyone else currently online. Always the first event on a sink.
	EventConnectionAccepted EventType = "CONNECTION_ACCEPTED"

	// EventUserJoined announces a newly admitted user to everyone else.
	EventUserJoined EventType = "USER_JOINED"

	// EventUserLeft announces a removed user to the remaining sessions.
	EventUserLeft EventType = "USER_LEFT"

	// EventMessageReceived carries one broadcast chat message.
	EventMessageReceived EventType = "MESSAGE_RECEIVED"

	// EventError reports a failure to a single client. Never broadcast.
	EventError EventType = "ERROR"
)

// ErrorCode identifies the class of an EventError payload.
type ErrorCode string

const (
	// CodeUnspecified covers any internal failure during event processing.
	CodeUnspecified ErrorCode = "UNSPECIFIED"

	// CodeUsernameTaken reports a join rejected because of a username collision.
	CodeUsernameTaken ErrorCode = "USERNAME_TAKEN"
)

// Event is one outbound chat event. Exactly one payload case is active,
// selected by Type.
type Event struct {
	// ID is a server-generated identifier for this event instance.
	ID string `json:"id"`

	// Type selects the active payload case.
	Type EventType `json:"type"`

	// Payload holds the serialized case data.
	Payload json.RawMessage `json:"payload"`
}

// ConnectionAcceptedPayload is the first event delivered to a joining client.
type ConnectionAcceptedPayload struct {
	UserID      string      `json:"userId"`
	ActiveUsers []user.User `json:"activeUsers"`
}

// UserJoinedPayload announces an admitted user.
type UserJoinedPayload struct {
	User user.User `json:"user"`
}

// UserLeftPayload announces a removed user.
type UserLeftPayload struct {
	UserID string `json:"userId"`
}

// MessageReceivedPayload carries one chat message and its send time in
// milliseconds since the Unix epoch.
type MessageReceivedPayload struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorEventPayload reports a failure to the receiving client only.
type ErrorEventPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// NewEvent constructs an Event of the given type around the payload.
func NewEvent(eventType EventType, payload any) (Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:      randx.NewID(),
		Type:    eventType,
		Payload: payloadBytes,
	}, nil
}

// IntentType tags the active case of an inbound Intent.
type IntentType string

const (
	// IntentJoin requests admission with a username.
	IntentJoin IntentType = "JOIN"

	// IntentSendMessage requests a broadcast of a text message.
	IntentSendMessage IntentType = "SEND_MESSAGE"

	// IntentLeave requests a clean shutdown of the session.
	IntentLeave IntentType = "LEAVE"
)

// Intent is one inbound client frame on the bidirectional stream.
type Intent struct {
	Type    IntentType      `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload carries the requested username for IntentJoin.
type JoinPayload struct {
	Username string `json:"username"`
}

// SendMessagePayload carries the message text for IntentSendMessage.
type SendMessagePayload struct {
	Content string `json:"content"`
}
