/*
Package chat contains the core logic of the chat engine.

This file defines the Client, the per-connection session protocol. A Client
owns the connection's outbound event sink and drives the lifecycle
Unjoined -> Joined -> Terminated by consuming inbound intents, using the
Registry to admit, broadcast, and evict. The transport pumps (ReadPump and
WritePump) live here as well, following the gorilla/websocket pairing.
*/
package chat

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/randx"
)

const (
	// writeWait is the timeout for a single write to the WebSocket connection.
	writeWait = 10 * time.Second

	// pongWait is the maximum time the server waits for a Pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod is the heartbeat interval; it must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the read limit (in bytes) for inbound frames.
	maxMessageSize = 8192
)

// State is the session protocol state. Transitions are driven exclusively by
// the connection's read loop, so State needs no locking of its own.
type State int

const (
	// StateUnjoined is the initial state: connected, no identity yet.
	StateUnjoined State = iota

	// StateJoined means admission succeeded and the sink is bound.
	StateJoined

	// StateTerminated is absorbing: no further transitions, no further
	// inbound processing.
	StateTerminated
)

// Client represents one live connection and its session protocol instance.
//
// All state-machine methods run on the connection's read goroutine. The
// events channel is the session's sink: created here, bound into the Registry
// on successful admission, and consumed solely by WritePump.
type Client struct {
	registry *Registry
	conn     *websocket.Conn
	events   chan Event
	state    State
	session  *Session
	logger   zerolog.Logger
}

// NewClient constructs a Client for an established connection. sinkBuffer
// sets the outbound event queue capacity; values below one fall back to
// DefaultSinkBuffer.
func NewClient(registry *Registry, conn *websocket.Conn, sinkBuffer int) *Client {
	if sinkBuffer < 1 {
		sinkBuffer = DefaultSinkBuffer
	}

	connID, err := randx.ConnID()
	if err != nil {
		connID = "unknown"
	}

	clientLogger := logx.Logger().With().
		Str("component", "Client").
		Str("conn_id", connID).
		Logger()

	return &Client{
		registry: registry,
		conn:     conn,
		events:   make(chan Event, sinkBuffer),
		state:    StateUnjoined,
		logger:   clientLogger,
	}
}

// Events exposes the sink for transports and tests that consume events
// without running WritePump.
func (c *Client) Events() <-chan Event {
	return c.events
}

// HandleIntent processes one raw inbound frame and reports whether the read
// loop should continue. Any panic while processing is caught, reported to the
// client as an UNSPECIFIED error, and converted into the cleanup path.
func (c *Client) HandleIntent(raw []byte) (cont bool) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error().
				Interface("panic", rec).
				Msg("Panic while processing inbound intent.")
			c.sendError(CodeUnspecified, "internal error while processing intent")
			c.Terminate()
			cont = false
		}
	}()

	if c.state == StateTerminated {
		return false
	}

	var intent Intent
	if err := json.Unmarshal(raw, &intent); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent an invalid intent frame.")
		c.sendError(CodeUnspecified, "invalid intent frame")
		c.Terminate()
		return false
	}

	switch intent.Type {
	case IntentJoin:
		return c.handleJoin(intent.Payload)

	case IntentSendMessage:
		return c.handleSendMessage(intent.Payload)

	case IntentLeave:
		c.logger.Info().Msg("Client left the chat.")
		c.Terminate()
		return false

	default:
		c.logger.Warn().Str("intent_type", string(intent.Type)).Msg("Client sent an unsupported intent type.")
		c.sendError(CodeUnspecified, "unsupported intent type")
		c.Terminate()
		return false
	}
}

// handleJoin runs the admission handshake. On a username collision the error
// is emitted to this client only and the session terminates: a second join
// attempt is not permitted on the same connection.
func (c *Client) handleJoin(payload json.RawMessage) bool {
	if c.state != StateUnjoined {
		c.sendError(CodeUnspecified, "join has already been processed on this connection")
		c.Terminate()
		return false
	}

	var join JoinPayload
	if err := json.Unmarshal(payload, &join); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent an invalid JOIN payload.")
		c.sendError(CodeUnspecified, "invalid join payload")
		c.Terminate()
		return false
	}

	username := strings.TrimSpace(join.Username)
	if username == "" {
		c.sendError(CodeUnspecified, "username is required")
		c.Terminate()
		return false
	}

	session, admitErr := c.registry.Admit(username)
	if admitErr != nil {
		code := CodeUnspecified
		if admitErr.Code == errs.ErrUsernameTaken {
			code = CodeUsernameTaken
		}
		c.sendError(code, admitErr.Message)
		c.Terminate()
		return false
	}

	c.session = session

	// Binding also emits CONNECTION_ACCEPTED to this sink and broadcasts
	// USER_JOINED to everyone else, atomically with respect to other
	// broadcasts.
	c.registry.Bind(session.ID, c.events)
	c.state = StateJoined

	c.logger.Info().
		Str("session_id", session.ID).
		Str("user_id", session.User.ID).
		Str("username", session.User.Username).
		Msg("Client joined.")

	return true
}

// handleSendMessage broadcasts a chat message from a joined client. The
// sender is not excluded: its own echo arrives on the same stream as every
// other event.
func (c *Client) handleSendMessage(payload json.RawMessage) bool {
	if c.state != StateJoined {
		c.sendError(CodeUnspecified, "join is required before sending messages")
		return true
	}

	var send SendMessagePayload
	if err := json.Unmarshal(payload, &send); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent an invalid SEND_MESSAGE payload.")
		c.sendError(CodeUnspecified, "invalid message payload")
		c.Terminate()
		return false
	}

	event, err := NewEvent(EventMessageReceived, MessageReceivedPayload{
		UserID:    c.session.User.ID,
		Username:  c.session.User.Username,
		Content:   send.Content,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to build MESSAGE_RECEIVED event.")
		c.sendError(CodeUnspecified, "failed to process message")
		c.Terminate()
		return false
	}

	c.registry.Broadcast(event, "")
	return true
}

// Terminate enters the absorbing terminal state and runs session cleanup
// exactly once. A joined session is removed from the Registry (which also
// closes the sink); a sink that was never bound is closed locally so the
// write pump can exit.
func (c *Client) Terminate() {
	if c.state == StateTerminated {
		return
	}
	c.state = StateTerminated

	if c.session != nil {
		c.registry.Remove(c.session.ID)
		return
	}
	close(c.events)
}

// sendError emits an ERROR event to this client only. After the sink is
// bound it is routed through the Registry, which tolerates a session that a
// concurrent removal has already torn down.
func (c *Client) sendError(code ErrorCode, message string) {
	event, err := NewEvent(EventError, ErrorEventPayload{Code: code, Message: message})
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to build ERROR event.")
		return
	}

	if c.state == StateJoined && c.session != nil {
		c.registry.Deliver(c.session.ID, event)
		return
	}

	select {
	case c.events <- event:
	default:
		c.logger.Warn().Msg("Client sink full, dropping ERROR event.")
	}
}

// ReadPump reads inbound frames from the WebSocket connection and feeds them
// to the session protocol. It handles Pong heartbeats and performs cleanup
// when the connection closes for any reason.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			break
		}

		if !c.HandleIntent(raw) {
			break
		}
	}
}

// cleanupOnDisconnect runs the transportClosed path: session removal happens
// exactly once (Terminate and Registry.Remove are both idempotent) even when
// cancellation races an in-flight leave.
func (c *Client) cleanupOnDisconnect() {
	c.Terminate()

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// WritePump forwards events from the sink to the WebSocket connection and
// sends periodic Pings. It exits when the sink is closed (session removal) or
// a write fails, closing the connection either way.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case event, ok := <-c.events:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline")
				return
			}

			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug().Err(err).Msg("Error writing close frame")
				}
				return
			}

			eventBytes, err := json.Marshal(event)
			if err != nil {
				c.logger.Error().
					Str("event_id", event.ID).
					Err(err).
					Msg("Error marshaling event for client.")
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, eventBytes); err != nil {
				c.logger.Info().Err(err).Msg("Error writing event")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Info().Err(err).Msg("Error writing ping")
				return
			}
		}
	}
}
