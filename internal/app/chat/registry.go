/*
Package chat contains the core logic of the chat engine.

This file defines the Registry, the authoritative roster: it owns the mapping
from sessions to users and to each session's outbound event sink, enforces
username uniqueness, and fans out events to every connected session. A single
mutex covers the roster and the sink table; every mutating operation already
touches the full roster, so one mutual-exclusion domain is both sufficient and
the simplest correct design.
*/
package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"relaychat/internal/app/user"
	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/randx"
)

// DefaultSinkBuffer is the event queue capacity per session unless configured
// otherwise. The queue absorbs bursts so fan-out never waits on client I/O.
const DefaultSinkBuffer = 256

// Session represents one live connection known to the Registry.
//
// The sink is nil between Admit and Bind (the join handshake window) and,
// once bound, stays bound for the session's whole lifetime. It is closed
// exactly once, by Remove or Shutdown.
type Session struct {
	// ID is the server-generated session identifier, distinct from the user id.
	ID string

	// User is the chat identity admitted for this session.
	User user.User

	sink chan Event
}

// Registry is the shared roster and broadcast authority.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	byUser   map[string]string
	order    []string

	logger zerolog.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	registryLogger := logx.Logger().With().Str("component", "Registry").Logger()

	return &Registry{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]string),
		logger:   registryLogger,
	}
}

// Admit atomically checks that no registered user holds username and, if it
// is free, creates the User and its Session. The check-then-insert runs under
// the registry lock, so two concurrent admits for the same username cannot
// both succeed. The returned session has no sink yet; see Bind.
func (r *Registry) Admit(username string) (*Session, *errs.CustomError) {
	if username == "" {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sessionID := range r.order {
		if r.sessions[sessionID].User.Username == username {
			r.logger.Info().
				Str("username", username).
				Msg("Join rejected: username already taken.")
			return nil, errs.NewError(errs.ErrUsernameTaken)
		}
	}

	session := &Session{
		ID: randx.NewID(),
		User: user.User{
			ID:       randx.NewID(),
			Username: username,
		},
	}

	r.sessions[session.ID] = session
	r.byUser[session.User.ID] = session.ID
	r.order = append(r.order, session.ID)

	r.logger.Info().
		Str("session_id", session.ID).
		Str("user_id", session.User.ID).
		Str("username", username).
		Int("total_users", len(r.sessions)).
		Msg("User admitted.")

	return session, nil
}

// Bind attaches the outbound sink to an admitted session and completes the
// join handshake under one lock acquisition: the CONNECTION_ACCEPTED event
// (with the roster excluding the joining user) is enqueued as the first event
// on the sink, then USER_JOINED is broadcast to every other session. Holding
// the lock across both steps guarantees no broadcast can be observed on the
// sink before CONNECTION_ACCEPTED.
//
// Bind must be called at most once per live session; if the session was
// removed while the handshake was in flight, the sink is closed and nothing
// is emitted.
func (r *Registry) Bind(sessionID string, sink chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		r.logger.Warn().
			Str("session_id", sessionID).
			Msg("Bind for unknown session. Closing orphan sink.")
		close(sink)
		return
	}

	session.sink = sink

	accepted, err := NewEvent(EventConnectionAccepted, ConnectionAcceptedPayload{
		UserID:      session.User.ID,
		ActiveUsers: r.activeUsersLocked(sessionID),
	})
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to build CONNECTION_ACCEPTED event.")
		return
	}
	r.deliverLocked(session, accepted)

	joined, err := NewEvent(EventUserJoined, UserJoinedPayload{User: session.User})
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to build USER_JOINED event.")
		return
	}
	r.broadcastLocked(joined, sessionID)
}

// Broadcast delivers event to every bound sink except excludeSessionID (pass
// "" to deliver to everyone, including the sender). Per-recipient delivery
// order equals broadcast call order; there is no ordering guarantee between
// different recipients.
func (r *Registry) Broadcast(event Event, excludeSessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.broadcastLocked(event, excludeSessionID)
}

// Deliver enqueues event on a single session's sink. Unknown or removed
// sessions are a no-op, which makes it safe to report errors to a session
// that may concurrently be torn down.
func (r *Registry) Deliver(sessionID string, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	r.deliverLocked(session, event)
}

// Remove deletes the session and its user from all indices, broadcasts
// USER_LEFT to the remaining sessions, then closes the removed session's
// sink. Removing an unknown or already-removed session is a no-op, which
// makes the disconnect/leave race safe to run from both paths.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return
	}

	delete(r.sessions, sessionID)
	delete(r.byUser, session.User.ID)
	for i, id := range r.order {
		if id == sessionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Info().
		Str("session_id", session.ID).
		Str("user_id", session.User.ID).
		Str("username", session.User.Username).
		Int("total_users", len(r.sessions)).
		Msg("User removed.")

	left, err := NewEvent(EventUserLeft, UserLeftPayload{UserID: session.User.ID})
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to build USER_LEFT event.")
	} else {
		r.broadcastLocked(left, "")
	}

	if session.sink != nil {
		close(session.sink)
	}
}

// LookupByUserID resolves a caller-supplied user id to its session. Returns
// nil when no session exists for the id.
func (r *Registry) LookupByUserID(userID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	return r.sessions[sessionID]
}

// ActiveUsers returns a snapshot of the registered users in admission order.
func (r *Registry) ActiveUsers() []user.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.activeUsersLocked("")
}

// Shutdown drops every remaining session and closes all bound sinks. No
// USER_LEFT events are broadcast: the whole server is going away.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, session := range r.sessions {
		if session.sink != nil {
			close(session.sink)
		}
	}

	r.logger.Info().
		Int("sessions_closed", len(r.sessions)).
		Msg("Registry shutdown complete.")

	r.sessions = make(map[string]*Session)
	r.byUser = make(map[string]string)
	r.order = nil
}

// activeUsersLocked snapshots the roster in admission order, skipping
// excludeSessionID when set. Callers must hold r.mu.
func (r *Registry) activeUsersLocked(excludeSessionID string) []user.User {
	users := make([]user.User, 0, len(r.order))
	for _, sessionID := range r.order {
		if sessionID == excludeSessionID {
			continue
		}
		users = append(users, r.sessions[sessionID].User)
	}
	return users
}

// broadcastLocked fans event out to every bound sink except excludeSessionID.
// Callers must hold r.mu.
func (r *Registry) broadcastLocked(event Event, excludeSessionID string) {
	for _, sessionID := range r.order {
		if sessionID == excludeSessionID {
			continue
		}
		r.deliverLocked(r.sessions[sessionID], event)
	}
}

// deliverLocked enqueues event on one sink without ever blocking the
// registry. A full queue means the client stopped draining; the event is
// dropped for that recipient only and the failure is logged, never surfaced
// to the sender or to other recipients. Callers must hold r.mu.
func (r *Registry) deliverLocked(session *Session, event Event) {
	if session.sink == nil {
		return
	}

	select {
	case session.sink <- event:
	default:
		r.logger.Warn().
			Str("session_id", session.ID).
			Str("user_id", session.User.ID).
			Str("event_type", string(event.Type)).
			Msg("Session sink full, dropping event for this recipient.")
	}
}
