/*
Package handler provides the HTTP handlers and routing setup for the chat
server.

This file contains the unary REST surface: sendMessage and leave calls that
identify the caller's session through an out-of-band user id supplied with
each request, plus a read-only roster snapshot. Both surfaces drive the same
Registry semantics as the WebSocket stream.
*/
package handler

import (
	"net/http"
	"strings"
	"time"

	"relaychat/internal/app/chat"
	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/req"
	"relaychat/internal/pkg/resp"
)

// CallerIDHeader carries the caller's user id on unary requests.
const CallerIDHeader = "X-User-ID"

// SendMessageInput is the request body for POST /api/chat/send.
type SendMessageInput struct {
	Content string `json:"content"`
}

// ActionResult is the response payload for unary chat actions.
type ActionResult struct {
	Success bool `json:"success"`
}

// callerID extracts the caller's user id from the request header.
func callerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(CallerIDHeader))
}

// HandleSendMessage broadcasts a message on behalf of the caller's session.
// Fails Unauthenticated without a caller id and FailedPrecondition when no
// session exists for it. The sender's own stream receives the echo like any
// other recipient.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := callerID(r)
		if caller == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthenticated))
			return
		}

		var input SendMessageInput
		if bindErr := req.BindJSON(r, &input); bindErr != nil {
			resp.RespondError(w, r, bindErr)
			return
		}

		if strings.TrimSpace(input.Content) == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		session := deps.Registry.LookupByUserID(caller)
		if session == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotJoined))
			return
		}

		event, err := chat.NewEvent(chat.EventMessageReceived, chat.MessageReceivedPayload{
			UserID:    session.User.ID,
			Username:  session.User.Username,
			Content:   input.Content,
			Timestamp: time.Now().UnixMilli(),
		})
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		deps.Registry.Broadcast(event, "")

		resp.RespondSuccess(w, r, ActionResult{Success: true})
	}
}

// HandleLeave removes the caller's session. A caller id with no session is a
// no-op success, which keeps the call idempotent alongside transport-driven
// cleanup.
func HandleLeave(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := callerID(r)
		if caller == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthenticated))
			return
		}

		if session := deps.Registry.LookupByUserID(caller); session != nil {
			deps.Registry.Remove(session.ID)
		}

		resp.RespondSuccess(w, r, ActionResult{Success: true})
	}
}

// HandleActiveUsers returns the roster snapshot in admission order.
func HandleActiveUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.Registry.ActiveUsers())
	}
}
