/*
Package handler provides the HTTP handlers and routing setup for the chat
server.

This file contains the WebSocket entry point: the combined bidirectional
stream where join/sendMessage/leave intents arrive on one inbound stream and
all chat events flow out on the same connection.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"relaychat/internal/app/chat"
	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/limiter"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/resp"
)

// HandleWebSocket upgrades the connection and runs the session protocol for
// its lifetime. The write pump starts first so events produced during the
// join handshake are drained immediately; the read pump runs on the handler
// goroutine and its exit triggers session cleanup.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := chat.NewClient(deps.Registry, conn, deps.Config.SinkBuffer)

		go client.WritePump()

		logx.Info("WebSocket connection established.")

		client.ReadPump()
	}
}
