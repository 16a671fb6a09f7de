package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relaychat/internal/app/chat"
	"relaychat/internal/app/user"
	"relaychat/internal/configs"
	"relaychat/internal/pkg/errs"
)

// envelope mirrors the resp.JSONResponse wire shape for assertions.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestDeps() *AppDeps {
	return &AppDeps{
		Registry: chat.NewRegistry(),
		Config: &configs.AppConfig{
			Environment: "development",
			Port:        8080,
			SinkBuffer:  64,
		},
	}
}

func newAPIServer(t *testing.T) (*httptest.Server, *AppDeps) {
	deps := newTestDeps()
	server := httptest.NewServer(Router(deps))
	t.Cleanup(server.Close)
	return server, deps
}

func doRequest(req *require.Assertions, server *httptest.Server, method, path, callerID string, body any) (int, envelope) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		req.NoError(err)
		reader = bytes.NewReader(raw)
	}

	request, err := http.NewRequest(method, server.URL+path, reader)
	req.NoError(err)

	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if callerID != "" {
		request.Header.Set(CallerIDHeader, callerID)
	}

	response, err := server.Client().Do(request)
	req.NoError(err)
	defer response.Body.Close()

	var parsed envelope
	req.NoError(json.NewDecoder(response.Body).Decode(&parsed))
	return response.StatusCode, parsed
}

// receiveEvent waits briefly for an event already pushed by a completed
// request.
func receiveEvent(req *require.Assertions, sink chan chat.Event) chat.Event {
	select {
	case event, ok := <-sink:
		req.True(ok, "sink closed while an event was expected")
		return event
	case <-time.After(2 * time.Second):
		req.FailNow("timed out waiting for an event")
		return chat.Event{}
	}
}

func TestHealth(t *testing.T) {
	req := require.New(t)
	server, _ := newAPIServer(t)

	status, body := doRequest(req, server, http.MethodGet, "/health", "", nil)

	req.Equal(http.StatusOK, status)
	req.Equal(0, body.Code)
}

func TestSendMessage_RequiresCallerID(t *testing.T) {
	req := require.New(t)
	server, _ := newAPIServer(t)

	status, body := doRequest(req, server, http.MethodPost, "/api/chat/send", "", SendMessageInput{Content: "hello"})

	req.Equal(http.StatusUnauthorized, status)
	req.Equal(errs.ErrUnauthenticated, body.Code)
}

func TestSendMessage_UnknownCaller(t *testing.T) {
	req := require.New(t)
	server, _ := newAPIServer(t)

	status, body := doRequest(req, server, http.MethodPost, "/api/chat/send", "no-such-user", SendMessageInput{Content: "hello"})

	req.Equal(http.StatusPreconditionFailed, status)
	req.Equal(errs.ErrNotJoined, body.Code)
}

func TestSendMessage_RejectsEmptyContent(t *testing.T) {
	req := require.New(t)
	server, _ := newAPIServer(t)

	status, body := doRequest(req, server, http.MethodPost, "/api/chat/send", "some-user", SendMessageInput{Content: "   "})

	req.Equal(http.StatusBadRequest, status)
	req.Equal(errs.ErrInvalidParams, body.Code)
}

func TestSendMessage_RejectsWrongContentType(t *testing.T) {
	req := require.New(t)
	server, _ := newAPIServer(t)

	request, err := http.NewRequest(http.MethodPost, server.URL+"/api/chat/send", bytes.NewBufferString(`{"content":"hello"}`))
	req.NoError(err)
	request.Header.Set("Content-Type", "text/plain")
	request.Header.Set(CallerIDHeader, "some-user")

	response, err := server.Client().Do(request)
	req.NoError(err)
	defer response.Body.Close()

	req.Equal(http.StatusUnsupportedMediaType, response.StatusCode)
}

func TestSendMessage_BroadcastsToAllSessions(t *testing.T) {
	req := require.New(t)
	server, deps := newAPIServer(t)

	// Given Alice and Bob are joined with bound sinks
	alice, admitErr := deps.Registry.Admit("Alice")
	req.Nil(admitErr)
	aliceSink := make(chan chat.Event, 16)
	deps.Registry.Bind(alice.ID, aliceSink)
	receiveEvent(req, aliceSink) // CONNECTION_ACCEPTED

	bob, admitErr := deps.Registry.Admit("Bob")
	req.Nil(admitErr)
	bobSink := make(chan chat.Event, 16)
	deps.Registry.Bind(bob.ID, bobSink)
	receiveEvent(req, aliceSink) // USER_JOINED
	receiveEvent(req, bobSink)   // CONNECTION_ACCEPTED

	// When Alice sends a message through the REST surface
	status, body := doRequest(req, server, http.MethodPost, "/api/chat/send", alice.User.ID, SendMessageInput{Content: "hello"})

	// Then the call succeeds and both sinks, the sender's included, get the message
	req.Equal(http.StatusOK, status)

	var result ActionResult
	req.NoError(json.Unmarshal(body.Data, &result))
	req.True(result.Success)

	for _, sink := range []chan chat.Event{aliceSink, bobSink} {
		event := receiveEvent(req, sink)
		req.Equal(chat.EventMessageReceived, event.Type)

		var payload chat.MessageReceivedPayload
		req.NoError(json.Unmarshal(event.Payload, &payload))
		req.Equal(alice.User.ID, payload.UserID)
		req.Equal("Alice", payload.Username)
		req.Equal("hello", payload.Content)
		req.Positive(payload.Timestamp)
	}
}

func TestLeave_RequiresCallerID(t *testing.T) {
	req := require.New(t)
	server, _ := newAPIServer(t)

	status, body := doRequest(req, server, http.MethodPost, "/api/chat/leave", "", nil)

	req.Equal(http.StatusUnauthorized, status)
	req.Equal(errs.ErrUnauthenticated, body.Code)
}

func TestLeave_UnknownCallerIsNoOp(t *testing.T) {
	req := require.New(t)
	server, _ := newAPIServer(t)

	status, body := doRequest(req, server, http.MethodPost, "/api/chat/leave", "no-such-user", nil)

	req.Equal(http.StatusOK, status)
	req.Equal(0, body.Code)
}

func TestLeave_RemovesSession(t *testing.T) {
	req := require.New(t)
	server, deps := newAPIServer(t)

	alice, admitErr := deps.Registry.Admit("Alice")
	req.Nil(admitErr)
	aliceSink := make(chan chat.Event, 16)
	deps.Registry.Bind(alice.ID, aliceSink)
	receiveEvent(req, aliceSink)

	// When Alice leaves twice
	status, _ := doRequest(req, server, http.MethodPost, "/api/chat/leave", alice.User.ID, nil)
	req.Equal(http.StatusOK, status)

	status, _ = doRequest(req, server, http.MethodPost, "/api/chat/leave", alice.User.ID, nil)
	req.Equal(http.StatusOK, status)

	// Then the session is gone and the sink is closed
	req.Empty(deps.Registry.ActiveUsers())
	_, open := <-aliceSink
	req.False(open)
}

func TestActiveUsers(t *testing.T) {
	req := require.New(t)
	server, deps := newAPIServer(t)

	status, body := doRequest(req, server, http.MethodGet, "/api/chat/users", "", nil)
	req.Equal(http.StatusOK, status)

	var users []user.User
	req.NoError(json.Unmarshal(body.Data, &users))
	req.Empty(users)

	alice, admitErr := deps.Registry.Admit("Alice")
	req.Nil(admitErr)

	status, body = doRequest(req, server, http.MethodGet, "/api/chat/users", "", nil)
	req.Equal(http.StatusOK, status)
	req.NoError(json.Unmarshal(body.Data, &users))
	req.Len(users, 1)
	req.Equal(alice.User, users[0])
}
