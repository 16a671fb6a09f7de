package limiter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestGetLimiter_EnforcesBurst(t *testing.T) {
	req := require.New(t)
	rl := NewIPRateLimiter(rate.Limit(0.001), 2)

	limiter := rl.GetLimiter("10.0.0.1")
	req.True(limiter.Allow())
	req.True(limiter.Allow())
	req.False(limiter.Allow())

	// A different IP has its own bucket
	req.True(rl.GetLimiter("10.0.0.2").Allow())
}

func TestGetLimiter_ReturnsSameInstancePerIP(t *testing.T) {
	req := require.New(t)
	rl := NewIPRateLimiter(rate.Limit(1), 1)

	req.Same(rl.GetLimiter("10.0.0.1"), rl.GetLimiter("10.0.0.1"))
}

func TestMiddleware_Responds429WhenExhausted(t *testing.T) {
	req := require.New(t)
	rl := NewIPRateLimiter(rate.Limit(0.001), 1)

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.RemoteAddr = "10.0.0.1:54321"

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	req.Equal(http.StatusOK, recorder.Code)

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	req.Equal(http.StatusTooManyRequests, recorder.Code)
}

func TestClientIP(t *testing.T) {
	req := require.New(t)

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.RemoteAddr = "192.168.1.10:12345"
	req.Equal("192.168.1.10", ClientIP(request))

	request.RemoteAddr = "192.168.1.10"
	req.Equal("192.168.1.10", ClientIP(request))

	request.RemoteAddr = ""
	req.Equal("unknown_ip", ClientIP(request))
}
