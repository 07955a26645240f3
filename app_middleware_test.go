package relay

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveWith(router *Router, logger *logrus.Logger, req *HttpRequest) *HttpResponse {
	return NewDispatcher(router, logger).Dispatch(context.Background(), req)
}

func TestRequestID(t *testing.T) {
	var seen string
	router := NewRouter()
	router.Use(RequestID())
	router.MustHandleFunc(Get, "/", func(rc *RequestContext) (*HttpResponse, error) {
		seen, _ = Attr[string](rc, RequestIDKey)
		return NoContentResponse(), nil
	})

	req := NewHttpRequest(Get, "/")
	req.Headers.Set(RequestIDHeader, "abc-123")
	res := serveWith(router, nil, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", res.Headers.Get(RequestIDHeader))

	res = serveWith(router, nil, NewHttpRequest(Get, "/"))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, res.Headers.Get(RequestIDHeader))
}

func TestAccessLog(t *testing.T) {
	logger, hook := test.NewNullLogger()
	router := NewRouter()
	router.Use(RequestID(), AccessLog(2))
	router.MustHandleFunc(Get, "/users/{id}", ok("hi"), RequireHeader("X-Auth"))

	req := NewHttpRequest(Get, "/users/1")
	req.Headers.Set("X-Auth", "yes")
	req.IpAddress = "10.1.2.3"
	serveWith(router, logger, req)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "request", entry.Message)
	assert.Equal(t, 200, entry.Data["status"])
	assert.Equal(t, "/users/{id}", entry.Data["route"])
	assert.Equal(t, "handler", entry.Data["producer"])
	assert.Equal(t, "10.1.2.3", entry.Data["ip"])
	assert.NotEmpty(t, entry.Data["request_id"])

	hook.Reset()
	serveWith(router, logger, NewHttpRequest(Get, "/users/1"))
	entry = hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, 401, entry.Data["status"])
	assert.Equal(t, "require-X-Auth", entry.Data["producer"])
}

func TestAccessLogDisabled(t *testing.T) {
	logger, hook := test.NewNullLogger()
	router := NewRouter()
	router.Use(AccessLog(0))
	router.MustHandleFunc(Get, "/", ok(""))
	serveWith(router, logger, NewHttpRequest(Get, "/"))
	assert.Empty(t, hook.AllEntries())
}

func TestTimeout(t *testing.T) {
	var deadline bool
	slow := MiddlewareFn(func(rc *RequestContext, next Next) (*HttpResponse, error) {
		_, deadline = rc.Context().Deadline()
		time.Sleep(20 * time.Millisecond)
		return next()
	})
	handled := 0
	router := NewRouter()
	router.Use(Timeout(time.Millisecond))
	router.MustHandleFunc(Get, "/", func(rc *RequestContext) (*HttpResponse, error) {
		handled++
		return NoContentResponse(), nil
	}, slow)

	res := serveWith(router, nil, NewHttpRequest(Get, "/"))
	assert.True(t, deadline)
	assert.Equal(t, StatusGatewayTimeout, res.StatusCode)
	assert.Equal(t, 0, handled)
}

func TestTimeoutRestoresContext(t *testing.T) {
	var after context.Context
	outer := MiddlewareFn(func(rc *RequestContext, next Next) (*HttpResponse, error) {
		res, err := next()
		after = rc.Context()
		return res, err
	})
	router := NewRouter()
	router.Use(outer, Timeout(time.Second))
	router.MustHandleFunc(Get, "/", ok(""))

	serveWith(router, nil, NewHttpRequest(Get, "/"))
	require.NotNil(t, after)
	_, hasDeadline := after.Deadline()
	assert.False(t, hasDeadline)
}

func TestBodyLimit(t *testing.T) {
	router := NewRouter()
	router.Use(BodyLimit(4))
	router.MustHandleFunc(Post, "/", ok("stored"))

	req := NewHttpRequest(Post, "/")
	req.Body = []byte("1234")
	assert.Equal(t, StatusOK, serveWith(router, nil, req).StatusCode)

	req = NewHttpRequest(Post, "/")
	req.Body = []byte("12345")
	res := serveWith(router, nil, req)
	assert.Equal(t, StatusPayloadTooLarge, res.StatusCode)
	assert.JSONEq(t, `{"status":false,"kind":"PayloadTooLarge","message":"Request body is too large","detail":{"limit":4}}`, string(res.Body))
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	unlimited := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.Allow("a"))
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	router := NewRouter()
	router.Use(RateLimit(0.001, 1))
	router.MustHandleFunc(Get, "/", ok(""))

	req := func(ip string) *HttpRequest {
		r := NewHttpRequest(Get, "/")
		r.IpAddress = ip
		return r
	}
	assert.Equal(t, StatusOK, serveWith(router, nil, req("1.1.1.1")).StatusCode)
	assert.Equal(t, StatusTooManyRequests, serveWith(router, nil, req("1.1.1.1")).StatusCode)
	assert.Equal(t, StatusOK, serveWith(router, nil, req("2.2.2.2")).StatusCode)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRequestMetrics(reg)
	router := NewRouter()
	router.Use(m.Middleware())
	router.MustHandleFunc(Get, "/users/{id}", ok(""), RequireHeader("X-Auth"))

	req := NewHttpRequest(Get, "/users/1")
	req.Headers.Set("X-Auth", "1")
	serveWith(router, nil, req)
	serveWith(router, nil, NewHttpRequest(Get, "/users/2"))
	serveWith(router, nil, NewHttpRequest(Get, "/users/3"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/users/{id}", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/users/{id}", "401")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}
