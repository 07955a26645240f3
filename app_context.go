package relay

import (
	"context"
	"io"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// DispatchState tracks where a request is in its single pass through the chain.
//
//	StateReceived → StateMatched → StateRunning → StateShortCircuited | StateFailed | (handler) → StateResponseReady
//
// No state is revisited. A request that matches no route goes straight from
// StateReceived to StateResponseReady with a failed outcome.
type DispatchState int

const (
	StateReceived DispatchState = iota
	StateMatched
	StateRunning
	StateShortCircuited
	StateFailed
	StateResponseReady
)

func (s DispatchState) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateMatched:
		return "matched"
	case StateRunning:
		return "running"
	case StateShortCircuited:
		return "short-circuited"
	case StateFailed:
		return "failed"
	case StateResponseReady:
		return "response-ready"
	}
	return "unknown"
}

// RequestContext is the per-request state that flows through the chain. The
// Dispatcher creates one for every request and drops it once the response is
// built. Exactly one goroutine owns it at a time, so it carries no locks.
//
// It provides access to:
//   - The normalized request (method, path, headers, query, body)
//   - Captured path parameters
//   - An attribute store middleware use to pass data downstream
//   - The request's context.Context for cancellation
//   - A request-scoped logger
type RequestContext struct {
	Request *HttpRequest

	ctx      context.Context
	route    *Route
	params   map[string]string
	query    url.Values
	attrs    map[string]any
	json     *gjson.Result
	log      *logrus.Entry
	state    DispatchState
	outcome  DispatchState
	producer int
	failure  *Failure
	links    []Middleware
}

// NewRequestContext builds a context for req. A nil logger discards output.
func NewRequestContext(ctx context.Context, req *HttpRequest, logger *logrus.Logger) *RequestContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = discardLogger()
	}
	if req.Headers == nil {
		req.Headers = Headers{}
	}
	return &RequestContext{
		Request:  req,
		ctx:      ctx,
		params:   map[string]string{},
		attrs:    map[string]any{},
		log:      logger.WithFields(logrus.Fields{"method": req.Method, "path": req.Path}),
		producer: -1,
	}
}

// Context returns the request's context.Context.
func (rc *RequestContext) Context() context.Context {
	return rc.ctx
}

// SetContext replaces the request's context.Context, e.g. to add a deadline.
// Links after the caller observe the new context.
func (rc *RequestContext) SetContext(ctx context.Context) {
	if ctx != nil {
		rc.ctx = ctx
	}
}

func (rc *RequestContext) Method() HttpMethod {
	return rc.Request.Method
}

func (rc *RequestContext) Path() string {
	return rc.Request.Path
}

// Route returns the matched route, or nil before matching or on a miss.
func (rc *RequestContext) Route() *Route {
	return rc.route
}

// Param returns a captured path parameter, or "" if the route has none by that name.
func (rc *RequestContext) Param(name string) string {
	return rc.params[name]
}

// Params returns a copy of all captured path parameters.
func (rc *RequestContext) Params() map[string]string {
	out := make(map[string]string, len(rc.params))
	for k, v := range rc.params {
		out[k] = v
	}
	return out
}

// ParamUUID parses a path parameter as a UUID. A malformed value is a
// ValidationFailed failure.
func (rc *RequestContext) ParamUUID(name string) (uuid.UUID, error) {
	id, err := uuid.Parse(rc.params[name])
	if err != nil {
		return uuid.Nil, ValidationFailure("Path parameter "+name+" must be a UUID", map[string]string{"param": name})
	}
	return id, nil
}

// Header returns a request header, case-insensitively.
func (rc *RequestContext) Header(name string) string {
	return rc.Request.Headers.Get(name)
}

// QueryValues parses the query string on first use.
func (rc *RequestContext) QueryValues() url.Values {
	if rc.query == nil {
		values, err := url.ParseQuery(rc.Request.QueryString)
		if err != nil {
			values = url.Values{}
		}
		rc.query = values
	}
	return rc.query
}

// Query returns the first value of a query parameter, or "".
func (rc *RequestContext) Query(key string) string {
	return rc.QueryValues().Get(key)
}

// QueryString extracts a query parameter as a URL-decoded string.
// Returns nil if parameter is missing, but returns pointer to empty string for empty parameters.
func (rc *RequestContext) QueryString(key string) *string {
	values, ok := rc.QueryValues()[key]
	if !ok || len(values) == 0 {
		return nil
	}
	v := values[0]
	return &v
}

// QueryInt64 extracts a query parameter as a 64-bit signed integer.
// Returns nil if parameter is missing or cannot be parsed.
func (rc *RequestContext) QueryInt64(key string) *int64 {
	val := rc.QueryString(key)
	if val == nil {
		return nil
	}
	num, err := strconv.ParseInt(*val, 10, 64)
	if err != nil {
		return nil
	}
	return &num
}

// QueryUUID extracts and validates a query parameter as a UUID.
// Returns nil if parameter is missing or not a valid UUID format.
func (rc *RequestContext) QueryUUID(key string) *uuid.UUID {
	val := rc.QueryString(key)
	if val == nil {
		return nil
	}
	id, err := uuid.Parse(*val)
	if err != nil {
		return nil
	}
	return &id
}

// Body returns the raw request body.
func (rc *RequestContext) Body() []byte {
	return rc.Request.Body
}

// JSON returns a lazily parsed view of the body. The body is parsed on the
// first call only; an invalid or empty body yields an empty result whose
// fields report Exists() == false.
//
// Example:
//
//	email := rc.JSON().Get("email").String()
func (rc *RequestContext) JSON() gjson.Result {
	if rc.json == nil {
		var res gjson.Result
		if gjson.ValidBytes(rc.Request.Body) {
			res = gjson.ParseBytes(rc.Request.Body)
		}
		rc.json = &res
	}
	return *rc.json
}

// Set stores an attribute for downstream links.
func (rc *RequestContext) Set(key string, value any) {
	rc.attrs[key] = value
}

// Get returns an attribute stored with Set.
func (rc *RequestContext) Get(key string) (any, bool) {
	v, ok := rc.attrs[key]
	return v, ok
}

// Attr returns the attribute stored under key if it has type T.
func Attr[T any](rc *RequestContext, key string) (T, bool) {
	v, ok := rc.attrs[key]
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// Logger returns the request-scoped logger.
func (rc *RequestContext) Logger() *logrus.Entry {
	return rc.log
}

// AddLogField attaches a field to every later log line for this request.
func (rc *RequestContext) AddLogField(key string, value any) {
	rc.log = rc.log.WithField(key, value)
}

// State returns the current dispatch state.
func (rc *RequestContext) State() DispatchState {
	return rc.state
}

// Outcome reports how the chain ended once State is StateResponseReady:
// StateShortCircuited when a middleware answered, StateFailed when a link
// failed, and StateResponseReady when the handler produced the response.
func (rc *RequestContext) Outcome() DispatchState {
	return rc.outcome
}

func (rc *RequestContext) setState(s DispatchState) {
	rc.state = s
	switch s {
	case StateShortCircuited, StateFailed:
		rc.outcome = s
	case StateResponseReady:
		if rc.outcome != StateShortCircuited && rc.outcome != StateFailed {
			rc.outcome = StateResponseReady
		}
	}
}

// Producer returns the index of the link that produced the outcome (global
// middleware first, then route middleware, then the handler), or -1 if the
// chain has not produced one.
func (rc *RequestContext) Producer() int {
	return rc.producer
}

// ProducerName describes the producing link for logs.
func (rc *RequestContext) ProducerName() string {
	if rc.producer < 0 || rc.route == nil {
		return ""
	}
	if rc.producer >= len(rc.links) {
		return "handler"
	}
	return middlewareName(rc.links[rc.producer])
}

// Failure returns the failure the chain ended with, if any.
func (rc *RequestContext) Failure() *Failure {
	return rc.failure
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
