package relay

// RouteHandler is the terminal link of a chain. It receives the context after
// every middleware has run and produces the substantive response or a failure.
// A handler has no continuation.
type RouteHandler interface {
	Serve(rc *RequestContext) (*HttpResponse, error)
}

// RouteHandlerFn defines the signature for route handler functions that process HTTP requests.
//
// Function signature:
//
//	func(rc *RequestContext) (*HttpResponse, error)
type RouteHandlerFn func(rc *RequestContext) (*HttpResponse, error)

// Serve calls fn(rc).
func (fn RouteHandlerFn) Serve(rc *RequestContext) (*HttpResponse, error) {
	return fn(rc)
}

// Next is the continuation handed to a middleware. Calling it runs the rest of
// the chain and returns its outcome. It may be called at most once; a second
// call returns an InternalError failure wrapping ErrInvalidChainUsage and does
// not run anything.
type Next func() (*HttpResponse, error)

// Middleware is a unit of cross-cutting behavior.
//
// Middleware Return Values:
//   - next(): Continue processing to the next middleware or handler
//   - (*HttpResponse, nil) without next: Short-circuit with this response
//   - (nil, error) without next: Short-circuit with a failure
type Middleware interface {
	Handle(rc *RequestContext, next Next) (*HttpResponse, error)
}

// MiddlewareFn defines the signature for middleware functions that can intercept and modify
// request processing.
//
// Example:
//
//	authMiddleware := relay.MiddlewareFn(func(rc *relay.RequestContext, next relay.Next) (*relay.HttpResponse, error) {
//	    if rc.Header("Authorization") == "" {
//	        return nil, relay.UnauthorizedFailure("Missing auth token")
//	    }
//	    return next()
//	})
type MiddlewareFn func(rc *RequestContext, next Next) (*HttpResponse, error)

// Handle calls fn(rc, next).
func (fn MiddlewareFn) Handle(rc *RequestContext, next Next) (*HttpResponse, error) {
	return fn(rc, next)
}

// NamedMiddleware attaches a name to a middleware. The name shows up in access
// logs as the producer of a short-circuited outcome.
type NamedMiddleware struct {
	Name string
	Middleware
}

// Named wraps m so it reports name in logs and route listings.
func Named(name string, m Middleware) NamedMiddleware {
	return NamedMiddleware{Name: name, Middleware: m}
}

func middlewareName(m Middleware) string {
	if named, ok := m.(NamedMiddleware); ok {
		return named.Name
	}
	return "middleware"
}
