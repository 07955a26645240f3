package relay

import (
	"errors"
	"fmt"
	"strings"
)

// Route binds a method, a path pattern, a handler and an ordered list of
// route-local middleware. A Route is built once by NewRoute and never changes
// afterwards; the Router shares it read-only across all in-flight requests.
//
// Processing Order:
//  1. Global middleware registered with Router.Use
//  2. The route's own middleware, in the order given to NewRoute
//  3. The handler
type Route struct {
	method     HttpMethod
	pattern    PathPattern
	handler    RouteHandler
	middleware []Middleware
}

// NewRoute validates and builds a route. The middleware slice is copied, so
// later changes by the caller do not reach the route.
//
// Example:
//
//	route, err := relay.NewRoute(relay.Get, "/users/{id}", getUser, requireAuth)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	router.Register(route)
func NewRoute(method HttpMethod, path string, handler RouteHandler, middleware ...Middleware) (Route, error) {
	if _, ok := HttpMethods[string(method)]; !ok {
		return Route{}, fmt.Errorf("relay: unsupported method %q", method)
	}
	if handler == nil {
		return Route{}, errors.New("relay: nil handler for " + string(method) + " " + path)
	}
	pattern, err := ParsePathPattern(path)
	if err != nil {
		return Route{}, err
	}
	mws := make([]Middleware, 0, len(middleware))
	for _, m := range middleware {
		if m == nil {
			return Route{}, errors.New("relay: nil middleware for " + string(method) + " " + path)
		}
		mws = append(mws, m)
	}
	return Route{method: method, pattern: pattern, handler: handler, middleware: mws}, nil
}

func (r Route) Method() HttpMethod {
	return r.method
}

// Path returns the path as registered, e.g. "/users/{id}".
func (r Route) Path() string {
	return r.pattern.String()
}

func (r Route) Pattern() PathPattern {
	return r.pattern
}

func (r Route) Handler() RouteHandler {
	return r.handler
}

// Middleware returns a copy of the route-local middleware in execution order.
func (r Route) Middleware() []Middleware {
	out := make([]Middleware, len(r.middleware))
	copy(out, r.middleware)
	return out
}

func (r Route) String() string {
	if len(r.middleware) == 0 {
		return fmt.Sprintf("%s %s", r.method, r.pattern)
	}
	names := make([]string, len(r.middleware))
	for i, m := range r.middleware {
		names[i] = middlewareName(m)
	}
	return fmt.Sprintf("%s %s [%s]", r.method, r.pattern, strings.Join(names, ", "))
}

// shapeKey identifies routes that would match exactly the same requests.
func (r Route) shapeKey() string {
	return string(r.method) + " " + r.pattern.Shape()
}
