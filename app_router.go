package relay

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// Router owns the registered routes and the global middleware list and
// resolves incoming (method, path) pairs to a route.
//
// Matching:
//  1. Candidates are filtered by exact method
//  2. Segment counts must agree; each segment matches by literal equality or
//     is captured by a parameter
//  3. When several patterns fit (e.g. "/users/me" and "/users/{id}"), the
//     earliest-registered route wins
//  4. Otherwise Match fails with a NotFound failure carrying method and path
//
// The table is copy-on-write: registration builds a new snapshot under a
// writer lock and publishes it atomically, so dispatch never locks. Routes are
// normally registered during startup, but late registration is safe.
type Router struct {
	mu    sync.Mutex
	table atomic.Pointer[routeTable]
}

type routeTable struct {
	routes   []*Route
	byMethod map[HttpMethod][]*Route
	shapes   map[string]*Route
	global   []Middleware
}

func (t *routeTable) clone() *routeTable {
	next := &routeTable{
		routes:   make([]*Route, len(t.routes), len(t.routes)+1),
		byMethod: make(map[HttpMethod][]*Route, len(t.byMethod)),
		shapes:   make(map[string]*Route, len(t.shapes)+1),
		global:   make([]Middleware, len(t.global), len(t.global)+1),
	}
	copy(next.routes, t.routes)
	copy(next.global, t.global)
	for m, rs := range t.byMethod {
		next.byMethod[m] = append([]*Route(nil), rs...)
	}
	for k, r := range t.shapes {
		next.shapes[k] = r
	}
	return next
}

// RouteMatch is the result of a successful Router.Match.
//
// Fields:
//   - Route: The matched route, shared read-only
//   - Params: Captured path parameters; a fresh map owned by the caller
type RouteMatch struct {
	Route  *Route
	Params map[string]string
	global []Middleware
}

// Global returns the global middleware snapshot that was current when the
// route was matched.
func (m *RouteMatch) Global() []Middleware {
	return m.global
}

// NewRouter creates an empty router ready for route registration.
//
// Example:
//
//	router := relay.NewRouter()
//	router.Use(relay.RequestID())
//	router.MustHandleFunc(relay.Get, "/users/{id}", getUser, requireAuth)
func NewRouter() *Router {
	r := &Router{}
	r.table.Store(&routeTable{
		byMethod: map[HttpMethod][]*Route{},
		shapes:   map[string]*Route{},
	})
	return r
}

// Register adds a fully formed route. It fails with *DuplicateRouteError if a
// route with the same method and path shape exists; the table is then left
// untouched.
func (self *Router) Register(route Route) error {
	if route.handler == nil {
		return fmt.Errorf("relay: route %s was not built with NewRoute", route)
	}
	self.mu.Lock()
	defer self.mu.Unlock()

	current := self.table.Load()
	key := route.shapeKey()
	if existing, dup := current.shapes[key]; dup {
		return &DuplicateRouteError{Method: route.method, Path: route.Path(), Existing: existing.Path()}
	}
	next := current.clone()
	stored := route
	next.routes = append(next.routes, &stored)
	next.byMethod[route.method] = append(next.byMethod[route.method], &stored)
	next.shapes[key] = &stored
	self.table.Store(next)
	return nil
}

// Handle builds a route with NewRoute and registers it.
func (self *Router) Handle(method HttpMethod, path string, handler RouteHandler, middleware ...Middleware) error {
	route, err := NewRoute(method, path, handler, middleware...)
	if err != nil {
		return err
	}
	return self.Register(route)
}

// HandleFunc is Handle for plain handler functions.
func (self *Router) HandleFunc(method HttpMethod, path string, fn RouteHandlerFn, middleware ...Middleware) error {
	if fn == nil {
		return self.Handle(method, path, nil, middleware...)
	}
	return self.Handle(method, path, fn, middleware...)
}

// MustHandle is Handle that panics on failure. Registration errors are
// startup errors, so aborting initialization is the intended outcome.
func (self *Router) MustHandle(method HttpMethod, path string, handler RouteHandler, middleware ...Middleware) {
	if err := self.Handle(method, path, handler, middleware...); err != nil {
		panic(err)
	}
}

// MustHandleFunc is MustHandle for plain handler functions.
func (self *Router) MustHandleFunc(method HttpMethod, path string, fn RouteHandlerFn, middleware ...Middleware) {
	if err := self.HandleFunc(method, path, fn, middleware...); err != nil {
		panic(err)
	}
}

// Use appends global middleware. Global middleware runs for every route in
// registration order, always before route-local middleware. Nil entries are
// ignored.
func (self *Router) Use(middleware ...Middleware) {
	self.mu.Lock()
	defer self.mu.Unlock()

	next := self.table.Load().clone()
	for _, m := range middleware {
		if m != nil {
			next.global = append(next.global, m)
		}
	}
	self.table.Store(next)
}

// Global returns a copy of the global middleware list.
func (self *Router) Global() []Middleware {
	return append([]Middleware(nil), self.table.Load().global...)
}

// Match resolves a request to a route. Lookup is deterministic: repeated calls
// with the same arguments against the same table return the same route.
func (self *Router) Match(method HttpMethod, path string) (*RouteMatch, error) {
	table := self.table.Load()
	comps := PathListFromString(path)
	for _, route := range table.byMethod[method] {
		if route.pattern.matches(comps) {
			return &RouteMatch{
				Route:  route,
				Params: route.pattern.capture(comps),
				global: table.global,
			}, nil
		}
	}
	return nil, NotFoundFailure(fmt.Sprintf("No route for %s %s", method, path)).
		WithDetail(RouteNotFound{Method: method, Path: path})
}

// Routes returns the registered routes in registration order.
func (self *Router) Routes() []Route {
	table := self.table.Load()
	out := make([]Route, len(table.routes))
	for i, r := range table.routes {
		out[i] = *r
	}
	return out
}

// PrintRoutes writes one line per route in registration order, e.g.
//
//	GET /users/{id} [authenticate]
//	POST /users
func (self *Router) PrintRoutes(w io.Writer) {
	for _, route := range self.Routes() {
		fmt.Fprintln(w, route.String())
	}
}
