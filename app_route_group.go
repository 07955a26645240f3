package relay

import "strings"

// RouteGroup represents a collection of related routes that can be mounted together
// under a common path prefix. Middleware attached to the group runs before each
// route's own middleware.
//
// Example:
//
//	users := relay.NewRouteGroup(
//	    relay.GetRoute("/me", getMe),
//	    relay.PatchRoute("/me", updateMe, relay.Named("validate", bodyValidator)),
//	).Use(authenticate)
//	router.AddRouteGroup("/users", users)
//	// Creates: GET /users/me, PATCH /users/me
type RouteGroup struct {
	Middleware []Middleware
	Routes     []GroupedRoute
}

// NewRouteGroup creates a new route group from a variable number of grouped routes.
func NewRouteGroup(routes ...GroupedRoute) *RouteGroup {
	return &RouteGroup{
		Routes: routes,
	}
}

// Use appends middleware applied to every route in the group.
func (rg *RouteGroup) Use(middleware ...Middleware) *RouteGroup {
	rg.Middleware = append(rg.Middleware, middleware...)
	return rg
}

// Add appends more routes to the group.
func (rg *RouteGroup) Add(routes ...GroupedRoute) *RouteGroup {
	rg.Routes = append(rg.Routes, routes...)
	return rg
}

// GroupedRoute represents a single route definition within a route group,
// containing all the information needed to register the route when the group is mounted.
//
// Fields:
//   - Route: The path for this route relative to the group prefix (e.g., "/{id}", "/settings")
//   - Method: HTTP method this route handles
//   - Handler: Main function that processes requests to this route
//   - Middleware: Middleware applied after the group's middleware and before the handler
type GroupedRoute struct {
	Route      string
	Method     HttpMethod
	Handler    RouteHandler
	Middleware []Middleware
}

func groupedRoute(method HttpMethod, path string, handler RouteHandlerFn, middleware []Middleware) GroupedRoute {
	gr := GroupedRoute{
		Route:      path,
		Method:     method,
		Middleware: middleware,
	}
	if handler != nil {
		gr.Handler = handler
	}
	return gr
}

// GetRoute creates a GET route configuration for use in route groups.
func GetRoute(path string, handler RouteHandlerFn, middleware ...Middleware) GroupedRoute {
	return groupedRoute(Get, path, handler, middleware)
}

// PostRoute creates a POST route configuration for use in route groups.
func PostRoute(path string, handler RouteHandlerFn, middleware ...Middleware) GroupedRoute {
	return groupedRoute(Post, path, handler, middleware)
}

// PutRoute creates a PUT route configuration for use in route groups.
func PutRoute(path string, handler RouteHandlerFn, middleware ...Middleware) GroupedRoute {
	return groupedRoute(Put, path, handler, middleware)
}

// PatchRoute creates a PATCH route configuration for use in route groups.
func PatchRoute(path string, handler RouteHandlerFn, middleware ...Middleware) GroupedRoute {
	return groupedRoute(Patch, path, handler, middleware)
}

// DeleteRoute creates a DELETE route configuration for use in route groups.
func DeleteRoute(path string, handler RouteHandlerFn, middleware ...Middleware) GroupedRoute {
	return groupedRoute(Delete, path, handler, middleware)
}

// JoinPath joins a group prefix and a route path with exactly one slash
// between them. A route of "/" or "" addresses the prefix itself.
func JoinPath(prefix string, route string) string {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	route = strings.TrimPrefix(route, "/")
	if route == "" && prefix != "/" {
		return strings.TrimSuffix(prefix, "/")
	}
	return prefix + route
}

// AddRouteGroup registers all routes from a RouteGroup under a common prefix.
// Every route is validated before any is registered; a duplicate found while
// registering stops the mount and is returned.
func (self *Router) AddRouteGroup(prefix string, rg *RouteGroup) error {
	routes := make([]Route, 0, len(rg.Routes))
	for _, gr := range rg.Routes {
		middleware := make([]Middleware, 0, len(rg.Middleware)+len(gr.Middleware))
		middleware = append(middleware, rg.Middleware...)
		middleware = append(middleware, gr.Middleware...)
		route, err := NewRoute(gr.Method, JoinPath(prefix, gr.Route), gr.Handler, middleware...)
		if err != nil {
			return err
		}
		routes = append(routes, route)
	}
	for _, route := range routes {
		if err := self.Register(route); err != nil {
			return err
		}
	}
	return nil
}
