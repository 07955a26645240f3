package relay

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathListFromString(t *testing.T) {
	tests := []struct {
		name string
		path string
		want []string
	}{
		{
			name: "empty",
			path: "/",
			want: []string{""},
		},
		{
			name: "single",
			path: "/hello",
			want: []string{"hello"},
		},
		{
			name: "multiple with slash",
			path: "/hello/world/test/",
			want: []string{"hello", "world", "test"},
		},
		{
			name: "multiple",
			path: "/hello/world/test",
			want: []string{"hello", "world", "test"},
		},
		{
			name: "identical slashes",
			path: "/hello/test/test",
			want: []string{"hello", "test", "test"},
		},
		{
			name: "double slash",
			path: "/hello//test",
			want: []string{"hello", "", "test"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PathListFromString(tt.path))
		})
	}
}

func TestParsePathPattern(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		shape  string
		params []string
		ok     bool
	}{
		{"root", "/", "/", []string{}, true},
		{"literal", "/users/me", "/users/me", []string{}, true},
		{"braces", "/users/{id}", "/users/*", []string{"id"}, true},
		{"colon", "/users/:id/files/{file}", "/users/*/files/*", []string{"id", "file"}, true},
		{"no leading slash", "users", "", nil, false},
		{"empty", "", "", nil, false},
		{"empty colon", "/users/:", "", nil, false},
		{"unclosed brace", "/users/{id", "", nil, false},
		{"empty braces", "/users/{}", "", nil, false},
		{"duplicate param", "/a/{id}/b/{id}", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePathPattern(tt.path)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidPattern)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.shape, p.Shape())
			assert.Equal(t, tt.params, p.Params())
			assert.Equal(t, tt.path, p.String())
		})
	}
}

func ok(body string) RouteHandlerFn {
	return func(rc *RequestContext) (*HttpResponse, error) {
		return StringResponse(body), nil
	}
}

func TestRouterMatch(t *testing.T) {
	router := NewRouter()
	router.MustHandleFunc(Get, "/", ok("root"))
	router.MustHandleFunc(Get, "/users/me", ok("me"))
	router.MustHandleFunc(Get, "/users/{id}", ok("user"))
	router.MustHandleFunc(Post, "/users/{id}", ok("post"))
	router.MustHandleFunc(Get, "/users/:id/files/{file}", ok("file"))

	tests := []struct {
		method HttpMethod
		path   string
		route  string
		params map[string]string
	}{
		{Get, "/", "/", map[string]string{}},
		{Get, "/users/me", "/users/me", map[string]string{}},
		{Get, "/users/42", "/users/{id}", map[string]string{"id": "42"}},
		{Get, "/users/42/", "/users/{id}", map[string]string{"id": "42"}},
		{Post, "/users/7", "/users/{id}", map[string]string{"id": "7"}},
		{Get, "/users/7/files/a.txt", "/users/:id/files/{file}", map[string]string{"id": "7", "file": "a.txt"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.method)+" "+tt.path, func(t *testing.T) {
			m, err := router.Match(tt.method, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.route, m.Route.Path())
			assert.Equal(t, tt.method, m.Route.Method())
			assert.Equal(t, tt.params, m.Params)
		})
	}
}

func TestRouterNoMatch(t *testing.T) {
	router := NewRouter()
	router.MustHandleFunc(Get, "/users/{id}", ok("user"))

	for _, tc := range []struct {
		method HttpMethod
		path   string
	}{
		{Get, "/users"},
		{Get, "/users/1/extra"},
		{Get, "/users//"},
		{Delete, "/users/1"},
		{Get, "/unknown/path"},
	} {
		_, err := router.Match(tc.method, tc.path)
		var f *Failure
		require.ErrorAs(t, err, &f, tc.path)
		assert.Equal(t, KindNotFound, f.Kind)
		assert.Equal(t, RouteNotFound{Method: tc.method, Path: tc.path}, f.Detail)
	}
}

func TestRouterEarliestRegistrationWins(t *testing.T) {
	router := NewRouter()
	router.MustHandleFunc(Get, "/users/{id}", ok("param"))
	router.MustHandleFunc(Get, "/users/me", ok("literal"))

	m, err := router.Match(Get, "/users/me")
	require.NoError(t, err)
	assert.Equal(t, "/users/{id}", m.Route.Path())
	assert.Equal(t, map[string]string{"id": "me"}, m.Params)
}

func TestRouterParamsAreFresh(t *testing.T) {
	router := NewRouter()
	router.MustHandleFunc(Get, "/users/{id}", ok("user"))
	first, err := router.Match(Get, "/users/1")
	require.NoError(t, err)
	first.Params["id"] = "changed"
	second, err := router.Match(Get, "/users/1")
	require.NoError(t, err)
	assert.Equal(t, "1", second.Params["id"])
	assert.Same(t, first.Route, second.Route)
}

func TestRouterDuplicates(t *testing.T) {
	router := NewRouter()
	require.NoError(t, router.HandleFunc(Get, "/users/{id}", ok("a")))

	err := router.HandleFunc(Get, "/users/:uid", ok("b"))
	var dup *DuplicateRouteError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "/users/{id}", dup.Existing)

	// Same shape on another method is fine.
	require.NoError(t, router.HandleFunc(Put, "/users/{id}", ok("c")))
	assert.Len(t, router.Routes(), 2)

	assert.Panics(t, func() { router.MustHandleFunc(Get, "/users/{x}", ok("d")) })
}

func TestRouterRejectsBadRoutes(t *testing.T) {
	router := NewRouter()
	assert.Error(t, router.HandleFunc(Get, "/a", nil))
	assert.Error(t, router.HandleFunc(HttpMethod("BREW"), "/a", ok("")))
	assert.ErrorIs(t, router.HandleFunc(Get, "no-slash", ok("")), ErrInvalidPattern)
	assert.Error(t, router.HandleFunc(Get, "/a", ok(""), nil))
	assert.Empty(t, router.Routes())

	err := router.Register(Route{})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidPattern))
}

func TestRouteMiddlewareIsCopied(t *testing.T) {
	mw := []Middleware{Named("a", MiddlewareFn(func(rc *RequestContext, next Next) (*HttpResponse, error) {
		return next()
	}))}
	route, err := NewRoute(Get, "/", ok(""), mw...)
	require.NoError(t, err)
	mw[0] = nil
	require.Len(t, route.Middleware(), 1)
	assert.NotNil(t, route.Middleware()[0])
}

func TestRouteGroup(t *testing.T) {
	groupMW := Named("group", MiddlewareFn(func(rc *RequestContext, next Next) (*HttpResponse, error) {
		return next()
	}))
	routeMW := Named("route", MiddlewareFn(func(rc *RequestContext, next Next) (*HttpResponse, error) {
		return next()
	}))
	router := NewRouter()
	group := NewRouteGroup(
		GetRoute("/", ok("list")),
		GetRoute("/{id}", ok("get"), routeMW),
	).Use(groupMW)
	require.NoError(t, router.AddRouteGroup("/items/", group))

	var buf bytes.Buffer
	router.PrintRoutes(&buf)
	assert.Equal(t, "GET /items [group]\nGET /items/{id} [group, route]\n", buf.String())

	// A failing group leaves nothing half-registered.
	bad := NewRouteGroup(GetRoute("/new", ok("")), GetRoute("/{bad", ok("")))
	assert.Error(t, router.AddRouteGroup("/x", bad))
	assert.Len(t, router.Routes(), 2)
}

func TestJoinPath(t *testing.T) {
	tests := []struct {
		prefix, route, want string
	}{
		{"/users", "/", "/users"},
		{"/users/", "/{id}", "/users/{id}"},
		{"/users", "me", "/users/me"},
		{"", "/health", "/health"},
		{"/", "/", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, JoinPath(tt.prefix, tt.route), tt.prefix+" + "+tt.route)
	}
}

func TestGlobalMiddlewareSnapshot(t *testing.T) {
	router := NewRouter()
	router.MustHandleFunc(Get, "/", ok(""))
	first := Named("first", MiddlewareFn(func(rc *RequestContext, next Next) (*HttpResponse, error) { return next() }))
	router.Use(first, nil)

	m, err := router.Match(Get, "/")
	require.NoError(t, err)
	router.Use(first)
	assert.Len(t, m.Global(), 1)
	assert.Len(t, router.Global(), 2)
}
