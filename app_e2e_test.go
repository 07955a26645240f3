package relay

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApplication(t *testing.T) (*Application, *int) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	handled := 0
	router := NewRouter()
	router.MustHandleFunc(Get, "/users/{id}", func(rc *RequestContext) (*HttpResponse, error) {
		handled++
		return JsonResponse(map[string]string{"id": rc.Param("id")}), nil
	}, RequireHeader("X-Auth"))
	router.MustHandleFunc(Post, "/echo", func(rc *RequestContext) (*HttpResponse, error) {
		return JsonResponse(map[string]string{"name": rc.JSON().Get("name").String()}), nil
	})
	app := NewInlineApplication("0", router, logger, context.Background())
	app.SilentMode = true
	app.MaxBodyBytes = 64
	return app, &handled
}

func get(t *testing.T, srv *httptest.Server, path string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, body
}

func TestEndToEnd(t *testing.T) {
	app, handled := newTestApplication(t)
	srv := httptest.NewServer(app)
	defer srv.Close()

	res, body := get(t, srv, "/users/42", map[string]string{"X-Auth": "token"})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"id":"42"}`, string(body))
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	assert.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, 1, *handled)

	res, body = get(t, srv, "/users/42", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Contains(t, string(body), `"kind":"Unauthorized"`)
	assert.Equal(t, 1, *handled)

	res, body = get(t, srv, "/unknown/path", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, string(body), `"kind":"NotFound"`)
	assert.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
}

func TestEndToEndBody(t *testing.T) {
	app, _ := newTestApplication(t)
	srv := httptest.NewServer(app)
	defer srv.Close()

	res, err := srv.Client().Post(srv.URL+"/echo", "application/json", strings.NewReader(`{"name":"ada"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"name":"ada"}`, string(body))

	res, err = srv.Client().Post(srv.URL+"/echo", "application/json", strings.NewReader(strings.Repeat("x", 65)))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, res.StatusCode)
}

func TestPreflight(t *testing.T) {
	app, handled := newTestApplication(t)
	app.CorsOrigin = "https://example.com"
	srv := httptest.NewServer(app)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/users/42", nil)
	require.NoError(t, err)
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "https://example.com", res.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, PUT, POST, DELETE, HEAD, PATCH", res.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, 0, *handled)
}

func TestUnknownMethod(t *testing.T) {
	app, _ := newTestApplication(t)
	srv := httptest.NewServer(app)
	defer srv.Close()

	req, err := http.NewRequest("BREW", srv.URL+"/users/42", nil)
	require.NoError(t, err)
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	app, _ := newTestApplication(t)
	app.MetricsPath = "/metrics"
	app.Use(Metrics(app.Registry))
	srv := httptest.NewServer(app)
	defer srv.Close()

	get(t, srv, "/users/1", map[string]string{"X-Auth": "x"})
	res, body := get(t, srv, "/metrics", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `relay_http_requests_total{method="GET",route="/users/{id}",status="200"} 1`)
}

func TestConcurrentRequestsKeepTheirParams(t *testing.T) {
	app, _ := newTestApplication(t)
	app.WorkerCount = 4
	srv := httptest.NewServer(app)
	defer srv.Close()

	ids := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	results := make(chan [2]string, len(ids))
	for _, id := range ids {
		go func(id string) {
			req, _ := http.NewRequest(http.MethodGet, srv.URL+"/users/"+id, nil)
			req.Header.Set("X-Auth", "x")
			res, err := srv.Client().Do(req)
			if err != nil {
				results <- [2]string{id, err.Error()}
				return
			}
			defer res.Body.Close()
			var out map[string]string
			_ = json.NewDecoder(res.Body).Decode(&out)
			results <- [2]string{id, out["id"]}
		}(id)
	}
	for range ids {
		r := <-results
		assert.Equal(t, r[0], r[1])
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	app, _ := newTestApplication(t)
	ctx, cancel := context.WithCancel(context.Background())
	app.Context = ctx

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- app.Serve(l) }()

	res, err := http.Get("http://" + l.Addr().String() + "/users/7")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
