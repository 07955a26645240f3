// Package relay is the HTTP routing and middleware-composition core of the
// relay backend. It associates (method, path) pairs with a handler and a chain
// of cross-cutting middleware, runs that chain once per request with defined
// ordering and short-circuiting, and turns failures into JSON responses.
//
// The core never touches the wire: net/http parses requests, RequestFromHTTP
// normalizes them and HttpResponse.WriteTo sends the result.
//
// Key Features:
//   - Copy-on-write route table with lock-free matching
//   - Single-use continuations so no link runs twice
//   - Typed failures with a fixed kind-to-status mapping
//   - Panic recovery, cooperative cancellation and deadlines
//   - Bounded in-flight requests, CORS, graceful shutdown
//
// Example usage:
//
//	router := relay.NewRouter()
//	router.Use(relay.RequestID(), relay.AccessLog(1))
//	router.MustHandleFunc(relay.Get, "/users/{id}", getUser, relay.RequireHeader("X-Auth"))
//
//	app := relay.NewApplication("8080", router, logrus.New())
//	if err := app.Start(); err != nil {
//	    log.Fatal(err)
//	}
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Application is the HTTP server hosting a Router.
//
// Fields:
//   - Port: The port the server listens on (e.g., "8080")
//   - Router: Routes and global middleware
//   - Dispatcher: Executes chains; built from Router and Logger when nil
//   - CorsOrigin: CORS Access-Control-Allow-Origin header value (default: "*")
//   - CorsHeaders: CORS Access-Control-Allow-Headers header value (default: "*")
//   - CorsMethods: CORS Access-Control-Allow-Methods header value (default: all common methods)
//   - SilentMode: When true, suppresses the startup banner and route listing
//   - Context: Application context; cancelling it shuts the server down
//   - WorkerCount: Maximum number of requests processed at once (0 = unbounded)
//   - MaxBodyBytes: Largest accepted request body (0 = unbounded)
//   - LogRequestsLevel: Connection logging verbosity (0=none, 1=basic, 2=detailed)
//   - Logger: Application logger
//   - Registry: Prometheus registry served at MetricsPath
//   - MetricsPath: Path the registry is exposed on ("" disables it)
//   - ShutdownTimeout: How long in-flight requests get to finish on shutdown
type Application struct {
	Port             string
	Router           *Router
	Dispatcher       *Dispatcher
	CorsOrigin       string
	CorsHeaders      string
	CorsMethods      string
	SilentMode       bool
	Context          context.Context
	WorkerCount      int64
	MaxBodyBytes     int64
	LogRequestsLevel int
	Logger           *logrus.Logger
	Registry         *prometheus.Registry
	MetricsPath      string
	ShutdownTimeout  time.Duration

	once    sync.Once
	slots   *semaphore.Weighted
	metrics http.Handler
}

// NewInlineApplication creates an Application bound to ctx. Cancelling ctx
// stops the server.
func NewInlineApplication(port string, router *Router, logger *logrus.Logger, ctx context.Context) *Application {
	if logger == nil {
		logger = logrus.New()
	}
	return &Application{
		Port:            port,
		Router:          router,
		CorsOrigin:      "*",
		CorsHeaders:     "*",
		CorsMethods:     "GET, PUT, POST, DELETE, HEAD, PATCH",
		Context:         ctx,
		WorkerCount:     10,
		Logger:          logger,
		Registry:        prometheus.NewRegistry(),
		ShutdownTimeout: 15 * time.Second,
	}
}

// NewApplication creates an Application that shuts down gracefully on SIGINT
// or SIGTERM.
func NewApplication(port string, router *Router, logger *logrus.Logger) *Application {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return NewInlineApplication(port, router, logger, ctx)
}

// Use appends global middleware to the application's router.
func (a *Application) Use(middleware ...Middleware) {
	a.Router.Use(middleware...)
}

// AddRouteGroup mounts rg under prefix on the application's router.
func (a *Application) AddRouteGroup(prefix string, rg *RouteGroup) error {
	return a.Router.AddRouteGroup(prefix, rg)
}

func (a *Application) setup() {
	a.once.Do(func() {
		if a.Logger == nil {
			a.Logger = logrus.New()
		}
		if a.Context == nil {
			a.Context = context.Background()
		}
		if a.Router == nil {
			a.Router = NewRouter()
		}
		if a.Dispatcher == nil {
			a.Dispatcher = NewDispatcher(a.Router, a.Logger)
		}
		if a.WorkerCount > 0 {
			a.slots = semaphore.NewWeighted(a.WorkerCount)
		}
		if a.Registry != nil {
			a.metrics = promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
		}
	})
}

// ServeHTTP processes one request:
//  1. Serves the metrics endpoint when enabled
//  2. Answers CORS preflight OPTIONS requests directly
//  3. Waits for a free slot when WorkerCount bounds concurrency
//  4. Normalizes the request and dispatches it
//  5. Applies CORS headers and writes the response
func (a *Application) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.setup()

	if a.MetricsPath != "" && a.metrics != nil && r.Method == http.MethodGet && r.URL.Path == a.MetricsPath {
		a.metrics.ServeHTTP(w, r)
		return
	}

	if r.Method == http.MethodOptions {
		response := NewHttpResponse()
		response.ApplyCors(a.CorsOrigin, a.CorsHeaders, a.CorsMethods)
		a.write(w, response)
		return
	}

	if a.LogRequestsLevel > 1 {
		a.Logger.WithField("ip", r.RemoteAddr).Debugf("Dispatching %s %s", r.Method, r.URL.Path)
	}

	ctx := r.Context()
	if a.slots != nil {
		if err := a.slots.Acquire(ctx, 1); err != nil {
			fallback := NewHttpRequest(HttpMethod(r.Method), r.URL.RequestURI())
			a.write(w, a.Dispatcher.Reject(ctx, fallback, err))
			return
		}
		defer a.slots.Release(1)
	}

	var response *HttpResponse
	request, err := RequestFromHTTP(r, a.MaxBodyBytes)
	if err != nil {
		fallback := NewHttpRequest(HttpMethod(r.Method), r.URL.RequestURI())
		fallback.IpAddress = clientIP(r.RemoteAddr)
		response = a.Dispatcher.Reject(ctx, fallback, err)
	} else {
		response = a.Dispatcher.Dispatch(ctx, request)
	}
	response.ApplyCors(a.CorsOrigin, a.CorsHeaders, a.CorsMethods)
	a.write(w, response)
}

func (a *Application) write(w http.ResponseWriter, response *HttpResponse) {
	if err := response.WriteTo(w); err != nil {
		a.Logger.WithError(err).Debug("could not write response")
	}
}

// Start listens on Port and blocks until the application context is cancelled
// or the listener fails.
func (a *Application) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", a.Port))
	if err != nil {
		return err
	}
	return a.Serve(listener)
}

// Serve accepts connections on l until the application context is cancelled,
// then waits up to ShutdownTimeout for in-flight requests to finish.
func (a *Application) Serve(l net.Listener) error {
	a.setup()
	if !a.SilentMode {
		a.Logger.Infof("Starting server on %s.", l.Addr())
		fmt.Println("Registered routes:")
		a.Router.PrintRoutes(os.Stdout)
	}

	server := &http.Server{
		Handler:           a,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		errs <- server.Serve(l)
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-a.Context.Done():
		a.Logger.Info("Stopping relay server...")
		timeout := a.ShutdownTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return server.Shutdown(ctx)
	}
}
