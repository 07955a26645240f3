package relay

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// Dispatcher turns a normalized request into a response. For every request it
// matches a route, builds a fresh RequestContext, composes the chain from the
// global and route middleware, runs it and translates any failure.
//
// Dispatch never returns nil, and a panic in any link is recovered here and
// answered with an InternalError response.
type Dispatcher struct {
	router     *Router
	translator ErrorTranslator
	logger     *logrus.Logger
}

// NewDispatcher creates a dispatcher over router. A nil logger discards output.
func NewDispatcher(router *Router, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = discardLogger()
	}
	return &Dispatcher{
		router:     router,
		translator: DefaultErrorTranslator,
		logger:     logger,
	}
}

// SetErrorTranslator replaces the translator used for failures. Nil restores
// DefaultErrorTranslator.
func (d *Dispatcher) SetErrorTranslator(t ErrorTranslator) {
	if t == nil {
		t = DefaultErrorTranslator
	}
	d.translator = t
}

func (d *Dispatcher) Router() *Router {
	return d.router
}

// Dispatch matches req and executes its chain.
func (d *Dispatcher) Dispatch(ctx context.Context, req *HttpRequest) *HttpResponse {
	rc := NewRequestContext(ctx, req, d.logger)
	match, err := d.router.Match(req.Method, req.Path)
	if err != nil {
		return d.finish(rc, nil, err)
	}
	return d.Execute(rc, match)
}

// Reject answers a request that failed before it could be dispatched, such
// as one whose body was too large to read.
func (d *Dispatcher) Reject(ctx context.Context, req *HttpRequest, err error) *HttpResponse {
	return d.finish(NewRequestContext(ctx, req, d.logger), nil, err)
}

// Execute runs the chain of a matched route against rc: global middleware,
// then route middleware, then the handler.
func (d *Dispatcher) Execute(rc *RequestContext, match *RouteMatch) (res *HttpResponse) {
	route := match.Route
	links := make([]Middleware, 0, len(match.global)+len(route.middleware))
	links = append(links, match.global...)
	links = append(links, route.middleware...)

	rc.route = route
	rc.links = links
	if match.Params != nil {
		rc.params = match.Params
	}
	rc.setState(StateMatched)

	defer func() {
		if p := recover(); p != nil {
			rc.Logger().WithFields(logrus.Fields{
				"panic": p,
				"stack": string(debug.Stack()),
			}).Error("recovered panic in request chain")
			res = d.finish(rc, nil, InternalFailure(fmt.Errorf("panic: %v", p)))
		}
	}()

	rc.setState(StateRunning)
	c := &chain{rc: rc, links: links, handler: route.handler, violator: -1}
	res, err := c.run(0)
	if c.violation != nil {
		rc.producer = c.violator
		return d.finish(rc, nil, c.violation)
	}
	if err == nil && res == nil {
		err = InternalFailure(ErrNoResponse)
	}
	if err == nil && rc.producer < len(links) {
		rc.setState(StateShortCircuited)
	}
	return d.finish(rc, res, err)
}

func (d *Dispatcher) finish(rc *RequestContext, res *HttpResponse, err error) *HttpResponse {
	if err != nil {
		f := AsFailure(err)
		rc.failure = f
		rc.setState(StateFailed)
		res = d.translator.Translate(rc, f)
		if res == nil {
			res = DefaultErrorTranslator.Translate(rc, f)
		}
	}
	if res.Headers == nil {
		res.Headers = Headers{}
	}
	rc.setState(StateResponseReady)
	return res
}

// chain executes one request's links in order. Each link gets a continuation
// that may run at most once and only while the link is still executing.
type chain struct {
	rc      *RequestContext
	links   []Middleware
	handler RouteHandler

	violation *Failure
	violator  int
}

func (c *chain) run(i int) (*HttpResponse, error) {
	if err := c.rc.ctx.Err(); err != nil {
		c.rc.producer = i
		return nil, Wrap(KindCanceled, "Request canceled", err)
	}
	if i == len(c.links) {
		c.rc.producer = i
		return c.handler.Serve(c.rc)
	}

	link := c.links[i]
	called, returned := false, false
	next := func() (*HttpResponse, error) {
		if called || returned {
			f := InternalFailure(fmt.Errorf("%w (%s at position %d)", ErrInvalidChainUsage, middlewareName(link), i))
			if c.violation == nil {
				c.violation = f
				c.violator = i
			}
			return nil, f
		}
		called = true
		return c.run(i + 1)
	}
	res, err := link.Handle(c.rc, next)
	returned = true
	if !called {
		c.rc.producer = i
	}
	return res, err
}
