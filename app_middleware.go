package relay

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// RequestIDHeader carries the request id in and out.
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is the attribute key RequestID stores the id under.
	RequestIDKey = "relay.request_id"
)

// RequestID honors an inbound X-Request-ID or generates one, stores it in the
// context, adds it to the request logger and echoes it on the response.
func RequestID() Middleware {
	return Named("request-id", MiddlewareFn(func(rc *RequestContext, next Next) (*HttpResponse, error) {
		id := rc.Header(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		rc.Set(RequestIDKey, id)
		rc.AddLogField("request_id", id)

		res, err := next()
		if res != nil {
			res.SetHeader(RequestIDHeader, id)
		}
		return res, err
	}))
}

// AccessLog writes one line per request once the rest of the chain has run.
//
// Levels:
//   - 0: Disabled
//   - 1: Method, path, status and duration
//   - 2: Also route pattern, client address, body sizes and the producing link
func AccessLog(level int) Middleware {
	return Named("access-log", MiddlewareFn(func(rc *RequestContext, next Next) (*HttpResponse, error) {
		if level <= 0 {
			return next()
		}
		start := time.Now()
		res, err := next()

		status := StatusOK
		if err != nil {
			status = StatusForFailure(AsFailure(err))
		} else if res != nil {
			status = res.StatusCode
		}
		entry := rc.Logger().WithFields(logrus.Fields{
			"status":   int(status),
			"duration": time.Since(start).String(),
		})
		if level >= 2 {
			fields := logrus.Fields{
				"ip":       rc.Request.IpAddress,
				"req_size": len(rc.Request.Body),
				"producer": rc.ProducerName(),
			}
			if route := rc.Route(); route != nil {
				fields["route"] = route.Path()
			}
			if res != nil {
				if res.Reader != nil {
					fields["res_size"] = res.ReaderSize
				} else {
					fields["res_size"] = len(res.Body)
				}
			}
			entry = entry.WithFields(fields)
		}
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Info("request")
		return res, err
	}))
}

// Timeout bounds the remaining chain with a deadline. The Dispatcher checks
// the context before each link, so an expired deadline stops the chain with a
// Canceled failure (504); handlers doing blocking work should pass
// rc.Context() along so they stop too.
func Timeout(d time.Duration) Middleware {
	return Named("timeout", MiddlewareFn(func(rc *RequestContext, next Next) (*HttpResponse, error) {
		if d <= 0 {
			return next()
		}
		parent := rc.Context()
		ctx, cancel := context.WithTimeout(parent, d)
		defer cancel()
		rc.SetContext(ctx)
		defer rc.SetContext(parent)
		return next()
	}))
}

// BodyLimit rejects request bodies larger than n bytes with PayloadTooLarge.
func BodyLimit(n int64) Middleware {
	return Named("body-limit", MiddlewareFn(func(rc *RequestContext, next Next) (*HttpResponse, error) {
		if n > 0 && int64(len(rc.Request.Body)) > n {
			return nil, Fail(KindPayloadTooLarge, "Request body is too large").
				WithDetail(map[string]int64{"limit": n})
		}
		return next()
	}))
}

// RequireHeader short-circuits with Unauthorized when the header is absent.
func RequireHeader(name string) Middleware {
	return Named("require-"+name, MiddlewareFn(func(rc *RequestContext, next Next) (*HttpResponse, error) {
		if rc.Header(name) == "" {
			return nil, UnauthorizedFailure("Missing " + name + " header")
		}
		return next()
	}))
}
