package relay

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies a request-time failure. The kind alone decides the
// status code of the translated response.
type FailureKind string

const (
	KindNotFound         FailureKind = "NotFound"
	KindValidationFailed FailureKind = "ValidationFailed"
	KindUnauthorized     FailureKind = "Unauthorized"
	KindForbidden        FailureKind = "Forbidden"
	KindConflict         FailureKind = "Conflict"
	KindPayloadTooLarge  FailureKind = "PayloadTooLarge"
	KindRateLimited      FailureKind = "RateLimited"
	KindCanceled         FailureKind = "Canceled"
	KindInternalError    FailureKind = "InternalError"
)

// internalMessage is the only message an InternalError ever sends to a client.
const internalMessage = "An error occurred and your request could not be completed."

// ErrInvalidChainUsage is wrapped by the failure returned when a middleware
// calls its continuation more than once.
var ErrInvalidChainUsage = errors.New("relay: continuation invoked more than once")

// ErrNoResponse is wrapped by the failure produced when a handler returns
// neither a response nor an error.
var ErrNoResponse = errors.New("relay: handler returned no response")

// Failure is the error value links return instead of a response. Any link in
// a chain may produce one; the Dispatcher hands it to the ErrorTranslator.
//
// Fields:
//   - Kind: Classification used to pick the status code
//   - Message: Human-readable description, sent to the client unless Kind is InternalError
//   - Detail: Optional structured detail (field errors, method/path), JSON-encoded into the body
type Failure struct {
	Kind    FailureKind
	Message string
	Detail  any
	cause   error
}

func (f *Failure) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.cause
}

// WithDetail returns a copy of the failure carrying the given detail.
func (f *Failure) WithDetail(detail any) *Failure {
	c := *f
	c.Detail = detail
	return &c
}

// Fail builds a failure of the given kind.
func Fail(kind FailureKind, message string) *Failure {
	return &Failure{Kind: kind, Message: message}
}

// Wrap builds a failure of the given kind that keeps err as its cause.
func Wrap(kind FailureKind, message string, err error) *Failure {
	return &Failure{Kind: kind, Message: message, cause: err}
}

func NotFoundFailure(message string) *Failure {
	return Fail(KindNotFound, message)
}

func ValidationFailure(message string, detail any) *Failure {
	return &Failure{Kind: KindValidationFailed, Message: message, Detail: detail}
}

func UnauthorizedFailure(message string) *Failure {
	return Fail(KindUnauthorized, message)
}

func ForbiddenFailure(message string) *Failure {
	return Fail(KindForbidden, message)
}

func ConflictFailure(message string) *Failure {
	return Fail(KindConflict, message)
}

// InternalFailure wraps an unexpected error. Its cause is logged, never sent.
func InternalFailure(err error) *Failure {
	return Wrap(KindInternalError, internalMessage, err)
}

// RouteNotFound is the failure Router.Match produces when nothing matches.
type RouteNotFound struct {
	Method HttpMethod `json:"method"`
	Path   string     `json:"path"`
}

// FailureConverter is implemented by errors from other layers (such as the
// document store) that know which failure they correspond to.
type FailureConverter interface {
	Failure() *Failure
}

// AsFailure converts any error into a *Failure. Errors that already are (or
// wrap) a *Failure keep their kind, a FailureConverter picks its own, context
// cancellation becomes Canceled and anything else becomes InternalError.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	var conv FailureConverter
	if errors.As(err, &conv) {
		if f := conv.Failure(); f != nil {
			return f
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindCanceled, "Request canceled", err)
	}
	return InternalFailure(err)
}

// StatusForFailure maps a failure to its response status.
func StatusForFailure(f *Failure) StatusCode {
	switch f.Kind {
	case KindNotFound:
		return StatusNotFound
	case KindValidationFailed:
		return StatusBadRequest
	case KindUnauthorized:
		return StatusUnauthorized
	case KindForbidden:
		return StatusForbidden
	case KindConflict:
		return StatusConflict
	case KindPayloadTooLarge:
		return StatusPayloadTooLarge
	case KindRateLimited:
		return StatusTooManyRequests
	case KindCanceled:
		if errors.Is(f, context.DeadlineExceeded) {
			return StatusGatewayTimeout
		}
		return StatusClientClosedRequest
	default:
		return StatusInternalServerError
	}
}

// DuplicateRouteError is returned by Router.Register when a route with the
// same method and path shape already exists. It is a startup error only.
type DuplicateRouteError struct {
	Method   HttpMethod
	Path     string
	Existing string
}

func (e *DuplicateRouteError) Error() string {
	return fmt.Sprintf("relay: duplicate route %s %s (conflicts with %s %s)", e.Method, e.Path, e.Method, e.Existing)
}

// ErrorTranslator converts a failure into the response sent to the client.
type ErrorTranslator interface {
	Translate(rc *RequestContext, err error) *HttpResponse
}

// ErrorTranslatorFn adapts a function to the ErrorTranslator interface.
type ErrorTranslatorFn func(rc *RequestContext, err error) *HttpResponse

func (fn ErrorTranslatorFn) Translate(rc *RequestContext, err error) *HttpResponse {
	return fn(rc, err)
}

// errorResponse is the JSON body of every translated failure.
//
// JSON Output Example:
//
//	{"status": false, "kind": "Conflict", "message": "Email already registered"}
type errorResponse struct {
	Status  bool        `json:"status"`
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Detail  any         `json:"detail,omitempty"`
}

// DefaultErrorTranslator renders failures as JSON bodies. Internal errors are
// logged with their cause and answered with a generic message so nothing from
// the cause leaks to the client.
var DefaultErrorTranslator ErrorTranslator = ErrorTranslatorFn(func(rc *RequestContext, err error) *HttpResponse {
	f := AsFailure(err)
	body := errorResponse{Status: false, Kind: f.Kind, Message: f.Message, Detail: f.Detail}
	if f.Kind == KindInternalError {
		if rc != nil {
			rc.Logger().WithError(err).Error("request failed")
		}
		body.Message = internalMessage
		body.Detail = nil
	}
	res := JsonResponse(body)
	res.StatusCode = StatusForFailure(f)
	return res
})
