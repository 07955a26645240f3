package relay

import (
	"io"
	"net"
	"net/http"
	"strings"
)

// HttpRequest is the normalized request handed to the Dispatcher by the
// server integration layer. The core never sees wire bytes.
type HttpRequest struct {
	Path        string
	QueryString string
	Method      HttpMethod
	Body        []byte
	Headers     Headers
	IpAddress   string
}

// NewHttpRequest builds a request with empty headers, mostly for tests and
// for callers that do not sit behind net/http.
func NewHttpRequest(method HttpMethod, target string) *HttpRequest {
	path, query, _ := strings.Cut(target, "?")
	return &HttpRequest{
		Path:        path,
		QueryString: query,
		Method:      method,
		Headers:     Headers{},
	}
}

// RequestFromHTTP normalizes a net/http request. Bodies larger than maxBody
// bytes (when maxBody > 0) yield a PayloadTooLarge failure; an unknown verb
// yields a NotFound failure since no route can match it.
func RequestFromHTTP(r *http.Request, maxBody int64) (*HttpRequest, error) {
	method, ok := ParseHttpMethod(r.Method)
	if !ok {
		return nil, NotFoundFailure("No route for method " + r.Method).
			WithDetail(RouteNotFound{Method: HttpMethod(r.Method), Path: r.URL.Path})
	}
	req := &HttpRequest{
		Path:        r.URL.Path,
		QueryString: r.URL.RawQuery,
		Method:      method,
		Headers:     make(Headers, len(r.Header)),
		IpAddress:   clientIP(r.RemoteAddr),
	}
	for key, values := range r.Header {
		if len(values) > 0 {
			req.Headers.Set(key, values[len(values)-1])
		}
	}
	if r.Body != nil && r.Body != http.NoBody {
		reader := io.Reader(r.Body)
		if maxBody > 0 {
			reader = io.LimitReader(r.Body, maxBody+1)
		}
		body, err := io.ReadAll(reader)
		if err != nil {
			return nil, Wrap(KindValidationFailed, "Could not read request body", err)
		}
		if maxBody > 0 && int64(len(body)) > maxBody {
			return nil, Fail(KindPayloadTooLarge, "Request body is too large")
		}
		req.Body = body
	}
	return req, nil
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
