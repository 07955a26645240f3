package relay

import "net/http"

type StatusCode int

const (
	StatusOK                  StatusCode = 200
	StatusCreated             StatusCode = 201
	StatusNoContent           StatusCode = 204
	StatusBadRequest          StatusCode = 400
	StatusUnauthorized        StatusCode = 401
	StatusForbidden           StatusCode = 403
	StatusNotFound            StatusCode = 404
	StatusConflict            StatusCode = 409
	StatusPayloadTooLarge     StatusCode = 413
	StatusTooManyRequests     StatusCode = 429
	StatusClientClosedRequest StatusCode = 499
	StatusInternalServerError StatusCode = 500
	StatusGatewayTimeout      StatusCode = 504
)

var StatusCodeDescriptions = map[StatusCode]string{
	StatusOK:                  "OK",
	StatusCreated:             "Created",
	StatusNoContent:           "No Content",
	StatusBadRequest:          "Bad Request",
	StatusUnauthorized:        "Unauthorized",
	StatusForbidden:           "Forbidden",
	StatusNotFound:            "Not Found",
	StatusConflict:            "Conflict",
	StatusPayloadTooLarge:     "Payload Too Large",
	StatusTooManyRequests:     "Too Many Requests",
	StatusClientClosedRequest: "Client Closed Request",
	StatusInternalServerError: "Internal Server Error",
	StatusGatewayTimeout:      "Gateway Timeout",
}

// String returns the reason phrase for the status code.
func (s StatusCode) String() string {
	if d, ok := StatusCodeDescriptions[s]; ok {
		return d
	}
	return http.StatusText(int(s))
}
