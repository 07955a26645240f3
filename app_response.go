package relay

import (
	"encoding/json"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
)

// Headers is a header map with case-insensitive keys. Keys are stored in
// canonical MIME form, so a later Set with a differently cased key replaces
// the earlier value.
type Headers map[string]string

// Set stores a header value, replacing any previous value for the key.
func (h Headers) Set(key string, value string) {
	h[textproto.CanonicalMIMEHeaderKey(key)] = value
}

// Get returns the value for key, or "" if absent.
func (h Headers) Get(key string) string {
	return h[textproto.CanonicalMIMEHeaderKey(key)]
}

// Lookup reports whether key is present along with its value.
func (h Headers) Lookup(key string) (string, bool) {
	v, ok := h[textproto.CanonicalMIMEHeaderKey(key)]
	return v, ok
}

// Del removes key.
func (h Headers) Del(key string) {
	delete(h, textproto.CanonicalMIMEHeaderKey(key))
}

// HttpResponse represents a complete HTTP response with headers, body, and status code.
// This struct supports both regular body responses and streaming responses for large content.
//
// Fields:
//   - StatusCode: HTTP status code using type-safe enum
//   - Headers: Case-insensitive map of HTTP response headers
//   - Body: Response content as byte array (used when Reader is nil)
//   - Reader: Source for streaming responses (optional)
//   - ReaderSize: Size of streamed content when using Reader, or -1 if unknown
type HttpResponse struct {
	StatusCode StatusCode
	Headers    Headers
	Body       []byte
	Reader     io.Reader
	ReaderSize int64
}

// NewHttpResponse creates a new HttpResponse with default values.
// Returns a response with 200 OK status and empty headers/body.
func NewHttpResponse() *HttpResponse {
	return &HttpResponse{
		StatusCode: StatusOK,
		Headers:    Headers{},
		Body:       []byte{},
	}
}

// StringResponse creates a plain text HTTP response.
// Returns a 200 OK response with "text/plain" content type.
func StringResponse(body string) *HttpResponse {
	res := NewHttpResponse()
	res.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	res.Body = []byte(body)
	return res
}

// JsonResponse creates a JSON HTTP response from any serializable Go data.
// Returns a 200 OK response with "application/json" content type. A value that
// cannot be encoded produces a 500 response instead.
func JsonResponse(body any) *HttpResponse {
	res := NewHttpResponse()
	res.Headers.Set("Content-Type", "application/json")
	encoded, err := json.Marshal(body)
	if err != nil {
		res.StatusCode = StatusInternalServerError
		res.Body = []byte(`{"status":false,"kind":"InternalError","message":"` + internalMessage + `"}`)
		return res
	}
	res.Body = encoded
	return res
}

// CreatedResponse creates a 201 Created JSON response.
func CreatedResponse(body any) *HttpResponse {
	res := JsonResponse(body)
	if res.StatusCode == StatusOK {
		res.StatusCode = StatusCreated
	}
	return res
}

// NoContentResponse creates an empty 204 response.
func NoContentResponse() *HttpResponse {
	res := NewHttpResponse()
	res.StatusCode = StatusNoContent
	return res
}

// StreamResponse creates a streaming HTTP response for large content.
// The reader is copied to the client without loading it all into memory; if it
// is an io.Closer it is closed once written.
func StreamResponse(reader io.Reader, length int64, contentType string) *HttpResponse {
	res := NewHttpResponse()
	res.Reader = reader
	res.ReaderSize = length
	if contentType != "" {
		res.Headers.Set("Content-Type", contentType)
	}
	return res
}

// SetHeader adds or updates an HTTP response header.
func (self *HttpResponse) SetHeader(key string, value string) {
	if self.Headers == nil {
		self.Headers = Headers{}
	}
	self.Headers.Set(key, value)
}

// SetStatus updates the HTTP status code for this response.
func (self *HttpResponse) SetStatus(status StatusCode) {
	self.StatusCode = status
}

// ApplyCors adds CORS headers to the response.
// Used by the Application on every response, including 404s.
func (self *HttpResponse) ApplyCors(origin string, headers string, methods string) {
	if origin == "" {
		return
	}
	self.SetHeader("Access-Control-Allow-Origin", origin)
	self.SetHeader("Access-Control-Allow-Headers", headers)
	self.SetHeader("Access-Control-Allow-Methods", methods)
}

// WriteTo sends the response through a net/http ResponseWriter.
func (self *HttpResponse) WriteTo(w http.ResponseWriter) error {
	header := w.Header()
	for key, value := range self.Headers {
		header.Set(key, value)
	}
	if self.Reader != nil {
		if closer, ok := self.Reader.(io.Closer); ok {
			defer closer.Close()
		}
		if self.ReaderSize >= 0 {
			header.Set("Content-Length", strconv.FormatInt(self.ReaderSize, 10))
		}
		w.WriteHeader(int(self.StatusCode))
		_, err := io.Copy(w, self.Reader)
		return err
	}
	if self.StatusCode != StatusNoContent {
		header.Set("Content-Length", strconv.Itoa(len(self.Body)))
	}
	w.WriteHeader(int(self.StatusCode))
	if self.StatusCode == StatusNoContent {
		return nil
	}
	_, err := w.Write(self.Body)
	return err
}
