package relay

import "strings"

// HttpMethod represents the HTTP request method/verb used for routing and handler dispatch.
// The set of methods is closed: requests carrying any other verb never reach the router.
type HttpMethod string

// HTTP method constants representing all supported request verbs.
//
// Supported methods:
//   - Get: Retrieve data, should be idempotent and safe
//   - Post: Create new resources, non-idempotent
//   - Put: Update/replace entire resources, idempotent
//   - Patch: Partial resource updates
//   - Delete: Remove resources, idempotent
//   - Head: Same as Get without a body
//   - Options: CORS preflight, answered by the Application before routing
const (
	Get     HttpMethod = "GET"
	Post    HttpMethod = "POST"
	Put     HttpMethod = "PUT"
	Patch   HttpMethod = "PATCH"
	Delete  HttpMethod = "DELETE"
	Head    HttpMethod = "HEAD"
	Options HttpMethod = "OPTIONS"
)

// HttpMethods provides string-to-HttpMethod mapping for request normalization.
var HttpMethods = map[string]HttpMethod{
	"GET":     Get,
	"POST":    Post,
	"PUT":     Put,
	"PATCH":   Patch,
	"DELETE":  Delete,
	"HEAD":    Head,
	"OPTIONS": Options,
}

// ParseHttpMethod converts a wire method name into an HttpMethod.
// Lookup is case-insensitive; the boolean is false for verbs outside the enumeration.
func ParseHttpMethod(method string) (HttpMethod, bool) {
	m, ok := HttpMethods[strings.ToUpper(method)]
	return m, ok
}

// String returns the string representation of an HttpMethod for logging and debugging.
func (m HttpMethod) String() string {
	return string(m)
}
