package relay

import "strings"

// PathListFromString parses a URL path into individual path components for routing.
//
// The function handles edge cases like:
//   - Leading forward slash removal (a missing one is tolerated)
//   - Empty path components (consecutive slashes) are kept as ""
//   - Root path ("/") is a single empty component
//   - Trailing slash normalization
//
// Examples:
//   - "/api/users/123" → ["api", "users", "123"]
//   - "/users" → ["users"]
//   - "/" → [""]
//   - "/api/users/" → ["api", "users"]
func PathListFromString(path string) []string {
	path = strings.TrimPrefix(path, "/")
	comps := strings.Split(path, "/")
	if len(comps) > 1 && comps[len(comps)-1] == "" {
		comps = comps[:len(comps)-1]
	}
	return comps
}
