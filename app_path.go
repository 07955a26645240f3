package relay

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPattern is wrapped by every error ParsePathPattern returns.
var ErrInvalidPattern = errors.New("relay: invalid path pattern")

type pathSegment struct {
	literal string
	param   string
}

func (s pathSegment) isParam() bool {
	return s.param != ""
}

// PathPattern is a parsed route path. Segments are either literals, matched
// by exact equality, or named parameters that capture exactly one non-empty
// request segment. Parameters are written "{name}" or ":name".
//
// Example:
//
//	p, _ := relay.ParsePathPattern("/users/{id}/files/:file")
//	p.Params() // ["id", "file"]
//	p.Shape()  // "/users/*/files/*"
type PathPattern struct {
	raw      string
	segments []pathSegment
}

// ParsePathPattern validates and parses a route path. The path must be
// non-empty, start with "/", and use each parameter name at most once.
func ParsePathPattern(path string) (PathPattern, error) {
	if path == "" || path[0] != '/' {
		return PathPattern{}, fmt.Errorf("%w: %q must begin with \"/\"", ErrInvalidPattern, path)
	}
	comps := PathListFromString(path)
	segments := make([]pathSegment, 0, len(comps))
	seen := make(map[string]struct{}, len(comps))
	for _, comp := range comps {
		name, isParam, err := parameterName(comp)
		if err != nil {
			return PathPattern{}, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, path, err)
		}
		if !isParam {
			segments = append(segments, pathSegment{literal: comp})
			continue
		}
		if _, dup := seen[name]; dup {
			return PathPattern{}, fmt.Errorf("%w: %q: parameter %q used twice", ErrInvalidPattern, path, name)
		}
		seen[name] = struct{}{}
		segments = append(segments, pathSegment{param: name})
	}
	return PathPattern{raw: path, segments: segments}, nil
}

func parameterName(comp string) (string, bool, error) {
	switch {
	case strings.HasPrefix(comp, ":"):
		if len(comp) == 1 {
			return "", false, errors.New("empty parameter name")
		}
		return comp[1:], true, nil
	case strings.HasPrefix(comp, "{") || strings.HasSuffix(comp, "}"):
		if len(comp) < 3 || comp[0] != '{' || comp[len(comp)-1] != '}' {
			return "", false, fmt.Errorf("malformed parameter %q", comp)
		}
		return comp[1 : len(comp)-1], true, nil
	}
	return "", false, nil
}

// String returns the path as it was registered.
func (p PathPattern) String() string {
	return p.raw
}

// Shape returns the pattern with every parameter replaced by "*". Two
// patterns with the same shape match exactly the same request paths.
func (p PathPattern) Shape() string {
	var b strings.Builder
	for _, seg := range p.segments {
		b.WriteByte('/')
		if seg.isParam() {
			b.WriteByte('*')
		} else {
			b.WriteString(seg.literal)
		}
	}
	return b.String()
}

// Params returns the parameter names in path order.
func (p PathPattern) Params() []string {
	names := []string{}
	for _, seg := range p.segments {
		if seg.isParam() {
			names = append(names, seg.param)
		}
	}
	return names
}

// matches reports whether the request components fit this pattern.
func (p PathPattern) matches(comps []string) bool {
	if len(comps) != len(p.segments) {
		return false
	}
	for i, seg := range p.segments {
		if seg.isParam() {
			if comps[i] == "" {
				return false
			}
		} else if seg.literal != comps[i] {
			return false
		}
	}
	return true
}

// capture extracts parameter values; callers check matches first.
func (p PathPattern) capture(comps []string) map[string]string {
	params := make(map[string]string)
	for i, seg := range p.segments {
		if seg.isParam() {
			params[seg.param] = comps[i]
		}
	}
	return params
}
