// Package auth carries the authenticated caller through a request. Token
// verification is delegated to a Verifier, so this package has no opinion on
// how sessions are stored.
package auth

import (
	"context"
	"strings"

	"github.com/jacksonzamorano/relay"
)

// PrincipalKey is the attribute key Authenticate stores the Principal under.
const PrincipalKey = "relay.principal"

// Principal identifies the caller of an authenticated request.
type Principal struct {
	UserID    string
	SessionID string
}

// Verifier checks a bearer token and returns who it belongs to. Invalid,
// expired or revoked tokens return an Unauthorized failure.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(rc *relay.RequestContext) (string, bool) {
	header := rc.Header("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Authenticate short-circuits with Unauthorized unless the request carries a
// bearer token v accepts. On success the Principal is stored for handlers.
func Authenticate(v Verifier) relay.Middleware {
	return relay.Named("authenticate", relay.MiddlewareFn(func(rc *relay.RequestContext, next relay.Next) (*relay.HttpResponse, error) {
		token, ok := BearerToken(rc)
		if !ok {
			return nil, relay.UnauthorizedFailure("Missing bearer token")
		}
		principal, err := v.Verify(rc.Context(), token)
		if err != nil {
			return nil, err
		}
		rc.Set(PrincipalKey, principal)
		rc.AddLogField("user_id", principal.UserID)
		return next()
	}))
}

// PrincipalOf returns the caller stored by Authenticate.
func PrincipalOf(rc *relay.RequestContext) (Principal, bool) {
	return relay.Attr[Principal](rc, PrincipalKey)
}

// Require returns the caller, or an Unauthorized failure when the route was
// reached without Authenticate.
func Require(rc *relay.RequestContext) (Principal, error) {
	p, ok := PrincipalOf(rc)
	if !ok {
		return Principal{}, relay.UnauthorizedFailure("Authentication required")
	}
	return p, nil
}
