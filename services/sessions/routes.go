package sessions

import (
	"github.com/jacksonzamorano/relay"
	relay_validate "github.com/jacksonzamorano/relay/relay-validate"
	"github.com/jacksonzamorano/relay/services/auth"
)

// Routes returns the session endpoints, to be mounted at "/sessions":
//
//	POST   /sessions          log in
//	GET    /sessions/current  the session of the presented token
//	DELETE /sessions/current  log out
func (s *Service) Routes() *relay.RouteGroup {
	authenticate := auth.Authenticate(s)
	return relay.NewRouteGroup(
		relay.PostRoute("/", s.handleLogin, relay_validate.Body[LoginRequest]()),
		relay.GetRoute("/current", s.handleCurrent, authenticate),
		relay.DeleteRoute("/current", s.handleLogout, authenticate),
	)
}

func (s *Service) handleLogin(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	req, _ := relay_validate.BodyOf[LoginRequest](rc)
	login, err := s.Login(rc.Context(), *req, rc.Header("User-Agent"), rc.Request.IpAddress)
	if err != nil {
		return nil, err
	}
	return relay.CreatedResponse(login), nil
}

func (s *Service) handleCurrent(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	p, err := auth.Require(rc)
	if err != nil {
		return nil, err
	}
	session, err := s.Get(rc.Context(), p.SessionID)
	if err != nil {
		return nil, err
	}
	return relay.JsonResponse(session), nil
}

func (s *Service) handleLogout(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	p, err := auth.Require(rc)
	if err != nil {
		return nil, err
	}
	if err := s.Revoke(rc.Context(), p.SessionID); err != nil {
		return nil, err
	}
	return relay.NoContentResponse(), nil
}
