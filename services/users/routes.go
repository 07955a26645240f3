package users

import (
	"github.com/jacksonzamorano/relay"
	relay_validate "github.com/jacksonzamorano/relay/relay-validate"
	"github.com/jacksonzamorano/relay/services/auth"
)

// Routes returns the account endpoints, to be mounted at "/users":
//
//	POST   /users       register
//	GET    /users/me    current account
//	GET    /users/{id}  account by id (self only)
//	PATCH  /users/me    update display name
//	DELETE /users/me    delete account
func (s *Service) Routes(authenticate relay.Middleware) *relay.RouteGroup {
	return relay.NewRouteGroup(
		relay.PostRoute("/", s.handleRegister, relay_validate.Body[RegisterRequest]()),
		relay.GetRoute("/me", s.handleGetMe, authenticate),
		relay.GetRoute("/{id}", s.handleGet, authenticate),
		relay.PatchRoute("/me", s.handleUpdate, authenticate, relay_validate.Body[UpdateRequest]()),
		relay.DeleteRoute("/me", s.handleDelete, authenticate),
	)
}

func (s *Service) handleRegister(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	req, _ := relay_validate.BodyOf[RegisterRequest](rc)
	user, err := s.Register(rc.Context(), *req)
	if err != nil {
		return nil, err
	}
	return relay.CreatedResponse(user), nil
}

func (s *Service) handleGetMe(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	p, err := auth.Require(rc)
	if err != nil {
		return nil, err
	}
	user, err := s.Get(rc.Context(), p.UserID)
	if err != nil {
		return nil, err
	}
	return relay.JsonResponse(user), nil
}

func (s *Service) handleGet(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	p, err := auth.Require(rc)
	if err != nil {
		return nil, err
	}
	if rc.Param("id") != p.UserID {
		return nil, relay.ForbiddenFailure("You can only view your own account")
	}
	user, err := s.Get(rc.Context(), p.UserID)
	if err != nil {
		return nil, err
	}
	return relay.JsonResponse(user), nil
}

func (s *Service) handleUpdate(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	p, err := auth.Require(rc)
	if err != nil {
		return nil, err
	}
	req, _ := relay_validate.BodyOf[UpdateRequest](rc)
	user, err := s.Update(rc.Context(), p.UserID, *req)
	if err != nil {
		return nil, err
	}
	return relay.JsonResponse(user), nil
}

func (s *Service) handleDelete(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	p, err := auth.Require(rc)
	if err != nil {
		return nil, err
	}
	if err := s.Delete(rc.Context(), p.UserID); err != nil {
		return nil, err
	}
	return relay.NoContentResponse(), nil
}
