package payments

import (
	"github.com/jacksonzamorano/relay"
	relay_validate "github.com/jacksonzamorano/relay/relay-validate"
	"github.com/jacksonzamorano/relay/services/auth"
)

// Routes returns the payment method endpoints, to be mounted at
// "/payment-methods". Every route requires authentication.
func (s *Service) Routes(authenticate relay.Middleware) *relay.RouteGroup {
	return relay.NewRouteGroup(
		relay.GetRoute("/", s.handleList),
		relay.PostRoute("/", s.handleCreate, relay_validate.Body[CreateRequest]()),
		relay.GetRoute("/{id}", s.handleGet),
		relay.PostRoute("/{id}/default", s.handleSetDefault),
		relay.DeleteRoute("/{id}", s.handleDelete),
	).Use(authenticate)
}

func (s *Service) handleList(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	p, err := auth.Require(rc)
	if err != nil {
		return nil, err
	}
	methods, err := s.List(rc.Context(), p.UserID)
	if err != nil {
		return nil, err
	}
	return relay.JsonResponse(methods), nil
}

func (s *Service) handleCreate(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	p, err := auth.Require(rc)
	if err != nil {
		return nil, err
	}
	req, _ := relay_validate.BodyOf[CreateRequest](rc)
	method, err := s.Create(rc.Context(), p.UserID, *req)
	if err != nil {
		return nil, err
	}
	return relay.CreatedResponse(method), nil
}

func (s *Service) handleGet(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	p, err := auth.Require(rc)
	if err != nil {
		return nil, err
	}
	method, err := s.Get(rc.Context(), p.UserID, rc.Param("id"))
	if err != nil {
		return nil, err
	}
	return relay.JsonResponse(method), nil
}

func (s *Service) handleSetDefault(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	p, err := auth.Require(rc)
	if err != nil {
		return nil, err
	}
	method, err := s.SetDefault(rc.Context(), p.UserID, rc.Param("id"))
	if err != nil {
		return nil, err
	}
	return relay.JsonResponse(method), nil
}

func (s *Service) handleDelete(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	p, err := auth.Require(rc)
	if err != nil {
		return nil, err
	}
	if err := s.Delete(rc.Context(), p.UserID, rc.Param("id")); err != nil {
		return nil, err
	}
	return relay.NoContentResponse(), nil
}
