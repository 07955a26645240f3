package files

import (
	"io"
	"mime"

	"github.com/jacksonzamorano/relay"
	"github.com/jacksonzamorano/relay/services/auth"
)

// FileNameHeader carries the original name of an uploaded file.
const FileNameHeader = "X-File-Name"

// Routes returns the owner endpoints, to be mounted at "/files". Every route
// requires authentication.
func (s *Service) Routes(authenticate relay.Middleware) *relay.RouteGroup {
	return relay.NewRouteGroup(
		relay.GetRoute("/", s.handleList),
		relay.PostRoute("/", s.handleUpload),
		relay.GetRoute("/{id}", s.handleGet),
		relay.GetRoute("/{id}/content", s.handleContent),
		relay.PostRoute("/{id}/share", s.handleShare),
		relay.DeleteRoute("/{id}", s.handleDelete),
	).Use(authenticate)
}

// SharedRoutes returns the public share endpoint, to be mounted at "/shared".
func (s *Service) SharedRoutes() *relay.RouteGroup {
	return relay.NewRouteGroup(
		relay.GetRoute("/{token}", s.handleShared),
	)
}

func download(file File, r io.ReadCloser) *relay.HttpResponse {
	res := relay.StreamResponse(r, file.Size, file.ContentType)
	res.SetHeader("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	return res
}

func (s *Service) handleUpload(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	p, err := auth.Require(rc)
	if err != nil {
		return nil, err
	}
	file, err := s.Upload(rc.Context(), p.UserID, rc.Header(FileNameHeader), rc.Header("Content-Type"), rc.Body())
	if err != nil {
		return nil, err
	}
	return relay.CreatedResponse(file), nil
}

func (s *Service) handleList(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	p, err := auth.Require(rc)
	if err != nil {
		return nil, err
	}
	files, err := s.List(rc.Context(), p.UserID)
	if err != nil {
		return nil, err
	}
	return relay.JsonResponse(files), nil
}

func (s *Service) handleGet(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	p, err := auth.Require(rc)
	if err != nil {
		return nil, err
	}
	file, err := s.Get(rc.Context(), p.UserID, rc.Param("id"))
	if err != nil {
		return nil, err
	}
	return relay.JsonResponse(file), nil
}

func (s *Service) handleContent(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	p, err := auth.Require(rc)
	if err != nil {
		return nil, err
	}
	file, r, err := s.Content(rc.Context(), p.UserID, rc.Param("id"))
	if err != nil {
		return nil, err
	}
	return download(file, r), nil
}

func (s *Service) handleShare(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	p, err := auth.Require(rc)
	if err != nil {
		return nil, err
	}
	link, err := s.Share(rc.Context(), p.UserID, rc.Param("id"))
	if err != nil {
		return nil, err
	}
	return relay.CreatedResponse(link), nil
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

func (s *Service) handleShared(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	file, r, err := s.OpenShared(rc.Context(), rc.Param("token"))
	if err != nil {
		return nil, err
	}
	return download(file, r), nil
}
