// Package files stores uploaded files for their owners. Contents go to a
// FileStorage and metadata to the document store. Owners can hand out
// short-lived share links that work without authentication.
package files

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/jacksonzamorano/relay"
	relay_db "github.com/jacksonzamorano/relay/relay-db"
	relay_exchange "github.com/jacksonzamorano/relay/relay-exchange"
	"github.com/sirupsen/logrus"
)

const (
	Collection = "files"
	// ShareTTL is how long a share link stays valid.
	ShareTTL = 15 * time.Minute

	maxNameLength = 255
)

// File is the metadata of a stored file.
type File struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	CreatedAt   time.Time `json:"created_at"`
}

// ShareLink is a token that grants read access to one file until it expires.
type ShareLink struct {
	Token     string    `json:"token"`
	Path      string    `json:"path"`
	ExpiresAt time.Time `json:"expires_at"`
}

type fileDocument struct {
	OwnerID     string `json:"owner_id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	SHA256      string `json:"sha256"`
}

type shareGrant struct {
	FileID string `json:"file_id"`
}

func toFile(rec relay_db.Record[fileDocument]) File {
	return File{
		ID:          rec.ID,
		Name:        rec.Value.Name,
		ContentType: rec.Value.ContentType,
		Size:        rec.Value.Size,
		SHA256:      rec.Value.SHA256,
		CreatedAt:   rec.CreatedAt,
	}
}

type Service struct {
	files   *relay_db.Collection[fileDocument]
	storage FileStorage
	sealer  *relay_exchange.Sealer
	log     *logrus.Logger
	now     func() time.Time
}

func NewService(store relay_db.Store, storage FileStorage, sealer *relay_exchange.Sealer, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		files:   relay_db.NewCollection[fileDocument](store, Collection),
		storage: storage,
		sealer:  sealer,
		log:     logger,
		now:     time.Now,
	}
}

func (s *Service) Setup(ctx context.Context, store relay_db.Store) error {
	return store.EnsureCollection(ctx, Collection)
}

// SanitizeName reduces a client-supplied file name to a safe base name.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '"' {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "upload"
	}
	if len(name) > maxNameLength {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = strings.ToValidUTF8(name[:maxNameLength-len(ext)], "") + ext
	}
	return name
}

// detectType keeps an explicit content type and sniffs one otherwise.
func detectType(contentType string, body []byte) string {
	contentType = strings.TrimSpace(contentType)
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	return mimetype.Detect(body).String()
}

// Upload stores body for ownerID. If the metadata cannot be written, the
// stored bytes are removed again.
func (s *Service) Upload(ctx context.Context, ownerID string, name string, contentType string, body []byte) (File, error) {
	if len(body) == 0 {
		return File{}, relay.ValidationFailure("File is empty", nil)
	}
	id := uuid.NewString()
	size, sum, err := s.storage.Put(ctx, id, bytes.NewReader(body))
	if err != nil {
		return File{}, relay.InternalFailure(err)
	}
	rec, err := s.files.Insert(ctx, id, fileDocument{
		OwnerID:     ownerID,
		Name:        SanitizeName(name),
		ContentType: detectType(contentType, body),
		Size:        size,
		SHA256:      sum,
	})
	if err != nil {
		if delErr := s.storage.Delete(context.WithoutCancel(ctx), id); delErr != nil {
			s.log.WithError(delErr).WithField("file_id", id).Error("could not remove orphaned file")
		}
		return File{}, err
	}
	s.log.WithFields(logrus.Fields{"user_id": ownerID, "file_id": id, "size": size}).Info("file uploaded")
	return toFile(rec), nil
}

func (s *Service) List(ctx context.Context, ownerID string) ([]File, error) {
	recs, err := s.files.FindMany(ctx, s.files.Find().
		WhereEq("owner_id", ownerID).
		SortDesc(relay_db.FieldCreatedAt))
	if err != nil {
		return nil, err
	}
	files := make([]File, len(recs))
	for i, rec := range recs {
		files[i] = toFile(rec)
	}
	return files, nil
}

func (s *Service) owned(ctx context.Context, ownerID string, id string) (relay_db.Record[fileDocument], error) {
	rec, err := s.files.Get(ctx, id)
	if err != nil {
		return rec, err
	}
	if rec.Value.OwnerID != ownerID {
		return rec, relay_db.NotFoundError(Collection)
	}
	return rec, nil
}

func (s *Service) Get(ctx context.Context, ownerID string, id string) (File, error) {
	rec, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return File{}, err
	}
	return toFile(rec), nil
}

// Content opens the contents of a file. The caller closes the reader.
func (s *Service) Content(ctx context.Context, ownerID string, id string) (File, io.ReadCloser, error) {
	rec, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return File{}, nil, err
	}
	return s.open(ctx, rec)
}

func (s *Service) open(ctx context.Context, rec relay_db.Record[fileDocument]) (File, io.ReadCloser, error) {
	r, _, err := s.storage.Open(ctx, rec.ID)
	if err != nil {
		return File{}, nil, relay.InternalFailure(err)
	}
	return toFile(rec), r, nil
}

func (s *Service) Delete(ctx context.Context, ownerID string, id string) error {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, id); err != nil {
		s.log.WithError(err).WithField("file_id", id).Error("could not remove file contents")
	}
	return nil
}

// Share creates a link to one of the owner's files.
func (s *Service) Share(ctx context.Context, ownerID string, id string) (ShareLink, error) {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return ShareLink{}, err
	}
	expires := s.now().Add(ShareTTL).UTC()
	token, err := relay_exchange.SealUntil(s.sealer, shareGrant{FileID: id}, expires)
	if err != nil {
		return ShareLink{}, relay.InternalFailure(err)
	}
	return ShareLink{
		Token:     token,
		Path:      "/shared/" + token,
		ExpiresAt: expires,
	}, nil
}

// OpenShared opens the file a share token grants access to.
func (s *Service) OpenShared(ctx context.Context, token string) (File, io.ReadCloser, error) {
	grant, err := relay_exchange.OpenValid[shareGrant](s.sealer, token, s.now())
	if err != nil {
		return File{}, nil, relay.NotFoundFailure("Share link is invalid or has expired")
	}
	rec, err := s.files.Get(ctx, grant.FileID)
	if errors.Is(err, relay_db.ErrNotFound) {
		return File{}, nil, relay.NotFoundFailure("Share link is invalid or has expired")
	}
	if err != nil {
		return File{}, nil, err
	}
	return s.open(ctx, rec)
}
