// Package users manages accounts: registration, profile reads and updates,
// and deletion. Passwords are stored as bcrypt hashes only.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jacksonzamorano/relay"
	relay_db "github.com/jacksonzamorano/relay/relay-db"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Collection is the document collection users are stored in.
const Collection = "users"

// RegisterRequest is the body of POST /users.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"required,min=1,max=100"`
}

// UpdateRequest is the body of PATCH /users/me.
type UpdateRequest struct {
	DisplayName string `json:"display_name" validate:"required,min=1,max=100"`
}

// User is the public view of an account.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type userDocument struct {
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	PasswordHash string `json:"password_hash"`
}

func toUser(rec relay_db.Record[userDocument]) User {
	return User{
		ID:          rec.ID,
		Email:       rec.Value.Email,
		DisplayName: rec.Value.DisplayName,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SessionRevoker ends every session of a user. It is called when an account
// is deleted.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, userID string) error
}

// Service implements the account operations.
type Service struct {
	users   *relay_db.Collection[userDocument]
	cost    int
	revoker SessionRevoker
	log     *logrus.Logger
	// dummyHash keeps login timing similar for unknown emails.
	dummyHash []byte
}

// NewService creates the service over store. cost is the bcrypt cost; zero
// uses bcrypt.DefaultCost.
func NewService(store relay_db.Store, cost int, logger *logrus.Logger) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("relay-dummy-password"), cost)
	return &Service{
		users:     relay_db.NewCollection[userDocument](store, Collection),
		cost:      cost,
		log:       logger,
		dummyHash: dummy,
	}
}

// Setup creates the collection and its unique email index.
func (s *Service) Setup(ctx context.Context, store relay_db.Store) error {
	return store.EnsureCollection(ctx, Collection, "email")
}

// SetRevoker installs the hook used to end sessions of deleted accounts.
func (s *Service) SetRevoker(r SessionRevoker) {
	s.revoker = r
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return User{}, relay.InternalFailure(err)
	}
	rec, err := s.users.Insert(ctx, "", userDocument{
		Email:        normalizeEmail(req.Email),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: string(hash),
	})
	if errors.Is(err, relay_db.ErrConflict) {
		return User{}, relay.ConflictFailure("Email already registered")
	}
	if err != nil {
		return User{}, err
	}
	s.log.WithField("user_id", rec.ID).Info("user registered")
	return toUser(rec), nil
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	rec, err := s.users.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	return toUser(rec), nil
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (User, error) {
	rec, err := s.users.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	doc := rec.Value
	doc.DisplayName = strings.TrimSpace(req.DisplayName)
	updated, err := s.users.Replace(ctx, id, doc)
	if err != nil {
		return User{}, err
	}
	updated.CreatedAt = rec.CreatedAt
	return toUser(updated), nil
}

// Delete removes the account and revokes its sessions.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	if s.revoker != nil {
		if err := s.revoker.RevokeAll(ctx, id); err != nil {
			s.log.WithError(err).WithField("user_id", id).Error("could not revoke sessions of deleted user")
		}
	}
	s.log.WithField("user_id", id).Info("user deleted")
	return nil
}

// VerifyCredentials returns the account for email if password matches. Any
// mismatch is the same Unauthorized failure so callers cannot probe emails.
func (s *Service) VerifyCredentials(ctx context.Context, email string, password string) (User, error) {
	invalid := relay.UnauthorizedFailure("Invalid email or password")
	rec, err := s.users.FindOne(ctx, s.users.Find().WhereEq("email", normalizeEmail(email)))
	if errors.Is(err, relay_db.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return User{}, invalid
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.Value.PasswordHash), []byte(password)) != nil {
		return User{}, invalid
	}
	return toUser(rec), nil
}
