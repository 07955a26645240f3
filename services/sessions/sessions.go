// Package sessions issues and verifies bearer tokens. A token is an HS256 JWT
// whose ID names a stored session document, so a session can be revoked
// before the token itself expires.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jacksonzamorano/relay"
	relay_db "github.com/jacksonzamorano/relay/relay-db"
	"github.com/jacksonzamorano/relay/services/auth"
	"github.com/jacksonzamorano/relay/services/users"
	"github.com/sirupsen/logrus"
)

const (
	Collection = "sessions"
	Issuer     = "relay"
)

// Accounts checks login credentials.
type Accounts interface {
	VerifyCredentials(ctx context.Context, email string, password string) (users.User, error)
}

// LoginRequest is the body of POST /sessions.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

// Session is the public view of a session.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	UserAgent string     `json:"user_agent,omitempty"`
	IP        string     `json:"ip,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Login is returned by a successful login.
type Login struct {
	Token   string     `json:"token"`
	Session Session    `json:"session"`
	User    users.User `json:"user"`
}

type sessionDocument struct {
	UserID    string     `json:"user_id"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at"`
	UserAgent string     `json:"user_agent"`
	IP        string     `json:"ip"`
}

func toSession(rec relay_db.Record[sessionDocument]) Session {
	return Session{
		ID:        rec.ID,
		UserID:    rec.Value.UserID,
		ExpiresAt: rec.Value.ExpiresAt,
		RevokedAt: rec.Value.RevokedAt,
		UserAgent: rec.Value.UserAgent,
		IP:        rec.Value.IP,
		CreatedAt: rec.CreatedAt,
	}
}

// Service implements login, logout and token verification. It satisfies
// auth.Verifier.
type Service struct {
	sessions *relay_db.Collection[sessionDocument]
	accounts Accounts
	key      []byte
	ttl      time.Duration
	log      *logrus.Logger
	now      func() time.Time
}

func NewService(store relay_db.Store, accounts Accounts, key []byte, ttl time.Duration, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		sessions: relay_db.NewCollection[sessionDocument](store, Collection),
		accounts: accounts,
		key:      key,
		ttl:      ttl,
		log:      logger,
		now:      time.Now,
	}
}

func (s *Service) Setup(ctx context.Context, store relay_db.Store) error {
	return store.EnsureCollection(ctx, Collection)
}

var errInvalidToken = relay.UnauthorizedFailure("Invalid or expired token")

// Login checks credentials and opens a new session.
func (s *Service) Login(ctx context.Context, req LoginRequest, userAgent string, ip string) (Login, error) {
	user, err := s.accounts.VerifyCredentials(ctx, req.Email, req.Password)
	if err != nil {
		return Login{}, err
	}
	now := s.now()
	// JWT times have second precision; keep the stored expiry identical.
	expires := now.Add(s.ttl).Truncate(time.Second).UTC()
	rec, err := s.sessions.Insert(ctx, "", sessionDocument{
		UserID:    user.ID,
		ExpiresAt: expires,
		UserAgent: userAgent,
		IP:        ip,
	})
	if err != nil {
		return Login{}, err
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   user.ID,
		ID:        rec.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}).SignedString(s.key)
	if err != nil {
		return Login{}, relay.InternalFailure(err)
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "session_id": rec.ID}).Info("session opened")
	return Login{Token: token, Session: toSession(rec), User: user}, nil
}

func (s *Service) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Verify implements auth.Verifier.
func (s *Service) Verify(ctx context.Context, token string) (auth.Principal, error) {
	claims, err := s.parse(token)
	if err != nil {
		return auth.Principal{}, errInvalidToken
	}
	rec, err := s.sessions.Get(ctx, claims.ID)
	if errors.Is(err, relay_db.ErrNotFound) {
		return auth.Principal{}, errInvalidToken
	}
	if err != nil {
		return auth.Principal{}, err
	}
	switch {
	case rec.Value.UserID != claims.Subject:
		return auth.Principal{}, errInvalidToken
	case rec.Value.RevokedAt != nil:
		return auth.Principal{}, relay.UnauthorizedFailure("Session has been revoked")
	case !rec.Value.ExpiresAt.After(s.now()):
		return auth.Principal{}, errInvalidToken
	}
	return auth.Principal{UserID: rec.Value.UserID, SessionID: rec.ID}, nil
}

func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	rec, err := s.sessions.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	return toSession(rec), nil
}

// Revoke ends one session. Revoking twice is not an error.
func (s *Service) Revoke(ctx context.Context, id string) error {
	rec, err := s.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.revoke(ctx, rec)
}

func (s *Service) revoke(ctx context.Context, rec relay_db.Record[sessionDocument]) error {
	if rec.Value.RevokedAt != nil {
		return nil
	}
	now := s.now().UTC()
	rec.Value.RevokedAt = &now
	if _, err := s.sessions.Replace(ctx, rec.ID, rec.Value); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"user_id": rec.Value.UserID, "session_id": rec.ID}).Info("session revoked")
	return nil
}

// RevokeAll ends every open session of a user. It implements
// users.SessionRevoker.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	recs, err := s.sessions.FindMany(ctx, s.sessions.Find().WhereEq("user_id", userID))
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := s.revoke(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
