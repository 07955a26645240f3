package sessions

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jacksonzamorano/relay"
	relay_db "github.com/jacksonzamorano/relay/relay-db"
	"github.com/jacksonzamorano/relay/services/users"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fixture struct {
	users    *users.Service
	sessions *Service
	user     users.User
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	store := relay_db.NewMemoryStore()
	f := &fixture{clock: time.Now()}
	f.users = users.NewService(store, bcrypt.MinCost, logger)
	f.sessions = NewService(store, f.users, testKey, time.Hour, logger)
	f.sessions.now = func() time.Time { return f.clock }
	f.users.SetRevoker(f.sessions)
	require.NoError(t, f.users.Setup(ctx, store))
	require.NoError(t, f.sessions.Setup(ctx, store))

	user, err := f.users.Register(ctx, users.RegisterRequest{Email: "ada@example.com", Password: "password1", DisplayName: "Ada"})
	require.NoError(t, err)
	f.user = user
	return f
}

func (f *fixture) login(t *testing.T) Login {
	t.Helper()
	login, err := f.sessions.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "password1"}, "test-agent", "10.0.0.1")
	require.NoError(t, err)
	return login
}

func assertUnauthorized(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, relay.KindUnauthorized, relay.AsFailure(err).Kind)
}

func TestLoginAndVerify(t *testing.T) {
	f := newFixture(t)
	login := f.login(t)
	assert.Equal(t, f.user.ID, login.Session.UserID)
	assert.Equal(t, "test-agent", login.Session.UserAgent)

	p, err := f.sessions.Verify(context.Background(), login.Token)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, p.UserID)
	assert.Equal(t, login.Session.ID, p.SessionID)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)
	_, err := f.sessions.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "nope-nope"}, "", "")
	assertUnauthorized(t, err)
}

func TestVerifyRejects(t *testing.T) {
	f := newFixture(t)
	login := f.login(t)
	ctx := context.Background()

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   "someone-else",
		ID:        login.Session.ID,
		ExpiresAt: jwt.NewNumericDate(f.clock.Add(time.Hour)),
	}).SignedString(testKey)
	require.NoError(t, err)

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   f.user.ID,
		ID:        login.Session.ID,
		ExpiresAt: jwt.NewNumericDate(f.clock.Add(time.Hour)),
	}).SignedString([]byte("another-key-another-key-another!!"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:  Issuer,
		Subject: f.user.ID,
		ID:      login.Session.ID,
	}).SignedString(testKey)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":        "not-a-jwt",
		"other owner":    forged,
		"wrong key":      wrongKey,
		"missing expiry": noExpiry,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.sessions.Verify(ctx, token)
			assertUnauthorized(t, err)
		})
	}
}

func TestVerifyExpired(t *testing.T) {
	f := newFixture(t)
	login := f.login(t)
	f.clock = f.clock.Add(2 * time.Hour)
	_, err := f.sessions.Verify(context.Background(), login.Token)
	assertUnauthorized(t, err)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, second := f.login(t), f.login(t)

	require.NoError(t, f.sessions.Revoke(ctx, first.Session.ID))
	require.NoError(t, f.sessions.Revoke(ctx, first.Session.ID))
	_, err := f.sessions.Verify(ctx, first.Token)
	assertUnauthorized(t, err)

	_, err = f.sessions.Verify(ctx, second.Token)
	require.NoError(t, err)

	require.NoError(t, f.users.Delete(ctx, f.user.ID))
	_, err = f.sessions.Verify(ctx, second.Token)
	assertUnauthorized(t, err)
}

func TestRoutes(t *testing.T) {
	f := newFixture(t)
	router := relay.NewRouter()
	require.NoError(t, router.AddRouteGroup("/sessions", f.sessions.Routes()))
	dispatcher := relay.NewDispatcher(router, nil)
	do := func(method relay.HttpMethod, token string, body string) *relay.HttpResponse {
		req := relay.NewHttpRequest(method, "/sessions")
		if method != relay.Post {
			req.Path = "/sessions/current"
		}
		if token != "" {
			req.Headers.Set("Authorization", "Bearer "+token)
		}
		req.Body = []byte(body)
		return dispatcher.Dispatch(context.Background(), req)
	}

	res := do(relay.Post, "", `{"email":"ada@example.com","password":"password1"}`)
	require.Equal(t, relay.StatusCreated, res.StatusCode, string(res.Body))
	var login Login
	require.NoError(t, json.Unmarshal(res.Body, &login))
	require.NotEmpty(t, login.Token)

	res = do(relay.Get, login.Token, "")
	assert.Equal(t, relay.StatusOK, res.StatusCode)

	res = do(relay.Delete, login.Token, "")
	assert.Equal(t, relay.StatusNoContent, res.StatusCode)

	res = do(relay.Get, login.Token, "")
	assert.Equal(t, relay.StatusUnauthorized, res.StatusCode)

	res = do(relay.Post, "", `{"email":"ada@example.com","password":"wrong-password"}`)
	assert.Equal(t, relay.StatusUnauthorized, res.StatusCode)
}
