package files

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jacksonzamorano/relay"
	relay_db "github.com/jacksonzamorano/relay/relay-db"
	relay_exchange "github.com/jacksonzamorano/relay/relay-exchange"
	"github.com/jacksonzamorano/relay/services/auth"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc     *Service
	storage *DiskStorage
	store   *relay_db.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	storage, err := NewDiskStorage(filepath.Join(t.TempDir(), "files"))
	require.NoError(t, err)
	sealer, err := relay_exchange.NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	store := relay_db.NewMemoryStore()
	svc := NewService(store, storage, sealer, logger)
	require.NoError(t, svc.Setup(context.Background(), store))
	return &fixture{svc: svc, storage: storage, store: store}
}

func readAll(t *testing.T, r io.ReadCloser) string {
	t.Helper()
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in  string
		out string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\ada\notes.txt`, "notes.txt"},
		{"bad\x00\"name\".txt", "badname.txt"},
		{"", "upload"},
		{"..", "upload"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, SanitizeName(tt.in), tt.in)
	}
}

func TestDiskStorage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	size, sum, err := f.storage.Put(ctx, "abc123", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
	assert.FileExists(t, filepath.Join(f.storage.Root(), "ab", "abc123"))

	r, n, err := f.storage.Open(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "hello", readAll(t, r))

	require.NoError(t, f.storage.Delete(ctx, "abc123"))
	require.NoError(t, f.storage.Delete(ctx, "abc123"))
	_, _, err = f.storage.Open(ctx, "abc123")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, _, err = f.storage.Put(ctx, "../escape", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestUploadAndDownload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	file, err := f.svc.Upload(ctx, "u1", "notes.txt", "text/plain", []byte("some notes"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", file.Name)
	assert.Equal(t, int64(10), file.Size)

	_, r, err := f.svc.Content(ctx, "u1", file.ID)
	require.NoError(t, err)
	assert.Equal(t, "some notes", readAll(t, r))

	_, _, err = f.svc.Content(ctx, "u2", file.ID)
	assert.Equal(t, relay.KindNotFound, relay.AsFailure(err).Kind)

	_, err = f.svc.Upload(ctx, "u1", "empty.txt", "text/plain", nil)
	assert.Equal(t, relay.KindValidationFailed, relay.AsFailure(err).Kind)

	require.NoError(t, f.svc.Delete(ctx, "u1", file.ID))
	_, _, err = f.storage.Open(ctx, file.ID)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUploadDetectsType(t *testing.T) {
	f := newFixture(t)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	file, err := f.svc.Upload(context.Background(), "u1", "image", "", png)
	require.NoError(t, err)
	assert.Equal(t, "image/png", file.ContentType)
}

func TestShare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	file, err := f.svc.Upload(ctx, "u1", "notes.txt", "text/plain", []byte("shared"))
	require.NoError(t, err)

	_, err = f.svc.Share(ctx, "u2", file.ID)
	assert.Equal(t, relay.KindNotFound, relay.AsFailure(err).Kind)

	link, err := f.svc.Share(ctx, "u1", file.ID)
	require.NoError(t, err)

	_, r, err := f.svc.OpenShared(ctx, link.Token)
	require.NoError(t, err)
	assert.Equal(t, "shared", readAll(t, r))

	f.svc.now = func() time.Time { return time.Now().Add(ShareTTL + time.Minute) }
	_, _, err = f.svc.OpenShared(ctx, link.Token)
	assert.Equal(t, relay.KindNotFound, relay.AsFailure(err).Kind)
}

type userVerifier struct{}

func (userVerifier) Verify(_ context.Context, token string) (auth.Principal, error) {
	return auth.Principal{UserID: token}, nil
}

func TestRoutes(t *testing.T) {
	f := newFixture(t)
	router := relay.NewRouter()
	require.NoError(t, router.AddRouteGroup("/files", f.svc.Routes(auth.Authenticate(userVerifier{}))))
	require.NoError(t, router.AddRouteGroup("/shared", f.svc.SharedRoutes()))
	dispatcher := relay.NewDispatcher(router, nil)
	do := func(method relay.HttpMethod, target string, user string, body string) *relay.HttpResponse {
		req := relay.NewHttpRequest(method, target)
		if user != "" {
			req.Headers.Set("Authorization", "Bearer "+user)
		}
		req.Headers.Set(FileNameHeader, "hello.txt")
		req.Headers.Set("Content-Type", "text/plain")
		req.Body = []byte(body)
		return dispatcher.Dispatch(context.Background(), req)
	}

	res := do(relay.Post, "/files", "u1", "hello world")
	require.Equal(t, relay.StatusCreated, res.StatusCode, string(res.Body))
	var file File
	require.NoError(t, json.Unmarshal(res.Body, &file))

	res = do(relay.Get, "/files/"+file.ID+"/content", "u1", "")
	require.Equal(t, relay.StatusOK, res.StatusCode)
	require.NotNil(t, res.Reader)
	assert.Equal(t, `attachment; filename=hello.txt`, res.Headers.Get("Content-Disposition"))
	assert.Equal(t, "hello world", readAll(t, res.Reader.(io.ReadCloser)))

	res = do(relay.Get, "/files", "u2", "")
	require.Equal(t, relay.StatusOK, res.StatusCode)
	assert.JSONEq(t, `[]`, string(res.Body))

	res = do(relay.Post, "/files/"+file.ID+"/share", "u1", "")
	require.Equal(t, relay.StatusCreated, res.StatusCode)
	var link ShareLink
	require.NoError(t, json.Unmarshal(res.Body, &link))

	res = do(relay.Get, link.Path, "", "")
	require.Equal(t, relay.StatusOK, res.StatusCode)
	assert.Equal(t, "hello world", readAll(t, res.Reader.(io.ReadCloser)))

	res = do(relay.Get, "/shared/deadbeef", "", "")
	assert.Equal(t, relay.StatusNotFound, res.StatusCode)

	res = do(relay.Delete, "/files/"+file.ID, "u1", "")
	assert.Equal(t, relay.StatusNoContent, res.StatusCode)
}
