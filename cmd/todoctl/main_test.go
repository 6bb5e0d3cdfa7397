package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/no-abramov/todoapi/pkg/api"
	"github.com/no-abramov/todoapi/pkg/auth"
	"github.com/no-abramov/todoapi/pkg/client"
	"github.com/no-abramov/todoapi/pkg/storage/memdb"
)

func TestMain(m *testing.M) {
	log.SetLevel(log.PanicLevel)
	os.Exit(m.Run())
}

type testEnv struct {
	app    *app
	out    *bytes.Buffer
	errOut *bytes.Buffer
	db     *memdb.Store
}

func newTestEnv(t *testing.T, stdin string) *testEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(envToken, "")

	tokens, err := auth.NewTokenService(auth.Config{
		Key:             strings.Repeat("k", auth.MinKeyLen),
		Issuer:          "todoapi",
		Audience:        "todoapi-clients",
		LifetimeMinutes: 60,
	})
	require.NoError(t, err)

	db := memdb.New()
	a, err := api.New(api.Options{
		ServiceName: "todoapi",
		Todos:       db,
		Logs:        db,
		Tokens:      tokens,
		Verifier:    auth.StaticVerifier{Username: "admin", Password: "password"},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)

	env := testEnv{out: &bytes.Buffer{}, errOut: &bytes.Buffer{}, db: db}
	env.app = &app{
		server: srv.URL,
		cl:     client.New(srv.URL, ""),
		in:     strings.NewReader(stdin),
		out:    env.out,
		errOut: env.errOut,
	}
	return &env
}

func (e *testEnv) run(t *testing.T, args ...string) int {
	t.Helper()
	e.out.Reset()
	e.errOut.Reset()
	return e.app.run(context.Background(), args)
}

func TestApp_loginLogout(t *testing.T) {
	env := newTestEnv(t, "admin\npassword\n")

	require.Equal(t, 0, env.run(t, "login"), env.errOut.String())
	assert.Contains(t, env.out.String(), "logged in as admin")

	p, err := credFilePath()
	require.NoError(t, err)
	fi, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	token, err := loadToken()
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	require.Equal(t, 0, env.run(t, "logout"))
	token, err = loadToken()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestApp_loginRejected(t *testing.T) {
	env := newTestEnv(t, "")

	assert.Equal(t, 1, env.run(t, "login", "-u", "admin", "-p", "nope"))
	assert.Contains(t, env.errOut.String(), "401")

	_, err := os.Stat(filepath.Join(os.Getenv("HOME"), credDirName, credFileName))
	assert.True(t, os.IsNotExist(err), "no credentials file after failed login")
}

func TestApp_todoCommands(t *testing.T) {
	env := newTestEnv(t, "")

	require.Equal(t, 0, env.run(t, "add", "Buy", "milk"))
	assert.Contains(t, env.out.String(), "added #1")
	require.Equal(t, 0, env.run(t, "add", "Walk the dog"))

	require.Equal(t, 0, env.run(t, "toggle", "1"))
	assert.Contains(t, env.out.String(), "#1 is done")

	require.Equal(t, 0, env.run(t, "ls"))
	assert.Contains(t, env.out.String(), "Buy milk")
	assert.Contains(t, env.out.String(), "Walk the dog")

	require.Equal(t, 0, env.run(t, "ls", "--pending"))
	assert.NotContains(t, env.out.String(), "Buy milk")
	assert.Contains(t, env.out.String(), "Walk the dog")

	require.Equal(t, 0, env.run(t, "summary"))
	assert.Contains(t, env.out.String(), "1/2")

	require.Equal(t, 0, env.run(t, "cleanup"))
	assert.Contains(t, env.out.String(), "removed 1 completed item(s)")

	assert.Equal(t, 1, env.run(t, "rm", "2"))
	assert.Contains(t, env.errOut.String(), "todoctl login")

	require.Equal(t, 0, env.run(t, "login", "-u", "admin", "-p", "password"))
	require.Equal(t, 0, env.run(t, "rm", "2"))

	require.Equal(t, 0, env.run(t, "logs"))
	assert.Contains(t, env.out.String(), "/api/todo/2")
}

func TestApp_usage(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		args []string
		want int
	}{
		{args: nil, want: 2},
		{args: []string{"help"}, want: 0},
		{args: []string{"frobnicate"}, want: 2},
		{args: []string{"add"}, want: 2},
		{args: []string{"toggle"}, want: 2},
		{args: []string{"rm", "abc"}, want: 2},
		{args: []string{"ls", "--done", "--pending"}, want: 2},
		{args: []string{"logs", "0"}, want: 2},
		{args: []string{"toggle", "42"}, want: 1},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			assert.Equal(t, tt.want, env.run(t, tt.args...))
		})
	}
}

func TestLoadToken_envOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, saveToken("http://x", "from-file"))

	t.Setenv(envToken, "Bearer from-env")
	token, err := loadToken()
	require.NoError(t, err)
	assert.Equal(t, "from-env", token)

	t.Setenv(envToken, "")
	token, err = loadToken()
	require.NoError(t, err)
	assert.Equal(t, "from-file", token)
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	got, ok := tokenExpiry(token)
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = tokenExpiry("garbage")
	assert.False(t, ok)
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[██░░] 1/2", progressBar(1, 2, 4))
	assert.Equal(t, "[░░░░] 0/1", progressBar(0, 0, 4))
}
