package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sevensolidarity/aidboard/internal/auth"
	"github.com/sevensolidarity/aidboard/internal/model"
	"github.com/sevensolidarity/aidboard/internal/repository/sqlite"
)

// The service tests run against a real in-memory SQLite database rather
// than hand-written mocks: search filtering and ranking live in SQL, and
// the close transition relies on the repository's conditional update.

// testLogger discards output so test runs stay quiet.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock advances one second on every call, giving each write a
// distinct, ordered timestamp.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type testEnv struct {
	db       *sqlite.DB
	requests *RequestService
	profiles *ProfileService
	auth     *AuthService
	tokens   *auth.TokenService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("service-test-secret-0123456789", 0)
	require.NoError(t, err)

	requests := NewRequestService(db, db, testLogger())
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	requests.now = clock.now

	return &testEnv{
		db:       db,
		requests: requests,
		profiles: NewProfileService(db, time.Hour, testLogger()),
		auth:     NewAuthService(db, tokens, testLogger()),
		tokens:   tokens,
	}
}

// newUser signs a user in and sets their zipcode. An empty zip leaves the
// user without a location.
func (e *testEnv) newUser(t *testing.T, username, zip string) *model.User {
	t.Helper()
	ctx := context.Background()

	res, err := e.auth.LoginOrRegister(ctx, &auth.Identity{
		ExternalID: "ext-" + username,
		Username:   username,
		Email:      username + "@example.com",
	})
	require.NoError(t, err)

	if zip == "" {
		return res.User
	}
	u, err := e.profiles.UpdateMe(ctx, res.User.ID, UpdateProfileInput{Zipcode: &zip})
	require.NoError(t, err)
	return u
}

// newRequest creates an open request with the given tags.
func (e *testEnv) newRequest(t *testing.T, owner *model.User, title string, tags ...string) *model.Request {
	t.Helper()
	req, err := e.requests.Create(context.Background(), owner.ID, CreateRequestInput{
		Title: title,
		Tags:  tags,
	})
	require.NoError(t, err)
	return req
}

// respond adds n responses from user to req.
func (e *testEnv) respond(t *testing.T, req *model.Request, user *model.User, n int) *model.Request {
	t.Helper()
	var out *model.Request
	for i := 0; i < n; i++ {
		var err error
		out, err = e.requests.Respond(context.Background(), user.ID, req.ID, "I can help")
		require.NoError(t, err)
	}
	return out
}

func strPtr(s string) *string { return &s }
