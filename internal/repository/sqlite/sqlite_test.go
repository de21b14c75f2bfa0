package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/sevensolidarity/aidboard/internal/model"
	"github.com/sevensolidarity/aidboard/internal/repository"
)

// TESTING WITH IN-MEMORY SQLITE:
// ":memory:" creates a fresh database that exists only during the test:
// fast, isolated, and destroyed when the connection closes.
//
// newTestDB is a test helper. t.Helper() makes failures report the caller's
// line number rather than this function's.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser inserts a user and, when state is non-empty, places them
// there.
func createTestUser(t *testing.T, db *DB, username, state string) *model.User {
	t.Helper()
	ctx := context.Background()

	u := &model.User{ExternalID: "ext-" + username, Username: username}
	if err := db.Upsert(ctx, u); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	if state == "" {
		return u
	}

	u, err := db.UpdateProfile(ctx, u.ID, repository.ProfilePatch{
		Location: &model.Location{Zipcode: "00000", City: "Town", State: state},
	})
	if err != nil {
		t.Fatalf("failed to set state of test user: %v", err)
	}
	return u
}

// createTestRequest inserts an open request by author at the given time.
func createTestRequest(t *testing.T, db *DB, author *model.User, title string, at time.Time, tags ...string) *model.Request {
	t.Helper()
	req := &model.Request{
		Title:       title,
		Description: "about " + title,
		Tags:        tags,
		AuthorID:    author.ID,
		Location:    model.RequestPlace{City: author.Location.City, State: author.Location.State},
		CreatedAt:   at,
	}
	if err := db.CreateRequest(context.Background(), req); err != nil {
		t.Fatalf("failed to create test request: %v", err)
	}
	return req
}

func addTestResponse(t *testing.T, db *DB, req *model.Request, user *model.User, message string) *model.Response {
	t.Helper()
	resp := &model.Response{RequestID: req.ID, UserID: user.ID, Message: message}
	if err := db.AddResponse(context.Background(), resp); err != nil {
		t.Fatalf("failed to add test response: %v", err)
	}
	return resp
}

var base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestTimestampsRoundTripExactly(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 891011, time.UTC)
	if got := fromUnix(toUnix(at)); !got.Equal(at) {
		t.Errorf("fromUnix(toUnix(%v)) = %v", at, got)
	}
	if fromNullUnix(toNullUnix(nil)) != nil {
		t.Error("nil time did not round-trip to nil")
	}
}

func TestEscapeLike(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"50%", `50\%`},
		{"a_b", `a\_b`},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		if got := escapeLike(tt.in); got != tt.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPingContext(t *testing.T) {
	db := newTestDB(t)
	if err := db.PingContext(context.Background()); err != nil {
		t.Fatalf("PingContext() error = %v", err)
	}
}

func TestNew_MigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
}
