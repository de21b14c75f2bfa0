package sqlite

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sevensolidarity/aidboard/internal/apperror"
	"github.com/sevensolidarity/aidboard/internal/model"
	"github.com/sevensolidarity/aidboard/internal/repository"
)

// =========================================================================
// CREATE / GET TESTS
// =========================================================================

func TestCreateRequest(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice", "WA")

	req := &model.Request{Title: "Ride", AuthorID: alice.ID, Tags: []string{"transport", "medical"}}
	if err := db.CreateRequest(context.Background(), req); err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}

	if req.ID == "" {
		t.Error("CreateRequest() did not set ID")
	}
	if req.CreatedAt.IsZero() {
		t.Error("CreateRequest() did not set CreatedAt")
	}
	if req.Status != model.StatusOpen {
		t.Errorf("Status = %q, want open", req.Status)
	}
}

func TestGetRequest_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice", "WA")
	bob := createTestUser(t, db, "bob", "WA")

	original := createTestRequest(t, db, alice, "groceries", base, "food", "Errands")
	first := addTestResponse(t, db, original, bob, "I can go Tuesday")
	second := addTestResponse(t, db, original, alice, "thanks!")

	got, err := db.GetRequest(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}

	if got.Title != "groceries" || got.AuthorID != alice.ID {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
	}
	if !reflect.DeepEqual(got.Tags, []string{"food", "Errands"}) {
		t.Errorf("Tags = %v, want stored order and casing", got.Tags)
	}
	if got.Location.State != "WA" {
		t.Errorf("Location = %+v", got.Location)
	}
	if len(got.Responses) != 2 || got.Responses[0].ID != first.ID || got.Responses[1].ID != second.ID {
		t.Errorf("responses out of thread order: %+v", got.Responses)
	}
	if got.Resolution != nil {
		t.Error("open request has a resolution")
	}
}

func TestGetRequest_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetRequest(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetRequest() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UPDATE / DELETE TESTS
// =========================================================================

func TestUpdateRequest_ReplacesTags(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice", "WA")
	req := createTestRequest(t, db, alice, "old", base, "a", "b", "c")

	edited := base.Add(time.Hour)
	req.Title = "new"
	req.Description = "changed"
	req.Tags = []string{"z"}
	req.EditedAt = &edited
	if err := db.UpdateRequest(ctx, req); err != nil {
		t.Fatalf("UpdateRequest() error = %v", err)
	}

	got, err := db.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "new" || got.Description != "changed" {
		t.Errorf("got %q / %q", got.Title, got.Description)
	}
	if !reflect.DeepEqual(got.Tags, []string{"z"}) {
		t.Errorf("Tags = %v, want [z]", got.Tags)
	}
	if got.EditedAt == nil || !got.EditedAt.Equal(edited) {
		t.Errorf("EditedAt = %v, want %v", got.EditedAt, edited)
	}
}

func TestUpdateRequest_NotFound(t *testing.T) {
	db := newTestDB(t)
	err := db.UpdateRequest(context.Background(), &model.Request{ID: "missing", Title: "x"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateRequest() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteRequest_RemovesChildren(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice", "WA")
	bob := createTestUser(t, db, "bob", "WA")
	req := createTestRequest(t, db, alice, "gone soon", base, "food")
	addTestResponse(t, db, req, bob, "hi")

	if err := db.DeleteRequest(ctx, req.ID); err != nil {
		t.Fatalf("DeleteRequest() error = %v", err)
	}

	if _, err := db.GetRequest(ctx, req.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetRequest() after delete error = %v, want ErrNotFound", err)
	}

	var orphans int
	if err := db.conn.QueryRow(
		`SELECT (SELECT COUNT(*) FROM responses) + (SELECT COUNT(*) FROM request_tags)`,
	).Scan(&orphans); err != nil {
		t.Fatal(err)
	}
	if orphans != 0 {
		t.Errorf("%d child rows left after delete", orphans)
	}

	// Back-references disappear with the rows.
	u, err := db.GetUserByID(ctx, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(u.ResponseIDs) != 0 {
		t.Errorf("bob.ResponseIDs = %v, want empty", u.ResponseIDs)
	}
}

func TestDeleteRequest_NotFound(t *testing.T) {
	db := newTestDB(t)
	err := db.DeleteRequest(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("DeleteRequest() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// RESPONSE TESTS
// =========================================================================

func TestAddResponse_Errors(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice", "WA")
	bob := createTestUser(t, db, "bob", "WA")
	req := createTestRequest(t, db, alice, "r", base)
	addTestResponse(t, db, req, bob, "first")

	err := db.AddResponse(ctx, &model.Response{RequestID: "missing", UserID: bob.ID, Message: "x"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("AddResponse(missing) error = %v, want ErrNotFound", err)
	}

	if err := db.CloseRequest(ctx, req.ID, repository.CloseParams{ResolvedAt: base, SolvedOutsidePlatform: true}); err != nil {
		t.Fatal(err)
	}
	err = db.AddResponse(ctx, &model.Response{RequestID: req.ID, UserID: bob.ID, Message: "late"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("AddResponse(closed) error = %v, want ErrConflict", err)
	}
}

func TestUpdateResponse(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice", "WA")
	bob := createTestUser(t, db, "bob", "WA")
	req := createTestRequest(t, db, alice, "r", base)
	resp := addTestResponse(t, db, req, bob, "before")

	edited := base.Add(time.Minute)
	resp.Message = "after"
	resp.EditedAt = &edited
	if err := db.UpdateResponse(ctx, resp); err != nil {
		t.Fatalf("UpdateResponse() error = %v", err)
	}

	got, err := db.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Responses[0].Message != "after" || got.Responses[0].EditedAt == nil {
		t.Errorf("response not updated: %+v", got.Responses[0])
	}

	// Response ids are scoped to their parent.
	err = db.UpdateResponse(ctx, &model.Response{RequestID: "other", ID: resp.ID, Message: "x"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateResponse(wrong parent) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// CLOSE TESTS
// =========================================================================

func TestCloseRequest_CreditsResolver(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice", "WA")
	bob := createTestUser(t, db, "bob", "WA")
	req := createTestRequest(t, db, alice, "r", base)
	addTestResponse(t, db, req, bob, "done")

	at := base.Add(2 * time.Hour)
	if err := db.CloseRequest(ctx, req.ID, repository.CloseParams{ResolvedBy: bob.ID, ResolvedAt: at}); err != nil {
		t.Fatalf("CloseRequest() error = %v", err)
	}

	got, err := db.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusClosed {
		t.Errorf("Status = %q, want closed", got.Status)
	}
	if got.Resolution == nil || got.Resolution.ResolvedBy != bob.ID || !got.Resolution.ResolvedAt.Equal(at) {
		t.Errorf("Resolution = %+v", got.Resolution)
	}

	u, err := db.GetUserByID(ctx, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if u.HelpedCount != 1 {
		t.Errorf("HelpedCount = %d, want 1", u.HelpedCount)
	}
}

func TestCloseRequest_OutsidePlatform(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice", "WA")
	req := createTestRequest(t, db, alice, "r", base)

	if err := db.CloseRequest(ctx, req.ID, repository.CloseParams{ResolvedAt: base, SolvedOutsidePlatform: true}); err != nil {
		t.Fatalf("CloseRequest() error = %v", err)
	}
	got, err := db.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Resolution == nil || !got.Resolution.SolvedOutsidePlatform || got.Resolution.ResolvedBy != "" {
		t.Errorf("Resolution = %+v", got.Resolution)
	}
}

func TestCloseRequest_UnknownResolverRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice", "WA")
	req := createTestRequest(t, db, alice, "r", base)

	err := db.CloseRequest(ctx, req.ID, repository.CloseParams{ResolvedBy: "ghost", ResolvedAt: base})
	if err == nil {
		t.Fatal("CloseRequest() with unknown resolver succeeded")
	}

	got, err := db.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusOpen {
		t.Errorf("Status = %q after failed close, want open", got.Status)
	}
}

func TestCloseRequest_Errors(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice", "WA")
	req := createTestRequest(t, db, alice, "r", base)
	params := repository.CloseParams{ResolvedAt: base, SolvedOutsidePlatform: true}

	if err := db.CloseRequest(ctx, "missing", params); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("CloseRequest(missing) error = %v, want ErrNotFound", err)
	}
	if err := db.CloseRequest(ctx, req.ID, params); err != nil {
		t.Fatal(err)
	}
	if err := db.CloseRequest(ctx, req.ID, params); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("second CloseRequest() error = %v, want ErrConflict", err)
	}
}

// TestCloseRequest_Concurrent races several closes; exactly one wins and the
// resolver is credited exactly once.
func TestCloseRequest_Concurrent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice", "WA")
	bob := createTestUser(t, db, "bob", "WA")
	req := createTestRequest(t, db, alice, "r", base)
	addTestResponse(t, db, req, bob, "me!")

	const racers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		won       int
		conflicts int
	)
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.CloseRequest(ctx, req.ID, repository.CloseParams{ResolvedBy: bob.ID, ResolvedAt: base})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, apperror.ErrConflict):
				conflicts++
			default:
				t.Errorf("CloseRequest() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	if won != 1 || conflicts != racers-1 {
		t.Errorf("won=%d conflicts=%d, want 1 and %d", won, conflicts, racers-1)
	}
	u, err := db.GetUserByID(ctx, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if u.HelpedCount != 1 {
		t.Errorf("HelpedCount = %d, want 1", u.HelpedCount)
	}
}

func TestCancelRequest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice", "WA")
	bob := createTestUser(t, db, "bob", "WA")

	quiet := createTestRequest(t, db, alice, "quiet", base, "rides")
	if err := db.CancelRequest(ctx, quiet.ID); err != nil {
		t.Fatalf("CancelRequest() error = %v", err)
	}
	if _, err := db.GetRequest(ctx, quiet.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetRequest() after cancel error = %v, want ErrNotFound", err)
	}
	if tags, err := db.SuggestTags(ctx, "rides", 10); err != nil || len(tags) != 0 {
		t.Errorf("tags survived cancel: %v, %v", tags, err)
	}

	answered := createTestRequest(t, db, alice, "answered", base)
	addTestResponse(t, db, answered, bob, "on my way")
	if err := db.CancelRequest(ctx, answered.ID); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("CancelRequest(answered) error = %v, want ErrConflict", err)
	}
	got, err := db.GetRequest(ctx, answered.ID)
	if err != nil {
		t.Fatalf("GetRequest(answered) error = %v", err)
	}
	if len(got.Responses) != 1 {
		t.Errorf("answered request has %d responses, want 1", len(got.Responses))
	}

	closed := createTestRequest(t, db, alice, "closed", base)
	if err := db.CloseRequest(ctx, closed.ID, repository.CloseParams{ResolvedAt: base, SolvedOutsidePlatform: true}); err != nil {
		t.Fatal(err)
	}
	if err := db.CancelRequest(ctx, closed.ID); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("CancelRequest(closed) error = %v, want ErrConflict", err)
	}

	if err := db.CancelRequest(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("CancelRequest(missing) error = %v, want ErrNotFound", err)
	}
}
