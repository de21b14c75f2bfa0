package sqlite

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/sevensolidarity/aidboard/internal/model"
	"github.com/sevensolidarity/aidboard/internal/repository"
)

func ids(results []model.RequestSummary) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func search(t *testing.T, db *DB, opts repository.SearchOptions) []model.RequestSummary {
	t.Helper()
	results, err := db.Search(context.Background(), opts)
	if err != nil {
		t.Fatalf("Search(%+v) error = %v", opts, err)
	}
	return results
}

func TestSearch_ScopedToState(t *testing.T) {
	db := newTestDB(t)
	wa := createTestUser(t, db, "wa", "WA")
	ny := createTestUser(t, db, "ny", "NY")

	local := createTestRequest(t, db, wa, "local", base)
	createTestRequest(t, db, ny, "far away", base)

	got := search(t, db, repository.SearchOptions{State: "wa"})
	if !reflect.DeepEqual(ids(got), []string{local.ID}) {
		t.Errorf("Search(WA) = %v, want [%s]", ids(got), local.ID)
	}
	if got[0].Author == nil || got[0].Author.Username != "wa" {
		t.Errorf("Author = %+v", got[0].Author)
	}
}

func TestSearch_FollowsAuthorsCurrentState(t *testing.T) {
	db := newTestDB(t)
	mover := createTestUser(t, db, "mover", "WA")
	req := createTestRequest(t, db, mover, "boxes", base)

	if _, err := db.UpdateProfile(context.Background(), mover.ID, repository.ProfilePatch{
		Location: &model.Location{Zipcode: "10001", City: "New York", State: "NY"},
	}); err != nil {
		t.Fatal(err)
	}

	if got := search(t, db, repository.SearchOptions{State: "WA"}); len(got) != 0 {
		t.Errorf("Search(WA) after move = %v, want empty", ids(got))
	}
	if got := search(t, db, repository.SearchOptions{State: "NY"}); !reflect.DeepEqual(ids(got), []string{req.ID}) {
		t.Errorf("Search(NY) after move = %v, want [%s]", ids(got), req.ID)
	}
}

func TestSearch_Ranking(t *testing.T) {
	db := newTestDB(t)
	author := createTestUser(t, db, "author", "WA")
	helper := createTestUser(t, db, "helper", "WA")

	older := createTestRequest(t, db, author, "older", base)
	newer := createTestRequest(t, db, author, "newer", base.Add(time.Hour))
	busy := createTestRequest(t, db, author, "busy", base.Add(2*time.Hour))
	addTestResponse(t, db, busy, helper, "1")
	addTestResponse(t, db, busy, helper, "2")
	one := createTestRequest(t, db, author, "one", base.Add(-time.Hour))
	addTestResponse(t, db, one, helper, "1")

	got := search(t, db, repository.SearchOptions{State: "WA"})
	want := []string{newer.ID, older.ID, one.ID, busy.ID}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("ranking = %v, want %v", ids(got), want)
	}
	if got[3].ResponseCount != 2 {
		t.Errorf("busy.ResponseCount = %d, want 2", got[3].ResponseCount)
	}
}

func TestSearch_Filters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice", "WA")
	bob := createTestUser(t, db, "bobby", "WA")

	ride := createTestRequest(t, db, alice, "Ride to clinic", base, "Transport", "medical")
	soup := createTestRequest(t, db, alice, "Soup for a cold", base.Add(time.Minute), "food", "medical")
	move := createTestRequest(t, db, bob, "Couch move", base.Add(2*time.Minute), "moving")
	pct := createTestRequest(t, db, bob, "50% off coupons", base.Add(3*time.Minute))

	if err := db.CloseRequest(ctx, soup.ID, repository.CloseParams{ResolvedAt: base, SolvedOutsidePlatform: true}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		opts repository.SearchOptions
		want []string
	}{
		{"default is open only", repository.SearchOptions{}, []string{pct.ID, move.ID, ride.ID}},
		{"include closed", repository.SearchOptions{IncludeClosed: true}, []string{pct.ID, move.ID, soup.ID, ride.ID}},
		{"closed only", repository.SearchOptions{Status: model.StatusClosed}, []string{soup.ID}},
		{"title contains, any case", repository.SearchOptions{Query: "CLINIC"}, []string{ride.ID}},
		{"description contains", repository.SearchOptions{Query: "about couch"}, []string{move.ID}},
		{"author username", repository.SearchOptions{Query: "bobb"}, []string{pct.ID, move.ID}},
		{"tag, any case", repository.SearchOptions{Tags: []string{"transport"}}, []string{ride.ID}},
		{"all tags must match", repository.SearchOptions{Tags: []string{"medical", "food"}, IncludeClosed: true}, []string{soup.ID}},
		{"unknown tag", repository.SearchOptions{Tags: []string{"pets"}}, nil},
		{"percent is literal", repository.SearchOptions{Query: "50%"}, []string{pct.ID}},
		{"underscore is literal", repository.SearchOptions{Query: "_"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.State = "WA"
			got := ids(search(t, db, tt.opts))
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Search() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearch_LimitAndTags(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice", "WA")
	for i := range 5 {
		createTestRequest(t, db, alice, "r", base.Add(time.Duration(i)*time.Minute), "b", "a")
	}

	got := search(t, db, repository.SearchOptions{State: "WA", Limit: 3})
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for _, r := range got {
		if !reflect.DeepEqual(r.Tags, []string{"b", "a"}) {
			t.Errorf("Tags = %v, want stored order [b a]", r.Tags)
		}
	}
}

func TestSearch_EmptyIsNotNil(t *testing.T) {
	db := newTestDB(t)
	got := search(t, db, repository.SearchOptions{State: "WA"})
	if got == nil {
		t.Error("Search() returned nil, want empty slice")
	}
}

func TestSuggestTags(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	wa := createTestUser(t, db, "wa", "WA")
	ny := createTestUser(t, db, "ny", "NY")

	createTestRequest(t, db, wa, "first", base, "Food", "furniture")
	createTestRequest(t, db, ny, "second", base.Add(time.Hour), "food", "FOOD bank", "rides")

	tests := []struct {
		prefix string
		want   []string
	}{
		// Earliest stored casing wins, across every state.
		{"f", []string{"Food", "FOOD bank", "furniture"}},
		{"FO", []string{"Food", "FOOD bank"}},
		{"", []string{"Food", "FOOD bank", "furniture", "rides"}},
		{"x", []string{}},
	}
	for _, tt := range tests {
		got, err := db.SuggestTags(ctx, tt.prefix, 10)
		if err != nil {
			t.Fatalf("SuggestTags(%q) error = %v", tt.prefix, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SuggestTags(%q) = %v, want %v", tt.prefix, got, tt.want)
		}
	}

	limited, err := db.SuggestTags(ctx, "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("SuggestTags limit 2 returned %d tags", len(limited))
	}
}

func TestSearch_FoldsNonASCIICase(t *testing.T) {
	db := newTestDB(t)
	author := createTestUser(t, db, "Łukasz", "WA")
	req := createTestRequest(t, db, author, "ÜBER help", base, "ÉPICERIE")
	createTestRequest(t, db, author, "groceries", base.Add(time.Minute), "food")

	tests := []struct {
		name string
		opts repository.SearchOptions
	}{
		{"tag, same casing", repository.SearchOptions{Tags: []string{"ÉPICERIE"}}},
		{"tag, other casing", repository.SearchOptions{Tags: []string{"épicerie"}}},
		{"title, same casing", repository.SearchOptions{Query: "ÜBER"}},
		{"title, other casing", repository.SearchOptions{Query: "über"}},
		{"author username", repository.SearchOptions{Query: "łUK"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.State = "WA"
			if got := ids(search(t, db, tt.opts)); !reflect.DeepEqual(got, []string{req.ID}) {
				t.Errorf("Search() = %v, want [%s]", got, req.ID)
			}
		})
	}

	for _, prefix := range []string{"É", "é", "ÉPI"} {
		got, err := db.SuggestTags(context.Background(), prefix, 10)
		if err != nil {
			t.Fatalf("SuggestTags(%q) error = %v", prefix, err)
		}
		if !reflect.DeepEqual(got, []string{"ÉPICERIE"}) {
			t.Errorf("SuggestTags(%q) = %v, want [ÉPICERIE]", prefix, got)
		}
	}
}

func TestSearch_FoldsEditedTitle(t *testing.T) {
	db := newTestDB(t)
	author := createTestUser(t, db, "alice", "WA")
	req := createTestRequest(t, db, author, "old title", base)

	req.Title = "Ärger mit dem Umzug"
	req.Tags = []string{"ÖPNV"}
	if err := db.UpdateRequest(context.Background(), req); err != nil {
		t.Fatalf("UpdateRequest() error = %v", err)
	}

	got := search(t, db, repository.SearchOptions{State: "WA", Query: "ärger", Tags: []string{"öpnv"}})
	if !reflect.DeepEqual(ids(got), []string{req.ID}) {
		t.Errorf("Search() = %v, want [%s]", ids(got), req.ID)
	}
	if got := search(t, db, repository.SearchOptions{State: "WA", Query: "old"}); len(got) != 0 {
		t.Errorf("Search(old) = %v, want empty", ids(got))
	}
}
