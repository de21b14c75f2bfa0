// Package repository declares the storage interfaces the service layer
// depends on. The sqlite subpackage implements them.
package repository

import (
	"context"
	"time"

	"github.com/sevensolidarity/aidboard/internal/model"
)

// MaxSearchResults caps every list and suggestion query.
const MaxSearchResults = 200

// SearchOptions filters a state-scoped request search.
type SearchOptions struct {
	State         string   // requester's state; required
	Query         string   // substring of title, description or author username
	Tags          []string // all must be present
	Status        model.Status
	IncludeClosed bool
	Limit         int
}

// ProfilePatch carries the profile fields a user may edit. Nil means
// "leave unchanged".
type ProfilePatch struct {
	DisplayName *string
	Location    *model.Location
	Label       *string
	Bio         *string
	Contact     *[]model.ContactMethod
	Skills      *[]string
	Offers      *[]string
	OpenToHelp  *bool
}

// Catalog is the distinct set of skills and offers across all users.
type Catalog struct {
	Skills []string `json:"skills"`
	Offers []string `json:"offers"`
}

type UserRepository interface {
	// Upsert inserts or refreshes a user keyed by ExternalID. Identity fields
	// (username, avatar, email) are refreshed; profile fields are preserved.
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	// GetUsersByIDs returns the users that exist, keyed by ID.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*model.User, error)
	// FindByUsernames matches usernames case-insensitively.
	FindByUsernames(ctx context.Context, usernames []string) ([]model.User, error)
	UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (*model.User, error)
	Catalog(ctx context.Context) (*Catalog, error)
}

// CloseParams describes a successful close transition.
type CloseParams struct {
	ResolvedBy            string
	ResolvedAt            time.Time
	SolvedOutsidePlatform bool
}

type RequestRepository interface {
	CreateRequest(ctx context.Context, req *model.Request) error
	// GetRequest loads the request with its tags and responses.
	GetRequest(ctx context.Context, id string) (*model.Request, error)
	UpdateRequest(ctx context.Context, req *model.Request) error
	DeleteRequest(ctx context.Context, id string) error
	// CancelRequest deletes the request only while it is open and has no
	// responses, and fails with a conflict otherwise.
	CancelRequest(ctx context.Context, id string) error

	// AddResponse appends resp only while the parent is still open.
	AddResponse(ctx context.Context, resp *model.Response) error
	UpdateResponse(ctx context.Context, resp *model.Response) error

	// CloseRequest moves an open request to closed and credits the resolver
	// in one transaction. It fails with a conflict if the request is no
	// longer open.
	CloseRequest(ctx context.Context, id string, params CloseParams) error

	Search(ctx context.Context, opts SearchOptions) ([]model.RequestSummary, error)
	SuggestTags(ctx context.Context, prefix string, limit int) ([]string, error)
}
