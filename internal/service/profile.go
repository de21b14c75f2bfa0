package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sevensolidarity/aidboard/internal/location"
	"github.com/sevensolidarity/aidboard/internal/model"
	"github.com/sevensolidarity/aidboard/internal/repository"
)

// Profile field limits, in characters. Longer input is cut, not rejected.
const (
	MaxDisplayNameLength   = 50
	MaxZipcodeLength       = 10
	MaxLocationLabelLength = 80
	MaxBioLength           = 500
	MaxContactLabelLength  = 30
	MaxContactValueLength  = 100
)

// DefaultCatalogTTL is used when NewProfileService gets a zero TTL.
const DefaultCatalogTTL = 5 * time.Minute

const catalogKey = "catalog"

// ProfileService manages user profiles and the skills/offers catalog.
//
// CATALOG READ MODEL:
// The catalog is an aggregation over every user. It is computed on demand,
// kept in an expiring cache, and dropped from the cache whenever a profile
// changes, so a user sees their own edit reflected straight away.
type ProfileService struct {
	users   repository.UserRepository
	catalog *expirable.LRU[string, *repository.Catalog]
	logger  *slog.Logger

	// mu guards version. version counts profile edits; a catalog built
	// before an edit is not cached after it.
	mu      sync.Mutex
	version uint64
}

// NewProfileService creates a ProfileService. catalogTTL bounds how stale
// the catalog may get through edits made by other processes.
func NewProfileService(users repository.UserRepository, catalogTTL time.Duration, logger *slog.Logger) *ProfileService {
	if catalogTTL <= 0 {
		catalogTTL = DefaultCatalogTTL
	}
	return &ProfileService{
		users:   users,
		catalog: expirable.NewLRU[string, *repository.Catalog](1, nil, catalogTTL),
		logger:  logger,
	}
}

// GetMe returns the caller's full profile, email included.
func (s *ProfileService) GetMe(ctx context.Context, userID string) (*model.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// GetPublic returns the profile of id as anyone may see it.
func (s *ProfileService) GetPublic(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.GetUserByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	u.Email = ""
	u.ExternalID = ""
	return u, nil
}

// UpdateProfileInput holds the editable profile fields. Nil leaves a field
// unchanged.
type UpdateProfileInput struct {
	DisplayName    *string
	Zipcode        *string
	LocationLabel  *string
	Bio            *string
	ContactMethods *[]model.ContactMethod
	Skills         *[]string
	Offers         *[]string
	OpenToHelp     *bool
}

// UpdateMe applies in to the caller's profile.
//
// A new zipcode re-derives city and state from the location table. An
// unknown zipcode is stored but clears city and state, which hides every
// request from the user until they set a known one.
func (s *ProfileService) UpdateMe(ctx context.Context, userID string, in UpdateProfileInput) (*model.User, error) {
	var patch repository.ProfilePatch

	if in.DisplayName != nil {
		v := truncate(strings.TrimSpace(*in.DisplayName), MaxDisplayNameLength)
		patch.DisplayName = &v
	}
	if in.Zipcode != nil {
		zip := truncate(strings.TrimSpace(*in.Zipcode), MaxZipcodeLength)
		loc := &model.Location{Zipcode: zip}
		if place, ok := location.Lookup(zip); ok {
			loc.City, loc.State = place.City, place.State
		}
		patch.Location = loc
	}
	if in.LocationLabel != nil {
		v := truncate(strings.TrimSpace(*in.LocationLabel), MaxLocationLabelLength)
		patch.Label = &v
	}
	if in.Bio != nil {
		v := truncate(strings.TrimSpace(*in.Bio), MaxBioLength)
		patch.Bio = &v
	}
	if in.ContactMethods != nil {
		v := normalizeContacts(*in.ContactMethods)
		patch.Contact = &v
	}
	if in.Skills != nil {
		v := NormalizeTags(*in.Skills)
		patch.Skills = &v
	}
	if in.Offers != nil {
		v := NormalizeTags(*in.Offers)
		patch.Offers = &v
	}
	patch.OpenToHelp = in.OpenToHelp

	u, err := s.users.UpdateProfile(ctx, userID, patch)
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	s.invalidateCatalog()

	s.logger.Info("profile updated",
		slog.String("user_id", userID),
		slog.String("state", u.Location.State),
	)
	return u, nil
}

// Catalog returns the distinct skills and offers across all users.
func (s *ProfileService) Catalog(ctx context.Context) (*repository.Catalog, error) {
	if c, ok := s.catalog.Get(catalogKey); ok {
		return c, nil
	}

	s.mu.Lock()
	version := s.version
	s.mu.Unlock()

	c, err := s.users.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("building catalog: %w", err)
	}

	s.mu.Lock()
	if s.version == version {
		s.catalog.Add(catalogKey, c)
	}
	s.mu.Unlock()
	return c, nil
}

func (s *ProfileService) invalidateCatalog() {
	s.mu.Lock()
	s.version++
	s.catalog.Remove(catalogKey)
	s.mu.Unlock()
}

// normalizeContacts trims and cuts labels and values, drops entries with no
// label, and keeps the first entry for each label (ignoring case).
func normalizeContacts(methods []model.ContactMethod) []model.ContactMethod {
	seen := make(map[string]bool, len(methods))
	out := make([]model.ContactMethod, 0, len(methods))
	for _, m := range methods {
		label := truncate(strings.TrimSpace(m.Label), MaxContactLabelLength)
		if label == "" {
			continue
		}
		key := strings.ToLower(label)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, model.ContactMethod{
			Label: label,
			Value: truncate(strings.TrimSpace(m.Value), MaxContactValueLength),
		})
	}
	return out
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
