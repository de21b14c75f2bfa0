package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sevensolidarity/aidboard/internal/apperror"
	"github.com/sevensolidarity/aidboard/internal/model"
	"github.com/sevensolidarity/aidboard/internal/repository"
)

// ListQuery is the set of list filters as they arrive from the query string.
type ListQuery struct {
	Q             string
	Tags          string // comma-separated
	Status        string // "open", "closed" or empty
	IncludeClosed bool
}

// List returns the requests visible to requesterID, filtered and ranked by
// the repository (fewest responses first, then newest).
//
// A requester without a state gets LocationRequired rather than an empty
// list: the client should send them to their profile.
func (s *RequestService) List(ctx context.Context, requesterID string, q ListQuery) ([]model.RequestSummary, error) {
	requester, err := s.users.GetUserByID(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if !requester.Location.HasState() {
		return nil, apperror.LocationRequired()
	}

	status := model.Status(strings.ToLower(strings.TrimSpace(q.Status)))
	if status != "" && !status.Valid() {
		return nil, apperror.ValidationFailed("status", `status must be "open" or "closed"`)
	}

	results, err := s.requests.Search(ctx, repository.SearchOptions{
		State:         requester.Location.State,
		Query:         strings.TrimSpace(q.Q),
		Tags:          splitTags(q.Tags),
		Status:        status,
		IncludeClosed: q.IncludeClosed,
		Limit:         repository.MaxSearchResults,
	})
	if err != nil {
		s.logger.Error("failed to search requests",
			slog.String("state", requester.Location.State),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("searching requests: %w", err)
	}

	return results, nil
}

// SuggestTags returns known tags starting with prefix. It is not scoped by
// state: the tag namespace is shared by everyone.
func (s *RequestService) SuggestTags(ctx context.Context, prefix string) ([]string, error) {
	tags, err := s.requests.SuggestTags(ctx, strings.TrimSpace(prefix), repository.MaxSearchResults)
	if err != nil {
		return nil, fmt.Errorf("suggesting tags: %w", err)
	}
	return tags, nil
}
