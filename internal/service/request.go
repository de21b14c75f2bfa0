// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository interfaces, not *sqlite.DB, and return
// apperror values so the handler can map them to HTTP without the service
// knowing about status codes.
//
// VISIBILITY:
// Requests are visible only to users who share the author's stored state.
// A request outside the caller's state is reported as not found, never as
// forbidden, so the API does not confirm that it exists.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sevensolidarity/aidboard/internal/apperror"
	"github.com/sevensolidarity/aidboard/internal/mention"
	"github.com/sevensolidarity/aidboard/internal/model"
	"github.com/sevensolidarity/aidboard/internal/repository"
)

// Request content limits, in characters. Longer input is rejected.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
	MaxMessageLength     = 2000
)

// RequestService handles help requests, their responses and the close
// state machine.
type RequestService struct {
	requests repository.RequestRepository
	users    repository.UserRepository
	logger   *slog.Logger

	// now is the clock; tests replace it to control ordering.
	now func() time.Time
}

// NewRequestService creates a RequestService.
func NewRequestService(requests repository.RequestRepository, users repository.UserRepository, logger *slog.Logger) *RequestService {
	return &RequestService{
		requests: requests,
		users:    users,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequestInput is the body of a new request.
type CreateRequestInput struct {
	Title       string
	Description string
	Tags        []string
	// Location is optional. When set, its state must equal the owner's.
	// When nil the owner's city and state are used.
	Location *model.RequestPlace
}

// Create validates and stores a new open request owned by ownerID.
func (s *RequestService) Create(ctx context.Context, ownerID string, in CreateRequestInput) (*model.Request, error) {
	title, err := checkTitle(in.Title)
	if err != nil {
		return nil, err
	}
	description, err := checkLength("description", in.Description, MaxDescriptionLength)
	if err != nil {
		return nil, err
	}

	owner, err := s.users.GetUserByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	place := model.RequestPlace{City: owner.Location.City, State: owner.Location.State}
	if in.Location != nil && !in.Location.IsZero() {
		if !strings.EqualFold(strings.TrimSpace(in.Location.State), owner.Location.State) {
			return nil, apperror.ValidationFailed("location", "request location must be in your own state")
		}
		place = model.RequestPlace{
			City:  strings.TrimSpace(in.Location.City),
			State: owner.Location.State,
		}
	}

	req := &model.Request{
		Title:       title,
		Description: description,
		Tags:        NormalizeTags(in.Tags),
		AuthorID:    owner.ID,
		Location:    place,
		Status:      model.StatusOpen,
		CreatedAt:   s.now(),
	}

	if err := s.requests.CreateRequest(ctx, req); err != nil {
		s.logger.Error("failed to create request",
			slog.String("author_id", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating request: %w", err)
	}

	s.logger.Info("request created",
		slog.String("id", req.ID),
		slog.String("author_id", ownerID),
	)

	return s.load(ctx, req.ID)
}

// Get returns a request as seen by requesterID: author, responders and
// mentioned users populated.
//
// The requester must have a state on their profile, and the author must be
// in that same state; otherwise the request is reported as not found.
func (s *RequestService) Get(ctx context.Context, requesterID, id string) (*model.Request, error) {
	requester, err := s.users.GetUserByID(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if !requester.Location.HasState() {
		return nil, apperror.LocationRequired()
	}

	req, err := s.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	people, err := s.people(ctx, req)
	if err != nil {
		return nil, err
	}
	author, ok := people[req.AuthorID]
	if !ok || !strings.EqualFold(author.Location.State, requester.Location.State) {
		return nil, apperror.NotFound("request", id)
	}

	if err := s.populate(ctx, req, people); err != nil {
		return nil, err
	}
	return req, nil
}

// UpdateRequestInput carries the editable fields; nil leaves a field as is.
type UpdateRequestInput struct {
	Title       *string
	Description *string
	Tags        *[]string
}

// Update edits title, description and tags. Only the author may update.
func (s *RequestService) Update(ctx context.Context, ownerID, id string, in UpdateRequestInput) (*model.Request, error) {
	req, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		if req.Title, err = checkTitle(*in.Title); err != nil {
			return nil, err
		}
	}
	if in.Description != nil {
		if req.Description, err = checkLength("description", *in.Description, MaxDescriptionLength); err != nil {
			return nil, err
		}
	}
	if in.Tags != nil {
		req.Tags = NormalizeTags(*in.Tags)
	}
	editedAt := s.now()
	req.EditedAt = &editedAt

	if err := s.requests.UpdateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("updating request: %w", err)
	}

	s.logger.Info("request updated", slog.String("id", id))
	return s.load(ctx, id)
}

// Delete removes a request with its responses. Only the author may delete.
func (s *RequestService) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.requests.DeleteRequest(ctx, id); err != nil {
		return fmt.Errorf("deleting request: %w", err)
	}
	s.logger.Info("request deleted", slog.String("id", id))
	return nil
}

// Respond appends a response from userID. Any authenticated user may
// respond, the author included, but only while the request is open.
func (s *RequestService) Respond(ctx context.Context, userID, id, message string) (*model.Request, error) {
	message, err := checkMessage(message)
	if err != nil {
		return nil, err
	}

	resp := &model.Response{
		RequestID: id,
		UserID:    userID,
		Message:   message,
		CreatedAt: s.now(),
	}
	// The open check happens inside the insert, so a concurrent close
	// cannot slip a response onto a closed request.
	if err := s.requests.AddResponse(ctx, resp); err != nil {
		return nil, err
	}

	s.logger.Info("response added",
		slog.String("request_id", id),
		slog.String("response_id", resp.ID),
		slog.String("user_id", userID),
	)
	return s.load(ctx, id)
}

// EditResponse replaces the message of one response. Only its author may
// edit it. Editing is allowed after the request is closed.
func (s *RequestService) EditResponse(ctx context.Context, userID, id, responseID, message string) (*model.Request, error) {
	message, err := checkMessage(message)
	if err != nil {
		return nil, err
	}

	req, err := s.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := req.FindResponse(responseID)
	if resp == nil {
		return nil, apperror.NotFound("response", responseID)
	}
	if resp.UserID != userID {
		return nil, apperror.Forbidden("you can only edit your own responses")
	}

	editedAt := s.now()
	resp.Message = message
	resp.EditedAt = &editedAt
	if err := s.requests.UpdateResponse(ctx, resp); err != nil {
		return nil, fmt.Errorf("editing response: %w", err)
	}

	return s.load(ctx, id)
}

// CloseInput selects how a request was resolved.
type CloseInput struct {
	WinnerUserID    string
	OutsidePlatform bool
}

// CloseResult is either the closed request or, when an unanswered request
// was cancelled, a deletion marker.
type CloseResult struct {
	Deleted bool
	ID      string
	Request *model.Request
}

// Close runs the open → closed transition.
//
//   - no responses, OutsidePlatform: the request is cancelled and deleted
//   - responses, OutsidePlatform: closed with no resolver (WinnerUserID ignored)
//   - WinnerUserID: the winner must have responded; they are credited
//     with one helped request
//   - neither: validation error
//
// The repository applies the transition only while the request is still
// open, so a second or concurrent close gets a conflict.
func (s *RequestService) Close(ctx context.Context, ownerID, id string, in CloseInput) (*CloseResult, error) {
	req, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !req.IsOpen() {
		return nil, apperror.Conflict("request is already closed")
	}

	winner := strings.TrimSpace(in.WinnerUserID)
	params := repository.CloseParams{ResolvedAt: s.now()}

	switch {
	case in.OutsidePlatform && len(req.Responses) == 0:
		// A response may arrive after the read above; the repository
		// refuses the cancel in that case.
		if err := s.requests.CancelRequest(ctx, id); err != nil {
			return nil, err
		}
		s.logger.Info("request cancelled", slog.String("id", id))
		return &CloseResult{Deleted: true, ID: id}, nil

	case in.OutsidePlatform:
		params.SolvedOutsidePlatform = true

	case winner != "":
		if !req.HasResponder(winner) {
			return nil, apperror.ValidationFailed("winnerUserId", "the selected helper has not responded to this request")
		}
		params.ResolvedBy = winner

	default:
		return nil, apperror.ValidationFailed("winnerUserId", "select a resolver or mark solved outside platform")
	}

	if err := s.requests.CloseRequest(ctx, id, params); err != nil {
		return nil, err
	}

	s.logger.Info("request closed",
		slog.String("id", id),
		slog.String("resolved_by", params.ResolvedBy),
		slog.Bool("outside_platform", params.SolvedOutsidePlatform),
	)

	closed, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CloseResult{ID: id, Request: closed}, nil
}

// owned loads a request and checks that ownerID wrote it.
func (s *RequestService) owned(ctx context.Context, ownerID, id string) (*model.Request, error) {
	req, err := s.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.AuthorID != ownerID {
		return nil, apperror.Forbidden("only the author can change this request")
	}
	return req, nil
}

// load reads a request back after a write and populates its users. Writes
// are already authorized, so no visibility check applies.
func (s *RequestService) load(ctx context.Context, id string) (*model.Request, error) {
	req, err := s.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	people, err := s.people(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.populate(ctx, req, people); err != nil {
		return nil, err
	}
	return req, nil
}

// people fetches the author, every responder and the resolver in one query.
func (s *RequestService) people(ctx context.Context, req *model.Request) (map[string]*model.User, error) {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	add(req.AuthorID)
	for _, resp := range req.Responses {
		add(resp.UserID)
	}
	if req.Resolution != nil {
		add(req.Resolution.ResolvedBy)
	}

	people, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading request users: %w", err)
	}
	return people, nil
}

// populate fills author, responder and resolver summaries and builds the
// mention list: author, then responders, then users named by an @username
// token in the description or any response message.
func (s *RequestService) populate(ctx context.Context, req *model.Request, people map[string]*model.User) error {
	summary := func(id string) *model.UserSummary {
		if u, ok := people[id]; ok {
			sum := u.Summary()
			return &sum
		}
		return nil
	}

	var (
		mentions []model.UserSummary
		listed   = map[string]bool{}
	)
	add := func(sum *model.UserSummary) {
		if sum == nil || listed[sum.ID] {
			return
		}
		listed[sum.ID] = true
		mentions = append(mentions, *sum)
	}

	req.Author = summary(req.AuthorID)
	add(req.Author)

	texts := []string{req.Description}
	for i := range req.Responses {
		resp := &req.Responses[i]
		resp.User = summary(resp.UserID)
		add(resp.User)
		texts = append(texts, resp.Message)
	}
	if req.Resolution != nil && req.Resolution.ResolvedBy != "" {
		req.Resolution.Resolver = summary(req.Resolution.ResolvedBy)
	}

	if names := mention.Usernames(texts...); len(names) > 0 {
		found, err := s.users.FindByUsernames(ctx, names)
		if err != nil {
			return fmt.Errorf("resolving mentions: %w", err)
		}
		for i := range found {
			sum := found[i].Summary()
			add(&sum)
		}
	}

	if mentions == nil {
		mentions = []model.UserSummary{}
	}
	req.Mentions = mentions

	req.DescriptionSegments = mention.Resolve(req.Description, mentions)
	for i := range req.Responses {
		req.Responses[i].Segments = mention.Resolve(req.Responses[i].Message, mentions)
	}
	return nil
}

func checkTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperror.ValidationFailed("title", "title is required")
	}
	return checkLength("title", title, MaxTitleLength)
}

func checkMessage(message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", apperror.ValidationFailed("message", "message is required")
	}
	return checkLength("message", message, MaxMessageLength)
}

// checkLength trims v and rejects it when it is longer than limit characters.
func checkLength(field, v string, limit int) (string, error) {
	v = strings.TrimSpace(v)
	if utf8.RuneCountInString(v) > limit {
		return "", apperror.ValidationFailed(field, fmt.Sprintf("%s must be at most %d characters", field, limit))
	}
	return v, nil
}
