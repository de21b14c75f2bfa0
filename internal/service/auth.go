package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sevensolidarity/aidboard/internal/apperror"
	"github.com/sevensolidarity/aidboard/internal/auth"
	"github.com/sevensolidarity/aidboard/internal/model"
	"github.com/sevensolidarity/aidboard/internal/repository"
)

// AuthService is the business logic behind sign-in:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT)
//
// It does not set cookies or read HTTP requests; that is the handler's job.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	logger *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

// AuthResult bundles the user record with the tokens issued for it.
type AuthResult struct {
	User *model.User
	// Token is the session JWT (cookie value or bearer token).
	Token string
	// ExchangeToken is set only by LoginOrRegister. It travels to the
	// frontend in the redirect URL and is swapped for a session via Exchange.
	ExchangeToken string
}

// LoginOrRegister handles a completed OAuth callback.
//
//  1. Upsert the user keyed by the provider's external id. First login
//     creates the row; later logins refresh username, avatar and email and
//     leave the profile alone.
//  2. Issue a session token and a short-lived exchange token.
func (s *AuthService) LoginOrRegister(ctx context.Context, identity *auth.Identity) (*AuthResult, error) {
	if identity == nil || identity.ExternalID == "" {
		return nil, apperror.ValidationFailed("externalId", "identity provider returned no user id")
	}

	user := &model.User{
		ExternalID: identity.ExternalID,
		Username:   identity.Username,
		Avatar:     identity.Avatar,
		Email:      identity.Email,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (externalID=%s): %w", identity.ExternalID, err)
	}

	s.logger.Info("user authenticated",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	exchange, err := s.tokens.GenerateExchange(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating exchange token for user %s: %w", user.ID, err)
	}

	return &AuthResult{User: user, Token: token, ExchangeToken: exchange}, nil
}

// Exchange swaps a valid exchange token for a fresh session token.
// Session tokens are refused here, and expired or forged tokens yield
// an Unauthorized error.
func (s *AuthService) Exchange(ctx context.Context, exchangeToken string) (*AuthResult, error) {
	userID, err := s.tokens.ValidateExchange(exchangeToken)
	if err != nil {
		return nil, apperror.Unauthorized("invalid or expired token")
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, apperror.Unauthorized("invalid or expired token")
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByID returns the user for the given internal ID.
//
// Used by /auth/me after the middleware has validated the session token.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("authentication required")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}

	return user, nil
}
