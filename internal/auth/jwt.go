// Package auth provides identity-provider login, JWT sessions and the
// middleware that attaches the caller's user ID to each request.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. User visits /auth/discord/login → redirected to Discord
//  2. Discord calls back /auth/discord/callback with a code
//  3. Server exchanges the code for the Discord identity and upserts the user
//  4. Server sets a session cookie and redirects to the frontend with a
//     short-lived exchange token in the query string
//  5. The frontend POSTs the exchange token to /auth/exchange-token, which sets
//     the session cookie on the API origin and returns the session token
//  6. Every API call carries the session token as the "token" cookie or as an
//     "Authorization: Bearer" header; middleware validates it and puts the
//     user ID in the request context
//
// TOKEN PURPOSES:
// Session and exchange tokens are both HS256 JWTs signed with the same secret.
// A "purpose" claim keeps them apart: a leaked exchange token (it travels in a
// URL) cannot be replayed as a session, and a session token cannot be fed to
// the exchange endpoint.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "aidboard"

// Purpose tells session and exchange tokens apart.
type Purpose string

const (
	PurposeSession  Purpose = "session"
	PurposeExchange Purpose = "exchange"
)

// Default lifetimes.
const (
	DefaultSessionTTL  = 30 * 24 * time.Hour
	DefaultExchangeTTL = 2 * time.Minute
)

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret      []byte
	sessionTTL  time.Duration
	exchangeTTL time.Duration
}

// NewTokenService creates a TokenService with the given secret and session
// lifetime (zero selects DefaultSessionTTL).
func NewTokenService(secret string, sessionTTL time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &TokenService{
		secret:      []byte(secret),
		sessionTTL:  sessionTTL,
		exchangeTTL: DefaultExchangeTTL,
	}, nil
}

// SessionTTL is the lifetime of issued session tokens; the session cookie
// uses the same max age.
func (s *TokenService) SessionTTL() time.Duration {
	return s.sessionTTL
}

// claims is the JWT payload. "sub" carries the internal user ID.
type claims struct {
	Purpose Purpose `json:"pur"`
	jwt.RegisteredClaims
}

// Generate issues a session token for userID.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.sign(userID, PurposeSession, s.sessionTTL)
}

// GenerateExchange issues a short-lived exchange token for userID.
func (s *TokenService) GenerateExchange(userID string) (string, error) {
	return s.sign(userID, PurposeExchange, s.exchangeTTL)
}

// GenerateWithDuration issues a session token with a custom lifetime.
// Used in tests (a negative duration yields an already-expired token).
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	return s.sign(userID, PurposeSession, d)
}

func (s *TokenService) sign(userID string, purpose Purpose, ttl time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate verifies a session token and returns the user ID it encodes.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	return s.validate(tokenStr, PurposeSession)
}

// ValidateExchange verifies an exchange token and returns its user ID.
func (s *TokenService) ValidateExchange(tokenStr string) (string, error) {
	return s.validate(tokenStr, PurposeExchange)
}

// validate checks signature, algorithm (HS256 only, which blocks the "none"
// algorithm confusion attack), issuer, expiry and purpose.
func (s *TokenService) validate(tokenStr string, purpose Purpose) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Purpose != purpose {
		return "", fmt.Errorf("auth: token purpose %q, want %q", c.Purpose, purpose)
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return c.Subject, nil
}
