package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// SessionCookie is the name of the HttpOnly cookie carrying the session JWT.
const SessionCookie = "token"

// contextKey keeps this package's context values out of reach of others.
type contextKey string

const userIDKey contextKey = "userID"

// errNoToken means the request carried neither a session cookie nor a bearer
// header. It is an anonymous request, not a malformed one.
var errNoToken = errors.New("auth: no session token")

// RequireAuth rejects requests without a valid session token with a 401 in
// the API's error format. Otherwise it stores the caller's user ID in the
// request context.
//
// The token is read from the "token" cookie, then from an
// "Authorization: Bearer" header. The header serves frontends on another
// site, where the browser drops third-party cookies; they keep the token
// returned by /auth/exchange-token.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// OptionalAuth attaches the user ID when a valid token is present and lets
// every request through.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := extractUserID(r, tokens); err == nil {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUserID returns a copy of ctx carrying userID. The middlewares use it
// after validating a token; handler tests use it to skip the JWT round-trip.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the caller's user ID, or ("", false) for an
// anonymous request.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// TokenFromRequest returns the raw session token sent with r: the cookie
// first, then the bearer header.
func TokenFromRequest(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if found && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token, nil
		}
	}

	return "", errNoToken
}

func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	token, err := TokenFromRequest(r)
	if err != nil {
		return "", err
	}
	return tokens.Validate(token)
}

// writeUnauthorized writes the same body shape the handler package uses for
// every error. It is duplicated here because handler imports auth.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": "authentication required",
		"code":  "unauthorized",
	})
}
