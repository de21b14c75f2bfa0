package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/rs/xid"

	"github.com/sevensolidarity/aidboard/internal/auth"
	"github.com/sevensolidarity/aidboard/internal/model"
	"github.com/sevensolidarity/aidboard/internal/service"
)

const stateCookie = "oauth_state"

// AuthConfig holds the settings the auth routes need beyond their services.
type AuthConfig struct {
	// FrontendURL receives the browser after a successful login, with the
	// exchange token appended as ?auth_token=.
	FrontendURL string
	// CookieSecure marks cookies Secure and SameSite=None, which a frontend
	// on another site needs. Leave false for plain-HTTP local development.
	CookieSecure bool
}

// AuthHandler manages the Discord OAuth login flow and session management.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin         → redirect the browser to Discord's authorization page
//   - HandleCallback      → receive the code, sign the user in, redirect to the frontend
//   - HandleExchangeToken → swap the short-lived exchange token for a session
//   - HandleMe            → who is signed in
//   - HandleLogout        → clear the session cookie
//   - HandleFailure       → where failed logins land
type AuthHandler struct {
	provider auth.IdentityProvider
	service  *service.AuthService
	tokens   *auth.TokenService
	config   AuthConfig
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected here;
// the handler has no knowledge of how they're constructed.
func NewAuthHandler(
	provider auth.IdentityProvider,
	svc *service.AuthService,
	tokens *auth.TokenService,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		service:  svc,
		tokens:   tokens,
		config:   cfg,
		logger:   logger,
	}
}

// HandleLogin redirects the user to Discord's authorization page.
//
// HTTP: GET /auth/discord/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived HttpOnly cookie and into the
// authorization URL. HandleCallback only proceeds when the two match, which
// proves the callback belongs to a login this browser started.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleCallback completes the OAuth login flow.
//
// HTTP: GET /auth/discord/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the Discord identity
//  3. Upsert the user and issue tokens
//  4. Set the session cookie
//  5. Redirect to the frontend with the exchange token
//
// Any provider-side failure lands on /auth/failure.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || query.Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		h.fail(w, r)
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := query.Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		h.fail(w, r)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.fail(w, r)
		return
	}

	identity, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: provider exchange failed", slog.String("error", err.Error()))
		h.fail(w, r)
		return
	}

	result, err := h.service.LoginOrRegister(r.Context(), identity)
	if err != nil {
		h.logger.Error("auth callback: sign-in failed", slog.String("error", err.Error()))
		h.fail(w, r)
		return
	}

	h.setSession(w, result.Token)

	target, err := url.Parse(h.config.FrontendURL)
	if err != nil || h.config.FrontendURL == "" {
		target = &url.URL{Path: "/"}
	}
	q := target.Query()
	q.Set("auth_token", result.ExchangeToken)
	target.RawQuery = q.Encode()

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}

type exchangeBody struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// HandleExchangeToken swaps the exchange token from the login redirect for
// a session cookie set on the API's own origin.
//
// HTTP: POST /auth/exchange-token
// BODY: {"token": "<exchange token>"}
func (h *AuthHandler) HandleExchangeToken(w http.ResponseWriter, r *http.Request) {
	var body exchangeBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.service.Exchange(r.Context(), body.Token)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.setSession(w, result.Token)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, sessionResponse{User: result.User, Token: result.Token})
}

// HandleMe reports who is signed in.
//
// HTTP: GET /auth/me
// Auth: optional. Anonymous callers get {"user": null} rather than a 401 so
// the frontend can check the session on load.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}

	user, err := h.service.GetUserByID(r.Context(), userID)
	if err != nil {
		// A valid token for a user that no longer exists is just anonymous.
		h.logger.Warn("auth me: user lookup failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Sessions are stateless JWTs, so logging out only removes the cookie. A
// copied token stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.sessionCookie("", -1))
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleFailure is the landing route for failed logins.
//
// HTTP: GET /auth/failure
func (h *AuthHandler) HandleFailure(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error: "Authentication failed",
		Code:  "unauthorized",
	})
}

func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/auth/failure", http.StatusSeeOther)
}

func (h *AuthHandler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, h.sessionCookie(token, int(h.tokens.SessionTTL().Seconds())))
}

// sessionCookie builds the session cookie. HttpOnly keeps it away from
// scripts; a cross-site frontend needs SameSite=None, which browsers only
// accept together with Secure.
func (h *AuthHandler) sessionCookie(value string, maxAge int) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if h.config.CookieSecure {
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: sameSite,
	}
}
