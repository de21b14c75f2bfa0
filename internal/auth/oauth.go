package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// Identity is what the board needs from the identity provider: a stable
// external id plus the display fields refreshed on every login.
type Identity struct {
	ExternalID string
	Username   string
	Avatar     string
	Email      string
}

// IdentityProvider is the OAuth collaborator used by the auth handler.
// DiscordProvider is the production implementation; tests substitute a fake.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// discordEndpoint is Discord's OAuth2 Authorization Code endpoint pair.
var discordEndpoint = oauth2.Endpoint{
	AuthURL:   "https://discord.com/oauth2/authorize",
	TokenURL:  "https://discord.com/api/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

const discordUserURL = "https://discord.com/api/users/@me"

// discordUser is the portion of Discord's /users/@me response we use.
type discordUser struct {
	ID       string `json:"id"`       // snowflake, stable
	Username string `json:"username"`
	Avatar   string `json:"avatar"`   // avatar hash, may be empty
	Email    string `json:"email"`    // requires the "email" scope
}

// DiscordProvider wraps golang.org/x/oauth2 for the Discord Authorization Code flow.
//
// The code-for-token exchange happens server-to-server using the client
// secret; the provider access token never reaches the browser and is
// discarded once the identity has been read.
type DiscordProvider struct {
	config  *oauth2.Config
	userURL string
}

var _ IdentityProvider = (*DiscordProvider)(nil)

// NewDiscordProvider creates a DiscordProvider. callbackURL must match a
// redirect registered for the Discord application exactly.
//
// Scopes: "identify" (id, username, avatar) and "email".
func NewDiscordProvider(clientID, clientSecret, callbackURL string) *DiscordProvider {
	return &DiscordProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"identify", "email"},
			Endpoint:     discordEndpoint,
		},
		userURL: discordUserURL,
	}
}

// AuthURL returns the URL to redirect the user to for authorization. state
// is echoed back on the callback and checked against the state cookie.
func (p *DiscordProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for the caller's Discord identity.
func (p *DiscordProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// The returned client adds "Authorization: Bearer <token>" to every call.
	client := p.config.Client(ctx, oauthToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building Discord user request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling Discord user API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: Discord user API returned status %d", resp.StatusCode)
	}

	var du discordUser
	if err := json.NewDecoder(resp.Body).Decode(&du); err != nil {
		return nil, fmt.Errorf("auth: decoding Discord user response: %w", err)
	}
	if du.ID == "" {
		return nil, fmt.Errorf("auth: Discord returned a user without an id")
	}

	return &Identity{
		ExternalID: du.ID,
		Username:   du.Username,
		Avatar:     avatarURL(du.ID, du.Avatar),
		Email:      du.Email,
	}, nil
}

// avatarURL builds the CDN URL for a Discord avatar hash.
func avatarURL(userID, hash string) string {
	if hash == "" {
		return ""
	}
	return fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", userID, hash)
}
