package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeDiscord serves the token and /users/@me endpoints.
func fakeDiscord(t *testing.T, user discordUser) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "discord-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("GET /users/@me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer discord-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(user)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(srv *httptest.Server) *DiscordProvider {
	p := NewDiscordProvider("client-id", "client-secret", "http://localhost/auth/discord/callback")
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/authorize",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	p.userURL = srv.URL + "/users/@me"
	return p
}

func TestDiscordProvider_AuthURL(t *testing.T) {
	p := NewDiscordProvider("client-id", "secret", "http://localhost/cb")

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)

	assert.Equal(t, "discord.com", u.Host)
	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "identify email", q.Get("scope"))
	assert.Equal(t, "http://localhost/cb", q.Get("redirect_uri"))
}

func TestDiscordProvider_Exchange(t *testing.T) {
	srv := fakeDiscord(t, discordUser{ID: "80351110224678912", Username: "nelly", Avatar: "8342729096ea3675442027381ff50dfe", Email: "nelly@example.com"})
	p := newTestProvider(srv)

	id, err := p.Exchange(context.Background(), "the-code")
	require.NoError(t, err)

	assert.Equal(t, "80351110224678912", id.ExternalID)
	assert.Equal(t, "nelly", id.Username)
	assert.Equal(t, "nelly@example.com", id.Email)
	assert.Equal(t, "https://cdn.discordapp.com/avatars/80351110224678912/8342729096ea3675442027381ff50dfe.png", id.Avatar)
}

func TestDiscordProvider_ExchangeRejectsMissingID(t *testing.T) {
	srv := fakeDiscord(t, discordUser{Username: "ghost"})
	p := newTestProvider(srv)

	_, err := p.Exchange(context.Background(), "the-code")
	assert.Error(t, err)
}

func TestAvatarURL_EmptyHash(t *testing.T) {
	assert.Empty(t, avatarURL("123", ""))
}
