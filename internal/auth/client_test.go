package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"portfolio-backend/internal/conf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// discoveryServer serves a minimal openid-configuration for its own URL.
func discoveryServer(t *testing.T, endSession bool) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		doc := map[string]any{
			"issuer":                 srv.URL + "/",
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/oauth/token",
			"jwks_uri":               srv.URL + "/.well-known/jwks.json",
		}
		if endSession {
			doc["end_session_endpoint"] = srv.URL + "/oidc/logout"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOIDCClient(t *testing.T, srv *httptest.Server) *OIDCClient {
	t.Helper()
	c, err := NewOIDCClient(context.Background(), &conf.Auth{
		Domain:   srv.URL,
		ClientID: "client-1",
		Audience: "https://api.example.com/",
		Scopes:   []string{"openid", "profile"},
	}, "http://127.0.0.1:52539/callback")
	require.NoError(t, err)
	return c
}

func TestOIDCClient_AuthURL(t *testing.T) {
	srv := discoveryServer(t, false)
	c := newTestOIDCClient(t, srv)

	u, err := url.Parse(c.GetAuthURLWithPKCE("st", "challenge"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/authorize", u.Scheme+"://"+u.Host+u.Path)

	q := u.Query()
	assert.Equal(t, "st", q.Get("state"))
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "https://api.example.com/", q.Get("audience"))
	assert.Equal(t, "challenge", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "openid profile", q.Get("scope"))
}

func TestOIDCClient_LogoutURL(t *testing.T) {
	t.Run("auth0 fallback", func(t *testing.T) {
		srv := discoveryServer(t, false)
		c := newTestOIDCClient(t, srv)
		assert.Equal(t, srv.URL+"/v2/logout?client_id=client-1&returnTo=http%3A%2F%2Flocalhost%3A8080",
			c.LogoutURL("http://localhost:8080"))
	})

	t.Run("end session endpoint", func(t *testing.T) {
		srv := discoveryServer(t, true)
		c := newTestOIDCClient(t, srv)
		assert.Equal(t, srv.URL+"/oidc/logout?client_id=client-1&post_logout_redirect_uri=http%3A%2F%2Flocalhost%3A8080",
			c.LogoutURL("http://localhost:8080"))
	})
}

func TestOIDCClient_RejectsMalformedAccessToken(t *testing.T) {
	c := newTestOIDCClient(t, discoveryServer(t, false))
	_, err := c.VerifyAccessToken(context.Background(), "abc.def")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewOIDCClient_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewOIDCClient(context.Background(), &conf.Auth{Domain: srv.URL, ClientID: "c"}, "")
	assert.Error(t, err)
}
