package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"portfolio-backend/internal/auth"
	"portfolio-backend/internal/claims"
	"portfolio-backend/internal/conf"
	"portfolio-backend/internal/data"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const ns = "https://api.example.com/"

type stubProvider struct {
	token      *oauth2.Token
	profile    map[string]any
	logoutURLs []string
	checks     int
}

func (p *stubProvider) IsAuthenticated(context.Context) (bool, error) {
	p.checks++
	return p.token != nil, nil
}

func (p *stubProvider) GetUser(context.Context) (map[string]any, error) {
	if p.profile == nil {
		return nil, auth.ErrLoginRequired
	}
	return p.profile, nil
}

func (p *stubProvider) GetTokenSilently(context.Context, string, string) (*oauth2.Token, error) {
	if p.token == nil {
		return nil, auth.ErrLoginRequired
	}
	return p.token, nil
}

func (p *stubProvider) LoginWithRedirect(context.Context) error { return nil }

func (p *stubProvider) HandleRedirectCallback(context.Context, *url.URL) error { return nil }

func (p *stubProvider) Logout(_ context.Context, returnTo string) error {
	p.logoutURLs = append(p.logoutURLs, returnTo)
	p.token, p.profile = nil, nil
	return nil
}

func signedIn() *stubProvider {
	return &stubProvider{
		token: &oauth2.Token{AccessToken: "good", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)},
		profile: map[string]any{
			"sub":        "auth0|1",
			"name":       "Ada",
			"email":      "ada@example.com",
			ns + "roles": []any{"editor", "admin"},
		},
	}
}

func newTestApp(t *testing.T, provider *stubProvider, handler http.HandlerFunc) (*app, *bytes.Buffer) {
	t.Helper()
	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) { t.Error("unexpected request") }
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &conf.Config{
		Server: conf.Server{BaseURL: "http://localhost:8080"},
		Auth:   conf.Auth{Audience: ns, Scopes: []string{"openid"}},
		Client: conf.Client{
			APIBaseURL:    srv.URL,
			ProtectedPath: "/api/auth?endpoint=protected-content",
			StoragePrefix: "portfolio.",
		},
	}
	out := &bytes.Buffer{}
	a, err := assemble(cfg, zap.NewNop(), out, provider, data.NewMemoryCache())
	require.NoError(t, err)
	return a, out
}

func TestProfileSummary(t *testing.T) {
	assert.Equal(t, "Not logged in.\nAvailable action: login", profileSummary(claims.Anonymous))

	state := claims.Authenticated(
		claims.Identity{SubjectID: "auth0|1", DisplayName: "Ada", Email: "ada@example.com", PictureURL: "https://example.com/a.png"},
		claims.ClaimsSet{Roles: claims.NewSet("editor", "admin")},
	)
	assert.Equal(t, "Logged in as Ada <ada@example.com>\n"+
		"Picture: https://example.com/a.png\n"+
		"Roles: admin, editor\n"+
		"Available action: logout", profileSummary(state))
}

func TestStatus(t *testing.T) {
	a, out := newTestApp(t, signedIn(), nil)
	require.NoError(t, runStatus(context.Background(), a, false))
	assert.Contains(t, out.String(), "Logged in as Ada")

	anon, out := newTestApp(t, &stubProvider{}, nil)
	require.NoError(t, runStatus(context.Background(), anon, false))
	assert.Contains(t, out.String(), "Available action: login")
}

func TestStatus_Offline(t *testing.T) {
	ctx := context.Background()
	a, out := newTestApp(t, signedIn(), nil)

	require.NoError(t, runStatus(ctx, a, true))
	assert.Contains(t, out.String(), "Available action: login")

	require.NoError(t, runStatus(ctx, a, false))
	out.Reset()
	require.NoError(t, runStatus(ctx, a, true))
	assert.Contains(t, out.String(), "Logged in as Ada <ada@example.com>")
	assert.Contains(t, out.String(), "Roles: admin, editor")
}

func TestFetch(t *testing.T) {
	a, out := newTestApp(t, signedIn(), func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer good", r.Header.Get("Authorization"))
		w.Write([]byte(`{"success":true,"content":"hello"}`))
	})
	require.NoError(t, runFetch(context.Background(), a, "/api/auth?endpoint=protected-content"))
	assert.Equal(t, "hello\n", out.String())
}

func TestFetch_Anonymous(t *testing.T) {
	a, _ := newTestApp(t, &stubProvider{}, nil)
	err := runFetch(context.Background(), a, "/api/auth?endpoint=protected-content")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "portfolio login")
}

func TestFetch_Rejected(t *testing.T) {
	a, _ := newTestApp(t, signedIn(), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	err := runFetch(context.Background(), a, "/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
	assert.False(t, a.gate.IsAuthenticated())
}

const testPage = `<html><body>
<div id="nav"></div>
<div id="members" class="protected-content"><p data-protected-content="true"></p></div>
<div id="admin" data-required-role="admin">admin tools</div>
<div id="billing" data-required-permission="read:billing">billing</div>
<div id="public">hello</div>
</body></html>`

func TestRender_SignedIn(t *testing.T) {
	a, _ := newTestApp(t, signedIn(), func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"content":"members only"}`))
	})

	var rendered bytes.Buffer
	err := runRender(context.Background(), a, strings.NewReader(testPage), &rendered, renderOptions{
		appendTo: "nav",
		content:  "editor links",
		role:     "editor",
	})
	require.NoError(t, err)

	html := rendered.String()
	assert.Contains(t, html, `id="members" class="protected-content" style="display: block"`)
	assert.Contains(t, html, "members only")
	assert.Contains(t, html, `id="admin" data-required-role="admin" style="display: block"`)
	assert.Contains(t, html, `id="billing" data-required-permission="read:billing" style="display: none"`)
	assert.Contains(t, html, `data-required-role="editor" style="display: block">editor links`)
	assert.Contains(t, html, `<div id="public">hello</div>`)
}

func TestRender_Anonymous(t *testing.T) {
	a, _ := newTestApp(t, &stubProvider{}, nil)

	var rendered bytes.Buffer
	require.NoError(t, runRender(context.Background(), a, strings.NewReader(testPage), &rendered, renderOptions{}))

	html := rendered.String()
	assert.Contains(t, html, `id="members" class="protected-content" style="display: none"`)
	assert.Contains(t, html, `id="admin" data-required-role="admin" style="display: none"`)
	assert.NotContains(t, html, "members only")
}

func TestRender_Remove(t *testing.T) {
	a, _ := newTestApp(t, &stubProvider{}, nil)

	var rendered bytes.Buffer
	require.NoError(t, runRender(context.Background(), a, strings.NewReader(testPage), &rendered, renderOptions{
		remove: []string{"billing", "missing"},
	}))

	html := rendered.String()
	assert.NotContains(t, html, `id="billing"`)
	assert.Contains(t, html, `id="admin" data-required-role="admin" style="display: none"`)
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	a, out := newTestApp(t, signedIn(), nil)

	require.NoError(t, runCheck(ctx, a, "admin", ""))
	assert.Equal(t, "role admin: yes\n", out.String())

	out.Reset()
	err := runCheck(ctx, a, "editor", "read:billing")
	assert.ErrorIs(t, err, errNotGranted)
	assert.Equal(t, "role editor: yes\npermission read:billing: no\n", out.String())

	out.Reset()
	require.NoError(t, runCheck(ctx, a, "", ""))
	assert.Equal(t, "signed in: yes\n", out.String())

	anon, out := newTestApp(t, &stubProvider{}, nil)
	assert.ErrorIs(t, runCheck(ctx, anon, "admin", ""), errNotGranted)
	assert.Equal(t, "role admin: no\n", out.String())

	out.Reset()
	assert.ErrorIs(t, runCheck(ctx, anon, "", ""), errNotGranted)
	assert.Equal(t, "signed in: no\n", out.String())
}

func TestAwaitSession_RestoresOnce(t *testing.T) {
	provider := signedIn()
	a, _ := newTestApp(t, provider, nil)

	ctx := context.Background()
	a.startSession(ctx)
	require.NoError(t, a.awaitSession(ctx))
	require.NoError(t, a.awaitSession(ctx))
	assert.True(t, a.gate.IsAuthenticated())
	assert.Equal(t, 1, provider.checks)
}

func TestLogout(t *testing.T) {
	provider := signedIn()
	a, out := newTestApp(t, provider, nil)

	require.NoError(t, runLogout(context.Background(), a))
	assert.Equal(t, "Logged out.\n", out.String())
	assert.False(t, a.gate.IsAuthenticated())
	assert.Equal(t, []string{"http://localhost:8080"}, provider.logoutURLs)
}

func TestExplain(t *testing.T) {
	assert.Contains(t, explain(assert.AnError).Error(), assert.AnError.Error())
}
