package resource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"portfolio-backend/internal/authz"
	"portfolio-backend/internal/claims"
	"portfolio-backend/internal/data"
	"portfolio-backend/internal/session"
	"portfolio-backend/internal/visibility"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type stubProvider struct {
	token *oauth2.Token
}

func (p *stubProvider) IsAuthenticated(context.Context) (bool, error) { return p.token != nil, nil }
func (p *stubProvider) GetUser(context.Context) (map[string]any, error) {
	return map[string]any{"sub": "auth0|1", "name": "Ada"}, nil
}
func (p *stubProvider) GetTokenSilently(context.Context, string, string) (*oauth2.Token, error) {
	if p.token == nil {
		return nil, errors.New("login required")
	}
	return p.token, nil
}
func (p *stubProvider) LoginWithRedirect(context.Context) error                { return nil }
func (p *stubProvider) HandleRedirectCallback(context.Context, *url.URL) error { return nil }
func (p *stubProvider) Logout(context.Context, string) error                   { return nil }

type region struct {
	visible bool
}

func (r *region) Attached() bool    { return true }
func (r *region) SetVisible(v bool) { r.visible = v }

type harness struct {
	gate   *session.Gate
	store  *claims.Store
	region *region
	hits   atomic.Int32
	server *httptest.Server
	client *Client
}

func newHarness(t *testing.T, token *oauth2.Token, handler http.HandlerFunc) *harness {
	t.Helper()
	h := &harness{store: claims.NewStore(), region: &region{}}

	rec := visibility.NewReconciler(h.store, zap.NewNop())
	rec.Register(h.region, authz.Auth())

	h.gate = session.NewGate(&stubProvider{token: token}, h.store, data.NewMemoryCache(),
		session.Config{KeyPrefix: "test."}, zap.NewNop())
	h.gate.Initialize(context.Background())

	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(h.server.Close)

	client, err := NewClient(h.gate, h.server.URL, h.server.Client(), zap.NewNop())
	require.NoError(t, err)
	h.client = client
	return h
}

func validToken() *oauth2.Token {
	return &oauth2.Token{AccessToken: "good", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
}

func TestFetchProtected_Success(t *testing.T) {
	h := newHarness(t, validToken(), func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer good", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/auth", r.URL.Path)
		assert.Equal(t, "protected-content", r.URL.Query().Get("endpoint"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"content":"secret"}`))
	})

	result, err := h.client.FetchProtected(context.Background(), "/api/auth?endpoint=protected-content")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "secret", result.Content)
	assert.True(t, h.region.visible)
}

func TestFetchProtected_NoCredentialMakesNoRequest(t *testing.T) {
	h := newHarness(t, nil, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})

	_, err := h.client.FetchProtected(context.Background(), "/x")
	assert.ErrorIs(t, err, session.ErrNoCredential)
	assert.Zero(t, h.hits.Load())
}

func TestFetchProtected_UnauthorizedRevokesSession(t *testing.T) {
	h := newHarness(t, validToken(), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Invalid token"}`))
	})
	require.True(t, h.gate.IsAuthenticated())
	require.True(t, h.region.visible)

	_, err := h.client.FetchProtected(context.Background(), "/x")
	assert.ErrorIs(t, err, ErrRemoteUnauthorized)
	assert.False(t, h.gate.IsAuthenticated())
	assert.False(t, h.store.Snapshot().Authenticated())
	assert.False(t, h.region.visible)

	// no retry, and the next call fails locally
	_, err = h.client.FetchProtected(context.Background(), "/x")
	assert.ErrorIs(t, err, session.ErrNoCredential)
	assert.Equal(t, int32(1), h.hits.Load())
}

func TestFetchProtected_RemoteFailureNotRetried(t *testing.T) {
	h := newHarness(t, validToken(), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"maintenance"}`))
	})

	_, err := h.client.FetchProtected(context.Background(), "/x")
	var rf *RemoteFailureError
	require.ErrorAs(t, err, &rf)
	assert.Equal(t, http.StatusServiceUnavailable, rf.StatusCode)
	assert.Equal(t, "maintenance", rf.Message)
	assert.Equal(t, int32(1), h.hits.Load())
	assert.True(t, h.gate.IsAuthenticated())
}

func TestResolve(t *testing.T) {
	c, err := NewClient(nil, "https://example.com/portfolio", nil, zap.NewNop())
	require.NoError(t, err)

	got, err := c.resolve("/api/auth?endpoint=user-data")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/portfolio/api/auth?endpoint=user-data", got)

	_, err = c.resolve("https://evil.example.com/x")
	assert.Error(t, err)

	_, err = NewClient(nil, "not a url", nil, zap.NewNop())
	assert.Error(t, err)
}
