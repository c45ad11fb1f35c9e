package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	// ErrLoginRequired means no refresh grant is available; only an
	// interactive login can produce a new token.
	ErrLoginRequired = errors.New("login required")
	// ErrInvalidState is returned for unknown, replayed or expired callback state
	ErrInvalidState = errors.New("invalid state parameter")
	// ErrMissingCode is returned when the callback carries no authorization code
	ErrMissingCode = errors.New("missing authorization code")
	// ErrLoggedOut is returned by a refresh that finished after Logout; its
	// token is not cached.
	ErrLoggedOut = errors.New("logged out during token refresh")
)

const (
	tokenCacheKey   = "auth.token"
	idTokenCacheKey = "auth.id_token"
	stateTTL        = 10 * time.Minute
)

// CallbackError is an error reported by the provider on the redirect callback.
type CallbackError struct {
	Code        string
	Description string
}

func (e *CallbackError) Error() string {
	if e.Description == "" {
		return "authorization failed: " + e.Code
	}
	return "authorization failed: " + e.Code + ": " + e.Description
}

// Cache is durable key/value storage for the session cache.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Flow is the provider surface the redirect client drives. *OIDCClient
// implements it.
type Flow interface {
	GetAuthURLWithPKCE(state string, codeChallenge string) string
	ExchangeCodeWithPKCE(ctx context.Context, code string, codeVerifier string) (*oauth2.Token, error)
	ProfileClaims(ctx context.Context, rawIDToken string) (map[string]any, error)
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	LogoutURL(returnTo string) string
}

// RedirectClient is the client-side identity provider: redirect login with
// PKCE, a token cache, silent refresh with the stored refresh grant, and
// redirect logout.
type RedirectClient struct {
	flow       Flow
	cache      Cache
	states     *StateStore
	redirector Redirector
	useRefresh bool
	logger     *zap.Logger

	// mu guards generation and orders cache writes against Logout.
	// generation is bumped by every Logout.
	mu         sync.Mutex
	generation uint64
}

// RedirectClientOptions configures NewRedirectClient.
type RedirectClientOptions struct {
	Cache            Cache
	Redirector       Redirector
	UseRefreshTokens bool
	Logger           *zap.Logger
}

// NewRedirectClient creates a RedirectClient.
func NewRedirectClient(flow Flow, opts RedirectClientOptions) *RedirectClient {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectClient{
		flow:       flow,
		cache:      opts.Cache,
		states:     NewStateStore(),
		redirector: opts.Redirector,
		useRefresh: opts.UseRefreshTokens,
		logger:     logger,
	}
}

// LoginWithRedirect starts the authorization-code flow with PKCE.
func (c *RedirectClient) LoginWithRedirect(ctx context.Context) error {
	state, err := generateState()
	if err != nil {
		return fmt.Errorf("failed to generate state: %w", err)
	}
	codeVerifier, err := GenerateCodeVerifier()
	if err != nil {
		return err
	}
	c.states.SaveWithVerifier(state, stateTTL, codeVerifier)

	authURL := c.flow.GetAuthURLWithPKCE(state, GenerateCodeChallenge(codeVerifier))
	return c.redirector.Redirect(ctx, authURL)
}

// HandleRedirectCallback completes the flow from the callback URL.
func (c *RedirectClient) HandleRedirectCallback(ctx context.Context, callback *url.URL) error {
	q := callback.Query()
	if code := q.Get("error"); code != "" {
		return &CallbackError{Code: code, Description: q.Get("error_description")}
	}

	// Verify state and get code verifier (CSRF protection + PKCE)
	codeVerifier, ok := c.states.VerifyAndGetVerifier(q.Get("state"))
	if !ok {
		return ErrInvalidState
	}
	code := q.Get("code")
	if code == "" {
		return ErrMissingCode
	}

	token, err := c.flow.ExchangeCodeWithPKCE(ctx, code, codeVerifier)
	if err != nil {
		return fmt.Errorf("failed to exchange code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return errors.New("no id_token in response")
	}
	// Verify the ID token before caching anything
	if _, err := c.flow.ProfileClaims(ctx, rawIDToken); err != nil {
		return fmt.Errorf("failed to verify ID token: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save(ctx, token, rawIDToken)
}

// IsAuthenticated reports whether the cache holds a usable or renewable token.
func (c *RedirectClient) IsAuthenticated(ctx context.Context) (bool, error) {
	token, err := c.loadToken(ctx)
	if err != nil || token == nil {
		return false, err
	}
	return token.Valid() || (c.useRefresh && token.RefreshToken != ""), nil
}

// GetUser returns the verified claims of the cached ID token.
func (c *RedirectClient) GetUser(ctx context.Context) (map[string]any, error) {
	raw, ok, err := c.cache.Get(ctx, idTokenCacheKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoginRequired
	}
	return c.flow.ProfileClaims(ctx, raw)
}

// GetTokenSilently returns the cached access token, refreshing it with the
// stored refresh grant when it has expired. Audience and scope are fixed at
// login time; the provider ignores them on refresh.
func (c *RedirectClient) GetTokenSilently(ctx context.Context, audience, scope string) (*oauth2.Token, error) {
	token, err := c.loadToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrLoginRequired
	}
	if token.Valid() {
		return token, nil
	}
	if !c.useRefresh || token.RefreshToken == "" {
		return nil, ErrLoginRequired
	}

	c.mu.Lock()
	generation := c.generation
	c.mu.Unlock()

	c.logger.Debug("refreshing access token", zap.String("audience", audience), zap.String("scope", scope))
	refreshed, err := c.flow.RefreshToken(ctx, token.RefreshToken)
	if err != nil {
		return nil, err
	}
	rawIDToken, _ := refreshed.Extra("id_token").(string)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		c.logger.Debug("dropping token refreshed across logout")
		return nil, ErrLoggedOut
	}
	if err := c.save(ctx, refreshed, rawIDToken); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// Logout clears the token cache and redirects to the provider logout.
func (c *RedirectClient) Logout(ctx context.Context, returnTo string) error {
	c.mu.Lock()
	c.generation++
	err := c.cache.Delete(ctx, tokenCacheKey, idTokenCacheKey)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to clear token cache: %w", err)
	}
	return c.redirector.Redirect(ctx, c.flow.LogoutURL(returnTo))
}

func (c *RedirectClient) loadToken(ctx context.Context) (*oauth2.Token, error) {
	raw, ok, err := c.cache.Get(ctx, tokenCacheKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read token cache: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		c.logger.Warn("dropping unreadable token cache entry", zap.Error(err))
		return nil, nil
	}
	return &token, nil
}

// save writes the token cache; c.mu must be held.
func (c *RedirectClient) save(ctx context.Context, token *oauth2.Token, rawIDToken string) error {
	if !c.useRefresh {
		token.RefreshToken = ""
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := c.cache.Put(ctx, tokenCacheKey, string(data)); err != nil {
		return fmt.Errorf("failed to write token cache: %w", err)
	}
	if rawIDToken != "" {
		if err := c.cache.Put(ctx, idTokenCacheKey, rawIDToken); err != nil {
			return fmt.Errorf("failed to write token cache: %w", err)
		}
	}
	return nil
}
