// Package session is the session gate: it drives login, logout and silent
// refresh against the identity provider and is the only writer of the claims
// store.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"portfolio-backend/internal/claims"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// IdentityProvider is the provider client library the gate drives.
// auth.RedirectClient implements it.
type IdentityProvider interface {
	IsAuthenticated(ctx context.Context) (bool, error)
	GetUser(ctx context.Context) (map[string]any, error)
	GetTokenSilently(ctx context.Context, audience, scope string) (*oauth2.Token, error)
	LoginWithRedirect(ctx context.Context) error
	HandleRedirectCallback(ctx context.Context, callback *url.URL) error
	Logout(ctx context.Context, returnTo string) error
}

// Cache persists the identity keys across restarts.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Config carries the provider parameters the gate passes through.
type Config struct {
	Audience  string
	Scopes    []string
	Namespace string // claim key prefix for roles and permissions
	ReturnTo  string // logout return URL
	KeyPrefix string // prefix for the persisted identity keys
}

// CredentialSource hands out bearer credentials.
type CredentialSource interface {
	Credential(ctx context.Context) (*oauth2.Token, error)
	Revoke(ctx context.Context)
}

// Gate owns the session state.
type Gate struct {
	provider IdentityProvider
	store    *claims.Store
	cache    Cache
	cfg      Config
	logger   *zap.Logger

	// mu serializes state transitions; store listeners (the reconciler)
	// run while it is held.
	mu           sync.Mutex
	credential   *oauth2.Token
	epoch        uint64
	loginPending bool

	// refresh runs one silent refresh at a time; concurrent callers share
	// its result.
	refresh singleflight.Group

	ready     chan struct{}
	readyOnce sync.Once
}

// NewGate creates a Gate in the anonymous state.
func NewGate(provider IdentityProvider, store *claims.Store, cache Cache, cfg Config, logger *zap.Logger) *Gate {
	return &Gate{
		provider: provider,
		store:    store,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Ready is closed once Initialize has settled.
func (g *Gate) Ready() <-chan struct{} {
	return g.ready
}

// WaitReady blocks until Initialize has settled or ctx is done.
func (g *Gate) WaitReady(ctx context.Context) error {
	select {
	case <-g.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current claims snapshot.
func (g *Gate) State() claims.State {
	return g.store.Snapshot()
}

// IsAuthenticated reports whether the gate holds an identity.
func (g *Gate) IsAuthenticated() bool {
	return g.store.Snapshot().Authenticated()
}

// LoginPending reports whether an interactive login was started and has not
// completed yet.
func (g *Gate) LoginPending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loginPending
}

// Initialize tries to restore a prior session through silent refresh and
// reports whether it succeeded. Failure leaves the gate anonymous.
func (g *Gate) Initialize(ctx context.Context) bool {
	defer g.readyOnce.Do(func() { close(g.ready) })

	epoch := g.currentEpoch()
	ok, err := g.provider.IsAuthenticated(ctx)
	if err != nil || !ok {
		g.logger.Debug("no cached session", zap.Error(err))
		g.settleAnonymous(ctx, epoch)
		return false
	}
	token, err := g.provider.GetTokenSilently(ctx, g.cfg.Audience, g.scope())
	if err != nil {
		g.logger.Debug("no session to restore", zap.NamedError("cause", Classify(err)), zap.Error(err))
		g.settleAnonymous(ctx, epoch)
		return false
	}
	profile, err := g.provider.GetUser(ctx)
	if err != nil {
		g.logger.Debug("no profile to restore", zap.Error(err))
		g.settleAnonymous(ctx, epoch)
		return false
	}
	return g.promote(ctx, epoch, token, profile)
}

// Login starts the interactive redirect flow. The session is promoted when
// HandleCallback completes it.
func (g *Gate) Login(ctx context.Context) error {
	g.mu.Lock()
	g.loginPending = true
	g.mu.Unlock()

	if err := g.provider.LoginWithRedirect(ctx); err != nil {
		g.mu.Lock()
		g.loginPending = false
		g.mu.Unlock()
		return fmt.Errorf("failed to start login: %w", err)
	}
	return nil
}

// HandleCallback completes a redirect login from the callback URL.
func (g *Gate) HandleCallback(ctx context.Context, callback *url.URL) error {
	epoch := g.currentEpoch()
	defer func() {
		g.mu.Lock()
		g.loginPending = false
		g.mu.Unlock()
	}()

	if err := g.provider.HandleRedirectCallback(ctx, callback); err != nil {
		return fmt.Errorf("failed to complete login: %w", err)
	}
	token, err := g.provider.GetTokenSilently(ctx, g.cfg.Audience, g.scope())
	if err != nil {
		return fmt.Errorf("failed to read token after login: %w", err)
	}
	profile, err := g.provider.GetUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to read profile after login: %w", err)
	}
	if !g.promote(ctx, epoch, token, profile) {
		return ErrSuperseded
	}
	return nil
}

// Logout clears local state, then hands over to the provider logout. Any
// refresh still in flight is discarded when it returns.
func (g *Gate) Logout(ctx context.Context) error {
	g.mu.Lock()
	g.loginPending = false
	g.demoteLocked(ctx)
	g.mu.Unlock()

	if err := g.provider.Logout(ctx, g.cfg.ReturnTo); err != nil {
		return fmt.Errorf("failed to log out from provider: %w", err)
	}
	return nil
}

// Revoke demotes the session after the credential was rejected by a
// protected resource.
func (g *Gate) Revoke(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.store.Snapshot().Authenticated() {
		return
	}
	g.logger.Info("credential revoked by protected resource")
	g.demoteLocked(ctx)
}

// Credential returns a usable bearer credential. An expired credential gets
// one silent refresh; when that needs reauthentication, an interactive login
// is started and no credential is returned for this call. Every failure
// wraps ErrNoCredential.
func (g *Gate) Credential(ctx context.Context) (*oauth2.Token, error) {
	g.mu.Lock()
	if !g.store.Snapshot().Authenticated() {
		g.mu.Unlock()
		return nil, ErrNoCredential
	}
	if g.credential.Valid() {
		token := g.credential
		g.mu.Unlock()
		return token, nil
	}
	epoch := g.epoch
	g.mu.Unlock()

	v, err, _ := g.refresh.Do("credential", func() (any, error) {
		return g.provider.GetTokenSilently(ctx, g.cfg.Audience, g.scope())
	})
	if err != nil {
		kind := Classify(err)
		if kind == ErrReauthRequired {
			g.requireLogin(ctx, epoch)
		} else {
			g.logger.Debug("silent refresh failed", zap.Error(err))
		}
		return nil, noCredential(fmt.Errorf("%w: %v", kind, err))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.epoch != epoch {
		return nil, noCredential(ErrSuperseded)
	}
	token := v.(*oauth2.Token)
	g.credential = token
	return token, nil
}

// requireLogin demotes the session and starts one interactive login. A login
// already pending, or a session changed since epoch, suppresses it.
func (g *Gate) requireLogin(ctx context.Context, epoch uint64) {
	g.mu.Lock()
	if g.epoch != epoch || g.loginPending {
		g.mu.Unlock()
		return
	}
	g.loginPending = true
	g.demoteLocked(ctx)
	g.mu.Unlock()

	g.logger.Info("session expired, starting interactive login")
	if err := g.provider.LoginWithRedirect(ctx); err != nil {
		g.logger.Warn("failed to start interactive login", zap.Error(err))
		g.mu.Lock()
		g.loginPending = false
		g.mu.Unlock()
	}
}

func (g *Gate) promote(ctx context.Context, epoch uint64, token *oauth2.Token, profile map[string]any) bool {
	id, cs := claims.FromProfile(profile, g.cfg.Namespace)
	if token != nil && token.AccessToken != "" {
		// opaque access tokens carry no claims
		if tokenClaims, err := claims.FromAccessToken(token.AccessToken, g.cfg.Namespace); err == nil {
			cs = claims.Merge(cs, tokenClaims)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.epoch != epoch {
		g.logger.Debug("discarding superseded session result")
		return false
	}
	g.credential = token
	g.loginPending = false
	g.store.Set(id, cs)
	g.persist(ctx, id, cs)

	g.logger.Info("session authenticated",
		zap.String("sub", id.SubjectID),
		zap.Strings("roles", cs.Roles.Sorted()))
	return true
}

func (g *Gate) settleAnonymous(ctx context.Context, epoch uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.epoch != epoch || g.store.Snapshot().Authenticated() {
		return
	}
	g.forget(ctx)
}

// demoteLocked must be called with mu held.
func (g *Gate) demoteLocked(ctx context.Context) {
	g.epoch++
	g.credential = nil
	g.store.Clear()
	g.forget(ctx)
}

func (g *Gate) currentEpoch() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epoch
}

func (g *Gate) scope() string {
	return strings.Join(g.cfg.Scopes, " ")
}

// Persisted identity keys.
func (g *Gate) userKey() string        { return g.cfg.KeyPrefix + "user" }
func (g *Gate) rolesKey() string       { return g.cfg.KeyPrefix + "userRoles" }
func (g *Gate) permissionsKey() string { return g.cfg.KeyPrefix + "userPermissions" }

func (g *Gate) persist(ctx context.Context, id claims.Identity, cs claims.ClaimsSet) {
	entries := map[string]any{
		g.userKey():        id,
		g.rolesKey():       cs.Roles.Sorted(),
		g.permissionsKey(): cs.Permissions.Sorted(),
	}
	for key, v := range entries {
		data, err := json.Marshal(v)
		if err != nil {
			g.logger.Warn("failed to encode session key", zap.String("key", key), zap.Error(err))
			continue
		}
		if err := g.cache.Put(ctx, key, string(data)); err != nil {
			g.logger.Warn("failed to persist session key", zap.String("key", key), zap.Error(err))
		}
	}
}

func (g *Gate) forget(ctx context.Context) {
	if err := g.cache.Delete(ctx, g.userKey(), g.rolesKey(), g.permissionsKey()); err != nil {
		g.logger.Warn("failed to clear persisted session", zap.Error(err))
	}
}

// Persisted reads back the identity and claims stored by the last successful
// login, without contacting the provider.
func (g *Gate) Persisted(ctx context.Context) (claims.Identity, claims.ClaimsSet, bool) {
	raw, ok, err := g.cache.Get(ctx, g.userKey())
	if err != nil || !ok {
		return claims.Identity{}, claims.ClaimsSet{}, false
	}
	var id claims.Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return claims.Identity{}, claims.ClaimsSet{}, false
	}
	return id, claims.ClaimsSet{
		Roles:       claims.NewSet(g.readList(ctx, g.rolesKey())...),
		Permissions: claims.NewSet(g.readList(ctx, g.permissionsKey())...),
	}, true
}

func (g *Gate) readList(ctx context.Context, key string) []string {
	raw, ok, err := g.cache.Get(ctx, key)
	if err != nil || !ok {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
