// Package cli is the portfolio command line client. It hosts the process-wide
// session gate and drives it from cobra commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"portfolio-backend/internal/auth"
	"portfolio-backend/internal/authz"
	"portfolio-backend/internal/claims"
	"portfolio-backend/internal/conf"
	"portfolio-backend/internal/data"
	"portfolio-backend/internal/resource"
	"portfolio-backend/internal/session"
	"portfolio-backend/internal/visibility"

	"go.uber.org/zap"
)

const loginTimeout = 5 * time.Minute

// app is the wired client: one gate, one claims store, one reconciler.
type app struct {
	cfg        *conf.Config
	logger     *zap.Logger
	out        io.Writer
	store      *claims.Store
	gate       *session.Gate
	evaluator  *authz.Evaluator
	reconciler *visibility.Reconciler
	resources  *resource.Client

	initOnce sync.Once

	// listen binds the loopback callback; nil when the redirect URI is not
	// a loopback address.
	listen func(handle func(ctx context.Context, callback *url.URL) error) (func(ctx context.Context) error, error)
	close  func() error
}

// newApp wires the client from config. It contacts the provider for
// discovery.
func newApp(ctx context.Context, cfg *conf.Config, logger *zap.Logger, out io.Writer) (*app, error) {
	if !cfg.Auth.Enabled {
		return nil, errors.New("auth is disabled in config; enable auth to use the client")
	}

	cache, closeCache, err := data.OpenSessionCache(cfg.Auth.CacheLocation)
	if err != nil {
		return nil, fmt.Errorf("failed to open session cache: %w", err)
	}
	if cfg.Auth.CacheLocation == "memory" {
		logger.Warn("session cache is in memory; sessions end with this process")
	}

	redirectURL := cfg.Auth.GetRedirectURL(cfg.Client.CallbackAddr)
	oidcClient, err := auth.NewOIDCClient(ctx, &cfg.Auth, redirectURL)
	if err != nil {
		closeCache()
		return nil, err
	}
	provider := auth.NewRedirectClient(oidcClient, auth.RedirectClientOptions{
		Cache:            cache,
		Redirector:       auth.BrowserRedirector{Out: out},
		UseRefreshTokens: cfg.Auth.UseRefreshTokens,
		Logger:           logger,
	})

	a, err := assemble(cfg, logger, out, provider, cache)
	if err != nil {
		closeCache()
		return nil, err
	}
	a.close = closeCache

	if receiver, err := auth.NewCallbackReceiver(redirectURL, logger); err == nil {
		a.listen = receiver.Listen
	} else {
		logger.Debug("no loopback callback receiver", zap.Error(err))
	}
	return a, nil
}

// assemble builds the session core around a provider.
func assemble(cfg *conf.Config, logger *zap.Logger, out io.Writer, provider session.IdentityProvider, cache session.Cache) (*app, error) {
	store := claims.NewStore()
	reconciler := visibility.NewReconciler(store, logger)
	returnTo := cfg.Auth.LogoutURL
	if returnTo == "" {
		returnTo = cfg.Server.BaseURL
	}
	gate := session.NewGate(provider, store, cache, session.Config{
		Audience:  cfg.Auth.Audience,
		Scopes:    cfg.Auth.Scopes,
		Namespace: cfg.Auth.Namespace(),
		ReturnTo:  returnTo,
		KeyPrefix: cfg.Client.StoragePrefix,
	}, logger)

	resources, err := resource.NewClient(gate, cfg.Client.APIBaseURL, nil, logger)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:        cfg,
		logger:     logger,
		out:        out,
		store:      store,
		gate:       gate,
		evaluator:  authz.NewEvaluator(store),
		reconciler: reconciler,
		resources:  resources,
		close:      func() error { return nil },
	}, nil
}

// startSession begins restoring the session in the background. Only the
// first call has an effect.
func (a *app) startSession(ctx context.Context) {
	a.initOnce.Do(func() { go a.gate.Initialize(ctx) })
}

// awaitSession starts the restore if needed and waits for it to settle.
func (a *app) awaitSession(ctx context.Context) error {
	a.startSession(ctx)
	return a.gate.WaitReady(ctx)
}

// withCallback runs fn with the loopback callback bound. When fn leaves an
// interactive login pending, it waits for the browser to come back.
func (a *app) withCallback(ctx context.Context, fn func() error) error {
	if a.listen == nil {
		return fn()
	}
	wait, err := a.listen(a.gate.HandleCallback)
	if err != nil {
		return err
	}

	fnErr := fn()
	if !a.gate.LoginPending() {
		stopped, cancel := context.WithCancel(ctx)
		cancel()
		wait(stopped)
		return fnErr
	}

	fmt.Fprintln(a.out, "Waiting for the browser to complete login...")
	waitCtx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()
	if err := wait(waitCtx); err != nil {
		return fmt.Errorf("login did not complete: %w", err)
	}
	fmt.Fprintln(a.out, "Login complete.")
	return fnErr
}

// profileSummary is the one-paragraph description of the signed-in user.
func profileSummary(state claims.State) string {
	id, ok := state.Identity()
	if !ok {
		return "Not logged in.\nAvailable action: login"
	}

	var b strings.Builder
	name := id.DisplayName
	if name == "" {
		name = id.SubjectID
	}
	fmt.Fprintf(&b, "Logged in as %s", name)
	if id.Email != "" {
		fmt.Fprintf(&b, " <%s>", id.Email)
	}
	b.WriteString("\n")
	if id.PictureURL != "" {
		fmt.Fprintf(&b, "Picture: %s\n", id.PictureURL)
	}
	cs := state.Claims()
	if roles := cs.Roles.Sorted(); len(roles) > 0 {
		fmt.Fprintf(&b, "Roles: %s\n", strings.Join(roles, ", "))
	}
	if perms := cs.Permissions.Sorted(); len(perms) > 0 {
		fmt.Fprintf(&b, "Permissions: %s\n", strings.Join(perms, ", "))
	}
	b.WriteString("Available action: logout")
	return b.String()
}

func openOutput(path string, fallback io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return fallback, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
