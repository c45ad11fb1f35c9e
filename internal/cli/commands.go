package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"portfolio-backend/internal/authz"
	"portfolio-backend/internal/claims"
	"portfolio-backend/internal/conf"
	"portfolio-backend/internal/page"
	"portfolio-backend/internal/resource"
	"portfolio-backend/internal/session"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type contextKey struct{}

// NewRootCommand builds the portfolio command tree.
func NewRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "portfolio",
		Short: "Sign in to the portfolio and view protected content",
		Long: `portfolio signs in against the configured identity provider, keeps the
session in the session cache and fetches protected content from the
portfolio backend.

Examples:
  portfolio login
  portfolio status
  portfolio fetch "/api/auth?endpoint=user-data"
  portfolio render index.html --out rendered.html
  portfolio check --role admin
  portfolio logout`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			cfg, err := conf.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, err := cfg.Log.NewLogger()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), contextKey{}, a))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a := appFrom(cmd); a != nil {
				a.logger.Sync()
				return a.close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "config file path")

	root.AddCommand(
		newLoginCommand(),
		newLogoutCommand(),
		newStatusCommand(),
		newFetchCommand(),
		newRenderCommand(),
		newCheckCommand(),
	)
	return root
}

func appFrom(cmd *cobra.Command) *app {
	a, _ := cmd.Context().Value(contextKey{}).(*app)
	return a
}

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), appFrom(cmd))
		},
	}
}

func runLogin(ctx context.Context, a *app) error {
	if err := a.awaitSession(ctx); err != nil {
		return err
	}
	if a.gate.IsAuthenticated() {
		fmt.Fprintln(a.out, profileSummary(a.gate.State()))
		return nil
	}
	if a.listen == nil {
		return errors.New("login needs a loopback redirect url such as http://127.0.0.1:52539/callback")
	}
	if err := a.withCallback(ctx, func() error { return a.gate.Login(ctx) }); err != nil {
		return err
	}
	fmt.Fprintln(a.out, profileSummary(a.gate.State()))
	return nil
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out locally and at the provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(cmd.Context(), appFrom(cmd))
		},
	}
}

func runLogout(ctx context.Context, a *app) error {
	if err := a.awaitSession(ctx); err != nil {
		return err
	}
	if err := a.gate.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}

func newStatusCommand() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the signed-in user and which action is available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), appFrom(cmd), offline)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "show the last saved profile without contacting the provider")
	return cmd
}

func runStatus(ctx context.Context, a *app, offline bool) error {
	if offline {
		state := claims.Anonymous
		if id, cs, ok := a.gate.Persisted(ctx); ok {
			state = claims.Authenticated(id, cs)
		}
		fmt.Fprintln(a.out, profileSummary(state))
		return nil
	}

	if err := a.awaitSession(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, profileSummary(a.gate.State()))
	return nil
}

// errNotGranted makes check exit non-zero.
var errNotGranted = errors.New("access not granted")

func newCheckCommand() *cobra.Command {
	var role, permission string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report whether the user is signed in or has a role or permission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), appFrom(cmd), role, permission)
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role to check")
	cmd.Flags().StringVar(&permission, "permission", "", "permission to check")
	return cmd
}

func runCheck(ctx context.Context, a *app, role, permission string) error {
	if err := a.awaitSession(ctx); err != nil {
		return err
	}

	granted := true
	report := func(kind, name string, ok bool) {
		answer := "no"
		if ok {
			answer = "yes"
		}
		fmt.Fprintf(a.out, "%s %s: %s\n", kind, name, answer)
		granted = granted && ok
	}
	if role != "" {
		report("role", role, a.evaluator.HasRole(role))
	}
	if permission != "" {
		report("permission", permission, a.evaluator.HasPermission(permission))
	}
	if role == "" && permission == "" {
		report("signed", "in", a.evaluator.Evaluate(authz.Auth()))
	}
	if !granted {
		return errNotGranted
	}
	return nil
}

func newFetchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [path]",
		Short: "Fetch a protected resource with the session credential",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			path := a.cfg.Client.ProtectedPath
			if len(args) == 1 {
				path = args[0]
			}
			return runFetch(cmd.Context(), a, path)
		},
	}
}

func runFetch(ctx context.Context, a *app, path string) error {
	if err := a.awaitSession(ctx); err != nil {
		return err
	}

	var body map[string]any
	err := a.withCallback(ctx, func() error {
		return a.resources.GetJSON(ctx, path, &body)
	})
	if err != nil {
		return explain(err)
	}
	if content, ok := body["content"].(string); ok {
		fmt.Fprintln(a.out, content)
		return nil
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(body)
}

// explain turns the session error taxonomy into user-facing messages.
func explain(err error) error {
	var remote *resource.RemoteFailureError
	switch {
	case errors.Is(err, session.ErrReauthRequired):
		return errors.New("the session expired and a new login was started; run the command again once it completes")
	case errors.Is(err, session.ErrRefreshTransient):
		return fmt.Errorf("could not renew the session, try again: %w", err)
	case errors.Is(err, session.ErrNoCredential):
		return errors.New("not logged in; run `portfolio login` first")
	case errors.Is(err, resource.ErrRemoteUnauthorized):
		return errors.New("the server rejected the session; run `portfolio login` again")
	case errors.As(err, &remote):
		return fmt.Errorf("the server could not answer: %w", remote)
	default:
		return err
	}
}

func newRenderCommand() *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render <page.html>",
		Short: "Render a page with protected regions shown or hidden for the current session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			out, closeOut, err := openOutput(opts.out, a.out)
			if err != nil {
				return err
			}
			defer closeOut()
			return runRender(cmd.Context(), a, f, out, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the rendered page to a file instead of stdout")
	cmd.Flags().StringVar(&opts.appendTo, "append-to", "", "id of an element to append a protected region to")
	cmd.Flags().StringVar(&opts.content, "content", "", "text of the appended region")
	cmd.Flags().StringVar(&opts.role, "role", "", "role required by the appended region")
	cmd.Flags().StringVar(&opts.permission, "permission", "", "permission required by the appended region")
	cmd.Flags().StringSliceVar(&opts.remove, "remove", nil, "ids of elements to drop from the page before rendering")
	return cmd
}

type renderOptions struct {
	out        string
	appendTo   string
	content    string
	role       string
	permission string
	remove     []string
}

func runRender(ctx context.Context, a *app, in io.Reader, out io.Writer, opts renderOptions) error {
	// the session restores while the page is parsed
	a.startSession(ctx)
	doc, err := page.Parse(in)
	if err != nil {
		return err
	}
	a.reconciler.AddSource(doc)

	if err := a.awaitSession(ctx); err != nil {
		return err
	}
	if a.gate.IsAuthenticated() {
		result, err := a.resources.FetchProtected(ctx, a.cfg.Client.ProtectedPath)
		switch {
		case err != nil:
			a.logger.Info("protected content unavailable", zap.Error(err))
		case result.Success:
			doc.FillProtectedContent(result.Content)
		}
	}

	// appended after the fill so its own content is kept
	if opts.appendTo != "" {
		if err := doc.AddProtectedContent(opts.appendTo, opts.content, page.RegionOptions{
			RequiredRole:       opts.role,
			RequiredPermission: opts.permission,
		}); err != nil {
			return err
		}
	}

	for _, id := range opts.remove {
		if !doc.Remove(id) {
			a.logger.Warn("element to remove not found", zap.String("id", id))
		}
	}

	a.reconciler.Reconcile()
	return doc.Render(out)
}
