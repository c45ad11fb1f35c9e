package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"portfolio-backend/internal/api"
	"portfolio-backend/internal/auth"
	"portfolio-backend/internal/biz"
	"portfolio-backend/internal/conf"
	"portfolio-backend/internal/data"
	"portfolio-backend/internal/server"
	"portfolio-backend/internal/service"

	"go.uber.org/zap"
)

var flagconf string

func init() {
	flag.StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	// load config
	cfg, err := conf.Load(flagconf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shut down cleanly")
}

func run(ctx context.Context, cfg *conf.Config, logger *zap.Logger) error {
	// 手动依赖注入
	// data 层
	db, err := data.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	// auth 层
	var protect func(http.Handler) http.Handler
	if cfg.Auth.Enabled {
		oidcClient, err := auth.NewOIDCClient(ctx, &cfg.Auth, cfg.Auth.GetRedirectURL(cfg.Client.CallbackAddr))
		if err != nil {
			return fmt.Errorf("failed to init OIDC client: %w", err)
		}
		protect = auth.BearerMiddleware(oidcClient, logger)
		logger.Info("bearer authentication enabled",
			zap.String("issuer", cfg.Auth.Issuer()),
			zap.String("audience", cfg.Auth.Audience))
	} else {
		// protected endpoints still need a caller identity
		protect = func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"Authentication is not configured"}` + "\n"))
			})
		}
		logger.Warn("OIDC authentication disabled, protected endpoints answer 401")
	}

	// biz 层
	contactUsecase := biz.NewContactUsecase(data.NewContactRepo(db))
	projectUsecase := biz.NewProjectUsecase(data.NewProjectRepo(db))
	seeded, err := projectUsecase.Seed(ctx, seedProjects(cfg.Database.SeedProjects))
	if err != nil {
		return err
	}
	if seeded > 0 {
		logger.Info("seeded projects", zap.Int("count", seeded))
	}

	// service 层
	contactService := service.NewContactService(contactUsecase)
	projectService := service.NewProjectService(projectUsecase)
	// api 层
	requireInbox := auth.RequirePermission(cfg.Auth.Namespace(), api.ReadMessagesPermission)
	inbox := func(next http.Handler) http.Handler { return protect(requireInbox(next)) }
	router := api.NewRouter(api.Handlers{
		Auth:    api.NewAuthHandler(protect),
		Contact: api.NewContactHandler(contactService, api.NewClientLimiter(cfg.Contact.RatePerMinute, cfg.Contact.Burst), inbox, logger),
		Project: api.NewProjectHandler(projectService, logger),
	}, logger)

	return server.NewServer(router, server.Config{Addr: cfg.Server.Addr}, logger).Run(ctx)
}

func seedProjects(seeds []conf.ProjectSeed) []biz.Project {
	projects := make([]biz.Project, len(seeds))
	for i, s := range seeds {
		projects[i] = biz.Project{
			Title:       s.Title,
			Description: s.Description,
			ImageURL:    s.ImageURL,
			ProjectURL:  s.ProjectURL,
			Tags:        s.Tags,
		}
	}
	return projects
}
