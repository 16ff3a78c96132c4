package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/auth"
	"github.com/odyssey-erp/odyssey-pos/internal/authstate"
	"github.com/odyssey-erp/odyssey-pos/internal/barcode"
	"github.com/odyssey-erp/odyssey-pos/internal/labels"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/products"
	"github.com/odyssey-erp/odyssey-pos/internal/rbac"
	"github.com/odyssey-erp/odyssey-pos/internal/roles"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/token"
	"github.com/odyssey-erp/odyssey-pos/internal/users"
	"github.com/odyssey-erp/odyssey-pos/internal/view"
	"github.com/odyssey-erp/odyssey-pos/jobs"
	"github.com/odyssey-erp/odyssey-pos/report"
)

const sessionCookie = "odyssey_pos_session"

func newServeCmd() *cobra.Command {
	var migrateFirst bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger, migrateFirst)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger, migrateFirst bool) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	if migrateFirst {
		if err := db.Migrate(ctx, pool, "up"); err != nil {
			return err
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	templates, err := view.NewEngine()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}
	metrics := observability.NewMetrics()

	sessionManager := shared.NewSessionManager(redisClient, sessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	tokens, err := token.NewService(token.Config{
		SecretKey:  cfg.JWTSecretKey,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
	})
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}
	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, tokens).WithObserver(metrics)
	authStateProvider := authstate.NewProvider(authstate.NewRedisStore(redisClient, cfg.AuthIdleTimeout), tokens, authService, logger)
	authStateMiddleware := authstate.Middleware{Provider: authStateProvider, Tokens: tokens, Logger: logger, LoginPath: "/auth/login"}

	rbacService := rbac.NewService(rbac.NewPGStore(pool))
	if _, err := rbacService.SyncCatalog(ctx); err != nil {
		logger.Warn("sync permission catalog", slog.Any("error", err))
	}
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	roleService := roles.NewService(roles.NewRepository(pool))
	userService := users.NewService(users.NewRepository(pool), cfg.BcryptCost, authRepo)

	queueOpt, err := jobs.RedisOpt(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("jobs redis: %w", err)
	}
	jobClient, err := jobs.NewClient(queueOpt)
	if err != nil {
		return fmt.Errorf("jobs client: %w", err)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	labelStore := labels.NewStore(redisClient, labels.DefaultTTL)
	productService := products.NewService(products.NewRepository(pool),
		products.WithAudit(auditLogger),
		products.WithLabelQueue(labels.NewQueue(labelStore, jobClient)),
		products.WithImportObserver(metrics),
		products.WithLogger(logger),
	)
	decoder := barcode.NewDecoder(cfg.MaxImageBytes, metrics)

	inspector := asynq.NewInspector(queueOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthState:          authStateMiddleware,
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, authStateProvider),
		AuthAPIHandler:     auth.NewAPIHandler(logger, authService),
		ProductsHandler:    products.NewHandler(logger, productService, templates, csrfManager, rbacMiddleware),
		ProductsAPIHandler: products.NewAPIHandler(logger, productService, decoder, labelStore, idempotencyStore, rbacMiddleware),
		RolesHandler:       roles.NewHandler(logger, roleService, rbacService, templates, csrfManager, rbacMiddleware),
		UsersHandler:       users.NewHandler(logger, userService, roleService, templates, csrfManager, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService, templates, csrfManager, rbacMiddleware),
		ReportHandler:      report.NewHandler(report.NewClient(cfg.GotenbergURL), logger),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
		HealthChecks: map[string]app.HealthCheck{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	return app.Serve(ctx, server, logger, 10*time.Second)
}
