package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harvesthub/harvesthub-engine/migrations"
	"github.com/harvesthub/harvesthub-engine/pkg/auth"
	"github.com/harvesthub/harvesthub-engine/pkg/broadcast"
	"github.com/harvesthub/harvesthub-engine/pkg/config"
	"github.com/harvesthub/harvesthub-engine/pkg/database"
	"github.com/harvesthub/harvesthub-engine/pkg/handlers"
	"github.com/harvesthub/harvesthub-engine/pkg/logging"
	"github.com/harvesthub/harvesthub-engine/pkg/mcp"
	"github.com/harvesthub/harvesthub-engine/pkg/mcp/tools"
	"github.com/harvesthub/harvesthub-engine/pkg/middleware"
	"github.com/harvesthub/harvesthub-engine/pkg/repositories"
	"github.com/harvesthub/harvesthub-engine/pkg/retry"
	"github.com/harvesthub/harvesthub-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.String("error", logging.SanitizeError(err)))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
		zap.String("redis", cfg.Redis.Host),
		zap.Bool("mcp", cfg.MCP.Enabled))

	db, err := retry.DoIfRetryable(ctx, retry.StartupConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:             cfg.Database.URL(),
			ApplicationName: "harvesthub-engine",
			MaxConnections:  cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := migrate(cfg, logger); err != nil {
		return err
	}

	hub := broadcast.NewHub(cfg.Broadcast.ClientBufferSize, logger.Named("hub"))
	defer hub.Close()

	var publisher broadcast.Publisher = hub
	var relay *broadcast.RedisRelay
	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		relay = broadcast.NewRedisRelay(redisClient, cfg.Redis.Channel, hub, logger)
		publisher = relay
	}

	// Auth
	issuer, err := auth.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("JWT_SECRET is required to issue session tokens: %w", err)
	}
	validator, err := auth.NewValidator(ctx, &auth.ValidatorConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		HMACSecret:         []byte(cfg.Auth.JWTSecret),
		Issuer:             cfg.Auth.Issuer,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		return fmt.Errorf("create token validator: %w", err)
	}
	defer validator.Close()
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(validator, logger), logger)

	// Repositories and services
	userRepo := repositories.NewUserRepository()
	donationRepo := repositories.NewDonationRepository()
	requestRepo := repositories.NewRequestRepository()
	txRunner := database.NewTxRunner()

	geoIndex := services.NewGeoIndex(donationRepo)
	userService := services.NewUserService(userRepo, issuer, cfg.Auth.AllowAdminSignup, logger)
	donationService := services.NewDonationService(donationRepo, geoIndex, publisher, services.NearbyOptions{
		DefaultRadiusMeters: cfg.Geo.NearbyRadiusMeters,
		MaxRadiusMeters:     cfg.Geo.MaxRadiusMeters,
	}, logger)
	claimCoordinator := services.NewClaimCoordinator(txRunner, requestRepo, donationRepo, publisher, logger)
	requestService := services.NewRequestService(txRunner, requestRepo, donationRepo, claimCoordinator, publisher, logger)

	// Routes
	mux := http.NewServeMux()
	scope := database.WithRequestScope(db, logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.AuthPerMinute, cfg.RateLimit.AuthBurst, logger)

	handlers.NewHealthHandler(cfg, hub, logger).RegisterRoutes(mux)
	handlers.NewAuthHandler(userService, auth.DeriveCookieSettings(cfg.BaseURL, cfg.CookieDomain), logger).
		RegisterRoutes(mux, authMiddleware, scope, limiter)
	handlers.NewDonationHandler(donationService, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewRequestHandler(requestService, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewEventHandler(hub, handlers.EventStreamOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		WriteTimeout:   cfg.Broadcast.WriteTimeout,
		PingInterval:   cfg.Broadcast.PingInterval,
	}, logger).RegisterRoutes(mux, authMiddleware)

	if cfg.MCP.Enabled {
		mcpServer := mcp.NewServer("harvesthub-engine", cfg.Version, logger)
		tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version)
		tools.RegisterDonationTools(mcpServer.MCP(), &tools.DonationToolDeps{
			Scopes:          database.NewScopeProvider(db),
			DonationService: donationService,
			Logger:          logger,
		})
		handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux, authMiddleware)
	}

	var handler http.Handler = mux
	handler = middleware.CORS(cfg.AllowedOrigins)(handler)
	handler = middleware.RequestLogger(logger)(handler)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting harvesthub-engine",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		// Hijacked event streams are not tracked by Shutdown.
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func migrate(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, migrations.FS, logger); err != nil {
		return err
	}
	return nil
}
