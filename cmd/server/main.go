package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/btwdesk/api/internal/auth"
	"github.com/btwdesk/api/internal/btw"
	"github.com/btwdesk/api/internal/config"
	"github.com/btwdesk/api/internal/database"
	apihandlers "github.com/btwdesk/api/internal/handlers/api"
	"github.com/btwdesk/api/internal/middleware"
	"github.com/btwdesk/api/internal/services/account"
	"github.com/btwdesk/api/internal/services/audit"
	"github.com/btwdesk/api/internal/services/client"
	"github.com/btwdesk/api/internal/services/declaration"
	"github.com/btwdesk/api/internal/services/journal"
	"github.com/btwdesk/api/internal/storage"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	ctx := context.Background()

	// Connect to database
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	slog.Info("database connected")

	// Run migrations
	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	slog.Info("migrations complete")

	exports, err := storage.New(ctx, cfg, apihandlers.FilesURLPrefix)
	if err != nil {
		slog.Error("failed to initialize export storage", "error", err)
		os.Exit(1)
	}

	// Initialize services
	auditRec := audit.NewRecorder(pool, logger)
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenExpiry)
	authSvc := auth.NewService(pool, jwtMgr, auditRec, logger, cfg.TOTPIssuer)

	registry := btw.DefaultRegistry()
	validator := btw.NewValidator(registry).WithTolerance(cfg.BTW.AmountTolerance)

	clientSvc := client.NewService(pool, logger)
	accountSvc := account.NewService(pool, logger)
	journalSvc := journal.NewService(pool, validator, accountSvc, logger)
	declarationSvc := declaration.NewService(declaration.Options{
		Manager:    btw.NewManager(declaration.NewPGStore(pool), logger),
		Aggregator: btw.NewAggregator(registry),
		Journal:    journalSvc,
		Clients:    clientSvc,
		Exports:    exports,
		URLExpiry:  cfg.BTW.ExportURLExpiry,
		Audit:      auditRec,
		Logger:     logger,
	})

	// Initialize handlers
	healthHandler := apihandlers.NewHealthHandler(pool)
	authHandler := apihandlers.NewAuthHandler(authSvc, logger)
	codesHandler := apihandlers.NewCodesHandler(registry)
	clientHandler := apihandlers.NewClientHandler(clientSvc, accountSvc, logger)
	journalHandler := apihandlers.NewJournalHandler(journalSvc, logger)
	declarationHandler := apihandlers.NewDeclarationHandler(declarationSvc, logger)
	fileHandler := apihandlers.NewFileHandler(exports, logger)

	loginLimiter := middleware.LoginRateLimiter()
	apiLimiter := middleware.NewLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst)

	apiMux := http.NewServeMux()

	// Public routes (no auth required)
	healthHandler.RegisterRoutes(apiMux)
	loginMux := http.NewServeMux()
	authHandler.RegisterPublicRoutes(loginMux)
	apiMux.Handle("POST /api/v1/auth/login", loginLimiter.Middleware(loginMux))

	// Protected routes (JWT auth required)
	protectedMux := http.NewServeMux()
	authHandler.RegisterProtectedRoutes(protectedMux)
	codesHandler.RegisterRoutes(protectedMux)
	clientHandler.RegisterRoutes(protectedMux)
	journalHandler.RegisterRoutes(protectedMux)
	declarationHandler.RegisterRoutes(protectedMux)
	fileHandler.RegisterRoutes(protectedMux)
	apiMux.Handle("/api/v1/", middleware.RequireAuth(jwtMgr)(protectedMux))

	// Apply API middleware stack (outermost last)
	var apiChain http.Handler = apiMux
	apiChain = middleware.CORS(cfg.CORSOrigin)(apiChain)
	apiChain = middleware.SecurityHeaders(apiChain)
	apiChain = apiLimiter.Middleware(apiChain)
	apiChain = middleware.Recover(logger)(apiChain)
	apiChain = middleware.RequestLogger(logger)(apiChain)

	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      apiChain,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", "port", cfg.Port, "export_storage", cfg.ExportStorage)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		slog.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("api server shutdown error", "error", err)
	}
	apiLimiter.Stop()
	loginLimiter.Stop()

	slog.Info("server stopped")
}

// loadConfig uses the strict loader when APP_ENV=production and falls back
// to development defaults otherwise.
func loadConfig() *config.Config {
	if os.Getenv("APP_ENV") != "production" {
		return config.LoadDev()
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	return cfg
}
