package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/btwdesk/api/internal/auth"
	"github.com/btwdesk/api/internal/config"
	"github.com/btwdesk/api/internal/database"
	"github.com/btwdesk/api/internal/services/audit"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg := config.LoadDev()

	pool, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenExpiry)
	authService := auth.NewService(pool, jwtMgr, audit.NewRecorder(pool, logger), logger, cfg.TOTPIssuer)

	email := "boekhouder@btwdesk.local"
	password := "verander-mij-nu"
	name := "Boekhouder"

	if len(os.Args) > 1 {
		email = os.Args[1]
	}
	if len(os.Args) > 2 {
		password = os.Args[2]
	}
	if len(os.Args) > 3 {
		name = os.Args[3]
	}

	// Check if user already exists
	_, err = authService.GetUserByEmail(context.Background(), email)
	if err == nil {
		fmt.Printf("User %s already exists\n", email)
		os.Exit(0)
	}
	if !errors.Is(err, auth.ErrUserNotFound) {
		slog.Error("failed to look up user", "error", err)
		os.Exit(1)
	}

	user, err := authService.CreateUser(context.Background(), email, name, password)
	if err != nil {
		slog.Error("failed to create user", "error", err)
		os.Exit(1)
	}

	fmt.Printf("User created:\n  ID:    %s\n  Email: %s\n  Name:  %s\n\nLog in with POST %s/api/v1/auth/login and enrol 2FA via /api/v1/auth/2fa/setup.\n",
		user.ID, user.Email, user.Name, cfg.BaseURL)
}
