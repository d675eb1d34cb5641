// Package auth authenticates bookkeepers: bcrypt passwords, optional TOTP
// two-factor authentication with recovery codes, and JWT access tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/btwdesk/api/internal/database"
	"github.com/btwdesk/api/internal/services/audit"
)

var (
	// ErrInvalidCredentials is returned when email/password authentication fails.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrUserNotFound is returned when a user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserInactive is returned when a user account is disabled.
	ErrUserInactive = errors.New("user account is inactive")

	// ErrEmailTaken is returned when creating a user with an existing email.
	ErrEmailTaken = errors.New("email address is already in use")

	// ErrTOTPRequired is returned by Login when the user has 2FA enabled and
	// no code was sent.
	ErrTOTPRequired = errors.New("two-factor code required")

	// ErrInvalidTOTPCode is returned when a TOTP code is invalid.
	ErrInvalidTOTPCode = errors.New("invalid TOTP code")

	// ErrTOTPAlreadySetup is returned when 2FA is already configured for a user.
	ErrTOTPAlreadySetup = errors.New("two-factor authentication is already set up")

	// ErrTOTPNotSetup is returned when 2FA has not been set up for a user.
	ErrTOTPNotSetup = errors.New("two-factor authentication is not set up")

	// ErrInvalidRecoveryCode is returned when a recovery code is invalid.
	ErrInvalidRecoveryCode = errors.New("invalid recovery code")
)

// dummyHash is compared against when the email is unknown, so a miss costs
// as much as a wrong password.
const dummyHash = "$2a$12$C6UzMDM.H6dfI/f/IKcEeO5RlsWl1b8gPp6Ue5o0rmtyhVYk1Ed4u"

// User is a bookkeeper account.
type User struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	PasswordHash  string     `json:"-"`
	TOTPSecret    string     `json:"-"`
	TOTPVerified  bool       `json:"totp_enabled"`
	RecoveryCodes []string   `json:"-"` // bcrypt hashes
	IsActive      bool       `json:"is_active"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Token is an issued access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}

// Service handles user management and login.
type Service struct {
	pool   *pgxpool.Pool
	jwt    *JWTManager
	audit  *audit.Recorder
	logger *slog.Logger
	issuer string // TOTP issuer shown in authenticator apps
}

// NewService creates a new auth service.
func NewService(pool *pgxpool.Pool, jwt *JWTManager, rec *audit.Recorder, logger *slog.Logger, issuer string) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = audit.NewRecorder(pool, logger)
	}
	return &Service{
		pool:   pool,
		jwt:    jwt,
		audit:  rec,
		logger: logger,
		issuer: issuer,
	}
}

// Login checks the credentials and returns an access token. When the user
// has 2FA enabled, totpCode must hold either a current TOTP code or an unused
// recovery code; recovery codes are burned on use.
func (s *Service) Login(ctx context.Context, email, password, totpCode string) (*Token, error) {
	email = normalizeEmail(email)
	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = VerifyPassword(dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		s.logger.Warn("failed login attempt", slog.String("email", email))
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	if user.TOTPVerified {
		if err := s.checkSecondFactor(ctx, user, totpCode); err != nil {
			return nil, err
		}
	}

	token, expires, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	if err := s.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Error("failed to update last login",
			slog.String("user_id", user.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("login successful",
		slog.String("user_id", user.ID.String()),
		slog.Bool("two_factor", user.TOTPVerified),
	)

	return &Token{AccessToken: token, TokenType: "Bearer", ExpiresAt: expires, User: user}, nil
}

// checkSecondFactor accepts a current TOTP code or burns a matching
// recovery code.
func (s *Service) checkSecondFactor(ctx context.Context, user *User, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrTOTPRequired
	}
	code, kind := classifyCode(raw)
	switch kind {
	case codeRecovery:
		return s.burnRecoveryCode(ctx, user, code)
	case codeTOTP:
		if verifyTOTP(code, user.TOTPSecret, time.Now()) {
			return nil
		}
	}
	s.logger.Warn("failed 2FA attempt", slog.String("user_id", user.ID.String()))
	return ErrInvalidTOTPCode
}

func (s *Service) burnRecoveryCode(ctx context.Context, user *User, code string) error {
	idx := matchRecoveryCode(code, user.RecoveryCodes)
	if idx == -1 {
		s.logger.Warn("invalid recovery code attempt", slog.String("user_id", user.ID.String()))
		return ErrInvalidRecoveryCode
	}

	remaining := make([]string, 0, len(user.RecoveryCodes)-1)
	for i, c := range user.RecoveryCodes {
		if i != idx {
			remaining = append(remaining, c)
		}
	}

	// The array comparison makes a concurrent use of the same code fail.
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET recovery_codes = $1, updated_at = $2
		WHERE id = $3 AND recovery_codes = $4
	`, remaining, time.Now().UTC(), user.ID, user.RecoveryCodes)
	if err != nil {
		return fmt.Errorf("burning recovery code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidRecoveryCode
	}
	user.RecoveryCodes = remaining

	s.audit.Record(ctx, audit.Entry{
		UserID:     user.ID,
		Action:     "auth.recovery_code_used",
		EntityType: "user",
		EntityID:   user.ID,
		Changes:    map[string]any{"codes_remaining": len(remaining)},
	})
	return nil
}

// Setup2FA generates a new, unconfirmed TOTP secret for the user.
func (s *Service) Setup2FA(ctx context.Context, userID uuid.UUID) (*TOTPSetup, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetching user for 2FA setup: %w", err)
	}
	if user.TOTPVerified {
		return nil, ErrTOTPAlreadySetup
	}

	setup, err := newTOTPSetup(s.issuer, user.Email)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE users
		SET totp_secret = $1, updated_at = $2
		WHERE id = $3
	`, setup.Secret, time.Now().UTC(), userID)
	if err != nil {
		return nil, fmt.Errorf("storing TOTP secret: %w", err)
	}

	return setup, nil
}

// Confirm2FA checks the first code from the authenticator app and enables
// 2FA. It returns the plaintext recovery codes, which are shown only once.
func (s *Service) Confirm2FA(ctx context.Context, userID uuid.UUID, code string) ([]string, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetching user for 2FA confirmation: %w", err)
	}
	if user.TOTPVerified {
		return nil, ErrTOTPAlreadySetup
	}
	if user.TOTPSecret == "" {
		return nil, ErrTOTPNotSetup
	}
	if code, kind := classifyCode(code); kind != codeTOTP || !verifyTOTP(code, user.TOTPSecret, time.Now()) {
		return nil, ErrInvalidTOTPCode
	}

	plain, hashed, err := newRecoveryCodes()
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE users
		SET totp_verified = true, recovery_codes = $1, updated_at = $2
		WHERE id = $3
	`, hashed, time.Now().UTC(), userID)
	if err != nil {
		return nil, fmt.Errorf("enabling 2FA: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		UserID:     userID,
		Action:     "auth.2fa_enabled",
		EntityType: "user",
		EntityID:   userID,
	})

	return plain, nil
}

// CreateUser creates an active user without 2FA.
func (s *Service) CreateUser(ctx context.Context, email, name, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email address %q", email)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, true, $5, $5)
	`, id, email, strings.TrimSpace(name), hash, now)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Info("user created", slog.String("user_id", id.String()), slog.String("email", email))
	return s.GetUserByID(ctx, id)
}

// SetPassword replaces the user's password.
func (s *Service) SetPassword(ctx context.Context, userID uuid.UUID, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3
	`, hash, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetActive enables or disables a user account.
func (s *Service) SetActive(ctx context.Context, userID uuid.UUID, active bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET is_active = $1, updated_at = $2 WHERE id = $3
	`, active, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("updating user status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

const selectUser = `
	SELECT id, email, name, password_hash, totp_secret, totp_verified,
	       recovery_codes, is_active, last_login_at, created_at, updated_at
	FROM users`

// GetUserByID fetches a user by ID.
func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, selectUser+` WHERE id = $1`, id))
}

// GetUserByEmail fetches a user by email.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, selectUser+` WHERE email = $1`, normalizeEmail(email)))
}

// UpdateLastLogin updates the last_login_at timestamp for a user.
func (s *Service) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET last_login_at = $1 WHERE id = $2
	`, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.TOTPSecret,
		&user.TOTPVerified,
		&user.RecoveryCodes,
		&user.IsActive,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
