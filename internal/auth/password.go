package auth

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost        = 12
	minPasswordLength = 10 // characters
	maxPasswordBytes  = 72 // bcrypt ignores the rest
)

var (
	// ErrEmptyPassword is returned when an empty password is provided.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrPasswordTooShort is returned when a new password has fewer than
	// minPasswordLength characters.
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", minPasswordLength)

	// ErrPasswordTooLong is returned when a new password does not fit in
	// bcrypt's input.
	ErrPasswordTooLong = fmt.Errorf("password must be at most %d bytes", maxPasswordBytes)
)

// checkPasswordPolicy applies the rules for new passwords. Length is
// counted in characters, so "wachtwoörd" is ten long.
func checkPasswordPolicy(password string) error {
	switch {
	case password == "":
		return ErrEmptyPassword
	case utf8.RuneCountInString(password) < minPasswordLength:
		return ErrPasswordTooShort
	case len(password) > maxPasswordBytes:
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword checks a new password against the policy and hashes it.
func HashPassword(password string) (string, error) {
	if err := checkPasswordPolicy(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword returns nil when password matches the bcrypt hash. The
// policy is not applied, so accounts created under older rules can log in.
func VerifyPassword(hashedPassword, password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return fmt.Errorf("invalid password: %w", err)
	default:
		return fmt.Errorf("verifying password: %w", err)
	}
}
