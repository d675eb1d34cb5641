package account

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

	"github.com/btwdesk/api/internal/btw"
	"github.com/btwdesk/api/internal/database"
)

var (
	// ErrNotFound is returned when a ledger account does not exist.
	ErrNotFound = errors.New("ledger account not found")

	// ErrNumberRequired is returned when an account is saved without a number.
	ErrNumberRequired = errors.New("account number is required")

	// ErrNumberTaken is returned when the client already has the account number.
	ErrNumberTaken = errors.New("account number already exists for this client")

	// ErrInvalidCategory is returned for an unknown account category.
	ErrInvalidCategory = errors.New("category must be sales, cost, balance or other")
)

// Account is a ledger account in a client's chart of accounts.
type Account struct {
	ID        uuid.UUID           `json:"id"`
	ClientID  uuid.UUID           `json:"client_id"`
	Number    string              `json:"number"`
	Name      string              `json:"name"`
	Category  btw.AccountCategory `json:"category"`
	CreatedAt time.Time           `json:"created_at"`
}

// CreateParams holds the fields for a new ledger account.
type CreateParams struct {
	Number   string
	Name     string
	Category string // empty derives the category from the number
}

// Service manages ledger accounts.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a new ledger account service.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, logger: logger}
}

// Create adds an account to the client's chart.
func (s *Service) Create(ctx context.Context, clientID uuid.UUID, p CreateParams) (Account, error) {
	number := strings.TrimSpace(p.Number)
	if number == "" {
		return Account{}, ErrNumberRequired
	}
	category, err := ResolveCategory(number, p.Category)
	if err != nil {
		return Account{}, err
	}

	a := Account{
		ID:        uuid.New(),
		ClientID:  clientID,
		Number:    number,
		Name:      strings.TrimSpace(p.Name),
		Category:  category,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ledger_accounts (id, client_id, number, name, category, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.ClientID, a.Number, a.Name, string(a.Category), a.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return Account{}, ErrNumberTaken
		}
		return Account{}, fmt.Errorf("inserting ledger account: %w", err)
	}
	return a, nil
}

// List returns the client's accounts ordered by number.
func (s *Service) List(ctx context.Context, clientID uuid.UUID) ([]Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, client_id, number, name, category, created_at
		FROM ledger_accounts
		WHERE client_id = $1
		ORDER BY number
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("listing ledger accounts: %w", err)
	}
	defer rows.Close()

	accounts := []Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetByNumber returns the client's account with the given number.
func (s *Service) GetByNumber(ctx context.Context, clientID uuid.UUID, number string) (Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `
		SELECT id, client_id, number, name, category, created_at
		FROM ledger_accounts
		WHERE client_id = $1 AND number = $2
	`, clientID, strings.TrimSpace(number)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("getting ledger account %s: %w", number, err)
	}
	return a, nil
}

// CategoryOf returns the category of the client's account, falling back to
// the number-based derivation when the account is not in the chart.
func (s *Service) CategoryOf(ctx context.Context, clientID uuid.UUID, number string) (btw.AccountCategory, error) {
	a, err := s.GetByNumber(ctx, clientID, number)
	if errors.Is(err, ErrNotFound) {
		return DeriveCategory(number), nil
	}
	if err != nil {
		return btw.AccountUnknown, err
	}
	return a.Category, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var category string
	err := row.Scan(&a.ID, &a.ClientID, &a.Number, &a.Name, &category, &a.CreatedAt)
	a.Category = btw.AccountCategory(category)
	return a, err
}

// ResolveCategory validates an explicit category or derives one from the
// account number.
func ResolveCategory(number, category string) (btw.AccountCategory, error) {
	switch c := btw.AccountCategory(strings.ToLower(strings.TrimSpace(category))); c {
	case btw.AccountUnknown:
		return DeriveCategory(number), nil
	case btw.AccountSales, btw.AccountCost, btw.AccountBalance, btw.AccountOther:
		return c, nil
	}
	return btw.AccountUnknown, ErrInvalidCategory
}

// DeriveCategory classifies an account by the Dutch decimal chart of
// accounts: rubriek 8 is revenue, 4 and 7 are costs, 0 to 3 are balance
// sheet accounts. Anything else, including non-numeric numbers, is other.
func DeriveCategory(number string) btw.AccountCategory {
	number = strings.TrimSpace(number)
	if number == "" || number[0] < '0' || number[0] > '9' {
		return btw.AccountOther
	}
	switch number[0] {
	case '8':
		return btw.AccountSales
	case '4', '7':
		return btw.AccountCost
	case '0', '1', '2', '3':
		return btw.AccountBalance
	}
	return btw.AccountOther
}
