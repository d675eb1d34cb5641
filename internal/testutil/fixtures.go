package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/btwdesk/api/internal/database"
)

// FixtureUser inserts an active bookkeeper with the given bcrypt hash and
// returns its ID.
func (tdb *TestDB) FixtureUser(t *testing.T, email, passwordHash string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := tdb.Pool.Exec(context.Background(), `
		INSERT INTO users (id, email, name, password_hash)
		VALUES ($1, $2, $3, $4)
	`, id, email, "Test User", passwordHash)
	if err != nil {
		t.Fatalf("creating fixture user %q: %v", email, err)
	}
	return id
}

// FixtureClient inserts a quarterly-filing client and returns its ID.
func (tdb *TestDB) FixtureClient(t *testing.T, name string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := tdb.Pool.Exec(context.Background(), `
		INSERT INTO clients (id, name, btw_number, kvk_number, filing_frequency)
		VALUES ($1, $2, 'NL000099998B57', '12345678', 'quarter')
	`, id, name)
	if err != nil {
		t.Fatalf("creating fixture client %q: %v", name, err)
	}
	return id
}

// FixtureAccount inserts a ledger account for the client.
func (tdb *TestDB) FixtureAccount(t *testing.T, clientID uuid.UUID, number, category string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := tdb.Pool.Exec(context.Background(), `
		INSERT INTO ledger_accounts (id, client_id, number, name, category)
		VALUES ($1, $2, $3, $4, $5)
	`, id, clientID, number, "Account "+number, category)
	if err != nil {
		t.Fatalf("creating fixture account %q: %v", number, err)
	}
	return id
}

// JournalFixture describes a journal line inserted directly, bypassing
// validation.
type JournalFixture struct {
	Date      time.Time
	Account   string
	Debit     string
	Credit    string
	Code      string // empty for no code
	VATAmount string // empty for no amount
}

// FixtureJournalLine inserts a journal line and returns its ID.
func (tdb *TestDB) FixtureJournalLine(t *testing.T, clientID uuid.UUID, f JournalFixture) uuid.UUID {
	t.Helper()

	parse := func(s string) decimal.Decimal {
		if s == "" {
			return decimal.Zero
		}
		return decimal.RequireFromString(s)
	}

	var code *string
	if f.Code != "" {
		code = &f.Code
	}
	var amount *decimal.Decimal
	if f.VATAmount != "" {
		a := parse(f.VATAmount)
		amount = &a
	}

	id := uuid.New()
	_, err := tdb.Pool.Exec(context.Background(), `
		INSERT INTO journal_lines (id, client_id, entry_date, account_number, debit, credit, btw_code, btw_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, clientID, f.Date, f.Account,
		database.Numeric(parse(f.Debit)), database.Numeric(parse(f.Credit)),
		code, database.NullNumeric(amount))
	if err != nil {
		t.Fatalf("creating fixture journal line: %v", err)
	}
	return id
}
