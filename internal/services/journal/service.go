// Package journal stores a client's journal lines. Every write passes the
// BTW validator first; lines with hard validation errors are never stored.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/btwdesk/api/internal/btw"
	"github.com/btwdesk/api/internal/database"
)

var (
	// ErrNotFound is returned when a journal line does not exist for the client.
	ErrNotFound = errors.New("journal line not found")

	// ErrValidation is wrapped by every *ValidationError.
	ErrValidation = errors.New("journal line failed validation")

	// ErrDateRequired is returned for a line without a posting date.
	ErrDateRequired = errors.New("posting date is required")
)

// ValidationError carries the validator's result for a rejected line.
type ValidationError struct {
	Result btw.ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(e.Result.Errors, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Source records how a line entered the system.
type Source string

const (
	SourceManual Source = "manual"
	SourceImport Source = "import"
)

// Line is a stored journal line.
type Line struct {
	ID            uuid.UUID        `json:"id"`
	ClientID      uuid.UUID        `json:"client_id"`
	Date          time.Time        `json:"date"`
	AccountNumber string           `json:"account_number"`
	Description   string           `json:"description"`
	Debit         decimal.Decimal  `json:"debit"`
	Credit        decimal.Decimal  `json:"credit"`
	BTWCode       *string          `json:"btw_code"`
	BTWAmount     *decimal.Decimal `json:"btw_amount"`
	Source        Source           `json:"source"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Transaction returns the line as the aggregator sees it.
func (l Line) Transaction() btw.Transaction {
	t := btw.Transaction{
		Date:          l.Date,
		AccountNumber: l.AccountNumber,
		Debit:         l.Debit,
		Credit:        l.Credit,
		Code:          btw.NoCode(),
		VATAmount:     btw.NoAmount(),
	}
	if l.BTWCode != nil {
		t.Code = btw.SomeCode(*l.BTWCode)
	}
	if l.BTWAmount != nil {
		t.VATAmount = btw.SomeAmount(*l.BTWAmount)
	}
	return t
}

// LineParams holds the fields of a line to create or replace.
type LineParams struct {
	Date          time.Time        `json:"date"`
	AccountNumber string           `json:"account_number"`
	Description   string           `json:"description"`
	Debit         decimal.Decimal  `json:"debit"`
	Credit        decimal.Decimal  `json:"credit"`
	BTWCode       string           `json:"btw_code"`
	BTWAmount     *decimal.Decimal `json:"btw_amount"`
}

// Candidate converts the params for the validator.
func (p LineParams) Candidate(category btw.AccountCategory) btw.Candidate {
	c := btw.Candidate{
		Debit:           p.Debit,
		Credit:          p.Credit,
		Code:            btw.SomeCode(p.BTWCode),
		VATAmount:       btw.NoAmount(),
		AccountNumber:   strings.TrimSpace(p.AccountNumber),
		AccountCategory: category,
	}
	if p.BTWAmount != nil {
		c.VATAmount = btw.SomeAmount(*p.BTWAmount)
	}
	return c
}

// code returns the normalized code for storage, nil when absent.
func (p LineParams) code() *string {
	c, ok := btw.SomeCode(p.BTWCode).Get()
	if !ok {
		return nil
	}
	return &c
}

// Saved is a stored line together with the advisory warnings raised for it.
type Saved struct {
	Line     Line     `json:"line"`
	Warnings []string `json:"warnings"`
}

// CategoryResolver looks up the category of a client's ledger account.
type CategoryResolver interface {
	CategoryOf(ctx context.Context, clientID uuid.UUID, number string) (btw.AccountCategory, error)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Service validates and stores journal lines.
type Service struct {
	pool      *pgxpool.Pool
	validator *btw.Validator
	accounts  CategoryResolver
	logger    *slog.Logger
}

// NewService creates a new journal service.
func NewService(pool *pgxpool.Pool, validator *btw.Validator, accounts CategoryResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, validator: validator, accounts: accounts, logger: logger}
}

// Validate runs the BTW validator against the params without writing.
func (s *Service) Validate(ctx context.Context, clientID uuid.UUID, p LineParams) (btw.ValidationResult, error) {
	category := btw.AccountUnknown
	if s.accounts != nil && strings.TrimSpace(p.AccountNumber) != "" {
		c, err := s.accounts.CategoryOf(ctx, clientID, p.AccountNumber)
		if err != nil {
			return btw.ValidationResult{}, fmt.Errorf("resolving account category: %w", err)
		}
		category = c
	}
	return s.validator.Validate(p.Candidate(category)), nil
}

// Create validates and inserts a manual journal line.
func (s *Service) Create(ctx context.Context, clientID uuid.UUID, p LineParams) (Saved, error) {
	res, err := s.check(ctx, clientID, p)
	if err != nil {
		return Saved{}, err
	}

	id := uuid.New()
	if err := insertLine(ctx, s.pool, id, clientID, p, SourceManual); err != nil {
		return Saved{}, err
	}
	line, err := s.Get(ctx, clientID, id)
	if err != nil {
		return Saved{}, err
	}
	if len(res.Warnings) > 0 {
		s.logger.Info("journal line saved with warnings", "client_id", clientID, "line_id", id, "warnings", len(res.Warnings))
	}
	return Saved{Line: line, Warnings: res.Warnings}, nil
}

// Update validates and replaces an existing line.
func (s *Service) Update(ctx context.Context, clientID, lineID uuid.UUID, p LineParams) (Saved, error) {
	res, err := s.check(ctx, clientID, p)
	if err != nil {
		return Saved{}, err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE journal_lines
		SET entry_date = $1, account_number = $2, description = $3, debit = $4, credit = $5,
		    btw_code = $6, btw_amount = $7, updated_at = $8
		WHERE id = $9 AND client_id = $10
	`, p.Date, strings.TrimSpace(p.AccountNumber), p.Description,
		database.Numeric(p.Debit), database.Numeric(p.Credit),
		p.code(), database.NullNumeric(p.BTWAmount), time.Now().UTC(), lineID, clientID)
	if err != nil {
		if verr := constraintError(err); verr != nil {
			return Saved{}, verr
		}
		return Saved{}, fmt.Errorf("updating journal line %s: %w", lineID, err)
	}
	if tag.RowsAffected() == 0 {
		return Saved{}, ErrNotFound
	}

	line, err := s.Get(ctx, clientID, lineID)
	if err != nil {
		return Saved{}, err
	}
	return Saved{Line: line, Warnings: res.Warnings}, nil
}

// Delete removes a line.
func (s *Service) Delete(ctx context.Context, clientID, lineID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM journal_lines WHERE id = $1 AND client_id = $2`, lineID, clientID)
	if err != nil {
		return fmt.Errorf("deleting journal line %s: %w", lineID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns one of the client's lines.
func (s *Service) Get(ctx context.Context, clientID, lineID uuid.UUID) (Line, error) {
	line, err := scanLine(s.pool.QueryRow(ctx, selectLines+`WHERE id = $1 AND client_id = $2`, lineID, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Line{}, ErrNotFound
		}
		return Line{}, fmt.Errorf("getting journal line %s: %w", lineID, err)
	}
	return line, nil
}

// List returns the lines posted within the period, oldest first.
func (s *Service) List(ctx context.Context, key btw.PeriodKey) ([]Line, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	from, to := key.DateRange()

	rows, err := s.pool.Query(ctx, selectLines+`
		WHERE client_id = $1 AND entry_date >= $2 AND entry_date < $3
		ORDER BY entry_date, created_at, id
	`, key.ClientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing journal lines for %s: %w", key, err)
	}
	defer rows.Close()

	lines := []Line{}
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning journal line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListForPeriod returns the period's lines as one consistent snapshot for
// the aggregator.
func (s *Service) ListForPeriod(ctx context.Context, key btw.PeriodKey) ([]btw.Transaction, error) {
	lines, err := s.List(ctx, key)
	if err != nil {
		return nil, err
	}
	txs := make([]btw.Transaction, len(lines))
	for i, l := range lines {
		txs[i] = l.Transaction()
	}
	return txs, nil
}

// ImportLineResult reports the outcome of one imported line.
type ImportLineResult struct {
	Index    int        `json:"index"`
	ID       *uuid.UUID `json:"id,omitempty"`
	Errors   []string   `json:"errors"`
	Warnings []string   `json:"warnings"`
}

// ImportResult summarizes a batch import.
type ImportResult struct {
	Imported int                `json:"imported"`
	Rejected int                `json:"rejected"`
	Lines    []ImportLineResult `json:"lines"`
}

// ImportBatch validates every line and inserts the valid ones in a single
// transaction. Invalid lines are reported and skipped.
func (s *Service) ImportBatch(ctx context.Context, clientID uuid.UUID, lines []LineParams) (ImportResult, error) {
	result := ImportResult{Lines: make([]ImportLineResult, len(lines))}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, p := range lines {
		lr := ImportLineResult{Index: i, Errors: []string{}, Warnings: []string{}}

		res, err := s.check(ctx, clientID, p)
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			lr.Errors = verr.Result.Errors
			lr.Warnings = verr.Result.Warnings
			result.Rejected++
		case errors.Is(err, ErrDateRequired):
			lr.Errors = append(lr.Errors, err.Error())
			result.Rejected++
		case err != nil:
			return ImportResult{}, fmt.Errorf("validating line %d: %w", i, err)
		default:
			id := uuid.New()
			err := importLine(ctx, tx, id, clientID, p)
			if errors.As(err, &verr) {
				lr.Errors = verr.Result.Errors
				lr.Warnings = res.Warnings
				result.Rejected++
				break
			}
			if err != nil {
				return ImportResult{}, fmt.Errorf("importing line %d: %w", i, err)
			}
			lr.ID = &id
			lr.Warnings = res.Warnings
			result.Imported++
		}
		result.Lines[i] = lr
	}

	if err := tx.Commit(ctx); err != nil {
		return ImportResult{}, fmt.Errorf("committing import: %w", err)
	}

	s.logger.Info("journal import finished",
		"client_id", clientID,
		"imported", result.Imported,
		"rejected", result.Rejected,
	)
	return result, nil
}

// check runs validation and turns hard errors into a *ValidationError.
func (s *Service) check(ctx context.Context, clientID uuid.UUID, p LineParams) (btw.ValidationResult, error) {
	if p.Date.IsZero() {
		return btw.ValidationResult{}, ErrDateRequired
	}
	res, err := s.Validate(ctx, clientID, p)
	if err != nil {
		return btw.ValidationResult{}, err
	}
	if !res.Valid {
		return res, &ValidationError{Result: res}
	}
	return res, nil
}

func insertLine(ctx context.Context, db execer, id, clientID uuid.UUID, p LineParams, source Source) error {
	now := time.Now().UTC()
	_, err := db.Exec(ctx, `
		INSERT INTO journal_lines (
			id, client_id, entry_date, account_number, description, debit, credit,
			btw_code, btw_amount, source, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, id, clientID, p.Date, strings.TrimSpace(p.AccountNumber), p.Description,
		database.Numeric(p.Debit), database.Numeric(p.Credit),
		p.code(), database.NullNumeric(p.BTWAmount), string(source), now)
	if err != nil {
		if verr := constraintError(err); verr != nil {
			return verr
		}
		return fmt.Errorf("inserting journal line: %w", err)
	}
	return nil
}

// importLine inserts one line under a savepoint, so a line the database
// rejects does not abort the rest of the import.
func importLine(ctx context.Context, tx pgx.Tx, id, clientID uuid.UUID, p LineParams) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("creating savepoint: %w", err)
	}
	if err := insertLine(ctx, sp, id, clientID, p, SourceImport); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

// constraintError turns a CHECK violation into a *ValidationError, or
// returns nil for any other error.
func constraintError(err error) *ValidationError {
	if !database.IsCheckViolation(err) {
		return nil
	}
	msg := "line violates a journal constraint"
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName != "" {
		msg += " (" + pgErr.ConstraintName + ")"
	}
	return &ValidationError{Result: btw.ValidationResult{Errors: []string{msg}, Warnings: []string{}}}
}

const selectLines = `
	SELECT id, client_id, entry_date, account_number, description, debit, credit,
	       btw_code, btw_amount, source, created_at, updated_at
	FROM journal_lines
`

func scanLine(row pgx.Row) (Line, error) {
	var l Line
	var debit, credit, amount pgtype.Numeric
	var source string
	err := row.Scan(&l.ID, &l.ClientID, &l.Date, &l.AccountNumber, &l.Description,
		&debit, &credit, &l.BTWCode, &amount, &source, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return Line{}, err
	}
	l.Debit = database.Decimal(debit)
	l.Credit = database.Decimal(credit)
	l.BTWAmount = database.NullDecimal(amount)
	l.Source = Source(source)
	return l, nil
}
