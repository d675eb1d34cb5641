package declaration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/btwdesk/api/internal/btw"
	"github.com/btwdesk/api/internal/database"
)

// PGStore keeps declarations in the declarations table. The period key is a
// unique constraint, so the conditional writes below are atomic per period.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a declaration store on the pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

var _ btw.Store = (*PGStore)(nil)

const declarationColumns = `client_id, year, period_type, period_number, totals, status, filed_at, created_at, updated_at`

func (s *PGStore) GetDeclaration(ctx context.Context, key btw.PeriodKey) (btw.Declaration, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+declarationColumns+`
		FROM declarations
		WHERE client_id = $1 AND year = $2 AND period_type = $3 AND period_number = $4
	`, key.ClientID, key.Year, string(key.Type), key.Number)

	d, err := scanDeclaration(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return btw.Declaration{}, btw.ErrDeclarationNotFound
		}
		return btw.Declaration{}, fmt.Errorf("getting declaration %s: %w", key, err)
	}
	return d, nil
}

func (s *PGStore) UpsertConcept(ctx context.Context, key btw.PeriodKey, totals btw.Totals) (btw.Declaration, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO declarations (id, client_id, year, period_type, period_number, totals, net_payable, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'concept', now(), now())
		ON CONFLICT ON CONSTRAINT declarations_period_key DO UPDATE
		SET totals = EXCLUDED.totals,
		    net_payable = EXCLUDED.net_payable,
		    updated_at = now()
		WHERE declarations.status = 'concept'
		RETURNING `+declarationColumns,
		uuid.New(), key.ClientID, key.Year, string(key.Type), key.Number, totals, database.Numeric(totals.NetPayable))

	d, err := scanDeclaration(row)
	if err != nil {
		// The conflict branch skips rows that left the concept status.
		if errors.Is(err, pgx.ErrNoRows) {
			return btw.Declaration{}, btw.ErrNotConcept
		}
		return btw.Declaration{}, fmt.Errorf("upserting concept %s: %w", key, err)
	}
	return d, nil
}

func (s *PGStore) TransitionStatus(ctx context.Context, key btw.PeriodKey, from, to btw.Status, filedAt *time.Time) (btw.Declaration, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE declarations
		SET status = $5, filed_at = COALESCE($6, filed_at), updated_at = now()
		WHERE client_id = $1 AND year = $2 AND period_type = $3 AND period_number = $4
		  AND status = $7
		RETURNING `+declarationColumns,
		key.ClientID, key.Year, string(key.Type), key.Number, string(to), filedAt, string(from))

	d, err := scanDeclaration(row)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return btw.Declaration{}, fmt.Errorf("updating declaration %s: %w", key, err)
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM declarations
		WHERE client_id = $1 AND year = $2 AND period_type = $3 AND period_number = $4)
	`, key.ClientID, key.Year, string(key.Type), key.Number).Scan(&exists)
	if err != nil {
		return btw.Declaration{}, fmt.Errorf("checking declaration %s: %w", key, err)
	}
	if !exists {
		return btw.Declaration{}, btw.ErrDeclarationNotFound
	}
	return btw.Declaration{}, btw.ErrStatusConflict
}

func (s *PGStore) ListDeclarations(ctx context.Context, clientID uuid.UUID, year int) ([]btw.Declaration, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+declarationColumns+`
		FROM declarations
		WHERE client_id = $1 AND ($2 = 0 OR year = $2)
		ORDER BY year,
		         CASE period_type WHEN 'month' THEN 0 WHEN 'quarter' THEN 1 ELSE 2 END,
		         period_number
	`, clientID, year)
	if err != nil {
		return nil, fmt.Errorf("listing declarations: %w", err)
	}
	defer rows.Close()

	var out []btw.Declaration
	for rows.Next() {
		d, err := scanDeclaration(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning declaration: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating declarations: %w", err)
	}
	return out, nil
}

func scanDeclaration(row pgx.Row) (btw.Declaration, error) {
	var (
		d          btw.Declaration
		periodType string
		status     string
	)
	err := row.Scan(&d.Key.ClientID, &d.Key.Year, &periodType, &d.Key.Number,
		&d.Totals, &status, &d.FiledAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return btw.Declaration{}, err
	}
	d.Key.Type = btw.PeriodType(periodType)
	d.Status = btw.Status(status)
	return d, nil
}
