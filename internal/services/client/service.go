package client

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
)

var (
	// ErrNotFound is returned when a client does not exist.
	ErrNotFound = errors.New("client not found")

	// ErrNameRequired is returned when a client is saved without a name.
	ErrNameRequired = errors.New("client name is required")

	// ErrInvalidFrequency is returned for an unknown filing frequency.
	ErrInvalidFrequency = errors.New("filing frequency must be month, quarter or year")
)

// Client is a bookkeeping client whose ledger is kept in the system.
type Client struct {
	ID              uuid.UUID      `json:"id"`
	Name            string         `json:"name"`
	BTWNumber       string         `json:"btw_number"`
	KVKNumber       string         `json:"kvk_number"`
	FilingFrequency btw.PeriodType `json:"filing_frequency"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Params holds the editable client fields.
type Params struct {
	Name            string
	BTWNumber       string
	KVKNumber       string
	FilingFrequency string // empty defaults to quarter
}

// Service provides client CRUD.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a new client service.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, logger: logger}
}

// Create inserts a new client.
func (s *Service) Create(ctx context.Context, p Params) (Client, error) {
	p, freq, err := normalize(p)
	if err != nil {
		return Client{}, err
	}

	id := uuid.New()
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO clients (id, name, btw_number, kvk_number, filing_frequency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, id, p.Name, p.BTWNumber, p.KVKNumber, string(freq), now)
	if err != nil {
		return Client{}, fmt.Errorf("inserting client: %w", err)
	}

	s.logger.Info("client created", "client_id", id, "name", p.Name)
	return s.Get(ctx, id)
}

// Update replaces the client's editable fields.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p Params) (Client, error) {
	p, freq, err := normalize(p)
	if err != nil {
		return Client{}, err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE clients
		SET name = $1, btw_number = $2, kvk_number = $3, filing_frequency = $4, updated_at = $5
		WHERE id = $6
	`, p.Name, p.BTWNumber, p.KVKNumber, string(freq), time.Now().UTC(), id)
	if err != nil {
		return Client{}, fmt.Errorf("updating client %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return Client{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Get returns a single client by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Client, error) {
	c, err := scanClient(s.pool.QueryRow(ctx, `
		SELECT id, name, btw_number, kvk_number, filing_frequency, created_at, updated_at
		FROM clients
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrNotFound
		}
		return Client{}, fmt.Errorf("getting client %s: %w", id, err)
	}
	return c, nil
}

// Exists reports whether a client with the ID exists.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("checking client %s: %w", id, err)
	}
	return ok, nil
}

// List returns all clients ordered by name.
func (s *Service) List(ctx context.Context) ([]Client, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, btw_number, kvk_number, filing_frequency, created_at, updated_at
		FROM clients
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	defer rows.Close()

	clients := []Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func scanClient(row pgx.Row) (Client, error) {
	var c Client
	var freq string
	err := row.Scan(&c.ID, &c.Name, &c.BTWNumber, &c.KVKNumber, &freq, &c.CreatedAt, &c.UpdatedAt)
	c.FilingFrequency = btw.PeriodType(freq)
	return c, err
}

// normalize trims the params and resolves the filing frequency.
func normalize(p Params) (Params, btw.PeriodType, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.BTWNumber = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(p.BTWNumber), " ", ""))
	p.KVKNumber = strings.TrimSpace(p.KVKNumber)
	if p.Name == "" {
		return p, "", ErrNameRequired
	}
	if strings.TrimSpace(p.FilingFrequency) == "" {
		return p, btw.PeriodQuarter, nil
	}
	freq, err := btw.ParsePeriodType(p.FilingFrequency)
	if err != nil {
		return p, "", ErrInvalidFrequency
	}
	return p, freq, nil
}
