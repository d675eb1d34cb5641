// Package declaration computes, stores and exports a client's BTW
// declarations. It feeds journal lines through the btw aggregator and drives
// the concept, finalized and filed lifecycle.
package declaration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/btwdesk/api/internal/btw"
	"github.com/btwdesk/api/internal/services/audit"
	"github.com/btwdesk/api/internal/storage"
)

// ErrClientNotFound is returned for periods of a client that does not exist.
var ErrClientNotFound = errors.New("client not found")

// JournalSource yields the journal lines dated within a period.
type JournalSource interface {
	ListForPeriod(ctx context.Context, key btw.PeriodKey) ([]btw.Transaction, error)
}

// ClientChecker reports whether a client exists.
type ClientChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Result is a stored declaration together with the aggregation it came from.
type Result struct {
	Declaration btw.Declaration `json:"declaration"`
	Summary     btw.Summary     `json:"summary"`
}

// ExportResult locates a rendered declaration export.
type ExportResult struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service ties the journal, the aggregator and the lifecycle manager together.
type Service struct {
	manager    *btw.Manager
	aggregator *btw.Aggregator
	journal    JournalSource
	clients    ClientChecker
	exports    storage.Storage
	urlExpiry  time.Duration
	audit      *audit.Recorder
	logger     *slog.Logger
}

// Options configures a Service. Clients, Exports and Audit are optional.
type Options struct {
	Manager    *btw.Manager
	Aggregator *btw.Aggregator
	Journal    JournalSource
	Clients    ClientChecker
	Exports    storage.Storage
	URLExpiry  time.Duration
	Audit      *audit.Recorder
	Logger     *slog.Logger
}

// NewService creates a new declaration service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := opts.Audit
	if rec == nil {
		rec = audit.NewRecorder(nil, logger)
	}
	expiry := opts.URLExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &Service{
		manager:    opts.Manager,
		aggregator: opts.Aggregator,
		journal:    opts.Journal,
		clients:    opts.Clients,
		exports:    opts.Exports,
		urlExpiry:  expiry,
		audit:      rec,
		logger:     logger,
	}
}

// Preview aggregates the period without storing anything.
func (s *Service) Preview(ctx context.Context, key btw.PeriodKey) (btw.Summary, error) {
	if err := s.checkKey(ctx, key); err != nil {
		return btw.Summary{}, err
	}
	return s.aggregate(ctx, key)
}

// Recompute aggregates the period and stores the totals as its concept.
func (s *Service) Recompute(ctx context.Context, key btw.PeriodKey) (Result, error) {
	if err := s.checkKey(ctx, key); err != nil {
		return Result{}, err
	}
	sum, err := s.aggregate(ctx, key)
	if err != nil {
		return Result{}, err
	}
	d, err := s.manager.Recompute(ctx, key, sum)
	if err != nil {
		return Result{}, err
	}

	s.record(ctx, "declaration.recompute", key, map[string]any{
		"net_payable": d.Totals.NetPayable.StringFixed(2),
	})
	return Result{Declaration: d, Summary: sum}, nil
}

// Finalize freezes the period's concept. A period without a concept is
// computed first, so finalizing an untouched period works in one call.
func (s *Service) Finalize(ctx context.Context, key btw.PeriodKey) (btw.Declaration, error) {
	if err := s.checkKey(ctx, key); err != nil {
		return btw.Declaration{}, err
	}

	d, err := s.manager.Finalize(ctx, key)
	if errors.Is(err, btw.ErrNoConcept) && s.statusOf(ctx, key) == "" {
		if _, err := s.Recompute(ctx, key); err != nil {
			return btw.Declaration{}, err
		}
		d, err = s.manager.Finalize(ctx, key)
	}
	if err != nil {
		return btw.Declaration{}, err
	}

	s.record(ctx, "declaration.finalize", key, nil)
	return d, nil
}

// File marks the period's finalized declaration as filed.
func (s *Service) File(ctx context.Context, key btw.PeriodKey) (btw.Declaration, error) {
	if err := s.checkKey(ctx, key); err != nil {
		return btw.Declaration{}, err
	}
	d, err := s.manager.File(ctx, key)
	if err != nil {
		return btw.Declaration{}, err
	}

	s.record(ctx, "declaration.file", key, map[string]any{"filed_at": d.FiledAt})
	return d, nil
}

// Get returns the stored declaration of the period.
func (s *Service) Get(ctx context.Context, key btw.PeriodKey) (btw.Declaration, error) {
	if err := key.Validate(); err != nil {
		return btw.Declaration{}, err
	}
	return s.manager.Get(ctx, key)
}

// List returns a client's declarations, for one year or for all years when
// year is zero.
func (s *Service) List(ctx context.Context, clientID uuid.UUID, year int) ([]btw.Declaration, error) {
	if err := s.checkClient(ctx, clientID); err != nil {
		return nil, err
	}
	ds, err := s.manager.List(ctx, clientID, year)
	if err != nil {
		return nil, fmt.Errorf("listing declarations: %w", err)
	}
	if ds == nil {
		ds = []btw.Declaration{}
	}
	return ds, nil
}

// Export renders the stored declaration as CSV, uploads it and returns a
// time-limited download URL.
func (s *Service) Export(ctx context.Context, key btw.PeriodKey) (ExportResult, error) {
	if s.exports == nil {
		return ExportResult{}, errors.New("export storage is not configured")
	}
	d, err := s.Get(ctx, key)
	if err != nil {
		return ExportResult{}, err
	}

	body, err := RenderCSV(d)
	if err != nil {
		return ExportResult{}, fmt.Errorf("rendering export: %w", err)
	}

	objectKey := ExportKey(key)
	if _, err := s.exports.Put(ctx, objectKey, body, "text/csv"); err != nil {
		return ExportResult{}, fmt.Errorf("storing export: %w", err)
	}
	url, err := s.exports.PresignGet(ctx, objectKey, s.urlExpiry)
	if err != nil {
		return ExportResult{}, fmt.Errorf("presigning export: %w", err)
	}

	s.record(ctx, "declaration.export", key, map[string]any{"object": objectKey})
	s.logger.Info("declaration exported", "client_id", key.ClientID, "period", key.String(), "object", objectKey)

	return ExportResult{
		Key:       objectKey,
		URL:       url,
		ExpiresAt: time.Now().UTC().Add(s.urlExpiry),
	}, nil
}

// ExportKey is the object path of a period's export.
func ExportKey(key btw.PeriodKey) string {
	return fmt.Sprintf("exports/%s/btw-%s.csv", key.ClientID, key.String())
}

func (s *Service) aggregate(ctx context.Context, key btw.PeriodKey) (btw.Summary, error) {
	txs, err := s.journal.ListForPeriod(ctx, key)
	if err != nil {
		return btw.Summary{}, fmt.Errorf("loading journal for %s: %w", key, err)
	}
	sum := s.aggregator.Aggregate(txs, key)
	if sum.MissingCodes() {
		s.logger.Warn("period has journal lines but none carries a BTW code",
			"client_id", key.ClientID,
			"period", key.String(),
			"lines", sum.TotalTransactions,
		)
	}
	return sum, nil
}

func (s *Service) checkKey(ctx context.Context, key btw.PeriodKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return s.checkClient(ctx, key.ClientID)
}

func (s *Service) checkClient(ctx context.Context, id uuid.UUID) error {
	if s.clients == nil {
		return nil
	}
	ok, err := s.clients.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("checking client: %w", err)
	}
	if !ok {
		return ErrClientNotFound
	}
	return nil
}

func (s *Service) statusOf(ctx context.Context, key btw.PeriodKey) btw.Status {
	d, err := s.manager.Get(ctx, key)
	if err != nil {
		return ""
	}
	return d.Status
}

func (s *Service) record(ctx context.Context, action string, key btw.PeriodKey, changes map[string]any) {
	if changes == nil {
		changes = map[string]any{}
	}
	changes["period"] = key.String()
	s.audit.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: "declaration",
		EntityID:   key.ClientID,
		Changes:    changes,
	})
}
