package btw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a declaration.
type Status string

const (
	StatusConcept   Status = "concept"
	StatusFinalized Status = "finalized"
	StatusFiled     Status = "filed"
)

// Sentinel errors of the declaration lifecycle.
var (
	// ErrDeclarationNotFound is returned when no declaration exists for a period.
	ErrDeclarationNotFound = errors.New("declaration not found")

	// ErrNotConcept is returned when recomputing a declaration that is no
	// longer a concept.
	ErrNotConcept = errors.New("declaration is no longer a concept")

	// ErrNoConcept is returned when finalizing a period without a concept.
	ErrNoConcept = errors.New("no concept declaration for period")

	// ErrNotFinalized is returned when filing a declaration that has not
	// been finalized.
	ErrNotFinalized = errors.New("declaration must be finalized before filing")

	// ErrStatusConflict is returned by a Store when a conditional status
	// update finds a different status than expected.
	ErrStatusConflict = errors.New("declaration status changed concurrently")
)

// PreconditionError reports a lifecycle operation that is not allowed in the
// declaration's current state.
type PreconditionError struct {
	Op     string
	Key    PeriodKey
	Status Status // empty when no declaration exists
	Err    error
}

func (e *PreconditionError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s %s (status %s): %v", e.Op, e.Key, e.Status, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// IsPrecondition reports whether err is a lifecycle precondition failure.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// Declaration is the persisted snapshot of a period's totals.
type Declaration struct {
	Key       PeriodKey  `json:"period"`
	Totals    Totals     `json:"totals"`
	Status    Status     `json:"status"`
	FiledAt   *time.Time `json:"filed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Store persists declarations. Implementations must keep at most one row per
// period key and perform each write atomically:
//
//   - UpsertConcept inserts the row, or replaces its totals when the stored
//     row is a concept. A row in any other status is left untouched and
//     ErrNotConcept is returned.
//   - TransitionStatus changes the status only when the stored status equals
//     from. It returns ErrDeclarationNotFound or ErrStatusConflict otherwise.
type Store interface {
	GetDeclaration(ctx context.Context, key PeriodKey) (Declaration, error)
	UpsertConcept(ctx context.Context, key PeriodKey, totals Totals) (Declaration, error)
	TransitionStatus(ctx context.Context, key PeriodKey, from, to Status, filedAt *time.Time) (Declaration, error)
	ListDeclarations(ctx context.Context, clientID uuid.UUID, year int) ([]Declaration, error)
}

// Manager drives the concept -> finalized -> filed state machine.
type Manager struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// NewManager creates a lifecycle manager on top of the given store.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// WithClock returns a copy of the manager that stamps filing times with now.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	cp := *m
	cp.now = now
	return &cp
}

// List returns the client's declarations for a year, or all years when year
// is zero.
func (m *Manager) List(ctx context.Context, clientID uuid.UUID, year int) ([]Declaration, error) {
	return m.store.ListDeclarations(ctx, clientID, year)
}

// Get returns the stored declaration for the period.
func (m *Manager) Get(ctx context.Context, key PeriodKey) (Declaration, error) {
	return m.store.GetDeclaration(ctx, key)
}

// Recompute stores the summary's totals as the period's concept declaration.
// The summary must have been aggregated for key. Running it again for the
// same period replaces the concept.
func (m *Manager) Recompute(ctx context.Context, key PeriodKey, sum Summary) (Declaration, error) {
	if err := key.Validate(); err != nil {
		return Declaration{}, err
	}
	if sum.Key != key {
		return Declaration{}, fmt.Errorf("%w: summary for %s cannot be stored under %s", ErrInvalidPeriod, sum.Key, key)
	}

	d, err := m.store.UpsertConcept(ctx, key, sum.Totals)
	if err != nil {
		if errors.Is(err, ErrNotConcept) {
			status := m.currentStatus(ctx, key)
			return Declaration{}, &PreconditionError{Op: "recompute", Key: key, Status: status, Err: ErrNotConcept}
		}
		return Declaration{}, fmt.Errorf("storing concept declaration %s: %w", key, err)
	}

	m.logger.Info("concept declaration stored",
		"client_id", key.ClientID,
		"period", key.String(),
		"net_payable", d.Totals.NetPayable.StringFixed(2),
	)
	return d, nil
}

// Finalize freezes a concept declaration. The totals are not recomputed.
func (m *Manager) Finalize(ctx context.Context, key PeriodKey) (Declaration, error) {
	d, err := m.transition(ctx, "finalize", key, StatusConcept, StatusFinalized, nil)
	if err != nil {
		return Declaration{}, err
	}
	m.logger.Info("declaration finalized", "client_id", key.ClientID, "period", key.String())
	return d, nil
}

// File marks a finalized declaration as filed and stamps the filing time.
func (m *Manager) File(ctx context.Context, key PeriodKey) (Declaration, error) {
	at := m.now()
	d, err := m.transition(ctx, "file", key, StatusFinalized, StatusFiled, &at)
	if err != nil {
		return Declaration{}, err
	}
	m.logger.Info("declaration filed", "client_id", key.ClientID, "period", key.String(), "filed_at", at)
	return d, nil
}

func (m *Manager) transition(ctx context.Context, op string, key PeriodKey, from, to Status, filedAt *time.Time) (Declaration, error) {
	if err := key.Validate(); err != nil {
		return Declaration{}, err
	}

	current, err := m.store.GetDeclaration(ctx, key)
	if err != nil {
		if errors.Is(err, ErrDeclarationNotFound) {
			return Declaration{}, &PreconditionError{Op: op, Key: key, Err: requiredStatusErr(from)}
		}
		return Declaration{}, fmt.Errorf("loading declaration %s: %w", key, err)
	}
	if current.Status != from {
		return Declaration{}, &PreconditionError{Op: op, Key: key, Status: current.Status, Err: requiredStatusErr(from)}
	}

	d, err := m.store.TransitionStatus(ctx, key, from, to, filedAt)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrDeclarationNotFound) {
			// Another writer moved the row between the read and the update.
			status := m.currentStatus(ctx, key)
			return Declaration{}, &PreconditionError{Op: op, Key: key, Status: status, Err: requiredStatusErr(from)}
		}
		return Declaration{}, fmt.Errorf("updating declaration %s to %s: %w", key, to, err)
	}
	return d, nil
}

func (m *Manager) currentStatus(ctx context.Context, key PeriodKey) Status {
	d, err := m.store.GetDeclaration(ctx, key)
	if err != nil {
		return ""
	}
	return d.Status
}

// requiredStatusErr names what is missing when a transition out of from is
// attempted on a period that is not in from.
func requiredStatusErr(from Status) error {
	if from == StatusConcept {
		return ErrNoConcept
	}
	return ErrNotFinalized
}
