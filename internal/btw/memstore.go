package btw

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store. It is safe for concurrent use and keeps
// one declaration per period key. Data is lost when the process exits.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[PeriodKey]Declaration
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory declaration store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[PeriodKey]Declaration),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) GetDeclaration(_ context.Context, key PeriodKey) (Declaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.rows[key]
	if !ok {
		return Declaration{}, ErrDeclarationNotFound
	}
	return copyDeclaration(d), nil
}

func (s *MemoryStore) UpsertConcept(_ context.Context, key PeriodKey, totals Totals) (Declaration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	d, ok := s.rows[key]
	switch {
	case !ok:
		d = Declaration{Key: key, Status: StatusConcept, CreatedAt: now}
	case d.Status != StatusConcept:
		return Declaration{}, ErrNotConcept
	}
	d.Totals = totals
	d.UpdatedAt = now
	s.rows[key] = d
	return copyDeclaration(d), nil
}

func (s *MemoryStore) TransitionStatus(_ context.Context, key PeriodKey, from, to Status, filedAt *time.Time) (Declaration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.rows[key]
	if !ok {
		return Declaration{}, ErrDeclarationNotFound
	}
	if d.Status != from {
		return Declaration{}, ErrStatusConflict
	}
	d.Status = to
	if filedAt != nil {
		at := *filedAt
		d.FiledAt = &at
	}
	d.UpdatedAt = s.now()
	s.rows[key] = d
	return copyDeclaration(d), nil
}

func (s *MemoryStore) ListDeclarations(_ context.Context, clientID uuid.UUID, year int) ([]Declaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Declaration
	for k, d := range s.rows {
		if k.ClientID != clientID || (year != 0 && k.Year != year) {
			continue
		}
		out = append(out, copyDeclaration(d))
	}
	sortDeclarations(out)
	return out, nil
}

// Len returns the number of stored declarations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func copyDeclaration(d Declaration) Declaration {
	if d.FiledAt != nil {
		at := *d.FiledAt
		d.FiledAt = &at
	}
	return d
}

var periodTypeOrder = map[PeriodType]int{PeriodMonth: 0, PeriodQuarter: 1, PeriodYear: 2}

func sortDeclarations(ds []Declaration) {
	sort.Slice(ds, func(i, j int) bool {
		a, b := ds[i].Key, ds[j].Key
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Type != b.Type {
			return periodTypeOrder[a.Type] < periodTypeOrder[b.Type]
		}
		return a.Number < b.Number
	})
}
