//go:build integration

package declaration_test

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/btwdesk/api/internal/btw"
	"github.com/btwdesk/api/internal/services/account"
	"github.com/btwdesk/api/internal/services/audit"
	"github.com/btwdesk/api/internal/services/client"
	"github.com/btwdesk/api/internal/services/declaration"
	"github.com/btwdesk/api/internal/services/journal"
	"github.com/btwdesk/api/internal/storage"
	"github.com/btwdesk/api/internal/testutil"
)

var testDB *testutil.TestDB

func TestMain(m *testing.M) {
	var code int
	defer func() { os.Exit(code) }()

	db, err := testutil.SetupTestDB()
	if err != nil {
		log.Fatalf("setting up test database: %v", err)
	}
	defer db.Close()
	testDB = db

	code = m.Run()
}

func newService(t *testing.T) *declaration.Service {
	t.Helper()
	registry := btw.DefaultRegistry()
	return declaration.NewService(declaration.Options{
		Manager:    btw.NewManager(declaration.NewPGStore(testDB.Pool), nil),
		Aggregator: btw.NewAggregator(registry),
		Journal:    journal.NewService(testDB.Pool, btw.NewValidator(registry), account.NewService(testDB.Pool, nil), nil),
		Clients:    client.NewService(testDB.Pool, nil),
		Exports:    storage.NewLocal(t.TempDir(), "/exports"),
		Audit:      audit.NewRecorder(testDB.Pool, nil),
	})
}

func seedQuarter(t *testing.T, clientID uuid.UUID) {
	t.Helper()
	testDB.FixtureJournalLine(t, clientID, testutil.JournalFixture{
		Date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Account: "8000", Credit: "1000.00", Code: "1a",
	})
	testDB.FixtureJournalLine(t, clientID, testutil.JournalFixture{
		Date: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), Account: "4000", Debit: "400.00", Code: "5b",
	})
	testDB.FixtureJournalLine(t, clientID, testutil.JournalFixture{
		Date: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), Account: "8000", Credit: "9999.00", Code: "1a",
	})
}

func q1(clientID uuid.UUID) btw.PeriodKey {
	return btw.PeriodKey{ClientID: clientID, Year: 2024, Type: btw.PeriodQuarter, Number: 1}
}

func TestPGStore_Lifecycle(t *testing.T) {
	testDB.Truncate(t)
	svc := newService(t)
	ctx := context.Background()
	clientID := testDB.FixtureClient(t, "Bakkerij")
	seedQuarter(t, clientID)
	key := q1(clientID)

	res, err := svc.Recompute(ctx, key)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if !res.Declaration.Totals.NetPayable.Equal(decimal.NewFromInt(126)) {
		t.Errorf("expected net payable 126, got %s", res.Declaration.Totals.NetPayable)
	}

	// Recomputing a concept replaces it in place.
	if _, err := svc.Recompute(ctx, key); err != nil {
		t.Fatalf("second Recompute: %v", err)
	}
	var rows int
	if err := testDB.Pool.QueryRow(ctx, `SELECT count(*) FROM declarations WHERE client_id = $1`, clientID).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Fatalf("expected 1 declaration row, got %d", rows)
	}

	if _, err := svc.Finalize(ctx, key); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if _, err := svc.Recompute(ctx, key); !errors.Is(err, btw.ErrNotConcept) {
		t.Errorf("expected ErrNotConcept after finalize, got %v", err)
	}

	filed, err := svc.File(ctx, key)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if filed.Status != btw.StatusFiled || filed.FiledAt == nil {
		t.Errorf("expected filed with timestamp, got %s %v", filed.Status, filed.FiledAt)
	}

	got, err := svc.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Totals.Box1aVAT.Equal(decimal.NewFromInt(210)) || !got.Totals.Box5bVAT.Equal(decimal.NewFromInt(84)) {
		t.Errorf("totals did not survive the JSONB round trip: %+v", got.Totals)
	}
	if !got.Totals.Equal(res.Declaration.Totals) {
		t.Error("filed totals differ from the first concept")
	}

	if _, err := svc.File(ctx, key); !btw.IsPrecondition(err) {
		t.Errorf("expected precondition error on second file, got %v", err)
	}
}

func TestPGStore_TransitionStatusErrors(t *testing.T) {
	testDB.Truncate(t)
	store := declaration.NewPGStore(testDB.Pool)
	ctx := context.Background()
	key := q1(testDB.FixtureClient(t, "Smederij"))

	_, err := store.TransitionStatus(ctx, key, btw.StatusConcept, btw.StatusFinalized, nil)
	if !errors.Is(err, btw.ErrDeclarationNotFound) {
		t.Errorf("expected ErrDeclarationNotFound, got %v", err)
	}

	if _, err := store.UpsertConcept(ctx, key, btw.Totals{}); err != nil {
		t.Fatal(err)
	}
	_, err = store.TransitionStatus(ctx, key, btw.StatusFinalized, btw.StatusFiled, nil)
	if !errors.Is(err, btw.ErrStatusConflict) {
		t.Errorf("expected ErrStatusConflict, got %v", err)
	}
}

func TestConcurrentRecompute(t *testing.T) {
	testDB.Truncate(t)
	svc := newService(t)
	ctx := context.Background()
	clientID := testDB.FixtureClient(t, "Drukkerij")
	seedQuarter(t, clientID)
	key := q1(clientID)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Recompute(ctx, key); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Recompute: %v", err)
	}

	ds, err := svc.List(ctx, clientID, 2024)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ds) != 1 {
		t.Fatalf("expected 1 declaration, got %d", len(ds))
	}
}

func TestList_Ordering(t *testing.T) {
	testDB.Truncate(t)
	svc := newService(t)
	ctx := context.Background()
	clientID := testDB.FixtureClient(t, "Kwekerij")

	keys := []btw.PeriodKey{
		{ClientID: clientID, Year: 2024, Type: btw.PeriodYear, Number: 1},
		{ClientID: clientID, Year: 2024, Type: btw.PeriodQuarter, Number: 2},
		{ClientID: clientID, Year: 2023, Type: btw.PeriodQuarter, Number: 4},
		{ClientID: clientID, Year: 2024, Type: btw.PeriodMonth, Number: 11},
	}
	for _, k := range keys {
		if _, err := svc.Recompute(ctx, k); err != nil {
			t.Fatalf("Recompute %s: %v", k, err)
		}
	}

	ds, err := svc.List(ctx, clientID, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"2023-Q4", "2024-11", "2024-Q2", "2024"}
	if len(ds) != len(want) {
		t.Fatalf("expected %d declarations, got %d", len(want), len(ds))
	}
	for i, w := range want {
		if got := ds[i].Key.String(); got != w {
			t.Errorf("position %d: expected %s, got %s", i, w, got)
		}
	}

	ds, err = svc.List(ctx, clientID, 2023)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds) != 1 {
		t.Errorf("expected 1 declaration for 2023, got %d", len(ds))
	}
}

func TestAuditTrail(t *testing.T) {
	testDB.Truncate(t)
	svc := newService(t)
	clientID := testDB.FixtureClient(t, "Brouwerij")
	seedQuarter(t, clientID)

	if _, err := svc.Finalize(context.Background(), q1(clientID)); err != nil {
		t.Fatal(err)
	}

	var actions int
	err := testDB.Pool.QueryRow(context.Background(), `
		SELECT count(*) FROM audit_log WHERE entity_type = 'declaration' AND entity_id = $1
	`, clientID).Scan(&actions)
	if err != nil {
		t.Fatal(err)
	}
	// recompute (implicit) + finalize
	if actions != 2 {
		t.Errorf("expected 2 audit entries, got %d", actions)
	}
}
