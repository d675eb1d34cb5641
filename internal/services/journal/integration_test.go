//go:build integration

package journal_test

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/btwdesk/api/internal/btw"
	"github.com/btwdesk/api/internal/services/account"
	"github.com/btwdesk/api/internal/services/journal"
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

func newService() *journal.Service {
	return journal.NewService(testDB.Pool,
		btw.NewValidator(btw.DefaultRegistry()),
		account.NewService(testDB.Pool, nil),
		nil)
}

func day(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCreateGetUpdateDelete(t *testing.T) {
	testDB.Truncate(t)
	svc := newService()
	ctx := context.Background()
	clientID := testDB.FixtureClient(t, "Atelier")

	vat := decimal.RequireFromString("210.00")
	saved, err := svc.Create(ctx, clientID, journal.LineParams{
		Date: day(2, 1), AccountNumber: "8000", Credit: decimal.NewFromInt(1000), BTWCode: "1A", BTWAmount: &vat,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(saved.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", saved.Warnings)
	}
	if saved.Line.BTWCode == nil || *saved.Line.BTWCode != "1a" {
		t.Errorf("expected stored code 1a, got %v", saved.Line.BTWCode)
	}

	updated, err := svc.Update(ctx, clientID, saved.Line.ID, journal.LineParams{
		Date: day(2, 2), AccountNumber: "4000", Debit: decimal.NewFromInt(50), BTWCode: "1a",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated.Warnings) == 0 {
		t.Error("expected warnings for a sales code on a cost account debit")
	}

	if err := svc.Delete(ctx, clientID, saved.Line.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, clientID, saved.Line.ID); !errors.Is(err, journal.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCreate_RejectsBothSides(t *testing.T) {
	testDB.Truncate(t)
	svc := newService()
	clientID := testDB.FixtureClient(t, "Atelier")

	_, err := svc.Create(context.Background(), clientID, journal.LineParams{
		Date: day(1, 1), AccountNumber: "8000", Debit: decimal.NewFromInt(1), Credit: decimal.NewFromInt(1),
	})
	if !errors.Is(err, journal.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	lines, _ := svc.List(context.Background(), btw.PeriodKey{ClientID: clientID, Year: 2024, Type: btw.PeriodYear, Number: 1})
	if len(lines) != 0 {
		t.Errorf("expected nothing written, got %d lines", len(lines))
	}
}

func TestListForPeriod_ScopesByQuarter(t *testing.T) {
	testDB.Truncate(t)
	svc := newService()
	ctx := context.Background()
	clientID := testDB.FixtureClient(t, "Atelier")
	other := testDB.FixtureClient(t, "Other")

	testDB.FixtureJournalLine(t, clientID, testutil.JournalFixture{Date: day(1, 1), Account: "8000", Credit: "100", Code: "1a"})
	testDB.FixtureJournalLine(t, clientID, testutil.JournalFixture{Date: day(3, 31), Account: "4000", Debit: "50", Code: "5b", VATAmount: "10.50"})
	testDB.FixtureJournalLine(t, clientID, testutil.JournalFixture{Date: day(4, 1), Account: "8000", Credit: "999", Code: "1a"})
	testDB.FixtureJournalLine(t, other, testutil.JournalFixture{Date: day(2, 1), Account: "8000", Credit: "999", Code: "1a"})

	txs, err := svc.ListForPeriod(ctx, btw.PeriodKey{ClientID: clientID, Year: 2024, Type: btw.PeriodQuarter, Number: 1})
	if err != nil {
		t.Fatalf("ListForPeriod: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 lines in Q1, got %d", len(txs))
	}
	if a, ok := txs[1].VATAmount.Get(); !ok || !a.Equal(decimal.RequireFromString("10.50")) {
		t.Errorf("expected stored amount 10.50, got %s (%v)", a, ok)
	}
}

func TestImportBatch(t *testing.T) {
	testDB.Truncate(t)
	svc := newService()
	clientID := testDB.FixtureClient(t, "Atelier")

	res, err := svc.ImportBatch(context.Background(), clientID, []journal.LineParams{
		{Date: day(1, 2), AccountNumber: "8000", Credit: decimal.NewFromInt(100), BTWCode: "1a"},
		{Date: day(1, 3), AccountNumber: "8000", Credit: decimal.NewFromInt(100), BTWCode: "zz"},
		{Date: day(1, 4), AccountNumber: "4000", Debit: decimal.NewFromInt(100), BTWCode: "5b"},
		{AccountNumber: "4000", Debit: decimal.NewFromInt(1)},
	})
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}
	if res.Imported != 2 || res.Rejected != 2 {
		t.Errorf("expected 2 imported and 2 rejected, got %+v", res)
	}
	if res.Lines[1].ID != nil || len(res.Lines[1].Errors) == 0 {
		t.Errorf("expected line 1 to be rejected with errors, got %+v", res.Lines[1])
	}
	if res.Lines[0].ID == nil || *res.Lines[0].ID == uuid.Nil {
		t.Error("expected line 0 to have an ID")
	}
}
