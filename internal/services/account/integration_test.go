//go:build integration

package account_test

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"

	"github.com/btwdesk/api/internal/btw"
	"github.com/btwdesk/api/internal/services/account"
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

func TestCreateListAndCategory(t *testing.T) {
	testDB.Truncate(t)
	svc := account.NewService(testDB.Pool, nil)
	ctx := context.Background()
	clientID := testDB.FixtureClient(t, "Atelier")

	if _, err := svc.Create(ctx, clientID, account.CreateParams{Number: "8000", Name: "Omzet hoog"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, clientID, account.CreateParams{Number: "9100", Name: "Kruisposten", Category: "cost"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := svc.List(ctx, clientID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Number != "8000" || list[0].Category != btw.AccountSales {
		t.Errorf("unexpected accounts: %+v", list)
	}

	cat, err := svc.CategoryOf(ctx, clientID, "9100")
	if err != nil || cat != btw.AccountCost {
		t.Errorf("expected stored category cost, got %q, %v", cat, err)
	}
	cat, err = svc.CategoryOf(ctx, clientID, "4300")
	if err != nil || cat != btw.AccountCost {
		t.Errorf("expected derived category cost, got %q, %v", cat, err)
	}
}

func TestCreate_DuplicateNumber(t *testing.T) {
	testDB.Truncate(t)
	svc := account.NewService(testDB.Pool, nil)
	ctx := context.Background()
	clientID := testDB.FixtureClient(t, "Atelier")

	if _, err := svc.Create(ctx, clientID, account.CreateParams{Number: "8000"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, clientID, account.CreateParams{Number: "8000"}); !errors.Is(err, account.ErrNumberTaken) {
		t.Errorf("expected ErrNumberTaken, got %v", err)
	}
}
