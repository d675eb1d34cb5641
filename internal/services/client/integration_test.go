//go:build integration

package client_test

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/btwdesk/api/internal/btw"
	"github.com/btwdesk/api/internal/services/client"
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

func TestCreateAndGet(t *testing.T) {
	testDB.Truncate(t)
	svc := client.NewService(testDB.Pool, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, client.Params{Name: "Bakkerij Jansen", BTWNumber: "nl000099998b57", FilingFrequency: "kwartaal"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.ID == uuid.Nil {
		t.Error("expected non-nil ID")
	}
	if c.FilingFrequency != btw.PeriodQuarter {
		t.Errorf("frequency: got %q", c.FilingFrequency)
	}

	got, err := svc.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.BTWNumber != "NL000099998B57" {
		t.Errorf("btw number: got %q", got.BTWNumber)
	}
}

func TestUpdateAndList(t *testing.T) {
	testDB.Truncate(t)
	svc := client.NewService(testDB.Pool, nil)
	ctx := context.Background()

	a, _ := svc.Create(ctx, client.Params{Name: "Zeilmakerij"})
	if _, err := svc.Create(ctx, client.Params{Name: "Atelier"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := svc.Update(ctx, a.ID, client.Params{Name: "Zeilmakerij BV", FilingFrequency: "month"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "Zeilmakerij BV" || updated.FilingFrequency != btw.PeriodMonth {
		t.Errorf("unexpected update result: %+v", updated)
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Atelier" {
		t.Errorf("expected 2 clients ordered by name, got %+v", list)
	}
}

func TestGet_NotFound(t *testing.T) {
	testDB.Truncate(t)
	svc := client.NewService(testDB.Pool, nil)

	if _, err := svc.Get(context.Background(), uuid.New()); !errors.Is(err, client.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Update(context.Background(), uuid.New(), client.Params{Name: "x"}); !errors.Is(err, client.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
