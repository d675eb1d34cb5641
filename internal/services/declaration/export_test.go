package declaration

import (
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/btwdesk/api/internal/btw"
)

func TestRenderCSV(t *testing.T) {
	d := btw.Declaration{
		Key:    q1(),
		Status: btw.StatusFinalized,
		Totals: btw.Totals{
			Box1aTurnover: decimal.NewFromInt(1000),
			Box1aVAT:      decimal.NewFromInt(210),
			Box2aTurnover: decimal.RequireFromString("99.5"),
			Box5bVAT:      decimal.NewFromInt(84),
			Box5bBase:     decimal.NewFromInt(1000),
			Box5bBaseLow:  decimal.NewFromInt(500),
			GrossOwed:     decimal.NewFromInt(210),
			NetPayable:    decimal.NewFromInt(126),
			FinalBalance:  decimal.NewFromInt(126),
		},
	}

	r, err := RenderCSV(d)
	if err != nil {
		t.Fatalf("RenderCSV: %v", err)
	}
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		t.Fatalf("parsing rendered CSV: %v", err)
	}

	if len(records) != 17 {
		t.Fatalf("expected header plus 16 rows, got %d", len(records))
	}
	if got := records[0]; got[0] != "box" || got[3] != "vat" {
		t.Errorf("unexpected header %v", got)
	}

	byBox := make(map[string][]string)
	for _, rec := range records[1:] {
		if len(rec) != 4 {
			t.Fatalf("expected 4 columns, got %v", rec)
		}
		byBox[rec[0]] = rec
	}

	tests := []struct {
		box      string
		turnover string
		vat      string
	}{
		{"1a", "1000.00", "210.00"},
		{"1b", "0.00", "0.00"},
		{"2a", "99.50", ""},
		{"5a", "", "210.00"},
		{"5b", "", "84.00"},
		{"5b-hoog", "1000.00", ""},
		{"5b-laag", "500.00", ""},
		{"5g", "", "126.00"},
	}
	for _, tt := range tests {
		t.Run(tt.box, func(t *testing.T) {
			rec, ok := byBox[tt.box]
			if !ok {
				t.Fatalf("no row for box %s", tt.box)
			}
			if rec[2] != tt.turnover {
				t.Errorf("turnover: expected %q, got %q", tt.turnover, rec[2])
			}
			if rec[3] != tt.vat {
				t.Errorf("vat: expected %q, got %q", tt.vat, rec[3])
			}
		})
	}
}
