package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/btwdesk/api/internal/btw"
)

// journalColumns is the fixed column order of the journal CSV.
var journalColumns = []string{"date", "account", "debit", "credit", "btw_code", "btw_amount"}

// journalRow is one parsed CSV record. Err is set when the record could not
// be read; Line is the 1-based line number in the file.
type journalRow struct {
	Line        int
	Transaction btw.Transaction
	Err         error
}

var dateLayouts = []string{time.DateOnly, "02-01-2006", "2-1-2006"}

func readJournalFile(path string) ([]journalRow, error) {
	if path == "-" {
		return readJournal(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()
	return readJournal(f)
}

// readJournal parses the journal CSV. Malformed records are returned with
// their error instead of aborting, so a validation report can list them all.
// Both comma and semicolon separated files are accepted.
func readJournal(r io.Reader) ([]journalRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	cr := csv.NewReader(strings.NewReader(string(data)))
	cr.Comma = detectSeparator(string(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var rows []journalRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading journal: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if len(rows) == 0 && isHeader(rec) {
			continue
		}
		if isBlank(rec) {
			continue
		}
		t, err := parseRecord(rec)
		if err != nil {
			err = fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, journalRow{Line: line, Transaction: t, Err: err})
	}
	return rows, nil
}

func detectSeparator(data string) rune {
	first, _, _ := strings.Cut(data, "\n")
	if strings.Count(first, ";") > strings.Count(first, ",") {
		return ';'
	}
	return ','
}

func isHeader(rec []string) bool {
	return len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), journalColumns[0])
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func parseRecord(rec []string) (btw.Transaction, error) {
	if len(rec) < 4 {
		return btw.Transaction{}, fmt.Errorf("expected at least %d columns (%s), got %d",
			4, strings.Join(journalColumns[:4], ","), len(rec))
	}
	field := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	date, err := parseDate(field(0))
	if err != nil {
		return btw.Transaction{}, err
	}
	debit, err := parseAmount(field(2))
	if err != nil {
		return btw.Transaction{}, fmt.Errorf("debit: %w", err)
	}
	credit, err := parseAmount(field(3))
	if err != nil {
		return btw.Transaction{}, fmt.Errorf("credit: %w", err)
	}

	t := btw.Transaction{
		Date:          date,
		AccountNumber: field(1),
		Debit:         debit,
		Credit:        credit,
		Code:          btw.SomeCode(field(4)),
		VATAmount:     btw.NoAmount(),
	}
	if s := field(5); s != "" {
		amt, err := parseAmount(s)
		if err != nil {
			return btw.Transaction{}, fmt.Errorf("btw_amount: %w", err)
		}
		t.VATAmount = btw.SomeAmount(amt)
	}
	return t, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("date is required")
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// parseAmount accepts "1234.56", "1.234,56" and "1234,56". Empty is zero.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "€"))
	if s == "" {
		return decimal.Zero, nil
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}
