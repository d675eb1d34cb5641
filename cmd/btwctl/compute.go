package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/btwdesk/api/internal/btw"
	"github.com/btwdesk/api/internal/services/declaration"
)

type computeOptions struct {
	file    string
	year    int
	quarter int
	month   int
	asJSON  bool
	export  string
	strict  bool
}

func newComputeCmd(a *app) *cobra.Command {
	opts := &computeOptions{}
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Aggregate a CSV journal into a declaration",
		Example: `  # First quarter of 2024
  btwctl compute --file journal.csv --year 2024 --quarter 1

  # March 2024 as JSON, also writing the rubriek CSV
  btwctl compute --file journal.csv --year 2024 --month 3 --json --export btw-2024-03.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompute(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Journal CSV file (- for stdin)")
	cmd.Flags().IntVar(&opts.year, "year", 0, "Declaration year")
	cmd.Flags().IntVar(&opts.quarter, "quarter", 0, "Quarter 1-4")
	cmd.Flags().IntVar(&opts.month, "month", 0, "Month 1-12")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the summary as JSON")
	cmd.Flags().StringVar(&opts.export, "export", "", "Write the rubriek overview as CSV to this path")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail instead of skipping lines that do not validate")
	cmd.MarkFlagsMutuallyExclusive("quarter", "month")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

// periodKey builds the key from the flags. Without --quarter or --month the
// whole year is computed. The CLI works on a single anonymous client.
func (o *computeOptions) periodKey() (btw.PeriodKey, error) {
	key := btw.PeriodKey{ClientID: uuid.Nil, Year: o.year, Type: btw.PeriodYear, Number: 1}
	switch {
	case o.quarter != 0:
		key.Type, key.Number = btw.PeriodQuarter, o.quarter
	case o.month != 0:
		key.Type, key.Number = btw.PeriodMonth, o.month
	}
	return key, key.Validate()
}

func runCompute(ctx context.Context, a *app, opts *computeOptions, out io.Writer) error {
	key, err := opts.periodKey()
	if err != nil {
		return err
	}

	v, err := a.validator()
	if err != nil {
		return fmt.Errorf("invalid --tolerance: %w", err)
	}
	rows, err := readJournalFile(opts.file)
	if err != nil {
		return err
	}
	var bad []error
	skipped := 0
	txs := make([]btw.Transaction, 0, len(rows))
	for _, r := range rows {
		if r.Err != nil {
			bad = append(bad, r.Err)
			continue
		}
		if !key.Contains(r.Transaction.Date) {
			continue
		}
		// Lines that could not be stored through the API do not count
		// towards the declaration either.
		if res := v.Validate(candidate(r.Transaction)); !res.Valid {
			skipped++
			a.logger.Warn("skipping invalid journal line", "line", r.Line, "errors", res.Errors)
			continue
		}
		txs = append(txs, r.Transaction)
	}
	if len(bad) > 0 {
		return fmt.Errorf("journal has unreadable lines: %w", errors.Join(bad...))
	}
	if skipped > 0 && opts.strict {
		return fmt.Errorf("%w: %d in period %s", errInvalidLines, skipped, key)
	}

	sum := btw.NewAggregator(a.registry).Aggregate(txs, key)
	if sum.MissingCodes() {
		a.logger.Warn("no line in the period carries a BTW code", "period", key.String(), "lines", sum.TotalTransactions)
	}

	// Run the figures through the lifecycle so the output is exactly what
	// would be stored as a concept.
	mgr := btw.NewManager(btw.NewMemoryStore(), a.logger)
	d, err := mgr.Recompute(ctx, key, sum)
	if err != nil {
		return err
	}

	if opts.export != "" {
		if err := writeExport(opts.export, d); err != nil {
			return err
		}
		a.logger.Info("export written", "path", opts.export)
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	return printTotals(out, sum)
}

func writeExport(path string, d btw.Declaration) error {
	body, err := declaration.RenderCSV(d)
	if err != nil {
		return fmt.Errorf("rendering export: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func printTotals(out io.Writer, sum btw.Summary) error {
	t := sum.Totals
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Periode %s\t\t\t\n", sum.Key)
	fmt.Fprintln(w, "Rubriek\tOmzet\tBTW\t")
	rows := []struct {
		box           string
		turnover, vat string
	}{
		{"1a", t.Box1aTurnover.StringFixed(2), t.Box1aVAT.StringFixed(2)},
		{"1b", t.Box1bTurnover.StringFixed(2), t.Box1bVAT.StringFixed(2)},
		{"1c", t.Box1cTurnover.StringFixed(2), t.Box1cVAT.StringFixed(2)},
		{"1d", t.Box1dTurnover.StringFixed(2), t.Box1dVAT.StringFixed(2)},
		{"1e", t.Box1eTurnover.StringFixed(2), ""},
		{"2a", t.Box2aTurnover.StringFixed(2), ""},
		{"3a", t.Box3aTurnover.StringFixed(2), ""},
		{"3b", t.Box3bTurnover.StringFixed(2), ""},
		{"4a", t.Box4aTurnover.StringFixed(2), t.Box4aVAT.StringFixed(2)},
		{"4b", t.Box4bTurnover.StringFixed(2), t.Box4bVAT.StringFixed(2)},
		{"5a", "", t.GrossOwed.StringFixed(2)},
		{"5b", "", t.Box5bVAT.StringFixed(2)},
		{"5b grondslag 21%", t.Box5bBase.StringFixed(2), ""},
		{"5b grondslag 9%", t.Box5bBaseLow.StringFixed(2), ""},
		{"5c", "", t.NetPayable.StringFixed(2)},
		{"5g", "", t.FinalBalance.StringFixed(2)},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", r.box, r.turnover, r.vat)
	}
	fmt.Fprintf(w, "Regels\t%d\t(met code %d, andere kant %d)\t\n",
		sum.TotalTransactions, sum.TransactionsWithCode, sum.ExcludedBySide)
	return w.Flush()
}
