package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/btwdesk/api/internal/btw"
	"github.com/btwdesk/api/internal/services/account"
)

// errInvalidLines makes the command exit non-zero after printing its report.
var errInvalidLines = errors.New("journal contains invalid lines")

func newValidateCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check every journal line against the BTW rules",
		Long: `Validate reports errors that would block a line from being stored and
advisory warnings. The account category used for the sales/cost checks is
derived from the account number (8xxx sales, 4xxx and 7xxx cost).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.validator()
			if err != nil {
				return fmt.Errorf("invalid --tolerance: %w", err)
			}
			rows, err := readJournalFile(file)
			if err != nil {
				return err
			}
			if report(cmd.OutOrStdout(), v, rows) > 0 {
				return errInvalidLines
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Journal CSV file (- for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// report prints one line per finding and returns the number of invalid lines.
func report(out io.Writer, v *btw.Validator, rows []journalRow) int {
	invalid, warned := 0, 0
	for _, r := range rows {
		if r.Err != nil {
			invalid++
			fmt.Fprintf(out, "line %d: error: %v\n", r.Line, r.Err)
			continue
		}
		res := v.Validate(candidate(r.Transaction))
		for _, e := range res.Errors {
			fmt.Fprintf(out, "line %d: error: %s\n", r.Line, e)
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(out, "line %d: warning: %s\n", r.Line, w)
		}
		if !res.Valid {
			invalid++
		} else if len(res.Warnings) > 0 {
			warned++
		}
	}
	fmt.Fprintf(out, "%d lines, %d invalid, %d with warnings\n", len(rows), invalid, warned)
	return invalid
}

func candidate(t btw.Transaction) btw.Candidate {
	return btw.Candidate{
		Debit:           t.Debit,
		Credit:          t.Credit,
		Code:            t.Code,
		VATAmount:       t.VATAmount,
		AccountNumber:   t.AccountNumber,
		AccountCategory: account.DeriveCategory(t.AccountNumber),
	}
}
