package main

import (
	"log/slog"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/btwdesk/api/internal/btw"
)

var version = "dev"

// app holds what every subcommand shares.
type app struct {
	logger    *slog.Logger
	registry  *btw.Registry
	tolerance string
	verbose   bool
}

func (a *app) validator() (*btw.Validator, error) {
	tol, err := decimal.NewFromString(a.tolerance)
	if err != nil {
		return nil, err
	}
	return btw.NewValidator(a.registry).WithTolerance(tol), nil
}

func newRootCmd() *cobra.Command {
	a := &app{registry: btw.DefaultRegistry()}

	root := &cobra.Command{
		Use:   "btwctl",
		Short: "Compute Dutch BTW declarations from a CSV journal",
		Long: `btwctl aggregates journal lines into the rubrieken of the Dutch BTW
declaration and checks lines against the BTW code rules.

The journal CSV has the columns date,account,debit,credit,btw_code,btw_amount.
A header row is optional. Dates are YYYY-MM-DD or DD-MM-YYYY.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if a.verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log debug output to stderr")
	root.PersistentFlags().StringVar(&a.tolerance, "tolerance", btw.DefaultTolerance.String(),
		"Allowed difference between a stored and a computed BTW amount")

	root.AddCommand(newCodesCmd(a), newComputeCmd(a), newValidateCmd(a))
	return root
}
