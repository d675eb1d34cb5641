package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCodesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "codes",
		Short: "List the BTW codes and the rubriek they report in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tRATE\tCATEGORY\tBOX\tSIDE")
			for _, c := range a.registry.Codes() {
				rate := c.Percentage.String() + "%"
				if c.Policy.VariableRate {
					rate = "variable"
				}
				box, side := string(c.Policy.Box), string(c.Policy.ExpectedSide)
				if box == "" {
					box = "-"
				}
				if side == "" {
					side = "any"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.Code, rate, c.Category, box, side)
			}
			return w.Flush()
		},
	}
}
