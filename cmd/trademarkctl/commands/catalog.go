package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"finitefield.org/trademark-web/internal/catalog"
	"finitefield.org/trademark-web/internal/currency"
	"finitefield.org/trademark-web/internal/format"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the embedded price catalog",
	}
	cmd.AddCommand(catalogDumpCmd())
	return cmd
}

func catalogDumpCmd() *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print every territory with its prices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cur, ok := currency.Parse(code)
			if !ok {
				return fmt.Errorf("unsupported currency %q", code)
			}
			cat, err := catalog.Default()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REGION\tTERRITORY\tBASE\tPER CLASS")
			for _, region := range cat.Regions() {
				for _, c := range region.Countries {
					base, extra := "on request", "-"
					if p, ok := c.PriceIn(cur); ok {
						base = format.Money(p.Base, cur, "en")
						extra = format.Money(p.AdditionalClass, cur, "en")
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", region.Name, c.Name, base, extra)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&code, "currency", string(currency.Default), "currency to print (EUR or USD)")
	return cmd
}
