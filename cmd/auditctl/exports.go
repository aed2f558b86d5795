package main

import (
	"context"
	"fmt"
	"os"

	"github.com/haulmark/invoice-audit/internal/container"
	"github.com/haulmark/invoice-audit/internal/domain/reconcile"
	"github.com/haulmark/invoice-audit/pkg/utils"
	"github.com/spf13/cobra"
)

func (c *cli) exportUnbilledCmd() *cobra.Command {
	var (
		date, from, to string
		save           bool
	)
	cmd := &cobra.Command{
		Use:   "export-unbilled",
		Short: "Print the billing portal payload for loads without an invoice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceDate, err := utils.ParseDateOr(date, c.now())
			if err != nil {
				return fmt.Errorf("--date: %w", err)
			}
			fromDate, err := utils.ParseOptionalDate(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			toDate, err := utils.ParseOptionalDate(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			if err := utils.ValidateDateOrder(fromDate, toDate); err != nil {
				return err
			}
			rng := &reconcile.DateRange{From: fromDate, To: toDate}

			return c.withContainer(cmd.Context(), func(ctx context.Context, ctr *container.Container) error {
				if save {
					path, err := ctr.Reconciliation().SaveUnbilledExport(ctx, invoiceDate, rng)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.out, path)
					return nil
				}
				payload, err := ctr.Reconciliation().ExportUnbilled(ctx, invoiceDate, rng)
				if err != nil {
					return err
				}
				fmt.Fprint(c.out, payload)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "invoice date for every line (default today)")
	cmd.Flags().StringVar(&from, "from", "", "earliest delivery date to include")
	cmd.Flags().StringVar(&to, "to", "", "latest delivery date to include")
	cmd.Flags().BoolVar(&save, "save", false, "write the payload to the export directory and print its path")
	return cmd
}

func (c *cli) exportTableCmd() *cobra.Command {
	var (
		out  string
		save bool
	)
	cmd := &cobra.Command{
		Use:   "export-table",
		Short: "Write the audit table as an .xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" && !save {
				return fmt.Errorf("one of --out or --save is required")
			}
			if out != "" && save {
				return fmt.Errorf("--out and --save are mutually exclusive")
			}

			return c.withContainer(cmd.Context(), func(ctx context.Context, ctr *container.Container) error {
				if save {
					path, err := ctr.Reconciliation().SaveWorkbook(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.out, path)
					return nil
				}

				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				if err := ctr.Reconciliation().ExportWorkbook(ctx, f); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("close %s: %w", out, err)
				}
				fmt.Fprintln(c.out, out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "workbook file to write")
	cmd.Flags().BoolVar(&save, "save", false, "write into the export directory and print the path")
	return cmd
}
