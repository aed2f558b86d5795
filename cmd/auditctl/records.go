package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/haulmark/invoice-audit/internal/container"
	"github.com/haulmark/invoice-audit/internal/domain/entity"
	"github.com/spf13/cobra"
)

func (c *cli) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Merge invoice audit spreadsheets (.xlsx or .csv) into the store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd.Context(), func(ctx context.Context, ctr *container.Container) error {
				for _, path := range args {
					res, err := ctr.Reconciliation().ImportFile(ctx, path)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					fmt.Fprintf(c.out, "%s: read %d, skipped %d, inserted %d, updated %d\n",
						path, res.RowsRead, res.RowsSkipped, res.Inserted, res.Updated)
				}
				return nil
			})
		},
	}
}

func (c *cli) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Create or refresh placeholder records from billable loads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd.Context(), func(ctx context.Context, ctr *container.Container) error {
				res, err := ctr.Reconciliation().SyncLoads(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "created %d, refreshed %d, unchanged %d, skipped %d invoiced, %d without PO\n",
					res.Created, res.Refreshed, res.Unchanged, res.SkippedImported, res.SkippedNoPO)
				return nil
			})
		},
	}
}

func (c *cli) recordsCmd() *cobra.Command {
	var (
		status string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List the cross-referenced audit table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			want := entity.MatchStatus(strings.ToUpper(strings.TrimSpace(status)))
			if want != "" && want != entity.MatchStatusBilled && want != entity.MatchStatusUnbilled {
				return fmt.Errorf("unknown status %q (want BILLED or UNBILLED)", status)
			}

			return c.withContainer(cmd.Context(), func(ctx context.Context, ctr *container.Container) error {
				records, err := ctr.Reconciliation().Refresh(ctx)
				if err != nil {
					return err
				}
				if want != "" {
					filtered := records[:0]
					for _, r := range records {
						if r.MatchStatus == want {
							filtered = append(filtered, r)
						}
					}
					records = filtered
				}

				if asJSON {
					enc := json.NewEncoder(c.out)
					enc.SetIndent("", "  ")
					return enc.Encode(records)
				}
				return c.printRecords(records)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only show BILLED or UNBILLED records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func (c *cli) printRecords(records []*entity.AuditRecord) error {
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCUSTOMER\tINVOICE\tDATE\tPO\tAMOUNT\tDRIVER\tSTATUS")
	for _, r := range records {
		date := ""
		if r.InvoiceDate != nil {
			date = r.InvoiceDate.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.CustomerName, r.InvoiceNumber, date, r.PONumber,
			r.Amount.StringFixed(2), r.DriverName, r.MatchStatus)
	}
	return tw.Flush()
}

func (c *cli) recordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Manage single audit records",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete an audit record by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid record id %q", args[0])
			}
			return c.withContainer(cmd.Context(), func(ctx context.Context, ctr *container.Container) error {
				if err := ctr.Reconciliation().DeleteRecord(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "deleted record %d\n", id)
				return nil
			})
		},
	})
	return cmd
}

func (c *cli) importsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "imports",
		Short: "Show recent spreadsheet imports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("limit must be positive")
			}
			return c.withContainer(cmd.Context(), func(ctx context.Context, ctr *container.Container) error {
				logs, err := ctr.Reconciliation().ImportHistory(ctx, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "IMPORTED\tSOURCE\tREAD\tSKIPPED\tINSERTED\tUPDATED")
				for _, l := range logs {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n",
						l.ImportedAt.Format("2006-01-02 15:04"), l.SourceName,
						l.RowsRead, l.RowsSkipped, l.Inserted, l.Updated)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of imports to show")
	return cmd
}
