package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/haulmark/invoice-audit/internal/container"
	"github.com/haulmark/invoice-audit/internal/domain/entity"
	"github.com/haulmark/invoice-audit/pkg/utils"
	"github.com/spf13/cobra"
)

// knownLoadStatuses are the dispatch statuses a load may be saved with.
var knownLoadStatuses = []entity.LoadStatus{
	entity.LoadStatusBooked,
	entity.LoadStatusDispatched,
	entity.LoadStatusInTransit,
	entity.LoadStatusDelivered,
	entity.LoadStatusPaid,
	entity.LoadStatusCancelled,
}

func parseLoadStatus(s string) (entity.LoadStatus, error) {
	st := entity.LoadStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range knownLoadStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown load status %q", s)
}

func (c *cli) loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Record or list dispatched loads",
	}
	cmd.AddCommand(c.loadAddCmd(), c.loadListCmd())
	return cmd
}

func (c *cli) loadAddCmd() *cobra.Command {
	var (
		id                          int64
		po, customer, driver, gross string
		delivered, status           string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Save a load, replacing it when --id already exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := utils.ParseMoney(gross)
			if err != nil {
				return fmt.Errorf("--gross: %w", err)
			}
			deliveryDate, err := utils.ParseOptionalDate(delivered)
			if err != nil {
				return fmt.Errorf("--delivered: %w", err)
			}
			st, err := parseLoadStatus(status)
			if err != nil {
				return err
			}

			load := &entity.Load{
				ID:           id,
				PONumber:     strings.TrimSpace(po),
				CustomerName: utils.SanitizeString(customer),
				GrossAmount:  amount,
				DeliveryDate: deliveryDate,
				DriverName:   utils.SanitizeString(driver),
				Status:       st,
			}
			return c.withContainer(cmd.Context(), func(ctx context.Context, ctr *container.Container) error {
				if err := ctr.Loads().Save(ctx, load); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "saved load %d\n", load.ID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "load id (default assigned)")
	cmd.Flags().StringVar(&po, "po", "", "PO number")
	cmd.Flags().StringVar(&customer, "customer", "", "customer name")
	cmd.Flags().StringVar(&driver, "driver", "", "driver name")
	cmd.Flags().StringVar(&gross, "gross", "0", "gross amount")
	cmd.Flags().StringVar(&delivered, "delivered", "", "delivery date")
	cmd.Flags().StringVar(&status, "status", string(entity.LoadStatusDelivered), "dispatch status")
	return cmd
}

func (c *cli) loadListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd.Context(), func(ctx context.Context, ctr *container.Container) error {
				loads, err := ctr.Loads().GetAll(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPO\tCUSTOMER\tDRIVER\tGROSS\tDELIVERED\tSTATUS")
				for _, l := range loads {
					date := ""
					if l.DeliveryDate != nil {
						date = l.DeliveryDate.Format("2006-01-02")
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
						l.ID, l.PONumber, l.CustomerName, l.DriverName,
						l.GrossAmount.StringFixed(2), date, l.Status)
				}
				return tw.Flush()
			})
		},
	}
}
