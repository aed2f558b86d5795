// Command auditctl runs invoice audit operations against the local database
// without starting the HTTP server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/haulmark/invoice-audit/internal/config"
	"github.com/haulmark/invoice-audit/internal/container"
	"github.com/haulmark/invoice-audit/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd(os.Stdout, time.Now).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries the persistent flags shared by every subcommand.
type cli struct {
	cfgFile string
	verbose bool
	out     io.Writer
	now     func() time.Time
}

func newRootCmd(out io.Writer, now func() time.Time) *cobra.Command {
	c := &cli{out: out, now: now}

	root := &cobra.Command{
		Use:   "auditctl",
		Short: "Invoice audit reconciliation for trucking payroll",
		Long: `auditctl imports MyTriumph invoice audit spreadsheets, syncs delivered
loads into placeholder records and exports the loads still waiting on an
invoice.

Example Usage:
  auditctl import march.xlsx april.csv
  auditctl sync
  auditctl records --status UNBILLED
  auditctl export-unbilled --from 2024-03-01 --to 2024-03-31 --save`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(out)

	root.PersistentFlags().StringVar(&c.cfgFile, "config", os.Getenv("AUDIT_CONFIG"), "path to config.yaml")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging on stderr")

	root.AddCommand(
		c.importCmd(),
		c.syncCmd(),
		c.recordsCmd(),
		c.recordCmd(),
		c.exportUnbilledCmd(),
		c.exportTableCmd(),
		c.importsCmd(),
		c.loadCmd(),
	)
	return root
}

// withContainer loads configuration, starts a container for one command
// and closes it afterwards. The background load sync never runs here.
func (c *cli) withContainer(ctx context.Context, fn func(ctx context.Context, ctr *container.Container) error) error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return err
	}
	cfg.Sync.Interval = 0

	logger, err := utils.NewCLILogger(c.verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	ctr, err := container.NewContainer(cfg, logger, container.WithClock(c.now))
	if err != nil {
		return err
	}
	if err := ctr.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := ctr.Close(); err != nil {
			logger.Warn("Failed to close container", zap.Error(err))
		}
	}()

	return fn(ctx, ctr)
}
