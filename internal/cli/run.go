package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/stanstork/bulkgen/internal/models"
	"github.com/stanstork/bulkgen/internal/orchestrator"
)

// Server-side defaults for the largest generation runs.
var defaultLimits = orchestrator.Limits{MaxOrders: 1000000, MaxProducts: 1000}

func kindArg(args []string) (models.RecordKind, error) {
	kind, ok := models.ParseRecordKind(args[0])
	if !ok {
		return "", errors.Errorf("unknown record kind %q: use orders or products", args[0])
	}
	return kind, nil
}

func formatSnapshot(s orchestrator.Snapshot) string {
	c := s.Counters
	line := fmt.Sprintf("[%s] batch %d: %d/%d (%.1f%%) success=%d failed=%d skipped=%d",
		s.State, c.BatchIndex, c.Processed(), c.Total, s.Percent, c.Success, c.Failed, c.Skipped)
	if s.Rate != nil {
		line += fmt.Sprintf(" rate=%.1f/s", *s.Rate)
	}
	if s.ETA != nil {
		line += " eta=" + s.ETA.Round(time.Second).String()
	}
	return line
}

func printSummary(w io.Writer, s orchestrator.Snapshot) {
	fmt.Fprintf(w, "%s in %s: success=%d failed=%d skipped=%d\n",
		s.State, s.Elapsed.Round(time.Millisecond), s.Counters.Success, s.Counters.Failed, s.Counters.Skipped)
	if s.Artifact != "" {
		fmt.Fprintf(w, "download: %s\n", s.Artifact)
	}
}

type runFunc func(ctx context.Context, o *orchestrator.Orchestrator) (orchestrator.Snapshot, error)

// execute builds an orchestrator over an authenticated client and runs fn.
// The first interrupt asks the run to stop at its next checkpoint; a second
// one cancels the in-flight request.
func (e *environment) execute(cmd *cobra.Command, fn runFunc) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	client, err := e.session(ctx)
	if err != nil {
		return err
	}
	o := orchestrator.New(client, defaultLimits, e.logger())
	out := cmd.OutOrStdout()
	o.OnProgress = func(s orchestrator.Snapshot) {
		fmt.Fprintln(out, formatSnapshot(s))
	}

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			fmt.Fprintln(cmd.ErrOrStderr(), "stopping after the current batch, interrupt again to abort")
			o.Stop()
		case <-ctx.Done():
			return
		}
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
	}()

	snap, err := fn(ctx, o)
	if snap.State.Terminal() {
		printSummary(out, snap)
	}
	return err
}

func newGenerateCmd(env *environment) *cobra.Command {
	var (
		total     int
		batchSize int
		priceMin  float64
		priceMax  float64
	)
	cmd := &cobra.Command{
		Use:       "generate orders|products",
		Short:     "Generate synthetic orders or products",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"orders", "products"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args)
			if err != nil {
				return err
			}
			size := batchSize
			if size == 0 {
				size = defaultGenerateBatch(kind)
			}
			return env.execute(cmd, func(ctx context.Context, o *orchestrator.Orchestrator) (orchestrator.Snapshot, error) {
				return o.RunGeneration(ctx, orchestrator.GenerateParams{
					Kind:      kind,
					Total:     total,
					BatchSize: size,
					PriceMin:  priceMin,
					PriceMax:  priceMax,
				})
			})
		},
	}
	cmd.Flags().IntVar(&total, "total", 100, "number of records to create")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "records per request (default 50 for orders, 20 for products)")
	cmd.Flags().Float64Var(&priceMin, "price-min", 0, "minimum product price (server default when unset)")
	cmd.Flags().Float64Var(&priceMax, "price-max", 0, "maximum product price (server default when unset)")
	return cmd
}

func defaultGenerateBatch(kind models.RecordKind) int {
	if kind == models.RecordOrder {
		return 50
	}
	return 20
}

func newExportCmd(env *environment) *cobra.Command {
	var (
		batchSize int
		filters   models.ExportFilters
	)
	cmd := &cobra.Command{
		Use:       "export orders|products",
		Short:     "Export records to a CSV artifact",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"orders", "products"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args)
			if err != nil {
				return err
			}
			if filters.DateFrom == "" && filters.DateTo == "" && len(filters.Statuses) == 0 {
				filters.ExportAll = true
			}
			return env.execute(cmd, func(ctx context.Context, o *orchestrator.Orchestrator) (orchestrator.Snapshot, error) {
				return o.RunExport(ctx, orchestrator.ExportParams{Kind: kind, Filters: filters, BatchSize: batchSize})
			})
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&batchSize, "batch-size", 50, "records per request")
	flags.StringVar(&filters.DateFrom, "from", "", "orders created on or after YYYY-MM-DD")
	flags.StringVar(&filters.DateTo, "to", "", "orders created on or before YYYY-MM-DD")
	flags.StringSliceVar(&filters.Statuses, "status", nil, "order statuses to include")
	flags.StringSliceVar(&filters.ProductTypes, "type", nil, "product types to include")
	flags.StringSliceVar(&filters.Categories, "category", nil, "product categories to include")
	flags.StringSliceVar(&filters.Tags, "tag", nil, "product tags to include")
	return cmd
}

func newImportCmd(env *environment) *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "import orders|products FILE",
		Short: "Import records from a CSV file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args)
			if err != nil {
				return err
			}
			return env.execute(cmd, func(ctx context.Context, o *orchestrator.Orchestrator) (orchestrator.Snapshot, error) {
				return o.RunImport(ctx, orchestrator.ImportParams{Kind: kind, FilePath: args[1], BatchSize: batchSize})
			})
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 50, "records per request")
	return cmd
}

func newDeleteCmd(env *environment) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:       "delete orders|products",
		Short:     "Delete every order or product",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"orders", "products"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args)
			if err != nil {
				return err
			}
			if !yes {
				return errors.Errorf("refusing to delete all %ss without --yes", kind)
			}
			return env.execute(cmd, func(ctx context.Context, o *orchestrator.Orchestrator) (orchestrator.Snapshot, error) {
				return o.RunDelete(ctx, kind)
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
