// Command catalog-check validates a provider catalog, prints the cost of every
// offering per capability, and can seed the catalog into PostgreSQL.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ai_selector/internal/billing"
	"ai_selector/internal/catalog"
	"ai_selector/internal/config"
	"ai_selector/internal/models"
	"ai_selector/internal/storage"
)

type options struct {
	file     string
	quantity int64
	seed     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "catalog-check",
		Short: "Validate a provider catalog",
		Long: "Load and validate a provider catalog (the embedded default unless --file is given),\n" +
			"print the cost comparison per capability, and optionally seed it into PostgreSQL.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return run(ctx, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "catalog YAML file (default: embedded catalog)")
	cmd.Flags().Int64VarP(&opts.quantity, "quantity", "q", 1000, "units to quote per capability")
	cmd.Flags().BoolVar(&opts.seed, "seed", false, "write the catalog to the database at DATABASE_URL")
	return cmd
}

func run(ctx context.Context, out io.Writer, opts *options) error {
	if opts.quantity < 0 {
		return fmt.Errorf("quantity must be non-negative, got %d", opts.quantity)
	}

	var src catalog.Source = catalog.EmbeddedSource{}
	name := "embedded catalog"
	if opts.file != "" {
		src = catalog.NewFileSource(opts.file)
		name = opts.file
	}

	cat, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("catalog %s is invalid: %w", name, err)
	}
	fmt.Fprintf(out, "%s: %d providers OK\n", name, cat.Len())

	if err := printComparison(out, cat, opts.quantity); err != nil {
		return err
	}

	if opts.seed {
		return seed(ctx, out, cat)
	}
	return nil
}

func printComparison(out io.Writer, cat *catalog.Catalog, quantity int64) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, capability := range models.KnownCapabilities {
		quotes := billing.Compare(cat, capability, quantity)
		if len(quotes) == 0 {
			continue
		}
		fmt.Fprintf(tw, "\n%s (%d units)\n", capability, quantity)
		fmt.Fprintln(tw, "PROVIDER\tMODEL\tUNIT COST\tTOTAL\tFREE")
		for _, q := range quotes {
			fmt.Fprintf(tw, "%s\t%s\t%.8f\t%.4f\t%t\n", q.Provider, q.Model, q.UnitCost, q.TotalCost, q.IsFree)
		}
	}
	return tw.Flush()
}

func seed(ctx context.Context, out io.Writer, cat *catalog.Catalog) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL must be set to seed the catalog")
	}

	dbConfig := storage.DefaultDBConfig()
	dbConfig.DSN = cfg.Database.URL
	db, err := storage.NewDB(dbConfig)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	if err := storage.NewCatalogRepository(db).Seed(ctx, cat); err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}

	fmt.Fprintf(out, "\nseeded %d providers into the database\n", cat.Len())
	return nil
}
